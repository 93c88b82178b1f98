package compose

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor_DefaultFile(t *testing.T) {
	f := Descriptor{}.File()

	assert.Equal(t, "glpi", f.Name)
	require.Contains(t, f.Services, "db")
	require.Contains(t, f.Services, "glpi")

	db := f.Services["db"]
	assert.Equal(t, "mariadb:10.11", db.Image)
	assert.Equal(t, []string{"./database:/var/lib/mysql"}, db.Volumes)
	assert.Empty(t, db.Ports)
	assert.Contains(t, db.Environment["MARIADB_ROOT_PASSWORD"], RootPasswordEnv)

	web := f.Services["glpi"]
	assert.Empty(t, web.Image)
	require.NotNil(t, web.Build)
	assert.Equal(t, "./web", web.Build.Context)
	assert.Equal(t, []string{"8000:80"}, web.Ports)
	assert.Equal(t, []string{
		"./webapp:/var/www/html",
		"./forensic_log:/var/log/apache2/forensic_log",
	}, web.Volumes)
	assert.Equal(t, []string{"db"}, web.DependsOn)
}

func TestDescriptor_PublishesDatabasePort(t *testing.T) {
	f := Descriptor{DatabasePort: 3307}.File()

	assert.Equal(t, []string{"127.0.0.1:3307:3306"}, f.Services["db"].Ports)
}

func TestDescriptor_PrebuiltWebImage(t *testing.T) {
	f := Descriptor{WebService: "web", WebImage: "registry.local/glpi-php:8.2"}.File()

	web := f.Services["web"]
	assert.Equal(t, "registry.local/glpi-php:8.2", web.Image)
	assert.Nil(t, web.Build)
}

func TestDescriptor_RelativisesHostPaths(t *testing.T) {
	f := Descriptor{
		Dir:         "/srv/glpi",
		WebappDir:   "/srv/glpi/webapp",
		DatabaseDir: "/srv/glpi/state/database",
		ForensicLog: "/var/log/glpi/forensic_log",
	}.File()

	assert.Equal(t, "./state/database:/var/lib/mysql", f.Services["db"].Volumes[0])
	assert.Equal(t, "./webapp:/var/www/html", f.Services["glpi"].Volumes[0])
	assert.Equal(t, "/var/log/glpi/forensic_log:/var/log/apache2/forensic_log", f.Services["glpi"].Volumes[1])
}

func TestWriteFile_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docker-compose.yml")
	want := Descriptor{Project: "glpi-test", DatabasePort: 3306}.File()

	require.NoError(t, WriteFile(path, want))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMarshal_UsesComposeKeys(t *testing.T) {
	data, err := Descriptor{}.File().Marshal()
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "services:")
	assert.Contains(t, out, "depends_on:")
	assert.Contains(t, out, "  db:")
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.yml"))

	assert.Error(t, err)
}
