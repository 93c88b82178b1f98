package release

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/glpi-bootstrap"
)

func TestExtract_StripsTopLevelDirectory(t *testing.T) {
	dest := t.TempDir()

	files, err := Extract(bytes.NewReader(glpiTarball(t)), dest, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, files)
	assert.FileExists(t, filepath.Join(dest, "index.php"))
	assert.FileExists(t, filepath.Join(dest, "bin", "console"))
	assert.FileExists(t, filepath.Join(dest, "version", "10.0.16"))
	assert.NoDirExists(t, filepath.Join(dest, "glpi"))

	content, err := os.ReadFile(filepath.Join(dest, "index.php"))
	require.NoError(t, err)
	assert.Equal(t, "<?php // GLPI\n", string(content))
}

func TestExtract_KeepsTopLevelDirectoryWithoutStrip(t *testing.T) {
	dest := t.TempDir()

	_, err := Extract(bytes.NewReader(glpiTarball(t)), dest, 0)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dest, "glpi", "index.php"))
}

func TestExtract_CreatesDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "webapp")

	_, err := Extract(bytes.NewReader(glpiTarball(t)), dest, 1)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dest, "index.php"))
}

func TestExtract_RejectsPathTraversal(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "webapp")
	archive := tarball(t,
		file("glpi/index.php", "ok"),
		file("glpi/../../evil.php", "pwned"),
	)

	_, err := Extract(bytes.NewReader(archive), dest, 1)

	assert.ErrorIs(t, err, bootstrap.ErrArchiveInvalid)
	assert.NoFileExists(t, filepath.Join(parent, "evil.php"))
}

func TestExtract_RejectsEscapingSymlinks(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{name: "absolute", target: "/etc/passwd"},
		{name: "relative escape", target: "../../etc/passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := tarball(t,
				file("glpi/index.php", "ok"),
				symlink("glpi/config/link", tt.target),
			)

			_, err := Extract(bytes.NewReader(archive), t.TempDir(), 1)

			assert.ErrorIs(t, err, bootstrap.ErrArchiveInvalid)
		})
	}
}

func TestExtract_RejectsSymlinkChains(t *testing.T) {
	tests := []struct {
		name    string
		entries []entry
	}{
		{
			name: "write through chained links",
			entries: []entry{
				symlink("glpi/b", "."),
				symlink("glpi/c", "b/.."),
				file("glpi/c/escaped.txt", "pwned"),
			},
		},
		{
			name: "chained links without writes",
			entries: []entry{
				file("glpi/index.php", "ok"),
				symlink("glpi/b", "."),
				symlink("glpi/c", "b/.."),
			},
		},
		{
			name: "link created before the link it passes through",
			entries: []entry{
				file("glpi/index.php", "ok"),
				symlink("glpi/c", "b/.."),
				symlink("glpi/b", "."),
			},
		},
		{
			name: "link inside a linked directory",
			entries: []entry{
				file("glpi/index.php", "ok"),
				symlink("glpi/deep/b", ".."),
				symlink("glpi/deep/b/x", "../y"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := t.TempDir()
			dest := filepath.Join(parent, "webapp")

			_, err := Extract(bytes.NewReader(tarball(t, tt.entries...)), dest, 1)

			assert.ErrorIs(t, err, bootstrap.ErrArchiveInvalid)
			assert.NoFileExists(t, filepath.Join(parent, "escaped.txt"))
		})
	}
}

func TestExtract_ReplacesSymlinkWithRegularFile(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "webapp")
	archive := tarball(t,
		file("glpi/real.php", "ok"),
		symlink("glpi/alias.php", "real.php"),
		file("glpi/alias.php", "replaced"),
	)

	_, err := Extract(bytes.NewReader(archive), dest, 1)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dest, "real.php"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(content))
	content, err = os.ReadFile(filepath.Join(dest, "alias.php"))
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(content))
}

func TestExtract_AllowsInternalSymlinks(t *testing.T) {
	dest := t.TempDir()
	archive := tarball(t,
		file("glpi/lib/real.php", "ok"),
		symlink("glpi/lib/alias.php", "real.php"),
	)

	_, err := Extract(bytes.NewReader(archive), dest, 1)
	require.NoError(t, err)

	target, err := os.Readlink(filepath.Join(dest, "lib", "alias.php"))
	require.NoError(t, err)
	assert.Equal(t, "real.php", target)
}

func TestExtract_NotGzip(t *testing.T) {
	_, err := Extract(strings.NewReader("<html>rate limited</html>"), t.TempDir(), 1)

	assert.ErrorIs(t, err, bootstrap.ErrArchiveInvalid)
}

func TestExtract_TruncatedArchive(t *testing.T) {
	archive := glpiTarball(t)

	_, err := Extract(bytes.NewReader(archive[:len(archive)/2]), t.TempDir(), 1)

	assert.ErrorIs(t, err, bootstrap.ErrArchiveInvalid)
}

func TestExtract_EmptyArchive(t *testing.T) {
	archive := tarball(t, dir("glpi/"))

	_, err := Extract(bytes.NewReader(archive), t.TempDir(), 1)

	assert.ErrorIs(t, err, bootstrap.ErrArchiveInvalid)
}

func TestStripComponents(t *testing.T) {
	tests := []struct {
		name   string
		strip  int
		want   string
		wantOK bool
	}{
		{name: "glpi/", strip: 1, wantOK: false},
		{name: "glpi/index.php", strip: 1, want: "index.php", wantOK: true},
		{name: "./glpi/bin/console", strip: 1, want: filepath.Join("bin", "console"), wantOK: true},
		{name: "glpi/a/./b", strip: 1, want: filepath.Join("a", "b"), wantOK: true},
		{name: "index.php", strip: 0, want: "index.php", wantOK: true},
		{name: "glpi", strip: 1, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := stripComponents(tt.name, tt.strip)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
