package compose

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// RootPasswordEnv is the variable the rendered file reads the database root
// password from, so the secret never lands on disk.
const RootPasswordEnv = "GLPI_DB_ROOT_PASSWORD"

// File is the subset of the compose file format the bootstrap renders.
type File struct {
	Name     string             `yaml:"name,omitempty"`
	Services map[string]Service `yaml:"services"`
}

// Service is a single compose service.
type Service struct {
	Image       string            `yaml:"image,omitempty"`
	Build       *Build            `yaml:"build,omitempty"`
	Restart     string            `yaml:"restart,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Ports       []string          `yaml:"ports,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty"`
	DependsOn   []string          `yaml:"depends_on,omitempty"`
}

// Build describes an image built from a local context.
type Build struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile,omitempty"`
}

// Descriptor is the desired state of a deployment's container group.
// File renders it into a compose file.
type Descriptor struct {
	// Project is the compose project name (default: "glpi").
	Project string

	// Dir is the directory the compose file is written to. Host paths
	// below are made relative to it.
	Dir string

	// DatabaseService is the database service name (default: "db").
	DatabaseService string

	// DatabaseImage is the database image (default: "mariadb:10.11").
	DatabaseImage string

	// DatabaseBind is the host address the database port is published on (default: "127.0.0.1").
	DatabaseBind string

	// DatabasePort is the host port published for the database. 0 leaves it unpublished.
	DatabasePort int

	// WebService is the application service name (default: "glpi").
	WebService string

	// WebImage is a prebuilt application image. When empty the image is built
	// from WebBuildContext.
	WebImage string

	// WebBuildContext is the build context for the application image (default: "web").
	WebBuildContext string

	// WebPort is the host port the web server is published on (default: 8000).
	WebPort int

	// WebappDir, DatabaseDir and ForensicLog are the host-side bind mounts.
	WebappDir   string
	DatabaseDir string
	ForensicLog string
}

func (d Descriptor) withDefaults() Descriptor {
	if d.Project == "" {
		d.Project = "glpi"
	}
	if d.DatabaseService == "" {
		d.DatabaseService = "db"
	}
	if d.DatabaseImage == "" {
		d.DatabaseImage = "mariadb:10.11"
	}
	if d.DatabaseBind == "" {
		d.DatabaseBind = "127.0.0.1"
	}
	if d.WebService == "" {
		d.WebService = "glpi"
	}
	if d.WebBuildContext == "" {
		d.WebBuildContext = "web"
	}
	if d.WebPort == 0 {
		d.WebPort = 8000
	}
	if d.WebappDir == "" {
		d.WebappDir = "webapp"
	}
	if d.DatabaseDir == "" {
		d.DatabaseDir = "database"
	}
	if d.ForensicLog == "" {
		d.ForensicLog = "forensic_log"
	}
	return d
}

// File renders the descriptor.
func (d Descriptor) File() File {
	d = d.withDefaults()

	db := Service{
		Image:   d.DatabaseImage,
		Restart: "unless-stopped",
		Environment: map[string]string{
			"MARIADB_ROOT_PASSWORD": "${" + RootPasswordEnv + ":?database root password is required}",
		},
		Volumes: []string{d.mount(d.DatabaseDir) + ":/var/lib/mysql"},
	}
	if d.DatabasePort > 0 {
		db.Ports = []string{d.DatabaseBind + ":" + strconv.Itoa(d.DatabasePort) + ":3306"}
	}

	web := Service{
		Restart: "unless-stopped",
		Ports:   []string{strconv.Itoa(d.WebPort) + ":80"},
		Volumes: []string{
			d.mount(d.WebappDir) + ":/var/www/html",
			d.mount(d.ForensicLog) + ":/var/log/apache2/forensic_log",
		},
		DependsOn: []string{d.DatabaseService},
	}
	if d.WebImage != "" {
		web.Image = d.WebImage
	} else {
		web.Build = &Build{Context: d.mount(d.WebBuildContext)}
	}

	return File{
		Name: d.Project,
		Services: map[string]Service{
			d.DatabaseService: db,
			d.WebService:      web,
		},
	}
}

// mount turns a host path into the "./relative" form compose expects.
func (d Descriptor) mount(path string) string {
	if d.Dir != "" && filepath.IsAbs(path) {
		if rel, err := filepath.Rel(d.Dir, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, ".") {
		return filepath.ToSlash(path)
	}
	return "./" + filepath.ToSlash(path)
}

// Marshal encodes the file as YAML with two-space indentation.
func (f File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("failed to encode compose file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode compose file: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile renders f to path, replacing any previous file.
func WriteFile(path string, f File) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create compose directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write compose file: %w", err)
	}
	return nil
}

// ReadFile parses the compose file at path.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read compose file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse compose file: %w", err)
	}
	return f, nil
}
