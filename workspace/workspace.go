// Package workspace owns the on-disk layout of a deployment: the unpacked
// application tree, the database data directory and the forensic log that are
// bind-mounted into the containers.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Layout describes where the deployment lives on disk.
// Relative paths are resolved against Root.
type Layout struct {
	// Root is the deployment working directory (required).
	Root string

	// Webapp is the application code mount (default: "webapp").
	Webapp string

	// Database is the database data directory mount (default: "database").
	Database string

	// ForensicLog is the web server's forensic log sink (default: "forensic_log").
	ForensicLog string

	// SeedDump is the SQL dump loaded into a fresh database (default: "database_dump.sql").
	// Set to "-" to disable seeding.
	SeedDump string

	// ComposeFile is the compose descriptor (default: "docker-compose.yml").
	ComposeFile string
}

// NoSeed disables the seed dump when used as Layout.SeedDump.
const NoSeed = "-"

// New returns a Layout rooted at root with default names applied.
func New(root string) Layout {
	return Layout{Root: root}.WithDefaults()
}

// WithDefaults returns a copy of l with empty fields set to their defaults
// and relative paths resolved against Root.
func (l Layout) WithDefaults() Layout {
	if l.Root == "" {
		l.Root = "."
	}
	l.Webapp = l.resolve(l.Webapp, "webapp")
	l.Database = l.resolve(l.Database, "database")
	l.ForensicLog = l.resolve(l.ForensicLog, "forensic_log")
	l.ComposeFile = l.resolve(l.ComposeFile, "docker-compose.yml")
	if l.SeedDump != NoSeed {
		l.SeedDump = l.resolve(l.SeedDump, "database_dump.sql")
	}
	return l
}

func (l Layout) resolve(path, def string) string {
	if path == "" {
		path = def
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.Root, path)
}

// HasSeed reports whether a seed dump is configured.
func (l Layout) HasSeed() bool {
	return l.SeedDump != NoSeed && l.SeedDump != ""
}

// Reset removes the application and database directories, if present, and
// recreates them empty. It then makes sure the forensic log exists.
// Any previous deployment state is lost.
func (l Layout) Reset() error {
	for _, dir := range []string{l.Webapp, l.Database} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return l.EnsureForensicLog()
}

// EnsureForensicLog creates the forensic log file if it does not exist.
// An existing file is left untouched; its contents belong to the web server.
func (l Layout) EnsureForensicLog() error {
	if err := os.MkdirAll(filepath.Dir(l.ForensicLog), 0o755); err != nil {
		return fmt.Errorf("failed to create forensic log directory: %w", err)
	}

	f, err := os.OpenFile(l.ForensicLog, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create forensic log: %w", err)
	}
	return f.Close()
}

// IsEmpty reports whether dir exists and contains no entries.
func IsEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// Clean reports whether both the application and database directories
// exist and are empty.
func (l Layout) Clean() (bool, error) {
	for _, dir := range []string{l.Webapp, l.Database} {
		empty, err := IsEmpty(dir)
		if err != nil {
			return false, err
		}
		if !empty {
			return false, nil
		}
	}
	return true, nil
}
