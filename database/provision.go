package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/getpup/pupsourcing/es"
	"github.com/go-sql-driver/mysql"

	"github.com/getpup/glpi-bootstrap"
	"github.com/getpup/glpi-bootstrap/compose"
)

// erDBCreateExists is the server error raised by CREATE DATABASE on an existing name.
const erDBCreateExists = 1007

// Execer is the subset of *sql.DB the provisioner needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ProvisionerConfig configures a Provisioner.
type ProvisionerConfig struct {
	// Settings describes the server and the database to create.
	Settings Settings

	// DB runs statements against the server. When nil a connection is
	// opened from Settings for each call.
	DB Execer

	// Runner executes the database client inside the container (required for LoadSeed).
	Runner compose.Runner

	// Service is the database service name (default: "db").
	Service string

	// Client is the database client binary inside the container (default: "mariadb").
	Client string

	// UseClient issues CREATE DATABASE through the client inside the
	// container instead of a SQL connection. DB is ignored when set.
	UseClient bool

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Provisioner creates the GLPI database and loads its seed data.
type Provisioner struct {
	config ProvisionerConfig
}

// NewProvisioner creates a Provisioner, applying defaults for Service and Client.
func NewProvisioner(cfg ProvisionerConfig) *Provisioner {
	if cfg.Service == "" {
		cfg.Service = "db"
	}
	if cfg.Client == "" {
		cfg.Client = "mariadb"
	}
	cfg.Settings = cfg.Settings.WithDefaults()

	return &Provisioner{config: cfg}
}

// CreateDatabase creates the configured database. It deliberately has no
// IF NOT EXISTS clause: an existing database yields bootstrap.ErrDatabaseExists.
func (p *Provisioner) CreateDatabase(ctx context.Context) error {
	name := p.config.Settings.Name
	if err := ValidateIdentifier(name, "database name"); err != nil {
		return err
	}

	query := fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", name)

	if p.config.UseClient {
		if err := p.createWithClient(ctx, query); err != nil {
			return err
		}
		if p.config.Logger != nil {
			p.config.Logger.Info(ctx, "database created", "database", name)
		}
		return nil
	}

	db := p.config.DB
	if db == nil {
		conn, err := sql.Open("mysql", p.config.Settings.DSN(false))
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer conn.Close()
		db = conn
	}

	if _, err := db.ExecContext(ctx, query); err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == erDBCreateExists {
			return fmt.Errorf("%w: %s", bootstrap.ErrDatabaseExists, name)
		}
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}

	if p.config.Logger != nil {
		p.config.Logger.Info(ctx, "database created", "database", name)
	}
	return nil
}

// LoadSeed streams the SQL dump at path into the configured database through
// the client inside the database container. The client fails, and so does
// LoadSeed, when the database it targets does not exist.
func (p *Provisioner) LoadSeed(ctx context.Context, path string) error {
	if p.config.Runner == nil {
		return errors.New("runner is required to load the seed dump")
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", bootstrap.ErrSeedDumpMissing, path)
	}
	if err != nil {
		return fmt.Errorf("failed to open seed dump: %w", err)
	}
	defer f.Close()

	if p.config.Logger != nil {
		if info, err := f.Stat(); err == nil {
			p.config.Logger.Info(ctx, "loading seed dump", "path", path,
				"size", humanize.Bytes(uint64(info.Size())), "database", p.config.Settings.Name)
		}
	}

	err = p.config.Runner.Exec(ctx, compose.ExecOptions{
		Service: p.config.Service,
		Command: clientCommand(p.config.Client, p.config.Settings, p.config.Settings.Name),
		Stdin:   f,
	})
	if err != nil {
		return fmt.Errorf("failed to load seed dump: %w", err)
	}
	return nil
}

// createWithClient runs query with the in-container client. The client only
// reports the server error on stderr, so it is captured to detect 1007.
func (p *Provisioner) createWithClient(ctx context.Context, query string) error {
	if p.config.Runner == nil {
		return errors.New("runner is required to create the database with the client")
	}

	var stderr bytes.Buffer
	err := p.config.Runner.Exec(ctx, compose.ExecOptions{
		Service: p.config.Service,
		Command: clientCommand(p.config.Client, p.config.Settings, "--execute="+query),
		Stderr:  &stderr,
	})
	if err == nil {
		return nil
	}

	name := p.config.Settings.Name
	if strings.Contains(stderr.String(), fmt.Sprintf("ERROR %d", erDBCreateExists)) {
		return fmt.Errorf("%w: %s", bootstrap.ErrDatabaseExists, name)
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return fmt.Errorf("failed to create database %s: %w: %s", name, err, msg)
	}
	return fmt.Errorf("failed to create database %s: %w", name, err)
}
