package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/getpup/glpi-bootstrap/compose"
)

// Prober runs one trivial query against the database server.
type Prober interface {
	Probe(ctx context.Context) error
}

// SQLProber probes the server over the MySQL protocol on its published port.
type SQLProber struct {
	settings Settings
}

// Compile-time check that SQLProber implements Prober.
var _ Prober = (*SQLProber)(nil)

// NewSQLProber creates a prober for the given server settings.
func NewSQLProber(settings Settings) *SQLProber {
	return &SQLProber{settings: settings.WithDefaults()}
}

// Probe opens a fresh connection and runs SELECT 1.
func (p *SQLProber) Probe(ctx context.Context) error {
	db, err := sql.Open("mysql", p.settings.DSN(false))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("failed to query database: %w", err)
	}
	return nil
}

// ExecProberConfig configures an ExecProber.
type ExecProberConfig struct {
	// Runner executes commands in the container group (required).
	Runner compose.Runner

	// Service is the database service name (default: "db").
	Service string

	// Client is the database client binary inside the container (default: "mariadb").
	Client string

	// Settings supplies the credentials.
	Settings Settings
}

// ExecProber probes the server with the database client inside its own
// container, for deployments that do not publish the database port.
type ExecProber struct {
	config ExecProberConfig
}

// Compile-time check that ExecProber implements Prober.
var _ Prober = (*ExecProber)(nil)

// NewExecProber creates an ExecProber, applying defaults for Service and Client.
func NewExecProber(cfg ExecProberConfig) *ExecProber {
	if cfg.Service == "" {
		cfg.Service = "db"
	}
	if cfg.Client == "" {
		cfg.Client = "mariadb"
	}
	cfg.Settings = cfg.Settings.WithDefaults()

	return &ExecProber{config: cfg}
}

// Probe runs SELECT 1 through the client. Output is discarded so polling stays quiet.
func (p *ExecProber) Probe(ctx context.Context) error {
	return p.config.Runner.Exec(ctx, compose.ExecOptions{
		Service: p.config.Service,
		Command: clientCommand(p.config.Client, p.config.Settings, "--execute=SELECT 1"),
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	})
}

// clientCommand builds a client invocation that connects over the
// container-local socket with the given credentials.
func clientCommand(client string, s Settings, args ...string) []string {
	cmd := []string{client, "--user=" + s.User}
	if s.Password != "" {
		cmd = append(cmd, "--password="+s.Password)
	}
	return append(cmd, args...)
}
