package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Dialect selects the SQL flavour.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	if err := validateIdentifier(config.SchemaName, "SchemaName"); err != nil {
		return err
	}
	if err := validateIdentifier(config.RunsTable, "RunsTable"); err != nil {
		return err
	}
	if err := validateIdentifier(config.StepsTable, "StepsTable"); err != nil {
		return err
	}
	return nil
}

// Config configures migration generation for the run history tables.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// SchemaName is the PostgreSQL schema holding the tables.
	// MySQL and SQLite use it as a table name prefix instead (e.g. glpi_bootstrap_runs).
	SchemaName string

	// RunsTable is the name of the table with one row per bootstrap run
	RunsTable string

	// StepsTable is the name of the table with one row per executed step
	StepsTable string
}

// DefaultConfig returns the default configuration for history migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_glpi_bootstrap_history.sql", timestamp),
		SchemaName:     "glpi_bootstrap",
		RunsTable:      "runs",
		StepsTable:     "run_steps",
	}
}

// Tables returns the qualified runs and steps table names for a dialect.
func (c Config) Tables(dialect Dialect) (runs, steps string) {
	if dialect == Postgres {
		return c.SchemaName + "." + c.RunsTable, c.SchemaName + "." + c.StepsTable
	}
	return c.SchemaName + "_" + c.RunsTable, c.SchemaName + "_" + c.StepsTable
}

// Statements returns the idempotent DDL statements for a dialect, in
// execution order.
func Statements(dialect Dialect, config *Config) ([]string, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	runs, steps := config.Tables(dialect)

	switch dialect {
	case Postgres:
		return []string{
			fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, config.SchemaName),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    project TEXT NOT NULL,
    release_version TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL CHECK (status IN ('running', 'succeeded', 'failed')),
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ,
    error TEXT NOT NULL DEFAULT ''
)`, runs),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_started
    ON %s (started_at DESC)`, config.RunsTable, runs),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    run_id TEXT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
    seq INT NOT NULL,
    step TEXT NOT NULL,
    policy TEXT NOT NULL CHECK (policy IN ('fatal', 'best_effort')),
    status TEXT NOT NULL CHECK (status IN ('succeeded', 'failed', 'ignored', 'skipped')),
    started_at TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, seq)
)`, steps, runs),
		}, nil

	case MySQL:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(36) PRIMARY KEY,
    project VARCHAR(255) NOT NULL,
    release_version VARCHAR(64) NOT NULL DEFAULT '',
    status ENUM('running', 'succeeded', 'failed') NOT NULL,
    started_at DATETIME(6) NOT NULL,
    finished_at DATETIME(6) NULL,
    error TEXT NOT NULL,
    INDEX idx_%s_started (started_at DESC)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`, runs, config.RunsTable),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    run_id VARCHAR(36) NOT NULL,
    seq INT NOT NULL,
    step VARCHAR(64) NOT NULL,
    policy ENUM('fatal', 'best_effort') NOT NULL,
    status ENUM('succeeded', 'failed', 'ignored', 'skipped') NOT NULL,
    started_at DATETIME(6) NOT NULL,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    error TEXT NOT NULL,
    PRIMARY KEY (run_id, seq),
    FOREIGN KEY (run_id) REFERENCES %s (id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`, steps, runs),
		}, nil

	case SQLite:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    project TEXT NOT NULL,
    release_version TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL CHECK (status IN ('running', 'succeeded', 'failed')),
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    error TEXT NOT NULL DEFAULT ''
)`, runs),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_started
    ON %s (started_at DESC)`, runs, runs),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    run_id TEXT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    step TEXT NOT NULL,
    policy TEXT NOT NULL CHECK (policy IN ('fatal', 'best_effort')),
    status TEXT NOT NULL CHECK (status IN ('succeeded', 'failed', 'ignored', 'skipped')),
    started_at TIMESTAMP NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, seq)
)`, steps, runs),
		}, nil
	}

	return nil, fmt.Errorf("unsupported dialect %q", dialect)
}

// SQL renders the migration script for a dialect.
func SQL(dialect Dialect, config *Config) (string, error) {
	stmts, err := Statements(dialect, config)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "-- GLPI Bootstrap Run History Migration\n-- Generated: %s\n-- Database: %s\n",
		time.Now().Format(time.RFC3339), dialectName(dialect))
	for _, stmt := range stmts {
		b.WriteString("\n")
		b.WriteString(stmt)
		b.WriteString(";\n")
	}
	return b.String(), nil
}

func dialectName(d Dialect) string {
	switch d {
	case Postgres:
		return "PostgreSQL"
	case MySQL:
		return "MySQL/MariaDB"
	default:
		return "SQLite"
	}
}

// Generate writes the migration file for a dialect.
func Generate(dialect Dialect, config *Config) error {
	sql, err := SQL(dialect, config)
	if err != nil {
		return err
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return Generate(Postgres, config)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return Generate(MySQL, config)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return Generate(SQLite, config)
}
