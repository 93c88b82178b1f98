// Package sqlstore is a database/sql implementation of history.Store for
// SQLite, PostgreSQL and MySQL/MariaDB. The schema comes from pkg/migrations
// and is applied when the store is opened.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/getpup/glpi-bootstrap"
	"github.com/getpup/glpi-bootstrap/history"
	"github.com/getpup/glpi-bootstrap/pkg/migrations"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config configures Open.
type Config struct {
	// Driver is one of DriverSQLite, DriverPostgres or DriverMySQL (default: DriverSQLite).
	Driver string

	// DSN is the data source name. For SQLite it is a file path; its parent
	// directory is created when missing.
	DSN string

	// Tables names the schema and tables (default: migrations.DefaultConfig()).
	Tables migrations.Config

	// SkipMigrate disables schema creation on open.
	SkipMigrate bool
}

// Store is a database/sql implementation of history.Store.
type Store struct {
	db         *sql.DB
	dialect    migrations.Dialect
	tables     migrations.Config
	runsTable  string
	stepsTable string
}

// Compile-time check that Store implements history.Store.
var _ history.Store = (*Store)(nil)

// DialectFor maps a driver name to its SQL dialect.
func DialectFor(driver string) (migrations.Dialect, error) {
	switch driver {
	case DriverSQLite, "sqlite":
		return migrations.SQLite, nil
	case DriverPostgres, "postgresql":
		return migrations.Postgres, nil
	case DriverMySQL, "mariadb":
		return migrations.MySQL, nil
	}
	return "", fmt.Errorf("unsupported history driver %q", driver)
}

// Open connects to the history database and, unless SkipMigrate is set,
// creates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.DSN == "" {
		return nil, errors.New("history DSN is required")
	}
	if cfg.Tables.SchemaName == "" {
		cfg.Tables = migrations.DefaultConfig()
	}

	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	driver, dsn := cfg.Driver, cfg.DSN
	switch dialect {
	case migrations.SQLite:
		driver = DriverSQLite
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
	case migrations.Postgres:
		driver = DriverPostgres
	case migrations.MySQL:
		driver = DriverMySQL
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if dialect == migrations.SQLite {
		// One connection keeps ":memory:" databases shared and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	s := New(db, dialect, cfg.Tables)
	if !cfg.SkipMigrate {
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// New wraps an open database. The schema is expected to exist; call Migrate otherwise.
func New(db *sql.DB, dialect migrations.Dialect, tables migrations.Config) *Store {
	runs, steps := tables.Tables(dialect)
	return &Store{
		db:         db,
		dialect:    dialect,
		tables:     tables,
		runsTable:  runs,
		stepsTable: steps,
	}
}

// Migrate creates the history tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts, err := migrations.Statements(s.dialect, &s.tables)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate history schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateRun registers a new running run.
func (s *Store) CreateRun(ctx context.Context, project string) (bootstrap.Run, error) {
	run := bootstrap.Run{
		ID:        uuid.New().String(),
		Project:   project,
		Status:    bootstrap.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	query := s.rebind(fmt.Sprintf(`
		INSERT INTO %s (id, project, release_version, status, started_at, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.runsTable))

	_, err := s.db.ExecContext(ctx, query, run.ID, run.Project, "", string(run.Status), run.StartedAt, "")
	if err != nil {
		return bootstrap.Run{}, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// RecordStep appends a step result to a run.
// Returns bootstrap.ErrRunNotFound if the run does not exist.
func (s *Store) RecordStep(ctx context.Context, runID string, result bootstrap.StepResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRowContext(ctx, s.rebind(fmt.Sprintf(`
		SELECT (SELECT COALESCE(MAX(seq), 0) FROM %s WHERE run_id = ?) + 1
		FROM %s
		WHERE id = ?
	`, s.stepsTable, s.runsTable)), runID, runID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return bootstrap.ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get next step sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(fmt.Sprintf(`
		INSERT INTO %s (run_id, seq, step, policy, status, started_at, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.stepsTable)),
		runID, seq, string(result.Step), string(result.Policy), string(result.Status),
		result.StartedAt.UTC(), result.Duration.Milliseconds(), result.Error)
	if err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step: %w", err)
	}
	return nil
}

// FinishRun stores the final state of a run.
// Returns bootstrap.ErrRunNotFound if the run does not exist.
func (s *Store) FinishRun(ctx context.Context, run bootstrap.Run) error {
	var finished sql.NullTime
	if !run.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}

	query := s.rebind(fmt.Sprintf(`
		UPDATE %s
		SET status = ?, release_version = ?, finished_at = ?, error = ?
		WHERE id = ?
	`, s.runsTable))

	result, err := s.db.ExecContext(ctx, query, string(run.Status), run.ReleaseVersion, finished, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return bootstrap.ErrRunNotFound
	}

	return nil
}

// GetRun returns a run with its steps in execution order.
// Returns bootstrap.ErrRunNotFound if the run does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (bootstrap.Run, error) {
	query := s.rebind(fmt.Sprintf(`
		SELECT id, project, release_version, status, started_at, finished_at, error
		FROM %s
		WHERE id = ?
	`, s.runsTable))

	run, err := scanRun(s.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return bootstrap.Run{}, bootstrap.ErrRunNotFound
	}
	if err != nil {
		return bootstrap.Run{}, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(fmt.Sprintf(`
		SELECT step, policy, status, started_at, duration_ms, error
		FROM %s
		WHERE run_id = ?
		ORDER BY seq
	`, s.stepsTable)), runID)
	if err != nil {
		return bootstrap.Run{}, fmt.Errorf("failed to get run steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			step       bootstrap.StepResult
			durationMs int64
		)
		if err := rows.Scan(&step.Step, &step.Policy, &step.Status, &step.StartedAt, &durationMs, &step.Error); err != nil {
			return bootstrap.Run{}, fmt.Errorf("failed to scan step: %w", err)
		}
		step.StartedAt = step.StartedAt.UTC()
		step.Duration = time.Duration(durationMs) * time.Millisecond
		run.Steps = append(run.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return bootstrap.Run{}, fmt.Errorf("failed to iterate steps: %w", err)
	}

	return run, nil
}

// ListRuns returns the most recent runs first, without steps.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]bootstrap.Run, error) {
	if limit <= 0 {
		limit = history.DefaultListLimit
	}

	query := s.rebind(fmt.Sprintf(`
		SELECT id, project, release_version, status, started_at, finished_at, error
		FROM %s
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, s.runsTable))

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]bootstrap.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (bootstrap.Run, error) {
	var (
		run      bootstrap.Run
		finished sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.Project, &run.ReleaseVersion, &run.Status, &run.StartedAt, &finished, &run.Error); err != nil {
		return bootstrap.Run{}, err
	}
	run.StartedAt = run.StartedAt.UTC()
	if finished.Valid {
		run.FinishedAt = finished.Time.UTC()
	}
	return run, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != migrations.Postgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func ensureSQLiteDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create history directory %s: %w", dir, err)
	}
	return nil
}

// mysqlDSN enables the options the store relies on: DATETIME columns
// scanned as time.Time and matched rather than changed rows reported by UPDATE.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid MySQL history DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}
