//go:build integration

package migrations_test

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/getpup/glpi-bootstrap/pkg/migrations"
)

// NOTE: Integration tests use string interpolation for SQL queries with validated
// configuration values. This is acceptable in test code as all config values are
// controlled by the test and have been validated by the migrations package.

func applyTwice(t *testing.T, db *sql.DB, dialect migrations.Dialect, config *migrations.Config) {
	t.Helper()

	stmts, err := migrations.Statements(dialect, config)
	if err != nil {
		t.Fatalf("Failed to build statements: %v", err)
	}

	// Applying twice proves the migration is idempotent.
	for i := 0; i < 2; i++ {
		for _, stmt := range stmts {
			if _, err := db.Exec(stmt); err != nil {
				t.Fatalf("Failed to execute migration (pass %d): %v\n%s", i+1, err, stmt)
			}
		}
	}
}

func insertRunAndStep(t *testing.T, db *sql.DB, dialect migrations.Dialect, config *migrations.Config) {
	t.Helper()

	runs, steps := config.Tables(dialect)
	ph := func(n int) string {
		if dialect == migrations.Postgres {
			return fmt.Sprintf("$%d", n)
		}
		return "?"
	}

	now := time.Now().UTC()
	_, err := db.Exec(fmt.Sprintf("INSERT INTO %s (id, project, release_version, status, started_at, error) VALUES (%s, %s, %s, %s, %s, %s)",
		runs, ph(1), ph(2), ph(3), ph(4), ph(5), ph(6)),
		"00000000-0000-0000-0000-000000000001", "glpi", "10.0.16", "running", now, "")
	if err != nil {
		t.Fatalf("Failed to insert run: %v", err)
	}

	_, err = db.Exec(fmt.Sprintf("INSERT INTO %s (run_id, seq, step, policy, status, started_at, duration_ms, error) VALUES (%s, %s, %s, %s, %s, %s, %s, %s)",
		steps, ph(1), ph(2), ph(3), ph(4), ph(5), ph(6), ph(7), ph(8)),
		"00000000-0000-0000-0000-000000000001", 1, "reset", "fatal", "succeeded", now, 12, "")
	if err != nil {
		t.Fatalf("Failed to insert step: %v", err)
	}

	_, err = db.Exec(fmt.Sprintf("INSERT INTO %s (id, project, release_version, status, started_at, error) VALUES (%s, %s, %s, %s, %s, %s)",
		runs, ph(1), ph(2), ph(3), ph(4), ph(5), ph(6)),
		"00000000-0000-0000-0000-000000000002", "glpi", "", "exploded", now, "")
	if err == nil {
		t.Error("Expected the status constraint to reject an unknown run status")
	}
}

func TestIntegrationPostgres(t *testing.T) {
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping PostgreSQL integration test")
	}

	config := migrations.DefaultConfig()
	config.SchemaName = "glpi_bootstrap_test"
	config.OutputFolder = t.TempDir()

	if err := migrations.GeneratePostgres(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}
	migrationSQL, err := os.ReadFile(filepath.Join(config.OutputFolder, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	defer func() {
		if _, err := db.Exec(fmt.Sprintf("DROP SCHEMA %s CASCADE", config.SchemaName)); err != nil {
			t.Logf("Warning: Failed to clean up schema: %v", err)
		}
	}()

	// The generated file runs as a single multi-statement script.
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to execute migration file: %v", err)
	}

	applyTwice(t, db, migrations.Postgres, &config)
	insertRunAndStep(t, db, migrations.Postgres, &config)
}

func TestIntegrationMySQL(t *testing.T) {
	dbURL := os.Getenv("MYSQL_URL")
	if dbURL == "" {
		t.Skip("MYSQL_URL not set, skipping MySQL integration test")
	}

	config := migrations.DefaultConfig()
	config.SchemaName = "glpi_bootstrap_test"

	db, err := sql.Open("mysql", dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer db.Close()

	runs, steps := config.Tables(migrations.MySQL)
	defer func() {
		for _, table := range []string{steps, runs} {
			if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				t.Logf("Warning: Failed to drop %s: %v", table, err)
			}
		}
	}()

	applyTwice(t, db, migrations.MySQL, &config)
	insertRunAndStep(t, db, migrations.MySQL, &config)
}

func TestIntegrationSQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Failed to open SQLite: %v", err)
	}
	defer db.Close()

	config := migrations.DefaultConfig()

	applyTwice(t, db, migrations.SQLite, &config)
	insertRunAndStep(t, db, migrations.SQLite, &config)
}
