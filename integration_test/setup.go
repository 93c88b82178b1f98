//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/getpup/glpi-bootstrap/history/sqlstore"
	"github.com/getpup/glpi-bootstrap/pkg/migrations"
)

// testTables isolates integration runs from a real deployment's history.
func testTables() migrations.Config {
	cfg := migrations.DefaultConfig()
	cfg.SchemaName = "glpi_bootstrap_it"
	return cfg
}

// openStore opens a history store against the database named by envVar,
// skipping the test when it is not set. Tables are dropped on cleanup.
func openStore(t *testing.T, driver, envVar string) *sqlstore.Store {
	t.Helper()

	dsn := os.Getenv(envVar)
	if dsn == "" {
		t.Skipf("%s not set, skipping integration test", envVar)
	}

	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.Config{Driver: driver, DSN: dsn, Tables: testTables()})
	if err != nil {
		t.Fatalf("failed to open %s store: %v", driver, err)
	}

	t.Cleanup(func() {
		teardownTables(t, store, driver)
		_ = store.Close()
	})
	return store
}

// teardownTables drops the history tables. Errors are logged but don't fail the test.
func teardownTables(t *testing.T, store *sqlstore.Store, driver string) {
	t.Helper()

	dialect, err := sqlstore.DialectFor(driver)
	if err != nil {
		t.Logf("warning: %v", err)
		return
	}
	runs, steps := testTables().Tables(dialect)
	for _, table := range []string{steps, runs} {
		if _, err := store.DB().Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			t.Logf("warning: failed to drop %s: %v", table, err)
		}
	}
}

// requireDocker skips unless GLPI_BOOTSTRAP_E2E is set and docker compose is usable.
func requireDocker(t *testing.T) {
	t.Helper()

	if os.Getenv("GLPI_BOOTSTRAP_E2E") == "" {
		t.Skip("GLPI_BOOTSTRAP_E2E not set, skipping end-to-end test")
	}
	if err := exec.Command("docker", "compose", "version").Run(); err != nil {
		t.Skipf("docker compose not available: %v", err)
	}
}
