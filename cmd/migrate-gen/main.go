// Command migrate-gen generates SQL migration files for the glpi-bootstrap run history.
//
// Usage:
//
//	go run github.com/getpup/glpi-bootstrap/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/glpi-bootstrap/cmd/migrate-gen -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/getpup/glpi-bootstrap/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/getpup/glpi-bootstrap/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/getpup/glpi-bootstrap/cmd/migrate-gen -adapter sqlite -output migrations
//
// Customize table names:
//
//	go run github.com/getpup/glpi-bootstrap/cmd/migrate-gen -schema ops -runs-table bootstrap_runs
//
// Print to stdout instead of writing a file:
//
//	go run github.com/getpup/glpi-bootstrap/cmd/migrate-gen -adapter mysql -stdout | mariadb glpi_ops
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/glpi-bootstrap/pkg/migrations"
)

func main() {
	var (
		adapter        = flag.String("adapter", "sqlite", "Database adapter: postgres, mysql, or sqlite")
		outputFolder   = flag.String("output", "migrations", "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		schemaName     = flag.String("schema", "glpi_bootstrap", "Schema name (PostgreSQL) or table prefix (MySQL, SQLite)")
		runsTable      = flag.String("runs-table", "runs", "Name of runs table")
		stepsTable     = flag.String("steps-table", "run_steps", "Name of run steps table")
		stdout         = flag.Bool("stdout", false, "Print the SQL instead of writing a file")
	)
	flag.Parse()

	dialect := migrations.Dialect(*adapter)
	switch dialect {
	case migrations.Postgres, migrations.MySQL, migrations.SQLite:
	default:
		fmt.Fprintf(os.Stderr, "Error: unsupported adapter %q (postgres, mysql, sqlite)\n", *adapter)
		os.Exit(2)
	}

	config := migrations.DefaultConfig()
	config.OutputFolder = *outputFolder
	config.SchemaName = *schemaName
	config.RunsTable = *runsTable
	config.StepsTable = *stepsTable
	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	if *stdout {
		sql, err := migrations.SQL(dialect, &config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(sql)
		return
	}

	if err := migrations.Generate(dialect, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s history migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
