// Command glpi-bootstrap recreates a GLPI deployment from a pinned upstream
// release: it tears down the previous containers, unpacks the release,
// provisions the database and drives GLPI's console until the application
// is migrated and out of maintenance mode.
//
// Usage:
//
//	glpi-bootstrap up --workdir /srv/glpi
//	glpi-bootstrap status
//	glpi-bootstrap history [run-id]
//
// Configuration comes from an optional YAML file (--config), a .env file
// (--env-file, by default .env in --workdir or else in the current
// directory) and GLPI_BOOTSTRAP_* environment variables.
package main

import (
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
