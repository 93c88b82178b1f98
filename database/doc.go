// Package database waits for the deployment's MariaDB server and provisions
// the GLPI database on it.
//
// Readiness is a trivial query retried under a bounded exponential backoff.
// Provisioning creates the database over the MySQL protocol, so an existing
// database is reported instead of reused, and then streams the seed dump into
// the database client running inside the database container.
package database
