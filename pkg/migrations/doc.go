// Package migrations generates the SQL schema of the bootstrap run history.
// The same statements are written to migration files by cmd/migrate-gen and
// applied by the SQL history store when it opens a database, for PostgreSQL,
// MySQL/MariaDB and SQLite.
package migrations
