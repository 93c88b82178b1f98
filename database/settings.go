package database

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Settings describes how to reach the database server from the host.
type Settings struct {
	// Host is the host-side address of the published database port (default: "127.0.0.1").
	Host string

	// Port is the host-side database port (default: 3306).
	Port int

	// User is the administrative user (default: "root").
	User string

	// Password is the administrative user's password.
	Password string

	// Name is the GLPI database name (default: "glpi").
	Name string

	// ConnectTimeout bounds a single connection attempt (default: 5s).
	ConnectTimeout time.Duration
}

// WithDefaults returns a copy of s with empty fields set to their defaults.
func (s Settings) WithDefaults() Settings {
	if s.Host == "" {
		s.Host = "127.0.0.1"
	}
	if s.Port == 0 {
		s.Port = 3306
	}
	if s.User == "" {
		s.User = "root"
	}
	if s.Name == "" {
		s.Name = "glpi"
	}
	if s.ConnectTimeout == 0 {
		s.ConnectTimeout = 5 * time.Second
	}
	return s
}

// DSN returns a go-sql-driver/mysql data source name for the server.
// The database name is included only when withName is set.
func (s Settings) DSN(withName bool) string {
	s = s.WithDefaults()

	cfg := mysql.NewConfig()
	cfg.User = s.User
	cfg.Passwd = s.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	cfg.Timeout = s.ConnectTimeout
	cfg.ReadTimeout = s.ConnectTimeout
	if withName {
		cfg.DBName = s.Name
	}
	return cfg.FormatDSN()
}

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidateIdentifier ensures a database name contains only characters that
// are safe to splice into a statement.
func ValidateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if len(name) > 64 {
		return fmt.Errorf("%s must be at most 64 characters (got: %d)", fieldName, len(name))
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}
