package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ParsedDatabaseURL is a PostgreSQL connection URL broken into its parts.
// Options carries any query parameters beyond sslmode verbatim.
type ParsedDatabaseURL struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Options  map[string]string
}

// ParseDatabaseURL splits a postgres:// or postgresql:// connection URL
// into its components. Missing port and sslmode fall back to 5432 and
// disable.
func ParseDatabaseURL(rawURL string) (*ParsedDatabaseURL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}

	// Both scheme spellings appear in the wild; normalize before parsing.
	rawURL = strings.Replace(rawURL, "postgresql://", "postgres://", 1)

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if u.Scheme != "postgres" {
		return nil, fmt.Errorf("invalid database URL scheme: %s (expected postgres or postgresql)", u.Scheme)
	}

	result := &ParsedDatabaseURL{
		Host:    u.Hostname(),
		Options: make(map[string]string),
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port in database URL: %w", err)
		}
		result.Port = port
	} else {
		result.Port = 5432
	}

	if u.User != nil {
		result.User = u.User.Username()
		result.Password, _ = u.User.Password()
	}

	result.Database = strings.TrimPrefix(u.Path, "/")

	for key, values := range u.Query() {
		if len(values) > 0 {
			result.Options[key] = values[0]
		}
	}

	// sslmode is promoted to its own field; everything else stays an option.
	if sslMode, ok := result.Options["sslmode"]; ok {
		result.SSLMode = sslMode
		delete(result.Options, "sslmode")
	} else {
		result.SSLMode = "disable"
	}

	return result, nil
}

// BuildDatabaseURL assembles a postgres:// URL from individual settings.
// The password is query-escaped so special characters survive the trip.
func BuildDatabaseURL(host string, port int, user, password, database, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}

	encodedPassword := url.QueryEscape(password)

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user, encodedPassword, host, port, database, sslMode,
	)
}

// ToDSN renders the connection settings as a libpq key=value string,
// extra options included.
func (p *ParsedDatabaseURL) ToDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)

	for key, value := range p.Options {
		dsn += fmt.Sprintf(" %s=%s", key, value)
	}

	return dsn
}

// ToURL renders the connection settings back as a postgres:// URL
func (p *ParsedDatabaseURL) ToURL() string {
	return BuildDatabaseURL(p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}
