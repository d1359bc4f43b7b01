package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// PostgresConnectionString returns the PostgreSQL DSN built from config.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteDSNValue(c.PostgresHost),
		c.PostgresPort,
		quoteDSNValue(c.PostgresUser),
		quoteDSNValue(c.PostgresPassword),
		quoteDSNValue(c.PostgresDBName),
		quoteDSNValue(c.PostgresSSLMode),
	)
}

// PostgresURL returns the PostgreSQL URL used by the migration runner.
func (c *Config) PostgresURL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     "/" + c.PostgresDBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.PostgresSSLMode),
	}
	return u.String()
}

// quoteDSNValue quotes a value for use in a keyword/value DSN.
// Values with spaces, quotes, or backslashes must be single-quoted with
// internal quotes and backslashes escaped.
func quoteDSNValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, " '\\") {
		return v
	}
	escaped := strings.ReplaceAll(v, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}

// parseDatabaseURL overrides PostgreSQL settings from DATABASE_URL when set.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if h := u.Hostname(); h != "" {
		c.PostgresHost = h
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", p, err)
		}
		c.PostgresPort = port
	}
	if u.User != nil {
		if name := u.User.Username(); name != "" {
			c.PostgresUser = name
		}
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		c.PostgresDBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}
