package app

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// initPrefill is the database half of the init form, derived from an
// already-configured DSN so the operator only fills in the admin account.
type initPrefill struct {
	DatabaseType        string `json:"database_type"`
	DatabaseHost        string `json:"database_host"`
	DatabasePort        int    `json:"database_port"`
	DatabaseUser        string `json:"database_user"`
	DatabaseName        string `json:"database_name"`
	DatabaseSSLMode     string `json:"database_ssl_mode"`
	DatabasePath        string `json:"database_path"`
	DatabasePasswordSet bool   `json:"database_password_set"`
}

// defaultPostgresPort is assumed when the DSN omits a port.
const defaultPostgresPort = 5432

// initPrefillFromDSN parses a configured DSN into prefill fields. SQLite
// DSNs are file: URIs or bare paths, with driver params stripped; postgres
// URLs are broken into host, port, user and database parts without ever
// echoing the password.
func initPrefillFromDSN(dsn string) (initPrefill, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return initPrefill{}, fmt.Errorf("empty dsn")
	}

	if !strings.Contains(trimmed, "://") {
		path := strings.TrimPrefix(trimmed, "file:")
		path, _, _ = strings.Cut(path, "?")
		path = strings.TrimSpace(path)
		if path == "" || path == ":memory:" {
			return initPrefill{}, fmt.Errorf("sqlite dsn has no file path")
		}
		return initPrefill{
			DatabaseType: "sqlite",
			DatabasePath: path,
		}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return initPrefill{}, fmt.Errorf("parse dsn: %w", errParse)
	}
	scheme := strings.ToLower(strings.TrimSpace(u.Scheme))
	if scheme != "postgres" && scheme != "postgresql" {
		return initPrefill{}, fmt.Errorf("unsupported dsn scheme %q", u.Scheme)
	}

	prefill := initPrefill{
		DatabaseType:    "postgres",
		DatabaseHost:    strings.TrimSpace(u.Hostname()),
		DatabasePort:    defaultPostgresPort,
		DatabaseName:    strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
		DatabaseSSLMode: "disable",
	}
	if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
		port, errPort := strconv.Atoi(rawPort)
		if errPort != nil {
			return initPrefill{}, fmt.Errorf("parse port: %w", errPort)
		}
		prefill.DatabasePort = port
	}
	if u.User != nil {
		prefill.DatabaseUser = strings.TrimSpace(u.User.Username())
		_, prefill.DatabasePasswordSet = u.User.Password()
	}
	if mode := strings.TrimSpace(u.Query().Get("sslmode")); mode != "" {
		prefill.DatabaseSSLMode = mode
	}
	return prefill, nil
}
