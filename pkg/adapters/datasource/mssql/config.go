package mssql

import (
	"fmt"
	"net/url"
)

// Config contains SQL Server-specific connection options for a target
// database being profiled.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Encrypt  string // "true", "false", "disable"
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:    DefaultPort(),
		Encrypt: "true",
	}

	if host, ok := config["host"].(string); ok {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if port, ok := config["port"].(float64); ok { // JSON numbers are float64
		cfg.Port = int(port)
	} else if port, ok := config["port"].(int); ok {
		cfg.Port = port
	}

	if user, ok := config["user"].(string); ok {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := config["database"].(string); ok {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if encrypt, ok := config["encrypt"].(string); ok {
		cfg.Encrypt = encrypt
	}

	return cfg, nil
}

func buildConnectionString(cfg *Config) string {
	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	q := url.Values{}
	q.Set("database", cfg.Database)
	q.Set("encrypt", cfg.Encrypt)
	u.RawQuery = q.Encode()
	return u.String()
}
