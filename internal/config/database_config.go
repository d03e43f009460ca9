package config

import (
	"fmt"
	"net/url"
)

type DatabaseConfig struct {
	Enabled    bool   `yaml:"enabled" env:"DB_ENABLED" env-default:"false"`
	Host       string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port       int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User       string `yaml:"user" env:"DB_USER" env-default:"postgres"`
	Password   string `yaml:"password" env:"DB_PASSWORD"`
	Name       string `yaml:"name" env:"DB_NAME" env-default:"vnodefs"`
	SSLMode    string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	AuditTable string `yaml:"audit_table" env-default:"vfs_events"`
}

// DSN returns the connection string for pgxpool.
func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}
