package postgres

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/config"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string // "disable", "require", "verify-ca", "verify-full"
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// FromDatasourceConfig maps the process configuration onto adapter options.
// The read-only login is preferred when one is configured.
func FromDatasourceConfig(ds *config.DatasourceConfig) (*Config, error) {
	cfg := &Config{
		Host:           ds.ResolvedHost(),
		Port:           ds.Port,
		User:           ds.EffectiveUser(),
		Password:       ds.EffectivePassword(),
		Database:       ds.Database,
		SSLMode:        ds.SSLMode,
		MaxConns:       ds.MaxConns,
		MinConns:       ds.MinConns,
		ConnectTimeout: ds.ConnectTimeout,
	}

	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = DefaultSSLMode()
	}

	switch {
	case cfg.Host == "":
		return nil, errors.New("host is required")
	case cfg.User == "":
		return nil, errors.New("user is required")
	case cfg.Database == "":
		return nil, errors.New("database is required")
	}
	if cfg.MinConns > cfg.MaxConns && cfg.MaxConns > 0 {
		return nil, fmt.Errorf("min_conns (%d) exceeds max_conns (%d)", cfg.MinConns, cfg.MaxConns)
	}

	return cfg, nil
}

// connectionString builds a PostgreSQL URL. User-provided fields are
// escaped so passwords containing @, /, # or ? survive URL parsing.
func (c *Config) connectionString() string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
