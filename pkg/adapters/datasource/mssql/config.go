package mssql

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/config"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      time.Duration
	MaxConns               int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// FromDatasourceConfig maps the process configuration onto adapter options.
// ssl_mode "disable" turns encryption off, "require" (the default) encrypts
// without verifying the certificate, "verify-full" encrypts and verifies.
func FromDatasourceConfig(ds *config.DatasourceConfig) (*Config, error) {
	cfg := &Config{
		Host:              ds.ResolvedHost(),
		Port:              ds.Port,
		Database:          ds.Database,
		Username:          ds.EffectiveUser(),
		Password:          ds.EffectivePassword(),
		ConnectionTimeout: ds.ConnectTimeout,
		MaxConns:          int(ds.MaxConns),
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}

	switch ds.SSLMode {
	case "disable":
		cfg.Encrypt = false
	case "", "require":
		cfg.Encrypt = true
		cfg.TrustServerCertificate = true
	case "verify-ca", "verify-full":
		cfg.Encrypt = true
	default:
		return nil, fmt.Errorf("unsupported ssl_mode %q for mssql", ds.SSLMode)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("host is required")
	case c.Database == "":
		return errors.New("database is required")
	case c.Username == "":
		return errors.New("username is required for SQL authentication")
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// connectionString builds a sqlserver URL that declares read-only intent.
func (c *Config) connectionString() string {
	query := url.Values{}
	query.Add("database", c.Database)
	query.Add("ApplicationIntent", "ReadOnly")
	query.Add("app name", applicationName)

	if c.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "disable")
	}
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("dial timeout", strconv.Itoa(int(c.ConnectionTimeout.Seconds())))
	}

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}
