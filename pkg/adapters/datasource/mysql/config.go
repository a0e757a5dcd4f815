package mysql

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/config"
)

// Config contains MySQL-specific connection options.
type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	TLS            string // driver tls parameter: "false", "preferred", "skip-verify", "true"
	MaxConns       int
	ConnectTimeout time.Duration
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// FromDatasourceConfig maps the process configuration onto adapter options.
func FromDatasourceConfig(ds *config.DatasourceConfig) (*Config, error) {
	cfg := &Config{
		Host:           ds.ResolvedHost(),
		Port:           ds.Port,
		User:           ds.EffectiveUser(),
		Password:       ds.EffectivePassword(),
		Database:       ds.Database,
		MaxConns:       int(ds.MaxConns),
		ConnectTimeout: ds.ConnectTimeout,
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}

	switch ds.SSLMode {
	case "":
		cfg.TLS = "preferred"
	case "disable":
		cfg.TLS = "false"
	case "require":
		cfg.TLS = "skip-verify"
	case "verify-ca", "verify-full":
		cfg.TLS = "true"
	default:
		return nil, fmt.Errorf("unsupported ssl_mode %q for mysql", ds.SSLMode)
	}

	switch {
	case cfg.Host == "":
		return nil, errors.New("host is required")
	case cfg.User == "":
		return nil, errors.New("user is required")
	case cfg.Database == "":
		return nil, errors.New("database is required")
	}
	return cfg, nil
}

// driverConfig builds the go-sql-driver configuration. Times are parsed
// into time.Time so results render as dates rather than byte strings.
func (c *Config) driverConfig() *mysql.Config {
	dc := mysql.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.TLSConfig = c.TLS
	if c.ConnectTimeout > 0 {
		dc.Timeout = c.ConnectTimeout
	}
	return dc
}
