// Package sqlite implements the datasource adapter for SQLite database
// files. The file is opened read-only with query_only set on every
// connection, so the file itself is the privilege boundary.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/config"
)

// DefaultBusyTimeout bounds how long a reader waits on a writer's lock.
const DefaultBusyTimeout = 5 * time.Second

// Config contains SQLite-specific options.
type Config struct {
	Path        string
	MaxConns    int
	BusyTimeout time.Duration
}

// FromDatasourceConfig maps the process configuration onto adapter options.
func FromDatasourceConfig(ds *config.DatasourceConfig) (*Config, error) {
	if ds.Path == "" {
		return nil, errors.New("path is required")
	}
	return &Config{
		Path:        ds.Path,
		MaxConns:    int(ds.MaxConns),
		BusyTimeout: DefaultBusyTimeout,
	}, nil
}

var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// dsn opens the file through a URI so mode=ro is honored.
func (c *Config) dsn() string {
	busy := c.BusyTimeout
	if busy <= 0 {
		busy = DefaultBusyTimeout
	}
	return fmt.Sprintf("file:%s?mode=ro&_pragma=query_only(1)&_pragma=busy_timeout(%d)",
		uriEscaper.Replace(c.Path), busy.Milliseconds())
}

// Adapter provides read-only access to one SQLite file.
type Adapter struct {
	config *Config
	db     *sql.DB
	logger *zap.Logger
}

// NewAdapter opens the database file. A missing file is a connection error
// rather than an empty database.
func NewAdapter(cfg *Config, logger *zap.Logger) (*Adapter, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, datasource.NewQueryError(datasource.KindConnection, "", fmt.Errorf("open sqlite database: %w", err))
	}

	db, err := sql.Open("sqlite", cfg.dsn())
	if err != nil {
		return nil, datasource.NewQueryError(datasource.KindConnection, "", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{config: cfg, db: db, logger: logger.Named("sqlite")}, nil
}

// Ping opens a connection and reads the schema version, which fails for
// files that are not SQLite databases.
func (a *Adapter) Ping(ctx context.Context) error {
	var version int64
	if err := a.db.QueryRowContext(ctx, "PRAGMA schema_version").Scan(&version); err != nil {
		return classifyError(ctx, err)
	}
	return nil
}

// Dialect returns "sqlite".
func (a *Adapter) Dialect() string {
	return "sqlite"
}

// Close releases the pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

var _ datasource.Datasource = (*Adapter)(nil)
