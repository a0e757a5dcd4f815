// Package mysql implements the datasource adapter for MySQL 8 and MariaDB.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
)

// Adapter provides read-only MySQL access through one *sql.DB pool.
type Adapter struct {
	config *Config
	db     *sql.DB
	logger *zap.Logger
}

// NewAdapter opens a pool. Connections are made lazily; use Ping to verify.
func NewAdapter(cfg *Config, logger *zap.Logger) (*Adapter, error) {
	connector, err := mysql.NewConnector(cfg.driverConfig())
	if err != nil {
		return nil, fmt.Errorf("configure mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns)
	}
	return newAdapterWithDB(cfg, db, logger), nil
}

func newAdapterWithDB(cfg *Config, db *sql.DB, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{config: cfg, db: db, logger: logger.Named("mysql")}
}

// Ping verifies the server is reachable and the session uses the
// configured database.
func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return classifyError(err)
	}

	var currentDB sql.NullString
	if err := a.db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&currentDB); err != nil {
		return classifyError(err)
	}
	if !strings.EqualFold(currentDB.String, a.config.Database) {
		return datasource.NewQueryError(datasource.KindConnection, "",
			fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB.String))
	}
	return nil
}

// Dialect returns "mysql".
func (a *Adapter) Dialect() string {
	return "mysql"
}

// Close releases the pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

var _ datasource.Datasource = (*Adapter)(nil)
