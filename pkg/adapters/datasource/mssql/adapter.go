// Package mssql implements the datasource adapter for Microsoft SQL Server.
//
// SQL Server has no per-session read-only switch outside availability
// groups, so the privilege boundary is the configured login (db_datareader)
// together with a transaction that is always rolled back.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
)

const applicationName = "ekaya-dbagent"

// Adapter provides read-only SQL Server access through one *sql.DB pool.
type Adapter struct {
	config *Config
	db     *sql.DB
	logger *zap.Logger
}

// NewAdapter opens a pool. Connections are made lazily; use Ping to verify.
func NewAdapter(cfg *Config, logger *zap.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open("sqlserver", cfg.connectionString())
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	return newAdapterWithDB(cfg, db, logger), nil
}

func newAdapterWithDB(cfg *Config, db *sql.DB, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{config: cfg, db: db, logger: logger.Named("mssql")}
}

// Ping verifies the server is reachable and the login landed in the
// configured database.
func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return classifyError(err)
	}

	var currentDB string
	if err := a.db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&currentDB); err != nil {
		return classifyError(err)
	}
	if !strings.EqualFold(currentDB, a.config.Database) {
		return datasource.NewQueryError(datasource.KindConnection, "",
			fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB))
	}
	return nil
}

// Dialect returns "mssql".
func (a *Adapter) Dialect() string {
	return "mssql"
}

// Close releases the pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

var _ datasource.Datasource = (*Adapter)(nil)
