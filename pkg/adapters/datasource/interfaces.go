// Package datasource defines the database collaborator used by the agent
// and the registry through which dialect adapters make themselves available.
package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// Datasource is a read-only view of one database.
// Implementations own a connection pool and must be closed when done.
// Every method acquires a connection for the duration of the call only.
type Datasource interface {
	// Ping verifies the database is reachable with valid credentials.
	Ping(ctx context.Context) error

	// DescribeSchema returns user tables ordered by (schema, name) with
	// columns in ordinal order. System schemas are never included.
	DescribeSchema(ctx context.Context, opts DescribeOptions) ([]models.TableDescriptor, error)

	// SampleRows returns up to n rows of a table through the same
	// read-only path as QueryReadOnly.
	SampleRows(ctx context.Context, table models.TableDescriptor, n int) (*models.QueryResult, error)

	// QueryReadOnly runs one statement inside the adapter's privilege
	// boundary. The statement is bounded by limits.StatementTimeout and at
	// most limits.MaxRows rows are returned; Truncated is set when more
	// rows exist. Failures are *QueryError.
	QueryReadOnly(ctx context.Context, sqlText string, limits models.Limits) (*models.QueryResult, error)

	// Dialect returns the registered adapter type, e.g. "postgres".
	Dialect() string

	// Close releases the connection pool.
	Close() error
}

// DescribeOptions narrows schema introspection.
type DescribeOptions struct {
	// IncludeSchemas, when non-empty, keeps only these schemas.
	IncludeSchemas []string
	// ExcludeSchemas drops these schemas.
	ExcludeSchemas []string
	// MaxTables keeps the first N tables in order; 0 means no cap.
	MaxTables int
}
