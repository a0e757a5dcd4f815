package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/config"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/testhelpers"
)

func newFixtureAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := NewAdapter(&Config{Path: testhelpers.NewSQLiteFixture(t), MaxConns: 2}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestFromDatasourceConfig(t *testing.T) {
	cfg, err := FromDatasourceConfig(&config.DatasourceConfig{Type: "sqlite", Path: "/data/shop.db", MaxConns: 3})
	require.NoError(t, err)
	assert.Equal(t, "/data/shop.db", cfg.Path)
	assert.Equal(t, 3, cfg.MaxConns)

	_, err = FromDatasourceConfig(&config.DatasourceConfig{Type: "sqlite"})
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	cfg := &Config{Path: "/tmp/odd?name#1.db", BusyTimeout: 2 * time.Second}
	assert.Equal(t, "file:/tmp/odd%3fname%231.db?mode=ro&_pragma=query_only(1)&_pragma=busy_timeout(2000)", cfg.dsn())
}

func TestNewAdapter_MissingFile(t *testing.T) {
	_, err := NewAdapter(&Config{Path: filepath.Join(t.TempDir(), "absent.db")}, nil)
	require.Error(t, err)
	assert.Equal(t, datasource.KindConnection, datasource.KindOf(err))
}

func TestPing(t *testing.T) {
	a := newFixtureAdapter(t)
	require.NoError(t, a.Ping(context.Background()))
	assert.Equal(t, "sqlite", a.Dialect())
}

func TestDescribeSchema(t *testing.T) {
	a := newFixtureAdapter(t)

	tables, err := a.DescribeSchema(context.Background(), datasource.DescribeOptions{})
	require.NoError(t, err)
	require.Len(t, tables, 3)
	assert.Equal(t, "customers", tables[0].QualifiedName())
	assert.Equal(t, "orders", tables[1].Name)
	assert.Equal(t, "products", tables[2].Name)

	assert.Equal(t, models.ColumnDescriptor{Name: "id", DataType: "INTEGER", PrimaryKey: true}, tables[0].Columns[0])
	assert.Equal(t, models.ColumnDescriptor{Name: "email", DataType: "TEXT", Nullable: true}, tables[0].Columns[2])

	shipped, ok := tables[1].Column("shipped_at")
	require.True(t, ok)
	assert.True(t, shipped.Nullable)

	capped, err := a.DescribeSchema(context.Background(), datasource.DescribeOptions{MaxTables: 1})
	require.NoError(t, err)
	assert.Len(t, capped, 1)
}

func TestQueryReadOnly_Aggregate(t *testing.T) {
	a := newFixtureAdapter(t)

	result, err := a.QueryReadOnly(context.Background(),
		"SELECT COUNT(*) AS order_count FROM orders WHERE created_at >= '2024-02-01'",
		models.Limits{MaxRows: 100, StatementTimeout: 5 * time.Second})
	require.NoError(t, err)
	require.Equal(t, 1, result.RowCount)
	assert.Equal(t, []string{"order_count"}, result.ColumnNames())
	assert.Equal(t, int64(3), result.Rows[0][0])
	assert.False(t, result.Truncated)
}

func TestQueryReadOnly_Values(t *testing.T) {
	a := newFixtureAdapter(t)

	result, err := a.QueryReadOnly(context.Background(),
		"SELECT name, price FROM products WHERE name = 'Gadget'", models.Limits{MaxRows: 10})
	require.NoError(t, err)
	require.Equal(t, 1, result.RowCount)
	assert.Equal(t, []any{"Gadget", 24.5}, result.Rows[0])
}

func TestQueryReadOnly_Truncates(t *testing.T) {
	a := newFixtureAdapter(t)

	result, err := a.QueryReadOnly(context.Background(), "SELECT id FROM orders ORDER BY id", models.Limits{MaxRows: 2})
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, 2, result.RowCap)
	assert.Equal(t, int64(1), result.Rows[0][0])
}

func TestQueryReadOnly_KeepsDuplicateColumnNames(t *testing.T) {
	a := newFixtureAdapter(t)

	result, err := a.QueryReadOnly(context.Background(),
		"SELECT o.id, c.id FROM orders o JOIN customers c ON c.id = o.customer_id ORDER BY o.id",
		models.Limits{MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "id"}, result.ColumnNames())
	assert.Equal(t, 2, result.RowCount)
	assert.True(t, result.Truncated)
}

func TestQueryReadOnly_EmptyResultKeepsColumns(t *testing.T) {
	a := newFixtureAdapter(t)

	result, err := a.QueryReadOnly(context.Background(),
		"SELECT c.name FROM customers c LEFT JOIN orders o ON o.customer_id = c.id WHERE o.id IS NULL AND c.country = 'US'",
		models.Limits{MaxRows: 10})
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
	assert.Equal(t, []string{"name"}, result.ColumnNames())
}

func TestQueryReadOnly_WritesRejectedByFile(t *testing.T) {
	a := newFixtureAdapter(t)
	ctx := context.Background()

	for _, stmt := range []string{
		"DELETE FROM orders",
		"UPDATE products SET price = 0",
		"CREATE TABLE scratch (id INTEGER)",
	} {
		_, err := a.QueryReadOnly(ctx, stmt, models.Limits{MaxRows: 10})
		require.Error(t, err, stmt)
		assert.Equal(t, datasource.KindPermission, datasource.KindOf(err), stmt)
	}

	result, err := a.QueryReadOnly(ctx, "SELECT COUNT(*) FROM orders", models.Limits{MaxRows: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Rows[0][0])
}

func TestQueryReadOnly_ErrorKinds(t *testing.T) {
	a := newFixtureAdapter(t)
	ctx := context.Background()

	_, err := a.QueryReadOnly(ctx, "SELEC id FROM orders", models.Limits{MaxRows: 10})
	assert.Equal(t, datasource.KindSyntax, datasource.KindOf(err))

	_, err = a.QueryReadOnly(ctx, "SELECT id FROM invoices", models.Limits{MaxRows: 10})
	assert.Equal(t, datasource.KindExecution, datasource.KindOf(err))
	assert.Contains(t, err.Error(), "no such table")

	_, err = a.QueryReadOnly(ctx, "SELECT total FROM orders", models.Limits{MaxRows: 10})
	assert.Equal(t, datasource.KindExecution, datasource.KindOf(err))
}

func TestQueryReadOnly_Timeout(t *testing.T) {
	a := newFixtureAdapter(t)

	_, err := a.QueryReadOnly(context.Background(),
		"WITH RECURSIVE n(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM n) SELECT COUNT(*) FROM n",
		models.Limits{MaxRows: 10, StatementTimeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, datasource.KindTimeout, datasource.KindOf(err))
}

func TestSampleRows(t *testing.T) {
	a := newFixtureAdapter(t)

	result, err := a.SampleRows(context.Background(), models.TableDescriptor{Name: "customers"}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, []string{"id", "name", "email", "country"}, result.ColumnNames())
}

type fakeCodedError struct {
	code int
	msg  string
}

func (e fakeCodedError) Error() string { return e.msg }
func (e fakeCodedError) Code() int     { return e.code }

func TestClassifyError(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		err  error
		want datasource.ErrorKind
	}{
		{fakeCodedError{8, "attempt to write a readonly database"}, datasource.KindPermission},
		{fakeCodedError{8 | 1<<8, "attempt to write a readonly database"}, datasource.KindPermission},
		{fakeCodedError{1, `near "SELEC": syntax error`}, datasource.KindSyntax},
		{fakeCodedError{1, "no such column: total"}, datasource.KindExecution},
		{fakeCodedError{9, "interrupted"}, datasource.KindTimeout},
		{fakeCodedError{14, "unable to open database file"}, datasource.KindConnection},
		{errors.New("boom"), datasource.KindExecution},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, datasource.KindOf(classifyError(ctx, tt.err)), tt.err.Error())
	}

	expired, cancel := context.WithTimeout(ctx, -time.Second)
	defer cancel()
	assert.Equal(t, datasource.KindTimeout, datasource.KindOf(classifyError(expired, fakeCodedError{9, "interrupted"})))
	assert.NoError(t, classifyError(ctx, nil))
}

func TestQualifiedTableName(t *testing.T) {
	assert.Equal(t, `"orders"`, qualifiedTableName("", "orders"))
	assert.Equal(t, `"odd""name"`, qualifiedTableName("main", `odd"name`))
}
