package services

import (
	"context"
	"sync"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// stubDatasource is a scripted datasource.Datasource.
type stubDatasource struct {
	mu sync.Mutex

	pingErr     error
	tables      []models.TableDescriptor
	describeErr error
	sampleErr   map[string]error
	queryResult *models.QueryResult
	queryErrs   []error // returned in turn before queryResult

	pings   int
	queries []string
	samples int
}

func (s *stubDatasource) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	return s.pingErr
}

func (s *stubDatasource) DescribeSchema(ctx context.Context, opts datasource.DescribeOptions) ([]models.TableDescriptor, error) {
	if s.describeErr != nil {
		return nil, s.describeErr
	}
	out := make([]models.TableDescriptor, len(s.tables))
	copy(out, s.tables)
	return datasource.FilterTables(out, opts), nil
}

func (s *stubDatasource) SampleRows(ctx context.Context, table models.TableDescriptor, n int) (*models.QueryResult, error) {
	s.mu.Lock()
	s.samples++
	s.mu.Unlock()
	if err := s.sampleErr[table.Name]; err != nil {
		return nil, err
	}
	return &models.QueryResult{
		Columns:     []models.ColumnInfo{{Name: "id"}},
		Rows:        [][]any{{int64(1)}},
		RowCount:    1,
		ColumnCount: 1,
	}, nil
}

func (s *stubDatasource) QueryReadOnly(ctx context.Context, sqlText string, limits models.Limits) (*models.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, sqlText)
	if len(s.queryErrs) > 0 {
		err := s.queryErrs[0]
		s.queryErrs = s.queryErrs[1:]
		return nil, err
	}
	if s.queryResult != nil {
		return s.queryResult, nil
	}
	return &models.QueryResult{Rows: [][]any{}}, nil
}

func (s *stubDatasource) Dialect() string { return "postgres" }

func (s *stubDatasource) Close() error { return nil }

func (s *stubDatasource) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func shopTables() []models.TableDescriptor {
	return []models.TableDescriptor{
		{
			Schema: "public",
			Name:   "customers",
			Columns: []models.ColumnDescriptor{
				{Name: "id", DataType: "INTEGER", PrimaryKey: true},
				{Name: "name", DataType: "TEXT"},
			},
		},
		{
			Schema: "public",
			Name:   "orders",
			Columns: []models.ColumnDescriptor{
				{Name: "id", DataType: "INTEGER", PrimaryKey: true},
				{Name: "customer_id", DataType: "INTEGER"},
				{Name: "created_at", DataType: "DATE"},
			},
		},
	}
}

func shopSchema() *models.SchemaContext {
	return &models.SchemaContext{Dialect: "postgres", Tables: shopTables()}
}
