package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/config"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

type stubDatasource struct {
	dialect string
}

func (s *stubDatasource) Ping(context.Context) error { return nil }
func (s *stubDatasource) DescribeSchema(context.Context, DescribeOptions) ([]models.TableDescriptor, error) {
	return nil, nil
}
func (s *stubDatasource) SampleRows(context.Context, models.TableDescriptor, int) (*models.QueryResult, error) {
	return &models.QueryResult{}, nil
}
func (s *stubDatasource) QueryReadOnly(context.Context, string, models.Limits) (*models.QueryResult, error) {
	return &models.QueryResult{}, nil
}
func (s *stubDatasource) Dialect() string { return s.dialect }
func (s *stubDatasource) Close() error    { return nil }

func registerStub(t *testing.T, dsType string, open OpenFunc) {
	t.Helper()
	Register(AdapterRegistration{
		Info: AdapterInfo{Type: dsType, DisplayName: "Stub " + dsType},
		Open: open,
	})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(registry, dsType)
		registryMu.Unlock()
	})
}

func TestRegistry(t *testing.T) {
	registerStub(t, "zz-stub", func(context.Context, *config.DatasourceConfig, *zap.Logger) (Datasource, error) {
		return &stubDatasource{dialect: "zz-stub"}, nil
	})
	registerStub(t, "aa-stub", func(context.Context, *config.DatasourceConfig, *zap.Logger) (Datasource, error) {
		return &stubDatasource{dialect: "aa-stub"}, nil
	})

	assert.True(t, IsRegistered("zz-stub"))
	assert.False(t, IsRegistered("oracle"))
	assert.Nil(t, GetOpener("oracle"))
	assert.NotNil(t, GetOpener("aa-stub"))

	var types []string
	for _, info := range RegisteredAdapters() {
		types = append(types, info.Type)
	}
	assert.Contains(t, types, "aa-stub")
	assert.Contains(t, types, "zz-stub")
	assert.IsIncreasing(t, types)
}

func TestOpen_UnknownType(t *testing.T) {
	_, err := Open(context.Background(), &config.DatasourceConfig{Type: "oracle"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported datasource type: oracle")
}

func TestOpen_UsesRegisteredOpener(t *testing.T) {
	registerStub(t, "open-stub", func(context.Context, *config.DatasourceConfig, *zap.Logger) (Datasource, error) {
		return &stubDatasource{dialect: "open-stub"}, nil
	})

	ds, err := Open(context.Background(), &config.DatasourceConfig{Type: "open-stub"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "open-stub", ds.Dialect())
}

func TestOpen_DoesNotRetryPermanentFailure(t *testing.T) {
	calls := 0
	registerStub(t, "broken-stub", func(context.Context, *config.DatasourceConfig, *zap.Logger) (Datasource, error) {
		calls++
		return nil, NewQueryError(KindPermission, "28000", errors.New("password authentication failed"))
	})

	_, err := Open(context.Background(), &config.DatasourceConfig{Type: "broken-stub"}, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, KindPermission, KindOf(err))
}
