package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/audit"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

var testLimits = models.Limits{MaxRows: 100, StatementTimeout: 5 * time.Second}

func TestQueryExecutor_RejectsWritesBeforeReachingDatasource(t *testing.T) {
	ds := &stubDatasource{}
	exec := NewQueryExecutor(ds, nil, zap.NewNop())

	statements := []string{
		"INSERT INTO orders (id) VALUES (5)",
		"UPDATE orders SET customer_id = 2",
		"DELETE FROM orders",
		"DROP TABLE orders",
		"SELECT 1; DROP TABLE x",
		"SELECT 1; DROP TABLE x;",
		"/* harmless */ DELETE FROM orders",
		"WITH gone AS (DELETE FROM orders RETURNING *) SELECT * FROM gone",
		"SELECT * INTO backup FROM orders",
	}
	for _, stmt := range statements {
		_, err := exec.Execute(context.Background(), stmt, testLimits)
		require.Error(t, err, stmt)

		pe, ok := apperrors.AsPipelineError(err)
		require.True(t, ok, stmt)
		assert.Equal(t, apperrors.KindPermission, pe.Kind, stmt)
		assert.Equal(t, apperrors.StageExecuting, pe.Stage, stmt)
		assert.ErrorIs(t, err, apperrors.ErrPermission, stmt)
	}
	assert.Zero(t, ds.queryCount(), "guard must reject before the datasource is called")
}

func TestQueryExecutor_AuditsGuardRejections(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	exec := NewQueryExecutor(&stubDatasource{}, audit.NewSecurityAuditor(zap.New(core)), zap.NewNop())

	_, err := exec.Execute(context.Background(), "DROP TABLE orders", testLimits)
	require.Error(t, err)

	entries := recorded.FilterMessage("Statement rejected by read-only guard").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "security_audit", entries[0].LoggerName)
}

func TestQueryExecutor_MultipleStatementsMessage(t *testing.T) {
	exec := NewQueryExecutor(&stubDatasource{}, nil, zap.NewNop())

	_, err := exec.Execute(context.Background(), "SELECT 1; DROP TABLE x", testLimits)
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Contains(t, pe.Message, "multiple statements are not allowed")
}

func TestQueryExecutor_EmptyStatement(t *testing.T) {
	exec := NewQueryExecutor(&stubDatasource{}, nil, zap.NewNop())

	_, err := exec.Execute(context.Background(), "  -- nothing\n", testLimits)
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindSyntax, pe.Kind)
}

func TestQueryExecutor_PassesNormalizedStatement(t *testing.T) {
	want := &models.QueryResult{
		Columns:  []models.ColumnInfo{{Name: "n"}},
		Rows:     [][]any{{int64(4)}},
		RowCount: 1,
	}
	ds := &stubDatasource{queryResult: want}
	exec := NewQueryExecutor(ds, nil, zap.NewNop())

	got, err := exec.Execute(context.Background(), "SELECT COUNT(*) AS n FROM orders;  ", testLimits)
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, []string{"SELECT COUNT(*) AS n FROM orders"}, ds.queries)

	// String literals containing a semicolon are a single statement.
	_, err = exec.Execute(context.Background(), "SELECT ';' AS s", testLimits)
	require.NoError(t, err)
}

func TestQueryExecutor_MapsDatasourceErrors(t *testing.T) {
	tests := []struct {
		kind      datasource.ErrorKind
		want      apperrors.Kind
		retryable bool
	}{
		{datasource.KindSyntax, apperrors.KindSyntax, false},
		{datasource.KindPermission, apperrors.KindPermission, false},
		{datasource.KindTimeout, apperrors.KindTimeout, true},
		{datasource.KindCanceled, apperrors.KindTimeout, false},
		{datasource.KindConnection, apperrors.KindConnection, true},
		{datasource.KindExecution, apperrors.KindExecution, false},
	}
	for _, tt := range tests {
		ds := &stubDatasource{queryErrs: []error{datasource.NewQueryError(tt.kind, "X", errors.New("driver text"))}}
		exec := NewQueryExecutor(ds, nil, zap.NewNop())

		_, err := exec.Execute(context.Background(), "SELECT id FROM orders", testLimits)
		pe, ok := apperrors.AsPipelineError(err)
		require.True(t, ok, tt.kind)
		assert.Equal(t, tt.want, pe.Kind, tt.kind)
		assert.Equal(t, tt.retryable, pe.IsRetryable(), tt.kind)
		assert.NotContains(t, pe.Error(), "driver text", "caller-facing text must not carry driver output")
	}
}
