package services

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/llm"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/metrics"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/retry"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/testhelpers"
)

type pipelineHarness struct {
	pipeline Pipeline
	model    *llm.MockLLMClient
	registry *prometheus.Registry
}

func fastRetry() *retry.Config {
	return &retry.Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func newPipelineHarness(t *testing.T, ds datasource.Datasource, model *llm.MockLLMClient, mode models.Mode) *pipelineHarness {
	t.Helper()
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()

	p := NewPipeline(PipelineDeps{
		Introspector: NewSchemaIntrospector(ds, nil, SchemaIntrospectorOptions{}, logger),
		Generator:    NewQueryGenerator(model, QueryGeneratorOptions{TopK: 5, MaxCellLength: 80, ScreenQuestions: true, CheckTableReferences: true}, logger),
		Executor:     NewQueryExecutor(ds, nil, logger),
		Synthesizer:  NewAnswerSynthesizer(model, AnswerSynthesizerOptions{RenderLimits: models.RenderLimits{MaxRows: 20, MaxColumns: 10, MaxCellLength: 80}}, logger),
		Metrics:      metrics.New(reg),
	}, PipelineOptions{
		DefaultMode: mode,
		Limits:      models.Limits{MaxRows: 100, StatementTimeout: 5 * time.Second},
		Retry:       fastRetry(),
	}, logger)

	return &pipelineHarness{pipeline: p, model: model, registry: reg}
}

func (h *pipelineHarness) scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler(h.registry).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func openShop(t *testing.T) *sqlite.Adapter {
	t.Helper()
	adapter, err := sqlite.NewAdapter(&sqlite.Config{Path: testhelpers.NewSQLiteFixture(t)}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func TestPipeline_AnswersQuestionAgainstSQLite(t *testing.T) {
	model := llm.NewMockWithResponses(
		"SELECT COUNT(*) AS order_count FROM orders WHERE created_at >= '2024-01-01'",
		"There were 4 orders in 2024.",
	)
	h := newPipelineHarness(t, openShop(t), model, models.ModeAnswer)

	res := h.pipeline.Run(context.Background(), PipelineRequest{Question: "How many orders were placed in 2024?"})

	require.Nil(t, res.Err)
	assert.Equal(t, models.StateDone, res.State)
	assert.False(t, res.Degraded)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, "SELECT COUNT(*) AS order_count FROM orders WHERE created_at >= '2024-01-01'", res.SQL)

	require.NotNil(t, res.Result)
	assert.Equal(t, []string{"order_count"}, res.Result.ColumnNames())
	require.Len(t, res.Result.Rows, 1)
	assert.Equal(t, int64(4), res.Result.Rows[0][0])

	require.NotNil(t, res.Answer)
	assert.Equal(t, "There were 4 orders in 2024.", res.Answer.Text)
	assert.Equal(t, 2, model.Calls())
	assert.Contains(t, model.Prompts()[0], "created_at")
	assert.Contains(t, model.Prompts()[1], "| 4 |")

	for _, state := range []models.State{models.StateIntrospecting, models.StateGenerating, models.StateExecuting, models.StateSynthesizing} {
		_, ok := res.StageDurations[state]
		assert.True(t, ok, "missing duration for %s", state)
	}

	body := h.scrape(t)
	assert.Contains(t, body, `dbagent_pipeline_runs_total{mode="answer",outcome="done"} 1`)
	assert.Contains(t, body, `dbagent_query_result_rows_count 1`)
}

func TestPipeline_Modes(t *testing.T) {
	t.Run("sql stops after generation", func(t *testing.T) {
		ds := &stubDatasource{tables: shopTables()}
		model := llm.NewMockWithResponses("SELECT COUNT(*) FROM orders")
		h := newPipelineHarness(t, ds, model, models.ModeAnswer)

		res := h.pipeline.Run(context.Background(), PipelineRequest{Question: "How many orders?", Mode: models.ModeSQL})
		assert.Equal(t, models.StateDone, res.State)
		assert.Equal(t, "SELECT COUNT(*) FROM orders", res.SQL)
		assert.Nil(t, res.Result)
		assert.Zero(t, ds.queryCount())
		assert.Equal(t, 1, model.Calls())
	})

	t.Run("rows stops after execution", func(t *testing.T) {
		model := llm.NewMockWithResponses("SELECT name FROM customers WHERE country = 'UK' ORDER BY id")
		h := newPipelineHarness(t, openShop(t), model, models.ModeRows)

		res := h.pipeline.Run(context.Background(), PipelineRequest{Question: "Which customers live in the UK?"})
		require.Nil(t, res.Err)
		assert.Equal(t, models.ModeRows, res.Mode)
		assert.Equal(t, models.StateDone, res.State)
		require.NotNil(t, res.Result)
		assert.Equal(t, [][]any{{"Ada Lovelace"}, {"Alan Turing"}}, res.Result.Rows)
		assert.Nil(t, res.Answer)
		assert.Equal(t, 1, model.Calls())
	})
}

func TestPipeline_UnknownTableFailsAtGeneration(t *testing.T) {
	ds := &stubDatasource{tables: shopTables()}
	model := llm.NewMockWithResponses("SELECT SUM(total) FROM invoices")
	h := newPipelineHarness(t, ds, model, models.ModeAnswer)

	res := h.pipeline.Run(context.Background(), PipelineRequest{Question: "What is the invoice total?"})

	assert.Equal(t, models.StateFailed, res.State)
	require.NotNil(t, res.Err)
	assert.Equal(t, apperrors.StageGenerating, res.Err.Stage)
	assert.Equal(t, apperrors.KindGeneration, res.Err.Kind)
	assert.ErrorIs(t, res.Err, apperrors.ErrGeneration)
	assert.Zero(t, ds.queryCount(), "nothing reaches the database")
	assert.Equal(t, 1, model.Calls(), "generation failures are not retried")
}

func TestPipeline_DatabaseDownFailsBeforeTheModel(t *testing.T) {
	ds := &stubDatasource{pingErr: datasource.NewQueryError(datasource.KindConnection, "", errors.New("dial tcp 10.0.0.5:5432: connection refused"))}
	model := llm.NewMockWithResponses("SELECT 1")
	h := newPipelineHarness(t, ds, model, models.ModeAnswer)

	res := h.pipeline.Run(context.Background(), PipelineRequest{Question: "How many orders?"})

	assert.Equal(t, models.StateFailed, res.State)
	require.NotNil(t, res.Err)
	assert.Equal(t, apperrors.StageIntrospecting, res.Err.Stage)
	assert.Equal(t, apperrors.KindConnection, res.Err.Kind)
	assert.NotContains(t, res.Err.Error(), "10.0.0.5")
	assert.Zero(t, model.Calls())
	assert.Equal(t, 2, ds.pings, "a connection failure is retried once")

	body := h.scrape(t)
	assert.Contains(t, body, `dbagent_pipeline_stage_failures_total{kind="connection",stage="introspecting"} 1`)
	assert.Contains(t, body, `dbagent_pipeline_stage_retries_total{stage="introspecting"} 1`)
}

func TestPipeline_SynthesisFailureDegrades(t *testing.T) {
	model := llm.NewMockLLMClient()
	model.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.GenerateResponseResult, error) {
		if model.Calls() == 1 {
			return &llm.GenerateResponseResult{Content: "SELECT name, price FROM products ORDER BY price DESC"}, nil
		}
		return nil, llm.NewError(llm.ErrorTypeTimeout, "request timeout", true, context.DeadlineExceeded)
	}
	h := newPipelineHarness(t, openShop(t), model, models.ModeAnswer)

	res := h.pipeline.Run(context.Background(), PipelineRequest{Question: "Which products cost the most?"})

	assert.Equal(t, models.StateDone, res.State)
	assert.True(t, res.Degraded)
	assert.False(t, res.Failed())
	require.NotNil(t, res.Err)
	assert.Equal(t, apperrors.StageSynthesizing, res.Err.Stage)
	assert.Equal(t, apperrors.KindSynthesis, res.Err.Kind)
	assert.Nil(t, res.Answer)

	require.NotNil(t, res.Result)
	require.Len(t, res.Result.Rows, 3)
	assert.Equal(t, "Gizmo", res.Result.Rows[0][0])
	assert.Equal(t, 3, model.Calls(), "one generation plus a retried synthesis")

	assert.Contains(t, h.scrape(t), `dbagent_pipeline_runs_total{mode="answer",outcome="degraded"} 1`)
}

func TestPipeline_RetriesTransientModelErrors(t *testing.T) {
	ds := &stubDatasource{tables: shopTables(), queryResult: &models.QueryResult{
		Columns:  []models.ColumnInfo{{Name: "count"}},
		Rows:     [][]any{{int64(7)}},
		RowCount: 1,
	}}
	model := llm.NewMockLLMClient()
	model.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.GenerateResponseResult, error) {
		switch model.Calls() {
		case 1:
			return nil, llm.NewError(llm.ErrorTypeRateLimited, "rate limited", true, errors.New("429 Too Many Requests"))
		case 2:
			return &llm.GenerateResponseResult{Content: "SELECT COUNT(*) FROM customers"}, nil
		default:
			return &llm.GenerateResponseResult{Content: "There are 7 customers."}, nil
		}
	}
	h := newPipelineHarness(t, ds, model, models.ModeAnswer)

	res := h.pipeline.Run(context.Background(), PipelineRequest{RequestID: "req-42", Question: "How many customers are there?"})

	require.Nil(t, res.Err)
	assert.Equal(t, "req-42", res.RequestID)
	assert.Equal(t, "There are 7 customers.", res.Answer.Text)
	assert.Equal(t, 3, model.Calls())
	assert.Contains(t, h.scrape(t), `dbagent_pipeline_stage_retries_total{stage="generating"} 1`)
}

func TestPipeline_RetriesTransientExecutionErrors(t *testing.T) {
	ds := &stubDatasource{
		tables:      shopTables(),
		queryErrs:   []error{datasource.NewQueryError(datasource.KindConnection, "08006", errors.New("server closed the connection unexpectedly"))},
		queryResult: &models.QueryResult{Columns: []models.ColumnInfo{{Name: "n"}}, Rows: [][]any{{int64(2)}}, RowCount: 1},
	}
	model := llm.NewMockWithResponses("SELECT COUNT(*) AS n FROM customers")
	h := newPipelineHarness(t, ds, model, models.ModeRows)

	res := h.pipeline.Run(context.Background(), PipelineRequest{Question: "How many customers?"})

	require.Nil(t, res.Err)
	assert.Equal(t, 2, ds.queryCount())
	assert.Equal(t, int64(2), res.Result.Rows[0][0])
}

func TestPipeline_WritesAreRejectedWithoutRetry(t *testing.T) {
	adapter := openShop(t)
	model := llm.NewMockWithResponses("DELETE FROM orders")
	h := newPipelineHarness(t, adapter, model, models.ModeAnswer)

	res := h.pipeline.Run(context.Background(), PipelineRequest{Question: "Remove every order"})

	assert.Equal(t, models.StateFailed, res.State)
	require.NotNil(t, res.Err)
	assert.Equal(t, apperrors.StageExecuting, res.Err.Stage)
	assert.Equal(t, apperrors.KindPermission, res.Err.Kind)
	assert.Equal(t, 1, model.Calls())

	check, err := adapter.QueryReadOnly(context.Background(), "SELECT COUNT(*) FROM orders", models.Limits{MaxRows: 10, StatementTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, int64(4), check.Rows[0][0])
}

func TestPipeline_InvalidRequest(t *testing.T) {
	ds := &stubDatasource{tables: shopTables()}
	model := llm.NewMockWithResponses("SELECT 1")
	h := newPipelineHarness(t, ds, model, models.ModeAnswer)

	res := h.pipeline.Run(context.Background(), PipelineRequest{Question: "   "})

	assert.Equal(t, models.StateFailed, res.State)
	require.NotNil(t, res.Err)
	assert.Equal(t, apperrors.StageRequest, res.Err.Stage)
	assert.Equal(t, apperrors.KindInvalidRequest, res.Err.Kind)
	assert.Zero(t, ds.pings)
	assert.Zero(t, model.Calls())
}

func TestPipeline_CanceledContext(t *testing.T) {
	ds := &stubDatasource{tables: shopTables()}
	model := llm.NewMockLLMClient()
	ctx, cancel := context.WithCancel(context.Background())
	model.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.GenerateResponseResult, error) {
		cancel()
		return nil, ctx.Err()
	}
	h := newPipelineHarness(t, ds, model, models.ModeAnswer)

	res := h.pipeline.Run(ctx, PipelineRequest{Question: "How many orders?"})

	assert.Equal(t, models.StateFailed, res.State)
	require.NotNil(t, res.Err)
	assert.Equal(t, apperrors.StageGenerating, res.Err.Stage)
	assert.Equal(t, 1, model.Calls())
}
