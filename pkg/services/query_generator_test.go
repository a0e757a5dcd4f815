package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/audit"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/llm"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-dbagent/pkg/sql"
)

func defaultGeneratorOptions() QueryGeneratorOptions {
	return QueryGeneratorOptions{
		TopK:                 5,
		MaxCellLength:        80,
		ScreenQuestions:      true,
		CheckTableReferences: true,
	}
}

func TestQueryGenerator_ExtractsStatement(t *testing.T) {
	mock := llm.NewMockWithResponses("<think>count rows</think>\n```sql\nSELECT COUNT(*) FROM orders WHERE created_at >= '2024-01-01';\n```\nThis counts the orders.")
	gen := NewQueryGenerator(mock, defaultGeneratorOptions(), zap.NewNop())

	q, err := gen.Generate(context.Background(), "  How many orders were placed in 2024?  ", shopSchema())
	require.NoError(t, err)

	assert.Equal(t, "How many orders were placed in 2024?", q.Question)
	assert.True(t, sqlpkg.Equivalent("SELECT COUNT(*) FROM orders WHERE created_at >= '2024-01-01'", q.SQL), q.SQL)
	assert.Equal(t, "mock-model", q.Model)
	assert.Contains(t, q.RawResponse, "This counts the orders.")

	require.Len(t, mock.Prompts(), 1)
	prompt := mock.Prompts()[0]
	assert.Contains(t, prompt, "orders")
	assert.Contains(t, prompt, "created_at")
	assert.Contains(t, prompt, "Question: How many orders were placed in 2024?")
}

func TestQueryGenerator_UsesConfiguredTemperature(t *testing.T) {
	var gotTemp float64 = -1
	var gotSystem string
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.GenerateResponseResult, error) {
		gotTemp = temperature
		gotSystem = systemMessage
		return &llm.GenerateResponseResult{Content: "SELECT id FROM customers"}, nil
	}

	opts := defaultGeneratorOptions()
	opts.Temperature = 0.2
	_, err := NewQueryGenerator(mock, opts, zap.NewNop()).Generate(context.Background(), "Which customers spent the most last month", shopSchema())
	require.NoError(t, err)
	assert.Equal(t, 0.2, gotTemp)
	assert.Contains(t, gotSystem, "PostgreSQL")
}

func TestQueryGenerator_Idempotent(t *testing.T) {
	// Two differently formatted replies for the same prompt, as a
	// temperature-0 model may produce.
	mock := llm.NewMockWithResponses(
		"SQLQuery: SELECT COUNT(*) FROM orders WHERE created_at >= '2024-01-01'",
		"```sql\nselect count(*)\nfrom orders\nwhere created_at >= '2024-01-01';\n```",
	)
	gen := NewQueryGenerator(mock, defaultGeneratorOptions(), zap.NewNop())
	schema := shopSchema()

	first, err := gen.Generate(context.Background(), "How many orders were placed in 2024?", schema)
	require.NoError(t, err)
	second, err := gen.Generate(context.Background(), "How many orders were placed in 2024?", schema)
	require.NoError(t, err)

	assert.True(t, sqlpkg.Equivalent(first.SQL, second.SQL), "%q vs %q", first.SQL, second.SQL)
	prompts := mock.Prompts()
	require.Len(t, prompts, 2)
	assert.Equal(t, prompts[0], prompts[1], "prompt rendering must be deterministic")
}

func TestQueryGenerator_RejectsEmptyQuestion(t *testing.T) {
	mock := llm.NewMockWithResponses("SELECT 1")
	_, err := NewQueryGenerator(mock, defaultGeneratorOptions(), zap.NewNop()).Generate(context.Background(), "   ", shopSchema())

	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindGeneration, pe.Kind)
	assert.Zero(t, mock.Calls())
}

func TestQueryGenerator_ScreensInjectionPayloads(t *testing.T) {
	mock := llm.NewMockWithResponses("SELECT 1")
	gen := NewQueryGenerator(mock, defaultGeneratorOptions(), zap.NewNop())

	_, err := gen.Generate(context.Background(), "'; DROP TABLE users--", shopSchema())
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.StageGenerating, pe.Stage)
	assert.Equal(t, apperrors.KindGeneration, pe.Kind)
	assert.Zero(t, mock.Calls(), "payload questions never reach the model")

	opts := defaultGeneratorOptions()
	opts.ScreenQuestions = false
	_, err = NewQueryGenerator(mock, opts, zap.NewNop()).Generate(context.Background(), "'; DROP TABLE users--", shopSchema())
	require.NoError(t, err)
	assert.Equal(t, 1, mock.Calls())
}

func TestQueryGenerator_UnknownTable(t *testing.T) {
	mock := llm.NewMockWithResponses("SELECT SUM(amount) FROM invoices")
	gen := NewQueryGenerator(mock, defaultGeneratorOptions(), zap.NewNop())

	_, err := gen.Generate(context.Background(), "What is the total invoiced amount", shopSchema())
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindGeneration, pe.Kind)
	assert.Contains(t, pe.Message, "unknown table invoices")

	opts := defaultGeneratorOptions()
	opts.CheckTableReferences = false
	q, err := NewQueryGenerator(mock, opts, zap.NewNop()).Generate(context.Background(), "What is the total invoiced amount", shopSchema())
	require.NoError(t, err)
	assert.Equal(t, "SELECT SUM(amount) FROM invoices", q.SQL)
}

func TestQueryGenerator_AuditsRejections(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	opts := defaultGeneratorOptions()
	opts.Auditor = audit.NewSecurityAuditor(zap.New(core))
	ctx := llm.WithRequestID(context.Background(), "req-audit")

	mock := llm.NewMockWithResponses("SELECT SUM(amount) FROM invoices")
	gen := NewQueryGenerator(mock, opts, zap.NewNop())

	_, err := gen.Generate(ctx, "'; DROP TABLE users--", shopSchema())
	require.Error(t, err)
	_, err = gen.Generate(ctx, "What is the total invoiced amount", shopSchema())
	require.Error(t, err)

	entries := recorded.FilterLoggerName("security_audit").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "SQL injection attempt detected", entries[0].Message)
	assert.Equal(t, "req-audit", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "Generated SQL references unknown tables", entries[1].Message)
}

func TestQueryGenerator_AcceptsQualifiedAndCTEReferences(t *testing.T) {
	mock := llm.NewMockWithResponses(`WITH recent AS (SELECT * FROM public.orders WHERE created_at >= '2024-01-01')
SELECT c.name, COUNT(*) FROM recent r JOIN "customers" c ON c.id = r.customer_id GROUP BY c.name`)
	gen := NewQueryGenerator(mock, defaultGeneratorOptions(), zap.NewNop())

	_, err := gen.Generate(context.Background(), "Which customers spent the most last month", shopSchema())
	require.NoError(t, err)
}

func TestQueryGenerator_NoStatementInReply(t *testing.T) {
	mock := llm.NewMockWithResponses("I cannot answer that from the available tables.")
	_, err := NewQueryGenerator(mock, defaultGeneratorOptions(), zap.NewNop()).
		Generate(context.Background(), "What is the average order total by region", shopSchema())

	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindGeneration, pe.Kind)
	assert.ErrorIs(t, err, sqlpkg.ErrNoStatement)
}

func TestQueryGenerator_MultiStatementPassesThrough(t *testing.T) {
	mock := llm.NewMockWithResponses("SELECT 1; DROP TABLE x;")
	q, err := NewQueryGenerator(mock, defaultGeneratorOptions(), zap.NewNop()).
		Generate(context.Background(), "How many orders were placed in 2024?", shopSchema())
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "DROP TABLE x")
}

func TestQueryGenerator_ModelErrorsKeepRetryability(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", llm.NewError(llm.ErrorTypeRateLimited, "rate limited", true, errors.New("429")), true},
		{"bad key", llm.NewError(llm.ErrorTypeAuth, "invalid api key", false, errors.New("401")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockLLMClient()
			mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.GenerateResponseResult, error) {
				return nil, tt.err
			}
			_, err := NewQueryGenerator(mock, defaultGeneratorOptions(), zap.NewNop()).
				Generate(context.Background(), "How many orders were placed in 2024?", shopSchema())

			pe, ok := apperrors.AsPipelineError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.KindGeneration, pe.Kind)
			assert.Equal(t, tt.retryable, pe.IsRetryable())
		})
	}
}

func TestQueryGenerator_RequiresSchema(t *testing.T) {
	mock := llm.NewMockWithResponses("SELECT 1")
	_, err := NewQueryGenerator(mock, defaultGeneratorOptions(), zap.NewNop()).
		Generate(context.Background(), "How many orders were placed in 2024?", &models.SchemaContext{})
	require.Error(t, err)
	assert.Zero(t, mock.Calls())
}
