package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/audit"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/llm"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/prompts"
	sqlpkg "github.com/ekaya-inc/ekaya-dbagent/pkg/sql"
)

// QueryGenerator turns a question into one SQL statement. It never
// executes anything.
type QueryGenerator interface {
	Generate(ctx context.Context, question string, schema *models.SchemaContext) (*models.GeneratedQuery, error)
}

// QueryGeneratorOptions control prompt construction and output checks.
type QueryGeneratorOptions struct {
	Temperature float64
	// TopK is the default row limit the model is told to apply.
	TopK          int
	MaxCellLength int
	// ScreenQuestions rejects questions that are themselves SQL payloads.
	ScreenQuestions bool
	// CheckTableReferences rejects statements naming tables that are not
	// in the schema snapshot.
	CheckTableReferences bool
	// Auditor receives rejected questions and statements. May be nil.
	Auditor *audit.SecurityAuditor
}

type queryGenerator struct {
	llmClient llm.LLMClient
	opts      QueryGeneratorOptions
	logger    *zap.Logger
}

// NewQueryGenerator creates a generator backed by one model client.
func NewQueryGenerator(llmClient llm.LLMClient, opts QueryGeneratorOptions, logger *zap.Logger) QueryGenerator {
	return &queryGenerator{
		llmClient: llmClient,
		opts:      opts,
		logger:    logger.Named("generator"),
	}
}

func (g *queryGenerator) Generate(ctx context.Context, question string, schema *models.SchemaContext) (*models.GeneratedQuery, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.Newf(apperrors.StageGenerating, apperrors.KindGeneration, nil, "the question is empty")
	}
	if schema == nil || len(schema.Tables) == 0 {
		return nil, apperrors.Newf(apperrors.StageGenerating, apperrors.KindGeneration, nil, "no schema is available")
	}

	if g.opts.ScreenQuestions {
		if hit := sqlpkg.ScreenQuestion(question); hit != nil {
			g.logger.Warn("question rejected by injection screen",
				zap.String("fingerprint", hit.Fingerprint),
				zap.String("question", logging.SanitizeQuestion(question)))
			g.opts.Auditor.LogInjectionAttempt(ctx, question, hit.Fingerprint)
			return nil, apperrors.Newf(apperrors.StageGenerating, apperrors.KindGeneration, nil,
				"the question looks like a SQL statement rather than a question")
		}
	}

	prompt := prompts.BuildSQLGenerationPrompt(prompts.SQLGenerationInput{
		Question:      question,
		Schema:        schema,
		TopK:          g.opts.TopK,
		MaxCellLength: g.opts.MaxCellLength,
	})
	systemMessage := prompts.SQLGenerationSystemMessage(schema.Dialect)

	resp, err := g.llmClient.GenerateResponse(ctx, prompt, systemMessage, g.opts.Temperature)
	if err != nil {
		g.logger.Warn("SQL generation call failed",
			zap.String("model", g.llmClient.GetModel()),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fromModelError(apperrors.StageGenerating, apperrors.KindGeneration, err)
	}

	sqlText, err := sqlpkg.ExtractStatement(llm.StripThinking(resp.Content))
	if err != nil {
		g.logger.Warn("no SQL in model reply", zap.Int("reply_length", len(resp.Content)))
		return nil, apperrors.Newf(apperrors.StageGenerating, apperrors.KindGeneration, err,
			"the model reply did not contain a SQL statement")
	}

	if g.opts.CheckTableReferences {
		if unknown := unknownTables(sqlText, schema); len(unknown) > 0 {
			g.logger.Info("generated SQL references unknown tables",
				zap.Strings("tables", unknown),
				zap.String("sql", logging.SanitizeQuery(sqlText)))
			g.opts.Auditor.LogUnknownTables(ctx, sqlText, unknown)
			return nil, apperrors.Newf(apperrors.StageGenerating, apperrors.KindGeneration,
				errors.New("unknown tables: "+strings.Join(unknown, ", ")),
				"the query references unknown table %s", unknown[0])
		}
	}

	g.logger.Debug("SQL generated",
		zap.String("sql", logging.SanitizeQuery(sqlText)),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens))

	return &models.GeneratedQuery{
		Question:    question,
		SQL:         sqlText,
		RawResponse: resp.Content,
		Model:       g.llmClient.GetModel(),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// unknownTables returns the FROM/JOIN references that are not in the snapshot.
func unknownTables(sqlText string, schema *models.SchemaContext) []string {
	var unknown []string
	for _, ref := range sqlpkg.ReferencedTables(sqlText) {
		if _, ok := schema.FindTable(ref); !ok {
			unknown = append(unknown, ref)
		}
	}
	return unknown
}
