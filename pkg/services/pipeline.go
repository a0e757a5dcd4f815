package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/llm"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/metrics"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/retry"
)

// Pipeline answers one question at a time:
// introspecting, generating, executing, synthesizing.
type Pipeline interface {
	Run(ctx context.Context, req PipelineRequest) *models.PipelineResult
}

// PipelineRequest is one question. An empty RequestID is generated and an
// empty Mode falls back to the configured default.
type PipelineRequest struct {
	RequestID string
	Question  string
	Mode      models.Mode
}

// PipelineDeps are the stage components.
type PipelineDeps struct {
	Introspector SchemaIntrospector
	Generator    QueryGenerator
	Executor     QueryExecutor
	Synthesizer  AnswerSynthesizer
	Metrics      *metrics.Metrics
}

// PipelineOptions configure a pipeline.
type PipelineOptions struct {
	DefaultMode models.Mode
	Limits      models.Limits
	// Retry bounds retries of transient stage failures. Nil uses
	// retry.DefaultConfig with MaxRetries.
	Retry      *retry.Config
	MaxRetries int
}

type pipeline struct {
	deps     PipelineDeps
	opts     PipelineOptions
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewPipeline wires the stage components together.
func NewPipeline(deps PipelineDeps, opts PipelineOptions, logger *zap.Logger) Pipeline {
	if opts.DefaultMode == "" {
		opts.DefaultMode = models.ModeAnswer
	}
	retryCfg := opts.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig().WithMaxRetries(opts.MaxRetries)
	}
	return &pipeline{
		deps:     deps,
		opts:     opts,
		retryCfg: retryCfg,
		logger:   logger.Named("pipeline"),
	}
}

// Run never returns an error: failures are recorded on the result with the
// stage at which they happened. A synthesis failure still completes the
// request with the raw result and Degraded set.
func (p *pipeline) Run(ctx context.Context, req PipelineRequest) *models.PipelineResult {
	start := time.Now()

	res := &models.PipelineResult{
		RequestID:      req.RequestID,
		Question:       strings.TrimSpace(req.Question),
		Mode:           req.Mode,
		StageDurations: make(map[models.State]time.Duration),
	}
	if res.RequestID == "" {
		res.RequestID = uuid.New().String()
	}
	if res.Mode == "" {
		res.Mode = p.opts.DefaultMode
	}

	logger := p.logger.With(zap.String("request_id", res.RequestID), zap.String("mode", string(res.Mode)))
	ctx = llm.WithRequestID(ctx, res.RequestID)

	defer func() {
		outcome := metrics.OutcomeDone
		switch {
		case res.Failed():
			outcome = metrics.OutcomeFailed
		case res.Degraded:
			outcome = metrics.OutcomeDegraded
		}
		p.deps.Metrics.ObservePipeline(string(res.Mode), outcome)
		logger.Info("question processed",
			zap.String("outcome", outcome),
			zap.Duration("duration", time.Since(start)))
	}()

	if res.Question == "" {
		p.fail(res, logger, apperrors.Newf(apperrors.StageRequest, apperrors.KindInvalidRequest, nil, "question is required"))
		return res
	}
	logger.Debug("processing question", zap.String("question", logging.SanitizeQuestion(res.Question)))

	schema, err := runStage(ctx, p, res, models.StateIntrospecting, apperrors.StageIntrospecting,
		func(ctx context.Context) (*models.SchemaContext, error) {
			return p.deps.Introspector.Describe(ctx)
		})
	if err != nil {
		p.fail(res, logger, err)
		return res
	}

	generated, err := runStage(ctx, p, res, models.StateGenerating, apperrors.StageGenerating,
		func(ctx context.Context) (*models.GeneratedQuery, error) {
			return p.deps.Generator.Generate(ctx, res.Question, schema)
		})
	if err != nil {
		p.fail(res, logger, err)
		return res
	}
	res.SQL = generated.SQL

	if res.Mode == models.ModeSQL {
		res.State = models.StateDone
		return res
	}

	result, err := runStage(ctx, p, res, models.StateExecuting, apperrors.StageExecuting,
		func(ctx context.Context) (*models.QueryResult, error) {
			return p.deps.Executor.Execute(ctx, res.SQL, p.opts.Limits)
		})
	if err != nil {
		p.fail(res, logger, err)
		return res
	}
	res.Result = result
	p.deps.Metrics.ObserveResult(result.RowCount, result.Truncated)

	if res.Mode == models.ModeRows {
		res.State = models.StateDone
		return res
	}

	answer, err := runStage(ctx, p, res, models.StateSynthesizing, apperrors.StageSynthesizing,
		func(ctx context.Context) (*models.Answer, error) {
			return p.deps.Synthesizer.Summarize(ctx, res.Question, res.SQL, result)
		})
	if err != nil {
		res.State = models.StateDone
		res.Degraded = true
		res.Err = err
		p.deps.Metrics.ObserveFailure(string(err.Stage), string(err.Kind))
		logger.Warn("answer synthesis failed, returning raw result",
			zap.String("kind", string(err.Kind)),
			zap.String("error", logging.SanitizeError(err.Cause)))
		return res
	}
	res.Answer = answer
	res.State = models.StateDone
	return res
}

func (p *pipeline) fail(res *models.PipelineResult, logger *zap.Logger, err *apperrors.PipelineError) {
	res.State = models.StateFailed
	res.Err = err
	p.deps.Metrics.ObserveFailure(string(err.Stage), string(err.Kind))
	logger.Info("pipeline failed",
		zap.String("stage", string(err.Stage)),
		zap.String("kind", string(err.Kind)),
		zap.String("error", logging.SanitizeError(err.Cause)))
}

// runStage moves the result into state, runs fn with retries for transient
// failures and records how long the stage took.
func runStage[T any](
	ctx context.Context,
	p *pipeline,
	res *models.PipelineResult,
	state models.State,
	stage apperrors.Stage,
	fn func(context.Context) (T, error),
) (T, *apperrors.PipelineError) {
	res.State = state
	start := time.Now()
	attempts := 0

	out, err := retry.DoWithResultIfRetryable(ctx, p.retryCfg, func() (T, error) {
		attempts++
		if attempts > 1 {
			p.deps.Metrics.IncRetry(string(stage))
			p.logger.Info("retrying stage",
				zap.String("request_id", res.RequestID),
				zap.String("stage", string(stage)),
				zap.Int("attempt", attempts))
		}
		return fn(ctx)
	})

	elapsed := time.Since(start)
	res.StageDurations[state] = elapsed
	p.deps.Metrics.ObserveStage(string(stage), elapsed)

	if err != nil {
		return out, asStageError(stage, err)
	}
	return out, nil
}
