package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/llm"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/prompts"
)

// AnswerSynthesizer writes a plain-English answer from a query result.
type AnswerSynthesizer interface {
	Summarize(ctx context.Context, question, sqlText string, result *models.QueryResult) (*models.Answer, error)
}

// AnswerSynthesizerOptions control how much of the result reaches the model.
type AnswerSynthesizerOptions struct {
	Temperature  float64
	RenderLimits models.RenderLimits
}

type answerSynthesizer struct {
	llmClient llm.LLMClient
	opts      AnswerSynthesizerOptions
	logger    *zap.Logger
}

// NewAnswerSynthesizer creates a synthesizer backed by one model client.
func NewAnswerSynthesizer(llmClient llm.LLMClient, opts AnswerSynthesizerOptions, logger *zap.Logger) AnswerSynthesizer {
	return &answerSynthesizer{
		llmClient: llmClient,
		opts:      opts,
		logger:    logger.Named("synthesizer"),
	}
}

func (s *answerSynthesizer) Summarize(ctx context.Context, question, sqlText string, result *models.QueryResult) (*models.Answer, error) {
	prompt := prompts.BuildAnswerSynthesisPrompt(prompts.AnswerSynthesisInput{
		Question: question,
		SQL:      sqlText,
		Result:   result,
		Limits:   s.opts.RenderLimits,
	})

	resp, err := s.llmClient.GenerateResponse(ctx, prompt, prompts.AnswerSynthesisSystemMessage, s.opts.Temperature)
	if err != nil {
		s.logger.Warn("answer synthesis call failed",
			zap.String("model", s.llmClient.GetModel()),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fromModelError(apperrors.StageSynthesizing, apperrors.KindSynthesis, err)
	}

	text := strings.TrimSpace(llm.CleanAnswer(resp.Content))
	if text == "" {
		return nil, apperrors.Newf(apperrors.StageSynthesizing, apperrors.KindSynthesis, nil, "the model returned an empty answer")
	}

	return &models.Answer{Text: text, Model: s.llmClient.GetModel()}, nil
}
