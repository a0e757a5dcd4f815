package services

import (
	"context"
	"errors"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/llm"
)

// fromDatasourceError converts an adapter failure into a stage-tagged
// pipeline error. Connection failures and server-side timeouts are
// transient; a canceled request is reported as a timeout but never retried.
func fromDatasourceError(stage apperrors.Stage, err error) *apperrors.PipelineError {
	if pe, ok := apperrors.AsPipelineError(err); ok {
		return pe
	}

	switch datasource.KindOf(err) {
	case datasource.KindConnection:
		return apperrors.New(stage, apperrors.KindConnection, err).WithRetryable(true)
	case datasource.KindTimeout:
		return apperrors.New(stage, apperrors.KindTimeout, err).WithRetryable(true)
	case datasource.KindCanceled:
		return apperrors.New(stage, apperrors.KindTimeout, err)
	case datasource.KindSyntax:
		return apperrors.New(stage, apperrors.KindSyntax, err)
	case datasource.KindPermission:
		return apperrors.New(stage, apperrors.KindPermission, err)
	default:
		return apperrors.New(stage, apperrors.KindExecution, err)
	}
}

// fromModelError converts a language-model failure. Retryability follows
// the llm.Error classification.
func fromModelError(stage apperrors.Stage, kind apperrors.Kind, err error) *apperrors.PipelineError {
	return apperrors.New(stage, kind, err).WithRetryable(llm.IsRetryable(err))
}

// asStageError makes sure whatever a stage returned is a *PipelineError.
// Errors that escape the components, such as a context expiring during a
// retry backoff, become timeouts.
func asStageError(stage apperrors.Stage, err error) *apperrors.PipelineError {
	if pe, ok := apperrors.AsPipelineError(err); ok {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.New(stage, apperrors.KindTimeout, err)
	}
	return apperrors.New(stage, apperrors.KindExecution, err)
}
