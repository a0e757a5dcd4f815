// Package apperrors defines the stage-tagged error taxonomy returned by the
// question-answering pipeline.
package apperrors

import (
	"errors"
	"fmt"
)

// Stage identifies the pipeline stage at which an error occurred.
type Stage string

const (
	StageRequest       Stage = "request"
	StageIntrospecting Stage = "introspecting"
	StageGenerating    Stage = "generating"
	StageExecuting     Stage = "executing"
	StageSynthesizing  Stage = "synthesizing"
)

// Kind classifies a failure independently of the stage it happened in.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindConnection     Kind = "connection"
	KindIntrospection  Kind = "introspection"
	KindGeneration     Kind = "generation"
	KindSyntax         Kind = "syntax"
	KindPermission     Kind = "permission"
	KindTimeout        Kind = "timeout"
	KindExecution      Kind = "execution"
	KindSynthesis      Kind = "synthesis"
)

// Sentinels allow errors.Is checks by kind.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrConnection     = errors.New("database connection unavailable")
	ErrIntrospection  = errors.New("database schema could not be read")
	ErrGeneration     = errors.New("SQL generation failed")
	ErrSyntax         = errors.New("generated SQL is malformed")
	ErrPermission     = errors.New("statement rejected by the read-only boundary")
	ErrTimeout        = errors.New("operation timed out")
	ErrExecution      = errors.New("query execution failed")
	ErrSynthesis      = errors.New("answer synthesis failed")
)

var sentinels = map[Kind]error{
	KindInvalidRequest: ErrInvalidRequest,
	KindConnection:     ErrConnection,
	KindIntrospection:  ErrIntrospection,
	KindGeneration:     ErrGeneration,
	KindSyntax:         ErrSyntax,
	KindPermission:     ErrPermission,
	KindTimeout:        ErrTimeout,
	KindExecution:      ErrExecution,
	KindSynthesis:      ErrSynthesis,
}

// PipelineError is a failure tagged with the stage and kind at which it
// occurred. Message is safe to show to callers; Cause carries the raw
// driver or provider error and must only be logged.
type PipelineError struct {
	Stage     Stage
	Kind      Kind
	Message   string
	Cause     error
	retryable bool
}

// Error implements the error interface. The cause is deliberately excluded
// so that formatting the error never leaks database or provider text.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed (%s): %s", e.Stage, e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.As on driver types.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel error for the kind.
func (e *PipelineError) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// IsRetryable implements retry.RetryableError.
func (e *PipelineError) IsRetryable() bool {
	return e.retryable
}

// New creates a PipelineError with the default message for the kind.
func New(stage Stage, kind Kind, cause error) *PipelineError {
	return &PipelineError{
		Stage:   stage,
		Kind:    kind,
		Message: DefaultMessage(kind),
		Cause:   cause,
	}
}

// Newf creates a PipelineError with a caller-safe detail appended to the
// default message. Detail must never contain raw driver or provider text.
func Newf(stage Stage, kind Kind, cause error, format string, args ...any) *PipelineError {
	e := New(stage, kind, cause)
	e.Message = e.Message + ": " + fmt.Sprintf(format, args...)
	return e
}

// WithRetryable marks the error as transient.
func (e *PipelineError) WithRetryable(retryable bool) *PipelineError {
	e.retryable = retryable
	return e
}

// DefaultMessage returns the caller-facing sentence for a kind.
func DefaultMessage(kind Kind) string {
	switch kind {
	case KindInvalidRequest:
		return "the request is invalid"
	case KindConnection:
		return "the database is unreachable"
	case KindIntrospection:
		return "the database schema could not be read"
	case KindGeneration:
		return "a SQL query could not be generated for this question"
	case KindSyntax:
		return "the generated SQL could not be parsed by the database"
	case KindPermission:
		return "the generated SQL was rejected because only read-only queries are allowed"
	case KindTimeout:
		return "the operation exceeded its time limit"
	case KindExecution:
		return "the database could not execute the generated SQL"
	case KindSynthesis:
		return "an answer could not be written from the query result"
	default:
		return "an unexpected error occurred"
	}
}

// AsPipelineError extracts a *PipelineError from an error chain.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
