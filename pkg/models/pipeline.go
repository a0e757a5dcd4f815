package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/apperrors"
)

// Mode selects how far the pipeline runs for a request.
type Mode string

const (
	// ModeSQL stops after generation and returns the SQL text.
	ModeSQL Mode = "sql"
	// ModeRows stops after execution and returns the result set.
	ModeRows Mode = "rows"
	// ModeAnswer runs every stage.
	ModeAnswer Mode = "answer"
)

// ParseMode validates a mode name. An empty string yields the fallback.
func ParseMode(s string, fallback Mode) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return fallback, nil
	case ModeSQL:
		return ModeSQL, nil
	case ModeRows:
		return ModeRows, nil
	case ModeAnswer:
		return ModeAnswer, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected sql, rows or answer)", s)
	}
}

// State is the pipeline position for a request.
type State string

const (
	StateIntrospecting State = "introspecting"
	StateGenerating    State = "generating"
	StateExecuting     State = "executing"
	StateSynthesizing  State = "synthesizing"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// PipelineResult is everything the coordinator learned while answering one question.
// Err is set when State is StateFailed, and also when a degraded answer was returned.
type PipelineResult struct {
	RequestID      string
	Question       string
	Mode           Mode
	State          State
	SQL            string
	Result         *QueryResult
	Answer         *Answer
	Degraded       bool
	Err            *apperrors.PipelineError
	StageDurations map[State]time.Duration
}

// Failed reports whether the pipeline ended in the failed state.
func (r *PipelineResult) Failed() bool {
	return r.State == StateFailed
}
