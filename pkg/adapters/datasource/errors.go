package datasource

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a database failure independently of the driver.
type ErrorKind string

const (
	KindConnection ErrorKind = "connection"
	KindSyntax     ErrorKind = "syntax"
	KindPermission ErrorKind = "permission"
	KindTimeout    ErrorKind = "timeout"
	KindCanceled   ErrorKind = "canceled"
	KindExecution  ErrorKind = "execution"
)

// QueryError is a classified driver error. Code is the dialect's native
// code (SQLSTATE, error number or result code) when one was available.
type QueryError struct {
	Kind ErrorKind
	Code string
	Err  error
}

func (e *QueryError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error (code %s): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether repeating the call may succeed.
func (e *QueryError) IsRetryable() bool {
	return e.Kind == KindConnection
}

// NewQueryError wraps err with a kind. A nil err yields nil.
func NewQueryError(kind ErrorKind, code string, err error) *QueryError {
	if err == nil {
		return nil
	}
	return &QueryError{Kind: kind, Code: code, Err: err}
}

// KindOf returns the kind of a *QueryError anywhere in err's chain, or
// KindExecution for unclassified errors.
func KindOf(err error) ErrorKind {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindExecution
}

// ClassifyCommon handles failures that look the same for every driver:
// context expiry, dropped connections and network errors. It returns nil
// when the error needs dialect-specific classification.
func ClassifyCommon(err error) *QueryError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return NewQueryError(KindTimeout, "", err)
	case errors.Is(err, context.Canceled):
		return NewQueryError(KindCanceled, "", err)
	case errors.Is(err, driver.ErrBadConn):
		return NewQueryError(KindConnection, "", err)
	}

	// A network failure mid-query leaves the connection unusable, so even
	// an I/O timeout is reported as a connection problem.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewQueryError(KindConnection, "", err)
	}
	return nil
}
