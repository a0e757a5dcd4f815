package datasource

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueryError(t *testing.T) {
	assert.Nil(t, NewQueryError(KindSyntax, "42601", nil))

	qe := NewQueryError(KindSyntax, "42601", errors.New(`syntax error at or near "FORM"`))
	require.NotNil(t, qe)
	assert.Equal(t, `syntax error (code 42601): syntax error at or near "FORM"`, qe.Error())

	plain := NewQueryError(KindTimeout, "", context.DeadlineExceeded)
	assert.Equal(t, "timeout error: context deadline exceeded", plain.Error())
	assert.ErrorIs(t, plain, context.DeadlineExceeded)
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("run query: %w", NewQueryError(KindPermission, "42501", errors.New("permission denied")))
	assert.Equal(t, KindPermission, KindOf(wrapped))
	assert.Equal(t, KindExecution, KindOf(errors.New("unclassified")))
}

func TestQueryError_IsRetryable(t *testing.T) {
	assert.True(t, NewQueryError(KindConnection, "", errors.New("reset")).IsRetryable())
	assert.False(t, NewQueryError(KindSyntax, "", errors.New("bad")).IsRetryable())
	assert.False(t, NewQueryError(KindTimeout, "", errors.New("slow")).IsRetryable())
}

func TestClassifyCommon(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), KindTimeout},
		{"canceled", context.Canceled, KindCanceled},
		{"bad conn", driver.ErrBadConn, KindConnection},
		{"network", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, KindConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qe := ClassifyCommon(tt.err)
			require.NotNil(t, qe)
			assert.Equal(t, tt.want, qe.Kind)
		})
	}

	assert.Nil(t, ClassifyCommon(nil))
	assert.Nil(t, ClassifyCommon(errors.New("column \"x\" does not exist")))
}
