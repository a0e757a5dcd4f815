package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// QueryReadOnly runs sqlText on the read-only file. The driver interrupts
// the statement when the timeout expires. The statement is not wrapped in a
// limiting subquery: SQLite produces rows one step at a time and ScanRows
// stops after MaxRows+1, and a wrap would rename duplicate output columns.
func (a *Adapter) QueryReadOnly(ctx context.Context, sqlText string, limits models.Limits) (*models.QueryResult, error) {
	start := time.Now()

	if limits.StatementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.StatementTimeout)
		defer cancel()
	}

	rows, err := a.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	defer rows.Close()

	result, err := datasource.ScanRows(rows, limits.MaxRows)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	result.Duration = time.Since(start)

	a.logger.Debug("query executed",
		zap.String("sql", logging.SanitizeQuery(sqlText)),
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// SampleRows selects the first n rows of a table through QueryReadOnly.
func (a *Adapter) SampleRows(ctx context.Context, table models.TableDescriptor, n int) (*models.QueryResult, error) {
	if n <= 0 {
		return &models.QueryResult{Rows: [][]any{}}, nil
	}
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", qualifiedTableName(table.Schema, table.Name), n)
	return a.QueryReadOnly(ctx, query, models.Limits{MaxRows: n})
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func qualifiedTableName(schema, table string) string {
	if schema == "" || strings.EqualFold(schema, "main") {
		return quoteIdentifier(table)
	}
	return quoteIdentifier(schema) + "." + quoteIdentifier(table)
}

// SQLite primary result codes.
const (
	codeError     = 1
	codePerm      = 3
	codeBusy      = 5
	codeLocked    = 6
	codeReadOnly  = 8
	codeInterrupt = 9
	codeCantOpen  = 14
	codeNotADB    = 26
	codeAuth      = 23
)

type codedError interface {
	Code() int
}

// classifyError maps SQLite result codes onto datasource error kinds. An
// expired context wins because the driver reports it as an interrupt.
func classifyError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return datasource.ClassifyCommon(fmt.Errorf("%w: %w", ctxErr, err))
	}

	var coded codedError
	if errors.As(err, &coded) {
		code := coded.Code()
		return datasource.NewQueryError(kindForResultCode(code&0xff, err.Error()), fmt.Sprint(code), err)
	}
	if qe := datasource.ClassifyCommon(err); qe != nil {
		return qe
	}
	return datasource.NewQueryError(datasource.KindExecution, "", err)
}

func kindForResultCode(code int, msg string) datasource.ErrorKind {
	switch code {
	case codeReadOnly, codePerm, codeAuth:
		return datasource.KindPermission
	case codeInterrupt, codeBusy, codeLocked:
		return datasource.KindTimeout
	case codeCantOpen, codeNotADB:
		return datasource.KindConnection
	case codeError:
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "syntax error"), strings.Contains(lower, "incomplete input"), strings.Contains(lower, "unrecognized token"):
			return datasource.KindSyntax
		case strings.Contains(lower, "not authorized"):
			return datasource.KindPermission
		}
	}
	return datasource.KindExecution
}
