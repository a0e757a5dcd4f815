package mssql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

const sessionResetTimeout = 5 * time.Second

// QueryReadOnly runs sqlText on a dedicated connection inside a transaction
// that is always rolled back. SET ROWCOUNT stops the server after
// MaxRows+1 rows; the session settings are reset before the connection
// returns to the pool, and a connection that cannot be reset is discarded.
func (a *Adapter) QueryReadOnly(ctx context.Context, sqlText string, limits models.Limits) (*models.QueryResult, error) {
	start := time.Now()

	if limits.StatementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.StatementTimeout)
		defer cancel()
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	defer conn.Close()

	result, err := a.runInRolledBackTx(ctx, conn, sqlText, limits)
	a.resetSession(ctx, conn)
	if err != nil {
		return nil, classifyError(err)
	}
	result.Duration = time.Since(start)

	a.logger.Debug("query executed",
		zap.String("sql", logging.SanitizeQuery(sqlText)),
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (a *Adapter) runInRolledBackTx(ctx context.Context, conn *sql.Conn, sqlText string, limits models.Limits) (*models.QueryResult, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			a.logger.Warn("rollback failed", zap.String("error", logging.SanitizeError(rbErr)))
		}
	}()

	if _, err := tx.ExecContext(ctx, sessionSettings(limits)); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result, err := datasource.ScanRows(rows, limits.MaxRows)
	if err != nil {
		return nil, err
	}
	normalizeResult(result)
	return result, nil
}

// sessionSettings bounds lock waits and the number of rows the server
// returns for the statement that follows.
func sessionSettings(limits models.Limits) string {
	lockTimeout := int64(-1)
	if limits.StatementTimeout > 0 {
		lockTimeout = limits.StatementTimeout.Milliseconds()
	}
	rowCount := 0
	if limits.MaxRows > 0 {
		rowCount = limits.MaxRows + 1
	}
	return fmt.Sprintf("SET LOCK_TIMEOUT %d; SET ROWCOUNT %d;", lockTimeout, rowCount)
}

const resetSessionSQL = "SET ROWCOUNT 0; SET LOCK_TIMEOUT -1;"

func (a *Adapter) resetSession(ctx context.Context, conn *sql.Conn) {
	resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionResetTimeout)
	defer cancel()

	if _, err := conn.ExecContext(resetCtx, resetSessionSQL); err != nil {
		a.logger.Warn("discarding connection after failed session reset",
			zap.String("error", logging.SanitizeError(err)))
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}

// normalizeResult renders GUIDs in their canonical form and maps column
// types to display names.
func normalizeResult(result *models.QueryResult) {
	for i, col := range result.Columns {
		if col.DataType == "UNIQUEIDENTIFIER" {
			for _, row := range result.Rows {
				if b, ok := row[i].([]byte); ok && len(b) == 16 {
					var id mssql.UniqueIdentifier
					if err := id.Scan(b); err == nil {
						row[i] = id.String()
					}
				}
			}
		}
		result.Columns[i].DataType = mapSQLServerType(col.DataType)
	}
}

// SampleRows selects the first n rows of a table through QueryReadOnly.
func (a *Adapter) SampleRows(ctx context.Context, table models.TableDescriptor, n int) (*models.QueryResult, error) {
	if n <= 0 {
		return &models.QueryResult{Rows: [][]any{}}, nil
	}
	query := fmt.Sprintf("SELECT TOP (%d) * FROM %s", n, buildFullyQualifiedName(table.Schema, table.Name))
	return a.QueryReadOnly(ctx, query, models.Limits{MaxRows: n})
}

type numberedError interface {
	SQLErrorNumber() int32
}

// classifyError maps SQL Server error numbers onto datasource error kinds.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var numbered numberedError
	if errors.As(err, &numbered) {
		n := numbered.SQLErrorNumber()
		return datasource.NewQueryError(kindForErrorNumber(n), fmt.Sprint(n), err)
	}
	if qe := datasource.ClassifyCommon(err); qe != nil {
		return qe
	}
	if strings.Contains(strings.ToLower(err.Error()), "unable to open tcp connection") {
		return datasource.NewQueryError(datasource.KindConnection, "", err)
	}
	return datasource.NewQueryError(datasource.KindExecution, "", err)
}

func kindForErrorNumber(n int32) datasource.ErrorKind {
	switch n {
	case 102, 105, 156, 170: // incorrect syntax, unclosed quote
		return datasource.KindSyntax
	case 229, 230, 262, 297, 300, 3906: // permission denied, read-only database
		return datasource.KindPermission
	case 1222: // lock request timeout
		return datasource.KindTimeout
	case 208, 207, 4121: // invalid object, column or function name
		return datasource.KindExecution
	case 4060, 18456: // cannot open database, login failed
		return datasource.KindConnection
	}
	return datasource.KindExecution
}
