package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

const sessionResetTimeout = 5 * time.Second

// QueryReadOnly runs sqlText in a READ ONLY transaction on a dedicated
// connection. max_execution_time aborts long SELECTs on the server and
// sql_select_limit stops it after MaxRows+1 rows. Both are restored before
// the connection returns to the pool.
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

	if _, err := conn.ExecContext(ctx, sessionSettings(limits)); err != nil {
		a.resetSession(ctx, conn)
		return nil, classifyError(err)
	}

	result, err := a.runReadOnlyTx(ctx, conn, sqlText, limits)
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

func (a *Adapter) runReadOnlyTx(ctx context.Context, conn *sql.Conn, sqlText string, limits models.Limits) (*models.QueryResult, error) {
	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			a.logger.Warn("rollback failed", zap.String("error", logging.SanitizeError(rbErr)))
		}
	}()

	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return datasource.ScanRows(rows, limits.MaxRows)
}

// sessionSettings returns the SET statement applied before each query.
// Zero values mean "no limit" for both variables.
func sessionSettings(limits models.Limits) string {
	var maxExecMs int64
	if limits.StatementTimeout > 0 {
		maxExecMs = limits.StatementTimeout.Milliseconds()
	}
	selectLimit := "DEFAULT"
	if limits.MaxRows > 0 {
		selectLimit = fmt.Sprint(limits.MaxRows + 1)
	}
	return fmt.Sprintf("SET SESSION max_execution_time = %d, sql_select_limit = %s", maxExecMs, selectLimit)
}

const resetSessionSQL = "SET SESSION max_execution_time = DEFAULT, sql_select_limit = DEFAULT"

func (a *Adapter) resetSession(ctx context.Context, conn *sql.Conn) {
	resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionResetTimeout)
	defer cancel()

	if _, err := conn.ExecContext(resetCtx, resetSessionSQL); err != nil {
		a.logger.Warn("discarding connection after failed session reset",
			zap.String("error", logging.SanitizeError(err)))
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
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
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func qualifiedTableName(schema, table string) string {
	if schema == "" {
		return quoteIdentifier(table)
	}
	return quoteIdentifier(schema) + "." + quoteIdentifier(table)
}

// classifyError maps MySQL server error numbers onto datasource error kinds.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return datasource.NewQueryError(kindForErrorNumber(myErr.Number), fmt.Sprint(myErr.Number), err)
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return datasource.NewQueryError(datasource.KindConnection, "", err)
	}
	if qe := datasource.ClassifyCommon(err); qe != nil {
		return qe
	}
	return datasource.NewQueryError(datasource.KindExecution, "", err)
}

func kindForErrorNumber(n uint16) datasource.ErrorKind {
	switch n {
	case 1064, 1149: // parse error
		return datasource.KindSyntax
	case 1142, 1143, 1227, 1370, 1290, 1792: // privilege denied, read-only server or transaction
		return datasource.KindPermission
	case 3024, 1317, 1205: // max_execution_time exceeded, interrupted, lock wait
		return datasource.KindTimeout
	case 1146, 1054, 1305: // unknown table, column or function
		return datasource.KindExecution
	case 1040, 1044, 1045, 1049: // too many connections, access denied, unknown database
		return datasource.KindConnection
	}
	return datasource.KindExecution
}
