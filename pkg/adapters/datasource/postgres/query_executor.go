package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-dbagent/pkg/sql"
)

// QueryReadOnly runs sqlText in a READ ONLY transaction that is always
// rolled back. The StatementTimeout bounds the whole call, including pool
// acquisition, and is also set as statement_timeout for the transaction.
// Query statements are wrapped so the server stops after MaxRows+1 rows.
func (a *Adapter) QueryReadOnly(ctx context.Context, sqlText string, limits models.Limits) (*models.QueryResult, error) {
	start := time.Now()

	if limits.StatementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.StatementTimeout)
		defer cancel()
	}

	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, classifyError(err)
	}
	defer func() {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			a.logger.Warn("rollback failed", zap.String("error", logging.SanitizeError(rbErr)))
		}
	}()

	if limits.StatementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", limits.StatementTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, classifyError(err)
		}
	}

	query := sqlText
	if limits.MaxRows > 0 && sqlpkg.ClassifyStatement(sqlText).ReadOnly {
		query = wrapWithLimit(sqlText, limits.MaxRows+1)
	}

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	result, err := collectRows(rows, limits.MaxRows)
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

// SampleRows selects the first n rows of a table through QueryReadOnly.
func (a *Adapter) SampleRows(ctx context.Context, table models.TableDescriptor, n int) (*models.QueryResult, error) {
	if n <= 0 {
		return &models.QueryResult{Rows: [][]any{}}, nil
	}
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", qualifiedTableName(table.Schema, table.Name), n)
	return a.QueryReadOnly(ctx, query, models.Limits{MaxRows: n})
}

// wrapWithLimit bounds a query statement server-side. The newline keeps a
// trailing -- comment from swallowing the closing parenthesis.
func wrapWithLimit(sqlText string, limit int) string {
	return fmt.Sprintf("SELECT * FROM (\n%s\n) AS _limited LIMIT %d", sqlText, limit)
}

func collectRows(rows pgx.Rows, maxRows int) (*models.QueryResult, error) {
	fieldDescs := rows.FieldDescriptions()
	columns := make([]models.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = models.ColumnInfo{
			Name:     fd.Name,
			DataType: pgTypeNameFromOID(fd.DataTypeOID),
		}
	}

	result := &models.QueryResult{
		Columns:     columns,
		Rows:        make([][]any, 0),
		ColumnCount: len(columns),
		RowCap:      maxRows,
	}

	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// normalizeValue converts pgx decoding types into plain values. NUMERIC
// and INTERVAL become strings through their driver.Valuer.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil, time.Time, string, bool, int16, int32, int64, float32, float64, []byte:
		return v
	case [16]byte:
		return uuid.UUID(val).String()
	case driver.Valuer:
		out, err := val.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		return out
	}
	return v
}

// classifyError maps PostgreSQL failures onto datasource error kinds by
// SQLSTATE.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return datasource.NewQueryError(kindForSQLState(pgErr.Code), pgErr.Code, err)
	}
	if qe := datasource.ClassifyCommon(err); qe != nil {
		return qe
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return datasource.NewQueryError(datasource.KindConnection, "", err)
	}
	return datasource.NewQueryError(datasource.KindExecution, "", err)
}

func kindForSQLState(code string) datasource.ErrorKind {
	switch code {
	case "42501", // insufficient_privilege
		"25006": // read_only_sql_transaction
		return datasource.KindPermission
	case "57014": // query_canceled, raised by statement_timeout
		return datasource.KindTimeout
	case "42P01", "42703", "42883": // undefined table, column, function
		return datasource.KindExecution
	case "42601": // syntax_error
		return datasource.KindSyntax
	}

	switch {
	case len(code) < 2:
		return datasource.KindExecution
	case code[:2] == "08", code[:2] == "28", code[:2] == "57" && code != "57014":
		return datasource.KindConnection
	case code[:2] == "42":
		return datasource.KindSyntax
	}
	return datasource.KindExecution
}

// pgTypeNameFromOID maps common PostgreSQL type OIDs to display names.
func pgTypeNameFromOID(oid uint32) string {
	switch oid {
	case 16:
		return "BOOL"
	case 17:
		return "BYTEA"
	case 18:
		return "CHAR"
	case 20:
		return "INT8"
	case 21:
		return "INT2"
	case 23:
		return "INT4"
	case 25:
		return "TEXT"
	case 114:
		return "JSON"
	case 700:
		return "FLOAT4"
	case 701:
		return "FLOAT8"
	case 790:
		return "MONEY"
	case 1042:
		return "BPCHAR"
	case 1043:
		return "VARCHAR"
	case 1082:
		return "DATE"
	case 1083:
		return "TIME"
	case 1114:
		return "TIMESTAMP"
	case 1184:
		return "TIMESTAMPTZ"
	case 1186:
		return "INTERVAL"
	case 1700:
		return "NUMERIC"
	case 2950:
		return "UUID"
	case 3802:
		return "JSONB"
	case 1007:
		return "INT4[]"
	case 1009:
		return "TEXT[]"
	default:
		return "UNKNOWN"
	}
}
