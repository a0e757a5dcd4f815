package datasource

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// ScanRows reads a database/sql result into a QueryResult. At most maxRows
// rows are kept; reading one row past the cap sets Truncated. maxRows <= 0
// reads everything.
func ScanRows(rows *sql.Rows, maxRows int) (*models.QueryResult, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	columns := make([]models.ColumnInfo, len(colTypes))
	dbTypes := make([]string, len(colTypes))
	for i, ct := range colTypes {
		dbTypes[i] = strings.ToUpper(ct.DatabaseTypeName())
		columns[i] = models.ColumnInfo{Name: ct.Name(), DataType: dbTypes[i]}
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

		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			values[i] = NormalizeValue(v, dbTypes[i])
		}
		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

var binaryTypes = map[string]bool{
	"BLOB": true, "TINYBLOB": true, "MEDIUMBLOB": true, "LONGBLOB": true,
	"BINARY": true, "VARBINARY": true, "IMAGE": true, "BYTEA": true,
	"GEOMETRY": true, "UNIQUEIDENTIFIER": true,
}

var integerTypes = map[string]bool{
	"INT": true, "INTEGER": true, "BIGINT": true, "SMALLINT": true, "TINYINT": true,
	"MEDIUMINT": true, "UNSIGNED INT": true, "UNSIGNED BIGINT": true,
	"UNSIGNED SMALLINT": true, "UNSIGNED TINYINT": true, "UNSIGNED MEDIUMINT": true, "YEAR": true,
}

var floatTypes = map[string]bool{
	"FLOAT": true, "DOUBLE": true, "REAL": true,
}

// NormalizeValue turns driver byte slices into strings or numbers so that
// results render and marshal predictably. Binary columns stay []byte.
// DECIMAL and NUMERIC stay strings to keep their exact digits.
func NormalizeValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if binaryTypes[dbType] {
		return append([]byte(nil), b...)
	}

	s := string(b)
	switch {
	case integerTypes[dbType]:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
	case floatTypes[dbType]:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
