package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// describeQuery lists the columns of every table and view in the current
// database. MySQL schemas are databases, so other databases on the server
// are never described.
const describeQuery = `
	SELECT
		c.TABLE_SCHEMA,
		c.TABLE_NAME,
		c.COLUMN_NAME,
		c.COLUMN_TYPE,
		c.IS_NULLABLE,
		c.COLUMN_KEY,
		t.TABLE_COMMENT,
		c.COLUMN_COMMENT
	FROM INFORMATION_SCHEMA.COLUMNS c
	JOIN INFORMATION_SCHEMA.TABLES t
		ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
	WHERE c.TABLE_SCHEMA = DATABASE()
	  AND t.TABLE_TYPE IN ('BASE TABLE', 'VIEW')
	ORDER BY c.TABLE_SCHEMA, c.TABLE_NAME, c.ORDINAL_POSITION
`

// DescribeSchema returns tables and views of the connected database.
func (a *Adapter) DescribeSchema(ctx context.Context, opts datasource.DescribeOptions) ([]models.TableDescriptor, error) {
	rows, err := a.db.QueryContext(ctx, describeQuery)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var tables []models.TableDescriptor
	for rows.Next() {
		var (
			schema, table, nullable, key, tableComment string
			col                                        models.ColumnDescriptor
		)
		if err := rows.Scan(&schema, &table, &col.Name, &col.DataType, &nullable, &key, &tableComment, &col.Description); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.DataType = strings.ToUpper(col.DataType)
		col.Nullable = nullable == "YES"
		col.PrimaryKey = key == "PRI"

		n := len(tables)
		if n == 0 || tables[n-1].Schema != schema || tables[n-1].Name != table {
			// Views report the literal comment "VIEW".
			if tableComment == "VIEW" {
				tableComment = ""
			}
			tables = append(tables, models.TableDescriptor{Schema: schema, Name: table, Description: tableComment})
			n++
		}
		tables[n-1].Columns = append(tables[n-1].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	return datasource.FilterTables(tables, opts), nil
}
