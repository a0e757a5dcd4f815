package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// describeQuery lists the columns of every user table and view in the main
// database. Internal sqlite_ tables are skipped.
const describeQuery = `
	SELECT m.name, p.name, p.type, p."notnull", p.pk
	FROM sqlite_master AS m
	JOIN pragma_table_info(m.name) AS p
	WHERE m.type IN ('table', 'view')
	  AND m.name NOT LIKE 'sqlite\_%' ESCAPE '\'
	ORDER BY m.name, p.cid
`

// DescribeSchema returns tables and views. SQLite has no schemas, so table
// descriptors carry an empty Schema and are referenced by bare name.
func (a *Adapter) DescribeSchema(ctx context.Context, opts datasource.DescribeOptions) ([]models.TableDescriptor, error) {
	rows, err := a.db.QueryContext(ctx, describeQuery)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	defer rows.Close()

	var tables []models.TableDescriptor
	for rows.Next() {
		var (
			table   string
			col     models.ColumnDescriptor
			notNull int
			pk      int
		)
		if err := rows.Scan(&table, &col.Name, &col.DataType, &notNull, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.DataType = strings.ToUpper(col.DataType)
		col.PrimaryKey = pk > 0
		// SQLite allows NULL in non-INTEGER primary keys unless declared NOT NULL.
		col.Nullable = notNull == 0 && !(col.PrimaryKey && col.DataType == "INTEGER")

		n := len(tables)
		if n == 0 || tables[n-1].Name != table {
			tables = append(tables, models.TableDescriptor{Name: table})
			n++
		}
		tables[n-1].Columns = append(tables[n-1].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(ctx, err)
	}

	return datasource.FilterTables(tables, opts), nil
}
