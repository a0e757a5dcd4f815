package mssql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// describeQuery lists every column of every user table and view. Primary
// keys come from sys.indexes; descriptions from MS_Description extended
// properties.
const describeQuery = `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(o.schema_id) AS table_schema,
	    o.name AS table_name,
	    c.name AS column_name,
	    tp.name AS data_type,
	    CASE WHEN c.is_nullable = 1 THEN 1 ELSE 0 END AS is_nullable,
	    CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS is_primary_key,
	    COALESCE(CAST(td.value AS NVARCHAR(4000)), N'') AS table_description,
	    COALESCE(CAST(cd.value AS NVARCHAR(4000)), N'') AS column_description
	FROM sys.objects o
	INNER JOIN sys.columns c ON c.object_id = o.object_id
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_primary_key = 1
	) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
	LEFT JOIN sys.extended_properties td
	    ON td.major_id = o.object_id AND td.minor_id = 0 AND td.class = 1 AND td.name = N'MS_Description'
	LEFT JOIN sys.extended_properties cd
	    ON cd.major_id = o.object_id AND cd.minor_id = c.column_id AND cd.class = 1 AND cd.name = N'MS_Description'
	WHERE o.type IN ('U', 'V')
	  AND o.is_ms_shipped = 0
	ORDER BY table_schema, table_name, c.column_id
`

// DescribeSchema returns user tables and views with their columns.
func (a *Adapter) DescribeSchema(ctx context.Context, opts datasource.DescribeOptions) ([]models.TableDescriptor, error) {
	rows, err := a.db.QueryContext(ctx, describeQuery)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var tables []models.TableDescriptor
	for rows.Next() {
		var (
			schema, table, tableDesc string
			isNullable, isPrimary    int
			col                      models.ColumnDescriptor
		)
		if err := rows.Scan(&schema, &table, &col.Name, &col.DataType, &isNullable, &isPrimary, &tableDesc, &col.Description); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		col.Nullable = isNullable == 1
		col.PrimaryKey = isPrimary == 1
		col.DataType = mapSQLServerType(col.DataType)

		n := len(tables)
		if n == 0 || tables[n-1].Schema != schema || tables[n-1].Name != table {
			tables = append(tables, models.TableDescriptor{Schema: schema, Name: table, Description: tableDesc})
			n++
		}
		tables[n-1].Columns = append(tables[n-1].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	return datasource.FilterTables(tables, opts), nil
}
