package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// qualifiedTableName returns a properly quoted table reference.
// If schemaName is empty, returns just the quoted table name.
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	return pgx.Identifier{schemaName}.Sanitize() + "." + quotedTable
}

// describeQuery lists every column of every user table and view, in
// (schema, table, ordinal) order. Primary keys come from pg_index so keys
// created as unique indexes by ORMs are still detected.
const describeQuery = `
	SELECT
		c.table_schema,
		c.table_name,
		c.column_name,
		c.data_type,
		c.is_nullable = 'YES' AS is_nullable,
		COALESCE(pk.is_pk, false) AS is_primary_key,
		COALESCE(obj_description(format('%I.%I', c.table_schema, c.table_name)::regclass, 'pg_class'), '') AS table_comment,
		COALESCE(col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position::int), '') AS column_comment
	FROM information_schema.columns c
	JOIN information_schema.tables t
		ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	LEFT JOIN (
		SELECT n.nspname AS table_schema, t.relname AS table_name, a.attname AS column_name, true AS is_pk
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE ix.indisprimary
	) pk ON pk.table_schema = c.table_schema AND pk.table_name = c.table_name AND pk.column_name = c.column_name
	WHERE t.table_type IN ('BASE TABLE', 'VIEW')
	  AND c.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	  AND c.table_schema NOT LIKE 'pg_temp%'
	ORDER BY c.table_schema, c.table_name, c.ordinal_position
`

// DescribeSchema returns user tables and views with their columns.
func (a *Adapter) DescribeSchema(ctx context.Context, opts datasource.DescribeOptions) ([]models.TableDescriptor, error) {
	rows, err := a.pool.Query(ctx, describeQuery)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var tables []models.TableDescriptor
	for rows.Next() {
		var (
			schema, table, tableComment string
			col                         models.ColumnDescriptor
		)
		if err := rows.Scan(&schema, &table, &col.Name, &col.DataType, &col.Nullable, &col.PrimaryKey, &tableComment, &col.Description); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}

		n := len(tables)
		if n == 0 || tables[n-1].Schema != schema || tables[n-1].Name != table {
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
