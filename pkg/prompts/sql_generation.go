package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// SQLGenerationInput is everything the generation prompt is built from.
type SQLGenerationInput struct {
	Question string
	Schema   *models.SchemaContext
	// TopK is the row limit the model applies when the question does not
	// ask for a specific number. Zero omits the instruction.
	TopK int
	// MaxCellLength bounds sample-row values.
	MaxCellLength int
}

type dialectHints struct {
	name       string
	quote      string
	limit      string
	currentDay string
}

var dialects = map[string]dialectHints{
	"postgres": {name: "PostgreSQL", quote: `double quotes (")`, limit: "the LIMIT clause", currentDay: "CURRENT_DATE"},
	"mysql":    {name: "MySQL", quote: "backticks (`)", limit: "the LIMIT clause", currentDay: "CURDATE()"},
	"mssql":    {name: "SQL Server (T-SQL)", quote: "square brackets ([])", limit: "SELECT TOP", currentDay: "CAST(GETDATE() AS date)"},
	"sqlite":   {name: "SQLite", quote: `double quotes (")`, limit: "the LIMIT clause", currentDay: "date('now')"},
}

func hintsFor(dialect string) dialectHints {
	if h, ok := dialects[dialect]; ok {
		return h
	}
	return dialectHints{name: "SQL", quote: `double quotes (")`, limit: "the LIMIT clause", currentDay: "CURRENT_DATE"}
}

// SQLGenerationSystemMessage returns the system message for the dialect.
func SQLGenerationSystemMessage(dialect string) string {
	h := hintsFor(dialect)
	return fmt.Sprintf("You are a %s expert who translates business questions into a single read-only SQL query. "+
		"You never modify data or schema.", h.name)
}

// BuildSQLGenerationPrompt renders the user prompt for SQL generation.
func BuildSQLGenerationPrompt(in SQLGenerationInput) string {
	dialect := ""
	if in.Schema != nil {
		dialect = in.Schema.Dialect
	}
	h := hintsFor(dialect)

	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Given an input question, create one syntactically correct %s query that answers it.\n\n", h.name))

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Write exactly one SELECT statement (a WITH ... SELECT is fine). Never write INSERT, UPDATE, DELETE, DDL or more than one statement.\n")
	if in.TopK > 0 {
		prompt.WriteString(fmt.Sprintf("- Unless the question asks for a specific number of results, return at most %d rows using %s.\n", in.TopK, h.limit))
		prompt.WriteString("- Aggregate questions (counts, totals, averages) need no row limit.\n")
	}
	prompt.WriteString("- Never select all columns from a table. Query only the columns needed to answer the question.\n")
	prompt.WriteString(fmt.Sprintf("- Quote identifiers that need it with %s.\n", h.quote))
	prompt.WriteString("- Use only the tables and columns listed below, and check which column belongs to which table.\n")
	prompt.WriteString(fmt.Sprintf("- Use %s if the question involves \"today\".\n", h.currentDay))
	prompt.WriteString("- If the question cannot be answered from these tables, still answer with the closest query over the listed tables; do not invent tables.\n\n")

	prompt.WriteString("## Tables\n\n")
	if in.Schema != nil {
		prompt.WriteString(RenderSchema(in.Schema, in.MaxCellLength))
	}

	if in.Schema != nil && len(in.Schema.Terms) > 0 {
		prompt.WriteString("## Business Terms\n\n")
		for _, term := range in.Schema.Terms {
			prompt.WriteString(fmt.Sprintf("- %s: %s\n", term.Term, term.Definition))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Response Format\n\n")
	prompt.WriteString("Reply with the query only, in this format:\n\n")
	prompt.WriteString("SQLQuery: <the query>\n\n")
	prompt.WriteString(fmt.Sprintf("Question: %s\n", strings.TrimSpace(in.Question)))

	return prompt.String()
}

// RenderSchema renders tables as CREATE TABLE statements, each followed by
// its sample rows in a comment block.
func RenderSchema(schema *models.SchemaContext, maxCellLength int) string {
	var b strings.Builder
	for i := range schema.Tables {
		renderTable(&b, &schema.Tables[i], maxCellLength)
		b.WriteString("\n")
	}
	return b.String()
}

func renderTable(b *strings.Builder, t *models.TableDescriptor, maxCellLength int) {
	if t.Description != "" {
		b.WriteString(fmt.Sprintf("-- %s\n", oneLine(t.Description)))
	}
	b.WriteString(fmt.Sprintf("CREATE TABLE %s (\n", t.QualifiedName()))

	var pk []string
	for _, col := range t.Columns {
		if col.PrimaryKey {
			pk = append(pk, col.Name)
		}
	}
	for i, col := range t.Columns {
		line := fmt.Sprintf("\t%s %s", col.Name, col.DataType)
		if !col.Nullable {
			line += " NOT NULL"
		}
		if i < len(t.Columns)-1 || len(pk) > 0 {
			line += ","
		}
		if col.Description != "" {
			line += " -- " + oneLine(col.Description)
		}
		b.WriteString(line + "\n")
	}
	if len(pk) > 0 {
		b.WriteString(fmt.Sprintf("\tPRIMARY KEY (%s)\n", strings.Join(pk, ", ")))
	}
	b.WriteString(")\n")

	if t.Sample.IsEmpty() {
		return
	}
	b.WriteString("/*\n")
	b.WriteString(fmt.Sprintf("%d %s from %s table:\n", len(t.Sample.Rows), pluralize("row", len(t.Sample.Rows)), t.Name))
	b.WriteString(strings.Join(t.Sample.ColumnNames(), "\t") + "\n")
	for _, row := range t.Sample.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = FormatCell(v, maxCellLength)
		}
		b.WriteString(strings.Join(cells, "\t") + "\n")
	}
	b.WriteString("*/\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
