package prompts

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// NoRowsText stands in for an empty result.
const NoRowsText = "(no rows)"

// AnswerSynthesisSystemMessage instructs the model to stay within the data.
const AnswerSynthesisSystemMessage = "You answer business questions in plain English using only the query result you are given. " +
	"Never invent figures that are not in the result. If the result is empty or does not answer the question, say so."

// AnswerSynthesisInput is everything the synthesis prompt is built from.
type AnswerSynthesisInput struct {
	Question string
	SQL      string
	Result   *models.QueryResult
	Limits   models.RenderLimits
}

// BuildAnswerSynthesisPrompt renders the user prompt for answer synthesis.
func BuildAnswerSynthesisPrompt(in AnswerSynthesisInput) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Question: %s\n\n", strings.TrimSpace(in.Question)))
	if in.SQL != "" {
		prompt.WriteString(fmt.Sprintf("SQLQuery: %s\n\n", in.SQL))
	}
	prompt.WriteString("SQLResult:\n")
	prompt.WriteString(RenderResultTable(in.Result, in.Limits))
	prompt.WriteString("\n")
	prompt.WriteString("Answer the question in one to three sentences. Include the relevant numbers from the result. ")
	prompt.WriteString("If rows were omitted or the result was truncated, do not claim totals over rows you have not seen.\n\n")
	prompt.WriteString("Answer:")

	return prompt.String()
}

// RenderResultTable renders a result as a pipe table bounded by limits.
// Omitted rows, omitted columns and executor truncation are each announced
// on their own line after the table. The rendered row count never exceeds
// limits.MaxRows when it is positive.
func RenderResultTable(result *models.QueryResult, limits models.RenderLimits) string {
	if result == nil || (len(result.Columns) == 0 && len(result.Rows) == 0) {
		return NoRowsText + "\n"
	}

	columns := result.ColumnNames()
	shownCols := len(columns)
	if limits.MaxColumns > 0 && shownCols > limits.MaxColumns {
		shownCols = limits.MaxColumns
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(escapeHeaders(columns[:shownCols]), " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", shownCols) + "\n")

	if len(result.Rows) == 0 {
		b.WriteString(NoRowsText + "\n")
	}

	shownRows := len(result.Rows)
	if limits.MaxRows > 0 && shownRows > limits.MaxRows {
		shownRows = limits.MaxRows
	}
	for _, row := range result.Rows[:shownRows] {
		cells := make([]string, shownCols)
		for j := 0; j < shownCols; j++ {
			if j < len(row) {
				cells[j] = FormatCell(row[j], limits.MaxCellLength)
			}
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	if omitted := len(result.Rows) - shownRows; omitted > 0 {
		b.WriteString(fmt.Sprintf("... and %d more %s\n", omitted, pluralize("row", omitted)))
	}
	if omitted := len(columns) - shownCols; omitted > 0 {
		b.WriteString(fmt.Sprintf("... and %d more %s not shown: %s\n",
			omitted, pluralize("column", omitted), strings.Join(columns[shownCols:], ", ")))
	}
	if result.Truncated {
		b.WriteString(TruncationNotice(result.RowCap))
	}

	return b.String()
}

// TruncationNotice announces that the executor stopped at its row cap.
func TruncationNotice(rowCap int) string {
	if rowCap > 0 {
		return fmt.Sprintf("(result truncated at the %d-row cap; more rows exist in the database)\n", rowCap)
	}
	return "(result truncated; more rows exist in the database)\n"
}

func escapeHeaders(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = FormatCell(n, 0)
	}
	return out
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return inflection.Plural(word)
}
