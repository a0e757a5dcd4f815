package models

import "time"

// GeneratedQuery is the statement produced by the model for a question.
// SQL is untrusted until the executor has accepted it.
type GeneratedQuery struct {
	Question    string    `json:"question"`
	SQL         string    `json:"sql"`
	RawResponse string    `json:"-"`
	Model       string    `json:"model,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ColumnInfo describes a result column.
type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type,omitempty"`
}

// QueryResult is a bounded tabular result. Rows are positional so that
// duplicate column names from joins survive.
type QueryResult struct {
	Columns     []ColumnInfo  `json:"columns"`
	Rows        [][]any       `json:"rows"`
	RowCount    int           `json:"row_count"`
	ColumnCount int           `json:"column_count"`
	Truncated   bool          `json:"truncated"`
	RowCap      int           `json:"row_cap,omitempty"`
	Duration    time.Duration `json:"-"`
}

// ColumnNames returns the result column names in order.
func (r *QueryResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// IsEmpty reports whether the result has no rows.
func (r *QueryResult) IsEmpty() bool {
	return r == nil || len(r.Rows) == 0
}

// Limits bound a single execution.
type Limits struct {
	MaxRows          int
	StatementTimeout time.Duration
}

// RenderLimits bound how much of a result is placed in a prompt.
type RenderLimits struct {
	MaxRows       int
	MaxColumns    int
	MaxCellLength int
}
