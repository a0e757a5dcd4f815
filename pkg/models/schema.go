package models

import (
	"strings"
	"time"
)

// ColumnDescriptor describes one column of an introspected table.
type ColumnDescriptor struct {
	Name        string `json:"name"`
	DataType    string `json:"data_type"`
	Nullable    bool   `json:"nullable"`
	PrimaryKey  bool   `json:"primary_key"`
	Description string `json:"description,omitempty"`
}

// TableDescriptor describes one table, its columns in ordinal order and
// optionally a few sample rows.
type TableDescriptor struct {
	Schema      string             `json:"schema,omitempty"`
	Name        string             `json:"name"`
	Columns     []ColumnDescriptor `json:"columns"`
	Description string             `json:"description,omitempty"`
	Sample      *QueryResult       `json:"sample,omitempty"`
}

// QualifiedName returns schema.table, or just the table when the dialect has no schemas.
func (t *TableDescriptor) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Column returns the named column, matched case-insensitively.
func (t *TableDescriptor) Column(name string) (*ColumnDescriptor, bool) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// BusinessTerm is a glossary entry rendered into the generation prompt.
type BusinessTerm struct {
	Term       string `json:"term" yaml:"term"`
	Definition string `json:"definition" yaml:"definition"`
}

// SchemaContext is a per-request snapshot of the database structure.
// Tables are ordered by (schema, name) so rendering is deterministic.
type SchemaContext struct {
	Dialect    string            `json:"dialect"`
	Tables     []TableDescriptor `json:"tables"`
	Terms      []BusinessTerm    `json:"terms,omitempty"`
	CapturedAt time.Time         `json:"captured_at"`
}

// FindTable looks a table up by bare or qualified name, ignoring case and
// identifier quoting. Tables without a schema match any qualifier.
func (s *SchemaContext) FindTable(name string) (*TableDescriptor, bool) {
	parts := SplitQualifiedName(name)
	if len(parts) == 0 {
		return nil, false
	}

	table := parts[len(parts)-1]
	schema := ""
	if len(parts) > 1 {
		schema = parts[len(parts)-2]
	}

	for i := range s.Tables {
		t := &s.Tables[i]
		if !strings.EqualFold(t.Name, table) {
			continue
		}
		if schema == "" || t.Schema == "" || strings.EqualFold(t.Schema, schema) {
			return t, true
		}
	}
	return nil, false
}

// TableNames returns qualified table names in snapshot order.
func (s *SchemaContext) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for i := range s.Tables {
		names = append(names, s.Tables[i].QualifiedName())
	}
	return names
}

// SplitQualifiedName splits a dotted identifier into unquoted parts.
// Dots inside "double", `backtick` or [bracket] quoting are kept.
func SplitQualifiedName(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	var parts []string
	var cur strings.Builder
	var closing rune
	for _, r := range name {
		switch {
		case closing != 0:
			if r == closing {
				closing = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '`':
			closing = r
		case r == '[':
			closing = ']'
		case r == '.':
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, strings.TrimSpace(cur.String()))
	return parts
}
