// Package glossary loads business descriptions of tables, columns and terms
// that are merged into the schema shown to the model.
package glossary

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// Glossary is the parsed glossary file.
//
//	tables:
//	  orders:
//	    description: One row per customer order
//	    columns:
//	      total: Order total in USD, tax included
//	terms:
//	  - term: revenue
//	    definition: SUM(orders.total) over completed orders
type Glossary struct {
	Tables map[string]TableEntry `yaml:"tables"`
	Terms  []models.BusinessTerm `yaml:"terms"`
}

// TableEntry describes one table. Keys may be bare or schema-qualified.
type TableEntry struct {
	Description string            `yaml:"description"`
	Columns     map[string]string `yaml:"columns"`
}

// Load reads a glossary file. An empty path yields an empty glossary; a
// configured path that cannot be read is an error.
func Load(path string) (*Glossary, error) {
	if path == "" {
		return &Glossary{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read glossary file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates glossary YAML.
func Parse(data []byte) (*Glossary, error) {
	var g Glossary
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse glossary: %w", err)
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *Glossary) validate() error {
	for i, term := range g.Terms {
		if strings.TrimSpace(term.Term) == "" {
			return fmt.Errorf("glossary term %d: term is required", i+1)
		}
		if strings.TrimSpace(term.Definition) == "" {
			return fmt.Errorf("glossary term %q: definition is required", term.Term)
		}
	}
	for name := range g.Tables {
		if strings.TrimSpace(name) == "" {
			return errors.New("glossary table name must not be empty")
		}
	}
	return nil
}

// IsEmpty reports whether the glossary contributes nothing.
func (g *Glossary) IsEmpty() bool {
	return g == nil || (len(g.Tables) == 0 && len(g.Terms) == 0)
}

// Apply merges descriptions into matching tables and columns and appends
// the business terms. Entries naming tables that are not in the schema
// are ignored.
func (g *Glossary) Apply(schema *models.SchemaContext) {
	if g.IsEmpty() || schema == nil {
		return
	}

	for name, entry := range g.Tables {
		table, ok := schema.FindTable(name)
		if !ok {
			continue
		}
		if entry.Description != "" {
			table.Description = strings.TrimSpace(entry.Description)
		}
		for colName, desc := range entry.Columns {
			if col, ok := table.Column(colName); ok {
				col.Description = strings.TrimSpace(desc)
			}
		}
	}

	schema.Terms = append(schema.Terms, g.Terms...)
}
