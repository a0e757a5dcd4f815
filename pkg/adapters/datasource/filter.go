package datasource

import (
	"strings"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// FilterTables applies DescribeOptions to tables already ordered by
// (schema, name). Schema matching ignores case.
func FilterTables(tables []models.TableDescriptor, opts DescribeOptions) []models.TableDescriptor {
	include := lowerSet(opts.IncludeSchemas)
	exclude := lowerSet(opts.ExcludeSchemas)

	out := make([]models.TableDescriptor, 0, len(tables))
	for _, t := range tables {
		schema := strings.ToLower(t.Schema)
		if len(include) > 0 && !include[schema] {
			continue
		}
		if exclude[schema] {
			continue
		}
		out = append(out, t)
		if opts.MaxTables > 0 && len(out) == opts.MaxTables {
			break
		}
	}
	return out
}

func lowerSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}
