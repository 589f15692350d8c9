// Package transpile renders the plan IR into SQL, Cypher, Malloy, and
// dataframe-pipeline source text (spec.md §4.7/C8), one OpVisitor
// implementation per dialect, grounded on sql_builder.py/cypher_builder.py/
// malloy_builder.py/polars_builder.py. Every builder descends to the leaf
// first (to learn the table/label name) and records each operator on the
// way back up. The SQL and Cypher builders tag each clause with a fixed
// render priority, so the final render pass emits clauses in the
// dialect's required order regardless of the order operators appear in
// the IR; the Malloy builder keeps one field per clause kind and renders
// them in a fixed order; the dataframe builder emits its method calls in
// visit order.
package transpile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/entityql/entityql/config"
	qerrors "github.com/entityql/entityql/errors"
	"github.com/entityql/entityql/plan"
)

// clause is one rendered fragment plus the priority it sorts by.
type clause struct {
	priority int
	text     string
}

func sortClauses(cs []clause) []clause {
	out := make([]clause, len(cs))
	copy(out, cs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].priority < out[j].priority })
	return out
}

func joinClauses(cs []clause, sep string) string {
	sorted := sortClauses(cs)
	parts := make([]string, len(sorted))
	for i, c := range sorted {
		parts[i] = c.text
	}
	return strings.Join(parts, sep)
}

// unsupported implements spec.md §7's TranspileUnsupported contract: a
// dialect may silently drop an operator it cannot express, unless
// cfg.StrictMode asks for a hard failure instead.
func unsupported(cfg config.Config, dialect string, op plan.Op) error {
	if cfg.StrictMode {
		return qerrors.ErrTranspileUnsupported.New(dialect, op.String())
	}
	return nil
}

// literalString renders a Go value (as produced by predicate.ParseLiteral)
// back into dialect-agnostic literal source text. Identifier quoting, where
// a dialect has any, happens in its builder (sql.go quotes the select list
// and table name); this only handles the value side of a comparison.
func literalString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case int:
		return fmt.Sprintf("%d", t)
	case float64:
		return fmt.Sprintf("%v", t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = literalString(e)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return fmt.Sprintf("%v", t)
	}
}

// qualify renders an optional "entity." qualifier plus field name, as
// produced by predicate.splitLHS.
func qualify(entityAlias, field string) string {
	if entityAlias == "" {
		return field
	}
	return entityAlias + "." + field
}
