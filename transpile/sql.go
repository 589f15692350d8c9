package transpile

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/entityql/entityql/config"
	"github.com/entityql/entityql/plan"
)

const (
	sqlPriFrom = iota
	sqlPriWhere
	sqlPriGroupBy
	sqlPriOrderBy
	sqlPriLimit
	sqlPriOffset
)

// SQLBuilder renders a query chain into a single SQL SELECT statement,
// grounded on sql_builder.py. Graph-only operators (EDGE, NEST, COND,
// UNION, BRANCHED_UNION, AGGREGATE) have no relational rendering and are
// handled via the shared TranspileUnsupported contract (spec.md §7).
type SQLBuilder struct {
	cfg config.Config

	table     string
	projector []string
	isCount   bool
	clauses   []clause

	suppressNextOrderBy bool
}

// NewSQLBuilder builds a SQLBuilder using cfg for its StrictMode setting.
func NewSQLBuilder(cfg config.Config) *SQLBuilder {
	return &SQLBuilder{cfg: cfg}
}

// Render runs the builder over root and returns the finished statement.
func Render(ctx context.Context, b *SQLBuilder, root plan.Node) (string, error) {
	if err := plan.Dispatch(ctx, b, root); err != nil {
		return "", err
	}
	return b.render(), nil
}

func (b *SQLBuilder) render() string {
	selectList := "*"
	if b.isCount {
		selectList = "COUNT(*)"
	} else if len(b.projector) > 0 {
		quoted := make([]string, len(b.projector))
		for i, p := range b.projector {
			quoted[i] = pq.QuoteIdentifier(sqlField(p))
		}
		selectList = strings.Join(quoted, ", ")
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s", selectList, pq.QuoteIdentifier(b.table))
	if rest := joinClauses(b.clauses, " "); rest != "" {
		stmt += " " + rest
	}
	return stmt
}

// sqlField normalizes the ":id" projector entry to the dialect's id column,
// matching sql_builder.py's visit_project.
func sqlField(field string) string {
	if field == ":id" {
		return "id"
	}
	return field
}

func (b *SQLBuilder) VisitLeaf(ctx context.Context, n *plan.Leaf) error {
	b.table = n.LeafType()
	if len(n.Edges) > 0 {
		return unsupported(b.cfg, "sql", plan.OpEdge)
	}
	return nil
}

func (b *SQLBuilder) VisitProject(ctx context.Context, n *plan.Project) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.projector = n.Projector
	return nil
}

func (b *SQLBuilder) VisitWhere(ctx context.Context, n *plan.Where) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	text := fmt.Sprintf("%s %s %s", qualify(n.Cmp.Entity, n.Cmp.Field), string(n.Cmp.Op), literalString(n.Cmp.Value))
	b.clauses = append(b.clauses, clause{sqlPriWhere, "WHERE " + text})
	return nil
}

func (b *SQLBuilder) VisitTake(ctx context.Context, n *plan.Take) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.clauses = append(b.clauses, clause{sqlPriLimit, fmt.Sprintf("LIMIT %d", n.Count)})
	return nil
}

func (b *SQLBuilder) VisitSkip(ctx context.Context, n *plan.Skip) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.clauses = append(b.clauses, clause{sqlPriOffset, fmt.Sprintf("OFFSET %d", n.Count)})
	return nil
}

func (b *SQLBuilder) VisitCount(ctx context.Context, n *plan.Count) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.isCount = true
	return nil
}

func (b *SQLBuilder) VisitOrderBy(ctx context.Context, n *plan.OrderBy) error {
	suppress := b.suppressNextOrderBy
	b.suppressNextOrderBy = false
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	if suppress {
		return nil
	}
	b.clauses = append(b.clauses, clause{sqlPriOrderBy, "ORDER BY " + qualify(n.KeyRef.Entity, n.KeyRef.Field)})
	return nil
}

func (b *SQLBuilder) VisitGroupBy(ctx context.Context, n *plan.GroupBy) error {
	// GROUP BY's child is an ORDER_BY the builder composed automatically
	// (spec.md §4.5) purely to guarantee contiguous execution grouping; SQL
	// expresses grouping directly and doesn't need that pre-sort rendered.
	b.suppressNextOrderBy = true
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.clauses = append(b.clauses, clause{sqlPriGroupBy, "GROUP BY " + qualify(n.KeyRef.Entity, n.KeyRef.Field)})
	return nil
}

func (b *SQLBuilder) VisitNest(ctx context.Context, n *plan.Nest) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "sql", plan.OpNest)
}

func (b *SQLBuilder) VisitLet(ctx context.Context, n *plan.Let) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.projector = append([]string{}, b.projector...)
	for i, p := range b.projector {
		if p == n.Old {
			b.projector[i] = n.New
		}
	}
	return nil
}

func (b *SQLBuilder) VisitCond(ctx context.Context, n *plan.Cond) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "sql", plan.OpCond)
}

func (b *SQLBuilder) VisitEdge(ctx context.Context, n *plan.Edge) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "sql", plan.OpEdge)
}

func (b *SQLBuilder) VisitUnion(ctx context.Context, n *plan.Union) error {
	return unsupported(b.cfg, "sql", plan.OpUnion)
}

func (b *SQLBuilder) VisitBranchedUnion(ctx context.Context, n *plan.BranchedUnion) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "sql", plan.OpBranchedUnion)
}

func (b *SQLBuilder) VisitAggregate(ctx context.Context, n *plan.Aggregate) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "sql", plan.OpAggregate)
}
