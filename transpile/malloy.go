package transpile

import (
	"context"
	"fmt"
	"strings"

	"github.com/entityql/entityql/config"
	"github.com/entityql/entityql/plan"
)

// MalloyBuilder renders a query chain into a Malloy query source block,
// grounded on malloy_builder.py: a `query: <table> -> { ... }` pipeline
// with one line per clause, in a fixed clause order.
type MalloyBuilder struct {
	cfg config.Config

	table     string
	projector []string
	wheres    []string
	orderBy   string
	limit     *int
	isCount   bool

	suppressNextOrderBy bool
}

// NewMalloyBuilder builds a MalloyBuilder.
func NewMalloyBuilder(cfg config.Config) *MalloyBuilder {
	return &MalloyBuilder{cfg: cfg}
}

// RenderMalloy runs b over root and returns the finished query block.
func RenderMalloy(ctx context.Context, b *MalloyBuilder, root plan.Node) (string, error) {
	if err := plan.Dispatch(ctx, b, root); err != nil {
		return "", err
	}
	return b.render(), nil
}

func (b *MalloyBuilder) render() string {
	var lines []string
	if b.isCount {
		lines = append(lines, "  aggregate: n is count()")
	} else if len(b.projector) > 0 {
		fields := make([]string, len(b.projector))
		for i, p := range b.projector {
			fields[i] = malloyField(p)
		}
		lines = append(lines, "  group_by: "+strings.Join(fields, ", "))
	}
	for _, w := range b.wheres {
		lines = append(lines, "  where: "+w)
	}
	if b.orderBy != "" {
		lines = append(lines, "  order_by: "+b.orderBy)
	}
	if b.limit != nil {
		lines = append(lines, fmt.Sprintf("  limit: %d", *b.limit))
	}
	return fmt.Sprintf("query: %s -> {\n%s\n}", b.table, strings.Join(lines, "\n"))
}

// malloyField normalizes the ":id" projector entry to the dialect's id
// column, matching malloy_builder.py's visit_project.
func malloyField(field string) string {
	if field == ":id" {
		return "id"
	}
	return field
}

func (b *MalloyBuilder) VisitLeaf(ctx context.Context, n *plan.Leaf) error {
	b.table = n.LeafType()
	if len(n.Edges) > 0 {
		return unsupported(b.cfg, "malloy", plan.OpEdge)
	}
	return nil
}

func (b *MalloyBuilder) VisitProject(ctx context.Context, n *plan.Project) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.projector = n.Projector
	return nil
}

func (b *MalloyBuilder) VisitWhere(ctx context.Context, n *plan.Where) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	text := fmt.Sprintf("%s %s %s", qualify(n.Cmp.Entity, n.Cmp.Field), string(n.Cmp.Op), literalString(n.Cmp.Value))
	b.wheres = append(b.wheres, text)
	return nil
}

func (b *MalloyBuilder) VisitTake(ctx context.Context, n *plan.Take) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	limit := n.Count
	b.limit = &limit
	return nil
}

func (b *MalloyBuilder) VisitSkip(ctx context.Context, n *plan.Skip) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "malloy", plan.OpSkip)
}

func (b *MalloyBuilder) VisitCount(ctx context.Context, n *plan.Count) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.isCount = true
	return nil
}

func (b *MalloyBuilder) VisitOrderBy(ctx context.Context, n *plan.OrderBy) error {
	suppress := b.suppressNextOrderBy
	b.suppressNextOrderBy = false
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	if suppress {
		return nil
	}
	b.orderBy = qualify(n.KeyRef.Entity, n.KeyRef.Field)
	return nil
}

func (b *MalloyBuilder) VisitGroupBy(ctx context.Context, n *plan.GroupBy) error {
	b.suppressNextOrderBy = true
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.projector = []string{qualify(n.KeyRef.Entity, n.KeyRef.Field)}
	return nil
}

func (b *MalloyBuilder) VisitNest(ctx context.Context, n *plan.Nest) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "malloy", plan.OpNest)
}

func (b *MalloyBuilder) VisitLet(ctx context.Context, n *plan.Let) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return nil
}

func (b *MalloyBuilder) VisitCond(ctx context.Context, n *plan.Cond) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "malloy", plan.OpCond)
}

func (b *MalloyBuilder) VisitEdge(ctx context.Context, n *plan.Edge) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "malloy", plan.OpEdge)
}

func (b *MalloyBuilder) VisitUnion(ctx context.Context, n *plan.Union) error {
	return unsupported(b.cfg, "malloy", plan.OpUnion)
}

func (b *MalloyBuilder) VisitBranchedUnion(ctx context.Context, n *plan.BranchedUnion) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "malloy", plan.OpBranchedUnion)
}

func (b *MalloyBuilder) VisitAggregate(ctx context.Context, n *plan.Aggregate) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "malloy", plan.OpAggregate)
}
