package transpile

import (
	"context"
	"fmt"
	"strings"

	"github.com/entityql/entityql/config"
	"github.com/entityql/entityql/plan"
)

// DataframeBuilder renders a query chain into a polars-style method chain,
// grounded on polars_builder.py: df.filter(...).select([...]).sort(...).
// limit(...), composed as each operator is visited, in the same
// bottom-up order as the other builders.
type DataframeBuilder struct {
	cfg config.Config

	calls []string
}

// NewDataframeBuilder builds a DataframeBuilder.
func NewDataframeBuilder(cfg config.Config) *DataframeBuilder {
	return &DataframeBuilder{cfg: cfg}
}

// RenderDataframe runs b over root and returns the finished pipeline
// expression, seeded from a bare "df" referring to the leaf's table.
func RenderDataframe(ctx context.Context, b *DataframeBuilder, root plan.Node) (string, error) {
	if err := plan.Dispatch(ctx, b, root); err != nil {
		return "", err
	}
	return "df" + strings.Join(b.calls, ""), nil
}

func (b *DataframeBuilder) VisitLeaf(ctx context.Context, n *plan.Leaf) error {
	if len(n.Edges) > 0 {
		return unsupported(b.cfg, "dataframe", plan.OpEdge)
	}
	return nil
}

func (b *DataframeBuilder) VisitProject(ctx context.Context, n *plan.Project) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	quoted := make([]string, len(n.Projector))
	for i, p := range n.Projector {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	b.calls = append(b.calls, fmt.Sprintf(".select([%s])", strings.Join(quoted, ", ")))
	return nil
}

func (b *DataframeBuilder) VisitWhere(ctx context.Context, n *plan.Where) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	expr := fmt.Sprintf("pl.col(%q) %s %s", n.Cmp.Field, string(n.Cmp.Op), literalString(n.Cmp.Value))
	b.calls = append(b.calls, fmt.Sprintf(".filter(%s)", expr))
	return nil
}

func (b *DataframeBuilder) VisitTake(ctx context.Context, n *plan.Take) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.calls = append(b.calls, fmt.Sprintf(".limit(%d)", n.Count))
	return nil
}

func (b *DataframeBuilder) VisitSkip(ctx context.Context, n *plan.Skip) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.calls = append(b.calls, fmt.Sprintf(".slice(%d)", n.Count))
	return nil
}

func (b *DataframeBuilder) VisitCount(ctx context.Context, n *plan.Count) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.calls = append(b.calls, ".select(pl.count())")
	return nil
}

func (b *DataframeBuilder) VisitOrderBy(ctx context.Context, n *plan.OrderBy) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.calls = append(b.calls, fmt.Sprintf(".sort(%q)", n.KeyRef.Field))
	return nil
}

func (b *DataframeBuilder) VisitGroupBy(ctx context.Context, n *plan.GroupBy) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.calls = append(b.calls, fmt.Sprintf(".group_by(%q)", n.KeyRef.Field))
	return nil
}

func (b *DataframeBuilder) VisitNest(ctx context.Context, n *plan.Nest) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "dataframe", plan.OpNest)
}

func (b *DataframeBuilder) VisitLet(ctx context.Context, n *plan.Let) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.calls = append(b.calls, fmt.Sprintf(".rename({%q: %q})", n.Old, n.New))
	return nil
}

func (b *DataframeBuilder) VisitCond(ctx context.Context, n *plan.Cond) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "dataframe", plan.OpCond)
}

func (b *DataframeBuilder) VisitEdge(ctx context.Context, n *plan.Edge) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "dataframe", plan.OpEdge)
}

func (b *DataframeBuilder) VisitUnion(ctx context.Context, n *plan.Union) error {
	return unsupported(b.cfg, "dataframe", plan.OpUnion)
}

func (b *DataframeBuilder) VisitBranchedUnion(ctx context.Context, n *plan.BranchedUnion) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "dataframe", plan.OpBranchedUnion)
}

func (b *DataframeBuilder) VisitAggregate(ctx context.Context, n *plan.Aggregate) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "dataframe", plan.OpAggregate)
}
