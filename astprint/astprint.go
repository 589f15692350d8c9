// Package astprint renders a query IR tree into an indented, human-readable
// dump, grounded on walk.py's PrintASTVisitor (a visitor that writes one
// indented line per node and recurses into children at depth+1). It's the
// Go rendering of that same "indent two spaces per depth" scheme, used by
// entityql.Dump/entityql.Debug.
package astprint

import (
	"context"
	"fmt"
	"strings"

	"github.com/entityql/entityql/plan"
)

// Printer accumulates one line per visited node.
type Printer struct {
	depth int
	lines []string
}

// New builds a Printer.
func New() *Printer {
	return &Printer{}
}

// Print runs p over root and returns the finished dump, one line per node,
// indented two spaces per level. An operator's upstream chain is printed
// above it, one level deeper; a leaf's branches, a COND's cases and a
// union's arms are printed below their node.
func Print(ctx context.Context, root plan.Node) (string, error) {
	p := New()
	if err := plan.Dispatch(ctx, p, root); err != nil {
		return "", err
	}
	return strings.Join(p.lines, "\n"), nil
}

func (p *Printer) emit(n plan.Node) {
	p.lines = append(p.lines, strings.Repeat("  ", p.depth)+n.String())
}

func (p *Printer) descend(ctx context.Context, n plan.Node) error {
	p.depth++
	err := plan.Dispatch(ctx, p, n)
	p.depth--
	return err
}

func (p *Printer) VisitLeaf(ctx context.Context, n *plan.Leaf) error {
	p.emit(n)
	if len(n.Edges) == 0 {
		return nil
	}
	p.depth++
	for _, e := range n.Edges {
		p.lines = append(p.lines, strings.Repeat("  ", p.depth)+"BRANCH")
		if err := p.descend(ctx, e); err != nil {
			p.depth--
			return err
		}
	}
	p.depth--
	return nil
}

func (p *Printer) VisitProject(ctx context.Context, n *plan.Project) error {
	if err := p.descend(ctx, n.Child()); err != nil {
		return err
	}
	p.emit(n)
	return nil
}

func (p *Printer) VisitWhere(ctx context.Context, n *plan.Where) error {
	if err := p.descend(ctx, n.Child()); err != nil {
		return err
	}
	p.emit(n)
	return nil
}

func (p *Printer) VisitTake(ctx context.Context, n *plan.Take) error {
	if err := p.descend(ctx, n.Child()); err != nil {
		return err
	}
	p.emit(n)
	return nil
}

func (p *Printer) VisitSkip(ctx context.Context, n *plan.Skip) error {
	if err := p.descend(ctx, n.Child()); err != nil {
		return err
	}
	p.emit(n)
	return nil
}

func (p *Printer) VisitCount(ctx context.Context, n *plan.Count) error {
	if err := p.descend(ctx, n.Child()); err != nil {
		return err
	}
	p.emit(n)
	return nil
}

func (p *Printer) VisitOrderBy(ctx context.Context, n *plan.OrderBy) error {
	if err := p.descend(ctx, n.Child()); err != nil {
		return err
	}
	p.emit(n)
	return nil
}

func (p *Printer) VisitGroupBy(ctx context.Context, n *plan.GroupBy) error {
	if err := p.descend(ctx, n.Child()); err != nil {
		return err
	}
	p.emit(n)
	return nil
}

func (p *Printer) VisitNest(ctx context.Context, n *plan.Nest) error {
	if err := p.descend(ctx, n.Child()); err != nil {
		return err
	}
	p.emit(n)
	return nil
}

func (p *Printer) VisitLet(ctx context.Context, n *plan.Let) error {
	if err := p.descend(ctx, n.Child()); err != nil {
		return err
	}
	p.emit(n)
	return nil
}

func (p *Printer) VisitCond(ctx context.Context, n *plan.Cond) error {
	if err := p.descend(ctx, n.Child()); err != nil {
		return err
	}
	p.emit(n)
	p.depth++
	for _, b := range n.Switch {
		p.lines = append(p.lines, strings.Repeat("  ", p.depth)+fmt.Sprintf("CASE %v", b.Tag))
		if err := p.descend(ctx, b.Query); err != nil {
			p.depth--
			return err
		}
	}
	p.depth--
	return nil
}

func (p *Printer) VisitEdge(ctx context.Context, n *plan.Edge) error {
	if err := p.descend(ctx, n.Child()); err != nil {
		return err
	}
	p.emit(n)
	return nil
}

func (p *Printer) VisitUnion(ctx context.Context, n *plan.Union) error {
	p.emit(n)
	p.depth++
	for _, q := range n.Queries {
		if err := plan.Dispatch(ctx, p, q); err != nil {
			p.depth--
			return err
		}
	}
	p.depth--
	return nil
}

func (p *Printer) VisitBranchedUnion(ctx context.Context, n *plan.BranchedUnion) error {
	if err := p.descend(ctx, n.Child()); err != nil {
		return err
	}
	p.emit(n)
	p.depth++
	for _, q := range n.Queries {
		if err := plan.Dispatch(ctx, p, q); err != nil {
			p.depth--
			return err
		}
	}
	p.depth--
	return nil
}

func (p *Printer) VisitAggregate(ctx context.Context, n *plan.Aggregate) error {
	if err := p.descend(ctx, n.Child()); err != nil {
		return err
	}
	p.emit(n)
	return nil
}
