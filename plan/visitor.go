package plan

import "context"

// Visitor is the generic read-only traversal hook, the same shape as
// sql/plan's Visitor in the teacher (sql/plan/walk_test.go):
//
//	type visitor func(sql.Node) Visitor
//	func (f visitor) Visit(n sql.Node) Visitor { return f(n) }
//
// Visit returns nil to stop descending into n's child.
type Visitor interface {
	Visit(n Node) Visitor
}

// VisitorFunc adapts a plain function to a Visitor, mirroring the
// teacher's unexported `visitor` function-to-interface shim.
type VisitorFunc func(Node) Visitor

func (f VisitorFunc) Visit(n Node) Visitor { return f(n) }

// Walk traverses the single-child chain rooted at n, calling v.Visit at
// each node. If v.Visit(n) returns a non-nil Visitor w, Walk continues
// into n.Child() using w; if it returns nil, Walk stops at n. Leaf edge
// branches are also walked (each counts as a child for this traversal).
func Walk(v Visitor, n Node) {
	if n == nil {
		return
	}
	w := v.Visit(n)
	if w == nil {
		return
	}
	if leaf, ok := n.(*Leaf); ok {
		for _, e := range leaf.Edges {
			Walk(w, e)
		}
		return
	}
	Walk(w, n.Child())
}

// Inspect calls f on every node in the chain rooted at n, stopping the
// descent below any node where f returns false — the teacher's
// Inspect(n, f) built atop Walk in sql/plan/walk_test.go.
func Inspect(n Node, f func(Node) bool) {
	var visit VisitorFunc
	visit = func(n Node) Visitor {
		if f(n) {
			return visit
		}
		return nil
	}
	Walk(visit, n)
}

// OpVisitor is the per-operator dispatch interface every concrete
// visitor (exec, transpile, astprint) implements, the Go rendering of
// visitor.py's getattr(self, "visit_" + op.name.lower()) dynamic
// dispatch. Dispatch below performs the equivalent type switch.
type OpVisitor interface {
	VisitLeaf(ctx context.Context, n *Leaf) error
	VisitProject(ctx context.Context, n *Project) error
	VisitWhere(ctx context.Context, n *Where) error
	VisitTake(ctx context.Context, n *Take) error
	VisitSkip(ctx context.Context, n *Skip) error
	VisitCount(ctx context.Context, n *Count) error
	VisitCond(ctx context.Context, n *Cond) error
	VisitEdge(ctx context.Context, n *Edge) error
	VisitUnion(ctx context.Context, n *Union) error
	VisitBranchedUnion(ctx context.Context, n *BranchedUnion) error
	VisitNest(ctx context.Context, n *Nest) error
	VisitLet(ctx context.Context, n *Let) error
	VisitOrderBy(ctx context.Context, n *OrderBy) error
	VisitGroupBy(ctx context.Context, n *GroupBy) error
	VisitAggregate(ctx context.Context, n *Aggregate) error
}

// Dispatch sends n to the matching OpVisitor method, per spec.md §4.5's
// "one visit_<op> method per operator".
func Dispatch(ctx context.Context, v OpVisitor, n Node) error {
	if n == nil {
		return nil
	}
	switch t := n.(type) {
	case *Leaf:
		return v.VisitLeaf(ctx, t)
	case *Project:
		return v.VisitProject(ctx, t)
	case *Where:
		return v.VisitWhere(ctx, t)
	case *Take:
		return v.VisitTake(ctx, t)
	case *Skip:
		return v.VisitSkip(ctx, t)
	case *Count:
		return v.VisitCount(ctx, t)
	case *Cond:
		return v.VisitCond(ctx, t)
	case *Edge:
		return v.VisitEdge(ctx, t)
	case *Union:
		return v.VisitUnion(ctx, t)
	case *BranchedUnion:
		return v.VisitBranchedUnion(ctx, t)
	case *Nest:
		return v.VisitNest(ctx, t)
	case *Let:
		return v.VisitLet(ctx, t)
	case *OrderBy:
		return v.VisitOrderBy(ctx, t)
	case *GroupBy:
		return v.VisitGroupBy(ctx, t)
	case *Aggregate:
		return v.VisitAggregate(ctx, t)
	default:
		return nil
	}
}

// VisitLeafEdges dispatches v across every branch recorded on leaf.Edges,
// in order, stopping at the first error. None of this module's visitors
// call it; astprint's VisitLeaf walks leaf.Edges itself.
func VisitLeafEdges(ctx context.Context, v OpVisitor, leaf *Leaf) error {
	for _, e := range leaf.Edges {
		if err := Dispatch(ctx, v, e); err != nil {
			return err
		}
	}
	return nil
}
