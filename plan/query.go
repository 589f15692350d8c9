package plan

import (
	"github.com/entityql/entityql/entity"
	qerrors "github.com/entityql/entityql/errors"
	"github.com/entityql/entityql/predicate"
	"github.com/entityql/entityql/resolver"
)

// Query is the builder wrapping an in-progress IR chain, the Go
// rendering of query.py's Query base class. Every chain method returns a
// new *Query; none mutate the node the receiver wraps (construction is
// purely additive, matching spec.md §4.4's node-ownership model).
type Query struct {
	Node Node
}

// NewQuery starts a query rooted at ids of the given registered entity
// type (query.py's "UserQuery(range(1, 5))").
func NewQuery(entityType string, ids ...int) *Query {
	return &Query{Node: NewLeaf(entityType, ids)}
}

// NewQueryFromItems starts a query seeded with already-materialized
// entities (spec.md §6).
func NewQueryFromItems(entityType string, items []*entity.Entity) *Query {
	return &Query{Node: NewLeafFromItems(entityType, items)}
}

func findLeaf(n Node) *Leaf {
	for n != nil {
		if l, ok := n.(*Leaf); ok {
			return l
		}
		n = n.Child()
	}
	return nil
}

// FindLeaf walks n's chain of single children down to its *Leaf, or
// returns nil if n's chain never bottoms out at one (should not happen
// for any tree built through Query's own constructors).
func FindLeaf(n Node) *Leaf { return findLeaf(n) }

// Project appends a PROJECT node.
func (q *Query) Project(fields ...string) *Query {
	return &Query{Node: &Project{base: newBase(q.Node), Projector: fields}}
}

// Where parses expr ("<lhs> <op> <rhs>") and appends a WHERE node.
// Parsing happens now, at construction time (spec.md §4.3): a malformed
// expression fails the call immediately rather than at execution.
func (q *Query) Where(expr string) (*Query, error) {
	cmp, err := predicate.ParseWhere(expr)
	if err != nil {
		return nil, err
	}
	w := &Where{base: newBase(q.Node), Expr: expr, Cmp: cmp, Predicate: cmp.Compile()}
	return &Query{Node: w}, nil
}

// MustWhere is Where, panicking on a malformed expression; for call
// sites building queries from trusted, static literals.
func (q *Query) MustWhere(expr string) *Query {
	r, err := q.Where(expr)
	if err != nil {
		panic(err)
	}
	return r
}

// Take appends a TAKE node.
func (q *Query) Take(n int) *Query {
	return &Query{Node: &Take{base: newBase(q.Node), Count: n}}
}

// Skip appends a SKIP node.
func (q *Query) Skip(n int) *Query {
	return &Query{Node: &Skip{base: newBase(q.Node), Count: n}}
}

// Count appends a COUNT node.
func (q *Query) Count() *Query {
	return &Query{Node: &Count{base: newBase(q.Node)}}
}

// Nest appends a NEST node: wraps every downstream result under key.
func (q *Query) Nest(key string) *Query {
	return &Query{Node: &Nest{base: newBase(q.Node), Key: key}}
}

// Let appends a LET node: renames field oldName to newName on every
// downstream entity.
func (q *Query) Let(oldName, newName string) *Query {
	return &Query{Node: &Let{base: newBase(q.Node), Old: oldName, New: newName}}
}

func keyFuncFor(k *predicate.Key) OrderKeyFunc {
	return func(e *entity.Entity) (any, error) {
		v, _ := k.FieldOf(e)
		return v, nil
	}
}

// OrderBy parses a bare "<lhs>" key expression and appends an ORDER_BY
// node (spec.md §4.3/§4.5).
func (q *Query) OrderBy(expr string) (*Query, error) {
	k, err := predicate.ParseKey(expr)
	if err != nil {
		return nil, err
	}
	o := &OrderBy{base: newBase(q.Node), Expr: expr, KeyRef: k, Key: keyFuncFor(k), IsAsync: k.IsAsync}
	return &Query{Node: o}, nil
}

// MustOrderBy is OrderBy, panicking on a malformed expression.
func (q *Query) MustOrderBy(expr string) *Query {
	r, err := q.OrderBy(expr)
	if err != nil {
		panic(err)
	}
	return r
}

// GroupBy parses expr and appends GROUP_BY over an ORDER_BY composed
// with the same key, per spec.md §4.5's "groups are contiguous" note.
func (q *Query) GroupBy(expr string) (*Query, error) {
	k, err := predicate.ParseKey(expr)
	if err != nil {
		return nil, err
	}
	ordered := &OrderBy{base: newBase(q.Node), Expr: expr, KeyRef: k, Key: keyFuncFor(k), IsAsync: k.IsAsync}
	g := &GroupBy{base: newBase(ordered), Expr: expr, KeyRef: k, Key: keyFuncFor(k), IsAsync: k.IsAsync}
	return &Query{Node: g}, nil
}

// MustGroupBy is GroupBy, panicking on a malformed expression.
func (q *Query) MustGroupBy(expr string) *Query {
	r, err := q.GroupBy(expr)
	if err != nil {
		panic(err)
	}
	return r
}

// CondCase is one (tag, builder) arm passed to Cond.
type CondCase struct {
	Tag   any
	Query *Query
}

// Cond appends a COND node switching on the value of key (SPEC_FULL.md
// §4's supplemented execution semantics: at most one matching branch
// runs per entity).
func (q *Query) Cond(key string, cases []CondCase) (*Query, error) {
	seen := map[any]bool{}
	branches := make([]CondBranch, 0, len(cases))
	for _, c := range cases {
		if seen[c.Tag] {
			return nil, qerrors.ErrInvalidQueryShape.New("duplicate COND discriminant value")
		}
		seen[c.Tag] = true
		branches = append(branches, CondBranch{Tag: c.Tag, Query: c.Query.Node})
	}
	return &Query{Node: &Cond{base: newBase(q.Node), Key: key, Switch: branches}}, nil
}

// Edge appends an EDGE node and returns a Query positioned at the fresh
// unbound leaf representing edgeName's target entity class, so further
// chaining (Project, Where, ...) builds the subquery for the traversed
// entities rather than for q itself (spec.md §4.4).
func (q *Query) Edge(edgeName string, edgeCtx resolver.EdgeContext) (*Query, error) {
	srcLeaf := findLeaf(q.Node)
	if srcLeaf == nil {
		return nil, qerrors.ErrInvalidQueryShape.New("edge() requires a chain rooted at a leaf")
	}
	targetType, fn, err := edgeTarget(srcLeaf.EntityType, edgeName)
	if err != nil {
		return nil, err
	}
	unbound := NewLeaf(targetType, nil)
	e := &Edge{base: newBase(q.Node), EdgeName: edgeName, Unbound: unbound, Ctx: edgeCtx, Func: fn}
	unbound.ParentEdge = e
	return &Query{Node: unbound}, nil
}

// Parent pops back to the leaf this chain traversed an edge from,
// recording the finished subquery (q.Node) as one of that leaf's
// branches, so a sibling Edge call starts a new branch instead of
// extending this one (spec.md §4.4). Panics unless q.Node's immediate
// child is a leaf, so exactly one operator must follow the Edge call; when
// that leaf is not edge-bound, Parent returns it without recording
// anything.
func (q *Query) Parent() *Query {
	child := q.Node.Child()
	leaf, ok := child.(*Leaf)
	if !ok {
		panic("plan: Parent() called on a chain not rooted at an edge-bound leaf")
	}
	// leaf is itself unbound (the right-hand side of an EDGE): pop up past
	// the edge traversal to the leaf it was traversed from, and record the
	// finished subquery (q.Node) as one of THAT leaf's branches, so a
	// sibling Edge call starts a new branch off the original entities
	// rather than off the just-traversed edge's target type.
	if leaf.ParentEdge != nil {
		if up := findLeaf(leaf.ParentEdge.Child()); up != nil {
			up.Edges = append(up.Edges, q.Node)
			return &Query{Node: up}
		}
	}
	return &Query{Node: leaf}
}

// Union merges this query with others by descending id, deduping, per
// spec.md §4.5.
func Union(queries ...*Query) *Query {
	nodes := make([]Node, len(queries))
	for i, s := range queries {
		nodes[i] = s.Node
	}
	return &Query{Node: &Union{base: newBase(nil), Queries: nodes}}
}

// BranchedUnion tees q into one branch per subquery builder; each
// builder receives a *Query positioned at q's current node.
func (q *Query) BranchedUnion(build ...func(*Query) *Query) *Query {
	nodes := make([]Node, len(build))
	for i, b := range build {
		nodes[i] = b(&Query{Node: q.Node}).Node
	}
	return &Query{Node: &BranchedUnion{base: newBase(q.Node), Queries: nodes}}
}

// Aggregate appends an AGGREGATE node (SPEC_FULL.md §4's supplemented
// builder): flattens nested leaf results into one sequence.
func (q *Query) Aggregate() *Query {
	return &Query{Node: &Aggregate{base: newBase(q.Node)}}
}
