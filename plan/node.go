// Package plan implements the query IR described in spec.md §3/§4.4: a
// tagged variant with a single child plus operator-specific payload,
// exactly the shape the teacher's own sql/plan package uses for its row
// operators (Filter/Project/Limit/... each wrapping a single sql.Node
// child, walked via the Visitor/Walk/Inspect trio in sql/plan/walk_test.go).
package plan

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/entityql/entityql/entity"
	"github.com/entityql/entityql/predicate"
	"github.com/entityql/entityql/resolver"
)

// Op is the operator discriminant from spec.md §3's "Query IR node (C4)".
type Op int

const (
	OpLeaf Op = iota
	OpProject
	OpWhere
	OpTake
	OpSkip
	OpCount
	OpCond
	OpEdge
	OpUnion
	OpBranchedUnion
	OpNest
	OpLet
	OpOrderBy
	OpGroupBy
	OpAggregate
)

func (o Op) String() string {
	switch o {
	case OpLeaf:
		return "LEAF"
	case OpProject:
		return "PROJECT"
	case OpWhere:
		return "WHERE"
	case OpTake:
		return "TAKE"
	case OpSkip:
		return "SKIP"
	case OpCount:
		return "COUNT"
	case OpCond:
		return "COND"
	case OpEdge:
		return "EDGE"
	case OpUnion:
		return "UNION"
	case OpBranchedUnion:
		return "BRANCHED_UNION"
	case OpNest:
		return "NEST"
	case OpLet:
		return "LET"
	case OpOrderBy:
		return "ORDER_BY"
	case OpGroupBy:
		return "GROUP_BY"
	case OpAggregate:
		return "AGGREGATE"
	default:
		return "INVALID"
	}
}

// Node is one IR node. Child is nil only for *Leaf. NodeID returns an id
// drawn from one process-wide counter, unique and increasing in creation
// order; the execution visitor's cycle guard uses the Leaf.Visited flag,
// not node ids.
type Node interface {
	Op() Op
	Child() Node
	NodeID() NodeID
	String() string
}

// NodeID is a unique, monotonically increasing node identity.
type NodeID uint64

var nodeCounter uint64

func nextNodeID() NodeID {
	return NodeID(atomic.AddUint64(&nodeCounter, 1))
}

// base is embedded by every non-leaf node; it owns the single child and
// the arena id.
type base struct {
	id    NodeID
	child Node
}

func newBase(child Node) base {
	return base{id: nextNodeID(), child: child}
}

func (b base) Child() Node   { return b.child }
func (b base) NodeID() NodeID { return b.id }

// Leaf is the root of a query: either seeded by ids/items (a "bound"
// leaf) or driven entirely by an enclosing EDGE's parent stream (an
// "unbound" leaf, spec.md's Glossary). EntityType names the registered
// entity class this leaf resolves (used for resolver lookup and for
// every transpiler's table/label rendering).
type Leaf struct {
	id NodeID

	EntityType string
	IDs        []int
	Items      []*entity.Entity

	// Edges holds sibling branches recorded by Parent() (spec.md §4.4).
	// At execution time, each entry whose bottom leaf was reached by an
	// edge from this leaf runs once per entity of this leaf and its result
	// is nested under the edge name; the remaining entries each run over
	// this leaf's entities and are merged by descending id with duplicates
	// dropped (exec's VisitLeaf).
	Edges []Node

	// ParentEdge is set only on an unbound leaf: the back-reference to
	// the EDGE node whose traversal produced this leaf (spec.md §4.4).
	ParentEdge *Edge

	// Visited guards against infinite recursion when Edges contains a
	// self-referential branch (spec.md §4.4's cycle protection, §8's
	// "a leaf whose edges contains itself completes without recursion").
	Visited bool
}

func (l *Leaf) Op() Op         { return OpLeaf }
func (l *Leaf) Child() Node    { return nil }
func (l *Leaf) NodeID() NodeID { return l.id }
func (l *Leaf) String() string {
	return fmt.Sprintf("LEAF (%s)", l.EntityType)
}

// LeafType renders the dialect-neutral table/type name for this leaf, the
// Go equivalent of query.py's leaf_type() ("Transforms UserQuery -> user").
func (l *Leaf) LeafType() string {
	return strings.ToLower(l.EntityType)
}

// NewLeaf constructs a bound leaf seeded by ids. Exactly one of ids/items
// should be populated for a bound leaf; an unbound leaf (no ids, no
// items) is only valid when ParentEdge will be set by the enclosing Edge
// construction in Query.Edge.
func NewLeaf(entityType string, ids []int) *Leaf {
	return &Leaf{id: nextNodeID(), EntityType: entityType, IDs: ids}
}

// NewLeafFromItems constructs a bound leaf seeded by already-materialized
// entities (spec.md §6: "LeafQuery(items=[...])").
func NewLeafFromItems(entityType string, items []*entity.Entity) *Leaf {
	ids := make([]int, 0, len(items))
	for _, it := range items {
		if id, ok := it.ID(); ok {
			ids = append(ids, id)
		}
	}
	return &Leaf{id: nextNodeID(), EntityType: entityType, IDs: ids, Items: items}
}

// Project is the PROJECT operator (spec.md §3/§4.5).
type Project struct {
	base
	Projector []string
}

func (n *Project) Op() Op { return OpProject }
func (n *Project) String() string {
	return "PROJECT " + strings.Join(n.Projector, ",")
}

// Where is the WHERE operator.
type Where struct {
	base
	Expr      string
	Cmp       *predicate.Cmp // parsed form, used by the transpilers to render dialect syntax
	Predicate PredicateFunc
}

// PredicateFunc is the compiled form of Where.Expr; see predicate.Cmp.Compile.
type PredicateFunc func(*entity.Entity) (bool, error)

func (n *Where) Op() Op          { return OpWhere }
func (n *Where) String() string  { return "WHERE " + n.Expr }

// Take is the TAKE operator.
type Take struct {
	base
	Count int
}

func (n *Take) Op() Op         { return OpTake }
func (n *Take) String() string { return fmt.Sprintf("TAKE %d", n.Count) }

// Skip is the SKIP operator (spec.md §3's C4 table; the builder method is
// one of the features SPEC_FULL.md §4 supplements back in).
type Skip struct {
	base
	Count int
}

func (n *Skip) Op() Op         { return OpSkip }
func (n *Skip) String() string { return fmt.Sprintf("SKIP %d", n.Count) }

// Count is the COUNT operator.
type Count struct {
	base
}

func (n *Count) Op() Op         { return OpCount }
func (n *Count) String() string { return "COUNT" }

// Nest is the NEST operator.
type Nest struct {
	base
	Key string
}

func (n *Nest) Op() Op         { return OpNest }
func (n *Nest) String() string { return "NEST " + n.Key }

// Let is the LET operator.
type Let struct {
	base
	Old, New string
}

func (n *Let) Op() Op         { return OpLet }
func (n *Let) String() string { return fmt.Sprintf("LET %s->%s", n.Old, n.New) }

// OrderKeyFunc computes a sort key for an entity. The builder's key
// functions return the entity's field value as stored, for async-tagged
// keys too: no returned value is resolved a second time. IsAsync only
// decides whether config.AllowAsyncOrderKeys lets the key run.
type OrderKeyFunc func(*entity.Entity) (any, error)

// OrderBy is the ORDER_BY operator.
type OrderBy struct {
	base
	Expr    string
	KeyRef  *predicate.Key
	Key     OrderKeyFunc
	IsAsync bool
}

func (n *OrderBy) Op() Op         { return OpOrderBy }
func (n *OrderBy) String() string { return "ORDER_BY " + n.Expr }

// GroupBy is the GROUP_BY operator. Per spec.md §4.5, "the builder first
// composes ORDER_BY with the same key (so groups are contiguous)": Child
// is always an *OrderBy over the same Key.
type GroupBy struct {
	base
	Expr    string
	KeyRef  *predicate.Key
	Key     OrderKeyFunc
	IsAsync bool
}

func (n *GroupBy) Op() Op         { return OpGroupBy }
func (n *GroupBy) String() string { return "GROUP_BY " + n.Expr }

// CondBranch is one (tag, subquery) arm of a COND, per spec.md §3.
type CondBranch struct {
	Tag   any
	Query Node
}

// Cond is the COND operator (SPEC_FULL.md §4 supplements its execution
// semantics, which spec.md names as IR payload but never lowers).
type Cond struct {
	base
	Key    string
	Switch []CondBranch
}

func (n *Cond) Op() Op         { return OpCond }
func (n *Cond) String() string { return "COND " + n.Key }

// Edge is the EDGE operator (spec.md §4.4). Child is the upstream
// (parent-entity) node; Unbound is the leaf representing the target
// entity class, whose ParentEdge points back at this node.
type Edge struct {
	base
	EdgeName string
	Unbound  *Leaf
	Ctx      resolver.EdgeContext
	Func     resolver.EdgeFunc
}

func (n *Edge) Op() Op         { return OpEdge }
func (n *Edge) String() string { return "EDGE " + n.EdgeName }

// Union is the UNION operator: merge-sort + dedup over parallel subqueries.
type Union struct {
	base
	Queries []Node
}

func (n *Union) Op() Op         { return OpUnion }
func (n *Union) String() string { return "UNION" }

// BranchedUnion is the BRANCHED_UNION operator: tee the upstream into one
// branch per subquery.
type BranchedUnion struct {
	base
	Queries []Node
}

func (n *BranchedUnion) Op() Op         { return OpBranchedUnion }
func (n *BranchedUnion) String() string { return "BRANCHED_UNION" }

// Aggregate is the AGGREGATE operator (SPEC_FULL.md §4 supplements a
// builder for it): flattens all nested leaf entities into one sequence.
type Aggregate struct {
	base
}

func (n *Aggregate) Op() Op         { return OpAggregate }
func (n *Aggregate) String() string { return "AGGREGATE" }
