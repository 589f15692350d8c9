package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityql/entityql/entity"
	"github.com/entityql/entityql/resolver"
)

type fakeResolver struct {
	entityType string
	edges      map[string]resolver.EdgeDescriptor
}

func (f fakeResolver) EntityType() string { return f.entityType }

func (f fakeResolver) ResolveObj(ctx context.Context, id int) (*entity.Entity, error) {
	e := entity.New()
	e.Set("id", id)
	return e, nil
}

func (f fakeResolver) Edges() map[string]resolver.EdgeDescriptor { return f.edges }

func noopEdgeFunc(ctx context.Context, src *entity.Entity, edgeCtx resolver.EdgeContext, emit func(*entity.Entity) error) error {
	return nil
}

func TestNodeIDsAreUniqueAndMonotonic(t *testing.T) {
	a := NewLeaf("User", []int{1})
	b := &Project{base: newBase(a), Projector: []string{"id"}}
	assert.NotEqual(t, a.NodeID(), b.NodeID())
	assert.Less(t, uint64(a.NodeID()), uint64(b.NodeID()))
}

func TestWalkVisitsEntireChain(t *testing.T) {
	leaf := NewLeaf("User", []int{1})
	where := &Where{base: newBase(leaf), Expr: "age > 1"}
	take := &Take{base: newBase(where), Count: 1}

	var seen []Op
	Inspect(take, func(n Node) bool {
		seen = append(seen, n.Op())
		return true
	})
	assert.Equal(t, []Op{OpTake, OpWhere, OpLeaf}, seen)
}

func TestInspectStopsDescendingWhenFalse(t *testing.T) {
	leaf := NewLeaf("User", []int{1})
	where := &Where{base: newBase(leaf), Expr: "age > 1"}

	var seen []Op
	Inspect(where, func(n Node) bool {
		seen = append(seen, n.Op())
		return n.Op() != OpWhere
	})
	assert.Equal(t, []Op{OpWhere}, seen)
}

func TestRegisterAndResolveEntityClass(t *testing.T) {
	RegisterEntityClass("plan_test.Widget", fakeResolver{entityType: "plan_test.Widget"})
	r, ok := ResolverFor("plan_test.Widget")
	require.True(t, ok)
	assert.Equal(t, "plan_test.Widget", r.EntityType())
}

func TestEdgeAndParentRoundTrip(t *testing.T) {
	RegisterEntityClass("plan_test.User", fakeResolver{
		entityType: "plan_test.User",
		edges: map[string]resolver.EdgeDescriptor{
			"friends": {TargetType: "plan_test.User", Func: noopEdgeFunc},
		},
	})

	q := NewQuery("plan_test.User", 1)
	friends, err := q.Edge("friends", nil)
	require.NoError(t, err)

	friendsLeaf := findLeaf(friends.Node)
	require.NotNil(t, friendsLeaf)
	assert.Equal(t, "plan_test.User", friendsLeaf.EntityType)
	require.NotNil(t, friendsLeaf.ParentEdge)
	assert.Equal(t, "friends", friendsLeaf.ParentEdge.EdgeName)

	back := friends.Take(5).Parent()
	rootLeaf, ok := back.Node.(*Leaf)
	require.True(t, ok)
	assert.Equal(t, "plan_test.User", rootLeaf.EntityType)
	assert.Same(t, rootLeaf, findLeaf(q.Node))

	// Parent() records the finished post-edge chain on the leaf the edge
	// was traversed FROM (here, the root leaf returned by back.Node) — it's
	// what VisitLeaf inspects at execution time to find further ops applied
	// to resolved edge targets, keyed on that leaf's own identity.
	require.Len(t, rootLeaf.Edges, 1)
	tk, ok := rootLeaf.Edges[0].(*Take)
	require.True(t, ok)
	assert.Equal(t, 5, tk.Count)
}

func TestEdgeUnknownNameFails(t *testing.T) {
	RegisterEntityClass("plan_test.Lonely", fakeResolver{entityType: "plan_test.Lonely", edges: map[string]resolver.EdgeDescriptor{}})
	q := NewQuery("plan_test.Lonely", 1)
	_, err := q.Edge("nonexistent", nil)
	assert.Error(t, err)
}

func TestCondRejectsDuplicateDiscriminants(t *testing.T) {
	q := NewQuery("plan_test.User", 1)
	_, err := q.Cond("kind", []CondCase{
		{Tag: 1, Query: NewQuery("plan_test.User", 1)},
		{Tag: 1, Query: NewQuery("plan_test.User", 2)},
	})
	assert.Error(t, err)
}

func TestGroupByComposesOrderByAsChild(t *testing.T) {
	q := NewQuery("plan_test.User", 1)
	g, err := q.GroupBy("name")
	require.NoError(t, err)
	gb, ok := g.Node.(*GroupBy)
	require.True(t, ok)
	_, ok = gb.Child().(*OrderBy)
	assert.True(t, ok)
}
