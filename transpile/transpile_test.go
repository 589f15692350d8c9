package transpile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityql/entityql/config"
	"github.com/entityql/entityql/entity"
	"github.com/entityql/entityql/plan"
	"github.com/entityql/entityql/resolver"
)

type fakeEdgeResolver struct {
	entityType string
	edges      map[string]resolver.EdgeDescriptor
}

func (f fakeEdgeResolver) EntityType() string { return f.entityType }

func (f fakeEdgeResolver) ResolveObj(ctx context.Context, id int) (*entity.Entity, error) {
	e := entity.New()
	e.Set("id", id)
	return e, nil
}

func (f fakeEdgeResolver) Edges() map[string]resolver.EdgeDescriptor { return f.edges }

func noopFriendsEdge(ctx context.Context, src *entity.Entity, edgeCtx resolver.EdgeContext, emit func(*entity.Entity) error) error {
	return nil
}

func TestRenderSQLProjectWhereOrderByTake(t *testing.T) {
	ctx := context.Background()
	q := plan.NewQuery("transpile_test.Widget", 1, 2, 3)
	where, err := q.Where("price > 10")
	require.NoError(t, err)
	ordered, err := where.OrderBy("price")
	require.NoError(t, err)
	taken := ordered.Project("id", "price").Take(5)

	out, err := Render(ctx, NewSQLBuilder(config.Config{}), taken.Node)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "price" FROM "transpile_test.widget" WHERE price > 10 ORDER BY price LIMIT 5`, out)
}

func TestRenderSQLProjectNormalizesIDColumn(t *testing.T) {
	ctx := context.Background()
	q := plan.NewQuery("transpile_test.Widget", 1, 2, 3)
	taken := q.Project(":id", "price").Take(2)

	out, err := Render(ctx, NewSQLBuilder(config.Config{}), taken.Node)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "price" FROM "transpile_test.widget" LIMIT 2`, out)
}

func TestRenderSQLGroupBySuppressesOrderBy(t *testing.T) {
	ctx := context.Background()
	q := plan.NewQuery("transpile_test.Widget", 1, 2, 3)
	g, err := q.GroupBy("category")
	require.NoError(t, err)

	out, err := Render(ctx, NewSQLBuilder(config.Config{}), g.Node)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "transpile_test.widget" GROUP BY category`, out)
}

func TestRenderSQLStrictModeErrorsOnUnsupportedOp(t *testing.T) {
	ctx := context.Background()
	q := plan.NewQuery("transpile_test.Widget", 1).Nest("wrapped")

	_, err := Render(ctx, NewSQLBuilder(config.Config{StrictMode: true}), q.Node)
	assert.Error(t, err)

	out, err := Render(ctx, NewSQLBuilder(config.Config{StrictMode: false}), q.Node)
	require.NoError(t, err)
	assert.Contains(t, out, "transpile_test.widget")
}

func TestRenderMalloyCount(t *testing.T) {
	ctx := context.Background()
	q := plan.NewQuery("transpile_test.Widget", 1, 2).Count()

	out, err := RenderMalloy(ctx, NewMalloyBuilder(config.Config{}), q.Node)
	require.NoError(t, err)
	assert.Equal(t, "query: transpile_test.widget -> {\n  aggregate: n is count()\n}", out)
}

func TestRenderMalloyGroupByWhereLimit(t *testing.T) {
	ctx := context.Background()
	q := plan.NewQuery("transpile_test.Widget", 1, 2, 3)
	where, err := q.Where("price > 5")
	require.NoError(t, err)
	g, err := where.GroupBy("category")
	require.NoError(t, err)
	taken := g.Take(3)

	out, err := RenderMalloy(ctx, NewMalloyBuilder(config.Config{}), taken.Node)
	require.NoError(t, err)
	assert.Equal(t, "query: transpile_test.widget -> {\n  group_by: category\n  where: price > 5\n  limit: 3\n}", out)
}

func TestRenderMalloyProjectNormalizesIDColumn(t *testing.T) {
	ctx := context.Background()
	q := plan.NewQuery("transpile_test.Widget", 1, 2).Project(":id", "price")

	out, err := RenderMalloy(ctx, NewMalloyBuilder(config.Config{}), q.Node)
	require.NoError(t, err)
	assert.Equal(t, "query: transpile_test.widget -> {\n  group_by: id, price\n}", out)
}

func TestRenderCypherSimpleMatch(t *testing.T) {
	ctx := context.Background()
	q := plan.NewQuery("transpile_test.Widget", 1, 2)
	where, err := q.Where("price > 5")
	require.NoError(t, err)

	out, err := RenderCypher(ctx, NewCypherBuilder(config.Config{}), where.Node)
	require.NoError(t, err)
	// A single-leaf chain uses the hardcoded alias "u" and carries no
	// id-list filter: the engine's bound ids select which entities resolve,
	// not which the rendered MATCH constrains.
	assert.Equal(t, "MATCH (u:Transpile_test.widget)\nWHERE u.price > 5\nRETURN u", out)
}

func init() {
	plan.RegisterEntityClass("transpile_test.User", fakeEdgeResolver{
		entityType: "transpile_test.User",
		edges: map[string]resolver.EdgeDescriptor{
			"friends": {TargetType: "transpile_test.User", Func: noopFriendsEdge},
		},
	})
}

func TestRenderCypherProjectWhereOrderByTakeMatchesWalkthrough(t *testing.T) {
	ctx := context.Background()
	q := plan.NewQuery("transpile_test.User", 1, 2, 3, 4, 5, 6, 7, 8, 9)
	where, err := q.Where("user.age >= 16")
	require.NoError(t, err)
	ordered, err := where.OrderBy("user.age")
	require.NoError(t, err)
	taken := ordered.Project(":id", "name").Take(3)

	out, err := RenderCypher(ctx, NewCypherBuilder(config.Config{}), taken.Node)
	require.NoError(t, err)
	assert.Equal(t, "MATCH (u:Transpile_test.user)\nWHERE u.age >= 16\nRETURN u.id, u.name\nORDER BY u.age\nLIMIT 3", out)
}

func TestRenderCypherCountUsesStar(t *testing.T) {
	ctx := context.Background()
	q := plan.NewQuery("transpile_test.User", 1, 2, 3, 4, 5, 6, 7, 8, 9).Count()

	out, err := RenderCypher(ctx, NewCypherBuilder(config.Config{}), q.Node)
	require.NoError(t, err)
	assert.Equal(t, "MATCH (u:Transpile_test.user)\nRETURN count(*)", out)
}

func TestRenderCypherTwoHopSameEdgeCollapsesAndNormalizesID(t *testing.T) {
	ctx := context.Background()
	q := plan.NewQuery("transpile_test.User", 1)
	edged, err := q.Edge("friends", nil)
	require.NoError(t, err)
	edged, err = edged.Edge("friends", nil)
	require.NoError(t, err)
	taken := edged.Project("name", ":id").Take(3)

	out, err := RenderCypher(ctx, NewCypherBuilder(config.Config{}), taken.Node)
	require.NoError(t, err)
	assert.Equal(t, "MATCH (a:Transpile_test.user)-[e:FRIENDS*2..2]-(b:Transpile_test.user)\nRETURN b.name, b.id\nLIMIT 3", out)
}

func TestRenderDataframeChainedCalls(t *testing.T) {
	ctx := context.Background()
	q := plan.NewQuery("transpile_test.Widget", 1, 2, 3)
	where, err := q.Where("price > 5")
	require.NoError(t, err)
	taken := where.Take(2).Project("id")

	out, err := RenderDataframe(ctx, NewDataframeBuilder(config.Config{}), taken.Node)
	require.NoError(t, err)
	assert.Equal(t, `df.filter(pl.col("price") > 5).limit(2).select(["id"])`, out)
}

func TestRenderDataframeStrictModeErrorsOnUnsupportedOp(t *testing.T) {
	ctx := context.Background()
	q := plan.NewQuery("transpile_test.Widget", 1).Nest("wrapped")

	_, err := RenderDataframe(ctx, NewDataframeBuilder(config.Config{StrictMode: true}), q.Node)
	assert.Error(t, err)
}
