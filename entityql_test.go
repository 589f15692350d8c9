package entityql_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityql/entityql"
	"github.com/entityql/entityql/entity"
	"github.com/entityql/entityql/resolver"
)

// mockUserResolver is grounded on original_source/fquery/mock_user.py's
// MockUser/UserQuery: ResolveObj synthesizes a deterministic user record
// from its id, and the "friends" edge fans out to three synthesized ids
// derived from the source id (3*id, 3*id+1, 3*id+2).
type mockUserResolver struct{}

func (mockUserResolver) EntityType() string { return "User" }

func (mockUserResolver) ResolveObj(ctx context.Context, id int) (*entity.Entity, error) {
	e := entity.New()
	e.Set("id", id)
	e.Set("name", fmt.Sprintf("id%d", id))
	e.Set("age", 16+id%3)
	return e, nil
}

func (r mockUserResolver) Edges() map[string]resolver.EdgeDescriptor {
	return map[string]resolver.EdgeDescriptor{
		"friends": {
			TargetType: "User",
			Func: func(ctx context.Context, src *entity.Entity, edgeCtx resolver.EdgeContext, emit func(*entity.Entity) error) error {
				id, _ := src.ID()
				for m := 3 * id; m < 3*id+3; m++ {
					friend, err := r.ResolveObj(ctx, m)
					if err != nil {
						return err
					}
					if err := emit(friend); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

func init() {
	entityql.RegisterEntityClass("User", mockUserResolver{})
}

func TestSendProjectWhereTake(t *testing.T) {
	eng := entityql.NewDefault()
	q := entityql.NewQuery("User", 1, 2, 3, 4, 5)
	q, err := q.Where("age >= 17")
	require.NoError(t, err)
	q = q.Project("id", "name").Take(2)

	items, count, err := eng.Send(context.Background(), q)
	require.NoError(t, err)
	assert.Nil(t, count)
	assert.LessOrEqual(t, len(items), 2)
	for _, it := range items {
		age, ok := it.Get("age")
		_ = age
		assert.False(t, ok) // projected away
	}
}

func TestSendCount(t *testing.T) {
	eng := entityql.NewDefault()
	q := entityql.NewQuery("User", 1, 2, 3)
	q = q.Count()

	items, count, err := eng.Send(context.Background(), q)
	require.NoError(t, err)
	assert.Nil(t, items)
	require.NotNil(t, count)
	assert.Equal(t, 3, *count)
}

func TestSendEdgeAndParent(t *testing.T) {
	eng := entityql.NewDefault()
	q := entityql.NewQuery("User", 1)
	friends, err := q.Edge("friends", nil)
	require.NoError(t, err)
	back := friends.Take(3).Parent()

	items, _, err := eng.Send(context.Background(), back)
	require.NoError(t, err)
	require.Len(t, items, 1)
	friendsVal, ok := items[0].Get("friends")
	require.True(t, ok)
	friendList, ok := friendsVal.([]any)
	require.True(t, ok)
	assert.Len(t, friendList, 3)
}

func TestToSQL(t *testing.T) {
	eng := entityql.NewDefault()
	q := entityql.NewQuery("User", 1, 2)
	q, err := q.Where("age > 16")
	require.NoError(t, err)
	q, err = q.OrderBy("name")
	require.NoError(t, err)
	q = q.Project("id", "name").Take(10)

	sql, err := eng.ToSQL(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "name" FROM "user" WHERE age > 16 ORDER BY name LIMIT 10`, sql)
}

func TestToCypherCollapsesRepeatedEdgeHops(t *testing.T) {
	eng := entityql.NewDefault()
	q := entityql.NewQuery("User", 1)
	q, err := q.Edge("friends", nil)
	require.NoError(t, err)
	q, err = q.Edge("friends", nil)
	require.NoError(t, err)

	cypher, err := eng.ToCypher(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "MATCH (a:User)-[e:FRIENDS*2..2]-(b:User)\nRETURN b", cypher)
}

func TestToJSONWrapsBatchUnderNoneKey(t *testing.T) {
	eng := entityql.NewDefault()
	q := entityql.NewQuery("User", 1, 2, 3, 4, 5, 6, 7, 8, 9)
	q, err := q.Where("age >= 16")
	require.NoError(t, err)
	q = q.Project("name", ":id").Take(3)

	out, err := eng.ToJSON(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, `[{"None":[{"name":"id1",":id":1},{"name":"id2",":id":2},{"name":"id3",":id":3}]}]`, out)
}

func TestToJSONWrapsBatchUnderNestKey(t *testing.T) {
	eng := entityql.NewDefault()
	q := entityql.NewQuery("User", 1, 2, 3)
	q = q.Project("name", ":id").Nest("items")

	out, err := eng.ToJSON(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, `[{"items":[{"name":"id1",":id":1},{"name":"id2",":id":2},{"name":"id3",":id":3}]}]`, out)
}

func TestAsListStripsTheBatchWrapper(t *testing.T) {
	eng := entityql.NewDefault()
	q := entityql.NewQuery("User", 1, 2, 3)
	q, err := q.Where("age == 17")
	require.NoError(t, err)

	items, err := eng.AsList(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, items, 1)
	id, ok := items[0].ID()
	require.True(t, ok)
	assert.Equal(t, 1, id)
	age, ok := items[0].Get("age")
	require.True(t, ok)
	assert.Equal(t, 17, age)
}

func TestAsDictZipsBoundIDsWithResults(t *testing.T) {
	eng := entityql.NewDefault()
	q := entityql.NewQuery("User", 1, 2, 3)

	got, err := eng.AsDict(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 3)
	id, ok := got["2"].ID()
	require.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestDump(t *testing.T) {
	q := entityql.NewQuery("User", 1).Project("id").Take(5)
	s := entityql.Debug(context.Background(), q)
	assert.Contains(t, s, "LEAF (User)")
	assert.Contains(t, s, "TAKE 5")
}
