package walk

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

type walkResolver struct{}

func (walkResolver) EntityType() string { return "walk_test.Thing" }

func (walkResolver) ResolveObj(ctx context.Context, id int) (*entity.Entity, error) {
	e := entity.New()
	e.Set("id", id)
	return e, nil
}

func (walkResolver) Edges() map[string]resolver.EdgeDescriptor {
	return map[string]resolver.EdgeDescriptor{
		"tags": {TargetType: "walk_test.Thing", Func: func(ctx context.Context, src *entity.Entity, edgeCtx resolver.EdgeContext, emit func(*entity.Entity) error) error {
			id, _ := src.ID()
			for _, n := range []int{id + 100, id + 200} {
				t := entity.New()
				t.Set("id", n)
				if err := emit(t); err != nil {
					return err
				}
			}
			return nil
		}},
	}
}

func init() {
	plan.RegisterEntityClass("walk_test.Thing", walkResolver{})
}

func testCfg() config.Config {
	return config.Config{BatchSize: 4}
}

func TestMaterializeWalkObjResolvesPendingEdge(t *testing.T) {
	ctx := context.Background()
	w := New(testCfg())

	e := entity.New()
	e.Set("id", 1)
	e.MarkVisited("tags")

	out, err := w.MaterializeWalkObj(ctx, e, "walk_test.Thing")
	require.NoError(t, err)

	v, ok := out.Get("tags")
	require.True(t, ok)
	tags, ok := v.([]any)
	require.True(t, ok)
	require.Len(t, tags, 2)

	first, ok := tags[0].(*entity.Entity)
	require.True(t, ok)
	id, ok := first.ID()
	require.True(t, ok)
	assert.Equal(t, 101, id)
}

func TestMaterializeWalkObjSkipsAlreadyPresentEdge(t *testing.T) {
	ctx := context.Background()
	w := New(testCfg())

	e := entity.New()
	e.Set("id", 1)
	child := entity.New()
	child.Set("id", 42)
	e.Set("tags", []*entity.Entity{child})
	e.MarkVisited("tags")

	out, err := w.MaterializeWalkObj(ctx, e, "walk_test.Thing")
	require.NoError(t, err)

	v, ok := out.Get("tags")
	require.True(t, ok)
	tags, ok := v.([]any)
	require.True(t, ok)
	require.Len(t, tags, 1)
}

func TestMaterializeWalkObjUnwrapsPaginatedEdge(t *testing.T) {
	ctx := context.Background()
	w := New(testCfg())

	item := entity.New()
	item.Set("id", 7)

	e := entity.New()
	e.Set("id", 1)
	e.Set("conn", resolver.PaginatedEdge{
		Edges:    []*entity.Entity{item},
		PageInfo: resolver.PageInfo{HasNextPage: true, EndCursor: "cursor-1"},
	})

	out, err := w.MaterializeWalkObj(ctx, e, "")
	require.NoError(t, err)

	v, ok := out.Get("conn")
	require.True(t, ok)
	conn, ok := v.(*entity.Entity)
	require.True(t, ok)

	edgesVal, ok := conn.Get("edges")
	require.True(t, ok)
	edges, ok := edgesVal.([]any)
	require.True(t, ok)
	require.Len(t, edges, 1)

	pageInfoVal, ok := conn.Get("page_info")
	require.True(t, ok)
	pageInfo, ok := pageInfoVal.(*entity.Entity)
	require.True(t, ok)
	hasNext, ok := pageInfo.Get("has_next_page")
	require.True(t, ok)
	assert.Equal(t, true, hasNext)
	cursor, ok := pageInfo.Get("end_cursor")
	require.True(t, ok)
	assert.Equal(t, "cursor-1", cursor)
}

func TestMaterializeWalkPreservesOrder(t *testing.T) {
	ctx := context.Background()
	w := New(testCfg())

	var items []*entity.Entity
	for _, id := range []int{5, 3, 9} {
		e := entity.New()
		e.Set("id", id)
		items = append(items, e)
	}

	out, err := w.MaterializeWalk(ctx, items, "")
	require.NoError(t, err)
	require.Len(t, out, 3)

	var ids []int
	for _, e := range out {
		id, _ := e.ID()
		ids = append(ids, id)
	}
	assert.Equal(t, []int{5, 3, 9}, ids)
}

func TestMaterializeWalkObjNilEntity(t *testing.T) {
	ctx := context.Background()
	w := New(testCfg())
	out, err := w.MaterializeWalkObj(ctx, nil, "")
	require.NoError(t, err)
	assert.Nil(t, out)
}
