package stream

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idInt int

func (i idInt) ID() (int, bool) { return int(i), true }

func TestMapFilterTakeSkip(t *testing.T) {
	ctx := context.Background()
	in := FromSlice([]int{1, 2, 3, 4, 5})
	doubled := Map(in, func(v int) (int, error) { return v * 2, nil })
	evens := Filter(doubled, func(v int) (bool, error) { return v%4 == 0, nil })
	skipped := Skip(evens, 1)
	taken := Take(skipped, 1)

	got, err := Collect(ctx, taken)
	require.NoError(t, err)
	assert.Equal(t, []int{8}, got)
}

func TestCollectPropagatesError(t *testing.T) {
	ctx := context.Background()
	boom := Func[int](func(ctx context.Context) (int, error) { return 0, assert.AnError })
	_, err := Collect(ctx, boom)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestTeeFansOutInOrder(t *testing.T) {
	ctx := context.Background()
	in := FromSlice([]int{1, 2, 3})
	branches := Tee(ctx, in, 2, 4)
	require.Len(t, branches, 2)

	a, err := Collect(ctx, branches[0])
	require.NoError(t, err)
	b, err := Collect(ctx, branches[1])
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, a)
	assert.Equal(t, []int{1, 2, 3}, b)
}

func TestBatchedMapPreservesOrder(t *testing.T) {
	ctx := context.Background()
	in := FromSlice([]int{1, 2, 3, 4, 5, 6, 7})
	out := BatchedMap(in, 3, func(ctx context.Context, v int) (int, error) { return v * v, nil })
	got, err := Collect(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49}, got)
}

func TestKWayMergeByDescDedupes(t *testing.T) {
	ctx := context.Background()
	a := FromSlice([]idInt{9, 5, 3})
	b := FromSlice([]idInt{9, 6, 1})
	merged, err := KWayMergeByDesc(ctx, []Stream[idInt]{a, b})
	require.NoError(t, err)
	got, err := Collect(ctx, merged)
	require.NoError(t, err)
	assert.Equal(t, []idInt{9, 6, 5, 3, 1}, got)
}

func TestGroupByContiguous(t *testing.T) {
	ctx := context.Background()
	in := FromSlice([]int{1, 1, 2, 2, 2, 3})
	groups, err := GroupByContiguous(ctx, in, func(v int) (any, error) { return v, nil })
	require.NoError(t, err)
	got, err := Collect(ctx, groups)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 1}, got[0].Members)
	assert.Equal(t, []int{2, 2, 2}, got[1].Members)
	assert.Equal(t, []int{3}, got[2].Members)
}

func TestSortByStableTieBreak(t *testing.T) {
	ctx := context.Background()
	in := FromSlice([]int{3, 1, 2, 1})
	sorted, err := SortBy(ctx, in, func(v int) (any, error) { return v, nil }, DefaultLess)
	require.NoError(t, err)
	got, err := Collect(ctx, sorted)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 3}, got)
}

func TestFromSliceEOF(t *testing.T) {
	ctx := context.Background()
	s := FromSlice([]int{})
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}
