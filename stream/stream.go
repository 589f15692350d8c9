// Package stream provides the async stream primitives described in
// spec.md §4.5/§9: map, filter, limit/skip, tee, zip, batched-async-map,
// k-way merge, and contiguous grouping. Go has no native async generator,
// so a Stream[T] here plays the role of Python's AsyncGenerator: the
// Next method is the single suspension point, mirroring the teacher's own
// sql.RowIter.Next(ctx) (Row, error) / io.EOF convention exactly (see
// sql/plan/common_test.go's collectRows in the teacher).
package stream

import (
	"context"
	"fmt"
	"io"
	"sort"
)

// Stream is a possibly-lazy, possibly-concurrent sequence of T. Next
// returns io.EOF when exhausted, matching the teacher's sql.RowIter
// contract so the rest of the engine can reuse the same "loop until EOF"
// idiom everywhere.
type Stream[T any] interface {
	Next(ctx context.Context) (T, error)
}

// Func adapts a plain function into a Stream.
type Func[T any] func(ctx context.Context) (T, error)

// Next implements Stream.
func (f Func[T]) Next(ctx context.Context) (T, error) { return f(ctx) }

// FromSlice returns a Stream that yields each element of s in order, then
// io.EOF.
func FromSlice[T any](s []T) Stream[T] {
	i := 0
	return Func[T](func(ctx context.Context) (T, error) {
		var zero T
		if i >= len(s) {
			return zero, io.EOF
		}
		v := s[i]
		i++
		return v, nil
	})
}

// Collect drains in, returning every item it yields before io.EOF.
func Collect[T any](ctx context.Context, in Stream[T]) ([]T, error) {
	var out []T
	for {
		v, err := in.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// Map applies f to every item of in, stopping at the first error (other
// than io.EOF, which propagates as end-of-stream).
func Map[T, U any](in Stream[T], f func(T) (U, error)) Stream[U] {
	return Func[U](func(ctx context.Context) (U, error) {
		var zero U
		v, err := in.Next(ctx)
		if err != nil {
			return zero, err
		}
		return f(v)
	})
}

// Filter yields only items for which pred returns true.
func Filter[T any](in Stream[T], pred func(T) (bool, error)) Stream[T] {
	return Func[T](func(ctx context.Context) (T, error) {
		var zero T
		for {
			v, err := in.Next(ctx)
			if err != nil {
				return zero, err
			}
			ok, err := pred(v)
			if err != nil {
				return zero, err
			}
			if ok {
				return v, nil
			}
		}
	})
}

// Take yields at most n items from in (the TAKE operator, spec.md §4.5).
func Take[T any](in Stream[T], n int) Stream[T] {
	remaining := n
	return Func[T](func(ctx context.Context) (T, error) {
		var zero T
		if remaining <= 0 {
			return zero, io.EOF
		}
		v, err := in.Next(ctx)
		if err != nil {
			return zero, err
		}
		remaining--
		return v, nil
	})
}

// Skip drops the first n items of in (the SKIP operator, spec.md §4.5).
func Skip[T any](in Stream[T], n int) Stream[T] {
	toSkip := n
	return Func[T](func(ctx context.Context) (T, error) {
		for toSkip > 0 {
			_, err := in.Next(ctx)
			if err != nil {
				var zero T
				return zero, err
			}
			toSkip--
		}
		return in.Next(ctx)
	})
}

// teeItem carries a value or the terminal error for one branch of Tee.
type teeItem[T any] struct {
	v   T
	err error
}

// Tee fans a single stream out into count independent branches, each
// receiving every item of in in order. Cancelling ctx (closing the
// top-level stream per spec.md §5) stops the draining goroutine and lets
// all branch channels close.
func Tee[T any](ctx context.Context, in Stream[T], count int, queueDepth int) []Stream[T] {
	chans := make([]chan teeItem[T], count)
	for i := range chans {
		chans[i] = make(chan teeItem[T], queueDepth)
	}

	go func() {
		defer func() {
			for _, ch := range chans {
				close(ch)
			}
		}()
		for {
			v, err := in.Next(ctx)
			item := teeItem[T]{v: v, err: err}
			done := err != nil
			for _, ch := range chans {
				select {
				case ch <- item:
				case <-ctx.Done():
					return
				}
			}
			if done {
				return
			}
		}
	}()

	out := make([]Stream[T], count)
	for i, ch := range chans {
		ch := ch
		out[i] = Func[T](func(ctx context.Context) (T, error) {
			var zero T
			select {
			case item, ok := <-ch:
				if !ok {
					return zero, io.EOF
				}
				return item.v, item.err
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		})
	}
	return out
}

// Pair is the result element type of Zip.
type Pair[T, U any] struct {
	A T
	B U
}

// Zip pairs up items from a and b positionally, stopping as soon as
// either side is exhausted or errors (used to stitch an EDGE's unbound
// result stream back onto its parent stream, spec.md §4.5).
func Zip[T, U any](a Stream[T], b Stream[U]) Stream[Pair[T, U]] {
	return Func[Pair[T, U]](func(ctx context.Context) (Pair[T, U], error) {
		var zero Pair[T, U]
		av, err := a.Next(ctx)
		if err != nil {
			return zero, err
		}
		bv, err := b.Next(ctx)
		if err != nil {
			return zero, err
		}
		return Pair[T, U]{A: av, B: bv}, nil
	})
}

// BatchedMap issues up to batchSize concurrent calls to f per batch and
// preserves input order in its output, exactly the "batched-async-map"
// primitive in spec.md §5.
func BatchedMap[T, U any](in Stream[T], batchSize int, f func(context.Context, T) (U, error)) Stream[U] {
	if batchSize <= 0 {
		batchSize = 1
	}
	var pending []U
	pendingIdx := 0
	upstreamDone := false

	fillBatch := func(ctx context.Context) error {
		var batch []T
		for len(batch) < batchSize {
			v, err := in.Next(ctx)
			if err == io.EOF {
				upstreamDone = true
				break
			}
			if err != nil {
				return err
			}
			batch = append(batch, v)
		}
		if len(batch) == 0 {
			return nil
		}
		results := make([]U, len(batch))
		errs := make([]error, len(batch))
		done := make(chan int, len(batch))
		for i, item := range batch {
			i, item := i, item
			go func() {
				results[i], errs[i] = f(ctx, item)
				done <- i
			}()
		}
		for range batch {
			<-done
		}
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
		pending = results
		pendingIdx = 0
		return nil
	}

	return Func[U](func(ctx context.Context) (U, error) {
		var zero U
		for pendingIdx >= len(pending) {
			if upstreamDone {
				return zero, io.EOF
			}
			if err := fillBatch(ctx); err != nil {
				return zero, err
			}
			if len(pending) == 0 && upstreamDone {
				return zero, io.EOF
			}
		}
		v := pending[pendingIdx]
		pendingIdx++
		return v, nil
	})
}

// Identified is the minimal shape KWayMergeByDesc needs to order and
// deduplicate entities by id.
type Identified interface {
	ID() (int, bool)
}

// KWayMergeByDesc merge-sorts N already-sorted (descending by id) streams
// and deduplicates on id, matching UNION's semantics (spec.md §4.5/§5):
// "merge-sort distinct elements of N sorted inputs by :id ... yields items
// in descending-:id merge order, deduplicated."
func KWayMergeByDesc[T Identified](ctx context.Context, ins []Stream[T]) (Stream[T], error) {
	heads := make([]T, len(ins))
	has := make([]bool, len(ins))
	for i, in := range ins {
		v, err := in.Next(ctx)
		if err == nil {
			heads[i] = v
			has[i] = true
		} else if err != io.EOF {
			return nil, err
		}
	}
	lastID := (*int)(nil)

	advance := func(ctx context.Context) (T, error) {
		var zero T
		for {
			best := -1
			for i := range ins {
				if !has[i] {
					continue
				}
				id, ok := any(heads[i]).(Identified).ID()
				if !ok {
					continue
				}
				if best == -1 {
					best = i
					continue
				}
				bestID, _ := any(heads[best]).(Identified).ID()
				if id > bestID {
					best = i
				}
			}
			if best == -1 {
				return zero, io.EOF
			}
			result := heads[best]
			id, _ := any(result).(Identified).ID()
			v, err := ins[best].Next(ctx)
			if err == nil {
				heads[best] = v
				has[best] = true
			} else if err == io.EOF {
				has[best] = false
			} else {
				return zero, err
			}
			if lastID != nil && *lastID == id {
				continue // dedup on id
			}
			idCopy := id
			lastID = &idCopy
			return result, nil
		}
	}
	return Func[T](advance), nil
}

// Group is one (key, members) run yielded by GroupByContiguous.
type Group[T any] struct {
	Key     any
	Members []T
}

// GroupByContiguous groups contiguous runs of equal keys, matching
// GROUP_BY's documented construction (spec.md §4.5): the builder composes
// ORDER_BY with the same key first so groups are contiguous, then this
// emits (key, tuple(group)) pairs.
func GroupByContiguous[T any](ctx context.Context, in Stream[T], keyOf func(T) (any, error)) (Stream[Group[T]], error) {
	var pendingKey any
	var pendingVal T
	havePending := false
	done := false

	return Func[Group[T]](func(ctx context.Context) (Group[T], error) {
		var zero Group[T]
		if done && !havePending {
			return zero, io.EOF
		}
		var members []T
		var groupKey any
		if havePending {
			members = append(members, pendingVal)
			groupKey = pendingKey
			havePending = false
		}
		for {
			v, err := in.Next(ctx)
			if err == io.EOF {
				done = true
				break
			}
			if err != nil {
				return zero, err
			}
			k, err := keyOf(v)
			if err != nil {
				return zero, err
			}
			if len(members) == 0 {
				groupKey = k
				members = append(members, v)
				continue
			}
			if keyEqual(k, groupKey) {
				members = append(members, v)
				continue
			}
			pendingKey = k
			pendingVal = v
			havePending = true
			break
		}
		if len(members) == 0 {
			return zero, io.EOF
		}
		return Group[T]{Key: groupKey, Members: members}, nil
	}), nil
}

// sortItem pairs a materialized value with its computed key and original
// position, so SortBy can tie-break stably on position the way a min-heap
// keyed on (key, position) does (spec.md §4.5: "sort by key using a
// min-heap tie-break on position").
type sortItem[T any] struct {
	key any
	pos int
	val T
}

// SortBy materializes in, computes a key for every item via keyOf, and
// emits items ordered by that key with ties broken by original position —
// the ORDER_BY operator's semantics. less defines the key ordering.
func SortBy[T any](ctx context.Context, in Stream[T], keyOf func(T) (any, error), less func(a, b any) bool) (Stream[T], error) {
	vals, err := Collect(ctx, in)
	if err != nil {
		return nil, err
	}
	items := make([]sortItem[T], len(vals))
	for i, v := range vals {
		k, err := keyOf(v)
		if err != nil {
			return nil, err
		}
		items[i] = sortItem[T]{key: k, pos: i, val: v}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if less(items[i].key, items[j].key) {
			return true
		}
		if less(items[j].key, items[i].key) {
			return false
		}
		return items[i].pos < items[j].pos
	})
	return FromSlice(mapVals(items)), nil
}

func mapVals[T any](items []sortItem[T]) []T {
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = it.val
	}
	return out
}

// DefaultLess provides the natural ordering for keys produced by the
// predicate mini-language's field values: numeric comparison when both
// sides are Go numeric values (int, int32, int64, float32, float64), else
// lexicographic comparison of their fmt.Sprint text, so numeric strings
// compare as text.
func DefaultLess(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// keyEqual compares two group/order keys without requiring T to implement
// any particular interface; fmt.Sprint gives stable, if not maximally
// efficient, equality for the primitive types entity fields hold.
func keyEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
