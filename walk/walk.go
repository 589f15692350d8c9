// Package walk implements the lazy materialization layer described in
// spec.md §4.6/§6 and grounded on walk.py's materialize_walk /
// materialize_walk_obj / resolve_parallel_dict: turning a resolved
// entity graph into a plain, JSON-shaped tree, unwrapping
// resolver.PaginatedEdge into {edges, page_info}, and resolving any
// edges an entity was marked as wanting (entity.MarkVisited) but that
// the execution engine hasn't already filled in.
package walk

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/entityql/entityql/config"
	"github.com/entityql/entityql/entity"
	"github.com/entityql/entityql/plan"
	"github.com/entityql/entityql/resolver"
	"github.com/entityql/entityql/stream"
)

// Walker materializes entity trees, batching any outstanding lazy edge
// resolution per spec.md §5's "batched-async-map" primitive.
type Walker struct {
	cfg config.Config
}

// New builds a Walker.
func New(cfg config.Config) *Walker {
	return &Walker{cfg: cfg}
}

// MaterializeWalk runs MaterializeWalkObj over every item, preserving
// order (the Go analogue of walk.py's materialize_walk over an async
// iterable).
func (w *Walker) MaterializeWalk(ctx context.Context, items []*entity.Entity, entityType string) ([]*entity.Entity, error) {
	out := make([]*entity.Entity, len(items))
	for i, e := range items {
		m, err := w.MaterializeWalkObj(ctx, e, entityType)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// MaterializeWalkObj recursively materializes one entity: nested
// entities and edge slices are walked in turn, resolver.PaginatedEdge
// values are unwrapped into {edges, page_info}, and any edge names
// recorded via MarkVisited but not already present as a key are resolved
// now against entityType's registered resolver. entityType may be ""
// when the caller doesn't know (or care about) the class of nested
// entities; lazy resolution is then skipped for those, since there is no
// way to find their declared edges.
func (w *Walker) MaterializeWalkObj(ctx context.Context, e *entity.Entity, entityType string) (*entity.Entity, error) {
	if e == nil {
		return nil, nil
	}
	out := entity.New()
	for _, k := range e.Keys() {
		v, _ := e.Get(k)
		mv, err := w.materializeValue(ctx, v)
		if err != nil {
			return nil, err
		}
		out.Set(k, mv)
	}
	if entityType != "" {
		if err := w.resolvePending(ctx, e, out, entityType); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (w *Walker) materializeValue(ctx context.Context, v any) (any, error) {
	switch t := v.(type) {
	case *entity.Entity:
		return w.MaterializeWalkObj(ctx, t, "")
	case []*entity.Entity:
		out := make([]any, len(t))
		for i, it := range t {
			mv, err := w.MaterializeWalkObj(ctx, it, "")
			if err != nil {
				return nil, err
			}
			out[i] = mv
		}
		return out, nil
	case resolver.PaginatedEdge:
		return w.materializePaginated(ctx, t)
	default:
		return v, nil
	}
}

// materializePaginated is the PaginatedEdge unwrap spec.md §4.6 names
// explicitly: "{edges, page_info}".
func (w *Walker) materializePaginated(ctx context.Context, p resolver.PaginatedEdge) (*entity.Entity, error) {
	edges := make([]any, len(p.Edges))
	for i, e := range p.Edges {
		mv, err := w.MaterializeWalkObj(ctx, e, "")
		if err != nil {
			return nil, err
		}
		edges[i] = mv
	}
	out := entity.New()
	out.Set("edges", edges)
	info := entity.New()
	info.Set("has_next_page", p.PageInfo.HasNextPage)
	info.Set("end_cursor", p.PageInfo.EndCursor)
	out.Set("page_info", info)
	return out, nil
}

// resolvePending fills in any edge named in src.VisitedEdges() that
// isn't already a key on out, dispatching one resolver call per pending
// edge name concurrently (spec.md §5), and logging+skipping individual
// failures exactly as a ResolverError is handled elsewhere (spec.md §7).
func (w *Walker) resolvePending(ctx context.Context, src, out *entity.Entity, entityType string) error {
	var names []string
	for _, name := range src.VisitedEdges() {
		if _, ok := out.Get(name); !ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	r, ok := plan.ResolverFor(entityType)
	if !ok {
		return nil
	}
	descs := r.Edges()

	jobs := stream.FromSlice(names)
	resolved := stream.BatchedMap(jobs, w.cfg.BatchSize, func(ctx context.Context, name string) (stream.Pair[string, []*entity.Entity], error) {
		desc, ok := descs[name]
		if !ok {
			return stream.Pair[string, []*entity.Entity]{A: name}, nil
		}
		var results []*entity.Entity
		err := desc.Func(ctx, src, nil, func(t *entity.Entity) error {
			results = append(results, t)
			return nil
		})
		if err != nil {
			logrus.WithError(err).WithField("edge", name).Warn("lazy edge resolution failed, dropping")
			return stream.Pair[string, []*entity.Entity]{A: name}, nil
		}
		return stream.Pair[string, []*entity.Entity]{A: name, B: results}, nil
	})

	items, err := stream.Collect(ctx, resolved)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.B == nil {
			continue
		}
		materialized := make([]any, len(it.B))
		for i, e := range it.B {
			mv, err := w.MaterializeWalkObj(ctx, e, "")
			if err != nil {
				return err
			}
			materialized[i] = mv
		}
		out.Set(it.A, materialized)
	}
	return nil
}
