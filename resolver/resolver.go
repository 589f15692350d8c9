// Package resolver defines the contract the hosting application implements
// to fetch entities by id and to expand edges (spec.md §4.2/§6).
package resolver

import (
	"context"

	"github.com/entityql/entityql/entity"
)

// EdgeContext is the opaque pagination/filtering context a caller may pass
// to Query.Edge and that edge producers receive. It carries no required
// fields; applications define their own concrete type and type-assert it.
type EdgeContext any

// PageInfo describes pagination state for a PaginatedEdge result
// (spec.md §4.6's "An optional PaginatedEdge wrapper").
type PageInfo struct {
	HasNextPage bool
	EndCursor   string
}

// PaginatedEdge wraps a batch of edge results together with pagination
// metadata. The lazy walker unwraps it to {edges, page_info} when
// materializing (spec.md §4.6).
type PaginatedEdge struct {
	Edges    []*entity.Entity
	PageInfo PageInfo
}

// EdgeFunc is an asynchronous, lazy, restartable sequence producer for one
// declared edge (spec.md §4.2): given the source entity and an optional
// edge context, it yields zero or more related entities. "Restartable"
// means the same EdgeFunc may be invoked again for the same source entity
// and must reproduce the same sequence — callers must not assume a single
// consumption exhausts the relationship.
//
// EdgeFunc streams results by invoking emit for each related entity; it
// returns when exhausted or when ctx is cancelled. Returning a non-nil
// error aborts the edge expansion for that source entity, which the
// execution engine reports as a ResolverError (spec.md §7) for that one
// entity rather than failing the whole query.
type EdgeFunc func(ctx context.Context, src *entity.Entity, edgeCtx EdgeContext, emit func(*entity.Entity) error) error

// Resolver is implemented once per entity class by the hosting
// application. ResolveObj performs the batched seed-time lookup; Edges
// supplies the declared, typed edge producers keyed by edge name, with
// TargetType naming the entity class each edge resolves to (so the engine
// can bind edges statically per spec.md §4.4).
type Resolver interface {
	// EntityType returns the :type tag / class name this resolver serves.
	EntityType() string

	// ResolveObj fetches one entity by id, or (nil, nil) if it doesn't
	// exist. A non-nil error is a ResolverError (spec.md §7): the engine
	// logs it and treats the entity as absent rather than failing the
	// query.
	ResolveObj(ctx context.Context, id int) (*entity.Entity, error)

	// Edges returns the declared edges for this entity class.
	Edges() map[string]EdgeDescriptor
}

// EdgeDescriptor pairs an edge's producer function with the name of the
// entity class it targets, mirroring view_model.py's
// get_edges/get_return_type reflection contract (spec.md §6) without
// needing Go struct-tag reflection: the hosting application states the
// target type explicitly at registration time.
type EdgeDescriptor struct {
	TargetType string
	Func       EdgeFunc
}
