package plan

import (
	"sync"

	qerrors "github.com/entityql/entityql/errors"
	"github.com/entityql/entityql/resolver"
)

// registry replaces the Python @query class-decorator's implicit
// Query.ALL_QUERIES / CLASS_TO_QUERIES bookkeeping (query.py) with
// explicit registration, per SPEC_FULL.md §4's "entity-class registration
// API".
var (
	registryMu sync.RWMutex
	registry   = map[string]resolver.Resolver{}
)

// RegisterEntityClass binds an entity type name to the resolver that
// serves it. Call once per entity class at program startup, mirroring
// the teacher's own init-time table registration idiom (e.g.
// sql/information_schema's table map).
func RegisterEntityClass(name string, r resolver.Resolver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = r
}

// ResolverFor looks up the resolver registered for an entity type.
func ResolverFor(entityType string) (resolver.Resolver, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	r, ok := registry[entityType]
	return r, ok
}

// edgeTarget resolves the target entity type for edgeName declared on
// sourceType, or ErrInvalidQueryShape if the edge isn't declared
// (spec.md §4.4: edge binding is validated at construction time).
func edgeTarget(sourceType, edgeName string) (string, resolver.EdgeFunc, error) {
	r, ok := ResolverFor(sourceType)
	if !ok {
		return "", nil, qerrors.ErrInvalidQueryShape.New("no resolver registered for entity type " + sourceType)
	}
	desc, ok := r.Edges()[edgeName]
	if !ok {
		return "", nil, qerrors.ErrInvalidQueryShape.New("entity type " + sourceType + " has no edge " + edgeName)
	}
	return desc.TargetType, desc.Func, nil
}
