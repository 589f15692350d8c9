// Package entity implements the record model described in spec.md §3/§4.1:
// an ordered string-keyed map with two distinguished keys, ":id" and
// ":type", plus a private set of edge names that have been requested but
// not yet expanded.
package entity

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/minio/highwayhash"
)

// IDKey and TypeKey are the distinguished map keys described in spec.md §3.
const (
	IDKey   = ":id"
	TypeKey = ":type"
)

// hashKey is a fixed 32-byte HighwayHash key. Entity hashing is used for
// set/map membership, not for anything security sensitive, so a constant
// key is sufficient and keeps hashes stable across runs.
var hashKey = [32]byte{
	'e', 'n', 't', 'i', 't', 'y', 'q', 'l',
	'.', 'h', 'a', 's', 'h', '.', 'k', 'e',
	'y', '.', 'v', '1', 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
}

// Entity is an ordered key->value map. Two entities with the same :id
// compare equal regardless of their other contents; an entity with no :id
// falls back to full structural equality on its map contents.
type Entity struct {
	keys   []string
	values map[string]any

	// visitedEdges is the set of edge names recorded via MarkVisited (the
	// execution engine marks an edge on an entity after nesting its
	// results there). It is deliberately not part of values/keys: writing
	// it never publishes a map key, per spec.md §4.1.
	visitedEdges map[string]struct{}
}

// New builds an empty Entity; callers add keys with Set, which records
// them in insertion order.
func New() *Entity {
	return &Entity{values: map[string]any{}}
}

// FromMap builds an Entity from a plain map, using Go's (randomized) map
// iteration order only as a fallback — callers that care about ordering
// should build via repeated Set calls instead.
func FromMap(m map[string]any) *Entity {
	e := New()
	for k, v := range m {
		e.Set(k, v)
	}
	return e
}

// Set assigns a value under key, appending key to the insertion order the
// first time it's written. Assigning under the bare "id"/"type" aliases
// transparently rewrites to the distinguished :id/:type keys, matching
// view_model.py's ViewModel.__setattr__ collapsing behavior.
func (e *Entity) Set(key string, value any) {
	switch key {
	case "id":
		key = IDKey
	case "type":
		key = TypeKey
	}
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	if e.values == nil {
		e.values = map[string]any{}
	}
	e.values[key] = value
}

// Get returns the value stored under key and whether it was present.
func (e *Entity) Get(key string) (any, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Delete removes key from the entity, preserving the order of the
// remaining keys.
func (e *Entity) Delete(key string) {
	if _, ok := e.values[key]; !ok {
		return
	}
	delete(e.values, key)
	for i, k := range e.keys {
		if k == key {
			e.keys = append(e.keys[:i], e.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (e *Entity) Keys() []string {
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

// Len returns the number of keys.
func (e *Entity) Len() int { return len(e.keys) }

// ID returns the distinguished :id value and whether it is present.
func (e *Entity) ID() (int, bool) {
	v, ok := e.values[IDKey]
	if !ok {
		return 0, false
	}
	switch id := v.(type) {
	case int:
		return id, true
	case int32:
		return int(id), true
	case int64:
		return int(id), true
	default:
		return 0, false
	}
}

// Type returns the distinguished :type tag and whether it is present.
func (e *Entity) Type() (int, bool) {
	v, ok := e.values[TypeKey]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	default:
		return 0, false
	}
}

// VisitedEdges returns every edge name recorded via MarkVisited, in no
// particular order. walk.MaterializeWalkObj resolves those among them that
// are not already present as keys.
func (e *Entity) VisitedEdges() []string {
	out := make([]string, 0, len(e.visitedEdges))
	for k := range e.visitedEdges {
		out = append(out, k)
	}
	return out
}

// MarkVisited records that edgeName was requested on this entity. It does
// not publish a map key, matching spec.md §4.1.
func (e *Entity) MarkVisited(edgeName string) {
	if e.visitedEdges == nil {
		e.visitedEdges = map[string]struct{}{}
	}
	e.visitedEdges[edgeName] = struct{}{}
}

// IsVisited reports whether edgeName was previously marked via MarkVisited.
func (e *Entity) IsVisited(edgeName string) bool {
	_, ok := e.visitedEdges[edgeName]
	return ok
}

// Equal implements the equality rule in spec.md §4.1: identified entities
// compare by :id, otherwise by full map contents.
func (e *Entity) Equal(other *Entity) bool {
	if other == nil {
		return false
	}
	id1, ok1 := e.ID()
	id2, ok2 := other.ID()
	if ok1 && ok2 {
		return id1 == id2
	}
	if ok1 != ok2 {
		return false
	}
	if len(e.keys) != len(other.keys) {
		return false
	}
	for _, k := range e.keys {
		v1, _ := e.values[k]
		v2, ok := other.values[k]
		if !ok || fmt.Sprint(v1) != fmt.Sprint(v2) {
			return false
		}
	}
	return true
}

// Less implements ordering, which spec.md §3 defines only when both sides
// carry :id.
func (e *Entity) Less(other *Entity) (bool, bool) {
	id1, ok1 := e.ID()
	id2, ok2 := other.ID()
	if !ok1 || !ok2 {
		return false, false
	}
	return id1 < id2, true
}

// Hash returns a stable hash: the :id when present, else a 64-bit
// HighwayHash digest of the entity's canonical (key-ordered) serialization. This backs
// set/map membership for entities that aren't "identified" per spec.md
// §4.1.
func (e *Entity) Hash() uint64 {
	if id, ok := e.ID(); ok {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		return binary.LittleEndian.Uint64(buf[:])
	}
	h, err := highwayhash.New64(hashKey[:])
	if err != nil {
		panic(err) // only fails if the key is the wrong length, which is a programmer error
	}
	for _, k := range e.keys {
		fmt.Fprintf(h, "%s=%v;", k, e.values[k])
	}
	return h.Sum64()
}

// Project returns a new Entity containing only the requested keys, in the
// requested order — the semantics PROJECT uses at execution time.
func (e *Entity) Project(keys []string) *Entity {
	out := New()
	for _, k := range keys {
		if v, ok := e.values[k]; ok {
			out.Set(k, v)
		} else {
			out.Set(k, nil)
		}
	}
	return out
}

// Rename returns a new Entity with key old renamed to new, preserving
// insertion order (LET's semantics).
func (e *Entity) Rename(old, new string) *Entity {
	out := New()
	for _, k := range e.keys {
		target := k
		if k == old {
			target = new
		}
		out.Set(target, e.values[k])
	}
	return out
}

// MarshalJSON emits keys in insertion order, as spec.md §4.1 requires for
// deterministic projection/JSON output.
func (e *Entity) MarshalJSON() ([]byte, error) {
	var buf []byte
	buf = append(buf, '{')
	for i, k := range e.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(e.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// ToMap returns a copy of the underlying map, discarding order. Useful at
// API boundaries that don't care about key order (e.g. hashing, testing).
func (e *Entity) ToMap() map[string]any {
	out := make(map[string]any, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}
