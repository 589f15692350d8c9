// Package predicate implements the minimal three-token mini-language used
// by WHERE/ORDER_BY/GROUP_BY (spec.md §4.3): "<lhs> <op> <rhs>" for where,
// "<lhs>" for order_by/group_by. Deliberately not a general expression
// evaluator — spec.md's Non-goals rule that out explicitly.
package predicate

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/hashstructure"
	"github.com/spf13/cast"

	"github.com/entityql/entityql/entity"
	qerrors "github.com/entityql/entityql/errors"
)

// Op is one of the six comparison operators spec.md §4.3 allows.
type Op string

const (
	GT Op = ">"
	LT Op = "<"
	GE Op = ">="
	LE Op = "<="
	EQ Op = "=="
	NE Op = "!="
)

// orderedOps must be checked longest-symbol-first so ">=" isn't split as
// ">" followed by a stray "=".
var orderedOps = []Op{GE, LE, EQ, NE, GT, LT}

// Cmp is a compiled comparison: a field reference, an operator, and a
// literal right-hand side, exactly the "CmpOp(field, op, literal) struct"
// design note in spec.md §9.
type Cmp struct {
	Entity string // optional "entity." qualifier on the lhs; "" if bare field name
	Field  string
	Op     Op
	Value  any
}

// Key is a compiled order_by/group_by key reference. IsAsync is set when
// the key expression contains "async", the original's naming-convention
// marker (spec.md §4.3). The key is still read as a plain field value;
// IsAsync only lets the execution visitor reject the key when
// config.AllowAsyncOrderKeys is false.
type Key struct {
	Entity  string
	Field   string
	IsAsync bool
}

type cacheEntry struct {
	cmp *Cmp
	key *Key
	err error
}

var (
	cacheMu sync.Mutex
	cache   = map[uint64]cacheEntry{}
)

func memoKey(kind, expr string) uint64 {
	h, err := hashstructure.Hash(struct{ K, E string }{kind, expr}, nil)
	if err != nil {
		// Hashing a two-string struct cannot fail; fall back to 0 so
		// memoization degrades to "always recompute" rather than panicking.
		return 0
	}
	return h
}

// ParseWhere parses a "<lhs> <op> <rhs>" expression for use by WHERE.
// Parsing happens at IR construction time (spec.md §4.3's "Failure mode");
// a malformed expression returns ErrMalformedExpression immediately.
func ParseWhere(expr string) (*Cmp, error) {
	k := memoKey("where", expr)
	cacheMu.Lock()
	if e, ok := cache[k]; ok {
		cacheMu.Unlock()
		if e.err != nil || e.cmp == nil {
			return parseWhereUncached(expr)
		}
		return e.cmp, nil
	}
	cacheMu.Unlock()

	cmp, err := parseWhereUncached(expr)
	cacheMu.Lock()
	cache[k] = cacheEntry{cmp: cmp, err: err}
	cacheMu.Unlock()
	return cmp, err
}

func parseWhereUncached(expr string) (*Cmp, error) {
	trimmed := strings.TrimSpace(expr)
	var op Op
	var opIdx int = -1
	for _, candidate := range orderedOps {
		if idx := strings.Index(trimmed, " "+string(candidate)+" "); idx >= 0 {
			op = candidate
			opIdx = idx
			break
		}
	}
	if opIdx < 0 {
		return nil, qerrors.ErrMalformedExpression.New(expr, "no comparison operator found")
	}
	lhs := strings.TrimSpace(trimmed[:opIdx])
	rhs := strings.TrimSpace(trimmed[opIdx+len(op)+2:])
	if lhs == "" || rhs == "" {
		return nil, qerrors.ErrMalformedExpression.New(expr, "empty operand")
	}
	entityAlias, field := splitLHS(lhs)
	value, err := ParseLiteral(rhs)
	if err != nil {
		return nil, qerrors.ErrMalformedExpression.New(expr, err.Error())
	}
	return &Cmp{Entity: entityAlias, Field: field, Op: op, Value: value}, nil
}

// ParseKey parses a bare "<lhs>" expression for use by ORDER_BY/GROUP_BY.
func ParseKey(expr string) (*Key, error) {
	k := memoKey("key", expr)
	cacheMu.Lock()
	if e, ok := cache[k]; ok {
		cacheMu.Unlock()
		if e.err == nil && e.key != nil {
			return e.key, nil
		}
	} else {
		cacheMu.Unlock()
	}

	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		err := qerrors.ErrMalformedExpression.New(expr, "empty key expression")
		cacheMu.Lock()
		cache[k] = cacheEntry{err: err}
		cacheMu.Unlock()
		return nil, err
	}
	entityAlias, field := splitLHS(trimmed)
	key := &Key{Entity: entityAlias, Field: field, IsAsync: strings.Contains(trimmed, "async")}
	cacheMu.Lock()
	cache[k] = cacheEntry{key: key}
	cacheMu.Unlock()
	return key, nil
}

// splitLHS splits "entity.field" into ("entity", "field"), or returns
// ("", field) for a bare field name, per spec.md §4.3.
func splitLHS(lhs string) (string, string) {
	if idx := strings.Index(lhs, "."); idx >= 0 {
		return lhs[:idx], lhs[idx+1:]
	}
	return "", lhs
}

// ParseLiteral is the "safe literal evaluator" spec.md §4.3 requires:
// numbers, strings, booleans, None, tuples, lists — no function calls.
func ParseLiteral(s string) (any, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "None" || s == "none" || s == "null" || s == "nil":
		return nil, nil
	case s == "True" || s == "true":
		return true, nil
	case s == "False" || s == "false":
		return false, nil
	case strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"") && len(s) >= 2:
		return s[1 : len(s)-1], nil
	case strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 2:
		return s[1 : len(s)-1], nil
	case (strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")) ||
		(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")):
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return []any{}, nil
		}
		parts := strings.Split(inner, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			v, err := ParseLiteral(strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(i), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return nil, fmt.Errorf("unparseable literal %q", s)
}

// Compile produces a host-language predicate from a parsed Cmp, per
// spec.md §4.3 ("compiled to a host-language predicate for execution").
// Field values of differing concrete numeric types are coerced via
// spf13/cast rather than a hand-rolled type switch, so "age >= 16"
// compares correctly whether age is stored as int, int32, or float64.
func (c *Cmp) Compile() func(e *entity.Entity) (bool, error) {
	return func(e *entity.Entity) (bool, error) {
		fv, ok := e.Get(c.Field)
		if !ok {
			return false, nil
		}
		cmp, err := compare(fv, c.Value)
		if err != nil {
			return false, qerrors.ErrKeyFunctionError.New(err.Error())
		}
		switch c.Op {
		case GT:
			return cmp > 0, nil
		case LT:
			return cmp < 0, nil
		case GE:
			return cmp >= 0, nil
		case LE:
			return cmp <= 0, nil
		case EQ:
			return cmp == 0, nil
		case NE:
			return cmp != 0, nil
		default:
			return false, qerrors.ErrUnknownOperator.New(string(c.Op))
		}
	}
}

// compare returns <0, 0, >0 comparing a against b, coercing through
// spf13/cast so numeric/string literals compare against whatever concrete
// type the resolver populated the field with.
func compare(a, b any) (int, error) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, nil
		}
		return -1, nil
	}
	if as, err := cast.ToStringE(a); err == nil {
		if bs, err2 := cast.ToStringE(b); err2 == nil {
			if af, errA := cast.ToFloat64E(a); errA == nil {
				if bf, errB := cast.ToFloat64E(b); errB == nil {
					return compareFloat(af, bf), nil
				}
			}
			return strings.Compare(as, bs), nil
		}
	}
	af, errA := cast.ToFloat64E(a)
	bf, errB := cast.ToFloat64E(b)
	if errA != nil || errB != nil {
		return 0, fmt.Errorf("cannot compare %v (%T) with %v (%T)", a, a, b, b)
	}
	return compareFloat(af, bf), nil
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// FieldOf returns the field this key reads from e, for use by the
// synchronous order_by/group_by path.
func (k *Key) FieldOf(e *entity.Entity) (any, bool) {
	return e.Get(k.Field)
}
