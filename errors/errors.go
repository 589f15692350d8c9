// Package errors defines the error kinds from spec.md §7, using the
// errors.Kind pattern the teacher's auth package uses for its own error
// taxonomy (auth.ErrNotAuthorized = errors.NewKind("not authorized")).
package errors

import goerrors "gopkg.in/src-d/go-errors.v1"

var (
	// ErrInvalidQueryShape is raised at IR construction time: a union over
	// zero subqueries, an edge name not declared on the target entity
	// class, or an unknown field in a projector.
	ErrInvalidQueryShape = goerrors.NewKind("invalid query shape: %s")

	// ErrResolverError wraps a resolver that threw or returned a value of
	// the wrong type. It is recovered locally: logged, then surfaced as a
	// nil entity that the lazy walker trims from materialized sequences.
	ErrResolverError = goerrors.NewKind("resolver error for id %v: %s")

	// ErrKeyFunctionError wraps a failure in a compiled predicate or a
	// compiled order_by/group_by key function. Unlike ErrResolverError,
	// this is fatal to the whole query.
	ErrKeyFunctionError = goerrors.NewKind("key function error: %s")

	// ErrTranspileUnsupported marks an IR operator a chosen dialect cannot
	// express (e.g. NEST in SQL). Transpilers may silently drop such
	// nodes in non-strict mode, but must never emit invalid output; in
	// config.StrictMode this is surfaced as a hard error instead.
	ErrTranspileUnsupported = goerrors.NewKind("%s cannot express operator %s")

	// ErrMalformedExpression is raised at IR construction time when a
	// where/order_by/group_by expression fails to parse.
	ErrMalformedExpression = goerrors.NewKind("malformed expression %q: %s")

	// ErrUnknownOperator is raised when a where expression uses a
	// comparison operator outside {>,<,>=,<=,==,!=}.
	ErrUnknownOperator = goerrors.NewKind("unknown comparison operator %q")
)
