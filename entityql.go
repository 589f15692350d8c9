// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package entityql is the public surface of the query engine: the Query
// builder, the terminal operations that run or transpile a built query, and
// entity class registration. It plays the role the teacher's top-level sqle
// package plays for go-mysql-server — a thin façade bundling the engine's
// subsystems (plan, exec, walk, transpile) behind one import.
package entityql

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/entityql/entityql/astprint"
	"github.com/entityql/entityql/config"
	"github.com/entityql/entityql/entity"
	"github.com/entityql/entityql/exec"
	"github.com/entityql/entityql/plan"
	"github.com/entityql/entityql/resolver"
	"github.com/entityql/entityql/transpile"
	"github.com/entityql/entityql/walk"
)

// Query is the builder for a query IR chain; see plan.Query for the chain
// methods (Project, Where, Take, Skip, Count, Nest, Let, OrderBy, GroupBy,
// Cond, Edge, Parent, Aggregate) and the package-level Union/BranchedUnion
// constructors.
type Query = plan.Query

// CondCase is re-exported for building Cond branches.
type CondCase = plan.CondCase

// NewQuery starts a query rooted at ids of a registered entity class.
func NewQuery(entityType string, ids ...int) *Query {
	return plan.NewQuery(entityType, ids...)
}

// NewQueryFromItems starts a query seeded with already-materialized
// entities (spec.md §6).
func NewQueryFromItems(entityType string, items []*entity.Entity) *Query {
	return plan.NewQueryFromItems(entityType, items)
}

// Union re-exports plan.Union.
func Union(queries ...*Query) *Query {
	return plan.Union(queries...)
}

// RegisterEntityClass binds name to r for edge traversal and seed
// resolution. The hosting application calls this once per entity class
// before building any query against it, the Go analogue of view_model.py's
// @query class decorator.
func RegisterEntityClass(name string, r resolver.Resolver) {
	plan.RegisterEntityClass(name, r)
}

// Engine bundles an execution config with the Executor/Walker pair needed
// to run a built Query, the same "bundle related subsystems behind one
// struct" shape the teacher's own Engine wraps around Analyzer/LockSubsystem/
// ProcessList/MemoryManager.
type Engine struct {
	cfg config.Config
	ex  *exec.Executor
	wk  *walk.Walker
}

// NewDefault builds an Engine using config.Default().
func NewDefault() *Engine {
	return New(config.Default())
}

// New builds an Engine using cfg.
func New(cfg config.Config) *Engine {
	return &Engine{cfg: cfg, ex: exec.New(cfg), wk: walk.New(cfg)}
}

// Send executes q and materializes its results into plain, JSON-shaped
// entity trees (spec.md §4.6/§6): resolver/edge errors are logged and
// treated as absences rather than failing the whole query. When q ends in
// COUNT, the returned slice is nil and count is non-nil; otherwise count is
// nil.
func (eng *Engine) Send(ctx context.Context, q *Query) (items []*entity.Entity, count *int, err error) {
	res, err := eng.ex.Execute(ctx, q.Node)
	if err != nil {
		return nil, nil, err
	}
	if res.Count != nil {
		return nil, res.Count, nil
	}
	leaf := plan.FindLeaf(q.Node)
	entityType := ""
	if leaf != nil {
		entityType = leaf.EntityType
	}
	materialized, err := eng.wk.MaterializeWalk(ctx, res.Entities, entityType)
	if err != nil {
		return nil, nil, err
	}
	return materialized, nil, nil
}

// batch collapses Send's result into the single (key, items) pair
// query.py's to_json()/as_list()/as_dict() terminators all build on: key is
// q's outermost NEST key, or the literal "None" query.py's AbstractSyntaxTreeVisitor
// defaults to when a query carries no NEST. A NEST already wraps each
// resolved entity individually at execution time (exec.VisitNest), so batch
// unwraps those per-entity wrappers back out here to assemble the one
// batch-level wrapper the terminators share.
func (eng *Engine) batch(ctx context.Context, q *Query) (key string, items []*entity.Entity, err error) {
	items, count, err := eng.Send(ctx, q)
	if err != nil {
		return "", nil, err
	}
	if count != nil {
		c := entity.New()
		c.Set("count", *count)
		return "None", []*entity.Entity{c}, nil
	}
	if nest, ok := q.Node.(*plan.Nest); ok {
		unwrapped := make([]*entity.Entity, 0, len(items))
		for _, it := range items {
			if v, ok := it.Get(nest.Key); ok {
				if e, ok := v.(*entity.Entity); ok {
					unwrapped = append(unwrapped, e)
					continue
				}
			}
			unwrapped = append(unwrapped, it)
		}
		return nest.Key, unwrapped, nil
	}
	return "None", items, nil
}

// ToJSON materializes q the way query.py's to_json() terminator does: a
// single-element JSON array wrapping one object keyed by q's batch key,
// whose value is the list of materialized entities (spec.md §6/§8
// scenarios 4-5). Entity field order within each item is preserved, since
// entity.Entity implements its own order-preserving MarshalJSON.
func (eng *Engine) ToJSON(ctx context.Context, q *Query) (string, error) {
	key, items, err := eng.batch(ctx, q)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal([]map[string][]*entity.Entity{{key: items}})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// AsList materializes q the way query.py's as_list() terminator does:
// send()'s "r is a list of dicts" step, with the outer batch-key wrapper
// stripped away, leaving the bare list of entities.
func (eng *Engine) AsList(ctx context.Context, q *Query) ([]*entity.Entity, error) {
	_, items, err := eng.batch(ctx, q)
	return items, err
}

// AsDict materializes q the way query.py's as_dict() terminator does:
// the same bare list as AsList, but zipped against q's bound root ids
// (query.py's get_keys()) into a map, positionally — one entry per
// resolved item, in the order both lists iterate.
func (eng *Engine) AsDict(ctx context.Context, q *Query) (map[string]*entity.Entity, error) {
	_, items, err := eng.batch(ctx, q)
	if err != nil {
		return nil, err
	}
	var ids []int
	if leaf := plan.FindLeaf(q.Node); leaf != nil {
		ids = leaf.IDs
	}
	out := make(map[string]*entity.Entity, len(items))
	for i, it := range items {
		k := strconv.Itoa(i)
		if i < len(ids) {
			k = strconv.Itoa(ids[i])
		}
		out[k] = it
	}
	return out, nil
}

// ToSQL transpiles q into a single SQL SELECT statement.
func (eng *Engine) ToSQL(ctx context.Context, q *Query) (string, error) {
	return transpile.Render(ctx, transpile.NewSQLBuilder(eng.cfg), q.Node)
}

// ToCypher transpiles q into a single Cypher MATCH/RETURN statement.
func (eng *Engine) ToCypher(ctx context.Context, q *Query) (string, error) {
	return transpile.RenderCypher(ctx, transpile.NewCypherBuilder(eng.cfg), q.Node)
}

// ToMalloy transpiles q into a Malloy query source block.
func (eng *Engine) ToMalloy(ctx context.Context, q *Query) (string, error) {
	return transpile.RenderMalloy(ctx, transpile.NewMalloyBuilder(eng.cfg), q.Node)
}

// ToDataframe transpiles q into a polars-style chained dataframe pipeline.
func (eng *Engine) ToDataframe(ctx context.Context, q *Query) (string, error) {
	return transpile.RenderDataframe(ctx, transpile.NewDataframeBuilder(eng.cfg), q.Node)
}

// Dump renders q's IR tree as an indented, human-readable string, the same
// debugging aid walk.py's PrintASTVisitor gives the original implementation.
func Dump(ctx context.Context, q *Query) (string, error) {
	return astprint.Print(ctx, q.Node)
}

// Debug is Dump, panicking on error; for use in tests and REPL-style
// debugging sessions where a malformed tree is itself the bug being chased.
func Debug(ctx context.Context, q *Query) string {
	s, err := Dump(ctx, q)
	if err != nil {
		panic(err)
	}
	return s
}
