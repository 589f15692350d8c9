// Package exec lowers the plan IR into composed stream.Stream transforms,
// the execution visitor described in spec.md §4.5/§5. It is the Go
// rendering of execute.py's AbstractSyntaxTreeVisitor: one Visit* method
// per operator, each building its result on top of its child's, mirroring
// the teacher's own rowexec-style "Node -> RowIter" lowering shape (see
// sql/plan/common_test.go's RowIter contract in the teacher).
package exec

import (
	"context"
	"fmt"
	"sort"

	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"

	"github.com/entityql/entityql/config"
	"github.com/entityql/entityql/entity"
	qerrors "github.com/entityql/entityql/errors"
	"github.com/entityql/entityql/plan"
	"github.com/entityql/entityql/stream"
)

// Executor lowers and runs a plan.Node, using cfg to size concurrency and
// gate async order keys (spec.md §5).
type Executor struct {
	cfg config.Config
}

// New builds an Executor.
func New(cfg config.Config) *Executor {
	return &Executor{cfg: cfg}
}

// Result is the terminal output of Execute: either a materialized
// sequence of entities, or — when the query ends in COUNT — just the
// count (spec.md §4.5's COUNT "drains its child and yields a single
// integer").
type Result struct {
	Entities []*entity.Entity
	Count    *int
}

// Execute runs root to completion and materializes its output. Lazy
// pagination/streaming to the caller is handled one layer up by the
// lazy walker (package walk); Execute always drains fully, since Send and
// the ToJSON/AsList/AsDict terminators built on it need the whole result
// before they can return. The transpilers and Dump do not execute.
func (ex *Executor) Execute(ctx context.Context, root plan.Node) (Result, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "entityql.exec."+root.Op().String())
	defer span.Finish()

	v := &visitor{ex: ex}
	if err := plan.Dispatch(ctx, v, root); err != nil {
		span.SetTag("error", true)
		return Result{}, err
	}
	if v.countResult != nil {
		return Result{Count: v.countResult}, nil
	}
	items, err := stream.Collect(ctx, v.iter)
	if err != nil {
		return Result{}, err
	}
	return Result{Entities: items}, nil
}

// visitor implements plan.OpVisitor. iter holds the in-progress result
// stream; countResult is set only by VisitCount.
type visitor struct {
	ex          *Executor
	iter        stream.Stream[*entity.Entity]
	countResult *int
}

func (v *visitor) descend(ctx context.Context, child plan.Node) error {
	return plan.Dispatch(ctx, v, child)
}

func (v *visitor) VisitProject(ctx context.Context, n *plan.Project) error {
	if err := v.descend(ctx, n.Child()); err != nil {
		return err
	}
	v.iter = stream.Map(v.iter, func(e *entity.Entity) (*entity.Entity, error) {
		return e.Project(n.Projector), nil
	})
	return nil
}

func (v *visitor) VisitWhere(ctx context.Context, n *plan.Where) error {
	if err := v.descend(ctx, n.Child()); err != nil {
		return err
	}
	v.iter = stream.Filter(v.iter, func(e *entity.Entity) (bool, error) {
		ok, err := n.Predicate(e)
		if err != nil {
			return false, err
		}
		return ok, nil
	})
	return nil
}

func (v *visitor) VisitTake(ctx context.Context, n *plan.Take) error {
	if err := v.descend(ctx, n.Child()); err != nil {
		return err
	}
	v.iter = stream.Take(v.iter, n.Count)
	return nil
}

func (v *visitor) VisitSkip(ctx context.Context, n *plan.Skip) error {
	if err := v.descend(ctx, n.Child()); err != nil {
		return err
	}
	v.iter = stream.Skip(v.iter, n.Count)
	return nil
}

func (v *visitor) VisitCount(ctx context.Context, n *plan.Count) error {
	if err := v.descend(ctx, n.Child()); err != nil {
		return err
	}
	items, err := stream.Collect(ctx, v.iter)
	if err != nil {
		return err
	}
	c := len(items)
	v.countResult = &c
	v.iter = stream.FromSlice(items)
	return nil
}

func (v *visitor) VisitNest(ctx context.Context, n *plan.Nest) error {
	if err := v.descend(ctx, n.Child()); err != nil {
		return err
	}
	v.iter = stream.Map(v.iter, func(e *entity.Entity) (*entity.Entity, error) {
		out := entity.New()
		out.Set(n.Key, e)
		return out, nil
	})
	return nil
}

func (v *visitor) VisitLet(ctx context.Context, n *plan.Let) error {
	if err := v.descend(ctx, n.Child()); err != nil {
		return err
	}
	v.iter = stream.Map(v.iter, func(e *entity.Entity) (*entity.Entity, error) {
		return e.Rename(n.Old, n.New), nil
	})
	return nil
}

func (v *visitor) VisitOrderBy(ctx context.Context, n *plan.OrderBy) error {
	if n.IsAsync && !v.ex.cfg.AllowAsyncOrderKeys {
		return qerrors.ErrKeyFunctionError.New("async order_by key disabled by config.AllowAsyncOrderKeys")
	}
	if err := v.descend(ctx, n.Child()); err != nil {
		return err
	}
	sorted, err := stream.SortBy(ctx, v.iter, func(e *entity.Entity) (any, error) { return n.Key(e) }, stream.DefaultLess)
	if err != nil {
		return err
	}
	v.iter = sorted
	return nil
}

func (v *visitor) VisitGroupBy(ctx context.Context, n *plan.GroupBy) error {
	if n.IsAsync && !v.ex.cfg.AllowAsyncOrderKeys {
		return qerrors.ErrKeyFunctionError.New("async group_by key disabled by config.AllowAsyncOrderKeys")
	}
	// n.Child() is always the ORDER_BY the builder composed with the same
	// key (spec.md §4.5), so groups arrive already contiguous.
	if err := v.descend(ctx, n.Child()); err != nil {
		return err
	}
	groups, err := stream.GroupByContiguous(ctx, v.iter, func(e *entity.Entity) (any, error) { return n.Key(e) })
	if err != nil {
		return err
	}
	v.iter = stream.Map(groups, groupToEntity)
	return nil
}

func groupToEntity(g stream.Group[*entity.Entity]) (*entity.Entity, error) {
	out := entity.New()
	out.Set("key", g.Key)
	out.Set("items", g.Members)
	return out, nil
}

// VisitCond runs the branch whose Tag matches the upstream entity's
// n.Key field, per SPEC_FULL.md §4's additive COND execution semantics
// (neither spec.md nor the implementation it was distilled from lowers
// COND at execution time; this engine defines it as: find the first
// matching branch, rerun its subquery chain seeded with this one
// entity, and splice in whatever it yields — an unmatched entity passes
// through unchanged).
func (v *visitor) VisitCond(ctx context.Context, n *plan.Cond) error {
	if err := v.descend(ctx, n.Child()); err != nil {
		return err
	}
	items, err := stream.Collect(ctx, v.iter)
	if err != nil {
		return err
	}
	var out []*entity.Entity
	for _, e := range items {
		tag, ok := e.Get(n.Key)
		if !ok {
			out = append(out, e)
			continue
		}
		matched := false
		for _, b := range n.Switch {
			if fmt.Sprint(tag) != fmt.Sprint(b.Tag) {
				continue
			}
			matched = true
			results, err := v.ex.runOnSeed(ctx, b.Query, e)
			if err != nil {
				return err
			}
			out = append(out, results...)
			break
		}
		if !matched {
			out = append(out, e)
		}
	}
	v.iter = stream.FromSlice(out)
	return nil
}

// runOnSeed reruns node with its bottommost leaf temporarily replaced by
// a single seed entity, then restores the leaf's original contents.
func (ex *Executor) runOnSeed(ctx context.Context, node plan.Node, seed *entity.Entity) ([]*entity.Entity, error) {
	leaf := plan.FindLeaf(node)
	if leaf == nil {
		return nil, qerrors.ErrInvalidQueryShape.New("cond branch chain has no leaf")
	}
	origItems, origIDs := leaf.Items, leaf.IDs
	leaf.Items = []*entity.Entity{seed}
	leaf.IDs = nil
	defer func() { leaf.Items, leaf.IDs = origItems, origIDs }()
	res, err := ex.Execute(ctx, node)
	if err != nil {
		return nil, err
	}
	return res.Entities, nil
}

// VisitEdge is only reached when a leaf's Edges list happens to contain
// the EDGE node itself rather than a chain rooted past it; the common
// path resolves edges from VisitLeaf via Leaf.ParentEdge instead. Here we
// simply continue into the upstream.
func (v *visitor) VisitEdge(ctx context.Context, n *plan.Edge) error {
	return v.descend(ctx, n.Child())
}

func (v *visitor) VisitUnion(ctx context.Context, n *plan.Union) error {
	var ins []stream.Stream[*entity.Entity]
	for _, q := range n.Queries {
		sub := &visitor{ex: v.ex}
		if err := plan.Dispatch(ctx, sub, q); err != nil {
			return err
		}
		ins = append(ins, sub.iter)
	}
	merged, err := stream.KWayMergeByDesc(ctx, ins)
	if err != nil {
		return err
	}
	v.iter = merged
	return nil
}

// VisitBranchedUnion tees the upstream into one branch per subquery arm
// (spec.md §4.5). Every arm was built as a continuation of the same
// shared node (Query.BranchedUnion in package plan), so rather than
// re-dispatching that shared prefix once per arm, the upstream is
// dispatched exactly once and its result fanned out with stream.Tee; each
// arm's own operators (if any) are then applied directly on top of its
// tee'd branch.
func (v *visitor) VisitBranchedUnion(ctx context.Context, n *plan.BranchedUnion) error {
	if err := v.descend(ctx, n.Child()); err != nil {
		return err
	}
	materialized, err := stream.Collect(ctx, v.iter)
	if err != nil {
		return err
	}
	branches := stream.Tee(ctx, stream.FromSlice(materialized), len(n.Queries), v.ex.cfg.TeeQueueDepth)
	var outs []stream.Stream[*entity.Entity]
	for i, q := range n.Queries {
		chain := chainAbove(q, n.Child())
		out, err := v.ex.applyChain(ctx, chain, branches[i])
		if err != nil {
			return err
		}
		outs = append(outs, out)
	}
	merged, err := stream.KWayMergeByDesc(ctx, outs)
	if err != nil {
		return err
	}
	v.iter = merged
	return nil
}

func (v *visitor) VisitAggregate(ctx context.Context, n *plan.Aggregate) error {
	if err := v.descend(ctx, n.Child()); err != nil {
		return err
	}
	items, err := stream.Collect(ctx, v.iter)
	if err != nil {
		return err
	}
	var out []*entity.Entity
	for _, e := range items {
		out = append(out, flattenEntity(e)...)
	}
	v.iter = stream.FromSlice(out)
	return nil
}

// flattenEntity implements AGGREGATE (SPEC_FULL.md §4): any field holding
// a nested *entity.Entity or []*entity.Entity slice (the shape NEST and
// edge resolution produce) contributes its members instead of the
// wrapper; a plain entity with no such field contributes itself.
func flattenEntity(e *entity.Entity) []*entity.Entity {
	var out []*entity.Entity
	for _, k := range e.Keys() {
		v, _ := e.Get(k)
		switch t := v.(type) {
		case *entity.Entity:
			out = append(out, t)
		case []*entity.Entity:
			out = append(out, t...)
		}
	}
	if len(out) == 0 {
		return []*entity.Entity{e}
	}
	return out
}

// VisitLeaf resolves a leaf's base entities (either by calling the
// registered resolver for a bound leaf, or by resolving the parent edge
// for an unbound one whose Items haven't already been seeded by a caller
// like nestEdgeBranch/runOnSeed/branchedUnionAtLeaf), then folds in any
// recorded branches.
func (v *visitor) VisitLeaf(ctx context.Context, n *plan.Leaf) error {
	if n.Visited {
		// Cycle guard: a leaf whose own Edges reference itself completes
		// without recursing again (spec.md §4.4/§8).
		v.iter = stream.FromSlice(nil)
		return nil
	}

	var base []*entity.Entity
	var err error
	if n.ParentEdge != nil && n.Items == nil {
		base, err = v.ex.resolvePivotEdge(ctx, n.ParentEdge)
	} else {
		base, err = v.ex.resolveBound(ctx, n)
	}
	if err != nil {
		return err
	}

	if len(n.Edges) == 0 {
		v.iter = stream.FromSlice(base)
		return nil
	}

	var edgeBranches, altBranches []plan.Node
	for _, b := range n.Edges {
		bl := plan.FindLeaf(b)
		if bl != nil && bl.ParentEdge != nil && plan.FindLeaf(bl.ParentEdge.Child()) == n {
			edgeBranches = append(edgeBranches, b)
		} else {
			altBranches = append(altBranches, b)
		}
	}

	n.Visited = true
	defer func() { n.Visited = false }()

	for _, b := range edgeBranches {
		if err := v.ex.nestEdgeBranch(ctx, b, base); err != nil {
			return err
		}
	}
	result := base
	if len(altBranches) > 0 {
		merged, err := v.ex.branchedUnionAtLeaf(ctx, altBranches, base)
		if err != nil {
			return err
		}
		result = merged
	}
	v.iter = stream.FromSlice(result)
	return nil
}

// resolveBound fetches a bound leaf's entities: Items verbatim if seeded
// that way, otherwise a batched resolver call per id (spec.md §5's
// "batched-async-map" primitive), with per-id resolver errors logged and
// trimmed rather than failing the whole query (spec.md §7's
// ResolverError contract).
func (ex *Executor) resolveBound(ctx context.Context, n *plan.Leaf) ([]*entity.Entity, error) {
	if n.Items != nil {
		return n.Items, nil
	}
	r, ok := plan.ResolverFor(n.EntityType)
	if !ok {
		return nil, qerrors.ErrInvalidQueryShape.New("no resolver registered for entity type " + n.EntityType)
	}
	ids := stream.FromSlice(n.IDs)
	resolved := stream.BatchedMap(ids, ex.cfg.BatchSize, func(ctx context.Context, id int) (*entity.Entity, error) {
		e, rerr := r.ResolveObj(ctx, id)
		if rerr != nil {
			logrus.WithError(rerr).WithField("id", id).WithField("entity_type", n.EntityType).
				Warn("resolver error, dropping entity")
			return nil, nil
		}
		return e, nil
	})
	items, err := stream.Collect(ctx, resolved)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Entity, 0, len(items))
	for _, it := range items {
		if it != nil {
			out = append(out, it)
		}
	}
	return out, nil
}

// resolvePivotEdge handles an unbound leaf reached directly as the
// dispatch root (no enclosing Parent() call folded it back onto its
// source leaf): every upstream parent entity's edge targets are resolved
// and flattened into one stream, "pivoting" the query onto the related
// entity class (spec.md §4.4's EDGE/unbound-leaf glossary entry).
func (ex *Executor) resolvePivotEdge(ctx context.Context, e *plan.Edge) ([]*entity.Entity, error) {
	parentVisitor := &visitor{ex: ex}
	if err := plan.Dispatch(ctx, parentVisitor, e.Child()); err != nil {
		return nil, err
	}
	parents, err := stream.Collect(ctx, parentVisitor.iter)
	if err != nil {
		return nil, err
	}
	var out []*entity.Entity
	for _, p := range parents {
		targets, err := ex.resolveEdgeFunc(ctx, e, p)
		if err != nil {
			return nil, err
		}
		out = append(out, targets...)
	}
	return out, nil
}

// nestEdgeBranch is the counterpart to resolvePivotEdge for the common
// case: a chain built via Edge(...).<ops>.Parent() recorded its subquery
// on the source leaf's Edges. For every one of the source leaf's own
// entities, resolve the edge, run the recorded subquery against exactly
// those targets, and nest the result under the edge name (spec.md §4.5's
// "function stack attached just above the leaves").
func (ex *Executor) nestEdgeBranch(ctx context.Context, branch plan.Node, base []*entity.Entity) error {
	bottom := plan.FindLeaf(branch)
	edgeName := bottom.ParentEdge.EdgeName
	for _, parent := range base {
		targets, err := ex.resolveEdgeFunc(ctx, bottom.ParentEdge, parent)
		if err != nil {
			return err
		}
		origItems, origIDs := bottom.Items, bottom.IDs
		bottom.Items = targets
		bottom.IDs = nil
		res, err := ex.Execute(ctx, branch)
		bottom.Items, bottom.IDs = origItems, origIDs
		if err != nil {
			return err
		}
		parent.Set(edgeName, res.Entities)
		parent.MarkVisited(edgeName)
	}
	return nil
}

// resolveEdgeFunc invokes an edge's producer for one source entity,
// logging and swallowing a resolver failure for that entity rather than
// aborting the query (spec.md §7), matching resolve.py's
// resolve_field/async_resolve_field "log and skip" pattern.
func (ex *Executor) resolveEdgeFunc(ctx context.Context, e *plan.Edge, src *entity.Entity) ([]*entity.Entity, error) {
	var out []*entity.Entity
	err := e.Func(ctx, src, e.Ctx, func(t *entity.Entity) error {
		out = append(out, t)
		return nil
	})
	if err != nil {
		id, _ := src.ID()
		logrus.WithError(err).WithField("edge", e.EdgeName).WithField("source_id", id).
			Warn("edge resolver error, dropping edge results for this entity")
		return nil, nil
	}
	return out, nil
}

// branchedUnionAtLeaf runs a leaf's alternate branches (its recorded Edges
// entries that are not edge branches of that leaf; see VisitLeaf), one or
// more: each runs independently over the same base entities, and the
// results are merged
// by descending id with duplicates dropped (the same dedup rule UNION
// uses, spec.md §4.5), since results needn't arrive pre-sorted here.
func (ex *Executor) branchedUnionAtLeaf(ctx context.Context, branches []plan.Node, base []*entity.Entity) ([]*entity.Entity, error) {
	var all []*entity.Entity
	for _, b := range branches {
		bl := plan.FindLeaf(b)
		if bl == nil {
			return nil, qerrors.ErrInvalidQueryShape.New("branch has no leaf")
		}
		origItems, origIDs := bl.Items, bl.IDs
		bl.Items = base
		bl.IDs = nil
		res, err := ex.Execute(ctx, b)
		bl.Items, bl.IDs = origItems, origIDs
		if err != nil {
			return nil, err
		}
		all = append(all, res.Entities...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		idI, okI := all[i].ID()
		idJ, okJ := all[j].ID()
		if okI && okJ {
			return idI > idJ
		}
		return false
	})
	seen := map[int]bool{}
	out := make([]*entity.Entity, 0, len(all))
	for _, e := range all {
		if id, ok := e.ID(); ok {
			if seen[id] {
				continue
			}
			seen[id] = true
		}
		out = append(out, e)
	}
	return out, nil
}

// chainAbove returns the chain of nodes strictly between n (inclusive)
// and stop (exclusive), ordered from just-above-stop to n, so its
// operators can be applied in order onto a stream that already stands in
// for stop's output.
func chainAbove(n plan.Node, stop plan.Node) []plan.Node {
	var chain []plan.Node
	for n != nil && n != stop {
		chain = append(chain, n)
		n = n.Child()
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// applyChain folds chain's operators onto in, in order, without
// re-dispatching each operator's own child (used by VisitBranchedUnion,
// where the child is a tee'd branch rather than a real upstream node).
func (ex *Executor) applyChain(ctx context.Context, chain []plan.Node, in stream.Stream[*entity.Entity]) (stream.Stream[*entity.Entity], error) {
	cur := in
	for _, node := range chain {
		next, err := ex.applyOp(ctx, node, cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func (ex *Executor) applyOp(ctx context.Context, n plan.Node, in stream.Stream[*entity.Entity]) (stream.Stream[*entity.Entity], error) {
	switch t := n.(type) {
	case *plan.Project:
		return stream.Map(in, func(e *entity.Entity) (*entity.Entity, error) { return e.Project(t.Projector), nil }), nil
	case *plan.Where:
		return stream.Filter(in, func(e *entity.Entity) (bool, error) { return t.Predicate(e) }), nil
	case *plan.Take:
		return stream.Take(in, t.Count), nil
	case *plan.Skip:
		return stream.Skip(in, t.Count), nil
	case *plan.Nest:
		return stream.Map(in, func(e *entity.Entity) (*entity.Entity, error) {
			out := entity.New()
			out.Set(t.Key, e)
			return out, nil
		}), nil
	case *plan.Let:
		return stream.Map(in, func(e *entity.Entity) (*entity.Entity, error) { return e.Rename(t.Old, t.New), nil }), nil
	case *plan.OrderBy:
		return stream.SortBy(ctx, in, func(e *entity.Entity) (any, error) { return t.Key(e) }, stream.DefaultLess)
	case *plan.GroupBy:
		groups, err := stream.GroupByContiguous(ctx, in, func(e *entity.Entity) (any, error) { return t.Key(e) })
		if err != nil {
			return nil, err
		}
		return stream.Map(groups, groupToEntity), nil
	default:
		return nil, qerrors.ErrInvalidQueryShape.New(
			fmt.Sprintf("operator %s cannot appear as a branched_union arm", n.Op()))
	}
}
