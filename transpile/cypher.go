package transpile

import (
	"context"
	"fmt"
	"strings"

	"github.com/entityql/entityql/config"
	"github.com/entityql/entityql/plan"
)

// Cypher clause order is MATCH, WHERE, RETURN, ORDER BY, SKIP, LIMIT — RETURN
// sits ahead of ORDER BY/LIMIT here, unlike SQL's SELECT-first layout.
const (
	cypherPriWhere = iota
	cypherPriReturn
	cypherPriOrderBy
	cypherPriSkip
	cypherPriLimit
)

type pathSegment struct {
	edgeName string // "" for the root segment
	label    string
}

// CypherBuilder renders a query chain into a single Cypher MATCH/RETURN
// statement, grounded on cypher_builder.py. It walks an EDGE traversal
// chain via each leaf's ParentEdge back-reference (rather than forward
// children) to build the MATCH path, collapsing consecutive hops over
// the same edge name into a variable-length [:E*k..k] pattern the way
// the original builder does.
type CypherBuilder struct {
	cfg config.Config

	segments  []pathSegment
	projector []string
	isCount   bool
	clauses   []clause

	suppressNextOrderBy bool
}

// NewCypherBuilder builds a CypherBuilder.
func NewCypherBuilder(cfg config.Config) *CypherBuilder {
	return &CypherBuilder{cfg: cfg}
}

// RenderCypher runs b over root and returns the finished statement.
func RenderCypher(ctx context.Context, b *CypherBuilder, root plan.Node) (string, error) {
	if err := plan.Dispatch(ctx, b, root); err != nil {
		return "", err
	}
	return b.render(), nil
}

func (b *CypherBuilder) render() string {
	pattern, alias := buildPattern(b.segments)
	clauses := append([]clause{}, b.clauses...)
	clauses = append(clauses, clause{cypherPriReturn, "RETURN " + b.returnExpr(alias)})
	return "MATCH " + pattern + "\n" + joinClauses(clauses, "\n")
}

func (b *CypherBuilder) returnExpr(alias string) string {
	if b.isCount {
		return "count(*)"
	}
	if len(b.projector) > 0 {
		parts := make([]string, len(b.projector))
		for i, p := range b.projector {
			parts[i] = alias + "." + cypherField(p)
		}
		return strings.Join(parts, ", ")
	}
	return alias
}

// cypherField normalizes the ":id" projector entry to the dialect's id
// column, matching cypher_builder.py's visit_project.
func cypherField(field string) string {
	if field == ":id" {
		return "id"
	}
	return field
}

// buildPattern assembles the MATCH path text and returns the alias of the
// pattern's LAST node, which is the one RETURN/WHERE/ORDER BY address (the
// builder always operates relative to the deepest entity in the chain). A
// single-leaf pattern uses the hardcoded alias "u" (cypher_builder.py never
// varies it); a pattern with at least one edge hop assigns node aliases
// a, b, c, ... and relationship variables e, e2, e3, ... in traversal order,
// since the original builder has no multi-hop alias scheme to follow.
func buildPattern(segments []pathSegment) (string, string) {
	if len(segments) == 0 {
		return "()", "u"
	}

	type hop struct {
		edgeName string
		label    string
		run      int
	}
	var hops []hop
	i := 1
	for i < len(segments) {
		name := segments[i].edgeName
		j := i + 1
		for j < len(segments) && segments[j].edgeName == name {
			j++
		}
		hops = append(hops, hop{edgeName: name, label: segments[j-1].label, run: j - i})
		i = j
	}

	nodeAliases := make([]string, 1+len(hops))
	if len(nodeAliases) == 1 {
		nodeAliases[0] = "u"
	} else {
		for k := range nodeAliases {
			nodeAliases[k] = string(rune('a' + k))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "(%s:%s)", nodeAliases[0], segments[0].label)
	for hi, h := range hops {
		relVar := "e"
		if hi > 0 {
			relVar = fmt.Sprintf("e%d", hi+1)
		}
		relType := strings.ToUpper(h.edgeName)
		if h.run > 1 {
			fmt.Fprintf(&sb, "-[%s:%s*%d..%d]-(%s:%s)", relVar, relType, h.run, h.run, nodeAliases[hi+1], h.label)
		} else {
			fmt.Fprintf(&sb, "-[%s:%s]-(%s:%s)", relVar, relType, nodeAliases[hi+1], h.label)
		}
	}
	return sb.String(), nodeAliases[len(nodeAliases)-1]
}

func cypherOp(op string) string {
	switch op {
	case "==":
		return "="
	case "!=":
		return "<>"
	default:
		return op
	}
}

func (b *CypherBuilder) VisitLeaf(ctx context.Context, n *plan.Leaf) error {
	if n.ParentEdge != nil {
		if err := plan.Dispatch(ctx, b, n.ParentEdge.Child()); err != nil {
			return err
		}
		b.segments = append(b.segments, pathSegment{edgeName: n.ParentEdge.EdgeName, label: cypherLabel(n)})
	} else {
		b.segments = append(b.segments, pathSegment{label: cypherLabel(n)})
	}
	if len(n.Edges) > 0 {
		return unsupported(b.cfg, "cypher", plan.OpEdge)
	}
	return nil
}

// cypherLabel capitalizes the leaf's entity type the way table_from_query's
// .capitalize() does for node labels; SQL's table name stays lowercase
// (plan.Leaf.LeafType), so the capitalization lives here rather than on the
// shared LeafType method.
func cypherLabel(n *plan.Leaf) string {
	t := n.LeafType()
	if t == "" {
		return t
	}
	return strings.ToUpper(t[:1]) + t[1:]
}

func (b *CypherBuilder) VisitProject(ctx context.Context, n *plan.Project) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.projector = n.Projector
	return nil
}

func (b *CypherBuilder) VisitWhere(ctx context.Context, n *plan.Where) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	_, alias := buildPattern(b.segments)
	text := fmt.Sprintf("%s.%s %s %s", alias, n.Cmp.Field, cypherOp(string(n.Cmp.Op)), literalString(n.Cmp.Value))
	b.clauses = append(b.clauses, clause{cypherPriWhere, "WHERE " + text})
	return nil
}

func (b *CypherBuilder) VisitTake(ctx context.Context, n *plan.Take) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.clauses = append(b.clauses, clause{cypherPriLimit, fmt.Sprintf("LIMIT %d", n.Count)})
	return nil
}

func (b *CypherBuilder) VisitSkip(ctx context.Context, n *plan.Skip) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.clauses = append(b.clauses, clause{cypherPriSkip, fmt.Sprintf("SKIP %d", n.Count)})
	return nil
}

func (b *CypherBuilder) VisitCount(ctx context.Context, n *plan.Count) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.isCount = true
	return nil
}

func (b *CypherBuilder) VisitOrderBy(ctx context.Context, n *plan.OrderBy) error {
	suppress := b.suppressNextOrderBy
	b.suppressNextOrderBy = false
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	if suppress {
		return nil
	}
	_, alias := buildPattern(b.segments)
	b.clauses = append(b.clauses, clause{cypherPriOrderBy, fmt.Sprintf("ORDER BY %s.%s", alias, n.KeyRef.Field)})
	return nil
}

func (b *CypherBuilder) VisitGroupBy(ctx context.Context, n *plan.GroupBy) error {
	b.suppressNextOrderBy = true
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	// Cypher has no direct GROUP BY; aggregation is implicit in the RETURN
	// clause, which this builder doesn't synthesize expressions for.
	return unsupported(b.cfg, "cypher", plan.OpGroupBy)
}

func (b *CypherBuilder) VisitNest(ctx context.Context, n *plan.Nest) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "cypher", plan.OpNest)
}

func (b *CypherBuilder) VisitLet(ctx context.Context, n *plan.Let) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	b.projector = append([]string{}, b.projector...)
	for i, p := range b.projector {
		if p == n.Old {
			b.projector[i] = n.New
		}
	}
	return nil
}

func (b *CypherBuilder) VisitCond(ctx context.Context, n *plan.Cond) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "cypher", plan.OpCond)
}

func (b *CypherBuilder) VisitEdge(ctx context.Context, n *plan.Edge) error {
	return plan.Dispatch(ctx, b, n.Child())
}

func (b *CypherBuilder) VisitUnion(ctx context.Context, n *plan.Union) error {
	return unsupported(b.cfg, "cypher", plan.OpUnion)
}

func (b *CypherBuilder) VisitBranchedUnion(ctx context.Context, n *plan.BranchedUnion) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "cypher", plan.OpBranchedUnion)
}

func (b *CypherBuilder) VisitAggregate(ctx context.Context, n *plan.Aggregate) error {
	if err := plan.Dispatch(ctx, b, n.Child()); err != nil {
		return err
	}
	return unsupported(b.cfg, "cypher", plan.OpAggregate)
}
