package substate

import (
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// names bound by the expr environment that are not snapshot keys
var exprReservedNames = map[string]struct{}{
	"now":      {},
	"args":     {},
	"metadata": {},
	"call":     {},
}

// ExprDependencies lists the snapshot paths an expr expression reads, in
// dotted form and sorted. Member chains with constant keys ("user.address",
// `items[0]`) become one path; a chain cut by a dynamic index stops at the
// last constant segment. `state.x` is read as `x` and a bare `state` as the
// root (""). The result over-approximates: names introduced with `let` are
// reported as if they were snapshot keys.
func ExprDependencies(expression string) ([]string, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, wrapEvaluationError(EngineExpr, expression, err)
	}
	collector := &dependencyCollector{covered: map[ast.Node]struct{}{}}
	ast.Walk(&tree.Node, collector)
	return collector.paths(), nil
}

type dependencyCollector struct {
	covered    map[ast.Node]struct{}
	candidates []ast.Node
}

// Visit runs children first, so an outer member node always arrives after
// the nodes it covers.
func (c *dependencyCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.candidates = append(c.candidates, n)
	case *ast.MemberNode:
		if _, ok := memberChain(n); ok {
			c.covered[n.Node] = struct{}{}
			c.candidates = append(c.candidates, n)
		}
	case *ast.CallNode:
		c.covered[n.Callee] = struct{}{}
		if member, ok := n.Callee.(*ast.MemberNode); ok {
			// method call: the receiver is the dependency
			delete(c.covered, member.Node)
		}
	}
}

func (c *dependencyCollector) paths() []string {
	seen := map[string]struct{}{}
	for _, node := range c.candidates {
		if _, ok := c.covered[node]; ok {
			continue
		}
		chain, ok := memberChain(node)
		if !ok {
			continue
		}
		if _, reserved := exprReservedNames[chain[0]]; reserved {
			continue
		}
		if chain[0] == "state" {
			chain = chain[1:]
		}
		seen[strings.Join(chain, ".")] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for path := range seen {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func memberChain(node ast.Node) ([]string, bool) {
	switch n := node.(type) {
	case *ast.IdentifierNode:
		return []string{n.Value}, true
	case *ast.MemberNode:
		parent, ok := memberChain(n.Node)
		if !ok {
			return nil, false
		}
		switch key := n.Property.(type) {
		case *ast.StringNode:
			return append(parent, key.Value), true
		case *ast.IntegerNode:
			return append(parent, strconv.Itoa(key.Value)), true
		}
	}
	return nil, false
}
