// Package visualize renders the explain plan of a live view as a diagram.
package visualize

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"

	"github.com/l7mp/liveview/pkg/view"
)

// Graph is the flattened operator graph of a view: one node per plan node, with an edge from
// each input to the operator consuming it.
type Graph struct {
	Name  string
	Nodes []Node
	Edges []Edge
}

// Node is a single operator of the graph.
type Node struct {
	ID    string
	Op    string
	Args  string
	Kind  NodeKind
	Input int // position among the inputs of the consumer
}

// NodeKind classifies nodes for styling.
type NodeKind string

const (
	// KindSource is a leaf reading a store or a cursor.
	KindSource NodeKind = "source"
	// KindOperator is an intermediate operator.
	KindOperator NodeKind = "operator"
	// KindResult is the view itself.
	KindResult NodeKind = "result"
)

// Edge connects an input node to its consumer.
type Edge struct {
	From, To string
}

// Generator renders a graph in a diagram language.
type Generator interface {
	Generate(g *Graph) string
}

// BuildGraph flattens a plan tree into a graph.
func BuildGraph(name string, plan *view.Plan) *Graph {
	g := &Graph{Name: name}
	if plan != nil {
		g.add(plan, 0, true)
	}
	return g
}

func (g *Graph) add(p *view.Plan, input int, root bool) string {
	id := fmt.Sprintf("n%d", len(g.Nodes))
	kind := KindOperator
	switch {
	case root:
		kind = KindResult
	case len(p.Inputs) == 0:
		kind = KindSource
	}
	g.Nodes = append(g.Nodes, Node{ID: id, Op: p.Op, Args: p.Args, Kind: kind, Input: input})

	for i, in := range p.Inputs {
		from := g.add(in, i, false)
		g.Edges = append(g.Edges, Edge{From: from, To: id})
	}
	return id
}

// Label formats a node for display.
func Label(n Node) string {
	if n.Args == "" {
		return n.Op
	}
	args := n.Args
	if len(args) > 48 {
		args = args[:45] + "..."
	}
	return fmt.Sprintf("%s(%s)", n.Op, strings.ReplaceAll(args, `"`, `'`))
}

// BuildDotGraph creates a dot.Graph from the visualization graph. The same graph is rendered in
// every supported format.
func BuildDotGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR")
	graph.Attr("newrank", "true")
	if g.Name != "" {
		graph.Attr("label", g.Name)
		graph.Attr("labelloc", "t")
		graph.Attr("fontsize", "16")
	}

	nodes := make(map[string]dot.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		node := graph.Node(n.ID).
			Attr("label", Label(n)).
			Attr("fontname", "helvetica")
		switch n.Kind {
		case KindSource:
			node.Attr("shape", "ellipse").
				Attr("style", "filled").
				Attr("fillcolor", "lightgreen")
		case KindResult:
			node.Attr("shape", "box").
				Attr("style", "filled,rounded").
				Attr("fillcolor", "lightcyan").
				Attr("penwidth", "2")
		default:
			node.Attr("shape", "box").
				Attr("style", "filled,rounded").
				Attr("fillcolor", "lightblue").
				Attr("color", "darkblue")
		}
		nodes[n.ID] = node
	}

	byID := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	for _, e := range g.Edges {
		edge := graph.Edge(nodes[e.From], nodes[e.To])
		// number the inputs of multi-input operators, whose order is significant for identifiers
		if consumers := countInputs(g, e.To); consumers > 1 {
			edge.Attr("label", fmt.Sprintf("#%d", byID[e.From].Input)).
				Attr("fontname", "helvetica").
				Attr("fontsize", "10")
		}
	}

	return graph
}

func countInputs(g *Graph, id string) int {
	n := 0
	for _, e := range g.Edges {
		if e.To == id {
			n++
		}
	}
	return n
}
