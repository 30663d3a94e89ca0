package visualize

// DotGenerator generates Graphviz DOT diagrams.
type DotGenerator struct{}

var _ Generator = &DotGenerator{}

// Generate creates a Graphviz DOT diagram from the graph.
func (d *DotGenerator) Generate(g *Graph) string {
	return BuildDotGraph(g).String()
}
