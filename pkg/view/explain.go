package view

import (
	"fmt"
	"strings"
)

// Plan is a node of the explain tree of a view: the operator, its arguments and its inputs.
type Plan struct {
	Op     string  `json:"op"`
	Args   string  `json:"args,omitempty"`
	Inputs []*Plan `json:"inputs,omitempty"`
}

func newPlan(op, args string, inputs ...View) *Plan {
	p := &Plan{Op: op, Args: args}
	for _, in := range inputs {
		p.Inputs = append(p.Inputs, in.Explain())
	}
	return p
}

// String renders the plan as a chain, innermost input first.
func (p *Plan) String() string {
	var b strings.Builder
	p.write(&b, 0)
	return b.String()
}

func (p *Plan) write(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	switch {
	case len(p.Inputs) == 1:
		p.Inputs[0].write(b, depth)
	case len(p.Inputs) > 1:
		fmt.Fprintf(b, "%s%s(\n", indent, p.Op)
		for i, in := range p.Inputs {
			if i > 0 {
				fmt.Fprintf(b, "%s  ---\n", indent)
			}
			in.write(b, depth+1)
		}
		fmt.Fprintf(b, "%s)\n", indent)
		return
	}
	if len(p.Inputs) == 0 {
		fmt.Fprintf(b, "%s%s(%s)\n", indent, p.Op, p.Args)
		return
	}
	fmt.Fprintf(b, "%s.%s(%s)\n", indent, p.Op, p.Args)
}
