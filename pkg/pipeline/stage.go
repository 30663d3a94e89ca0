package pipeline

import (
	"errors"
	"fmt"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/selector"
	"github.com/l7mp/liveview/pkg/view"
)

// Stage is a single operator of a pipeline: a map with exactly one key naming the operator.
//
//	{"@filter": {"x": {"$gt": 0}}}                       // selector
//	{"@where": {"@gt": ["$.x", "$.y"]}}                  // boolean expression
//	{"@project": {"team": "$.home"}}                     // map to computed fields, id kept
//	{"@addFields": {"points": {"@mul": [3, "$.wins"]}}}  // add computed fields
//	{"@pick": ["x", "y"]}
//	{"@omit": ["z"]}
//	{"@group": {"by": ["team"], "aggregate": {"played": "@count", "gd": {"@sum": "$.gd"}}}}
//	{"@sort": ["-points", "name"]}
//	{"@reify": true}
type Stage map[string]any

// Op returns the operator name of the stage.
func (s Stage) Op() (string, any, error) {
	if len(s) != 1 {
		return "", nil, fmt.Errorf("a stage must have exactly one operator, got %d", len(s))
	}
	for op, arg := range s {
		return op, arg, nil
	}
	return "", nil, nil
}

// GroupSpec is the argument of the @group stage.
type GroupSpec struct {
	By        []string       `json:"by,omitempty"`
	Aggregate map[string]any `json:"aggregate,omitempty"`
}

// Apply applies the stage to a view.
func (s Stage) Apply(v view.View) (view.View, error) {
	op, arg, err := s.Op()
	if err != nil {
		return nil, err
	}

	switch op {
	case "@filter":
		spec, ok := arg.(map[string]any)
		if !ok {
			return nil, errors.New("@filter expects a selector")
		}
		sel, err := selector.New(spec)
		if err != nil {
			return nil, err
		}
		return v.Filter(sel)

	case "@where":
		e, err := NewExpression(arg)
		if err != nil {
			return nil, err
		}
		return v.Filter(&predicate{expr: e})

	case "@project":
		fields, err := asFields(op, arg)
		if err != nil {
			return nil, err
		}
		return v.Map(fields.Evaluate)

	case "@addFields":
		fields, err := asFields(op, arg)
		if err != nil {
			return nil, err
		}
		funcs := make(map[string]view.FieldFunc, len(fields.names))
		for _, name := range fields.names {
			funcs[name] = fields.exprs[name].Evaluate
		}
		return v.AddFields(funcs)

	case "@pick", "@omit":
		names, err := asStrings(op, arg)
		if err != nil {
			return nil, err
		}
		if op == "@pick" {
			return v.Pick(names...)
		}
		return v.Omit(names...)

	case "@group":
		opts, err := asGroupOptions(arg)
		if err != nil {
			return nil, err
		}
		return v.Group(opts)

	case "@sort":
		names, err := asStrings(op, arg)
		if err != nil {
			return nil, err
		}
		spec := selector.SortBy(names...)
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		return v.Sort(spec)

	case "@reify":
		return v.Reify()

	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}

// predicate adapts a boolean expression to a view predicate.
type predicate struct {
	expr *Expression
}

func (p *predicate) Match(doc document.Document) (bool, error) {
	v, err := p.expr.Evaluate(doc)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, NewExpressionError(p.expr, fmt.Errorf("expected a boolean, got %v (%T)", v, v))
	}
	return b, nil
}

func (p *predicate) String() string { return p.expr.String() }

func asFields(op string, arg any) (*Fields, error) {
	spec, ok := arg.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s expects a map of field expressions", op)
	}
	return NewFields(spec)
}

func asStrings(op string, arg any) ([]string, error) {
	if s, ok := arg.(string); ok {
		return []string{s}, nil
	}
	list, ok := arg.([]any)
	if !ok {
		return nil, fmt.Errorf("%s expects a list of field names", op)
	}
	ret := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s expects a list of field names, got %v", op, item)
		}
		ret[i] = s
	}
	return ret, nil
}

func asGroupOptions(arg any) (view.GroupOptions, error) {
	opts := view.GroupOptions{}
	spec, ok := arg.(map[string]any)
	if !ok {
		return opts, errors.New("@group expects a map with \"by\" and \"aggregate\" keys")
	}
	for k := range spec {
		if k != "by" && k != "aggregate" {
			return opts, fmt.Errorf("@group: unknown key %q", k)
		}
	}

	if by, ok := spec["by"]; ok {
		names, err := asStrings("@group", by)
		if err != nil {
			return opts, err
		}
		opts.By = names
	}

	if agg, ok := spec["aggregate"]; ok {
		m, ok := agg.(map[string]any)
		if !ok {
			return opts, errors.New("@group: aggregate expects a map of aggregators")
		}
		opts.Aggregate = map[string]view.Aggregator{}
		for name, a := range m {
			aggr, err := asAggregator(a)
			if err != nil {
				return opts, fmt.Errorf("@group: field %q: %w", name, err)
			}
			opts.Aggregate[name] = aggr
		}
	}

	return opts, nil
}

// asAggregator compiles "@count" or {"@sum": expression}.
func asAggregator(arg any) (view.Aggregator, error) {
	if s, ok := arg.(string); ok && s == "@count" {
		return view.Count(), nil
	}
	m, ok := arg.(map[string]any)
	if !ok || len(m) != 1 {
		return nil, fmt.Errorf("invalid aggregator %v", arg)
	}
	if v, ok := m["@count"]; ok && v == nil {
		return view.Count(), nil
	}
	sum, ok := m["@sum"]
	if !ok {
		return nil, fmt.Errorf("invalid aggregator %v", arg)
	}
	if field, ok := sum.(string); ok && !isJSONPath(field) {
		return view.Sum(field), nil
	}
	e, err := NewExpression(sum)
	if err != nil {
		return nil, err
	}
	return view.SumFunc(fmt.Sprintf("sum(%s)", e), e.Evaluate), nil
}
