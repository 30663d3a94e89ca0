package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/util"
)

// Expression is a pure function of a document, given declaratively:
//
//	"$.home"                                   // JSONPath into the document
//	3                                          // literal
//	{"@sub": ["$.homeGoals", "$.awayGoals"]}   // operator applied to argument expressions
//	{"@cond": [{"@gt": ["$.a", 0]}, 1, 0]}     // conditional
//
// Operators: @add, @sub, @mul, @eq, @ne, @gt, @gte, @lt, @lte, @and, @or, @not, @cond, @concat,
// @exists.
type Expression struct {
	Op      string
	Args    []*Expression
	Literal any
	Path    jp.Expr
	Raw     string
}

// operator arities; -1 is variadic with at least one argument
var arity = map[string]int{
	"@add": -1, "@sub": 2, "@mul": -1,
	"@eq": 2, "@ne": 2, "@gt": 2, "@gte": 2, "@lt": 2, "@lte": 2,
	"@and": -1, "@or": -1, "@not": 1,
	"@cond": 3, "@concat": -1, "@exists": 1,
}

// NewExpression compiles an expression from its unmarshaled form.
func NewExpression(v any) (*Expression, error) {
	raw := util.Stringify(v)

	switch x := v.(type) {
	case string:
		if !isJSONPath(x) {
			return &Expression{Op: "@any", Literal: x, Raw: raw}, nil
		}
		path, err := parseJSONPath(x)
		if err != nil {
			return nil, NewInvalidArgumentsError(x)
		}
		return &Expression{Op: "@path", Path: path, Raw: x}, nil

	case map[string]any:
		if len(x) != 1 {
			return literal(x, raw)
		}
		var op string
		var arg any
		for k, a := range x {
			op, arg = k, a
		}
		if !strings.HasPrefix(op, "@") {
			return literal(x, raw)
		}
		n, ok := arity[op]
		if !ok {
			return nil, fmt.Errorf("unknown operator %q in %s", op, raw)
		}

		list, isList := arg.([]any)
		if !isList {
			list = []any{arg}
		}
		if (n >= 0 && len(list) != n) || (n < 0 && len(list) == 0) {
			return nil, fmt.Errorf("operator %s: wrong number of arguments in %s", op, raw)
		}

		e := &Expression{Op: op, Raw: raw}
		for _, a := range list {
			sub, err := NewExpression(a)
			if err != nil {
				return nil, err
			}
			e.Args = append(e.Args, sub)
		}
		return e, nil

	default:
		return literal(x, raw)
	}
}

func literal(v any, raw string) (*Expression, error) {
	norm, err := document.NormalizeValue(v)
	if err != nil {
		return nil, NewInvalidArgumentsError(raw)
	}
	return &Expression{Op: "@any", Literal: norm, Raw: raw}, nil
}

func (e *Expression) String() string { return e.Raw }

// Evaluate computes the expression on a document.
func (e *Expression) Evaluate(doc document.Document) (any, error) {
	switch e.Op {
	case "@any":
		return document.DeepCopyValue(e.Literal), nil
	case "@path":
		return document.DeepCopyValue(getJSONPath(e.Path, doc)), nil
	case "@exists":
		if e.Args[0].Op != "@path" {
			return nil, NewExpressionError(e, errors.New("@exists expects a JSONPath"))
		}
		return len(e.Args[0].Path.Get(doc)) > 0, nil
	case "@cond":
		c, err := e.evalBool(doc, e.Args[0])
		if err != nil {
			return nil, err
		}
		if c {
			return e.Args[1].Evaluate(doc)
		}
		return e.Args[2].Evaluate(doc)
	case "@and", "@or":
		for _, a := range e.Args {
			b, err := e.evalBool(doc, a)
			if err != nil {
				return nil, err
			}
			if e.Op == "@and" && !b {
				return false, nil
			}
			if e.Op == "@or" && b {
				return true, nil
			}
		}
		return e.Op == "@and", nil
	case "@not":
		b, err := e.evalBool(doc, e.Args[0])
		if err != nil {
			return nil, err
		}
		return !b, nil
	}

	args := make([]any, len(e.Args))
	for i, a := range e.Args {
		v, err := a.Evaluate(doc)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch e.Op {
	case "@add":
		var acc any = int64(0)
		for _, a := range args {
			sum, err := document.Add(acc, a)
			if err != nil {
				return nil, NewExpressionError(e, err)
			}
			acc = sum
		}
		return acc, nil
	case "@sub":
		ret, err := document.Subtract(args[0], args[1])
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		return ret, nil
	case "@mul":
		return e.multiply(args)
	case "@eq":
		return document.DeepEqual(args[0], args[1]), nil
	case "@ne":
		return !document.DeepEqual(args[0], args[1]), nil
	case "@gt", "@gte", "@lt", "@lte":
		if document.Kind(args[0]) != document.Kind(args[1]) {
			return false, nil
		}
		c := document.Compare(args[0], args[1])
		switch e.Op {
		case "@gt":
			return c > 0, nil
		case "@gte":
			return c >= 0, nil
		case "@lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case "@concat":
		var b strings.Builder
		for _, a := range args {
			s, ok := a.(string)
			if !ok {
				return nil, NewExpressionError(e, fmt.Errorf("cannot concatenate %v (%T)", a, a))
			}
			b.WriteString(s)
		}
		return b.String(), nil
	}

	return nil, NewExpressionError(e, fmt.Errorf("unknown operator %q", e.Op))
}

func (e *Expression) evalBool(doc document.Document, arg *Expression) (bool, error) {
	v, err := arg.Evaluate(doc)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, NewExpressionError(e, fmt.Errorf("expected a boolean, got %v (%T)", v, v))
	}
	return b, nil
}

func (e *Expression) multiply(args []any) (any, error) {
	var acc any = int64(1)
	for _, a := range args {
		prod, err := document.Multiply(acc, a)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		acc = prod
	}
	return acc, nil
}

// Fields is a set of named expressions evaluated into a document.
type Fields struct {
	names []string
	exprs map[string]*Expression
}

// NewFields compiles a map of field names to expressions.
func NewFields(spec map[string]any) (*Fields, error) {
	f := &Fields{exprs: map[string]*Expression{}}
	for name, v := range spec {
		e, err := NewExpression(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		f.names = append(f.names, name)
		f.exprs[name] = e
	}
	sort.Strings(f.names)
	return f, nil
}

// Evaluate computes every field on a document.
func (f *Fields) Evaluate(doc document.Document) (document.Document, error) {
	ret := make(document.Document, len(f.names))
	for _, name := range f.names {
		v, err := f.exprs[name].Evaluate(doc)
		if err != nil {
			return nil, err
		}
		ret[name] = v
	}
	return ret, nil
}
