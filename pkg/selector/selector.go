// Package selector implements declarative document selectors, projections and sort
// specifications.
//
// A selector is a predicate tree given as a map, in the familiar document-store syntax:
//
//	{"g": "A"}                                 // field equality
//	{"x": {"$gt": 0, "$lte": 10}}              // comparisons, implicitly ANDed
//	{"$and": [{"g": "A"}, {"x": {"$ne": 1}}]}  // explicit conjunction
//	{"a.b": {"$exists": true}}                 // nested paths
//
// Top-level fields are combined with logical AND. Comparison operators only match values of the
// same kind (numbers against numbers, strings against strings, and so on).
package selector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ohler55/ojg/jp"
	"k8s.io/apimachinery/pkg/util/json"
	"sigs.k8s.io/yaml"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/util"
)

// Selector is a compiled selector.
type Selector struct {
	raw     map[string]any
	clauses []clause
}

type clause interface {
	match(doc document.Document) bool
}

// New compiles a selector from its map representation.
func New(spec map[string]any) (*Selector, error) {
	if spec == nil {
		spec = map[string]any{}
	}
	norm, err := document.NormalizeValue(map[string]any(spec))
	if err != nil {
		return nil, NewSelectorError(spec, err)
	}
	raw := norm.(map[string]any)

	s := &Selector{raw: raw}
	for _, key := range document.Keys(raw) {
		val := raw[key]
		if key == "$and" {
			c, err := compileAnd(val)
			if err != nil {
				return nil, NewSelectorError(spec, err)
			}
			s.clauses = append(s.clauses, c)
			continue
		}
		if strings.HasPrefix(key, "$") {
			return nil, NewSelectorError(spec, fmt.Errorf("unknown top-level operator %q", key))
		}
		c, err := compileField(key, val)
		if err != nil {
			return nil, NewSelectorError(spec, err)
		}
		s.clauses = append(s.clauses, c)
	}

	return s, nil
}

// MustNew is like New but panics on error. Intended for static selectors in tests and examples.
func MustNew(spec map[string]any) *Selector {
	s, err := New(spec)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse compiles a selector from its YAML or JSON representation.
func Parse(data []byte) (*Selector, error) {
	spec := map[string]any{}
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, NewSelectorError(string(data), err)
	}
	return New(spec)
}

// ForID returns the "identifier equals literal" selector.
func ForID(id any) *Selector {
	return &Selector{
		raw:     map[string]any{document.IDField: id},
		clauses: []clause{&fieldClause{
			field:     document.IDField,
			path:      jp.R().C(document.IDField),
			ops:       []op{eqOp(id)},
			literal:   id,
			isLiteral: true,
		}},
	}
}

// And returns the conjunction of selectors. Empty selectors are dropped; a single remaining
// selector is returned as is.
func And(sels ...*Selector) *Selector {
	nonEmpty := make([]*Selector, 0, len(sels))
	for _, s := range sels {
		if s != nil && !s.IsEmpty() {
			nonEmpty = append(nonEmpty, s)
		}
	}
	switch len(nonEmpty) {
	case 0:
		return &Selector{raw: map[string]any{}}
	case 1:
		return nonEmpty[0]
	}

	raws := make([]any, len(nonEmpty))
	subs := make([]*Selector, len(nonEmpty))
	for i, s := range nonEmpty {
		raws[i] = s.raw
		subs[i] = s
	}
	return &Selector{raw: map[string]any{"$and": raws}, clauses: []clause{&andClause{subs: subs}}}
}

// Match evaluates the selector on a document.
func (s *Selector) Match(doc document.Document) (bool, error) {
	if s == nil {
		return true, nil
	}
	for _, c := range s.clauses {
		if !c.match(doc) {
			return false, nil
		}
	}
	return true, nil
}

// EqualityValue returns the scalar literal the selector requires the top-level field to equal, if
// any. A document matches only if the field equals the literal or is a list containing it.
func (s *Selector) EqualityValue(field string) (any, bool) {
	if s == nil {
		return nil, false
	}
	for _, c := range s.clauses {
		if fc, ok := c.(*fieldClause); ok && fc.field == field && fc.isLiteral {
			return fc.literal, true
		}
	}
	return nil, false
}

// IsEmpty returns true if the selector matches every document.
func (s *Selector) IsEmpty() bool { return s == nil || len(s.clauses) == 0 }

// Raw returns a copy of the map representation of the selector.
func (s *Selector) Raw() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return document.DeepCopyValue(s.raw).(map[string]any)
}

// MarshalJSON encodes the selector in its map representation.
func (s *Selector) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Raw())
}

func (s *Selector) String() string { return util.Stringify(s.Raw()) }

type andClause struct {
	subs []*Selector
}

func (c *andClause) match(doc document.Document) bool {
	for _, s := range c.subs {
		if ok, _ := s.Match(doc); !ok {
			return false
		}
	}
	return true
}

func compileAnd(val any) (clause, error) {
	list, ok := val.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("$and expects a non-empty list of selectors, got %v", val)
	}
	c := &andClause{}
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("$and element %d is not a selector: %v", i, item)
		}
		sub, err := New(m)
		if err != nil {
			return nil, err
		}
		c.subs = append(c.subs, sub)
	}
	return c, nil
}

type fieldClause struct {
	field string
	path  jp.Expr
	ops   []op

	// literal is set for a plain equality on a scalar, which lets stores use an index.
	literal   any
	isLiteral bool
}

func (c *fieldClause) match(doc document.Document) bool {
	values := c.path.Get(doc)
	var v any
	exists := len(values) > 0
	if exists {
		v = values[0]
	}
	for _, o := range c.ops {
		if !o(v, exists) {
			return false
		}
	}
	return true
}

func compileField(field string, val any) (clause, error) {
	path := jp.R()
	for _, p := range strings.Split(field, ".") {
		if p == "" {
			return nil, fmt.Errorf("invalid field path %q", field)
		}
		path = path.C(p)
	}

	c := &fieldClause{field: field, path: path}

	m, isMap := val.(map[string]any)
	if !isMap || !isOperatorDoc(m) {
		c.ops = []op{eqOp(val)}
		switch document.Kind(val) {
		case document.KindNumber, document.KindString, document.KindBool, document.KindObjectID:
			c.literal, c.isLiteral = val, true
		}
		return c, nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o, err := compileOp(k, m[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		c.ops = append(c.ops, o)
	}
	return c, nil
}

// isOperatorDoc decides whether a field value is an operator document ({"$gt": 1}) rather than a
// literal nested document to compare against.
func isOperatorDoc(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}
