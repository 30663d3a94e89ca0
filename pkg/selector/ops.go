package selector

import (
	"fmt"

	"github.com/l7mp/liveview/pkg/document"
)

// op evaluates one operator against the value found at a field path. exists is false if the
// path did not resolve.
type op func(v any, exists bool) bool

func compileOp(name string, arg any) (op, error) {
	switch name {
	case "$eq":
		return eqOp(arg), nil
	case "$ne":
		eq := eqOp(arg)
		return func(v any, exists bool) bool { return !eq(v, exists) }, nil
	case "$gt":
		return cmpOp(arg, func(c int) bool { return c > 0 }), nil
	case "$gte":
		return cmpOp(arg, func(c int) bool { return c >= 0 }), nil
	case "$lt":
		return cmpOp(arg, func(c int) bool { return c < 0 }), nil
	case "$lte":
		return cmpOp(arg, func(c int) bool { return c <= 0 }), nil
	case "$in":
		list, ok := arg.([]any)
		if !ok {
			return nil, fmt.Errorf("$in expects a list, got %v", arg)
		}
		return inOp(list), nil
	case "$nin":
		list, ok := arg.([]any)
		if !ok {
			return nil, fmt.Errorf("$nin expects a list, got %v", arg)
		}
		in := inOp(list)
		return func(v any, exists bool) bool { return !in(v, exists) }, nil
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return nil, fmt.Errorf("$exists expects a boolean, got %v", arg)
		}
		return func(_ any, exists bool) bool { return exists == want }, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", name)
	}
}

// eqOp matches a value equal to the literal, or a list containing an element equal to it. A nil
// literal also matches a missing field.
func eqOp(lit any) op {
	return func(v any, exists bool) bool {
		if !exists {
			return lit == nil
		}
		if document.DeepEqual(v, lit) {
			return true
		}
		if list, ok := v.([]any); ok {
			for _, elem := range list {
				if document.DeepEqual(elem, lit) {
					return true
				}
			}
		}
		return false
	}
}

func cmpOp(lit any, pred func(int) bool) op {
	kind := document.Kind(lit)
	return func(v any, exists bool) bool {
		if !exists {
			return false
		}
		if document.Kind(v) == kind && pred(document.Compare(v, lit)) {
			return true
		}
		if list, ok := v.([]any); ok && kind != document.KindList {
			for _, elem := range list {
				if document.Kind(elem) == kind && pred(document.Compare(elem, lit)) {
					return true
				}
			}
		}
		return false
	}
}

func inOp(lits []any) op {
	eqs := make([]op, len(lits))
	for i := range lits {
		eqs[i] = eqOp(lits[i])
	}
	return func(v any, exists bool) bool {
		for _, eq := range eqs {
			if eq(v, exists) {
				return true
			}
		}
		return false
	}
}
