package view

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
)

// EncodeID returns the identifier of a document of the idx-th source of a union. String and
// ObjectID identifiers are supported; the encoding keeps the two kinds apart and is reversible
// with DecodeID.
func EncodeID(idx int, id any) (string, error) {
	switch v := id.(type) {
	case string:
		return strconv.Itoa(idx) + "s" + v, nil
	case document.ObjectID:
		return strconv.Itoa(idx) + "o" + v.Hex(), nil
	default:
		return "", fmt.Errorf("%w: %v (%T)", ErrUnsupportedID, id, id)
	}
}

// DecodeID returns the source index and the original identifier of a union identifier.
func DecodeID(encoded string) (int, any, error) {
	i := strings.IndexFunc(encoded, func(r rune) bool { return r < '0' || r > '9' })
	if i <= 0 {
		return 0, nil, fmt.Errorf("%w: %q", ErrInvalidEncodedID, encoded)
	}
	idx, err := strconv.Atoi(encoded[:i])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %q", ErrInvalidEncodedID, encoded)
	}
	rest := encoded[i+1:]
	switch encoded[i] {
	case 's':
		return idx, rest, nil
	case 'o':
		oid, err := document.ObjectIDFromHex(rest)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %w", ErrInvalidEncodedID, err)
		}
		return idx, oid, nil
	}
	return 0, nil, fmt.Errorf("%w: %q", ErrInvalidEncodedID, encoded)
}

// UnionView is the disjoint union of its sources: a document present in two sources appears
// twice. Identifiers are rewritten with EncodeID so that they stay unique.
type UnionView struct {
	*suspendView
	sources []View
	subs    []feed.Subscription
}

// Union returns the union of the given views. The union of no views is the empty set and the
// union of a single view is that view.
func Union(env Env, views ...View) (View, error) {
	switch len(views) {
	case 0:
		return Empty(env), nil
	case 1:
		return views[0], nil
	}
	return NewUnion(env, views...)
}

// NewUnion creates a union view.
func NewUnion(env Env, views ...View) (*UnionView, error) {
	v := &UnionView{sources: views}
	sv, err := newSuspendView(env, "union", v.start, v.suspend, v.forEachNonreactive, v.explain)
	if err != nil {
		return nil, err
	}
	v.suspendView = sv
	v.bind(v)
	return v, nil
}

func retag(idx int, doc document.Document) (document.Document, error) {
	id, err := EncodeID(idx, doc[document.IDField])
	if err != nil {
		return nil, err
	}
	ret := document.DeepCopy(doc)
	ret[document.IDField] = id
	return ret, nil
}

func (v *UnionView) start(emit feed.Callbacks) error {
	for i, src := range v.sources {
		sub, err := src.ObserveAfter(feed.Callbacks{
			Added: func(doc document.Document) error {
				d, err := retag(i, doc)
				if err != nil {
					return err
				}
				return emit.EmitAdded(d)
			},
			Changed: func(doc, old document.Document) error {
				d, err := retag(i, doc)
				if err != nil {
					return err
				}
				o, err := retag(i, old)
				if err != nil {
					return err
				}
				return emit.EmitChanged(d, o)
			},
			Removed: func(doc document.Document) error {
				d, err := retag(i, doc)
				if err != nil {
					return err
				}
				return emit.EmitRemoved(d)
			},
		})
		if err != nil {
			v.suspend()
			return err
		}
		v.subs = append(v.subs, sub)
	}
	return nil
}

func (v *UnionView) suspend() {
	for _, sub := range v.subs {
		sub.Stop()
	}
	v.subs = nil
}

func (v *UnionView) forEachNonreactive(fn IterFunc) error {
	for i, src := range v.sources {
		if err := src.ForEachNonreactive(func(doc document.Document) error {
			d, err := retag(i, doc)
			if err != nil {
				return err
			}
			return fn(d)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (v *UnionView) explain() *Plan { return newPlan("union", "", v.sources...) }
