package view

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/selector"
)

// MapFunc is a pure document transformation. The identifier of the result is overwritten with
// the identifier of the input.
type MapFunc func(doc document.Document) (document.Document, error)

// FieldFunc computes the value of a field from a document.
type FieldFunc func(doc document.Document) (any, error)

// transformView applies a per-document transformation to its upstream.
type transformView struct {
	*suspendView
	upstream View
	apply    func(doc document.Document) (document.Document, error)
	// suppress decides whether a change is invisible downstream
	suppress func(doc, old, newOut, oldOut document.Document) bool
}

func newTransformView(upstream View, name string, apply func(document.Document) (document.Document, error),
	suppress func(doc, old, newOut, oldOut document.Document) bool, explain func() *Plan) (*transformView, error) {
	v := &transformView{upstream: upstream, apply: apply, suppress: suppress}
	start, stop := relay(upstream, v.translate)
	sv, err := newSuspendView(upstream.Env(), name, start, stop, v.forEachNonreactive, explain)
	if err != nil {
		return nil, err
	}
	v.suspendView = sv
	return v, nil
}

func (v *transformView) translate(emit feed.Callbacks) feed.Callbacks {
	return feed.Callbacks{
		Added: func(doc document.Document) error {
			out, err := v.apply(doc)
			if err != nil {
				return err
			}
			return emit.EmitAdded(out)
		},
		Changed: func(doc, old document.Document) error {
			newOut, err := v.apply(doc)
			if err != nil {
				return err
			}
			oldOut, err := v.apply(old)
			if err != nil {
				return err
			}
			if v.suppress != nil && v.suppress(doc, old, newOut, oldOut) {
				return nil
			}
			return emit.EmitChanged(newOut, oldOut)
		},
		Removed: func(doc document.Document) error {
			out, err := v.apply(doc)
			if err != nil {
				return err
			}
			return emit.EmitRemoved(out)
		},
	}
}

func (v *transformView) forEachNonreactive(fn IterFunc) error {
	return v.upstream.ForEachNonreactive(func(doc document.Document) error {
		out, err := v.apply(doc)
		if err != nil {
			return err
		}
		return fn(out)
	})
}

// equalOutputs suppresses changes whose transformed documents are deeply equal.
func equalOutputs(_, _, newOut, oldOut document.Document) bool {
	return document.DeepEqual(newOut, oldOut)
}

// MapView applies a pure function to each document of its upstream.
type MapView struct {
	*transformView
	fn MapFunc
}

// NewMap creates a mapped view. Changes that leave the transformed document intact are not
// propagated.
func NewMap(upstream View, fn MapFunc) (*MapView, error) {
	if fn == nil {
		return nil, NewConfigError("map", errors.New("nil function"))
	}
	v := &MapView{fn: fn}
	tv, err := newTransformView(upstream, "map", v.apply, equalOutputs,
		func() *Plan { return newPlan("map", "<func>", upstream) })
	if err != nil {
		return nil, err
	}
	v.transformView = tv
	v.bind(v)
	return v, nil
}

func (v *MapView) apply(doc document.Document) (document.Document, error) {
	out, err := v.fn(document.DeepCopy(doc))
	if err != nil {
		return nil, NewCallbackError("map function", err)
	}
	if out == nil {
		out = document.Document{}
	}
	out, err = document.Normalize(out)
	if err != nil {
		return nil, NewCallbackError("map function", err)
	}
	out[document.IDField] = doc[document.IDField]
	return out, nil
}

// AddFieldsView extends each document of its upstream with computed fields.
type AddFieldsView struct {
	*transformView
	fields map[string]FieldFunc
	names  []string
}

// NewAddFields creates a view with computed fields. The identifier field cannot be computed.
func NewAddFields(upstream View, fields map[string]FieldFunc) (*AddFieldsView, error) {
	names := make([]string, 0, len(fields))
	for name, fn := range fields {
		if name == document.IDField {
			return nil, NewConfigError("addFields", selector.NewProjectionError(name, selector.ErrIDField))
		}
		if fn == nil {
			return nil, NewConfigError("addFields", fmt.Errorf("nil function for field %q", name))
		}
		names = append(names, name)
	}
	sort.Strings(names)

	v := &AddFieldsView{fields: fields, names: names}
	tv, err := newTransformView(upstream, "addFields", v.apply, nil,
		func() *Plan { return newPlan("addFields", strings.Join(names, ","), upstream) })
	if err != nil {
		return nil, err
	}
	v.transformView = tv
	v.bind(v)
	return v, nil
}

func (v *AddFieldsView) apply(doc document.Document) (document.Document, error) {
	out := document.DeepCopy(doc)
	for _, name := range v.names {
		val, err := v.fields[name](document.DeepCopy(doc))
		if err != nil {
			return nil, NewCallbackError(fmt.Sprintf("field %q", name), err)
		}
		if val, err = document.NormalizeValue(val); err != nil {
			return nil, NewCallbackError(fmt.Sprintf("field %q", name), err)
		}
		out[name] = val
	}
	return out, nil
}
