package view

import (
	"errors"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/selector"
)

// Predicate decides whether a document belongs to a filtered view. *selector.Selector is a
// Predicate.
type Predicate interface {
	Match(doc document.Document) (bool, error)
	String() string
}

var _ Predicate = &selector.Selector{}

// PredicateFunc adapts a pure function to a Predicate.
type PredicateFunc func(doc document.Document) (bool, error)

func (f PredicateFunc) Match(doc document.Document) (bool, error) { return f(doc) }

func (f PredicateFunc) String() string { return "<func>" }

// FilterView contains the documents of its upstream for which a predicate holds.
type FilterView struct {
	*suspendView
	upstream View
	pred     Predicate
}

// NewFilter creates a filtered view. The predicate always receives a private copy of the
// document.
func NewFilter(upstream View, pred Predicate) (*FilterView, error) {
	if pred == nil {
		return nil, NewConfigError("filter", errors.New("nil predicate"))
	}

	v := &FilterView{upstream: upstream, pred: pred}
	start, suspend := relay(upstream, v.translate)
	sv, err := newSuspendView(upstream.Env(), "filter", start, suspend, v.forEachNonreactive, v.explain)
	if err != nil {
		return nil, err
	}
	v.suspendView = sv
	v.bind(v)
	return v, nil
}

func (v *FilterView) match(doc document.Document) (bool, error) {
	ok, err := v.pred.Match(document.DeepCopy(doc))
	if err != nil {
		return false, NewCallbackError("filter predicate", err)
	}
	return ok, nil
}

func (v *FilterView) translate(emit feed.Callbacks) feed.Callbacks {
	log := v.env.Logger.WithName("filter")
	return feed.Callbacks{
		Added: func(doc document.Document) error {
			ok, err := v.match(doc)
			if err != nil || !ok {
				return err
			}
			return emit.EmitAdded(doc)
		},
		Changed: func(doc, old document.Document) error {
			ok, err := v.match(doc)
			if err != nil {
				return err
			}
			wasOK, err := v.match(old)
			if err != nil {
				return err
			}
			switch {
			case ok && wasOK:
				return emit.EmitChanged(doc, old)
			case ok:
				return emit.EmitAdded(doc)
			case wasOK:
				return emit.EmitRemoved(old)
			}
			log.V(8).Info("change suppressed", "id", doc[document.IDField])
			return nil
		},
		Removed: func(doc document.Document) error {
			ok, err := v.match(doc)
			if err != nil || !ok {
				return err
			}
			return emit.EmitRemoved(doc)
		},
	}
}

func (v *FilterView) forEachNonreactive(fn IterFunc) error {
	return v.upstream.ForEachNonreactive(func(doc document.Document) error {
		ok, err := v.match(doc)
		if err != nil || !ok {
			return err
		}
		return fn(doc)
	})
}

func (v *FilterView) explain() *Plan { return newPlan("filter", v.pred.String(), v.upstream) }
