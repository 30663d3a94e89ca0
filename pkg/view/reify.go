package view

import (
	"strings"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/selector"
	"github.com/l7mp/liveview/pkg/store"
)

// Reifier replays the change feed of a view into a secondary in-memory store. The store exists
// only while the reifier is active; it is shared by every ReifierView built on the reifier.
type Reifier struct {
	upstream   View
	env        Env
	lc         *Lifecycle
	collection *store.Collection
	sub        feed.Subscription
}

// NewReifier creates a reifier for a view.
func NewReifier(upstream View) *Reifier {
	r := &Reifier{upstream: upstream, env: upstream.Env()}
	r.lc = NewLifecycle("reifier", r.env, r.start, r.suspend)
	return r
}

// KeepAlive keeps the secondary store populated until the handle is stopped.
func (r *Reifier) KeepAlive() (feed.Subscription, error) { return r.lc.KeepAlive() }

// Lifecycle returns the activation state of the reifier.
func (r *Reifier) Lifecycle() *Lifecycle { return r.lc }

// Collection returns the secondary store, or nil if the reifier is suspended.
func (r *Reifier) Collection() *store.Collection { return r.collection }

func (r *Reifier) start(_ feed.Callbacks) error {
	c := store.New(store.Options{Name: "reified", Logger: r.env.Logger})
	sub, err := r.upstream.Observe(feed.Callbacks{
		Added: func(doc document.Document) error {
			_, err := c.Insert(escapeReserved(doc))
			return err
		},
		Changed: func(doc, old document.Document) error {
			return c.Update(old[document.IDField], escapeReserved(doc))
		},
		Removed: func(doc document.Document) error {
			_, err := c.Remove(doc[document.IDField])
			return err
		},
	})
	if err != nil {
		return err
	}
	r.collection, r.sub = c, sub
	return nil
}

func (r *Reifier) suspend() {
	if r.sub != nil {
		r.sub.Stop()
		r.sub = nil
	}
	r.collection = nil
}

// escapeReserved renames top-level fields starting with "$", which the store would take for
// update modifiers, to "dollar_<name>".
func escapeReserved(doc document.Document) document.Document {
	ret := make(document.Document, len(doc))
	for k, v := range doc {
		if strings.HasPrefix(k, "$") {
			k = "dollar_" + k[1:]
		}
		ret[k] = v
	}
	return ret
}

// ReifierView queries the secondary store of a reifier. It is ordered, and selectors,
// projections and sorts applied to it are evaluated by the store.
type ReifierView struct {
	*Base
	reifier *Reifier
	query   Query
}

// NewReifierView creates a view querying the store of a reifier.
func NewReifierView(r *Reifier, q Query) (*ReifierView, error) {
	if err := q.validate(); err != nil {
		return nil, NewConfigError("reified view", err)
	}
	v := &ReifierView{reifier: r, query: q}
	base, err := NewBase(r.env, Impl{
		Observe:            v.observe,
		ForEachNonreactive: v.forEachNonreactive,
		KeepAlive:          r.KeepAlive,
		Explain:            v.explain,
		Ordered:            true,
	})
	if err != nil {
		return nil, err
	}
	v.Base = base
	v.bind(v)
	return v, nil
}

// Reifier returns the reifier the view queries.
func (v *ReifierView) Reifier() *Reifier { return v.reifier }

func (v *ReifierView) observe(cb feed.Callbacks) (feed.Subscription, error) {
	keep, err := v.reifier.KeepAlive()
	if err != nil {
		return nil, err
	}
	cur, err := v.query.find(v.reifier.collection)
	if err != nil {
		keep.Stop()
		return nil, err
	}
	sub, err := cur.Observe(cb)
	if err != nil {
		keep.Stop()
		return nil, err
	}
	return feed.NewSubscription(v.env.Scheduler, func() {
		sub.Stop()
		keep.Stop()
	}), nil
}

func (v *ReifierView) forEachNonreactive(fn IterFunc) error {
	var err error
	v.env.Scheduler.Nonreactive(func() {
		var keep feed.Subscription
		if keep, err = v.reifier.KeepAlive(); err != nil {
			return
		}
		defer keep.Stop()

		var cur *store.Cursor
		if cur, err = v.query.find(v.reifier.collection); err != nil {
			return
		}
		err = cur.ForEach(fn)
	})
	return err
}

// Filter composes selectors in the store and falls back to a filter view for other predicates.
func (v *ReifierView) Filter(p Predicate) (View, error) {
	sel, ok := p.(*selector.Selector)
	if !ok {
		return v.Base.Filter(p)
	}
	return NewReifierView(v.reifier, v.query.filter(sel))
}

func (v *ReifierView) Pick(fields ...string) (View, error) {
	q, err := v.query.pick(fields)
	if err != nil {
		return nil, NewConfigError("pick", err)
	}
	return NewReifierView(v.reifier, q)
}

func (v *ReifierView) Omit(fields ...string) (View, error) {
	q, err := v.query.omit(fields)
	if err != nil {
		return nil, NewConfigError("omit", err)
	}
	return NewReifierView(v.reifier, q)
}

func (v *ReifierView) Sort(spec selector.Sort) (View, error) {
	q := v.query
	q.Sort = spec
	return NewReifierView(v.reifier, q)
}

// Reify returns the view itself if it queries the whole store unchanged.
func (v *ReifierView) Reify() (View, error) {
	if v.query.IsTrivial() {
		return v, nil
	}
	return v.Base.Reify()
}

func (v *ReifierView) explain() *Plan {
	return &Plan{
		Op:     "find",
		Args:   v.query.String(),
		Inputs: []*Plan{newPlan("reify", "", v.reifier.upstream)},
	}
}
