package view

import (
	"fmt"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/selector"
	"github.com/l7mp/liveview/pkg/store"
)

// CollectionView is the leaf view over a store collection. Selectors, projections and sorts
// applied to it are composed into a single store query rather than evaluated by operators.
type CollectionView struct {
	*Base
	collection *store.Collection
	query      Query
}

// NewCollectionView creates a view of the documents of a collection matching a query.
func NewCollectionView(env Env, c *store.Collection, q Query) (*CollectionView, error) {
	if err := q.validate(); err != nil {
		return nil, NewConfigError("collection view", err)
	}
	v := &CollectionView{collection: c, query: q}
	base, err := NewBase(env, Impl{
		Observe:            v.observe,
		ForEachNonreactive: v.forEachNonreactive,
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

// Query returns the store query of the view.
func (v *CollectionView) Query() Query { return v.query }

func (v *CollectionView) observe(cb feed.Callbacks) (feed.Subscription, error) {
	cur, err := v.query.find(v.collection)
	if err != nil {
		return nil, err
	}
	var sub feed.Subscription
	v.env.Scheduler.Nonreactive(func() { sub, err = cur.Observe(cb) })
	if err != nil {
		return nil, err
	}
	return feed.NewSubscription(v.env.Scheduler, sub.Stop), nil
}

func (v *CollectionView) forEachNonreactive(fn IterFunc) error {
	cur, err := v.query.find(v.collection)
	if err != nil {
		return err
	}
	v.env.Scheduler.Nonreactive(func() { err = cur.ForEach(fn) })
	return err
}

// Filter composes selectors into the query and falls back to a filter view for other
// predicates. Filtering on a field the projection dropped still sees the field.
func (v *CollectionView) Filter(p Predicate) (View, error) {
	sel, ok := p.(*selector.Selector)
	if !ok {
		return v.Base.Filter(p)
	}
	return NewCollectionView(v.env, v.collection, v.query.filter(sel))
}

func (v *CollectionView) Pick(fields ...string) (View, error) {
	q, err := v.query.pick(fields)
	if err != nil {
		return nil, NewConfigError("pick", err)
	}
	return NewCollectionView(v.env, v.collection, q)
}

func (v *CollectionView) Omit(fields ...string) (View, error) {
	q, err := v.query.omit(fields)
	if err != nil {
		return nil, NewConfigError("omit", err)
	}
	return NewCollectionView(v.env, v.collection, q)
}

func (v *CollectionView) Sort(spec selector.Sort) (View, error) {
	q := v.query
	q.Sort = spec
	return NewCollectionView(v.env, v.collection, q)
}

// Reify returns the view itself if it is the whole collection unchanged.
func (v *CollectionView) Reify() (View, error) {
	if v.query.IsTrivial() {
		return v, nil
	}
	return v.Base.Reify()
}

func (v *CollectionView) explain() *Plan {
	return &Plan{Op: v.collection.Name() + ".find", Args: v.query.String()}
}

// Cursor is a live query result of an external store: a change feed with enumeration.
// *store.Cursor is a Cursor.
type Cursor interface {
	Observe(cb feed.Callbacks) (feed.Subscription, error)
	ForEach(fn func(doc document.Document) error) error
}

var _ Cursor = &store.Cursor{}

// NewCursorView creates an ordered view over a cursor.
func NewCursorView(env Env, cur Cursor) (View, error) {
	var b *Base
	base, err := NewBase(env, Impl{
		Observe: func(cb feed.Callbacks) (feed.Subscription, error) {
			var sub feed.Subscription
			var err error
			b.env.Scheduler.Nonreactive(func() { sub, err = cur.Observe(cb) })
			if err != nil {
				return nil, err
			}
			return feed.NewSubscription(b.env.Scheduler, sub.Stop), nil
		},
		ForEachNonreactive: func(fn IterFunc) error {
			var err error
			b.env.Scheduler.Nonreactive(func() { err = cur.ForEach(fn) })
			return err
		},
		Explain: func() *Plan { return &Plan{Op: "cursor"} },
		Ordered: true,
	})
	if err != nil {
		return nil, err
	}
	b = base
	return b, nil
}

// From converts a collection, a cursor or a view into a view.
func From(env Env, src any) (View, error) {
	switch s := src.(type) {
	case View:
		return s, nil
	case *store.Collection:
		return NewCollectionView(env, s, Query{})
	case Cursor:
		return NewCursorView(env, s)
	default:
		return nil, NewConfigError("view", fmt.Errorf("cannot create a view from %T", src))
	}
}
