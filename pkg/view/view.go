// Package view implements live views: derived, incrementally maintained query results over a
// document store. Every view delivers a change feed to its subscribers and can be further
// filtered, transformed, projected, grouped, merged and reified into a secondary store.
//
// Operators never recompute their result from scratch. Each consumes the change feed of its
// upstream and translates every upstream event into zero, one or two downstream events.
// Stateful operators are activated lazily on first use and suspended when no longer used, see
// Lifecycle.
package view

import (
	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/selector"
)

// IterFunc is called for each document of a view.
type IterFunc = func(doc document.Document) error

// View is a live view.
//
// Callbacks are never run inside a tracked computation. Subscriptions and keep-alive handles
// created inside a computation are stopped when the computation is invalidated.
type View interface {
	// Observe delivers an Added (or AddedAt) for every document currently in the view, then every
	// subsequent change until the subscription is stopped.
	Observe(cb feed.Callbacks) (feed.Subscription, error)
	// ObserveAfter is like Observe but skips the initial documents.
	ObserveAfter(cb feed.Callbacks) (feed.Subscription, error)
	// ForEachNonreactive enumerates the current documents without registering a dependency.
	ForEachNonreactive(fn IterFunc) error
	// ForEach enumerates the current documents. Inside a computation it registers a dependency
	// that invalidates the computation on the next change.
	ForEach(fn IterFunc) error
	// Fetch returns the current documents. Dependencies are registered like in ForEach.
	Fetch() ([]document.Document, error)
	// KeepAlive prevents the view from suspending until the handle is stopped.
	KeepAlive() (feed.Subscription, error)
	// IsOrdered returns true if the view has an explicit order and supports the positional
	// callbacks natively.
	IsOrdered() bool
	// Explain describes how the view is computed.
	Explain() *Plan
	// Env returns the context the view runs in.
	Env() Env

	// Filter returns the documents for which the predicate holds.
	Filter(p Predicate) (View, error)
	// Map transforms each document with a pure function. The identifier is kept.
	Map(fn MapFunc) (View, error)
	// AddFields adds fields computed from each document.
	AddFields(fields map[string]FieldFunc) (View, error)
	// Pick keeps only the given fields and the identifier.
	Pick(fields ...string) (View, error)
	// Omit drops the given fields.
	Omit(fields ...string) (View, error)
	// Group groups the documents and aggregates each group.
	Group(opts GroupOptions) (View, error)
	// Reify materializes the view into a secondary store. The result is memoized.
	Reify() (View, error)
	// Order returns an ordered version of the view.
	Order() (View, error)
	// Sort returns the view sorted by the given specification. Applying a further transform to a
	// sorted view is not guaranteed to preserve the order.
	Sort(spec selector.Sort) (View, error)
}

// Impl holds the native operations of a view. Each missing operation is derived from the
// others: at least one of Observe and ObserveAfter, and at least one of ForEach and
// ForEachNonreactive must be set.
type Impl struct {
	Observe            func(cb feed.Callbacks) (feed.Subscription, error)
	ObserveAfter       func(cb feed.Callbacks) (feed.Subscription, error)
	ForEach            func(fn IterFunc) error
	ForEachNonreactive func(fn IterFunc) error
	KeepAlive          func() (feed.Subscription, error)
	Explain            func() *Plan
	Ordered            bool
}

// Base implements View on top of an Impl. Operators embed a *Base and override the derived
// operations they can serve better.
type Base struct {
	impl    Impl
	self    View
	env     Env
	reified View
}

var _ View = &Base{}

// NewBase creates the base of a view. Operators of this package rebind the base to the
// embedding view so that derived operations see their overrides.
func NewBase(env Env, impl Impl) (*Base, error) {
	if impl.Observe == nil && impl.ObserveAfter == nil {
		return nil, ErrMissingImplementation
	}
	if impl.ForEach == nil && impl.ForEachNonreactive == nil {
		return nil, ErrMissingImplementation
	}
	b := &Base{impl: impl, env: env.withDefaults()}
	b.self = b
	return b, nil
}

// New creates a view from an Impl.
func New(env Env, impl Impl) (View, error) { return NewBase(env, impl) }

func (b *Base) bind(self View) { b.self = self }

func (b *Base) Env() Env { return b.env }

func (b *Base) IsOrdered() bool { return b.impl.Ordered }

func (b *Base) Observe(cb feed.Callbacks) (feed.Subscription, error) {
	if cb.IsOrdered() && !b.impl.Ordered {
		ordered, err := b.self.Order()
		if err != nil {
			return nil, err
		}
		return ordered.Observe(cb)
	}

	cb = b.nonreactive(cb)
	if b.impl.Observe != nil {
		return b.impl.Observe(cb)
	}

	// hold the view across the snapshot and the subscription so that it is started once
	keep, err := b.self.KeepAlive()
	if err != nil {
		return nil, err
	}
	defer keep.Stop()

	if cb.Added != nil || cb.AddedAt != nil {
		index := 0
		if err := b.self.ForEachNonreactive(func(doc document.Document) error {
			if cb.AddedAt != nil {
				if err := cb.AddedAt(document.DeepCopy(doc), index, nil); err != nil {
					return err
				}
			}
			index++
			return cb.EmitAdded(doc)
		}); err != nil {
			return nil, err
		}
	}

	return b.self.ObserveAfter(cb)
}

func (b *Base) ObserveAfter(cb feed.Callbacks) (feed.Subscription, error) {
	if cb.IsOrdered() && !b.impl.Ordered {
		ordered, err := b.self.Order()
		if err != nil {
			return nil, err
		}
		return ordered.ObserveAfter(cb)
	}

	cb = b.nonreactive(cb)
	if b.impl.ObserveAfter != nil {
		return b.impl.ObserveAfter(cb)
	}

	initial := true
	skip := cb
	if cb.Added != nil {
		skip.Added = func(doc document.Document) error {
			if initial {
				return nil
			}
			return cb.Added(doc)
		}
	}
	if cb.AddedAt != nil {
		skip.AddedAt = func(doc document.Document, index int, before any) error {
			if initial {
				return nil
			}
			return cb.AddedAt(doc, index, before)
		}
	}
	sub, err := b.impl.Observe(skip)
	initial = false
	return sub, err
}

func (b *Base) ForEachNonreactive(fn IterFunc) error {
	if b.impl.ForEachNonreactive != nil {
		return b.impl.ForEachNonreactive(fn)
	}
	var err error
	b.env.Scheduler.Nonreactive(func() { err = b.impl.ForEach(fn) })
	return err
}

func (b *Base) ForEach(fn IterFunc) error {
	if b.impl.ForEach != nil {
		return b.impl.ForEach(fn)
	}
	if b.env.Scheduler.Current() == nil {
		return b.self.ForEachNonreactive(fn)
	}
	docs, err := b.self.Fetch()
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func (b *Base) Fetch() ([]document.Document, error) {
	ret := []document.Document{}
	collect := func(doc document.Document) error {
		ret = append(ret, doc)
		return nil
	}

	if b.impl.ForEach != nil {
		if err := b.impl.ForEach(collect); err != nil {
			return nil, err
		}
		return ret, nil
	}

	if err := b.self.ForEachNonreactive(collect); err != nil {
		return nil, err
	}

	if c := b.env.Scheduler.Current(); c != nil {
		invalidate := func() error { c.Invalidate(); return nil }
		// the subscription stops itself when the computation is invalidated
		if _, err := b.self.ObserveAfter(feed.Callbacks{
			Added:   func(document.Document) error { return invalidate() },
			Changed: func(_, _ document.Document) error { return invalidate() },
			Removed: func(document.Document) error { return invalidate() },
		}); err != nil {
			return nil, err
		}
	}

	return ret, nil
}

func (b *Base) KeepAlive() (feed.Subscription, error) {
	if b.impl.KeepAlive != nil {
		return b.impl.KeepAlive()
	}
	return feed.NewSubscription(b.env.Scheduler, func() {}), nil
}

func (b *Base) Explain() *Plan {
	if b.impl.Explain != nil {
		return b.impl.Explain()
	}
	return &Plan{Op: "view"}
}

func (b *Base) Filter(p Predicate) (View, error) { return NewFilter(b.self, p) }

func (b *Base) Map(fn MapFunc) (View, error) { return NewMap(b.self, fn) }

func (b *Base) AddFields(fields map[string]FieldFunc) (View, error) {
	if len(fields) == 0 {
		return b.self, nil
	}
	return NewAddFields(b.self, fields)
}

func (b *Base) Pick(fields ...string) (View, error) { return NewPick(b.self, fields) }

func (b *Base) Omit(fields ...string) (View, error) {
	if len(fields) == 0 {
		return b.self, nil
	}
	return NewOmit(b.self, fields)
}

func (b *Base) Group(opts GroupOptions) (View, error) { return NewGroup(b.self, opts) }

func (b *Base) Reify() (View, error) {
	if b.reified == nil {
		v, err := NewReifierView(NewReifier(b.self), Query{})
		if err != nil {
			return nil, err
		}
		b.reified = v
	}
	return b.reified, nil
}

func (b *Base) Order() (View, error) {
	if b.impl.Ordered {
		return b.self, nil
	}
	return b.self.Reify()
}

func (b *Base) Sort(spec selector.Sort) (View, error) {
	ordered, err := b.self.Order()
	if err != nil {
		return nil, err
	}
	if ordered == b.self {
		// ordered but not sortable natively: sort in the secondary store
		if ordered, err = b.self.Reify(); err != nil {
			return nil, err
		}
		if ordered == b.self {
			return nil, NewConfigError("sort", ErrNotSortable)
		}
	}
	return ordered.Sort(spec)
}

// nonreactive wraps every callback to run outside of any computation.
func (b *Base) nonreactive(cb feed.Callbacks) feed.Callbacks {
	s := b.env.Scheduler
	run := func(fn func() error) error {
		var err error
		s.Nonreactive(func() { err = fn() })
		return err
	}

	ret := feed.Callbacks{}
	if cb.Added != nil {
		ret.Added = func(doc document.Document) error { return run(func() error { return cb.Added(doc) }) }
	}
	if cb.Changed != nil {
		ret.Changed = func(doc, old document.Document) error {
			return run(func() error { return cb.Changed(doc, old) })
		}
	}
	if cb.Removed != nil {
		ret.Removed = func(doc document.Document) error { return run(func() error { return cb.Removed(doc) }) }
	}
	if cb.AddedAt != nil {
		ret.AddedAt = func(doc document.Document, index int, before any) error {
			return run(func() error { return cb.AddedAt(doc, index, before) })
		}
	}
	if cb.ChangedAt != nil {
		ret.ChangedAt = func(doc, old document.Document, index int) error {
			return run(func() error { return cb.ChangedAt(doc, old, index) })
		}
	}
	if cb.RemovedAt != nil {
		ret.RemovedAt = func(doc document.Document, index int) error {
			return run(func() error { return cb.RemovedAt(doc, index) })
		}
	}
	if cb.MovedTo != nil {
		ret.MovedTo = func(doc document.Document, from, to int, before any) error {
			return run(func() error { return cb.MovedTo(doc, from, to, before) })
		}
	}
	return ret
}
