package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/selector"
)

// FindOptions control the shape of a cursor.
type FindOptions struct {
	Projection *selector.Projection
	Sort       selector.Sort
}

// Cursor is a live query over a collection. Cursors are cheap: every operation re-evaluates the
// query.
type Cursor struct {
	collection *Collection
	selector   *selector.Selector
	projection *selector.Projection
	sort       selector.Sort
}

// Collection returns the collection the cursor queries.
func (c *Cursor) Collection() *Collection { return c.collection }

// Selector returns the selector of the cursor.
func (c *Cursor) Selector() *selector.Selector { return c.selector }

// Projection returns the projection of the cursor. May be nil.
func (c *Cursor) Projection() *selector.Projection { return c.projection }

// Sort returns the sort specification of the cursor. May be nil.
func (c *Cursor) Sort() selector.Sort { return c.sort }

// Fetch returns the projected documents in cursor order.
func (c *Cursor) Fetch() ([]document.Document, error) {
	recs, err := c.matching()
	if err != nil {
		return nil, err
	}
	ret := make([]document.Document, len(recs))
	for i, r := range recs {
		ret[i] = c.projection.Apply(r.doc)
	}
	return ret, nil
}

// ForEach calls fn for each projected document in cursor order. An error stops the iteration.
func (c *Cursor) ForEach(fn func(doc document.Document) error) error {
	recs, err := c.matching()
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := fn(c.projection.Apply(r.doc)); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of matching documents.
func (c *Cursor) Count() (int, error) {
	recs, err := c.matching()
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Observe delivers the current result set as additions and then every subsequent change until
// the subscription is stopped. Positional callbacks receive indices in cursor order.
func (c *Cursor) Observe(cb feed.Callbacks) (feed.Subscription, error) {
	obs := &observer{cursor: c, callbacks: cb, index: map[string]*entry{}}

	recs, err := c.matching()
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		e := obs.newEntry(r)
		obs.entries = append(obs.entries, e)
		obs.index[e.key] = e
	}

	for i, e := range obs.entries {
		if err := obs.emitAdded(e, i, nil); err != nil {
			return nil, err
		}
	}

	c.collection.observers = append(c.collection.observers, obs)
	c.collection.log.V(4).Info("observe", "selector", c.selector.String(), "ordered", cb.IsOrdered(),
		"initial", len(obs.entries))

	return feed.NewSubscription(nil, func() { c.collection.removeObserver(obs) }), nil
}

func (c *Cursor) matching() ([]*record, error) {
	recs := []*record{}
	for _, r := range c.collection.candidates(c.selector) {
		ok, err := c.selector.Match(r.doc)
		if err != nil {
			return nil, err
		}
		if ok {
			recs = append(recs, r)
		}
	}
	if c.sort != nil {
		sort.SliceStable(recs, func(i, j int) bool { return c.sort.Compare(recs[i].doc, recs[j].doc) < 0 })
	}
	return recs, nil
}

// entry is a document in the result set of an observer. raw is kept for sorting on fields the
// projection may drop.
type entry struct {
	key  string
	seq  uint64
	raw  document.Document
	proj document.Document
}

// observer tracks the result set of an observed cursor.
type observer struct {
	cursor    *Cursor
	callbacks feed.Callbacks
	entries   []*entry
	index     map[string]*entry
	stopped   bool
}

func (o *observer) newEntry(r *record) *entry {
	return &entry{key: r.key, seq: r.seq, raw: r.doc, proj: o.cursor.projection.Apply(r.doc)}
}

func (o *observer) less(a, b *entry) bool {
	if o.cursor.sort != nil {
		return o.cursor.sort.Compare(a.raw, b.raw) < 0
	}
	return a.seq < b.seq
}

func (o *observer) position(e *entry) int {
	for i := range o.entries {
		if o.entries[i].key == e.key {
			return i
		}
	}
	return -1
}

func (o *observer) insert(e *entry) int {
	i := sort.Search(len(o.entries), func(i int) bool { return o.less(e, o.entries[i]) })
	o.entries = append(o.entries, nil)
	copy(o.entries[i+1:], o.entries[i:])
	o.entries[i] = e
	o.index[e.key] = e
	return i
}

func (o *observer) delete(i int) {
	delete(o.index, o.entries[i].key)
	o.entries = append(o.entries[:i], o.entries[i+1:]...)
}

// beforeID returns the identifier of the entry following position i, or nil.
func (o *observer) beforeID(i int) any {
	if i+1 < len(o.entries) {
		return o.entries[i+1].proj[document.IDField]
	}
	return nil
}

func (o *observer) handle(old, cur *record) error {
	if o.stopped {
		return nil
	}

	var was *entry
	if old != nil {
		was = o.index[old.key]
	}

	matches := false
	if cur != nil {
		ok, err := o.cursor.selector.Match(cur.doc)
		if err != nil {
			return err
		}
		matches = ok
	}

	switch {
	case was == nil && matches:
		e := o.newEntry(cur)
		i := o.insert(e)
		return o.emitAdded(e, i, o.beforeID(i))

	case was != nil && !matches:
		i := o.position(was)
		o.delete(i)
		return o.emitRemoved(was, i)

	case was != nil && matches:
		from := o.position(was)
		o.delete(from)
		e := o.newEntry(cur)
		to := o.insert(e)
		return o.emitChanged(e, was, from, to)
	}

	return nil
}

func (o *observer) emitAdded(e *entry, index int, before any) error {
	cb := o.callbacks
	if err := cb.EmitAdded(document.DeepCopy(e.proj)); err != nil {
		return err
	}
	if cb.AddedAt != nil {
		return cb.AddedAt(document.DeepCopy(e.proj), index, before)
	}
	return nil
}

func (o *observer) emitRemoved(e *entry, index int) error {
	cb := o.callbacks
	if err := cb.EmitRemoved(document.DeepCopy(e.proj)); err != nil {
		return err
	}
	if cb.RemovedAt != nil {
		return cb.RemovedAt(document.DeepCopy(e.proj), index)
	}
	return nil
}

func (o *observer) emitChanged(e, was *entry, from, to int) error {
	cb := o.callbacks
	if !document.DeepEqual(e.proj, was.proj) {
		if err := cb.EmitChanged(document.DeepCopy(e.proj), document.DeepCopy(was.proj)); err != nil {
			return err
		}
		if cb.ChangedAt != nil {
			if err := cb.ChangedAt(document.DeepCopy(e.proj), document.DeepCopy(was.proj), from); err != nil {
				return err
			}
		}
	}
	if from != to && cb.MovedTo != nil {
		return cb.MovedTo(document.DeepCopy(e.proj), from, to, o.beforeID(to))
	}
	return nil
}

// notify delivers a mutation to every observer registered at the time of the call. Observer
// errors do not stop the delivery to the remaining observers.
func (c *Collection) notify(old, cur *record) error {
	observers := make([]*observer, len(c.observers))
	copy(observers, c.observers)
	var errs []error
	for _, o := range observers {
		if err := o.handle(old, cur); err != nil {
			errs = append(errs, fmt.Errorf("observer of collection %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Collection) removeObserver(obs *observer) {
	obs.stopped = true
	for i, o := range c.observers {
		if o == obs {
			c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
			return
		}
	}
}
