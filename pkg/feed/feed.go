// Package feed defines the change-feed contract spoken by stores and views: the event vocabulary
// (added, changed, removed and their positional variants) and the subscription handle.
package feed

import (
	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/tracker"
)

// Callbacks is a set of change-feed callbacks. Any of them may be nil. A callback returning an
// error aborts the delivery of the current event; the error is returned to the caller that
// triggered the event.
//
// The unordered callbacks receive every document in the result set. The positional variants are
// only delivered by ordered views: before is the identifier of the document the affected one now
// precedes, or nil if it is last.
type Callbacks struct {
	Added   func(doc document.Document) error
	Changed func(doc, old document.Document) error
	Removed func(doc document.Document) error

	AddedAt   func(doc document.Document, index int, before any) error
	ChangedAt func(doc, old document.Document, index int) error
	RemovedAt func(doc document.Document, index int) error
	MovedTo   func(doc document.Document, from, to int, before any) error
}

// IsOrdered returns true if any positional callback is set.
func (c Callbacks) IsOrdered() bool {
	return c.AddedAt != nil || c.ChangedAt != nil || c.RemovedAt != nil || c.MovedTo != nil
}

// Unordered returns the callbacks with the positional variants removed.
func (c Callbacks) Unordered() Callbacks {
	return Callbacks{Added: c.Added, Changed: c.Changed, Removed: c.Removed}
}

// EmitAdded calls the Added callback if set.
func (c Callbacks) EmitAdded(doc document.Document) error {
	if c.Added == nil {
		return nil
	}
	return c.Added(doc)
}

// EmitChanged calls the Changed callback if set.
func (c Callbacks) EmitChanged(doc, old document.Document) error {
	if c.Changed == nil {
		return nil
	}
	return c.Changed(doc, old)
}

// EmitRemoved calls the Removed callback if set.
func (c Callbacks) EmitRemoved(doc document.Document) error {
	if c.Removed == nil {
		return nil
	}
	return c.Removed(doc)
}

// Subscription is the handle returned by observe calls. Stop is idempotent.
type Subscription interface {
	Stop()
}

type stopper struct {
	fn      func()
	stopped bool
}

func (s *stopper) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	s.fn()
}

// NewSubscription wraps fn into an idempotent Subscription. If a computation is running on the
// scheduler, the subscription stops itself when that computation is invalidated.
func NewSubscription(sched tracker.Scheduler, fn func()) Subscription {
	s := &stopper{fn: fn}
	if sched != nil {
		sched.OnInvalidate(s.Stop)
	}
	return s
}

// Nop is a subscription that does nothing.
var Nop Subscription = &stopper{fn: func() {}, stopped: true}
