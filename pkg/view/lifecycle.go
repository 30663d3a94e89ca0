package view

import (
	"errors"

	"github.com/go-logr/logr"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
)

// StartFunc starts the internal subscriptions of a view. Events for the subscribers of the view
// are to be sent to emit.
type StartFunc func(emit feed.Callbacks) error

// Lifecycle is the reference-counted activation shared by every stateful view. The first
// keep-alive starts the view; when the last one is released, suspension is deferred to the next
// idle checkpoint of the scheduler and only happens if the view is still unused by then.
type Lifecycle struct {
	name        string
	env         Env
	start       StartFunc
	suspend     func()
	refs        int
	active      bool
	subscribers []*subscriber
	nextID      int
	log         logr.Logger
}

type subscriber struct {
	id        int
	callbacks feed.Callbacks
	stopped   bool
}

// NewLifecycle creates a lifecycle. suspend must release all state allocated by start.
func NewLifecycle(name string, env Env, start StartFunc, suspend func()) *Lifecycle {
	env = env.withDefaults()
	return &Lifecycle{
		name:    name,
		env:     env,
		start:   start,
		suspend: suspend,
		log:     env.Logger.WithName("lifecycle").WithValues("view", name),
	}
}

// Active returns true if the view is started.
func (l *Lifecycle) Active() bool { return l.active }

// Refs returns the number of outstanding keep-alive handles.
func (l *Lifecycle) Refs() int { return l.refs }

// KeepAlive returns a handle that keeps the view started until stopped. If called inside a
// computation, the handle is released when the computation is invalidated.
func (l *Lifecycle) KeepAlive() (feed.Subscription, error) {
	if !l.active {
		var err error
		l.env.Scheduler.Nonreactive(func() { err = l.start(l.emitter()) })
		if err != nil {
			return nil, err
		}
		l.active = true
		l.env.Metrics.started()
		l.log.V(1).Info("started")
	}
	l.refs++

	return feed.NewSubscription(l.env.Scheduler, l.release), nil
}

func (l *Lifecycle) release() {
	l.refs--
	if l.refs > 0 {
		return
	}
	l.log.V(8).Info("unused, suspension deferred")
	l.env.Scheduler.AfterFlush(func() {
		if !l.active || l.refs > 0 {
			return
		}
		l.suspend()
		l.active = false
		l.env.Metrics.suspended()
		l.log.V(1).Info("suspended")
	})
}

// Subscribe registers callbacks for the events emitted after the call, keeping the view alive
// until the subscription is stopped.
func (l *Lifecycle) Subscribe(cb feed.Callbacks) (feed.Subscription, error) {
	keep, err := l.KeepAlive()
	if err != nil {
		return nil, err
	}

	id := l.nextID
	l.nextID++
	l.subscribers = append(l.subscribers, &subscriber{id: id, callbacks: cb})

	return feed.NewSubscription(l.env.Scheduler, func() {
		for i, s := range l.subscribers {
			if s.id == id {
				s.stopped = true
				l.subscribers = append(l.subscribers[:i:i], l.subscribers[i+1:]...)
				break
			}
		}
		keep.Stop()
	}), nil
}

// emitter returns the callbacks fanning events out to the current subscribers. Every subscriber
// receives its own copy of each document. Delivery continues past failing subscribers and the
// errors are returned together.
func (l *Lifecycle) emitter() feed.Callbacks {
	return feed.Callbacks{
		Added: func(doc document.Document) error {
			return l.each(func(cb feed.Callbacks) error { return cb.EmitAdded(document.DeepCopy(doc)) })
		},
		Changed: func(doc, old document.Document) error {
			return l.each(func(cb feed.Callbacks) error {
				return cb.EmitChanged(document.DeepCopy(doc), document.DeepCopy(old))
			})
		},
		Removed: func(doc document.Document) error {
			return l.each(func(cb feed.Callbacks) error { return cb.EmitRemoved(document.DeepCopy(doc)) })
		},
	}
}

func (l *Lifecycle) each(fn func(cb feed.Callbacks) error) error {
	l.env.Metrics.emitted()
	subs := make([]*subscriber, len(l.subscribers))
	copy(subs, l.subscribers)

	var errs []error
	for _, s := range subs {
		if s.stopped {
			continue
		}
		var err error
		l.env.Scheduler.Nonreactive(func() { err = fn(s.callbacks) })
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
