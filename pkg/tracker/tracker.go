// Package tracker provides the host scheduling context that live views run in: a deferred
// "after flush" queue used to postpone work to the next idle checkpoint, and tracked
// computations that re-run when a dependency is invalidated.
//
// Everything here is single-threaded: a Tracker and everything scheduled on it must be driven from
// one goroutine.
package tracker

import (
	"errors"

	"github.com/go-logr/logr"
)

// Scheduler is the scheduling context injected into views.
type Scheduler interface {
	// AfterFlush defers fn to the next idle checkpoint.
	AfterFlush(fn func())
	// OnInvalidate registers fn to run when the current computation is invalidated. It returns
	// false if no computation is running.
	OnInvalidate(fn func()) bool
	// Nonreactive runs fn outside of any computation.
	Nonreactive(fn func())
	// Current returns the running computation or nil.
	Current() *Computation
}

// Options configure a Tracker.
type Options struct {
	Logger logr.Logger
}

// Tracker is the default Scheduler. Deferred work runs when Flush is called.
type Tracker struct {
	current    *Computation
	afterFlush []func()
	pending    []*Computation
	flushing   bool
	log        logr.Logger
}

var _ Scheduler = &Tracker{}

// New creates a new tracker.
func New(opts Options) *Tracker {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &Tracker{log: logger.WithName("tracker")}
}

// AfterFlush defers fn to the next call to Flush.
func (t *Tracker) AfterFlush(fn func()) {
	t.afterFlush = append(t.afterFlush, fn)
}

// OnInvalidate registers fn on the current computation.
func (t *Tracker) OnInvalidate(fn func()) bool {
	if t.current == nil {
		return false
	}
	t.current.OnInvalidate(fn)
	return true
}

// Nonreactive runs fn with no current computation.
func (t *Tracker) Nonreactive(fn func()) {
	prev := t.current
	t.current = nil
	defer func() { t.current = prev }()
	fn()
}

// Current returns the running computation.
func (t *Tracker) Current() *Computation { return t.current }

// Active returns true if a computation is running.
func (t *Tracker) Active() bool { return t.current != nil }

// Autorun runs fn in a new computation and re-runs it on Flush whenever the computation has been
// invalidated in between. The error of the first run is returned; errors of re-runs are returned
// by Flush.
func (t *Tracker) Autorun(fn func(c *Computation) error) (*Computation, error) {
	c := &Computation{tracker: t, fn: fn, firstRun: true}
	err := c.run()
	c.firstRun = false
	return c, err
}

// Flush re-runs invalidated computations and then runs the deferred work, repeating until nothing
// is left. Calls made while a flush is in progress are no-ops.
func (t *Tracker) Flush() error {
	if t.flushing {
		return nil
	}
	t.flushing = true
	defer func() { t.flushing = false }()

	var errs []error
	for len(t.pending) > 0 || len(t.afterFlush) > 0 {
		for len(t.pending) > 0 {
			c := t.pending[0]
			t.pending = t.pending[1:]
			if err := c.rerun(); err != nil {
				t.log.V(2).Info("computation failed on re-run", "error", err.Error())
				errs = append(errs, err)
			}
		}

		if len(t.afterFlush) > 0 {
			fn := t.afterFlush[0]
			t.afterFlush = t.afterFlush[1:]
			fn()
		}
	}

	return errors.Join(errs...)
}

// Immediate is a Scheduler without computations that runs deferred work at once, for hosts that
// have no idle checkpoint.
type Immediate struct{}

var _ Scheduler = Immediate{}

func (Immediate) AfterFlush(fn func()) { fn() }

func (Immediate) OnInvalidate(func()) bool { return false }

func (Immediate) Nonreactive(fn func()) { fn() }

func (Immediate) Current() *Computation { return nil }
