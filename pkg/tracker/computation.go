package tracker

// Computation is a tracked function run. Invalidating a computation runs its invalidation
// callbacks immediately and schedules the function to re-run on the next Flush.
type Computation struct {
	tracker      *Tracker
	fn           func(*Computation) error
	onInvalidate []func()
	invalidated  bool
	stopped      bool
	firstRun     bool
}

// FirstRun returns true during the initial run of the computation.
func (c *Computation) FirstRun() bool { return c.firstRun }

// Invalidated returns true if the computation has been invalidated and not yet re-run.
func (c *Computation) Invalidated() bool { return c.invalidated }

// Stopped returns true if the computation was stopped.
func (c *Computation) Stopped() bool { return c.stopped }

// OnInvalidate registers fn to be called when the computation is next invalidated. If the
// computation is already invalidated, fn is called at once.
func (c *Computation) OnInvalidate(fn func()) {
	if c.invalidated {
		c.tracker.Nonreactive(fn)
		return
	}
	c.onInvalidate = append(c.onInvalidate, fn)
}

// Invalidate marks the computation for re-run and fires the invalidation callbacks.
func (c *Computation) Invalidate() {
	if c.invalidated {
		return
	}
	c.invalidated = true
	if !c.stopped {
		c.tracker.pending = append(c.tracker.pending, c)
	}

	callbacks := c.onInvalidate
	c.onInvalidate = nil
	for _, fn := range callbacks {
		c.tracker.Nonreactive(fn)
	}
}

// Stop invalidates the computation and prevents any further re-run.
func (c *Computation) Stop() {
	if c.stopped {
		return
	}
	c.stopped = true
	c.Invalidate()
}

func (c *Computation) run() error {
	prev := c.tracker.current
	c.tracker.current = c
	defer func() { c.tracker.current = prev }()
	return c.fn(c)
}

func (c *Computation) rerun() error {
	if c.stopped || !c.invalidated {
		return nil
	}
	c.invalidated = false
	return c.run()
}
