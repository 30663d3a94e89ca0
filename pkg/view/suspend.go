package view

import (
	"github.com/l7mp/liveview/pkg/feed"
)

// suspendView is an unordered view whose events come from a Lifecycle.
type suspendView struct {
	*Base
	lc *Lifecycle
}

func newSuspendView(env Env, name string, start StartFunc, suspend func(), forEach func(IterFunc) error,
	explain func() *Plan) (*suspendView, error) {
	lc := NewLifecycle(name, env, start, suspend)
	base, err := NewBase(env, Impl{
		ObserveAfter:       lc.Subscribe,
		ForEachNonreactive: forEach,
		KeepAlive:          lc.KeepAlive,
		Explain:            explain,
	})
	if err != nil {
		return nil, err
	}
	return &suspendView{Base: base, lc: lc}, nil
}

// Lifecycle returns the activation state of the view.
func (v *suspendView) Lifecycle() *Lifecycle { return v.lc }

// relay returns the lifecycle functions of an operator that translates the events of a single
// upstream into its own.
func relay(upstream View, translate func(emit feed.Callbacks) feed.Callbacks) (StartFunc, func()) {
	var sub feed.Subscription
	start := func(emit feed.Callbacks) error {
		s, err := upstream.ObserveAfter(translate(emit))
		if err != nil {
			return err
		}
		sub = s
		return nil
	}
	suspend := func() {
		if sub != nil {
			sub.Stop()
			sub = nil
		}
	}
	return start, suspend
}
