package view

import (
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/selector"
)

// EmptyView is the empty set. Every transform of the empty set is the empty set.
type EmptyView struct {
	*Base
}

// Empty returns an empty view.
func Empty(env Env) View {
	v := &EmptyView{}
	// the impl is complete so NewBase cannot fail
	v.Base, _ = NewBase(env, Impl{
		ObserveAfter:       func(feed.Callbacks) (feed.Subscription, error) { return feed.Nop, nil },
		ForEachNonreactive: func(IterFunc) error { return nil },
		Explain:            func() *Plan { return &Plan{Op: "empty set"} },
		Ordered:            true,
	})
	v.bind(v)
	return v
}

func (v *EmptyView) Filter(Predicate) (View, error) { return v, nil }

func (v *EmptyView) Map(MapFunc) (View, error) { return v, nil }

func (v *EmptyView) AddFields(map[string]FieldFunc) (View, error) { return v, nil }

func (v *EmptyView) Pick(...string) (View, error) { return v, nil }

func (v *EmptyView) Omit(...string) (View, error) { return v, nil }

func (v *EmptyView) Reify() (View, error) { return v, nil }

func (v *EmptyView) Order() (View, error) { return v, nil }

func (v *EmptyView) Sort(selector.Sort) (View, error) { return v, nil }
