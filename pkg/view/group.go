package view

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/selector"
)

// GroupOptions configure a Group view.
type GroupOptions struct {
	// By lists the top-level fields to group by. Empty means a single group over the whole
	// input.
	By []string
	// Aggregate maps output fields to aggregators. Empty means distinct groups only.
	Aggregate map[string]Aggregator
}

// GroupView groups the documents of its upstream by the values of a set of fields and keeps an
// aggregate record per group. Each record has a synthetic identifier, the group-by fields of the
// group and the aggregated fields.
//
// Group keys are canonical: field order is irrelevant, numerically equal values fall into the same
// group regardless of representation, every NaN is one group and -0 is the same group as 0.
type GroupView struct {
	*suspendView
	upstream View
	by       []string
	aggNames []string
	agg      map[string]Aggregator

	groups  map[string]*group
	loading bool
	sub     feed.Subscription
	log     logr.Logger
}

type group struct {
	record document.Document
	count  int
}

// NewGroup creates a group view.
func NewGroup(upstream View, opts GroupOptions) (*GroupView, error) {
	by, err := selector.NewProjection(opts.By, true)
	if err != nil {
		return nil, NewConfigError("group", err)
	}

	names := make([]string, 0, len(opts.Aggregate))
	for name, a := range opts.Aggregate {
		if err := selector.ValidateFields([]string{name}); err != nil {
			return nil, NewConfigError("group", err)
		}
		if a == nil {
			return nil, NewConfigError("group", fmt.Errorf("nil aggregator for field %q", name))
		}
		for _, f := range by.Fields {
			if f == name {
				return nil, NewConfigError("group",
					fmt.Errorf("field %q is both a group-by and an aggregated field", name))
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	v := &GroupView{upstream: upstream, by: by.Fields, aggNames: names, agg: opts.Aggregate}
	sv, err := newSuspendView(upstream.Env(), "group", v.start, v.suspend, v.forEachNonreactive, v.explain)
	if err != nil {
		return nil, err
	}
	v.suspendView = sv
	v.log = v.env.Logger.WithName("group")
	v.bind(v)
	return v, nil
}

func (v *GroupView) start(emit feed.Callbacks) error {
	v.groups = map[string]*group{}

	// Groups are assembled silently while the upstream delivers its initial documents and
	// reach subscribers through their own initial replay.
	v.loading = true
	sub, err := v.upstream.Observe(feed.Callbacks{
		Added: func(doc document.Document) error {
			return v.add(emit, doc)
		},
		Changed: func(doc, old document.Document) error {
			return v.change(emit, doc, old)
		},
		Removed: func(doc document.Document) error {
			return v.remove(emit, doc)
		},
	})
	v.loading = false
	if err != nil {
		v.groups = nil
		return err
	}
	v.sub = sub
	return nil
}

func (v *GroupView) suspend() {
	if v.sub != nil {
		v.sub.Stop()
		v.sub = nil
	}
	v.groups = nil
}

// groupOf returns the canonical key and the group-by fields of a document.
func (v *GroupView) groupOf(doc document.Document) (string, document.Document, error) {
	fields := document.Document{}
	for _, f := range v.by {
		if val, ok := doc[f]; ok {
			fields[f] = document.DeepCopyValue(val)
		}
	}
	key, err := document.CanonicalKey(fields)
	if err != nil {
		return "", nil, err
	}
	return key, fields, nil
}

// update computes a new record by applying op to every aggregated field. The stored record is
// not modified.
func (v *GroupView) update(rec document.Document, op func(a Aggregator, acc any) (any, error)) (document.Document, bool, error) {
	next := document.DeepCopy(rec)
	changed := false
	for _, name := range v.aggNames {
		val, err := op(v.agg[name], next[name])
		if err != nil {
			return nil, false, NewCallbackError(fmt.Sprintf("aggregator %q", name), err)
		}
		if val, err = document.NormalizeValue(val); err != nil {
			return nil, false, NewCallbackError(fmt.Sprintf("aggregator %q", name), err)
		}
		if !document.DeepEqual(val, rec[name]) {
			changed = true
		}
		next[name] = val
	}
	return next, changed, nil
}

func (v *GroupView) add(emit feed.Callbacks, doc document.Document) error {
	key, fields, err := v.groupOf(doc)
	if err != nil {
		return err
	}

	if g, ok := v.groups[key]; ok {
		next, changed, err := v.update(g.record, func(a Aggregator, acc any) (any, error) { return a.Add(acc, doc) })
		if err != nil {
			return err
		}
		old := g.record
		g.record, g.count = next, g.count+1
		if v.loading || !changed {
			return nil
		}
		v.log.V(4).Info("group changed", "key", key, "count", g.count)
		return emit.EmitChanged(document.DeepCopy(next), old)
	}

	rec := fields
	rec[document.IDField] = document.NewStringID()
	for _, name := range v.aggNames {
		val, err := v.agg[name].Initial(doc)
		if err != nil {
			return NewCallbackError(fmt.Sprintf("aggregator %q", name), err)
		}
		if rec[name], err = document.NormalizeValue(val); err != nil {
			return NewCallbackError(fmt.Sprintf("aggregator %q", name), err)
		}
	}
	v.groups[key] = &group{record: rec, count: 1}
	if v.loading {
		return nil
	}
	v.log.V(4).Info("group added", "key", key)
	return emit.EmitAdded(document.DeepCopy(rec))
}

func (v *GroupView) remove(emit feed.Callbacks, doc document.Document) error {
	key, _, err := v.groupOf(doc)
	if err != nil {
		return err
	}
	g, ok := v.groups[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, key)
	}

	if g.count == 1 {
		delete(v.groups, key)
		if v.loading {
			return nil
		}
		v.log.V(4).Info("group removed", "key", key)
		return emit.EmitRemoved(g.record)
	}

	next, changed, err := v.update(g.record, func(a Aggregator, acc any) (any, error) { return a.Subtract(acc, doc) })
	if err != nil {
		return err
	}
	old := g.record
	g.record, g.count = next, g.count-1
	if v.loading || !changed {
		return nil
	}
	v.log.V(4).Info("group changed", "key", key, "count", g.count)
	return emit.EmitChanged(document.DeepCopy(next), old)
}

func (v *GroupView) change(emit feed.Callbacks, doc, old document.Document) error {
	newKey, _, err := v.groupOf(doc)
	if err != nil {
		return err
	}
	oldKey, _, err := v.groupOf(old)
	if err != nil {
		return err
	}

	if newKey != oldKey {
		// the removed side is delivered before the added side
		if err := v.remove(emit, old); err != nil {
			return err
		}
		return v.add(emit, doc)
	}

	if len(v.aggNames) == 0 {
		return nil
	}
	g, ok := v.groups[newKey]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, newKey)
	}
	next, changed, err := v.update(g.record, func(a Aggregator, acc any) (any, error) {
		acc, err := a.Subtract(acc, old)
		if err != nil {
			return nil, err
		}
		return a.Add(acc, doc)
	})
	if err != nil {
		return err
	}
	prev := g.record
	g.record = next
	if v.loading || !changed {
		return nil
	}
	v.log.V(4).Info("group changed", "key", newKey, "count", g.count)
	return emit.EmitChanged(document.DeepCopy(next), prev)
}

func (v *GroupView) forEachNonreactive(fn IterFunc) error {
	var err error
	v.env.Scheduler.Nonreactive(func() {
		var keep feed.Subscription
		if keep, err = v.lc.KeepAlive(); err != nil {
			return
		}
		defer keep.Stop()

		keys := make([]string, 0, len(v.groups))
		for k := range v.groups {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err = fn(document.DeepCopy(v.groups[k].record)); err != nil {
				return
			}
		}
	})
	return err
}

func (v *GroupView) explain() *Plan {
	args := "by=[" + strings.Join(v.by, ",") + "]"
	if len(v.aggNames) > 0 {
		parts := make([]string, len(v.aggNames))
		for i, name := range v.aggNames {
			parts[i] = name
			if s, ok := v.agg[name].(fmt.Stringer); ok {
				parts[i] = name + "=" + s.String()
			}
		}
		args += ", aggregate={" + strings.Join(parts, ",") + "}"
	}
	return newPlan("group", args, v.upstream)
}
