package testutils

import (
	"fmt"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/tracker"
)

// Mutated is written into every document a Recorder receives, after recording it. A view that
// hands out its internal state instead of a copy shows the value in later events.
const Mutated = "mutated by the recorder"

// Recorder logs change-feed callbacks. It also reports callbacks invoked inside a tracked
// computation.
type Recorder struct {
	Log[feed.Event]
	sched      tracker.Scheduler
	violations []string
}

// NewRecorder creates a recorder checking callbacks against the given scheduler.
func NewRecorder(sched tracker.Scheduler) *Recorder {
	return &Recorder{sched: sched}
}

// Callbacks returns unordered callbacks logging into the recorder.
func (r *Recorder) Callbacks() feed.Callbacks {
	return feed.Callbacks{
		Added: func(doc document.Document) error {
			r.check("added")
			r.Append(Added(doc))
			doc["x"] = Mutated
			return nil
		},
		Changed: func(doc, old document.Document) error {
			r.check("changed")
			r.Append(Changed(doc, old))
			doc["x"] = Mutated
			return nil
		},
		Removed: func(doc document.Document) error {
			r.check("removed")
			r.Append(Removed(doc))
			doc["x"] = Mutated
			return nil
		},
	}
}

// OrderedCallbacks returns positional callbacks logging into the recorder.
func (r *Recorder) OrderedCallbacks() feed.Callbacks {
	var events []feed.Event
	cb := feed.CollectOrdered(&events)
	flush := func() {
		for _, e := range events {
			r.Append(e)
		}
		events = events[:0]
	}
	return feed.Callbacks{
		AddedAt: func(doc document.Document, index int, before any) error {
			r.check("addedAt")
			defer flush()
			return cb.AddedAt(doc, index, before)
		},
		ChangedAt: func(doc, old document.Document, index int) error {
			r.check("changedAt")
			defer flush()
			return cb.ChangedAt(doc, old, index)
		},
		RemovedAt: func(doc document.Document, index int) error {
			r.check("removedAt")
			defer flush()
			return cb.RemovedAt(doc, index)
		},
		MovedTo: func(doc document.Document, from, to int, before any) error {
			r.check("movedTo")
			defer flush()
			return cb.MovedTo(doc, from, to, before)
		},
	}
}

// Violations returns the callbacks that were invoked inside a computation.
func (r *Recorder) Violations() []string { return r.violations }

func (r *Recorder) check(name string) {
	if r.sched != nil && r.sched.Current() != nil {
		r.violations = append(r.violations, fmt.Sprintf("%s called inside a computation", name))
	}
}

// Added is the expected record of an added callback.
func Added(doc document.Document) feed.Event {
	return feed.Event{Type: feed.Added, Doc: document.DeepCopy(doc), Index: -1, ToIndex: -1}
}

// Changed is the expected record of a changed callback.
func Changed(doc, old document.Document) feed.Event {
	return feed.Event{Type: feed.Changed, Doc: document.DeepCopy(doc), Old: document.DeepCopy(old),
		Index: -1, ToIndex: -1}
}

// Removed is the expected record of a removed callback.
func Removed(doc document.Document) feed.Event {
	return feed.Event{Type: feed.Removed, Doc: document.DeepCopy(doc), Index: -1, ToIndex: -1}
}
