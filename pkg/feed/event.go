package feed

import (
	"fmt"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/util"
)

// EventType is the type of a change event.
type EventType string

const (
	Added   EventType = "added"
	Changed EventType = "changed"
	Removed EventType = "removed"
	Moved   EventType = "moved"
)

// Event is a recorded change event. Index fields are -1 for unordered events.
type Event struct {
	Type     EventType
	Doc      document.Document
	Old      document.Document
	Index    int
	ToIndex  int
	BeforeID any
}

func (e Event) String() string {
	switch e.Type {
	case Changed:
		return fmt.Sprintf("%s:%s->%s", e.Type, util.Stringify(e.Old), util.Stringify(e.Doc))
	case Moved:
		return fmt.Sprintf("%s:%s:%d->%d", e.Type, util.Stringify(e.Doc), e.Index, e.ToIndex)
	default:
		return fmt.Sprintf("%s:%s", e.Type, util.Stringify(e.Doc))
	}
}

// Collect returns callbacks appending a deep copy of every unordered event to the given slice.
func Collect(events *[]Event) Callbacks {
	return Callbacks{
		Added: func(doc document.Document) error {
			*events = append(*events, Event{Type: Added, Doc: document.DeepCopy(doc), Index: -1, ToIndex: -1})
			return nil
		},
		Changed: func(doc, old document.Document) error {
			*events = append(*events, Event{Type: Changed, Doc: document.DeepCopy(doc),
				Old: document.DeepCopy(old), Index: -1, ToIndex: -1})
			return nil
		},
		Removed: func(doc document.Document) error {
			*events = append(*events, Event{Type: Removed, Doc: document.DeepCopy(doc), Index: -1, ToIndex: -1})
			return nil
		},
	}
}

// CollectOrdered returns positional callbacks appending every ordered event to the given slice.
func CollectOrdered(events *[]Event) Callbacks {
	return Callbacks{
		AddedAt: func(doc document.Document, index int, before any) error {
			*events = append(*events, Event{Type: Added, Doc: document.DeepCopy(doc), Index: index,
				ToIndex: -1, BeforeID: before})
			return nil
		},
		ChangedAt: func(doc, old document.Document, index int) error {
			*events = append(*events, Event{Type: Changed, Doc: document.DeepCopy(doc),
				Old: document.DeepCopy(old), Index: index, ToIndex: -1})
			return nil
		},
		RemovedAt: func(doc document.Document, index int) error {
			*events = append(*events, Event{Type: Removed, Doc: document.DeepCopy(doc), Index: index, ToIndex: -1})
			return nil
		},
		MovedTo: func(doc document.Document, from, to int, before any) error {
			*events = append(*events, Event{Type: Moved, Doc: document.DeepCopy(doc), Index: from,
				ToIndex: to, BeforeID: before})
			return nil
		},
	}
}
