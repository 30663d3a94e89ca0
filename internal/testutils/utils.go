package testutils

import (
	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/tracker"
)

// Log is a list of recorded entries drained by the test.
type Log[T any] struct {
	entries []T
}

// Append records an entry.
func (l *Log[T]) Append(e T) { l.entries = append(l.entries, e) }

// Drain returns the recorded entries and clears the log. An empty log yields an empty, non-nil
// slice so that it can be compared with Equal.
func (l *Log[T]) Drain() []T {
	ret := l.entries
	l.entries = nil
	if ret == nil {
		ret = []T{}
	}
	return ret
}

// Fetcher is anything that returns a snapshot of documents, like a view.
type Fetcher interface {
	Fetch() ([]document.Document, error)
}

// AutoFetch fetches in a tracked computation and logs every result. The computation re-runs on
// the next Flush after the fetched view changes; stop it to release the view.
func AutoFetch(t *tracker.Tracker, f Fetcher) (*tracker.Computation, *Log[[]document.Document], error) {
	log := &Log[[]document.Document]{}
	c, err := t.Autorun(func(*tracker.Computation) error {
		docs, err := f.Fetch()
		if err != nil {
			return err
		}
		log.Append(docs)
		return nil
	})
	return c, log, err
}
