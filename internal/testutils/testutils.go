package testutils

import (
	"github.com/l7mp/liveview/pkg/document"
)

// MatchResults returns a small set of football match results used by aggregation tests.
func MatchResults() []document.Document {
	return []document.Document{
		{"home": "Manchester United", "away": "Chelsea", "homeGoals": int64(3), "awayGoals": int64(2)},
		{"home": "Arsenal", "away": "Chelsea", "homeGoals": int64(0), "awayGoals": int64(3)},
	}
}

// WithoutID returns a copy of the documents with the identifier removed, for comparing documents
// with generated identifiers.
func WithoutID(docs []document.Document) []document.Document {
	ret := make([]document.Document, len(docs))
	for i, d := range docs {
		ret[i] = document.DeepCopy(d)
		delete(ret[i], document.IDField)
	}
	return ret
}
