package view

import (
	"fmt"

	"github.com/l7mp/liveview/pkg/document"
)

// Aggregator is an incremental reducer for one aggregated field of a group. Add and Subtract
// must be exact inverses so that repeated updates never drift.
type Aggregator interface {
	// Initial returns the value for a group created by doc.
	Initial(doc document.Document) (any, error)
	// Add accounts for a document joining the group.
	Add(acc any, doc document.Document) (any, error)
	// Subtract accounts for a document leaving the group.
	Subtract(acc any, doc document.Document) (any, error)
}

// AggregatorFuncs builds an Aggregator from functions.
type AggregatorFuncs struct {
	InitialFunc  func(doc document.Document) (any, error)
	AddFunc      func(acc any, doc document.Document) (any, error)
	SubtractFunc func(acc any, doc document.Document) (any, error)
	Name         string
}

func (a AggregatorFuncs) Initial(doc document.Document) (any, error) { return a.InitialFunc(doc) }

func (a AggregatorFuncs) Add(acc any, doc document.Document) (any, error) { return a.AddFunc(acc, doc) }

func (a AggregatorFuncs) Subtract(acc any, doc document.Document) (any, error) {
	return a.SubtractFunc(acc, doc)
}

func (a AggregatorFuncs) String() string { return a.Name }

// SumFunc sums a numeric value computed from each document. Integers are summed exactly; a
// missing value counts as zero.
func SumFunc(name string, value func(doc document.Document) (any, error)) Aggregator {
	get := func(doc document.Document) (any, error) {
		v, err := value(doc)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return int64(0), nil
		}
		if document.Kind(v) != document.KindNumber {
			return nil, fmt.Errorf("%s: cannot sum non-numeric value %v", name, v)
		}
		return v, nil
	}
	return AggregatorFuncs{
		Name:        name,
		InitialFunc: get,
		AddFunc: func(acc any, doc document.Document) (any, error) {
			v, err := get(doc)
			if err != nil {
				return nil, err
			}
			return document.Add(acc, v)
		},
		SubtractFunc: func(acc any, doc document.Document) (any, error) {
			v, err := get(doc)
			if err != nil {
				return nil, err
			}
			return document.Subtract(acc, v)
		},
	}
}

// Sum sums a top-level numeric field.
func Sum(field string) Aggregator {
	return SumFunc(fmt.Sprintf("sum(%s)", field), func(doc document.Document) (any, error) {
		return doc[field], nil
	})
}

// Count counts the documents of the group.
func Count() Aggregator {
	return AggregatorFuncs{
		Name:        "count",
		InitialFunc: func(document.Document) (any, error) { return int64(1), nil },
		AddFunc: func(acc any, _ document.Document) (any, error) {
			return document.Add(acc, int64(1))
		},
		SubtractFunc: func(acc any, _ document.Document) (any, error) {
			return document.Subtract(acc, int64(1))
		},
	}
}
