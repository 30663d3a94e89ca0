package view

import (
	"strings"

	"github.com/l7mp/liveview/pkg/selector"
	"github.com/l7mp/liveview/pkg/store"
	"github.com/l7mp/liveview/pkg/util"
)

// Query is a selector, projection and sort specification evaluated natively by a store.
type Query struct {
	Selector   *selector.Selector
	Projection *selector.Projection
	Sort       selector.Sort
}

// IsTrivial returns true if the query returns the whole store unchanged.
func (q Query) IsTrivial() bool {
	return q.Selector.IsEmpty() && q.Projection.IsEmpty() && len(q.Sort) == 0
}

func (q Query) validate() error {
	if q.Projection != nil {
		if err := selector.ValidateFields(q.Projection.Fields); err != nil {
			return err
		}
	}
	return q.Sort.Validate()
}

// filter composes the selector with a further one.
func (q Query) filter(sel *selector.Selector) Query {
	q.Selector = selector.And(q.Selector, sel)
	return q
}

func (q Query) pick(fields []string) (Query, error) {
	proj, err := q.Projection.Pick(fields)
	if err != nil {
		return q, err
	}
	q.Projection = proj
	return q, nil
}

func (q Query) omit(fields []string) (Query, error) {
	proj, err := q.Projection.Omit(fields)
	if err != nil {
		return q, err
	}
	q.Projection = proj
	return q, nil
}

func (q Query) find(c *store.Collection) (*store.Cursor, error) {
	return c.Find(q.Selector, store.FindOptions{Projection: q.Projection, Sort: q.Sort})
}

func (q Query) String() string {
	parts := []string{q.Selector.String()}
	if !q.Projection.IsEmpty() {
		parts = append(parts, "fields="+util.Stringify(q.Projection.Describe()))
	}
	if len(q.Sort) > 0 {
		parts = append(parts, "sort="+q.Sort.String())
	}
	return strings.Join(parts, ", ")
}
