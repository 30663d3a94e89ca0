package selector

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/l7mp/liveview/pkg/document"
)

// SortField is a single sort key.
type SortField struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Sort is an ordered list of sort keys. Documents equal on every key are ordered by identifier so
// that the order is total.
type Sort []SortField

// SortBy creates a sort specification from field names; a leading "-" sorts descending.
func SortBy(fields ...string) Sort {
	ret := make(Sort, 0, len(fields))
	for _, f := range fields {
		if strings.HasPrefix(f, "-") {
			ret = append(ret, SortField{Field: f[1:], Desc: true})
		} else {
			ret = append(ret, SortField{Field: strings.TrimPrefix(f, "+")})
		}
	}
	return ret
}

// Validate checks the sort specification.
func (s Sort) Validate() error {
	for _, f := range s {
		if f.Field == "" {
			return fmt.Errorf("invalid sort specification %v: empty field name", s)
		}
	}
	return nil
}

// Compare orders two documents.
func (s Sort) Compare(a, b document.Document) int {
	for _, f := range s {
		c := document.Compare(lookup(a, f.Field), lookup(b, f.Field))
		if f.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return document.Compare(a[document.IDField], b[document.IDField])
}

func (s Sort) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		if f.Desc {
			parts[i] = "-" + f.Field
		} else {
			parts[i] = f.Field
		}
	}
	return strings.Join(parts, ",")
}

func lookup(doc document.Document, field string) any {
	if !strings.Contains(field, ".") {
		return doc[field]
	}
	path := jp.R()
	for _, p := range strings.Split(field, ".") {
		path = path.C(p)
	}
	if values := path.Get(doc); len(values) > 0 {
		return values[0]
	}
	return nil
}
