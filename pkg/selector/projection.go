package selector

import (
	"strings"

	"github.com/l7mp/liveview/pkg/document"
)

// Projection selects the fields returned for each document. In whitelist mode (Include) only the
// named fields and the identifier are returned; in blacklist mode the named fields are dropped
// and the identifier is always kept. The zero value returns documents unchanged.
type Projection struct {
	Fields  []string
	Include bool
}

// NewProjection validates and creates a projection. Field names may not contain the nested-path
// separator, and the identifier field may not be listed in either mode: it is implicit in a
// whitelist and cannot be excluded by a blacklist.
func NewProjection(fields []string, include bool) (*Projection, error) {
	if err := ValidateFields(fields); err != nil {
		return nil, err
	}
	return &Projection{Fields: uniq(fields), Include: include}, nil
}

// ValidateFields checks a list of top-level field names for use in a projection.
func ValidateFields(fields []string) error {
	for _, f := range fields {
		if strings.Contains(f, ".") {
			return NewProjectionError(f, ErrPathSeparator)
		}
		if f == document.IDField {
			return NewProjectionError(f, ErrIDField)
		}
	}
	return nil
}

// IsEmpty returns true if the projection does not change documents.
func (p *Projection) IsEmpty() bool { return p == nil || (!p.Include && len(p.Fields) == 0) }

// Apply returns the projected deep copy of a document.
func (p *Projection) Apply(doc document.Document) document.Document {
	switch {
	case p.IsEmpty():
		return document.DeepCopy(doc)
	case p.Include:
		return document.Pick(doc, p.Fields)
	default:
		return document.Omit(doc, p.Fields)
	}
}

// Describe returns the projection descriptor: a map from field name to 1 (include) or 0
// (exclude).
func (p *Projection) Describe() map[string]any {
	ret := map[string]any{}
	if p.IsEmpty() {
		return ret
	}
	mode := int64(0)
	if p.Include {
		mode = 1
	}
	for _, f := range p.Fields {
		ret[f] = mode
	}
	if p.Include && len(p.Fields) == 0 {
		ret[document.IDField] = int64(1)
	}
	return ret
}

// Pick returns the projection composed with a further whitelist.
func (p *Projection) Pick(fields []string) (*Projection, error) {
	if err := ValidateFields(fields); err != nil {
		return nil, err
	}
	if p.IsEmpty() {
		return &Projection{Fields: uniq(fields), Include: true}, nil
	}
	if p.Include {
		return &Projection{Fields: Intersection(fields, p.Fields), Include: true}, nil
	}
	return &Projection{Fields: Difference(fields, p.Fields), Include: true}, nil
}

// Omit returns the projection composed with a further blacklist.
func (p *Projection) Omit(fields []string) (*Projection, error) {
	if err := ValidateFields(fields); err != nil {
		return nil, err
	}
	if p.IsEmpty() {
		return &Projection{Fields: uniq(fields), Include: false}, nil
	}
	if p.Include {
		return &Projection{Fields: Difference(p.Fields, fields), Include: true}, nil
	}
	return &Projection{Fields: Union(p.Fields, fields), Include: false}, nil
}

// Intersection returns the elements of a that are also in b, in the order of a.
func Intersection(a, b []string) []string {
	set := toSet(b)
	ret := []string{}
	for _, x := range uniq(a) {
		if set[x] {
			ret = append(ret, x)
		}
	}
	return ret
}

// Difference returns the elements of a that are not in b, in the order of a.
func Difference(a, b []string) []string {
	set := toSet(b)
	ret := []string{}
	for _, x := range uniq(a) {
		if !set[x] {
			ret = append(ret, x)
		}
	}
	return ret
}

// Union returns the elements of a followed by the new elements of b.
func Union(a, b []string) []string {
	return uniq(append(append([]string{}, a...), b...))
}

func uniq(a []string) []string {
	seen := map[string]bool{}
	ret := make([]string, 0, len(a))
	for _, x := range a {
		if !seen[x] {
			seen[x] = true
			ret = append(ret, x)
		}
	}
	return ret
}

func toSet(a []string) map[string]bool {
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	return set
}
