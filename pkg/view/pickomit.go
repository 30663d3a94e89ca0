package view

import (
	"strings"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/selector"
)

// PickView keeps only a fixed set of fields of its upstream plus the identifier.
type PickView struct {
	*transformView
	fields []string
}

// NewPick creates a whitelist projection. Listing the identifier field or a nested path is an
// error.
func NewPick(upstream View, fields []string) (*PickView, error) {
	proj, err := selector.NewProjection(fields, true)
	if err != nil {
		return nil, NewConfigError("pick", err)
	}

	v := &PickView{fields: proj.Fields}
	tv, err := newTransformView(upstream, "pick", v.apply, v.unchanged,
		func() *Plan { return newPlan("pick", strings.Join(v.fields, ","), upstream) })
	if err != nil {
		return nil, err
	}
	v.transformView = tv
	v.bind(v)
	return v, nil
}

func (v *PickView) apply(doc document.Document) (document.Document, error) {
	return document.Pick(doc, v.fields), nil
}

// unchanged is true if no picked field differs between the two versions.
func (v *PickView) unchanged(doc, old, _, _ document.Document) bool {
	for _, f := range v.fields {
		nv, nok := doc[f]
		ov, ook := old[f]
		if nok != ook || !document.DeepEqual(nv, ov) {
			return false
		}
	}
	return true
}

// Pick narrows the whitelist.
func (v *PickView) Pick(fields ...string) (View, error) {
	if err := selector.ValidateFields(fields); err != nil {
		return nil, NewConfigError("pick", err)
	}
	return NewPick(v.upstream, selector.Intersection(v.fields, fields))
}

// Omit removes fields from the whitelist.
func (v *PickView) Omit(fields ...string) (View, error) {
	if err := selector.ValidateFields(fields); err != nil {
		return nil, NewConfigError("omit", err)
	}
	if len(fields) == 0 {
		return v, nil
	}
	return NewPick(v.upstream, selector.Difference(v.fields, fields))
}

// OmitView drops a fixed set of fields of its upstream.
type OmitView struct {
	*transformView
	fields []string
}

// NewOmit creates a blacklist projection. Listing the identifier field or a nested path is an
// error.
func NewOmit(upstream View, fields []string) (*OmitView, error) {
	proj, err := selector.NewProjection(fields, false)
	if err != nil {
		return nil, NewConfigError("omit", err)
	}

	v := &OmitView{fields: proj.Fields}
	tv, err := newTransformView(upstream, "omit", v.apply, equalOutputs,
		func() *Plan { return newPlan("omit", strings.Join(v.fields, ","), upstream) })
	if err != nil {
		return nil, err
	}
	v.transformView = tv
	v.bind(v)
	return v, nil
}

func (v *OmitView) apply(doc document.Document) (document.Document, error) {
	return document.Omit(doc, v.fields), nil
}

// Pick turns the blacklist into a whitelist of the picked fields not omitted.
func (v *OmitView) Pick(fields ...string) (View, error) {
	if err := selector.ValidateFields(fields); err != nil {
		return nil, NewConfigError("pick", err)
	}
	return NewPick(v.upstream, selector.Difference(fields, v.fields))
}

// Omit extends the blacklist.
func (v *OmitView) Omit(fields ...string) (View, error) {
	if err := selector.ValidateFields(fields); err != nil {
		return nil, NewConfigError("omit", err)
	}
	if len(fields) == 0 {
		return v, nil
	}
	return NewOmit(v.upstream, selector.Union(v.fields, fields))
}
