// Package pipeline compiles declarative operator chains, given in YAML or JSON, into live views.
//
// A pipeline reads one or more sources, applies a per-source chain of stages to each, merges the
// results and applies a final chain of stages:
//
//	name: league
//	sources:
//	  - collection: matches
//	    pipeline:
//	      - "@project": {team: "$.home", gd: {"@sub": ["$.homeGoals", "$.awayGoals"]}}
//	  - collection: matches
//	    pipeline:
//	      - "@project": {team: "$.away", gd: {"@sub": ["$.awayGoals", "$.homeGoals"]}}
//	pipeline:
//	  - "@group": {by: [team], aggregate: {played: "@count", gd: {"@sum": gd}}}
//	  - "@sort": ["-gd"]
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/json"
	"sigs.k8s.io/yaml"

	"github.com/l7mp/liveview/pkg/view"
)

// Spec is the serialized form of a pipeline.
type Spec struct {
	Name     string   `json:"name,omitempty"`
	Sources  []Source `json:"sources"`
	Pipeline []Stage  `json:"pipeline,omitempty"`
}

// Source is an input of a pipeline: a named collection and the stages applied to it before the
// inputs are merged.
type Source struct {
	Collection string  `json:"collection"`
	Pipeline   []Stage `json:"pipeline,omitempty"`
}

// Parse reads a pipeline spec from YAML or JSON. Integral numbers are decoded as int64.
func Parse(data []byte) (*Spec, error) {
	raw, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, NewPipelineError(err)
	}
	spec := &Spec{}
	if err := json.Unmarshal(raw, spec); err != nil {
		return nil, NewPipelineError(err)
	}
	return spec, nil
}

// Pipeline is a compiled pipeline.
type Pipeline struct {
	spec Spec
	view view.View
	log  logr.Logger
}

// NewPipeline compiles a pipeline on top of the views of the named collections.
func NewPipeline(spec Spec, collections map[string]view.View, log logr.Logger) (*Pipeline, error) {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	if len(spec.Sources) == 0 {
		return nil, NewPipelineError(errors.New("no sources"))
	}

	inputs := make([]view.View, 0, len(spec.Sources))
	for i, src := range spec.Sources {
		v, ok := collections[src.Collection]
		if !ok {
			return nil, NewPipelineError(fmt.Errorf("source %d: unknown collection %q", i, src.Collection))
		}
		v, err := chain(v, src.Pipeline)
		if err != nil {
			return nil, NewPipelineError(fmt.Errorf("source %d: %w", i, err))
		}
		inputs = append(inputs, v)
	}

	v, err := view.Union(inputs[0].Env(), inputs...)
	if err != nil {
		return nil, NewPipelineError(err)
	}
	if v, err = chain(v, spec.Pipeline); err != nil {
		return nil, NewPipelineError(err)
	}

	p := &Pipeline{spec: spec, view: v, log: log.WithName("pipeline").WithValues("name", spec.Name)}
	p.log.V(1).Info("pipeline ready", "plan", strings.TrimSpace(p.String()))

	return p, nil
}

func chain(v view.View, stages []Stage) (view.View, error) {
	for i, s := range stages {
		op, _, _ := s.Op()
		next, err := s.Apply(v)
		if err != nil {
			return nil, NewStageError(i, op, err)
		}
		v = next
	}
	return v, nil
}

// Name returns the name of the pipeline.
func (p *Pipeline) Name() string { return p.spec.Name }

// View returns the live view computed by the pipeline.
func (p *Pipeline) View() view.View { return p.view }

// String returns the explain plan of the pipeline.
func (p *Pipeline) String() string { return p.view.Explain().String() }
