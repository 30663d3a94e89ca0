package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/metric/noop"
	"k8s.io/apimachinery/pkg/util/json"
	"sigs.k8s.io/yaml"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/pipeline"
	"github.com/l7mp/liveview/pkg/sink"
	"github.com/l7mp/liveview/pkg/store"
	"github.com/l7mp/liveview/pkg/tracker"
	"github.com/l7mp/liveview/pkg/view"
	"github.com/l7mp/liveview/pkg/visualize"
)

// Change is a single mutation of the change file.
type Change struct {
	Op         string            `json:"op"`
	Collection string            `json:"collection"`
	ID         any               `json:"id,omitempty"`
	Doc        document.Document `json:"doc,omitempty"`
}

func run(ctx context.Context, cfg Config, w io.Writer, log logr.Logger) error {
	spec := &pipeline.Spec{}
	if err := readYAML(cfg.Pipeline, spec); err != nil {
		return err
	}
	data := map[string][]document.Document{}
	if err := readYAML(cfg.Data, &data); err != nil {
		return err
	}

	t := tracker.New(tracker.Options{Logger: log})
	venv := view.Env{
		Scheduler: t,
		Logger:    log,
		Metrics:   view.MustNewMetrics(noop.NewMeterProvider().Meter("liveview")),
	}

	collections := map[string]*store.Collection{}
	views := map[string]view.View{}
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := store.New(store.Options{Name: name, Logger: log})
		for i, doc := range data[name] {
			if _, err := c.Insert(doc); err != nil {
				return fmt.Errorf("collection %s: document %d: %w", name, i, err)
			}
		}
		v, err := view.NewCollectionView(venv, c, view.Query{})
		if err != nil {
			return err
		}
		collections[name], views[name] = c, v
	}

	p, err := pipeline.NewPipeline(*spec, views, log)
	if err != nil {
		return err
	}

	if cfg.Explain != "" {
		return explain(w, cfg.Explain, p)
	}

	if cfg.SQLite != "" {
		s, err := sink.Open(ctx, cfg.SQLite, sink.Options{Table: cfg.Table, Logger: log})
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Attach(ctx, p.View()); err != nil {
			return err
		}
	}

	if cfg.Changes != "" {
		changes := []Change{}
		if err := readYAML(cfg.Changes, &changes); err != nil {
			return err
		}
		if err := replay(ctx, w, cfg.Output, t, p.View(), collections, changes); err != nil {
			return err
		}
	}

	docs, err := p.View().Fetch()
	if err != nil {
		return err
	}
	if err := t.Flush(); err != nil {
		return err
	}
	return write(w, cfg.Output, docs)
}

// replay applies the changes and writes the change feed of the view.
func replay(ctx context.Context, w io.Writer, format string, t *tracker.Tracker, v view.View,
	collections map[string]*store.Collection, changes []Change) error {
	var events []feed.Event
	sub, err := v.ObserveAfter(feed.Collect(&events))
	if err != nil {
		return err
	}
	defer sub.Stop()

	out := []map[string]any{}
	for i, ch := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := apply(collections, ch); err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
		if err := t.Flush(); err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
	}
	for _, e := range events {
		switch e.Type {
		case feed.Changed:
			out = append(out, map[string]any{"changed": e.Doc, "was": e.Old})
		default:
			out = append(out, map[string]any{string(e.Type): e.Doc})
		}
	}
	return write(w, format, out)
}

func apply(collections map[string]*store.Collection, ch Change) error {
	c, ok := collections[ch.Collection]
	if !ok {
		return fmt.Errorf("unknown collection %q", ch.Collection)
	}
	switch ch.Op {
	case "insert":
		_, err := c.Insert(ch.Doc)
		return err
	case "update":
		return c.Update(ch.ID, ch.Doc)
	case "upsert":
		_, err := c.Upsert(ch.Doc)
		return err
	case "remove":
		ok, err := c.Remove(ch.ID)
		if err == nil && !ok {
			err = fmt.Errorf("no document with id %v", ch.ID)
		}
		return err
	default:
		return fmt.Errorf("unknown operation %q", ch.Op)
	}
}

func explain(w io.Writer, format string, p *pipeline.Pipeline) error {
	if format == "text" {
		_, err := io.WriteString(w, p.String())
		return err
	}
	gen, err := visualize.NewGenerator(format)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, gen.Generate(visualize.BuildGraph(p.Name(), p.View().Explain())))
	return err
}

func write(w io.Writer, format string, v any) error {
	var out []byte
	var err error
	switch format {
	case "yaml", "":
		out, err = yaml.Marshal(v)
	case "json":
		out, err = json.Marshal(v)
		out = append(out, '\n')
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// readYAML decodes a YAML or JSON file. Integral numbers are decoded as int64.
func readYAML(path string, v any) error {
	if path == "" {
		return errors.New("missing file name")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	raw, err := yaml.YAMLToJSON(b)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
