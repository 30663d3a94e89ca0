package view

import (
	"context"
	"sync/atomic"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/l7mp/liveview/pkg/tracker"
)

// Env is the context injected into every view: the host scheduler, the logger and the
// diagnostic counters. Views derived from a view inherit its Env.
type Env struct {
	Scheduler tracker.Scheduler
	Logger    logr.Logger
	Metrics   *Metrics
}

// DefaultEnv returns an Env running deferred work immediately, with logging and metrics
// disabled.
func DefaultEnv() Env { return Env{}.withDefaults() }

func (e Env) withDefaults() Env {
	if e.Scheduler == nil {
		e.Scheduler = tracker.Immediate{}
	}
	if e.Logger.GetSink() == nil {
		e.Logger = logr.Discard()
	}
	if e.Metrics == nil {
		e.Metrics = defaultMetrics
	}
	return e
}

// Metrics counts activated views and emitted events. Counts are also exported to an
// OpenTelemetry meter.
type Metrics struct {
	activeViews atomic.Int64
	active      metric.Int64UpDownCounter
	events      metric.Int64Counter
}

var defaultMetrics = MustNewMetrics(noop.NewMeterProvider().Meter("liveview"))

// NewMetrics creates the counters on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	active, err := meter.Int64UpDownCounter("liveview.views.active",
		metric.WithDescription("number of activated views"))
	if err != nil {
		return nil, err
	}
	events, err := meter.Int64Counter("liveview.events",
		metric.WithDescription("number of change events emitted by views"))
	if err != nil {
		return nil, err
	}
	return &Metrics{active: active, events: events}, nil
}

// MustNewMetrics is like NewMetrics but panics on error.
func MustNewMetrics(meter metric.Meter) *Metrics {
	m, err := NewMetrics(meter)
	if err != nil {
		panic(err)
	}
	return m
}

// ActiveViews returns the number of currently activated views.
func (m *Metrics) ActiveViews() int64 { return m.activeViews.Load() }

func (m *Metrics) started() {
	m.activeViews.Add(1)
	m.active.Add(context.Background(), 1)
}

func (m *Metrics) suspended() {
	m.activeViews.Add(-1)
	m.active.Add(context.Background(), -1)
}

func (m *Metrics) emitted() {
	m.events.Add(context.Background(), 1)
}
