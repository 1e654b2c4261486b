package persistence

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/EngineStateManager/extension/internal/persistence"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// metrics are read by the otel callback goroutine, so gauge values are kept in
// atomics the frame loop stores into.
type metrics struct {
	tracked  atomic.Int64
	enforced atomic.Int64

	trackedGauge  metric.Int64ObservableGauge
	enforcedGauge metric.Int64ObservableGauge
	exits         metric.Int64Counter
	evictions     metric.Int64Counter
	passes        metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	m := meter()
	out := &metrics{}

	var err error
	out.trackedGauge, err = m.Int64ObservableGauge(
		"persistence.aircraft.tracked",
		metric.WithDescription("Aircraft currently tracked"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tracked gauge: %w", err)
	}

	out.enforcedGauge, err = m.Int64ObservableGauge(
		"persistence.aircraft.enforced",
		metric.WithDescription("Tracked aircraft inside a grace window or held after an armed exit"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating enforced gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(out.trackedGauge, out.tracked.Load())
			o.ObserveInt64(out.enforcedGauge, out.enforced.Load())
			return nil
		},
		out.trackedGauge, out.enforcedGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("registering aircraft callback: %w", err)
	}

	out.exits, err = m.Int64Counter(
		"persistence.exits",
		metric.WithDescription("Seat exits observed, by armed state"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating exits counter: %w", err)
	}

	out.evictions, err = m.Int64Counter(
		"persistence.evictions",
		metric.WithDescription("Tracked aircraft dropped, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating evictions counter: %w", err)
	}

	out.passes, err = m.Int64Counter(
		"persistence.enforcement.passes",
		metric.WithDescription("Enforcement passes applied to tracked aircraft"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating passes counter: %w", err)
	}

	return out, nil
}

func (m *metrics) exit(armed bool) {
	m.exits.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("armed", armed)))
}

func (m *metrics) evict(reason string) {
	m.evictions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) pass(kind string) {
	m.passes.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}
