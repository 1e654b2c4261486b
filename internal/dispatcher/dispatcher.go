package dispatcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Feature is a unit of per-frame work driven by the host frame callback.
type Feature interface {
	Update(now int64)
	Shutdown()
}

// FeatureFuncs adapts plain functions to Feature. A nil Stop is a no-op.
type FeatureFuncs struct {
	Tick func(now int64)
	Stop func()
}

func (f FeatureFuncs) Update(now int64) {
	if f.Tick != nil {
		f.Tick(now)
	}
}

func (f FeatureFuncs) Shutdown() {
	if f.Stop != nil {
		f.Stop()
	}
}

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures feature registration.
type Option func(*config)

type config struct {
	everyMs int64
	logged  bool
}

// Every runs the feature at most once per ms of game time instead of every frame.
func Every(ms int64) Option {
	return func(c *config) {
		c.everyMs = ms
	}
}

// Logged adds debug logging around each update.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type entry struct {
	name    string
	feature Feature
	update  func(now int64)
	everyMs int64
	nextAt  int64
	faulted bool
}

// Dispatcher runs registered features once per frame in registration order.
// A feature that panics is marked faulted and never updated again; the rest
// keep running.
type Dispatcher struct {
	logger  Logger
	entries []*entry
	byName  map[string]*entry

	// OTEL metrics
	faultedGauge metric.Int64ObservableGauge
	updates      metric.Int64Counter
	panics       metric.Int64Counter

	mu       sync.RWMutex
	shutdown bool
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger: logger,
		byName: make(map[string]*entry),
	}

	m := meter()

	var err error

	d.faultedGauge, err = m.Int64ObservableGauge(
		"dispatcher.features.faulted",
		metric.WithDescription("Features disabled after a panic"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating faulted gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			var n int64
			for _, e := range d.entries {
				if e.faulted {
					n++
				}
			}
			o.ObserveInt64(d.faultedGauge, n)
			return nil
		},
		d.faultedGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("registering faulted callback: %w", err)
	}

	d.updates, err = m.Int64Counter(
		"dispatcher.features.updates",
		metric.WithDescription("Total feature updates run"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating updates counter: %w", err)
	}

	d.panics, err = m.Int64Counter(
		"dispatcher.features.panics",
		metric.WithDescription("Total feature updates that panicked"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating panics counter: %w", err)
	}

	return d, nil
}

// Register adds a feature under name with optional configuration.
func (d *Dispatcher) Register(name string, f Feature, opts ...Option) error {
	if f == nil {
		return fmt.Errorf("nil feature: %s", name)
	}
	if _, ok := d.byName[name]; ok {
		return fmt.Errorf("feature already registered: %s", name)
	}

	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	update := f.Update
	if cfg.logged {
		update = d.withLogging(name, update)
	}

	e := &entry{name: name, feature: f, update: update, everyMs: cfg.everyMs}

	d.mu.Lock()
	d.entries = append(d.entries, e)
	d.byName[name] = e
	d.mu.Unlock()
	return nil
}

// HasFeature returns true if a feature is registered under name.
func (d *Dispatcher) HasFeature(name string) bool {
	_, ok := d.byName[name]
	return ok
}

// Faulted reports whether the named feature has been disabled by a panic.
func (d *Dispatcher) Faulted(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byName[name]
	return ok && e.faulted
}

// Tick runs every due, healthy feature at game time now.
func (d *Dispatcher) Tick(now int64) {
	if d.shutdown {
		return
	}
	for _, e := range d.entries {
		if e.faulted {
			continue
		}
		if e.everyMs > 0 {
			if now < e.nextAt {
				continue
			}
			e.nextAt = now + e.everyMs
		}
		d.run(e, now)
	}
}

func (d *Dispatcher) run(e *entry, now int64) {
	attr := metric.WithAttributes(attribute.String("feature", e.name))
	defer func() {
		if r := recover(); r != nil {
			d.mu.Lock()
			e.faulted = true
			d.mu.Unlock()
			d.panics.Add(context.Background(), 1, attr)
			d.logger.Error("feature panicked; disabling it",
				"feature", e.name,
				"now", now,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	e.update(now)
	d.updates.Add(context.Background(), 1, attr)
}

// Shutdown stops ticking and calls each feature's Shutdown once, in reverse
// registration order. Panics are logged and do not stop the remaining
// features. Safe to call repeatedly.
func (d *Dispatcher) Shutdown() {
	if d.shutdown {
		return
	}
	d.shutdown = true

	for i := len(d.entries) - 1; i >= 0; i-- {
		e := d.entries[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("feature shutdown panicked", "feature", e.name, "panic", fmt.Sprint(r))
				}
			}()
			e.feature.Shutdown()
		}()
	}
	d.logger.Info("dispatcher shut down", "features", len(d.entries))
}

func (d *Dispatcher) withLogging(name string, update func(int64)) func(int64) {
	return func(now int64) {
		start := time.Now()
		d.logger.Debug("updating feature", "feature", name, "now", now)
		update(now)
		d.logger.Debug("feature updated", "feature", name, "duration", time.Since(start))
	}
}
