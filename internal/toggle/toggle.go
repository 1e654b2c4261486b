// Package toggle implements the manual engine on/off toggle for the agent's
// current vehicle. Its requests are published at Critical priority so no other
// feature can override the agent's choice while it stands.
package toggle

import (
	"log/slog"

	"github.com/EngineStateManager/extension/internal/config"
	"github.com/EngineStateManager/extension/internal/events"
	"github.com/EngineStateManager/extension/internal/intent"
	"github.com/EngineStateManager/extension/pkg/hostapi"
)

// Owner is the bus owner name used for toggle requests.
const Owner = "EngineStateControl"

// Controller tracks one override at a time, bound to the vehicle it was
// issued in.
type Controller struct {
	host   hostapi.Host
	bus    *intent.Bus
	cfg    config.ToggleConfig
	logger *slog.Logger
	sink   events.Sink

	override   intent.Intent
	target     hostapi.Handle
	blockUntil int64
	lastToggle int64
	wasDown    bool
}

// New creates a Controller. Nil logger or sink fall back to defaults.
func New(host hostapi.Host, bus *intent.Bus, cfg config.ToggleConfig, logger *slog.Logger, sink events.Sink) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = events.Discard
	}
	return &Controller{
		host:       host,
		bus:        bus,
		cfg:        cfg,
		logger:     logger,
		sink:       sink,
		lastToggle: -cfg.DebounceMs - 1,
	}
}

// Override returns the active override and the vehicle it applies to.
func (c *Controller) Override() (intent.Intent, hostapi.Handle) {
	return c.override, c.target
}

// Update polls the toggle control and keeps the active override applied.
func (c *Controller) Update(now int64) {
	if !c.cfg.Enabled {
		if c.override != intent.None || c.target.Valid() {
			c.clear(now, "FeatureDisabled")
		}
		c.wasDown = false
		return
	}

	down := c.host.ControlPressed(hostapi.ControlEngineToggle)
	if down && !c.wasDown && now-c.lastToggle > c.cfg.DebounceMs {
		c.lastToggle = now
		c.toggle(now)
	}
	c.wasDown = down

	c.enforce(now)
}

func (c *Controller) toggle(now int64) {
	agent := c.host.Agent()
	if !agent.Valid() || !c.host.Exists(agent) {
		return
	}
	v := c.host.AgentVehicle()
	if !v.Valid() || !c.host.Exists(v) {
		return
	}

	running := c.host.EngineOn(v)
	c.target = v
	c.override = intent.ForceOn
	kind := events.ToggleOn
	if running {
		c.override = intent.ForceOff
		kind = events.ToggleOff
	}

	c.bus.Set(c.override, intent.Critical, 0, Owner)
	c.blockUntil = 0
	if c.override == intent.ForceOff {
		c.blockUntil = now + c.cfg.RestartBlockMs
	}
	c.apply(v)

	c.sink.Record(events.Event{Kind: kind, Vehicle: v, At: now,
		Fields: map[string]any{"wasRunning": running}})
	c.logger.Info("Engine toggled", "vehicle", v, "wasRunning", running, "override", c.override.String())
}

func (c *Controller) enforce(now int64) {
	if c.override == intent.None || !c.target.Valid() {
		return
	}

	agent := c.host.Agent()
	if !agent.Valid() || !c.host.Exists(agent) {
		c.clear(now, "AgentInvalid")
		return
	}
	current := c.host.AgentVehicle()
	if !current.Valid() {
		c.clear(now, "AgentLeftVehicle")
		return
	}
	if !c.host.Exists(current) {
		c.clear(now, "VehicleInvalid")
		return
	}
	if current != c.target {
		c.clear(now, "SwitchedVehicles")
		return
	}

	if c.override == intent.ForceOff {
		if c.host.EngineOn(current) {
			c.clear(now, "EngineStartedNatively")
			return
		}
		if now < c.blockUntil {
			return
		}
	}
	c.apply(current)
}

func (c *Controller) apply(v hostapi.Handle) {
	switch c.override {
	case intent.ForceOn:
		c.host.SetEngineOn(v, true, false, false)
	case intent.ForceOff:
		c.host.SetEngineOn(v, false, false, false)
	}
}

func (c *Controller) clear(now int64, reason string) {
	target := c.target
	c.bus.Clear(Owner)
	c.override = intent.None
	c.target = hostapi.NoHandle
	c.blockUntil = 0

	c.sink.Record(events.Event{Kind: events.ToggleCleared, Vehicle: target, At: now, Reason: reason})
	c.logger.Info("Engine override cleared", "vehicle", target, "reason", reason)
}

// Shutdown drops any active override.
func (c *Controller) Shutdown() {
	if c.override != intent.None || c.target.Valid() {
		c.clear(c.host.GameTime(), "Shutdown")
		return
	}
	c.bus.Clear(Owner)
}
