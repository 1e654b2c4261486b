// Package stall keeps the agent's own aircraft from stalling while airborne.
// It never fights the manual toggle: engine requests go through the intent bus
// and back off whenever another owner holds a ForceOff.
package stall

import (
	"log/slog"

	"github.com/EngineStateManager/extension/internal/config"
	"github.com/EngineStateManager/extension/internal/events"
	"github.com/EngineStateManager/extension/internal/intent"
	"github.com/EngineStateManager/extension/internal/logging"
	"github.com/EngineStateManager/extension/pkg/hostapi"
)

// Owner is the bus owner name used for stall requests.
const Owner = "AircraftStallHandlers"

// Compensator is the per-frame stall prevention pass.
type Compensator struct {
	host     hostapi.Host
	bus      *intent.Bus
	cfg      config.StallConfig
	logger   *slog.Logger
	throttle *logging.Throttler
	sink     events.Sink

	nextAt int64
}

// New creates a Compensator. Nil logger, throttle or sink fall back to defaults.
func New(host hostapi.Host, bus *intent.Bus, cfg config.StallConfig, logger *slog.Logger, throttle *logging.Throttler, sink events.Sink) *Compensator {
	if logger == nil {
		logger = slog.Default()
	}
	if throttle == nil {
		throttle = logging.NewThrottler(logger, 0)
	}
	if sink == nil {
		sink = events.Discard
	}
	return &Compensator{host: host, bus: bus, cfg: cfg, logger: logger, throttle: throttle, sink: sink}
}

// Enabled reports whether either prevention mode is configured.
func (c *Compensator) Enabled() bool {
	return c.cfg.PreventSlowStall || c.cfg.PreventDamageStall
}

// Update runs one pass at game time now, at most once per UpdateIntervalMs.
func (c *Compensator) Update(now int64) {
	if !c.Enabled() || now < c.nextAt {
		return
	}
	c.nextAt = now + c.cfg.UpdateIntervalMs

	agent := c.host.Agent()
	if !agent.Valid() || !c.host.Exists(agent) {
		return
	}
	v := c.host.AgentVehicle()
	if !v.Valid() || !c.host.Exists(v) {
		return
	}
	switch c.host.Class(v) {
	case hostapi.ClassPlane, hostapi.ClassHelicopter:
	default:
		return
	}
	if !c.airborne(v) {
		return
	}

	if c.cfg.PreventSlowStall {
		c.preventSlowStall(v, now)
	}
	if c.cfg.PreventDamageStall {
		c.floorHealth(v, now)
	}
}

func (c *Compensator) airborne(v hostapi.Handle) bool {
	return !c.host.OnAllWheels(v) || c.host.HeightAboveGround(v) > c.cfg.AirborneHeight
}

func (c *Compensator) preventSlowStall(v hostapi.Handle, now int64) {
	if c.bus.IsForcedOffByOther(Owner) {
		return
	}

	if c.host.ControlPressed(hostapi.ControlVehicleBrake) && !c.host.EngineOn(v) {
		c.bus.Set(intent.ForceOn, intent.Normal, c.cfg.BrakeGrantMs, Owner)
		c.forceOn(v, now, "Braking")
		c.throttle.Info("stall_brake", now, c.cfg.BrakeGrantMs,
			"Forced engine on while braking airborne", "vehicle", v)
	}

	if !c.host.EngineOn(v) {
		c.bus.Set(intent.ForceOn, intent.Normal, c.cfg.BaselineGrantMs, Owner)
		c.forceOn(v, now, "Airborne")
		c.throttle.Info("stall_airborne", now, c.cfg.BaselineGrantMs,
			"Forced engine on while airborne", "vehicle", v)
	}
}

func (c *Compensator) forceOn(v hostapi.Handle, now int64, reason string) {
	if c.bus.IsForcedOffByOther(Owner) {
		return
	}
	c.host.SetEngineOn(v, true, true, false)
	c.sink.Record(events.Event{Kind: events.StallForcedOn, Vehicle: v, At: now, Reason: reason})
}

func (c *Compensator) floorHealth(v hostapi.Handle, now int64) {
	floor := c.cfg.HealthFloor
	changed := false
	if c.host.EngineHealth(v) < floor {
		c.host.SetEngineHealth(v, floor)
		changed = true
	}
	if c.host.PetrolTankHealth(v) < floor {
		c.host.SetPetrolTankHealth(v, floor)
		changed = true
	}
	c.host.SetEngineCanDegrade(v, false)

	if !changed {
		return
	}
	c.sink.Record(events.Event{Kind: events.HealthFloored, Vehicle: v, At: now,
		Fields: map[string]any{"floor": floor}})
	c.throttle.Info("stall_health", now, 1500, "Floored aircraft health",
		"vehicle", v,
		"engine", c.host.EngineHealth(v),
		"tank", c.host.PetrolTankHealth(v))
}

// Shutdown releases any stall request still on the bus.
func (c *Compensator) Shutdown() {
	c.bus.Clear(Owner)
}
