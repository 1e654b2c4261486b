// Package ghost keeps an inert decoy pilot in the seat of an abandoned
// propeller aircraft. The host stalls propeller aircraft whose pilot seat is
// empty even when they are flagged to keep running, so a seated decoy is the
// only reliable way to keep the engine alive after the agent walks away.
package ghost

import (
	"fmt"
	"log/slog"

	"github.com/EngineStateManager/extension/internal/aircraft"
	"github.com/EngineStateManager/extension/internal/events"
	"github.com/EngineStateManager/extension/internal/logging"
	"github.com/EngineStateManager/extension/pkg/hostapi"
)

// Config holds the decoy timing policy.
type Config struct {
	Model hostapi.Model
	// SuppressMs is how long provisioning stays blocked after an aborted or
	// pre-emptively removed decoy.
	SuppressMs int64
	// Proximity is the radius inside which an agent getting into any vehicle
	// blocks provisioning.
	Proximity float64
}

// DefaultConfig returns the stock decoy policy.
func DefaultConfig() Config {
	return Config{Model: hostapi.PilotModel, SuppressMs: 2500, Proximity: 10}
}

// Manager provisions and removes decoys. It is driven from the frame loop and
// is not safe for concurrent use.
type Manager struct {
	host     hostapi.Host
	cfg      Config
	logger   *slog.Logger
	throttle *logging.Throttler
	sink     events.Sink
}

// NewManager creates a decoy manager. Nil logger, throttle or sink fall back
// to defaults.
func NewManager(host hostapi.Host, cfg Config, logger *slog.Logger, throttle *logging.Throttler, sink events.Sink) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if throttle == nil {
		throttle = logging.NewThrottler(logger, 0)
	}
	if sink == nil {
		sink = events.Discard
	}
	if cfg.Model == 0 {
		cfg.Model = hostapi.PilotModel
	}
	return &Manager{host: host, cfg: cfg, logger: logger, throttle: throttle, sink: sink}
}

// Ensure advances t's decoy toward Seated. It aborts, removes any decoy and
// starts a suppression window when the agent is about to board t.
func (m *Manager) Ensure(t *aircraft.Tracked, now int64) {
	if !m.host.Exists(t.Handle) {
		return
	}
	if !t.Armed || !t.HasExited || !t.IsPropPlane() {
		return
	}
	if now < t.GhostSuppressUntil {
		return
	}

	agentVehicle := m.host.AgentVehicle()
	if !agentVehicle.Valid() && m.host.IsEnteringAnyVehicle() {
		if m.host.EntryTarget() == t.Handle {
			m.Cleanup(t, "AgentTryingToEnterThis", now)
			m.suppress(t, now)
			return
		}
		agentPos := m.host.Position(m.host.Agent())
		if agentPos.DistanceTo(m.host.Position(t.Handle)) < m.cfg.Proximity {
			m.Cleanup(t, "AgentGettingInNearThis", now)
			m.suppress(t, now)
			return
		}
	}
	if agentVehicle == t.Handle {
		m.Cleanup(t, "AgentReentered", now)
		return
	}

	if t.Ghost.Valid() && m.host.Exists(t.Ghost) {
		if m.host.SeatOccupant(t.Handle, hostapi.SeatDriver) == t.Ghost {
			t.GhostActive = true
			t.GhostState = aircraft.GhostSeated
			return
		}
		m.Cleanup(t, "GhostNotSeated", now)
	}

	if !m.host.ModelLoaded(m.cfg.Model) {
		m.host.RequestModel(m.cfg.Model)
		if t.GhostState != aircraft.GhostPending {
			t.GhostState = aircraft.GhostPending
			m.sink.Record(events.Event{Kind: events.GhostRequested, Vehicle: t.Handle, At: now})
		}
		return
	}

	ped := m.host.SpawnInSeat(t.Handle, m.cfg.Model, hostapi.SeatDriver)
	if !ped.Valid() || !m.host.Exists(ped) {
		return
	}
	m.makeInert(ped)

	t.Ghost = ped
	t.GhostActive = true
	t.GhostState = aircraft.GhostSeated
	m.host.ReleaseModel(m.cfg.Model)

	m.sink.Record(events.Event{Kind: events.GhostSpawned, Vehicle: t.Handle, At: now,
		Fields: map[string]any{"ped": int32(ped)}})
	m.throttle.Info(fmt.Sprintf("ghost_spawn_%d", t.Handle), now, 2000,
		"Ghost pilot spawned", "vehicle", t.Handle, "ped", ped)
}

func (m *Manager) makeInert(ped hostapi.Handle) {
	m.host.SetVisible(ped, false)
	m.host.SetAlpha(ped, 0)
	m.host.SetBlockEvents(ped, true)
	m.host.SetTargetable(ped, false)
	m.host.SetCollision(ped, false)
	m.host.SilenceVoice(ped)
}

func (m *Manager) suppress(t *aircraft.Tracked, now int64) {
	t.GhostSuppressUntil = now + m.cfg.SuppressMs
}

// Cleanup deletes t's decoy if it exists and resets t to Absent. It is
// idempotent and never fails.
func (m *Manager) Cleanup(t *aircraft.Tracked, reason string, now int64) {
	if t == nil {
		return
	}
	ped := t.Ghost
	hadGhost := ped.Valid()
	if hadGhost && m.host.Exists(ped) {
		m.host.Delete(ped)
	}
	wasPending := t.GhostState == aircraft.GhostPending

	t.Ghost = hostapi.NoHandle
	t.GhostActive = false
	t.GhostState = aircraft.GhostAbsent

	if !hadGhost && !wasPending {
		return
	}
	m.sink.Record(events.Event{Kind: events.GhostRemoved, Vehicle: t.Handle, At: now, Reason: reason})
	m.throttle.Info(fmt.Sprintf("ghost_cleanup_%d", t.Handle), now, 2000,
		"Ghost pilot cleanup", "vehicle", t.Handle, "reason", reason)
}

// KillOnEntry removes decoys the agent is about to collide with while getting
// into a vehicle. The entry target wins when it is a tracked propeller aircraft
// with a decoy; otherwise the nearest decoy within Proximity is removed. Each
// removal starts a suppression window. It reports the aircraft it cleared.
func (m *Manager) KillOnEntry(reg *aircraft.Registry, now int64) hostapi.Handle {
	if m.host.AgentVehicle().Valid() || !m.host.IsEnteringAnyVehicle() {
		return hostapi.NoHandle
	}

	if target := m.host.EntryTarget(); target.Valid() {
		if t := reg.Get(target); t != nil && t.IsPropPlane() && t.Ghost.Valid() {
			m.Cleanup(t, "AgentTryingToEnter", now)
			m.suppress(t, now)
			m.throttle.Info(fmt.Sprintf("ghost_enterkill_%d", t.Handle), now, 500,
				"Ghost pilot removed before entry", "vehicle", t.Handle)
			return t.Handle
		}
	}

	agentPos := m.host.Position(m.host.Agent())
	var nearest *aircraft.Tracked
	nearestDist := m.cfg.Proximity
	reg.Each(func(t *aircraft.Tracked) {
		if !t.IsPropPlane() || !t.Ghost.Valid() || !m.host.Exists(t.Handle) {
			return
		}
		if d := agentPos.DistanceTo(m.host.Position(t.Handle)); d < nearestDist {
			nearest, nearestDist = t, d
		}
	})
	if nearest == nil {
		return hostapi.NoHandle
	}

	m.Cleanup(nearest, "AgentGettingIn", now)
	m.suppress(nearest, now)
	m.throttle.Info(fmt.Sprintf("ghost_enterkill_%d", nearest.Handle), now, 500,
		"Ghost pilot removed before entry", "vehicle", nearest.Handle, "distance", nearestDist)
	return nearest.Handle
}
