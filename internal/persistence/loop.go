// Package persistence keeps aircraft engines running across the frames around
// the agent getting in or out. It arms an aircraft only after seeing its
// engine run with the agent aboard, then masks the host's entry and exit
// engine dips with short grace windows and, once the agent has left, keeps
// re-asserting the engine on a slower cadence.
package persistence

import (
	"fmt"
	"log/slog"

	"github.com/EngineStateManager/extension/internal/aircraft"
	"github.com/EngineStateManager/extension/internal/config"
	"github.com/EngineStateManager/extension/internal/events"
	"github.com/EngineStateManager/extension/internal/ghost"
	"github.com/EngineStateManager/extension/internal/logging"
	"github.com/EngineStateManager/extension/pkg/hostapi"
)

// Sampler receives a tracker summary on every heartbeat.
type Sampler interface {
	WriteSample(now int64, tracked, enforced int)
}

// Dependencies holds the collaborators of a Loop.
type Dependencies struct {
	Host     hostapi.Host
	Ghosts   *ghost.Manager
	Logger   *slog.Logger
	Throttle *logging.Throttler
	Sink     events.Sink
	Sampler  Sampler
}

// Loop is the per-frame aircraft tracker and enforcer. It is driven from the
// host frame callback only and is not safe for concurrent use.
type Loop struct {
	host     hostapi.Host
	reg      *aircraft.Registry
	ghosts   *ghost.Manager
	cfg      config.AircraftConfig
	logger   *slog.Logger
	throttle *logging.Throttler
	sink     events.Sink
	sampler  Sampler
	metrics  *metrics

	lastNow         int64
	nextMaintenance int64
	nextHeartbeat   int64
}

// New creates a Loop with an empty registry.
func New(deps Dependencies, cfg config.AircraftConfig) (*Loop, error) {
	if deps.Host == nil {
		return nil, fmt.Errorf("persistence: host is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	throttle := deps.Throttle
	if throttle == nil {
		throttle = logging.NewThrottler(logger, 0)
	}
	sink := deps.Sink
	if sink == nil {
		sink = events.Discard
	}
	ghosts := deps.Ghosts
	if ghosts == nil {
		ghosts = ghost.NewManager(deps.Host, ghost.DefaultConfig(), logger, throttle, sink)
	}

	m, err := newMetrics()
	if err != nil {
		return nil, err
	}

	return &Loop{
		host:     deps.Host,
		reg:      aircraft.NewRegistry(),
		ghosts:   ghosts,
		cfg:      cfg,
		logger:   logger,
		throttle: throttle,
		sink:     sink,
		sampler:  deps.Sampler,
		metrics:  m,
	}, nil
}

func (l *Loop) emit(kind events.Kind, t *aircraft.Tracked, now int64, reason string) {
	l.sink.Record(events.Event{
		Kind:    kind,
		Vehicle: t.Handle,
		At:      now,
		Reason:  reason,
		Fields:  map[string]any{"kind": t.Kind(), "armed": t.Armed},
	})
}

func (l *Loop) classEnabled(class hostapi.VehicleClass) bool {
	switch class {
	case hostapi.ClassPlane:
		return l.cfg.PlanePersistence
	case hostapi.ClassHelicopter:
		return l.cfg.HeliPersistence
	default:
		return false
	}
}

func (l *Loop) exitGrace(t *aircraft.Tracked) int64 {
	if t.IsPropPlane() {
		return l.cfg.PropExitGraceMs
	}
	return l.cfg.JetExitGraceMs
}

func (l *Loop) enterGrace(t *aircraft.Tracked) int64 {
	if t.IsPropPlane() {
		return l.cfg.PropEnterGraceMs
	}
	return l.cfg.JetEnterGraceMs
}

func (l *Loop) transitionFloor(t *aircraft.Tracked) float64 {
	if t.IsPropPlane() {
		return l.cfg.PropRPMFloor
	}
	return l.cfg.JetRPMFloor
}

func (l *Loop) track(h hostapi.Handle, now int64) *aircraft.Tracked {
	t, created := l.reg.GetOrCreate(h, now)
	if created {
		l.logger.Info("Tracking new aircraft", "vehicle", h)
		l.sink.Record(events.Event{Kind: events.Tracked, Vehicle: h, At: now})
	}
	return t
}

func (l *Loop) untrack(t *aircraft.Tracked, reason string, now int64) {
	l.ghosts.Cleanup(t, reason, now)
	l.reg.Remove(t.Handle)
	l.metrics.evict(reason)
	l.emit(events.Untracked, t, now, reason)
	l.logger.Info("Stopped tracking aircraft", "vehicle", t.Handle, "reason", reason)
}

// Update runs one frame at game time now.
func (l *Loop) Update(now int64) {
	l.lastNow = now

	if !l.cfg.PlanePersistence && !l.cfg.HeliPersistence {
		if l.reg.Len() > 0 {
			l.ClearAll("PersistenceDisabled")
		}
		return
	}

	agent := l.host.Agent()
	if !agent.Valid() || !l.host.Exists(agent) {
		return
	}

	current := l.host.AgentVehicle()
	if current.Valid() && !l.host.Exists(current) {
		current = hostapi.NoHandle
	}

	if l.cfg.PlanePersistence && !current.Valid() {
		l.entryPreempt(now)
		l.ghosts.KillOnEntry(l.reg, now)
	}

	if current.Valid() {
		l.seated(current, now)
	}

	l.enforce(agent, current, now)
	l.maintain(now)
	l.heartbeat(now)
}

// entryPreempt protects a running plane the agent is about to board. It is the
// only path that creates a record before the agent is seated, and only for an
// engine already observed running.
func (l *Loop) entryPreempt(now int64) {
	target := l.host.EntryTarget()
	if !target.Valid() || !l.host.Exists(target) {
		return
	}
	if l.host.Class(target) != hostapi.ClassPlane || !l.host.EngineOn(target) {
		return
	}

	t := l.track(target, now)
	aircraft.Classify(l.host, t, hostapi.ClassPlane)
	if t.Ghost.Valid() {
		l.ghosts.Cleanup(t, "AgentEntering", now)
	}
	t.Touch(now)

	wasOpen := now < t.EnterPreemptUntil
	t.EnterPreemptUntil = max(t.EnterPreemptUntil, now+l.enterGrace(t))

	l.host.SetKeepEngineOn(target, true)
	if t.IsJet() {
		l.host.SetJetEngineOn(target, true)
		l.host.SetEnginePowerMultiplier(target, 0)
	}
	aircraft.ForceFloor(l.host, t, l.transitionFloor(t))

	if !wasOpen {
		l.emit(events.EnterPreempt, t, now, "")
	}
	l.throttle.Info(fmt.Sprintf("enterpre_%d", target), now, 1000,
		"Enter preempt armed", "vehicle", target, "kind", t.Kind(), "until", t.EnterPreemptUntil)
}

// seated handles the agent's current vehicle: arming, cold disarm, jet entry
// dip suppression and exit preempt.
func (l *Loop) seated(v hostapi.Handle, now int64) {
	class := l.host.Class(v)
	if !aircraft.Supported(class) || !l.classEnabled(class) {
		return
	}

	t := l.track(v, now)
	aircraft.Classify(l.host, t, class)
	t.Touch(now)
	t.WasInsideLastFrame = true
	if t.Ghost.Valid() || t.GhostState != aircraft.GhostAbsent {
		l.ghosts.Cleanup(t, "AgentInside", now)
	}

	hadExitPreempt := now < t.ExitPreemptUntil
	t.HasExited = false
	t.ExitGraceUntil = 0
	t.ExitPreemptUntil = 0

	engineOn := l.host.EngineOn(v)

	switch {
	case t.IsJet() && !engineOn && now < t.EnterPreemptUntil:
		// Host entry dip: hold the engine up without arming from it.
		l.host.SetKeepEngineOn(v, true)
		l.host.SetJetEngineOn(v, true)
		l.host.SetEnginePowerMultiplier(v, 0)
		if !l.host.EngineOn(v) {
			l.host.SetEngineOn(v, true, true, false)
		}
		aircraft.ForceFloor(l.host, t, l.cfg.JetRPMFloor)
		l.throttle.Info(fmt.Sprintf("entrydip_%d", v), now, 1000,
			"Entry dip suppressed", "vehicle", v)

	case !engineOn:
		if t.Armed {
			l.emit(events.Disarmed, t, now, "EngineOffWhileSeated")
		}
		t.Armed = false
		t.HasExited = false
		t.ClearTimers()
		l.host.SetKeepEngineOn(v, false)
		if t.IsJet() {
			l.host.SetJetEngineOn(v, false)
		}

	default:
		if !t.Armed {
			l.emit(events.Armed, t, now, "")
			l.logger.Info("Aircraft armed for persistence", "vehicle", v, "kind", t.Kind())
		}
		t.Armed = true
		l.host.SetKeepEngineOn(v, true)
		if t.IsJet() {
			l.host.SetJetEngineOn(v, true)
		}
		t.LastKnownRPM = aircraft.SampleRPM(l.host, v)

		if t.IsPlane() && l.host.AgentSeat() == hostapi.SeatDriver &&
			(l.host.ControlPressed(hostapi.ControlVehicleExit) || l.host.IsExitingVehicle()) {
			l.exitPreempt(t, now, hadExitPreempt)
		}
	}
}

func (l *Loop) exitPreempt(t *aircraft.Tracked, now int64, wasOpen bool) {
	v := t.Handle
	until := now + l.exitGrace(t)
	t.ExitPreemptUntil = max(t.ExitPreemptUntil, until)
	t.ExitGraceUntil = max(t.ExitGraceUntil, until)

	l.host.SetKeepEngineOn(v, true)
	if t.IsJet() {
		l.host.SetJetEngineOn(v, true)
		l.host.SetEnginePowerMultiplier(v, 0)
	}
	aircraft.ForceFloor(l.host, t, l.transitionFloor(t))
	if !l.host.EngineOn(v) {
		l.host.SetEngineOn(v, true, true, false)
	}

	if !wasOpen {
		l.emit(events.ExitPreempt, t, now, "")
	}
	l.throttle.Info(fmt.Sprintf("exitpre_%d", v), now, 500,
		"Exit preempt armed", "vehicle", v, "kind", t.Kind(), "until", t.ExitPreemptUntil)
}

func (l *Loop) onExit(t *aircraft.Tracked, now int64) {
	if t.Armed {
		t.HasExited = true
		t.NextReassertTime = 0
		t.ExitDetectedTime = now
		if t.IsPlane() {
			t.ExitGraceUntil = max(t.ExitGraceUntil, now+l.exitGrace(t))
		}
		l.metrics.exit(true)
		l.emit(events.ExitArmed, t, now, "")
		l.logger.Info("Exit detected; persistence armed", "vehicle", t.Handle, "kind", t.Kind())
		if t.IsPropPlane() {
			l.ghosts.Ensure(t, now)
		}
		return
	}

	t.HasExited = false
	t.ExitGraceUntil = 0
	t.ExitPreemptUntil = 0
	t.EnterPreemptUntil = 0
	l.host.SetKeepEngineOn(t.Handle, false)
	if t.IsJet() {
		l.host.SetJetEngineOn(t.Handle, false)
	}
	l.ghosts.Cleanup(t, "ColdExit", now)
	l.metrics.exit(false)
	l.emit(events.ColdExit, t, now, "")
	l.logger.Info("Exit detected on a cold aircraft; nothing to enforce", "vehicle", t.Handle, "kind", t.Kind())
}

func (l *Loop) enforce(agent, current hostapi.Handle, now int64) {
	var agentPos hostapi.Vec3
	if l.cfg.MaxDistance > 0 {
		agentPos = l.host.Position(agent)
	}

	enforced := 0
	for _, h := range l.reg.Handles() {
		t := l.reg.Get(h)
		if t == nil {
			continue
		}
		if !l.host.Exists(h) {
			l.untrack(t, "EntityMissing", now)
			continue
		}
		class := l.host.Class(h)
		if !aircraft.Supported(class) {
			l.untrack(t, "Unsupported", now)
			continue
		}
		aircraft.Classify(l.host, t, class)
		if !l.classEnabled(class) {
			continue
		}
		if l.cfg.MaxDistance > 0 && agentPos.DistanceTo(l.host.Position(h)) > l.cfg.MaxDistance {
			l.untrack(t, "Distance", now)
			continue
		}

		if l.enforceOne(t, current == h, now) {
			enforced++
		}
	}

	l.metrics.tracked.Store(int64(l.reg.Len()))
	l.metrics.enforced.Store(int64(enforced))
}

// enforceOne runs the exit edge detector and, when due, one enforcement pass.
// It reports whether t is in an enforcing state this frame.
func (l *Loop) enforceOne(t *aircraft.Tracked, inside bool, now int64) bool {
	h := t.Handle

	if t.WasInsideLastFrame && !inside {
		l.onExit(t, now)
	}
	t.WasInsideLastFrame = inside

	enterGrace, preExit, postExit := t.Windows(now)
	anyGrace := enterGrace || preExit || postExit

	if inside {
		if t.Ghost.Valid() || t.GhostState != aircraft.GhostAbsent {
			l.ghosts.Cleanup(t, "AgentInside", now)
		}
		if !anyGrace {
			return false
		}
	}
	if !anyGrace && !t.HasExited {
		return false
	}

	if t.IsPropPlane() && t.HasExited {
		l.ghosts.Ensure(t, now)
	}

	if !anyGrace && now < t.NextReassertTime {
		return true
	}
	t.Touch(now)

	l.host.SetKeepEngineOn(h, true)
	if t.IsJet() {
		l.host.SetJetEngineOn(h, true)
	}

	engineOn := l.host.EngineOn(h)
	propHold := t.IsPropPlane() && postExit && t.HasExited
	if !l.cfg.OnlyReassertWhenEngineOff || !engineOn || propHold {
		// Planes must not auto-start, or a cold plane could be started here.
		l.host.SetEngineOn(h, true, true, !t.IsPlane())
		l.host.SetUndriveable(h, false)
	}

	if propHold {
		aircraft.ForceFloor(l.host, t, l.cfg.PropRPMFloor)
	}

	if t.IsJet() && postExit && !inside {
		if t.HasExited && now-t.ExitDetectedTime < l.cfg.JetFloorHoldMs {
			aircraft.ForceFloor(l.host, t, l.cfg.JetRPMFloor)
		} else {
			aircraft.SetIdleRPM(l.host, h, l.cfg.JetIdleRPM)
		}
	}

	if l.cfg.HeliFullRotorOnExit && t.IsHeli() && t.HasExited {
		l.host.SetHeliBladesFullSpeed(h)
	}

	if anyGrace || !engineOn {
		l.throttle.Info(fmt.Sprintf("enforce_%d", h), now, 500, "Enforce",
			"vehicle", h,
			"kind", t.Kind(),
			"engineOn", engineOn,
			"enterGrace", enterGrace,
			"preExitGrace", preExit,
			"postExitGrace", postExit,
			"armed", t.Armed,
			"hasExited", t.HasExited)
	}

	interval := l.cfg.ReassertIntervalMs
	if t.IsPlane() {
		interval = min(interval, l.cfg.PlaneReassertCapMs)
	}
	if anyGrace {
		t.NextReassertTime = now
		l.metrics.pass("grace")
	} else {
		t.NextReassertTime = now + interval
		l.metrics.pass("held")
	}
	return true
}

func (l *Loop) maintain(now int64) {
	if now < l.nextMaintenance {
		return
	}
	l.nextMaintenance = now + max(50, l.cfg.MaintenanceIntervalMs)

	for _, t := range l.reg.Prune(l.cfg.MaxTracked) {
		l.ghosts.Cleanup(t, "Pruned", now)
		l.metrics.evict("Pruned")
		l.emit(events.Pruned, t, now, "LRU")
		l.logger.Warn("Pruned aircraft to stay within the tracking cap",
			"vehicle", t.Handle, "lastTouched", t.LastTouchedTime, "maxTracked", l.cfg.MaxTracked)
	}
}

func (l *Loop) heartbeat(now int64) {
	if now < l.nextHeartbeat {
		return
	}
	l.nextHeartbeat = now + l.cfg.HeartbeatMs
	tracked, enforced := l.reg.Len(), int(l.metrics.enforced.Load())
	l.logger.Debug("Heartbeat", "tracked", tracked, "enforced", enforced)
	if l.sampler != nil {
		l.sampler.WriteSample(now, tracked, enforced)
	}
}

// IsEnforced reports whether v is tracked and, as of the last Update, inside a
// grace window or held after an armed exit.
func (l *Loop) IsEnforced(v hostapi.Handle) bool {
	t := l.reg.Get(v)
	if t == nil {
		return false
	}
	return t.InAnyGrace(l.lastNow) || (t.Armed && t.HasExited)
}

// Tracked returns the number of tracked aircraft.
func (l *Loop) Tracked() int { return l.reg.Len() }

// Snapshot returns copies of every tracked record, for diagnostics.
func (l *Loop) Snapshot() []aircraft.Tracked { return l.reg.Snapshot() }

// ClearAll removes every decoy and forgets every tracked aircraft. It never
// panics; a failing cleanup is logged and the rest continue.
func (l *Loop) ClearAll(reason string) {
	removed := l.reg.Clear()
	for _, t := range removed {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.logger.Error("ghost cleanup panicked", "vehicle", t.Handle, "panic", r)
				}
			}()
			l.ghosts.Cleanup(t, "ClearAll:"+reason, l.lastNow)
		}()
	}
	l.metrics.tracked.Store(0)
	l.metrics.enforced.Store(0)
	if len(removed) > 0 {
		l.logger.Info("Cleared all tracked aircraft", "count", len(removed), "reason", reason)
	}
}

// Shutdown releases every decoy and tracked record. Safe to call repeatedly.
func (l *Loop) Shutdown() {
	l.ClearAll("Shutdown")
}
