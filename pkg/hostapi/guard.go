package hostapi

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Natives is the raw host binding. Every call may fail, either because the
// native is unavailable in the running host build or because it panicked.
type Natives interface {
	GameTime() (int64, error)

	Exists(h Handle) (bool, error)
	Position(h Handle) (Vec3, error)

	Class(v Handle) (VehicleClass, error)
	BoneIndex(v Handle, bone string) (int, error)
	EngineOn(v Handle) (bool, error)
	SetEngineOn(v Handle, on, instantly, disableAutoStart bool) error
	SetKeepEngineOn(v Handle, keep bool) error
	SetJetEngineOn(v Handle, on bool) error
	SetEnginePowerMultiplier(v Handle, m float64) error
	SetUndriveable(v Handle, undriveable bool) error
	RPM(v Handle) (float64, error)
	SetRPM(v Handle, rpm float64) error
	SetHeliBladesFullSpeed(v Handle) error
	EngineHealth(v Handle) (float64, error)
	SetEngineHealth(v Handle, hp float64) error
	PetrolTankHealth(v Handle) (float64, error)
	SetPetrolTankHealth(v Handle, hp float64) error
	SetEngineCanDegrade(v Handle, can bool) error
	OnAllWheels(v Handle) (bool, error)
	HeightAboveGround(v Handle) (float64, error)
	SeatOccupant(v Handle, seat Seat) (Handle, error)

	Agent() (Handle, error)
	AgentVehicle() (Handle, error)
	AgentSeat() (Seat, error)
	IsEnteringAnyVehicle() (bool, error)
	IsExitingVehicle() (bool, error)
	EntryTarget() (Handle, error)
	ControlPressed(c Control) (bool, error)

	RequestModel(m Model) error
	ModelLoaded(m Model) (bool, error)
	ReleaseModel(m Model) error
	SpawnInSeat(v Handle, m Model, seat Seat) (Handle, error)
	SetVisible(p Handle, visible bool) error
	SetAlpha(p Handle, alpha int) error
	SetCollision(p Handle, collide bool) error
	SetTargetable(p Handle, targetable bool) error
	SetBlockEvents(p Handle, block bool) error
	SilenceVoice(p Handle) error
	Delete(p Handle) error
}

// Guard adapts Natives into a fail-soft Host. Failed calls answer with a safe
// default, and each distinct failing operation is logged exactly once.
type Guard struct {
	natives Natives
	logger  *slog.Logger

	mu     sync.Mutex
	failed map[string]struct{}
}

var _ Host = (*Guard)(nil)

// NewGuard wraps n. A nil logger falls back to slog.Default().
func NewGuard(n Natives, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		natives: n,
		logger:  logger,
		failed:  make(map[string]struct{}),
	}
}

// FailedOps lists the operations that have failed at least once, sorted.
func (g *Guard) FailedOps() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.failed))
	for op := range g.failed {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

func (g *Guard) reportOnce(op string, err error) {
	g.mu.Lock()
	_, seen := g.failed[op]
	if !seen {
		g.failed[op] = struct{}{}
	}
	g.mu.Unlock()

	if !seen {
		g.logger.Error("host call failed; answering with safe default from now on",
			"op", op, "error", err)
	}
}

func query[T any](g *Guard, op string, def T, fn func() (T, error)) (out T) {
	defer func() {
		if r := recover(); r != nil {
			g.reportOnce(op, fmt.Errorf("panic: %v", r))
			out = def
		}
	}()
	v, err := fn()
	if err != nil {
		g.reportOnce(op, err)
		return def
	}
	return v
}

func command(g *Guard, op string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			g.reportOnce(op, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(); err != nil {
		g.reportOnce(op, err)
	}
}

func (g *Guard) GameTime() int64 {
	return query(g, "GameTime", 0, g.natives.GameTime)
}

func (g *Guard) Exists(h Handle) bool {
	if !h.Valid() {
		return false
	}
	return query(g, "Exists", false, func() (bool, error) { return g.natives.Exists(h) })
}

func (g *Guard) Position(h Handle) Vec3 {
	return query(g, "Position", Vec3{}, func() (Vec3, error) { return g.natives.Position(h) })
}

func (g *Guard) Class(v Handle) VehicleClass {
	return query(g, "Class", ClassOther, func() (VehicleClass, error) { return g.natives.Class(v) })
}

func (g *Guard) BoneIndex(v Handle, bone string) int {
	return query(g, "BoneIndex", -1, func() (int, error) { return g.natives.BoneIndex(v, bone) })
}

func (g *Guard) EngineOn(v Handle) bool {
	return query(g, "EngineOn", false, func() (bool, error) { return g.natives.EngineOn(v) })
}

func (g *Guard) SetEngineOn(v Handle, on, instantly, disableAutoStart bool) {
	command(g, "SetEngineOn", func() error { return g.natives.SetEngineOn(v, on, instantly, disableAutoStart) })
}

func (g *Guard) SetKeepEngineOn(v Handle, keep bool) {
	command(g, "SetKeepEngineOn", func() error { return g.natives.SetKeepEngineOn(v, keep) })
}

func (g *Guard) SetJetEngineOn(v Handle, on bool) {
	command(g, "SetJetEngineOn", func() error { return g.natives.SetJetEngineOn(v, on) })
}

func (g *Guard) SetEnginePowerMultiplier(v Handle, m float64) {
	command(g, "SetEnginePowerMultiplier", func() error { return g.natives.SetEnginePowerMultiplier(v, m) })
}

func (g *Guard) SetUndriveable(v Handle, undriveable bool) {
	command(g, "SetUndriveable", func() error { return g.natives.SetUndriveable(v, undriveable) })
}

func (g *Guard) RPM(v Handle) float64 {
	return query(g, "RPM", 0, func() (float64, error) { return g.natives.RPM(v) })
}

func (g *Guard) SetRPM(v Handle, rpm float64) {
	command(g, "SetRPM", func() error { return g.natives.SetRPM(v, rpm) })
}

func (g *Guard) SetHeliBladesFullSpeed(v Handle) {
	command(g, "SetHeliBladesFullSpeed", func() error { return g.natives.SetHeliBladesFullSpeed(v) })
}

func (g *Guard) EngineHealth(v Handle) float64 {
	return query(g, "EngineHealth", 0, func() (float64, error) { return g.natives.EngineHealth(v) })
}

func (g *Guard) SetEngineHealth(v Handle, hp float64) {
	command(g, "SetEngineHealth", func() error { return g.natives.SetEngineHealth(v, hp) })
}

func (g *Guard) PetrolTankHealth(v Handle) float64 {
	return query(g, "PetrolTankHealth", 0, func() (float64, error) { return g.natives.PetrolTankHealth(v) })
}

func (g *Guard) SetPetrolTankHealth(v Handle, hp float64) {
	command(g, "SetPetrolTankHealth", func() error { return g.natives.SetPetrolTankHealth(v, hp) })
}

func (g *Guard) SetEngineCanDegrade(v Handle, can bool) {
	command(g, "SetEngineCanDegrade", func() error { return g.natives.SetEngineCanDegrade(v, can) })
}

// OnAllWheels defaults to true so a failing probe never reads as airborne.
func (g *Guard) OnAllWheels(v Handle) bool {
	return query(g, "OnAllWheels", true, func() (bool, error) { return g.natives.OnAllWheels(v) })
}

func (g *Guard) HeightAboveGround(v Handle) float64 {
	return query(g, "HeightAboveGround", 0, func() (float64, error) { return g.natives.HeightAboveGround(v) })
}

func (g *Guard) SeatOccupant(v Handle, seat Seat) Handle {
	return query(g, "SeatOccupant", NoHandle, func() (Handle, error) { return g.natives.SeatOccupant(v, seat) })
}

func (g *Guard) Agent() Handle {
	return query(g, "Agent", NoHandle, g.natives.Agent)
}

func (g *Guard) AgentVehicle() Handle {
	return query(g, "AgentVehicle", NoHandle, g.natives.AgentVehicle)
}

func (g *Guard) AgentSeat() Seat {
	return query(g, "AgentSeat", SeatNone, g.natives.AgentSeat)
}

func (g *Guard) IsEnteringAnyVehicle() bool {
	return query(g, "IsEnteringAnyVehicle", false, g.natives.IsEnteringAnyVehicle)
}

func (g *Guard) IsExitingVehicle() bool {
	return query(g, "IsExitingVehicle", false, g.natives.IsExitingVehicle)
}

func (g *Guard) EntryTarget() Handle {
	return query(g, "EntryTarget", NoHandle, g.natives.EntryTarget)
}

func (g *Guard) ControlPressed(c Control) bool {
	return query(g, "ControlPressed", false, func() (bool, error) { return g.natives.ControlPressed(c) })
}

func (g *Guard) RequestModel(m Model) {
	command(g, "RequestModel", func() error { return g.natives.RequestModel(m) })
}

func (g *Guard) ModelLoaded(m Model) bool {
	return query(g, "ModelLoaded", false, func() (bool, error) { return g.natives.ModelLoaded(m) })
}

func (g *Guard) ReleaseModel(m Model) {
	command(g, "ReleaseModel", func() error { return g.natives.ReleaseModel(m) })
}

func (g *Guard) SpawnInSeat(v Handle, m Model, seat Seat) Handle {
	return query(g, "SpawnInSeat", NoHandle, func() (Handle, error) { return g.natives.SpawnInSeat(v, m, seat) })
}

func (g *Guard) SetVisible(p Handle, visible bool) {
	command(g, "SetVisible", func() error { return g.natives.SetVisible(p, visible) })
}

func (g *Guard) SetAlpha(p Handle, alpha int) {
	command(g, "SetAlpha", func() error { return g.natives.SetAlpha(p, alpha) })
}

func (g *Guard) SetCollision(p Handle, collide bool) {
	command(g, "SetCollision", func() error { return g.natives.SetCollision(p, collide) })
}

func (g *Guard) SetTargetable(p Handle, targetable bool) {
	command(g, "SetTargetable", func() error { return g.natives.SetTargetable(p, targetable) })
}

func (g *Guard) SetBlockEvents(p Handle, block bool) {
	command(g, "SetBlockEvents", func() error { return g.natives.SetBlockEvents(p, block) })
}

func (g *Guard) SilenceVoice(p Handle) {
	command(g, "SilenceVoice", func() error { return g.natives.SilenceVoice(p) })
}

func (g *Guard) Delete(p Handle) {
	command(g, "Delete", func() error { return g.natives.Delete(p) })
}
