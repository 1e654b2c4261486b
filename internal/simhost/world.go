// Package simhost is an in-memory stand-in for the host simulation. It keeps
// just enough vehicle, ped and player state to reproduce the host behaviors the
// persistence features exist to mask: the one-frame engine dip on entry and
// exit, the forced stall of abandoned aircraft, and asynchronous model loading.
package simhost

import (
	"fmt"
	"sort"

	"github.com/EngineStateManager/extension/pkg/hostapi"
)

// Vehicle is the simulated state of one vehicle.
type Vehicle struct {
	Handle   hostapi.Handle
	Class    hostapi.VehicleClass
	Bones    []string
	Position hostapi.Vec3

	EngineOn        bool
	KeepEngineOn    bool
	JetEngineOn     bool
	PowerMultiplier float64
	Undriveable     bool
	RPM             float64
	BladesFullSpeed bool

	EngineHealth float64
	TankHealth   float64
	CanDegrade   bool

	OnAllWheels       bool
	HeightAboveGround float64

	Seats map[hostapi.Seat]hostapi.Handle
}

// Ped is a simulated character.
type Ped struct {
	Handle      hostapi.Handle
	Model       hostapi.Model
	Vehicle     hostapi.Handle
	Seat        hostapi.Seat
	Visible     bool
	Alpha       int
	Collision   bool
	Targetable  bool
	BlockEvents bool
	Silenced    bool
}

type modelState struct {
	requested bool
	readyAt   int64
	loaded    bool
}

// Glitches toggles the host behaviors that fight engine persistence.
type Glitches struct {
	// EntryDip turns the engine off for the frame the agent becomes seated.
	EntryDip bool `yaml:"entry_dip"`
	// ExitDip zeroes rpm and, without keep-alive, the engine on the frame the seat empties.
	ExitDip bool `yaml:"exit_dip"`
	// AbandonedStall stops engines of unoccupied aircraft not flagged keep-alive.
	AbandonedStall bool `yaml:"abandoned_stall"`
	// EmptySeatPropStall stops propeller aircraft with an empty pilot seat, keep-alive or not.
	EmptySeatPropStall bool `yaml:"empty_seat_prop_stall"`
}

// AllGlitches enables every host behavior.
var AllGlitches = Glitches{EntryDip: true, ExitDip: true, AbandonedStall: true, EmptySeatPropStall: true}

// World is the simulated host. It is not safe for concurrent use; like the
// real host it is driven from a single frame loop.
type World struct {
	now        int64
	nextHandle hostapi.Handle

	vehicles map[hostapi.Handle]*Vehicle
	peds     map[hostapi.Handle]*Ped
	models   map[hostapi.Model]*modelState

	agent        hostapi.Handle
	agentPos     hostapi.Vec3
	entering     bool
	exiting      bool
	entryTarget  hostapi.Handle
	pendingDipOn hostapi.Handle
	controls     map[hostapi.Control]bool

	// ModelLoadDelayMs is how long a requested model takes to become resident.
	ModelLoadDelayMs int64
	Glitches         Glitches

	failing map[string]error
	calls   map[string]int
}

// NewWorld creates an empty world with a player ped standing at the origin.
func NewWorld() *World {
	w := &World{
		nextHandle:       100,
		vehicles:         make(map[hostapi.Handle]*Vehicle),
		peds:             make(map[hostapi.Handle]*Ped),
		models:           make(map[hostapi.Model]*modelState),
		controls:         make(map[hostapi.Control]bool),
		failing:          make(map[string]error),
		calls:            make(map[string]int),
		ModelLoadDelayMs: 50,
	}
	w.agent = w.newPed(0)
	return w
}

func (w *World) alloc() hostapi.Handle {
	w.nextHandle++
	return w.nextHandle
}

func (w *World) newPed(m hostapi.Model) hostapi.Handle {
	h := w.alloc()
	w.peds[h] = &Ped{Handle: h, Model: m, Seat: hostapi.SeatNone, Visible: true, Alpha: 255, Collision: true, Targetable: true}
	return h
}

// Now returns the current game time.
func (w *World) Now() int64 { return w.now }

// VehicleSpec describes a vehicle to add.
type VehicleSpec struct {
	Class     hostapi.VehicleClass
	Propeller bool
	EngineOn  bool
	Position  hostapi.Vec3
	Airborne  bool
}

// PropellerBones is the bone set given to propeller aircraft.
var PropellerBones = []string{"prop_1", "prop_2"}

// AddVehicle spawns a vehicle and returns its handle.
func (w *World) AddVehicle(spec VehicleSpec) hostapi.Handle {
	h := w.alloc()
	v := &Vehicle{
		Handle:          h,
		Class:           spec.Class,
		Position:        spec.Position,
		EngineOn:        spec.EngineOn,
		PowerMultiplier: 1,
		EngineHealth:    1000,
		TankHealth:      1000,
		CanDegrade:      true,
		OnAllWheels:     !spec.Airborne,
		Seats:           make(map[hostapi.Seat]hostapi.Handle),
	}
	if spec.Airborne {
		v.HeightAboveGround = 150
	}
	if spec.Propeller {
		v.Bones = append([]string(nil), PropellerBones...)
	}
	if spec.EngineOn {
		v.RPM = 0.6
	}
	w.vehicles[h] = v
	return h
}

// Vehicle returns the simulated vehicle, or nil.
func (w *World) Vehicle(h hostapi.Handle) *Vehicle { return w.vehicles[h] }

// Ped returns the simulated ped, or nil.
func (w *World) Ped(h hostapi.Handle) *Ped { return w.peds[h] }

// AgentHandle returns the player's ped handle.
func (w *World) AgentHandle() hostapi.Handle { return w.agent }

// Peds returns the handles of all non-player peds, sorted.
func (w *World) Peds() []hostapi.Handle {
	out := make([]hostapi.Handle, 0, len(w.peds))
	for h := range w.peds {
		if h != w.agent {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RemoveVehicle deletes a vehicle and any ped seated in it.
func (w *World) RemoveVehicle(h hostapi.Handle) {
	v, ok := w.vehicles[h]
	if !ok {
		return
	}
	for _, p := range v.Seats {
		if p != w.agent {
			delete(w.peds, p)
		}
	}
	if w.agentPed().Vehicle == h {
		w.unseat(w.agentPed())
	}
	delete(w.vehicles, h)
}

func (w *World) agentPed() *Ped { return w.peds[w.agent] }

// MoveAgent places the player (on foot) at pos.
func (w *World) MoveAgent(pos hostapi.Vec3) { w.agentPos = pos }

// BeginEntry starts the player's entry into v. The player is not seated yet.
func (w *World) BeginEntry(v hostapi.Handle) {
	w.entering = true
	w.entryTarget = v
	if veh, ok := w.vehicles[v]; ok {
		w.agentPos = veh.Position
	}
}

// CompleteEntry seats the player in v's pilot seat. If a ped already occupies
// the seat it is ejected, as the host does.
func (w *World) CompleteEntry(v hostapi.Handle) error {
	veh, ok := w.vehicles[v]
	if !ok {
		return fmt.Errorf("vehicle %d does not exist", v)
	}
	if occ, ok := veh.Seats[hostapi.SeatDriver]; ok && occ != w.agent {
		if p := w.peds[occ]; p != nil {
			p.Vehicle = hostapi.NoHandle
			p.Seat = hostapi.SeatNone
		}
		delete(veh.Seats, hostapi.SeatDriver)
	}
	w.entering = false
	w.entryTarget = hostapi.NoHandle
	a := w.agentPed()
	a.Vehicle = v
	a.Seat = hostapi.SeatDriver
	veh.Seats[hostapi.SeatDriver] = w.agent
	w.agentPos = veh.Position
	if w.Glitches.EntryDip && veh.EngineOn {
		veh.EngineOn = false
		w.pendingDipOn = v
	}
	return nil
}

// CancelEntry aborts an entry in progress.
func (w *World) CancelEntry() {
	w.entering = false
	w.entryTarget = hostapi.NoHandle
}

// BeginExit flags the player as getting out.
func (w *World) BeginExit() { w.exiting = true }

// CompleteExit vacates the player's seat.
func (w *World) CompleteExit() {
	a := w.agentPed()
	veh := w.vehicles[a.Vehicle]
	w.exiting = false
	w.unseat(a)
	if veh == nil {
		return
	}
	w.agentPos = veh.Position
	if w.Glitches.ExitDip {
		veh.RPM = 0
		if !veh.KeepEngineOn {
			veh.EngineOn = false
		}
	}
}

func (w *World) unseat(p *Ped) {
	if veh := w.vehicles[p.Vehicle]; veh != nil && veh.Seats[p.Seat] == p.Handle {
		delete(veh.Seats, p.Seat)
	}
	p.Vehicle = hostapi.NoHandle
	p.Seat = hostapi.SeatNone
}

// Press sets a control's pressed state.
func (w *World) Press(c hostapi.Control, down bool) { w.controls[c] = down }

// Fail makes every call to op return err. A nil err clears the failure.
func (w *World) Fail(op string, err error) {
	if err == nil {
		delete(w.failing, op)
		return
	}
	w.failing[op] = err
}

// Calls returns how many times op was invoked.
func (w *World) Calls(op string) int { return w.calls[op] }

// ResetCalls clears the call counters.
func (w *World) ResetCalls() { w.calls = make(map[string]int) }

// Advance moves the clock forward by ms and applies the host's own per-frame
// engine behavior.
func (w *World) Advance(ms int64) {
	w.now += ms

	if w.pendingDipOn.Valid() {
		if veh := w.vehicles[w.pendingDipOn]; veh != nil && !veh.EngineOn {
			veh.EngineOn = true
		}
		w.pendingDipOn = hostapi.NoHandle
	}

	for _, m := range w.models {
		if m.requested && !m.loaded && w.now >= m.readyAt {
			m.loaded = true
		}
	}

	for _, veh := range w.vehicles {
		if veh.Class != hostapi.ClassPlane && veh.Class != hostapi.ClassHelicopter {
			continue
		}
		_, occupied := veh.Seats[hostapi.SeatDriver]
		if occupied || !veh.EngineOn {
			continue
		}
		switch {
		case w.Glitches.EmptySeatPropStall && len(veh.Bones) > 0:
			veh.EngineOn = false
			veh.RPM = 0
		case w.Glitches.AbandonedStall && !veh.KeepEngineOn:
			veh.EngineOn = false
			veh.RPM = 0
		}
	}
}
