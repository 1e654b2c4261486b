// Package hostapi describes the surface of the host simulation that the
// engine persistence features drive. The host owns every entity; features only
// ever hold Handles and query or command through the interfaces below.
package hostapi

import "math"

// Handle identifies a host entity. Handles are stable while the entity exists
// and may be reused by the host after it is deleted.
type Handle int32

// NoHandle is returned by queries that have nothing to report.
const NoHandle Handle = 0

// Valid reports whether h refers to anything at all.
func (h Handle) Valid() bool { return h != NoHandle }

// Vec3 is a position in the host's world frame, in meters.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the euclidean distance between v and o.
func (v Vec3) DistanceTo(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// VehicleClass is the host's coarse vehicle category.
type VehicleClass int

const (
	ClassOther VehicleClass = iota
	ClassPlane
	ClassHelicopter
)

func (c VehicleClass) String() string {
	switch c {
	case ClassPlane:
		return "Plane"
	case ClassHelicopter:
		return "Helicopter"
	default:
		return "Other"
	}
}

// Seat is a seat index inside a vehicle. The driver (pilot) seat is -1.
type Seat int

const (
	SeatNone   Seat = -3
	SeatAny    Seat = -2
	SeatDriver Seat = -1
)

// Control is a player input the features poll.
type Control int

const (
	ControlVehicleExit Control = iota
	ControlVehicleBrake
	ControlEngineToggle
)

func (c Control) String() string {
	switch c {
	case ControlVehicleExit:
		return "VehicleExit"
	case ControlVehicleBrake:
		return "VehicleBrake"
	case ControlEngineToggle:
		return "EngineToggle"
	default:
		return "Unknown"
	}
}

// Model is a host model asset hash.
type Model uint32

// PilotModel is the ped model used for decoy occupants.
const PilotModel Model = 0xAB0A7155

// Clock exposes the host's monotonic game clock in milliseconds.
type Clock interface {
	GameTime() int64
}

// Entities covers entity existence and placement.
type Entities interface {
	Exists(h Handle) bool
	Position(h Handle) Vec3
}

// Vehicles covers the engine, rpm, health and seat surface of a vehicle.
type Vehicles interface {
	Class(v Handle) VehicleClass
	BoneIndex(v Handle, bone string) int

	EngineOn(v Handle) bool
	SetEngineOn(v Handle, on, instantly, disableAutoStart bool)
	SetKeepEngineOn(v Handle, keep bool)
	SetJetEngineOn(v Handle, on bool)
	SetEnginePowerMultiplier(v Handle, m float64)
	SetUndriveable(v Handle, undriveable bool)

	RPM(v Handle) float64
	SetRPM(v Handle, rpm float64)
	SetHeliBladesFullSpeed(v Handle)

	EngineHealth(v Handle) float64
	SetEngineHealth(v Handle, hp float64)
	PetrolTankHealth(v Handle) float64
	SetPetrolTankHealth(v Handle, hp float64)
	SetEngineCanDegrade(v Handle, can bool)

	OnAllWheels(v Handle) bool
	HeightAboveGround(v Handle) float64

	SeatOccupant(v Handle, seat Seat) Handle
}

// Agent covers the controlling player character.
type Agent interface {
	Agent() Handle
	AgentVehicle() Handle
	AgentSeat() Seat
	IsEnteringAnyVehicle() bool
	IsExitingVehicle() bool
	// EntryTarget is the vehicle the agent is trying to enter, or NoHandle.
	EntryTarget() Handle
	ControlPressed(c Control) bool
}

// Decoys covers the decoy occupant lifecycle.
type Decoys interface {
	RequestModel(m Model)
	ModelLoaded(m Model) bool
	ReleaseModel(m Model)
	SpawnInSeat(v Handle, m Model, seat Seat) Handle
	SetVisible(p Handle, visible bool)
	SetAlpha(p Handle, alpha int)
	SetCollision(p Handle, collide bool)
	SetTargetable(p Handle, targetable bool)
	SetBlockEvents(p Handle, block bool)
	SilenceVoice(p Handle)
	Delete(p Handle)
}

// Host is everything the features consume. Implementations must fail soft:
// every method returns a safe default instead of failing.
type Host interface {
	Clock
	Entities
	Vehicles
	Agent
	Decoys
}
