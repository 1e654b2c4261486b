// Package aircraft holds the per-vehicle tracking record for aircraft under
// engine persistence, the registry that owns those records, and the RPM
// helpers shared by the enforcement features.
package aircraft

import (
	"github.com/EngineStateManager/extension/pkg/hostapi"
)

// GhostState is the decoy occupant lifecycle of one aircraft.
type GhostState int

const (
	GhostAbsent GhostState = iota
	GhostPending
	GhostSeated
)

func (s GhostState) String() string {
	switch s {
	case GhostPending:
		return "Pending"
	case GhostSeated:
		return "Seated"
	default:
		return "Absent"
	}
}

// Tracked is the state kept for one aircraft. Timestamps are game time in ms;
// zero means unset.
type Tracked struct {
	Handle hostapi.Handle
	Class  hostapi.VehicleClass

	// Propeller is meaningful only for planes. Probed records whether the bone
	// lookup already ran.
	Propeller bool
	Probed    bool

	// Armed is set only by the seated branch after observing the engine on
	// while the agent occupies the aircraft.
	Armed bool

	HasExited          bool
	WasInsideLastFrame bool

	NextReassertTime   int64
	ExitGraceUntil     int64
	ExitPreemptUntil   int64
	EnterPreemptUntil  int64
	GhostSuppressUntil int64
	ExitDetectedTime   int64
	LastTouchedTime    int64

	LastKnownRPM float64

	Ghost       hostapi.Handle
	GhostActive bool
	GhostState  GhostState
}

// IsPlane reports whether the record is a fixed-wing aircraft.
func (t *Tracked) IsPlane() bool { return t.Class == hostapi.ClassPlane }

// IsHeli reports whether the record is a rotorcraft.
func (t *Tracked) IsHeli() bool { return t.Class == hostapi.ClassHelicopter }

// IsPropPlane reports whether the record is a propeller plane.
func (t *Tracked) IsPropPlane() bool { return t.IsPlane() && t.Propeller }

// IsJet reports whether the record is a plane without propellers.
func (t *Tracked) IsJet() bool { return t.IsPlane() && !t.Propeller }

// Kind is a short label for logs: Jet, Prop or Heli.
func (t *Tracked) Kind() string {
	switch {
	case t.IsHeli():
		return "Heli"
	case t.IsPropPlane():
		return "Prop"
	case t.IsPlane():
		return "Jet"
	default:
		return "Other"
	}
}

// Touch refreshes the LRU timestamp.
func (t *Tracked) Touch(now int64) { t.LastTouchedTime = now }

// ClearTimers resets every grace window and the reassert schedule.
func (t *Tracked) ClearTimers() {
	t.ExitGraceUntil = 0
	t.ExitPreemptUntil = 0
	t.EnterPreemptUntil = 0
	t.NextReassertTime = 0
}

// Windows reports which grace windows are open at now. Grace windows only
// apply to planes.
func (t *Tracked) Windows(now int64) (enter, preExit, postExit bool) {
	if !t.IsPlane() {
		return false, false, false
	}
	return now < t.EnterPreemptUntil, now < t.ExitPreemptUntil, now < t.ExitGraceUntil
}

// InAnyGrace reports whether any grace window is open at now.
func (t *Tracked) InAnyGrace(now int64) bool {
	enter, pre, post := t.Windows(now)
	return enter || pre || post
}

// Supported reports whether class is handled by aircraft persistence.
func Supported(class hostapi.VehicleClass) bool {
	return class == hostapi.ClassPlane || class == hostapi.ClassHelicopter
}

// PropellerBones are the bone names whose presence marks a propeller aircraft.
var PropellerBones = []string{
	"prop_1", "prop_2", "prop_3", "prop_4",
	"prop", "propeller", "propeller1", "propeller2",
	"prop_left", "prop_right", "prop_l", "prop_r",
	"prop0", "prop1", "prop2", "prop3", "prop4",
}

// HasPropellerBones probes v for any propeller bone.
func HasPropellerBones(host hostapi.Vehicles, v hostapi.Handle) bool {
	for _, bone := range PropellerBones {
		if host.BoneIndex(v, bone) >= 0 {
			return true
		}
	}
	return false
}

// Classify records v's class and, for planes, probes propeller bones once.
func Classify(host hostapi.Vehicles, t *Tracked, class hostapi.VehicleClass) {
	t.Class = class
	if class != hostapi.ClassPlane {
		return
	}
	if !t.Probed {
		t.Propeller = HasPropellerBones(host, t.Handle)
		t.Probed = true
	}
}
