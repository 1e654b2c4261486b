package aircraft

import "github.com/EngineStateManager/extension/pkg/hostapi"

// RPMEpsilon is the smallest raise ForceFloor bothers to write.
const RPMEpsilon = 0.001

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SampleRPM returns v's current RPM clamped to [0,1].
func SampleRPM(host hostapi.Vehicles, v hostapi.Handle) float64 {
	return clampUnit(host.RPM(v))
}

// ForceFloor raises v's RPM to the highest of its current reading, the
// record's last known RPM and floor. It writes only when that beats the current
// reading by more than RPMEpsilon, and never lowers LastKnownRPM.
func ForceFloor(host hostapi.Vehicles, t *Tracked, floor float64) {
	floor = clampUnit(floor)

	current := SampleRPM(host, t.Handle)
	target := max(current, t.LastKnownRPM, floor)

	if target > current+RPMEpsilon {
		host.SetRPM(t.Handle, target)
	}
	if target > t.LastKnownRPM {
		t.LastKnownRPM = target
	}
}

// SetIdleRPM drives v's RPM to rpm, clamped to [0,1]. Used for the controlled
// descent of jets after exit.
func SetIdleRPM(host hostapi.Vehicles, v hostapi.Handle, rpm float64) {
	host.SetRPM(v, clampUnit(rpm))
}
