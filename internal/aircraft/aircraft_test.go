package aircraft

import (
	"testing"

	"github.com/EngineStateManager/extension/internal/simhost"
	"github.com/EngineStateManager/extension/pkg/hostapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHost(t *testing.T) (*simhost.World, *hostapi.Guard) {
	t.Helper()
	w := simhost.NewWorld()
	return w, hostapi.NewGuard(w, nil)
}

func TestClassify_ProbesPropellerOnce(t *testing.T) {
	w, host := newHost(t)
	prop := w.AddVehicle(simhost.VehicleSpec{Class: hostapi.ClassPlane, Propeller: true})
	jet := w.AddVehicle(simhost.VehicleSpec{Class: hostapi.ClassPlane})

	tp := &Tracked{Handle: prop}
	Classify(host, tp, hostapi.ClassPlane)
	assert.True(t, tp.IsPropPlane())
	assert.Equal(t, "Prop", tp.Kind())

	tj := &Tracked{Handle: jet}
	Classify(host, tj, hostapi.ClassPlane)
	assert.True(t, tj.IsJet())
	assert.Equal(t, "Jet", tj.Kind())

	w.ResetCalls()
	Classify(host, tj, hostapi.ClassPlane)
	assert.Equal(t, 0, w.Calls("BoneIndex"), "probe result is cached")
}

func TestClassify_HelicopterSkipsProbe(t *testing.T) {
	w, host := newHost(t)
	heli := w.AddVehicle(simhost.VehicleSpec{Class: hostapi.ClassHelicopter, Propeller: true})

	tr := &Tracked{Handle: heli}
	Classify(host, tr, hostapi.ClassHelicopter)

	assert.True(t, tr.IsHeli())
	assert.False(t, tr.IsPropPlane())
	assert.Equal(t, 0, w.Calls("BoneIndex"))
}

func TestWindows_PlanesOnly(t *testing.T) {
	plane := &Tracked{Class: hostapi.ClassPlane, EnterPreemptUntil: 100, ExitPreemptUntil: 200, ExitGraceUntil: 300}
	enter, pre, post := plane.Windows(150)
	assert.False(t, enter)
	assert.True(t, pre)
	assert.True(t, post)
	assert.False(t, plane.InAnyGrace(300))

	heli := &Tracked{Class: hostapi.ClassHelicopter, ExitGraceUntil: 300}
	assert.False(t, heli.InAnyGrace(0))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(hostapi.ClassPlane))
	assert.True(t, Supported(hostapi.ClassHelicopter))
	assert.False(t, Supported(hostapi.ClassOther))
}

func TestForceFloor(t *testing.T) {
	tests := []struct {
		name      string
		current   float64
		lastKnown float64
		floor     float64
		wantRPM   float64
		wantLast  float64
		wantWrite bool
	}{
		{name: "raises to floor", current: 0, lastKnown: 0, floor: 0.25, wantRPM: 0.25, wantLast: 0.25, wantWrite: true},
		{name: "raises to last known", current: 0.1, lastKnown: 0.6, floor: 0.25, wantRPM: 0.6, wantLast: 0.6, wantWrite: true},
		{name: "keeps higher current", current: 0.8, lastKnown: 0.3, floor: 0.25, wantRPM: 0.8, wantLast: 0.8, wantWrite: false},
		{name: "skips writes within epsilon", current: 0.2500, lastKnown: 0, floor: 0.2505, wantRPM: 0.2500, wantLast: 0.2505, wantWrite: false},
		{name: "floor above one is clamped", current: 0, lastKnown: 0, floor: 3, wantRPM: 1, wantLast: 1, wantWrite: true},
		{name: "negative floor is clamped", current: 0.4, lastKnown: 0, floor: -1, wantRPM: 0.4, wantLast: 0.4, wantWrite: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, host := newHost(t)
			v := w.AddVehicle(simhost.VehicleSpec{Class: hostapi.ClassPlane})
			w.Vehicle(v).RPM = tt.current
			rec := &Tracked{Handle: v, LastKnownRPM: tt.lastKnown}

			ForceFloor(host, rec, tt.floor)

			assert.InDelta(t, tt.wantRPM, w.Vehicle(v).RPM, 1e-9)
			assert.InDelta(t, tt.wantLast, rec.LastKnownRPM, 1e-9)
			if tt.wantWrite {
				assert.Equal(t, 1, w.Calls("SetRPM"))
			} else {
				assert.Equal(t, 0, w.Calls("SetRPM"))
			}
		})
	}
}

func TestForceFloor_LastKnownNeverDecreases(t *testing.T) {
	w, host := newHost(t)
	v := w.AddVehicle(simhost.VehicleSpec{Class: hostapi.ClassPlane})
	rec := &Tracked{Handle: v}

	readings := []float64{0.5, 0, 0.9, 0.2, 1.3, -0.4, 0.7}
	floors := []float64{0.25, 0.1, 0, 0.3, 0.25, 0.9, 0}

	prev := rec.LastKnownRPM
	for i := range readings {
		w.Vehicle(v).RPM = readings[i]
		ForceFloor(host, rec, floors[i])
		require.GreaterOrEqual(t, rec.LastKnownRPM, prev)
		require.LessOrEqual(t, rec.LastKnownRPM, 1.0)
		prev = rec.LastKnownRPM
	}
}

func TestSetIdleRPM_Clamps(t *testing.T) {
	w, host := newHost(t)
	v := w.AddVehicle(simhost.VehicleSpec{Class: hostapi.ClassPlane, EngineOn: true})

	SetIdleRPM(host, v, 0.18)
	assert.InDelta(t, 0.18, w.Vehicle(v).RPM, 1e-9)

	SetIdleRPM(host, v, 2)
	assert.InDelta(t, 1, w.Vehicle(v).RPM, 1e-9)
}
