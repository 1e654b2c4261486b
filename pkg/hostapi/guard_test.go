package hostapi_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/EngineStateManager/extension/internal/simhost"
	"github.com/EngineStateManager/extension/pkg/hostapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T, n hostapi.Natives) (*hostapi.Guard, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return hostapi.NewGuard(n, slog.New(slog.NewTextHandler(&buf, nil))), &buf
}

func TestGuard_PassesThrough(t *testing.T) {
	w := simhost.NewWorld()
	v := w.AddVehicle(simhost.VehicleSpec{Class: hostapi.ClassPlane, Propeller: true, EngineOn: true})
	g, buf := newGuard(t, w)

	assert.True(t, g.Exists(v))
	assert.True(t, g.EngineOn(v))
	assert.Equal(t, hostapi.ClassPlane, g.Class(v))
	assert.GreaterOrEqual(t, g.BoneIndex(v, simhost.PropellerBones[0]), 0)

	g.SetRPM(v, 0.4)
	assert.InDelta(t, 0.4, g.RPM(v), 1e-9)

	assert.Empty(t, g.FailedOps())
	assert.Empty(t, buf.String())
}

func TestGuard_InvalidHandleNeverReachesHost(t *testing.T) {
	w := simhost.NewWorld()
	g, _ := newGuard(t, w)

	assert.False(t, g.Exists(hostapi.NoHandle))
	assert.Zero(t, w.Calls("Exists"))
}

func TestGuard_FailureAnswersDefaultAndLogsOnce(t *testing.T) {
	w := simhost.NewWorld()
	v := w.AddVehicle(simhost.VehicleSpec{Class: hostapi.ClassHelicopter, EngineOn: true})
	g, buf := newGuard(t, w)

	w.Fail("EngineOn", errors.New("native missing"))
	w.Fail("Class", errors.New("native missing"))
	w.Fail("SetRPM", errors.New("native missing"))

	for i := 0; i < 5; i++ {
		assert.False(t, g.EngineOn(v))
		assert.Equal(t, hostapi.ClassOther, g.Class(v))
		g.SetRPM(v, 1)
	}

	assert.Equal(t, []string{"Class", "EngineOn", "SetRPM"}, g.FailedOps())
	assert.Equal(t, 3, strings.Count(buf.String(), "host call failed"))
	assert.Equal(t, 5, w.Calls("EngineOn"), "failing calls are still attempted")

	w.Fail("EngineOn", nil)
	assert.True(t, g.EngineOn(v), "a recovered native answers again")
	assert.Equal(t, 3, strings.Count(buf.String(), "host call failed"))
}

// panicky panics on RPM reads and AgentVehicle.
type panicky struct {
	*simhost.World
}

func (panicky) RPM(hostapi.Handle) (float64, error) { panic("bad pointer") }

func (panicky) AgentVehicle() (hostapi.Handle, error) { panic("bad pointer") }

func TestGuard_RecoversPanics(t *testing.T) {
	w := simhost.NewWorld()
	v := w.AddVehicle(simhost.VehicleSpec{Class: hostapi.ClassPlane, EngineOn: true})
	g, buf := newGuard(t, panicky{w})

	require.NotPanics(t, func() {
		assert.Zero(t, g.RPM(v))
		assert.Equal(t, hostapi.NoHandle, g.AgentVehicle())
	})
	assert.Equal(t, []string{"AgentVehicle", "RPM"}, g.FailedOps())
	assert.Contains(t, buf.String(), "panic: bad pointer")
	assert.True(t, g.EngineOn(v))
}

func TestGuard_DefaultsForAgentQueries(t *testing.T) {
	w := simhost.NewWorld()
	g, _ := newGuard(t, w)

	for _, op := range []string{"Agent", "AgentSeat", "EntryTarget", "IsEnteringAnyVehicle", "ControlPressed", "SpawnInSeat"} {
		w.Fail(op, errors.New("down"))
	}

	assert.Equal(t, hostapi.NoHandle, g.Agent())
	assert.Equal(t, hostapi.SeatNone, g.AgentSeat())
	assert.Equal(t, hostapi.NoHandle, g.EntryTarget())
	assert.False(t, g.IsEnteringAnyVehicle())
	assert.False(t, g.ControlPressed(hostapi.ControlVehicleExit))
	assert.Equal(t, hostapi.NoHandle, g.SpawnInSeat(hostapi.NoHandle, hostapi.PilotModel, hostapi.SeatDriver))
	assert.Len(t, g.FailedOps(), 6)
}
