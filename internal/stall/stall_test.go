package stall

import (
	"testing"

	"github.com/EngineStateManager/extension/internal/config"
	"github.com/EngineStateManager/extension/internal/events"
	"github.com/EngineStateManager/extension/internal/intent"
	"github.com/EngineStateManager/extension/internal/simhost"
	"github.com/EngineStateManager/extension/pkg/hostapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.StallConfig {
	return config.StallConfig{
		PreventSlowStall:   true,
		PreventDamageStall: true,
		UpdateIntervalMs:   50,
		HealthFloor:        1000,
		AirborneHeight:     2.5,
		BrakeGrantMs:       800,
		BaselineGrantMs:    1200,
	}
}

type fixture struct {
	world *simhost.World
	bus   *intent.Bus
	comp  *Compensator
	rec   *events.Recorder
	v     hostapi.Handle
}

func newFixture(t *testing.T, cfg config.StallConfig, spec simhost.VehicleSpec) *fixture {
	t.Helper()
	w := simhost.NewWorld()
	host := hostapi.NewGuard(w, nil)
	bus := intent.NewBus(host, nil)
	rec := &events.Recorder{}

	v := w.AddVehicle(spec)
	require.NoError(t, w.CompleteEntry(v))
	w.Advance(100)

	return &fixture{world: w, bus: bus, comp: New(host, bus, cfg, nil, nil, rec), rec: rec, v: v}
}

func (f *fixture) update() { f.comp.Update(f.world.Now()) }

func TestUpdate_AirborneEngineOffIsForcedOn(t *testing.T) {
	f := newFixture(t, testConfig(), simhost.VehicleSpec{Class: hostapi.ClassPlane, Airborne: true})

	f.update()

	assert.True(t, f.world.Vehicle(f.v).EngineOn)
	cur := f.bus.Current()
	assert.Equal(t, intent.ForceOn, cur.Intent)
	assert.Equal(t, intent.Normal, cur.Priority)
	assert.Equal(t, Owner, cur.Owner)
	assert.Equal(t, f.world.Now()+1200, cur.ExpiresAt)
	assert.Equal(t, []events.Kind{events.StallForcedOn}, f.rec.Kinds(f.v))
}

func TestUpdate_BrakingUsesShortGrant(t *testing.T) {
	f := newFixture(t, testConfig(), simhost.VehicleSpec{Class: hostapi.ClassHelicopter, Airborne: true})
	f.world.Press(hostapi.ControlVehicleBrake, true)

	f.update()

	assert.True(t, f.world.Vehicle(f.v).EngineOn)
	assert.Equal(t, f.world.Now()+800, f.bus.Current().ExpiresAt)
	assert.Equal(t, 1, f.rec.Count(events.StallForcedOn), "baseline pass sees the engine already running")
}

func TestUpdate_AirborneDetection(t *testing.T) {
	tests := []struct {
		name      string
		onWheels  bool
		height    float64
		wantForce bool
	}{
		{name: "parked", onWheels: true, height: 0},
		{name: "at threshold", onWheels: true, height: 2.5},
		{name: "above threshold", onWheels: true, height: 2.6, wantForce: true},
		{name: "wheels off ground", onWheels: false, height: 0, wantForce: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig(), simhost.VehicleSpec{Class: hostapi.ClassPlane})
			veh := f.world.Vehicle(f.v)
			veh.OnAllWheels = tt.onWheels
			veh.HeightAboveGround = tt.height

			f.update()

			assert.Equal(t, tt.wantForce, veh.EngineOn)
		})
	}
}

func TestUpdate_ToggleForceOffWins(t *testing.T) {
	f := newFixture(t, testConfig(), simhost.VehicleSpec{Class: hostapi.ClassPlane, Airborne: true})
	require.True(t, f.bus.Set(intent.ForceOff, intent.Critical, 0, "EngineStateControl"))

	f.update()

	assert.False(t, f.world.Vehicle(f.v).EngineOn)
	assert.Equal(t, "EngineStateControl", f.bus.Current().Owner)
	assert.Equal(t, 0, f.rec.Count(events.StallForcedOn))
}

func TestUpdate_Cadence(t *testing.T) {
	f := newFixture(t, testConfig(), simhost.VehicleSpec{Class: hostapi.ClassPlane, Airborne: true})

	f.update()
	f.world.Vehicle(f.v).EngineOn = false

	f.world.Advance(30)
	f.update()
	assert.False(t, f.world.Vehicle(f.v).EngineOn, "second pass inside the interval is skipped")

	f.world.Advance(20)
	f.update()
	assert.True(t, f.world.Vehicle(f.v).EngineOn)
}

func TestUpdate_HealthFloor(t *testing.T) {
	cfg := testConfig()
	cfg.PreventSlowStall = false
	f := newFixture(t, cfg, simhost.VehicleSpec{Class: hostapi.ClassPlane, Airborne: true})
	veh := f.world.Vehicle(f.v)
	veh.EngineHealth = 300
	veh.TankHealth = 999

	f.update()

	assert.Equal(t, 1000.0, veh.EngineHealth)
	assert.Equal(t, 1000.0, veh.TankHealth)
	assert.False(t, veh.CanDegrade)
	assert.False(t, veh.EngineOn, "slow stall prevention is off")
	assert.Equal(t, 1, f.rec.Count(events.HealthFloored))

	veh.CanDegrade = true
	f.world.Advance(50)
	f.update()

	assert.False(t, veh.CanDegrade, "degrade flag is re-applied every pass")
	assert.Equal(t, 1, f.rec.Count(events.HealthFloored), "healthy aircraft emit nothing")
}

func TestUpdate_HealthAboveFloorUntouched(t *testing.T) {
	cfg := testConfig()
	cfg.HealthFloor = 500
	f := newFixture(t, cfg, simhost.VehicleSpec{Class: hostapi.ClassPlane, Airborne: true, EngineOn: true})
	veh := f.world.Vehicle(f.v)
	veh.EngineHealth = 800

	f.update()

	assert.Equal(t, 800.0, veh.EngineHealth)
	assert.Equal(t, 0, f.rec.Count(events.HealthFloored))
}

func TestUpdate_Skips(t *testing.T) {
	tests := []struct {
		name  string
		cfg   func(c *config.StallConfig)
		class hostapi.VehicleClass
		setup func(f *fixture)
	}{
		{
			name:  "disabled",
			cfg:   func(c *config.StallConfig) { c.PreventSlowStall, c.PreventDamageStall = false, false },
			class: hostapi.ClassPlane,
		},
		{name: "not an aircraft", class: hostapi.ClassOther},
		{
			name:  "on foot",
			class: hostapi.ClassPlane,
			setup: func(f *fixture) { f.world.CompleteExit() },
		},
		{
			name:  "host failing",
			class: hostapi.ClassPlane,
			setup: func(f *fixture) { f.world.Fail("AgentVehicle", assert.AnError) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			f := newFixture(t, cfg, simhost.VehicleSpec{Class: tt.class, Airborne: true})
			f.world.Vehicle(f.v).EngineHealth = 10
			if tt.setup != nil {
				tt.setup(f)
			}

			f.update()

			veh := f.world.Vehicle(f.v)
			assert.False(t, veh.EngineOn)
			assert.Equal(t, 10.0, veh.EngineHealth)
			assert.Equal(t, intent.None, f.bus.Current().Intent)
		})
	}
}

func TestShutdown_ReleasesOwnRequestOnly(t *testing.T) {
	f := newFixture(t, testConfig(), simhost.VehicleSpec{Class: hostapi.ClassPlane, Airborne: true})
	f.update()
	require.Equal(t, Owner, f.bus.Current().Owner)

	f.comp.Shutdown()
	assert.Equal(t, intent.None, f.bus.Current().Intent)

	f.bus.Set(intent.ForceOff, intent.Critical, 0, "EngineStateControl")
	f.comp.Shutdown()
	assert.Equal(t, intent.ForceOff, f.bus.Current().Intent)
}
