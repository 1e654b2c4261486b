package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"aircraft": { "maxTracked": 5, "jetIdleRpm": 0.3 },
		"ghost": { "proximity": 12.5 }
	}`)

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 5, viper.GetInt("aircraft.maxTracked"))
	assert.InDelta(t, 0.3, viper.GetFloat64("aircraft.jetIdleRpm"), 1e-9)
	assert.InDelta(t, 12.5, viper.GetFloat64("ghost.proximity"), 1e-9)
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	s := Current()
	assert.Equal(t, 20, s.Aircraft.MaxTracked)
	assert.Equal(t, int64(250), s.Aircraft.MaintenanceIntervalMs)
	assert.Equal(t, int64(900), s.Aircraft.ReassertIntervalMs)
	assert.Equal(t, int64(150), s.Aircraft.PlaneReassertCapMs)
	assert.Equal(t, -1.0, s.Aircraft.MaxDistance)
	assert.True(t, s.Aircraft.OnlyReassertWhenEngineOff)
	assert.True(t, s.Aircraft.HeliPersistence)
	assert.True(t, s.Aircraft.PlanePersistence)
	assert.True(t, s.Aircraft.HeliFullRotorOnExit)
	assert.Equal(t, int64(800), s.Aircraft.JetExitGraceMs)
	assert.Equal(t, int64(800), s.Aircraft.JetEnterGraceMs)
	assert.Equal(t, int64(2600), s.Aircraft.PropExitGraceMs)
	assert.Equal(t, int64(1200), s.Aircraft.PropEnterGraceMs)
	assert.Equal(t, int64(250), s.Aircraft.JetFloorHoldMs)
	assert.InDelta(t, 0.18, s.Aircraft.JetIdleRPM, 1e-9)
	assert.InDelta(t, 0.25, s.Aircraft.JetRPMFloor, 1e-9)
	assert.InDelta(t, 0.25, s.Aircraft.PropRPMFloor, 1e-9)
	assert.Equal(t, int64(5000), s.Aircraft.HeartbeatMs)

	assert.Equal(t, int64(2500), s.Ghost.SuppressMs)
	assert.Equal(t, 10.0, s.Ghost.Proximity)

	assert.False(t, s.Stall.PreventSlowStall)
	assert.False(t, s.Stall.PreventDamageStall)
	assert.Equal(t, int64(50), s.Stall.UpdateIntervalMs)
	assert.Equal(t, 1000.0, s.Stall.HealthFloor)
	assert.Equal(t, 2.5, s.Stall.AirborneHeight)
	assert.Equal(t, int64(800), s.Stall.BrakeGrantMs)
	assert.Equal(t, int64(1200), s.Stall.BaselineGrantMs)

	assert.True(t, s.Toggle.Enabled)
	assert.Equal(t, int64(150), s.Toggle.DebounceMs)
	assert.Equal(t, int64(500), s.Toggle.RestartBlockMs)

	assert.True(t, s.Journal.Enabled)
	assert.Equal(t, "sqlite", s.Journal.Type)
	assert.Equal(t, 3*time.Minute, s.Journal.DumpInterval)

	assert.False(t, s.Influx.Enabled)
	assert.Equal(t, "enginestate", s.Influx.Bucket)

	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, "./logs", s.Log.Dir)
	assert.False(t, s.Log.GraylogEnabled)
	assert.Equal(t, "localhost:12201", s.Log.GraylogAddress)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
	assert.True(t, IsNotFound(err))

	// Defaults still apply.
	assert.Equal(t, 20, Current().Aircraft.MaxTracked)
}

func TestCurrent_Clamps(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, s Settings)
	}{
		{
			name: "maxTracked below range",
			body: `{"aircraft": {"maxTracked": 0}}`,
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, 1, s.Aircraft.MaxTracked)
			},
		},
		{
			name: "maxTracked above range",
			body: `{"aircraft": {"maxTracked": 1000}}`,
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, 200, s.Aircraft.MaxTracked)
			},
		},
		{
			name: "intervals",
			body: `{"aircraft": {"maintenanceIntervalMs": 10, "reassertIntervalMs": 99999}}`,
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, int64(50), s.Aircraft.MaintenanceIntervalMs)
				assert.Equal(t, int64(10000), s.Aircraft.ReassertIntervalMs)
			},
		},
		{
			name: "grace windows",
			body: `{"aircraft": {"jetExitGraceMs": -4, "propExitGraceMs": 9000, "jetEnterGraceMs": 6000}}`,
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, int64(0), s.Aircraft.JetExitGraceMs)
				assert.Equal(t, int64(8000), s.Aircraft.PropExitGraceMs)
				assert.Equal(t, int64(5000), s.Aircraft.JetEnterGraceMs)
			},
		},
		{
			name: "rpm values",
			body: `{"aircraft": {"jetIdleRpm": 1.7, "propRpmFloor": -0.2}}`,
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, 1.0, s.Aircraft.JetIdleRPM)
				assert.Equal(t, 0.0, s.Aircraft.PropRPMFloor)
			},
		},
		{
			name: "unknown journal type falls back to sqlite",
			body: `{"journal": {"type": "MongoDB"}}`,
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, "sqlite", s.Journal.Type)
			},
		},
		{
			name: "postgres journal type is case insensitive",
			body: `{"journal": {"type": "Postgres"}}`,
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, "postgres", s.Journal.Type)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(viper.Reset)
			require.NoError(t, Load(writeConfig(t, tt.body)))
			tt.check(t, Current())
		})
	}
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}
