package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "enginestate.cfg.json"

// AircraftConfig holds the aircraft engine persistence settings.
type AircraftConfig struct {
	MaxTracked            int     `json:"maxTracked" mapstructure:"maxTracked"`
	MaintenanceIntervalMs int64   `json:"maintenanceIntervalMs" mapstructure:"maintenanceIntervalMs"`
	ReassertIntervalMs    int64   `json:"reassertIntervalMs" mapstructure:"reassertIntervalMs"`
	PlaneReassertCapMs    int64   `json:"planeReassertCapMs" mapstructure:"planeReassertCapMs"`
	MaxDistance           float64 `json:"maxDistance" mapstructure:"maxDistance"`

	OnlyReassertWhenEngineOff bool `json:"onlyReassertWhenEngineOff" mapstructure:"onlyReassertWhenEngineOff"`
	HeliPersistence           bool `json:"heliPersistence" mapstructure:"heliPersistence"`
	PlanePersistence          bool `json:"planePersistence" mapstructure:"planePersistence"`
	HeliFullRotorOnExit       bool `json:"heliFullRotorOnExit" mapstructure:"heliFullRotorOnExit"`

	JetExitGraceMs   int64 `json:"jetExitGraceMs" mapstructure:"jetExitGraceMs"`
	JetEnterGraceMs  int64 `json:"jetEnterGraceMs" mapstructure:"jetEnterGraceMs"`
	PropExitGraceMs  int64 `json:"propExitGraceMs" mapstructure:"propExitGraceMs"`
	PropEnterGraceMs int64 `json:"propEnterGraceMs" mapstructure:"propEnterGraceMs"`
	JetFloorHoldMs   int64 `json:"jetFloorHoldMs" mapstructure:"jetFloorHoldMs"`

	JetIdleRPM   float64 `json:"jetIdleRpm" mapstructure:"jetIdleRpm"`
	JetRPMFloor  float64 `json:"jetRpmFloor" mapstructure:"jetRpmFloor"`
	PropRPMFloor float64 `json:"propRpmFloor" mapstructure:"propRpmFloor"`

	HeartbeatMs int64 `json:"heartbeatMs" mapstructure:"heartbeatMs"`
}

// GhostConfig holds the decoy occupant settings.
type GhostConfig struct {
	SuppressMs int64   `json:"suppressMs" mapstructure:"suppressMs"`
	Proximity  float64 `json:"proximity" mapstructure:"proximity"`
}

// StallConfig holds the stall compensator settings.
type StallConfig struct {
	PreventSlowStall   bool    `json:"preventSlowStall" mapstructure:"preventSlowStall"`
	PreventDamageStall bool    `json:"preventDamageStall" mapstructure:"preventDamageStall"`
	UpdateIntervalMs   int64   `json:"updateIntervalMs" mapstructure:"updateIntervalMs"`
	HealthFloor        float64 `json:"healthFloor" mapstructure:"healthFloor"`
	AirborneHeight     float64 `json:"airborneHeight" mapstructure:"airborneHeight"`
	BrakeGrantMs       int64   `json:"brakeGrantMs" mapstructure:"brakeGrantMs"`
	BaselineGrantMs    int64   `json:"baselineGrantMs" mapstructure:"baselineGrantMs"`
}

// ToggleConfig holds the manual engine toggle settings.
type ToggleConfig struct {
	Enabled        bool  `json:"enabled" mapstructure:"enabled"`
	DebounceMs     int64 `json:"debounceMs" mapstructure:"debounceMs"`
	RestartBlockMs int64 `json:"restartBlockMs" mapstructure:"restartBlockMs"`
}

// JournalConfig holds the transition journal settings.
type JournalConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	Type         string        `json:"type" mapstructure:"type"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// DBConfig holds the postgres connection used when journal.type is postgres.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds the telemetry connection.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// LogConfig holds logging output settings.
type LogConfig struct {
	Level          string `json:"logLevel" mapstructure:"logLevel"`
	Dir            string `json:"logsDir" mapstructure:"logsDir"`
	Debug          bool   `json:"debug" mapstructure:"debug"`
	GraylogEnabled bool   `json:"graylogEnabled" mapstructure:"graylogEnabled"`
	GraylogAddress string `json:"graylogAddress" mapstructure:"graylogAddress"`
}

// Settings is the validated configuration, assembled once at startup.
type Settings struct {
	Aircraft AircraftConfig
	Ghost    GhostConfig
	Stall    StallConfig
	Toggle   ToggleConfig
	Journal  JournalConfig
	DB       DBConfig
	Influx   InfluxConfig
	Log      LogConfig
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("debug.enabled", false)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("aircraft.maxTracked", 20)
	viper.SetDefault("aircraft.maintenanceIntervalMs", 250)
	viper.SetDefault("aircraft.reassertIntervalMs", 900)
	viper.SetDefault("aircraft.planeReassertCapMs", 150)
	viper.SetDefault("aircraft.maxDistance", -1.0)
	viper.SetDefault("aircraft.onlyReassertWhenEngineOff", true)
	viper.SetDefault("aircraft.heliPersistence", true)
	viper.SetDefault("aircraft.planePersistence", true)
	viper.SetDefault("aircraft.heliFullRotorOnExit", true)
	viper.SetDefault("aircraft.jetExitGraceMs", 800)
	viper.SetDefault("aircraft.jetEnterGraceMs", 800)
	viper.SetDefault("aircraft.propExitGraceMs", 2600)
	viper.SetDefault("aircraft.propEnterGraceMs", 1200)
	viper.SetDefault("aircraft.jetFloorHoldMs", 250)
	viper.SetDefault("aircraft.jetIdleRpm", 0.18)
	viper.SetDefault("aircraft.jetRpmFloor", 0.25)
	viper.SetDefault("aircraft.propRpmFloor", 0.25)
	viper.SetDefault("aircraft.heartbeatMs", 5000)

	viper.SetDefault("ghost.suppressMs", 2500)
	viper.SetDefault("ghost.proximity", 10.0)

	viper.SetDefault("stall.preventSlowStall", false)
	viper.SetDefault("stall.preventDamageStall", false)
	viper.SetDefault("stall.updateIntervalMs", 50)
	viper.SetDefault("stall.healthFloor", 1000.0)
	viper.SetDefault("stall.airborneHeight", 2.5)
	viper.SetDefault("stall.brakeGrantMs", 800)
	viper.SetDefault("stall.baselineGrantMs", 1200)

	viper.SetDefault("toggle.enabled", true)
	viper.SetDefault("toggle.debounceMs", 150)
	viper.SetDefault("toggle.restartBlockMs", 500)

	viper.SetDefault("journal.enabled", true)
	viper.SetDefault("journal.type", "sqlite")
	viper.SetDefault("journal.dumpPath", "")
	viper.SetDefault("journal.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "enginestate")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "enginestate")
	viper.SetDefault("influx.bucket", "enginestate")
}

// Load sets default values and reads the JSON config file from configDir.
// Defaults stay in effect when the file is missing; the returned error says so.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix("ENGINESTATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// IsNotFound reports whether err from Load only means the file is absent.
func IsNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound)
}

// Current assembles the validated settings from viper, clamping every value
// into its supported range.
func Current() Settings {
	setDefaults()

	s := Settings{
		Aircraft: AircraftConfig{
			MaxTracked:                clampInt(viper.GetInt("aircraft.maxTracked"), 1, 200),
			MaintenanceIntervalMs:     clamp64(viper.GetInt64("aircraft.maintenanceIntervalMs"), 50, 5000),
			ReassertIntervalMs:        clamp64(viper.GetInt64("aircraft.reassertIntervalMs"), 50, 10000),
			PlaneReassertCapMs:        clamp64(viper.GetInt64("aircraft.planeReassertCapMs"), 0, 10000),
			MaxDistance:               viper.GetFloat64("aircraft.maxDistance"),
			OnlyReassertWhenEngineOff: viper.GetBool("aircraft.onlyReassertWhenEngineOff"),
			HeliPersistence:           viper.GetBool("aircraft.heliPersistence"),
			PlanePersistence:          viper.GetBool("aircraft.planePersistence"),
			HeliFullRotorOnExit:       viper.GetBool("aircraft.heliFullRotorOnExit"),
			JetExitGraceMs:            clamp64(viper.GetInt64("aircraft.jetExitGraceMs"), 0, 5000),
			JetEnterGraceMs:           clamp64(viper.GetInt64("aircraft.jetEnterGraceMs"), 0, 5000),
			PropExitGraceMs:           clamp64(viper.GetInt64("aircraft.propExitGraceMs"), 0, 8000),
			PropEnterGraceMs:          clamp64(viper.GetInt64("aircraft.propEnterGraceMs"), 0, 8000),
			JetFloorHoldMs:            clamp64(viper.GetInt64("aircraft.jetFloorHoldMs"), 0, 5000),
			JetIdleRPM:                clampUnit(viper.GetFloat64("aircraft.jetIdleRpm")),
			JetRPMFloor:               clampUnit(viper.GetFloat64("aircraft.jetRpmFloor")),
			PropRPMFloor:              clampUnit(viper.GetFloat64("aircraft.propRpmFloor")),
			HeartbeatMs:               clamp64(viper.GetInt64("aircraft.heartbeatMs"), 500, 600000),
		},
		Ghost: GhostConfig{
			SuppressMs: clamp64(viper.GetInt64("ghost.suppressMs"), 0, 30000),
			Proximity:  viper.GetFloat64("ghost.proximity"),
		},
		Stall: StallConfig{
			PreventSlowStall:   viper.GetBool("stall.preventSlowStall"),
			PreventDamageStall: viper.GetBool("stall.preventDamageStall"),
			UpdateIntervalMs:   clamp64(viper.GetInt64("stall.updateIntervalMs"), 0, 5000),
			HealthFloor:        viper.GetFloat64("stall.healthFloor"),
			AirborneHeight:     viper.GetFloat64("stall.airborneHeight"),
			BrakeGrantMs:       clamp64(viper.GetInt64("stall.brakeGrantMs"), 1, 60000),
			BaselineGrantMs:    clamp64(viper.GetInt64("stall.baselineGrantMs"), 1, 60000),
		},
		Toggle: ToggleConfig{
			Enabled:        viper.GetBool("toggle.enabled"),
			DebounceMs:     clamp64(viper.GetInt64("toggle.debounceMs"), 0, 5000),
			RestartBlockMs: clamp64(viper.GetInt64("toggle.restartBlockMs"), 0, 5000),
		},
		Journal: JournalConfig{
			Enabled:      viper.GetBool("journal.enabled"),
			Type:         strings.ToLower(viper.GetString("journal.type")),
			DumpPath:     viper.GetString("journal.dumpPath"),
			DumpInterval: viper.GetDuration("journal.dumpInterval"),
		},
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
		Influx: InfluxConfig{
			Enabled:  viper.GetBool("influx.enabled"),
			Protocol: viper.GetString("influx.protocol"),
			Host:     viper.GetString("influx.host"),
			Port:     viper.GetString("influx.port"),
			Token:    viper.GetString("influx.token"),
			Org:      viper.GetString("influx.org"),
			Bucket:   viper.GetString("influx.bucket"),
		},
		Log: LogConfig{
			Level:          viper.GetString("logLevel"),
			Dir:            viper.GetString("logsDir"),
			Debug:          viper.GetBool("debug.enabled"),
			GraylogEnabled: viper.GetBool("graylog.enabled"),
			GraylogAddress: viper.GetString("graylog.address"),
		},
	}

	if s.Journal.Type != "sqlite" && s.Journal.Type != "postgres" {
		s.Journal.Type = "sqlite"
	}
	return s
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
