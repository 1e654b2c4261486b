// Command enginestate replays a scripted flight scenario against the
// simulated host and runs the engine persistence features on every frame,
// journaling each engine transition.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/EngineStateManager/extension/internal/config"
	"github.com/EngineStateManager/extension/internal/dispatcher"
	"github.com/EngineStateManager/extension/internal/events"
	"github.com/EngineStateManager/extension/internal/ghost"
	"github.com/EngineStateManager/extension/internal/influx"
	"github.com/EngineStateManager/extension/internal/intent"
	"github.com/EngineStateManager/extension/internal/journal"
	"github.com/EngineStateManager/extension/internal/logging"
	"github.com/EngineStateManager/extension/internal/persistence"
	"github.com/EngineStateManager/extension/internal/simhost"
	"github.com/EngineStateManager/extension/internal/stall"
	"github.com/EngineStateManager/extension/internal/toggle"
	"github.com/EngineStateManager/extension/pkg/hostapi"

	"github.com/rs/zerolog"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "enginestate"
)

const configFileHint = config.FileName

// Feature names, in frame order.
const (
	featurePersistence = "AircraftEnginePersistence"
	featureStall       = stall.Owner
	featureToggle      = toggle.Owner
)

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if opts.Version {
		fmt.Printf("%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
		return
	}
	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// app holds everything a run wires together.
type app struct {
	cfg     config.Settings
	session string
	logger  *slog.Logger
	zlog    zerolog.Logger

	world      *simhost.World
	host       *hostapi.Guard
	dispatcher *dispatcher.Dispatcher
	loop       *persistence.Loop

	journal *journal.Journal
	influx  *influx.Manager
	closers []io.Closer
}

func run(opts options, out io.Writer) error {
	sessionStart := time.Now()

	cfgErr := config.Load(opts.ConfigDir)
	if cfgErr != nil && !config.IsNotFound(cfgErr) {
		return cfgErr
	}

	a := &app{
		cfg:     config.Current(),
		session: logging.NewSessionID(),
		world:   simhost.NewWorld(),
	}
	defer a.close()

	if err := a.setupLogging(opts, sessionStart); err != nil {
		return err
	}
	if cfgErr != nil {
		a.logger.Warn("Config file not found, using defaults", "dir", opts.ConfigDir, "file", config.FileName)
	} else {
		a.logger.Info("Loaded config", "dir", opts.ConfigDir)
	}

	scenario, err := simhost.LoadScenario(opts.Scenario)
	if err != nil {
		a.logger.Error("Failed to load scenario", "path", opts.Scenario, "error", err)
		return fmt.Errorf("load scenario: %w", err)
	}

	sink := a.setupSinks(sessionStart)
	if err := a.setupFeatures(sink); err != nil {
		return err
	}

	a.logger.Info("Replaying scenario",
		"name", scenario.Name,
		"frameMs", scenario.FrameMs,
		"durationMs", scenario.DurationMs,
		"steps", len(scenario.Steps),
	)
	start := time.Now()
	handles, runErr := scenario.Run(a.world, a.dispatcher.Tick)
	a.dispatcher.Shutdown()
	if runErr != nil {
		a.logger.Error("Scenario aborted", "error", runErr)
	}

	a.report(out, scenario, handles, time.Since(start))
	return runErr
}

func (a *app) setupLogging(opts options, sessionStart time.Time) error {
	var file io.Writer
	if !opts.Console {
		if err := os.MkdirAll(a.cfg.Log.Dir, 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
		lf := logging.NewRotatingFile(a.cfg.Log.Dir, AppName, sessionStart, a.cfg.Log.Debug)
		a.closers = append(a.closers, lf)
		file = lf
	}

	var gelfOut io.Writer
	var gelfErr error
	if a.cfg.Log.GraylogEnabled {
		w, err := logging.NewGELFWriter(a.cfg.Log.GraylogAddress, AppName)
		if err != nil {
			gelfErr = err
		} else {
			a.closers = append(a.closers, w)
			gelfOut = w
		}
	}

	manager := logging.NewSlogManager()
	manager.Setup(logging.Options{
		File:  file,
		GELF:  gelfOut,
		Level: a.cfg.Log.Level,
		Context: func() []slog.Attr {
			return []slog.Attr{slog.Int64("gameTime", a.world.Now())}
		},
		Attrs: []slog.Attr{
			slog.String("session", a.session),
			slog.String("version", CurrentVersion),
		},
	})
	a.logger = manager.Logger()
	if gelfErr != nil {
		a.logger.Warn("Graylog disabled", "address", a.cfg.Log.GraylogAddress, "error", gelfErr)
	}

	zout := file
	if zout == nil {
		zout = os.Stdout
	}
	level, err := zerolog.ParseLevel(strings.ToLower(a.cfg.Log.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	a.zlog = zerolog.New(zout).Level(level).With().
		Timestamp().
		Str("session", a.session).
		Logger()
	return nil
}

// setupSinks opens the journal and telemetry outputs. Either may fail without
// stopping the run; events then go only to the sinks that did open.
func (a *app) setupSinks(sessionStart time.Time) events.Sink {
	var sinks events.Multi

	if a.cfg.Journal.Enabled {
		j, err := journal.Open(a.cfg.Journal, a.cfg.DB, a.session,
			logging.NewZerologAdapter(a.zlog.With().Str("component", "journal").Logger()))
		if err != nil {
			a.logger.Error("Journal disabled", "error", err)
		} else {
			a.journal = j
			sinks = append(sinks, j)
		}
	}

	if a.cfg.Influx.Enabled {
		backup := filepath.Join(a.cfg.Log.Dir,
			fmt.Sprintf("%s_influx_%s.lp.gz", AppName, sessionStart.Format("20060102_150405")))
		m := influx.NewManager(a.zlog.With().Str("component", "influx").Logger(), backup, a.session)
		if err := m.Connect(a.cfg.Influx); err != nil {
			a.logger.Error("Telemetry disabled", "url", influx.URL(a.cfg.Influx), "error", err)
		} else {
			a.influx = m
			sinks = append(sinks, m)
		}
	}

	if len(sinks) == 0 {
		return events.Discard
	}
	return sinks
}

func (a *app) setupFeatures(sink events.Sink) error {
	a.host = hostapi.NewGuard(a.world, a.logger.With("component", "host"))
	bus := intent.NewBus(a.host, a.logger.With("component", "intent"))
	// Throttled lines fire every frame or two; outside debug only warnings pass.
	throttleLogger := a.logger
	if !a.cfg.Log.Debug {
		throttleLogger = logging.WithMinLevel(a.logger, slog.LevelWarn)
	}
	throttle := logging.NewThrottler(throttleLogger, 0)

	ghosts := ghost.NewManager(a.host, ghost.Config{
		Model:      hostapi.PilotModel,
		SuppressMs: a.cfg.Ghost.SuppressMs,
		Proximity:  a.cfg.Ghost.Proximity,
	}, a.logger.With("component", "ghost"), throttle, sink)

	deps := persistence.Dependencies{
		Host:     a.host,
		Ghosts:   ghosts,
		Logger:   a.logger.With("component", "persistence"),
		Throttle: throttle,
		Sink:     sink,
	}
	if a.influx != nil {
		deps.Sampler = a.influx
	}
	loop, err := persistence.New(deps, a.cfg.Aircraft)
	if err != nil {
		return fmt.Errorf("create persistence loop: %w", err)
	}
	a.loop = loop

	d, err := dispatcher.New(a.logger.With("component", "dispatcher"))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}
	a.dispatcher = d

	var debug []dispatcher.Option
	if a.cfg.Log.Debug {
		debug = append(debug, dispatcher.Logged())
	}

	if err := d.Register(featurePersistence, loop, debug...); err != nil {
		return err
	}
	stallOpts := append([]dispatcher.Option{dispatcher.Every(a.cfg.Stall.UpdateIntervalMs)}, debug...)
	err = d.Register(featureStall,
		stall.New(a.host, bus, a.cfg.Stall, a.logger.With("component", "stall"), throttle, sink),
		stallOpts...)
	if err != nil {
		return err
	}
	err = d.Register(featureToggle,
		toggle.New(a.host, bus, a.cfg.Toggle, a.logger.With("component", "toggle"), sink),
		debug...)
	if err != nil {
		return err
	}

	a.logger.Info("Features registered",
		"planes", a.cfg.Aircraft.PlanePersistence,
		"helis", a.cfg.Aircraft.HeliPersistence,
		"slowStall", a.cfg.Stall.PreventSlowStall,
		"damageStall", a.cfg.Stall.PreventDamageStall,
		"toggle", a.cfg.Toggle.Enabled,
	)
	return nil
}

// report prints a run summary to out and the log.
func (a *app) report(out io.Writer, s *simhost.Scenario, handles map[string]hostapi.Handle, took time.Duration) {
	fmt.Fprintf(out, "scenario %q: %d ms of game time in %s\n", s.Name, s.DurationMs, took.Round(time.Millisecond))

	for _, sv := range s.Vehicles {
		h, ok := handles[sv.ID]
		if !ok {
			continue
		}
		v := a.world.Vehicle(h)
		if v == nil {
			fmt.Fprintf(out, "  %-12s removed\n", sv.ID)
			continue
		}
		fmt.Fprintf(out, "  %-12s engine_on=%-5t rpm=%.2f enforced=%t\n", sv.ID, v.EngineOn, v.RPM, a.loop.IsEnforced(h))
	}

	if ops := a.host.FailedOps(); len(ops) > 0 {
		fmt.Fprintf(out, "  failed host ops: %s\n", strings.Join(ops, ", "))
	}
	for _, name := range []string{featurePersistence, featureStall, featureToggle} {
		if a.dispatcher.Faulted(name) {
			fmt.Fprintf(out, "  feature %s faulted\n", name)
		}
	}

	if a.journal != nil {
		if err := a.journal.Flush(); err != nil {
			a.logger.Error("Failed to flush journal", "error", err)
			return
		}
		rows, err := a.journal.Recent(10)
		if err != nil {
			a.logger.Error("Failed to read journal", "error", err)
			return
		}
		fmt.Fprintf(out, "  last %d transitions (%s journal):\n", len(rows), a.journal.Backend())
		for i := len(rows) - 1; i >= 0; i-- {
			r := rows[i]
			fmt.Fprintf(out, "    t=%-6d vehicle=%-4d %-16s %s\n", r.GameTime, r.Vehicle, r.Kind, r.Reason)
		}
	}

	a.logger.Info("Scenario finished", "name", s.Name, "took", took, "tracked", a.loop.Tracked())
}

func (a *app) close() {
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.influx != nil {
		errs = append(errs, a.influx.Close())
	}
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Error("Error closing sinks", "error", err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}
