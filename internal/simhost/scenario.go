package simhost

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/EngineStateManager/extension/pkg/hostapi"
)

// Scenario is a scripted sequence of player actions replayed against a World.
type Scenario struct {
	Name       string            `yaml:"name"`
	FrameMs    int64             `yaml:"frame_ms"`
	DurationMs int64             `yaml:"duration_ms"`
	Glitches   *Glitches         `yaml:"glitches"`
	Vehicles   []ScenarioVehicle `yaml:"vehicles"`
	Steps      []Step            `yaml:"steps"`
}

// ScenarioVehicle declares a vehicle by a script-local id.
type ScenarioVehicle struct {
	ID        string     `yaml:"id"`
	Class     string     `yaml:"class"`
	Propeller bool       `yaml:"propeller"`
	EngineOn  bool       `yaml:"engine_on"`
	Airborne  bool       `yaml:"airborne"`
	Position  [3]float64 `yaml:"position"`
}

// Step is one scripted action at a point in game time.
type Step struct {
	At      int64      `yaml:"at"`
	Action  string     `yaml:"action"`
	Vehicle string     `yaml:"vehicle"`
	Control string     `yaml:"control"`
	Down    bool       `yaml:"down"`
	To      [3]float64 `yaml:"to"`
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(raw)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(raw []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("scenario yaml: %w", err)
	}
	if s.FrameMs <= 0 {
		s.FrameMs = 16
	}
	if s.DurationMs <= 0 {
		return nil, fmt.Errorf("scenario %q: duration_ms must be positive", s.Name)
	}
	ids := make(map[string]struct{}, len(s.Vehicles))
	for _, v := range s.Vehicles {
		if _, err := parseClass(v.Class); err != nil {
			return nil, fmt.Errorf("scenario %q vehicle %q: %w", s.Name, v.ID, err)
		}
		ids[v.ID] = struct{}{}
	}
	for i, st := range s.Steps {
		if _, ok := actions[st.Action]; !ok {
			return nil, fmt.Errorf("scenario %q step %d: unknown action %q", s.Name, i, st.Action)
		}
		if st.Vehicle != "" {
			if _, ok := ids[st.Vehicle]; !ok {
				return nil, fmt.Errorf("scenario %q step %d: unknown vehicle %q", s.Name, i, st.Vehicle)
			}
		}
		if st.Action == "press" {
			if _, err := parseControl(st.Control); err != nil {
				return nil, fmt.Errorf("scenario %q step %d: %w", s.Name, i, err)
			}
		}
	}
	sort.SliceStable(s.Steps, func(i, j int) bool { return s.Steps[i].At < s.Steps[j].At })
	return &s, nil
}

var actions = map[string]struct{}{
	"begin_entry":    {},
	"complete_entry": {},
	"cancel_entry":   {},
	"begin_exit":     {},
	"complete_exit":  {},
	"press":          {},
	"move":           {},
	"remove":         {},
	"damage":         {},
	"land":           {},
	"takeoff":        {},
	"engine_off":     {},
}

func parseClass(s string) (hostapi.VehicleClass, error) {
	switch strings.ToLower(s) {
	case "plane":
		return hostapi.ClassPlane, nil
	case "heli", "helicopter":
		return hostapi.ClassHelicopter, nil
	case "car", "other":
		return hostapi.ClassOther, nil
	default:
		return hostapi.ClassOther, fmt.Errorf("unknown class %q", s)
	}
}

func parseControl(s string) (hostapi.Control, error) {
	switch strings.ToLower(s) {
	case "exit":
		return hostapi.ControlVehicleExit, nil
	case "brake":
		return hostapi.ControlVehicleBrake, nil
	case "toggle":
		return hostapi.ControlEngineToggle, nil
	default:
		return 0, fmt.Errorf("unknown control %q", s)
	}
}

func vec(p [3]float64) hostapi.Vec3 { return hostapi.Vec3{X: p[0], Y: p[1], Z: p[2]} }

// Run replays the scenario on w, calling frame once per simulated frame after
// the host's own per-frame behavior and the step actions due at that time.
// It returns the handle assigned to each scripted vehicle id.
func (s *Scenario) Run(w *World, frame func(now int64)) (map[string]hostapi.Handle, error) {
	if s.Glitches != nil {
		w.Glitches = *s.Glitches
	}
	handles := make(map[string]hostapi.Handle, len(s.Vehicles))
	for _, sv := range s.Vehicles {
		cls, _ := parseClass(sv.Class)
		handles[sv.ID] = w.AddVehicle(VehicleSpec{
			Class:     cls,
			Propeller: sv.Propeller,
			EngineOn:  sv.EngineOn,
			Airborne:  sv.Airborne,
			Position:  vec(sv.Position),
		})
	}

	start := w.Now()
	next := 0
	due := func() error {
		for next < len(s.Steps) && s.Steps[next].At <= w.Now()-start {
			if err := s.apply(w, s.Steps[next], handles); err != nil {
				return fmt.Errorf("step %d (%s): %w", next, s.Steps[next].Action, err)
			}
			next++
		}
		return nil
	}

	// Steps at time zero set the scene before the host runs its first frame.
	if err := due(); err != nil {
		return handles, err
	}
	for w.Now()-start < s.DurationMs {
		w.Advance(s.FrameMs)
		if err := due(); err != nil {
			return handles, err
		}
		frame(w.Now())
	}
	return handles, nil
}

func (s *Scenario) apply(w *World, st Step, handles map[string]hostapi.Handle) error {
	h := handles[st.Vehicle]
	switch st.Action {
	case "begin_entry":
		w.BeginEntry(h)
	case "complete_entry":
		return w.CompleteEntry(h)
	case "cancel_entry":
		w.CancelEntry()
	case "begin_exit":
		w.BeginExit()
	case "complete_exit":
		w.CompleteExit()
	case "press":
		c, _ := parseControl(st.Control)
		w.Press(c, st.Down)
	case "move":
		w.MoveAgent(vec(st.To))
	case "remove":
		w.RemoveVehicle(h)
	case "damage":
		if v := w.Vehicle(h); v != nil {
			v.EngineHealth = 100
			v.TankHealth = 200
		}
	case "land":
		if v := w.Vehicle(h); v != nil {
			v.OnAllWheels = true
			v.HeightAboveGround = 0
		}
	case "takeoff":
		if v := w.Vehicle(h); v != nil {
			v.OnAllWheels = false
			v.HeightAboveGround = 150
		}
	case "engine_off":
		if v := w.Vehicle(h); v != nil {
			v.EngineOn = false
			v.RPM = 0
		}
	}
	return nil
}
