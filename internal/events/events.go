// Package events defines the transition events the features emit for
// diagnostics, and the sinks that receive them.
package events

import (
	"sync"

	"github.com/EngineStateManager/extension/pkg/hostapi"
)

// Kind names a transition.
type Kind string

const (
	Tracked        Kind = "tracked"
	Armed          Kind = "armed"
	Disarmed       Kind = "disarmed"
	EnterPreempt   Kind = "enter_preempt"
	ExitPreempt    Kind = "exit_preempt"
	ExitArmed      Kind = "exit_armed"
	ColdExit       Kind = "cold_exit"
	GhostRequested Kind = "ghost_requested"
	GhostSpawned   Kind = "ghost_spawned"
	GhostRemoved   Kind = "ghost_removed"
	Untracked      Kind = "untracked"
	Pruned         Kind = "pruned"
	StallForcedOn  Kind = "stall_forced_on"
	HealthFloored  Kind = "health_floored"
	ToggleOn       Kind = "toggle_on"
	ToggleOff      Kind = "toggle_off"
	ToggleCleared  Kind = "toggle_cleared"
)

// Event is one transition observed at game time At.
type Event struct {
	Kind    Kind
	Vehicle hostapi.Handle
	At      int64
	Reason  string
	Fields  map[string]any
}

// Sink receives events. Record is called from the frame loop and must not block.
type Sink interface {
	Record(e Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(Event) {}

// Multi fans each event out to every sink.
type Multi []Sink

func (m Multi) Record(e Event) {
	for _, s := range m {
		if s != nil {
			s.Record(e)
		}
	}
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the recorded kinds for vehicle v, in order.
func (r *Recorder) Kinds(v hostapi.Handle) []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Kind
	for _, e := range r.events {
		if e.Vehicle == v {
			out = append(out, e.Kind)
		}
	}
	return out
}

// Count returns how many events of kind k were recorded.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}
