// Package intent holds the process-wide arbiter for "force engine on/off"
// requests, so independent features can share one vehicle without fighting
// over its engine every frame.
package intent

import (
	"log/slog"
	"math"

	"github.com/EngineStateManager/extension/pkg/hostapi"
)

// Intent is the requested engine state.
type Intent int

const (
	None Intent = iota
	ForceOff
	ForceOn
)

func (i Intent) String() string {
	switch i {
	case ForceOff:
		return "ForceOff"
	case ForceOn:
		return "ForceOn"
	default:
		return "None"
	}
}

// Priority orders competing requests. Higher wins.
type Priority int

const (
	Low      Priority = 10
	Normal   Priority = 50
	High     Priority = 90
	Critical Priority = 100
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "Low"
	case Normal:
		return "Normal"
	case High:
		return "High"
	case Critical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Never is the expiry of an indefinite request.
const Never int64 = math.MaxInt64

// State is the currently stored request.
type State struct {
	Intent    Intent
	Priority  Priority
	ExpiresAt int64
	Owner     string
}

// Bus is the single shared arbitration record. It is mutated only from the
// frame loop and is not safe for concurrent use.
type Bus struct {
	clock  hostapi.Clock
	logger *slog.Logger
	state  State
}

// NewBus creates an empty bus reading time from clock.
func NewBus(clock hostapi.Clock, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		clock:  clock,
		logger: logger,
		state:  State{Priority: Low},
	}
}

// Set replaces the current request if it has expired, if owner already holds
// it, or if priority is at least the current priority. A durationMs of zero or
// less never expires. It reports whether the request was stored.
func (b *Bus) Set(in Intent, pri Priority, durationMs int64, owner string) bool {
	now := b.clock.GameTime()

	expires := Never
	if durationMs > 0 {
		expires = now + durationMs
		if expires < now {
			expires = Never
		}
	}

	expired := now >= b.state.ExpiresAt
	if !expired && owner != b.state.Owner && pri < b.state.Priority {
		return false
	}

	b.state = State{Intent: in, Priority: pri, ExpiresAt: expires, Owner: owner}
	b.logger.Debug("engine intent set",
		"intent", in.String(),
		"priority", pri.String(),
		"durationMs", durationMs,
		"owner", owner)
	return true
}

// Clear drops the current request, but only when owner holds it.
func (b *Bus) Clear(owner string) {
	if b.state.Owner != owner {
		return
	}
	b.state = State{Priority: Low}
	b.logger.Debug("engine intent cleared", "owner", owner)
}

// Current returns the live request, or a None state once it has expired.
// Expiry is evaluated lazily against the game clock.
func (b *Bus) Current() State {
	if b.clock.GameTime() >= b.state.ExpiresAt {
		return State{Intent: None, Priority: Low}
	}
	return b.state
}

// IsForcedOffByOther reports whether a live ForceOff is held by someone other
// than owner.
func (b *Bus) IsForcedOffByOther(owner string) bool {
	cur := b.Current()
	return cur.Intent == ForceOff && cur.Owner != owner
}

// Reset forgets any request. Used at shutdown.
func (b *Bus) Reset() {
	b.state = State{Priority: Low}
}
