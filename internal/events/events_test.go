package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMulti_FansOutAndSkipsNil(t *testing.T) {
	var a, b Recorder
	m := Multi{&a, nil, &b}

	m.Record(Event{Kind: Armed, Vehicle: 1})
	m.Record(Event{Kind: ExitArmed, Vehicle: 1})

	assert.Len(t, a.Events(), 2)
	assert.Len(t, b.Events(), 2)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Record(Event{Kind: Tracked, Vehicle: 1})
	r.Record(Event{Kind: Tracked, Vehicle: 2})
	r.Record(Event{Kind: Armed, Vehicle: 1})

	assert.Equal(t, []Kind{Tracked, Armed}, r.Kinds(1))
	assert.Equal(t, 2, r.Count(Tracked))
	assert.Zero(t, r.Count(Pruned))

	got := r.Events()
	got[0].Kind = Pruned
	assert.Equal(t, Tracked, r.Events()[0].Kind, "Events returns a copy")
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard.Record(Event{Kind: Armed}) })
}
