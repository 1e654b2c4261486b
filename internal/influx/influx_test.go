package influx

import (
	"bufio"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/EngineStateManager/extension/internal/config"
	"github.com/EngineStateManager/extension/internal/events"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readBackup(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	var lines []string
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		if sc.Text() != "" {
			lines = append(lines, sc.Text())
		}
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), filepath.Join(t.TempDir(), "backup.lp.gz"), "s")
	assert.Error(t, m.Connect(config.InfluxConfig{Enabled: false}))
	assert.False(t, m.IsValid)
}

func TestConnect_UnreachableUsesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lp.gz")
	m := NewManager(zerolog.Nop(), path, "session-1")

	err := m.Connect(config.InfluxConfig{Enabled: true, Protocol: "http", Host: "127.0.0.1", Port: "1", Org: "o", Bucket: "b"})
	require.NoError(t, err)
	assert.False(t, m.IsValid)
	require.NotNil(t, m.BackupWriter)

	m.Record(events.Event{Kind: events.ExitArmed, Vehicle: 42, At: 1200, Fields: map[string]any{"kind": "Jet", "armed": true}})
	m.WriteSample(5000, 3, 1)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	lines := readBackup(t, path)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], TransitionMeasurement+","))
	assert.Contains(t, lines[0], "kind=exit_armed")
	assert.Contains(t, lines[0], "vehicle=42")
	assert.Contains(t, lines[0], "game_time=1200i")
	assert.True(t, strings.HasPrefix(lines[1], TrackerMeasurement+","))
	assert.Contains(t, lines[1], "tracked=3i")
	assert.Contains(t, lines[1], "enforced=1i")
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(zerolog.Nop(), "", "s")
	assert.Error(t, m.WritePoint(influxdb2_write.NewPointWithMeasurement("x").AddField("v", 1)))
	assert.NotPanics(t, func() { m.Record(events.Event{Kind: events.Armed}) })
}

func TestTransitionPoint(t *testing.T) {
	at := time.Unix(1700000000, 0)
	e := events.Event{
		Kind:    events.GhostRemoved,
		Vehicle: 7,
		At:      900,
		Reason:  "AgentReentered",
		Fields:  map[string]any{"armed": true, "rpm": 0.25, "ped": int32(12), "other": []int{1}},
	}

	p := TransitionPoint("s1", e, at)
	line := strings.TrimSpace(influxdb2_write.PointToLineProtocol(p, time.Second))

	assert.Contains(t, line, "kind=ghost_removed")
	assert.Contains(t, line, "session=s1")
	assert.Contains(t, line, "vehicle=7")
	assert.Contains(t, line, `reason="AgentReentered"`)
	assert.Contains(t, line, "armed=true")
	assert.Contains(t, line, "rpm=0.25")
	assert.Contains(t, line, "ped=12i")
	assert.Contains(t, line, `other="[1]"`)
	assert.True(t, strings.HasSuffix(line, " 1700000000"))
}

func TestURL(t *testing.T) {
	assert.Equal(t, "https://influx:8086", URL(config.InfluxConfig{Protocol: "https", Host: "influx", Port: "8086"}))
}
