package rawlog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/protocol"
)

func TestLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	l := NewLogger()
	l.SetDeviceInfo("SY289 0042", "AA:BB", "run-1")

	// Ignored before Start.
	l.Log(protocol.EncodeMeasurement(1))
	assert.Empty(t, l.Path())

	require.NoError(t, l.Start(dir))
	l.Log(protocol.EncodeMeasurement(12345))
	l.Log([]byte{0x01})
	l.LogConnection("link lost")
	l.Log(protocol.EncodeMeasurement(-500))

	path := l.Path()
	require.NoError(t, l.Close())
	assert.Equal(t, dir, filepath.Dir(path))

	log, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Version, log.Version)
	assert.Equal(t, "SY289 0042", log.DeviceName)
	assert.Equal(t, "run-1", log.RunID)
	require.Len(t, log.Events, 4)
	assert.Equal(t, EventNotification, log.Events[0].EventType)
	require.NotNil(t, log.Events[0].Micrometres)
	assert.Equal(t, int32(12345), *log.Events[0].Micrometres)
	assert.Equal(t, EventDecodeError, log.Events[1].EventType)
	assert.Equal(t, EventConnection, log.Events[2].EventType)

	readings := log.Readings()
	require.Len(t, readings, 2)
	assert.InDelta(t, 12.345, readings[0].Value, 1e-9)
	assert.InDelta(t, -0.5, readings[1].Value, 1e-9)
}

func TestReplay(t *testing.T) {
	input := `{"type":"header","version":"1.0","created_at":"2024-10-03T14:05:09Z"}
{"timestamp":"2024-10-03T14:05:10Z","elapsed_ms":1000,"event_type":"notification","payload":"OTAAAA=="}
{"timestamp":"2024-10-03T14:05:11Z","elapsed_ms":2000,"event_type":"notification","payload":"AQ=="}
`
	readings, err := Replay(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, int32(12345), readings[0].Micrometres)
	assert.Equal(t, 10, readings[0].ReceivedAt.Second())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoHeader)

	_, err = Parse(strings.NewReader(`{"event_type":"notification"}` + "\n"))
	assert.ErrorIs(t, err, ErrNoHeader)

	_, err = Parse(strings.NewReader(`{"type":"header"}` + "\nnot json\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReplaySource_FeedsRecorder(t *testing.T) {
	base := time.Now()
	readings := []sylvac.Reading{
		sylvac.NewReading(1000, base),
		sylvac.NewReading(2000, base.Add(20*time.Millisecond)),
		sylvac.NewReading(3000, base.Add(40*time.Millisecond)),
	}

	src := NewReplaySource(context.Background(), readings, 1)

	var got []int32
	for r := range src.Readings() {
		got = append(got, r.Micrometres)
	}
	assert.Equal(t, []int32{1000, 2000, 3000}, got)
}

func TestReplaySource_Cancel(t *testing.T) {
	base := time.Now()
	readings := []sylvac.Reading{
		sylvac.NewReading(1000, base),
		sylvac.NewReading(2000, base.Add(time.Hour)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	src := NewReplaySource(ctx, readings, 1)

	first := <-src.Readings()
	assert.Equal(t, int32(1000), first.Micrometres)
	cancel()

	_, ok := <-src.Readings()
	assert.False(t, ok)
}

func TestReplaySource_Acquire(t *testing.T) {
	base := time.Now()
	var readings []sylvac.Reading
	for i := 1; i <= 3; i++ {
		readings = append(readings, sylvac.NewReading(int32(i)*1000, base.Add(time.Duration(i)*30*time.Millisecond)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := sylvac.NewRecorder()
	src := NewReplaySource(ctx, readings, 1)
	require.NoError(t, rec.Acquire(ctx, src, 1, 0))
	assert.Equal(t, 1.0, rec.Measurements()[0].Value)
}
