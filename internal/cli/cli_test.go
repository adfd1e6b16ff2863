package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/config"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/export"
)

func TestMain(m *testing.M) {
	cfg = config.Defaults()
	log = slog.New(slog.DiscardHandler)
	os.Exit(m.Run())
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1", time.Second},
		{"0.5", 500 * time.Millisecond},
		{" 2 ", 2 * time.Second},
		{"0", 0},
		{"250ms", 250 * time.Millisecond},
		{"1m30s", 90 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseInterval(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseInterval("abc")
	assert.Error(t, err)
}

// setMeasureFlags sets flags on measureCmd and restores them when the test ends.
func setMeasureFlags(t *testing.T, values map[string]string) {
	t.Helper()
	flags := measureCmd.Flags()
	for name, v := range values {
		require.NoError(t, flags.Set(name, v))
	}
	t.Cleanup(func() {
		for name := range values {
			f := flags.Lookup(name)
			require.NoError(t, f.Value.Set(f.DefValue))
			f.Changed = false
		}
	})
}

func TestResolvePlan_Defaults(t *testing.T) {
	plan, err := resolvePlan(measureCmd)
	require.NoError(t, err)

	assert.Equal(t, cfg.Acquisition.Count, plan.count)
	assert.Equal(t, cfg.Acquisition.Interval, plan.interval)
	assert.Equal(t, export.DefaultFileName, plan.output)
	assert.Equal(t, export.FormatCSV, plan.format)
}

func TestResolvePlan_Flags(t *testing.T) {
	setMeasureFlags(t, map[string]string{
		"count":    "5",
		"interval": "0.5",
		"output":   "out/pieza.json",
	})

	plan, err := resolvePlan(measureCmd)
	require.NoError(t, err)

	assert.Equal(t, 5, plan.count)
	assert.Equal(t, 500*time.Millisecond, plan.interval)
	assert.Equal(t, "out/pieza.json", plan.output)
	assert.Equal(t, export.FormatJSON, plan.format, "format follows the output extension")
}

func TestResolvePlan_ExplicitFormatWins(t *testing.T) {
	setMeasureFlags(t, map[string]string{
		"output": "pieza.json",
		"format": "CSV",
	})

	plan, err := resolvePlan(measureCmd)
	require.NoError(t, err)
	assert.Equal(t, export.FormatCSV, plan.format)
}

func TestResolvePlan_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		flags map[string]string
		want  error
	}{
		{"zero count", map[string]string{"count": "0"}, sylvac.ErrInvalidCount},
		{"negative count", map[string]string{"count": "-2"}, sylvac.ErrInvalidCount},
		{"negative interval", map[string]string{"interval": "-1"}, sylvac.ErrInvalidInterval},
		{"unknown format", map[string]string{"format": "xml"}, export.ErrUnknownFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setMeasureFlags(t, tt.flags)
			_, err := resolvePlan(measureCmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("bad interval", func(t *testing.T) {
		setMeasureFlags(t, map[string]string{"interval": "soon"})
		_, err := resolvePlan(measureCmd)
		assert.Error(t, err)
	})
}

func TestSelectDevice(t *testing.T) {
	devices := []sylvac.Device{
		{Name: "SY289 A", Address: "AA", RSSI: -80},
		{Name: "SY289 B", Address: "BB", RSSI: -50},
		{Name: "SY289 C", Address: "CC", RSSI: -60},
	}

	d, ok := selectDevice(devices, "", "")
	require.True(t, ok)
	assert.Equal(t, "BB", d.Address, "strongest signal")

	d, ok = selectDevice(devices, "", "CC")
	require.True(t, ok)
	assert.Equal(t, "CC", d.Address, "last used device")

	d, ok = selectDevice(devices, "AA", "CC")
	require.True(t, ok)
	assert.Equal(t, "AA", d.Address, "pinned address")

	_, ok = selectDevice(devices, "ZZ", "CC")
	assert.False(t, ok, "pinned address not in range")

	d, ok = selectDevice(devices, "", "ZZ")
	require.True(t, ok)
	assert.Equal(t, "BB", d.Address, "falls back when last device is gone")

	_, ok = selectDevice(nil, "", "")
	assert.False(t, ok)
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[----------]", progressBar(0, 4, 10))
	assert.Equal(t, "[#####-----]", progressBar(2, 4, 10))
	assert.Equal(t, "[##########]", progressBar(4, 4, 10))
	assert.Equal(t, "[##########]", progressBar(9, 4, 10))
	assert.Equal(t, "[----]", progressBar(1, 0, 4))
}

func TestFormatInterval(t *testing.T) {
	assert.Equal(t, "1s", formatInterval(time.Second))
	assert.Equal(t, "0s", formatInterval(0))
	assert.Equal(t, "500ms", formatInterval(500*time.Millisecond))
	assert.Equal(t, "1.5s", formatInterval(1500*time.Millisecond))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func recorderWith(values ...float64) *sylvac.Recorder {
	rec := sylvac.NewRecorder()
	for i, v := range values {
		rec.Add(sylvac.Measurement{Number: i + 1, Timestamp: "2024-10-03 14:05:09", Value: v})
	}
	return rec
}

func TestFinishRun_CancelExportsPartial(t *testing.T) {
	plan := acquisitionPlan{
		count:  5,
		output: filepath.Join(t.TempDir(), "mediciones.csv"),
		format: export.FormatCSV,
	}

	err := finishRun(context.Canceled, recorderWith(1.5, 2.5), nil, plan)
	require.NoError(t, err)

	data, err := os.ReadFile(plan.output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "2;2024-10-03 14:05:09;2.500", lines[2])
}

func TestFinishRun_SourceClosedStillExports(t *testing.T) {
	plan := acquisitionPlan{
		count:  3,
		output: filepath.Join(t.TempDir(), "out.json"),
		format: export.FormatJSON,
	}

	err := finishRun(sylvac.ErrSourceClosed, recorderWith(1), nil, plan)
	assert.ErrorIs(t, err, sylvac.ErrSourceClosed)
	assert.FileExists(t, plan.output)
}

func TestFinishRun_ExportError(t *testing.T) {
	plan := acquisitionPlan{
		count:  1,
		output: filepath.Join(t.TempDir(), "out.csv"),
		format: "xml",
	}

	err := finishRun(nil, recorderWith(1), nil, plan)
	assert.ErrorIs(t, err, export.ErrUnknownFormat)
}

func TestMeasurementsFromReadings(t *testing.T) {
	at := time.Date(2024, 10, 3, 14, 5, 9, 0, time.Local)
	readings := []sylvac.Reading{
		sylvac.NewReading(1000, at),
		sylvac.NewReading(2000, at.Add(time.Second)),
		sylvac.NewReading(3000, at.Add(2*time.Second)),
	}

	ms := measurementsFromReadings(readings, 0)
	require.Len(t, ms, 3)
	assert.Equal(t, 1, ms[0].Number)
	assert.Equal(t, "2024-10-03 14:05:11", ms[2].Timestamp)
	assert.Equal(t, 3.0, ms[2].Value)

	assert.Len(t, measurementsFromReadings(readings, 2), 2)
	assert.Len(t, measurementsFromReadings(readings, 10), 3)
}

func TestListLogs_MissingDir(t *testing.T) {
	assert.NoError(t, listLogs(filepath.Join(t.TempDir(), "none")))
}

func newTestModel(count int) *measureModel {
	ctx, cancel := context.WithCancel(context.Background())
	return &measureModel{
		plan:       acquisitionPlan{count: count, interval: time.Second},
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan tea.Msg, 4),
		deviceName: "SY289 1234",
		address:    "AA:BB",
		linkUp:     true,
	}
}

func TestMeasureModel_Updates(t *testing.T) {
	m := newTestModel(3)

	m.Update(readingMsg{reading: sylvac.NewReading(12345, time.Now())})
	m.Update(measurementMsg{m: sylvac.Measurement{Number: 1, Value: 12.345}})

	view := m.View()
	assert.Contains(t, view, "Conectado a SY289 1234 - AA:BB")
	assert.Contains(t, view, "Valor en tiempo real: 12.345 mm")
	assert.Contains(t, view, "Medición 1: 12.345 mm")
	assert.Contains(t, view, "1/3")

	m.Update(linkMsg{err: sylvac.ErrConnectionLost})
	assert.Contains(t, m.View(), "Conexión perdida")
}

func TestMeasureModel_QuitCancelsAcquisition(t *testing.T) {
	m := newTestModel(3)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Nil(t, cmd, "waits for the acquisition to return")
	assert.True(t, m.stopping)
	assert.Error(t, m.ctx.Err())
	assert.Contains(t, m.View(), "Deteniendo...")

	_, cmd = m.Update(acquireDoneMsg{err: context.Canceled})
	require.NotNil(t, cmd)
	assert.True(t, m.done)
	assert.ErrorIs(t, m.acqErr, context.Canceled)
}
