package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	sylvac "github.com/SeamusWaldron/sylvac_ble_library"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/metrics"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/rawlog"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	sampleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// recentSamples is how many samples the view lists.
const recentSamples = 10

// Messages
type tickMsg time.Time
type readingMsg struct{ reading sylvac.Reading }
type measurementMsg struct{ m sylvac.Measurement }
type linkMsg struct {
	reconnected bool
	err         error
}
type acquireDoneMsg struct{ err error }

type measureModel struct {
	caliper *sylvac.Caliper
	rec     *sylvac.Recorder
	plan    acquisitionPlan

	ctx    context.Context
	cancel context.CancelFunc
	events chan tea.Msg

	// State
	deviceName   string
	address      string
	linkUp       bool
	latest       *sylvac.Reading
	measurements []sylvac.Measurement
	startTime    time.Time
	elapsed      time.Duration
	stopping     bool
	done         bool
	acqErr       error
	linkErr      error
}

func newMeasureModel(ctx context.Context, caliper *sylvac.Caliper, rec *sylvac.Recorder, plan acquisitionPlan) *measureModel {
	ctx, cancel := context.WithCancel(ctx)
	return &measureModel{
		caliper:    caliper,
		rec:        rec,
		plan:       plan,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan tea.Msg, 64),
		deviceName: caliper.DeviceName(),
		address:    caliper.DeviceAddress(),
		linkUp:     true,
	}
}

// post hands an event from a caliper callback to the UI loop without
// blocking the BLE goroutine.
func (m *measureModel) post(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
	}
}

func (m *measureModel) Init() tea.Cmd {
	m.startTime = time.Now()
	return tea.Batch(
		m.acquire(),
		m.tickCmd(),
		m.listenForEvents(),
	)
}

func (m *measureModel) acquire() tea.Cmd {
	return func() tea.Msg {
		return acquireDoneMsg{err: m.rec.Acquire(m.ctx, m.caliper, m.plan.count, m.plan.interval)}
	}
}

func (m *measureModel) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m *measureModel) tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *measureModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.done {
				return m, tea.Quit
			}
			// Wait for Acquire to return before quitting.
			m.stopping = true
			m.cancel()
		}

	case tickMsg:
		if !m.done {
			m.elapsed = time.Since(m.startTime)
		}
		return m, m.tickCmd()

	case readingMsg:
		r := msg.reading
		m.latest = &r
		return m, m.listenForEvents()

	case measurementMsg:
		m.measurements = append(m.measurements, msg.m)
		return m, m.listenForEvents()

	case linkMsg:
		m.linkUp = msg.reconnected
		m.linkErr = msg.err
		return m, m.listenForEvents()

	case acquireDoneMsg:
		m.done = true
		m.acqErr = msg.err
		m.cancel()
		return m, tea.Quit
	}

	return m, nil
}

func (m *measureModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("SY289 Caliper Recorder"))
	b.WriteString("\n\n")

	if m.linkUp {
		b.WriteString(statusStyle.Render(fmt.Sprintf("Conectado a %s - %s", m.deviceName, m.address)))
	} else if m.linkErr != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Conexión perdida: %v", m.linkErr)))
	} else {
		b.WriteString(errorStyle.Render("Reconectando..."))
	}
	b.WriteString("\n\n")

	if m.latest != nil {
		b.WriteString(valueStyle.Render(fmt.Sprintf("Valor en tiempo real: %.3f mm", m.latest.Value)))
	} else {
		b.WriteString(valueStyle.Render("Valor en tiempo real: --- mm"))
	}
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Progreso: %s %d/%d  (%s, intervalo %s)\n",
		progressBar(len(m.measurements), m.plan.count, 20),
		len(m.measurements), m.plan.count,
		formatDuration(m.elapsed), m.plan.interval))
	b.WriteString("\n")

	if len(m.measurements) > 0 {
		start := 0
		if len(m.measurements) > recentSamples {
			start = len(m.measurements) - recentSamples
			b.WriteString("...\n")
		}
		for _, s := range m.measurements[start:] {
			b.WriteString(sampleStyle.Render(s.String()))
			b.WriteString("\n")
		}
	}

	if m.stopping && !m.done {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render("Deteniendo..."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("Keys: q=stop and export"))
	b.WriteString("\n")

	return b.String()
}

// progressBar renders done/total as a fixed-width bar.
func progressBar(done, total, width int) string {
	if total <= 0 {
		return "[" + strings.Repeat("-", width) + "]"
	}
	filled := done * width / total
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func runMeasureTUI(ctx context.Context, caliper *sylvac.Caliper, rec *sylvac.Recorder, plan acquisitionPlan, met *metrics.Metrics, raw *rawlog.Logger) error {
	model := newMeasureModel(ctx, caliper, rec, plan)

	caliper.OnReading(func(r sylvac.Reading) {
		met.ObserveReading(r)
		model.post(readingMsg{reading: r})
	})
	caliper.OnReconnect(func() {
		met.ObserveReconnect()
		raw.LogConnection("reconnected")
		model.post(linkMsg{reconnected: true})
	})
	caliper.OnDisconnect(func(err error) {
		raw.LogConnection(err.Error())
		model.post(linkMsg{err: err})
	})
	rec.OnMeasurement(func(s sylvac.Measurement) {
		met.ObserveMeasurement(s)
		model.post(measurementMsg{m: s})
	})

	// Cancelling ctx stops Acquire, which in turn quits the program.
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		model.cancel()
		return fmt.Errorf("TUI error: %w", err)
	}

	return model.acqErr
}
