// Package ui is the live terminal view. It is a thin shell over the
// engine's public surface: one subscription for per-sample events and the
// snapshot call for initial state.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/viruchith/anomalyd/engine"
	"github.com/viruchith/anomalyd/model"
)

const (
	eventBuffer    = 64
	anomaliesShown = 8
)

type eventMsg model.Event

type closedMsg struct{}

// App is the bubbletea model for the watch view.
type App struct {
	eng *engine.Engine
	sub *engine.Subscription

	width  int
	height int

	state     model.State
	sample    *model.MetricSample
	rawScore  *float64
	isAnomaly bool
	anomalies []model.AnomalyRecord
	stats     model.Stats
}

// New creates the watch view bound to a running engine.
func New(eng *engine.Engine) *App {
	snap := eng.Snapshot(1, anomaliesShown)
	app := &App{
		eng:       eng,
		sub:       eng.Subscribe(eventBuffer),
		state:     snap.Stats.State,
		anomalies: snap.Anomalies,
		stats:     snap.Stats,
	}
	if len(snap.Samples) > 0 {
		app.sample = &snap.Samples[len(snap.Samples)-1]
	}
	return app
}

// Init starts pumping bus events into the program.
func (a *App) Init() tea.Cmd {
	return a.nextEvent()
}

func (a *App) nextEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-a.sub.Events()
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

// Update handles key presses and bus events.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			a.eng.Unsubscribe(a.sub)
			return a, tea.Quit
		}
	case closedMsg:
		return a, tea.Quit
	case eventMsg:
		a.apply(model.Event(msg))
		return a, a.nextEvent()
	}
	return a, nil
}

func (a *App) apply(ev model.Event) {
	switch ev.Type {
	case model.EventSampleUpdate:
		a.sample = ev.Sample
		a.rawScore = ev.RawScore
		a.isAnomaly = ev.IsAnomaly
		a.stats = a.eng.Snapshot(0, 0).Stats
	case model.EventAnomalyReport:
		if ev.Anomaly != nil {
			a.anomalies = append(a.anomalies, *ev.Anomaly)
			if len(a.anomalies) > anomaliesShown {
				a.anomalies = a.anomalies[len(a.anomalies)-anomaliesShown:]
			}
		}
	case model.EventStateUpdate:
		a.state = ev.State
	}
}

// View renders the dashboard.
func (a *App) View() string {
	var b strings.Builder

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("anomalyd"),
		labelStyle.Render("  state "),
		stateStyle(a.state).Render(string(a.state)),
		labelStyle.Render(fmt.Sprintf("  samples %d  anomalies %d  up %s",
			a.stats.SampleCount, a.stats.AnomalyCount,
			(time.Duration(a.stats.UptimeSeconds)*time.Second).Round(time.Second))),
	)
	b.WriteString(header + "\n\n")

	b.WriteString(panelStyle.Render(a.samplePanel()) + "\n")
	b.WriteString(panelStyle.Render(a.anomalyPanel()) + "\n")
	b.WriteString(helpStyle.Render("q quit"))
	return b.String()
}

func (a *App) samplePanel() string {
	if a.sample == nil {
		return labelStyle.Render("waiting for first sample...")
	}
	s := a.sample
	score := "-"
	if a.rawScore != nil {
		style := okStyle
		if a.isAnomaly {
			style = critStyle
		}
		score = style.Render(fmt.Sprintf("%.3f", *a.rawScore))
	}
	rows := []string{
		titleStyle.Render("Latest sample  ") + labelStyle.Render(s.Timestamp.Format(time.TimeOnly)),
		fmt.Sprintf("%s %s  %s %s",
			labelStyle.Render("cpu"), pctStyle(s.CPUPercent).Render(fmt.Sprintf("%5.1f%%", s.CPUPercent)),
			labelStyle.Render("mem"), pctStyle(s.MemoryPercent).Render(fmt.Sprintf("%5.1f%%", s.MemoryPercent))),
		fmt.Sprintf("%s %s  %s %s",
			labelStyle.Render("disk r/w"), valueStyle.Render(fmt.Sprintf("%6.2f/%6.2f MB/s", s.DiskReadMBs, s.DiskWriteMBs)),
			labelStyle.Render("net s/r"), valueStyle.Render(fmt.Sprintf("%6.2f/%6.2f MB/s", s.NetSentMBs, s.NetRecvMBs))),
		fmt.Sprintf("%s %s  %s %s",
			labelStyle.Render("freq"), valueStyle.Render(fmt.Sprintf("%.0f MHz", s.CPUFrequencyMHz)),
			labelStyle.Render("score"), score),
	}
	return strings.Join(rows, "\n")
}

func (a *App) anomalyPanel() string {
	if len(a.anomalies) == 0 {
		return titleStyle.Render("Anomalies") + "\n" + okStyle.Render("none reported")
	}
	rows := []string{titleStyle.Render("Anomalies")}
	for i := len(a.anomalies) - 1; i >= 0; i-- {
		rec := a.anomalies[i]
		rows = append(rows, fmt.Sprintf("%s %s %s %s",
			labelStyle.Render(rec.Timestamp.Format(time.TimeOnly)),
			severityStyle(rec.Severity).Render(fmt.Sprintf("%-8s", rec.Severity)),
			valueStyle.Render(fmt.Sprintf("%6.3f", rec.RawScore)),
			labelStyle.Render(strings.Join(rec.Reasons, ", "))))
	}
	return strings.Join(rows, "\n")
}
