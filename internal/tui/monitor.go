// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"audiofx/internal/analysis"
	"audiofx/internal/audio"
	"audiofx/internal/effects"
)

const refreshInterval = 50 * time.Millisecond

var (
	sectionStyle = lipgloss.NewStyle().MarginTop(1).Foreground(lipgloss.Color("#81A1C1"))
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	beatStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EBCB8B")).Bold(true)
	offStyle     = lipgloss.NewStyle().Faint(true)
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#BF616A"))
)

// Chain is the part of the effect chain the monitor drives.
type Chain interface {
	Effects() []effects.Effect
	SetEnabled(i int, enabled bool) error
	SetParameter(i int, name string, value float64) error
	Reset()
}

// Sources feed the monitor. Stats and Frame may be nil.
type Sources struct {
	Chain Chain
	Stats func() audio.Stats
	Frame func() analysis.Frame
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// MonitorModel shows the chain, engine counters and the latest analysis
// frame, and edits effect parameters.
type MonitorModel struct {
	src    Sources
	width  int
	cursor int // selected effect
	param  int // selected parameter of that effect

	fx     []effects.Effect
	stats  audio.Stats
	frame  analysis.Frame
	status string
}

// NewMonitorModel returns a monitor over src.
func NewMonitorModel(src Sources) MonitorModel {
	m := MonitorModel{src: src, width: 80}
	m.poll()
	return m
}

func (m MonitorModel) Init() tea.Cmd { return tick() }

func (m *MonitorModel) poll() {
	if m.src.Chain != nil {
		m.fx = m.src.Chain.Effects()
	}
	m.cursor = max(min(m.cursor, len(m.fx)-1), 0)
	if m.src.Stats != nil {
		m.stats = m.src.Stats()
	}
	if m.src.Frame != nil {
		m.frame = m.src.Frame()
	}
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.poll()
		return m, tick()

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keyQuit):
			return m, tea.Quit
		case key.Matches(msg, keyUp):
			m.cursor = max(m.cursor-1, 0)
			m.param = 0
		case key.Matches(msg, keyDown):
			m.cursor = max(min(m.cursor+1, len(m.fx)-1), 0)
			m.param = 0
		case key.Matches(msg, keyNext):
			if e := m.selected(); e != nil {
				m.param = (m.param + 1) % len(e.ParameterSpecs())
			}
		case key.Matches(msg, keyLeft):
			m.nudge(-1)
		case key.Matches(msg, keyRight):
			m.nudge(1)
		case key.Matches(msg, keyToggle):
			if e := m.selected(); e != nil {
				m.report(m.src.Chain.SetEnabled(m.cursor, !e.Enabled()))
			}
		case key.Matches(msg, keyReset):
			if m.src.Chain != nil {
				m.src.Chain.Reset()
				m.status = "state cleared"
			}
		}
	}
	return m, nil
}

func (m MonitorModel) selected() effects.Effect {
	if m.cursor < len(m.fx) {
		return m.fx[m.cursor]
	}
	return nil
}

// nudge moves the selected parameter by one fiftieth of its range, or by
// one for integer parameters.
func (m *MonitorModel) nudge(dir float64) {
	e := m.selected()
	if e == nil {
		return
	}
	specs := e.ParameterSpecs()
	if len(specs) == 0 {
		return
	}
	spec := specs[m.param%len(specs)]
	v, err := e.Parameter(spec.Name)
	if err != nil {
		m.report(err)
		return
	}
	step := (spec.Max - spec.Min) / 50
	if spec.Integer {
		step = 1
	}
	m.report(m.src.Chain.SetParameter(m.cursor, spec.Name, spec.Clamp(v+dir*step)))
}

func (m *MonitorModel) report(err error) {
	if err != nil {
		m.status = err.Error()
	} else {
		m.status = ""
	}
}

func (m MonitorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("audiofx monitor"))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Chain"))
	b.WriteString("\n")
	if len(m.fx) == 0 {
		b.WriteString(offStyle.Render("  (empty)"))
		b.WriteString("\n")
	}
	for i, e := range m.fx {
		line := fmt.Sprintf("  %d. %-14s", i+1, e.Name())
		if !e.Enabled() {
			line += " bypassed"
		}
		if i == m.cursor {
			line = highlightStyle.Render("▶" + line[1:])
			line += "\n" + m.renderParams(e)
		} else if !e.Enabled() {
			line = offStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(sectionStyle.Render("Engine"))
	b.WriteString("\n")
	s := m.stats
	fmt.Fprintf(&b, "  blocks %d  errors %d  analyzed %d\n", s.Blocks, s.Errors, s.Analyzed)
	fmt.Fprintf(&b, "  peak %s %5.1f dBFS\n", renderBar(float64(s.Peak), 30), dbfs(float64(s.Peak)))
	if s.Recording {
		fmt.Fprintf(&b, "  recording: %d frames\n", s.Frames)
	}

	b.WriteString(sectionStyle.Render("Analysis"))
	b.WriteString("\n")
	f := m.frame
	fmt.Fprintf(&b, "  rms %.3f  centroid %.0f Hz  dominant %.0f Hz  zcr %.3f",
		f.Features.RMS, f.Features.SpectralCentroid, f.DominantHz, f.Features.ZeroCrossingRate)
	if f.Beat {
		b.WriteString("  " + beatStyle.Render("● beat"))
	}
	b.WriteString("\n")
	b.WriteString(renderBands(f.Bands, max(m.width-4, 8)))
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(errStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(offStyle.Render("↑/↓ effect  tab param  ←/→ adjust  space bypass  r reset  q quit"))
	return b.String()
}

func (m MonitorModel) renderParams(e effects.Effect) string {
	specs := e.ParameterSpecs()
	parts := make([]string, 0, len(specs))
	for i, spec := range specs {
		v, _ := e.Parameter(spec.Name)
		p := fmt.Sprintf("%s=%s", spec.Name, formatValue(v, spec))
		if i == m.param%max(len(specs), 1) {
			p = beatStyle.Render(p)
		}
		parts = append(parts, p)
	}
	return "     " + strings.Join(parts, "  ")
}

func formatValue(v float64, spec effects.ParamSpec) string {
	s := fmt.Sprintf("%.3g", v)
	if spec.Integer {
		s = fmt.Sprintf("%d", int(v))
	}
	return s + spec.Unit
}

// renderBar draws a horizontal meter for v in 0..1.
func renderBar(v float64, width int) string {
	n := int(math.Round(min(max(v, 0), 1) * float64(width)))
	return barStyle.Render(strings.Repeat("█", n)) + strings.Repeat("░", width-n)
}

var levels = []rune(" ▁▂▃▄▅▆▇█")

// renderBands draws one column per band, scaled to the loudest band, and
// squeezes the bands into width columns when there are more.
func renderBands(bands []float64, width int) string {
	if len(bands) == 0 {
		return offStyle.Render("  no analysis yet")
	}
	cols := min(len(bands), width)
	var top float64
	for _, v := range bands {
		top = max(top, v)
	}
	out := make([]rune, cols)
	for c := range cols {
		lo, hi := c*len(bands)/cols, (c+1)*len(bands)/cols
		var v float64
		for _, x := range bands[lo:hi] {
			v = max(v, x)
		}
		i := 0
		if top > 0 {
			i = int(math.Round(v / top * float64(len(levels)-1)))
		}
		out[c] = levels[i]
	}
	return "  " + barStyle.Render(string(out))
}

func dbfs(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

// RunMonitor runs the monitor full screen until the user quits.
func RunMonitor(src Sources) error {
	_, err := tea.NewProgram(NewMonitorModel(src), tea.WithAltScreen()).Run()
	return err
}
