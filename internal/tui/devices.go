// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"audiofx/internal/audio"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

var (
	keyQuit   = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	keyUp     = key.NewBinding(key.WithKeys("up", "k"))
	keyDown   = key.NewBinding(key.WithKeys("down", "j"))
	keyEnter  = key.NewBinding(key.WithKeys("enter"))
	keyBack   = key.NewBinding(key.WithKeys("esc"))
	keyLeft   = key.NewBinding(key.WithKeys("left", "h"))
	keyRight  = key.NewBinding(key.WithKeys("right", "l"))
	keyToggle = key.NewBinding(key.WithKeys(" "))
	keyNext   = key.NewBinding(key.WithKeys("tab"))
	keyReset  = key.NewBinding(key.WithKeys("r"))
)

type pickerStep int

const (
	stepDevice pickerStep = iota
	stepRate
)

var standardRates = []float64{44100, 48000, 88200, 96000}

// Selection is the device and rate chosen in the picker.
type Selection struct {
	Device     audio.Device
	SampleRate float64
}

// PickerModel walks the user through choosing an audio device and then a
// sample rate for it.
type PickerModel struct {
	fetch   func() ([]audio.Device, error)
	devices []audio.Device
	err     error

	step   pickerStep
	device int
	rates  []float64
	rate   int
	chosen *Selection

	view  viewport.Model
	sized bool
}

// NewPickerModel creates a picker over fetch. A nil fetch uses
// audio.GetDevices.
func NewPickerModel(fetch func() ([]audio.Device, error)) PickerModel {
	if fetch == nil {
		fetch = audio.GetDevices
	}
	return PickerModel{fetch: fetch}
}

type devicesMsg struct{ devices []audio.Device }

type errMsg struct{ err error }

func (m PickerModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if m.sized {
			m.view.Width, m.view.Height = msg.Width, msg.Height-4
		} else {
			m.view = viewport.New(msg.Width, msg.Height-4)
			m.sized = true
		}
	case devicesMsg:
		m.devices = msg.devices
	case errMsg:
		m.err = msg.err
	case tea.KeyMsg:
		if key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}
		if m.step == stepDevice {
			m.deviceKey(msg)
		} else if m.rateKey(msg) {
			return m, tea.Quit
		}
	}

	if m.sized {
		m.view.SetContent(m.content())
	}
	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

func (m *PickerModel) deviceKey(msg tea.KeyMsg) {
	switch {
	case key.Matches(msg, keyUp):
		m.device = max(m.device-1, 0)
	case key.Matches(msg, keyDown):
		m.device = max(min(m.device+1, len(m.devices)-1), 0)
	case key.Matches(msg, keyEnter) && len(m.devices) > 0:
		m.offerRates()
	}
}

// rateKey handles the rate step and reports whether a choice was made.
func (m *PickerModel) rateKey(msg tea.KeyMsg) bool {
	switch {
	case key.Matches(msg, keyBack):
		m.step = stepDevice
	case key.Matches(msg, keyUp):
		m.rate = max(m.rate-1, 0)
	case key.Matches(msg, keyDown):
		m.rate = min(m.rate+1, len(m.rates)-1)
	case key.Matches(msg, keyEnter):
		m.chosen = &Selection{Device: m.devices[m.device], SampleRate: m.rates[m.rate]}
		return true
	}
	return false
}

// offerRates moves to the rate step. The device's own default rate is
// always offered and starts selected.
func (m *PickerModel) offerRates() {
	m.step = stepRate
	def := m.devices[m.device].DefaultSampleRate
	m.rates = slices.Clone(standardRates)
	if def > 0 && !slices.Contains(m.rates, def) {
		m.rates = append(m.rates, def)
		slices.Sort(m.rates)
	}
	m.rate = max(slices.Index(m.rates, def), 0)
}

// Selection returns the confirmed choice, if any.
func (m PickerModel) Selection() (Selection, bool) {
	if m.chosen == nil {
		return Selection{}, false
	}
	return *m.chosen, true
}

func (m PickerModel) View() string {
	switch {
	case m.err != nil:
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	case !m.sized:
		return "Initializing..."
	}
	title, help := "Input Devices", "↑/↓ move • enter select • q quit"
	if m.step == stepRate {
		title, help = "Sample Rate", "↑/↓ move • enter use • esc back • q quit"
	}
	return titleStyle.Render(title) + "\n\n" + m.view.View() + "\n\n" + helpStyle.Render(help)
}

func (m PickerModel) content() string {
	if m.step == stepRate {
		return m.rateList()
	}
	return m.deviceList()
}

func (m PickerModel) deviceList() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}
	var b strings.Builder
	for i, d := range m.devices {
		head := fmt.Sprintf("[%d] %s (%s)", d.ID, d.Name, d.Kind())
		if i == m.device {
			head = highlightStyle.Render(head)
		}
		detail := fmt.Sprintf("    in %d / out %d channels, %.0f Hz", d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
		if d.HostAPI != "" {
			detail += " via " + d.HostAPI
		}
		b.WriteString(head + "\n" + offStyle.Render(detail) + "\n\n")
	}
	return b.String()
}

func (m PickerModel) rateList() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", m.devices[m.device].Name)
	for i, r := range m.rates {
		line := fmt.Sprintf("    %.0f Hz", r)
		if i == m.rate {
			line = highlightStyle.Render(fmt.Sprintf("  ▶ %.0f Hz", r))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// SelectDevice runs the picker full screen. ok is false when the user
// quit without choosing.
func SelectDevice() (sel Selection, ok bool, err error) {
	final, err := tea.NewProgram(NewPickerModel(nil), tea.WithAltScreen()).Run()
	if err != nil {
		return Selection{}, false, err
	}
	sel, ok = final.(PickerModel).Selection()
	return sel, ok, nil
}
