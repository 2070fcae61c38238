package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"voicepad/audio"
	"voicepad/cue"
	"voicepad/hotkey"
	"voicepad/speech"
)

const maxToasts = 3

type keyMap struct {
	Listen    key.Binding
	Speak     key.Binding
	StopSpeak key.Binding
	Copy      key.Binding
	Clear     key.Binding
	Focus     key.Binding
	Quit      key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Listen, k.Speak, k.StopSpeak, k.Copy, k.Clear, k.Focus, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Listen:    key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "listen")),
	Speak:     key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "speak")),
	StopSpeak: key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "stop speaking")),
	Copy:      key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "copy")),
	Clear:     key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear")),
	Focus:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "focus")),
	Quit:      key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

type focus int

const (
	focusInput focus = iota
	focusTranscript
)

type toast struct {
	id int
	n  speech.Notification
}

type toastExpiredMsg struct{ id int }

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	listeningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	speakingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	idleStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	infoStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	finalStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	interimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	placeholderText = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238"))
	focusedPaneStyle = paneStyle.BorderForeground(lipgloss.Color("63"))

	toastStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("42")).
			PaddingLeft(1)
	destructiveToastStyle = toastStyle.BorderForeground(lipgloss.Color("196"))

	noticeStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(1, 3)
)

type tuiModel struct {
	console  *speech.Console
	cues     *cue.Player
	toastTTL time.Duration

	input      textarea.Model
	transcript viewport.Model
	spinner    spinner.Model
	help       help.Model

	focus     focus
	toasts    []toast
	nextToast int
	listening bool
	ready     bool

	// unsupported holds the cause reported when the console came up
	// without speech support.
	unsupported error

	width, height int
	modeLine      string
	deviceLine    string
}

type tuiOptions struct {
	ToastTTL time.Duration
	ModeLine string
	Device   *audio.DeviceInfo
}

func newTUIModel(c *speech.Console, cues *cue.Player, opts tuiOptions) tuiModel {
	ta := textarea.New()
	ta.Placeholder = "Type text to speak..."
	ta.ShowLineNumbers = false
	ta.Prompt = "┃ "
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(listeningStyle))

	vp := viewport.New(0, 0)

	m := tuiModel{
		console:    c,
		cues:       cues,
		toastTTL:   opts.ToastTTL,
		input:      ta,
		transcript: vp,
		spinner:    sp,
		help:       help.New(),
		modeLine:   opts.ModeLine,
		deviceLine: deviceLineText(opts.Device),
	}
	if m.toastTTL <= 0 {
		m.toastTTL = 4 * time.Second
	}
	return m
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()

	case runMsg:
		msg.fn()

	case notifyMsg:
		m.nextToast++
		m.toasts = append(m.toasts, toast{id: m.nextToast, n: msg.n})
		if len(m.toasts) > maxToasts {
			m.toasts = m.toasts[len(m.toasts)-maxToasts:]
		}
		switch {
		case errors.Is(msg.n.Err, speech.ErrUnsupported):
			m.unsupported = msg.n.Err
		case msg.n.Severity == speech.SeverityDestructive:
			m.cues.Error()
		}
		id := m.nextToast
		cmds = append(cmds, tea.Tick(m.toastTTL, func(time.Time) tea.Msg {
			return toastExpiredMsg{id: id}
		}))

	case toastExpiredMsg:
		for i, t := range m.toasts {
			if t.id == msg.id {
				m.toasts = append(m.toasts[:i:i], m.toasts[i+1:]...)
				break
			}
		}

	case hotkeyMsg:
		if msg.action == hotkey.ActionRelease {
			m.console.StopListening()
		} else {
			m.console.ToggleListening()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
			break
		}
		var cmd tea.Cmd
		if m.focus == focusInput {
			m.input, cmd = m.input.Update(msg)
			m.console.SetTextToSpeak(m.input.Value())
		} else {
			m.transcript, cmd = m.transcript.Update(msg)
		}
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.sync()
	return m, tea.Batch(cmds...)
}

// handleKey runs the global bindings. It reports false for keys that belong
// to the focused pane.
func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.console.Close()
		return tea.Quit, true
	case !m.console.Supported():
		return nil, true
	case key.Matches(msg, keys.Listen):
		m.console.ToggleListening()
	case key.Matches(msg, keys.Speak):
		m.console.SpeakText(m.input.Value())
	case key.Matches(msg, keys.StopSpeak):
		m.console.StopSpeaking()
	case key.Matches(msg, keys.Copy):
		m.console.CopyToClipboard(m.console.TranscriptText())
	case key.Matches(msg, keys.Clear):
		m.console.ClearTranscript()
	case key.Matches(msg, keys.Focus):
		if m.focus == focusInput {
			m.focus = focusTranscript
			m.input.Blur()
			return nil, true
		}
		m.focus = focusInput
		return m.input.Focus(), true
	default:
		return nil, false
	}
	return nil, true
}

// sync reflects console state into the widgets and plays listening cues on
// transitions.
func (m *tuiModel) sync() {
	st := m.console.State()
	if st.IsListening != m.listening {
		if st.IsListening {
			m.cues.Start()
		} else {
			m.cues.Stop()
		}
		m.listening = st.IsListening
	}
	if !m.ready {
		return
	}
	atBottom := m.transcript.AtBottom()
	m.transcript.SetContent(renderTranscript(st, m.transcript.Width))
	if atBottom {
		m.transcript.GotoBottom()
	}
}

func renderTranscript(st speech.State, width int) string {
	if st.Transcript == "" && st.InterimTranscript == "" {
		return placeholderText.Render("Press ctrl+r and start speaking.")
	}
	if width <= 0 {
		width = 1
	}
	var lines []string
	if st.Transcript != "" {
		for _, l := range strings.Split(wordwrap.String(st.Transcript, width), "\n") {
			lines = append(lines, finalStyle.Render(l))
		}
	}
	if st.InterimTranscript != "" {
		for _, l := range strings.Split(wordwrap.String(strings.TrimSpace(st.InterimTranscript), width), "\n") {
			lines = append(lines, interimStyle.Render(l))
		}
	}
	return strings.Join(lines, "\n")
}

const (
	headerHeight = 2
	inputHeight  = 4
	footerHeight = 1
)

func (m *tuiModel) layout() {
	frameW, frameH := paneStyle.GetFrameSize()
	innerW := max(10, m.width-frameW)

	m.input.SetWidth(innerW)
	m.input.SetHeight(inputHeight)

	vpHeight := m.height - headerHeight - footerHeight - maxToasts - (inputHeight + frameH) - frameH
	m.transcript.Width = innerW
	m.transcript.Height = max(3, vpHeight)
	m.help.Width = m.width
}

func (m tuiModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	if !m.console.Supported() {
		return m.unsupportedView()
	}

	st := m.console.State()
	var b strings.Builder

	b.WriteString(m.headerView(st) + "\n")
	b.WriteString(infoStyle.Render(truncate.StringWithTail(m.modeLine+"  "+m.deviceLine, uint(max(0, m.width)), "…")) + "\n")

	tp, ip := paneStyle, paneStyle
	if m.focus == focusTranscript {
		tp = focusedPaneStyle
	} else {
		ip = focusedPaneStyle
	}
	b.WriteString(tp.Render(m.transcript.View()) + "\n")
	b.WriteString(ip.Render(m.input.View()) + "\n")
	b.WriteString(m.toastView())
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m tuiModel) headerView(st speech.State) string {
	title := titleStyle.Render("voicepad")
	var status []string
	if st.IsListening {
		status = append(status, m.spinner.View()+listeningStyle.Render("listening"))
	} else {
		status = append(status, idleStyle.Render("○ idle"))
	}
	if st.IsSpeaking {
		status = append(status, speakingStyle.Render("♪ speaking"))
	}
	if strings.Contains(m.deviceLine, "(BT!)") {
		status = append(status, warnStyle.Render("bluetooth mic"))
	}
	return title + "  " + strings.Join(status, "  ")
}

func (m tuiModel) toastView() string {
	var b strings.Builder
	for i := 0; i < maxToasts; i++ {
		if i >= len(m.toasts) {
			b.WriteString("\n")
			continue
		}
		n := m.toasts[i].n
		style := toastStyle
		if n.Severity == speech.SeverityDestructive {
			style = destructiveToastStyle
		}
		line := n.Title
		if n.Description != "" {
			line += ": " + n.Description
		}
		line = truncate.StringWithTail(line, uint(max(0, m.width-2)), "…")
		b.WriteString(style.Render(line) + "\n")
	}
	return b.String()
}

func (m tuiModel) unsupportedView() string {
	body := titleStyle.Render("Speech not supported") + "\n\n" +
		wordwrap.String(missingText(m.console.Support())+" on this system. "+
			"Check the microphone, the DEEPGRAM_API_KEY and the synthesis backend, "+
			"or run voicepad -doctor for details.", 50) + "\n\n" +
		idleStyle.Render("ctrl+c to quit")
	if m.unsupported != nil {
		body += "\n\n" + warnStyle.Render(wordwrap.String(m.unsupported.Error(), 50))
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, noticeStyle.Render(body))
}

func missingText(s speech.Support) string {
	switch {
	case !s.Recognition && !s.Synthesis:
		return "Speech recognition and synthesis are unavailable"
	case !s.Recognition:
		return "Speech recognition is unavailable"
	default:
		return "Speech synthesis is unavailable"
	}
}

func modeLineText(model, synth string) string {
	return fmt.Sprintf("[deepgram %s | %s]", model, synth)
}
