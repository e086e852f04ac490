package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI message types
type RecordingStartMsg struct{}
type RecordingStopMsg struct{}
type RecordingTickMsg struct{ Duration float64 }
type TranscriptMsg struct {
	Text   string
	Copied bool
}
type ErrorMsg struct{ Text string }
type ModeLineMsg struct{ Text string }   // endpoint / options info
type DeviceLineMsg struct{ Text string } // microphone device name
type CacheLineMsg struct{ Text string }  // audio cache usage
type tickMsg time.Time

type tuiState int

const (
	tuiStateIdle tuiState = iota
	tuiStateRecording
)

type tuiModel struct {
	state             tuiState
	recordingDuration float64
	width, height     int
	modeLine          string
	deviceLine        string
	cacheLine         string
	lastText          string
	copiedToClipboard bool
	errText           string
}

var (
	tuiProgram   *tea.Program
	tuiMu        sync.Mutex
	tuiReady     = make(chan struct{})
	tuiReadyOnce sync.Once

	// UI intents handed to the run loop
	toggleChan = make(chan struct{}, 1)
	cancelChan = make(chan struct{}, 1)
)

var (
	styleRec    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleIdle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleMode   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleErr    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleText   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	styleCopied = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
)

func NewTUIProgram() *tea.Program {
	m := tuiModel{}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	tuiReadyOnce.Do(func() { close(tuiReady) })
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ", "r":
			select {
			case toggleChan <- struct{}{}:
			default:
			}
		case "esc":
			select {
			case cancelChan <- struct{}{}:
			default:
			}
		}

	case tickMsg:
		return m, tuiTick()

	case RecordingStartMsg:
		m.state = tuiStateRecording
		m.recordingDuration = 0
		m.errText = ""

	case RecordingStopMsg:
		m.state = tuiStateIdle

	case RecordingTickMsg:
		m.recordingDuration = msg.Duration

	case TranscriptMsg:
		m.lastText = msg.Text
		m.copiedToClipboard = msg.Copied

	case ErrorMsg:
		m.errText = msg.Text

	case ModeLineMsg:
		m.modeLine = msg.Text

	case DeviceLineMsg:
		m.deviceLine = msg.Text

	case CacheLineMsg:
		m.cacheLine = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string
	if m.state == tuiStateRecording {
		lines = append(lines, styleRec.Render(fmt.Sprintf("● REC %.1fs", m.recordingDuration)))
	} else {
		lines = append(lines, styleIdle.Render("○ STANDBY"))
	}
	if m.modeLine != "" {
		lines = append(lines, styleMode.Render(m.modeLine))
	}
	if m.deviceLine != "" {
		lines = append(lines, styleDim.Render(m.deviceLine))
	}
	if m.cacheLine != "" {
		lines = append(lines, styleDim.Render(m.cacheLine))
	}
	if m.errText != "" {
		lines = append(lines, styleErr.Render("⚠ "+m.errText))
	}
	if m.lastText != "" {
		lines = append(lines, "")
		width := m.width - 4
		if width > 76 {
			width = 76
		}
		for _, l := range wrapText(m.lastText, width) {
			lines = append(lines, styleText.Render(l))
		}
		if m.copiedToClipboard {
			lines = append(lines, styleCopied.Render("✓ copied to clipboard"))
		}
	}
	lines = append(lines, "")
	lines = append(lines, styleDim.Render("space: record/stop  esc: cancel  q: quit"))

	return lipgloss.NewStyle().Padding(1, 2).Render(strings.Join(lines, "\n"))
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()

	if p != nil {
		p.Send(msg)
	}
}

func logToTUI(format string, args ...interface{}) {
	tuiSend(ErrorMsg{Text: fmt.Sprintf(format, args...)})
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	runes := []rune(text)
	for len(runes) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(runes[:splitAt]))
		runes = runes[splitAt:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}
