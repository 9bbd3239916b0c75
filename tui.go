package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"talkback/capture"
	"talkback/conversation"
	"talkback/level"
	"talkback/transport"
)

// TUI message types
type statusMsg struct{ Status capture.Status }
type connectionMsg struct{ State transport.State }
type levelMsg struct{ Reading level.Reading }
type conversationMsg struct{ Message conversation.Message }
type noticeMsg struct{ Text string }
type bannerMsg struct{ Text string }
type pendingMsg struct{ Pending bool }
type mutedMsg struct{ Muted bool }
type deviceLineMsg struct{ Text string }
type tickMsg time.Time

const (
	buttonWidth  = 20 // including border
	buttonHeight = 3
	maxLines     = 200
	noVoiceLevel = 0.02
)

type tuiModel struct {
	queue   *commandQueue
	holdKey string

	status     capture.Status
	recStart   time.Time
	recElapsed time.Duration
	pressed    bool

	connection transport.State
	reading    level.Reading
	peakLevel  float64
	transcript []conversation.Message
	notice     string
	banner     string
	pending    bool
	muted      bool
	deviceLine string

	width, height int
}

var (
	buttonIdle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Foreground(lipgloss.Color("250")).
			Width(buttonWidth - 2).
			Align(lipgloss.Center)
	buttonLive = buttonIdle.
			BorderForeground(lipgloss.Color("196")).
			Foreground(lipgloss.Color("196")).
			Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldHelp    = helpStyle.Bold(true)
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	agentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("124")).Bold(true)
	meterOn     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	meterOff    = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
)

func NewTUIProgram(commands chan<- uiCommand, holdKey string) *tea.Program {
	m := tuiModel{queue: newCommandQueue(commands), holdKey: holdKey}
	return tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) send(cmd uiCommand) { m.queue.push(cmd) }

// commandQueue hands UI commands to the event loop in order. push never
// blocks and never drops: commands that do not fit in out wait in items
// until a flush goroutine delivers them.
type commandQueue struct {
	out chan<- uiCommand

	mu       sync.Mutex
	items    []uiCommand
	flushing bool
}

func newCommandQueue(out chan<- uiCommand) *commandQueue {
	return &commandQueue{out: out}
}

func (q *commandQueue) push(cmd uiCommand) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.flushing {
		select {
		case q.out <- cmd:
			return
		default:
		}
		q.flushing = true
		go q.flush()
	}
	q.items = append(q.items, cmd)
}

func (q *commandQueue) flush() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.flushing = false
			q.mu.Unlock()
			return
		}
		cmd := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		q.out <- cmd
	}
}

func inButton(x, y int) bool {
	return x >= 0 && x < buttonWidth && y >= 0 && y < buttonHeight
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
		case "p":
			m.send(cmdPlayPending)
		case "m":
			m.send(cmdToggleMute)
		case "ctrl+y":
			m.send(cmdCopyReply)
		}

	case tea.MouseMsg:
		return m.mouse(msg), nil

	case tickMsg:
		if m.status == capture.Recording {
			m.recElapsed = time.Time(msg).Sub(m.recStart)
		}
		return m, tuiTick()

	case statusMsg:
		if msg.Status == capture.Recording && m.status != capture.Recording {
			m.recStart = time.Now()
			m.recElapsed = 0
			m.peakLevel = 0
			m.notice = ""
		}
		m.status = msg.Status

	case connectionMsg:
		m.connection = msg.State

	case levelMsg:
		m.reading = msg.Reading
		if m.status == capture.Recording && msg.Reading.Level > m.peakLevel {
			m.peakLevel = msg.Reading.Level
		}

	case conversationMsg:
		m.transcript = append(m.transcript, msg.Message)
		if len(m.transcript) > maxLines {
			m.transcript = m.transcript[len(m.transcript)-maxLines:]
		}

	case noticeMsg:
		m.notice = msg.Text

	case bannerMsg:
		m.banner = msg.Text

	case pendingMsg:
		m.pending = msg.Pending

	case mutedMsg:
		m.muted = msg.Muted

	case deviceLineMsg:
		m.deviceLine = msg.Text
	}
	return m, nil
}

// mouse turns presses on the talk button into hold gestures. Dragging off
// the button ends the hold.
func (m tuiModel) mouse(msg tea.MouseMsg) tuiModel {
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button == tea.MouseButtonLeft && inButton(msg.X, msg.Y) {
			m.pressed = true
			m.send(cmdMouseDown)
		}
	case tea.MouseActionRelease:
		if m.pressed {
			m.pressed = false
			m.send(cmdMouseUp)
		}
	case tea.MouseActionMotion:
		if m.pressed && !inButton(msg.X, msg.Y) {
			m.pressed = false
			m.send(cmdMouseLeave)
		}
	}
	return m
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string

	recording := m.status == capture.Recording
	if recording {
		lines = append(lines, strings.Split(buttonLive.Render("● RELEASE TO SEND"), "\n")...)
	} else {
		lines = append(lines, strings.Split(buttonIdle.Render("HOLD TO TALK"), "\n")...)
	}

	switch m.status {
	case capture.Recording:
		status := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).
			Render(fmt.Sprintf("● REC %.1fs", m.recElapsed.Seconds()))
		line := status + "  " + renderMeter(m.reading.Level, 20)
		if m.reading.Frequency > 0 {
			line += dimStyle.Render(fmt.Sprintf(" %4.0f Hz", m.reading.Frequency))
		}
		lines = append(lines, line)
		if m.recElapsed > time.Second && m.peakLevel < noVoiceLevel {
			lines = append(lines, noticeStyle.Render("  ⚠ no voice detected"))
		}
	case capture.Processing:
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render("◌ WAITING FOR REPLY"))
	default:
		line := dimStyle.Render("○ STANDBY")
		if m.reading.Level > 0 {
			line += "  " + renderMeter(m.reading.Level, 20)
		}
		lines = append(lines, line)
	}

	flags := []string{"server: " + m.connection.String()}
	if m.muted {
		flags = append(flags, "muted")
	}
	if m.pending {
		flags = append(flags, "reply waiting (p)")
	}
	lines = append(lines, dimStyle.Render(strings.Join(flags, " | ")))
	if m.deviceLine != "" {
		lines = append(lines, dimStyle.Render(m.deviceLine))
	}
	if m.banner != "" {
		lines = append(lines, bannerStyle.Render(" "+m.banner+" "))
	}
	if m.notice != "" {
		lines = append(lines, noticeStyle.Render(m.notice))
	}
	lines = append(lines, "")

	help := boldHelp.Render(m.holdKey) + helpStyle.Render(" or hold the button to talk · p play · m mute · ctrl+y copy · q quit")
	footer := []string{help, helpStyle.Render("talkback " + version)}

	room := m.height - len(lines) - len(footer) - 1
	lines = append(lines, m.renderTranscript(room)...)
	for len(lines) < m.height-len(footer) {
		lines = append(lines, "")
	}
	lines = append(lines, footer...)
	return strings.Join(lines, "\n")
}

// renderTranscript returns the newest messages that fit in room lines.
func (m tuiModel) renderTranscript(room int) []string {
	if room <= 0 {
		return nil
	}
	if len(m.transcript) == 0 {
		return []string{dimStyle.Render("No messages yet")}
	}
	wrapWidth := m.width - 8
	if wrapWidth < 10 {
		wrapWidth = 10
	}
	var out []string
	for i := len(m.transcript) - 1; i >= 0 && len(out) < room; i-- {
		msg := m.transcript[i]
		style, label := userStyle, "you  "
		if msg.Sender == conversation.Agent {
			style, label = agentStyle, "agent"
		}
		wrapped := wrapText(msg.Text, wrapWidth)
		block := make([]string, len(wrapped))
		for j, w := range wrapped {
			prefix := "      "
			if j == 0 {
				prefix = label + " "
			}
			block[j] = dimStyle.Render(prefix) + style.Render(w)
		}
		out = append(block, out...)
	}
	if len(out) > room {
		out = out[len(out)-room:]
	}
	return out
}

func renderMeter(v float64, width int) string {
	filled := int(min(1, v*4) * float64(width))
	return meterOn.Render(strings.Repeat("▮", filled)) + meterOff.Render(strings.Repeat("▯", width-filled))
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}

// tuiSink forwards session events into the Bubble Tea program.
type tuiSink struct {
	p *tea.Program
}

func (t tuiSink) Status(s capture.Status)        { t.p.Send(statusMsg{Status: s}) }
func (t tuiSink) Connection(s transport.State)   { t.p.Send(connectionMsg{State: s}) }
func (t tuiSink) AudioLevel(r level.Reading)     { t.p.Send(levelMsg{Reading: r}) }
func (t tuiSink) Message(m conversation.Message) { t.p.Send(conversationMsg{Message: m}) }
func (t tuiSink) Notice(text string)             { t.p.Send(noticeMsg{Text: text}) }
func (t tuiSink) Banner(text string)             { t.p.Send(bannerMsg{Text: text}) }
func (t tuiSink) PendingAudio(pending bool)      { t.p.Send(pendingMsg{Pending: pending}) }
func (t tuiSink) Muted(muted bool)               { t.p.Send(mutedMsg{Muted: muted}) }
func (t tuiSink) DeviceLine(text string)         { t.p.Send(deviceLineMsg{Text: text}) }
