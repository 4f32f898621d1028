package chatui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/agusx1211/llmws/internal/infer"
	"github.com/agusx1211/llmws/internal/theme"
	"github.com/agusx1211/llmws/internal/transcript"
)

const (
	inputHeight    = 3
	minPaneHeight  = 3
	contentPadding = 2
)

// generateFunc runs one inference call. Injected so tests can run the model
// without a live server.
type generateFunc func(ctx context.Context, req infer.Request) (*infer.Result, error)

type chatRole int

const (
	roleUser chatRole = iota
	roleAssistant
	roleSystem
)

type chatMessage struct {
	role chatRole
	text string
	at   time.Time
}

// Model is the bubbletea model for the llmws chat TUI.
type Model struct {
	width  int
	height int
	ready  bool

	vp    viewport.Model
	input textarea.Model
	spin  spinner.Model

	// Call routing state.
	modelName    string
	conversation string
	transcript   string
	sessionID    string
	target       string
	totalTokens  int

	// Conversation pane state.
	messages   []chatMessage
	autoScroll bool

	// In-flight generation. streamBuf is a pointer so Bubble Tea's model
	// copies share the accumulator.
	streamBuf  *strings.Builder
	generating bool
	cancelled  bool
	startedAt  time.Time
	elapsed    time.Duration

	generate  generateFunc
	eventCh   chan any
	baseCtx   context.Context
	cancelGen context.CancelFunc
}

// NewModel creates a chat model wired to the given generate function.
func NewModel(cfg Config, generate generateFunc, eventCh chan any, baseCtx context.Context) Model {
	input := textarea.New()
	input.Prompt = ""
	input.Placeholder = "Send a message (enter to send, alt+enter for a newline)"
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(inputHeight)
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorMauve)

	vp := viewport.New(0, 0)
	vp.MouseWheelEnabled = true

	conversation := cfg.Conversation
	if conversation == "" && cfg.Transcript != "" {
		conversation = cfg.Transcript
	}

	return Model{
		vp:           vp,
		input:        input,
		spin:         sp,
		modelName:    cfg.Model,
		conversation: conversation,
		transcript:   cfg.Transcript,
		sessionID:    cfg.Resume,
		autoScroll:   true,
		streamBuf:    &strings.Builder{},
		generate:     generate,
		eventCh:      eventCh,
		baseCtx:      baseCtx,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spin.Tick,
		waitForEvent(m.eventCh),
		loadHistory(m.transcript),
		tickEvery(),
		tea.SetWindowTitle("llmws chat"),
	)
}

// waitForEvent returns a Cmd that waits for the next event on the channel.
func waitForEvent(ch chan any) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// tickEvery returns a Cmd that sends a tickMsg after 1 second.
func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// loadHistory reads the persisted conversation in the background.
func loadHistory(path string) tea.Cmd {
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		header, _ := transcript.ReadHeader(path)
		msgs, err := transcript.ReadMessages(path)
		return historyMsg{Header: header, Messages: msgs, Err: err}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.ready = true
		m.renderContent()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		m.autoScroll = m.vp.AtBottom()
		return m, cmd

	case tokenMsg:
		if m.generating && !m.cancelled {
			m.streamBuf.WriteString(msg.Text)
			m.renderContent()
		}
		return m, waitForEvent(m.eventCh)

	case replyMsg:
		return m.handleReply(msg)

	case historyMsg:
		return m.handleHistory(msg)

	case tickMsg:
		if m.generating {
			m.elapsed = time.Since(m.startedAt)
		}
		return m, tickEvery()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.abortGeneration()
		return m, tea.Quit

	case tea.KeyEsc:
		if m.generating {
			m.cancelled = true
			m.abortGeneration()
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		m.autoScroll = m.vp.AtBottom()
		return m, cmd

	case tea.KeyCtrlN:
		// Fresh session: keep the transcript file, drop screen state and
		// the server-side session.
		m.abortGeneration()
		m.generating = false
		m.messages = nil
		m.sessionID = ""
		m.streamBuf.Reset()
		m.renderContent()
		return m, nil

	case tea.KeyEnter:
		if msg.Alt {
			// Forward as a plain enter so the textarea inserts a newline.
			msg.Alt = false
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		if m.generating {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		return m.submit(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit starts a generation for the typed prompt.
func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	m.messages = append(m.messages, chatMessage{role: roleUser, text: text, at: time.Now()})
	m.input.Reset()

	m.generating = true
	m.cancelled = false
	m.streamBuf.Reset()
	m.startedAt = time.Now()
	m.elapsed = 0

	ctx, cancel := context.WithCancel(m.baseCtx)
	m.cancelGen = cancel

	req := infer.Request{
		Model:      m.modelName,
		Prompt:     text,
		Transcript: m.transcript,
		Resume:     m.sessionID,
	}
	gen := m.generate
	runCmd := func() tea.Msg {
		res, err := gen(ctx, req)
		return replyMsg{Res: res, Err: err}
	}

	m.autoScroll = true
	m.renderContent()
	return m, tea.Batch(runCmd, m.spin.Tick)
}

func (m Model) handleReply(msg replyMsg) (tea.Model, tea.Cmd) {
	if !m.generating {
		// ctrl+n already discarded this call; its late reply is noise.
		return m, nil
	}
	m.generating = false
	if m.cancelGen != nil {
		m.cancelGen()
		m.cancelGen = nil
	}

	switch {
	case m.cancelled:
		m.messages = append(m.messages, chatMessage{role: roleSystem, text: "cancelled", at: time.Now()})
	case msg.Err != nil:
		m.messages = append(m.messages, chatMessage{role: roleSystem, text: errorText(msg.Err), at: time.Now()})
	case msg.Res != nil:
		m.messages = append(m.messages, chatMessage{role: roleAssistant, text: msg.Res.Text, at: time.Now()})
		m.sessionID = msg.Res.SessionID
		m.target = msg.Res.Target
		m.totalTokens += msg.Res.Usage.Total
	}
	m.streamBuf.Reset()
	m.renderContent()
	return m, nil
}

func (m Model) handleHistory(msg historyMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.messages = append(m.messages, chatMessage{role: roleSystem, text: "could not load history: " + msg.Err.Error(), at: time.Now()})
		m.renderContent()
		return m, nil
	}
	var restored []chatMessage
	for _, tm := range msg.Messages {
		role := roleUser
		if tm.Role == transcript.RoleAssistant {
			role = roleAssistant
		}
		at, _ := time.Parse(time.RFC3339, tm.Timestamp)
		restored = append(restored, chatMessage{role: role, text: tm.Content, at: at})
	}
	m.messages = append(restored, m.messages...)
	m.renderContent()
	return m, nil
}

// errorText flattens a call failure into one displayable line per target.
func errorText(err error) string {
	var ce *infer.CallError
	if errors.As(err, &ce) {
		return fmt.Sprintf("call failed (%s)\n%s", ce.Kind, strings.Join(ce.Failures, "\n"))
	}
	return "call failed: " + err.Error()
}

// abortGeneration cancels the in-flight call, if any.
func (m *Model) abortGeneration() {
	if m.cancelGen != nil {
		m.cancelGen()
	}
}

// layout recomputes pane sizes for the current terminal dimensions.
func (m *Model) layout() {
	paneHeight := m.height - 1 - 1 - (inputHeight + 2)
	if paneHeight < minPaneHeight {
		paneHeight = minPaneHeight
	}
	m.vp.Width = m.width
	m.vp.Height = paneHeight
	m.input.SetWidth(m.width - 2*contentPadding)
}

// renderContent rebuilds the viewport from the message list and any
// streaming partial.
func (m *Model) renderContent() {
	if m.width == 0 {
		return
	}
	width := m.width - contentPadding
	if width < 20 {
		width = 20
	}

	var b strings.Builder
	if len(m.messages) == 0 && !m.generating {
		b.WriteString("\n" + dimStyle.Render("  No messages yet. Say something."))
	}
	for _, msg := range m.messages {
		b.WriteString(m.renderMessage(msg, width))
		b.WriteString("\n")
	}
	if m.generating {
		b.WriteString(assistantLabelStyle.Render("Assistant"))
		b.WriteString("\n")
		partial := m.streamBuf.String()
		if partial == "" {
			b.WriteString(dimStyle.Render("  ..."))
		} else {
			b.WriteString(indent(partialStyle.Render(ansi.Wrap(partial, width-2, " "))))
		}
		b.WriteString("\n")
	}

	m.vp.SetContent(b.String())
	if m.autoScroll {
		m.vp.GotoBottom()
	}
}

func (m *Model) renderMessage(msg chatMessage, width int) string {
	var label string
	var style lipgloss.Style
	switch msg.role {
	case roleUser:
		label, style = "You", userLabelStyle
	case roleAssistant:
		label, style = "Assistant", assistantLabelStyle
	default:
		label, style = "llmws", systemLabelStyle
	}

	header := style.Render(label)
	if !msg.at.IsZero() {
		header += " " + timestampStyle.Render(msg.at.Format("15:04:05"))
	}

	body := textStyle
	if msg.role == roleSystem {
		body = errorStyle
		if msg.text == "cancelled" {
			body = dimStyle
		}
	}
	wrapped := ansi.Wrap(body.Render(msg.text), width-2, " ")
	return header + "\n" + indent(wrapped) + "\n"
}

// indent prefixes every line with two spaces.
func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "\n  starting..."
	}

	title := " llmws chat"
	if m.modelName != "" {
		title += "  ·  " + m.modelName
	}
	if m.conversation != "" {
		title += "  ·  " + m.conversation
	}
	header := headerStyle.Width(m.width).Render(title)

	input := inputFrameStyle.Width(m.width - 2).Render(m.input.View())

	return strings.Join([]string{header, m.vp.View(), input, m.statusBar()}, "\n")
}

// callState names the state shown by the status indicator.
func (m Model) callState() string {
	switch {
	case m.generating:
		return "generating"
	case len(m.messages) > 0 && m.messages[len(m.messages)-1].role == roleSystem && m.messages[len(m.messages)-1].text != "cancelled":
		return "failed"
	case m.target != "":
		return "connected"
	default:
		return "idle"
	}
}

// statusBar renders the bottom line: activity on the left, keys on the right.
func (m Model) statusBar() string {
	left := theme.StateIndicator(m.callState())
	if m.generating {
		left += m.spin.View() + statusValueStyle.Render(fmt.Sprintf("generating %ds", int(m.elapsed.Seconds())))
	} else {
		var parts []string
		if m.target != "" {
			parts = append(parts, m.target)
		}
		if m.sessionID != "" {
			parts = append(parts, "session "+m.sessionID)
		}
		if m.totalTokens > 0 {
			parts = append(parts, fmt.Sprintf("%d tokens", m.totalTokens))
		}
		if len(parts) == 0 {
			parts = append(parts, "ready")
		}
		left += statusValueStyle.Render(strings.Join(parts, "  ·  "))
	}

	keys := statusKeyStyle.Render("enter") + statusValueStyle.Render(" send  ") +
		statusKeyStyle.Render("esc") + statusValueStyle.Render(" cancel  ") +
		statusKeyStyle.Render("ctrl+n") + statusValueStyle.Render(" new session  ") +
		statusKeyStyle.Render("ctrl+c") + statusValueStyle.Render(" quit")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(keys) - 2
	if gap < 1 {
		gap = 1
	}
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + keys)
}
