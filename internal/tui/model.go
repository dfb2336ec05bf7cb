// Package tui is a terminal front end for a single conversation. It drives
// the same chat.Conversation the web page uses and redraws whenever the
// conversation reports a change.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/varsilias/siap-chat/internal/chat"
	"github.com/varsilias/siap-chat/internal/credentials"
	"github.com/varsilias/siap-chat/pkg/types"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1)
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	botStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

const helpLine = "enter send · /user <id> · /token <token> · ctrl+c quit"

// changedMsg tells the model the conversation moved on.
type changedMsg struct{}

type Model struct {
	conv   *chat.Conversation
	style  string
	now    func() time.Time
	events chan struct{}
	unsub  func()

	md       *glamour.TermRenderer
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	width  int
	height int
	status string
}

// New builds a model over conv. style is a glamour standard style name
// ("dark", "light", "notty"); empty means "dark".
func New(conv *chat.Conversation, style string) Model {
	if style == "" {
		style = "dark"
	}
	in := textinput.New()
	in.Placeholder = "Type a message..."
	in.Prompt = "> "
	in.CharLimit = 4000
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	events := make(chan struct{}, 1)
	unsub := conv.Subscribe(func(chat.Event) {
		select {
		case events <- struct{}{}:
		default:
		}
	})

	m := Model{
		conv:     conv,
		style:    style,
		now:      time.Now,
		events:   events,
		unsub:    unsub,
		input:    in,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		width:    80,
		height:   24,
	}
	m.md = newRenderer(style, m.width)
	m.refresh()
	return m
}

func newRenderer(style string, width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err != nil {
		return nil
	}
	return r
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForChange(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-6, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.md = newRenderer(m.style, msg.Width)
		m.refresh()
		return m, nil

	case changedMsg:
		m.refresh()
		return m, waitForChange(m.events)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.conv.Loading() {
			m.refresh()
		}
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.unsub()
			return m, tea.Quit
		case tea.KeyEnter:
			return m.enter()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before && !strings.HasPrefix(v, "/") {
		m.conv.SetDraft(v)
	}
	return m, cmd
}

// enter either runs a slash command or submits the draft.
func (m Model) enter() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	trimmed := strings.TrimSpace(line)
	m.status = ""

	if strings.HasPrefix(trimmed, "/") {
		m.input.Reset()
		return m.command(trimmed)
	}

	m.conv.SetDraft(line)
	if _, err := m.conv.Submit(context.Background()); err != nil {
		if errors.Is(err, chat.ErrBusy) {
			m.status = "still waiting for the previous reply"
		}
		return m, nil
	}
	m.input.Reset()
	return m, nil
}

func (m Model) command(line string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	creds := m.conv.Credentials()

	switch name {
	case "/quit", "/exit":
		m.unsub()
		return m, tea.Quit
	case "/user":
		if arg == "" {
			m.status = "user id is " + creds.UserID
			return m, nil
		}
		creds.UserID = arg
		m.conv.SetCredentials(creds)
		m.status = "user id set to " + arg
	case "/token":
		if arg == "" {
			m.status = credentials.Inspect(creds.BearerToken).Describe(m.now())
			return m, nil
		}
		creds.BearerToken = arg
		m.conv.SetCredentials(creds)
		m.status = "token updated: " + credentials.Inspect(arg).Describe(m.now())
	default:
		m.status = "unknown command " + name
	}
	m.refresh()
	return m, nil
}

// refresh re-renders the transcript into the viewport and keeps it pinned to
// the newest message.
func (m *Model) refresh() {
	st := m.conv.Snapshot()
	var b strings.Builder
	if len(st.Messages) == 0 {
		b.WriteString(dimStyle.Render("No messages yet. Say hello."))
		b.WriteString("\n")
	}
	for _, msg := range st.Messages {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	if st.Loading {
		b.WriteString(m.spinner.View() + dimStyle.Render(" waiting for reply..."))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *Model) renderMessage(msg types.Message) string {
	stamp := dimStyle.Render(msg.Timestamp.Format("15:04"))
	if msg.Sender == types.SenderUser {
		return userStyle.Render("You") + " " + stamp + "\n" + msg.Text + "\n"
	}
	body := msg.Text
	if m.md != nil {
		if out, err := m.md.Render(msg.Text); err == nil {
			body = strings.TrimRight(out, "\n")
		}
	}
	return botStyle.Render("Bot") + " " + stamp + "\n" + body + "\n"
}

func (m Model) View() string {
	creds := m.conv.Credentials()
	header := headerStyle.Render(fmt.Sprintf("siap chat · user %s", creds.UserID))

	footer := dimStyle.Render(helpLine)
	if m.status != "" {
		footer = statusStyle.Render(m.status)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.input.View(),
		footer,
	)
}
