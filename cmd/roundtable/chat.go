package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"roundtable/conversation"
	"roundtable/handlers"
)

var (
	serverURL    string
	pollInterval time.Duration
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join the conversation from the terminal",
	Long: `Opens an interactive chat against a running "roundtable serve". While you are
quiet the client polls /idle so the agents can keep talking.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		api := newAPIClient(serverURL)
		p := tea.NewProgram(newChatModel(api, pollInterval), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	chatCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the roundtable server")
	chatCmd.Flags().DurationVar(&pollInterval, "poll", 10*time.Second, "idle poll interval")
}

// apiClient talks to the conversation endpoints.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *apiClient) Chat(ctx context.Context, message string) (handlers.ChatResponse, error) {
	body, err := json.Marshal(handlers.ChatRequest{Message: message})
	if err != nil {
		return handlers.ChatResponse{}, err
	}
	var resp handlers.ChatResponse
	err = c.do(ctx, http.MethodPost, "/chat", bytes.NewReader(body), &resp)
	return resp, err
}

func (c *apiClient) Idle(ctx context.Context) (handlers.IdleResponse, error) {
	var resp handlers.IdleResponse
	err := c.do(ctx, http.MethodGet, "/idle", nil, &resp)
	return resp, err
}

func (c *apiClient) do(ctx context.Context, method, path string, body *bytes.Reader, out any) error {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		var apiErr handlers.ErrorResponse
		if json.NewDecoder(res.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%d)", apiErr.Error, res.StatusCode)
		}
		return fmt.Errorf("server returned %s", res.Status)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

type chatDoneMsg struct {
	resp handlers.ChatResponse
	err  error
}

type idleDoneMsg struct {
	resp handlers.IdleResponse
	err  error
}

type tickMsg time.Time

type chatStyles struct {
	user     lipgloss.Style
	agent    lipgloss.Style
	nudge    lipgloss.Style
	feedback lipgloss.Style
	system   lipgloss.Style
	status   lipgloss.Style
	err      lipgloss.Style
}

func newChatStyles() chatStyles {
	mint := lipgloss.Color("#05ffa1")
	blue := lipgloss.Color("#01cdfe")
	pink := lipgloss.Color("#ff71ce")
	muted := lipgloss.Color("#9ca3d8")
	return chatStyles{
		user:     lipgloss.NewStyle().Foreground(mint).Bold(true),
		agent:    lipgloss.NewStyle().Foreground(blue).Bold(true),
		nudge:    lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd166")).Bold(true),
		feedback: lipgloss.NewStyle().Foreground(muted).Italic(true),
		system:   lipgloss.NewStyle().Foreground(muted),
		status:   lipgloss.NewStyle().Foreground(muted),
		err:      lipgloss.NewStyle().Foreground(pink).Bold(true),
	}
}

type chatModel struct {
	api    *apiClient
	poll   time.Duration
	styles chatStyles

	input    textinput.Model
	timeline viewport.Model
	lines    []string
	status   string
	busy     bool
}

func newChatModel(api *apiClient, poll time.Duration) chatModel {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "Say something to the group, or address someone by name"
	input.Focus()

	return chatModel{
		api:      api,
		poll:     poll,
		styles:   newChatStyles(),
		input:    input,
		timeline: viewport.New(80, 20),
		status:   "connected to " + api.baseURL,
	}
}

func tickEvery(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tickEvery(m.poll))
}

func (m chatModel) chatCmd(text string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		resp, err := api.Chat(context.Background(), text)
		return chatDoneMsg{resp: resp, err: err}
	}
}

func (m chatModel) idleCmd() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		resp, err := api.Idle(context.Background())
		return idleDoneMsg{resp: resp, err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.timeline.Width = msg.Width
		m.timeline.Height = max(msg.Height-3, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.render()
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.busy = true
			m.status = "waiting for a reply..."
			m.appendLine(m.styles.user.Render("You") + ": " + text)
			return m, m.chatCmd(text)
		}
	case chatDoneMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.status = m.styles.err.Render("chat failed: " + msg.err.Error())
		case !msg.resp.Responded:
			m.status = "ready"
			m.appendLine(m.styles.system.Render(msg.resp.Response))
		default:
			m.status = "ready"
			m.appendLine(m.styles.agent.Render(msg.resp.Speaker) + ": " + msg.resp.Response)
			if msg.resp.Feedback != "" {
				m.appendLine(m.styles.feedback.Render(msg.resp.Feedback))
			}
		}
	case tickMsg:
		cmds = append(cmds, tickEvery(m.poll))
		if !m.busy {
			cmds = append(cmds, m.idleCmd())
		}
	case idleDoneMsg:
		if msg.err != nil {
			m.status = m.styles.err.Render("idle poll failed: " + msg.err.Error())
			break
		}
		for _, u := range msg.resp.Responses {
			style := m.styles.agent
			if u.Kind == conversation.KindNudge {
				style = m.styles.nudge
			}
			m.appendLine(style.Render(u.Speaker) + ": " + u.Text)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.timeline, cmd = m.timeline.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *chatModel) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.render()
}

func (m *chatModel) render() {
	m.timeline.SetContent(lipgloss.NewStyle().Width(m.timeline.Width).Render(strings.Join(m.lines, "\n")))
	m.timeline.GotoBottom()
}

func (m chatModel) View() string {
	return m.timeline.View() + "\n" + m.styles.status.Render(m.status) + "\n" + m.input.View()
}
