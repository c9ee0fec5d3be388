package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roundtable/agent"
	"roundtable/conversation"
	"roundtable/handlers"
	"roundtable/prompts"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		var req handlers.ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		if req.Message == "fail" {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(handlers.ErrorResponse{Error: "Failed to get response", Retryable: true})
			return
		}
		json.NewEncoder(w).Encode(handlers.ChatResponse{Responded: true, Speaker: "Bob", Response: "Hey, " + req.Message})
	})
	mux.HandleFunc("GET /idle", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(handlers.IdleResponse{Responses: []conversation.Utterance{
			{Speaker: "Alice", Text: "Quiet today.", Kind: conversation.KindReply},
			{Speaker: "Cara", Text: "Still with us?", Kind: conversation.KindNudge},
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAPIClient(t *testing.T) {
	api := newAPIClient(fakeServer(t).URL + "/")

	resp, err := api.Chat(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hey, hi", resp.Response)

	_, err = api.Chat(context.Background(), "fail")
	assert.EqualError(t, err, "Failed to get response (503)")

	idle, err := api.Idle(context.Background())
	require.NoError(t, err)
	assert.Len(t, idle.Responses, 2)
}

func TestChatModel_SendAndReceive(t *testing.T) {
	m := newChatModel(newAPIClient(fakeServer(t).URL), time.Hour)
	m.input.SetValue("  hello there ")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(chatModel)
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Empty(t, m.input.Value())
	require.Len(t, m.lines, 1)
	assert.Contains(t, m.lines[0], "hello there")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Len(t, next.(chatModel).lines, 1)

	next, _ = m.Update(cmd())
	m = next.(chatModel)
	assert.False(t, m.busy)
	require.Len(t, m.lines, 2)
	assert.Contains(t, m.lines[1], "Bob")
	assert.Contains(t, m.lines[1], "Hey, hello there")
}

func TestChatModel_IdlePolling(t *testing.T) {
	m := newChatModel(newAPIClient(fakeServer(t).URL), time.Hour)

	next, _ := m.Update(m.idleCmd()())
	m = next.(chatModel)
	require.Len(t, m.lines, 2)
	assert.Contains(t, m.lines[0], "Quiet today.")
	assert.Contains(t, m.lines[1], "Cara")

	next, _ = m.Update(idleDoneMsg{err: errors.New("connection refused")})
	assert.Contains(t, next.(chatModel).status, "idle poll failed")
}

func TestChatModel_NoResponder(t *testing.T) {
	m := newChatModel(newAPIClient("http://unused"), time.Hour)
	next, _ := m.Update(chatDoneMsg{resp: handlers.ChatResponse{Response: handlers.NoResponderText}})
	m = next.(chatModel)
	require.Len(t, m.lines, 1)
	assert.Contains(t, m.lines[0], handlers.NoResponderText)
	assert.True(t, strings.Contains(m.View(), "ready"))
}

type echoGenerator struct{}

func (echoGenerator) GenerateReply(_ context.Context, rc prompts.ReplyContext) (string, error) {
	return "ok", nil
}

type stubLoader struct {
	snap conversation.Snapshot
	ok   bool
	err  error
}

func (l stubLoader) LoadSnapshot(context.Context, string) (conversation.Snapshot, bool, error) {
	return l.snap, l.ok, l.err
}

func TestRestoreSession(t *testing.T) {
	newSession := func() *conversation.Session {
		reg, err := agent.NewRegistry(agent.New("Alice", agent.Personality{}, nil), agent.New("Bob", agent.Personality{}, nil))
		require.NoError(t, err)
		return conversation.NewSession("s1", reg, echoGenerator{}, nil, conversation.Options{})
	}
	saved := conversation.Snapshot{
		SessionID: "s1",
		Turn:      4,
		Agents:    []conversation.AgentState{{Name: "Bob", LastSpokenTurn: 3, EmotionalState: 8}},
		Log:       []conversation.Turn{{Speaker: agent.UserID, Text: "hi"}, {Speaker: "Bob", Text: "hey"}},
	}

	s := newSession()
	assert.True(t, restoreSession(context.Background(), stubLoader{snap: saved, ok: true}, s, zap.NewNop()))
	assert.Equal(t, 4, s.Turn())
	assert.Equal(t, "Bob", s.LastSpeaker())

	s = newSession()
	assert.False(t, restoreSession(context.Background(), stubLoader{}, s, zap.NewNop()))
	assert.False(t, restoreSession(context.Background(), stubLoader{err: errors.New("down")}, s, zap.NewNop()))

	saved.Agents = append(saved.Agents, conversation.AgentState{Name: "Zed"})
	assert.False(t, restoreSession(context.Background(), stubLoader{snap: saved, ok: true}, s, zap.NewNop()))
	assert.Zero(t, s.Turn())
}
