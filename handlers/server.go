// Package handlers exposes a conversation session over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"roundtable/conversation"
)

// Conversation is the session surface the handlers drive.
type Conversation interface {
	ProcessUserMessage(ctx context.Context, text, emotion string) (conversation.UserTurnResult, error)
	ProcessIdleTick(ctx context.Context) ([]conversation.Utterance, error)
	History(offset, limit int) ([]conversation.Turn, int)
	Agents() []conversation.AgentView
	Agent(name string) (conversation.AgentView, bool)
}

// Transcriber turns recorded audio into text and an acoustic emotion label.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	ClassifyEmotion(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type Server struct {
	session       Conversation
	transcriber   Transcriber
	maxAudioBytes int64
	logger        *zap.Logger
}

// NewServer builds the handlers. transcriber may be nil, which disables
// /voice_chat.
func NewServer(session Conversation, transcriber Transcriber, maxAudioBytes int64, logger *zap.Logger) *Server {
	if maxAudioBytes <= 0 {
		maxAudioBytes = 10 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		session:       session,
		transcriber:   transcriber,
		maxAudioBytes: maxAudioBytes,
		logger:        logger.With(zap.String("component", "http")),
	}
}

// Register adds the conversation routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", s.ChatHandler)
	mux.HandleFunc("POST /voice_chat", s.VoiceChatHandler)
	mux.HandleFunc("GET /idle", s.IdleHandler)
	mux.HandleFunc("GET /history", s.HistoryHandler)
	mux.HandleFunc("GET /agents", s.AgentsHandler)
	mux.HandleFunc("GET /agents/{name}", s.AgentDetailHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, retryable bool) {
	writeJSON(w, status, ErrorResponse{Error: msg, Retryable: retryable})
}
