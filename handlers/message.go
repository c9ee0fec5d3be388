package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"roundtable/conversation"
)

// NoResponderText is returned when no agent could answer the user.
const NoResponderText = "No NPC responded."

type ChatRequest struct {
	Message string `json:"message"`
	Emotion string `json:"emotion,omitempty"`
}

type ChatResponse struct {
	Responded bool   `json:"responded"`
	Speaker   string `json:"speaker,omitempty"`
	Response  string `json:"response"`
	Feedback  string `json:"feedback,omitempty"`
}

type VoiceChatResponse struct {
	ChatResponse
	Transcription string `json:"transcription"`
	Emotion       string `json:"emotion"`
}

func (s *Server) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad request", false)
		return
	}

	resp, ok := s.chat(w, r, req.Message, req.Emotion)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) VoiceChatHandler(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		writeError(w, http.StatusNotImplemented, "Voice chat is not configured", false)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxAudioBytes)
	if err := r.ParseMultipartForm(s.maxAudioBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart upload", false)
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing audio file", false)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil || len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "Could not read audio file", false)
		return
	}
	mimeType := header.Header.Get("Content-Type")

	text, err := s.transcriber.Transcribe(r.Context(), audio, mimeType)
	if err != nil {
		s.logger.Error("transcription failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to transcribe audio", true)
		return
	}
	emotion, err := s.transcriber.ClassifyEmotion(r.Context(), audio, mimeType)
	if err != nil {
		s.logger.Warn("emotion classification failed", zap.Error(err))
		emotion = "neutral"
	}

	resp, ok := s.chat(w, r, text, emotion)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, VoiceChatResponse{ChatResponse: resp, Transcription: text, Emotion: emotion})
}

// chat runs one user turn and writes the error response itself on failure.
func (s *Server) chat(w http.ResponseWriter, r *http.Request, message, emotion string) (ChatResponse, bool) {
	result, err := s.session.ProcessUserMessage(r.Context(), message, emotion)
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "Message is required", false)
		return ChatResponse{}, false
	case errors.Is(err, conversation.ErrGeneration):
		s.logger.Warn("reply generation failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to get response", true)
		return ChatResponse{}, false
	case err != nil:
		s.logger.Error("chat failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to process message", false)
		return ChatResponse{}, false
	}

	if !result.Responded {
		return ChatResponse{Response: NoResponderText}, true
	}
	return ChatResponse{
		Responded: true,
		Speaker:   result.Speaker,
		Response:  result.Text,
		Feedback:  result.Feedback,
	}, true
}
