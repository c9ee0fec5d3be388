package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"roundtable/conversation"
)

type IdleResponse struct {
	Responses []conversation.Utterance `json:"responses"`
	// Incomplete is set when the cycle stopped early; Responses holds what was said.
	Incomplete bool `json:"incomplete,omitempty"`
}

// IdleHandler advances the idle counter. Clients poll it while the user is silent.
func (s *Server) IdleHandler(w http.ResponseWriter, r *http.Request) {
	replies, err := s.session.ProcessIdleTick(r.Context())
	if replies == nil {
		replies = []conversation.Utterance{}
	}
	if err != nil {
		if !errors.Is(err, conversation.ErrGeneration) {
			s.logger.Error("idle tick failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to process idle tick", false)
			return
		}
		s.logger.Warn("idle cycle stopped early", zap.Int("replies", len(replies)), zap.Error(err))
		if len(replies) == 0 {
			writeError(w, http.StatusServiceUnavailable, "Failed to get response", true)
			return
		}
		writeJSON(w, http.StatusOK, IdleResponse{Responses: replies, Incomplete: true})
		return
	}
	writeJSON(w, http.StatusOK, IdleResponse{Responses: replies})
}
