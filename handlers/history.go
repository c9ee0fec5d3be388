package handlers

import (
	"net/http"
	"strconv"

	"roundtable/conversation"
)

type HistoryResponse struct {
	Turns   []conversation.Turn `json:"turns"`
	Total   int                 `json:"total"`
	HasMore bool                `json:"has_more"`
}

func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	// Set defaults
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	turns, total := s.session.History(offset, limit)
	if turns == nil {
		turns = []conversation.Turn{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Turns:   turns,
		Total:   total,
		HasMore: offset+limit < total,
	})
}
