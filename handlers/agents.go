package handlers

import (
	"net/http"

	"roundtable/conversation"
)

type AgentsResponse struct {
	Agents []conversation.AgentView `json:"agents"`
	Count  int                      `json:"count"`
}

func (s *Server) AgentsHandler(w http.ResponseWriter, r *http.Request) {
	agents := s.session.Agents()
	if agents == nil {
		agents = []conversation.AgentView{}
	}
	writeJSON(w, http.StatusOK, AgentsResponse{Agents: agents, Count: len(agents)})
}

// AgentDetailHandler handles RESTful paths like /agents/Alice.
func (s *Server) AgentDetailHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "Agent name is required", false)
		return
	}
	view, ok := s.session.Agent(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Agent not found", false)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
