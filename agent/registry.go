package agent

import (
	"fmt"
	"strings"
)

// Registry is the fixed, ordered cast of one session. Iteration order is
// insertion order and doubles as the tie-break order for speaker selection.
// A Registry is not safe for concurrent use; the owning session serializes access.
type Registry struct {
	agents []*Agent
	byName map[string]*Agent
}

// NewRegistry builds a registry from agents, rejecting empty or duplicate names
// (compared case-insensitively).
func NewRegistry(agents ...*Agent) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Agent, len(agents))}
	for _, a := range agents {
		if a == nil || strings.TrimSpace(a.Name) == "" {
			return nil, fmt.Errorf("agent name is required")
		}
		key := strings.ToLower(a.Name)
		if key == strings.ToLower(UserID) {
			return nil, fmt.Errorf("agent name %q is reserved", a.Name)
		}
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("duplicate agent name %q", a.Name)
		}
		r.byName[key] = a
		r.agents = append(r.agents, a)
	}
	return r, nil
}

// Get looks an agent up by name, ignoring case.
func (r *Registry) Get(name string) (*Agent, bool) {
	a, ok := r.byName[strings.ToLower(name)]
	return a, ok
}

// All returns the agents in registry order. The slice is a copy; the agents are not.
func (r *Registry) All() []*Agent {
	return append([]*Agent(nil), r.agents...)
}

func (r *Registry) Len() int { return len(r.agents) }

// Names returns agent names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.agents))
	for i, a := range r.agents {
		names[i] = a.Name
	}
	return names
}

// Except returns the agents in registry order whose names are not in exclude.
func (r *Registry) Except(exclude ...string) []*Agent {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[strings.ToLower(name)] = true
	}
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if !skip[strings.ToLower(a.Name)] {
			out = append(out, a)
		}
	}
	return out
}
