package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"roundtable/agent"
)

// Options tunes a Session. Zero values are replaced by DefaultOptions.
type Options struct {
	IdleThreshold        int
	MaxAutonomousTurns   int
	HistoryTail          int
	PropagationThreshold float64
	// ExternalTimeout bounds each collaborator call. Zero means no extra bound.
	ExternalTimeout time.Duration

	Importance ImportanceJudge
	Emotions   EmotionAnalyzer
	Memory     Memory
	Coach      Coach
	Persister  Persister
	Observer   Observer
	Logger     *zap.Logger
	Now        func() time.Time
}

func DefaultOptions() Options {
	return Options{
		IdleThreshold:        3,
		MaxAutonomousTurns:   2,
		HistoryTail:          6,
		PropagationThreshold: 0.6,
		ExternalTimeout:      30 * time.Second,
	}
}

// Session owns one conversation: its cast, relationship graph, log and turn
// counter. Runs (a user turn or an idle tick) are serialized; reads may happen
// concurrently with a run and observe only committed state.
type Session struct {
	id        string
	registry  *agent.Registry
	log       *Log
	generator Generator
	scorer    *Scorer
	selector  *Selector
	opts      Options
	logger    *zap.Logger

	// run serializes whole runs; state guards commits against concurrent readers.
	run   sync.Mutex
	state sync.RWMutex

	turn int
	idle int
}

// NewSession creates a session over registry. generator is required; embedder
// may be nil, in which case every similarity is 0.
func NewSession(id string, registry *agent.Registry, generator Generator, embedder Embedder, opts Options) *Session {
	def := DefaultOptions()
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = def.IdleThreshold
	}
	if opts.MaxAutonomousTurns <= 0 {
		opts.MaxAutonomousTurns = def.MaxAutonomousTurns
	}
	if opts.HistoryTail <= 0 {
		opts.HistoryTail = def.HistoryTail
	}
	if opts.PropagationThreshold <= 0 {
		opts.PropagationThreshold = def.PropagationThreshold
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.With(zap.String("component", "session"), zap.String("session_id", id))
	scorer := NewScorer(embedder, opts.Observer, opts.Logger)
	scorer.timeout = opts.ExternalTimeout
	return &Session{
		id:        id,
		registry:  registry,
		log:       NewLog(),
		generator: generator,
		scorer:    scorer,
		selector:  NewSelector(scorer),
		opts:      opts,
		logger:    logger,
	}
}

func (s *Session) ID() string { return s.id }

// Turn returns the global turn counter.
func (s *Session) Turn() int {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.turn
}

// IdleCount returns the number of consecutive idle polls since the last reset.
func (s *Session) IdleCount() int {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.idle
}

// LastSpeaker is the author of the most recent log entry, or "" for an empty log.
func (s *Session) LastSpeaker() string {
	s.state.RLock()
	defer s.state.RUnlock()
	last, ok := s.log.Last()
	if !ok {
		return ""
	}
	return last.Speaker
}

// History pages the committed log and reports its total length.
func (s *Session) History(offset, limit int) ([]Turn, int) {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.log.Page(offset, limit), s.log.Len()
}

// Log exposes the session's log for read access.
func (s *Session) Log() *Log {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.log
}

// AgentView is a read-only copy of an agent's mutable state.
type AgentView struct {
	Name           string                        `json:"name"`
	Traits         string                        `json:"traits"`
	Role           string                        `json:"role"`
	Topic          string                        `json:"topic"`
	Interests      []string                      `json:"interests"`
	Introversion   float64                       `json:"introversion"`
	Assertiveness  float64                       `json:"assertiveness"`
	EmotionalState int                           `json:"emotional_state"`
	LastSpokenTurn int                           `json:"last_spoken_turn"`
	Relationships  map[string]agent.Relationship `json:"relationships"`
}

// Agents returns views of every agent in registry order.
func (s *Session) Agents() []AgentView {
	s.state.RLock()
	defer s.state.RUnlock()
	views := make([]AgentView, 0, s.registry.Len())
	for _, a := range s.registry.All() {
		views = append(views, viewOf(a))
	}
	return views
}

// Agent returns the view of one agent.
func (s *Session) Agent(name string) (AgentView, bool) {
	s.state.RLock()
	defer s.state.RUnlock()
	a, ok := s.registry.Get(name)
	if !ok {
		return AgentView{}, false
	}
	return viewOf(a), true
}

func viewOf(a *agent.Agent) AgentView {
	rels := make(map[string]agent.Relationship, len(a.Relationships))
	for target, rel := range a.Relationships {
		rels[target] = *rel
	}
	return AgentView{
		Name:           a.Name,
		Traits:         a.Personality.Traits,
		Role:           a.Personality.Role,
		Topic:          a.Personality.Topic,
		Interests:      append([]string(nil), a.Personality.Interests...),
		Introversion:   a.Personality.Introversion,
		Assertiveness:  a.Personality.Assertiveness,
		EmotionalState: a.EmotionalState,
		LastSpokenTurn: a.LastSpokenTurn,
		Relationships:  rels,
	}
}

// AgentState is the persisted mutable state of one agent.
type AgentState struct {
	Name           string                        `json:"name" bson:"name"`
	LastSpokenTurn int                           `json:"last_spoken_turn" bson:"last_spoken_turn"`
	EmotionalState int                           `json:"emotional_state" bson:"emotional_state"`
	Relationships  map[string]agent.Relationship `json:"relationships" bson:"relationships"`
}

// Snapshot is the committed state of a session.
type Snapshot struct {
	SessionID string       `json:"session_id" bson:"session_id"`
	Turn      int          `json:"turn" bson:"turn"`
	Idle      int          `json:"idle" bson:"idle"`
	Agents    []AgentState `json:"agents" bson:"agents"`
	Log       []Turn       `json:"log" bson:"log"`
	SavedAt   time.Time    `json:"saved_at" bson:"saved_at"`
}

// Snapshot captures the committed state.
func (s *Session) Snapshot() Snapshot {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID: s.id,
		Turn:      s.turn,
		Idle:      s.idle,
		Log:       s.log.All(),
		SavedAt:   s.opts.Now(),
	}
	for _, a := range s.registry.All() {
		st := AgentState{
			Name:           a.Name,
			LastSpokenTurn: a.LastSpokenTurn,
			EmotionalState: a.EmotionalState,
			Relationships:  make(map[string]agent.Relationship, len(a.Relationships)),
		}
		for target, rel := range a.Relationships {
			st.Relationships[target] = *rel
		}
		snap.Agents = append(snap.Agents, st)
	}
	return snap
}

// Restore replaces the committed state with snap. Every agent in snap must
// exist in the registry; agents missing from snap keep their current state.
func (s *Session) Restore(snap Snapshot) error {
	s.run.Lock()
	defer s.run.Unlock()

	for _, st := range snap.Agents {
		if _, ok := s.registry.Get(st.Name); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAgent, st.Name)
		}
	}

	s.state.Lock()
	defer s.state.Unlock()
	for _, st := range snap.Agents {
		a, _ := s.registry.Get(st.Name)
		a.LastSpokenTurn = st.LastSpokenTurn
		a.SetEmotionalState(st.EmotionalState)
		a.Relationships = make(map[string]*agent.Relationship, len(st.Relationships))
		targets := make([]string, 0, len(st.Relationships))
		for target := range st.Relationships {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			rel := st.Relationships[target]
			a.Relationships[target] = &agent.Relationship{Bond: agent.Clamp01(rel.Bond), Trust: agent.Clamp01(rel.Trust)}
		}
	}
	s.turn = snap.Turn
	s.idle = snap.Idle
	s.log = NewLog(snap.Log...)
	s.logger.Info("session restored", zap.Int("turn", s.turn), zap.Int("log_len", len(snap.Log)))
	return nil
}

// bounded derives a context limited by the external call timeout.
func (s *Session) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.ExternalTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.ExternalTimeout)
}

// persist hands committed state to the persister. Failures are logged only.
func (s *Session) persist(ctx context.Context, committed []Turn) {
	if s.opts.Persister == nil || len(committed) == 0 {
		return
	}
	snap := s.Snapshot()
	pctx, cancel := s.bounded(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.opts.Persister.Persist(pctx, snap, committed); err != nil {
		s.logger.Warn("persisting session failed", zap.Error(err))
		s.opts.Observer.ExternalFailure("persistence")
	}
}
