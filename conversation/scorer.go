package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"roundtable/agent"
)

const (
	relevanceWeight = 2.0
	recencyWeight   = 0.2
)

// RelevancyScore combines the score terms:
//
//	base  = relevance*2 + bond + trust + timeSince*0.2
//	score = base * (0.5 + 0.5*speakDrive)
func RelevancyScore(relevance, bond, trust float64, timeSince int, speakDrive float64) float64 {
	base := relevance*relevanceWeight + bond + trust + float64(timeSince)*recencyWeight
	return base * (0.5 + 0.5*speakDrive)
}

// TimeSince is the number of turns since a last spoke. An agent that never
// spoke counts from turn 0.
func TimeSince(a *agent.Agent, turn int) int {
	last := a.LastSpokenTurn
	if last == agent.NeverSpoken {
		last = 0
	}
	return turn - last
}

// Scorer computes how much an agent wants to speak next.
type Scorer struct {
	embedder Embedder
	observer Observer
	logger   *zap.Logger
	// timeout bounds each embedding call. Zero means no extra bound.
	timeout  time.Duration

	mu       sync.Mutex
	memoText string
	memoVec  []float32
}

func NewScorer(embedder Embedder, observer Observer, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Scorer{
		embedder: embedder,
		observer: observer,
		logger:   logger.With(zap.String("component", "scorer")),
	}
}

// Score is the relevancy of a to lastText said by lastSpeaker at the given
// turn counter. Blank text scores 0.
func (s *Scorer) Score(ctx context.Context, a *agent.Agent, lastSpeaker, lastText string, turn int) float64 {
	if strings.TrimSpace(lastText) == "" {
		return 0
	}
	return s.scoreVector(a, lastSpeaker, s.Embed(ctx, lastText), turn)
}

func (s *Scorer) scoreVector(a *agent.Agent, lastSpeaker string, vec []float32, turn int) float64 {
	rel := a.PeekRelationship(lastSpeaker)
	return RelevancyScore(
		MaxSimilarity(vec, a.InterestVectors),
		rel.Bond,
		rel.Trust,
		TimeSince(a, turn),
		a.SpeakDrive(),
	)
}

// Embed returns the vector for text, or nil when the embedder fails. The most
// recent successful embedding is memoized since the same utterance is scored
// against every agent.
func (s *Scorer) Embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil {
		return nil
	}
	s.mu.Lock()
	if s.memoVec != nil && s.memoText == text {
		vec := s.memoVec
		s.mu.Unlock()
		return vec
	}
	s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("embedding failed, treating similarity as 0", zap.Error(err))
		s.observer.ExternalFailure("embedding")
		return nil
	}

	s.mu.Lock()
	s.memoText, s.memoVec = text, vec
	s.mu.Unlock()
	return vec
}
