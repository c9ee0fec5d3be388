package conversation

import (
	"context"
	"errors"

	"roundtable/agent"
	"roundtable/prompts"
)

var (
	// ErrGeneration marks a turn aborted because the reply could not be
	// generated. No session state was changed; the call may be retried.
	ErrGeneration = errors.New("reply generation failed")

	ErrEmptyMessage = errors.New("message is empty")
	ErrUnknownAgent = errors.New("unknown agent")
)

// Generator produces an agent's reply for the given prompt context.
type Generator interface {
	GenerateReply(ctx context.Context, rc prompts.ReplyContext) (string, error)
}

// Embedder produces similarity vectors. Failures count as similarity 0.
type Embedder = agent.Embedder

// ImportanceJudge decides whether a user message deserves long-term storage.
// Failures count as "not important".
type ImportanceJudge interface {
	IsImportant(ctx context.Context, text string) (bool, error)
}

// EmotionReading is the outcome of an emotion analysis.
type EmotionReading struct {
	Value       int
	Description string
	Reason      string
}

// EmotionAnalyzer rates the emotional impact of text on an agent.
type EmotionAnalyzer interface {
	AnalyzeEmotion(ctx context.Context, agentName, text string) (EmotionReading, error)
}

// Memory is the best-effort memory interface. Implementations log and swallow
// their own failures; an empty recall is always acceptable.
type Memory interface {
	Recall(ctx context.Context, agentID, query string) string
	RememberShortTerm(ctx context.Context, agentID, role, content string)
	RememberLongTerm(ctx context.Context, agentID string, texts ...string)
}

// Coach writes optional feedback on a user/agent exchange.
type Coach interface {
	Feedback(ctx context.Context, userText, speaker, reply string) (string, error)
}

// Persister stores committed state outside the process. Failures are logged.
type Persister interface {
	Persist(ctx context.Context, snap Snapshot, committed []Turn) error
}

// Observer receives engine events, typically for metrics.
type Observer interface {
	TurnCommitted(kind UtteranceKind)
	SpeakerSelected(reason SelectReason)
	NoResponder()
	GenerationFailed()
	ExternalFailure(service string)
}

type noopObserver struct{}

func (noopObserver) TurnCommitted(UtteranceKind)  {}
func (noopObserver) SpeakerSelected(SelectReason) {}
func (noopObserver) NoResponder()                 {}
func (noopObserver) GenerationFailed()            {}
func (noopObserver) ExternalFailure(string)       {}
