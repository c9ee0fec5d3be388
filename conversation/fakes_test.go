package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"roundtable/agent"
	"roundtable/prompts"
)

var topics = []string{"chess", "jazz", "cooking", "space", "football"}

// topicVector is a bag-of-topics embedding: one dimension per known topic.
func topicVector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(topics))
	for i, t := range topics {
		if strings.Contains(lower, t) {
			v[i] = 1
		}
	}
	return v
}

type topicEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (e *topicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail {
		return nil, errors.New("embedding service unavailable")
	}
	return topicVector(text), nil
}

func (e *topicEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// hangingEmbedder blocks until its context ends.
type hangingEmbedder struct{}

func (hangingEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newAgent(name string, introversion, assertiveness float64, interests ...string) *agent.Agent {
	vectors := make([][]float32, len(interests))
	for i, in := range interests {
		vectors[i] = topicVector(in)
	}
	return agent.New(name, agent.Personality{
		Traits:        "calm",
		Interests:     interests,
		Introversion:  introversion,
		Assertiveness: assertiveness,
	}, vectors)
}

// scriptedGenerator answers with a per-agent reply or "<name> has thoughts on that.".
type scriptedGenerator struct {
	mu       sync.Mutex
	replies  map[string]string
	err      error
	failFor  string
	requests []prompts.ReplyContext
}

func (g *scriptedGenerator) GenerateReply(_ context.Context, rc prompts.ReplyContext) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, rc)
	if g.err != nil {
		return "", g.err
	}
	if rc.Name == g.failFor {
		return "", errors.New("model overloaded")
	}
	if r, ok := g.replies[rc.Name]; ok {
		return r, nil
	}
	return rc.Name + " has thoughts on that.", nil
}

func (g *scriptedGenerator) lastRequest() prompts.ReplyContext {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

type recordingMemory struct {
	mu     sync.Mutex
	recall string
	short  []string
	long   []string
}

func (m *recordingMemory) Recall(context.Context, string, string) string { return m.recall }

func (m *recordingMemory) RememberShortTerm(_ context.Context, agentID, role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.short = append(m.short, agentID+"|"+role+"|"+content)
}

func (m *recordingMemory) RememberLongTerm(_ context.Context, agentID string, texts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range texts {
		m.long = append(m.long, agentID+"|"+t)
	}
}

type fixedImportance struct {
	important bool
	err       error
}

func (f fixedImportance) IsImportant(context.Context, string) (bool, error) {
	return f.important, f.err
}

type fixedEmotion struct {
	value int
	err   error
}

func (f fixedEmotion) AnalyzeEmotion(context.Context, string, string) (EmotionReading, error) {
	return EmotionReading{Value: f.value, Description: "stirred"}, f.err
}

type fixedCoach struct {
	text string
	err  error
}

func (f fixedCoach) Feedback(context.Context, string, string, string) (string, error) {
	return f.text, f.err
}

type recordingPersister struct {
	mu        sync.Mutex
	snapshots []Snapshot
	committed [][]Turn
	err       error
}

func (p *recordingPersister) Persist(_ context.Context, snap Snapshot, committed []Turn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, snap)
	p.committed = append(p.committed, committed)
	return p.err
}

type countingObserver struct {
	mu          sync.Mutex
	committed   map[UtteranceKind]int
	reasons     map[SelectReason]int
	external    map[string]int
	noResponder int
	genFailed   int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		committed: map[UtteranceKind]int{},
		reasons:   map[SelectReason]int{},
		external:  map[string]int{},
	}
}

func (o *countingObserver) TurnCommitted(kind UtteranceKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.committed[kind]++
}

func (o *countingObserver) SpeakerSelected(reason SelectReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reasons[reason]++
}

func (o *countingObserver) NoResponder() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.noResponder++
}

func (o *countingObserver) GenerationFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.genFailed++
}

func (o *countingObserver) ExternalFailure(service string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.external[service]++
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(gen Generator, embedder Embedder, opts Options, agents ...*agent.Agent) *Session {
	reg, err := agent.NewRegistry(agents...)
	if err != nil {
		panic(err)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return NewSession("test", reg, gen, embedder, opts)
}

// trio is Alice (chess), Bob (jazz) and Cara (cooking) with neutral personalities.
func trio() []*agent.Agent {
	return []*agent.Agent{
		newAgent("Alice", 0.5, 0.5, "chess"),
		newAgent("Bob", 0.5, 0.5, "jazz"),
		newAgent("Cara", 0.5, 0.5, "cooking"),
	}
}
