package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"roundtable/agent"
	"roundtable/conversation"
)

// LongTerm is a per-agent store of durable memories searchable by meaning.
type LongTerm interface {
	Add(ctx context.Context, agentID string, texts ...string) error
	Search(ctx context.Context, agentID, query string, k int) ([]string, error)
}

// Entry is one stored memory with its embedding.
type Entry struct {
	Text   string
	Vector []float32
	At     time.Time
}

// Scored pairs a memory text with its similarity to a query.
type Scored struct {
	Text  string
	Score float64
}

// TopK ranks entries by cosine similarity to query, best first. Entries with
// equal scores keep their stored order.
func TopK(query []float32, entries []Entry, k int) []Scored {
	scored := make([]Scored, 0, len(entries))
	for _, e := range entries {
		scored = append(scored, Scored{Text: e.Text, Score: conversation.Cosine(query, e.Vector)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k >= 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// VectorStore is an in-process LongTerm backed by an embedder.
type VectorStore struct {
	embedder agent.Embedder
	now      func() time.Time

	mu      sync.RWMutex
	buckets map[string][]Entry
}

func NewVectorStore(embedder agent.Embedder) *VectorStore {
	return &VectorStore{embedder: embedder, now: time.Now, buckets: make(map[string][]Entry)}
}

func (v *VectorStore) Add(ctx context.Context, agentID string, texts ...string) error {
	entries := make([]Entry, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		vec, err := v.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("failed to embed memory: %w", err)
		}
		entries = append(entries, Entry{Text: text, Vector: vec, At: v.now()})
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.buckets[agentID] = append(v.buckets[agentID], entries...)
	return nil
}

func (v *VectorStore) Search(ctx context.Context, agentID, query string, k int) ([]string, error) {
	v.mu.RLock()
	entries := append([]Entry(nil), v.buckets[agentID]...)
	v.mu.RUnlock()
	if len(entries) == 0 || k <= 0 {
		return nil, nil
	}

	vec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits := TopK(vec, entries, k)
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts, nil
}
