package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"roundtable/agent"
	"roundtable/db/models"
	"roundtable/memory"
)

// MemoryRepository is a MongoDB-backed long-term memory. Embeddings are
// computed on write and ranked in process on read.
type MemoryRepository struct {
	collection *mongo.Collection
	sessionID  string
	embedder   agent.Embedder
	// scanLimit bounds how many of the newest memories a search ranks.
	scanLimit int64
	now       func() time.Time
}

func NewMemoryRepository(m *Mongo, sessionID string, embedder agent.Embedder, scanLimit int) *MemoryRepository {
	if scanLimit <= 0 {
		scanLimit = 500
	}
	return &MemoryRepository{
		collection: m.Collection(MemoriesCollection),
		sessionID:  sessionID,
		embedder:   embedder,
		scanLimit:  int64(scanLimit),
		now:        time.Now,
	}
}

func (r *MemoryRepository) Add(ctx context.Context, agentID string, texts ...string) error {
	docs := make([]interface{}, 0, len(texts))
	for _, text := range texts {
		// Skip empty memories, they only dilute the ranking
		if strings.TrimSpace(text) == "" {
			continue
		}
		vec, err := r.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("failed to embed memory: %w", err)
		}
		docs = append(docs, models.MemoryDocument{
			SessionID: r.sessionID,
			AgentID:   agentID,
			Text:      text,
			Embedding: vec,
			CreatedAt: r.now(),
		})
	}
	if len(docs) == 0 {
		return nil
	}

	return withRetry(ctx, 3, 100*time.Millisecond, func(ctx context.Context) error {
		_, err := r.collection.InsertMany(ctx, docs)
		return err
	})
}

func (r *MemoryRepository) Search(ctx context.Context, agentID, query string, k int) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(r.scanLimit)

	cursor, err := r.collection.Find(ctx, bson.M{"session_id": r.sessionID, "agent_id": agentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.MemoryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits := memory.TopK(vec, memoryEntries(docs), k)
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts, nil
}

// memoryEntries converts newest-first documents to oldest-first entries.
func memoryEntries(docs []models.MemoryDocument) []memory.Entry {
	entries := make([]memory.Entry, len(docs))
	for i, d := range docs {
		entries[len(docs)-1-i] = memory.Entry{Text: d.Text, Vector: d.Embedding, At: d.CreatedAt}
	}
	return entries
}
