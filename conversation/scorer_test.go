package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"roundtable/agent"
)

func TestRelevancyScore(t *testing.T) {
	tests := []struct {
		name       string
		relevance  float64
		timeSince  int
		speakDrive float64
		want       float64
	}{
		{"neutral drive", 1, 0, 1, 3},
		{"silent drive halves", 1, 0, 0, 1.5},
		{"max drive", 1, 0, 2, 4.5},
		{"recency adds", 0, 5, 1, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := RelevancyScore(tc.relevance, 0.5, 0.5, tc.timeSince, tc.speakDrive)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestTimeSince_NeverSpokenCountsFromZero(t *testing.T) {
	a := newAgent("Alice", 0.5, 0.5, "chess")
	assert.Equal(t, 7, TimeSince(a, 7))
	a.MarkSpoken(4)
	assert.Equal(t, 3, TimeSince(a, 7))
}

func TestScorer_BlankTextScoresZero(t *testing.T) {
	emb := &topicEmbedder{}
	s := NewScorer(emb, nil, nil)
	a := newAgent("Alice", 0, 1, "chess")
	assert.Zero(t, s.Score(context.Background(), a, agent.UserID, "   ", 10))
	assert.Zero(t, emb.Calls())
}

func TestScorer_EmbeddingFailureCountsAsNoRelevance(t *testing.T) {
	obs := newCountingObserver()
	s := NewScorer(&topicEmbedder{fail: true}, obs, nil)
	a := newAgent("Alice", 0.5, 0.5, "chess")

	got := s.Score(context.Background(), a, agent.UserID, "chess openings", 0)
	assert.InDelta(t, 1.0, got, 1e-9)
	assert.Equal(t, 1, obs.external["embedding"])
}

func TestScorer_MemoizesLastText(t *testing.T) {
	emb := &topicEmbedder{}
	s := NewScorer(emb, nil, nil)
	ctx := context.Background()
	alice := newAgent("Alice", 0.5, 0.5, "chess")
	bob := newAgent("Bob", 0.5, 0.5, "jazz")

	assert.InDelta(t, 3.0, s.Score(ctx, alice, agent.UserID, "chess", 0), 1e-9)
	assert.InDelta(t, 1.0, s.Score(ctx, bob, agent.UserID, "chess", 0), 1e-9)
	assert.Equal(t, 1, emb.Calls())

	s.Score(ctx, bob, agent.UserID, "jazz", 0)
	assert.Equal(t, 2, emb.Calls())
}

func TestScorer_UsesRelationshipTowardLastSpeaker(t *testing.T) {
	s := NewScorer(&topicEmbedder{}, nil, nil)
	a := newAgent("Alice", 0.5, 0.5)
	a.Relationship("Bob").Adjust(0.5, 0.5)

	assert.InDelta(t, 2.0, s.Score(context.Background(), a, "Bob", "hello", 0), 1e-9)
	assert.InDelta(t, 1.0, s.Score(context.Background(), a, "Cara", "hello", 0), 1e-9)
}

func TestProperty_RecencyIsMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		relevance := rapid.Float64Range(0, 1).Draw(t, "relevance")
		bond := rapid.Float64Range(0, 1).Draw(t, "bond")
		trust := rapid.Float64Range(0, 1).Draw(t, "trust")
		drive := rapid.Float64Range(0, 2).Draw(t, "drive")
		older := rapid.IntRange(0, 1000).Draw(t, "older")
		newer := rapid.IntRange(0, older).Draw(t, "newer")

		if RelevancyScore(relevance, bond, trust, older, drive) < RelevancyScore(relevance, bond, trust, newer, drive) {
			t.Fatalf("waiting %d turns scored lower than waiting %d", older, newer)
		}
	})
}
