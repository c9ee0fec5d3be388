package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryDocument is one long-term memory of an agent, stored with its embedding.
type MemoryDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	SessionID string             `bson:"session_id"`
	AgentID   string             `bson:"agent_id"`
	Text      string             `bson:"text"`
	Embedding []float32          `bson:"embedding"`
	CreatedAt time.Time          `bson:"created_at"`
}

type TurnDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	SessionID string             `bson:"session_id"`
	Index     int                `bson:"index"` // Position in the session log
	Speaker   string             `bson:"speaker"`
	Text      string             `bson:"text"`
	Emotion   string             `bson:"emotion,omitempty"`
	Timestamp time.Time          `bson:"timestamp"`
}

type RelationshipDocument struct {
	Target string  `bson:"target"`
	Bond   float64 `bson:"bond"`
	Trust  float64 `bson:"trust"`
}

type AgentStateDocument struct {
	Name           string                 `bson:"name"`
	LastSpokenTurn int                    `bson:"last_spoken_turn"`
	EmotionalState int                    `bson:"emotional_state"`
	Relationships  []RelationshipDocument `bson:"relationships"`
}

// SessionDocument holds a session's counters and agent state. The log itself
// lives in the turns collection.
type SessionDocument struct {
	SessionID string               `bson:"_id"`
	Turn      int                  `bson:"turn"`
	Idle      int                  `bson:"idle"`
	LogLength int                  `bson:"log_length"`
	Agents    []AgentStateDocument `bson:"agents"`
	UpdatedAt time.Time            `bson:"updated_at"`
}
