package conversation

import (
	"sync"
	"time"
)

// Turn is one entry of the conversation log. Emotion is only set on user turns.
type Turn struct {
	Speaker string    `json:"speaker" bson:"speaker"`
	Text    string    `json:"text" bson:"text"`
	Emotion string    `json:"emotion,omitempty" bson:"emotion,omitempty"`
	At      time.Time `json:"at" bson:"at"`
}

// Log is the append-only, ordered record of a session's turns.
type Log struct {
	mu    sync.RWMutex
	turns []Turn
}

func NewLog(turns ...Turn) *Log {
	return &Log{turns: append([]Turn(nil), turns...)}
}

// Append adds t and returns its index.
func (l *Log) Append(t Turn) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, t)
	return len(l.turns) - 1
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Last returns the most recent turn.
func (l *Log) Last() (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}

// Tail returns the last n turns, or the whole log when it is shorter.
func (l *Log) Tail(n int) []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return tail(l.turns, n)
}

// Page returns up to limit turns starting at offset.
func (l *Log) Page(offset, limit int) []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(l.turns) || limit <= 0 {
		return []Turn{}
	}
	end := offset + limit
	if end > len(l.turns) {
		end = len(l.turns)
	}
	return append([]Turn(nil), l.turns[offset:end]...)
}

// All returns a copy of every turn in order.
func (l *Log) All() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Turn(nil), l.turns...)
}

func tail(turns []Turn, n int) []Turn {
	if n <= 0 {
		return []Turn{}
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]Turn(nil), turns...)
}
