package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Line is one remembered utterance.
type Line struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// ShortTerm keeps a bounded window of recent lines per agent.
type ShortTerm interface {
	Append(ctx context.Context, agentID string, line Line) error
	Recent(ctx context.Context, agentID string, n int) ([]Line, error)
}

// RedisShortTerm stores each agent's window as a capped Redis list.
type RedisShortTerm struct {
	client redis.Cmdable
	prefix string
	window int
	ttl    time.Duration
}

func NewRedisShortTerm(client redis.Cmdable, prefix string, window int, ttl time.Duration) *RedisShortTerm {
	if window <= 0 {
		window = 20
	}
	return &RedisShortTerm{client: client, prefix: prefix, window: window, ttl: ttl}
}

func (r *RedisShortTerm) key(agentID string) string {
	return fmt.Sprintf("%s:shortterm:list:%s", r.prefix, agentID)
}

func (r *RedisShortTerm) Append(ctx context.Context, agentID string, line Line) error {
	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("failed to marshal line: %w", err)
	}
	key := r.key(agentID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-r.window), -1)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append short-term memory: %w", err)
	}
	return nil
}

func (r *RedisShortTerm) Recent(ctx context.Context, agentID string, n int) ([]Line, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := r.client.LRange(ctx, r.key(agentID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read short-term memory: %w", err)
	}
	lines := make([]Line, 0, len(raw))
	for _, item := range raw {
		var line Line
		if err := json.Unmarshal([]byte(item), &line); err != nil {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// InMemoryShortTerm is the process-local ShortTerm used when Redis is not configured.
type InMemoryShortTerm struct {
	mu     sync.Mutex
	window int
	lines  map[string][]Line
}

func NewInMemoryShortTerm(window int) *InMemoryShortTerm {
	if window <= 0 {
		window = 20
	}
	return &InMemoryShortTerm{window: window, lines: make(map[string][]Line)}
}

func (m *InMemoryShortTerm) Append(_ context.Context, agentID string, line Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := append(m.lines[agentID], line)
	if len(lines) > m.window {
		lines = append([]Line(nil), lines[len(lines)-m.window:]...)
	}
	m.lines[agentID] = lines
	return nil
}

func (m *InMemoryShortTerm) Recent(_ context.Context, agentID string, n int) ([]Line, error) {
	if n <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.lines[agentID]
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	return append([]Line(nil), lines...), nil
}
