package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"roundtable/agent"
)

// Options configures a Manager.
type Options struct {
	// RecallK is how many long-term memories each bucket contributes.
	RecallK int
	// RecentLines is how many short-term lines are included in a recall.
	RecentLines int
	Writer      *AsyncWriter
	Logger      *zap.Logger
	Now         func() time.Time
}

// Manager combines short- and long-term memory behind the engine's best-effort
// memory interface. Failures are logged and never returned.
type Manager struct {
	short  ShortTerm
	long   LongTerm
	opts   Options
	logger *zap.Logger
}

func NewManager(short ShortTerm, long LongTerm, opts Options) *Manager {
	if opts.RecallK <= 0 {
		opts.RecallK = 3
	}
	if opts.RecentLines < 0 {
		opts.RecentLines = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		short:  short,
		long:   long,
		opts:   opts,
		logger: opts.Logger.With(zap.String("component", "memory")),
	}
}

// Recall renders the memories relevant to query for agentID: long-term hits
// from the agent's own bucket and the shared user bucket, then recent lines.
func (m *Manager) Recall(ctx context.Context, agentID, query string) string {
	var hits []string
	seen := map[string]bool{}
	if m.long != nil && strings.TrimSpace(query) != "" {
		for _, bucket := range []string{agentID, agent.UserID} {
			found, err := m.long.Search(ctx, bucket, query, m.opts.RecallK)
			if err != nil {
				m.logger.Warn("long-term search failed", zap.String("bucket", bucket), zap.Error(err))
				continue
			}
			for _, text := range found {
				if !seen[text] {
					seen[text] = true
					hits = append(hits, text)
				}
			}
		}
	}

	var recent []Line
	if m.short != nil && m.opts.RecentLines > 0 {
		lines, err := m.short.Recent(ctx, agentID, m.opts.RecentLines)
		if err != nil {
			m.logger.Warn("short-term read failed", zap.String("agent", agentID), zap.Error(err))
		}
		recent = lines
	}

	return FormatRecall(hits, recent)
}

// FormatRecall renders memory hits and recent lines as the prompt's recall block.
func FormatRecall(hits []string, recent []Line) string {
	var b strings.Builder
	if len(hits) > 0 {
		b.WriteString("Relevant memories:")
		for _, h := range hits {
			b.WriteString("\n• " + h)
		}
	}
	if len(recent) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Recent exchanges:")
		for _, l := range recent {
			fmt.Fprintf(&b, "\n- %s: %s", l.Role, l.Content)
		}
	}
	return b.String()
}

func (m *Manager) RememberShortTerm(ctx context.Context, agentID, role, content string) {
	if m.short == nil {
		return
	}
	line := Line{Role: role, Content: content, At: m.opts.Now()}
	m.write(ctx, "short_term", func(ctx context.Context) error {
		return m.short.Append(ctx, agentID, line)
	})
}

func (m *Manager) RememberLongTerm(ctx context.Context, agentID string, texts ...string) {
	if m.long == nil || len(texts) == 0 {
		return
	}
	texts = append([]string(nil), texts...)
	m.write(ctx, "long_term", func(ctx context.Context) error {
		return m.long.Add(ctx, agentID, texts...)
	})
}

// write runs fn on the async writer when one is configured, inline otherwise.
func (m *Manager) write(ctx context.Context, name string, fn func(context.Context) error) {
	if m.opts.Writer != nil {
		m.opts.Writer.Submit(name, fn)
		return
	}
	if err := fn(ctx); err != nil {
		m.logger.Warn("memory write failed", zap.String("kind", name), zap.Error(err))
	}
}
