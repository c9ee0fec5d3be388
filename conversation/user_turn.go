package conversation

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"roundtable/agent"
)

// UtteranceKind classifies committed turns.
type UtteranceKind string

const (
	KindUser  UtteranceKind = "user"
	KindReply UtteranceKind = "reply"
	KindNudge UtteranceKind = "nudge"
)

// UserTurnResult is the outcome of ProcessUserMessage. Responded is false when
// no agent was eligible to answer.
type UserTurnResult struct {
	Responded bool
	Speaker   string
	Text      string
	Feedback  string
}

// ProcessUserMessage records a user message and lets the best placed agent
// answer it. When generation fails nothing is committed and the returned error
// wraps ErrGeneration.
func (s *Session) ProcessUserMessage(ctx context.Context, text, emotion string) (UserTurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return UserTurnResult{}, ErrEmptyMessage
	}
	emotion = strings.ToLower(strings.TrimSpace(emotion))

	s.run.Lock()
	defer s.run.Unlock()

	st := s.newStage()
	st.idle = 0
	st.append(Turn{Speaker: agent.UserID, Text: text, Emotion: emotion, At: s.opts.Now()}, KindUser)

	important := s.isImportant(ctx, text)
	if important {
		s.rememberLongTerm(ctx, agent.UserID, text)
	}

	sel := s.selector.Select(ctx, agent.UserID, text, s.registry.All(), st.turn)
	if sel.Agent == nil {
		s.opts.Observer.NoResponder()
		s.logger.Info("no agent available to respond")
		s.persist(ctx, s.commit(st))
		return UserTurnResult{}, nil
	}
	s.opts.Observer.SpeakerSelected(sel.Reason)
	s.logger.Info("speaker selected",
		zap.String("agent", sel.Agent.Name),
		zap.String("reason", string(sel.Reason)),
		zap.Any("scores", sel.Scores))

	reply, err := s.stageReply(ctx, st, replyRequest{
		speaker:     sel.Agent,
		target:      agent.UserID,
		incoming:    text,
		emotion:     emotion,
		userEmotion: emotion,
	})
	if err != nil {
		return UserTurnResult{}, err
	}
	s.persist(ctx, s.commit(st))

	name := sel.Agent.Name
	if s.opts.Memory != nil {
		s.opts.Memory.RememberShortTerm(ctx, name, "user", text)
		s.opts.Memory.RememberShortTerm(ctx, name, name, reply)
	}
	if important {
		s.rememberLongTerm(ctx, name, reply)
	}

	return UserTurnResult{
		Responded: true,
		Speaker:   name,
		Text:      reply,
		Feedback:  s.feedback(ctx, text, name, reply),
	}, nil
}

func (s *Session) isImportant(ctx context.Context, text string) bool {
	if s.opts.Importance == nil {
		return false
	}
	ictx, cancel := s.bounded(ctx)
	defer cancel()
	important, err := s.opts.Importance.IsImportant(ictx, text)
	if err != nil {
		s.logger.Warn("importance check failed, treating as not important", zap.Error(err))
		s.opts.Observer.ExternalFailure("importance")
		return false
	}
	return important
}

func (s *Session) rememberLongTerm(ctx context.Context, agentID, text string) {
	if s.opts.Memory == nil {
		return
	}
	s.opts.Memory.RememberLongTerm(ctx, agentID, text)
}

func (s *Session) feedback(ctx context.Context, userText, speaker, reply string) string {
	if s.opts.Coach == nil {
		return ""
	}
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	fb, err := s.opts.Coach.Feedback(cctx, userText, speaker, reply)
	if err != nil {
		s.logger.Warn("coach feedback failed", zap.Error(err))
		s.opts.Observer.ExternalFailure("coach")
		return ""
	}
	return strings.TrimSpace(fb)
}
