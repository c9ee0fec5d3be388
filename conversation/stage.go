package conversation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"roundtable/agent"
	"roundtable/prompts"
)

type relKey struct {
	agent  *agent.Agent
	target string
}

// stage collects every effect of one run. Nothing reaches the agents, the log
// or the counters until commit.
type stage struct {
	turn   int
	idle   int
	turns  []Turn
	kinds  []UtteranceKind
	rels   map[relKey]agent.Relationship
	moods  map[*agent.Agent]int
	spoken map[*agent.Agent]int
}

func (s *Session) newStage() *stage {
	return &stage{
		turn:   s.turn,
		idle:   s.idle,
		rels:   make(map[relKey]agent.Relationship),
		moods:  make(map[*agent.Agent]int),
		spoken: make(map[*agent.Agent]int),
	}
}

func (st *stage) append(t Turn, kind UtteranceKind) {
	st.turns = append(st.turns, t)
	st.kinds = append(st.kinds, kind)
}

func (st *stage) relationship(a *agent.Agent, target string) agent.Relationship {
	if rel, ok := st.rels[relKey{a, target}]; ok {
		return rel
	}
	return a.PeekRelationship(target)
}

func (st *stage) mood(a *agent.Agent) int {
	if m, ok := st.moods[a]; ok {
		return m
	}
	return a.EmotionalState
}

// updateRelationship runs the relationship rules against the staged value.
func (st *stage) updateRelationship(a *agent.Agent, target, text, emotion string) {
	cur := st.relationship(a, target)
	scratch := &agent.Agent{Relationships: map[string]*agent.Relationship{target: &cur}}
	agent.UpdateRelationship(scratch, target, text, emotion)
	st.rels[relKey{a, target}] = cur
}

// commit applies st under the state lock and returns the committed turns.
func (s *Session) commit(st *stage) []Turn {
	s.state.Lock()
	for k, rel := range st.rels {
		*k.agent.Relationship(k.target) = rel
	}
	for a, m := range st.moods {
		a.SetEmotionalState(m)
	}
	for a, turn := range st.spoken {
		a.MarkSpoken(turn)
	}
	for _, t := range st.turns {
		s.log.Append(t)
	}
	s.turn = st.turn
	s.idle = st.idle
	s.state.Unlock()

	for _, kind := range st.kinds {
		s.opts.Observer.TurnCommitted(kind)
	}
	return st.turns
}

type replyRequest struct {
	speaker *agent.Agent
	// target is who the reply is addressed to and whose relationship is updated.
	target string
	// incoming is the text being answered; emotion is its declared emotion.
	incoming    string
	emotion     string
	userEmotion string
}

// stageReply generates speaker's reply and stages the resulting turn,
// relationship updates and emotional state change. On error st is untouched.
func (s *Session) stageReply(ctx context.Context, st *stage, req replyRequest) (string, error) {
	speaker := req.speaker
	logger := s.logger.With(zap.String("agent", speaker.Name))

	recall := ""
	if s.opts.Memory != nil {
		mctx, cancel := s.bounded(ctx)
		recall = s.opts.Memory.Recall(mctx, speaker.Name, req.incoming)
		cancel()
	}

	rel := st.relationship(speaker, req.target)
	rc := prompts.ReplyContext{
		Name:           speaker.Name,
		Persona:        speaker.Personality,
		EmotionalState: st.mood(speaker),
		Target:         req.target,
		Bond:           rel.Bond,
		Trust:          rel.Trust,
		Others:         s.peers(speaker),
		UserEmotion:    req.userEmotion,
		RecentMessage:  req.incoming,
		History:        s.promptHistory(st),
		Recall:         recall,
	}

	gctx, cancel := s.bounded(ctx)
	raw, err := s.generator.GenerateReply(gctx, rc)
	cancel()
	if err != nil {
		s.opts.Observer.GenerationFailed()
		logger.Error("reply generation failed", zap.Error(err))
		return "", fmt.Errorf("%w: agent %s: %w", ErrGeneration, speaker.Name, err)
	}
	reply, wantsUpdate := prompts.ParseEmotionMarker(raw)
	reply = strings.TrimSpace(reply)
	if reply == "" {
		s.opts.Observer.GenerationFailed()
		logger.Error("reply generation returned no text")
		return "", fmt.Errorf("%w: agent %s: empty reply", ErrGeneration, speaker.Name)
	}

	if wantsUpdate && s.opts.Emotions != nil {
		ectx, cancel := s.bounded(ctx)
		reading, err := s.opts.Emotions.AnalyzeEmotion(ectx, speaker.Name, req.incoming)
		cancel()
		if err != nil {
			logger.Warn("emotion analysis failed", zap.Error(err))
			s.opts.Observer.ExternalFailure("emotion")
		} else {
			st.moods[speaker] = agent.ClampEmotionalState(reading.Value)
			logger.Info("emotional state updated",
				zap.Int("value", reading.Value),
				zap.String("description", reading.Description))
		}
	}

	st.append(Turn{Speaker: speaker.Name, Text: reply, At: s.opts.Now()}, KindReply)
	st.spoken[speaker] = st.turn
	st.turn++

	st.updateRelationship(speaker, req.target, req.incoming, req.emotion)
	s.propagate(ctx, st, speaker, reply)
	return reply, nil
}

// propagate updates every listener's relationship toward speaker when the
// utterance names the listener or resonates with its interests.
func (s *Session) propagate(ctx context.Context, st *stage, speaker *agent.Agent, utterance string) {
	var vec []float32
	embedded := false
	for _, listener := range s.registry.Except(speaker.Name) {
		hit := listener.MentionedIn(utterance)
		if !hit {
			if !embedded {
				vec, embedded = s.scorer.Embed(ctx, utterance), true
			}
			hit = MaxSimilarity(vec, listener.InterestVectors) >= s.opts.PropagationThreshold
		}
		if hit {
			st.updateRelationship(listener, speaker.Name, utterance, "")
		}
	}
}

func (s *Session) peers(speaker *agent.Agent) []prompts.Peer {
	others := s.registry.Except(speaker.Name)
	peers := make([]prompts.Peer, len(others))
	for i, o := range others {
		peers[i] = prompts.Peer{Name: o.Name, Traits: o.Traits()}
	}
	return peers
}

// promptHistory is the last HistoryTail turns of the committed log followed by
// the turns staged so far.
func (s *Session) promptHistory(st *stage) []prompts.HistoryLine {
	turns := append(s.log.Tail(s.opts.HistoryTail), st.turns...)
	turns = tail(turns, s.opts.HistoryTail)
	lines := make([]prompts.HistoryLine, len(turns))
	for i, t := range turns {
		lines[i] = prompts.HistoryLine{Speaker: t.Speaker, Text: t.Text}
	}
	return lines
}
