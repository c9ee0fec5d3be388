package conversation

import (
	"context"

	"go.uber.org/zap"

	"roundtable/agent"
	"roundtable/prompts"
)

// Utterance is one agent turn produced by an idle cycle.
type Utterance struct {
	Speaker string        `json:"speaker"`
	Text    string        `json:"text"`
	Kind    UtteranceKind `json:"kind"`
}

// ProcessIdleTick counts one idle poll. Below the threshold it returns no
// utterances. When the threshold is reached the counter resets and the agents
// talk among themselves, followed by a nudge toward the user from the agent
// that has waited longest.
//
// A generation failure ends the cycle early: the replies produced before it
// are committed and returned along with an error wrapping ErrGeneration.
func (s *Session) ProcessIdleTick(ctx context.Context) ([]Utterance, error) {
	s.run.Lock()
	defer s.run.Unlock()

	idle := s.idle + 1
	if idle < s.opts.IdleThreshold {
		s.state.Lock()
		s.idle = idle
		s.state.Unlock()
		return nil, nil
	}

	s.state.Lock()
	s.idle = 0
	s.state.Unlock()

	prevSpeaker, prevText := agent.UserID, ""
	if last, ok := s.log.Last(); ok {
		prevSpeaker, prevText = last.Speaker, last.Text
	}
	s.logger.Info("idle threshold reached", zap.String("previous_speaker", prevSpeaker))

	st := s.newStage()
	scheduled := s.schedule(ctx, prevSpeaker, prevText, st.turn)
	userEmotion := s.lastUserEmotion()

	var out []Utterance
	spoke := map[*agent.Agent]bool{}
	cycleStart := prevSpeaker
	for _, a := range scheduled {
		reply, err := s.stageReply(ctx, st, replyRequest{
			speaker:     a,
			target:      prevSpeaker,
			incoming:    prevText,
			userEmotion: userEmotion,
		})
		if err != nil {
			s.persist(ctx, s.commit(st))
			return out, err
		}
		out = append(out, Utterance{Speaker: a.Name, Text: reply, Kind: KindReply})
		spoke[a] = true
		prevSpeaker, prevText = a.Name, reply
		if s.opts.Memory != nil {
			s.opts.Memory.RememberShortTerm(ctx, a.Name, a.Name, reply)
		}
	}

	if n := s.nudger(cycleStart, spoke); n != nil {
		text := prompts.Nudge(n.Name)
		st.append(Turn{Speaker: n.Name, Text: text, At: s.opts.Now()}, KindNudge)
		st.spoken[n] = st.turn
		st.turn++
		out = append(out, Utterance{Speaker: n.Name, Text: text, Kind: KindNudge})
		s.logger.Info("nudging user", zap.String("agent", n.Name))
	}

	s.persist(ctx, s.commit(st))
	return out, nil
}

// schedule picks the agents that speak autonomously this cycle.
func (s *Session) schedule(ctx context.Context, prevSpeaker, prevText string, turn int) []*agent.Agent {
	if a := DetectAddressed(prevText, s.registry.All(), prevSpeaker); a != nil {
		s.opts.Observer.SpeakerSelected(ReasonAddressed)
		return []*agent.Agent{a}
	}

	var scheduled []*agent.Agent
	exclude := []string{}
	for len(scheduled) < s.opts.MaxAutonomousTurns {
		sel := s.selector.Select(ctx, prevSpeaker, prevText, s.registry.Except(exclude...), turn)
		if sel.Agent == nil {
			break
		}
		s.opts.Observer.SpeakerSelected(sel.Reason)
		scheduled = append(scheduled, sel.Agent)
		exclude = append(exclude, sel.Agent.Name)
	}
	return scheduled
}

// nudger is the agent with the smallest LastSpokenTurn among those that did
// not speak this cycle and did not speak last before it. Ties go to registry
// order.
func (s *Session) nudger(prevSpeaker string, spoke map[*agent.Agent]bool) *agent.Agent {
	var pick *agent.Agent
	for _, a := range s.registry.Except(prevSpeaker) {
		if spoke[a] {
			continue
		}
		if pick == nil || a.LastSpokenTurn < pick.LastSpokenTurn {
			pick = a
		}
	}
	return pick
}

func (s *Session) lastUserEmotion() string {
	turns := s.log.All()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Speaker == agent.UserID {
			return turns[i].Emotion
		}
	}
	return ""
}
