package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"roundtable/agent"
	"roundtable/conversation"
	"roundtable/db/models"
)

// sessionWriter is the write side of the session store.
type sessionWriter interface {
	// savedLength is the log length of the stored session document, 0 when
	// there is none.
	savedLength(ctx context.Context, sessionID string) (int, error)
	upsertTurns(ctx context.Context, docs []models.TurnDocument) error
	saveSession(ctx context.Context, doc models.SessionDocument) error
}

type mongoSessionWriter struct {
	turns    *mongo.Collection
	sessions *mongo.Collection
}

func (w mongoSessionWriter) savedLength(ctx context.Context, sessionID string) (int, error) {
	var doc models.SessionDocument
	opts := options.FindOne().SetProjection(bson.M{"log_length": 1})
	err := w.sessions.FindOne(ctx, bson.M{"_id": sessionID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.LogLength, nil
}

func (w mongoSessionWriter) upsertTurns(ctx context.Context, docs []models.TurnDocument) error {
	writes := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"session_id": doc.SessionID, "index": doc.Index}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	_, err := w.turns.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	return err
}

func (w mongoSessionWriter) saveSession(ctx context.Context, doc models.SessionDocument) error {
	_, err := w.sessions.ReplaceOne(ctx, bson.M{"_id": doc.SessionID}, doc, options.Replace().SetUpsert(true))
	return err
}

// SessionStore archives committed turns and the session state after each run,
// and loads them back on startup.
type SessionStore struct {
	turns    *mongo.Collection
	sessions *mongo.Collection
	writer   sessionWriter
	backoff  time.Duration
	logger   *zap.Logger

	mu sync.Mutex

	// archived is, per session, the log length known to be fully archived.
	archived map[string]int
}

func NewSessionStore(m *Mongo) *SessionStore {
	turns := m.Collection(TurnsCollection)
	sessions := m.Collection(SessionsCollection)
	s := newSessionStore(mongoSessionWriter{turns: turns, sessions: sessions}, m.logger)
	s.turns, s.sessions = turns, sessions
	return s
}

func newSessionStore(w sessionWriter, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		writer:   w,
		backoff:  100 * time.Millisecond,
		logger:   logger.With(zap.String("component", "session_store")),
		archived: make(map[string]int),
	}
}

// Persist upserts every turn past the archived mark by log position, then
// replaces the session document. Turns a failed earlier call left behind are
// written again here. Both writes are idempotent so a retry never duplicates
// turns. The session document is written last, so its log length is always
// fully archived.
func (s *SessionStore) Persist(ctx context.Context, snap conversation.Snapshot, committed []conversation.Turn) error {
	first := len(snap.Log) - len(committed)
	if first < 0 {
		return fmt.Errorf("snapshot log shorter than committed turns")
	}
	from := min(s.archivedMark(ctx, snap.SessionID, len(snap.Log)), first)

	if docs := turnDocuments(snap.SessionID, from, snap.Log[from:]); len(docs) > 0 {
		err := withRetry(ctx, 3, s.backoff, func(ctx context.Context) error {
			return s.writer.upsertTurns(ctx, docs)
		})
		if err != nil {
			return fmt.Errorf("failed to archive turns: %w", err)
		}
	}

	doc := sessionDocument(snap)
	err := withRetry(ctx, 3, s.backoff, func(ctx context.Context) error {
		return s.writer.saveSession(ctx, doc)
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	s.setArchived(snap.SessionID, len(snap.Log))
	return nil
}

// archivedMark returns how much of a log of length logLen is already archived.
// The first call per session asks the stored session document. A stored length
// beyond logLen belongs to an abandoned log, so everything is rewritten.
func (s *SessionStore) archivedMark(ctx context.Context, sessionID string, logLen int) int {
	s.mu.Lock()
	mark, ok := s.archived[sessionID]
	s.mu.Unlock()
	if !ok {
		saved, err := s.writer.savedLength(ctx, sessionID)
		if err != nil {
			s.logger.Warn("failed to read archived length, rewriting the log", zap.Error(err))
			return 0
		}
		mark = saved
	}
	if mark > logLen {
		return 0
	}
	return mark
}

func (s *SessionStore) setArchived(sessionID string, n int) {
	s.mu.Lock()
	s.archived[sessionID] = n
	s.mu.Unlock()
}

// Turns retrieves paginated archived turns in log order. A zero limit returns
// everything from offset on.
func (s *SessionStore) Turns(ctx context.Context, sessionID string, limit, offset int) ([]models.TurnDocument, int64, error) {
	filter := bson.M{"session_id": sessionID}

	total, err := s.turns.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "index", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := s.turns.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var docs []models.TurnDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// LoadSnapshot rebuilds the last persisted state of sessionID. It reports false
// when nothing was saved yet.
func (s *SessionStore) LoadSnapshot(ctx context.Context, sessionID string) (conversation.Snapshot, bool, error) {
	var doc models.SessionDocument
	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return conversation.Snapshot{}, false, nil
	}
	if err != nil {
		return conversation.Snapshot{}, false, fmt.Errorf("failed to load session: %w", err)
	}

	turns, _, err := s.Turns(ctx, sessionID, 0, 0)
	if err != nil {
		return conversation.Snapshot{}, false, fmt.Errorf("failed to load turns: %w", err)
	}
	snap, err := snapshotFromDocuments(doc, turns)
	if err != nil {
		return conversation.Snapshot{}, false, err
	}
	s.setArchived(sessionID, len(snap.Log))
	s.logger.Info("loaded session", zap.String("session_id", sessionID), zap.Int("turns", len(snap.Log)))
	return snap, true, nil
}

func turnDocuments(sessionID string, first int, turns []conversation.Turn) []models.TurnDocument {
	docs := make([]models.TurnDocument, len(turns))
	for i, t := range turns {
		docs[i] = models.TurnDocument{
			SessionID: sessionID,
			Index:     first + i,
			Speaker:   t.Speaker,
			Text:      t.Text,
			Emotion:   t.Emotion,
			Timestamp: t.At,
		}
	}
	return docs
}

func sessionDocument(snap conversation.Snapshot) models.SessionDocument {
	doc := models.SessionDocument{
		SessionID: snap.SessionID,
		Turn:      snap.Turn,
		Idle:      snap.Idle,
		LogLength: len(snap.Log),
		UpdatedAt: snap.SavedAt,
	}
	for _, a := range snap.Agents {
		state := models.AgentStateDocument{
			Name:           a.Name,
			LastSpokenTurn: a.LastSpokenTurn,
			EmotionalState: a.EmotionalState,
		}
		targets := make([]string, 0, len(a.Relationships))
		for target := range a.Relationships {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			rel := a.Relationships[target]
			state.Relationships = append(state.Relationships, models.RelationshipDocument{Target: target, Bond: rel.Bond, Trust: rel.Trust})
		}
		doc.Agents = append(doc.Agents, state)
	}
	return doc
}

// snapshotFromDocuments reassembles a snapshot. Turns archived beyond the
// saved log length belong to a run whose session write failed and are ignored.
func snapshotFromDocuments(doc models.SessionDocument, turns []models.TurnDocument) (conversation.Snapshot, error) {
	snap := conversation.Snapshot{
		SessionID: doc.SessionID,
		Turn:      doc.Turn,
		Idle:      doc.Idle,
		SavedAt:   doc.UpdatedAt,
	}
	for i, t := range turns {
		if t.Index >= doc.LogLength {
			break
		}
		if t.Index != i {
			return conversation.Snapshot{}, fmt.Errorf("turn archive has a gap at index %d", i)
		}
		snap.Log = append(snap.Log, conversation.Turn{Speaker: t.Speaker, Text: t.Text, Emotion: t.Emotion, At: t.Timestamp})
	}
	if len(snap.Log) != doc.LogLength {
		return conversation.Snapshot{}, fmt.Errorf("turn archive holds %d of %d turns", len(snap.Log), doc.LogLength)
	}
	for _, a := range doc.Agents {
		state := conversation.AgentState{
			Name:           a.Name,
			LastSpokenTurn: a.LastSpokenTurn,
			EmotionalState: a.EmotionalState,
			Relationships:  make(map[string]agent.Relationship, len(a.Relationships)),
		}
		for _, rel := range a.Relationships {
			state.Relationships[rel.Target] = agent.Relationship{Bond: rel.Bond, Trust: rel.Trust}
		}
		snap.Agents = append(snap.Agents, state)
	}
	return snap, nil
}
