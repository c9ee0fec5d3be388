package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtable/agent"
	"roundtable/conversation"
	"roundtable/db/models"
)

func TestWithRetry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := withRetry(ctx, 3, time.Hour, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func sampleSnapshot() conversation.Snapshot {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return conversation.Snapshot{
		SessionID: "s1",
		Turn:      2,
		Idle:      1,
		SavedAt:   at,
		Log: []conversation.Turn{
			{Speaker: agent.UserID, Text: "hi all", Emotion: "happy", At: at},
			{Speaker: "Alice", Text: "hello!", At: at},
			{Speaker: "Bob", Text: "hey", At: at},
		},
		Agents: []conversation.AgentState{
			{
				Name:           "Alice",
				LastSpokenTurn: 0,
				EmotionalState: 6,
				Relationships: map[string]agent.Relationship{
					agent.UserID: {Bond: 0.55, Trust: 0.53},
					"Bob":        {Bond: 0.5, Trust: 0.5},
				},
			},
			{Name: "Bob", LastSpokenTurn: 1, EmotionalState: 5, Relationships: map[string]agent.Relationship{}},
		},
	}
}

func TestSnapshotDocumentsRoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	doc := sessionDocument(snap)
	assert.Equal(t, 3, doc.LogLength)
	require.Len(t, doc.Agents[0].Relationships, 2)
	assert.Equal(t, "Bob", doc.Agents[0].Relationships[0].Target)

	turns := turnDocuments(snap.SessionID, 0, snap.Log)
	got, err := snapshotFromDocuments(doc, turns)
	require.NoError(t, err)
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotFromDocuments_IgnoresUncommittedTail(t *testing.T) {
	snap := sampleSnapshot()
	doc := sessionDocument(snap)
	turns := turnDocuments(snap.SessionID, 0, append(snap.Log, conversation.Turn{Speaker: "Cara", Text: "late"}))

	got, err := snapshotFromDocuments(doc, turns)
	require.NoError(t, err)
	assert.Len(t, got.Log, 3)
}

func TestSnapshotFromDocuments_DetectsGaps(t *testing.T) {
	snap := sampleSnapshot()
	doc := sessionDocument(snap)
	turns := turnDocuments(snap.SessionID, 0, snap.Log)

	_, err := snapshotFromDocuments(doc, append(turns[:1:1], turns[2]))
	assert.ErrorContains(t, err, "gap")

	_, err = snapshotFromDocuments(doc, turns[:2])
	assert.ErrorContains(t, err, "2 of 3")
}

func TestTurnDocumentsIndexFromFirst(t *testing.T) {
	docs := turnDocuments("s1", 7, []conversation.Turn{{Speaker: "A"}, {Speaker: "B"}})
	assert.Equal(t, 7, docs[0].Index)
	assert.Equal(t, 8, docs[1].Index)
	assert.Equal(t, "s1", docs[1].SessionID)
}

func TestMemoryEntriesOldestFirst(t *testing.T) {
	docs := []models.MemoryDocument{{Text: "newest"}, {Text: "middle"}, {Text: "oldest"}}
	entries := memoryEntries(docs)
	assert.Equal(t, "oldest", entries[0].Text)
	assert.Equal(t, "newest", entries[2].Text)
}

type fakeSessionWriter struct {
	mu         sync.Mutex
	turns      map[int]models.TurnDocument
	session    *models.SessionDocument
	failTurns  bool
	lengthErr  error
	lengthRead int
}

func newFakeSessionWriter() *fakeSessionWriter {
	return &fakeSessionWriter{turns: map[int]models.TurnDocument{}}
}

func (w *fakeSessionWriter) savedLength(context.Context, string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lengthRead++
	if w.lengthErr != nil {
		return 0, w.lengthErr
	}
	if w.session == nil {
		return 0, nil
	}
	return w.session.LogLength, nil
}

func (w *fakeSessionWriter) upsertTurns(_ context.Context, docs []models.TurnDocument) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failTurns {
		return errors.New("connection reset")
	}
	for _, d := range docs {
		w.turns[d.Index] = d
	}
	return nil
}

func (w *fakeSessionWriter) saveSession(_ context.Context, doc models.SessionDocument) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.session = &doc
	return nil
}

// restore rebuilds the snapshot the way LoadSnapshot does.
func (w *fakeSessionWriter) restore() (conversation.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	docs := make([]models.TurnDocument, 0, len(w.turns))
	for _, d := range w.turns {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Index < docs[j].Index })
	return snapshotFromDocuments(*w.session, docs)
}

func growingLog(n int) []conversation.Turn {
	speakers := []string{agent.UserID, "Alice"}
	log := make([]conversation.Turn, n)
	for i := range log {
		log[i] = conversation.Turn{Speaker: speakers[i%2], Text: fmt.Sprintf("line %d", i)}
	}
	return log
}

func persistRun(t *testing.T, store *SessionStore, n int) error {
	t.Helper()
	log := growingLog(n)
	snap := conversation.Snapshot{SessionID: "s1", Turn: n / 2, Log: log}
	return store.Persist(context.Background(), snap, log[n-2:])
}

func TestSessionStore_PersistRecoversFromFailedRun(t *testing.T) {
	w := newFakeSessionWriter()
	store := newSessionStore(w, nil)
	store.backoff = time.Millisecond

	require.NoError(t, persistRun(t, store, 2))

	w.failTurns = true
	require.Error(t, persistRun(t, store, 4))
	assert.Equal(t, 2, w.session.LogLength)

	w.failTurns = false
	require.NoError(t, persistRun(t, store, 6))

	snap, err := w.restore()
	require.NoError(t, err)
	require.Len(t, snap.Log, 6)
	assert.Equal(t, "line 2", snap.Log[2].Text)
	assert.Equal(t, "line 5", snap.Log[5].Text)
}

func TestSessionStore_ArchivedMarkFromStoredSession(t *testing.T) {
	w := newFakeSessionWriter()
	first := newSessionStore(w, nil)
	require.NoError(t, persistRun(t, first, 2))
	require.NoError(t, persistRun(t, first, 4))
	assert.Equal(t, 1, w.lengthRead)

	// A new process resumes from the stored length and skips what is archived.
	delete(w.turns, 1)
	second := newSessionStore(w, nil)
	require.NoError(t, persistRun(t, second, 6))
	assert.NotContains(t, w.turns, 1)
	assert.Contains(t, w.turns, 4)
	assert.Equal(t, 2, w.lengthRead)
}

func TestSessionStore_RewritesWhenMarkUnknown(t *testing.T) {
	w := newFakeSessionWriter()
	w.lengthErr = errors.New("timeout")
	store := newSessionStore(w, nil)

	require.NoError(t, persistRun(t, store, 4))
	assert.Len(t, w.turns, 4)

	// A stored length beyond the current log belongs to an abandoned log.
	w.lengthErr = nil
	w.session.LogLength = 10
	fresh := newSessionStore(w, nil)
	require.NoError(t, persistRun(t, fresh, 2))
	snap, err := w.restore()
	require.NoError(t, err)
	assert.Len(t, snap.Log, 2)
}
