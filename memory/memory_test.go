package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var vocabulary = []string{"jazz", "dog", "birthday", "chess", "paris"}

type wordEmbedder struct {
	fail bool
}

func (e wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedder down")
	}
	lower := strings.ToLower(text)
	v := make([]float32, len(vocabulary))
	for i, w := range vocabulary {
		if strings.Contains(lower, w) {
			v[i] = 1
		}
	}
	return v, nil
}

func TestTopK(t *testing.T) {
	entries := []Entry{
		{Text: "a", Vector: []float32{1, 0}},
		{Text: "b", Vector: []float32{0, 1}},
		{Text: "c", Vector: []float32{1, 1}},
		{Text: "d", Vector: []float32{1, 0}},
	}
	got := TopK([]float32{1, 0}, entries, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Text)
	assert.Equal(t, "d", got[1].Text)
	assert.Equal(t, "c", got[2].Text)
}

func TestVectorStore_SearchesPerBucket(t *testing.T) {
	store := NewVectorStore(wordEmbedder{})
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, "User", "my dog is called Rex", "I was born in Paris", ""))
	require.NoError(t, store.Add(ctx, "Bob", "I played jazz all night"))

	hits, err := store.Search(ctx, "User", "tell me about your dog", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"my dog is called Rex"}, hits)

	hits, err = store.Search(ctx, "Alice", "dog", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorStore_EmbedFailure(t *testing.T) {
	store := NewVectorStore(wordEmbedder{fail: true})
	assert.Error(t, store.Add(context.Background(), "User", "hello"))
}

func TestHeuristicImportance(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"My name is Priya", true},
		{"my sister just got married", true},
		{"I'm allergic to peanuts", true},
		{"Please remember I prefer tea", true},
		{"I'm going to Lisbon next week", true},
		{"it's my birthday tomorrow", true},
		{"ok", false},
		{"what do you think about chess?", false},
		{"   ", false},
	}
	h := NewHeuristicImportance(nil, nil)
	for _, tc := range tests {
		got, err := h.IsImportant(context.Background(), tc.text)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.text)
	}
}

type stubJudge struct {
	answer bool
	err    error
	calls  int
}

func (s *stubJudge) IsImportant(context.Context, string) (bool, error) {
	s.calls++
	return s.answer, s.err
}

func TestHeuristicImportance_Fallback(t *testing.T) {
	judge := &stubJudge{answer: true}
	h := NewHeuristicImportance(judge, nil)

	got, _ := h.IsImportant(context.Background(), "My name is Priya")
	assert.True(t, got)
	assert.Zero(t, judge.calls)

	got, _ = h.IsImportant(context.Background(), "the weather is odd")
	assert.True(t, got)
	assert.Equal(t, 1, judge.calls)

	judge.err = errors.New("quota")
	got, err := h.IsImportant(context.Background(), "the weather is odd")
	assert.NoError(t, err)
	assert.False(t, got)
}

type failureCounts struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *failureCounts) ExternalFailure(service string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[service]++
}

func TestAsyncWriter_DrainsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &failureCounts{}
	w := NewAsyncWriter(8, time.Second, rec, nil)
	var mu sync.Mutex
	var done []string
	for _, name := range []string{"a", "b", "c"} {
		require.True(t, w.Submit(name, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			done = append(done, name)
			return nil
		}))
	}
	require.True(t, w.Submit("bad", func(context.Context) error { return errors.New("boom") }))
	w.Close()
	w.Close()

	assert.Equal(t, []string{"a", "b", "c"}, done)
	assert.Equal(t, int64(1), w.failed.Load())
	assert.Equal(t, map[string]int{"memory": 1}, rec.counts)
	assert.False(t, w.Submit("late", func(context.Context) error { return nil }))
}

func TestAsyncWriter_DropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &failureCounts{}
	w := NewAsyncWriter(1, 0, rec, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, w.Submit("block", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.True(t, w.Submit("queued", func(context.Context) error { return nil }))
	assert.False(t, w.Submit("dropped", func(context.Context) error { return nil }))
	assert.Equal(t, int64(1), w.dropped.Load())
	assert.Equal(t, 1, rec.counts["memory_queue"])

	close(release)
	w.Close()
}

func TestManager_RecallAndRemember(t *testing.T) {
	short := NewInMemoryShortTerm(10)
	long := NewVectorStore(wordEmbedder{})
	m := NewManager(short, long, Options{RecallK: 3, RecentLines: 2})
	ctx := context.Background()

	m.RememberLongTerm(ctx, "User", "my dog is called Rex")
	m.RememberLongTerm(ctx, "Bob", "my dog is called Rex", "jazz on Fridays")
	m.RememberShortTerm(ctx, "Bob", "user", "hi Bob")
	m.RememberShortTerm(ctx, "Bob", "Bob", "hey there")

	got := m.Recall(ctx, "Bob", "how is the dog?")
	assert.Equal(t, "Relevant memories:\n• my dog is called Rex\n• jazz on Fridays\nRecent exchanges:\n- user: hi Bob\n- Bob: hey there", got)
}

func TestManager_RecallFailuresAreEmpty(t *testing.T) {
	m := NewManager(nil, NewVectorStore(wordEmbedder{fail: true}), Options{})
	assert.Empty(t, m.Recall(context.Background(), "Bob", "dog"))
	assert.Empty(t, FormatRecall(nil, nil))
}

func TestManager_WritesThroughAsyncWriter(t *testing.T) {
	defer goleak.VerifyNone(t)

	short := NewInMemoryShortTerm(10)
	w := NewAsyncWriter(4, time.Second, nil, nil)
	m := NewManager(short, nil, Options{Writer: w, RecentLines: 5})

	m.RememberShortTerm(context.Background(), "Bob", "user", "hello")
	m.RememberLongTerm(context.Background(), "Bob", "ignored without a long-term store")
	w.Close()

	lines, err := short.Recent(context.Background(), "Bob", 5)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "hello", lines[0].Content)
}
