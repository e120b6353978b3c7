package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

type fakeVectorIndex struct {
	mu    sync.Mutex
	added map[string][]string
	hits  []VectorHit
	err   error
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{added: make(map[string][]string)}
}

func (f *fakeVectorIndex) Add(_ context.Context, userID, turnID, _ string, _ []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.added[userID] = append(f.added[userID], turnID)
	return nil
}

func (f *fakeVectorIndex) Query(_ context.Context, _ string, _ []float32, limit int) ([]VectorHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	hits := f.hits
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeVectorIndex) DropUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.added, userID)
	return nil
}

func (f *fakeVectorIndex) addedTurns(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added[userID]...)
}

func newTurn(userID, turnID, msg string, at time.Time) contractx.HistoryTurn {
	return contractx.HistoryTurn{
		TurnID:         turnID,
		UserID:         userID,
		UserMessage:    msg,
		AssistantReply: "ok",
		CreatedAt:      at,
	}
}

func TestWriteRecordLastWriteWins(t *testing.T) {
	t.Parallel()

	m := NewManager(NewInMemoryStore(), nil, nil)
	defer m.Close()
	ctx := context.Background()

	rec := contractx.MemoryRecord{Kind: contractx.KindPreference, Key: "language", Value: "thai", UserID: "u1"}
	if err := m.WriteRecord(ctx, rec); err != nil {
		t.Fatalf("first write: %v", err)
	}
	rec.Value = "english"
	if err := m.WriteRecord(ctx, rec); err != nil {
		t.Fatalf("second write: %v", err)
	}

	profile, err := m.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if got := profile.Preferences["language"]; got != "english" {
		t.Fatalf("expected last write to win, got %q", got)
	}
	if len(profile.Preferences) != 1 {
		t.Fatalf("expected one preference row, got %d", len(profile.Preferences))
	}
}

func TestWriteRecordRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	m := NewManager(NewInMemoryStore(), nil, nil)
	defer m.Close()

	err := m.WriteRecord(context.Background(), contractx.MemoryRecord{
		Kind: "mood", Key: "k", Value: "v", UserID: "u1",
	})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAppendTurnOrderPreserved(t *testing.T) {
	t.Parallel()

	m := NewManager(NewInMemoryStore(), nil, nil)
	defer m.Close()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		turn := newTurn("u1", fmt.Sprintf("t%d", i), fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Second))
		if err := m.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	turns, err := m.RecentTurns(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].TurnID != "t4" || turns[2].TurnID != "t2" {
		t.Fatalf("unexpected recency order: %s .. %s", turns[0].TurnID, turns[2].TurnID)
	}
}

func TestSearchFallsBackToRecencyWithoutVectorBackend(t *testing.T) {
	t.Parallel()

	m := NewManager(NewInMemoryStore(), nil, nil)
	defer m.Close()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		turn := newTurn("u1", fmt.Sprintf("t%d", i), "hello", base.Add(time.Duration(i)*time.Second))
		if err := m.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	hits, err := m.Search(ctx, "u1", "anything", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	recent, err := m.RecentTurns(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(hits) != len(recent) {
		t.Fatalf("fallback size mismatch: %d vs %d", len(hits), len(recent))
	}
	for i := range hits {
		if hits[i].Turn.TurnID != recent[i].TurnID {
			t.Fatalf("fallback order mismatch at %d: %s vs %s", i, hits[i].Turn.TurnID, recent[i].TurnID)
		}
		if hits[i].Score != 0 {
			t.Fatalf("fallback hit should carry zero score, got %f", hits[i].Score)
		}
	}
}

func TestSearchFallsBackWhenEmbedFails(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{err: errors.New("endpoint down")}
	m := NewManager(NewInMemoryStore(), newFakeVectorIndex(), embedder)
	defer m.Close()
	ctx := context.Background()

	if err := m.AppendTurn(ctx, newTurn("u1", "t0", "hello", time.Now().UTC())); err != nil {
		t.Fatalf("append: %v", err)
	}

	hits, err := m.Search(ctx, "u1", "hello", 5)
	if err != nil {
		t.Fatalf("search should degrade, not fail: %v", err)
	}
	if len(hits) != 1 || hits[0].Turn.TurnID != "t0" {
		t.Fatalf("expected recency fallback with one turn, got %+v", hits)
	}
}

func TestSearchRanksByScoreThenRecency(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	index := newFakeVectorIndex()
	m := NewManager(store, index, &fakeEmbedder{})
	defer m.Close()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		turn := newTurn("u1", fmt.Sprintf("t%d", i), fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Second))
		if err := store.InsertTurn(ctx, turn); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	index.hits = []VectorHit{
		{TurnID: "t1", Score: 0.9},
		{TurnID: "t0", Score: 0.4},
		{TurnID: "t2", Score: 0.4},
	}

	hits, err := m.Search(ctx, "u1", "message", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Turn.TurnID != "t1" {
		t.Fatalf("highest score should rank first, got %s", hits[0].Turn.TurnID)
	}
	// t0 and t2 tie on score; the newer turn wins.
	if hits[1].Turn.TurnID != "t2" || hits[2].Turn.TurnID != "t0" {
		t.Fatalf("tie should break on recency: got %s, %s", hits[1].Turn.TurnID, hits[2].Turn.TurnID)
	}
}

func TestAppendTurnMirrorsIntoVectorIndex(t *testing.T) {
	t.Parallel()

	index := newFakeVectorIndex()
	m := NewManager(NewInMemoryStore(), index, &fakeEmbedder{})
	ctx := context.Background()

	if err := m.AppendTurn(ctx, newTurn("u1", "t0", "remember this", time.Now().UTC())); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Close drains the write-behind queue.
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	added := index.addedTurns("u1")
	if len(added) != 1 || added[0] != "t0" {
		t.Fatalf("expected one mirrored turn, got %v", added)
	}
}

// recordingStore notes the order InsertTurn commits land in. With the
// manager holding a per-user lock around the insert, that order is the
// store's commit order.
type recordingStore struct {
	*InMemoryStore
	mu        sync.Mutex
	committed []string
}

func (s *recordingStore) InsertTurn(ctx context.Context, turn contractx.HistoryTurn) error {
	s.mu.Lock()
	s.committed = append(s.committed, turn.TurnID)
	s.mu.Unlock()
	return s.InMemoryStore.InsertTurn(ctx, turn)
}

func TestAppendTurnSerializesConcurrentWritesPerUser(t *testing.T) {
	t.Parallel()

	store := &recordingStore{InMemoryStore: NewInMemoryStore()}
	m := NewManager(store, nil, nil)
	defer m.Close()
	ctx := context.Background()

	// Identical timestamps so only insertion order can explain the result.
	at := time.Now().UTC()
	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			turn := newTurn("u1", fmt.Sprintf("t%d", i), fmt.Sprintf("message %d", i), at)
			if err := m.AppendTurn(ctx, turn); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent append: %v", err)
	}

	if len(store.committed) != writers {
		t.Fatalf("expected %d commits, got %d", writers, len(store.committed))
	}

	turns, err := m.RecentTurns(ctx, "u1", writers)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != writers {
		t.Fatalf("expected %d turns, got %d", writers, len(turns))
	}
	// RecentTurns is newest first; reversed it must replay the commit order.
	for i, turn := range turns {
		want := store.committed[writers-1-i]
		if turn.TurnID != want {
			t.Fatalf("order diverged at %d: got %s, want %s", i, turn.TurnID, want)
		}
	}
}

func TestClearHistoryPreservesRecords(t *testing.T) {
	t.Parallel()

	index := newFakeVectorIndex()
	m := NewManager(NewInMemoryStore(), index, &fakeEmbedder{})
	defer m.Close()
	ctx := context.Background()

	if err := m.WriteRecord(ctx, contractx.MemoryRecord{
		Kind: contractx.KindFact, Key: "name", Value: "Arthit", UserID: "u1",
	}); err != nil {
		t.Fatalf("write record: %v", err)
	}
	if err := m.AppendTurn(ctx, newTurn("u1", "t0", "hello", time.Now().UTC())); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := m.ClearHistory(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	turns, err := m.RecentTurns(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("history should be empty after clear, got %d turns", len(turns))
	}

	profile, err := m.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Facts["name"] != "Arthit" {
		t.Fatalf("clear must not touch facts, got %+v", profile.Facts)
	}
}
