package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

type inmemKey struct {
	userID string
	kind   contractx.RecordKind
	key    string
}

// InMemoryStore is a map-backed StructuredStore for local runs and tests. It
// honors the same contracts as the PostgreSQL store: last-write-wins records,
// append-only turns in insertion order.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[inmemKey]contractx.MemoryRecord
	turns   []contractx.HistoryTurn
}

var _ StructuredStore = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[inmemKey]contractx.MemoryRecord),
	}
}

func (s *InMemoryStore) UpsertRecord(_ context.Context, rec contractx.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := inmemKey{userID: rec.UserID, kind: rec.Kind, key: rec.Key}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if prev, ok := s.records[k]; ok {
		rec.CreatedAt = prev.CreatedAt
	}
	s.records[k] = rec
	return nil
}

func (s *InMemoryStore) GetRecord(_ context.Context, userID string, kind contractx.RecordKind, key string) (contractx.MemoryRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[inmemKey{userID: userID, kind: kind, key: key}]
	return rec, ok, nil
}

func (s *InMemoryStore) ListRecords(_ context.Context, userID string, kind contractx.RecordKind) ([]contractx.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []contractx.MemoryRecord
	for k, rec := range s.records {
		if k.userID == userID && k.kind == kind {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (s *InMemoryStore) InsertTurn(_ context.Context, turn contractx.HistoryTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turn)
	return nil
}

func (s *InMemoryStore) RecentTurns(_ context.Context, userID string, limit int) ([]contractx.HistoryTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var turns []contractx.HistoryTurn
	for i := len(s.turns) - 1; i >= 0 && len(turns) < limit; i-- {
		if s.turns[i].UserID == userID {
			turns = append(turns, s.turns[i])
		}
	}
	return turns, nil
}

func (s *InMemoryStore) TurnsByIDs(_ context.Context, userID string, turnIDs []string) ([]contractx.HistoryTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(turnIDs))
	for _, id := range turnIDs {
		wanted[id] = struct{}{}
	}

	var turns []contractx.HistoryTurn
	for _, turn := range s.turns {
		if turn.UserID != userID {
			continue
		}
		if _, ok := wanted[turn.TurnID]; ok {
			turns = append(turns, turn)
		}
	}
	return turns, nil
}

func (s *InMemoryStore) DeleteTurns(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.turns[:0]
	for _, turn := range s.turns {
		if turn.UserID != userID {
			kept = append(kept, turn)
		}
	}
	s.turns = kept
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
