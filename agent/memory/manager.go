package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

const (
	defaultEmbedQueueSize = 256
	embedTimeout          = 30 * time.Second
)

type embedJob struct {
	userID string
	turnID string
	text   string
}

type ManagerOption func(*Manager)

func WithEmbedQueueSize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

// Manager implements the dual-backed memory contract. The structured store is
// authoritative for everything; the vector index is a write-behind mirror of
// history turns, fed by a background worker so a slow or dead embeddings
// endpoint never blocks the turn pipeline.
type Manager struct {
	structured StructuredStore
	vector     VectorIndex
	embedder   Embedder

	queueSize int
	jobs      chan embedJob
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

var _ contractx.Memory = (*Manager)(nil)

// NewManager wires the two backends. Passing a nil vector index or embedder
// yields a structured-only manager: Search then always serves the recency
// fallback.
func NewManager(structured StructuredStore, vector VectorIndex, embedder Embedder, opts ...ManagerOption) *Manager {
	m := &Manager{
		structured: structured,
		vector:     vector,
		embedder:   embedder,
		queueSize:  defaultEmbedQueueSize,
		userLocks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.vector != nil && m.embedder != nil {
		m.jobs = make(chan embedJob, m.queueSize)
		m.wg.Add(1)
		go m.embedWorker()
	}
	return m
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.userLocks[userID] = lock
	}
	return lock
}

func (m *Manager) WriteRecord(ctx context.Context, rec contractx.MemoryRecord) error {
	if rec.UserID == "" || rec.Key == "" {
		return fmt.Errorf("%w: record needs user id and key", contractx.ErrValidation)
	}
	if rec.Kind != contractx.KindPreference && rec.Kind != contractx.KindFact {
		return fmt.Errorf("%w: unknown record kind %q", contractx.ErrValidation, rec.Kind)
	}
	if err := m.structured.UpsertRecord(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrStoreUnavailable, err)
	}
	return nil
}

func (m *Manager) Profile(ctx context.Context, userID string) (contractx.UserProfile, error) {
	profile := contractx.UserProfile{
		UserID:      userID,
		Preferences: make(map[string]string),
		Facts:       make(map[string]string),
	}

	prefs, err := m.structured.ListRecords(ctx, userID, contractx.KindPreference)
	if err != nil {
		return profile, fmt.Errorf("%w: %v", contractx.ErrStoreUnavailable, err)
	}
	for _, rec := range prefs {
		profile.Preferences[rec.Key] = rec.Value
	}

	facts, err := m.structured.ListRecords(ctx, userID, contractx.KindFact)
	if err != nil {
		return profile, fmt.Errorf("%w: %v", contractx.ErrStoreUnavailable, err)
	}
	for _, rec := range facts {
		profile.Facts[rec.Key] = rec.Value
	}

	return profile, nil
}

// AppendTurn writes the authoritative history row synchronously and hands the
// vector mirror update to the background worker. Per-user serialization keeps
// concurrent appends in commit order.
func (m *Manager) AppendTurn(ctx context.Context, turn contractx.HistoryTurn) error {
	if turn.UserID == "" || turn.TurnID == "" {
		return fmt.Errorf("%w: turn needs user id and turn id", contractx.ErrValidation)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	lock := m.userLock(turn.UserID)
	lock.Lock()
	err := m.structured.InsertTurn(ctx, turn)
	lock.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrStoreUnavailable, err)
	}

	m.enqueueEmbed(turn)
	return nil
}

func (m *Manager) enqueueEmbed(turn contractx.HistoryTurn) {
	if m.jobs == nil {
		return
	}
	job := embedJob{
		userID: turn.UserID,
		turnID: turn.TurnID,
		text:   turnText(turn),
	}
	select {
	case m.jobs <- job:
	default:
		log.Warn().
			Str("user_id", turn.UserID).
			Str("turn_id", turn.TurnID).
			Msg("embed queue full, dropping vector mirror update")
	}
}

func (m *Manager) embedWorker() {
	defer m.wg.Done()
	for job := range m.jobs {
		m.indexTurn(job)
	}
}

func (m *Manager) indexTurn(job embedJob) {
	ctx, cancel := context.WithTimeout(context.Background(), embedTimeout)
	defer cancel()

	vec, err := m.embedder.Embed(ctx, job.text)
	if err != nil {
		log.Warn().Err(err).Str("turn_id", job.turnID).Msg("embed failed, turn not mirrored")
		return
	}
	if err := m.vector.Add(ctx, job.userID, job.turnID, job.text, vec); err != nil {
		log.Warn().Err(err).Str("turn_id", job.turnID).Msg("vector index add failed")
	}
}

func (m *Manager) RecentTurns(ctx context.Context, userID string, limit int) ([]contractx.HistoryTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	turns, err := m.structured.RecentTurns(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrStoreUnavailable, err)
	}
	return turns, nil
}

// Search ranks history turns by similarity to text. Every failure along the
// vector path degrades to a recency scan of the structured store; only the
// structured store being down surfaces as an error.
func (m *Manager) Search(ctx context.Context, userID string, text string, limit int) ([]contractx.SearchHit, error) {
	if limit <= 0 {
		return nil, nil
	}

	if m.vector == nil || m.embedder == nil {
		return m.recencyFallback(ctx, userID, limit)
	}

	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("search embed failed, using recency fallback")
		return m.recencyFallback(ctx, userID, limit)
	}

	hits, err := m.vector.Query(ctx, userID, vec, limit)
	if err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("vector query failed, using recency fallback")
		return m.recencyFallback(ctx, userID, limit)
	}
	if len(hits) == 0 {
		return m.recencyFallback(ctx, userID, limit)
	}

	ids := make([]string, 0, len(hits))
	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		ids = append(ids, h.TurnID)
		scores[h.TurnID] = h.Score
	}

	turns, err := m.structured.TurnsByIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrStoreUnavailable, err)
	}

	results := make([]contractx.SearchHit, 0, len(turns))
	for _, turn := range turns {
		results = append(results, contractx.SearchHit{Turn: turn, Score: scores[turn.TurnID]})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Turn.CreatedAt.After(results[j].Turn.CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *Manager) recencyFallback(ctx context.Context, userID string, limit int) ([]contractx.SearchHit, error) {
	turns, err := m.structured.RecentTurns(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrStoreUnavailable, err)
	}
	hits := make([]contractx.SearchHit, 0, len(turns))
	for _, turn := range turns {
		hits = append(hits, contractx.SearchHit{Turn: turn, Score: 0})
	}
	return hits, nil
}

// ClearHistory removes all history turns for the user and best-effort drops
// the vector mirror. Preferences and facts are untouched.
func (m *Manager) ClearHistory(ctx context.Context, userID string) error {
	lock := m.userLock(userID)
	lock.Lock()
	err := m.structured.DeleteTurns(ctx, userID)
	lock.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrStoreUnavailable, err)
	}

	if m.vector != nil {
		if err := m.vector.DropUser(ctx, userID); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("vector mirror drop failed")
		}
	}
	return nil
}

// Close drains the embed queue, then closes the structured store.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		if m.jobs != nil {
			close(m.jobs)
		}
		m.wg.Wait()
	})
	return m.structured.Close()
}

func turnText(turn contractx.HistoryTurn) string {
	return "user: " + turn.UserMessage + "\nassistant: " + turn.AssistantReply
}
