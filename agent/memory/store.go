package memory

import (
	"context"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

// StructuredStore is the authoritative relational backend. Preference/fact
// rows are upserted last-write-wins; history turns are append-only and
// ordered by commit order.
type StructuredStore interface {
	UpsertRecord(ctx context.Context, rec contractx.MemoryRecord) error
	GetRecord(ctx context.Context, userID string, kind contractx.RecordKind, key string) (contractx.MemoryRecord, bool, error)
	ListRecords(ctx context.Context, userID string, kind contractx.RecordKind) ([]contractx.MemoryRecord, error)

	InsertTurn(ctx context.Context, turn contractx.HistoryTurn) error
	RecentTurns(ctx context.Context, userID string, limit int) ([]contractx.HistoryTurn, error)
	TurnsByIDs(ctx context.Context, userID string, turnIDs []string) ([]contractx.HistoryTurn, error)
	DeleteTurns(ctx context.Context, userID string) error

	Close() error
}

// VectorHit is one similarity match from the index, referencing a structured
// history turn by id.
type VectorHit struct {
	TurnID string
	Score  float64
}

// VectorIndex is the best-effort similarity backend. Losing it degrades
// retrieval quality only; it is never the sole source of truth.
type VectorIndex interface {
	Add(ctx context.Context, userID, turnID, text string, embedding []float32) error
	Query(ctx context.Context, userID string, embedding []float32, limit int) ([]VectorHit, error)
	DropUser(ctx context.Context, userID string) error
}

// Embedder converts text to a vector. Implementations: OpenAIEmbedder for
// production, stubs in tests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
