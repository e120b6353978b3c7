package memory

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemIndex implements VectorIndex on chromem-go, an embedded pure-Go
// vector database. Each user gets their own collection for namespace
// isolation; documents carry the structured turn id so search results can be
// joined back to the authoritative rows.
type ChromemIndex struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

var _ VectorIndex = (*ChromemIndex)(nil)

func NewChromemIndex() *ChromemIndex {
	return &ChromemIndex{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// NewPersistentChromemIndex stores collections under dir so the mirror
// survives restarts. The mirror stays best-effort either way: rebuilding it
// from the structured store is always possible.
func NewPersistentChromemIndex(dir string) (*ChromemIndex, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open persistent vector db: %w", err)
	}
	return &ChromemIndex{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (ix *ChromemIndex) getOrCreateCollection(userID string) (*chromem.Collection, error) {
	ix.mu.RLock()
	col, exists := ix.collections[userID]
	ix.mu.RUnlock()
	if exists {
		return col, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if col, exists := ix.collections[userID]; exists {
		return col, nil
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := ix.db.GetOrCreateCollection(collectionName(userID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	ix.collections[userID] = col
	return col, nil
}

func (ix *ChromemIndex) Add(ctx context.Context, userID, turnID, text string, embedding []float32) error {
	col, err := ix.getOrCreateCollection(userID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        turnID,
		Content:   text,
		Embedding: embedding,
		Metadata: map[string]string{
			"user_id": userID,
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

func (ix *ChromemIndex) Query(ctx context.Context, userID string, embedding []float32, limit int) ([]VectorHit, error) {
	col, err := ix.getOrCreateCollection(userID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults above the collection size.
	if count := col.Count(); limit > count {
		limit = count
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	hits := make([]VectorHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, VectorHit{
			TurnID: res.ID,
			Score:  float64(res.Similarity),
		})
	}
	return hits, nil
}

func (ix *ChromemIndex) DropUser(ctx context.Context, userID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	delete(ix.collections, userID)
	if err := ix.db.DeleteCollection(collectionName(userID)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

func collectionName(userID string) string {
	if userID == "" {
		return "global"
	}
	return "user_" + userID
}
