package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Retriever is the read-side facade over the collection used by the QA
// chain. Unlike Manager.SimilaritySearch, it treats the absent collection
// as an error: a question cannot be grounded before any document exists.
type Retriever struct {
	manager *Manager
	logger  *slog.Logger
}

// NewRetriever creates a Retriever on top of the given Manager.
func NewRetriever(manager *Manager, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{manager: manager, logger: logger}
}

// Retrieve returns up to DefaultTopK chunks relevant to query, best first.
// Returns ErrNotInitialized when no document has ever been ingested.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...SearchOption) ([]SearchHit, error) {
	exists, err := r.manager.Open(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotInitialized
	}

	start := time.Now()
	hits, err := r.manager.search(ctx, query, opts...)
	if err != nil {
		return nil, fmt.Errorf("retrieving documents: %w", err)
	}

	r.logger.Debug("retrieved chunks", "count", len(hits), "duration", time.Since(start))
	return hits, nil
}
