// Package store owns the persistent vector collection: a single named
// Postgres table of (chunk, embedding) rows backed by pgvector.
//
// The collection has exactly two states, absent and present. It is created
// lazily by the first successful Upsert -- creation and the first batch
// insert happen in one transaction, so an empty collection is never
// observable. Drop destroys it entirely and is idempotent.
//
// The Manager assumes a single logical writer. Upsert calls are serialized
// through an advisory file lock keyed on the collection name, and the
// Postgres querier additionally takes a transactional advisory lock so two
// processes racing on first ingestion still produce one valid collection.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/docuquery/docqa/internal/chunk"
)

const (
	// CollectionName is the single named collection holding all chunks.
	CollectionName = "rag-doc-qa"

	// EmbeddingDim is the fixed dimension of all embedding vectors.
	EmbeddingDim = 1536

	// DefaultTopK is the default similarity-search result count.
	DefaultTopK = 10

	// DefaultListLimit bounds unpaginated row listings.
	DefaultListLimit = 100
)

var (
	// ErrEmptyBatch rejects an upsert with no chunks. An empty write must
	// never create an empty collection as a side effect.
	ErrEmptyBatch = errors.New("empty ingestion batch")

	// ErrNotInitialized indicates a query against the absent collection.
	// Callers translate it to "upload a document first".
	ErrNotInitialized = errors.New("vector collection not initialized")

	// ErrInvalidFilter indicates a metadata filter key outside the
	// filterable column whitelist.
	ErrInvalidFilter = errors.New("invalid metadata filter key")
)

// filterColumns whitelists metadata keys usable as search filters and maps
// them to their column names. Keys outside this map are rejected rather
// than interpolated into SQL.
var filterColumns = map[string]string{
	"source":       "source",
	"fileName":     "file_name",
	"documentType": "document_type",
}

// Row is one persisted (chunk, embedding) pair.
type Row struct {
	ID        string
	Content   string
	Metadata  chunk.Metadata
	Embedding pgvector.Vector
}

// SearchHit is a retrieved chunk with its cosine similarity to the query.
type SearchHit struct {
	Chunk      chunk.Chunk
	Similarity float32
}

// Summary describes the collection for the document-listing surface.
type Summary struct {
	HasDocuments bool
	FileNames    []string
	Count        int64
}

// Querier defines the database operations the Manager needs. The interface
// lives on the consumer side so tests can substitute an in-memory fake.
type Querier interface {
	// CollectionExists reports whether the collection table is present.
	CollectionExists(ctx context.Context) (bool, error)

	// CreateCollection creates the collection and inserts the first batch
	// in a single transaction.
	CreateCollection(ctx context.Context, rows []Row) error

	// AppendRows inserts rows into the existing collection.
	AppendRows(ctx context.Context, rows []Row) error

	// SearchSimilar returns up to k rows ranked by similarity, best first.
	// filter maps column names (already whitelisted) to required values.
	SearchSimilar(ctx context.Context, embedding pgvector.Vector, k int, filter map[string]string) ([]SearchHit, error)

	// DropCollection removes the collection table. Dropping an absent
	// collection succeeds silently.
	DropCollection(ctx context.Context) error

	// CountRows returns the number of stored chunks.
	CountRows(ctx context.Context) (int64, error)

	// ListFileNames returns the distinct file names in the collection.
	ListFileNames(ctx context.Context, limit int) ([]string, error)

	// ListRows returns stored chunks in insertion order for listing.
	ListRows(ctx context.Context, limit, offset int) ([]chunk.Chunk, error)
}

// Manager is the single point of truth for the collection's existence and
// contents. Safe for concurrent readers; writers are serialized internally.
type Manager struct {
	queries  Querier
	embedder ai.Embedder
	lock     *ingestLock
	logger   *slog.Logger
}

// NewManager creates a Manager. A nil logger falls back to slog.Default().
func NewManager(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		queries:  querier,
		embedder: embedder,
		lock:     newIngestLock(CollectionName),
		logger:   logger,
	}
}

// Open reports whether the collection is present. It never creates the
// collection as a side effect.
func (m *Manager) Open(ctx context.Context) (bool, error) {
	exists, err := m.queries.CollectionExists(ctx)
	if err != nil {
		return false, fmt.Errorf("checking collection %q: %w", CollectionName, err)
	}
	return exists, nil
}

// Upsert embeds the given chunks and writes them to the collection,
// creating it atomically from this batch when absent. Repeated calls with
// the same chunks append twice; document identity is the caller's concern.
//
// Fails with ErrEmptyBatch on an empty input.
func (m *Manager) Upsert(ctx context.Context, chunks []chunk.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, ErrEmptyBatch
	}

	if err := m.lock.Lock(ctx); err != nil {
		return 0, fmt.Errorf("acquiring ingest lock: %w", err)
	}
	defer m.lock.Unlock()

	vectors, err := m.embedBatch(ctx, chunks)
	if err != nil {
		return 0, err
	}

	rows := make([]Row, len(chunks))
	for i, c := range chunks {
		rows[i] = Row{
			ID:        uuid.NewString(),
			Content:   c.Content,
			Metadata:  c.Metadata,
			Embedding: vectors[i],
		}
	}

	exists, err := m.queries.CollectionExists(ctx)
	if err != nil {
		return 0, fmt.Errorf("checking collection %q: %w", CollectionName, err)
	}

	start := time.Now()
	if exists {
		if err := m.queries.AppendRows(ctx, rows); err != nil {
			return 0, fmt.Errorf("appending %d rows: %w", len(rows), err)
		}
	} else {
		if err := m.queries.CreateCollection(ctx, rows); err != nil {
			return 0, fmt.Errorf("creating collection from %d rows: %w", len(rows), err)
		}
	}

	m.logger.Debug("upserted chunks",
		"count", len(rows), "created", !exists, "duration", time.Since(start))

	return len(rows), nil
}

// SimilaritySearch returns up to k chunks ranked by similarity to query,
// best first. An absent collection yields an empty result, not an error.
func (m *Manager) SimilaritySearch(ctx context.Context, query string, opts ...SearchOption) ([]SearchHit, error) {
	exists, err := m.Open(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return m.search(ctx, query, opts...)
}

// search runs the embed-and-query path against a collection the caller has
// already confirmed to exist.
func (m *Manager) search(ctx context.Context, query string, opts ...SearchOption) ([]SearchHit, error) {
	cfg := buildSearchConfig(opts)

	filter, err := resolveFilter(cfg.filter)
	if err != nil {
		return nil, err
	}

	embedding, err := m.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := m.queries.SearchSimilar(ctx, embedding, cfg.topK, filter)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return hits, nil
}

// Drop destroys the collection entirely. Idempotent: dropping an absent
// collection succeeds silently.
func (m *Manager) Drop(ctx context.Context) error {
	if err := m.queries.DropCollection(ctx); err != nil {
		return fmt.Errorf("dropping collection %q: %w", CollectionName, err)
	}
	m.logger.Info("collection dropped", "collection", CollectionName)
	return nil
}

// Summarize describes the collection contents for the listing surface.
// An absent collection reports zero documents rather than an error.
func (m *Manager) Summarize(ctx context.Context) (Summary, error) {
	exists, err := m.Open(ctx)
	if err != nil {
		return Summary{}, err
	}
	if !exists {
		return Summary{FileNames: []string{}}, nil
	}

	count, err := m.queries.CountRows(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("counting rows: %w", err)
	}

	names, err := m.queries.ListFileNames(ctx, DefaultListLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("listing file names: %w", err)
	}
	if names == nil {
		names = []string{}
	}

	return Summary{
		HasDocuments: count > 0,
		FileNames:    names,
		Count:        count,
	}, nil
}

// ListChunks returns stored chunks for inspection, paginated. An absent
// collection yields an empty result.
func (m *Manager) ListChunks(ctx context.Context, limit, offset int) ([]chunk.Chunk, error) {
	exists, err := m.Open(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	chunks, err := m.queries.ListRows(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing rows: %w", err)
	}
	return chunks, nil
}

// embedBatch computes one embedding per chunk in a single order-preserving
// request to the embedding provider.
func (m *Manager) embedBatch(ctx context.Context, chunks []chunk.Chunk) ([]pgvector.Vector, error) {
	input := make([]*ai.Document, len(chunks))
	for i, c := range chunks {
		input[i] = ai.DocumentFromText(c.Content, nil)
	}

	resp, err := m.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(resp.Embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d chunks", len(resp.Embeddings), len(chunks))
	}

	vectors := make([]pgvector.Vector, len(chunks))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding returned for chunk %d", i)
		}
		vectors[i] = pgvector.NewVector(e.Embedding)
	}
	return vectors, nil
}

// embedQuery computes the query embedding.
func (m *Manager) embedQuery(ctx context.Context, query string) (pgvector.Vector, error) {
	resp, err := m.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(query, nil)},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding query: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("empty embedding returned for query")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// resolveFilter validates metadata filter keys against the whitelist and
// maps them to column names.
func resolveFilter(filter map[string]string) (map[string]string, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	resolved := make(map[string]string, len(filter))
	for key, value := range filter {
		column, ok := filterColumns[key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, key)
		}
		resolved[column] = value
	}
	return resolved, nil
}
