// Package docqa orchestrates the document QA pipeline: load a file, split it
// into chunks, persist them with embeddings, and answer questions over the
// stored collection. It is the single entry point the HTTP handlers and CLI
// commands talk to.
package docqa

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docuquery/docqa/internal/chunk"
	"github.com/docuquery/docqa/internal/loader"
	"github.com/docuquery/docqa/internal/qa"
	"github.com/docuquery/docqa/internal/store"
)

// Asker abstracts the QA chain for the service.
type Asker interface {
	Ask(ctx context.Context, question string, history []qa.Message) (qa.Answer, error)
}

// IngestResult reports what a successful ingestion produced.
type IngestResult struct {
	FileName string `json:"fileName"`
	Chunks   int    `json:"chunksAdded"`
}

// Service wires the loader, splitter, vector store and QA chain together.
type Service struct {
	loader   *loader.Loader
	splitter *chunk.Splitter
	store    *store.Manager
	chain    Asker
	logger   *slog.Logger
}

// New creates a Service. A nil logger falls back to slog.Default().
func New(ld *loader.Loader, splitter *chunk.Splitter, st *store.Manager, chain Asker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		loader:   ld,
		splitter: splitter,
		store:    st,
		chain:    chain,
		logger:   logger,
	}
}

// Ingest loads the file at path, splits it into chunks and persists them.
// originalName is the user-facing file name recorded in chunk metadata;
// path may point at a temporary copy of an upload.
func (s *Service) Ingest(ctx context.Context, path, originalName string) (IngestResult, error) {
	start := time.Now()

	pages, err := s.loader.Load(path, originalName)
	if err != nil {
		return IngestResult{}, fmt.Errorf("loading %q: %w", originalName, err)
	}

	pageTexts := make([]chunk.PageText, len(pages))
	for i, page := range pages {
		pageTexts[i] = chunk.PageText{Text: page.Text, Metadata: page.Metadata}
	}

	chunks, err := s.splitter.ChunkPages(pageTexts, time.Now().UTC())
	if err != nil {
		return IngestResult{}, fmt.Errorf("chunking %q: %w", originalName, err)
	}

	count, err := s.store.Upsert(ctx, chunks)
	if err != nil {
		return IngestResult{}, err
	}

	s.logger.Info("document ingested",
		"fileName", originalName, "pages", len(pages), "chunks", count,
		"duration", time.Since(start))

	return IngestResult{FileName: originalName, Chunks: count}, nil
}

// Ask answers a question over the stored documents in the context of the
// supplied conversation history.
func (s *Service) Ask(ctx context.Context, question string, history []qa.Message) (qa.Answer, error) {
	return s.chain.Ask(ctx, question, history)
}

// Summary describes the stored collection for the listing surface.
func (s *Service) Summary(ctx context.Context) (store.Summary, error) {
	return s.store.Summarize(ctx)
}

// ListChunks returns stored chunks for inspection, paginated.
func (s *Service) ListChunks(ctx context.Context, limit, offset int) ([]chunk.Chunk, error) {
	return s.store.ListChunks(ctx, limit, offset)
}

// ClearAll destroys the entire collection. Idempotent.
func (s *Service) ClearAll(ctx context.Context) error {
	return s.store.Drop(ctx)
}
