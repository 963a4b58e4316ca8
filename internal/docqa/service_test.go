package docqa

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"

	"github.com/docuquery/docqa/internal/chunk"
	"github.com/docuquery/docqa/internal/loader"
	"github.com/docuquery/docqa/internal/qa"
	"github.com/docuquery/docqa/internal/store"
	"github.com/docuquery/docqa/internal/testutil"
)

// memQuerier is an in-memory store.Querier with brute-force cosine search,
// good enough to run the whole pipeline without Postgres.
type memQuerier struct {
	created bool
	rows    []store.Row
}

func (m *memQuerier) CollectionExists(ctx context.Context) (bool, error) {
	return m.created, nil
}

func (m *memQuerier) CreateCollection(ctx context.Context, rows []store.Row) error {
	m.created = true
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *memQuerier) AppendRows(ctx context.Context, rows []store.Row) error {
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *memQuerier) SearchSimilar(ctx context.Context, embedding pgvector.Vector, k int, filter map[string]string) ([]store.SearchHit, error) {
	query := embedding.Slice()

	var hits []store.SearchHit
	for _, row := range m.rows {
		if !matches(row, filter) {
			continue
		}
		hits = append(hits, store.SearchHit{
			Chunk:      chunk.Chunk{Content: row.Content, Metadata: row.Metadata},
			Similarity: dot(query, row.Embedding.Slice()),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *memQuerier) DropCollection(ctx context.Context) error {
	m.created = false
	m.rows = nil
	return nil
}

func (m *memQuerier) CountRows(ctx context.Context) (int64, error) {
	return int64(len(m.rows)), nil
}

func (m *memQuerier) ListFileNames(ctx context.Context, limit int) ([]string, error) {
	seen := map[string]bool{}
	var names []string
	for _, row := range m.rows {
		if name := row.Metadata.FileName; name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (m *memQuerier) ListRows(ctx context.Context, limit, offset int) ([]chunk.Chunk, error) {
	var chunks []chunk.Chunk
	for _, row := range m.rows {
		chunks = append(chunks, chunk.Chunk{Content: row.Content, Metadata: row.Metadata})
	}
	if offset > len(chunks) {
		offset = len(chunks)
	}
	chunks = chunks[offset:]
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func matches(row store.Row, filter map[string]string) bool {
	for column, value := range filter {
		var got string
		switch column {
		case "source":
			got = row.Metadata.Source
		case "file_name":
			got = row.Metadata.FileName
		case "document_type":
			got = row.Metadata.DocumentType
		}
		if got != value {
			return false
		}
	}
	return true
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// markerCompleter answers every prompt with a fixed [DOCS] response.
type markerCompleter struct{ prompts []string }

func (m *markerCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return "[DOCS] Gophers are burrowing rodents.", nil
}

func newTestService(t *testing.T) (*Service, *memQuerier, *markerCompleter) {
	t.Helper()

	logger := testutil.DiscardLogger()
	querier := &memQuerier{}
	manager := store.NewManager(querier, testutil.HashEmbedder{}, logger)
	completer := &markerCompleter{}
	chain := qa.NewChain(completer, store.NewRetriever(manager, logger), logger)

	svc := New(loader.New(logger), chunk.NewDefaultSplitter(), manager, chain, logger)
	return svc, querier, completer
}

func writeTextFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestIngestThenAskRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, querier, completer := newTestService(t)

	path := writeTextFile(t,
		"Gophers are burrowing rodents found in North America.\n\n"+
			"They dig extensive tunnel systems and eat plant roots.")

	result, err := svc.Ingest(ctx, path, "gophers.txt")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.FileName != "gophers.txt" {
		t.Errorf("FileName = %q, want gophers.txt", result.FileName)
	}
	if result.Chunks == 0 {
		t.Fatal("Ingest() produced no chunks")
	}
	if len(querier.rows) != result.Chunks {
		t.Errorf("stored %d rows, reported %d chunks", len(querier.rows), result.Chunks)
	}

	answer, err := svc.Ask(ctx, "What are gophers?", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !answer.UsedDocs {
		t.Error("UsedDocs = false, want true")
	}
	if len(answer.Sources) == 0 {
		t.Fatal("Ask() returned no sources")
	}
	if answer.Sources[0].Metadata.FileName != "gophers.txt" {
		t.Errorf("source file = %q, want gophers.txt", answer.Sources[0].Metadata.FileName)
	}

	// The answer prompt must carry retrieved chunk content as context.
	last := completer.prompts[len(completer.prompts)-1]
	if !strings.Contains(last, "burrowing rodents") {
		t.Error("answer prompt missing retrieved context")
	}
}

func TestAskBeforeAnyIngest(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Ask(ctx, "anything?", nil)
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("Ask() before ingest error = %v, want not-initialized", err)
	}
}

func TestIngestEmptyFile(t *testing.T) {
	ctx := context.Background()
	svc, querier, _ := newTestService(t)

	path := writeTextFile(t, "")
	if _, err := svc.Ingest(ctx, path, "empty.txt"); err == nil {
		t.Fatal("Ingest() of empty file expected error")
	}
	if querier.created {
		t.Error("failed ingest must not create the collection")
	}
}

func TestSummaryAndClear(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	summary, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.HasDocuments {
		t.Error("HasDocuments = true before any ingest")
	}

	path := writeTextFile(t, "some document body with enough words to store")
	if _, err := svc.Ingest(ctx, path, "doc.txt"); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	summary, err = svc.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if !summary.HasDocuments || summary.Count == 0 {
		t.Errorf("Summary after ingest = %+v, want documents present", summary)
	}
	if len(summary.FileNames) != 1 || summary.FileNames[0] != "doc.txt" {
		t.Errorf("FileNames = %v, want [doc.txt]", summary.FileNames)
	}

	if err := svc.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if err := svc.ClearAll(ctx); err != nil {
		t.Fatalf("second ClearAll() error = %v", err)
	}

	summary, err = svc.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.HasDocuments {
		t.Error("HasDocuments = true after ClearAll")
	}
}

func TestListChunksPagination(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	path := writeTextFile(t, strings.Repeat("paragraph of text that fills a chunk. ", 200))
	result, err := svc.Ingest(ctx, path, "long.txt")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Chunks < 3 {
		t.Fatalf("need at least 3 chunks for pagination, got %d", result.Chunks)
	}

	first, err := svc.ListChunks(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("ListChunks(2, 0) = %d chunks, want 2", len(first))
	}

	second, err := svc.ListChunks(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if len(second) == 0 {
		t.Fatal("ListChunks(2, 2) returned nothing")
	}
	if first[0].Metadata.ChunkIndex == second[0].Metadata.ChunkIndex {
		t.Error("pagination returned overlapping chunks")
	}
}
