package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/docuquery/docqa/internal/chunk"
)

// PG implements Querier on a pgxpool connection pool.
//
// The collection table is not part of the migration set: per the lazy
// lifecycle it is created inside CreateCollection, in the same transaction
// as the first batch insert, guarded by a transactional advisory lock keyed
// on the collection name. Migrations only install the pgvector extension.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG creates a Postgres querier on the given pool.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

// tableIdent is the quoted collection table identifier. The name contains a
// dash, so it must always be quoted; pgx.Identifier handles the escaping.
var tableIdent = pgx.Identifier{CollectionName}.Sanitize()

// columns, in insert order. seq and embedding are handled separately where
// needed.
const columnList = `id, content, source, file_name, chunk_index, total_chunks, chunk_size,
	uploaded_at, document_type, processing_version, author, title, creator, producer,
	total_pages, page_number, embedding`

// CollectionExists checks the catalog for the collection table.
func (p *PG) CollectionExists(ctx context.Context) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT to_regclass($1) IS NOT NULL`,
		"public."+tableIdent,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("querying catalog: %w", err)
	}
	return exists, nil
}

// CreateCollection creates the table and inserts the first batch in one
// transaction. The advisory lock serializes concurrent first-ingestion
// attempts across processes; CREATE TABLE IF NOT EXISTS makes the loser of
// the race degrade to a plain append instead of failing.
func (p *PG) CreateCollection(ctx context.Context, rows []Row) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, CollectionName); err != nil {
		return fmt.Errorf("acquiring advisory lock: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		seq                BIGINT GENERATED ALWAYS AS IDENTITY,
		id                 UUID PRIMARY KEY,
		content            TEXT NOT NULL,
		source             TEXT NOT NULL DEFAULT '',
		file_name          TEXT NOT NULL DEFAULT '',
		chunk_index        INTEGER NOT NULL,
		total_chunks       INTEGER NOT NULL,
		chunk_size         INTEGER NOT NULL,
		uploaded_at        TIMESTAMPTZ NOT NULL,
		document_type      TEXT NOT NULL DEFAULT '',
		processing_version TEXT NOT NULL DEFAULT '',
		author             TEXT NOT NULL DEFAULT '',
		title              TEXT NOT NULL DEFAULT '',
		creator            TEXT NOT NULL DEFAULT '',
		producer           TEXT NOT NULL DEFAULT '',
		total_pages        INTEGER NOT NULL DEFAULT 0,
		page_number        INTEGER NOT NULL DEFAULT 0,
		embedding          vector(%d) NOT NULL
	)`, tableIdent, EmbeddingDim)
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}

	indexDDL := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
		pgx.Identifier{CollectionName + "_embedding_idx"}.Sanitize(), tableIdent)
	if _, err := tx.Exec(ctx, indexDDL); err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}

	if err := insertRows(ctx, tx, rows); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// AppendRows inserts rows into the existing collection.
func (p *PG) AppendRows(ctx context.Context, rows []Row) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := insertRows(ctx, tx, rows); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// insertRows batches the row inserts on the given transaction.
func insertRows(ctx context.Context, tx pgx.Tx, rows []Row) error {
	sql := fmt.Sprintf(`INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		tableIdent, columnList)

	batch := &pgx.Batch{}
	for _, r := range rows {
		m := r.Metadata
		batch.Queue(sql,
			r.ID, r.Content, m.Source, m.FileName, m.ChunkIndex, m.TotalChunks, m.ChunkSize,
			m.UploadedAt, m.DocumentType, m.ProcessingVersion, m.Author, m.Title, m.Creator,
			m.Producer, m.TotalPages, m.PageNumber, r.Embedding)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck // surfaced via Exec errors

	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting row: %w", err)
		}
	}
	return nil
}

// SearchSimilar ranks rows by cosine distance to the query embedding.
// filter maps already-whitelisted column names to required values; values
// are passed as parameters, never interpolated.
func (p *PG) SearchSimilar(ctx context.Context, embedding pgvector.Vector, k int, filter map[string]string) ([]SearchHit, error) {
	var (
		where strings.Builder
		args  = []any{embedding, k}
	)
	for column, value := range filter {
		args = append(args, value)
		if where.Len() == 0 {
			where.WriteString("WHERE ")
		} else {
			where.WriteString(" AND ")
		}
		fmt.Fprintf(&where, "%s = $%d", pgx.Identifier{column}.Sanitize(), len(args))
	}

	sql := fmt.Sprintf(`SELECT content, source, file_name, chunk_index, total_chunks, chunk_size,
			uploaded_at, document_type, processing_version, author, title, creator, producer,
			total_pages, page_number, 1 - (embedding <=> $1) AS similarity
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $2`, tableIdent, where.String())

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var (
			c   chunk.Chunk
			m   = &c.Metadata
			sim float32
		)
		if err := rows.Scan(&c.Content, &m.Source, &m.FileName, &m.ChunkIndex, &m.TotalChunks,
			&m.ChunkSize, &m.UploadedAt, &m.DocumentType, &m.ProcessingVersion, &m.Author,
			&m.Title, &m.Creator, &m.Producer, &m.TotalPages, &m.PageNumber, &sim); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		hits = append(hits, SearchHit{Chunk: c, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return hits, nil
}

// DropCollection drops the table if present.
func (p *PG) DropCollection(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableIdent)); err != nil {
		return fmt.Errorf("dropping table: %w", err)
	}
	return nil
}

// CountRows counts stored chunks.
func (p *PG) CountRows(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tableIdent)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting: %w", err)
	}
	return count, nil
}

// ListFileNames returns the distinct non-empty file names in the collection.
func (p *PG) ListFileNames(ctx context.Context, limit int) ([]string, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT file_name FROM %s WHERE file_name <> '' ORDER BY file_name LIMIT $1`,
		tableIdent), limit)
	if err != nil {
		return nil, fmt.Errorf("querying file names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning file name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListRows returns stored chunks in insertion order.
func (p *PG) ListRows(ctx context.Context, limit, offset int) ([]chunk.Chunk, error) {
	sql := fmt.Sprintf(`SELECT content, source, file_name, chunk_index, total_chunks, chunk_size,
			uploaded_at, document_type, processing_version, author, title, creator, producer,
			total_pages, page_number
		FROM %s
		ORDER BY seq
		LIMIT $1 OFFSET $2`, tableIdent)

	rows, err := p.pool.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying rows: %w", err)
	}
	defer rows.Close()

	var chunks []chunk.Chunk
	for rows.Next() {
		var (
			c chunk.Chunk
			m = &c.Metadata
		)
		if err := rows.Scan(&c.Content, &m.Source, &m.FileName, &m.ChunkIndex, &m.TotalChunks,
			&m.ChunkSize, &m.UploadedAt, &m.DocumentType, &m.ProcessingVersion, &m.Author,
			&m.Title, &m.Creator, &m.Producer, &m.TotalPages, &m.PageNumber); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
