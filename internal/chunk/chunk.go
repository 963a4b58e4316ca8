// Package chunk splits document text into overlapping chunks and normalizes
// per-document metadata into the fixed schema stored alongside each chunk.
//
// The splitter is a recursive character splitter: it tries the coarsest
// separator first (blank line), falls back to finer ones (line break, space)
// and finally hard-cuts when no separator produces small enough pieces.
// Consecutive chunks share a configurable overlap so retrieval context is not
// truncated at arbitrary boundaries.
package chunk

import (
	"errors"
	"time"
)

// Default splitting parameters. These match the ingestion behaviour the
// corpus was built with; changing them invalidates ProcessingVersion.
const (
	// DefaultChunkSize is the maximum chunk length in characters,
	// overlap included.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the number of trailing characters of a chunk
	// repeated at the start of its successor.
	DefaultChunkOverlap = 200

	// ProcessingVersion identifies the chunking pipeline version recorded
	// in each chunk's metadata.
	ProcessingVersion = "1.0"
)

// DefaultSeparators lists candidate split points from coarsest to finest.
// The empty string means a hard character cut.
func DefaultSeparators() []string {
	return []string{"\n\n", "\n", " ", ""}
}

// ErrEmptyDocument indicates a document yielded no extractable text.
// Ingestion must reject such documents before they reach the store.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// Metadata is the fixed, store-compatible metadata record attached to every
// chunk. Absent source fields degrade to zero values, never to an error.
type Metadata struct {
	Source            string    // origin identifier (path or upload name)
	FileName          string    // original file name
	ChunkIndex        int       // 0-based position within the ingestion batch
	TotalChunks       int       // chunk count of the ingestion batch
	ChunkSize         int       // actual content length in characters
	UploadedAt        time.Time // ingestion timestamp
	DocumentType      string    // "pdf", "text", ...
	ProcessingVersion string

	// Provenance of the originating document, when the loader can supply it.
	Author     string
	Title      string
	Creator    string
	Producer   string
	TotalPages int
	PageNumber int // source page, 0 if unknown
}

// Chunk is a bounded text span from a source document, the unit of embedding
// and retrieval. Immutable after creation.
type Chunk struct {
	Content  string
	Metadata Metadata
}

// PageText is one unit of loader output: the extracted text of a page (or of
// the whole document when the format has no page structure) plus the loader's
// raw, possibly nested metadata.
type PageText struct {
	Text     string
	Metadata map[string]any
}
