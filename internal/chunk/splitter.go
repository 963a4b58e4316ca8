package chunk

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Splitter divides text into chunks of at most Size characters with Overlap
// characters of shared context between consecutive chunks.
//
// Splitter is safe for concurrent use; it holds no mutable state.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// NewSplitter creates a Splitter. size must be positive and overlap must
// satisfy 0 <= overlap < size. A nil or empty separators slice selects
// DefaultSeparators.
func NewSplitter(size, overlap int, separators []string) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d with size %d", overlap, size)
	}
	if len(separators) == 0 {
		separators = DefaultSeparators()
	}
	return &Splitter{size: size, overlap: overlap, separators: separators}, nil
}

// NewDefaultSplitter creates a Splitter with the package default parameters.
func NewDefaultSplitter() *Splitter {
	s, err := NewSplitter(DefaultChunkSize, DefaultChunkOverlap, nil)
	if err != nil {
		// Unreachable: defaults are valid by construction.
		panic(err)
	}
	return s
}

// maxCore is the largest chunk length before the overlap prefix is added,
// so that prefix+core never exceeds the configured size.
func (s *Splitter) maxCore() int {
	return s.size - s.overlap
}

// Split divides text into ordered chunks. Each chunk except the first starts
// with the trailing overlap of its predecessor; stripping those prefixes and
// concatenating the remainders reconstructs text exactly.
//
// Returns ErrEmptyDocument when text contains no non-whitespace characters.
func (s *Splitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	cores := s.split(text, s.separators)

	chunks := make([]string, len(cores))
	for i, core := range cores {
		if i == 0 {
			chunks[i] = core
			continue
		}
		chunks[i] = tailRunes(chunks[i-1], s.overlap) + core
	}
	return chunks, nil
}

// split recursively cuts text into pieces no longer than maxCore characters.
// Separators are kept attached to the preceding piece so that concatenating
// the result yields the input unchanged.
func (s *Splitter) split(text string, separators []string) []string {
	limit := s.maxCore()
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	if len(separators) == 0 {
		return hardCut(text, limit)
	}

	sep := separators[0]
	rest := separators[1:]
	if sep == "" {
		return hardCut(text, limit)
	}

	parts := strings.SplitAfter(text, sep)
	if len(parts) == 1 {
		// Separator absent, fall through to the next finer one.
		return s.split(text, rest)
	}

	var pieces []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) > limit {
			pieces = append(pieces, s.split(part, rest)...)
		} else {
			pieces = append(pieces, part)
		}
	}
	return mergePieces(pieces, limit)
}

// mergePieces greedily joins adjacent undersized pieces up to the limit.
func mergePieces(pieces []string, limit int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if curLen > 0 && curLen+n > limit {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		cur.WriteString(p)
		curLen += n
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}

// hardCut slices text into limit-sized pieces at rune boundaries.
// Pieces are byte slices of the original string, never a re-encoding:
// going through []rune would rewrite invalid UTF-8 bytes as U+FFFD and
// break exact reconstruction.
func hardCut(text string, limit int) []string {
	var out []string
	for len(text) > 0 {
		end := 0
		for count := 0; count < limit && end < len(text); count++ {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
		}
		out = append(out, text[:end])
		text = text[end:]
	}
	return out
}

// tailRunes returns the byte-identical suffix of text holding its last
// n runes. Invalid UTF-8 bytes count as one rune each, matching
// utf8.RuneCountInString.
func tailRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}
	start := len(text)
	for i := 0; i < n && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	return text[start:]
}

// ChunkPages splits every page of a loaded document and stamps the resulting
// chunks with normalized metadata. ChunkIndex runs 0..TotalChunks-1 across
// the whole document, not per page.
//
// Pages with no extractable text are skipped; if every page is empty the
// document is rejected with ErrEmptyDocument.
func (s *Splitter) ChunkPages(pages []PageText, uploadedAt time.Time) ([]Chunk, error) {
	var chunks []Chunk

	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		contents, err := s.Split(page.Text)
		if err != nil {
			return nil, err
		}
		meta := Normalize(page.Metadata)
		for _, content := range contents {
			chunks = append(chunks, Chunk{Content: content, Metadata: meta})
		}
	}

	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	total := len(chunks)
	for i := range chunks {
		chunks[i].Metadata.ChunkIndex = i
		chunks[i].Metadata.TotalChunks = total
		chunks[i].Metadata.ChunkSize = utf8.RuneCountInString(chunks[i].Content)
		chunks[i].Metadata.UploadedAt = uploadedAt
	}
	return chunks, nil
}
