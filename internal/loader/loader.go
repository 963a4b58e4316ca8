// Package loader reads source documents and extracts their text page by page.
//
// File type detection relies on content sniffing (magic bytes) rather than
// trusting the file extension or a client-supplied MIME type; a renamed
// binary must not reach the PDF parser. Supported formats: PDF and plain
// text (txt/markdown).
package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNoContent indicates the source document is empty or yielded no
	// extractable text (e.g. a zero-page or image-only PDF).
	ErrNoContent = errors.New("document has no extractable content")

	// ErrUnsupportedType indicates the file content matches no supported
	// format.
	ErrUnsupportedType = errors.New("unsupported document type")
)

// Page is one unit of extracted text with the loader's raw metadata.
// PDF documents produce one Page per source page; formats without page
// structure produce a single Page.
type Page struct {
	Text     string
	Metadata map[string]any
}

// Loader extracts text and metadata from uploaded documents.
type Loader struct {
	logger *slog.Logger
}

// New creates a Loader. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load reads the file at path and extracts its pages. originalName is the
// name the document was uploaded under (path may point at a temp file);
// when empty, the base name of path is used.
func (l *Loader) Load(path, originalName string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document %q: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("document %q: %w", path, ErrNoContent)
	}

	fileName := originalName
	if fileName == "" {
		fileName = filepath.Base(path)
	}

	switch {
	case isPDF(data):
		return l.loadPDF(data, path, fileName)
	case isProbablyText(data):
		return l.loadText(data, path, fileName)
	default:
		return nil, fmt.Errorf("document %q (head %s): %w", fileName, headHex(data, 8), ErrUnsupportedType)
	}
}

// loadText wraps a plain-text document as a single page. Bytes that are
// not valid UTF-8 (Latin-1 or Windows-1252 files pass the sniffer too)
// are replaced with U+FFFD here, before the text reaches the store:
// Postgres rejects invalid UTF-8 in TEXT columns at insert time.
func (l *Loader) loadText(data []byte, source, fileName string) ([]Page, error) {
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
		l.logger.Warn("replaced invalid UTF-8 in text document", "file", fileName)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document %q: %w", fileName, ErrNoContent)
	}

	l.logger.Debug("loaded text document", "file", fileName, "bytes", len(data))

	return []Page{{
		Text: text,
		Metadata: map[string]any{
			"source":       source,
			"fileName":     fileName,
			"documentType": "text",
		},
	}}, nil
}

// isPDF reports whether data starts with the PDF magic bytes.
func isPDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

// isProbablyText reports whether data looks like plain text: no NUL bytes
// and a high ratio of printable characters in the leading sample.
func isProbablyText(data []byte) bool {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.9
}

// headHex renders the first n bytes of data as hex for error messages.
func headHex(data []byte, n int) string {
	if len(data) < n {
		n = len(data)
	}
	return fmt.Sprintf("%x", data[:n])
}
