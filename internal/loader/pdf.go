package loader

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// loadPDF extracts one Page per PDF page, carrying the document's info
// dictionary (author, title, creator, producer) in nested metadata the
// normalizer knows how to flatten.
func (l *Loader) loadPDF(data []byte, source, fileName string) (pages []Page, err error) {
	// The pdf package panics on some malformed cross-reference tables
	// instead of returning an error. Contain that to a LoadError.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parsing pdf %q: %v: %w", fileName, r, ErrNoContent)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading pdf %q: %w", fileName, err)
	}

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return nil, fmt.Errorf("pdf %q has no pages: %w", fileName, ErrNoContent)
	}

	info := pdfInfo(reader)

	extracted := 0
	for num := 1; num <= totalPages; num++ {
		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}

		text, textErr := page.GetPlainText(nil)
		if textErr != nil {
			l.logger.Warn("skipping unreadable pdf page",
				"file", fileName, "page", num, "error", textErr)
			continue
		}
		if strings.TrimSpace(text) != "" {
			extracted++
		}

		pages = append(pages, Page{
			Text: text,
			Metadata: map[string]any{
				"source":       source,
				"fileName":     fileName,
				"documentType": "pdf",
				"pdf": map[string]any{
					"totalPages": totalPages,
					"info":       info,
				},
				"loc": map[string]any{"pageNumber": num},
			},
		})
	}

	if extracted == 0 {
		return nil, fmt.Errorf("pdf %q yielded no text: %w", fileName, ErrNoContent)
	}

	l.logger.Debug("loaded pdf document",
		"file", fileName, "pages", totalPages, "pages_with_text", extracted)

	return pages, nil
}

// pdfInfo reads the document info dictionary. Missing entries come back as
// empty strings; a missing dictionary yields an empty map.
func pdfInfo(reader *pdf.Reader) map[string]any {
	info := map[string]any{}
	dict := reader.Trailer().Key("Info")
	if dict.IsNull() {
		return info
	}
	for _, key := range []string{"Author", "Title", "Creator", "Producer"} {
		if v := dict.Key(key); !v.IsNull() {
			info[key] = v.Text()
		}
	}
	return info
}
