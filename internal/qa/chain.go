package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Chain runs the three-stage conversational QA pipeline: condense the
// follow-up question into a standalone one, retrieve relevant chunks, then
// synthesize an answer with the marker protocol for source attribution.
type Chain struct {
	completer Completer
	retriever Retriever
	logger    *slog.Logger
}

// NewChain creates a Chain. A nil logger falls back to slog.Default().
func NewChain(completer Completer, retriever Retriever, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		completer: completer,
		retriever: retriever,
		logger:    logger,
	}
}

// Ask answers question in the context of history.
//
// With a non-empty history the question is first rewritten into a standalone
// question; a condense failure aborts the whole call rather than silently
// answering the unrewritten question with stale pronouns. Retrieval errors,
// including store.ErrNotInitialized when nothing was ever ingested, pass
// through to the caller.
func (c *Chain) Ask(ctx context.Context, question string, history []Message) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	historyText := formatHistory(history)

	standalone := question
	if len(history) > 0 {
		rewritten, err := c.completer.Complete(ctx, condensePrompt(historyText, question))
		if err != nil {
			return Answer{}, fmt.Errorf("condensing question: %w", err)
		}
		if rewritten = strings.TrimSpace(rewritten); rewritten != "" {
			standalone = rewritten
		}
	}

	start := time.Now()
	hits, err := c.retriever.Retrieve(ctx, standalone)
	if err != nil {
		return Answer{}, err
	}

	raw, err := c.completer.Complete(ctx, answerPrompt(historyText, formatContext(hits), standalone))
	if err != nil {
		return Answer{}, fmt.Errorf("synthesizing answer: %w", err)
	}

	usedDocs, marked, clean := parseMarker(raw)
	if !marked {
		// No marker: treat as general rather than fabricating attribution,
		// but record the protocol violation.
		c.logger.Warn("model response missing [DOCS]/[GENERAL] marker")
	}

	answer := Answer{
		Answer:   clean,
		Sources:  []Source{},
		UsedDocs: usedDocs,
	}
	if usedDocs {
		for _, hit := range hits {
			answer.Sources = append(answer.Sources, Source{
				Content:  truncateRunes(hit.Chunk.Content, SourcePreviewLen),
				Metadata: hit.Chunk.Metadata,
			})
		}
	}

	c.logger.Debug("answered question",
		"usedDocs", usedDocs, "sources", len(answer.Sources),
		"retrieved", len(hits), "duration", time.Since(start))

	return answer, nil
}

// parseMarker strips a leading [DOCS] or [GENERAL] marker, case-insensitive,
// and reports whether the answer declared itself document-grounded. Text
// without a marker is returned trimmed and unattributed.
func parseMarker(raw string) (usedDocs, marked bool, clean string) {
	trimmed := strings.TrimSpace(raw)
	upper := strings.ToUpper(trimmed)

	switch {
	case strings.HasPrefix(upper, markerDocs):
		return true, true, strings.TrimSpace(trimmed[len(markerDocs):])
	case strings.HasPrefix(upper, markerGeneral):
		return false, true, strings.TrimSpace(trimmed[len(markerGeneral):])
	default:
		return false, false, trimmed
	}
}
