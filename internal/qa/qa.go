// Package qa implements conversational question answering over the ingested
// documents: condense the question against recent history, retrieve relevant
// chunks, then synthesize an answer that declares whether it used them.
package qa

import (
	"context"
	"errors"
	"strings"

	"github.com/docuquery/docqa/internal/chunk"
	"github.com/docuquery/docqa/internal/store"
)

const (
	// HistoryWindow is the number of trailing messages considered when
	// condensing and answering. Older messages are ignored.
	HistoryWindow = 10

	// SourcePreviewLen bounds the content excerpt returned per source.
	SourcePreviewLen = 200

	// Markers the model must emit as the first token of its answer.
	markerDocs    = "[DOCS]"
	markerGeneral = "[GENERAL]"
)

// Message roles. Anything that is not RoleUser formats as the assistant.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyQuestion rejects blank questions before any model call.
var ErrEmptyQuestion = errors.New("question must not be empty")

// Message is one turn of the conversation history supplied by the caller.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source is a document excerpt the answer was grounded on.
type Source struct {
	Content  string         `json:"content"`
	Metadata chunk.Metadata `json:"metadata"`
}

// Answer is the synthesized reply. Sources is non-empty only when the model
// declared the answer document-grounded via the [DOCS] marker; it is always
// non-nil so the JSON surface renders [] rather than null.
type Answer struct {
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
	UsedDocs bool     `json:"usedDocs"`
}

// Completer abstracts the chat model: one prompt in, one completion out.
// The interface lives on the consumer side so tests can substitute a spy.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Retriever abstracts chunk retrieval for the chain.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts ...store.SearchOption) ([]store.SearchHit, error)
}

// formatHistory renders the trailing HistoryWindow messages as
// "Human:"/"Assistant:" lines, matching what the prompts expect.
func formatHistory(history []Message) string {
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}

	lines := make([]string, 0, len(history))
	for _, msg := range history {
		speaker := "Assistant"
		if msg.Role == RoleUser {
			speaker = "Human"
		}
		lines = append(lines, speaker+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}

// formatContext joins retrieved chunk contents for the answer prompt.
func formatContext(hits []store.SearchHit) string {
	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		parts = append(parts, hit.Chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}

// truncateRunes shortens s to at most n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
