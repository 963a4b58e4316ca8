package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/docuquery/docqa/internal/qa"
	"github.com/docuquery/docqa/internal/store"
)

// AskHandler answers questions over the ingested documents.
type AskHandler struct {
	svc    Service
	logger *slog.Logger
}

// NewAskHandler creates the ask handler.
func NewAskHandler(svc Service, logger *slog.Logger) *AskHandler {
	return &AskHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers ask routes on the given mux.
func (h *AskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ask", h.ask)
}

// AskRequest is the payload of POST /api/ask.
type AskRequest struct {
	Question    string       `json:"question"`
	ChatHistory []qa.Message `json:"chatHistory"`
}

// AskResponse is the success payload of POST /api/ask.
type AskResponse struct {
	Answer   string      `json:"answer"`
	Sources  []qa.Source `json:"sources"`
	UsedDocs bool        `json:"usedDocs"`
}

func (h *AskHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	answer, err := h.svc.Ask(r.Context(), req.Question, req.ChatHistory)
	if err != nil {
		h.respondAskError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AskResponse{
		Answer:   answer.Answer,
		Sources:  answer.Sources,
		UsedDocs: answer.UsedDocs,
	})
}

func (h *AskHandler) respondAskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, qa.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "question is required",
			"question must be a non-empty string")
	case errors.Is(err, store.ErrNotInitialized):
		writeError(w, http.StatusBadRequest, "no documents uploaded yet",
			"please upload a document first before asking questions")
	default:
		h.logger.Error("answering question failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process question", err.Error())
	}
}
