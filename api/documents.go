package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/docuquery/docqa/internal/chunk"
	"github.com/docuquery/docqa/internal/store"
)

// DocumentsHandler exposes the collection listing and clearing endpoints.
type DocumentsHandler struct {
	svc    Service
	logger *slog.Logger
}

// NewDocumentsHandler creates the documents handler.
func NewDocumentsHandler(svc Service, logger *slog.Logger) *DocumentsHandler {
	return &DocumentsHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/documents", h.summary)
	mux.HandleFunc("GET /api/documents/rows", h.rows)
	mux.HandleFunc("DELETE /api/documents", h.clear)
}

// SummaryResponse is the payload of GET /api/documents.
type SummaryResponse struct {
	HasDocuments bool     `json:"hasDocuments"`
	FileNames    []string `json:"fileNames"`
	Count        int64    `json:"count"`
}

func (h *DocumentsHandler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context())
	if err != nil {
		h.logger.Error("collection summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check documents", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SummaryResponse{
		HasDocuments: summary.HasDocuments,
		FileNames:    summary.FileNames,
		Count:        summary.Count,
	})
}

// RowsResponse is the payload of GET /api/documents/rows.
type RowsResponse struct {
	Documents []RowDocument `json:"documents"`
	Count     int           `json:"count"`
	Limit     int           `json:"limit"`
	Offset    int           `json:"offset"`
}

// RowDocument is one stored chunk in a listing response.
type RowDocument struct {
	Content  string         `json:"content"`
	Metadata chunk.Metadata `json:"metadata"`
}

func (h *DocumentsHandler) rows(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", store.DefaultListLimit)
	offset := queryInt(r, "offset", 0)

	chunks, err := h.svc.ListChunks(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("listing chunks failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents", err.Error())
		return
	}

	documents := make([]RowDocument, 0, len(chunks))
	for _, c := range chunks {
		documents = append(documents, RowDocument{Content: c.Content, Metadata: c.Metadata})
	}

	writeJSON(w, http.StatusOK, RowsResponse{
		Documents: documents,
		Count:     len(documents),
		Limit:     limit,
		Offset:    offset,
	})
}

// ClearResponse is the payload of DELETE /api/documents.
type ClearResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *DocumentsHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearAll(r.Context()); err != nil {
		h.logger.Error("clearing collection failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear documents", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ClearResponse{
		Success: true,
		Message: "All documents deleted successfully. Please re-upload your documents.",
	})
}

// queryInt parses an integer query parameter, falling back to def on
// absence or garbage.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
