package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/docuquery/docqa/internal/chunk"
	"github.com/docuquery/docqa/internal/loader"
)

// UploadHandler ingests uploaded documents.
type UploadHandler struct {
	svc      Service
	maxBytes int64
	logger   *slog.Logger
}

// NewUploadHandler creates the upload handler. maxBytes caps the accepted
// request body size; non-positive means 32 MiB.
func NewUploadHandler(svc Service, maxBytes int64, logger *slog.Logger) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &UploadHandler{svc: svc, maxBytes: maxBytes, logger: logger}
}

// RegisterRoutes registers upload routes on the given mux.
func (h *UploadHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/upload", h.upload)
}

// UploadResponse is the success payload of POST /api/upload.
type UploadResponse struct {
	Success  bool   `json:"success"`
	FileName string `json:"fileName"`
	Chunks   int    `json:"chunks"`
	Message  string `json:"message"`
}

// upload accepts a multipart form with the document under the "file" field
// ("pdf" is accepted as a legacy alias), stages it in a temp file and hands
// it to the service for ingestion.
func (h *UploadHandler) upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large",
			fmt.Sprintf("the upload exceeds the %d byte limit", h.maxBytes))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("pdf")
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large",
				fmt.Sprintf("the upload exceeds the %d byte limit", h.maxBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "no file provided",
			`send the document as multipart form field "file"`)
		return
	}
	defer file.Close() //nolint:errcheck // read-only handle

	tempPath, err := stageUpload(file, header.Filename)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large",
				fmt.Sprintf("the upload exceeds the %d byte limit", h.maxBytes))
			return
		}
		h.logger.Error("staging upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload", "")
		return
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil {
			h.logger.Warn("failed to clean up temp file", "path", tempPath, "error", err)
		}
	}()

	result, err := h.svc.Ingest(r.Context(), tempPath, header.Filename)
	if err != nil {
		h.respondIngestError(w, header.Filename, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Success:  true,
		FileName: result.FileName,
		Chunks:   result.Chunks,
		Message:  fmt.Sprintf("Successfully uploaded and processed %s", result.FileName),
	})
}

// respondIngestError maps ingestion failures to status codes: malformed or
// empty input is the client's fault, everything else is ours.
func (h *UploadHandler) respondIngestError(w http.ResponseWriter, fileName string, err error) {
	switch {
	case errors.Is(err, loader.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, "unsupported file type",
			"only PDF and plain text documents are supported")
	case errors.Is(err, loader.ErrNoContent), errors.Is(err, chunk.ErrEmptyDocument):
		writeError(w, http.StatusBadRequest, "document has no extractable text", err.Error())
	default:
		h.logger.Error("ingestion failed", "fileName", fileName, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to upload and process document", err.Error())
	}
}

// stageUpload copies the uploaded file into a temp file and returns its
// path. The caller removes the file when done.
func stageUpload(src io.Reader, originalName string) (string, error) {
	// The original name goes into the pattern for debuggability only;
	// filepath.Base strips any path components a hostile client sends.
	tmp, err := os.CreateTemp("", "upload-*-"+filepath.Base(originalName))
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()           //nolint:errcheck // error path
		os.Remove(tmp.Name()) //nolint:errcheck // error path
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck // error path
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return tmp.Name(), nil
}
