package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuquery/docqa/internal/chunk"
	"github.com/docuquery/docqa/internal/docqa"
	"github.com/docuquery/docqa/internal/loader"
	"github.com/docuquery/docqa/internal/log"
	"github.com/docuquery/docqa/internal/qa"
	"github.com/docuquery/docqa/internal/store"
)

// fakeService implements Service with canned results.
type fakeService struct {
	ingestResult docqa.IngestResult
	ingestErr    error
	askAnswer    qa.Answer
	askErr       error
	summary      store.Summary
	summaryErr   error
	chunks       []chunk.Chunk
	clearErr     error

	ingestedPath string
	ingestedName string
	askQuestion  string
	askHistory   []qa.Message
	listLimit    int
	listOffset   int
	clearCalls   int
}

func (f *fakeService) Ingest(ctx context.Context, path, originalName string) (docqa.IngestResult, error) {
	f.ingestedPath = path
	f.ingestedName = originalName
	return f.ingestResult, f.ingestErr
}

func (f *fakeService) Ask(ctx context.Context, question string, history []qa.Message) (qa.Answer, error) {
	f.askQuestion = question
	f.askHistory = history
	return f.askAnswer, f.askErr
}

func (f *fakeService) Summary(ctx context.Context) (store.Summary, error) {
	return f.summary, f.summaryErr
}

func (f *fakeService) ListChunks(ctx context.Context, limit, offset int) ([]chunk.Chunk, error) {
	f.listLimit = limit
	f.listOffset = offset
	return f.chunks, nil
}

func (f *fakeService) ClearAll(ctx context.Context) error {
	f.clearCalls++
	return f.clearErr
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestServer(t *testing.T, svc Service, opts Options) http.Handler {
	t.Helper()
	return NewServer(svc, fakePinger{}, opts, log.NewNop()).Handler()
}

func TestHealthEndpoints(t *testing.T) {
	handler := newTestServer(t, &fakeService{}, Options{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessFailure(t *testing.T) {
	handler := NewServer(&fakeService{}, fakePinger{err: errors.New("down")}, Options{}, log.NewNop()).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAsk(t *testing.T) {
	svc := &fakeService{
		askAnswer: qa.Answer{
			Answer:   "It is about gophers.",
			Sources:  []qa.Source{{Content: "gophers...", Metadata: chunk.Metadata{FileName: "g.pdf"}}},
			UsedDocs: true,
		},
	}
	handler := newTestServer(t, svc, Options{})

	body, err := json.Marshal(AskRequest{
		Question:    "What is it about?",
		ChatHistory: []qa.Message{{Role: qa.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "It is about gophers.", resp.Answer)
	assert.True(t, resp.UsedDocs)
	assert.Len(t, resp.Sources, 1)

	assert.Equal(t, "What is it about?", svc.askQuestion)
	assert.Len(t, svc.askHistory, 1)
}

func TestAskErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		askErr     error
		wantStatus int
		wantError  string
	}{
		{
			name:       "malformed json",
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "empty question",
			body:       `{"question":"  "}`,
			askErr:     qa.ErrEmptyQuestion,
			wantStatus: http.StatusBadRequest,
			wantError:  "question is required",
		},
		{
			name:       "no documents ingested",
			body:       `{"question":"anything"}`,
			askErr:     store.ErrNotInitialized,
			wantStatus: http.StatusBadRequest,
			wantError:  "no documents uploaded yet",
		},
		{
			name:       "upstream failure",
			body:       `{"question":"anything"}`,
			askErr:     errors.New("model quota exceeded"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "failed to process question",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestServer(t, &fakeService{askErr: tt.askErr}, Options{})

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewBufferString(tt.body)))

			require.Equal(t, tt.wantStatus, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

func multipartUpload(t *testing.T, field, fileName string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, fileName)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	svc := &fakeService{ingestResult: docqa.IngestResult{FileName: "notes.txt", Chunks: 4}}
	handler := newTestServer(t, svc, Options{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, multipartUpload(t, "file", "notes.txt", []byte("some document text")))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "notes.txt", resp.FileName)
	assert.Equal(t, 4, resp.Chunks)

	assert.Equal(t, "notes.txt", svc.ingestedName)
	assert.NotEmpty(t, svc.ingestedPath)

	// The staged temp file must be gone after the request.
	_, err := os.Stat(svc.ingestedPath)
	assert.True(t, os.IsNotExist(err), "temp file %s not cleaned up", svc.ingestedPath)
}

func TestUploadLegacyFieldName(t *testing.T) {
	svc := &fakeService{ingestResult: docqa.IngestResult{FileName: "doc.pdf", Chunks: 1}}
	handler := newTestServer(t, svc, Options{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, multipartUpload(t, "pdf", "doc.pdf", []byte("%PDF-1.4 fake")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "doc.pdf", svc.ingestedName)
}

func TestUploadErrors(t *testing.T) {
	t.Run("no file field", func(t *testing.T) {
		handler := newTestServer(t, &fakeService{}, Options{})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewBufferString("plain body"))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=zzz")
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported type", func(t *testing.T) {
		handler := newTestServer(t, &fakeService{ingestErr: loader.ErrUnsupportedType}, Options{})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, multipartUpload(t, "file", "image.png", []byte{0x89, 0x50, 0x4e, 0x47}))

		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unsupported file type", resp.Error)
	})

	t.Run("empty document", func(t *testing.T) {
		handler := newTestServer(t, &fakeService{ingestErr: loader.ErrNoContent}, Options{})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, multipartUpload(t, "file", "empty.pdf", []byte("%PDF-")))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("body over limit", func(t *testing.T) {
		handler := newTestServer(t, &fakeService{}, Options{MaxUploadBytes: 64})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, multipartUpload(t, "file", "big.txt", bytes.Repeat([]byte("x"), 4096)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestDocumentsSummary(t *testing.T) {
	svc := &fakeService{summary: store.Summary{
		HasDocuments: true,
		FileNames:    []string{"a.pdf"},
		Count:        7,
	}}
	handler := newTestServer(t, svc, Options{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.HasDocuments)
	assert.Equal(t, []string{"a.pdf"}, resp.FileNames)
	assert.Equal(t, int64(7), resp.Count)
}

func TestDocumentsRows(t *testing.T) {
	svc := &fakeService{chunks: []chunk.Chunk{
		{Content: "one", Metadata: chunk.Metadata{ChunkIndex: 0}},
		{Content: "two", Metadata: chunk.Metadata{ChunkIndex: 1}},
	}}
	handler := newTestServer(t, svc, Options{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents/rows?limit=2&offset=4", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp RowsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 2, resp.Limit)
	assert.Equal(t, 4, resp.Offset)
	assert.Equal(t, 2, svc.listLimit)
	assert.Equal(t, 4, svc.listOffset)
}

func TestDocumentsRowsDefaults(t *testing.T) {
	svc := &fakeService{}
	handler := newTestServer(t, svc, Options{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents/rows?limit=junk&offset=-3", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.DefaultListLimit, svc.listLimit)
	assert.Equal(t, 0, svc.listOffset)
}

func TestDocumentsClear(t *testing.T) {
	svc := &fakeService{}
	handler := newTestServer(t, svc, Options{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/documents", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.clearCalls)

	var resp ClearResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestRateLimit(t *testing.T) {
	handler := newTestServer(t, &fakeService{}, Options{RateLimitRPS: 0.001, RateLimitBurst: 2})

	var statuses []int
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}

	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Equal(t, http.StatusOK, statuses[1])
	assert.Equal(t, http.StatusTooManyRequests, statuses[2])
	assert.Equal(t, http.StatusTooManyRequests, statuses[3])
}

func TestRateLimitPerIP(t *testing.T) {
	handler := newTestServer(t, &fakeService{}, Options{RateLimitRPS: 0.001, RateLimitBurst: 1})

	for i, addr := range []string{"198.51.100.1:1", "198.51.100.2:1", "198.51.100.3:1"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = addr
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "request %d from fresh IP must pass", i)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := chainMiddleware(panicking, recoveryMiddleware(log.NewNop()))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		realIP     string
		forwarded  string
		trustProxy bool
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.1:5000",
			want:       "192.0.2.1",
		},
		{
			name:       "headers ignored without trust",
			remoteAddr: "192.0.2.1:5000",
			realIP:     "203.0.113.7",
			want:       "192.0.2.1",
		},
		{
			name:       "x-real-ip trusted",
			remoteAddr: "10.0.0.1:80",
			realIP:     "203.0.113.7",
			trustProxy: true,
			want:       "203.0.113.7",
		},
		{
			name:       "x-forwarded-for first hop",
			remoteAddr: "10.0.0.1:80",
			forwarded:  "203.0.113.8, 10.0.0.2",
			trustProxy: true,
			want:       "203.0.113.8",
		},
		{
			name:       "garbage header falls back",
			remoteAddr: "10.0.0.1:80",
			realIP:     "not-an-ip",
			trustProxy: true,
			want:       "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			assert.Equal(t, tt.want, clientIP(req, tt.trustProxy))
		})
	}
}
