package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"finsight/internal/rag/schema"
	"finsight/pkg/logger"
)

type stubAsker struct {
	lastQuestion string
	lastFilter   map[string]string
	result       *schema.AnsweredResult
}

func (s *stubAsker) AskFiltered(_ context.Context, question string, filter map[string]string) *schema.AnsweredResult {
	s.lastQuestion = question
	s.lastFilter = filter
	return s.result
}

type stubIngestor struct {
	chunks  int
	err     error
	deleted []string
}

func (s *stubIngestor) IngestBatch(context.Context, []*schema.Document) (int, error) {
	return s.chunks, s.err
}

func (s *stubIngestor) DeleteDocument(_ context.Context, docID string) error {
	s.deleted = append(s.deleted, docID)
	return nil
}

func newTestRouter(asker *stubAsker, ingestor *stubIngestor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, NewAPI(asker, ingestor, logger.New("server-test")))
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	router := newTestRouter(&stubAsker{}, &stubIngestor{})
	w := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestAskHandlerReturnsResult(t *testing.T) {
	asker := &stubAsker{result: &schema.AnsweredResult{
		AnswerText: "Revenue grew 12% [1].",
		Citations: map[int]schema.Citation{
			1: {DocID: "10-K-2023", ChunkID: "abc"},
		},
	}}
	router := newTestRouter(asker, &stubIngestor{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/ask", map[string]interface{}{
		"question": "What was revenue growth?",
		"filter":   map[string]string{"source_type": "filing"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	if asker.lastQuestion != "What was revenue growth?" {
		t.Errorf("asker saw question %q", asker.lastQuestion)
	}
	if asker.lastFilter["source_type"] != "filing" {
		t.Errorf("asker saw filter %v", asker.lastFilter)
	}

	var result schema.AnsweredResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.AnswerText != "Revenue grew 12% [1]." {
		t.Errorf("AnswerText = %q", result.AnswerText)
	}
	if result.Citations[1].DocID != "10-K-2023" {
		t.Errorf("citation [1] = %+v", result.Citations[1])
	}
}

func TestAskHandlerRejectsEmptyQuestion(t *testing.T) {
	router := newTestRouter(&stubAsker{result: &schema.AnsweredResult{}}, &stubIngestor{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/ask", map[string]interface{}{"question": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAskHandlerDegradedResultIsStillOK(t *testing.T) {
	asker := &stubAsker{result: &schema.AnsweredResult{
		AnswerText: "No documents have been indexed yet, so there is no evidence to answer from.",
		Citations:  map[int]schema.Citation{},
		Degraded:   true,
	}}
	router := newTestRouter(asker, &stubIngestor{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/ask", map[string]interface{}{"question": "anything"})
	if w.Code != http.StatusOK {
		t.Errorf("degraded answers must not turn into HTTP errors, status = %d", w.Code)
	}
}

func TestIngestHandler(t *testing.T) {
	ingestor := &stubIngestor{chunks: 3}
	router := newTestRouter(&stubAsker{}, ingestor)

	w := doJSON(t, router, http.MethodPost, "/api/v1/documents", map[string]interface{}{
		"documents": []map[string]interface{}{
			{"doc_id": "10-K-2023", "raw_text": "Revenue grew.", "metadata": map[string]interface{}{"source_type": "filing"}},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Chunks int `json:"chunks_indexed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Chunks != 3 {
		t.Errorf("chunks_indexed = %d, want 3", resp.Chunks)
	}
}

func TestIngestHandlerRejectsEmptyBatch(t *testing.T) {
	router := newTestRouter(&stubAsker{}, &stubIngestor{})
	w := doJSON(t, router, http.MethodPost, "/api/v1/documents", map[string]interface{}{"documents": []interface{}{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestIngestHandlerSurfacesPipelineError(t *testing.T) {
	ingestor := &stubIngestor{chunks: 1, err: fmt.Errorf("document d2 has unknown source type %q", "tweet")}
	router := newTestRouter(&stubAsker{}, ingestor)

	w := doJSON(t, router, http.MethodPost, "/api/v1/documents", map[string]interface{}{
		"documents": []map[string]interface{}{{"doc_id": "d1", "raw_text": "x"}},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestDeleteDocumentHandler(t *testing.T) {
	ingestor := &stubIngestor{}
	router := newTestRouter(&stubAsker{}, ingestor)

	w := doJSON(t, router, http.MethodDelete, "/api/v1/documents/10-K-2023", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(ingestor.deleted) != 1 || ingestor.deleted[0] != "10-K-2023" {
		t.Errorf("deleted = %v, want [10-K-2023]", ingestor.deleted)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	router := newTestRouter(&stubAsker{result: &schema.AnsweredResult{}}, &stubIngestor{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/ask", map[string]interface{}{"question": "q"})
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("response carries no X-Request-ID header")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", bytes.NewBufferString(`{"question":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "caller-supplied")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "caller-supplied" {
		t.Errorf("X-Request-ID = %q, want the caller's id echoed", got)
	}
}
