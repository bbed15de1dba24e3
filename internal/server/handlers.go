package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"finsight/internal/rag/schema"
	"finsight/pkg/logger"
)

// Asker answers questions over the indexed corpus. *pipeline.Coordinator
// satisfies it.
type Asker interface {
	AskFiltered(ctx context.Context, question string, filter map[string]string) *schema.AnsweredResult
}

// Ingestor accepts and removes documents. *pipeline.IndexingPipeline
// satisfies it.
type Ingestor interface {
	IngestBatch(ctx context.Context, docs []*schema.Document) (int, error)
	DeleteDocument(ctx context.Context, docID string) error
}

// API provides the HTTP handlers of the query and ingestion boundary.
type API struct {
	asker    Asker
	ingestor Ingestor
	logger   *logger.Logger
}

// NewAPI creates a new API handler.
func NewAPI(asker Asker, ingestor Ingestor, log *logger.Logger) *API {
	return &API{asker: asker, ingestor: ingestor, logger: log}
}

// HealthHandler reports liveness.
func (a *API) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AskHandler answers a question. The response is always a well-formed
// result: pipeline failures surface as a degraded answer, never as a 5xx.
func (a *API) AskHandler(c *gin.Context) {
	var payload struct {
		Question string            `json:"question"`
		Filter   map[string]string `json:"filter"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithError(err).Warn("invalid ask payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if payload.Question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question must not be empty"})
		return
	}

	result := a.asker.AskFiltered(c.Request.Context(), payload.Question, payload.Filter)
	c.JSON(http.StatusOK, result)
}

// IngestHandler accepts a batch of documents for indexing.
func (a *API) IngestHandler(c *gin.Context) {
	var payload struct {
		Documents []*schema.Document `json:"documents"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithError(err).Warn("invalid ingest payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if len(payload.Documents) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "documents must not be empty"})
		return
	}

	chunks, err := a.ingestor.IngestBatch(c.Request.Context(), payload.Documents)
	if err != nil {
		a.logger.WithError(err).Error("ingest failed")
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":          err.Error(),
			"chunks_indexed": chunks,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks_indexed": chunks})
}

// DeleteDocumentHandler removes a document and all its derived state.
func (a *API) DeleteDocumentHandler(c *gin.Context) {
	docID := c.Param("id")
	if err := a.ingestor.DeleteDocument(c.Request.Context(), docID); err != nil {
		a.logger.WithError(err).Error("delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": docID})
}
