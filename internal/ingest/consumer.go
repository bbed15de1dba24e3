package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"finsight/internal/rag/pipeline"
	"finsight/internal/rag/schema"
	"finsight/pkg/logger"
)

// DocumentConsumer consumes Document records from a Kafka topic and feeds
// them to the indexing pipeline. Messages are committed only after a
// successful ingest, so a crash re-delivers rather than drops; re-ingest
// is idempotent, which makes the redelivery safe.
type DocumentConsumer struct {
	reader   *kafka.Reader
	indexing *pipeline.IndexingPipeline
	log      *logger.Logger
}

// NewDocumentConsumer creates a new DocumentConsumer.
func NewDocumentConsumer(brokers []string, topic, groupID string, indexing *pipeline.IndexingPipeline, log *logger.Logger) *DocumentConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &DocumentConsumer{
		reader:   reader,
		indexing: indexing,
		log:      log,
	}
}

// Start begins consuming documents until the context is cancelled.
func (c *DocumentConsumer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				c.log.Info("stopping document consumer")
				return
			default:
				msg, err := c.reader.FetchMessage(ctx)
				if err != nil {
					if ctx.Err() == nil {
						c.log.WithError(err).Error("failed to fetch message from kafka")
					}
					continue
				}

				if err := c.handle(ctx, msg); err != nil {
					// Leave the offset uncommitted so the message is
					// redelivered; re-ingest is idempotent.
					c.log.WithError(err).WithPayload(map[string]interface{}{
						"topic":     msg.Topic,
						"partition": msg.Partition,
						"offset":    msg.Offset,
					}).Error("failed to ingest document message")
					continue
				}

				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					c.log.WithError(err).Error("failed to commit kafka message")
				}
			}
		}
	}()
}

// handle decodes one message and runs it through the indexing pipeline.
// A message without a doc id gets a generated one: it will never be
// superseded, but it is still retrievable.
func (c *DocumentConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var doc schema.Document
	if err := json.Unmarshal(msg.Value, &doc); err != nil {
		return fmt.Errorf("failed to decode document message: %w", err)
	}
	if doc.DocID == "" {
		if len(msg.Key) > 0 {
			doc.DocID = string(msg.Key)
		} else {
			doc.DocID = uuid.New().String()
		}
	}

	n, err := c.indexing.IngestDocument(ctx, &doc)
	if err != nil {
		return err
	}
	c.log.WithPayload(map[string]interface{}{
		"doc_id": doc.DocID,
		"chunks": n,
	}).Info("document ingested from stream")
	return nil
}

// Close closes the underlying Kafka reader.
func (c *DocumentConsumer) Close() error {
	return c.reader.Close()
}
