package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
	"finsight/pkg/logger"
)

// Column names of the Milvus collection. Only doc_id and source_type are
// filterable server-side; they are the two fields the retriever's filter
// contract guarantees.
const (
	FieldID         = "id"
	FieldVector     = "vector"
	FieldDocID      = "doc_id"
	FieldSourceType = "source_type"
)

// MilvusIndex implements VectorIndex on a Milvus collection. Vectors are
// L2-normalized before insert and search so inner-product ranking equals
// the cosine contract of the in-memory baseline. Tie order within equal
// scores follows the server and is validated against the baseline within
// a recall tolerance rather than exactly.
type MilvusIndex struct {
	log        *logger.Logger
	client     client.Client
	collection string
	dim        int
}

// NewMilvusIndex connects to Milvus, creates the collection if it does not
// exist, and loads it for search.
func NewMilvusIndex(ctx context.Context, address, collection string, dimension int, log *logger.Logger) (*MilvusIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dimension)
	}
	c, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", address, err)
	}

	idx := &MilvusIndex{log: log, client: c, collection: collection, dim: dimension}
	if err := idx.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return idx, nil
}

func (m *MilvusIndex) ensureCollection(ctx context.Context) error {
	exists, err := m.client.HasCollection(ctx, m.collection)
	if err != nil {
		return fmt.Errorf("failed to check milvus collection: %w", err)
	}
	if !exists {
		sch := entity.NewSchema().
			WithName(m.collection).
			WithDescription("chunk embeddings").
			WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(FieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(m.dim))).
			WithField(entity.NewField().WithName(FieldDocID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
			WithField(entity.NewField().WithName(FieldSourceType).WithDataType(entity.FieldTypeVarChar).WithMaxLength(32))
		if err := m.client.CreateCollection(ctx, sch, 1); err != nil {
			return fmt.Errorf("failed to create milvus collection: %w", err)
		}
		vecIdx, err := entity.NewIndexIvfFlat(entity.IP, 128)
		if err != nil {
			return fmt.Errorf("failed to build milvus index params: %w", err)
		}
		if err := m.client.CreateIndex(ctx, m.collection, FieldVector, vecIdx, false); err != nil {
			return fmt.Errorf("failed to create milvus vector index: %w", err)
		}
	}
	if err := m.client.LoadCollection(ctx, m.collection, false); err != nil {
		return fmt.Errorf("failed to load milvus collection: %w", err)
	}
	return nil
}

// Dimension returns the fixed vector length enforced by this index.
func (m *MilvusIndex) Dimension() int { return m.dim }

// Upsert inserts or replaces one entry.
func (m *MilvusIndex) Upsert(ctx context.Context, chunkID string, vector []float32, metadata map[string]string) error {
	if len(vector) != m.dim {
		return &schema.DimensionMismatchError{Want: m.dim, Got: len(vector)}
	}

	idCol := entity.NewColumnVarChar(FieldID, []string{chunkID})
	vecCol := entity.NewColumnFloatVector(FieldVector, m.dim, [][]float32{normalize(vector)})
	docCol := entity.NewColumnVarChar(FieldDocID, []string{metadata[schema.MetadataKeyDocID]})
	srcCol := entity.NewColumnVarChar(FieldSourceType, []string{metadata[schema.MetadataKeySourceType]})

	if _, err := m.client.Upsert(ctx, m.collection, "", idCol, vecCol, docCol, srcCol); err != nil {
		m.log.WithError(err).Error("failed to upsert entry into milvus")
		return fmt.Errorf("failed to upsert into milvus: %w", err)
	}
	return nil
}

// Delete removes the entry for chunkID; absent ids are a no-op.
func (m *MilvusIndex) Delete(ctx context.Context, chunkID string) error {
	expr := fmt.Sprintf(`%s == %s`, FieldID, strconv.Quote(chunkID))
	if err := m.client.Delete(ctx, m.collection, "", expr); err != nil {
		return fmt.Errorf("failed to delete from milvus: %w", err)
	}
	return nil
}

// Search runs an inner-product search over normalized vectors, which is
// cosine similarity under this index's insertion contract.
func (m *MilvusIndex) Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]schema.SearchHit, error) {
	if len(query) != m.dim {
		return nil, &schema.DimensionMismatchError{Want: m.dim, Got: len(query)}
	}
	if k <= 0 {
		return nil, nil
	}

	searchParams, err := entity.NewIndexIvfFlatSearchParam(10)
	if err != nil {
		return nil, fmt.Errorf("failed to build milvus search params: %w", err)
	}

	results, err := m.client.Search(
		ctx, m.collection, nil, buildFilterExpression(filter), []string{FieldID},
		[]entity.Vector{entity.FloatVector(normalize(query))},
		FieldVector, entity.IP, k, searchParams,
	)
	if err != nil {
		m.log.WithError(err).Error("milvus search failed")
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	var hits []schema.SearchHit
	for _, res := range results {
		var idCol *entity.ColumnVarChar
		for _, field := range res.Fields {
			if col, ok := field.(*entity.ColumnVarChar); ok && col.Name() == FieldID {
				idCol = col
			}
		}
		if idCol == nil {
			m.log.Warn("milvus search result is missing the id column, skipping")
			continue
		}
		ids := idCol.Data()
		for i := 0; i < res.ResultCount && i < len(ids); i++ {
			hits = append(hits, schema.SearchHit{ChunkID: ids[i], Score: res.Scores[i]})
		}
	}
	return hits, nil
}

// Count returns the number of stored entries.
func (m *MilvusIndex) Count(ctx context.Context) (int, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to read milvus collection statistics: %w", err)
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("milvus row_count %q is not a number: %w", stats["row_count"], err)
	}
	return n, nil
}

// Close releases the underlying connection.
func (m *MilvusIndex) Close() error {
	return m.client.Close()
}

// buildFilterExpression turns an exact-match filter into a Milvus boolean
// expression, one equality clause per key.
func buildFilterExpression(filter map[string]string) string {
	if len(filter) == 0 {
		return ""
	}
	conditions := make([]string, 0, len(filter))
	for key, value := range filter {
		conditions = append(conditions, fmt.Sprintf(`%s == %s`, key, strconv.Quote(value)))
	}
	return strings.Join(conditions, " and ")
}

var _ interfaces.VectorIndex = (*MilvusIndex)(nil)
