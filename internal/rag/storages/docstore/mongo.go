package docstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
)

// MongoDocStore persists chunks in a MongoDB collection, keyed by chunk id
// with a doc_id index for re-ingestion deletes.
type MongoDocStore struct {
	collection *mongo.Collection
}

// NewMongoDocStore wraps the given collection and ensures the doc_id index
// exists.
func NewMongoDocStore(ctx context.Context, db *mongo.Database, collectionName string) (*MongoDocStore, error) {
	coll := db.Collection(collectionName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "doc_id", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure doc_id index: %w", err)
	}
	return &MongoDocStore{collection: coll}, nil
}

// Put upserts chunks by id.
func (s *MongoDocStore) Put(ctx context.Context, chunks []*schema.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, len(chunks))
	for i, c := range chunks {
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": c.ChunkID}).
			SetReplacement(c).
			SetUpsert(true)
	}
	_, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to write chunks: %w", err)
	}
	return nil
}

// Get returns the chunks found for the given ids, keyed by chunk id.
func (s *MongoDocStore) Get(ctx context.Context, ids []string) (map[string]*schema.Chunk, error) {
	if len(ids) == 0 {
		return map[string]*schema.Chunk{}, nil
	}
	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer cursor.Close(ctx)

	result := make(map[string]*schema.Chunk, len(ids))
	for cursor.Next(ctx) {
		var c schema.Chunk
		if err := cursor.Decode(&c); err != nil {
			return nil, fmt.Errorf("failed to decode chunk: %w", err)
		}
		result[c.ChunkID] = &c
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteByDoc removes every chunk of the given document and returns their
// ids.
func (s *MongoDocStore) DeleteByDoc(ctx context.Context, docID string) ([]string, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"doc_id": docID},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks for document %s: %w", docID, err)
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if _, err := s.collection.DeleteMany(ctx, bson.M{"doc_id": docID}); err != nil {
		return nil, fmt.Errorf("failed to delete chunks for document %s: %w", docID, err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

var _ interfaces.DocStore = (*MongoDocStore)(nil)
