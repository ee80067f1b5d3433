package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var _ MongoCollection = (*mongo.Collection)(nil)

type fakeCollection struct {
	pipeline any
	inserted []any
	docs     []any
	count    int64
	err      error
}

func (f *fakeCollection) Aggregate(_ context.Context, pipeline any, _ ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error) {
	f.pipeline = pipeline
	if f.err != nil {
		return nil, f.err
	}
	return mongo.NewCursorFromDocuments(f.docs, nil, nil)
}

func (f *fakeCollection) InsertMany(_ context.Context, documents any, _ ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inserted = append(f.inserted, documents.([]any)...)
	return &mongo.InsertManyResult{}, nil
}

func (f *fakeCollection) CountDocuments(_ context.Context, _ any, _ ...options.Lister[options.CountOptions]) (int64, error) {
	return f.count, f.err
}

func TestMongoVectorStore_SearchPipeline(t *testing.T) {
	store := NewMongoVectorStore(&fakeCollection{}, MongoStoreConfig{
		IndexName:     "guideline_index",
		EmbeddingPath: "vec",
		ContentField:  "body",
	}, nil)

	pipeline := store.searchPipeline([]float64{0.1, 0.2}, 5)
	require.Len(t, pipeline, 2)

	search := pipeline[0][0]
	assert.Equal(t, "$vectorSearch", search.Key)
	assert.Equal(t, bson.D{
		{Key: "index", Value: "guideline_index"},
		{Key: "path", Value: "vec"},
		{Key: "queryVector", Value: []float64{0.1, 0.2}},
		{Key: "numCandidates", Value: 50},
		{Key: "limit", Value: 5},
	}, search.Value)

	project := pipeline[1][0]
	assert.Equal(t, "$project", project.Key)
	assert.Contains(t, project.Value, bson.E{Key: "content", Value: "$body"})
}

func TestMongoVectorStore_SearchDecodesHits(t *testing.T) {
	oid := bson.NewObjectID()
	coll := &fakeCollection{docs: []any{
		bson.D{{Key: "_id", Value: oid}, {Key: "content", Value: "Invoice has Total"}, {Key: "score", Value: 0.93}},
		bson.D{{Key: "_id", Value: "g-2"}, {Key: "content", Value: "Customer has Country"}, {Key: "score", Value: 0.71}},
	}}
	store := NewMongoVectorStore(coll, MongoStoreConfig{}, nil)

	results, err := store.Search(context.Background(), []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, oid.Hex(), results[0].Document.ID)
	assert.Equal(t, "Invoice has Total", results[0].Document.Content)
	assert.InDelta(t, 0.93, results[0].Score, 1e-9)
	assert.Equal(t, "g-2", results[1].Document.ID)
	assert.NotNil(t, coll.pipeline)
}

func TestMongoVectorStore_SearchError(t *testing.T) {
	coll := &fakeCollection{err: errors.New("index not ready")}
	store := NewMongoVectorStore(coll, MongoStoreConfig{}, nil)

	_, err := store.Search(context.Background(), []float64{1}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index not ready")
}

func TestMongoVectorStore_AddDocumentsAndCount(t *testing.T) {
	coll := &fakeCollection{count: 7}
	store := NewMongoVectorStore(coll, MongoStoreConfig{}, nil)
	ctx := context.Background()

	require.NoError(t, store.AddDocuments(ctx, []Document{
		{ID: "g-1", Content: "Invoice has Total", Embedding: []float64{1, 0}},
		{Content: "no id", Embedding: []float64{0, 1}},
	}))
	require.Len(t, coll.inserted, 2)
	assert.Equal(t, bson.D{
		{Key: "_id", Value: "g-1"},
		{Key: "text", Value: "Invoice has Total"},
		{Key: "embedding", Value: []float64{1, 0}},
	}, coll.inserted[0])
	assert.Equal(t, bson.D{
		{Key: "text", Value: "no id"},
		{Key: "embedding", Value: []float64{0, 1}},
	}, coll.inserted[1])

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	err = store.AddDocuments(ctx, []Document{{ID: "x"}})
	require.Error(t, err)
}
