package rag

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// ====== MongoDB Atlas Vector Search 存储 ======

// MongoCollection 是 MongoVectorStore 需要的集合操作子集，*mongo.Collection 满足该接口
type MongoCollection interface {
	Aggregate(ctx context.Context, pipeline any, opts ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error)
	InsertMany(ctx context.Context, documents any, opts ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error)
	CountDocuments(ctx context.Context, filter any, opts ...options.Lister[options.CountOptions]) (int64, error)
}

// MongoStoreConfig Atlas 向量检索配置
type MongoStoreConfig struct {
	IndexName     string `json:"index_name"`
	EmbeddingPath string `json:"embedding_path"`
	ContentField  string `json:"content_field"`
	// numCandidates = limit * CandidateFactor
	CandidateFactor int `json:"candidate_factor"`
}

// MongoVectorStore 基于 $vectorSearch 聚合阶段的向量存储
type MongoVectorStore struct {
	coll   MongoCollection
	config MongoStoreConfig
	logger *zap.Logger
}

// NewMongoVectorStore 创建 Atlas 向量存储
func NewMongoVectorStore(coll MongoCollection, config MongoStoreConfig, logger *zap.Logger) *MongoVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.IndexName == "" {
		config.IndexName = "vector_index"
	}
	if config.EmbeddingPath == "" {
		config.EmbeddingPath = "embedding"
	}
	if config.ContentField == "" {
		config.ContentField = "text"
	}
	if config.CandidateFactor <= 0 {
		config.CandidateFactor = 10
	}
	return &MongoVectorStore{
		coll:   coll,
		config: config,
		logger: logger.With(zap.String("component", "mongo_vector_store")),
	}
}

// AddDocuments 写入带向量的文档，索引由 Atlas 异步构建
func (s *MongoVectorStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	rows := make([]any, 0, len(docs))
	for _, doc := range docs {
		if doc.Embedding == nil {
			return fmt.Errorf("document %s has no embedding", doc.ID)
		}
		row := bson.D{}
		if doc.ID != "" {
			row = append(row, bson.E{Key: "_id", Value: doc.ID})
		}
		row = append(row,
			bson.E{Key: s.config.ContentField, Value: doc.Content},
			bson.E{Key: s.config.EmbeddingPath, Value: doc.Embedding},
		)
		if len(doc.Metadata) > 0 {
			row = append(row, bson.E{Key: "metadata", Value: doc.Metadata})
		}
		rows = append(rows, row)
	}

	if _, err := s.coll.InsertMany(ctx, rows); err != nil {
		return fmt.Errorf("insert documents: %w", err)
	}

	s.logger.Info("documents added to vector store", zap.Int("count", len(docs)))
	return nil
}

// Search 执行 $vectorSearch 并返回按分数降序的结果
func (s *MongoVectorStore) Search(ctx context.Context, queryEmbedding []float64, topK int) ([]VectorSearchResult, error) {
	if topK <= 0 {
		return []VectorSearchResult{}, nil
	}

	cursor, err := s.coll.Aggregate(ctx, s.searchPipeline(queryEmbedding, topK))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	var hits []struct {
		ID      any     `bson:"_id"`
		Content string  `bson:"content"`
		Score   float64 `bson:"score"`
	}
	if err := cursor.All(ctx, &hits); err != nil {
		return nil, fmt.Errorf("decode vector search results: %w", err)
	}

	results := make([]VectorSearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, VectorSearchResult{
			Document: Document{ID: idString(h.ID), Content: h.Content},
			Score:    h.Score,
		})
	}

	s.logger.Debug("vector search finished",
		zap.Int("top_k", topK),
		zap.Int("hits", len(results)))

	return results, nil
}

// Count 返回集合中的文档数量
func (s *MongoVectorStore) Count(ctx context.Context) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return int(n), nil
}

func (s *MongoVectorStore) searchPipeline(queryEmbedding []float64, topK int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: s.config.IndexName},
			{Key: "path", Value: s.config.EmbeddingPath},
			{Key: "queryVector", Value: queryEmbedding},
			{Key: "numCandidates", Value: topK * s.config.CandidateFactor},
			{Key: "limit", Value: topK},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 1},
			{Key: "content", Value: "$" + s.config.ContentField},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}

func idString(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case bson.ObjectID:
		return v.Hex()
	default:
		return fmt.Sprint(v)
	}
}
