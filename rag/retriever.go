package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/queryflow/llm/embedding"
	"github.com/BaSui01/queryflow/types"
	"go.uber.org/zap"
)

// Retriever 把查询文本向量化后在 VectorStore 中检索相似语料
type Retriever struct {
	embedder embedding.Provider
	store    VectorStore
	logger   *zap.Logger
}

// NewRetriever 创建检索器
func NewRetriever(embedder embedding.Provider, store VectorStore, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		logger:   logger.With(zap.String("component", "retriever")),
	}
}

// Retrieve 返回与 query 最相似的 topK 个片段，按分数降序
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]types.Fragment, error) {
	if strings.TrimSpace(query) == "" {
		return []types.Fragment{}, nil
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	fragments := make([]types.Fragment, 0, len(hits))
	for _, h := range hits {
		fragments = append(fragments, types.Fragment{
			Content: h.Document.Content,
			Score:   h.Score,
		})
	}

	r.logger.Debug("context retrieved",
		zap.String("embedder", r.embedder.Name()),
		zap.Int("fragments", len(fragments)))

	return fragments, nil
}

// Index 向量化并写入文档，已有 Embedding 的文档保持不变
func (r *Retriever) Index(ctx context.Context, docs []Document) error {
	pending := make([]string, 0, len(docs))
	positions := make([]int, 0, len(docs))
	for i, d := range docs {
		if d.Embedding == nil {
			pending = append(pending, d.Content)
			positions = append(positions, i)
		}
	}

	if len(pending) > 0 {
		vectors, err := r.embedder.EmbedDocuments(ctx, pending)
		if err != nil {
			return fmt.Errorf("embed documents: %w", err)
		}
		if len(vectors) != len(pending) {
			return fmt.Errorf("embed documents: got %d vectors for %d documents", len(vectors), len(pending))
		}
		for j, pos := range positions {
			docs[pos].Embedding = vectors[j]
		}
	}

	return r.store.AddDocuments(ctx, docs)
}
