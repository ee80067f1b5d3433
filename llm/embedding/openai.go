package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/BaSui01/queryflow/llm"
	oaprovider "github.com/BaSui01/queryflow/llm/providers/openai"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider 基于 go-openai 的嵌入实现.
type OpenAIProvider struct {
	client *goopenai.Client
	cfg    Config
}

// NewOpenAIProvider 创建 OpenAI 嵌入提供者.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = string(goopenai.SmallEmbedding3)
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 1536
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIProvider{
		client: goopenai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

func (p *OpenAIProvider) Name() string    { return "openai-embedding" }
func (p *OpenAIProvider) Dimensions() int { return p.cfg.Dimensions }

// EmbedQuery 为单个查询生成向量.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vecs, err := p.EmbedDocuments(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, &llm.Error{
			Code:       llm.ErrEmptyResponse,
			Message:    "no embeddings returned",
			HTTPStatus: http.StatusBadGateway,
			Provider:   p.Name(),
		}
	}
	return vecs[0], nil
}

// EmbedDocuments 批量生成向量.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	req := goopenai.EmbeddingRequestStrings{
		Input: documents,
		Model: goopenai.EmbeddingModel(p.cfg.Model),
	}
	// 只有 text-embedding-3 系列支持自定义维度
	if p.cfg.Model != string(goopenai.AdaEmbeddingV2) {
		req.Dimensions = p.cfg.Dimensions
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, oaprovider.MapError(err, p.Name())
	}
	if len(resp.Data) != len(documents) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(documents), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float64, len(data))
	for i, d := range data {
		vec := make([]float64, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float64(v)
		}
		out[i] = vec
	}
	return out, nil
}
