package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BaSui01/queryflow/api/handlers"
	"github.com/BaSui01/queryflow/config"
	"github.com/BaSui01/queryflow/corpus"
	"github.com/BaSui01/queryflow/docstore"
	"github.com/BaSui01/queryflow/history"
	"github.com/BaSui01/queryflow/internal/cache"
	"github.com/BaSui01/queryflow/internal/database"
	"github.com/BaSui01/queryflow/internal/metrics"
	"github.com/BaSui01/queryflow/internal/server"
	"github.com/BaSui01/queryflow/internal/telemetry"
	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/llm/embedding"
	"github.com/BaSui01/queryflow/llm/providers"
	"github.com/BaSui01/queryflow/llm/providers/openai"
	"github.com/BaSui01/queryflow/llm/retry"
	"github.com/BaSui01/queryflow/rag"
	"github.com/BaSui01/queryflow/workflow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 queryflow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 外部连接
	cache *cache.Manager
	mongo *database.ClientManager

	// 工作流持久化，就绪检查同样使用
	checkpoints workflow.Checkpointer
	guidelines  *corpus.FileStore

	// Handlers
	healthHandler *handlers.HealthHandler
	queryHandler  *handlers.QueryHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 建立外部连接、组装工作流并启动 HTTP 与 Metrics 服务器
func (s *Server) Start(ctx context.Context) error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("queryflow", s.logger)

	// 2. 外部连接
	if err := s.initStores(ctx); err != nil {
		return fmt.Errorf("failed to init stores: %w", err)
	}

	// 3. 组装工作流与 Handlers
	pipeline, err := s.initPipeline(ctx)
	if err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}
	s.initHandlers(pipeline)

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initStores(ctx context.Context) error {
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = s.cfg.Redis.Addr
	cacheCfg.Username = s.cfg.Redis.Username
	cacheCfg.Password = s.cfg.Redis.Password
	cacheCfg.DB = s.cfg.Redis.DB
	cacheCfg.PoolSize = s.cfg.Redis.PoolSize
	cacheCfg.MinIdleConns = s.cfg.Redis.MinIdleConns

	c, err := cache.NewManager(cacheCfg, s.logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	s.cache = c

	dbCfg := database.DefaultConfig()
	dbCfg.URI = s.cfg.Mongo.URI
	dbCfg.AppName = "queryflow"
	dbCfg.MaxPoolSize = s.cfg.Mongo.MaxPoolSize
	dbCfg.Timeout = s.cfg.Mongo.Timeout

	cm, err := database.NewClientManager(ctx, dbCfg, s.logger)
	if err != nil {
		return fmt.Errorf("mongodb: %w", err)
	}
	s.mongo = cm
	return nil
}

func (s *Server) initPipeline(ctx context.Context) (*workflow.Pipeline, error) {
	cfg := s.cfg

	// 对话模型
	provider := openai.NewOpenAIProvider(providers.OpenAIConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		},
	}, s.logger)
	chat := llm.NewChatModel(provider, llm.ChatConfig{
		Model:       cfg.LLM.Model,
		Temperature: float32(cfg.LLM.Temperature),
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		Retry:       retry.DefaultPolicy(),
	}, s.metricsCollector, s.logger)

	var translator llm.Translator = llm.PassthroughTranslator{}
	if cfg.Translation.Enabled {
		translator = llm.NewLLMTranslator(chat, cfg.Translation.SourceLanguage, cfg.Translation.TargetLanguage)
	}

	// 检索，未单独配置 embedding key 时沿用 LLM 的 key
	embeddingKey := cfg.Embedding.APIKey
	if embeddingKey == "" {
		embeddingKey = cfg.LLM.APIKey
	}
	embedder := embedding.NewOpenAIProvider(embedding.Config{
		APIKey:     embeddingKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})
	guidelines := corpus.NewFileStore(cfg.Corpus.Path, s.logger)
	s.guidelines = guidelines
	retriever, err := s.initRetriever(ctx, embedder, guidelines)
	if err != nil {
		return nil, err
	}

	// 执行与会话
	executorCfg := docstore.DefaultConfig()
	executorCfg.Database = cfg.Mongo.Database
	executorCfg.Timeout = cfg.Mongo.Timeout
	executor := docstore.NewExecutor(s.mongo, executorCfg, s.metricsCollector, s.logger)

	historyStore := history.NewRedisStore(s.cache, cfg.Pipeline.HistoryTTL, s.metricsCollector, s.logger)

	var checkpoints workflow.Checkpointer
	switch cfg.Pipeline.CheckpointBackend {
	case "memory":
		checkpoints = workflow.NewMemoryCheckpointer(cfg.Pipeline.CheckpointTTL)
	default:
		checkpoints = workflow.NewRedisCheckpointer(s.cache, cfg.Pipeline.CheckpointTTL, s.logger)
	}
	s.checkpoints = checkpoints

	nodes, err := workflow.NewHandlers(workflow.Capabilities{
		Translator: translator,
		Retriever:  retriever,
		Chat:       chat,
		Executor:   executor,
		History:    historyStore,
	}, workflow.HandlerConfig{TopK: cfg.Pipeline.TopK}, s.logger)
	if err != nil {
		return nil, err
	}

	graph := workflow.NewGraph(nodes,
		workflow.NewGovernor(cfg.Pipeline.MaxLLMRetry, cfg.Pipeline.MaxUserRetry),
		cfg.Pipeline.MaxSteps, s.metricsCollector, s.logger)

	s.logger.Info("Pipeline initialized",
		zap.String("model", cfg.LLM.Model),
		zap.Bool("translation", cfg.Translation.Enabled),
		zap.String("vector_backend", cfg.Mongo.VectorBackend),
		zap.String("checkpoint_backend", cfg.Pipeline.CheckpointBackend),
		zap.Int("max_llm_retry", cfg.Pipeline.MaxLLMRetry),
		zap.Int("max_user_retry", cfg.Pipeline.MaxUserRetry),
	)

	return workflow.NewPipeline(workflow.PipelineConfig{
		Graph:        graph,
		Checkpointer: checkpoints,
		History:      historyStore,
		Corpus:       guidelines,
		Language:     cfg.Corpus.Language,
		Recorder:     s.metricsCollector,
	}, s.logger), nil
}

// initRetriever atlas 使用 $vectorSearch；memory 在启动时把语料文件嵌入进程内向量库
func (s *Server) initRetriever(ctx context.Context, embedder embedding.Provider, guidelines *corpus.FileStore) (*rag.Retriever, error) {
	if s.cfg.Mongo.VectorBackend != "memory" {
		coll := s.mongo.Collection(s.cfg.Mongo.RAGDatabase, s.cfg.Mongo.RAGCollection)
		store := rag.NewMongoVectorStore(coll, rag.MongoStoreConfig{
			IndexName:     s.cfg.Mongo.IndexName,
			EmbeddingPath: s.cfg.Mongo.EmbeddingPath,
			ContentField:  s.cfg.Mongo.ContentField,
		}, s.logger)
		return rag.NewRetriever(embedder, store, s.logger), nil
	}

	retriever := rag.NewRetriever(embedder, rag.NewInMemoryVectorStore(s.logger), s.logger)
	records, err := guidelines.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	if len(records) == 0 {
		s.logger.Warn("corpus is empty, retrieval will return no context", zap.String("path", guidelines.Path()))
		return retriever, nil
	}

	docs := make([]rag.Document, 0, len(records))
	for i, rec := range records {
		docs = append(docs, rag.Document{
			ID:      fmt.Sprintf("guideline-%d", i),
			Content: rec.Content(),
			Metadata: map[string]any{
				"collection_name": rec.CollectionName,
				"chunk_type":      rec.ChunkType,
			},
		})
	}
	if err := retriever.Index(ctx, docs); err != nil {
		return nil, fmt.Errorf("index corpus: %w", err)
	}
	s.logger.Info("Corpus indexed in memory", zap.Int("documents", len(docs)))
	return retriever, nil
}

func (s *Server) checkpointBackend() string {
	if s.cfg.Pipeline.CheckpointBackend == "memory" {
		return "memory"
	}
	return "redis"
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers(pipeline *workflow.Pipeline) {
	s.healthHandler = handlers.NewHealthHandler(Version, s.logger)
	s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", s.cache.Ping))
	s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("mongodb", s.mongo.Ping))
	s.healthHandler.RegisterCheck(handlers.NewCheckpointHealthCheck(s.checkpointBackend(), s.checkpoints))
	s.healthHandler.RegisterCheck(handlers.NewCorpusHealthCheck(s.guidelines))

	s.queryHandler = handlers.NewQueryHandler(pipeline, s.logger)

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册所有路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(BuildTime, GitCommit))

	// API 路由
	mux.HandleFunc("POST /api/v1/text2query", s.queryHandler.HandleText2Query)
	mux.HandleFunc("POST /api/v1/confirm_query", s.queryHandler.HandleConfirmQuery)

	return mux
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	// 构建中间件链
	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)

	serverConfig := server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞到收到信号或任一服务器异常退出，然后优雅关闭
func (s *Server) WaitForShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	case err := <-s.httpManager.Errors():
		s.logger.Error("HTTP server exited", zap.Error(err))
	case err := <-s.metricsManager.Errors():
		s.logger.Error("Metrics server exited", zap.Error(err))
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务；两个服务器并行关闭，之后释放外部连接
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 并行关闭 HTTP 与 Metrics 服务器
	var g errgroup.Group
	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m == nil {
			continue
		}
		g.Go(func() error { return m.Shutdown(ctx) })
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Server shutdown error", zap.Error(err))
	}

	// 2. 释放外部连接
	if s.mongo != nil {
		if err := s.mongo.Close(ctx); err != nil {
			s.logger.Error("MongoDB close error", zap.Error(err))
		}
	}
	if s.cache != nil {
		stats := s.cache.Stats()
		s.logger.Info("Redis read stats",
			zap.Uint64("hits", stats.Hits),
			zap.Uint64("misses", stats.Misses),
			zap.Float64("hit_rate", stats.HitRate),
		)
		if err := s.cache.Close(); err != nil {
			s.logger.Error("Redis close error", zap.Error(err))
		}
	}

	// 3. 刷新遥测数据
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
