package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/queryflow/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
)

// =============================================================================
// 🔌 外部能力
// =============================================================================

// Translator 翻译能力
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Retriever 相似度检索能力
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]types.Fragment, error)
}

// ChatModel 对话补全能力
type ChatModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// QueryExecutor 文档库聚合执行能力
type QueryExecutor interface {
	Aggregate(ctx context.Context, collection string, stages []bson.D) ([]bson.D, error)
}

// HistoryStore 会话历史能力
type HistoryStore interface {
	Load(ctx context.Context, sessionID string) ([]types.Turn, error)
	Append(ctx context.Context, sessionID, user, bot string) error
	Clear(ctx context.Context, sessionID string) error
}

// Capabilities 节点依赖的全部外部能力，显式注入
type Capabilities struct {
	Translator Translator
	Retriever  Retriever
	Chat       ChatModel
	Executor   QueryExecutor
	History    HistoryStore
}

func (c Capabilities) validate() error {
	var missing []string
	if c.Translator == nil {
		missing = append(missing, "translator")
	}
	if c.Retriever == nil {
		missing = append(missing, "retriever")
	}
	if c.Chat == nil {
		missing = append(missing, "chat")
	}
	if c.Executor == nil {
		missing = append(missing, "executor")
	}
	if c.History == nil {
		missing = append(missing, "history")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing capabilities: %s", strings.Join(missing, ", "))
	}
	return nil
}

// =============================================================================
// 📌 固定结果
// =============================================================================

const (
	// NotFoundMessage 查询无结果时的哨兵记录
	NotFoundMessage = "No document found"
	// RetryLimitMessage 预算耗尽时的哨兵记录
	RetryLimitMessage = "Pipeline reached the retry limit, please describe your request more clearly."
	// StepLimitMessage 超过步数上限时的哨兵记录
	StepLimitMessage = "Pipeline exceeded its internal step limit."
	// TurnFailedMessage 上游能力失败时的哨兵记录
	TurnFailedMessage = "The request could not be processed right now, please try again."
)

func notFoundResult() []types.Record {
	return []types.Record{{"NOT FOUND": NotFoundMessage}}
}

func errorResult(msg string) []types.Record {
	return []types.Record{{"Error": msg}}
}

// ErrRewriteReply Rewrite 回复不是 {"prompt": "..."}
var ErrRewriteReply = errors.New("unparsable rewrite reply")

// =============================================================================
// 🧩 节点
// =============================================================================

// HandlerConfig 节点参数
type HandlerConfig struct {
	// Retrieve 的 top-K
	TopK int
	// Execute 解析日期标记时使用的时钟
	Clock func() time.Time
}

// Handlers 图中各节点的实现，除 Governor 外不持有任何路由逻辑
type Handlers struct {
	caps   Capabilities
	topK   int
	now    func() time.Time
	logger *zap.Logger
}

// NewHandlers 创建节点集合
func NewHandlers(caps Capabilities, cfg HandlerConfig, logger *zap.Logger) (*Handlers, error) {
	if err := caps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Handlers{
		caps:   caps,
		topK:   cfg.TopK,
		now:    cfg.Clock,
		logger: logger.With(zap.String("component", "workflow_nodes")),
	}, nil
}

// Start 重置一轮内的临时字段，上下文在每轮开始时重新检索
func (h *Handlers) Start(s State) State {
	s.Context = nil
	s.Query = Query{}
	s.IsError = false
	s.Result = nil
	return s
}

// Rewrite 合并历史与最新输入，消耗一次用户重试预算
func (h *Handlers) Rewrite(ctx context.Context, s State) (State, error) {
	history, err := h.caps.History.Load(ctx, s.SessionID)
	if err != nil {
		return s, fmt.Errorf("load history: %w", err)
	}

	reply, err := h.caps.Chat.Complete(ctx, RewritePrompt(history, s.Prompt))
	if err != nil {
		return s, fmt.Errorf("rewrite: %w", err)
	}

	var parsed struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal([]byte(cleanQuery(reply)), &parsed); err != nil {
		return s, fmt.Errorf("%w: %v", ErrRewriteReply, err)
	}
	if strings.TrimSpace(parsed.Prompt) == "" {
		return s, fmt.Errorf("%w: empty prompt", ErrRewriteReply)
	}

	h.logger.Debug("prompt rewritten",
		zap.String("session_id", s.SessionID),
		zap.Int("history_turns", len(history)))

	s.Prompt = strings.TrimSpace(parsed.Prompt)
	s.UserRetryCount++
	return s, nil
}

// Translate 翻译 Prompt，失败直接结束本轮
func (h *Handlers) Translate(ctx context.Context, s State) (State, error) {
	translated, err := h.caps.Translator.Translate(ctx, s.Prompt)
	if err != nil {
		return s, fmt.Errorf("translate: %w", err)
	}
	s.Translated = translated
	return s, nil
}

// Retrieve 检索 top-K 片段追加到 Context
func (h *Handlers) Retrieve(ctx context.Context, s State) (State, error) {
	fragments, err := h.caps.Retriever.Retrieve(ctx, s.Translated, h.topK)
	if err != nil {
		return s, fmt.Errorf("retrieve: %w", err)
	}
	s.Context = append(s.Context, fragments...)
	return s, nil
}

// Generate 生成原始查询文本
func (h *Handlers) Generate(ctx context.Context, s State) (State, error) {
	reply, err := h.caps.Chat.Complete(ctx, GenerationPrompt(s))
	if err != nil {
		return s, fmt.Errorf("generate: %w", err)
	}
	s.RawQuery = reply
	return s, nil
}

// Validate 见 Validate 函数
func (h *Handlers) Validate(s State) State {
	s = Validate(s)
	if s.IsError {
		records := s.attemptErrors(s.Attempt)
		h.logger.Debug("query rejected",
			zap.String("session_id", s.SessionID),
			zap.Int("attempt", s.Attempt),
			zap.String("kind", string(records[0].Kind)),
			zap.Int("violations", len(records)))
	}
	return s
}

// Correct 有错误记录时请求模型修正，总是消耗一次模型预算并清除错误标记
func (h *Handlers) Correct(ctx context.Context, s State) (State, error) {
	if len(s.ErrorLog) > 0 {
		reply, err := h.caps.Chat.Complete(ctx, CorrectionPrompt(s))
		if err != nil {
			return s, fmt.Errorf("correct: %w", err)
		}
		s.RawQuery = reply
	}
	s.LLMRetryCount++
	s.IsError = false
	return s, nil
}

// Execute 解析日期标记后执行聚合；执行失败记录在 ErrorLog 中而不是返回错误
func (h *Handlers) Execute(ctx context.Context, s State) State {
	stages, err := decodeStages(s.Query.Aggregate, h.now())
	if err != nil {
		return failExecution(s, ErrorKindUnexpected, "unexpected_error", err)
	}

	docs, err := h.caps.Executor.Aggregate(ctx, s.Query.Collection, stages)
	if err != nil {
		if types.IsErrorCode(err, types.ErrStoreExecution) {
			return failExecution(s, ErrorKindStore, "mongodb_error", err)
		}
		return failExecution(s, ErrorKindUnexpected, "unexpected_error", err)
	}

	s.Result = toRecords(docs)
	return s
}

func failExecution(s State, kind ErrorKind, field string, err error) State {
	s.IsError = true
	s.Result = []types.Record{}
	return s.appendError(kind, Violation{Field: field, Message: err.Error()})
}

func decodeStages(raw []json.RawMessage, now time.Time) ([]bson.D, error) {
	stages := make([]bson.D, 0, len(raw))
	for i, r := range raw {
		var stage bson.D
		if err := bson.UnmarshalExtJSON(r, false, &stage); err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		if resolved, ok := resolveDateMarkers(stage, now).(bson.D); ok {
			stage = resolved
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// Finalize 空结果替换为 NOT FOUND，并把本轮写入会话历史
func (h *Handlers) Finalize(ctx context.Context, s State) State {
	if len(s.Result) == 0 {
		s.Result = notFoundResult()
	}
	if err := h.caps.History.Append(ctx, s.SessionID, s.Prompt, s.CleanedRawQuery); err != nil {
		h.logger.Warn("failed to append history",
			zap.String("session_id", s.SessionID),
			zap.Error(err))
	}
	return s
}

// Terminal 预算耗尽
func (h *Handlers) Terminal(s State) State {
	s.Result = errorResult(RetryLimitMessage)
	return s
}
