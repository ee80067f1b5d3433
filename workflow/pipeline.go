package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/BaSui01/queryflow/corpus"
	"github.com/BaSui01/queryflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// retireAfterTerminals 连续多少轮以 Terminal 结束后会话作废
const retireAfterTerminals = 2

const (
	confirmSuccessMessage = "Query result confirmed"
	noQueryToConfirm      = "no validated query to confirm"
)

// CorpusWriter 语料追加能力
type CorpusWriter interface {
	Append(ctx context.Context, rec corpus.Record) error
}

// TurnResult Submit / Reject 的返回
type TurnResult struct {
	SessionID string         `json:"session_id"`
	Result    []types.Record `json:"result"`
}

// PipelineConfig Pipeline 依赖
type PipelineConfig struct {
	Graph        *Graph
	Checkpointer Checkpointer
	History      HistoryStore
	Corpus       CorpusWriter
	// 写入语料的 metadata.language
	Language string
	Recorder Recorder
	// 会话 ID 生成器，默认 uuid v4
	NewSessionID func() string
}

// Pipeline 对外的三个操作：Submit、Confirm、Reject。
// 同一会话同时只允许一轮在执行。
type Pipeline struct {
	graph        *Graph
	checkpoints  Checkpointer
	history      HistoryStore
	corpus       CorpusWriter
	language     string
	recorder     Recorder
	newSessionID func() string
	logger       *zap.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// NewPipeline 创建 Pipeline
func NewPipeline(cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = uuid.NewString
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &Pipeline{
		graph:        cfg.Graph,
		checkpoints:  cfg.Checkpointer,
		history:      cfg.History,
		corpus:       cfg.Corpus,
		language:     cfg.Language,
		recorder:     cfg.Recorder,
		newSessionID: cfg.NewSessionID,
		logger:       logger.With(zap.String("component", "pipeline")),
		active:       make(map[string]struct{}),
	}
}

// Submit 以新会话执行第一轮
func (p *Pipeline) Submit(ctx context.Context, prompt string) (TurnResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return TurnResult{}, types.NewError(types.ErrBlankPrompt, "prompt must not be blank").
			WithHTTPStatus(http.StatusBadRequest)
	}

	sessionID := p.newSessionID()
	release, err := p.acquire(sessionID)
	if err != nil {
		return TurnResult{}, err
	}
	defer release()

	return p.runTurn(ctx, NewState(sessionID, prompt))
}

// Reject 用新的描述重新进入图，new prompt 不能为空
func (p *Pipeline) Reject(ctx context.Context, sessionID, newPrompt string) (TurnResult, error) {
	newPrompt = strings.TrimSpace(newPrompt)
	if newPrompt == "" {
		return TurnResult{}, types.NewError(types.ErrBlankPrompt, "new prompt must not be blank").
			WithHTTPStatus(http.StatusBadRequest)
	}

	release, err := p.acquire(sessionID)
	if err != nil {
		return TurnResult{}, err
	}
	defer release()

	s, err := p.load(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	s.IsAgain = true
	s.Prompt = newPrompt
	return p.runTurn(ctx, s)
}

// Confirm 把最近一次通过校验的查询写入语料并清除会话。
// 语料或历史写入失败以 {"exception": ...} 记录返回，不作为错误。
func (p *Pipeline) Confirm(ctx context.Context, sessionID string) ([]types.Record, error) {
	release, err := p.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	s, err := p.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	logger := p.logger.With(zap.String("session_id", sessionID))

	if s.Query.IsEmpty() {
		return exceptionResult(noQueryToConfirm), nil
	}

	query, err := json.Marshal(s.Query)
	if err != nil {
		return exceptionResult("Could not encode the query: " + err.Error()), nil
	}

	rec := corpus.Record{
		ChunkType:      corpus.ChunkTypeSyntaxGuideline,
		CollectionName: s.Query.Collection,
		Prompt:         s.Translated,
		Query:          query,
		Metadata:       corpus.Metadata{Language: p.language},
	}
	if err := p.corpus.Append(ctx, rec); err != nil {
		logger.Error("failed to save guideline", zap.Error(err))
		return exceptionResult("Could not save the query guideline: " + err.Error()), nil
	}

	if err := p.history.Clear(ctx, sessionID); err != nil {
		logger.Error("failed to clear history", zap.Error(err))
		return exceptionResult("Could not clear the session history: " + err.Error()), nil
	}

	if err := p.checkpoints.Delete(ctx, sessionID); err != nil {
		logger.Warn("failed to delete checkpoint", zap.Error(err))
	}

	logger.Info("session confirmed", zap.String("collection", s.Query.Collection))
	return []types.Record{{"success": confirmSuccessMessage}}, nil
}

func exceptionResult(msg string) []types.Record {
	return []types.Record{{"exception": msg}}
}

func (p *Pipeline) runTurn(ctx context.Context, s State) (TurnResult, error) {
	ctx = types.WithSessionID(ctx, s.SessionID)
	logger := p.logger.With(zap.String("session_id", s.SessionID))

	if p.recorder != nil {
		p.recorder.TurnStarted()
		defer p.recorder.TurnFinished()
	}

	out, report, err := p.graph.Run(ctx, s)
	if err != nil {
		logger.Error("turn failed",
			zap.Bool("is_again", s.IsAgain),
			zap.Int("steps", len(report.Path)),
			zap.Error(err))
		out.Result = errorResult(TurnFailedMessage)
	}

	switch report.Outcome {
	case OutcomeTerminated:
		out.TerminalStreak++
		if out.TerminalStreak >= retireAfterTerminals {
			out.Retired = true
			logger.Info("session retired after repeated terminal turns")
		}
	case OutcomeFinalized:
		out.TerminalStreak = 0
	case OutcomeStepLimit, OutcomeFailed:
	}

	if p.recorder != nil {
		p.recorder.RecordTurnOutcome(string(report.Outcome))
	}

	if err := p.checkpoints.Save(ctx, out); err != nil {
		logger.Error("failed to save checkpoint", zap.Error(err))
		return TurnResult{}, types.NewError(types.ErrCacheUnavailable, "failed to save session").
			WithCause(err).
			WithHTTPStatus(http.StatusServiceUnavailable).
			WithRetryable(true)
	}

	logger.Info("turn finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("steps", len(report.Path)),
		zap.Int("llm_retry_count", out.LLMRetryCount),
		zap.Int("user_retry_count", out.UserRetryCount),
		zap.Int("records", len(out.Result)))

	return TurnResult{SessionID: out.SessionID, Result: out.Result}, nil
}

func (p *Pipeline) load(ctx context.Context, sessionID string) (State, error) {
	s, err := p.checkpoints.Load(ctx, sessionID)
	if errors.Is(err, ErrCheckpointNotFound) {
		return State{}, types.NewError(types.ErrSessionNotFound, "session not found").
			WithHTTPStatus(http.StatusNotFound)
	}
	if err != nil {
		return State{}, types.NewError(types.ErrCacheUnavailable, "failed to load session").
			WithCause(err).
			WithHTTPStatus(http.StatusServiceUnavailable).
			WithRetryable(true)
	}
	if s.Retired {
		return State{}, types.NewError(types.ErrSessionRetired, "session is retired, start a new query").
			WithHTTPStatus(http.StatusGone)
	}
	return s, nil
}

// acquire 会话级互斥，已有一轮在执行时返回 SESSION_BUSY
func (p *Pipeline) acquire(sessionID string) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, busy := p.active[sessionID]; busy {
		return nil, types.NewError(types.ErrSessionBusy, "another request for this session is in progress").
			WithHTTPStatus(http.StatusConflict)
	}
	p.active[sessionID] = struct{}{}

	return func() {
		p.mu.Lock()
		delete(p.active, sessionID)
		p.mu.Unlock()
	}, nil
}
