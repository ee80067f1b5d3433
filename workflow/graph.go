package workflow

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// NodeID 图中的节点
type NodeID string

const (
	NodeStart     NodeID = "start"
	NodeRewrite   NodeID = "rewrite"
	NodeTranslate NodeID = "translate"
	NodeRetrieve  NodeID = "retrieve"
	NodeGenerate  NodeID = "generate"
	NodeValidate  NodeID = "validate"
	NodeCorrect   NodeID = "correct"
	NodeExecute   NodeID = "execute"
	NodeFinalize  NodeID = "finalize"
	NodeTerminal  NodeID = "terminal"
)

// DefaultMaxSteps 单轮允许经过的最大节点数
const DefaultMaxSteps = 50

// Outcome 一轮的结束方式
type Outcome string

const (
	OutcomeFinalized  Outcome = "finalized"
	OutcomeTerminated Outcome = "terminated"
	OutcomeStepLimit  Outcome = "step_limit"
	OutcomeFailed     Outcome = "failed"
)

// Recorder 接收节点与轮次指标
type Recorder interface {
	RecordNodeExecution(node, status string, duration time.Duration)
	RecordTurnOutcome(outcome string)
	TurnStarted()
	TurnFinished()
}

// RunReport 一次 Run 的轨迹
type RunReport struct {
	Path    []NodeID
	Outcome Outcome
}

// Visited 判断本轮是否经过 node
func (r RunReport) Visited(node NodeID) bool {
	for _, n := range r.Path {
		if n == node {
			return true
		}
	}
	return false
}

// Graph 按 Governor 的判定在节点间流转，直到 Finalize 或 Terminal
type Graph struct {
	handlers *Handlers
	governor Governor
	maxSteps int
	recorder Recorder
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewGraph 创建工作流图；maxSteps<=0 时使用 DefaultMaxSteps，recorder 可为 nil
func NewGraph(handlers *Handlers, governor Governor, maxSteps int, recorder Recorder, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Graph{
		handlers: handlers,
		governor: governor,
		maxSteps: maxSteps,
		recorder: recorder,
		tracer:   otel.Tracer("queryflow/workflow"),
		logger:   logger.With(zap.String("component", "workflow_graph")),
	}
}

// Run 从 Start 执行一轮。
// 上游能力失败时返回失败前的状态与错误；超过步数上限时以哨兵结果正常返回。
func (g *Graph) Run(ctx context.Context, s State) (State, RunReport, error) {
	var report RunReport
	node := NodeStart

	for {
		if len(report.Path) >= g.maxSteps {
			g.logger.Error("step limit exceeded",
				zap.String("session_id", s.SessionID),
				zap.Int("max_steps", g.maxSteps),
				zap.String("last_node", string(node)))
			s.Result = errorResult(StepLimitMessage)
			report.Outcome = OutcomeStepLimit
			return s, report, nil
		}
		report.Path = append(report.Path, node)

		next, out, err := g.step(ctx, node, s)
		if err != nil {
			report.Outcome = OutcomeFailed
			return s, report, fmt.Errorf("node %s: %w", node, err)
		}
		s = out

		if next == "" {
			switch node {
			case NodeFinalize:
				report.Outcome = OutcomeFinalized
			default:
				report.Outcome = OutcomeTerminated
			}
			return s, report, nil
		}
		node = next
	}
}

func (g *Graph) step(ctx context.Context, node NodeID, s State) (NodeID, State, error) {
	ctx, span := g.tracer.Start(ctx, "workflow."+string(node))
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow.session_id", s.SessionID),
		attribute.Int("workflow.llm_retry_count", s.LLMRetryCount),
		attribute.Int("workflow.user_retry_count", s.UserRetryCount),
	)

	start := time.Now()
	next, out, err := g.dispatch(ctx, node, s.Clone())
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn("node failed",
			zap.String("session_id", s.SessionID),
			zap.String("node", string(node)),
			zap.Duration("duration", duration),
			zap.Error(err))
	} else {
		if out.IsError {
			status = "rejected"
		}
		span.SetAttributes(attribute.String("workflow.next", string(next)))
		g.logger.Debug("node finished",
			zap.String("session_id", s.SessionID),
			zap.String("node", string(node)),
			zap.String("next", string(next)),
			zap.Duration("duration", duration))
	}
	if g.recorder != nil {
		g.recorder.RecordNodeExecution(string(node), status, duration)
	}
	return next, out, err
}

// dispatch 执行 node 并返回下一个节点，"" 表示本轮结束
func (g *Graph) dispatch(ctx context.Context, node NodeID, s State) (NodeID, State, error) {
	h := g.handlers

	switch node {
	case NodeStart:
		s = h.Start(s)
		switch v := g.governor.RouteEntry(s); v {
		case EntryTranslate:
			return NodeTranslate, s, nil
		case EntryRewrite:
			return NodeRewrite, s, nil
		case EntryTerminate:
			return NodeTerminal, s, nil
		default:
			return "", s, fmt.Errorf("unknown entry verdict %d", v)
		}

	case NodeRewrite:
		out, err := h.Rewrite(ctx, s)
		return NodeTranslate, out, err

	case NodeTranslate:
		out, err := h.Translate(ctx, s)
		return NodeRetrieve, out, err

	case NodeRetrieve:
		out, err := h.Retrieve(ctx, s)
		return NodeGenerate, out, err

	case NodeGenerate:
		out, err := h.Generate(ctx, s)
		return NodeValidate, out, err

	case NodeValidate:
		s = h.Validate(s)
		return g.afterAttempt(s, NodeExecute)

	case NodeCorrect:
		out, err := h.Correct(ctx, s)
		return NodeValidate, out, err

	case NodeExecute:
		s = h.Execute(ctx, s)
		return g.afterAttempt(s, NodeFinalize)

	case NodeFinalize:
		return "", h.Finalize(ctx, s), nil

	case NodeTerminal:
		return "", h.Terminal(s), nil

	default:
		return "", s, fmt.Errorf("unknown node %q", node)
	}
}

func (g *Graph) afterAttempt(s State, onContinue NodeID) (NodeID, State, error) {
	switch v := g.governor.RouteAfterAttempt(s); v {
	case AttemptContinue:
		return onContinue, s, nil
	case AttemptCorrect:
		return NodeCorrect, s, nil
	case AttemptTerminate:
		return NodeTerminal, s, nil
	default:
		return "", s, fmt.Errorf("unknown attempt verdict %d", v)
	}
}
