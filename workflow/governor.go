package workflow

// EntryVerdict Start 节点的路由结果
type EntryVerdict int

const (
	EntryTranslate EntryVerdict = iota
	EntryRewrite
	EntryTerminate
)

func (v EntryVerdict) String() string {
	switch v {
	case EntryTranslate:
		return "translate"
	case EntryRewrite:
		return "rewrite"
	case EntryTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// AttemptVerdict Validate / Execute 之后的路由结果
type AttemptVerdict int

const (
	AttemptContinue AttemptVerdict = iota
	AttemptCorrect
	AttemptTerminate
)

func (v AttemptVerdict) String() string {
	switch v {
	case AttemptContinue:
		return "continue"
	case AttemptCorrect:
		return "correct"
	case AttemptTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Governor 两套独立的重试预算：模型纠错次数与用户拒绝次数
type Governor struct {
	MaxLLMRetry  int
	MaxUserRetry int
}

// NewGovernor 创建预算判定器，非正值回落为 5
func NewGovernor(maxLLMRetry, maxUserRetry int) Governor {
	if maxLLMRetry <= 0 {
		maxLLMRetry = 5
	}
	if maxUserRetry <= 0 {
		maxUserRetry = 5
	}
	return Governor{MaxLLMRetry: maxLLMRetry, MaxUserRetry: maxUserRetry}
}

// RouteEntry 决定一轮从哪里开始
func (g Governor) RouteEntry(s State) EntryVerdict {
	if !s.IsAgain {
		return EntryTranslate
	}
	if s.UserRetryCount < g.MaxUserRetry {
		return EntryRewrite
	}
	return EntryTerminate
}

// RouteAfterAttempt 预算耗尽优先于错误标记
func (g Governor) RouteAfterAttempt(s State) AttemptVerdict {
	if s.LLMRetryCount >= g.MaxLLMRetry {
		return AttemptTerminate
	}
	if s.IsError {
		return AttemptCorrect
	}
	return AttemptContinue
}
