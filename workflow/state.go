package workflow

import (
	"encoding/json"

	"github.com/BaSui01/queryflow/types"
)

// ErrorKind 错误记录的类别
type ErrorKind string

const (
	ErrorKindInvalidFormat ErrorKind = "invalid_format"
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindStore         ErrorKind = "store_error"
	ErrorKindUnexpected    ErrorKind = "unexpected_error"
)

// Violation 单条规则违例
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorRecord 一次尝试的错误记录，按 Attempt 单调递增排列
type ErrorRecord struct {
	Attempt    int         `json:"attempt"`
	Kind       ErrorKind   `json:"kind"`
	Query      string      `json:"query"`
	Violations []Violation `json:"violations"`
}

// Query 已通过结构校验的聚合查询
type Query struct {
	Collection string            `json:"collection"`
	Aggregate  []json.RawMessage `json:"aggregate"`
}

// IsEmpty 零值即空查询
func (q Query) IsEmpty() bool {
	return q.Collection == "" && q.Aggregate == nil
}

// State 一个会话的管线状态。
// 节点按值接收并返回 State，修改前先 Clone，避免跨会话共享切片。
type State struct {
	SessionID       string           `json:"session_id"`
	Prompt          string           `json:"prompt"`
	Translated      string           `json:"translated"`
	Context         []types.Fragment `json:"context"`
	RawQuery        string           `json:"raw_query"`
	CleanedRawQuery string           `json:"cleaned_raw_query"`
	Query           Query            `json:"query"`
	ErrorLog        []ErrorRecord    `json:"error_log"`
	IsError         bool             `json:"is_error"`
	LLMRetryCount   int              `json:"llm_retry_count"`
	UserRetryCount  int              `json:"user_retry_count"`
	Result          []types.Record   `json:"result"`
	IsAgain         bool             `json:"is_again"`

	// 校验尝试序号，ErrorRecord.Attempt 取自此处
	Attempt int `json:"attempt"`
	// 连续以 Terminal 结束的轮数
	TerminalStreak int  `json:"terminal_streak"`
	Retired        bool `json:"retired"`
}

// NewState 创建新会话的初始状态
func NewState(sessionID, prompt string) State {
	return State{SessionID: sessionID, Prompt: prompt}
}

// Clone 深拷贝
func (s State) Clone() State {
	out := s
	if s.Context != nil {
		out.Context = append([]types.Fragment(nil), s.Context...)
	}
	if s.Query.Aggregate != nil {
		out.Query.Aggregate = make([]json.RawMessage, len(s.Query.Aggregate))
		for i, stage := range s.Query.Aggregate {
			out.Query.Aggregate[i] = append(json.RawMessage(nil), stage...)
		}
	}
	if s.ErrorLog != nil {
		out.ErrorLog = make([]ErrorRecord, len(s.ErrorLog))
		for i, rec := range s.ErrorLog {
			rec.Violations = append([]Violation(nil), rec.Violations...)
			out.ErrorLog[i] = rec
		}
	}
	if s.Result != nil {
		out.Result = make([]types.Record, len(s.Result))
		for i, r := range s.Result {
			out.Result[i] = cloneValue(r).(types.Record)
		}
	}
	return out
}

// appendError 以当前 Attempt 追加一条错误记录
func (s State) appendError(kind ErrorKind, violations ...Violation) State {
	s.ErrorLog = append(s.ErrorLog, ErrorRecord{
		Attempt:    s.Attempt,
		Kind:       kind,
		Query:      s.CleanedRawQuery,
		Violations: violations,
	})
	return s
}

// attemptErrors 返回指定 Attempt 的全部错误记录
func (s State) attemptErrors(attempt int) []ErrorRecord {
	var out []ErrorRecord
	for _, rec := range s.ErrorLog {
		if rec.Attempt == attempt {
			out = append(out, rec)
		}
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		a := make([]any, len(t))
		for i, val := range t {
			a[i] = cloneValue(val)
		}
		return a
	default:
		return v
	}
}
