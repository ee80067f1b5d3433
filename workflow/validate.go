package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// cleanQuery 去掉代码围栏与字面量转义序列 \n \t \r
func cleanQuery(raw string) string {
	q := strings.TrimSpace(raw)
	if strings.HasPrefix(q, "```") {
		if i := strings.Index(q, "\n"); i >= 0 {
			q = q[i+1:]
		} else {
			q = ""
		}
	}
	if strings.HasSuffix(q, "```") {
		if i := strings.LastIndex(q, "\n"); i >= 0 {
			q = q[:i]
		} else {
			q = ""
		}
	}
	q = strings.NewReplacer(`\n`, "", `\t`, "", `\r`, "").Replace(q)
	return strings.TrimSpace(q)
}

// Validate 清洗 RawQuery 并做结构校验。
// 解析失败只记一条 invalid_format；解析成功时所有规则独立检查，
// 每条违例各追加一条记录，同一次校验的记录共享 Attempt。
func Validate(s State) State {
	s.Attempt++
	s.CleanedRawQuery = cleanQuery(s.RawQuery)

	var parsed any
	if err := json.Unmarshal([]byte(s.CleanedRawQuery), &parsed); err != nil {
		s.Query = Query{}
		s.IsError = true
		return s.appendError(ErrorKindInvalidFormat, Violation{
			Field:   "format",
			Message: fmt.Sprintf("Invalid JSON format: %v", err),
		})
	}

	query, violations := checkStructure(parsed, []byte(s.CleanedRawQuery))
	if len(violations) > 0 {
		s.Query = Query{}
		s.IsError = true
		for _, v := range violations {
			s = s.appendError(ErrorKindValidation, v)
		}
		return s
	}

	s.Query = query
	return s
}

func checkStructure(parsed any, raw []byte) (Query, []Violation) {
	var violations []Violation

	obj, isObject := parsed.(map[string]any)
	if !isObject {
		violations = append(violations, Violation{
			Field:   "query_type",
			Message: "Query must be a JSON object (dict).",
		})
	}

	collection, _ := obj["collection"].(string)
	if strings.TrimSpace(collection) == "" {
		violations = append(violations, Violation{
			Field:   "collection",
			Message: "Missing or empty 'collection' field.",
		})
	}

	aggregate, hasAggregate := obj["aggregate"]
	stages, isList := aggregate.([]any)
	switch {
	case !hasAggregate:
		violations = append(violations, Violation{
			Field:   "aggregate",
			Message: "Missing 'aggregate' field.",
		})
	case !isList:
		violations = append(violations, Violation{
			Field:   "aggregate_type",
			Message: "'aggregate' must be a list of stages (list of dicts).",
		})
	default:
		for idx, stage := range stages {
			if _, ok := stage.(map[string]any); !ok {
				violations = append(violations, Violation{
					Field:   fmt.Sprintf("aggregate_stage_%d", idx),
					Message: fmt.Sprintf("Stage %d in 'aggregate' is not a dict.", idx),
				})
			}
		}
	}

	if len(violations) > 0 {
		return Query{}, violations
	}

	// 保留原始字节，避免数字精度在 float64 往返中丢失
	var shape struct {
		Aggregate []json.RawMessage `json:"aggregate"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return Query{}, []Violation{{Field: "aggregate", Message: err.Error()}}
	}
	for i, stage := range shape.Aggregate {
		shape.Aggregate[i] = bytes.TrimSpace(stage)
	}
	if shape.Aggregate == nil {
		shape.Aggregate = []json.RawMessage{}
	}

	return Query{Collection: collection, Aggregate: shape.Aggregate}, nil
}
