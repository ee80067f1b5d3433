package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/queryflow/types"
)

// ExampleQuery 提示词中给模型的输出示例
const ExampleQuery = `{
    "collection": "Invoice",
    "aggregate": [
        {"$group": {"_id": "$BillingCountry", "totalSpent": {"$sum": "$Total"}}},
        {"$sort": {"totalSpent": -1}},
        {"$limit": 5}
    ]
}`

const outputRules = `- The output MUST be valid JSON with:
    1. "collection": the collection name.
    2. "aggregate": a list of aggregation stages (list of objects, not a string).
- Do not include "db." or "collection.aggregate()" in the output.
- Do not explain or add extra text, only return the JSON query.`

const dateGrammar = `Dates: never compute dates yourself. Wherever a date value is needed, write a marker object
{"$dateExpr": "<value>"} where <value> is one of:
    - an ISO-8601 instant, e.g. "2024-01-31T00:00:00Z"
    - NOW, TODAY, NEXT_MONTH, LAST_MONTH
    - <n>_DAYS_AGO, <n>_HOURS_AGO, IN_<n>_DAYS, IN_<n>_HOURS (for example 7_DAYS_AGO)
The marker is resolved to a real date when the query runs.`

// GenerationPrompt 根据检索上下文生成查询的指令
func GenerationPrompt(s State) string {
	var b strings.Builder
	b.WriteString("You are an assistant that generates MongoDB aggregation queries.\n")
	b.WriteString("The context below describes the schema of the collections and their fields.\n\n")
	fmt.Fprintf(&b, "Context (schema description):\n%s\n\n", formatContext(s.Context))
	fmt.Fprintf(&b, "User question: %s\n\n", s.Translated)
	b.WriteString("Task:\n")
	b.WriteString("- Generate a valid MongoDB query in JSON format to answer the user's question.\n")
	b.WriteString("- The query must match the schema from the context.\n")
	b.WriteString(outputRules)
	b.WriteString("\n\n")
	b.WriteString(dateGrammar)
	b.WriteString("\n\nExample of query format:\n")
	b.WriteString(ExampleQuery)
	b.WriteString("\n")
	return b.String()
}

// CorrectionPrompt 根据错误记录修正查询的指令
func CorrectionPrompt(s State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prompt: %s\n", s.Prompt)
	if s.Translated != "" && s.Translated != s.Prompt {
		fmt.Fprintf(&b, "Translated prompt: %s\n", s.Translated)
	}
	fmt.Fprintf(&b, "Errors: %s\n", mustJSON(s.ErrorLog))
	fmt.Fprintf(&b, "Context: %s\n\n", formatContext(s.Context))
	b.WriteString("Task:\n")
	b.WriteString("- Based on the Prompt, the Errors and the Context, fix the MongoDB query.\n")
	b.WriteString(outputRules)
	b.WriteString("\n\n")
	b.WriteString(dateGrammar)
	b.WriteString("\n\nExample of correct query format:\n")
	b.WriteString(ExampleQuery)
	b.WriteString("\n")
	return b.String()
}

// RewritePrompt 把历史与最新输入合并为一条请求
func RewritePrompt(history []types.Turn, latest string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant that rewrites user queries.\n\n")
	b.WriteString("### Context\nConversation history:\n")
	b.WriteString(mustJSON(history))
	fmt.Fprintf(&b, "\n\nLatest user input:\n%q\n\n", latest)
	b.WriteString("### Task\n")
	b.WriteString("- Merge the conversation history with the latest user input.\n")
	b.WriteString("- Rewrite the user's intent into ONE single, clear and concise prompt.\n")
	b.WriteString("- Remove phrases unrelated to the actual query, such as \"What I mean is\" or \"Not that, but\".\n")
	b.WriteString("- The output MUST be in strict JSON format:\n\n")
	b.WriteString("{\n    \"prompt\": \"rewritten prompt here\"\n}\n")
	return b.String()
}

func formatContext(fragments []types.Fragment) string {
	if len(fragments) == 0 {
		return "[]"
	}
	return mustJSON(fragments)
}

func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
