package workflow

import (
	"encoding/base64"
	"time"

	"github.com/BaSui01/queryflow/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// toRecords 把 BSON 文档转换为可直接 JSON 序列化的记录
func toRecords(docs []bson.D) []types.Record {
	out := make([]types.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentToMap(d))
	}
	return out
}

func documentToMap(d bson.D) map[string]any {
	m := make(map[string]any, len(d))
	for _, e := range d {
		m[e.Key] = portable(e.Value)
	}
	return m
}

// portable ObjectID → hex，日期 → RFC 3339，Decimal128 → 字符串，嵌套文档 → map
func portable(v any) any {
	switch t := v.(type) {
	case bson.D:
		return documentToMap(t)
	case bson.M:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = portable(val)
		}
		return m
	case bson.A:
		return portableSlice(t)
	case []any:
		return portableSlice(t)
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case bson.Decimal128:
		return t.String()
	case bson.Timestamp:
		return time.Unix(int64(t.T), 0).UTC().Format(time.RFC3339)
	case bson.Binary:
		return base64.StdEncoding.EncodeToString(t.Data)
	case bson.Regex:
		return "/" + t.Pattern + "/" + t.Options
	default:
		return v
	}
}

func portableSlice(in []any) []any {
	out := make([]any, len(in))
	for i, e := range in {
		out[i] = portable(e)
	}
	return out
}
