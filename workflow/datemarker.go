package workflow

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// DateMarkerKey 日期表达式标记对象的唯一字段
const DateMarkerKey = "$dateExpr"

var (
	agoPattern = regexp.MustCompile(`^(\d+)_(DAYS|HOURS)_AGO$`)
	inPattern  = regexp.MustCompile(`^IN_(\d+)_(DAYS|HOURS)$`)
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ResolveDateExpr 把日期表达式解析为具体时刻，符号值相对 now 计算。
// 无法识别时返回 false。
func ResolveDateExpr(expr string, now time.Time) (time.Time, bool) {
	expr = strings.TrimSpace(expr)
	now = now.UTC()

	switch expr {
	case "NOW":
		return now, true
	case "TODAY":
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	case "NEXT_MONTH":
		y, m, _ := now.Date()
		return time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC), true
	case "LAST_MONTH":
		y, m, _ := now.Date()
		return time.Date(y, m-1, 1, 0, 0, 0, 0, time.UTC), true
	}

	if m := agoPattern.FindStringSubmatch(expr); m != nil {
		if d, ok := unitDuration(m[1], m[2]); ok {
			return now.Add(-d), true
		}
		return time.Time{}, false
	}
	if m := inPattern.FindStringSubmatch(expr); m != nil {
		if d, ok := unitDuration(m[1], m[2]); ok {
			return now.Add(d), true
		}
		return time.Time{}, false
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, expr); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func unitDuration(n, unit string) (time.Duration, bool) {
	v, err := strconv.Atoi(n)
	if err != nil {
		return 0, false
	}
	switch unit {
	case "DAYS":
		return time.Duration(v) * 24 * time.Hour, true
	case "HOURS":
		return time.Duration(v) * time.Hour, true
	}
	return 0, false
}

// resolveDateMarkers 递归替换 {"$dateExpr": ...} 为 BSON 日期，无法识别的标记原样保留
func resolveDateMarkers(v any, now time.Time) any {
	switch t := v.(type) {
	case bson.D:
		if len(t) == 1 && t[0].Key == DateMarkerKey {
			if expr, ok := t[0].Value.(string); ok {
				if at, ok := ResolveDateExpr(expr, now); ok {
					return bson.NewDateTimeFromTime(at)
				}
			}
			return t
		}
		out := make(bson.D, len(t))
		for i, e := range t {
			out[i] = bson.E{Key: e.Key, Value: resolveDateMarkers(e.Value, now)}
		}
		return out
	case bson.A:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = resolveDateMarkers(e, now)
		}
		return out
	default:
		return v
	}
}
