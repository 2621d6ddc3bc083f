// Package conv 提供类型转换与请求参数读取的泛型工具，用于简化各模块中的重复逻辑。
package conv

import (
	"strconv"
	"strings"
)

// ToFloat64 将 any 转为 float64。
// 支持 float64、float32、int、int64、int32、uint64、数字字符串；bool 视为 1.0/0.0。
func ToFloat64(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case bool:
		if val {
			return 1.0, true
		}
		return 0.0, true
	default:
		return 0, false
	}
}

// ToInt 将 any 转为 int。
// 支持 int、int64、int32、float64、float32、数字字符串。
func ToInt(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case int32:
		return int(val), true
	case float64:
		return int(val), true
	case float32:
		return int(val), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// FirstValue 返回多值参数的第一个值。
func FirstValue(params map[string][]string, key string) (string, bool) {
	vals, ok := params[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// ParamGet 从多值参数中读取 key 并按 parse 转换；缺失时返回 defaultVal。
// 值存在但无法解析时返回 (defaultVal, false)，调用方据此报告参数错误。
func ParamGet[T any](params map[string][]string, key string, defaultVal T, parse func(string) (T, error)) (T, bool) {
	raw, ok := FirstValue(params, key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultVal, true
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return defaultVal, false
	}
	return v, true
}

// ParseFloat64 是 strconv.ParseFloat 的 64 位快捷方式，可直接传给 ParamGet。
func ParseFloat64(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// SplitTrim 按 sep 切分并去除空白，丢弃空元素。
func SplitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
