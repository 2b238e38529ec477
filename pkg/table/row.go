package table

import (
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Row 按列标识组织的一行原始值，用于 AppendRecord
// 非线程安全，作为快照使用
type Row map[string]any

// NewRow 创建指定容量的 Row
func NewRow(capacity int) Row {
	return make(Row, capacity)
}

// Set 设置列值，空列名被忽略
func (r Row) Set(key string, value any) {
	if len(key) == 0 {
		return
	}
	r[key] = value
}

// ToInt64 把数值类型或十进制整数字符串转换为 int64
// 浮点数只有在没有小数部分时才能转换
func ToInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int16:
		return int64(val), true
	case int8:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint:
		if uint64(val) <= math.MaxInt64 {
			return int64(val), true
		}
	case uint64:
		if val <= math.MaxInt64 {
			return int64(val), true
		}
	case float64:
		if val >= float64(math.MinInt64) && val <= float64(math.MaxInt64) && val == math.Trunc(val) {
			return int64(val), true
		}
	case float32:
		f := float64(val)
		if f >= float64(math.MinInt64) && f <= float64(math.MaxInt64) && f == math.Trunc(f) {
			return int64(f), true
		}
	case string:
		s := strings.TrimSpace(val)
		if len(s) == 0 {
			return 0, false
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// ToFloat64 把数值类型或数值字符串转换为 float64，NaN 视为转换失败
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, !math.IsNaN(val)
	case float32:
		return float64(val), !math.IsNaN(float64(val))
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int16:
		return float64(val), true
	case int8:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint8:
		return float64(val), true
	case string:
		s := strings.TrimSpace(val)
		if len(s) == 0 {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// quickEqual 基础类型走快速路径，其他类型用 reflect.DeepEqual
func quickEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		return ok && va == vb
	case int:
		vb, ok := b.(int)
		return ok && va == vb
	case int64:
		vb, ok := b.(int64)
		return ok && va == vb
	case float64:
		vb, ok := b.(float64)
		return ok && math.Float64bits(va) == math.Float64bits(vb)
	case bool:
		vb, ok := b.(bool)
		return ok && va == vb
	default:
		return reflect.DeepEqual(a, b)
	}
}
