package table

import (
	"fmt"
	"strings"
	"time"
)

// DataType 列的数据类型
type DataType int

const (
	TypeUnknown DataType = iota // 未声明类型
	TypeString                  // 字符串
	TypeInt                     // 整数（任意位宽）
	TypeFloat                   // 浮点数
	TypeBool                    // 布尔值
	TypeDate                    // 日期（不含时间）
	TypeTimestamp               // 时间戳
	TypeDecimal                 // 定点小数，Raw 通常是字符串
	TypeBinary                  // 二进制
)

// String 返回类型名称
func (dt DataType) String() string {
	switch dt {
	case TypeUnknown:
		return "Unknown"
	case TypeString:
		return "String"
	case TypeInt:
		return "Int"
	case TypeFloat:
		return "Float"
	case TypeBool:
		return "Bool"
	case TypeDate:
		return "Date"
	case TypeTimestamp:
		return "Timestamp"
	case TypeDecimal:
		return "Decimal"
	case TypeBinary:
		return "Binary"
	default:
		return fmt.Sprintf("Unknown(%d)", dt)
	}
}

// Value 单元格值：原始值 + 声明类型
// 声明类型只是提示，Raw 可能与之不符（例如 Int 列里用户输入了 "abc"），
// 类型检查是规则的职责，不是 Value 的职责
type Value struct {
	// Raw 原始值
	Raw any `json:"raw"`
	// Type 声明的数据类型
	Type DataType `json:"type"`
	// IsNull 是否为空值
	IsNull bool `json:"is_null,omitempty"`
}

// NewValue 创建单元格值，raw 为 nil 时返回空值
func NewValue(raw any, dataType DataType) Value {
	if raw == nil {
		return NullValue(dataType)
	}
	return Value{Raw: raw, Type: dataType}
}

// NullValue 创建指定类型的空值
func NullValue(dataType DataType) Value {
	return Value{Type: dataType, IsNull: true}
}

// IsEmpty 空值、空字符串、纯空白字符串都视为空
func (v Value) IsEmpty() bool {
	if v.IsNull || v.Raw == nil {
		return true
	}
	switch raw := v.Raw.(type) {
	case string:
		return strings.TrimSpace(raw) == ""
	case []byte:
		return len(raw) == 0
	}
	return false
}

// String 返回用于展示和消息模板的文本
func (v Value) String() string {
	if v.IsNull || v.Raw == nil {
		return ""
	}
	switch raw := v.Raw.(type) {
	case string:
		return raw
	case time.Time:
		if v.Type == TypeDate {
			return raw.Format(time.DateOnly)
		}
		return raw.Format(time.RFC3339)
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(raw))
	default:
		return fmt.Sprintf("%v", raw)
	}
}

// Float64 按数值解释单元格值，支持数值类型和数值字符串
func (v Value) Float64() (float64, bool) {
	if v.IsNull {
		return 0, false
	}
	return ToFloat64(v.Raw)
}

// Int64 按整数解释单元格值
func (v Value) Int64() (int64, bool) {
	if v.IsNull {
		return 0, false
	}
	return ToInt64(v.Raw)
}

// Equal 比较两个值的原始内容，类型提示不参与比较
// 两侧都能按数值解释时按数值比较，int64(1) 与 1 相等
func (v Value) Equal(other Value) bool {
	if v.IsNull || other.IsNull {
		return v.IsNull == other.IsNull
	}
	if a, ok := v.Float64(); ok {
		if b, ok := other.Float64(); ok {
			return a == b
		}
	}
	return quickEqual(v.Raw, other.Raw)
}

// CellRef 单元格句柄：行号 + 列标识
type CellRef struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
}

// String 返回 "column[row]" 形式的描述
func (c CellRef) String() string {
	return fmt.Sprintf("%s[%d]", c.Column, c.Row)
}

// RowView 一行数据的只读快照，交给规则谓词使用
type RowView struct {
	// Index 数据集中的行号
	Index int
	// Values 列标识 -> 单元格值
	Values map[string]Value
}

// Get 读取列值，不存在的列返回空值
func (r RowView) Get(column string) Value {
	if v, ok := r.Values[column]; ok {
		return v
	}
	return NullValue(TypeUnknown)
}

