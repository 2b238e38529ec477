package rule

import (
	"fmt"
	"strings"
)

// Kind 规则种类
type Kind int

const (
	KindUnknown  Kind = iota // 未知（非法规则）
	SingleColumn             // 单列：只看一个单元格
	CrossColumn              // 跨列：同一行的多个单元格
	CrossRow                 // 跨行：验证范围内多行的聚合关系
	DatasetWide              // 全数据集：全局约束（如唯一性），总是作用于整个数据集
)

// String 返回种类名称
func (k Kind) String() string {
	switch k {
	case SingleColumn:
		return "SingleColumn"
	case CrossColumn:
		return "CrossColumn"
	case CrossRow:
		return "CrossRow"
	case DatasetWide:
		return "DatasetWide"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// IsCellScoped 是否属于单元格级（实时验证可用）的规则
func (k Kind) IsCellScoped() bool {
	return k == SingleColumn || k == CrossColumn
}

// IsCrossScoped 是否需要扫描多行
func (k Kind) IsCrossScoped() bool {
	return k == CrossRow || k == DatasetWide
}

// Severity 违规严重程度，数值越大越严重
type Severity int

const (
	Info Severity = iota
	Warning
	Error
	Critical
)

// String 返回小写名称
func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParseSeverity 解析严重程度名称（不区分大小写）
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return Info, nil
	case "warning", "warn":
		return Warning, nil
	case "error":
		return Error, nil
	case "critical":
		return Critical, nil
	default:
		return Info, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Flags 规则开关位，可叠加
type Flags int64

const (
	FlagNone Flags = 0

	FlagDisabled      Flags = 1 << iota // 禁用，不参与任何验证
	FlagSkipEmpty                       // 空值（null、空串）不运行该规则
	FlagStopOnFailure                   // 失败后同一单元格的后续规则不再运行
)

// Set 设置指定的位
func (f *Flags) Set(flag Flags) {
	*f |= flag
}

// Unset 清除指定的位
func (f *Flags) Unset(flag Flags) {
	*f &^= flag
}

// Contain 是否包含指定的全部位
func (f Flags) Contain(flag Flags) bool {
	return f&flag == flag
}

// HasAny 是否包含任意一个指定的位
func (f Flags) HasAny(flags ...Flags) bool {
	for _, flag := range flags {
		if f&flag != 0 {
			return true
		}
	}
	return false
}
