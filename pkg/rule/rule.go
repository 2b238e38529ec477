package rule

import (
	"slices"
	"strconv"
	"strings"

	"katydid-common-validation/pkg/table"
)

// Check 规则谓词，四种变体之一：CellCheck、RowCheck、RowsCheck、DatasetCheck
// 谓词必须无副作用，且对同一份输入快照结果确定
type Check interface {
	// Kind 返回该谓词对应的规则种类
	Kind() Kind
	sealed()
}

// CellCheck 单列谓词，返回 nil 表示通过，否则错误信息即违规详情
type CellCheck func(v table.Value) error

// RowCheck 跨列谓词，接收同一行的只读快照
type RowCheck func(row table.RowView) error

// RowsCheck 跨行谓词，接收验证范围内的全部行（按范围顺序），返回违规
type RowsCheck func(rows []table.RowView) []Finding

// DatasetCheck 全数据集谓词，总是接收整个数据集
type DatasetCheck func(rows []table.RowView) []Finding

func (CellCheck) Kind() Kind    { return SingleColumn }
func (RowCheck) Kind() Kind     { return CrossColumn }
func (RowsCheck) Kind() Kind    { return CrossRow }
func (DatasetCheck) Kind() Kind { return DatasetWide }

func (CellCheck) sealed()    {}
func (RowCheck) sealed()     {}
func (RowsCheck) sealed()    {}
func (DatasetCheck) sealed() {}

// Finding 跨行/全数据集规则产生的一条违规，可以归属多个单元格
// 每个涉及的单元格都会收到这条违规
type Finding struct {
	// Cells 涉及的单元格
	Cells []table.CellRef
	// Detail 违规详情，填充消息模板的 {detail}
	Detail string
	// Related 相关的其他行号（例如重复行）
	Related []int
}

// Rule 验证规则
type Rule struct {
	// Name 规则名，同一列（或同一跨范围列表）内唯一
	Name string
	// Columns 依赖的列，单列规则恰好一个
	Columns []string
	// Severity 严重程度
	Severity Severity
	// Message 消息模板，支持 {rule} {column} {row} {value} {detail} {related}
	// 为空时直接使用 detail
	Message string
	// Priority 越小越先执行，相同时按注册顺序
	Priority int
	// Flags 开关位
	Flags Flags
	// Check 谓词
	Check Check

	// seq 注册顺序，由 Registry 分配
	seq uint64
}

// Kind 规则种类，由谓词变体决定
func (r Rule) Kind() Kind {
	if r.Check == nil {
		return KindUnknown
	}
	return r.Check.Kind()
}

// Seq 注册顺序号，未注册的规则为 0
func (r Rule) Seq() uint64 {
	return r.seq
}

// Enabled 是否启用
func (r Rule) Enabled() bool {
	return !r.Flags.Contain(FlagDisabled)
}

// WithSeverity 返回修改了严重程度的副本
func (r Rule) WithSeverity(s Severity) Rule {
	r.Severity = s
	return r
}

// WithMessage 返回修改了消息模板的副本
func (r Rule) WithMessage(message string) Rule {
	r.Message = message
	return r
}

// WithPriority 返回修改了优先级的副本
func (r Rule) WithPriority(priority int) Rule {
	r.Priority = priority
	return r
}

// WithFlags 返回叠加了开关位的副本
func (r Rule) WithFlags(flags Flags) Rule {
	r.Flags |= flags
	return r
}

// Disabled 返回禁用的副本
func (r Rule) Disabled() Rule {
	r.Flags.Set(FlagDisabled)
	return r
}

// DependsOn 是否依赖指定列
func (r Rule) DependsOn(column string) bool {
	return slices.Contains(r.Columns, column)
}

// Less 执行顺序：优先级升序，相同时按注册顺序
func Less(a, b Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.seq < b.seq
}

// MessageData 消息模板参数
type MessageData struct {
	Column  string
	Row     int
	Value   table.Value
	Detail  string
	Related []int
}

// Render 渲染消息模板
func (r Rule) Render(data MessageData) string {
	if r.Message == "" {
		if data.Detail != "" {
			return data.Detail
		}
		return "rule " + r.Name + " failed"
	}
	if !strings.Contains(r.Message, "{") {
		return r.Message
	}

	replacer := strings.NewReplacer(
		"{rule}", r.Name,
		"{column}", data.Column,
		"{row}", strconv.Itoa(data.Row),
		"{value}", data.Value.String(),
		"{detail}", data.Detail,
		"{related}", joinInts(data.Related),
	)
	return replacer.Replace(r.Message)
}

func joinInts(values []int) string {
	if len(values) == 0 {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(values) * 4)
	for i, v := range values {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(strconv.Itoa(v))
	}
	return builder.String()
}
