package validation

import (
	"sort"

	"katydid-common-validation/pkg/rule"
	"katydid-common-validation/pkg/table"
)

// Violation 一条规则失败，归属于某个单元格
type Violation struct {
	// Rule 规则名
	Rule string `json:"rule"`
	// Kind 规则种类
	Kind rule.Kind `json:"kind"`
	// Severity 严重程度
	Severity rule.Severity `json:"severity"`
	// Message 渲染后的消息
	Message string `json:"message"`
	// Row 行号
	Row int `json:"row"`
	// Column 列标识
	Column string `json:"column"`
	// Related 相关的其他行（例如重复行）
	Related []int `json:"related,omitempty"`

	priority int
	seq      uint64
}

// Cell 违规所在的单元格
func (v Violation) Cell() table.CellRef {
	return table.CellRef{Row: v.Row, Column: v.Column}
}

func newViolation(rl rule.Rule, ref table.CellRef, value table.Value, detail string, related []int) Violation {
	return Violation{
		Rule:     rl.Name,
		Kind:     rl.Kind(),
		Severity: rl.Severity,
		Message: rl.Render(rule.MessageData{
			Column:  ref.Column,
			Row:     ref.Row,
			Value:   value,
			Detail:  detail,
			Related: related,
		}),
		Row:      ref.Row,
		Column:   ref.Column,
		Related:  related,
		priority: rl.Priority,
		seq:      rl.Seq(),
	}
}

// predicateViolation 谓词 panic 时合成的 Critical 违规
func predicateViolation(rl rule.Rule, ref table.CellRef, failure *PredicateFailure) Violation {
	return Violation{
		Rule:     rl.Name,
		Kind:     rl.Kind(),
		Severity: rule.Critical,
		Message:  failure.Error(),
		Row:      ref.Row,
		Column:   ref.Column,
		priority: rl.Priority,
		seq:      rl.Seq(),
	}
}

// Outcome 单元格验证结果，Valid 当且仅当 Violations 为空
type Outcome struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// ValidOutcome 通过的结果
func ValidOutcome() Outcome {
	return Outcome{Valid: true}
}

func newOutcome(violations []Violation) Outcome {
	if len(violations) == 0 {
		return ValidOutcome()
	}
	return Outcome{Valid: false, Violations: violations}
}

// MaxSeverity 最高的严重程度，通过的结果返回 false
func (o Outcome) MaxSeverity() (rule.Severity, bool) {
	if len(o.Violations) == 0 {
		return rule.Info, false
	}
	max := o.Violations[0].Severity
	for _, v := range o.Violations[1:] {
		if v.Severity > max {
			max = v.Severity
		}
	}
	return max, true
}

// merge 合并两个结果，同一单元格内按优先级、注册顺序排序，并应用上限
func (o Outcome) merge(other Outcome, maxViolations int) Outcome {
	if len(other.Violations) == 0 {
		return o
	}
	merged := make([]Violation, 0, len(o.Violations)+len(other.Violations))
	merged = append(merged, o.Violations...)
	merged = append(merged, other.Violations...)
	sortCellViolations(merged)
	return newOutcome(capViolations(merged, maxViolations))
}

// sortCellViolations 同一单元格内的顺序：优先级升序，相同时按注册顺序
func sortCellViolations(violations []Violation) {
	sort.SliceStable(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.seq < b.seq
	})
}

// sortViolations 跨单元格的顺序：行号、列下标、优先级、注册顺序
func sortViolations(violations []Violation, colIndex map[string]int) {
	sort.SliceStable(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		if a.Column != b.Column {
			ca, cb := columnOrder(colIndex, a.Column), columnOrder(colIndex, b.Column)
			if ca != cb {
				return ca < cb
			}
			return a.Column < b.Column
		}
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.seq < b.seq
	})
}

func columnOrder(colIndex map[string]int, column string) int {
	if i, ok := colIndex[column]; ok {
		return i
	}
	return len(colIndex)
}

// capViolations 0 表示不限
func capViolations(violations []Violation, max int) []Violation {
	if max > 0 && len(violations) > max {
		return violations[:max]
	}
	return violations
}
