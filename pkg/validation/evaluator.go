package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"katydid-common-validation/pkg/rule"
	"katydid-common-validation/pkg/table"
)

// CellEvaluator 单元格评估器：运行一个单元格的单列与跨列规则
// 不扫描数据集，耗时只与该列的规则数成正比
type CellEvaluator struct {
	logger        *zap.Logger
	maxViolations int
}

// NewCellEvaluator 创建单元格评估器
func NewCellEvaluator(opts ...Option) *CellEvaluator {
	o := applyOptions(opts)
	return &CellEvaluator{
		logger:        o.logger,
		maxViolations: o.maxViolations,
	}
}

// rowReader 读取同一行中某一列的值
type rowReader func(column string) table.Value

// Evaluate 用 candidate 作为 ref 的值评估该单元格
// 跨列规则通过 src 只读地获取同一行的其他单元格
func (e *CellEvaluator) Evaluate(ref table.CellRef, candidate table.Value, snap *rule.Snapshot, src table.DataSource) Outcome {
	read := func(column string) table.Value {
		if column == ref.Column {
			return candidate
		}
		v, err := src.Value(ref.Row, column)
		if err != nil {
			e.logger.Debug("sibling value unavailable",
				zap.Stringer("cell", ref),
				zap.String("sibling", column),
				zap.Error(err))
			return table.NullValue(table.TypeUnknown)
		}
		return v
	}
	return e.evaluate(ref, candidate, snap.RulesFor(ref.Column), read)
}

// evaluateRow 批量验证时使用：行已经读好，直接查表
func (e *CellEvaluator) evaluateRow(row table.RowView, column string, rules []rule.Rule) Outcome {
	return e.evaluate(table.CellRef{Row: row.Index, Column: column}, row.Get(column), rules, row.Get)
}

func (e *CellEvaluator) evaluate(ref table.CellRef, candidate table.Value, rules []rule.Rule, read rowReader) Outcome {
	if len(rules) == 0 {
		return ValidOutcome()
	}

	var violations []Violation
	for _, rl := range rules {
		if !rl.Enabled() {
			continue
		}
		if rl.Flags.Contain(rule.FlagSkipEmpty) && candidate.IsEmpty() {
			continue
		}

		var err error
		switch check := rl.Check.(type) {
		case rule.CellCheck:
			err = callCheck(rl.Name, candidate.String, func() error {
				return check(candidate)
			})
		case rule.RowCheck:
			view := table.RowView{Index: ref.Row, Values: make(map[string]table.Value, len(rl.Columns))}
			for _, column := range rl.Columns {
				view.Values[column] = read(column)
			}
			err = callCheck(rl.Name, func() string { return formatRow(view) }, func() error {
				return check(view)
			})
		default:
			// 跨行与全数据集规则不在这里运行
			continue
		}
		if err == nil {
			continue
		}

		var failure *PredicateFailure
		if errors.As(err, &failure) {
			e.logger.Error("rule predicate failed",
				zap.String("rule", failure.Rule),
				zap.Stringer("cell", ref),
				zap.String("input", failure.Input),
				zap.Any("cause", failure.Cause))
			violations = append(violations, predicateViolation(rl, ref, failure))
		} else {
			violations = append(violations, newViolation(rl, ref, candidate, err.Error(), nil))
		}

		if e.maxViolations > 0 && len(violations) >= e.maxViolations {
			break
		}
		if rl.Flags.Contain(rule.FlagStopOnFailure) {
			break
		}
	}
	return newOutcome(violations)
}

// formatRow 行快照的文本形式，列按名称排序
func formatRow(row table.RowView) string {
	columns := make([]string, 0, len(row.Values))
	for column := range row.Values {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	var builder strings.Builder
	fmt.Fprintf(&builder, "row %d {", row.Index)
	for i, column := range columns {
		if i > 0 {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s: %q", column, row.Values[column].String())
	}
	builder.WriteByte('}')
	return builder.String()
}
