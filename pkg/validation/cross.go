package validation

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"katydid-common-validation/pkg/rule"
	"katydid-common-validation/pkg/table"
)

// CrossEvaluator 跨范围评估器：跨行规则和全数据集规则
type CrossEvaluator struct {
	logger        *zap.Logger
	maxViolations int
}

// NewCrossEvaluator 创建跨范围评估器
func NewCrossEvaluator(opts ...Option) *CrossEvaluator {
	o := applyOptions(opts)
	return &CrossEvaluator{
		logger:        o.logger,
		maxViolations: o.maxViolations,
	}
}

// EvaluateCrossRow 跨行规则只接收验证范围内的行（按范围顺序）
// 返回值只包含失败的单元格
func (e *CrossEvaluator) EvaluateCrossRow(rows []table.RowView, rules []rule.Rule) map[table.CellRef]Outcome {
	return e.evaluate(rows, rules, rule.CrossRow)
}

// EvaluateDatasetWide 全数据集规则总是接收整个数据集，不受验证范围影响
func (e *CrossEvaluator) EvaluateDatasetWide(allRows []table.RowView, rules []rule.Rule) map[table.CellRef]Outcome {
	return e.evaluate(allRows, rules, rule.DatasetWide)
}

func (e *CrossEvaluator) evaluate(rows []table.RowView, rules []rule.Rule, kind rule.Kind) map[table.CellRef]Outcome {
	byCell := make(map[table.CellRef][]Violation)
	values := rowIndex(rows)

	for _, rl := range rules {
		if !rl.Enabled() || rl.Kind() != kind {
			continue
		}

		findings, err := e.run(rl, rows)
		if err != nil {
			var failure *PredicateFailure
			if !errors.As(err, &failure) {
				failure = &PredicateFailure{Rule: rl.Name, Cause: err}
			}
			e.logger.Error("rule predicate failed",
				zap.String("rule", failure.Rule),
				zap.Stringer("kind", kind),
				zap.Int("rows", len(rows)),
				zap.String("input", failure.Input),
				zap.Any("cause", failure.Cause))
			// 规则涉及的每个单元格各收到一条 Critical 违规
			for _, row := range rows {
				for _, column := range rl.Columns {
					ref := table.CellRef{Row: row.Index, Column: column}
					byCell[ref] = appendOnce(byCell[ref], predicateViolation(rl, ref, failure))
				}
			}
			continue
		}

		for _, finding := range findings {
			for _, ref := range finding.Cells {
				value := table.NullValue(table.TypeUnknown)
				if row, ok := values[ref.Row]; ok {
					value = row.Get(ref.Column)
				}
				byCell[ref] = append(byCell[ref], newViolation(rl, ref, value, finding.Detail, finding.Related))
			}
		}
	}

	outcomes := make(map[table.CellRef]Outcome, len(byCell))
	for ref, violations := range byCell {
		sortCellViolations(violations)
		outcomes[ref] = newOutcome(capViolations(violations, e.maxViolations))
	}
	return outcomes
}

func (e *CrossEvaluator) run(rl rule.Rule, rows []table.RowView) (findings []rule.Finding, err error) {
	input := func() string {
		return fmt.Sprintf("%d rows, columns %v", len(rows), rl.Columns)
	}
	err = callCheck(rl.Name, input, func() error {
		switch check := rl.Check.(type) {
		case rule.RowsCheck:
			findings = check(rows)
		case rule.DatasetCheck:
			findings = check(rows)
		}
		return nil
	})
	return findings, err
}

func rowIndex(rows []table.RowView) map[int]table.RowView {
	index := make(map[int]table.RowView, len(rows))
	for _, row := range rows {
		index[row.Index] = row
	}
	return index
}

// appendOnce 同一条规则在同一单元格上只保留一条合成违规（列可能重复声明）
func appendOnce(violations []Violation, v Violation) []Violation {
	for _, existing := range violations {
		if existing.Rule == v.Rule && existing.Severity == v.Severity && existing.Message == v.Message {
			return violations
		}
	}
	return append(violations, v)
}
