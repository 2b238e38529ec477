package validation

import (
	"katydid-common-validation/pkg/rule"
	"katydid-common-validation/pkg/table"
)

// RealTimeValidator 实时验证：值变化时在调用方协程内同步执行
// 只运行单元格评估器，不运行跨行和全数据集规则
type RealTimeValidator struct {
	src       table.DataSource
	registry  *rule.Registry
	evaluator *CellEvaluator
	store     *OutcomeStore
}

// NewRealTimeValidator 创建实时验证器，store 为 nil 时结果只返回不保存
func NewRealTimeValidator(src table.DataSource, registry *rule.Registry, store *OutcomeStore, opts ...Option) *RealTimeValidator {
	return &RealTimeValidator{
		src:       src,
		registry:  registry,
		evaluator: NewCellEvaluator(opts...),
		store:     store,
	}
}

// OnValueChanged 用新值评估单元格，写入结果存储并返回
// 每次调用都会覆盖该单元格之前的结果；单元格不存在时返回 table.ErrInvalidRow 或 table.ErrColumnNotFound
func (v *RealTimeValidator) OnValueChanged(ref table.CellRef, value table.Value) (Outcome, error) {
	if _, err := v.src.Value(ref.Row, ref.Column); err != nil {
		return Outcome{}, err
	}

	outcome := v.evaluator.Evaluate(ref, value, v.registry.Snapshot(), v.src)
	if v.store != nil {
		v.store.Put(ref, outcome)
	}
	return outcome, nil
}

// Outcome 读取单元格当前保存的结果
func (v *RealTimeValidator) Outcome(ref table.CellRef) Outcome {
	if v.store == nil {
		return ValidOutcome()
	}
	return v.store.Get(ref)
}
