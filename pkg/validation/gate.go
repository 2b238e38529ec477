package validation

import "context"

// AllNonEmptyValid 导出、保存等操作之前的检查：范围内所有非空单元格是否都通过
// 只有完整运行且没有失败单元格时返回 true；FilteredSubset 在没有过滤时等同于 EntireDataset
func (e *BatchEngine) AllNonEmptyValid(ctx context.Context, scope Scope) (bool, *BatchResult, error) {
	result, err := e.Validate(ctx, BatchOptions{Scope: scope, NonEmptyOnly: true})
	if err != nil {
		return false, nil, err
	}
	return result.Complete() && result.InvalidCells == 0, result, nil
}
