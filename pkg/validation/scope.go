package validation

import (
	"fmt"

	"katydid-common-validation/pkg/table"
)

// Scope 验证范围
type Scope int

const (
	// EntireDataset 整个数据集，用于导出、保存等正确性相关的操作
	EntireDataset Scope = iota
	// FilteredSubset 当前过滤后的行；没有激活的过滤时等同于 EntireDataset
	FilteredSubset
)

// String 返回范围名称
func (s Scope) String() string {
	switch s {
	case EntireDataset:
		return "EntireDataset"
	case FilteredSubset:
		return "FilteredSubset"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// ScopeResolver 把验证范围解析为具体的行号
type ScopeResolver struct {
	src    table.DataSource
	filter table.FilterState
}

// NewScopeResolver 创建解析器，filter 为 nil 表示宿主不支持过滤
func NewScopeResolver(src table.DataSource, filter table.FilterState) *ScopeResolver {
	return &ScopeResolver{src: src, filter: filter}
}

// Resolve 返回有序的行号
// 过滤行号越界或重复时返回 table.ErrInvalidRow
func (r *ScopeResolver) Resolve(scope Scope) ([]int, error) {
	switch scope {
	case EntireDataset:
		return table.AllRows(r.src), nil
	case FilteredSubset:
		if r.filter == nil {
			return table.AllRows(r.src), nil
		}
		indices, active := r.filter.FilteredRowIndices()
		if !active {
			return table.AllRows(r.src), nil
		}
		return r.checkIndices(indices)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownScope, int(scope))
	}
}

func (r *ScopeResolver) checkIndices(indices []int) ([]int, error) {
	count := r.src.RowCount()
	seen := make(map[int]struct{}, len(indices))
	rows := make([]int, 0, len(indices))
	for _, row := range indices {
		if row < 0 || row >= count {
			return nil, fmt.Errorf("%w: filtered row %d out of range [0, %d)", table.ErrInvalidRow, row, count)
		}
		if _, ok := seen[row]; ok {
			return nil, fmt.Errorf("%w: filtered row %d listed twice", table.ErrInvalidRow, row)
		}
		seen[row] = struct{}{}
		rows = append(rows, row)
	}
	return rows, nil
}
