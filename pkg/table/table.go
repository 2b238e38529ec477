package table

import (
	"fmt"
	"slices"
	"sync"
)

// Column 列定义
type Column struct {
	// ID 列标识，表内唯一
	ID string `json:"id"`
	// Type 声明的数据类型
	Type DataType `json:"type"`
}

// Table 线程安全的内存表，同时实现 DataSource 和 FilterState
// 单元格读写都在读写锁内完成，单个值的读取不会撕裂
type Table struct {
	mu      sync.RWMutex
	columns []Column
	index   map[string]int // 列标识 -> 列下标
	rows    [][]any
	filter  []int
	hasFilt bool
}

// NewTable 创建空表
func NewTable(columns ...Column) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: empty column id at %d", ErrColumnNotFound, i)
		}
		if _, ok := index[c.ID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c.ID)
		}
		index[c.ID] = i
	}
	return &Table{
		columns: slices.Clone(columns),
		index:   index,
	}, nil
}

// MustNewTable 同 NewTable，出错时 panic，便于测试和静态初始化
func MustNewTable(columns ...Column) *Table {
	t, err := NewTable(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Columns 返回列定义副本
func (t *Table) Columns() []Column {
	return slices.Clone(t.columns)
}

// ColumnIDs 实现 DataSource
func (t *Table) ColumnIDs() []string {
	ids := make([]string, len(t.columns))
	for i, c := range t.columns {
		ids[i] = c.ID
	}
	return ids
}

// ColumnType 返回列的声明类型
func (t *Table) ColumnType(column string) (DataType, error) {
	i, ok := t.index[column]
	if !ok {
		return TypeUnknown, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}
	return t.columns[i].Type, nil
}

// RowCount 实现 DataSource
func (t *Table) RowCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// AppendRow 追加一行，值的顺序与列定义一致，返回新行号
func (t *Table) AppendRow(values ...any) (int, error) {
	if len(values) != len(t.columns) {
		return -1, fmt.Errorf("%w: got %d, want %d", ErrRowWidth, len(values), len(t.columns))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = append(t.rows, slices.Clone(values))
	return len(t.rows) - 1, nil
}

// AppendRecord 按列名追加一行，缺失的列为空值，未知列返回错误
func (t *Table) AppendRecord(record Row) (int, error) {
	values := make([]any, len(t.columns))
	for key, v := range record {
		i, ok := t.index[key]
		if !ok {
			return -1, fmt.Errorf("%w: %q", ErrColumnNotFound, key)
		}
		values[i] = v
	}
	return t.AppendRow(values...)
}

// Set 修改单元格的原始值
func (t *Table) Set(row int, column string, raw any) error {
	i, ok := t.index[column]
	if !ok {
		return fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if row < 0 || row >= len(t.rows) {
		return fmt.Errorf("%w: %d", ErrInvalidRow, row)
	}
	t.rows[row][i] = raw
	return nil
}

// Value 实现 DataSource
func (t *Table) Value(row int, column string) (Value, error) {
	i, ok := t.index[column]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if row < 0 || row >= len(t.rows) {
		return Value{}, fmt.Errorf("%w: %d", ErrInvalidRow, row)
	}
	return NewValue(t.rows[row][i], t.columns[i].Type), nil
}


// SetFilter 设置过滤后的行号（有序）。行号的合法性在解析验证范围时检查
func (t *Table) SetFilter(rows []int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.filter = slices.Clone(rows)
	t.hasFilt = true
}

// ClearFilter 取消过滤
func (t *Table) ClearFilter() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.filter = nil
	t.hasFilt = false
}

// FilteredRowIndices 实现 FilterState
func (t *Table) FilteredRowIndices() ([]int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.hasFilt {
		return nil, false
	}
	return slices.Clone(t.filter), true
}
