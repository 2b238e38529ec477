package table

// DataSource 只读的行/列访问接口
// 实现必须支持并发读；验证期间宿主若允许并发写，撕裂读由宿主负责
type DataSource interface {
	// RowCount 返回行数
	RowCount() int

	// ColumnIDs 返回有序的列标识
	ColumnIDs() []string

	// Value 返回指定单元格的值
	// 行越界返回 ErrInvalidRow，列不存在返回 ErrColumnNotFound
	Value(row int, column string) (Value, error)
}

// FilterState 过滤状态访问接口
type FilterState interface {
	// FilteredRowIndices 返回过滤后的有序行号；第二个返回值为 false 表示没有激活的过滤
	FilteredRowIndices() ([]int, bool)
}

// ReadRow 读取一整行，构造 RowView
func ReadRow(src DataSource, columns []string, row int) (RowView, error) {
	values := make(map[string]Value, len(columns))
	for _, column := range columns {
		v, err := src.Value(row, column)
		if err != nil {
			return RowView{}, err
		}
		values[column] = v
	}
	return RowView{Index: row, Values: values}, nil
}

// ReadRows 按给定行号顺序读取多行
func ReadRows(src DataSource, columns []string, rows []int) ([]RowView, error) {
	views := make([]RowView, 0, len(rows))
	for _, row := range rows {
		view, err := ReadRow(src, columns, row)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// AllRows 返回 0..RowCount-1 的行号
func AllRows(src DataSource) []int {
	n := src.RowCount()
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}
