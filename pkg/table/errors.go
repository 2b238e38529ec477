package table

import "errors"

var (
	// ErrInvalidRow 行号越界或重复
	ErrInvalidRow = errors.New("invalid row index")

	// ErrColumnNotFound 列标识不存在
	ErrColumnNotFound = errors.New("column not found")

	// ErrDuplicateColumn 列标识重复
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrRowWidth 行的值个数与列数不一致
	ErrRowWidth = errors.New("row width does not match column count")
)
