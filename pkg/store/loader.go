package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"katydid-common-validation/pkg/table"
)

// LoadTable 执行查询，把结果集读入内存表；列类型由数据库类型名推断
func LoadTable(ctx context.Context, db *gorm.DB, query string, args ...any) (*table.Table, error) {
	rows, err := db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	columns := make([]table.Column, len(types))
	for i, ct := range types {
		columns[i] = table.Column{ID: ct.Name(), Type: dataType(ct)}
	}

	t, err := table.NewTable(columns...)
	if err != nil {
		return nil, err
	}

	dest := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", t.RowCount(), err)
		}
		record := table.NewRow(len(dest))
		for i, v := range dest {
			record.Set(columns[i].ID, normalize(v, columns[i].Type))
		}
		if _, err := t.AppendRecord(record); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// dataType 数据库类型名到列类型
func dataType(ct *sql.ColumnType) table.DataType {
	name := strings.ToUpper(ct.DatabaseTypeName())
	switch {
	case name == "":
		return table.TypeUnknown
	case strings.Contains(name, "INT"):
		return table.TypeInt
	case strings.Contains(name, "BOOL"):
		return table.TypeBool
	case strings.Contains(name, "DEC"), strings.Contains(name, "NUMERIC"):
		return table.TypeDecimal
	case strings.Contains(name, "FLOAT"), strings.Contains(name, "DOUBLE"), strings.Contains(name, "REAL"):
		return table.TypeFloat
	case strings.Contains(name, "TIMESTAMP"), strings.Contains(name, "DATETIME"):
		return table.TypeTimestamp
	case name == "DATE":
		return table.TypeDate
	case strings.Contains(name, "BLOB"), strings.Contains(name, "BYTEA"), strings.Contains(name, "BINARY"):
		return table.TypeBinary
	default:
		return table.TypeString
	}
}

// normalize 驱动返回的 []byte 对非二进制列转换为字符串
func normalize(v any, dataType table.DataType) any {
	if b, ok := v.([]byte); ok && dataType != table.TypeBinary {
		return string(b)
	}
	return v
}
