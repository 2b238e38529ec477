package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPeople(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable(
		Column{ID: "Name", Type: TypeString},
		Column{ID: "Age", Type: TypeInt},
	)
	require.NoError(t, err)
	_, err = tbl.AppendRow("alice", 30)
	require.NoError(t, err)
	_, err = tbl.AppendRecord(Row{"Name": "bob"})
	require.NoError(t, err)
	return tbl
}

func TestNewTable_InvalidColumns(t *testing.T) {
	_, err := NewTable(Column{ID: "A"}, Column{ID: "A"})
	assert.ErrorIs(t, err, ErrDuplicateColumn)

	_, err = NewTable(Column{ID: ""})
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestTable_Value(t *testing.T) {
	tbl := newPeople(t)

	assert.Equal(t, 2, tbl.RowCount())
	assert.Equal(t, []string{"Name", "Age"}, tbl.ColumnIDs())

	v, err := tbl.Value(0, "Age")
	require.NoError(t, err)
	assert.Equal(t, TypeInt, v.Type)
	assert.Equal(t, 30, v.Raw)

	// 缺失的列是空值
	v, err = tbl.Value(1, "Age")
	require.NoError(t, err)
	assert.True(t, v.IsNull)
	assert.True(t, v.IsEmpty())

	_, err = tbl.Value(2, "Age")
	assert.ErrorIs(t, err, ErrInvalidRow)

	_, err = tbl.Value(0, "Email")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestTable_SetAndAppend(t *testing.T) {
	tbl := newPeople(t)

	// AppendRecord 缺失的列为空值
	v, err := tbl.Value(1, "Age")
	require.NoError(t, err)
	assert.True(t, v.IsNull)

	require.NoError(t, tbl.Set(1, "Age", "41"))
	v, err = tbl.Value(1, "Age")
	require.NoError(t, err)
	age, ok := v.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(41), age)

	assert.ErrorIs(t, tbl.Set(5, "Age", 1), ErrInvalidRow)
	assert.ErrorIs(t, tbl.Set(0, "Nope", 1), ErrColumnNotFound)

	_, err = tbl.AppendRow("only-one")
	assert.ErrorIs(t, err, ErrRowWidth)

	_, err = tbl.AppendRecord(Row{"Unknown": 1})
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestTable_Filter(t *testing.T) {
	tbl := newPeople(t)

	_, ok := tbl.FilteredRowIndices()
	assert.False(t, ok)

	tbl.SetFilter([]int{1})
	rows, ok := tbl.FilteredRowIndices()
	assert.True(t, ok)
	assert.Equal(t, []int{1}, rows)

	// 返回的是副本
	rows[0] = 99
	rows, _ = tbl.FilteredRowIndices()
	assert.Equal(t, []int{1}, rows)

	tbl.ClearFilter()
	_, ok = tbl.FilteredRowIndices()
	assert.False(t, ok)
}

func TestReadRows(t *testing.T) {
	tbl := newPeople(t)

	views, err := ReadRows(tbl, tbl.ColumnIDs(), []int{1, 0})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, 1, views[0].Index)
	assert.Equal(t, "bob", views[0].Get("Name").Raw)
	assert.True(t, views[0].Get("Missing").IsNull)

	_, err = ReadRows(tbl, tbl.ColumnIDs(), []int{7})
	assert.ErrorIs(t, err, ErrInvalidRow)

	assert.Equal(t, []int{0, 1}, AllRows(tbl))
}

func TestValue_IsEmptyAndString(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		empty bool
		text  string
	}{
		{name: "空值", value: NullValue(TypeString), empty: true, text: ""},
		{name: "空白字符串", value: NewValue("  ", TypeString), empty: true, text: "  "},
		{name: "普通字符串", value: NewValue("x", TypeString), empty: false, text: "x"},
		{name: "零值整数不是空", value: NewValue(0, TypeInt), empty: false, text: "0"},
		{name: "日期", value: NewValue(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), TypeDate), empty: false, text: "2024-03-01"},
		{name: "空字节", value: NewValue([]byte{}, TypeBinary), empty: true, text: "<0 bytes>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.empty, tt.value.IsEmpty())
			assert.Equal(t, tt.text, tt.value.String())
		})
	}
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, NewValue("a", TypeString).Equal(NewValue("a", TypeUnknown)))
	assert.False(t, NewValue("a", TypeString).Equal(NewValue("b", TypeString)))
	assert.True(t, NullValue(TypeInt).Equal(NullValue(TypeString)))
	assert.False(t, NullValue(TypeInt).Equal(NewValue(0, TypeInt)))
	assert.True(t, NewValue([]int{1}, TypeUnknown).Equal(NewValue([]int{1}, TypeUnknown)))
}

func TestValue_EqualNumeric(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"int64与int", int64(1), 1, true},
		{"int32与float64", int32(3), 3.0, true},
		{"uint8与int64", uint8(7), int64(7), true},
		{"数值字符串与int", "1", 1, true},
		{"数值不同", int64(1), 2, false},
		{"非数值字符串", "abc", 1, false},
		{"布尔值不按数值比较", true, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := NewValue(tt.a, TypeUnknown), NewValue(tt.b, TypeUnknown)
			assert.Equal(t, tt.want, a.Equal(b))
			assert.Equal(t, tt.want, b.Equal(a))
		})
	}
}
