package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katydid-common-validation/pkg/table"
)

func TestScopeResolver_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		filter  []int // nil 表示没有激活的过滤
		active  bool
		scope   Scope
		want    []int
		wantErr error
	}{
		{name: "整个数据集", scope: EntireDataset, want: []int{0, 1, 2, 3, 4}},
		{name: "没有过滤时等同整个数据集", scope: FilteredSubset, want: []int{0, 1, 2, 3, 4}},
		{name: "整个数据集忽略过滤", scope: EntireDataset, filter: []int{1}, active: true, want: []int{0, 1, 2, 3, 4}},
		{name: "过滤子集", scope: FilteredSubset, filter: []int{1, 4}, active: true, want: []int{1, 4}},
		{name: "空过滤", scope: FilteredSubset, filter: []int{}, active: true, want: []int{}},
		{name: "行号越界", scope: FilteredSubset, filter: []int{1, 5}, active: true, wantErr: table.ErrInvalidRow},
		{name: "行号为负", scope: FilteredSubset, filter: []int{-1}, active: true, wantErr: table.ErrInvalidRow},
		{name: "行号重复", scope: FilteredSubset, filter: []int{2, 2}, active: true, wantErr: table.ErrInvalidRow},
		{name: "未知范围", scope: Scope(9), wantErr: ErrUnknownScope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := newTable(t, []table.Column{{ID: "A"}}, []any{1}, []any{2}, []any{3}, []any{4}, []any{5})
			if tt.active {
				tbl.SetFilter(tt.filter)
			}

			rows, err := NewScopeResolver(tbl, tbl).Resolve(tt.scope)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rows)
		})
	}
}

func TestScopeResolver_NilFilter(t *testing.T) {
	tbl := newTable(t, []table.Column{{ID: "A"}}, []any{1}, []any{2})
	rows, err := NewScopeResolver(tbl, nil).Resolve(FilteredSubset)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, rows)
	assert.Equal(t, "FilteredSubset", FilteredSubset.String())
}
