package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katydid-common-validation/pkg/rule"
	"katydid-common-validation/pkg/table"
)

func identityRows(t *testing.T) []table.RowView {
	t.Helper()
	tbl := newTable(t, []table.Column{{ID: "Name"}, {ID: "Email"}},
		[]any{"alice", "a@x.io"},
		[]any{"bob", "b@x.io"},
		[]any{"alice", "a@x.io"})
	rows, err := table.ReadRows(tbl, tbl.ColumnIDs(), table.AllRows(tbl))
	require.NoError(t, err)
	return rows
}

func TestCrossEvaluator_DatasetWide(t *testing.T) {
	outcomes := NewCrossEvaluator().EvaluateDatasetWide(identityRows(t), []rule.Rule{rule.Unique("unique_identity", "Name", "Email")})

	require.Len(t, outcomes, 4)
	for _, ref := range []table.CellRef{{Row: 0, Column: "Name"}, {Row: 0, Column: "Email"}} {
		o := outcomes[ref]
		require.False(t, o.Valid)
		assert.Equal(t, []int{2}, o.Violations[0].Related)
		assert.Equal(t, rule.DatasetWide, o.Violations[0].Kind)
	}
	for _, ref := range []table.CellRef{{Row: 2, Column: "Name"}, {Row: 2, Column: "Email"}} {
		assert.Equal(t, []int{0}, outcomes[ref].Violations[0].Related)
	}
	_, ok := outcomes[table.CellRef{Row: 1, Column: "Name"}]
	assert.False(t, ok)
}

func TestCrossEvaluator_KindMismatchIgnored(t *testing.T) {
	outcomes := NewCrossEvaluator().EvaluateCrossRow(identityRows(t), []rule.Rule{rule.Unique("unique_identity", "Name", "Email")})
	assert.Empty(t, outcomes)
}

func TestCrossEvaluator_PredicatePanic(t *testing.T) {
	rows := identityRows(t)
	boom := rule.Dataset("boom", []string{"Name", "Email"}, func([]table.RowView) []rule.Finding {
		panic("boom")
	})

	outcomes := NewCrossEvaluator().EvaluateDatasetWide(rows, []rule.Rule{boom, rule.Unique("unique_identity", "Name", "Email")})

	// 每个涉及的单元格恰好一条 Critical 违规，其他规则不受影响
	require.Len(t, outcomes, len(rows)*2)
	for ref, o := range outcomes {
		critical := 0
		for _, v := range o.Violations {
			if v.Rule == "boom" {
				critical++
				assert.Equal(t, rule.Critical, v.Severity)
			}
		}
		assert.Equal(t, 1, critical, ref.String())
	}
	assert.Len(t, outcomes[table.CellRef{Row: 0, Column: "Name"}].Violations, 2)
}

func TestCrossEvaluator_CrossRowCap(t *testing.T) {
	tbl := newTable(t, []table.Column{{ID: "Quantity"}, {ID: "Total"}},
		[]any{"x", nil},
		[]any{1, "?"})
	rows, err := table.ReadRows(tbl, tbl.ColumnIDs(), table.AllRows(tbl))
	require.NoError(t, err)

	sum := rule.SumEquals("sum", "Quantity", "Total")
	again := rule.Rows("again", []string{"Total"}, func(rows []table.RowView) []rule.Finding {
		last := rows[len(rows)-1]
		return []rule.Finding{{Cells: []table.CellRef{{Row: last.Index, Column: "Total"}}, Detail: "again"}}
	})

	outcomes := NewCrossEvaluator(WithMaxViolations(1)).EvaluateCrossRow(rows, []rule.Rule{sum, again})
	total := outcomes[table.CellRef{Row: 1, Column: "Total"}]
	require.Len(t, total.Violations, 1)
	assert.Equal(t, "sum", total.Violations[0].Rule)
	assert.False(t, outcomes[table.CellRef{Row: 0, Column: "Quantity"}].Valid)
}
