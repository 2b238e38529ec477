package rule

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katydid-common-validation/pkg/table"
)

func pass(table.Value) error { return nil }

func passRow(table.RowView) error { return nil }

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]string{"Name", "Email", "Age", "Start", "End"})
	require.NoError(t, err)
	return r
}

func names(rules []Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Name
	}
	return out
}

func TestNewRegistry_InvalidColumns(t *testing.T) {
	_, err := NewRegistry([]string{"A", "A"})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewRegistry([]string{""})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRegistry_Ordering(t *testing.T) {
	r := newRegistry(t)

	require.NoError(t, r.AddRules("Age",
		Cell("c", "Age", pass).WithPriority(5),
		Cell("a", "Age", pass).WithPriority(1),
		Cell("b", "Age", pass).WithPriority(5),
	))
	require.NoError(t, r.AddRules("Age", Cell("d", "Age", pass).WithPriority(1)))

	// 优先级升序，相同优先级按注册顺序
	assert.Equal(t, []string{"a", "d", "c", "b"}, names(r.RulesFor("Age")))

	rules := r.RulesFor("Age")
	assert.Less(t, rules[0].Seq(), rules[1].Seq())
}

func TestRegistry_AddRules_Errors(t *testing.T) {
	tests := []struct {
		name   string
		column string
		rule   Rule
	}{
		{name: "未知列", column: "Phone", rule: Cell("x", "Phone", pass)},
		{name: "空规则名", column: "Age", rule: Cell("", "Age", pass)},
		{name: "没有谓词", column: "Age", rule: Rule{Name: "x", Columns: []string{"Age"}}},
		{name: "单列规则目标不是自身", column: "Age", rule: Cell("x", "Name", pass)},
		{name: "跨列规则未包含自身", column: "Age", rule: Rule{Name: "x", Columns: []string{"Name"}, Check: RowCheck(passRow)}},
		{name: "跨列规则引用未知列", column: "Age", rule: Row("x", "Age", []string{"Phone"}, passRow)},
		{name: "跨行规则注册到列", column: "Age", rule: SumEquals("x", "Age", "Age")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t)
			err := r.AddRules(tt.column, tt.rule)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)

			var cfgErr *ConfigurationError
			assert.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, uint64(0), r.Version())
		})
	}
}

func TestRegistry_AddRules_AtomicBatch(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.AddRules("Age", Cell("a", "Age", pass)))

	// 第二条重名，整批拒绝，第一条也不会生效
	err := r.AddRules("Age", Cell("b", "Age", pass), Cell("a", "Age", pass))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, []string{"a"}, names(r.RulesFor("Age")))
	assert.Equal(t, uint64(1), r.Version())
}

func TestRegistry_CyclicCrossColumn(t *testing.T) {
	r := newRegistry(t)

	require.NoError(t, r.AddRules("End", Compare("end_after_start", "End", OpGE, "Start")))
	require.NoError(t, r.AddRules("Start", Required("start_required", "Start")))

	err := r.AddRules("Start", Compare("start_before_end", "Start", OpLE, "End"))
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "cyclic")
	assert.Equal(t, []string{"start_required"}, names(r.RulesFor("Start")))

	// 三列成环
	r = newRegistry(t)
	require.NoError(t, r.AddRules("Name", Row("n", "Name", []string{"Email"}, passRow)))
	require.NoError(t, r.AddRules("Email", Row("e", "Email", []string{"Age"}, passRow)))
	err = r.ReplaceRules("Age", Row("a", "Age", []string{"Name"}, passRow))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRegistry_ReplaceAndRemove(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.AddRules("Age", Cell("a", "Age", pass), Cell("b", "Age", pass)))

	require.NoError(t, r.ReplaceRules("Age", Cell("c", "Age", pass)))
	assert.Equal(t, []string{"c"}, names(r.RulesFor("Age")))

	n, err := r.RemoveRules("Age", "c", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, r.RulesFor("Age"))

	_, err = r.RemoveRules("Phone", "x")
	assert.ErrorIs(t, err, ErrConfiguration)

	require.NoError(t, r.ReplaceRules("Age"))
	assert.Empty(t, r.RulesFor("Age"))
}

func TestRegistry_CrossScopeRules(t *testing.T) {
	r := newRegistry(t)

	require.NoError(t, r.AddCrossScopeRules(
		Unique("unique_identity", "Name", "Email"),
		SumEquals("age_total", "Age", "Age").WithPriority(-1),
	))
	assert.Equal(t, []string{"unique_identity"}, names(r.CrossScopeRules(DatasetWide)))
	assert.Equal(t, []string{"age_total"}, names(r.CrossScopeRules(CrossRow)))
	assert.Nil(t, r.CrossScopeRules(SingleColumn))

	err := r.AddCrossScopeRules(Unique("u2", "Phone"))
	assert.ErrorIs(t, err, ErrConfiguration)

	err = r.AddCrossScopeRules(Required("req", "Name"))
	assert.ErrorIs(t, err, ErrConfiguration)

	err = r.AddCrossScopeRules(Unique("unique_identity", "Name"))
	assert.ErrorIs(t, err, ErrConfiguration)

	err = r.AddCrossScopeRules(Dataset("no_columns", nil, func([]table.RowView) []Finding { return nil }))
	assert.ErrorIs(t, err, ErrConfiguration)

	assert.Equal(t, 2, r.RemoveCrossScopeRules("unique_identity", "age_total"))
	assert.Equal(t, 0, r.Snapshot().RuleCount())
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.AddRules("Age", Cell("a", "Age", pass)))

	snap := r.Snapshot()
	require.NoError(t, r.AddRules("Age", Cell("b", "Age", pass)))

	// 旧快照不受后续修改影响
	assert.Equal(t, []string{"a"}, names(snap.RulesFor("Age")))
	assert.Equal(t, []string{"a", "b"}, names(r.Snapshot().RulesFor("Age")))
	assert.Greater(t, r.Version(), snap.Version())

	// 返回副本，外部修改不影响注册表
	rules := r.RulesFor("Age")
	rules[0].Name = "mutated"
	assert.Equal(t, "a", r.RulesFor("Age")[0].Name)

	assert.Equal(t, 1, snap.ColumnIndex("Email"))
	assert.Equal(t, -1, snap.ColumnIndex("Phone"))
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	r := newRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				rules := r.Snapshot().RulesFor("Age")
				// 任意时刻看到的列表都是完整排好序的
				for k := 1; k < len(rules); k++ {
					assert.False(t, Less(rules[k], rules[k-1]))
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, r.AddRules("Age", Cell(string(rune('a'+i%26))+string(rune('A'+i/26)), "Age", pass).WithPriority(i%3)))
	}
	wg.Wait()
	assert.Len(t, r.RulesFor("Age"), 50)
}
