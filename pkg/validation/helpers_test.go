package validation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"katydid-common-validation/pkg/rule"
	"katydid-common-validation/pkg/table"
)

func newTable(t testing.TB, columns []table.Column, rows ...[]any) *table.Table {
	t.Helper()
	tbl, err := table.NewTable(columns...)
	require.NoError(t, err)
	for _, row := range rows {
		_, err := tbl.AppendRow(row...)
		require.NoError(t, err)
	}
	return tbl
}

func newRegistry(t testing.TB, src table.DataSource) *rule.Registry {
	t.Helper()
	registry, err := rule.NewRegistry(src.ColumnIDs())
	require.NoError(t, err)
	return registry
}

func newEngine(t *testing.T, tbl *table.Table, registry *rule.Registry, opts ...Option) *BatchEngine {
	t.Helper()
	engine, err := NewBatchEngine(tbl, tbl, registry, opts...)
	require.NoError(t, err)
	return engine
}

func observedLogger(level zap.AtomicLevel) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// frozen 去掉与运行耗时相关的字段
func frozen(r *BatchResult) BatchResult {
	c := *r
	c.Duration = 0
	return c
}

func ageTable(t *testing.T) (*table.Table, *rule.Registry) {
	t.Helper()
	tbl := newTable(t, []table.Column{{ID: "Age", Type: table.TypeInt}},
		[]any{25}, []any{-5}, []any{"abc"})
	registry := newRegistry(t, tbl)
	require.NoError(t, registry.AddRules("Age", rule.Range("age_range", "Age", 0, 150)))
	return tbl, registry
}

func violationKeys(violations []Violation) []string {
	keys := make([]string, len(violations))
	for i, v := range violations {
		keys[i] = v.Cell().String() + ":" + v.Rule
	}
	return keys
}
