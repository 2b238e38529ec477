package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"katydid-common-validation/pkg/config"
	"katydid-common-validation/pkg/idgen"
	"katydid-common-validation/pkg/logger"
	"katydid-common-validation/pkg/rule"
	"katydid-common-validation/pkg/store"
	"katydid-common-validation/pkg/table"
	"katydid-common-validation/pkg/validation"
)

func main() {
	cfg := config.Default()
	cfg.Log.Format = "console"
	cfg.Store = config.StoreConfig{Driver: "sqlite", DSN: "file:example?mode=memory&cache=shared"}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	// 订单表
	tbl := table.MustNewTable(
		table.Column{ID: "Name", Type: table.TypeString},
		table.Column{ID: "Email", Type: table.TypeString},
		table.Column{ID: "Age", Type: table.TypeInt},
		table.Column{ID: "Quantity", Type: table.TypeInt},
		table.Column{ID: "Total", Type: table.TypeInt},
	)
	rows := [][]any{
		{"张三", "zhangsan@example.com", 25, 2, nil},
		{"李四", "lisi@example", -5, 3, nil},
		{"王五", "wangwu@example.com", "abc", 1, nil},
		{"张三", "zhangsan@example.com", 31, 4, 10},
	}
	for _, row := range rows {
		if _, err := tbl.AppendRow(row...); err != nil {
			log.Fatal(err)
		}
	}

	// 规则
	registry, err := rule.NewRegistry(tbl.ColumnIDs())
	if err != nil {
		log.Fatal(err)
	}
	must(registry.AddRules("Name", rule.Required("name_required", "Name")))
	must(registry.AddRules("Email", rule.Tag("email_format", "Email", "email").WithMessage("{column} 第 {row} 行: {detail}")))
	must(registry.AddRules("Age", rule.Range("age_range", "Age", 0, 150).WithSeverity(rule.Warning)))
	must(registry.AddRules("Quantity", rule.Compare("quantity_le_total", "Quantity", rule.OpLE, "Total")))
	must(registry.AddCrossScopeRules(
		rule.SumEquals("quantity_total", "Quantity", "Total"),
		rule.Unique("unique_customer", "Name", "Email"),
	))

	// 结果持久化
	db, err := store.OpenConfig(cfg.Store, zl)
	if err != nil {
		log.Fatal(err)
	}
	sink, err := store.NewGormSink(db, "orders")
	if err != nil {
		log.Fatal(err)
	}
	ids, err := idgen.New(cfg.IDGen.DatacenterID, cfg.IDGen.WorkerID)
	if err != nil {
		log.Fatal(err)
	}

	outcomes := validation.NewOutcomeStore()
	opts := append(validation.FromConfig(cfg.Validation),
		validation.WithLogger(zl),
		validation.WithOutcomeStore(outcomes),
		validation.WithResultSink(sink),
		validation.WithIDGenerator(ids),
	)
	engine, err := validation.NewBatchEngine(tbl, tbl, registry, opts...)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 批量验证
	run, err := engine.Start(ctx, validation.BatchOptions{
		ChunkSize: 2,
		OnProgress: func(processed, total, valid, invalid int) {
			fmt.Printf("进度: %d/%d (有效 %d, 无效 %d)\n", processed, total, valid, invalid)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	result, err := run.Wait()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("\n运行 %s: %d 个单元格, %d 个无效\n", run.ID(), result.TotalCells, result.InvalidCells)
	for _, v := range result.Violations {
		fmt.Printf("  [%s] %s %s: %s\n", v.Severity, v.Cell(), v.Rule, v.Message)
	}

	// 实时验证：修正年龄
	rt := validation.NewRealTimeValidator(tbl, registry, outcomes, validation.WithLogger(zl))
	ref := table.CellRef{Row: 1, Column: "Age"}
	if err := tbl.Set(ref.Row, ref.Column, 42); err != nil {
		log.Fatal(err)
	}
	outcome, err := rt.OnValueChanged(ref, table.NewValue(42, table.TypeInt))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("\n修改 %s 后: valid=%v\n", ref, outcome.Valid)

	// 导出前检查
	ok, _, err := engine.AllNonEmptyValid(ctx, validation.EntireDataset)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("可以导出: %v\n", ok)

	latest, err := sink.Latest(ctx)
	if err != nil {
		log.Fatal(err)
	}
	zl.Info("latest run", zap.Int64("run_id", latest.ID), zap.Int("violations", len(latest.Violations)))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
