package validation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"katydid-common-validation/pkg/idgen"
	"katydid-common-validation/pkg/rule"
	"katydid-common-validation/pkg/table"
)

// ProgressFunc 进度回调，参数为累计值
type ProgressFunc func(processed, total, valid, invalid int)

// CancelToken 协作式取消令牌，只在分块边界检查
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken 创建取消令牌
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel 请求取消
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled 是否已请求取消，nil 令牌永远为 false
func (t *CancelToken) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// BatchOptions 一次批量验证的参数
type BatchOptions struct {
	// Scope 验证范围
	Scope Scope
	// ChunkSize 每个分块的行数，0 使用引擎默认值
	ChunkSize int
	// Timeout 超时，0 使用引擎默认值，负数表示不限
	Timeout time.Duration
	// Cancel 取消令牌，可为 nil
	Cancel *CancelToken
	// OnProgress 进度回调，可为 nil
	OnProgress ProgressFunc
	// NonEmptyOnly 只验证非空单元格，空单元格不计入总数
	NonEmptyOnly bool
}

// BatchResult 批量验证结果
// 在批量开始时创建，只由引擎修改，返回后不再变化
type BatchResult struct {
	Scope           Scope         `json:"scope"`
	RegistryVersion uint64        `json:"registry_version"`
	TotalCells      int           `json:"total_cells"`
	ProcessedCells  int           `json:"processed_cells"`
	ValidCells      int           `json:"valid_cells"`
	InvalidCells    int           `json:"invalid_cells"`
	Violations      []Violation   `json:"violations,omitempty"`
	Duration        time.Duration `json:"duration"`
	WasCancelled    bool          `json:"was_cancelled"`
	WasTimedOut     bool          `json:"was_timed_out"`
}

// Complete 是否完整运行（未取消、未超时）
func (r *BatchResult) Complete() bool {
	return !r.WasCancelled && !r.WasTimedOut
}

// ResultSink 接收结束的批量验证结果（包括部分结果）
// 返回的错误只记录日志，不影响批量验证本身
type ResultSink interface {
	Save(ctx context.Context, runID idgen.ID, result *BatchResult) error
}

// defaultIDs 未设置 WithIDGenerator 的引擎共用同一个生成器，
// 共享同一个结果接收者的引擎因此不会生成重复的运行ID
var defaultIDs = sync.OnceValues(func() (*idgen.Generator, error) {
	return idgen.New(0, 0)
})

// BatchEngine 批量验证引擎
// 同一引擎同时只允许一次批量验证，第二个请求返回 ErrValidationInProgress
type BatchEngine struct {
	src      table.DataSource
	registry *rule.Registry
	resolver *ScopeResolver
	cells    *CellEvaluator
	cross    *CrossEvaluator
	opts     options
	logger   *zap.Logger

	running atomic.Bool
}

// NewBatchEngine 创建批量验证引擎，filter 为 nil 表示宿主不支持过滤
func NewBatchEngine(src table.DataSource, filter table.FilterState, registry *rule.Registry, opts ...Option) (*BatchEngine, error) {
	if src == nil {
		return nil, errors.New("validation: nil data source")
	}
	if registry == nil {
		return nil, errors.New("validation: nil registry")
	}

	o := applyOptions(opts)
	if o.ids == nil {
		ids, err := defaultIDs()
		if err != nil {
			return nil, err
		}
		o.ids = ids
	}

	return &BatchEngine{
		src:      src,
		registry: registry,
		resolver: NewScopeResolver(src, filter),
		cells:    NewCellEvaluator(opts...),
		cross:    NewCrossEvaluator(opts...),
		opts:     o,
		logger:   o.logger,
	}, nil
}

// Running 是否有批量验证在运行
func (e *BatchEngine) Running() bool {
	return e.running.Load()
}

// Validate 在调用方协程内同步运行批量验证
// 取消和超时不是错误，返回的结果带有 WasCancelled / WasTimedOut
func (e *BatchEngine) Validate(ctx context.Context, opts BatchOptions) (*BatchResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrValidationInProgress
	}
	defer e.running.Store(false)

	id, err := e.opts.ids.NextID()
	if err != nil {
		return nil, err
	}
	return e.run(ctx, id, opts)
}

// Run 后台运行的批量验证
type Run struct {
	id     idgen.ID
	token  *CancelToken
	done   chan struct{}
	result *BatchResult
	err    error
}

// ID 运行ID
func (r *Run) ID() idgen.ID {
	return r.id
}

// Done 运行结束时关闭
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Cancel 请求取消，在下一个分块边界生效
func (r *Run) Cancel() {
	r.token.Cancel()
}

// Wait 等待运行结束
func (r *Run) Wait() (*BatchResult, error) {
	<-r.done
	return r.result, r.err
}

// Start 在后台协程运行批量验证，立即返回运行句柄
func (e *BatchEngine) Start(ctx context.Context, opts BatchOptions) (*Run, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrValidationInProgress
	}

	id, err := e.opts.ids.NextID()
	if err != nil {
		e.running.Store(false)
		return nil, err
	}
	if opts.Cancel == nil {
		opts.Cancel = NewCancelToken()
	}

	run := &Run{id: id, token: opts.Cancel, done: make(chan struct{})}
	go func() {
		defer close(run.done)
		defer e.running.Store(false)

		run.result, run.err = e.run(ctx, id, opts)
	}()
	return run, nil
}

// batchState 一次运行的可变状态
type batchState struct {
	opts     BatchOptions
	snap     *rule.Snapshot
	columns  []string
	colIndex map[string]int
	rows     []int
	start    time.Time
	timeout  time.Duration

	result   *BatchResult
	outcomes map[table.CellRef]Outcome // 只保存失败的单元格
	done     []int                     // 已处理的行
}

func (e *BatchEngine) run(ctx context.Context, id idgen.ID, opts BatchOptions) (*BatchResult, error) {
	start := time.Now()
	logger := e.logger.With(zap.Stringer("run_id", id), zap.Stringer("scope", opts.Scope))

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = e.opts.chunkSize
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = e.opts.timeout
	}

	rows, err := e.resolver.Resolve(opts.Scope)
	if err != nil {
		return nil, err
	}

	// 批量开始时固定规则快照
	snap := e.registry.Snapshot()
	columns := e.src.ColumnIDs()
	st := &batchState{
		opts:     opts,
		snap:     snap,
		columns:  columns,
		colIndex: make(map[string]int, len(columns)),
		rows:     rows,
		start:    start,
		timeout:  timeout,
		result:   &BatchResult{Scope: opts.Scope, RegistryVersion: snap.Version()},
		outcomes: make(map[table.CellRef]Outcome),
		done:     make([]int, 0, len(rows)),
	}
	for i, c := range columns {
		st.colIndex[c] = i
	}

	if st.result.TotalCells, err = e.countCells(st); err != nil {
		return nil, err
	}
	logger.Debug("batch validation started",
		zap.Int("rows", len(rows)),
		zap.Int("total_cells", st.result.TotalCells),
		zap.Int("chunk_size", chunkSize),
		zap.Duration("timeout", timeout),
		zap.Bool("non_empty_only", opts.NonEmptyOnly))

	interrupted := e.interrupted(ctx, st)
	for begin := 0; !interrupted && begin < len(rows); begin += chunkSize {
		if err := e.processChunk(st, rows[begin:min(begin+chunkSize, len(rows))]); err != nil {
			return nil, err
		}
		interrupted = e.interrupted(ctx, st)
		if !interrupted {
			st.report()
		}
	}

	// 部分结果不运行跨范围规则
	if !interrupted {
		ran, err := e.crossScope(st)
		if err != nil {
			return nil, err
		}
		if ran {
			st.report()
		}
	}

	result := st.finish()
	if e.opts.store != nil && !opts.NonEmptyOnly {
		e.opts.store.replaceRows(st.done, st.outcomes)
	}

	logger.Info("batch validation finished",
		zap.Int("total_cells", result.TotalCells),
		zap.Int("processed_cells", result.ProcessedCells),
		zap.Int("invalid_cells", result.InvalidCells),
		zap.Int("violations", len(result.Violations)),
		zap.Bool("cancelled", result.WasCancelled),
		zap.Bool("timed_out", result.WasTimedOut),
		zap.Duration("duration", result.Duration))

	e.publish(ctx, logger, id, result)
	return result, nil
}

// countCells 统计可验证的单元格数量
func (e *BatchEngine) countCells(st *batchState) (int, error) {
	if !st.opts.NonEmptyOnly {
		return len(st.rows) * len(st.columns), nil
	}
	total := 0
	for _, row := range st.rows {
		for _, column := range st.columns {
			v, err := e.src.Value(row, column)
			if err != nil {
				return 0, err
			}
			if !v.IsEmpty() {
				total++
			}
		}
	}
	return total, nil
}

// interrupted 分块边界检查：先取消，再超时
func (e *BatchEngine) interrupted(ctx context.Context, st *batchState) bool {
	if st.opts.Cancel.Cancelled() {
		st.result.WasCancelled = true
		return true
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			st.result.WasTimedOut = true
		} else {
			st.result.WasCancelled = true
		}
		return true
	}
	if st.timeout > 0 && time.Since(st.start) >= st.timeout {
		st.result.WasTimedOut = true
		return true
	}
	return false
}

func (e *BatchEngine) processChunk(st *batchState, chunk []int) error {
	for _, row := range chunk {
		view, err := e.readRow(row, st.columns)
		if err != nil {
			return err
		}
		for _, column := range st.columns {
			if st.opts.NonEmptyOnly && view.Get(column).IsEmpty() {
				continue
			}
			outcome := e.cells.evaluateRow(view, column, st.snap.RulesFor(column))
			st.result.ProcessedCells++
			if outcome.Valid {
				st.result.ValidCells++
				continue
			}
			st.result.InvalidCells++
			st.outcomes[table.CellRef{Row: row, Column: column}] = outcome
		}
		st.done = append(st.done, row)
	}
	return nil
}

// crossScope 跨行规则作用于验证范围，全数据集规则作用于整个数据集，两者并行
func (e *BatchEngine) crossScope(st *batchState) (bool, error) {
	crossRules := st.snap.CrossScopeRules(rule.CrossRow)
	datasetRules := st.snap.CrossScopeRules(rule.DatasetWide)
	if len(crossRules) == 0 && len(datasetRules) == 0 {
		return false, nil
	}

	var rowOutcomes, datasetOutcomes map[table.CellRef]Outcome
	var g errgroup.Group
	if len(crossRules) > 0 {
		g.Go(func() error {
			views, err := e.readRows(st.rows, ruleColumns(crossRules))
			if err != nil {
				return fmt.Errorf("read scoped rows: %w", err)
			}
			rowOutcomes = e.cross.EvaluateCrossRow(views, crossRules)
			return nil
		})
	}
	if len(datasetRules) > 0 {
		g.Go(func() error {
			views, err := e.readRows(table.AllRows(e.src), ruleColumns(datasetRules))
			if err != nil {
				return fmt.Errorf("read dataset rows: %w", err)
			}
			datasetOutcomes = e.cross.EvaluateDatasetWide(views, datasetRules)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	inScope := e.scopeFilter(st)
	for _, outcomes := range []map[table.CellRef]Outcome{rowOutcomes, datasetOutcomes} {
		for ref, outcome := range outcomes {
			if !inScope(ref) {
				continue
			}
			prev, had := st.outcomes[ref]
			if !had {
				prev = ValidOutcome()
				st.result.ValidCells--
				st.result.InvalidCells++
			}
			st.outcomes[ref] = prev.merge(outcome, e.opts.maxViolations)
		}
	}
	return true, nil
}

// scopeFilter 跨范围违规只计入验证范围内、已被统计的单元格
func (e *BatchEngine) scopeFilter(st *batchState) func(table.CellRef) bool {
	rowSet := make(map[int]struct{}, len(st.rows))
	for _, row := range st.rows {
		rowSet[row] = struct{}{}
	}
	return func(ref table.CellRef) bool {
		if _, ok := rowSet[ref.Row]; !ok {
			return false
		}
		if _, ok := st.colIndex[ref.Column]; !ok {
			return false
		}
		if st.opts.NonEmptyOnly {
			v, err := e.src.Value(ref.Row, ref.Column)
			if err != nil || v.IsEmpty() {
				return false
			}
		}
		return true
	}
}

// readRow 读取一行；数据源中不存在的列按空值处理
func (e *BatchEngine) readRow(row int, columns []string) (table.RowView, error) {
	view := table.RowView{Index: row, Values: make(map[string]table.Value, len(columns))}
	for _, column := range columns {
		v, err := e.src.Value(row, column)
		if err != nil {
			if !errors.Is(err, table.ErrColumnNotFound) {
				return table.RowView{}, err
			}
			v = table.NullValue(table.TypeUnknown)
		}
		view.Values[column] = v
	}
	return view, nil
}

func (e *BatchEngine) readRows(rows []int, columns []string) ([]table.RowView, error) {
	views := make([]table.RowView, 0, len(rows))
	for _, row := range rows {
		view, err := e.readRow(row, columns)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// publish 把结果交给所有接收者，失败只记录日志
func (e *BatchEngine) publish(ctx context.Context, logger *zap.Logger, id idgen.ID, result *BatchResult) {
	if len(e.opts.sinks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, sink := range e.opts.sinks {
		if err := sink.Save(ctx, id, result); err != nil {
			logger.Warn("result sink failed", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(err))
		}
	}
}

func (st *batchState) report() {
	if st.opts.OnProgress == nil {
		return
	}
	r := st.result
	st.opts.OnProgress(r.ProcessedCells, r.TotalCells, r.ValidCells, r.InvalidCells)
}

// finish 汇总违规并冻结结果
func (st *batchState) finish() *BatchResult {
	count := 0
	for _, outcome := range st.outcomes {
		count += len(outcome.Violations)
	}
	violations := make([]Violation, 0, count)
	for _, outcome := range st.outcomes {
		violations = append(violations, outcome.Violations...)
	}
	sortViolations(violations, st.colIndex)

	st.result.Violations = violations
	st.result.Duration = time.Since(st.start)
	return st.result
}

// ruleColumns 规则涉及的全部列，保持首次出现的顺序
func ruleColumns(rules []rule.Rule) []string {
	seen := make(map[string]struct{})
	var columns []string
	for _, rl := range rules {
		for _, column := range rl.Columns {
			if _, ok := seen[column]; ok {
				continue
			}
			seen[column] = struct{}{}
			columns = append(columns, column)
		}
	}
	return columns
}
