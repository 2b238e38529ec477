package rule

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"
)

// Snapshot 某一时刻的规则集合，不可变
// 验证器只读快照，无需加锁；批量验证在开始时固定一个快照
type Snapshot struct {
	version  uint64
	columns  []string
	colIndex map[string]int
	byColumn map[string][]Rule
	crossRow []Rule
	dataset  []Rule
}

// Version 快照版本，每次成功的修改加一
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Columns 已知列（有序）
func (s *Snapshot) Columns() []string {
	return s.columns
}

// ColumnIndex 列下标，未知列返回 -1
func (s *Snapshot) ColumnIndex(column string) int {
	if i, ok := s.colIndex[column]; ok {
		return i
	}
	return -1
}

// HasColumn 是否为已知列
func (s *Snapshot) HasColumn(column string) bool {
	_, ok := s.colIndex[column]
	return ok
}

// RulesFor 列的单列/跨列规则，按执行顺序排列；返回的切片为共享只读数据
func (s *Snapshot) RulesFor(column string) []Rule {
	return s.byColumn[column]
}

// CrossScopeRules 跨行或全数据集规则；返回的切片为共享只读数据
func (s *Snapshot) CrossScopeRules(kind Kind) []Rule {
	switch kind {
	case CrossRow:
		return s.crossRow
	case DatasetWide:
		return s.dataset
	default:
		return nil
	}
}

// RuleCount 规则总数
func (s *Snapshot) RuleCount() int {
	n := len(s.crossRow) + len(s.dataset)
	for _, rules := range s.byColumn {
		n += len(rules)
	}
	return n
}

// clone 浅拷贝，修改前调用；各列表在修改时整体替换，不会原地写
func (s *Snapshot) clone() *Snapshot {
	byColumn := make(map[string][]Rule, len(s.byColumn))
	for k, v := range s.byColumn {
		byColumn[k] = v
	}
	return &Snapshot{
		version:  s.version + 1,
		columns:  s.columns,
		colIndex: s.colIndex,
		byColumn: byColumn,
		crossRow: s.crossRow,
		dataset:  s.dataset,
	}
}

// Registry 规则注册表
// 写操作串行化，每次修改构造新快照并原子替换（写时复制），读操作无锁
type Registry struct {
	mu   sync.Mutex
	seq  uint64
	snap atomic.Pointer[Snapshot]
}

// NewRegistry 创建注册表，columns 为数据集的全部列
func NewRegistry(columns []string) (*Registry, error) {
	colIndex := make(map[string]int, len(columns))
	for i, c := range columns {
		if c == "" {
			return nil, configErr("", "", "empty column id at %d", i)
		}
		if _, ok := colIndex[c]; ok {
			return nil, configErr("", c, "duplicate column")
		}
		colIndex[c] = i
	}

	r := &Registry{}
	r.snap.Store(&Snapshot{
		columns:  slices.Clone(columns),
		colIndex: colIndex,
		byColumn: make(map[string][]Rule),
	})
	return r, nil
}

// Snapshot 当前快照
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Version 当前版本
func (r *Registry) Version() uint64 {
	return r.snap.Load().version
}

// RulesFor 列的单列/跨列规则（副本）
func (r *Registry) RulesFor(column string) []Rule {
	return slices.Clone(r.snap.Load().RulesFor(column))
}

// CrossScopeRules 跨行或全数据集规则（副本）
func (r *Registry) CrossScopeRules(kind Kind) []Rule {
	return slices.Clone(r.snap.Load().CrossScopeRules(kind))
}

// AddRules 为列追加单列/跨列规则；任意一条非法则整批拒绝
func (r *Registry) AddRules(column string, rules ...Rule) error {
	return r.update(func(next *Snapshot) error {
		if !next.HasColumn(column) {
			return configErr("", column, "unknown column")
		}
		merged := slices.Clone(next.byColumn[column])
		for _, rl := range rules {
			if err := validateCellRule(next, column, rl); err != nil {
				return err
			}
			if containsName(merged, rl.Name) {
				return configErr(rl.Name, column, "duplicate rule name")
			}
			rl.Columns = slices.Clone(rl.Columns)
			rl.seq = r.nextSeq()
			merged = append(merged, rl)
		}
		sortRules(merged)
		next.byColumn[column] = merged
		return checkCycles(next)
	})
}

// ReplaceRules 用给定规则整体替换列的单列/跨列规则
func (r *Registry) ReplaceRules(column string, rules ...Rule) error {
	return r.update(func(next *Snapshot) error {
		if !next.HasColumn(column) {
			return configErr("", column, "unknown column")
		}
		replaced := make([]Rule, 0, len(rules))
		for _, rl := range rules {
			if err := validateCellRule(next, column, rl); err != nil {
				return err
			}
			if containsName(replaced, rl.Name) {
				return configErr(rl.Name, column, "duplicate rule name")
			}
			rl.Columns = slices.Clone(rl.Columns)
			rl.seq = r.nextSeq()
			replaced = append(replaced, rl)
		}
		sortRules(replaced)
		if len(replaced) == 0 {
			delete(next.byColumn, column)
		} else {
			next.byColumn[column] = replaced
		}
		return checkCycles(next)
	})
}

// RemoveRules 按名称移除列的规则，返回移除的条数；不存在的名称被忽略
func (r *Registry) RemoveRules(column string, names ...string) (int, error) {
	removed := 0
	err := r.update(func(next *Snapshot) error {
		if !next.HasColumn(column) {
			return configErr("", column, "unknown column")
		}
		kept, n := removeNames(next.byColumn[column], names)
		removed = n
		if len(kept) == 0 {
			delete(next.byColumn, column)
		} else {
			next.byColumn[column] = kept
		}
		return nil
	})
	return removed, err
}

// AddCrossScopeRules 注册跨行/全数据集规则
func (r *Registry) AddCrossScopeRules(rules ...Rule) error {
	return r.update(func(next *Snapshot) error {
		crossRow := slices.Clone(next.crossRow)
		dataset := slices.Clone(next.dataset)
		for _, rl := range rules {
			if err := validateCrossRule(next, rl); err != nil {
				return err
			}
			target := &crossRow
			if rl.Kind() == DatasetWide {
				target = &dataset
			}
			if containsName(*target, rl.Name) {
				return configErr(rl.Name, "", "duplicate %s rule name", rl.Kind())
			}
			rl.Columns = slices.Clone(rl.Columns)
			rl.seq = r.nextSeq()
			*target = append(*target, rl)
		}
		sortRules(crossRow)
		sortRules(dataset)
		next.crossRow = crossRow
		next.dataset = dataset
		return nil
	})
}

// RemoveCrossScopeRules 按名称移除跨行/全数据集规则，返回移除的条数
func (r *Registry) RemoveCrossScopeRules(names ...string) int {
	removed := 0
	_ = r.update(func(next *Snapshot) error {
		var a, b int
		next.crossRow, a = removeNames(next.crossRow, names)
		next.dataset, b = removeNames(next.dataset, names)
		removed = a + b
		return nil
	})
	return removed
}

// update 在写锁内基于当前快照构造新快照，fn 出错则丢弃新快照
func (r *Registry) update(fn func(next *Snapshot) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.seq
	next := r.snap.Load().clone()
	if err := fn(next); err != nil {
		r.seq = seq
		return err
	}
	r.snap.Store(next)
	return nil
}

func (r *Registry) nextSeq() uint64 {
	r.seq++
	return r.seq
}

func validateCellRule(s *Snapshot, column string, rl Rule) error {
	if rl.Name == "" {
		return configErr("", column, "rule name is empty")
	}
	switch rl.Kind() {
	case SingleColumn:
		if len(rl.Columns) != 1 || rl.Columns[0] != column {
			return configErr(rl.Name, column, "single-column rule must target exactly its own column, got %v", rl.Columns)
		}
	case CrossColumn:
		if !rl.DependsOn(column) {
			return configErr(rl.Name, column, "cross-column rule must include its own column, got %v", rl.Columns)
		}
		for _, c := range rl.Columns {
			if !s.HasColumn(c) {
				return configErr(rl.Name, column, "unknown target column %q", c)
			}
		}
	case KindUnknown:
		return configErr(rl.Name, column, "rule has no check")
	default:
		return configErr(rl.Name, column, "%s rule cannot be registered on a column", rl.Kind())
	}
	return nil
}

func validateCrossRule(s *Snapshot, rl Rule) error {
	if rl.Name == "" {
		return configErr("", "", "rule name is empty")
	}
	if !rl.Kind().IsCrossScoped() {
		if rl.Kind() == KindUnknown {
			return configErr(rl.Name, "", "rule has no check")
		}
		return configErr(rl.Name, "", "%s rule must be registered on a column", rl.Kind())
	}
	if len(rl.Columns) == 0 {
		return configErr(rl.Name, "", "rule has no target columns")
	}
	for _, c := range rl.Columns {
		if !s.HasColumn(c) {
			return configErr(rl.Name, "", "unknown target column %q", c)
		}
	}
	return nil
}

// checkCycles 跨列依赖图：规则所属列 -> 规则依赖的其他列，存在环则拒绝
func checkCycles(s *Snapshot) error {
	edges := make(map[string][]string)
	owner := make(map[[2]string]string)
	for _, column := range s.columns {
		for _, rl := range s.byColumn[column] {
			if rl.Kind() != CrossColumn {
				continue
			}
			for _, dep := range rl.Columns {
				if dep == column {
					continue
				}
				key := [2]string{column, dep}
				if _, ok := owner[key]; !ok {
					owner[key] = rl.Name
					edges[column] = append(edges[column], dep)
				}
			}
		}
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(s.columns))

	var visit func(c string) error
	visit = func(c string) error {
		color[c] = grey
		for _, dep := range edges[c] {
			switch color[dep] {
			case grey:
				return configErr(owner[[2]string{c, dep}], c, "cyclic cross-column dependency %s -> %s", c, dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[c] = black
		return nil
	}

	for _, c := range s.columns {
		if color[c] == white {
			if err := visit(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return Less(rules[i], rules[j])
	})
}

func containsName(rules []Rule, name string) bool {
	for _, rl := range rules {
		if rl.Name == name {
			return true
		}
	}
	return false
}

func removeNames(rules []Rule, names []string) ([]Rule, int) {
	if len(rules) == 0 || len(names) == 0 {
		return rules, 0
	}
	kept := make([]Rule, 0, len(rules))
	for _, rl := range rules {
		if !slices.Contains(names, rl.Name) {
			kept = append(kept, rl)
		}
	}
	return kept, len(rules) - len(kept)
}
