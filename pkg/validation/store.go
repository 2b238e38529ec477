package validation

import (
	"sort"
	"sync"

	"katydid-common-validation/pkg/table"
)

// CellOutcome 单元格及其结果
type CellOutcome struct {
	Cell    table.CellRef `json:"cell"`
	Outcome Outcome       `json:"outcome"`
}

// OutcomeStore 按单元格索引保存验证结果，由数据集持有
// 只保存失败的结果，不存在即表示通过
type OutcomeStore struct {
	mu    sync.RWMutex
	cells map[table.CellRef]Outcome
}

// NewOutcomeStore 创建空的结果存储
func NewOutcomeStore() *OutcomeStore {
	return &OutcomeStore{cells: make(map[table.CellRef]Outcome)}
}

// Get 读取单元格结果，没有记录时返回通过
func (s *OutcomeStore) Get(ref table.CellRef) Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.cells[ref]; ok {
		return o
	}
	return ValidOutcome()
}

// Put 写入单元格结果，覆盖之前的结果
func (s *OutcomeStore) Put(ref table.CellRef, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if outcome.Valid {
		delete(s.cells, ref)
		return
	}
	s.cells[ref] = outcome
}

// ClearRows 删除指定行的全部结果
func (s *OutcomeStore) ClearRows(rows ...int) {
	if len(rows) == 0 {
		return
	}
	s.replaceRows(rows, nil)
}

// replaceRows 原子地替换指定行的结果
func (s *OutcomeStore) replaceRows(rows []int, outcomes map[table.CellRef]Outcome) {
	set := make(map[int]struct{}, len(rows))
	for _, r := range rows {
		set[r] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for ref := range s.cells {
		if _, ok := set[ref.Row]; ok {
			delete(s.cells, ref)
		}
	}
	for ref, o := range outcomes {
		if _, ok := set[ref.Row]; ok && !o.Valid {
			s.cells[ref] = o
		}
	}
}

// Reset 清空
func (s *OutcomeStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cells = make(map[table.CellRef]Outcome)
}

// Len 失败的单元格数量
func (s *OutcomeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.cells)
}

// Invalid 所有失败的单元格，按行号、列标识排序
func (s *OutcomeStore) Invalid() []CellOutcome {
	s.mu.RLock()
	result := make([]CellOutcome, 0, len(s.cells))
	for ref, o := range s.cells {
		result = append(result, CellOutcome{Cell: ref, Outcome: o})
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Cell, result[j].Cell
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Column < b.Column
	})
	return result
}
