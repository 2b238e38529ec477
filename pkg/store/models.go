package store

import (
	"strconv"
	"strings"
	"time"

	"katydid-common-validation/pkg/idgen"
	"katydid-common-validation/pkg/validation"
)

// RunRecord 一次批量验证的汇总
type RunRecord struct {
	ID              int64  `gorm:"primaryKey;autoIncrement:false"`
	Dataset         string `gorm:"size:128;index"`
	Scope           string `gorm:"size:32"`
	RegistryVersion uint64
	TotalCells      int
	ProcessedCells  int
	ValidCells      int
	InvalidCells    int
	DurationMs      int64
	WasCancelled    bool
	WasTimedOut     bool
	CreatedAt       time.Time         `gorm:"index"`
	Violations      []ViolationRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// TableName 表名
func (RunRecord) TableName() string {
	return "validation_runs"
}

// ViolationRecord 一条违规
type ViolationRecord struct {
	ID       uint   `gorm:"primaryKey"`
	RunID    int64  `gorm:"index"`
	Row      int    `gorm:"column:row_index"`
	Column   string `gorm:"column:column_id;size:128"`
	Rule     string `gorm:"size:128"`
	Kind     string `gorm:"size:32"`
	Severity string `gorm:"size:16"`
	Message  string `gorm:"type:text"`
	Related  string `gorm:"size:1024"`
}

// TableName 表名
func (ViolationRecord) TableName() string {
	return "validation_violations"
}

// RelatedRows 解析相关行号
func (v ViolationRecord) RelatedRows() []int {
	if v.Related == "" {
		return nil
	}
	parts := strings.Split(v.Related, ",")
	rows := make([]int, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			rows = append(rows, n)
		}
	}
	return rows
}

func newRunRecord(dataset string, runID idgen.ID, result *validation.BatchResult) *RunRecord {
	return &RunRecord{
		ID:              runID.Int64(),
		Dataset:         dataset,
		Scope:           result.Scope.String(),
		RegistryVersion: result.RegistryVersion,
		TotalCells:      result.TotalCells,
		ProcessedCells:  result.ProcessedCells,
		ValidCells:      result.ValidCells,
		InvalidCells:    result.InvalidCells,
		DurationMs:      result.Duration.Milliseconds(),
		WasCancelled:    result.WasCancelled,
		WasTimedOut:     result.WasTimedOut,
	}
}

func newViolationRecords(runID idgen.ID, violations []validation.Violation) []ViolationRecord {
	records := make([]ViolationRecord, len(violations))
	for i, v := range violations {
		records[i] = ViolationRecord{
			RunID:    runID.Int64(),
			Row:      v.Row,
			Column:   v.Column,
			Rule:     v.Rule,
			Kind:     v.Kind.String(),
			Severity: v.Severity.String(),
			Message:  v.Message,
			Related:  joinRows(v.Related),
		}
	}
	return records
}

func joinRows(rows []int) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = strconv.Itoa(r)
	}
	return strings.Join(parts, ",")
}
