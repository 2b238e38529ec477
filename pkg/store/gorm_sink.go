package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"katydid-common-validation/pkg/idgen"
	"katydid-common-validation/pkg/validation"
)

// violationBatchSize 违规分批插入的大小
const violationBatchSize = 500

// GormSink 把批量验证结果写入数据库
type GormSink struct {
	db      *gorm.DB
	dataset string
}

var _ validation.ResultSink = (*GormSink)(nil)

// NewGormSink 创建并迁移表结构，dataset 用于区分不同的数据集
func NewGormSink(db *gorm.DB, dataset string) (*GormSink, error) {
	if err := db.AutoMigrate(&RunRecord{}, &ViolationRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormSink{db: db, dataset: dataset}, nil
}

// Save 实现 validation.ResultSink，汇总和违规在同一个事务内写入
func (s *GormSink) Save(ctx context.Context, runID idgen.ID, result *validation.BatchResult) error {
	run := newRunRecord(s.dataset, runID, result)
	violations := newViolationRecords(runID, result.Violations)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Violations").Create(run).Error; err != nil {
			return fmt.Errorf("save run %s: %w", runID, err)
		}
		if len(violations) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(violations, violationBatchSize).Error; err != nil {
			return fmt.Errorf("save violations of run %s: %w", runID, err)
		}
		return nil
	})
}

// Latest 最近一次运行（含违规，按行号、列排序）
func (s *GormSink) Latest(ctx context.Context) (*RunRecord, error) {
	var run RunRecord
	err := s.db.WithContext(ctx).
		Where("dataset = ?", s.dataset).
		Order("id DESC").
		Preload("Violations", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Runs 最近的若干次运行汇总，不含违规
func (s *GormSink) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := s.db.WithContext(ctx).
		Where("dataset = ?", s.dataset).
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// Prune 只保留最近 keep 次运行
func (s *GormSink) Prune(ctx context.Context, keep int) (int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&RunRecord{}).
		Where("dataset = ?", s.dataset).
		Order("id DESC").
		Pluck("id", &ids).Error
	if err != nil || len(ids) <= keep {
		return 0, err
	}
	ids = ids[max(keep, 0):]

	var deleted int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id IN ?", ids).Delete(&ViolationRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&RunRecord{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}
