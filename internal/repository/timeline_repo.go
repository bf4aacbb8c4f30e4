package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yousufaayman/barcode-manage-cpc/internal/entity"
)

// TimelineRepository 批次时间线账本，记录按 (阶段,状态) 的占用区间
type TimelineRepository struct {
	db *gorm.DB
}

func NewTimelineRepository(db *gorm.DB) *TimelineRepository {
	return &TimelineRepository{db: db}
}

// OpenTx 在事务内为批次开启新区间。已有未关闭区间视为账本损坏，直接报错。
func (r *TimelineRepository) OpenTx(tx *gorm.DB, batchID uint, phaseID int, status string, now time.Time) (*entity.BarcodeStatusTimeline, error) {
	var count int64
	if err := tx.Model(&entity.BarcodeStatusTimeline{}).
		Where("batch_id = ? AND end_time IS NULL", batchID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrOpenEntryExists
	}

	timelineEntry := &entity.BarcodeStatusTimeline{
		BatchID:   batchID,
		PhaseID:   phaseID,
		Status:    status,
		StartTime: now,
	}
	if err := tx.Create(timelineEntry).Error; err != nil {
		return nil, err
	}
	return timelineEntry, nil
}

// CloseTx 在事务内关闭批次当前区间并结算时长。没有未关闭区间时返回 (nil, nil)，幂等。
func (r *TimelineRepository) CloseTx(tx *gorm.DB, batchID uint, now time.Time) (*entity.BarcodeStatusTimeline, error) {
	var timelineEntry entity.BarcodeStatusTimeline
	err := tx.Where("batch_id = ? AND end_time IS NULL", batchID).
		First(&timelineEntry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	duration := entity.DurationOf(timelineEntry.StartTime, now)
	timelineEntry.EndTime = &now
	timelineEntry.DurationMinutes = &duration
	if err := tx.Model(&entity.BarcodeStatusTimeline{}).
		Where("id = ?", timelineEntry.ID).
		Updates(map[string]interface{}{
			"end_time":         now,
			"duration_minutes": duration,
		}).Error; err != nil {
		return nil, err
	}
	return &timelineEntry, nil
}

// Open 非事务入口
func (r *TimelineRepository) Open(ctx context.Context, batchID uint, phaseID int, status string, now time.Time) (*entity.BarcodeStatusTimeline, error) {
	return r.OpenTx(r.db.WithContext(ctx), batchID, phaseID, status, now)
}

// Close 非事务入口
func (r *TimelineRepository) Close(ctx context.Context, batchID uint, now time.Time) (*entity.BarcodeStatusTimeline, error) {
	return r.CloseTx(r.db.WithContext(ctx), batchID, now)
}

// History 批次完整履历，按开始时间升序
func (r *TimelineRepository) History(ctx context.Context, batchID uint) ([]entity.BarcodeStatusTimeline, error) {
	var items []entity.BarcodeStatusTimeline
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("start_time, id").
		Find(&items).Error
	return items, err
}

// PhaseStatusMinutes 某 (阶段,状态) 的累计分钟数
type PhaseStatusMinutes struct {
	PhaseID int    `json:"phase_id"`
	Status  string `json:"status"`
	Minutes int64  `json:"minutes"`
}

// StatsByBatch 单批次已关闭区间按 (阶段,状态) 求和
func (r *TimelineRepository) StatsByBatch(ctx context.Context, batchID uint) ([]PhaseStatusMinutes, error) {
	var rows []PhaseStatusMinutes
	err := r.db.WithContext(ctx).
		Model(&entity.BarcodeStatusTimeline{}).
		Select("phase_id, status, COALESCE(SUM(duration_minutes), 0) AS minutes").
		Where("batch_id = ? AND duration_minutes IS NOT NULL", batchID).
		Group("phase_id, status").
		Order("phase_id, status").
		Scan(&rows).Error
	return rows, err
}

// CurrentOpenEntries 全局未关闭区间分页列表，即"此刻正在发生什么"
func (r *TimelineRepository) CurrentOpenEntries(ctx context.Context, offset, limit int) ([]entity.BarcodeStatusTimeline, error) {
	var items []entity.BarcodeStatusTimeline
	err := r.db.WithContext(ctx).
		Where("end_time IS NULL").
		Order("start_time, id").
		Offset(offset).
		Limit(limit).
		Find(&items).Error
	return items, err
}

// PhaseStatusAverage 某 (阶段,状态) 的平均区间时长
type PhaseStatusAverage struct {
	PhaseID        int     `json:"phase_id"`
	Status         string  `json:"status"`
	AverageMinutes float64 `json:"average_minutes"`
}

// AverageByPhaseStatus 全体批次已关闭区间按 (阶段,状态) 求平均，全局基线指标
func (r *TimelineRepository) AverageByPhaseStatus(ctx context.Context) ([]PhaseStatusAverage, error) {
	var rows []PhaseStatusAverage
	err := r.db.WithContext(ctx).
		Model(&entity.BarcodeStatusTimeline{}).
		Select("phase_id, status, COALESCE(AVG(duration_minutes), 0) AS average_minutes").
		Where("duration_minutes IS NOT NULL").
		Group("phase_id, status").
		Order("phase_id, status").
		Scan(&rows).Error
	return rows, err
}

// DeleteByBatchTx 批次删除时级联清理时间线（归档不走这里，账本要保留）
func (r *TimelineRepository) DeleteByBatchTx(tx *gorm.DB, batchID uint) error {
	return tx.Where("batch_id = ?", batchID).
		Delete(&entity.BarcodeStatusTimeline{}).Error
}
