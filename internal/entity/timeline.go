package entity

import (
	"time"
)

// BarcodeStatusTimeline 批次状态时间线，只追加不改写，end_time 为空表示区间仍在进行。
// 不变量：任一批次同一时刻至多一条未关闭记录（由部分唯一索引兜底）。
type BarcodeStatusTimeline struct {
	ID              uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	BatchID         uint       `json:"batch_id" gorm:"not null;index"`
	PhaseID         int        `json:"phase_id" gorm:"not null"`
	Status          string     `json:"status" gorm:"size:50;not null"`
	StartTime       time.Time  `json:"start_time" gorm:"not null"`
	EndTime         *time.Time `json:"end_time"`
	DurationMinutes *int       `json:"duration_minutes"`
}

func (BarcodeStatusTimeline) TableName() string {
	return "barcode_status_timeline"
}

// DurationOf 关闭区间时的时长换算，向下取整到分钟，允许为0
func DurationOf(start, end time.Time) int {
	seconds := int(end.Sub(start).Seconds())
	if seconds < 0 {
		return 0
	}
	return seconds / 60
}
