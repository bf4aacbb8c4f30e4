package entity

import (
	"time"
)

// Batch 生产批次，一个条码对应一扎裁片，沿固定三段流程流转
type Batch struct {
	BatchID       uint      `json:"batch_id" gorm:"primaryKey;autoIncrement"`
	Barcode       string    `json:"barcode" gorm:"size:255;not null;uniqueIndex"`
	JobOrderID    *uint     `json:"job_order_id" gorm:"index"`
	BrandID       uint      `json:"brand_id" gorm:"not null;index"`
	ModelID       uint      `json:"model_id" gorm:"not null;index"`
	SizeID        uint      `json:"size_id" gorm:"not null"`
	ColorID       uint      `json:"color_id" gorm:"not null"`
	Quantity      int       `json:"quantity" gorm:"not null"` // 1-999
	Layers        int       `json:"layers" gorm:"not null"`   // 1-99
	Serial        string    `json:"serial" gorm:"size:3;not null"`
	CurrentPhase  int       `json:"current_phase" gorm:"not null;default:1"`
	Status        string    `json:"status" gorm:"size:50;not null;default:Pending"`
	LastUpdatedAt time.Time `json:"last_updated_at" gorm:"autoUpdateTime"`
}

func (Batch) TableName() string {
	return "batches"
}

// ArchivedBatch 归档批次，与 Batch 同构，batch_id 跨表保留以便时间线可追溯
type ArchivedBatch struct {
	BatchID       uint      `json:"batch_id" gorm:"primaryKey"`
	Barcode       string    `json:"barcode" gorm:"size:255;not null;uniqueIndex"`
	JobOrderID    *uint     `json:"job_order_id" gorm:"index"`
	BrandID       uint      `json:"brand_id" gorm:"not null"`
	ModelID       uint      `json:"model_id" gorm:"not null"`
	SizeID        uint      `json:"size_id" gorm:"not null"`
	ColorID       uint      `json:"color_id" gorm:"not null"`
	Quantity      int       `json:"quantity" gorm:"not null"`
	Layers        int       `json:"layers" gorm:"not null"`
	Serial        string    `json:"serial" gorm:"size:3;not null"`
	CurrentPhase  int       `json:"current_phase" gorm:"not null"`
	Status        string    `json:"status" gorm:"size:50;not null"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	ArchivedAt    time.Time `json:"archived_at" gorm:"autoCreateTime"`
}

func (ArchivedBatch) TableName() string {
	return "archived_batches"
}

// ToArchived 活跃批次转归档快照
func (b *Batch) ToArchived(now time.Time) *ArchivedBatch {
	return &ArchivedBatch{
		BatchID:       b.BatchID,
		Barcode:       b.Barcode,
		JobOrderID:    b.JobOrderID,
		BrandID:       b.BrandID,
		ModelID:       b.ModelID,
		SizeID:        b.SizeID,
		ColorID:       b.ColorID,
		Quantity:      b.Quantity,
		Layers:        b.Layers,
		Serial:        b.Serial,
		CurrentPhase:  b.CurrentPhase,
		Status:        b.Status,
		LastUpdatedAt: b.LastUpdatedAt,
		ArchivedAt:    now,
	}
}

// ToBatch 归档快照转回活跃批次，batch_id 原样保留
func (a *ArchivedBatch) ToBatch() *Batch {
	return &Batch{
		BatchID:       a.BatchID,
		Barcode:       a.Barcode,
		JobOrderID:    a.JobOrderID,
		BrandID:       a.BrandID,
		ModelID:       a.ModelID,
		SizeID:        a.SizeID,
		ColorID:       a.ColorID,
		Quantity:      a.Quantity,
		Layers:        a.Layers,
		Serial:        a.Serial,
		CurrentPhase:  a.CurrentPhase,
		Status:        a.Status,
		LastUpdatedAt: a.LastUpdatedAt,
	}
}
