package entity

import (
	"gorm.io/gorm"
)

// AutoMigrate 建表并补齐 gorm 标签表达不了的约束
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Brand{},
		&Model{},
		&Size{},
		&Color{},
		&ProductionPhase{},
		&JobOrder{},
		&JobOrderItem{},
		&Batch{},
		&ArchivedBatch{},
		&BarcodeStatusTimeline{},
	); err != nil {
		return err
	}

	// 同一批次至多一条未关闭时间线记录
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uniq_timeline_open_batch
		ON barcode_status_timeline (batch_id) WHERE end_time IS NULL`).Error
}

// SeedPhases 写入固定三段生产阶段，可重复执行
func SeedPhases(db *gorm.DB) error {
	phases := []ProductionPhase{
		{PhaseID: PhaseCutting, PhaseName: "Cutting"},
		{PhaseID: PhaseSewing, PhaseName: "Sewing"},
		{PhaseID: PhasePackaging, PhaseName: "Packaging"},
	}
	for _, p := range phases {
		if err := db.Where("phase_id = ?", p.PhaseID).
			FirstOrCreate(&ProductionPhase{}, p).Error; err != nil {
			return err
		}
	}
	return nil
}
