package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrOpenEntryExists open 时已有未关闭记录，属于账本不变量被破坏
	ErrOpenEntryExists = errors.New("open timeline entry already exists")
)

// Repositories 仓库集合
type Repositories struct {
	Reference *ReferenceRepository
	Batch     *BatchRepository
	Timeline  *TimelineRepository
	JobOrder  *JobOrderRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Reference: NewReferenceRepository(db),
		Batch:     NewBatchRepository(db),
		Timeline:  NewTimelineRepository(db),
		JobOrder:  NewJobOrderRepository(db),
	}
}
