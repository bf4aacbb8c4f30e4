package entity

// JobOrder 工单，按款式下达，行项展开到颜色×尺码
type JobOrder struct {
	JobOrderID     uint   `json:"job_order_id" gorm:"primaryKey;autoIncrement"`
	ModelID        uint   `json:"model_id" gorm:"not null;index"`
	JobOrderNumber string `json:"job_order_number" gorm:"size:100;not null;uniqueIndex"`
	Closed         bool   `json:"closed" gorm:"not null;default:false"`
}

func (JobOrder) TableName() string {
	return "job_orders"
}

// JobOrderItem 工单行项，(job_order_id, color_id, size_id) 唯一
type JobOrderItem struct {
	ItemID     uint `json:"item_id" gorm:"primaryKey;autoIncrement"`
	JobOrderID uint `json:"job_order_id" gorm:"not null;uniqueIndex:uniq_job_order_color_size;constraint:OnDelete:CASCADE"`
	ColorID    uint `json:"color_id" gorm:"not null;uniqueIndex:uniq_job_order_color_size"`
	SizeID     uint `json:"size_id" gorm:"not null;uniqueIndex:uniq_job_order_color_size"`
	Quantity   int  `json:"quantity" gorm:"not null"`
}

func (JobOrderItem) TableName() string {
	return "job_order_items"
}
