package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yousufaayman/barcode-manage-cpc/internal/entity"
)

// JobOrderRepository 工单仓库
type JobOrderRepository struct {
	db *gorm.DB
}

func NewJobOrderRepository(db *gorm.DB) *JobOrderRepository {
	return &JobOrderRepository{db: db}
}

// JobOrderListParams 工单列表过滤条件
type JobOrderListParams struct {
	ModelID        uint
	JobOrderNumber string
	ModelName      string
	Closed         *bool
	Offset         int
	Limit          int
}

// List 工单列表
func (r *JobOrderRepository) List(ctx context.Context, params JobOrderListParams) ([]entity.JobOrder, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.JobOrder{})

	if params.ModelID != 0 {
		query = query.Where("job_orders.model_id = ?", params.ModelID)
	}
	if params.JobOrderNumber != "" {
		query = query.Where("job_orders.job_order_number ILIKE ?", "%"+params.JobOrderNumber+"%")
	}
	if params.ModelName != "" {
		query = query.Joins("JOIN models ON job_orders.model_id = models.model_id").
			Where("models.model_name ILIKE ?", "%"+params.ModelName+"%")
	}
	if params.Closed != nil {
		query = query.Where("job_orders.closed = ?", *params.Closed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []entity.JobOrder
	err := query.
		Order("job_orders.job_order_id").
		Offset(params.Offset).
		Limit(params.Limit).
		Find(&items).Error
	return items, total, err
}

// ListAll 全量工单（下拉框用）
func (r *JobOrderRepository) ListAll(ctx context.Context) ([]entity.JobOrder, error) {
	var items []entity.JobOrder
	err := r.db.WithContext(ctx).Order("job_order_number").Find(&items).Error
	return items, err
}

// FindByID 按ID查工单
func (r *JobOrderRepository) FindByID(ctx context.Context, jobOrderID uint) (*entity.JobOrder, error) {
	var jobOrder entity.JobOrder
	err := r.db.WithContext(ctx).Where("job_order_id = ?", jobOrderID).First(&jobOrder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &jobOrder, nil
}

// FindByNumber 按单号查工单
func (r *JobOrderRepository) FindByNumber(ctx context.Context, number string) (*entity.JobOrder, error) {
	var jobOrder entity.JobOrder
	err := r.db.WithContext(ctx).Where("job_order_number = ?", number).First(&jobOrder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &jobOrder, nil
}

// CreateTx 事务内创建工单及行项
func (r *JobOrderRepository) CreateTx(tx *gorm.DB, jobOrder *entity.JobOrder, items []entity.JobOrderItem) error {
	if err := tx.Create(jobOrder).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].JobOrderID = jobOrder.JobOrderID
	}
	if len(items) > 0 {
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
	}
	return nil
}

// Update 更新工单头
func (r *JobOrderRepository) Update(ctx context.Context, jobOrder *entity.JobOrder) error {
	return r.db.WithContext(ctx).Save(jobOrder).Error
}

// UpdateItemQuantity 更新行项数量
func (r *JobOrderRepository) UpdateItemQuantity(ctx context.Context, itemID uint, quantity int) error {
	return r.db.WithContext(ctx).Model(&entity.JobOrderItem{}).
		Where("item_id = ?", itemID).
		Update("quantity", quantity).Error
}

// FindItem 按ID查行项（校验归属时带工单ID）
func (r *JobOrderRepository) FindItem(ctx context.Context, itemID, jobOrderID uint) (*entity.JobOrderItem, error) {
	var item entity.JobOrderItem
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND job_order_id = ?", itemID, jobOrderID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// Delete 删除工单及其行项
func (r *JobOrderRepository) Delete(ctx context.Context, jobOrderID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.DeleteTx(tx, jobOrderID)
	})
}

// DeleteTx 事务内删除工单，先行项后工单头
func (r *JobOrderRepository) DeleteTx(tx *gorm.DB, jobOrderID uint) error {
	if err := tx.Where("job_order_id = ?", jobOrderID).
		Delete(&entity.JobOrderItem{}).Error; err != nil {
		return err
	}
	result := tx.Where("job_order_id = ?", jobOrderID).Delete(&entity.JobOrder{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// JobOrderOptionRow 未关闭工单连同款式名
type JobOrderOptionRow struct {
	JobOrderID     uint   `json:"job_order_id"`
	JobOrderNumber string `json:"job_order_number"`
	ModelID        uint   `json:"model_id"`
	ModelName      string `json:"model_name"`
}

// ListOpen 未关闭工单（批次关联下拉用）
func (r *JobOrderRepository) ListOpen(ctx context.Context) ([]JobOrderOptionRow, error) {
	var rows []JobOrderOptionRow
	err := r.db.WithContext(ctx).
		Model(&entity.JobOrder{}).
		Select("job_orders.job_order_id, job_orders.job_order_number, job_orders.model_id, models.model_name").
		Joins("JOIN models ON job_orders.model_id = models.model_id").
		Where("job_orders.closed = ?", false).
		Order("job_orders.job_order_number").
		Scan(&rows).Error
	return rows, err
}

// ItemDetail 行项连同颜色/尺码名称
type ItemDetail struct {
	ItemID    uint   `json:"item_id"`
	ColorID   uint   `json:"color_id"`
	SizeID    uint   `json:"size_id"`
	ColorName string `json:"color_name"`
	SizeValue string `json:"size_value"`
	Quantity  int    `json:"quantity"`
}

// ItemsWithDetails 工单行项展示列表
func (r *JobOrderRepository) ItemsWithDetails(ctx context.Context, jobOrderID uint) ([]ItemDetail, error) {
	var rows []ItemDetail
	err := r.db.WithContext(ctx).
		Table("job_order_items AS i").
		Select("i.item_id, i.color_id, i.size_id, colors.color_name, sizes.size_value, i.quantity").
		Joins("JOIN colors ON i.color_id = colors.color_id").
		Joins("JOIN sizes ON i.size_id = sizes.size_id").
		Where("i.job_order_id = ?", jobOrderID).
		Order("i.item_id").
		Scan(&rows).Error
	return rows, err
}

// ProducedQuantity 产出数量 = 工单下匹配颜色+尺码的批次数量求和
type ProducedQuantity struct {
	ColorID  uint  `json:"color_id"`
	SizeID   uint  `json:"size_id"`
	Produced int64 `json:"produced"`
}

// ProducedByItem 工单产出按 (颜色,尺码) 分组
func (r *JobOrderRepository) ProducedByItem(ctx context.Context, jobOrderID uint) ([]ProducedQuantity, error) {
	var rows []ProducedQuantity
	err := r.db.WithContext(ctx).
		Model(&entity.Batch{}).
		Select("color_id, size_id, COALESCE(SUM(quantity), 0) AS produced").
		Where("job_order_id = ?", jobOrderID).
		Group("color_id, size_id").
		Scan(&rows).Error
	return rows, err
}

// TotalProduced 工单总产出
func (r *JobOrderRepository) TotalProduced(ctx context.Context, jobOrderID uint) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&entity.Batch{}).
		Where("job_order_id = ?", jobOrderID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return total, err
}

// TotalRequired 工单总需求量 = 明细数量求和
func (r *JobOrderRepository) TotalRequired(ctx context.Context, jobOrderID uint) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&entity.JobOrderItem{}).
		Where("job_order_id = ?", jobOrderID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return total, err
}
