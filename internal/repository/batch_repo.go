package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yousufaayman/barcode-manage-cpc/internal/entity"
)

// BatchRepository 批次仓库
type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// BatchRow 批次连同冗余名称的展示行
type BatchRow struct {
	BatchID       uint       `json:"batch_id"`
	Barcode       string     `json:"barcode"`
	JobOrderID    *uint      `json:"job_order_id"`
	BrandID       uint       `json:"brand_id"`
	ModelID       uint       `json:"model_id"`
	SizeID        uint       `json:"size_id"`
	ColorID       uint       `json:"color_id"`
	Quantity      int        `json:"quantity"`
	Layers        int        `json:"layers"`
	Serial        string     `json:"serial"`
	CurrentPhase  int        `json:"current_phase"`
	Status        string     `json:"status"`
	BrandName     string     `json:"brand_name"`
	ModelName     string     `json:"model_name"`
	SizeValue     string     `json:"size_value"`
	ColorName     string     `json:"color_name"`
	PhaseName     string     `json:"phase_name"`
	LastUpdatedAt time.Time  `json:"last_updated_at"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty"`
}

// BatchListParams 批次列表过滤条件
type BatchListParams struct {
	Barcode  string
	Brand    string
	Model    string
	Size     string
	Color    string
	Phase    string // 阶段名精确匹配
	Status   string
	Archived bool
	Offset   int
	Limit    int
}

const batchSelectColumns = `t.batch_id, t.barcode, t.job_order_id, t.brand_id, t.model_id, t.size_id, t.color_id,
	t.quantity, t.layers, t.serial, t.current_phase, t.status, t.last_updated_at,
	brands.brand_name, models.model_name, sizes.size_value, colors.color_name, production_phases.phase_name`

func (r *BatchRepository) joined(ctx context.Context, table string) *gorm.DB {
	return r.db.WithContext(ctx).
		Table(table+" AS t").
		Joins("JOIN brands ON t.brand_id = brands.brand_id").
		Joins("JOIN models ON t.model_id = models.model_id").
		Joins("JOIN sizes ON t.size_id = sizes.size_id").
		Joins("JOIN colors ON t.color_id = colors.color_id").
		Joins("JOIN production_phases ON t.current_phase = production_phases.phase_id")
}

// List 批次列表，模糊过滤 + 分页，archived 切换活跃表/归档表
func (r *BatchRepository) List(ctx context.Context, params BatchListParams) ([]BatchRow, int64, error) {
	table := "batches"
	selectCols := batchSelectColumns
	if params.Archived {
		table = "archived_batches"
		selectCols += ", t.archived_at"
	}

	query := r.joined(ctx, table).Select(selectCols)

	if params.Barcode != "" {
		query = query.Where("t.barcode ILIKE ?", "%"+params.Barcode+"%")
	}
	if params.Brand != "" {
		query = query.Where("brands.brand_name ILIKE ?", "%"+params.Brand+"%")
	}
	if params.Model != "" {
		query = query.Where("models.model_name ILIKE ?", "%"+params.Model+"%")
	}
	if params.Size != "" {
		query = query.Where("sizes.size_value ILIKE ?", "%"+params.Size+"%")
	}
	if params.Color != "" {
		query = query.Where("colors.color_name ILIKE ?", "%"+params.Color+"%")
	}
	if params.Phase != "" {
		query = query.Where("production_phases.phase_name = ?", params.Phase)
	}
	if params.Status != "" {
		query = query.Where("t.status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []BatchRow
	err := query.
		Order("t.batch_id").
		Offset(params.Offset).
		Limit(params.Limit).
		Scan(&rows).Error
	return rows, total, err
}

// FindRowByID 按ID查批次展示行
func (r *BatchRepository) FindRowByID(ctx context.Context, batchID uint) (*BatchRow, error) {
	var row BatchRow
	err := r.joined(ctx, "batches").
		Select(batchSelectColumns).
		Where("t.batch_id = ?", batchID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.BatchID == 0 {
		return nil, ErrNotFound
	}
	return &row, nil
}

// FindRowByBarcode 按条码查批次展示行
func (r *BatchRepository) FindRowByBarcode(ctx context.Context, barcode string) (*BatchRow, error) {
	var row BatchRow
	err := r.joined(ctx, "batches").
		Select(batchSelectColumns).
		Where("t.barcode = ?", barcode).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.BatchID == 0 {
		return nil, ErrNotFound
	}
	return &row, nil
}

// FindByID 按ID查批次实体
func (r *BatchRepository) FindByID(ctx context.Context, batchID uint) (*entity.Batch, error) {
	var batch entity.Batch
	err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// FindByBarcode 按条码查批次实体
func (r *BatchRepository) FindByBarcode(ctx context.Context, barcode string) (*entity.Batch, error) {
	var batch entity.Batch
	err := r.db.WithContext(ctx).Where("barcode = ?", barcode).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// FindArchivedByID 按ID查归档批次
func (r *BatchRepository) FindArchivedByID(ctx context.Context, batchID uint) (*entity.ArchivedBatch, error) {
	var archived entity.ArchivedBatch
	err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).First(&archived).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &archived, nil
}

// BarcodeExists 活跃表里条码是否已占用
func (r *BatchRepository) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Batch{}).
		Where("barcode = ?", barcode).Count(&count).Error
	return count > 0, err
}
