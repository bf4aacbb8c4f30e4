package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yousufaayman/barcode-manage-cpc/internal/entity"
)

// ReferenceRepository 基础数据仓库（品牌/款式/尺码/颜色/阶段）
type ReferenceRepository struct {
	db *gorm.DB
}

func NewReferenceRepository(db *gorm.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// ListBrands 品牌列表
func (r *ReferenceRepository) ListBrands(ctx context.Context, offset, limit int) ([]entity.Brand, error) {
	var items []entity.Brand
	err := r.db.WithContext(ctx).Order("brand_name").Offset(offset).Limit(limit).Find(&items).Error
	return items, err
}

// FindBrandByName 按名称查品牌
func (r *ReferenceRepository) FindBrandByName(ctx context.Context, name string) (*entity.Brand, error) {
	var brand entity.Brand
	err := r.db.WithContext(ctx).Where("brand_name = ?", name).First(&brand).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &brand, nil
}

// CreateBrand 创建品牌
func (r *ReferenceRepository) CreateBrand(ctx context.Context, brand *entity.Brand) error {
	return r.db.WithContext(ctx).Create(brand).Error
}

// GetOrCreateBrand 查或建品牌。唯一约束 + DoNothing + 回查，
// 并发导入同名品牌时两边收敛到同一行。
func (r *ReferenceRepository) GetOrCreateBrand(ctx context.Context, name string) (*entity.Brand, error) {
	brand := entity.Brand{BrandName: name}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&brand).Error; err != nil {
		return nil, fmt.Errorf("upsert brand: %w", err)
	}
	if brand.BrandID != 0 {
		return &brand, nil
	}
	return r.FindBrandByName(ctx, name)
}

// ListModels 款式列表
func (r *ReferenceRepository) ListModels(ctx context.Context, offset, limit int) ([]entity.Model, error) {
	var items []entity.Model
	err := r.db.WithContext(ctx).Order("model_name").Offset(offset).Limit(limit).Find(&items).Error
	return items, err
}

// FindModelByName 按名称查款式
func (r *ReferenceRepository) FindModelByName(ctx context.Context, name string) (*entity.Model, error) {
	var model entity.Model
	err := r.db.WithContext(ctx).Where("model_name = ?", name).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &model, nil
}

// FindModelByID 按ID查款式
func (r *ReferenceRepository) FindModelByID(ctx context.Context, id uint) (*entity.Model, error) {
	var model entity.Model
	err := r.db.WithContext(ctx).Where("model_id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &model, nil
}

// CreateModel 创建款式
func (r *ReferenceRepository) CreateModel(ctx context.Context, model *entity.Model) error {
	return r.db.WithContext(ctx).Create(model).Error
}

// GetOrCreateModel 查或建款式
func (r *ReferenceRepository) GetOrCreateModel(ctx context.Context, name string) (*entity.Model, error) {
	model := entity.Model{ModelName: name}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error; err != nil {
		return nil, fmt.Errorf("upsert model: %w", err)
	}
	if model.ModelID != 0 {
		return &model, nil
	}
	return r.FindModelByName(ctx, name)
}

// ListSizes 尺码列表
func (r *ReferenceRepository) ListSizes(ctx context.Context, offset, limit int) ([]entity.Size, error) {
	var items []entity.Size
	err := r.db.WithContext(ctx).Order("size_value").Offset(offset).Limit(limit).Find(&items).Error
	return items, err
}

// FindSizeByValue 按值查尺码
func (r *ReferenceRepository) FindSizeByValue(ctx context.Context, value string) (*entity.Size, error) {
	var size entity.Size
	err := r.db.WithContext(ctx).Where("size_value = ?", value).First(&size).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &size, nil
}

// CreateSize 创建尺码
func (r *ReferenceRepository) CreateSize(ctx context.Context, size *entity.Size) error {
	return r.db.WithContext(ctx).Create(size).Error
}

// GetOrCreateSize 查或建尺码
func (r *ReferenceRepository) GetOrCreateSize(ctx context.Context, value string) (*entity.Size, error) {
	size := entity.Size{SizeValue: value}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&size).Error; err != nil {
		return nil, fmt.Errorf("upsert size: %w", err)
	}
	if size.SizeID != 0 {
		return &size, nil
	}
	return r.FindSizeByValue(ctx, value)
}

// ListColors 颜色列表
func (r *ReferenceRepository) ListColors(ctx context.Context, offset, limit int) ([]entity.Color, error) {
	var items []entity.Color
	err := r.db.WithContext(ctx).Order("color_name").Offset(offset).Limit(limit).Find(&items).Error
	return items, err
}

// FindColorByName 按名称查颜色
func (r *ReferenceRepository) FindColorByName(ctx context.Context, name string) (*entity.Color, error) {
	var color entity.Color
	err := r.db.WithContext(ctx).Where("color_name = ?", name).First(&color).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &color, nil
}

// CreateColor 创建颜色
func (r *ReferenceRepository) CreateColor(ctx context.Context, color *entity.Color) error {
	return r.db.WithContext(ctx).Create(color).Error
}

// GetOrCreateColor 查或建颜色
func (r *ReferenceRepository) GetOrCreateColor(ctx context.Context, name string) (*entity.Color, error) {
	color := entity.Color{ColorName: name}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&color).Error; err != nil {
		return nil, fmt.Errorf("upsert color: %w", err)
	}
	if color.ColorID != 0 {
		return &color, nil
	}
	return r.FindColorByName(ctx, name)
}

// ListPhases 阶段列表
func (r *ReferenceRepository) ListPhases(ctx context.Context) ([]entity.ProductionPhase, error) {
	var items []entity.ProductionPhase
	err := r.db.WithContext(ctx).Order("phase_id").Find(&items).Error
	return items, err
}
