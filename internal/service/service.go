package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yousufaayman/barcode-manage-cpc/internal/config"
	"github.com/yousufaayman/barcode-manage-cpc/internal/entity"
	"github.com/yousufaayman/barcode-manage-cpc/internal/events"
	"github.com/yousufaayman/barcode-manage-cpc/internal/repository"
)

// ErrDuplicateName 参照数据名称已存在
var ErrDuplicateName = errors.New("name already exists")

// Services 服务集合
type Services struct {
	Batch      *BatchService
	JobOrder   *JobOrderService
	Statistics *StatisticsService
	Import     *ImportService
	Reference  *ReferenceService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, db *gorm.DB, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	// 初始化MinIO客户端
	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		var err error
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			logger.Warn("minio init failed, uploads will not be archived", zap.Error(err))
			minioClient = nil
		}
	}

	publisher := events.NewPublisher(cfg.RabbitMQ.URL(), logger)

	batchSvc := NewBatchService(repos.Batch, repos.Timeline, db, publisher, logger)

	return &Services{
		Batch:      batchSvc,
		JobOrder:   NewJobOrderService(repos.JobOrder, repos.Reference, db, logger),
		Statistics: NewStatisticsService(db, rdb, logger),
		Import:     NewImportService(batchSvc, repos.Reference, minioClient, cfg.MinIO.Bucket, logger),
		Reference:  NewReferenceService(repos.Reference),
	}
}

// ReferenceService 参照数据服务：品牌/款式/尺码/颜色/阶段
type ReferenceService struct {
	repo *repository.ReferenceRepository
}

// NewReferenceService 创建参照数据服务
func NewReferenceService(repo *repository.ReferenceRepository) *ReferenceService {
	return &ReferenceService{repo: repo}
}

func (s *ReferenceService) ListBrands(ctx context.Context, offset, limit int) ([]entity.Brand, error) {
	return s.repo.ListBrands(ctx, offset, limit)
}

func (s *ReferenceService) ListModels(ctx context.Context, offset, limit int) ([]entity.Model, error) {
	return s.repo.ListModels(ctx, offset, limit)
}

func (s *ReferenceService) ListSizes(ctx context.Context, offset, limit int) ([]entity.Size, error) {
	return s.repo.ListSizes(ctx, offset, limit)
}

func (s *ReferenceService) ListColors(ctx context.Context, offset, limit int) ([]entity.Color, error) {
	return s.repo.ListColors(ctx, offset, limit)
}

func (s *ReferenceService) ListPhases(ctx context.Context) ([]entity.ProductionPhase, error) {
	return s.repo.ListPhases(ctx)
}

// CreateBrand 创建品牌，同名冲突
func (s *ReferenceService) CreateBrand(ctx context.Context, name string) (*entity.Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: 品牌名称不能为空", ErrValidation)
	}
	if _, err := s.repo.FindBrandByName(ctx, name); err == nil {
		return nil, ErrDuplicateName
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	brand := &entity.Brand{BrandName: name}
	if err := s.repo.CreateBrand(ctx, brand); err != nil {
		return nil, fmt.Errorf("创建品牌失败: %w", err)
	}
	return brand, nil
}

// CreateModel 创建款式，同名冲突
func (s *ReferenceService) CreateModel(ctx context.Context, name string) (*entity.Model, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: 款式名称不能为空", ErrValidation)
	}
	if _, err := s.repo.FindModelByName(ctx, name); err == nil {
		return nil, ErrDuplicateName
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	model := &entity.Model{ModelName: name}
	if err := s.repo.CreateModel(ctx, model); err != nil {
		return nil, fmt.Errorf("创建款式失败: %w", err)
	}
	return model, nil
}

// CreateSize 创建尺码，同值冲突
func (s *ReferenceService) CreateSize(ctx context.Context, value string) (*entity.Size, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: 尺码不能为空", ErrValidation)
	}
	if _, err := s.repo.FindSizeByValue(ctx, value); err == nil {
		return nil, ErrDuplicateName
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	size := &entity.Size{SizeValue: value}
	if err := s.repo.CreateSize(ctx, size); err != nil {
		return nil, fmt.Errorf("创建尺码失败: %w", err)
	}
	return size, nil
}

// CreateColor 创建颜色，同名冲突
func (s *ReferenceService) CreateColor(ctx context.Context, name string) (*entity.Color, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: 颜色名称不能为空", ErrValidation)
	}
	if _, err := s.repo.FindColorByName(ctx, name); err == nil {
		return nil, ErrDuplicateName
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	color := &entity.Color{ColorName: name}
	if err := s.repo.CreateColor(ctx, color); err != nil {
		return nil, fmt.Errorf("创建颜色失败: %w", err)
	}
	return color, nil
}
