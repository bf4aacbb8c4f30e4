package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yousufaayman/barcode-manage-cpc/internal/entity"
	"github.com/yousufaayman/barcode-manage-cpc/internal/events"
	"github.com/yousufaayman/barcode-manage-cpc/internal/repository"
)

var (
	// ErrValidation 字段越界或枚举外取值
	ErrValidation = errors.New("validation failed")

	// ErrBarcodeConflict 条码已被活跃批次占用
	ErrBarcodeConflict = errors.New("barcode already exists")

	// ErrPhaseBackwards 阶段只进不退（归档恢复除外）
	ErrPhaseBackwards = errors.New("current_phase can not move backwards")
)

// BatchService 批次生命周期服务：状态机 + 时间线账本。
// 流转策略为显式/手动：状态和阶段按调用方请求原样落库，不做自动进阶；
// 状态机唯一的隐式行为是关旧区间、开新区间这对账本操作。
type BatchService struct {
	batchRepo    *repository.BatchRepository
	timelineRepo *repository.TimelineRepository
	db           *gorm.DB
	publisher    *events.Publisher
	logger       *zap.Logger
}

func NewBatchService(batchRepo *repository.BatchRepository, timelineRepo *repository.TimelineRepository, db *gorm.DB, publisher *events.Publisher, logger *zap.Logger) *BatchService {
	return &BatchService{
		batchRepo:    batchRepo,
		timelineRepo: timelineRepo,
		db:           db,
		publisher:    publisher,
		logger:       logger,
	}
}

// CreateBatchRequest 创建批次请求
type CreateBatchRequest struct {
	Barcode      string `json:"barcode" binding:"required"`
	JobOrderID   *uint  `json:"job_order_id"`
	BrandID      uint   `json:"brand_id" binding:"required"`
	ModelID      uint   `json:"model_id" binding:"required"`
	SizeID       uint   `json:"size_id" binding:"required"`
	ColorID      uint   `json:"color_id" binding:"required"`
	Quantity     int    `json:"quantity" binding:"required"`
	Layers       int    `json:"layers" binding:"required"`
	Serial       string `json:"serial" binding:"required"`
	CurrentPhase int    `json:"current_phase"`
	Status       string `json:"status"`
}

// UpdateBatchRequest 更新批次请求，零值字段不更新
type UpdateBatchRequest struct {
	JobOrderID   *uint   `json:"job_order_id"`
	BrandID      *uint   `json:"brand_id"`
	ModelID      *uint   `json:"model_id"`
	SizeID       *uint   `json:"size_id"`
	ColorID      *uint   `json:"color_id"`
	Quantity     *int    `json:"quantity"`
	Layers       *int    `json:"layers"`
	Serial       *string `json:"serial"`
	CurrentPhase *int    `json:"current_phase"`
	Status       *string `json:"status"`
}

// ValidateRanges 数量/层数/流水号的取值范围校验
func ValidateRanges(quantity, layers int, serial string) error {
	if quantity < 1 || quantity > 999 {
		return fmt.Errorf("%w: quantity 必须在 1-999 之间", ErrValidation)
	}
	if layers < 1 || layers > 99 {
		return fmt.Errorf("%w: layers 必须在 1-99 之间", ErrValidation)
	}
	if len(serial) != 3 {
		return fmt.Errorf("%w: serial 必须是3位补零数字串", ErrValidation)
	}
	for _, ch := range serial {
		if ch < '0' || ch > '9' {
			return fmt.Errorf("%w: serial 必须是3位补零数字串", ErrValidation)
		}
	}
	return nil
}

// Create 创建批次并开启初始时间线区间，同一事务
func (s *BatchService) Create(ctx context.Context, req CreateBatchRequest) (*repository.BatchRow, error) {
	if err := ValidateRanges(req.Quantity, req.Layers, req.Serial); err != nil {
		return nil, err
	}

	phase := req.CurrentPhase
	if phase == 0 {
		phase = entity.PhaseCutting
	}
	if !entity.ValidPhase(phase) {
		return nil, fmt.Errorf("%w: 非法阶段 %d", ErrValidation, phase)
	}
	status := req.Status
	if status == "" {
		status = entity.StatusPending
	}
	if !entity.ValidStatus(status) {
		return nil, fmt.Errorf("%w: 非法状态 %q", ErrValidation, status)
	}

	exists, err := s.batchRepo.BarcodeExists(ctx, req.Barcode)
	if err != nil {
		return nil, fmt.Errorf("查询条码失败: %w", err)
	}
	if exists {
		return nil, ErrBarcodeConflict
	}

	batch := &entity.Batch{
		Barcode:      req.Barcode,
		JobOrderID:   req.JobOrderID,
		BrandID:      req.BrandID,
		ModelID:      req.ModelID,
		SizeID:       req.SizeID,
		ColorID:      req.ColorID,
		Quantity:     req.Quantity,
		Layers:       req.Layers,
		Serial:       req.Serial,
		CurrentPhase: phase,
		Status:       status,
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return fmt.Errorf("创建批次失败: %w", err)
		}
		if _, err := s.timelineRepo.OpenTx(tx, batch.BatchID, batch.CurrentPhase, batch.Status, now); err != nil {
			return fmt.Errorf("开启初始时间线失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.batchRepo.FindRowByID(ctx, batch.BatchID)
}

// Update 按ID应用状态机更新
func (s *BatchService) Update(ctx context.Context, batchID uint, req UpdateBatchRequest) (*repository.BatchRow, error) {
	return s.update(ctx, "batch_id = ?", batchID, req)
}

// UpdateByBarcode 按条码应用状态机更新
func (s *BatchService) UpdateByBarcode(ctx context.Context, barcode string, req UpdateBatchRequest) (*repository.BatchRow, error) {
	return s.update(ctx, "barcode = ?", barcode, req)
}

// update 状态机核心。批次行加锁后计算目标 (状态,阶段)；发生流转时，
// 关旧区间、开新区间、落批次字段三步在同一事务内完成，
// 外部观察不到批次与未关闭区间不一致的瞬间。
func (s *BatchService) update(ctx context.Context, cond string, arg interface{}, req UpdateBatchRequest) (*repository.BatchRow, error) {
	if req.Status != nil && !entity.ValidStatus(*req.Status) {
		return nil, fmt.Errorf("%w: 非法状态 %q", ErrValidation, *req.Status)
	}
	if req.CurrentPhase != nil && !entity.ValidPhase(*req.CurrentPhase) {
		return nil, fmt.Errorf("%w: 非法阶段 %d", ErrValidation, *req.CurrentPhase)
	}

	var (
		batchID    uint
		transition *events.PhaseChangedEvent
	)
	now := time.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch entity.Batch
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(cond, arg).
			First(&batch).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrNotFound
			}
			return err
		}
		batchID = batch.BatchID

		newStatus := batch.Status
		newPhase := batch.CurrentPhase
		if req.Status != nil {
			newStatus = *req.Status
		}
		if req.CurrentPhase != nil {
			if *req.CurrentPhase < batch.CurrentPhase {
				return ErrPhaseBackwards
			}
			newPhase = *req.CurrentPhase
		}

		// 非流程字段
		if req.JobOrderID != nil {
			batch.JobOrderID = req.JobOrderID
		}
		if req.BrandID != nil {
			batch.BrandID = *req.BrandID
		}
		if req.ModelID != nil {
			batch.ModelID = *req.ModelID
		}
		if req.SizeID != nil {
			batch.SizeID = *req.SizeID
		}
		if req.ColorID != nil {
			batch.ColorID = *req.ColorID
		}
		if req.Quantity != nil {
			batch.Quantity = *req.Quantity
		}
		if req.Layers != nil {
			batch.Layers = *req.Layers
		}
		if req.Serial != nil {
			batch.Serial = *req.Serial
		}
		if err := ValidateRanges(batch.Quantity, batch.Layers, batch.Serial); err != nil {
			return err
		}

		changed := newStatus != batch.Status || newPhase != batch.CurrentPhase
		if changed {
			if _, err := s.timelineRepo.CloseTx(tx, batch.BatchID, now); err != nil {
				return fmt.Errorf("关闭时间线区间失败: %w", err)
			}
			if _, err := s.timelineRepo.OpenTx(tx, batch.BatchID, newPhase, newStatus, now); err != nil {
				return fmt.Errorf("开启时间线区间失败: %w", err)
			}
			transition = &events.PhaseChangedEvent{
				BatchID:    batch.BatchID,
				Barcode:    batch.Barcode,
				FromPhase:  batch.CurrentPhase,
				FromStatus: batch.Status,
				ToPhase:    newPhase,
				ToStatus:   newStatus,
				OccurredAt: now,
			}
		}

		batch.Status = newStatus
		batch.CurrentPhase = newPhase
		batch.LastUpdatedAt = now
		return tx.Save(&batch).Error
	})
	if err != nil {
		return nil, err
	}

	if transition != nil {
		s.publisher.PublishPhaseChanged(ctx, *transition)
	}

	return s.batchRepo.FindRowByID(ctx, batchID)
}

// Get 批次详情
func (s *BatchService) Get(ctx context.Context, batchID uint) (*repository.BatchRow, error) {
	return s.batchRepo.FindRowByID(ctx, batchID)
}

// GetByBarcode 按条码查批次
func (s *BatchService) GetByBarcode(ctx context.Context, barcode string) (*repository.BatchRow, error) {
	return s.batchRepo.FindRowByBarcode(ctx, barcode)
}

// List 批次列表
func (s *BatchService) List(ctx context.Context, params repository.BatchListParams) ([]repository.BatchRow, int64, error) {
	return s.batchRepo.List(ctx, params)
}

// Delete 删除批次及其时间线，同一事务
func (s *BatchService) Delete(ctx context.Context, batchID uint) (*repository.BatchRow, error) {
	row, err := s.batchRepo.FindRowByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.timelineRepo.DeleteByBatchTx(tx, batchID); err != nil {
			return err
		}
		return tx.Where("batch_id = ?", batchID).Delete(&entity.Batch{}).Error
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Archive 归档：活跃表删、归档表插，同一事务；时间线不动
func (s *BatchService) Archive(ctx context.Context, batchID uint) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch entity.Batch
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("batch_id = ?", batchID).
			First(&batch).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrNotFound
			}
			return err
		}

		// 归档时关闭在途区间，时间不再流逝
		if _, err := s.timelineRepo.CloseTx(tx, batch.BatchID, now); err != nil {
			return fmt.Errorf("关闭时间线区间失败: %w", err)
		}

		if err := tx.Create(batch.ToArchived(now)).Error; err != nil {
			return fmt.Errorf("写入归档失败: %w", err)
		}
		return tx.Where("batch_id = ?", batchID).Delete(&entity.Batch{}).Error
	})
}

// Recover 恢复归档批次：校验条码未被占用后反向搬运，batch_id 原样保留，
// 并以当前 (状态,阶段) 重新开启时间线区间
func (s *BatchService) Recover(ctx context.Context, batchID uint) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var archived entity.ArchivedBatch
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("batch_id = ?", batchID).
			First(&archived).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrNotFound
			}
			return err
		}

		var count int64
		if err := tx.Model(&entity.Batch{}).
			Where("barcode = ?", archived.Barcode).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrBarcodeConflict
		}

		batch := archived.ToBatch()
		batch.LastUpdatedAt = now
		if err := tx.Create(batch).Error; err != nil {
			return fmt.Errorf("恢复批次失败: %w", err)
		}
		if _, err := s.timelineRepo.OpenTx(tx, batch.BatchID, batch.CurrentPhase, batch.Status, now); err != nil {
			return fmt.Errorf("开启时间线区间失败: %w", err)
		}
		return tx.Where("batch_id = ?", batchID).Delete(&entity.ArchivedBatch{}).Error
	})
}

// BulkMoveError 批量归档/恢复的单条失败
type BulkMoveError struct {
	BatchID uint   `json:"batch_id"`
	Error   string `json:"error"`
}

// BulkMoveResult 批量归档/恢复结果，失败逐条收集、不中断
type BulkMoveResult struct {
	Succeeded []uint          `json:"succeeded"`
	Failed    []BulkMoveError `json:"failed"`
}

// ArchiveBulk 批量归档
func (s *BatchService) ArchiveBulk(ctx context.Context, batchIDs []uint) BulkMoveResult {
	return s.bulkMove(ctx, batchIDs, s.Archive)
}

// RecoverBulk 批量恢复
func (s *BatchService) RecoverBulk(ctx context.Context, batchIDs []uint) BulkMoveResult {
	return s.bulkMove(ctx, batchIDs, s.Recover)
}

func (s *BatchService) bulkMove(ctx context.Context, batchIDs []uint, op func(context.Context, uint) error) BulkMoveResult {
	result := BulkMoveResult{Succeeded: []uint{}, Failed: []BulkMoveError{}}
	for _, id := range batchIDs {
		if err := op(ctx, id); err != nil {
			result.Failed = append(result.Failed, BulkMoveError{BatchID: id, Error: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result
}

// Timeline 批次履历
func (s *BatchService) Timeline(ctx context.Context, batchID uint) ([]entity.BarcodeStatusTimeline, error) {
	if _, err := s.batchRepo.FindByID(ctx, batchID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		// 归档批次的履历依然可查
		if _, archErr := s.batchRepo.FindArchivedByID(ctx, batchID); archErr != nil {
			return nil, repository.ErrNotFound
		}
	}
	return s.timelineRepo.History(ctx, batchID)
}

// TimelineStats 批次按 (阶段,状态) 的累计分钟
func (s *BatchService) TimelineStats(ctx context.Context, batchID uint) (map[int]map[string]int64, error) {
	rows, err := s.timelineRepo.StatsByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	result := make(map[int]map[string]int64)
	for _, row := range rows {
		if result[row.PhaseID] == nil {
			result[row.PhaseID] = make(map[string]int64)
		}
		result[row.PhaseID][row.Status] = row.Minutes
	}
	return result, nil
}

// CurrentTimeline 全局在途区间
func (s *BatchService) CurrentTimeline(ctx context.Context, offset, limit int) ([]entity.BarcodeStatusTimeline, error) {
	return s.timelineRepo.CurrentOpenEntries(ctx, offset, limit)
}

// GlobalTimelineStats 全局平均时长按 (阶段,状态)
func (s *BatchService) GlobalTimelineStats(ctx context.Context) (map[int]map[string]float64, error) {
	rows, err := s.timelineRepo.AverageByPhaseStatus(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[int]map[string]float64)
	for _, row := range rows {
		if result[row.PhaseID] == nil {
			result[row.PhaseID] = make(map[string]float64)
		}
		result[row.PhaseID][row.Status] = row.AverageMinutes
	}
	return result, nil
}
