package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yousufaayman/barcode-manage-cpc/internal/entity"
	"github.com/yousufaayman/barcode-manage-cpc/internal/repository"
)

// priorityCompletionThreshold 完成率低于此值的工单在列表中置顶
const priorityCompletionThreshold = 97.0

// StatusNotStarted 工单/明细尚无产出
const StatusNotStarted = "Not Started"

// JobOrderService 工单服务：明细按 (颜色,尺码) 展开，
// 生产进度由批次数量汇总回填
type JobOrderService struct {
	jobOrderRepo  *repository.JobOrderRepository
	referenceRepo *repository.ReferenceRepository
	db            *gorm.DB
	logger        *zap.Logger
}

func NewJobOrderService(jobOrderRepo *repository.JobOrderRepository, referenceRepo *repository.ReferenceRepository, db *gorm.DB, logger *zap.Logger) *JobOrderService {
	return &JobOrderService{jobOrderRepo: jobOrderRepo, referenceRepo: referenceRepo, db: db, logger: logger}
}

// JobOrderItemRequest 工单明细行，颜色/尺码按名称提交
type JobOrderItemRequest struct {
	Color    string `json:"color" binding:"required"`
	Size     string `json:"size" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

// CreateJobOrderRequest 创建工单请求，款式按名称提交、不存在则即时建档
type CreateJobOrderRequest struct {
	JobOrderNumber string                `json:"job_order_number" binding:"required"`
	Model          string                `json:"model" binding:"required"`
	Items          []JobOrderItemRequest `json:"items" binding:"required"`
}

// JobOrderItemStatus 明细行进度：required vs produced
type JobOrderItemStatus struct {
	ItemID           uint    `json:"item_id"`
	ColorName        string  `json:"color_name"`
	SizeValue        string  `json:"size_value"`
	RequiredQuantity int     `json:"required_quantity"`
	ProducedQuantity int     `json:"produced_quantity"`
	Remaining        int     `json:"remaining"`
	CompletionRate   float64 `json:"completion_rate"`
	Status           string  `json:"status"`
	OverProduced     bool    `json:"over_produced"`
}

// JobOrderStatus 工单整体进度
type JobOrderStatus struct {
	JobOrderID       uint                 `json:"job_order_id"`
	JobOrderNumber   string               `json:"job_order_number"`
	ModelName        string               `json:"model_name"`
	Closed           bool                 `json:"closed"`
	RequiredQuantity int                  `json:"required_quantity"`
	ProducedQuantity int                  `json:"produced_quantity"`
	CompletionRate   float64              `json:"completion_rate"`
	OverallStatus    string               `json:"overall_status"`
	Items            []JobOrderItemStatus `json:"items"`
}

// JobOrderOption 下拉选项：可关联批次的未关闭工单
type JobOrderOption struct {
	JobOrderID     uint   `json:"job_order_id"`
	JobOrderNumber string `json:"job_order_number"`
	ModelID        uint   `json:"model_id"`
	ModelName      string `json:"model_name"`
}

// CreateWithNames 创建工单，款式与明细上的颜色/尺码按名称即时建档。
// 同一工单内 (颜色,尺码) 组合不得重复。
func (s *JobOrderService) CreateWithNames(ctx context.Context, req CreateJobOrderRequest) (*entity.JobOrder, error) {
	number := strings.TrimSpace(req.JobOrderNumber)
	if number == "" {
		return nil, fmt.Errorf("%w: 工单号不能为空", ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: 工单至少需要一条明细", ErrValidation)
	}

	if _, err := s.jobOrderRepo.FindByNumber(ctx, number); err == nil {
		return nil, fmt.Errorf("%w: 工单号已存在: %s", ErrValidation, number)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("查询工单失败: %w", err)
	}

	model, err := s.referenceRepo.GetOrCreateModel(ctx, strings.TrimSpace(req.Model))
	if err != nil {
		return nil, fmt.Errorf("款式建档失败: %w", err)
	}

	seen := make(map[string]bool, len(req.Items))
	items := make([]entity.JobOrderItem, 0, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: 第%d条明细数量必须为正", ErrValidation, i+1)
		}
		color, err := s.referenceRepo.GetOrCreateColor(ctx, strings.TrimSpace(item.Color))
		if err != nil {
			return nil, fmt.Errorf("颜色建档失败: %w", err)
		}
		size, err := s.referenceRepo.GetOrCreateSize(ctx, strings.TrimSpace(item.Size))
		if err != nil {
			return nil, fmt.Errorf("尺码建档失败: %w", err)
		}
		key := fmt.Sprintf("%d-%d", color.ColorID, size.SizeID)
		if seen[key] {
			return nil, fmt.Errorf("%w: 明细中 (颜色,尺码) 组合重复: %s/%s", ErrValidation, item.Color, item.Size)
		}
		seen[key] = true
		items = append(items, entity.JobOrderItem{
			ColorID:  color.ColorID,
			SizeID:   size.SizeID,
			Quantity: item.Quantity,
		})
	}

	jobOrder := &entity.JobOrder{
		ModelID:        model.ModelID,
		JobOrderNumber: number,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.jobOrderRepo.CreateTx(tx, jobOrder, items)
	})
	if err != nil {
		return nil, fmt.Errorf("创建工单失败: %w", err)
	}
	return jobOrder, nil
}

// List 工单分页列表
func (s *JobOrderService) List(ctx context.Context, params repository.JobOrderListParams) ([]entity.JobOrder, int64, error) {
	return s.jobOrderRepo.List(ctx, params)
}

// Get 单个工单头
func (s *JobOrderService) Get(ctx context.Context, id uint) (*entity.JobOrder, error) {
	return s.jobOrderRepo.FindByID(ctx, id)
}

// UpdateItemQuantity 调整明细需求量
func (s *JobOrderService) UpdateItemQuantity(ctx context.Context, jobOrderID, itemID uint, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: 需求数量必须为正", ErrValidation)
	}
	if _, err := s.jobOrderRepo.FindItem(ctx, itemID, jobOrderID); err != nil {
		return fmt.Errorf("工单明细不存在: %w", err)
	}
	return s.jobOrderRepo.UpdateItemQuantity(ctx, itemID, quantity)
}

// SetClosed 关闭/重开工单。关闭后不再出现在批次关联下拉中。
func (s *JobOrderService) SetClosed(ctx context.Context, id uint, closed bool) error {
	jobOrder, err := s.jobOrderRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("工单不存在: %w", err)
	}
	jobOrder.Closed = closed
	return s.jobOrderRepo.Update(ctx, jobOrder)
}

// Delete 删除工单及其全部明细。关联批次的 job_order_id 置空而非删除批次。
func (s *JobOrderService) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.Batch{}).
			Where("job_order_id = ?", id).
			Update("job_order_id", nil).Error; err != nil {
			return fmt.Errorf("解除批次关联失败: %w", err)
		}
		return s.jobOrderRepo.DeleteTx(tx, id)
	})
}

// Options 未关闭工单的下拉选项
func (s *JobOrderService) Options(ctx context.Context) ([]JobOrderOption, error) {
	rows, err := s.jobOrderRepo.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	options := make([]JobOrderOption, 0, len(rows))
	for _, row := range rows {
		options = append(options, JobOrderOption{
			JobOrderID:     row.JobOrderID,
			JobOrderNumber: row.JobOrderNumber,
			ModelID:        row.ModelID,
			ModelName:      row.ModelName,
		})
	}
	return options, nil
}

// Tracking 单工单生产进度：明细逐行比对需求量与关联批次产量
func (s *JobOrderService) Tracking(ctx context.Context, id uint) (*JobOrderStatus, error) {
	jobOrder, err := s.jobOrderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("工单不存在: %w", err)
	}
	return s.buildStatus(ctx, jobOrder)
}

// JobOrderOverallStatus 工单整体进度，不展开明细
type JobOrderOverallStatus struct {
	JobOrderID       uint    `json:"job_order_id"`
	JobOrderNumber   string  `json:"job_order_number"`
	RequiredQuantity int     `json:"required_quantity"`
	ProducedQuantity int     `json:"produced_quantity"`
	CompletionRate   float64 `json:"completion_rate"`
	OverallStatus    string  `json:"overall_status"`
}

// OverallStatus 工单整体进度：需求量与产出量按总量比对
func (s *JobOrderService) OverallStatus(ctx context.Context, id uint) (*JobOrderOverallStatus, error) {
	jobOrder, err := s.jobOrderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("工单不存在: %w", err)
	}
	required, err := s.jobOrderRepo.TotalRequired(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("汇总需求量失败: %w", err)
	}
	produced, err := s.jobOrderRepo.TotalProduced(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("汇总产量失败: %w", err)
	}
	return &JobOrderOverallStatus{
		JobOrderID:       jobOrder.JobOrderID,
		JobOrderNumber:   jobOrder.JobOrderNumber,
		RequiredQuantity: int(required),
		ProducedQuantity: int(produced),
		CompletionRate:   completionRate(int(produced), int(required)),
		OverallStatus:    classifyProgress(int(produced), int(required)),
	}, nil
}

// TrackingAll 全部工单进度，优先级排序：
// 超产或完成率低于阈值的置顶，组内按工单号升序
func (s *JobOrderService) TrackingAll(ctx context.Context) ([]JobOrderStatus, error) {
	jobOrders, err := s.jobOrderRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]JobOrderStatus, 0, len(jobOrders))
	for i := range jobOrders {
		status, err := s.buildStatus(ctx, &jobOrders[i])
		if err != nil {
			s.logger.Warn("build job order status failed",
				zap.Uint("job_order_id", jobOrders[i].JobOrderID), zap.Error(err))
			continue
		}
		statuses = append(statuses, *status)
	}

	sort.SliceStable(statuses, func(i, j int) bool {
		pi, pj := isPriority(statuses[i]), isPriority(statuses[j])
		if pi != pj {
			return pi
		}
		return statuses[i].JobOrderNumber < statuses[j].JobOrderNumber
	})
	return statuses, nil
}

// isPriority 超产（总产出超过总需求）或完成率低于阈值的工单置顶
func isPriority(status JobOrderStatus) bool {
	return status.ProducedQuantity > status.RequiredQuantity ||
		status.CompletionRate < priorityCompletionThreshold
}

func (s *JobOrderService) buildStatus(ctx context.Context, jobOrder *entity.JobOrder) (*JobOrderStatus, error) {
	model, err := s.referenceRepo.FindModelByID(ctx, jobOrder.ModelID)
	if err != nil {
		return nil, fmt.Errorf("款式不存在: %w", err)
	}

	items, err := s.jobOrderRepo.ItemsWithDetails(ctx, jobOrder.JobOrderID)
	if err != nil {
		return nil, fmt.Errorf("查询工单明细失败: %w", err)
	}
	producedRows, err := s.jobOrderRepo.ProducedByItem(ctx, jobOrder.JobOrderID)
	if err != nil {
		return nil, fmt.Errorf("汇总产量失败: %w", err)
	}
	type producedKey struct {
		ColorID uint
		SizeID  uint
	}
	produced := make(map[producedKey]int, len(producedRows))
	for _, row := range producedRows {
		produced[producedKey{ColorID: row.ColorID, SizeID: row.SizeID}] = int(row.Produced)
	}

	status := &JobOrderStatus{
		JobOrderID:     jobOrder.JobOrderID,
		JobOrderNumber: jobOrder.JobOrderNumber,
		ModelName:      model.ModelName,
		Closed:         jobOrder.Closed,
		Items:          make([]JobOrderItemStatus, 0, len(items)),
	}
	for _, item := range items {
		got := produced[producedKey{ColorID: item.ColorID, SizeID: item.SizeID}]
		remaining := item.Quantity - got
		if remaining < 0 {
			remaining = 0
		}
		status.Items = append(status.Items, JobOrderItemStatus{
			ItemID:           item.ItemID,
			ColorName:        item.ColorName,
			SizeValue:        item.SizeValue,
			RequiredQuantity: item.Quantity,
			ProducedQuantity: got,
			Remaining:        remaining,
			CompletionRate:   completionRate(got, item.Quantity),
			Status:           classifyProgress(got, item.Quantity),
			OverProduced:     got > item.Quantity,
		})
		status.RequiredQuantity += item.Quantity
		status.ProducedQuantity += got
	}

	status.CompletionRate = completionRate(status.ProducedQuantity, status.RequiredQuantity)
	status.OverallStatus = classifyProgress(status.ProducedQuantity, status.RequiredQuantity)
	return status, nil
}

// completionRate 需求量为 0 时报 0，不做除法
func completionRate(produced, required int) float64 {
	if required <= 0 {
		return 0
	}
	return float64(produced) / float64(required) * 100
}

// classifyProgress 完成 > 在产 > 未开工，明细与工单整体共用同一分类
func classifyProgress(produced, required int) string {
	switch {
	case produced == 0:
		return StatusNotStarted
	case produced >= required:
		return entity.StatusCompleted
	default:
		return entity.StatusInProgress
	}
}
