package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yousufaayman/barcode-manage-cpc/internal/repository"
	"github.com/yousufaayman/barcode-manage-cpc/internal/service"
)

// JobOrderHandler 工单处理器
type JobOrderHandler struct {
	svc *service.JobOrderService
}

func NewJobOrderHandler(svc *service.JobOrderService) *JobOrderHandler {
	return &JobOrderHandler{svc: svc}
}

// Create POST /job-orders
func (h *JobOrderHandler) Create(c *gin.Context) {
	var req service.CreateJobOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	jobOrder, err := h.svc.CreateWithNames(c.Request.Context(), req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, jobOrder)
}

// List GET /job-orders
func (h *JobOrderHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	params := repository.JobOrderListParams{
		JobOrderNumber: c.Query("job_order_number"),
		ModelName:      c.Query("model"),
		Offset:         (page - 1) * pageSize,
		Limit:          pageSize,
	}
	if v := c.Query("closed"); v != "" {
		closed := v == "true"
		params.Closed = &closed
	}
	if v := c.Query("model_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			params.ModelID = uint(id)
		}
	}
	items, total, err := h.svc.List(c.Request.Context(), params)
	if err != nil {
		InternalError(c, "获取工单列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{
		Items:      items,
		Pagination: NewPagination(page, pageSize, total),
	})
}

// Get GET /job-orders/:id
func (h *JobOrderHandler) Get(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	jobOrder, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, jobOrder)
}

// Options GET /job-orders/options
func (h *JobOrderHandler) Options(c *gin.Context) {
	options, err := h.svc.Options(c.Request.Context())
	if err != nil {
		InternalError(c, "获取工单选项失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": options})
}

// QuantityRequest 调整明细需求量
type QuantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// UpdateItemQuantity PUT /job-orders/:id/items/:itemId
func (h *JobOrderHandler) UpdateItemQuantity(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := ParseUintParam(c, "itemId")
	if !ok {
		return
	}
	var req QuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if err := h.svc.UpdateItemQuantity(c.Request.Context(), id, itemID, req.Quantity); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// ClosedRequest 关闭/重开工单
type ClosedRequest struct {
	Closed *bool `json:"closed" binding:"required"`
}

// SetClosed PUT /job-orders/:id/closed
func (h *JobOrderHandler) SetClosed(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req ClosedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if err := h.svc.SetClosed(c.Request.Context(), id, *req.Closed); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// Delete DELETE /job-orders/:id
func (h *JobOrderHandler) Delete(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// Tracking GET /job-orders/:id/production-tracking
func (h *JobOrderHandler) Tracking(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	status, err := h.svc.Tracking(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, status)
}

// OverallStatus GET /job-orders/:id/overall-status
func (h *JobOrderHandler) OverallStatus(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	status, err := h.svc.OverallStatus(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, status)
}

// TrackingAll GET /job-orders/tracking
func (h *JobOrderHandler) TrackingAll(c *gin.Context) {
	statuses, err := h.svc.TrackingAll(c.Request.Context())
	if err != nil {
		InternalError(c, "获取工单进度失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": statuses})
}
