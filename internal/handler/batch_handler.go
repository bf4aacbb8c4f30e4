package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/yousufaayman/barcode-manage-cpc/internal/repository"
	"github.com/yousufaayman/barcode-manage-cpc/internal/service"
)

// BatchHandler 批次处理器
type BatchHandler struct {
	svc *service.BatchService
}

func NewBatchHandler(svc *service.BatchService) *BatchHandler {
	return &BatchHandler{svc: svc}
}

// Create POST /batches
func (h *BatchHandler) Create(c *gin.Context) {
	var req service.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	batch, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, batch)
}

// List GET /batches
func (h *BatchHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	params := repository.BatchListParams{
		Barcode:  c.Query("barcode"),
		Brand:    c.Query("brand"),
		Model:    c.Query("model"),
		Size:     c.Query("size"),
		Color:    c.Query("color"),
		Phase:    c.Query("phase"),
		Status:   c.Query("status"),
		Archived: c.Query("archived") == "true",
		Offset:   (page - 1) * pageSize,
		Limit:    pageSize,
	}
	items, total, err := h.svc.List(c.Request.Context(), params)
	if err != nil {
		InternalError(c, "获取批次列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{
		Items:      items,
		Pagination: NewPagination(page, pageSize, total),
	})
}

// Get GET /batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	batch, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, batch)
}

// GetByBarcode GET /batches/barcode/:barcode
func (h *BatchHandler) GetByBarcode(c *gin.Context) {
	batch, err := h.svc.GetByBarcode(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, batch)
}

// Update PUT /batches/:id
func (h *BatchHandler) Update(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req service.UpdateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	batch, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, batch)
}

// UpdateByBarcode PUT /batches/barcode/:barcode
func (h *BatchHandler) UpdateByBarcode(c *gin.Context) {
	var req service.UpdateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	batch, err := h.svc.UpdateByBarcode(c.Request.Context(), c.Param("barcode"), req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, batch)
}

// Delete DELETE /batches/:id
func (h *BatchHandler) Delete(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	batch, err := h.svc.Delete(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, batch)
}

// Archive POST /batches/:id/archive
func (h *BatchHandler) Archive(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Archive(c.Request.Context(), id); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// Recover POST /batches/:id/recover
func (h *BatchHandler) Recover(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Recover(c.Request.Context(), id); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// BulkIDsRequest 批量归档/恢复请求
type BulkIDsRequest struct {
	BatchIDs []uint `json:"batch_ids" binding:"required"`
}

// ArchiveBulk POST /batches/archive
func (h *BatchHandler) ArchiveBulk(c *gin.Context) {
	var req BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	Success(c, h.svc.ArchiveBulk(c.Request.Context(), req.BatchIDs))
}

// RecoverBulk POST /batches/recover
func (h *BatchHandler) RecoverBulk(c *gin.Context) {
	var req BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	Success(c, h.svc.RecoverBulk(c.Request.Context(), req.BatchIDs))
}

// Timeline GET /batches/:id/timeline
func (h *BatchHandler) Timeline(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	entries, err := h.svc.Timeline(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": entries})
}

// TimelineStats GET /batches/:id/timeline/stats
func (h *BatchHandler) TimelineStats(c *gin.Context) {
	id, ok := ParseUintParam(c, "id")
	if !ok {
		return
	}
	stats, err := h.svc.TimelineStats(c.Request.Context(), id)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, stats)
}

// CurrentTimeline GET /timeline/current
func (h *BatchHandler) CurrentTimeline(c *gin.Context) {
	page, pageSize := GetPagination(c)
	entries, err := h.svc.CurrentTimeline(c.Request.Context(), (page-1)*pageSize, pageSize)
	if err != nil {
		InternalError(c, "获取当前区间失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": entries})
}

// GlobalTimelineStats GET /timeline/stats
func (h *BatchHandler) GlobalTimelineStats(c *gin.Context) {
	stats, err := h.svc.GlobalTimelineStats(c.Request.Context())
	if err != nil {
		InternalError(c, "获取时间线统计失败: "+err.Error())
		return
	}
	Success(c, stats)
}
