package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/yousufaayman/barcode-manage-cpc/internal/service"
)

// ReferenceHandler 参照数据处理器
type ReferenceHandler struct {
	svc *service.ReferenceService
}

func NewReferenceHandler(svc *service.ReferenceService) *ReferenceHandler {
	return &ReferenceHandler{svc: svc}
}

// NameRequest 按名称创建参照数据
type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

// ListBrands GET /brands
func (h *ReferenceHandler) ListBrands(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, err := h.svc.ListBrands(c.Request.Context(), (page-1)*pageSize, pageSize)
	if err != nil {
		InternalError(c, "获取品牌列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}

// CreateBrand POST /brands
func (h *ReferenceHandler) CreateBrand(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	brand, err := h.svc.CreateBrand(c.Request.Context(), req.Name)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, brand)
}

// ListModels GET /models
func (h *ReferenceHandler) ListModels(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, err := h.svc.ListModels(c.Request.Context(), (page-1)*pageSize, pageSize)
	if err != nil {
		InternalError(c, "获取款式列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}

// CreateModel POST /models
func (h *ReferenceHandler) CreateModel(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	model, err := h.svc.CreateModel(c.Request.Context(), req.Name)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, model)
}

// ListSizes GET /sizes
func (h *ReferenceHandler) ListSizes(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, err := h.svc.ListSizes(c.Request.Context(), (page-1)*pageSize, pageSize)
	if err != nil {
		InternalError(c, "获取尺码列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}

// CreateSize POST /sizes
func (h *ReferenceHandler) CreateSize(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	size, err := h.svc.CreateSize(c.Request.Context(), req.Name)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, size)
}

// ListColors GET /colors
func (h *ReferenceHandler) ListColors(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, err := h.svc.ListColors(c.Request.Context(), (page-1)*pageSize, pageSize)
	if err != nil {
		InternalError(c, "获取颜色列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}

// CreateColor POST /colors
func (h *ReferenceHandler) CreateColor(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	color, err := h.svc.CreateColor(c.Request.Context(), req.Name)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, color)
}

// ListPhases GET /phases
func (h *ReferenceHandler) ListPhases(c *gin.Context) {
	items, err := h.svc.ListPhases(c.Request.Context())
	if err != nil {
		InternalError(c, "获取阶段列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}
