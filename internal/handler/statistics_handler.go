package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/yousufaayman/barcode-manage-cpc/internal/service"
)

// StatisticsHandler 统计报表处理器
type StatisticsHandler struct {
	svc *service.StatisticsService
}

func NewStatisticsHandler(svc *service.StatisticsService) *StatisticsHandler {
	return &StatisticsHandler{svc: svc}
}

// Overview GET /statistics
func (h *StatisticsHandler) Overview(c *gin.Context) {
	stats, err := h.svc.Overview(c.Request.Context())
	if err != nil {
		InternalError(c, "获取统计概览失败: "+err.Error())
		return
	}
	Success(c, stats)
}

// ByPhase GET /statistics/phases
func (h *StatisticsHandler) ByPhase(c *gin.Context) {
	stats, err := h.svc.ByPhase(c.Request.Context())
	if err != nil {
		InternalError(c, "获取阶段统计失败: "+err.Error())
		return
	}
	Success(c, stats)
}

// Advanced GET /statistics/advanced
func (h *StatisticsHandler) Advanced(c *gin.Context) {
	stats, err := h.svc.Advanced(c.Request.Context())
	if err != nil {
		InternalError(c, "获取高级统计失败: "+err.Error())
		return
	}
	Success(c, stats)
}
