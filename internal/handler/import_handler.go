package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/yousufaayman/barcode-manage-cpc/internal/service"
)

// ImportHandler 批量导入处理器
type ImportHandler struct {
	svc *service.ImportService
}

func NewImportHandler(svc *service.ImportService) *ImportHandler {
	return &ImportHandler{svc: svc}
}

// DownloadTemplate GET /barcodes/template
func (h *ImportHandler) DownloadTemplate(c *gin.Context) {
	f, err := h.svc.GenerateTemplate()
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\"bulk_barcode_template.xlsx\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write template: "+err.Error())
	}
}

// Process POST /barcodes/bulk/process
func (h *ImportHandler) Process(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传 xlsx 或 csv 文件")
		return
	}
	defer file.Close()

	result, err := h.svc.Process(c.Request.Context(), header.Filename, file)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, result)
}

// Submit POST /barcodes/bulk/submit
func (h *ImportHandler) Submit(c *gin.Context) {
	var rows []service.ProcessedRow
	if err := c.ShouldBindJSON(&rows); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if len(rows) == 0 {
		BadRequest(c, "提交数据为空")
		return
	}
	result, err := h.svc.Submit(c.Request.Context(), rows)
	if err != nil {
		InternalError(c, "批量创建失败: "+err.Error())
		return
	}
	Created(c, result)
}
