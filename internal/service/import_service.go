package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/big"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/minio/minio-go/v7"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/yousufaayman/barcode-manage-cpc/internal/repository"
)

// importColumns 模板必填列，顺序即模板列顺序
var importColumns = []string{"brand", "model", "size", "color", "quantity", "layers", "serial"}

// ImportService 批量导入：模板生成、文件解析、逐行校验建档、条码生成。
// 解析阶段只产出预览数据，提交阶段才真正落库。
type ImportService struct {
	batchService  *BatchService
	referenceRepo *repository.ReferenceRepository
	minioClient   *minio.Client
	bucket        string
	logger        *zap.Logger
}

func NewImportService(batchService *BatchService, referenceRepo *repository.ReferenceRepository, minioClient *minio.Client, bucket string, logger *zap.Logger) *ImportService {
	return &ImportService{
		batchService:  batchService,
		referenceRepo: referenceRepo,
		minioClient:   minioClient,
		bucket:        bucket,
		logger:        logger,
	}
}

// ProcessedRow 校验通过的预览行，ID与名称并存（名称供前端展示）
type ProcessedRow struct {
	Barcode  string `json:"barcode"`
	BrandID  uint   `json:"brand_id"`
	ModelID  uint   `json:"model_id"`
	SizeID   uint   `json:"size_id"`
	ColorID  uint   `json:"color_id"`
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Size     string `json:"size"`
	Color    string `json:"color"`
	Quantity int    `json:"quantity"`
	Layers   int    `json:"layers"`
	Serial   string `json:"serial"`
}

// ErrorRow 校验失败行。rowNumber 按表格行号计：表头占第1行，数据从第2行起
type ErrorRow struct {
	RowNumber int               `json:"rowNumber"`
	Data      map[string]string `json:"data"`
	Error     string            `json:"error"`
}

// BulkProcessResult 解析结果：合格行与错误行并列返回，互不阻断
type BulkProcessResult struct {
	ProcessedData []ProcessedRow `json:"processed_data"`
	ErrorRows     []ErrorRow     `json:"error_rows"`
}

// GenerateTemplate 生成导入模板，含示例行与填写说明sheet
func (s *ImportService) GenerateTemplate() (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "条码导入"
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})

	for i, h := range importColumns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	// 列宽
	colWidths := []float64{16, 20, 10, 12, 10, 8, 8}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	// 示例数据行
	sampleData := []interface{}{"Example Brand", "Example Model", "M", "Black", 1, 1, 1}
	for j, val := range sampleData {
		col, _ := excelize.ColumnNumberToName(j + 1)
		f.SetCellValue(sheet, fmt.Sprintf("%s2", col), val)
	}

	helpSheet := "填写说明"
	f.NewSheet(helpSheet)
	helpData := [][]string{
		{"列名", "说明", "是否必填"},
		{"brand", "品牌名称，不存在则自动建档", "是"},
		{"model", "款式名称，不存在则自动建档", "是"},
		{"size", "尺码，不存在则自动建档", "是"},
		{"color", "颜色名称，不存在则自动建档", "是"},
		{"quantity", "批次件数，1-999", "是"},
		{"layers", "裁剪层数，1-99", "是"},
		{"serial", "流水号，1-999", "是"},
	}
	for i, row := range helpData {
		for j, val := range row {
			col, _ := excelize.ColumnNumberToName(j + 1)
			f.SetCellValue(helpSheet, fmt.Sprintf("%s%d", col, i+1), val)
		}
	}
	f.SetColWidth(helpSheet, "A", "A", 12)
	f.SetColWidth(helpSheet, "B", "B", 36)
	f.SetColWidth(helpSheet, "C", "C", 10)

	return f, nil
}

// Process 解析上传文件并逐行校验建档。
// 原始文件在配置了 MinIO 时同步归档，归档失败不影响解析。
func (s *ImportService) Process(ctx context.Context, fileName string, reader io.Reader) (*BulkProcessResult, error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件失败: %w", err)
	}

	s.archiveUpload(ctx, fileName, raw)

	rows, err := s.parse(fileName, raw)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: 文件为空", ErrValidation)
	}

	colIndex, err := headerIndex(rows[0])
	if err != nil {
		return nil, err
	}

	result := &BulkProcessResult{
		ProcessedData: []ProcessedRow{},
		ErrorRows:     []ErrorRow{},
	}
	for i, row := range rows[1:] {
		rowNumber := i + 2
		data := rowData(row, colIndex)

		if isBlankRow(data) {
			continue
		}

		processed, err := s.processRow(ctx, data)
		if err != nil {
			result.ErrorRows = append(result.ErrorRows, ErrorRow{
				RowNumber: rowNumber,
				Data:      data,
				Error:     err.Error(),
			})
			continue
		}
		result.ProcessedData = append(result.ProcessedData, *processed)
	}
	return result, nil
}

// processRow 单行校验 + 参照建档 + 条码生成。任何一步失败整行作废。
func (s *ImportService) processRow(ctx context.Context, data map[string]string) (*ProcessedRow, error) {
	var missing []string
	for _, col := range importColumns {
		if data[col] == "" {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("缺少必填字段: %s", strings.Join(missing, ", "))
	}

	quantity, err1 := parseIntCell(data["quantity"])
	layers, err2 := parseIntCell(data["layers"])
	serial, err3 := parseIntCell(data["serial"])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("quantity/layers/serial 必须是正整数")
	}
	if serial < 1 || serial > 999 {
		return nil, fmt.Errorf("serial 必须在 1-999 之间")
	}
	serialStr := fmt.Sprintf("%03d", serial)
	if err := ValidateRanges(quantity, layers, serialStr); err != nil {
		return nil, err
	}

	brand, err := s.referenceRepo.GetOrCreateBrand(ctx, strings.ToLower(data["brand"]))
	if err != nil {
		return nil, fmt.Errorf("品牌建档失败: %w", err)
	}
	model, err := s.referenceRepo.GetOrCreateModel(ctx, data["model"])
	if err != nil {
		return nil, fmt.Errorf("款式建档失败: %w", err)
	}
	size, err := s.referenceRepo.GetOrCreateSize(ctx, strings.ToLower(data["size"]))
	if err != nil {
		return nil, fmt.Errorf("尺码建档失败: %w", err)
	}
	color, err := s.referenceRepo.GetOrCreateColor(ctx, strings.ToLower(data["color"]))
	if err != nil {
		return nil, fmt.Errorf("颜色建档失败: %w", err)
	}

	return &ProcessedRow{
		Barcode:  GenerateBarcode(brand.BrandID, model.ModelName, size.SizeID, color.ColorID, quantity, layers, serial),
		BrandID:  brand.BrandID,
		ModelID:  model.ModelID,
		SizeID:   size.SizeID,
		ColorID:  color.ColorID,
		Brand:    brand.BrandName,
		Model:    model.ModelName,
		Size:     size.SizeValue,
		Color:    color.ColorName,
		Quantity: quantity,
		Layers:   layers,
		Serial:   serialStr,
	}, nil
}

// SubmitError 提交失败行
type SubmitError struct {
	Barcode string `json:"barcode"`
	Error   string `json:"error"`
}

// BulkSubmitResult 提交结果：成功与重复/失败分列
type BulkSubmitResult struct {
	Created    []repository.BatchRow `json:"created"`
	Duplicates []string              `json:"duplicates"`
	Errors     []SubmitError         `json:"errors"`
}

// Submit 落库预览行。重复条码收集而非中断，其余行照常创建。
func (s *ImportService) Submit(ctx context.Context, rows []ProcessedRow) (*BulkSubmitResult, error) {
	result := &BulkSubmitResult{
		Created:    []repository.BatchRow{},
		Duplicates: []string{},
		Errors:     []SubmitError{},
	}
	for _, row := range rows {
		created, err := s.batchService.Create(ctx, CreateBatchRequest{
			Barcode:  row.Barcode,
			BrandID:  row.BrandID,
			ModelID:  row.ModelID,
			SizeID:   row.SizeID,
			ColorID:  row.ColorID,
			Quantity: row.Quantity,
			Layers:   row.Layers,
			Serial:   row.Serial,
		})
		if err != nil {
			if errors.Is(err, ErrBarcodeConflict) {
				result.Duplicates = append(result.Duplicates, row.Barcode)
			} else {
				result.Errors = append(result.Errors, SubmitError{Barcode: row.Barcode, Error: err.Error()})
			}
			continue
		}
		result.Created = append(result.Created, *created)
	}
	return result, nil
}

// archiveUpload 原始上传归档到 MinIO，失败只记日志
func (s *ImportService) archiveUpload(ctx context.Context, fileName string, raw []byte) {
	if s.minioClient == nil {
		return
	}
	objectName := fmt.Sprintf("bulk-imports/%s/%s", time.Now().Format("2006/01/02"), fileName)
	_, err := s.minioClient.PutObject(ctx, s.bucket, objectName, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		s.logger.Warn("archive bulk upload failed",
			zap.String("object", objectName), zap.Error(err))
	}
}

// parse 按扩展名选择解析器。CSV 非 UTF-8 时按 GBK 解码。
func (s *ImportService) parse(fileName string, raw []byte) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		data := raw
		if !utf8.Valid(data) {
			decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), simplifiedchinese.GBK.NewDecoder()))
			if err != nil {
				return nil, fmt.Errorf("%w: CSV 编码无法识别", ErrValidation)
			}
			data = decoded
		}
		r := csv.NewReader(bytes.NewReader(data))
		r.FieldsPerRecord = -1
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("%w: CSV 解析失败: %v", ErrValidation, err)
		}
		return rows, nil
	case ".xlsx", ".xls":
		f, err := excelize.OpenReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: Excel 解析失败: %v", ErrValidation, err)
		}
		defer f.Close()
		rows, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("%w: 读取工作表失败: %v", ErrValidation, err)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("%w: 不支持的文件格式，请上传 xlsx 或 csv", ErrValidation)
	}
}

// headerIndex 表头列名定位，缺列直接整体失败
func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, col := range importColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: 缺少必填列: %s", ErrValidation, strings.Join(missing, ", "))
	}
	return index, nil
}

func rowData(row []string, colIndex map[string]int) map[string]string {
	data := make(map[string]string, len(importColumns))
	for _, col := range importColumns {
		i := colIndex[col]
		if i < len(row) {
			data[col] = strings.TrimSpace(row[i])
		} else {
			data[col] = ""
		}
	}
	return data
}

func isBlankRow(data map[string]string) bool {
	for _, v := range data {
		if v != "" {
			return false
		}
	}
	return true
}

// parseIntCell 兼容电子表格导出的 "5.0" 形式
func parseIntCell(value string) (int, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	n := int(f)
	if float64(n) != f || n <= 0 {
		return 0, fmt.Errorf("not a positive integer: %s", value)
	}
	return n, nil
}

// GenerateBarcode 条码格式：base36 编码的各维ID与数量，段间连字符。
// 款式名先取 MD5 再 base36，截2位大写。
func GenerateBarcode(brandID uint, modelName string, sizeID, colorID uint, quantity, layers, serial int) string {
	segments := []string{
		strconv.FormatInt(int64(brandID), 36),
		encodeModelName(modelName),
		strconv.FormatInt(int64(sizeID), 36),
		strconv.FormatInt(int64(colorID), 36),
		strconv.FormatInt(int64(quantity), 36),
		strconv.FormatInt(int64(layers), 36),
		strconv.FormatInt(int64(serial), 36),
	}
	return strings.Join(segments, "-")
}

func encodeModelName(modelName string) string {
	sum := md5.Sum([]byte(modelName))
	encoded := new(big.Int).SetBytes(sum[:]).Text(36)
	if len(encoded) > 2 {
		encoded = encoded[:2]
	}
	return strings.ToUpper(encoded)
}
