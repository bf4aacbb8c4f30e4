package entity

// 生产阶段ID，固定三段线性流程
const (
	PhaseCutting   = 1
	PhaseSewing    = 2
	PhasePackaging = 3
)

// 批次状态枚举
const (
	StatusPending    = "Pending"
	StatusInProgress = "In Progress"
	StatusCompleted  = "Completed"
)

// ValidStatus 校验状态是否在枚举内
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ValidPhase 校验阶段ID是否在枚举内
func ValidPhase(phaseID int) bool {
	return phaseID >= PhaseCutting && phaseID <= PhasePackaging
}

// Brand 品牌
type Brand struct {
	BrandID   uint   `json:"brand_id" gorm:"primaryKey;autoIncrement"`
	BrandName string `json:"brand_name" gorm:"size:255;not null;uniqueIndex"`
}

func (Brand) TableName() string {
	return "brands"
}

// Model 款式
type Model struct {
	ModelID   uint   `json:"model_id" gorm:"primaryKey;autoIncrement"`
	ModelName string `json:"model_name" gorm:"size:255;not null;uniqueIndex"`
}

func (Model) TableName() string {
	return "models"
}

// Size 尺码
type Size struct {
	SizeID    uint   `json:"size_id" gorm:"primaryKey;autoIncrement"`
	SizeValue string `json:"size_value" gorm:"size:50;not null;uniqueIndex"`
}

func (Size) TableName() string {
	return "sizes"
}

// Color 颜色
type Color struct {
	ColorID   uint   `json:"color_id" gorm:"primaryKey;autoIncrement"`
	ColorName string `json:"color_name" gorm:"size:100;not null;uniqueIndex"`
}

func (Color) TableName() string {
	return "colors"
}

// ProductionPhase 生产阶段，种子数据：1=Cutting 2=Sewing 3=Packaging
type ProductionPhase struct {
	PhaseID   uint   `json:"phase_id" gorm:"primaryKey"`
	PhaseName string `json:"phase_name" gorm:"size:100;not null;uniqueIndex"`
}

func (ProductionPhase) TableName() string {
	return "production_phases"
}
