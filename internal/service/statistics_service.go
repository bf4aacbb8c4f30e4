package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yousufaayman/barcode-manage-cpc/internal/entity"
)

// advancedStatsCacheKey Redis 缓存键
const advancedStatsCacheKey = "stats:advanced"

// advancedStatsCacheTTL 报表缓存时长
const advancedStatsCacheTTL = 60 * time.Second

// StatisticsService 统计聚合引擎。全部报表由同一个基础物料驱动：
// 已关闭区间先按批次求和、再跨批次求平均（两级聚合），
// 避免重复进出某阶段的批次把该阶段的均值拉偏。
// 单个报表查询失败只记日志并降级为空值，不拖垮整张看板。
type StatisticsService struct {
	db     *gorm.DB
	rdb    *redis.Client
	logger *zap.Logger
}

func NewStatisticsService(db *gorm.DB, rdb *redis.Client, logger *zap.Logger) *StatisticsService {
	return &StatisticsService{db: db, rdb: rdb, logger: logger}
}

// PhaseAverage 某阶段的批均累计分钟
type PhaseAverage struct {
	PhaseID        int     `json:"phase_id"`
	PhaseName      string  `json:"phase_name"`
	AverageMinutes float64 `json:"average_minutes"`
}

// BatchPhaseExtreme 单个 (批次,阶段) 组合的累计分钟极值
type BatchPhaseExtreme struct {
	BatchID      uint   `json:"batch_id"`
	Barcode      string `json:"barcode"`
	PhaseID      int    `json:"phase_id"`
	PhaseName    string `json:"phase_name"`
	TotalMinutes int64  `json:"total_minutes"`
}

// DailyThroughput 单日完成批次数
type DailyThroughput struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// StatusCount 某状态下的批次数
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// BrandWIP 品牌维度在制分布
type BrandWIP struct {
	BrandName string `json:"brand_name"`
	Status    string `json:"status"`
	Count     int64  `json:"count"`
}

// GroupPhaseWIP 品牌/款式 × 阶段的在制数，零组合也列出
type GroupPhaseWIP struct {
	GroupName string `json:"group_name"`
	PhaseID   int    `json:"phase_id"`
	PhaseName string `json:"phase_name"`
	Count     int64  `json:"count"`
}

// PhaseFlow 阶段进出计数：开启的区间数 vs 以 Completed 状态开启的区间数
type PhaseFlow struct {
	PhaseID   int    `json:"phase_id"`
	PhaseName string `json:"phase_name"`
	Entries   int64  `json:"entries"`
	Exits     int64  `json:"exits"`
}

// AdvancedStatisticsResponse 高级统计组合报表
type AdvancedStatisticsResponse struct {
	TurnoverRateByPhase   []PhaseAverage     `json:"turnover_rate_by_phase"`
	SlowestPhase          *PhaseAverage      `json:"slowest_phase"`
	FastestPhase          *PhaseAverage      `json:"fastest_phase"`
	BottleneckPhase       *PhaseAverage      `json:"bottleneck_phase"`
	MostTimePending       *BatchPhaseExtreme `json:"most_time_pending"`
	LeastTimePending      *BatchPhaseExtreme `json:"least_time_pending"`
	MostTimeInProgress    *BatchPhaseExtreme `json:"most_time_in_progress"`
	LeastTimeInProgress   *BatchPhaseExtreme `json:"least_time_in_progress"`
	BatchThroughput       []DailyThroughput  `json:"batch_throughput"`
	AverageBatchSize      float64            `json:"average_batch_size"`
	StatusDistribution    []StatusCount      `json:"status_distribution"`
	CurrentWIP            []StatusCount      `json:"current_wip"`
	WIPByBrand            []BrandWIP         `json:"wip_by_brand"`
	WIPByBrandPhase       []GroupPhaseWIP    `json:"wip_by_brand_phase"`
	WIPByModelPhase       []GroupPhaseWIP    `json:"wip_by_model_phase"`
	PhaseEntryExitCounts  []PhaseFlow        `json:"phase_entry_exit_counts"`
	AveragePhasesPerBatch float64            `json:"average_phases_per_batch"`
}

var phaseNames = map[int]string{
	entity.PhaseCutting:   "Cutting",
	entity.PhaseSewing:    "Sewing",
	entity.PhasePackaging: "Packaging",
}

// batchPhaseTotal 共享聚合基元的一行：某批次在某阶段的已关闭分钟总和
type batchPhaseTotal struct {
	BatchID      uint
	Barcode      string
	PhaseID      int
	TotalMinutes int64
}

// perBatchPhaseTotals 共享聚合基元：已关闭区间按 (批次,阶段) 求和，
// status 非空时只统计该状态的区间。18个报表里凡是时长类的都从这里派生。
func (s *StatisticsService) perBatchPhaseTotals(ctx context.Context, status string) ([]batchPhaseTotal, error) {
	query := s.db.WithContext(ctx).
		Model(&entity.BarcodeStatusTimeline{}).
		Select(`barcode_status_timeline.batch_id,
			COALESCE(b.barcode, ab.barcode, '') AS barcode,
			barcode_status_timeline.phase_id,
			SUM(barcode_status_timeline.duration_minutes) AS total_minutes`).
		Joins("LEFT JOIN batches b ON b.batch_id = barcode_status_timeline.batch_id").
		Joins("LEFT JOIN archived_batches ab ON ab.batch_id = barcode_status_timeline.batch_id").
		Where("barcode_status_timeline.duration_minutes IS NOT NULL")
	if status != "" {
		query = query.Where("barcode_status_timeline.status = ?", status)
	}

	var rows []batchPhaseTotal
	err := query.
		Group("barcode_status_timeline.batch_id, b.barcode, ab.barcode, barcode_status_timeline.phase_id").
		Scan(&rows).Error
	return rows, err
}

// turnoverByPhase 两级聚合：批内求和已经完成，这里跨批次求平均
func turnoverByPhase(totals []batchPhaseTotal) []PhaseAverage {
	sums := make(map[int]int64)
	counts := make(map[int]int64)
	for _, t := range totals {
		sums[t.PhaseID] += t.TotalMinutes
		counts[t.PhaseID]++
	}

	result := make([]PhaseAverage, 0, len(sums))
	for phaseID := entity.PhaseCutting; phaseID <= entity.PhasePackaging; phaseID++ {
		if counts[phaseID] == 0 {
			continue
		}
		result = append(result, PhaseAverage{
			PhaseID:        phaseID,
			PhaseName:      phaseNames[phaseID],
			AverageMinutes: float64(sums[phaseID]) / float64(counts[phaseID]),
		})
	}
	return result
}

func slowestFastest(averages []PhaseAverage) (slowest, fastest *PhaseAverage) {
	for i := range averages {
		p := averages[i]
		if slowest == nil || p.AverageMinutes > slowest.AverageMinutes {
			slowest = &averages[i]
		}
		if fastest == nil || p.AverageMinutes < fastest.AverageMinutes {
			fastest = &averages[i]
		}
	}
	return slowest, fastest
}

// extremes 单状态限定的 (批次,阶段) 极值，不折叠
func extremes(totals []batchPhaseTotal) (most, least *BatchPhaseExtreme) {
	for _, t := range totals {
		candidate := BatchPhaseExtreme{
			BatchID:      t.BatchID,
			Barcode:      t.Barcode,
			PhaseID:      t.PhaseID,
			PhaseName:    phaseNames[t.PhaseID],
			TotalMinutes: t.TotalMinutes,
		}
		if most == nil || candidate.TotalMinutes > most.TotalMinutes {
			m := candidate
			most = &m
		}
		if least == nil || candidate.TotalMinutes < least.TotalMinutes {
			l := candidate
			least = &l
		}
	}
	return most, least
}

// Advanced 计算组合报表，配置了 Redis 时短期缓存
func (s *StatisticsService) Advanced(ctx context.Context) (*AdvancedStatisticsResponse, error) {
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, advancedStatsCacheKey).Bytes(); err == nil {
			var resp AdvancedStatisticsResponse
			if json.Unmarshal(cached, &resp) == nil {
				return &resp, nil
			}
		}
	}

	resp := &AdvancedStatisticsResponse{
		TurnoverRateByPhase:  []PhaseAverage{},
		BatchThroughput:      []DailyThroughput{},
		StatusDistribution:   []StatusCount{},
		CurrentWIP:           []StatusCount{},
		WIPByBrand:           []BrandWIP{},
		WIPByBrandPhase:      []GroupPhaseWIP{},
		WIPByModelPhase:      []GroupPhaseWIP{},
		PhaseEntryExitCounts: []PhaseFlow{},
	}

	if totals, err := s.perBatchPhaseTotals(ctx, ""); err != nil {
		s.logger.Warn("turnover totals query failed", zap.Error(err))
	} else {
		resp.TurnoverRateByPhase = turnoverByPhase(totals)
		resp.SlowestPhase, resp.FastestPhase = slowestFastest(resp.TurnoverRateByPhase)
		resp.BottleneckPhase = resp.SlowestPhase
	}

	if pending, err := s.perBatchPhaseTotals(ctx, entity.StatusPending); err != nil {
		s.logger.Warn("pending totals query failed", zap.Error(err))
	} else {
		resp.MostTimePending, resp.LeastTimePending = extremes(pending)
	}

	if inProgress, err := s.perBatchPhaseTotals(ctx, entity.StatusInProgress); err != nil {
		s.logger.Warn("in-progress totals query failed", zap.Error(err))
	} else {
		resp.MostTimeInProgress, resp.LeastTimeInProgress = extremes(inProgress)
	}

	resp.BatchThroughput = s.throughput(ctx)
	resp.AverageBatchSize = s.averageBatchSize(ctx)
	resp.StatusDistribution = s.statusCounts(ctx)
	resp.CurrentWIP = resp.StatusDistribution
	resp.WIPByBrand = s.wipByBrand(ctx)
	resp.WIPByBrandPhase = s.wipByGroupPhase(ctx, "brands", "brand_name", "brand_id")
	resp.WIPByModelPhase = s.wipByGroupPhase(ctx, "models", "model_name", "model_id")
	resp.PhaseEntryExitCounts = s.phaseFlow(ctx)
	resp.AveragePhasesPerBatch = s.averagePhasesPerBatch(ctx)

	if s.rdb != nil {
		if payload, err := json.Marshal(resp); err == nil {
			if err := s.rdb.Set(ctx, advancedStatsCacheKey, payload, advancedStatsCacheTTL).Err(); err != nil {
				s.logger.Warn("cache advanced statistics failed", zap.Error(err))
			}
		}
	}

	return resp, nil
}

// throughput 近30天每日完成批次数，按 last_updated_at 归日
func (s *StatisticsService) throughput(ctx context.Context) []DailyThroughput {
	since := time.Now().AddDate(0, 0, -30)
	var rows []DailyThroughput
	err := s.db.WithContext(ctx).
		Model(&entity.Batch{}).
		Select("TO_CHAR(DATE(last_updated_at), 'YYYY-MM-DD') AS date, COUNT(*) AS count").
		Where("status = ? AND last_updated_at >= ?", entity.StatusCompleted, since).
		Group("DATE(last_updated_at)").
		Order("DATE(last_updated_at)").
		Scan(&rows).Error
	if err != nil {
		s.logger.Warn("throughput query failed", zap.Error(err))
		return []DailyThroughput{}
	}
	return rows
}

func (s *StatisticsService) averageBatchSize(ctx context.Context) float64 {
	var avg *float64
	err := s.db.WithContext(ctx).
		Model(&entity.Batch{}).
		Select("AVG(quantity)").
		Scan(&avg).Error
	if err != nil {
		s.logger.Warn("average batch size query failed", zap.Error(err))
		return 0
	}
	if avg == nil {
		return 0
	}
	return *avg
}

func (s *StatisticsService) statusCounts(ctx context.Context) []StatusCount {
	var rows []StatusCount
	err := s.db.WithContext(ctx).
		Model(&entity.Batch{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("status").
		Scan(&rows).Error
	if err != nil {
		s.logger.Warn("status distribution query failed", zap.Error(err))
		return []StatusCount{}
	}
	return rows
}

func (s *StatisticsService) wipByBrand(ctx context.Context) []BrandWIP {
	var rows []BrandWIP
	err := s.db.WithContext(ctx).
		Model(&entity.Batch{}).
		Select("brands.brand_name, batches.status, COUNT(*) AS count").
		Joins("JOIN brands ON batches.brand_id = brands.brand_id").
		Group("brands.brand_name, batches.status").
		Order("brands.brand_name, batches.status").
		Scan(&rows).Error
	if err != nil {
		s.logger.Warn("wip by brand query failed", zap.Error(err))
		return []BrandWIP{}
	}
	return rows
}

// wipByGroupPhase 品牌/款式 × 阶段的在制数交叉表。
// 每个分组名都展开全部三个阶段，没有批次的组合计为0。
func (s *StatisticsService) wipByGroupPhase(ctx context.Context, table, nameCol, idCol string) []GroupPhaseWIP {
	type groupPhaseCount struct {
		GroupName string
		PhaseID   int
		Count     int64
	}
	var counted []groupPhaseCount
	err := s.db.WithContext(ctx).
		Model(&entity.Batch{}).
		Select(table+"."+nameCol+" AS group_name, batches.current_phase AS phase_id, COUNT(*) AS count").
		Joins("JOIN "+table+" ON batches."+idCol+" = "+table+"."+idCol).
		Group(table + "." + nameCol + ", batches.current_phase").
		Scan(&counted).Error
	if err != nil {
		s.logger.Warn("wip cross product query failed", zap.String("table", table), zap.Error(err))
		return []GroupPhaseWIP{}
	}

	var names []string
	if err := s.db.WithContext(ctx).
		Table(table).
		Order(nameCol).
		Pluck(nameCol, &names).Error; err != nil {
		s.logger.Warn("group names query failed", zap.String("table", table), zap.Error(err))
		return []GroupPhaseWIP{}
	}

	byKey := make(map[string]map[int]int64, len(names))
	for _, c := range counted {
		if byKey[c.GroupName] == nil {
			byKey[c.GroupName] = make(map[int]int64)
		}
		byKey[c.GroupName][c.PhaseID] = c.Count
	}

	result := make([]GroupPhaseWIP, 0, len(names)*3)
	for _, name := range names {
		for phaseID := entity.PhaseCutting; phaseID <= entity.PhasePackaging; phaseID++ {
			result = append(result, GroupPhaseWIP{
				GroupName: name,
				PhaseID:   phaseID,
				PhaseName: phaseNames[phaseID],
				Count:     byKey[name][phaseID],
			})
		}
	}
	return result
}

func (s *StatisticsService) phaseFlow(ctx context.Context) []PhaseFlow {
	type flowRow struct {
		PhaseID int
		Entries int64
		Exits   int64
	}
	var rows []flowRow
	err := s.db.WithContext(ctx).
		Model(&entity.BarcodeStatusTimeline{}).
		Select(`phase_id, COUNT(*) AS entries,
			COUNT(*) FILTER (WHERE status = ?) AS exits`, entity.StatusCompleted).
		Group("phase_id").
		Order("phase_id").
		Scan(&rows).Error
	if err != nil {
		s.logger.Warn("phase flow query failed", zap.Error(err))
		return []PhaseFlow{}
	}

	result := make([]PhaseFlow, 0, len(rows))
	for _, row := range rows {
		result = append(result, PhaseFlow{
			PhaseID:   row.PhaseID,
			PhaseName: phaseNames[row.PhaseID],
			Entries:   row.Entries,
			Exits:     row.Exits,
		})
	}
	return result
}

// averagePhasesPerBatch 批均到访过的不同阶段数，衡量返工广度而非时长
func (s *StatisticsService) averagePhasesPerBatch(ctx context.Context) float64 {
	var avg *float64
	err := s.db.WithContext(ctx).
		Raw(`SELECT AVG(phase_count) FROM (
			SELECT batch_id, COUNT(DISTINCT phase_id) AS phase_count
			FROM barcode_status_timeline
			GROUP BY batch_id
		) per_batch`).
		Scan(&avg).Error
	if err != nil {
		s.logger.Warn("average phases per batch query failed", zap.Error(err))
		return 0
	}
	if avg == nil {
		return 0
	}
	return *avg
}

// BatchStats 批次总量概览
type BatchStats struct {
	TotalBatches int64 `json:"total_batches"`
	InProduction int64 `json:"in_production"`
	Completed    int64 `json:"completed"`
}

// Overview 批次总量、在产、已完成
func (s *StatisticsService) Overview(ctx context.Context) (*BatchStats, error) {
	var stats BatchStats
	if err := s.db.WithContext(ctx).Model(&entity.Batch{}).
		Count(&stats.TotalBatches).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&entity.Batch{}).
		Where("status IN ?", []string{entity.StatusPending, entity.StatusInProgress}).
		Count(&stats.InProduction).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&entity.Batch{}).
		Where("status = ?", entity.StatusCompleted).
		Count(&stats.Completed).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// PhaseStatusStats 单阶段分状态计数
type PhaseStatusStats struct {
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed,omitempty"`
}

// PhaseStats 分阶段分状态的在制分布
type PhaseStats struct {
	Cutting   PhaseStatusStats `json:"cutting"`
	Sewing    PhaseStatusStats `json:"sewing"`
	Packaging PhaseStatusStats `json:"packaging"`
}

// ByPhase 各阶段分状态批次计数
func (s *StatisticsService) ByPhase(ctx context.Context) (*PhaseStats, error) {
	type phaseStatusCount struct {
		CurrentPhase int
		Status       string
		Count        int64
	}
	var rows []phaseStatusCount
	err := s.db.WithContext(ctx).
		Model(&entity.Batch{}).
		Select("current_phase, status, COUNT(*) AS count").
		Group("current_phase, status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var stats PhaseStats
	pick := func(phaseID int) *PhaseStatusStats {
		switch phaseID {
		case entity.PhaseCutting:
			return &stats.Cutting
		case entity.PhaseSewing:
			return &stats.Sewing
		case entity.PhasePackaging:
			return &stats.Packaging
		}
		return nil
	}
	for _, row := range rows {
		target := pick(row.CurrentPhase)
		if target == nil {
			continue
		}
		switch row.Status {
		case entity.StatusPending:
			target.Pending = row.Count
		case entity.StatusInProgress:
			target.InProgress = row.Count
		case entity.StatusCompleted:
			target.Completed = row.Count
		}
	}
	return &stats, nil
}
