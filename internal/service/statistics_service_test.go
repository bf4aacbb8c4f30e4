package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yousufaayman/barcode-manage-cpc/internal/entity"
	"github.com/yousufaayman/barcode-manage-cpc/internal/testutil"
)

func setupStatsTest(t *testing.T) (*StatisticsService, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc := NewStatisticsService(db, nil, zap.NewNop())
	return svc, db
}

func seedStatsBatch(t *testing.T, db *gorm.DB, barcode string, phase int, status string, quantity int) *entity.Batch {
	t.Helper()
	brand, model, size, color := testutil.SeedReference(t, db)
	batch := &entity.Batch{
		Barcode:      barcode,
		BrandID:      brand.BrandID,
		ModelID:      model.ModelID,
		SizeID:       size.SizeID,
		ColorID:      color.ColorID,
		Quantity:     quantity,
		Layers:       3,
		Serial:       "001",
		CurrentPhase: phase,
		Status:       status,
	}
	if err := db.Create(batch).Error; err != nil {
		t.Fatalf("Seed batch failed: %v", err)
	}
	return batch
}

func seedClosedEntry(t *testing.T, db *gorm.DB, batchID uint, phase int, status string, minutes int) {
	t.Helper()
	start := time.Now().Add(-time.Duration(minutes+1) * time.Minute)
	end := start.Add(time.Duration(minutes) * time.Minute)
	entry := &entity.BarcodeStatusTimeline{
		BatchID:         batchID,
		PhaseID:         phase,
		Status:          status,
		StartTime:       start,
		EndTime:         &end,
		DurationMinutes: &minutes,
	}
	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("Seed timeline entry failed: %v", err)
	}
}

// 同一批次重复进出某阶段时先批内求和、再跨批次平均：
// 批次A裁剪 10+15=25 分钟，批次B裁剪 20 分钟，均值应为 22.5 而非 15。
func TestTurnoverTwoLevelAggregation(t *testing.T) {
	svc, db := setupStatsTest(t)
	a := seedStatsBatch(t, db, "stats-a", entity.PhaseCutting, entity.StatusInProgress, 10)
	b := seedStatsBatch(t, db, "stats-b", entity.PhaseCutting, entity.StatusInProgress, 10)

	seedClosedEntry(t, db, a.BatchID, entity.PhaseCutting, entity.StatusInProgress, 10)
	seedClosedEntry(t, db, a.BatchID, entity.PhaseCutting, entity.StatusInProgress, 15)
	seedClosedEntry(t, db, b.BatchID, entity.PhaseCutting, entity.StatusInProgress, 20)

	resp, err := svc.Advanced(context.Background())
	if err != nil {
		t.Fatalf("Advanced failed: %v", err)
	}
	if len(resp.TurnoverRateByPhase) != 1 {
		t.Fatalf("Expected 1 phase average, got %d", len(resp.TurnoverRateByPhase))
	}
	got := resp.TurnoverRateByPhase[0]
	if got.PhaseID != entity.PhaseCutting {
		t.Errorf("Expected cutting phase, got %d", got.PhaseID)
	}
	if got.AverageMinutes != 22.5 {
		t.Errorf("Expected average 22.5, got %v", got.AverageMinutes)
	}
}

func TestSlowestFastestBottleneck(t *testing.T) {
	svc, db := setupStatsTest(t)
	a := seedStatsBatch(t, db, "sf-a", entity.PhaseSewing, entity.StatusInProgress, 10)

	seedClosedEntry(t, db, a.BatchID, entity.PhaseCutting, entity.StatusInProgress, 10)
	seedClosedEntry(t, db, a.BatchID, entity.PhaseSewing, entity.StatusInProgress, 45)

	resp, err := svc.Advanced(context.Background())
	if err != nil {
		t.Fatalf("Advanced failed: %v", err)
	}
	if resp.SlowestPhase == nil || resp.SlowestPhase.PhaseID != entity.PhaseSewing {
		t.Errorf("Expected sewing as slowest, got %+v", resp.SlowestPhase)
	}
	if resp.FastestPhase == nil || resp.FastestPhase.PhaseID != entity.PhaseCutting {
		t.Errorf("Expected cutting as fastest, got %+v", resp.FastestPhase)
	}
	// 瓶颈即最慢阶段
	if resp.BottleneckPhase == nil || resp.BottleneckPhase.PhaseID != entity.PhaseSewing {
		t.Errorf("Expected sewing as bottleneck, got %+v", resp.BottleneckPhase)
	}
}

// 等待/加工极值按单状态限定且不折叠 (批次,阶段) 组合
func TestPendingInProgressExtremes(t *testing.T) {
	svc, db := setupStatsTest(t)
	a := seedStatsBatch(t, db, "ext-a", entity.PhaseCutting, entity.StatusPending, 10)
	b := seedStatsBatch(t, db, "ext-b", entity.PhaseCutting, entity.StatusPending, 10)

	seedClosedEntry(t, db, a.BatchID, entity.PhaseCutting, entity.StatusPending, 30)
	seedClosedEntry(t, db, b.BatchID, entity.PhaseCutting, entity.StatusPending, 5)
	seedClosedEntry(t, db, a.BatchID, entity.PhaseSewing, entity.StatusInProgress, 12)

	resp, err := svc.Advanced(context.Background())
	if err != nil {
		t.Fatalf("Advanced failed: %v", err)
	}
	if resp.MostTimePending == nil || resp.MostTimePending.BatchID != a.BatchID || resp.MostTimePending.TotalMinutes != 30 {
		t.Errorf("MostTimePending mismatch: %+v", resp.MostTimePending)
	}
	if resp.LeastTimePending == nil || resp.LeastTimePending.BatchID != b.BatchID || resp.LeastTimePending.TotalMinutes != 5 {
		t.Errorf("LeastTimePending mismatch: %+v", resp.LeastTimePending)
	}
	if resp.MostTimeInProgress == nil || resp.MostTimeInProgress.TotalMinutes != 12 {
		t.Errorf("MostTimeInProgress mismatch: %+v", resp.MostTimeInProgress)
	}
	if resp.MostTimePending.Barcode != "ext-a" {
		t.Errorf("Extreme should carry barcode, got %q", resp.MostTimePending.Barcode)
	}
}

// 模糊组合也要列出：每个款式 × 全部三个阶段，无批次计0
func TestWIPCrossProductZeroFill(t *testing.T) {
	svc, db := setupStatsTest(t)
	seedStatsBatch(t, db, "wip-a", entity.PhaseCutting, entity.StatusPending, 10)

	resp, err := svc.Advanced(context.Background())
	if err != nil {
		t.Fatalf("Advanced failed: %v", err)
	}
	// 1 个款式 × 3 阶段
	if len(resp.WIPByModelPhase) != 3 {
		t.Fatalf("Expected 3 model-phase rows, got %d", len(resp.WIPByModelPhase))
	}
	var cutting, sewing int64 = -1, -1
	for _, row := range resp.WIPByModelPhase {
		switch row.PhaseID {
		case entity.PhaseCutting:
			cutting = row.Count
		case entity.PhaseSewing:
			sewing = row.Count
		}
	}
	if cutting != 1 {
		t.Errorf("Expected cutting count 1, got %d", cutting)
	}
	if sewing != 0 {
		t.Errorf("Expected sewing zero-filled, got %d", sewing)
	}
}

func TestPhaseEntryExitCounts(t *testing.T) {
	svc, db := setupStatsTest(t)
	a := seedStatsBatch(t, db, "flow-a", entity.PhaseSewing, entity.StatusPending, 10)

	seedClosedEntry(t, db, a.BatchID, entity.PhaseCutting, entity.StatusPending, 10)
	seedClosedEntry(t, db, a.BatchID, entity.PhaseCutting, entity.StatusInProgress, 20)
	seedClosedEntry(t, db, a.BatchID, entity.PhaseCutting, entity.StatusCompleted, 0)

	resp, err := svc.Advanced(context.Background())
	if err != nil {
		t.Fatalf("Advanced failed: %v", err)
	}
	var cutting *PhaseFlow
	for i := range resp.PhaseEntryExitCounts {
		if resp.PhaseEntryExitCounts[i].PhaseID == entity.PhaseCutting {
			cutting = &resp.PhaseEntryExitCounts[i]
		}
	}
	if cutting == nil {
		t.Fatal("Missing cutting flow row")
	}
	if cutting.Entries != 3 {
		t.Errorf("Expected 3 entries, got %d", cutting.Entries)
	}
	if cutting.Exits != 1 {
		t.Errorf("Expected 1 exit, got %d", cutting.Exits)
	}
}

func TestAveragePhasesPerBatch(t *testing.T) {
	svc, db := setupStatsTest(t)
	a := seedStatsBatch(t, db, "avg-a", entity.PhaseSewing, entity.StatusPending, 10)
	b := seedStatsBatch(t, db, "avg-b", entity.PhaseCutting, entity.StatusPending, 10)

	// A 到访过两个阶段，B 一个 → 均值 1.5
	seedClosedEntry(t, db, a.BatchID, entity.PhaseCutting, entity.StatusInProgress, 10)
	seedClosedEntry(t, db, a.BatchID, entity.PhaseSewing, entity.StatusInProgress, 10)
	seedClosedEntry(t, db, b.BatchID, entity.PhaseCutting, entity.StatusInProgress, 10)

	resp, err := svc.Advanced(context.Background())
	if err != nil {
		t.Fatalf("Advanced failed: %v", err)
	}
	if resp.AveragePhasesPerBatch != 1.5 {
		t.Errorf("Expected 1.5 phases per batch, got %v", resp.AveragePhasesPerBatch)
	}
}

func TestOverviewAndByPhase(t *testing.T) {
	svc, db := setupStatsTest(t)
	seedStatsBatch(t, db, "ov-a", entity.PhaseCutting, entity.StatusPending, 10)
	seedStatsBatch(t, db, "ov-b", entity.PhaseSewing, entity.StatusInProgress, 10)
	seedStatsBatch(t, db, "ov-c", entity.PhasePackaging, entity.StatusCompleted, 10)

	ctx := context.Background()
	overview, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if overview.TotalBatches != 3 || overview.InProduction != 2 || overview.Completed != 1 {
		t.Errorf("Overview mismatch: %+v", overview)
	}

	byPhase, err := svc.ByPhase(ctx)
	if err != nil {
		t.Fatalf("ByPhase failed: %v", err)
	}
	if byPhase.Cutting.Pending != 1 {
		t.Errorf("Expected 1 pending in cutting, got %d", byPhase.Cutting.Pending)
	}
	if byPhase.Sewing.InProgress != 1 {
		t.Errorf("Expected 1 in-progress in sewing, got %d", byPhase.Sewing.InProgress)
	}
	if byPhase.Packaging.Completed != 1 {
		t.Errorf("Expected 1 completed in packaging, got %d", byPhase.Packaging.Completed)
	}
}

// 空库时各报表降级为空值而非报错
func TestAdvancedEmptyDatabase(t *testing.T) {
	svc, _ := setupStatsTest(t)
	resp, err := svc.Advanced(context.Background())
	if err != nil {
		t.Fatalf("Advanced on empty db failed: %v", err)
	}
	if len(resp.TurnoverRateByPhase) != 0 {
		t.Errorf("Expected empty turnover, got %v", resp.TurnoverRateByPhase)
	}
	if resp.SlowestPhase != nil || resp.MostTimePending != nil {
		t.Error("Expected nil extremes on empty db")
	}
	if resp.AverageBatchSize != 0 || resp.AveragePhasesPerBatch != 0 {
		t.Error("Expected zero averages on empty db")
	}
}
