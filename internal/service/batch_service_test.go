package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yousufaayman/barcode-manage-cpc/internal/entity"
	"github.com/yousufaayman/barcode-manage-cpc/internal/repository"
	"github.com/yousufaayman/barcode-manage-cpc/internal/testutil"
)

func setupBatchTest(t *testing.T) (*BatchService, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewBatchService(repos.Batch, repos.Timeline, db, nil, zap.NewNop())
	return svc, db
}

func createTestBatch(t *testing.T, svc *BatchService, db *gorm.DB, barcode string) *repository.BatchRow {
	t.Helper()
	brand, model, size, color := testutil.SeedReference(t, db)
	row, err := svc.Create(context.Background(), CreateBatchRequest{
		Barcode:  barcode,
		BrandID:  brand.BrandID,
		ModelID:  model.ModelID,
		SizeID:   size.SizeID,
		ColorID:  color.ColorID,
		Quantity: 25,
		Layers:   5,
		Serial:   "001",
	})
	if err != nil {
		t.Fatalf("Create batch failed: %v", err)
	}
	return row
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestBatchCreateOpensInitialEntry(t *testing.T) {
	svc, db := setupBatchTest(t)
	row := createTestBatch(t, svc, db, "1-AB-1-1-p-5-1")

	if row.CurrentPhase != entity.PhaseCutting {
		t.Errorf("Expected initial phase %d, got %d", entity.PhaseCutting, row.CurrentPhase)
	}
	if row.Status != entity.StatusPending {
		t.Errorf("Expected initial status %q, got %q", entity.StatusPending, row.Status)
	}

	entries, err := svc.Timeline(context.Background(), row.BatchID)
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 timeline entry, got %d", len(entries))
	}
	if entries[0].EndTime != nil {
		t.Error("Initial entry should be open")
	}
	if entries[0].PhaseID != entity.PhaseCutting || entries[0].Status != entity.StatusPending {
		t.Errorf("Initial entry mismatch: phase=%d status=%q", entries[0].PhaseID, entries[0].Status)
	}
}

func TestBatchCreateDuplicateBarcode(t *testing.T) {
	svc, db := setupBatchTest(t)
	row := createTestBatch(t, svc, db, "dup-barcode")

	_, err := svc.Create(context.Background(), CreateBatchRequest{
		Barcode:  "dup-barcode",
		BrandID:  row.BrandID,
		ModelID:  row.ModelID,
		SizeID:   row.SizeID,
		ColorID:  row.ColorID,
		Quantity: 10,
		Layers:   2,
		Serial:   "002",
	})
	if !errors.Is(err, ErrBarcodeConflict) {
		t.Fatalf("Expected ErrBarcodeConflict, got %v", err)
	}
}

func TestBatchCreateValidation(t *testing.T) {
	svc, db := setupBatchTest(t)
	brand, model, size, color := testutil.SeedReference(t, db)

	cases := []struct {
		name     string
		quantity int
		layers   int
		serial   string
	}{
		{"quantity zero", 0, 5, "001"},
		{"quantity too large", 1000, 5, "001"},
		{"layers too large", 10, 100, "001"},
		{"serial not padded", 10, 5, "1"},
		{"serial non numeric", 10, 5, "0a1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), CreateBatchRequest{
				Barcode:  "v-" + tc.name,
				BrandID:  brand.BrandID,
				ModelID:  model.ModelID,
				SizeID:   size.SizeID,
				ColorID:  color.ColorID,
				Quantity: tc.quantity,
				Layers:   tc.layers,
				Serial:   tc.serial,
			})
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestBatchManualTransition(t *testing.T) {
	svc, db := setupBatchTest(t)
	row := createTestBatch(t, svc, db, "transition-1")
	ctx := context.Background()

	updated, err := svc.Update(ctx, row.BatchID, UpdateBatchRequest{
		Status: strPtr(entity.StatusInProgress),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != entity.StatusInProgress {
		t.Errorf("Expected status In Progress, got %q", updated.Status)
	}
	// 阶段未请求时保持不变
	if updated.CurrentPhase != entity.PhaseCutting {
		t.Errorf("Phase should stay at %d, got %d", entity.PhaseCutting, updated.CurrentPhase)
	}

	entries, err := svc.Timeline(ctx, row.BatchID)
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 timeline entries, got %d", len(entries))
	}
	first, second := entries[0], entries[1]
	if first.EndTime == nil {
		t.Fatal("First entry should be closed")
	}
	if first.DurationMinutes == nil {
		t.Fatal("Closed entry should carry a duration")
	}
	// 同一时刻关旧开新，向下取整后时长为0也是合法值
	if *first.DurationMinutes != 0 {
		t.Errorf("Expected duration 0, got %d", *first.DurationMinutes)
	}
	// 关闭的区间保留开启时的 (阶段,状态)
	if first.PhaseID != entity.PhaseCutting || first.Status != entity.StatusPending {
		t.Errorf("Closed entry mutated: phase=%d status=%q", first.PhaseID, first.Status)
	}
	if second.EndTime != nil {
		t.Error("Second entry should be open")
	}
	if second.Status != entity.StatusInProgress {
		t.Errorf("Open entry status mismatch: %q", second.Status)
	}
}

func TestBatchTerminalNoOp(t *testing.T) {
	svc, db := setupBatchTest(t)
	row := createTestBatch(t, svc, db, "terminal-1")
	ctx := context.Background()

	// 推进到终态 (Packaging, Completed)
	if _, err := svc.Update(ctx, row.BatchID, UpdateBatchRequest{
		CurrentPhase: intPtr(entity.PhasePackaging),
		Status:       strPtr(entity.StatusCompleted),
	}); err != nil {
		t.Fatalf("Update to terminal failed: %v", err)
	}
	before, _ := svc.Timeline(ctx, row.BatchID)

	// 重复提交同一终态，不产生新区间
	updated, err := svc.Update(ctx, row.BatchID, UpdateBatchRequest{
		CurrentPhase: intPtr(entity.PhasePackaging),
		Status:       strPtr(entity.StatusCompleted),
	})
	if err != nil {
		t.Fatalf("Terminal no-op update failed: %v", err)
	}
	if updated.CurrentPhase != entity.PhasePackaging || updated.Status != entity.StatusCompleted {
		t.Errorf("Terminal state changed: phase=%d status=%q", updated.CurrentPhase, updated.Status)
	}

	after, _ := svc.Timeline(ctx, row.BatchID)
	if len(after) != len(before) {
		t.Errorf("No-op update grew timeline: %d -> %d", len(before), len(after))
	}
}

func TestBatchPhaseBackwards(t *testing.T) {
	svc, db := setupBatchTest(t)
	row := createTestBatch(t, svc, db, "backwards-1")
	ctx := context.Background()

	if _, err := svc.Update(ctx, row.BatchID, UpdateBatchRequest{
		CurrentPhase: intPtr(entity.PhaseSewing),
	}); err != nil {
		t.Fatalf("Advance to sewing failed: %v", err)
	}

	_, err := svc.Update(ctx, row.BatchID, UpdateBatchRequest{
		CurrentPhase: intPtr(entity.PhaseCutting),
	})
	if !errors.Is(err, ErrPhaseBackwards) {
		t.Fatalf("Expected ErrPhaseBackwards, got %v", err)
	}
}

func TestBatchUpdateByBarcode(t *testing.T) {
	svc, db := setupBatchTest(t)
	createTestBatch(t, svc, db, "by-barcode-1")

	updated, err := svc.UpdateByBarcode(context.Background(), "by-barcode-1", UpdateBatchRequest{
		Status: strPtr(entity.StatusInProgress),
	})
	if err != nil {
		t.Fatalf("UpdateByBarcode failed: %v", err)
	}
	if updated.Status != entity.StatusInProgress {
		t.Errorf("Expected In Progress, got %q", updated.Status)
	}

	_, err = svc.UpdateByBarcode(context.Background(), "no-such-barcode", UpdateBatchRequest{
		Status: strPtr(entity.StatusInProgress),
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestBatchArchiveRecoverRoundTrip(t *testing.T) {
	svc, db := setupBatchTest(t)
	row := createTestBatch(t, svc, db, "round-trip-1")
	ctx := context.Background()

	if _, err := svc.Update(ctx, row.BatchID, UpdateBatchRequest{
		CurrentPhase: intPtr(entity.PhaseSewing),
		Status:       strPtr(entity.StatusInProgress),
	}); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	if err := svc.Archive(ctx, row.BatchID); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	// 活跃表查不到
	if _, err := svc.Get(ctx, row.BatchID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Archived batch still active, err=%v", err)
	}
	// 归档后无在途区间
	entries, err := svc.Timeline(ctx, row.BatchID)
	if err != nil {
		t.Fatalf("Timeline of archived batch failed: %v", err)
	}
	for _, e := range entries {
		if e.EndTime == nil {
			t.Error("Archive left an open timeline entry")
		}
	}

	if err := svc.Recover(ctx, row.BatchID); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	recovered, err := svc.Get(ctx, row.BatchID)
	if err != nil {
		t.Fatalf("Get after recover failed: %v", err)
	}
	if recovered.BatchID != row.BatchID {
		t.Errorf("batch_id changed across round trip: %d -> %d", row.BatchID, recovered.BatchID)
	}
	if recovered.Barcode != row.Barcode ||
		recovered.Quantity != row.Quantity ||
		recovered.Layers != row.Layers ||
		recovered.Serial != row.Serial {
		t.Error("Recovered batch fields differ from original")
	}
	if recovered.CurrentPhase != entity.PhaseSewing || recovered.Status != entity.StatusInProgress {
		t.Errorf("Workflow position lost: phase=%d status=%q", recovered.CurrentPhase, recovered.Status)
	}

	// 恢复后重新开启在途区间
	entries, _ = svc.Timeline(ctx, row.BatchID)
	open := 0
	for _, e := range entries {
		if e.EndTime == nil {
			open++
		}
	}
	if open != 1 {
		t.Errorf("Expected exactly 1 open entry after recover, got %d", open)
	}
}

func TestBatchRecoverBarcodeConflict(t *testing.T) {
	svc, db := setupBatchTest(t)
	row := createTestBatch(t, svc, db, "conflict-1")
	ctx := context.Background()

	if err := svc.Archive(ctx, row.BatchID); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	// 同条码的新批次占位
	brand, model, size, color := testutil.SeedReference(t, db)
	if _, err := svc.Create(ctx, CreateBatchRequest{
		Barcode:  "conflict-1",
		BrandID:  brand.BrandID,
		ModelID:  model.ModelID,
		SizeID:   size.SizeID,
		ColorID:  color.ColorID,
		Quantity: 5,
		Layers:   1,
		Serial:   "009",
	}); err != nil {
		t.Fatalf("Create occupying batch failed: %v", err)
	}

	if err := svc.Recover(ctx, row.BatchID); !errors.Is(err, ErrBarcodeConflict) {
		t.Fatalf("Expected ErrBarcodeConflict, got %v", err)
	}
	// 冲突时归档行保持原样
	var archivedCount int64
	db.Model(&entity.ArchivedBatch{}).Where("batch_id = ?", row.BatchID).Count(&archivedCount)
	if archivedCount != 1 {
		t.Errorf("Archived row lost on failed recover, count=%d", archivedCount)
	}
}

func TestBatchBulkArchivePartialErrors(t *testing.T) {
	svc, db := setupBatchTest(t)
	row := createTestBatch(t, svc, db, "bulk-1")

	result := svc.ArchiveBulk(context.Background(), []uint{row.BatchID, 999999})
	if len(result.Succeeded) != 1 || result.Succeeded[0] != row.BatchID {
		t.Errorf("Expected 1 success for %d, got %v", row.BatchID, result.Succeeded)
	}
	if len(result.Failed) != 1 || result.Failed[0].BatchID != 999999 {
		t.Errorf("Expected 1 failure for 999999, got %v", result.Failed)
	}
}

func TestBatchDeleteCascadesTimeline(t *testing.T) {
	svc, db := setupBatchTest(t)
	row := createTestBatch(t, svc, db, "delete-1")
	ctx := context.Background()

	if _, err := svc.Delete(ctx, row.BatchID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	var count int64
	db.Model(&entity.BarcodeStatusTimeline{}).Where("batch_id = ?", row.BatchID).Count(&count)
	if count != 0 {
		t.Errorf("Expected timeline cascade on delete, %d rows remain", count)
	}
}

func TestBatchListFilters(t *testing.T) {
	svc, db := setupBatchTest(t)
	ctx := context.Background()
	brand, model, size, color := testutil.SeedReference(t, db)
	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, CreateBatchRequest{
			Barcode:  fmt.Sprintf("list-%d", i),
			BrandID:  brand.BrandID,
			ModelID:  model.ModelID,
			SizeID:   size.SizeID,
			ColorID:  color.ColorID,
			Quantity: 10 + i,
			Layers:   2,
			Serial:   fmt.Sprintf("%03d", i+1),
		}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	items, total, err := svc.List(ctx, repository.BatchListParams{
		Barcode: "list-",
		Limit:   2,
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected total 3, got %d", total)
	}
	if len(items) != 2 {
		t.Errorf("Expected 2 items on page, got %d", len(items))
	}

	// 品牌模糊过滤
	_, total, err = svc.List(ctx, repository.BatchListParams{
		Brand: brand.BrandName[:5],
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("List by brand failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected brand filter to match 3, got %d", total)
	}
}

func TestDurationFloor(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		seconds int
		want    int
	}{
		{0, 0},
		{59, 0},
		{60, 1},
		{119, 1},
		{3600, 60},
	}
	for _, tc := range cases {
		got := entity.DurationOf(start, start.Add(time.Duration(tc.seconds)*time.Second))
		if got != tc.want {
			t.Errorf("DurationOf(%ds) = %d, want %d", tc.seconds, got, tc.want)
		}
	}
}

// 没有未关闭区间时 close 为幂等空操作，不报错也不产生新记录
func TestTimelineCloseIdempotent(t *testing.T) {
	svc, db := setupBatchTest(t)
	row := createTestBatch(t, svc, db, "close-twice")
	timelineRepo := repository.NewTimelineRepository(db)

	now := time.Now()
	closed, err := timelineRepo.Close(context.Background(), row.BatchID, now)
	if err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if closed == nil || closed.DurationMinutes == nil {
		t.Fatal("First close should settle the open entry")
	}

	closed, err = timelineRepo.Close(context.Background(), row.BatchID, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Second close should be a no-op, got error: %v", err)
	}
	if closed != nil {
		t.Errorf("Second close should return nil entry, got %+v", closed)
	}

	entries, err := svc.Timeline(context.Background(), row.BatchID)
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 entry after double close, got %d", len(entries))
	}
	if entries[0].EndTime == nil {
		t.Error("Entry should stay closed")
	}
}

// 单批次时长统计：已关闭区间按 (阶段,状态) 求和，未关闭区间不计入
func TestBatchTimelineStatsSumsClosedEntries(t *testing.T) {
	svc, db := setupBatchTest(t)
	batch := seedStatsBatch(t, db, "stats-per-batch", entity.PhaseSewing, entity.StatusInProgress, 25)
	other := seedStatsBatch(t, db, "stats-other", entity.PhaseCutting, entity.StatusPending, 10)

	seedClosedEntry(t, db, batch.BatchID, entity.PhaseCutting, entity.StatusPending, 30)
	seedClosedEntry(t, db, batch.BatchID, entity.PhaseCutting, entity.StatusPending, 15)
	seedClosedEntry(t, db, batch.BatchID, entity.PhaseCutting, entity.StatusInProgress, 20)
	seedClosedEntry(t, db, batch.BatchID, entity.PhaseSewing, entity.StatusPending, 10)
	seedClosedEntry(t, db, other.BatchID, entity.PhaseCutting, entity.StatusPending, 99)

	// 未关闭区间
	if _, err := repository.NewTimelineRepository(db).Open(
		context.Background(), batch.BatchID, entity.PhaseSewing, entity.StatusInProgress, time.Now()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	stats, err := svc.TimelineStats(context.Background(), batch.BatchID)
	if err != nil {
		t.Fatalf("TimelineStats failed: %v", err)
	}
	if got := stats[entity.PhaseCutting][entity.StatusPending]; got != 45 {
		t.Errorf("Cutting/Pending = %d, want 45", got)
	}
	if got := stats[entity.PhaseCutting][entity.StatusInProgress]; got != 20 {
		t.Errorf("Cutting/In Progress = %d, want 20", got)
	}
	if got := stats[entity.PhaseSewing][entity.StatusPending]; got != 10 {
		t.Errorf("Sewing/Pending = %d, want 10", got)
	}
	if got := stats[entity.PhaseSewing][entity.StatusInProgress]; got != 0 {
		t.Errorf("Open entry must not be counted, got %d", got)
	}
}
