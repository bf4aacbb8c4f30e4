package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yousufaayman/barcode-manage-cpc/internal/entity"
	"github.com/yousufaayman/barcode-manage-cpc/internal/repository"
	"github.com/yousufaayman/barcode-manage-cpc/internal/testutil"
)

func setupJobOrderTest(t *testing.T) (*JobOrderService, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewJobOrderService(repos.JobOrder, repos.Reference, db, zap.NewNop())
	return svc, db
}

func createTestJobOrder(t *testing.T, svc *JobOrderService, number string, items []JobOrderItemRequest) *entity.JobOrder {
	t.Helper()
	jobOrder, err := svc.CreateWithNames(context.Background(), CreateJobOrderRequest{
		JobOrderNumber: number,
		Model:          "Polo Classic",
		Items:          items,
	})
	if err != nil {
		t.Fatalf("CreateWithNames failed: %v", err)
	}
	return jobOrder
}

// 关联批次并计入产量
func linkBatch(t *testing.T, db *gorm.DB, jobOrder *entity.JobOrder, colorID, sizeID uint, quantity int, barcode string) {
	t.Helper()
	brand := &entity.Brand{BrandName: "jo-brand-" + barcode}
	if err := db.Create(brand).Error; err != nil {
		t.Fatalf("Seed brand failed: %v", err)
	}
	batch := &entity.Batch{
		Barcode:      barcode,
		JobOrderID:   &jobOrder.JobOrderID,
		BrandID:      brand.BrandID,
		ModelID:      jobOrder.ModelID,
		SizeID:       sizeID,
		ColorID:      colorID,
		Quantity:     quantity,
		Layers:       2,
		Serial:       "001",
		CurrentPhase: entity.PhaseCutting,
		Status:       entity.StatusInProgress,
	}
	if err := db.Create(batch).Error; err != nil {
		t.Fatalf("Seed batch failed: %v", err)
	}
}

func TestJobOrderCreateWithNames(t *testing.T) {
	svc, db := setupJobOrderTest(t)
	jobOrder := createTestJobOrder(t, svc, "JO-1001", []JobOrderItemRequest{
		{Color: "Black", Size: "M", Quantity: 100},
		{Color: "Black", Size: "L", Quantity: 50},
	})

	if jobOrder.JobOrderID == 0 {
		t.Fatal("JobOrderID not assigned")
	}
	var itemCount int64
	db.Model(&entity.JobOrderItem{}).Where("job_order_id = ?", jobOrder.JobOrderID).Count(&itemCount)
	if itemCount != 2 {
		t.Errorf("Expected 2 items, got %d", itemCount)
	}
	// 款式即时建档
	var modelCount int64
	db.Table("models").Where("model_name = ?", "Polo Classic").Count(&modelCount)
	if modelCount != 1 {
		t.Errorf("Expected model created, count=%d", modelCount)
	}
}

func TestJobOrderDuplicateNumber(t *testing.T) {
	svc, _ := setupJobOrderTest(t)
	createTestJobOrder(t, svc, "JO-1002", []JobOrderItemRequest{{Color: "Black", Size: "M", Quantity: 10}})

	_, err := svc.CreateWithNames(context.Background(), CreateJobOrderRequest{
		JobOrderNumber: "JO-1002",
		Model:          "Polo Classic",
		Items:          []JobOrderItemRequest{{Color: "Red", Size: "S", Quantity: 5}},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Expected ErrValidation on duplicate number, got %v", err)
	}
}

func TestJobOrderDuplicateItemCombination(t *testing.T) {
	svc, _ := setupJobOrderTest(t)
	_, err := svc.CreateWithNames(context.Background(), CreateJobOrderRequest{
		JobOrderNumber: "JO-1003",
		Model:          "Polo Classic",
		Items: []JobOrderItemRequest{
			{Color: "Black", Size: "M", Quantity: 10},
			{Color: "Black", Size: "M", Quantity: 20},
		},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Expected ErrValidation on duplicate (color,size), got %v", err)
	}
}

func TestJobOrderTracking(t *testing.T) {
	svc, db := setupJobOrderTest(t)
	jobOrder := createTestJobOrder(t, svc, "JO-2001", []JobOrderItemRequest{
		{Color: "Black", Size: "M", Quantity: 100},
		{Color: "White", Size: "L", Quantity: 50},
	})

	items, err := svc.jobOrderRepo.ItemsWithDetails(context.Background(), jobOrder.JobOrderID)
	if err != nil {
		t.Fatalf("ItemsWithDetails failed: %v", err)
	}
	// 第一项产出 100/100，第二项 60/50 超产
	linkBatch(t, db, jobOrder, items[0].ColorID, items[0].SizeID, 40, "jo-b1")
	linkBatch(t, db, jobOrder, items[0].ColorID, items[0].SizeID, 60, "jo-b2")
	linkBatch(t, db, jobOrder, items[1].ColorID, items[1].SizeID, 60, "jo-b3")

	status, err := svc.Tracking(context.Background(), jobOrder.JobOrderID)
	if err != nil {
		t.Fatalf("Tracking failed: %v", err)
	}
	if status.RequiredQuantity != 150 || status.ProducedQuantity != 160 {
		t.Errorf("Totals mismatch: required=%d produced=%d", status.RequiredQuantity, status.ProducedQuantity)
	}
	if len(status.Items) != 2 {
		t.Fatalf("Expected 2 item statuses, got %d", len(status.Items))
	}
	first := status.Items[0]
	if first.ProducedQuantity != 100 || first.Remaining != 0 || first.OverProduced {
		t.Errorf("First item mismatch: %+v", first)
	}
	if first.Status != entity.StatusCompleted {
		t.Errorf("First item status = %q, want Completed", first.Status)
	}
	second := status.Items[1]
	if second.ProducedQuantity != 60 || !second.OverProduced || second.Remaining != 0 {
		t.Errorf("Second item should be over-produced: %+v", second)
	}
	if second.Status != entity.StatusCompleted {
		t.Errorf("Second item status = %q, want Completed", second.Status)
	}
	// 整体按总量分类，超产计为完成
	if status.OverallStatus != entity.StatusCompleted {
		t.Errorf("Expected Completed overall, got %q", status.OverallStatus)
	}
}

func TestJobOrderOverallClassification(t *testing.T) {
	svc, db := setupJobOrderTest(t)

	// 未开工
	pending := createTestJobOrder(t, svc, "JO-3001", []JobOrderItemRequest{{Color: "Black", Size: "M", Quantity: 10}})
	status, err := svc.Tracking(context.Background(), pending.JobOrderID)
	if err != nil {
		t.Fatalf("Tracking failed: %v", err)
	}
	if status.OverallStatus != StatusNotStarted {
		t.Errorf("Expected Not Started, got %q", status.OverallStatus)
	}
	if status.Items[0].Status != StatusNotStarted {
		t.Errorf("Item status = %q, want Not Started", status.Items[0].Status)
	}

	// 在产
	items, _ := svc.jobOrderRepo.ItemsWithDetails(context.Background(), pending.JobOrderID)
	linkBatch(t, db, pending, items[0].ColorID, items[0].SizeID, 4, "jo-c1")
	status, _ = svc.Tracking(context.Background(), pending.JobOrderID)
	if status.OverallStatus != entity.StatusInProgress {
		t.Errorf("Expected In Progress, got %q", status.OverallStatus)
	}

	// 完成
	linkBatch(t, db, pending, items[0].ColorID, items[0].SizeID, 6, "jo-c2")
	status, _ = svc.Tracking(context.Background(), pending.JobOrderID)
	if status.OverallStatus != entity.StatusCompleted {
		t.Errorf("Expected Completed, got %q", status.OverallStatus)
	}
}

// 超产或完成率低于阈值的工单置顶，组内按工单号升序
func TestJobOrderTrackingAllPrioritySort(t *testing.T) {
	svc, db := setupJobOrderTest(t)

	done := createTestJobOrder(t, svc, "JO-A-DONE", []JobOrderItemRequest{{Color: "Black", Size: "M", Quantity: 10}})
	behind := createTestJobOrder(t, svc, "JO-B-BEHIND", []JobOrderItemRequest{{Color: "Red", Size: "L", Quantity: 100}})
	alsoBehind := createTestJobOrder(t, svc, "JO-A-BEHIND", []JobOrderItemRequest{{Color: "Blue", Size: "S", Quantity: 100}})

	doneItems, _ := svc.jobOrderRepo.ItemsWithDetails(context.Background(), done.JobOrderID)
	linkBatch(t, db, done, doneItems[0].ColorID, doneItems[0].SizeID, 10, "jo-p1")
	behindItems, _ := svc.jobOrderRepo.ItemsWithDetails(context.Background(), behind.JobOrderID)
	linkBatch(t, db, behind, behindItems[0].ColorID, behindItems[0].SizeID, 50, "jo-p2")

	statuses, err := svc.TrackingAll(context.Background())
	if err != nil {
		t.Fatalf("TrackingAll failed: %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("Expected 3 statuses, got %d", len(statuses))
	}
	// 两个落后工单置顶，按号排序；完成的排最后
	if statuses[0].JobOrderID != alsoBehind.JobOrderID {
		t.Errorf("Expected JO-A-BEHIND first, got %q", statuses[0].JobOrderNumber)
	}
	if statuses[1].JobOrderID != behind.JobOrderID {
		t.Errorf("Expected JO-B-BEHIND second, got %q", statuses[1].JobOrderNumber)
	}
	if statuses[2].JobOrderID != done.JobOrderID {
		t.Errorf("Expected JO-A-DONE last, got %q", statuses[2].JobOrderNumber)
	}
}

func TestJobOrderDeleteDetachesBatches(t *testing.T) {
	svc, db := setupJobOrderTest(t)
	jobOrder := createTestJobOrder(t, svc, "JO-4001", []JobOrderItemRequest{{Color: "Black", Size: "M", Quantity: 10}})
	items, _ := svc.jobOrderRepo.ItemsWithDetails(context.Background(), jobOrder.JobOrderID)
	linkBatch(t, db, jobOrder, items[0].ColorID, items[0].SizeID, 5, "jo-d1")

	if err := svc.Delete(context.Background(), jobOrder.JobOrderID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// 批次保留但解除关联
	var batch entity.Batch
	if err := db.Where("barcode = ?", "jo-d1").First(&batch).Error; err != nil {
		t.Fatalf("Batch should survive job order deletion: %v", err)
	}
	if batch.JobOrderID != nil {
		t.Error("Batch should be detached from deleted job order")
	}
	var itemCount int64
	db.Model(&entity.JobOrderItem{}).Where("job_order_id = ?", jobOrder.JobOrderID).Count(&itemCount)
	if itemCount != 0 {
		t.Errorf("Items should cascade, %d remain", itemCount)
	}
}

func TestJobOrderOptionsExcludeClosed(t *testing.T) {
	svc, _ := setupJobOrderTest(t)
	open := createTestJobOrder(t, svc, "JO-5001", []JobOrderItemRequest{{Color: "Black", Size: "M", Quantity: 10}})
	closed := createTestJobOrder(t, svc, "JO-5002", []JobOrderItemRequest{{Color: "Red", Size: "L", Quantity: 10}})

	if err := svc.SetClosed(context.Background(), closed.JobOrderID, true); err != nil {
		t.Fatalf("SetClosed failed: %v", err)
	}

	options, err := svc.Options(context.Background())
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	if len(options) != 1 || options[0].JobOrderID != open.JobOrderID {
		t.Errorf("Expected only open job order in options, got %+v", options)
	}
}

// 需求总量为 0 时完成率报 0、状态为未开工，不得除零或误报完成
func TestJobOrderZeroRequiredQuantity(t *testing.T) {
	svc, db := setupJobOrderTest(t)
	jobOrder := createTestJobOrder(t, svc, "JO-6001", []JobOrderItemRequest{{Color: "Black", Size: "M", Quantity: 10}})
	if err := db.Where("job_order_id = ?", jobOrder.JobOrderID).
		Delete(&entity.JobOrderItem{}).Error; err != nil {
		t.Fatalf("Clear items failed: %v", err)
	}

	status, err := svc.Tracking(context.Background(), jobOrder.JobOrderID)
	if err != nil {
		t.Fatalf("Tracking failed: %v", err)
	}
	if status.CompletionRate != 0 {
		t.Errorf("Zero-required completion rate = %v, want 0", status.CompletionRate)
	}
	if status.OverallStatus != StatusNotStarted {
		t.Errorf("Zero-required overall status = %q, want Not Started", status.OverallStatus)
	}
}

// 超产置顶判定用总量比较：单项超产但总量未超且完成率达标的工单不置顶
func TestJobOrderPriorityUsesTotals(t *testing.T) {
	svc, db := setupJobOrderTest(t)
	balanced := createTestJobOrder(t, svc, "JO-7001", []JobOrderItemRequest{
		{Color: "Black", Size: "M", Quantity: 100},
		{Color: "White", Size: "L", Quantity: 100},
	})
	over := createTestJobOrder(t, svc, "JO-7002", []JobOrderItemRequest{{Color: "Red", Size: "S", Quantity: 50}})

	// 第一单：一项超 5、一项差 5，总量 200/200
	items, _ := svc.jobOrderRepo.ItemsWithDetails(context.Background(), balanced.JobOrderID)
	linkBatch(t, db, balanced, items[0].ColorID, items[0].SizeID, 105, "jo-t1")
	linkBatch(t, db, balanced, items[1].ColorID, items[1].SizeID, 95, "jo-t2")
	// 第二单：总量超产 60/50
	overItems, _ := svc.jobOrderRepo.ItemsWithDetails(context.Background(), over.JobOrderID)
	linkBatch(t, db, over, overItems[0].ColorID, overItems[0].SizeID, 60, "jo-t3")

	statuses, err := svc.TrackingAll(context.Background())
	if err != nil {
		t.Fatalf("TrackingAll failed: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].JobOrderID != over.JobOrderID {
		t.Errorf("Total over-production should sort first, got %q", statuses[0].JobOrderNumber)
	}
	if statuses[1].JobOrderID != balanced.JobOrderID {
		t.Errorf("Balanced order should not be priority, got order %q first", statuses[0].JobOrderNumber)
	}
}

func TestJobOrderOverallStatusTotals(t *testing.T) {
	svc, db := setupJobOrderTest(t)
	jobOrder := createTestJobOrder(t, svc, "JO-8001", []JobOrderItemRequest{
		{Color: "Black", Size: "M", Quantity: 60},
		{Color: "White", Size: "L", Quantity: 40},
	})
	items, _ := svc.jobOrderRepo.ItemsWithDetails(context.Background(), jobOrder.JobOrderID)
	linkBatch(t, db, jobOrder, items[0].ColorID, items[0].SizeID, 30, "jo-o1")

	overall, err := svc.OverallStatus(context.Background(), jobOrder.JobOrderID)
	if err != nil {
		t.Fatalf("OverallStatus failed: %v", err)
	}
	if overall.RequiredQuantity != 100 || overall.ProducedQuantity != 30 {
		t.Errorf("Totals mismatch: required=%d produced=%d", overall.RequiredQuantity, overall.ProducedQuantity)
	}
	if overall.CompletionRate != 30 {
		t.Errorf("Completion rate = %v, want 30", overall.CompletionRate)
	}
	if overall.OverallStatus != entity.StatusInProgress {
		t.Errorf("Overall status = %q, want In Progress", overall.OverallStatus)
	}
}
