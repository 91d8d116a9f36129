package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile verifies stock levels against the adjustment ledger.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskStockAlertScan looks for items at or below their low-stock threshold.
	TaskStockAlertScan = "ledger:stock_alert_scan"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
)

// LedgerReconcilePayload narrows the reconciliation scan. Empty fields scan
// everything.
type LedgerReconcilePayload struct {
	StoreID string `json:"storeId,omitempty"`
	ItemID  string `json:"itemId,omitempty"`
}

// NewLedgerReconcileTask constructs an Asynq task.
func NewLedgerReconcileTask(payload LedgerReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, data), nil
}

// StockAlertScanPayload narrows the low-stock scan to one store when set.
type StockAlertScanPayload struct {
	StoreID string `json:"storeId,omitempty"`
}

// NewStockAlertScanTask constructs an Asynq task.
func NewStockAlertScanTask(payload StockAlertScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockAlertScan, data), nil
}

// IdempotencyCleanupPayload is empty; retention comes from worker config.
type IdempotencyCleanupPayload struct{}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask() (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
