package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StockAlertScanJob reports active items sitting at or below their effective
// low-stock threshold so store managers can reorder.
type StockAlertScanJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// NewStockAlertScanJob initialises the low-stock scan handler.
func NewStockAlertScanJob(pool *pgxpool.Pool, logger *slog.Logger) *StockAlertScanJob {
	return &StockAlertScanJob{Pool: pool, Logger: logger}
}

// Handle executes the low-stock scan.
func (j *StockAlertScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("stock alert scan: handler not configured")
	}
	if j.Pool == nil {
		return errors.New("stock alert scan: pool not configured")
	}
	var payload StockAlertScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now().UTC()
	logger := j.logger()

	query := `SELECT sl.item_id, i.name, sl.store_id, sl.quantity,
			COALESCE(sl.threshold, i.low_stock_threshold) AS threshold
		FROM stock_levels sl
		JOIN items i ON i.id = sl.item_id
		WHERE i.is_active
		  AND sl.quantity <= COALESCE(sl.threshold, i.low_stock_threshold)
		  AND ($1 = '' OR sl.store_id = $1)
		ORDER BY sl.quantity`
	rows, err := j.Pool.Query(ctx, query, payload.StoreID)
	if err != nil {
		logger.Error("low-stock scan failed", slog.Any("error", err))
		return err
	}
	defer rows.Close()

	alerts := 0
	for rows.Next() {
		var itemID, name, storeID string
		var qty, threshold float64
		if err := rows.Scan(&itemID, &name, &storeID, &qty, &threshold); err != nil {
			return err
		}
		alerts++
		logger.Warn("low stock",
			slog.String("item_id", itemID),
			slog.String("item_name", name),
			slog.String("store_id", storeID),
			slog.Float64("quantity", qty),
			slog.Float64("threshold", threshold),
		)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	logger.Info("completed low-stock scan",
		slog.Int("alerts", alerts),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *StockAlertScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockAlertScan))
	}
	return slog.Default().With(slog.String("job", TaskStockAlertScan))
}
