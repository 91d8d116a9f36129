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

// LedgerReconcileJob sweeps stock levels and flags every (item, store) key
// whose level no longer equals the sum of its ledger entries. Divergent keys
// are reported for operator intervention, never corrected in place.
type LedgerReconcileJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
	clock  func() time.Time
}

// NewLedgerReconcileJob initialises the reconciliation handler.
func NewLedgerReconcileJob(pool *pgxpool.Pool, logger *slog.Logger) *LedgerReconcileJob {
	return &LedgerReconcileJob{
		Pool:   pool,
		Logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type reconcileDrift struct {
	ItemID    string
	StoreID   string
	LevelQty  float64
	LedgerSum float64
}

// Handle executes the reconciliation sweep.
func (j *LedgerReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger reconcile: handler not configured")
	}
	var payload LedgerReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	logger := j.logger()
	logger.Info("starting ledger reconciliation sweep",
		slog.String("store_id", payload.StoreID),
		slog.String("item_id", payload.ItemID),
	)

	scanned, drifts, err := j.scan(ctx, payload)
	if err != nil {
		logger.Error("reconciliation sweep failed", slog.Any("error", err))
		return err
	}

	for _, d := range drifts {
		logger.Error("stock level diverged from ledger",
			slog.String("item_id", d.ItemID),
			slog.String("store_id", d.StoreID),
			slog.Float64("level_quantity", d.LevelQty),
			slog.Float64("ledger_sum", d.LedgerSum),
			slog.Float64("drift", d.LevelQty-d.LedgerSum),
		)
	}

	logger.Info("completed ledger reconciliation sweep",
		slog.Int("scanned", scanned),
		slog.Int("divergent", len(drifts)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *LedgerReconcileJob) scan(ctx context.Context, payload LedgerReconcilePayload) (int, []reconcileDrift, error) {
	if j.Pool == nil {
		return 0, nil, errors.New("ledger reconcile: pool not configured")
	}
	query := `SELECT sl.item_id, sl.store_id, sl.quantity, COALESCE(SUM(sa.quantity), 0) AS ledger_sum
		FROM stock_levels sl
		LEFT JOIN stock_adjustments sa ON sa.item_id = sl.item_id AND sa.store_id = sl.store_id
		WHERE ($1 = '' OR sl.store_id = $1) AND ($2 = '' OR sl.item_id = $2)
		GROUP BY sl.item_id, sl.store_id, sl.quantity`
	rows, err := j.Pool.Query(ctx, query, payload.StoreID, payload.ItemID)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	const epsilon = 1e-6
	scanned := 0
	var drifts []reconcileDrift
	for rows.Next() {
		var d reconcileDrift
		if err := rows.Scan(&d.ItemID, &d.StoreID, &d.LevelQty, &d.LedgerSum); err != nil {
			return 0, nil, err
		}
		scanned++
		diff := d.LevelQty - d.LedgerSum
		if diff > epsilon || diff < -epsilon {
			drifts = append(drifts, d)
		}
	}
	return scanned, drifts, rows.Err()
}

func (j *LedgerReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerReconcile))
	}
	return slog.Default().With(slog.String("job", TaskLedgerReconcile))
}

func (j *LedgerReconcileJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
