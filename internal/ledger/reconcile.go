package ledger

import (
	"context"
	"errors"
	"math"

	"github.com/chatscai10/friedg-inventory/internal/shared"
)

// reconcileEpsilon absorbs float accumulation noise when comparing a stock
// level against the ledger sum.
const reconcileEpsilon = 1e-6

// Reconcile compares the stored stock level for one (item, store) key against
// the sum of its ledger entries. On divergence it returns the report together
// with an InvariantViolationError; the stored level is never auto-corrected.
func (e *Engine) Reconcile(ctx context.Context, itemID, storeID string) (ReconcileReport, error) {
	sum, err := e.repo.SumAdjustments(ctx, itemID, storeID)
	if err != nil {
		return ReconcileReport{}, err
	}
	level, err := e.repo.GetLevel(ctx, itemID, storeID)
	if err != nil && !errors.Is(err, ErrLevelNotFound) {
		return ReconcileReport{}, err
	}

	report := ReconcileReport{
		ItemID:     itemID,
		StoreID:    storeID,
		LevelQty:   level.Quantity,
		LedgerSum:  sum,
		Consistent: math.Abs(level.Quantity-sum) <= reconcileEpsilon,
	}
	if !report.Consistent {
		return report, &shared.InvariantViolationError{
			ItemID:    itemID,
			StoreID:   storeID,
			LevelQty:  level.Quantity,
			LedgerSum: sum,
		}
	}
	return report, nil
}
