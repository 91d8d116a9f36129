package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatscai10/friedg-inventory/internal/shared"
)

func TestReconcileConsistent(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	engine, _, _ := newTestEngine(repo)

	for _, qty := range []float64{100, 20, -30} {
		typ := AdjustmentReceipt
		if qty < 0 {
			typ = AdjustmentIssue
		}
		_, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
			ItemID:   "item-flour",
			StoreID:  "store-1",
			Type:     typ,
			Quantity: qty,
		})
		require.NoError(t, err)
	}

	report, err := engine.Reconcile(context.Background(), "item-flour", "store-1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 90.0, report.LevelQty)
	assert.Equal(t, 90.0, report.LedgerSum)
}

func TestReconcileDetectsDivergence(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	engine, _, _ := newTestEngine(repo)

	_, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		ItemID:   "item-flour",
		StoreID:  "store-1",
		Type:     AdjustmentReceipt,
		Quantity: 100,
	})
	require.NoError(t, err)

	// Tamper with the stored level behind the ledger's back.
	repo.setLevel("item-flour", "store-1", 110)

	report, err := engine.Reconcile(context.Background(), "item-flour", "store-1")
	var inv *shared.InvariantViolationError
	require.ErrorAs(t, err, &inv)
	assert.False(t, report.Consistent)
	assert.Equal(t, 110.0, report.LevelQty)
	assert.Equal(t, 100.0, report.LedgerSum)
	assert.Equal(t, 110.0, inv.LevelQty)
	assert.Equal(t, 100.0, inv.LedgerSum)

	// The divergent level must not be silently corrected.
	level, err := repo.GetLevel(context.Background(), "item-flour", "store-1")
	require.NoError(t, err)
	assert.Equal(t, 110.0, level.Quantity)
}

func TestReconcileEmptyKeyIsConsistent(t *testing.T) {
	repo := newMemoryRepo()
	engine, _, _ := newTestEngine(repo)

	report, err := engine.Reconcile(context.Background(), "item-flour", "store-1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 0.0, report.LevelQty)
	assert.Equal(t, 0.0, report.LedgerSum)
}
