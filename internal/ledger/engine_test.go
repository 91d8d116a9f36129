package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/chatscai10/friedg-inventory/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	items     map[string]ItemInfo
	levels    map[string]StockLevel
	entries   []StockAdjustment
	conflicts int
	txErr     error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items:  make(map[string]ItemInfo),
		levels: make(map[string]StockLevel),
	}
}

func levelID(itemID, storeID string) string { return itemID + "|" + storeID }

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return errors.Join(errTxConflict, errors.New("injected serialization failure"))
	}
	if m.txErr != nil {
		err := m.txErr
		m.txErr = nil
		return err
	}
	tx := &memoryTx{repo: m, levels: make(map[string]StockLevel)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for k, v := range tx.levels {
		m.levels[k] = v
	}
	m.entries = append(m.entries, tx.entries...)
	return nil
}

type memoryTx struct {
	repo    *memoryRepo
	levels  map[string]StockLevel
	entries []StockAdjustment
}

func (t *memoryTx) GetItem(_ context.Context, itemID string) (ItemInfo, error) {
	item, ok := t.repo.items[itemID]
	if !ok {
		return ItemInfo{}, ErrItemMissing
	}
	return item, nil
}

func (t *memoryTx) GetLevelForUpdate(_ context.Context, itemID, storeID string) (StockLevel, error) {
	key := levelID(itemID, storeID)
	if level, ok := t.levels[key]; ok {
		return level, nil
	}
	if level, ok := t.repo.levels[key]; ok {
		return level, nil
	}
	return StockLevel{ItemID: itemID, StoreID: storeID}, ErrLevelNotFound
}

func (t *memoryTx) UpsertLevel(_ context.Context, level StockLevel) error {
	level.UpdatedAt = time.Now().UTC()
	t.levels[levelID(level.ItemID, level.StoreID)] = level
	return nil
}

func (t *memoryTx) InsertAdjustment(_ context.Context, entry StockAdjustment) error {
	t.entries = append(t.entries, entry)
	return nil
}

func (m *memoryRepo) GetLevel(_ context.Context, itemID, storeID string) (StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	level, ok := m.levels[levelID(itemID, storeID)]
	if !ok {
		return StockLevel{ItemID: itemID, StoreID: storeID}, ErrLevelNotFound
	}
	return level, nil
}

func (m *memoryRepo) ListLevels(_ context.Context, filter LevelFilter) ([]LevelView, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var views []LevelView
	for _, level := range m.levels {
		if filter.StoreID != "" && level.StoreID != filter.StoreID {
			continue
		}
		item := m.items[level.ItemID]
		threshold := item.Threshold
		if level.Threshold != nil {
			threshold = *level.Threshold
		}
		views = append(views, LevelView{
			ItemID:    level.ItemID,
			StoreID:   level.StoreID,
			ItemName:  item.Name,
			Category:  item.Category,
			Unit:      item.Unit,
			Quantity:  level.Quantity,
			Threshold: threshold,
			LowStock:  level.Quantity <= threshold,
			IsActive:  item.Active,
		})
	}
	return views, len(views), nil
}

func (m *memoryRepo) ListAdjustments(_ context.Context, filter AdjustmentFilter) ([]StockAdjustment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StockAdjustment
	for _, e := range m.entries {
		if filter.ItemID != "" && e.ItemID != filter.ItemID {
			continue
		}
		if filter.StoreID != "" && e.StoreID != filter.StoreID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *memoryRepo) SumAdjustments(_ context.Context, itemID, storeID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, e := range m.entries {
		if e.ItemID == itemID && e.StoreID == storeID {
			sum += e.Quantity
		}
	}
	return sum, nil
}

func (m *memoryRepo) setLevel(itemID, storeID string, qty float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[levelID(itemID, storeID)] = StockLevel{ItemID: itemID, StoreID: storeID, Quantity: qty}
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]struct{})}
}

func (s *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = struct{}{}
	return nil
}

func (s *memoryIdempotency) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func newTestEngine(repo *memoryRepo) (*Engine, *memoryAudit, *memoryIdempotency) {
	audit := &memoryAudit{}
	idem := newMemoryIdempotency()
	engine := NewEngine(repo, audit, idem, nil, EngineConfig{
		AllowNegativeStock: true,
		MaxRetries:         3,
		RetryBackoff:       time.Millisecond,
	})
	return engine, audit, idem
}

func flourItem() ItemInfo {
	return ItemInfo{ID: "item-flour", Name: "Flour", Category: "ingredient", Unit: "kg", Threshold: 10, Active: true}
}

func TestCreateAdjustmentReceipt(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	repo.setLevel("item-flour", "store-1", 100)
	engine, audit, _ := newTestEngine(repo)

	result, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		ItemID:     "item-flour",
		StoreID:    "store-1",
		Type:       AdjustmentReceipt,
		Quantity:   20,
		Reason:     "weekly delivery",
		OperatorID: "op-1",
	})
	require.NoError(t, err)
	require.Len(t, result.Levels, 1)
	assert.Equal(t, 120.0, result.Levels[0].Quantity)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, 20.0, result.Entries[0].Quantity)
	assert.Equal(t, AdjustmentReceipt, result.Entries[0].Type)
	assert.NotEmpty(t, result.Entries[0].ID)
	assert.Equal(t, "op-1", result.Entries[0].OperatorID)
	assert.False(t, result.NegativeStock)
	assert.False(t, result.LowStock)

	level, err := repo.GetLevel(context.Background(), "item-flour", "store-1")
	require.NoError(t, err)
	assert.Equal(t, 120.0, level.Quantity)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "ledger:RECEIPT", audit.logs[0].Action)
}

func TestCreateAdjustmentFirstMovementCreatesLevel(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	engine, _, _ := newTestEngine(repo)

	result, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		ItemID:   "item-flour",
		StoreID:  "store-9",
		Type:     AdjustmentReceipt,
		Quantity: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result.Levels[0].Quantity)
	assert.True(t, result.LowStock, "5 is at or below the item threshold of 10")
}

func TestCreateAdjustmentTransfer(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	repo.setLevel("item-flour", "store-1", 100)
	engine, _, _ := newTestEngine(repo)

	result, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		ItemID:            "item-flour",
		StoreID:           "store-1",
		Type:              AdjustmentTransfer,
		Quantity:          30,
		TransferToStoreID: "store-2",
		OperatorID:        "op-1",
	})
	require.NoError(t, err)
	require.Len(t, result.Levels, 2)
	require.Len(t, result.Entries, 2)

	src, dst := result.Entries[0], result.Entries[1]
	assert.Equal(t, "store-1", src.StoreID)
	assert.Equal(t, -30.0, src.Quantity)
	assert.Equal(t, "store-2", src.TransferToStoreID)
	assert.Equal(t, "store-2", dst.StoreID)
	assert.Equal(t, 30.0, dst.Quantity)
	require.NotEmpty(t, src.TransferID)
	assert.Equal(t, src.TransferID, dst.TransferID, "both rows share the correlation id")

	srcLevel, err := repo.GetLevel(context.Background(), "item-flour", "store-1")
	require.NoError(t, err)
	dstLevel, err := repo.GetLevel(context.Background(), "item-flour", "store-2")
	require.NoError(t, err)
	assert.Equal(t, 70.0, srcLevel.Quantity)
	assert.Equal(t, 30.0, dstLevel.Quantity)
}

func TestCreateAdjustmentTransferNegativeQuantityNormalized(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	repo.setLevel("item-flour", "store-1", 100)
	engine, _, _ := newTestEngine(repo)

	result, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		ItemID:            "item-flour",
		StoreID:           "store-1",
		Type:              AdjustmentTransfer,
		Quantity:          -30,
		TransferToStoreID: "store-2",
	})
	require.NoError(t, err)
	assert.Equal(t, -30.0, result.Entries[0].Quantity)
	assert.Equal(t, 30.0, result.Entries[1].Quantity)
}

func TestCreateAdjustmentZeroQuantity(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	engine, _, _ := newTestEngine(repo)

	_, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		ItemID:   "item-flour",
		StoreID:  "store-1",
		Type:     AdjustmentReceipt,
		Quantity: 0,
	})
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "quantityAdjusted")
	assert.Empty(t, repo.entries, "nothing is applied on validation failure")
}

func TestCreateAdjustmentValidationReportsAllFields(t *testing.T) {
	repo := newMemoryRepo()
	engine, _, _ := newTestEngine(repo)

	_, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		Type:     AdjustmentTransfer,
		Quantity: 0,
	})
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "itemId")
	assert.Contains(t, vErr.Fields, "storeId")
	assert.Contains(t, vErr.Fields, "quantityAdjusted")
	assert.Contains(t, vErr.Fields, "transferToStoreId")
}

func TestCreateAdjustmentNegativeStockFlagged(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	repo.setLevel("item-flour", "store-1", 10)
	engine, _, _ := newTestEngine(repo)

	result, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		ItemID:   "item-flour",
		StoreID:  "store-1",
		Type:     AdjustmentIssue,
		Quantity: -50,
	})
	require.NoError(t, err)
	assert.Equal(t, -40.0, result.Levels[0].Quantity, "over-issue is applied, never clamped")
	assert.True(t, result.NegativeStock)
}

func TestCreateAdjustmentNegativeStockRejectedWhenDisallowed(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	repo.setLevel("item-flour", "store-1", 10)
	engine := NewEngine(repo, nil, nil, nil, EngineConfig{
		AllowNegativeStock: false,
		MaxRetries:         3,
		RetryBackoff:       time.Millisecond,
	})

	_, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		ItemID:   "item-flour",
		StoreID:  "store-1",
		Type:     AdjustmentIssue,
		Quantity: -50,
	})
	require.ErrorIs(t, err, ErrNegativeStock)
	assert.Empty(t, repo.entries)
}

func TestCreateAdjustmentUnknownItem(t *testing.T) {
	repo := newMemoryRepo()
	engine, _, _ := newTestEngine(repo)

	_, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		ItemID:   "item-ghost",
		StoreID:  "store-1",
		Type:     AdjustmentReceipt,
		Quantity: 5,
	})
	kind, ok := shared.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindItemNotFound, kind)
}

func TestCreateAdjustmentInactiveItem(t *testing.T) {
	repo := newMemoryRepo()
	item := flourItem()
	item.Active = false
	repo.items[item.ID] = item
	engine, _, _ := newTestEngine(repo)

	_, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		ItemID:   item.ID,
		StoreID:  "store-1",
		Type:     AdjustmentReceipt,
		Quantity: 5,
	})
	kind, ok := shared.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindItemNotFound, kind)
}

func TestCreateAdjustmentRetriesConflicts(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	repo.conflicts = 2
	engine, _, _ := newTestEngine(repo)

	result, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		ItemID:   "item-flour",
		StoreID:  "store-1",
		Type:     AdjustmentReceipt,
		Quantity: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result.Levels[0].Quantity)
}

func TestCreateAdjustmentConflictBudgetExhausted(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	repo.conflicts = 10
	engine, _, _ := newTestEngine(repo)

	_, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		ItemID:   "item-flour",
		StoreID:  "store-1",
		Type:     AdjustmentReceipt,
		Quantity: 5,
	})
	var cErr *shared.ConflictError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, 3, cErr.Attempts)
	assert.True(t, shared.Retryable(err))
	assert.Empty(t, repo.entries)
}

func TestCreateAdjustmentUnavailablePassesThrough(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	repo.txErr = &shared.UnavailableError{Err: errors.New("connection refused")}
	engine, _, _ := newTestEngine(repo)

	_, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
		ItemID:   "item-flour",
		StoreID:  "store-1",
		Type:     AdjustmentReceipt,
		Quantity: 5,
	})
	kind, ok := shared.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindUnavailable, kind)
}

func TestCreateAdjustmentIdempotentReplay(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	engine, _, _ := newTestEngine(repo)

	input := AdjustmentInput{
		ItemID:         "item-flour",
		StoreID:        "store-1",
		Type:           AdjustmentReceipt,
		Quantity:       5,
		IdempotencyKey: "req-abc",
	}
	_, err := engine.CreateAdjustment(context.Background(), input)
	require.NoError(t, err)

	_, err = engine.CreateAdjustment(context.Background(), input)
	kind, ok := shared.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindConflict, kind)
	assert.Len(t, repo.entries, 1, "replay must not double-apply")
}

func TestCreateAdjustmentFailureReleasesIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	engine, _, _ := newTestEngine(repo)

	input := AdjustmentInput{
		ItemID:         "item-flour",
		StoreID:        "store-1",
		Type:           AdjustmentReceipt,
		Quantity:       5,
		IdempotencyKey: "req-retry",
	}
	_, err := engine.CreateAdjustment(context.Background(), input)
	require.Error(t, err)

	repo.items["item-flour"] = flourItem()
	_, err = engine.CreateAdjustment(context.Background(), input)
	require.NoError(t, err, "a failed attempt must not burn the key")
}

func TestCreateAdjustmentConcurrent(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	engine, _, _ := newTestEngine(repo)

	const workers = 20
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := engine.CreateAdjustment(context.Background(), AdjustmentInput{
				ItemID:   "item-flour",
				StoreID:  "store-1",
				Type:     AdjustmentReceipt,
				Quantity: 1,
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	level, err := repo.GetLevel(context.Background(), "item-flour", "store-1")
	require.NoError(t, err)
	assert.Equal(t, float64(workers), level.Quantity)
	assert.Len(t, repo.entries, workers)

	sum, err := repo.SumAdjustments(context.Background(), "item-flour", "store-1")
	require.NoError(t, err)
	assert.Equal(t, level.Quantity, sum)
}

func TestSeedLevel(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	engine, audit, _ := newTestEngine(repo)

	threshold := 15.0
	result, err := engine.SeedLevel(context.Background(), SeedInput{
		ItemID:     "item-flour",
		StoreID:    "store-1",
		Quantity:   50,
		Threshold:  &threshold,
		OperatorID: "op-admin",
	})
	require.NoError(t, err)
	assert.Equal(t, 50.0, result.Levels[0].Quantity)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, AdjustmentOther, result.Entries[0].Type)
	assert.Equal(t, 50.0, result.Entries[0].Quantity)
	require.NotNil(t, result.Levels[0].Threshold)
	assert.Equal(t, threshold, *result.Levels[0].Threshold)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "ledger:seed", audit.logs[0].Action)
}

func TestSeedLevelNoDeltaWritesNoEntry(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	repo.setLevel("item-flour", "store-1", 50)
	engine, _, _ := newTestEngine(repo)

	result, err := engine.SeedLevel(context.Background(), SeedInput{
		ItemID:   "item-flour",
		StoreID:  "store-1",
		Quantity: 50,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Entries)
	assert.Empty(t, repo.entries)
}

func TestSeedLevelDownwardCorrection(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["item-flour"] = flourItem()
	repo.setLevel("item-flour", "store-1", 80)
	engine, _, _ := newTestEngine(repo)

	result, err := engine.SeedLevel(context.Background(), SeedInput{
		ItemID:   "item-flour",
		StoreID:  "store-1",
		Quantity: 60,
		Reason:   "shrinkage found during count",
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, -20.0, result.Entries[0].Quantity)
	assert.True(t, strings.Contains(result.Entries[0].Reason, "shrinkage"))
}

func TestGetLevelMissingReadsAsZero(t *testing.T) {
	repo := newMemoryRepo()
	engine, _, _ := newTestEngine(repo)

	level, err := engine.GetLevel(context.Background(), "item-flour", "store-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, level.Quantity)
	assert.Equal(t, "item-flour", level.ItemID)
	assert.Equal(t, "store-1", level.StoreID)
}
