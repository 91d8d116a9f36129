package ledger

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/chatscai10/friedg-inventory/internal/shared"
)

const qtyEpsilon = 1e-9

// RepositoryPort abstracts repository usage for the engine.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLevel(ctx context.Context, itemID, storeID string) (StockLevel, error)
	ListLevels(ctx context.Context, filter LevelFilter) ([]LevelView, int, error)
	ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]StockAdjustment, int, error)
	SumAdjustments(ctx context.Context, itemID, storeID string) (float64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against duplicate submissions of the same request.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// EngineConfig groups engine policy settings.
type EngineConfig struct {
	// AllowNegativeStock keeps over-issues applied but flagged instead of
	// rejected. Physical counts lag system state, so this defaults to true.
	AllowNegativeStock bool
	MaxRetries         int
	RetryBackoff       time.Duration
}

// Engine applies adjustment requests atomically: business validation, stock
// level mutation(s) and ledger append(s) commit as one transaction. All stock
// mutation funnels through here, except the seeding path which also logs an
// OTHER entry.
type Engine struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	cache       *LevelCache
	allowNeg    bool
	maxRetries  int
	backoff     time.Duration
	now         func() time.Time
	newID       func() string
}

// NewEngine builds the engine.
func NewEngine(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cache *LevelCache, cfg EngineConfig) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}
	return &Engine{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		cache:       cache,
		allowNeg:    cfg.AllowNegativeStock,
		maxRetries:  cfg.MaxRetries,
		backoff:     cfg.RetryBackoff,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// ErrNegativeStock is returned when a movement would drive stock negative and
// the allow-negative policy is disabled.
var ErrNegativeStock = errors.New("ledger: negative stock not allowed")

// CreateAdjustment posts one adjustment. Transfers debit the source store and
// credit the destination store in the same transaction; both ledger rows
// share a transfer correlation id.
func (e *Engine) CreateAdjustment(ctx context.Context, input AdjustmentInput) (AdjustmentResult, error) {
	if err := ValidateAdjustment(input); err != nil {
		return AdjustmentResult{}, err
	}

	insertedKey := false
	if input.IdempotencyKey != "" && e.idempotency != nil {
		if err := e.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "ledger"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return AdjustmentResult{}, &shared.ConflictError{Attempts: 1, Err: err}
			}
			return AdjustmentResult{}, err
		}
		insertedKey = true
	}

	var result AdjustmentResult
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		result = AdjustmentResult{}
		item, err := tx.GetItem(ctx, input.ItemID)
		if err != nil {
			if errors.Is(err, ErrItemMissing) {
				return shared.NewItemNotFound(input.ItemID)
			}
			return err
		}
		if !item.Active {
			return shared.NewItemNotFound(input.ItemID)
		}

		if input.Type == AdjustmentTransfer {
			return e.applyTransfer(ctx, tx, item, input, &result)
		}
		return e.applyMovement(ctx, tx, item, input, &result)
	})
	if err != nil {
		if insertedKey {
			_ = e.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return AdjustmentResult{}, err
	}

	e.invalidate(ctx, result.Levels)
	e.recordAudit(ctx, input, result)
	return result, nil
}

func (e *Engine) applyMovement(ctx context.Context, tx TxRepository, item ItemInfo, input AdjustmentInput, result *AdjustmentResult) error {
	level, err := e.lockLevel(ctx, tx, input.ItemID, input.StoreID)
	if err != nil {
		return err
	}
	newQty := level.Quantity + input.Quantity
	if newQty < -qtyEpsilon && !e.allowNeg {
		return ErrNegativeStock
	}
	level.Quantity = newQty
	if err := tx.UpsertLevel(ctx, level); err != nil {
		return err
	}

	entry := e.buildEntry(input, input.StoreID, input.Quantity, "", "")
	if err := tx.InsertAdjustment(ctx, entry); err != nil {
		return err
	}

	result.Levels = []StockLevel{level}
	result.Entries = []StockAdjustment{entry}
	result.NegativeStock = newQty < -qtyEpsilon
	result.LowStock = newQty <= effectiveThreshold(level, item)
	return nil
}

func (e *Engine) applyTransfer(ctx context.Context, tx TxRepository, item ItemInfo, input AdjustmentInput, result *AdjustmentResult) error {
	qty := math.Abs(input.Quantity)
	src, dst := input.StoreID, input.TransferToStoreID

	// Lock both level rows in a deterministic order so two opposing
	// transfers cannot deadlock.
	ordered := []string{src, dst}
	sort.Strings(ordered)
	locked := make(map[string]StockLevel, 2)
	for _, storeID := range ordered {
		level, err := e.lockLevel(ctx, tx, input.ItemID, storeID)
		if err != nil {
			return err
		}
		locked[storeID] = level
	}

	srcLevel, dstLevel := locked[src], locked[dst]
	srcLevel.Quantity -= qty
	dstLevel.Quantity += qty
	if srcLevel.Quantity < -qtyEpsilon && !e.allowNeg {
		return ErrNegativeStock
	}
	if err := tx.UpsertLevel(ctx, srcLevel); err != nil {
		return err
	}
	if err := tx.UpsertLevel(ctx, dstLevel); err != nil {
		return err
	}

	transferID := e.newID()
	srcEntry := e.buildEntry(input, src, -qty, dst, transferID)
	dstEntry := e.buildEntry(input, dst, qty, "", transferID)
	if err := tx.InsertAdjustment(ctx, srcEntry); err != nil {
		return err
	}
	if err := tx.InsertAdjustment(ctx, dstEntry); err != nil {
		return err
	}

	result.Levels = []StockLevel{srcLevel, dstLevel}
	result.Entries = []StockAdjustment{srcEntry, dstEntry}
	result.NegativeStock = srcLevel.Quantity < -qtyEpsilon
	result.LowStock = srcLevel.Quantity <= effectiveThreshold(srcLevel, item) ||
		dstLevel.Quantity <= effectiveThreshold(dstLevel, item)
	return nil
}

// SeedLevel is the administrative upsert. The quantity delta is logged as an
// OTHER ledger entry so the reconciliation invariant keeps holding.
func (e *Engine) SeedLevel(ctx context.Context, input SeedInput) (AdjustmentResult, error) {
	if err := ValidateSeed(input); err != nil {
		return AdjustmentResult{}, err
	}

	var result AdjustmentResult
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		result = AdjustmentResult{}
		if _, err := tx.GetItem(ctx, input.ItemID); err != nil {
			if errors.Is(err, ErrItemMissing) {
				return shared.NewItemNotFound(input.ItemID)
			}
			return err
		}

		level, err := e.lockLevel(ctx, tx, input.ItemID, input.StoreID)
		if err != nil {
			return err
		}
		delta := input.Quantity - level.Quantity
		level.Quantity = input.Quantity
		if input.Threshold != nil {
			level.Threshold = input.Threshold
		}
		if err := tx.UpsertLevel(ctx, level); err != nil {
			return err
		}

		result.Levels = []StockLevel{level}
		if math.Abs(delta) > qtyEpsilon {
			reason := input.Reason
			if reason == "" {
				reason = "administrative stock level correction"
			}
			entry := StockAdjustment{
				ID:             e.newID(),
				ItemID:         input.ItemID,
				StoreID:        input.StoreID,
				Type:           AdjustmentOther,
				Quantity:       delta,
				Reason:         reason,
				AdjustmentDate: e.now(),
				OperatorID:     input.OperatorID,
				CreatedAt:      e.now(),
			}
			if err := tx.InsertAdjustment(ctx, entry); err != nil {
				return err
			}
			result.Entries = []StockAdjustment{entry}
		}
		result.NegativeStock = level.Quantity < -qtyEpsilon
		return nil
	})
	if err != nil {
		return AdjustmentResult{}, err
	}

	e.invalidate(ctx, result.Levels)
	if e.audit != nil {
		_ = e.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.OperatorID,
			Action:   "ledger:seed",
			Entity:   "stock_level",
			EntityID: input.ItemID + ":" + input.StoreID,
			Meta:     map[string]any{"quantity": input.Quantity},
		})
	}
	return result, nil
}

// GetLevel reads one stock level through the cache. A missing record is the
// implicit zero baseline.
func (e *Engine) GetLevel(ctx context.Context, itemID, storeID string) (StockLevel, error) {
	if itemID == "" || storeID == "" {
		vErr := shared.NewValidationError()
		if itemID == "" {
			vErr.Add("itemId", "is required")
		}
		if storeID == "" {
			vErr.Add("storeId", "is required")
		}
		return StockLevel{}, vErr
	}
	if e.cache != nil {
		if level, ok, err := e.cache.Get(ctx, itemID, storeID); err == nil && ok {
			return level, nil
		}
	}
	level, err := e.repo.GetLevel(ctx, itemID, storeID)
	if err != nil {
		if errors.Is(err, ErrLevelNotFound) {
			return StockLevel{ItemID: itemID, StoreID: storeID}, nil
		}
		return StockLevel{}, err
	}
	if e.cache != nil {
		_ = e.cache.Set(ctx, level)
	}
	return level, nil
}

// ListLevels lists stock levels joined with catalog data.
func (e *Engine) ListLevels(ctx context.Context, filter LevelFilter) ([]LevelView, int, error) {
	if err := ValidateLevelFilter(filter); err != nil {
		return nil, 0, err
	}
	return e.repo.ListLevels(ctx, filter)
}

// ListAdjustments queries the ledger.
func (e *Engine) ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]StockAdjustment, int, error) {
	if err := ValidateAdjustmentFilter(filter); err != nil {
		return nil, 0, err
	}
	return e.repo.ListAdjustments(ctx, filter)
}

func (e *Engine) lockLevel(ctx context.Context, tx TxRepository, itemID, storeID string) (StockLevel, error) {
	level, err := tx.GetLevelForUpdate(ctx, itemID, storeID)
	if err != nil && !errors.Is(err, ErrLevelNotFound) {
		return StockLevel{}, err
	}
	return level, nil
}

func (e *Engine) buildEntry(input AdjustmentInput, storeID string, qty float64, transferTo, transferID string) StockAdjustment {
	date := input.AdjustmentDate
	if date.IsZero() {
		date = e.now()
	}
	return StockAdjustment{
		ID:                e.newID(),
		ItemID:            input.ItemID,
		StoreID:           storeID,
		Type:              input.Type,
		Quantity:          qty,
		Reason:            input.Reason,
		AdjustmentDate:    date,
		TransferToStoreID: transferTo,
		TransferID:        transferID,
		OperatorID:        input.OperatorID,
		CreatedAt:         e.now(),
	}
}

// withRetry re-runs the transaction on conflict with exponential backoff,
// surfacing ConflictError once the budget is spent. Validation and reference
// errors pass through on the first attempt.
func (e *Engine) withRetry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	backoff := e.backoff
	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		lastErr = e.repo.WithTx(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, errTxConflict) {
			return lastErr
		}
		if attempt == e.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return &shared.ConflictError{Attempts: e.maxRetries, Err: lastErr}
}

func (e *Engine) invalidate(ctx context.Context, levels []StockLevel) {
	if e.cache == nil {
		return
	}
	for _, level := range levels {
		_ = e.cache.Invalidate(ctx, level.ItemID, level.StoreID)
	}
}

func (e *Engine) recordAudit(ctx context.Context, input AdjustmentInput, result AdjustmentResult) {
	if e.audit == nil {
		return
	}
	meta := map[string]any{
		"store_id":       input.StoreID,
		"qty":            input.Quantity,
		"reason":         input.Reason,
		"negative_stock": result.NegativeStock,
	}
	if input.Type == AdjustmentTransfer {
		meta["transfer_to_store_id"] = input.TransferToStoreID
	}
	_ = e.audit.Record(ctx, shared.AuditLog{
		ActorID:  input.OperatorID,
		Action:   "ledger:" + string(input.Type),
		Entity:   "stock_adjustment",
		EntityID: result.Entries[0].ID,
		Meta:     meta,
	})
}

func effectiveThreshold(level StockLevel, item ItemInfo) float64 {
	if level.Threshold != nil {
		return *level.Threshold
	}
	return item.Threshold
}
