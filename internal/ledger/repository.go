package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatscai10/friedg-inventory/internal/platform/db"
	"github.com/chatscai10/friedg-inventory/internal/shared"
)

// ErrLevelNotFound indicates a missing stock level row. Callers treat it as
// an implicit zero baseline.
var ErrLevelNotFound = errors.New("ledger: stock level not found")

// ErrItemMissing indicates the referenced catalog item does not exist.
var ErrItemMissing = errors.New("ledger: item not found")

// errTxConflict marks a retriable transaction conflict inside WithTx.
var errTxConflict = errors.New("ledger: transaction conflict")

// Repository persists stock levels and the adjustment ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations available inside an engine transaction.
type TxRepository interface {
	GetItem(ctx context.Context, itemID string) (ItemInfo, error)
	GetLevelForUpdate(ctx context.Context, itemID, storeID string) (StockLevel, error)
	UpsertLevel(ctx context.Context, level StockLevel) error
	InsertAdjustment(ctx context.Context, entry StockAdjustment) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction. Conflict
// and connectivity failures are classified so the engine can decide whether
// to retry internally or surface the error.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	return classifyPgError(err)
}

func (r *txRepo) GetItem(ctx context.Context, itemID string) (ItemInfo, error) {
	var info ItemInfo
	err := r.tx.QueryRow(ctx,
		`SELECT id, name, category, unit, low_stock_threshold, is_active FROM items WHERE id = $1`,
		itemID,
	).Scan(&info.ID, &info.Name, &info.Category, &info.Unit, &info.Threshold, &info.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ItemInfo{}, ErrItemMissing
		}
		return ItemInfo{}, err
	}
	return info, nil
}

func (r *txRepo) GetLevelForUpdate(ctx context.Context, itemID, storeID string) (StockLevel, error) {
	var level StockLevel
	err := r.tx.QueryRow(ctx,
		`SELECT item_id, store_id, quantity, threshold, updated_at FROM stock_levels WHERE item_id = $1 AND store_id = $2 FOR UPDATE`,
		itemID, storeID,
	).Scan(&level.ItemID, &level.StoreID, &level.Quantity, &level.Threshold, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{ItemID: itemID, StoreID: storeID}, ErrLevelNotFound
		}
		return StockLevel{}, err
	}
	return level, nil
}

func (r *txRepo) UpsertLevel(ctx context.Context, level StockLevel) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO stock_levels (item_id, store_id, quantity, threshold, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (item_id, store_id)
		 DO UPDATE SET quantity = EXCLUDED.quantity, threshold = EXCLUDED.threshold, updated_at = EXCLUDED.updated_at`,
		level.ItemID, level.StoreID, level.Quantity, level.Threshold, time.Now().UTC())
	return err
}

func (r *txRepo) InsertAdjustment(ctx context.Context, entry StockAdjustment) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO stock_adjustments (id, item_id, store_id, adjustment_type, quantity, reason, adjustment_date, transfer_to_store_id, transfer_id, operator_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)`,
		entry.ID, entry.ItemID, entry.StoreID, string(entry.Type), entry.Quantity, entry.Reason,
		entry.AdjustmentDate, entry.TransferToStoreID, entry.TransferID, entry.OperatorID, entry.CreatedAt)
	return err
}

// GetLevel reads one stock level outside a transaction.
func (r *Repository) GetLevel(ctx context.Context, itemID, storeID string) (StockLevel, error) {
	var level StockLevel
	err := r.pool.QueryRow(ctx,
		`SELECT item_id, store_id, quantity, threshold, updated_at FROM stock_levels WHERE item_id = $1 AND store_id = $2`,
		itemID, storeID,
	).Scan(&level.ItemID, &level.StoreID, &level.Quantity, &level.Threshold, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{ItemID: itemID, StoreID: storeID}, ErrLevelNotFound
		}
		return StockLevel{}, classifyPgError(err)
	}
	return level, nil
}

// ListLevels returns stock levels joined with their catalog items.
func (r *Repository) ListLevels(ctx context.Context, filter LevelFilter) ([]LevelView, int, error) {
	base := ` FROM stock_levels sl JOIN items i ON i.id = sl.item_id WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	addFilter := func(clause string, value interface{}) {
		argCount++
		base += ` AND ` + clause + `$` + strconv.Itoa(argCount)
		args = append(args, value)
	}
	if filter.StoreID != "" {
		addFilter(`sl.store_id = `, filter.StoreID)
	}
	if filter.Category != "" {
		addFilter(`i.category = `, filter.Category)
	}
	if filter.Name != "" {
		addFilter(`i.name ILIKE `, "%"+filter.Name+"%")
	}
	if filter.IsActive != nil {
		addFilter(`i.is_active = `, *filter.IsActive)
	}
	if filter.LowStock != nil {
		if *filter.LowStock {
			base += ` AND sl.quantity <= COALESCE(sl.threshold, i.low_stock_threshold)`
		} else {
			base += ` AND sl.quantity > COALESCE(sl.threshold, i.low_stock_threshold)`
		}
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+base, args...).Scan(&total); err != nil {
		return nil, 0, classifyPgError(err)
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	query := `SELECT sl.item_id, sl.store_id, i.name, i.category, i.unit, sl.quantity,
		COALESCE(sl.threshold, i.low_stock_threshold) AS threshold,
		sl.quantity <= COALESCE(sl.threshold, i.low_stock_threshold) AS low_stock,
		i.is_active` + base + ` ORDER BY i.name, sl.store_id`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, page.PerPage)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, classifyPgError(err)
	}
	defer rows.Close()

	var views []LevelView
	for rows.Next() {
		var v LevelView
		if err := rows.Scan(&v.ItemID, &v.StoreID, &v.ItemName, &v.Category, &v.Unit,
			&v.Quantity, &v.Threshold, &v.LowStock, &v.IsActive); err != nil {
			return nil, 0, err
		}
		views = append(views, v)
	}
	return views, total, rows.Err()
}

// ListAdjustments queries the ledger ordered by adjustment date descending.
func (r *Repository) ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]StockAdjustment, int, error) {
	base := ` FROM stock_adjustments WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	addFilter := func(clause string, value interface{}) {
		argCount++
		base += ` AND ` + clause + `$` + strconv.Itoa(argCount)
		args = append(args, value)
	}
	if filter.ItemID != "" {
		addFilter(`item_id = `, filter.ItemID)
	}
	if filter.StoreID != "" {
		addFilter(`store_id = `, filter.StoreID)
	}
	if filter.Type != "" {
		addFilter(`adjustment_type = `, string(filter.Type))
	}
	if filter.OperatorID != "" {
		addFilter(`operator_id = `, filter.OperatorID)
	}
	if !filter.StartDate.IsZero() {
		addFilter(`adjustment_date >= `, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		addFilter(`adjustment_date <= `, filter.EndDate)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+base, args...).Scan(&total); err != nil {
		return nil, 0, classifyPgError(err)
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	query := `SELECT id, item_id, store_id, adjustment_type, quantity, reason, adjustment_date,
		COALESCE(transfer_to_store_id, ''), COALESCE(transfer_id, ''), operator_id, created_at` +
		base + ` ORDER BY adjustment_date DESC, created_at DESC`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, page.PerPage)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, classifyPgError(err)
	}
	defer rows.Close()

	var entries []StockAdjustment
	for rows.Next() {
		var e StockAdjustment
		var typ string
		if err := rows.Scan(&e.ID, &e.ItemID, &e.StoreID, &typ, &e.Quantity, &e.Reason,
			&e.AdjustmentDate, &e.TransferToStoreID, &e.TransferID, &e.OperatorID, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Type = AdjustmentType(typ)
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// SumAdjustments totals quantityAdjusted over the ledger for one key.
func (r *Repository) SumAdjustments(ctx context.Context, itemID, storeID string) (float64, error) {
	var sum float64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM stock_adjustments WHERE item_id = $1 AND store_id = $2`,
		itemID, storeID,
	).Scan(&sum)
	if err != nil {
		return 0, classifyPgError(err)
	}
	return sum, nil
}

// classifyPgError maps PostgreSQL failures onto the domain taxonomy:
// serialization and lock failures become retriable conflicts, connectivity
// failures become UnavailableError, everything else passes through.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return errors.Join(errTxConflict, err)
		}
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return &shared.UnavailableError{Err: err}
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return &shared.UnavailableError{Err: err}
	}
	return err
}
