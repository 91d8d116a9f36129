package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatscai10/friedg-inventory/internal/shared"
)

// Repository abstracts item persistence.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Item, int, error)
	Get(ctx context.Context, id string) (Item, error)
	Create(ctx context.Context, item Item) (Item, error)
	Update(ctx context.Context, id string, item Item) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const itemColumns = `id, tenant_id, name, category, unit, sku, supplier, low_stock_threshold, cost_per_unit, image_urls, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM items WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	addFilter := func(clause string, value interface{}) {
		argCount++
		placeholder := `$` + strconv.Itoa(argCount)
		query += ` AND ` + clause + placeholder
		countQuery += ` AND ` + clause + placeholder
		args = append(args, value)
	}

	if filters.TenantID != "" {
		addFilter(`tenant_id = `, filters.TenantID)
	}
	if filters.Category != "" {
		addFilter(`category = `, filters.Category)
	}
	if filters.Search != "" {
		argCount++
		placeholder := `$` + strconv.Itoa(argCount)
		query += ` AND (name ILIKE ` + placeholder + ` OR sku ILIKE ` + placeholder + `)`
		countQuery += ` AND (name ILIKE ` + placeholder + ` OR sku ILIKE ` + placeholder + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		addFilter(`is_active = `, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name`
	page := shared.NewPagination(filters.Page, filters.PerPage, total)
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, page.PerPage)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, page.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id string) (Item, error) {
	row := r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, shared.NewItemNotFound(id)
		}
		return Item{}, err
	}
	return item, nil
}

func (r *repository) Create(ctx context.Context, item Item) (Item, error) {
	supplierJSON, err := marshalSupplier(item.Supplier)
	if err != nil {
		return Item{}, err
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	_, err = r.db.Exec(ctx,
		`INSERT INTO items (id, tenant_id, name, category, unit, sku, supplier, low_stock_threshold, cost_per_unit, image_urls, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		item.ID, item.TenantID, item.Name, item.Category, item.Unit, item.SKU, supplierJSON,
		item.LowStockThreshold, item.CostPerUnit, item.ImageURLs, item.IsActive, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

func (r *repository) Update(ctx context.Context, id string, item Item) error {
	supplierJSON, err := marshalSupplier(item.Supplier)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE items SET name=$2, category=$3, unit=$4, sku=$5, supplier=$6, low_stock_threshold=$7, cost_per_unit=$8, image_urls=$9, is_active=$10, updated_at=$11
		 WHERE id=$1`,
		id, item.Name, item.Category, item.Unit, item.SKU, supplierJSON,
		item.LowStockThreshold, item.CostPerUnit, item.ImageURLs, item.IsActive, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewItemNotFound(id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	var supplierJSON []byte
	err := row.Scan(&item.ID, &item.TenantID, &item.Name, &item.Category, &item.Unit, &item.SKU,
		&supplierJSON, &item.LowStockThreshold, &item.CostPerUnit, &item.ImageURLs, &item.IsActive,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Item{}, err
	}
	if len(supplierJSON) > 0 {
		var supplier SupplierInfo
		if err := json.Unmarshal(supplierJSON, &supplier); err != nil {
			return Item{}, err
		}
		if supplier != (SupplierInfo{}) {
			item.Supplier = &supplier
		}
	}
	return item, nil
}

func marshalSupplier(s *SupplierInfo) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}
