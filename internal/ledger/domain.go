package ledger

import "time"

// AdjustmentType enumerates supported stock movements.
type AdjustmentType string

const (
	// AdjustmentReceipt represents goods received into a store.
	AdjustmentReceipt AdjustmentType = "RECEIPT"
	// AdjustmentIssue represents stock issued out of a store.
	AdjustmentIssue AdjustmentType = "ISSUE"
	// AdjustmentStockCount represents a physical count correction.
	AdjustmentStockCount AdjustmentType = "STOCK_COUNT"
	// AdjustmentDamage represents a damage write-off.
	AdjustmentDamage AdjustmentType = "DAMAGE"
	// AdjustmentTransfer represents an inter-store transfer.
	AdjustmentTransfer AdjustmentType = "TRANSFER"
	// AdjustmentOther covers administrative corrections, including seeding.
	AdjustmentOther AdjustmentType = "OTHER"
)

// Valid reports whether t is a recognized adjustment type.
func (t AdjustmentType) Valid() bool {
	switch t {
	case AdjustmentReceipt, AdjustmentIssue, AdjustmentStockCount,
		AdjustmentDamage, AdjustmentTransfer, AdjustmentOther:
		return true
	}
	return false
}

// StockLevel is the current quantity on hand for one item at one store.
// A missing record reads as quantity zero.
type StockLevel struct {
	ItemID    string    `json:"itemId"`
	StoreID   string    `json:"storeId"`
	Quantity  float64   `json:"quantity"`
	Threshold *float64  `json:"threshold,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StockAdjustment is one immutable ledger entry. Corrections are new
// compensating entries, never edits.
type StockAdjustment struct {
	ID                string         `json:"id"`
	ItemID            string         `json:"itemId"`
	StoreID           string         `json:"storeId"`
	Type              AdjustmentType `json:"adjustmentType"`
	Quantity          float64        `json:"quantityAdjusted"`
	Reason            string         `json:"reason,omitempty"`
	AdjustmentDate    time.Time      `json:"adjustmentDate"`
	TransferToStoreID string         `json:"transferToStoreId,omitempty"`
	TransferID        string         `json:"transferId,omitempty"`
	OperatorID        string         `json:"operatorId"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// AdjustmentInput is a request to post one adjustment.
type AdjustmentInput struct {
	ItemID            string         `validate:"required"`
	StoreID           string         `validate:"required"`
	Type              AdjustmentType `validate:"required"`
	Quantity          float64        `validate:"required"`
	Reason            string
	AdjustmentDate    time.Time
	TransferToStoreID string
	OperatorID        string
	IdempotencyKey    string
}

// SeedInput is an administrative stock level correction. It bypasses the
// normal adjustment types but still writes an OTHER ledger entry for audit.
type SeedInput struct {
	ItemID     string `validate:"required"`
	StoreID    string `validate:"required"`
	Quantity   float64
	Threshold  *float64
	Reason     string
	OperatorID string
}

// AdjustmentResult returns the state produced by one committed adjustment.
// Transfers carry two levels and two entries, correlated by TransferID.
type AdjustmentResult struct {
	Levels        []StockLevel      `json:"levels"`
	Entries       []StockAdjustment `json:"entries"`
	NegativeStock bool              `json:"negativeStock"`
	LowStock      bool              `json:"lowStock"`
}

// AdjustmentFilter narrows ledger queries.
type AdjustmentFilter struct {
	ItemID     string
	StoreID    string
	Type       AdjustmentType
	OperatorID string
	StartDate  time.Time
	EndDate    time.Time
	Page       int
	PerPage    int
}

// LevelFilter narrows stock level listings.
type LevelFilter struct {
	StoreID  string
	Category string
	Name     string
	LowStock *bool
	IsActive *bool
	Page     int
	PerPage  int
}

// ItemInfo is the slice of catalog data the engine needs: existence, active
// flag, and the default low-stock threshold.
type ItemInfo struct {
	ID        string
	Name      string
	Category  string
	Unit      string
	Threshold float64
	Active    bool
}

// LevelView joins a stock level with its catalog item for listings. Threshold
// is the effective low-stock threshold: the per-store override when present,
// the item default otherwise.
type LevelView struct {
	ItemID    string  `json:"itemId"`
	StoreID   string  `json:"storeId"`
	ItemName  string  `json:"itemName"`
	Category  string  `json:"category"`
	Unit      string  `json:"unit"`
	Quantity  float64 `json:"quantity"`
	Threshold float64 `json:"threshold"`
	LowStock  bool    `json:"lowStock"`
	IsActive  bool    `json:"isActive"`
}

// ReconcileReport is the outcome of one ledger-versus-level check.
type ReconcileReport struct {
	ItemID     string  `json:"itemId"`
	StoreID    string  `json:"storeId"`
	LevelQty   float64 `json:"levelQuantity"`
	LedgerSum  float64 `json:"ledgerSum"`
	Consistent bool    `json:"consistent"`
}
