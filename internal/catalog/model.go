package catalog

import "time"

// SupplierInfo carries optional supplier details for reordering.
type SupplierInfo struct {
	SupplierID      string  `json:"supplierId,omitempty"`
	Name            string  `json:"name,omitempty"`
	Contact         string  `json:"contact,omitempty"`
	DefaultOrderQty float64 `json:"defaultOrderQty,omitempty"`
	LeadTimeDays    int     `json:"leadTimeDays,omitempty"`
}

// Item represents an inventory item in the catalog. Items are created and
// edited by administrators; the adjustment engine only reads them.
type Item struct {
	ID                string        `json:"id"`
	TenantID          string        `json:"tenantId"`
	Name              string        `json:"name"`
	Category          string        `json:"category"`
	Unit              string        `json:"unit"`
	SKU               string        `json:"sku,omitempty"`
	Supplier          *SupplierInfo `json:"supplier,omitempty"`
	LowStockThreshold float64       `json:"lowStockThreshold"`
	CostPerUnit       float64       `json:"costPerUnit"`
	ImageURLs         []string      `json:"imageUrls,omitempty"`
	IsActive          bool          `json:"isActive"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// ListFilters narrows item listings.
type ListFilters struct {
	TenantID string
	Category string
	Search   string
	IsActive *bool
	Page     int
	PerPage  int
}
