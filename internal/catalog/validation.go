package catalog

import (
	"github.com/go-playground/validator/v10"

	"github.com/chatscai10/friedg-inventory/internal/shared"
)

var validate = validator.New()

type itemRules struct {
	Name              string   `validate:"required"`
	Category          string   `validate:"required"`
	Unit              string   `validate:"required"`
	LowStockThreshold float64  `validate:"gte=0"`
	CostPerUnit       float64  `validate:"gte=0"`
	ImageURLs         []string `validate:"dive,url"`
}

var itemFieldNames = map[string]string{
	"Name":              "name",
	"Category":          "category",
	"Unit":              "unit",
	"LowStockThreshold": "lowStockThreshold",
	"CostPerUnit":       "costPerUnit",
	"ImageURLs":         "imageUrls",
}

// validateItem reports every violated field of an item payload.
func validateItem(item Item) error {
	vErr := shared.NewValidationError()
	rules := itemRules{
		Name:              item.Name,
		Category:          item.Category,
		Unit:              item.Unit,
		LowStockThreshold: item.LowStockThreshold,
		CostPerUnit:       item.CostPerUnit,
		ImageURLs:         item.ImageURLs,
	}
	if err := validate.Struct(rules); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			name := itemFieldNames[fieldErr.StructField()]
			if name == "" {
				name = fieldErr.StructField()
			}
			switch fieldErr.Tag() {
			case "required":
				vErr.Add(name, "is required")
			case "gte":
				vErr.Add(name, "must be non-negative")
			case "url":
				vErr.Add(name, "must be a well-formed URL")
			default:
				vErr.Add(name, "is invalid")
			}
		}
	}
	if item.Supplier != nil && item.Supplier.DefaultOrderQty < 0 {
		vErr.Add("supplier.defaultOrderQty", "must be non-negative")
	}
	return vErr.ErrOrNil()
}
