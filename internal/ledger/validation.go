package ledger

import (
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/chatscai10/friedg-inventory/internal/shared"
)

var validate = validator.New()

var adjustmentFieldNames = map[string]string{
	"ItemID":   "itemId",
	"StoreID":  "storeId",
	"Type":     "adjustmentType",
	"Quantity": "quantityAdjusted",
}

// ValidateAdjustment checks an adjustment request against structural and
// business rules, reporting every violated field.
func ValidateAdjustment(input AdjustmentInput) error {
	vErr := shared.NewValidationError()
	if err := validate.Struct(input); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			name := adjustmentFieldNames[fieldErr.StructField()]
			if name == "" {
				continue
			}
			if name == "quantityAdjusted" {
				vErr.Add(name, "must be non-zero")
				continue
			}
			vErr.Add(name, "is required")
		}
	}
	if input.Type != "" && !input.Type.Valid() {
		vErr.Add("adjustmentType", "is not a recognized adjustment type")
	}
	if math.IsNaN(input.Quantity) || math.IsInf(input.Quantity, 0) {
		vErr.Add("quantityAdjusted", "must be a finite number")
	}
	if input.Type == AdjustmentTransfer {
		switch {
		case input.TransferToStoreID == "":
			vErr.Add("transferToStoreId", "is required for TRANSFER adjustments")
		case input.TransferToStoreID == input.StoreID:
			vErr.Add("transferToStoreId", "must differ from storeId")
		}
	} else if input.TransferToStoreID != "" {
		vErr.Add("transferToStoreId", "is only meaningful for TRANSFER adjustments")
	}
	return vErr.ErrOrNil()
}

// ValidateSeed checks an administrative level upsert.
func ValidateSeed(input SeedInput) error {
	vErr := shared.NewValidationError()
	if input.ItemID == "" {
		vErr.Add("itemId", "is required")
	}
	if input.StoreID == "" {
		vErr.Add("storeId", "is required")
	}
	if math.IsNaN(input.Quantity) || math.IsInf(input.Quantity, 0) {
		vErr.Add("quantity", "must be a finite number")
	}
	if input.Threshold != nil && *input.Threshold < 0 {
		vErr.Add("threshold", "must be non-negative")
	}
	return vErr.ErrOrNil()
}

// ValidateAdjustmentFilter checks a ledger query for well-formed ranges.
func ValidateAdjustmentFilter(filter AdjustmentFilter) error {
	vErr := shared.NewValidationError()
	if filter.Type != "" && !filter.Type.Valid() {
		vErr.Add("adjustmentType", "is not a recognized adjustment type")
	}
	if !filter.StartDate.IsZero() && !filter.EndDate.IsZero() && filter.EndDate.Before(filter.StartDate) {
		vErr.Add("endDate", "must not be before startDate")
	}
	if filter.Page < 0 {
		vErr.Add("page", "must be non-negative")
	}
	if filter.PerPage < 0 {
		vErr.Add("perPage", "must be non-negative")
	}
	return vErr.ErrOrNil()
}

// ValidateLevelFilter checks a stock level listing request.
func ValidateLevelFilter(filter LevelFilter) error {
	vErr := shared.NewValidationError()
	if filter.Page < 0 {
		vErr.Add("page", "must be non-negative")
	}
	if filter.PerPage < 0 {
		vErr.Add("perPage", "must be non-negative")
	}
	return vErr.ErrOrNil()
}
