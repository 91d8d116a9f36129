package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatscai10/friedg-inventory/internal/shared"
)

func validInput() AdjustmentInput {
	return AdjustmentInput{
		ItemID:   "item-1",
		StoreID:  "store-1",
		Type:     AdjustmentReceipt,
		Quantity: 5,
	}
}

func TestValidateAdjustment(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AdjustmentInput)
		fields []string
	}{
		{
			name:   "valid receipt",
			mutate: func(*AdjustmentInput) {},
		},
		{
			name:   "missing item",
			mutate: func(in *AdjustmentInput) { in.ItemID = "" },
			fields: []string{"itemId"},
		},
		{
			name:   "missing store",
			mutate: func(in *AdjustmentInput) { in.StoreID = "" },
			fields: []string{"storeId"},
		},
		{
			name:   "zero quantity",
			mutate: func(in *AdjustmentInput) { in.Quantity = 0 },
			fields: []string{"quantityAdjusted"},
		},
		{
			name:   "NaN quantity",
			mutate: func(in *AdjustmentInput) { in.Quantity = math.NaN() },
			fields: []string{"quantityAdjusted"},
		},
		{
			name:   "infinite quantity",
			mutate: func(in *AdjustmentInput) { in.Quantity = math.Inf(1) },
			fields: []string{"quantityAdjusted"},
		},
		{
			name:   "unknown type",
			mutate: func(in *AdjustmentInput) { in.Type = "RESTOCK" },
			fields: []string{"adjustmentType"},
		},
		{
			name: "transfer without destination",
			mutate: func(in *AdjustmentInput) {
				in.Type = AdjustmentTransfer
			},
			fields: []string{"transferToStoreId"},
		},
		{
			name: "transfer to same store",
			mutate: func(in *AdjustmentInput) {
				in.Type = AdjustmentTransfer
				in.TransferToStoreID = in.StoreID
			},
			fields: []string{"transferToStoreId"},
		},
		{
			name: "destination on non-transfer",
			mutate: func(in *AdjustmentInput) {
				in.TransferToStoreID = "store-2"
			},
			fields: []string{"transferToStoreId"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(&input)
			err := ValidateAdjustment(input)
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			var vErr *shared.ValidationError
			require.ErrorAs(t, err, &vErr)
			for _, field := range tt.fields {
				assert.Contains(t, vErr.Fields, field)
			}
		})
	}
}

func TestValidateAdjustmentFilterDateRange(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	err := ValidateAdjustmentFilter(AdjustmentFilter{
		StartDate: start,
		EndDate:   start.AddDate(0, 0, -1),
	})
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "endDate")

	assert.NoError(t, ValidateAdjustmentFilter(AdjustmentFilter{
		StartDate: start,
		EndDate:   start,
	}))
}

func TestValidateSeed(t *testing.T) {
	negative := -1.0
	err := ValidateSeed(SeedInput{Threshold: &negative})
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "itemId")
	assert.Contains(t, vErr.Fields, "storeId")
	assert.Contains(t, vErr.Fields, "threshold")

	assert.NoError(t, ValidateSeed(SeedInput{ItemID: "item-1", StoreID: "store-1", Quantity: 0}))
}
