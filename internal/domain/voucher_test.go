package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestVoucher_Apply(t *testing.T) {
	tests := []struct {
		name     string
		voucher  *Voucher
		subtotal string
		want     string
		wantErr  error
	}{
		{
			name:     "percentage capped at max discount",
			voucher:  &Voucher{Code: "PCT10", DiscountType: DiscountPercentage, Discount: dec("10"), MaxDiscount: dec("5"), IsActive: true},
			subtotal: "100",
			want:     "5",
		},
		{
			name:     "percentage without cap",
			voucher:  &Voucher{Code: "PCT10", DiscountType: DiscountPercentage, Discount: dec("10"), IsActive: true},
			subtotal: "100",
			want:     "10",
		},
		{
			name:     "percentage under cap",
			voucher:  &Voucher{Code: "PCT10", DiscountType: DiscountPercentage, Discount: dec("10"), MaxDiscount: dec("50"), IsActive: true},
			subtotal: "120",
			want:     "12",
		},
		{
			name:     "fixed",
			voucher:  &Voucher{Code: "SAVE5", DiscountType: DiscountFixed, Discount: dec("5"), MinOrderValue: dec("15"), IsActive: true},
			subtotal: "20",
			want:     "5",
		},
		{
			name:     "minimum not met",
			voucher:  &Voucher{Code: "SAVE5", DiscountType: DiscountFixed, Discount: dec("5"), MinOrderValue: dec("15"), IsActive: true},
			subtotal: "10",
			wantErr:  ErrMinOrderNotMet,
		},
		{
			name:     "inactive",
			voucher:  &Voucher{Code: "OLD", DiscountType: DiscountFixed, Discount: dec("5"), IsActive: false},
			subtotal: "100",
			wantErr:  ErrInvalidVoucher,
		},
		{
			name:     "absent",
			voucher:  nil,
			subtotal: "100",
			wantErr:  ErrInvalidVoucher,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.voucher.Apply(dec(tt.subtotal))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			assert.NoError(t, err)
			assert.True(t, dec(tt.want).Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestVoucher_PercentageNeverExceedsCap(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		pct := rapid.IntRange(1, 100).Draw(rt, "pct")
		capCents := rapid.Int64Range(1, 100000).Draw(rt, "cap")
		subCents := rapid.Int64Range(0, 10000000).Draw(rt, "subtotal")

		v := &Voucher{
			Code:         "P",
			DiscountType: DiscountPercentage,
			Discount:     decimal.NewFromInt(int64(pct)),
			MaxDiscount:  decimal.New(capCents, -2),
			IsActive:     true,
		}
		got, err := v.Apply(decimal.New(subCents, -2))
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if got.GreaterThan(v.MaxDiscount) {
			rt.Fatalf("discount %s exceeds cap %s", got, v.MaxDiscount)
		}
		if got.IsNegative() {
			rt.Fatalf("negative discount %s", got)
		}
	})
}
