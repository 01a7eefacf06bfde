package domain

import "github.com/shopspring/decimal"

type DiscountType string

const (
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

type Voucher struct {
	ID            uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Code          string          `json:"code" gorm:"size:64;uniqueIndex;not null"`
	DiscountType  DiscountType    `json:"discountType" gorm:"type:enum('fixed','percentage');not null"`
	Discount      decimal.Decimal `json:"discount" gorm:"type:decimal(14,2);not null"`
	MinOrderValue decimal.Decimal `json:"minOrderValue" gorm:"type:decimal(14,2);not null;default:0"`
	MaxDiscount   decimal.Decimal `json:"maxDiscount" gorm:"type:decimal(14,2);not null;default:0"`
	IsActive      bool            `json:"isActive" gorm:"default:true"`
	UsedCount     int64           `json:"usedCount" gorm:"not null;default:0"`
}

var hundred = decimal.NewFromInt(100)

// Apply checks the voucher against subtotal and returns the discount.
func (v *Voucher) Apply(subtotal decimal.Decimal) (decimal.Decimal, error) {
	if v == nil || !v.IsActive {
		return decimal.Zero, Errorf(KindInvalidVoucher, "invalid or inactive voucher")
	}
	if subtotal.LessThan(v.MinOrderValue) {
		return decimal.Zero, Errorf(KindMinOrderNotMet,
			"minimum order value for voucher %s is %s", v.Code, v.MinOrderValue.StringFixed(2))
	}

	switch v.DiscountType {
	case DiscountFixed:
		return v.Discount, nil
	case DiscountPercentage:
		d := subtotal.Mul(v.Discount).Div(hundred)
		if v.MaxDiscount.IsPositive() && d.GreaterThan(v.MaxDiscount) {
			d = v.MaxDiscount
		}
		return d, nil
	}
	return decimal.Zero, Errorf(KindInvalidVoucher, "voucher %s has unknown discount type %q", v.Code, v.DiscountType)
}
