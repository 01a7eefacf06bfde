package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID          uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	BuyerID     uint64          `json:"buyerId" gorm:"not null;index"`
	AddressID   uint64          `json:"addressId" gorm:"not null"`
	Subtotal    decimal.Decimal `json:"subtotal" gorm:"type:decimal(14,2);not null"`
	Discount    decimal.Decimal `json:"discount" gorm:"type:decimal(14,2);not null"`
	ShippingFee decimal.Decimal `json:"shippingFee" gorm:"type:decimal(14,2);not null"`
	TotalPrice  decimal.Decimal `json:"totalPrice" gorm:"type:decimal(14,2);not null"`
	VoucherCode string          `json:"voucherCode,omitempty" gorm:"size:64"`
	Status      Status          `json:"status" gorm:"type:enum('pending','processing','shipping','in_transit','out_for_delivery','delivered','shipped','failed','rejected','cancelled','returned');default:'pending';index:idx_orders_status_created,priority:1"`
	CreatedAt   time.Time       `json:"createdAt" gorm:"index:idx_orders_status_created,priority:2"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type OrderItem struct {
	ID          uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID     uint64          `json:"orderId" gorm:"not null;index"`
	ProductID   uint64          `json:"productId" gorm:"not null;index"`
	SellerID    uint64          `json:"sellerId" gorm:"not null;index"`
	ProductName string          `json:"productName" gorm:"size:255"`
	Quantity    int64           `json:"quantity" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"unitPrice" gorm:"type:decimal(14,2);not null"`
	Status      Status          `json:"status" gorm:"type:enum('pending','processing','shipping','in_transit','out_for_delivery','delivered','shipped','failed','rejected','cancelled','returned');default:'pending'"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// LineTotal is unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// ItemStatuses extracts the statuses of items in order.
func ItemStatuses(items []OrderItem) []Status {
	out := make([]Status, 0, len(items))
	for _, it := range items {
		out = append(out, it.Status)
	}
	return out
}

type Inventory struct {
	ProductID   uint64    `json:"productId" gorm:"primaryKey;autoIncrement:false"`
	Quantity    int64     `json:"quantity" gorm:"not null;default:0"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type Address struct {
	ID         uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     uint64 `json:"userId" gorm:"not null;index"`
	FullName   string `json:"fullName" gorm:"size:128"`
	Phone      string `json:"phone" gorm:"size:32"`
	Street     string `json:"street" gorm:"size:255"`
	City       string `json:"city" gorm:"size:128"`
	ProvinceID int    `json:"provinceId"`
	DistrictID int    `json:"districtId"`
	WardCode   string `json:"wardCode" gorm:"size:32"`
	IsDefault  bool   `json:"isDefault" gorm:"default:false"`
}

// Routable reports whether the address carries the carrier codes needed
// to quote a shipping fee.
func (a *Address) Routable() bool {
	return a != nil && a.DistrictID > 0 && a.WardCode != ""
}
