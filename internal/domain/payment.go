package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Payment struct {
	ID            uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID       uint64          `json:"orderId" gorm:"not null;uniqueIndex"`
	UserID        uint64          `json:"userId" gorm:"not null;index"`
	Method        PaymentMethod   `json:"method" gorm:"type:enum('COD','PayPal');not null"`
	Status        PaymentStatus   `json:"status" gorm:"type:enum('pending','processing','paid','failed');default:'pending'"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null"`
	TransactionID string          `json:"transactionId,omitempty" gorm:"size:128;index"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// PaymentArchive keeps a replaced payment for audit.
type PaymentArchive struct {
	ID                uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	OriginalPaymentID uint64          `json:"originalPaymentId" gorm:"not null"`
	OrderID           uint64          `json:"orderId" gorm:"not null;index"`
	UserID            uint64          `json:"userId" gorm:"not null"`
	Method            PaymentMethod   `json:"method" gorm:"size:16"`
	Status            PaymentStatus   `json:"status" gorm:"size:16"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(14,2)"`
	TransactionID     string          `json:"transactionId,omitempty" gorm:"size:128"`
	PaidAt            *time.Time      `json:"paidAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	ArchivedAt        time.Time       `json:"archivedAt"`
}

func NewPaymentArchive(p *Payment, at time.Time) *PaymentArchive {
	return &PaymentArchive{
		OriginalPaymentID: p.ID,
		OrderID:           p.OrderID,
		UserID:            p.UserID,
		Method:            p.Method,
		Status:            p.Status,
		Amount:            p.Amount,
		TransactionID:     p.TransactionID,
		PaidAt:            p.PaidAt,
		CreatedAt:         p.CreatedAt,
		ArchivedAt:        at,
	}
}
