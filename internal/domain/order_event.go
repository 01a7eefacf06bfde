package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderCancelled     = "order.cancelled"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentPaid        = "payment.paid"
	EventPaymentFailed      = "payment.failed"
)

const (
	CancelReasonPaymentTimeout = "payment_timeout"
	CancelReasonBuyer          = "buyer_cancelled"
)

type OrderLineEvent struct {
	ProductID uint64          `json:"productId"`
	SellerID  uint64          `json:"sellerId"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// OrderCreatedEvent also drives the buyer confirmation notification.
type OrderCreatedEvent struct {
	OrderID     uint64           `json:"orderId"`
	BuyerID     uint64           `json:"buyerId"`
	Subtotal    decimal.Decimal  `json:"subtotal"`
	Discount    decimal.Decimal  `json:"discount"`
	ShippingFee decimal.Decimal  `json:"shippingFee"`
	TotalPrice  decimal.Decimal  `json:"totalPrice"`
	Items       []OrderLineEvent `json:"items"`
	CreatedAt   time.Time        `json:"createdAt"`
}

func (e OrderCreatedEvent) CorrelationKey() string { return strconv.FormatUint(e.OrderID, 10) }

type OrderCancelledEvent struct {
	OrderID     uint64    `json:"orderId"`
	BuyerID     uint64    `json:"buyerId"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelledAt"`
}

func (e OrderCancelledEvent) CorrelationKey() string { return strconv.FormatUint(e.OrderID, 10) }

type OrderStatusChangedEvent struct {
	OrderID   uint64    `json:"orderId"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ChangedAt time.Time `json:"changedAt"`
}

func (e OrderStatusChangedEvent) CorrelationKey() string { return strconv.FormatUint(e.OrderID, 10) }

type PaymentEvent struct {
	PaymentID     uint64          `json:"paymentId"`
	OrderID       uint64          `json:"orderId"`
	Method        PaymentMethod   `json:"method"`
	Status        PaymentStatus   `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId,omitempty"`
	At            time.Time       `json:"at"`
}

func (e PaymentEvent) CorrelationKey() string { return strconv.FormatUint(e.OrderID, 10) }
