package infra

import (
	"context"

	"github.com/shopspring/decimal"
)

type ProductClientInterface interface {
	GetProductById(ctx context.Context, id uint64) (*ProductInfo, error)
}

var _ ProductClientInterface = (*ProductClient)(nil)

// FeeRequest describes one parcel quote between two carrier districts.
type FeeRequest struct {
	FromDistrictID int
	ToDistrictID   int
	ToWardCode     string
	ServiceTypeID  int
	WeightGrams    int
	InsuranceValue int64
}

type ShippingFeeResolver interface {
	CalculateFee(ctx context.Context, req FeeRequest) (decimal.Decimal, error)
}

type GatewayOrderRequest struct {
	OrderID     uint64
	Amount      decimal.Decimal
	Currency    string
	Description string
	ReturnURL   string
	CancelURL   string
}

type GatewayOrder struct {
	ID          string
	ApprovalURL string
	Status      string
}

type CaptureResult struct {
	ID     string
	Status string
}

// Completed reports whether the gateway confirmed the funds.
func (c CaptureResult) Completed() bool {
	return c.Status == "COMPLETED" || c.Status == "APPROVED"
}

// Gateway order states reported by GetOrder.
const (
	GatewayOrderCreated   = "CREATED"
	GatewayOrderApproved  = "APPROVED"
	GatewayOrderCompleted = "COMPLETED"
	GatewayOrderVoided    = "VOIDED"
)

type PaymentGateway interface {
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error)
	CaptureOrder(ctx context.Context, gatewayOrderID string) (*CaptureResult, error)
	GetOrder(ctx context.Context, gatewayOrderID string) (*GatewayOrder, error)
}

type ChatReply struct {
	Text          string
	TransactionID string
	Attempts      int
}

type ChatModel interface {
	// Generate returns the reply; on failure the returned *ChatReply still
	// carries the last transaction id.
	Generate(ctx context.Context, prompt string) (*ChatReply, error)
}
