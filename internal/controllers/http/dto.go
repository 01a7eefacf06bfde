package http

import "time"

type OrderLineRequest struct {
	ProductID uint64 `json:"productId" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required,min=1"`
}

type CreateOrderRequest struct {
	AddressID   uint64             `json:"addressId" binding:"required"`
	Items       []OrderLineRequest `json:"items" binding:"required,min=1,dive"`
	VoucherCode string             `json:"voucherCode"`
}

type ListQuery struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Status string `form:"status"`
}

type CreatePaymentRequest struct {
	OrderID         uint64 `json:"orderId" binding:"required"`
	Method          string `json:"paymentMethod" binding:"required"`
	ReplaceExisting bool   `json:"replaceExisting"`
}

type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

type UpdateItemStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type CreateTrackingRequest struct {
	OrderItemID      uint64     `json:"orderItemId" binding:"required"`
	Carrier          string     `json:"carrier"`
	EstimatedArrival *time.Time `json:"estimatedArrival"`
}

type UpdateShippingRequest struct {
	Status   string `json:"status" binding:"required"`
	Location string `json:"location"`
	Notes    string `json:"notes"`
}
