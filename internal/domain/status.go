package domain

// Status is shared by orders and order items.
type Status string

const (
	StatusPending        Status = "pending"
	StatusProcessing     Status = "processing"
	StatusShipping       Status = "shipping"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusShipped        Status = "shipped"
	StatusFailed         Status = "failed"
	StatusRejected       Status = "rejected"
	StatusCancelled      Status = "cancelled"
	StatusReturned       Status = "returned"
)

var allStatuses = [...]Status{
	StatusPending,
	StatusProcessing,
	StatusShipping,
	StatusInTransit,
	StatusOutForDelivery,
	StatusDelivered,
	StatusShipped,
	StatusFailed,
	StatusRejected,
	StatusCancelled,
	StatusReturned,
}

// Statuses returns every order/item status in declaration order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses[:])
	return out
}

func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	return s, s.Valid()
}

// ShippingStatus is the carrier-side status of a ShippingInfo. It has no
// shipped or rejected value.
type ShippingStatus string

const (
	ShippingPending        ShippingStatus = "pending"
	ShippingProcessing     ShippingStatus = "processing"
	ShippingShipping       ShippingStatus = "shipping"
	ShippingInTransit      ShippingStatus = "in_transit"
	ShippingOutForDelivery ShippingStatus = "out_for_delivery"
	ShippingDelivered      ShippingStatus = "delivered"
	ShippingFailed         ShippingStatus = "failed"
	ShippingReturned       ShippingStatus = "returned"
)

var allShippingStatuses = [...]ShippingStatus{
	ShippingPending,
	ShippingProcessing,
	ShippingShipping,
	ShippingInTransit,
	ShippingOutForDelivery,
	ShippingDelivered,
	ShippingFailed,
	ShippingReturned,
}

func ShippingStatuses() []ShippingStatus {
	out := make([]ShippingStatus, len(allShippingStatuses))
	copy(out, allShippingStatuses[:])
	return out
}

func ParseShippingStatus(raw string) (ShippingStatus, bool) {
	s := ShippingStatus(raw)
	for _, v := range allShippingStatuses {
		if v == s {
			return s, true
		}
	}
	return s, false
}

// ItemStatus maps a carrier status onto the order item it tracks.
func (s ShippingStatus) ItemStatus() Status {
	switch s {
	case ShippingPending, ShippingProcessing:
		return StatusProcessing
	case ShippingShipping, ShippingInTransit, ShippingOutForDelivery:
		return StatusShipping
	case ShippingDelivered:
		return StatusDelivered
	case ShippingFailed:
		return StatusFailed
	case ShippingReturned:
		return StatusReturned
	}
	return StatusProcessing
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFailed     PaymentStatus = "failed"
)

// InFlight reports whether a payment attempt is still underway. Orders
// with an in-flight payment are never expired.
func (s PaymentStatus) InFlight() bool {
	return s == PaymentPending || s == PaymentProcessing
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed
}

type PaymentMethod string

const (
	MethodCOD    PaymentMethod = "COD"
	MethodPayPal PaymentMethod = "PayPal"
)

func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch PaymentMethod(raw) {
	case MethodCOD:
		return MethodCOD, true
	case MethodPayPal:
		return MethodPayPal, true
	}
	return PaymentMethod(raw), false
}
