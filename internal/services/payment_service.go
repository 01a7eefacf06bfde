package services

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/infra"
	"marketplace-orders/internal/infra/metrics"
	rabbit "marketplace-orders/internal/infra/rabbitmq"
	"marketplace-orders/internal/repository"
)

const callbackPath = "/api/payments/paypal/callback"

// Callback outcomes, reported to the buyer's result page.
const (
	OutcomePaid          = "paid"
	OutcomeCancelled     = "cancelled"
	OutcomeCaptureFailed = "capture_failed"
	OutcomeTokenMismatch = "token_mismatch"
	OutcomeNotFound      = "payment_not_found"
	OutcomeFailed        = "payment_failed"
)

type PaymentConfig struct {
	ReturnBaseURL string
	Currency      string
	// StrictToken fails a callback whose token differs from the stored
	// gateway order id instead of only logging it.
	StrictToken bool
	// VerifyAfter is how old an unsettled PayPal payment must be before
	// the verification task asks the gateway about it.
	VerifyAfter time.Duration
	// AbandonAfter fails a payment the buyer never approved at the gateway.
	AbandonAfter time.Duration
}

type CreatePaymentInput struct {
	UserID          uint64
	OrderID         uint64
	Method          string
	ReplaceExisting bool
}

type PaymentResult struct {
	Payment     *domain.Payment `json:"payment"`
	ApprovalURL string          `json:"approvalUrl,omitempty"`
}

type CallbackInput struct {
	OrderID uint64
	Token   string
	Success bool
}

type CallbackResult struct {
	Payment *domain.Payment
	Outcome string
}

type PaymentService struct {
	orders    repository.OrderRepository
	payments  repository.PaymentRepository
	gateway   infra.PaymentGateway
	publisher rabbit.PublisherInterface
	syncer    *Synchronizer
	clock     Clock
	cfg       PaymentConfig
	locks     keyedMutex
	bg        background
}

func NewPaymentService(orders repository.OrderRepository, payments repository.PaymentRepository, gw infra.PaymentGateway, pub rabbit.PublisherInterface, syncer *Synchronizer, cfg PaymentConfig) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.VerifyAfter <= 0 {
		cfg.VerifyAfter = 10 * time.Minute
	}
	if cfg.AbandonAfter <= 0 {
		cfg.AbandonAfter = 30 * time.Minute
	}
	return &PaymentService{
		orders:    orders,
		payments:  payments,
		gateway:   gw,
		publisher: pub,
		syncer:    syncer,
		clock:     SystemClock{},
		cfg:       cfg,
	}
}

func (s *PaymentService) SetClock(c Clock) { s.clock = c }

func (s *PaymentService) Wait() { s.bg.Wait() }

func (s *PaymentService) ownedOrder(ctx context.Context, userID, orderID uint64) (*domain.Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if o.BuyerID != userID {
		return nil, domain.Errorf(domain.KindUnauthorized, "order %d does not belong to user", orderID)
	}
	return o, nil
}

func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*PaymentResult, error) {
	method, ok := domain.ParsePaymentMethod(in.Method)
	if !ok {
		return nil, domain.Errorf(domain.KindValidation, "unsupported payment method %q", in.Method)
	}

	order, err := s.ownedOrder(ctx, in.UserID, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusPending {
		return nil, domain.Errorf(domain.KindInvalidOrderState, "order %d is %s and cannot be paid", order.ID, order.Status)
	}

	existing, err := s.payments.FindByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && !in.ReplaceExisting {
		return nil, domain.Errorf(domain.KindInvalidOrderState, "order %d already has a %s payment", order.ID, existing.Status)
	}

	now := s.clock.Now()
	p := &domain.Payment{
		OrderID:   order.ID,
		UserID:    in.UserID,
		Method:    method,
		Status:    domain.PaymentPending,
		Amount:    order.TotalPrice,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		err = s.payments.Replace(ctx, existing, p, now)
	} else {
		err = s.payments.Create(ctx, p)
	}
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Printf("[payment] replaced payment %d for order %d", existing.ID, order.ID)
	}
	metrics.PaymentsTotal.WithLabelValues(string(method), string(domain.PaymentPending)).Inc()

	if method == domain.MethodCOD {
		return &PaymentResult{Payment: p}, nil
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, infra.GatewayOrderRequest{
		OrderID:     order.ID,
		Amount:      p.Amount,
		Currency:    s.cfg.Currency,
		Description: fmt.Sprintf("Order #%d", order.ID),
		ReturnURL:   s.callbackURL(order.ID, true),
		CancelURL:   s.callbackURL(order.ID, false),
	})
	if err != nil {
		s.fail(ctx, p)
		return nil, domain.Wrap(domain.KindExternalService, err, "payment gateway unavailable")
	}

	p.TransactionID = gwOrder.ID
	p.UpdatedAt = s.clock.Now()
	if err := s.payments.Save(ctx, p); err != nil {
		return nil, err
	}
	log.Printf("[payment] order %d: gateway order %s created", order.ID, gwOrder.ID)
	return &PaymentResult{Payment: p, ApprovalURL: gwOrder.ApprovalURL}, nil
}

func (s *PaymentService) callbackURL(orderID uint64, success bool) string {
	q := url.Values{}
	q.Set("orderId", fmt.Sprint(orderID))
	q.Set("success", fmt.Sprint(success))
	return s.cfg.ReturnBaseURL + callbackPath + "?" + q.Encode()
}

// HandleCallback settles a payment after the buyer returns from the
// gateway. Paid and failed payments are final, so repeated or late
// callbacks never capture again.
func (s *PaymentService) HandleCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	if in.OrderID == 0 || in.Token == "" {
		return nil, domain.Errorf(domain.KindValidation, "orderId and token are required")
	}

	unlock := s.locks.Lock(in.OrderID)
	defer unlock()

	p, err := s.payments.FindByOrderID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.Errorf(domain.KindNotFound, "payment for order %d not found", in.OrderID)
	}
	switch p.Status {
	case domain.PaymentPaid:
		return &CallbackResult{Payment: p, Outcome: OutcomePaid}, nil
	case domain.PaymentFailed:
		log.Printf("[payment] order %d: callback for failed payment %d ignored", in.OrderID, p.ID)
		return &CallbackResult{Payment: p, Outcome: OutcomeFailed}, nil
	}

	if p.TransactionID != in.Token {
		log.Printf("[payment] order %d: callback token %q does not match gateway order %q", in.OrderID, in.Token, p.TransactionID)
		if s.cfg.StrictToken {
			s.fail(ctx, p)
			return &CallbackResult{Payment: p, Outcome: OutcomeTokenMismatch}, nil
		}
	}

	if !in.Success {
		s.fail(ctx, p)
		return &CallbackResult{Payment: p, Outcome: OutcomeCancelled}, nil
	}

	// Only the gateway order recorded at creation is ever captured.
	if p.TransactionID == "" {
		log.Printf("[payment] order %d: no gateway order recorded, nothing to capture", in.OrderID)
		s.fail(ctx, p)
		return &CallbackResult{Payment: p, Outcome: OutcomeCaptureFailed}, nil
	}

	p.Status = domain.PaymentProcessing
	p.UpdatedAt = s.clock.Now()
	if err := s.payments.Save(ctx, p); err != nil {
		return nil, err
	}
	metrics.PaymentsTotal.WithLabelValues(string(p.Method), string(p.Status)).Inc()

	if err := s.capture(ctx, p); err != nil {
		log.Printf("[payment] order %d: capture failed: %v", in.OrderID, err)
		s.fail(ctx, p)
		return &CallbackResult{Payment: p, Outcome: OutcomeCaptureFailed}, nil
	}
	if err := s.markPaid(ctx, p); err != nil {
		return nil, err
	}
	return &CallbackResult{Payment: p, Outcome: OutcomePaid}, nil
}

func (s *PaymentService) capture(ctx context.Context, p *domain.Payment) error {
	res, err := s.gateway.CaptureOrder(ctx, p.TransactionID)
	if err != nil {
		return err
	}
	if res == nil || !res.Completed() {
		return fmt.Errorf("capture not completed: %+v", res)
	}
	log.Printf("[payment] order %d: gateway order %s captured (%s)", p.OrderID, p.TransactionID, res.ID)
	return nil
}

func (s *PaymentService) markPaid(ctx context.Context, p *domain.Payment) error {
	now := s.clock.Now()
	p.Status = domain.PaymentPaid
	p.PaidAt = &now
	p.UpdatedAt = now
	if err := s.payments.Save(ctx, p); err != nil {
		return err
	}
	metrics.PaymentsTotal.WithLabelValues(string(p.Method), string(p.Status)).Inc()
	log.Printf("[payment] order %d paid", p.OrderID)

	evt := paymentEvent(p, now)
	s.bg.Go(func() { publishEvent(s.publisher, domain.EventPaymentPaid, evt) })
	s.syncer.syncLogged(ctx, p.OrderID)
	return nil
}

// fail marks p failed. A save error is logged because the caller already
// has a more specific outcome to report.
func (s *PaymentService) fail(ctx context.Context, p *domain.Payment) {
	now := s.clock.Now()
	p.Status = domain.PaymentFailed
	p.UpdatedAt = now
	if err := s.payments.Save(ctx, p); err != nil {
		log.Printf("[payment] order %d: marking payment failed: %v", p.OrderID, err)
		return
	}
	metrics.PaymentsTotal.WithLabelValues(string(p.Method), string(p.Status)).Inc()
	evt := paymentEvent(p, now)
	s.bg.Go(func() { publishEvent(s.publisher, domain.EventPaymentFailed, evt) })
}

func paymentEvent(p *domain.Payment, at time.Time) domain.PaymentEvent {
	return domain.PaymentEvent{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		Method:        p.Method,
		Status:        p.Status,
		Amount:        p.Amount,
		TransactionID: p.TransactionID,
		At:            at,
	}
}

func (s *PaymentService) GetPaymentStatus(ctx context.Context, userID, orderID uint64) (*domain.Payment, error) {
	if _, err := s.ownedOrder(ctx, userID, orderID); err != nil {
		return nil, err
	}
	p, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.Errorf(domain.KindNotFound, "payment for order %d not found", orderID)
	}
	return p, nil
}
