package services

import (
	"context"
	"log"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/infra/metrics"
	rabbit "marketplace-orders/internal/infra/rabbitmq"
	"marketplace-orders/internal/repository"
)

type SweepResult struct {
	Scanned   int
	Cancelled int
	Skipped   int
	Failed    int
}

// ExpirationSweeper cancels pending orders that were not paid within the
// deadline and returns their stock. Orders with a payment attempt still
// underway are left alone.
type ExpirationSweeper struct {
	orders    repository.OrderRepository
	payments  repository.PaymentRepository
	publisher rabbit.PublisherInterface
	clock     Clock
	deadline  time.Duration
	bg        background
}

func NewExpirationSweeper(orders repository.OrderRepository, payments repository.PaymentRepository, pub rabbit.PublisherInterface, deadline time.Duration) *ExpirationSweeper {
	return &ExpirationSweeper{
		orders:    orders,
		payments:  payments,
		publisher: pub,
		clock:     SystemClock{},
		deadline:  deadline,
	}
}

func (s *ExpirationSweeper) SetClock(c Clock) { s.clock = c }

func (s *ExpirationSweeper) Wait() { s.bg.Wait() }

func (s *ExpirationSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	defer func() { metrics.ExpirationSweepDuration.Observe(time.Since(start).Seconds()) }()

	var res SweepResult
	now := s.clock.Now()
	candidates, err := s.orders.ListPendingBefore(ctx, now.Add(-s.deadline))
	if err != nil {
		return res, err
	}
	res.Scanned = len(candidates)

	for _, o := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		p, err := s.payments.FindByOrderID(ctx, o.ID)
		if err != nil {
			log.Printf("[sweep] order %d: payment lookup: %v", o.ID, err)
			res.Failed++
			continue
		}
		if p != nil && p.Status.InFlight() {
			res.Skipped++
			continue
		}

		ok, err := s.orders.CancelPending(ctx, o.ID, now)
		if err != nil {
			log.Printf("[sweep] order %d: cancel: %v", o.ID, err)
			res.Failed++
			continue
		}
		if !ok {
			res.Skipped++
			continue
		}

		res.Cancelled++
		metrics.OrdersCancelledTotal.WithLabelValues(domain.CancelReasonPaymentTimeout).Inc()
		evt := domain.OrderCancelledEvent{
			OrderID:     o.ID,
			BuyerID:     o.BuyerID,
			Reason:      domain.CancelReasonPaymentTimeout,
			CancelledAt: now,
		}
		s.bg.Go(func() { publishEvent(s.publisher, domain.EventOrderCancelled, evt) })
	}

	if res.Scanned > 0 {
		log.Printf("[sweep] scanned=%d cancelled=%d skipped=%d failed=%d",
			res.Scanned, res.Cancelled, res.Skipped, res.Failed)
	}
	return res, nil
}

// Run adapts Sweep to the scheduler task signature.
func (s *ExpirationSweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}
