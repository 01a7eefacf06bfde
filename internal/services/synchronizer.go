package services

import (
	"context"
	"log"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/infra/metrics"
	rabbit "marketplace-orders/internal/infra/rabbitmq"
	"marketplace-orders/internal/repository"
)

// Synchronizer keeps Order.status derived from the statuses of its items.
type Synchronizer struct {
	orders    repository.OrderRepository
	publisher rabbit.PublisherInterface
	clock     Clock
	locks     keyedMutex
	bg        background
}

func NewSynchronizer(orders repository.OrderRepository, pub rabbit.PublisherInterface) *Synchronizer {
	return &Synchronizer{orders: orders, publisher: pub, clock: SystemClock{}}
}

func (s *Synchronizer) SetClock(c Clock) { s.clock = c }

// Synchronize recomputes the order status and stores it if it differs. It
// reports whether a write happened.
func (s *Synchronizer) Synchronize(ctx context.Context, orderID uint64) (bool, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	items, err := s.orders.FindItems(ctx, orderID)
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		return false, nil
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil || order == nil {
		return false, err
	}

	derived, ok := domain.DeriveOrderStatus(domain.ItemStatuses(items))
	if !ok || derived == order.Status {
		return false, nil
	}

	changed, err := s.orders.CompareAndSetStatus(ctx, orderID, order.Status, derived)
	if err != nil || !changed {
		return false, err
	}

	log.Printf("[sync] order %d: %s -> %s", orderID, order.Status, derived)
	metrics.OrderStatusChangesTotal.WithLabelValues(string(derived)).Inc()

	evt := domain.OrderStatusChangedEvent{OrderID: orderID, From: order.Status, To: derived, ChangedAt: s.clock.Now()}
	s.bg.Go(func() { publishEvent(s.publisher, domain.EventOrderStatusChanged, evt) })
	return true, nil
}

// syncLogged runs Synchronize where a failure must not fail the caller.
func (s *Synchronizer) syncLogged(ctx context.Context, orderID uint64) {
	if _, err := s.Synchronize(ctx, orderID); err != nil {
		log.Printf("[sync] order %d: %v", orderID, err)
	}
}

func (s *Synchronizer) Wait() { s.bg.Wait() }
