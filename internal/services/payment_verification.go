package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/infra"
)

type VerifyResult struct {
	Scanned int
	Paid    int
	Failed  int
	Pending int
	Skipped int
	Errors  int
}

// VerifyPending settles PayPal payments whose buyer never came back to the
// callback. Each payment older than VerifyAfter is looked up at the gateway
// and settled from the gateway order's status. Orders still awaiting buyer
// approval fail once they pass AbandonAfter so the expiration sweep can
// release their stock.
func (s *PaymentService) VerifyPending(ctx context.Context) (VerifyResult, error) {
	var res VerifyResult
	now := s.clock.Now()
	stale, err := s.payments.ListInFlightBefore(ctx, now.Add(-s.cfg.VerifyAfter))
	if err != nil {
		return res, err
	}
	res.Scanned = len(stale)

	for _, candidate := range stale {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		switch outcome, err := s.verify(ctx, candidate.OrderID, now); {
		case err != nil:
			log.Printf("[payment] verify order %d: %v", candidate.OrderID, err)
			res.Errors++
		case outcome == "":
			res.Skipped++
		case outcome == domain.PaymentPaid:
			res.Paid++
		case outcome == domain.PaymentFailed:
			res.Failed++
		default:
			res.Pending++
		}
	}

	if res.Scanned > 0 {
		log.Printf("[payment] verify scanned=%d paid=%d failed=%d pending=%d skipped=%d errors=%d",
			res.Scanned, res.Paid, res.Failed, res.Pending, res.Skipped, res.Errors)
	}
	return res, nil
}

// verify returns the payment's status after the check, or "" when a
// callback settled it in the meantime.
func (s *PaymentService) verify(ctx context.Context, orderID uint64, now time.Time) (domain.PaymentStatus, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	// a callback may have settled it since the listing
	p, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if p == nil || !p.Status.InFlight() {
		return "", nil
	}

	if p.TransactionID == "" {
		log.Printf("[payment] order %d: no gateway order recorded", orderID)
		s.fail(ctx, p)
		return p.Status, nil
	}

	gw, err := s.gateway.GetOrder(ctx, p.TransactionID)
	if err != nil {
		return "", err
	}
	if gw == nil {
		return "", fmt.Errorf("gateway order %s: empty response", p.TransactionID)
	}

	switch gw.Status {
	case infra.GatewayOrderCompleted:
		if err := s.markPaid(ctx, p); err != nil {
			return "", err
		}
	case infra.GatewayOrderApproved:
		if err := s.capture(ctx, p); err != nil {
			log.Printf("[payment] order %d: capture failed: %v", orderID, err)
			s.fail(ctx, p)
			break
		}
		if err := s.markPaid(ctx, p); err != nil {
			return "", err
		}
	case infra.GatewayOrderVoided:
		s.fail(ctx, p)
	default:
		if p.CreatedAt.Before(now.Add(-s.cfg.AbandonAfter)) {
			log.Printf("[payment] order %d: gateway order %s still %s, abandoning", orderID, p.TransactionID, gw.Status)
			s.fail(ctx, p)
		}
	}
	return p.Status, nil
}

// RunVerification adapts VerifyPending to the scheduler task signature.
func (s *PaymentService) RunVerification(ctx context.Context) error {
	_, err := s.VerifyPending(ctx)
	return err
}
