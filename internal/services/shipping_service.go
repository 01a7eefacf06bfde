package services

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/repository"
)

const defaultDeliveryWindow = 7 * 24 * time.Hour

type CreateTrackingInput struct {
	SellerID         uint64
	OrderItemID      uint64
	Carrier          string
	EstimatedArrival *time.Time
}

type UpdateShippingInput struct {
	SellerID   uint64
	ShippingID uint64
	Status     string
	Location   string
	Notes      string
}

// SellerItem is an order item as a seller sees it.
type SellerItem struct {
	domain.OrderItem
	HasShippingInfo bool `json:"hasShippingInfo"`
}

type SellerItemPage struct {
	Items      []SellerItem `json:"items"`
	Pagination Pagination   `json:"pagination"`
}

type ShipmentPage struct {
	Shipments  []domain.ShippingInfo `json:"shipments"`
	Pagination Pagination            `json:"pagination"`
}

type ShippingStats struct {
	ByStatus map[domain.ShippingStatus]int64 `json:"byStatus"`
	Total    int64                           `json:"total"`
}

type ShippingService struct {
	orders   repository.OrderRepository
	shipping repository.ShippingRepository
	syncer   *Synchronizer
	clock    Clock
}

func NewShippingService(orders repository.OrderRepository, shipping repository.ShippingRepository, syncer *Synchronizer) *ShippingService {
	return &ShippingService{orders: orders, shipping: shipping, syncer: syncer, clock: SystemClock{}}
}

func (s *ShippingService) SetClock(c Clock) { s.clock = c }

func trackingNumber(now time.Time) string {
	ms := fmt.Sprintf("%d", now.UnixMilli())
	if len(ms) > 8 {
		ms = ms[len(ms)-8:]
	}
	return fmt.Sprintf("SHOPII%s%04d", ms, rand.IntN(10000))
}

func (s *ShippingService) sellerItem(ctx context.Context, sellerID, itemID uint64) (*domain.OrderItem, error) {
	item, err := s.orders.FindItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.Errorf(domain.KindNotFound, "order item %d not found", itemID)
	}
	if item.SellerID != sellerID {
		return nil, domain.Errorf(domain.KindUnauthorized, "order item %d does not belong to seller", itemID)
	}
	return item, nil
}

// CreateTracking opens a shipment for one of the seller's items and moves
// the item to processing.
func (s *ShippingService) CreateTracking(ctx context.Context, in CreateTrackingInput) (*domain.ShippingInfo, error) {
	item, err := s.sellerItem(ctx, in.SellerID, in.OrderItemID)
	if err != nil {
		return nil, err
	}
	if item.Status == domain.StatusCancelled {
		return nil, domain.Errorf(domain.KindInvalidOrderState, "order item %d is cancelled", item.ID)
	}
	existing, err := s.shipping.FindByOrderItemID(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.Errorf(domain.KindInvalidOrderState, "shipping info already exists for item %d", item.ID)
	}

	now := s.clock.Now()
	info := &domain.ShippingInfo{
		OrderItemID:      item.ID,
		SellerID:         in.SellerID,
		Carrier:          in.Carrier,
		TrackingNumber:   trackingNumber(now),
		EstimatedArrival: now.Add(defaultDeliveryWindow),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if info.Carrier == "" {
		info.Carrier = domain.DefaultCarrier
	}
	if in.EstimatedArrival != nil {
		info.EstimatedArrival = *in.EstimatedArrival
	}
	info.Record(domain.ShippingPending, "", "Shipping information created", now)

	if err := s.shipping.Create(ctx, info); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateItemStatus(ctx, item.ID, domain.StatusProcessing); err != nil {
		return nil, err
	}
	log.Printf("[shipping] item %d: tracking %s created", item.ID, info.TrackingNumber)
	s.syncer.syncLogged(ctx, item.OrderID)
	return info, nil
}

func (s *ShippingService) UpdateShippingStatus(ctx context.Context, in UpdateShippingInput) (*domain.ShippingInfo, error) {
	status, ok := domain.ParseShippingStatus(in.Status)
	if !ok {
		return nil, domain.Errorf(domain.KindValidation, "invalid shipping status %q", in.Status)
	}

	info, err := s.shipping.FindByID(ctx, in.ShippingID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, domain.Errorf(domain.KindNotFound, "shipping info %d not found", in.ShippingID)
	}
	if info.SellerID != in.SellerID {
		return nil, domain.Errorf(domain.KindUnauthorized, "shipping info %d does not belong to seller", in.ShippingID)
	}
	item, err := s.orders.FindItemByID(ctx, info.OrderItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.Errorf(domain.KindNotFound, "order item %d not found", info.OrderItemID)
	}

	now := s.clock.Now()
	info.Record(status, in.Location, in.Notes, now)
	info.UpdatedAt = now
	if err := s.shipping.Save(ctx, info); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateItemStatus(ctx, item.ID, status.ItemStatus()); err != nil {
		return nil, err
	}
	log.Printf("[shipping] %s: %s", info.TrackingNumber, status)
	s.syncer.syncLogged(ctx, item.OrderID)
	return info, nil
}

func (s *ShippingService) Track(ctx context.Context, trackingNumber string) (*domain.ShippingInfo, error) {
	info, err := s.shipping.FindByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, domain.Errorf(domain.KindNotFound, "tracking number %s not found", trackingNumber)
	}
	return info, nil
}

// ListShipments pages through the seller's shipments, optionally filtered
// by carrier status.
func (s *ShippingService) ListShipments(ctx context.Context, sellerID uint64, page repository.Page) (*ShipmentPage, error) {
	status := page.Status
	if status != "" {
		if _, ok := domain.ParseShippingStatus(status); !ok {
			return nil, domain.Errorf(domain.KindValidation, "invalid shipping status %q", status)
		}
	}
	page.Status = ""
	page, _ = normalizePage(page)
	page.Status = status

	out, total, err := s.shipping.ListBySeller(ctx, sellerID, page)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.ShippingInfo{}
	}
	return &ShipmentPage{Shipments: out, Pagination: paginationOf(page, total)}, nil
}

func (s *ShippingService) ListSellerItems(ctx context.Context, sellerID uint64, page repository.Page) (*SellerItemPage, error) {
	page, err := normalizePage(page)
	if err != nil {
		return nil, err
	}
	items, total, err := s.orders.ListItemsBySeller(ctx, sellerID, page)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	shipped := make(map[uint64]bool, len(ids))
	if len(ids) > 0 {
		infos, err := s.shipping.FindByOrderItemIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			shipped[info.OrderItemID] = true
		}
	}

	out := &SellerItemPage{Items: make([]SellerItem, 0, len(items)), Pagination: paginationOf(page, total)}
	for _, it := range items {
		out.Items = append(out.Items, SellerItem{OrderItem: it, HasShippingInfo: shipped[it.ID]})
	}
	return out, nil
}

func (s *ShippingService) Stats(ctx context.Context, sellerID uint64) (*ShippingStats, error) {
	counts, err := s.shipping.CountByStatus(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	stats := &ShippingStats{ByStatus: make(map[domain.ShippingStatus]int64)}
	for _, st := range domain.ShippingStatuses() {
		n := counts[st]
		stats.ByStatus[st] = n
		stats.Total += n
	}
	return stats, nil
}
