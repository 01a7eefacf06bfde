package repository

import (
	"context"
	"time"

	"marketplace-orders/internal/domain"
)

// Page is a 1-based pagination window with an optional status filter.
type Page struct {
	Page   int
	Limit  int
	Status string
}

func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Lookups return (nil, nil) when the record does not exist.

type OrderRepository interface {
	// CreateWithItems persists the order and its items and reserves inventory
	// for every item, atomically. A reservation that would take inventory
	// below zero fails with domain.ErrInsufficientInventory.
	CreateWithItems(ctx context.Context, order *domain.Order, items []*domain.OrderItem) error
	FindByID(ctx context.Context, id uint64) (*domain.Order, error)
	FindItems(ctx context.Context, orderID uint64) ([]domain.OrderItem, error)
	FindItemByID(ctx context.Context, itemID uint64) (*domain.OrderItem, error)
	ListByBuyer(ctx context.Context, buyerID uint64, page Page) ([]domain.Order, int64, error)
	ListItemsBySeller(ctx context.Context, sellerID uint64, page Page) ([]domain.OrderItem, int64, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error)
	// CompareAndSetStatus writes to only if the stored status is still from.
	CompareAndSetStatus(ctx context.Context, orderID uint64, from, to domain.Status) (bool, error)
	UpdateItemStatus(ctx context.Context, itemID uint64, status domain.Status) error
	// CancelPending moves a pending order and all of its items to cancelled
	// and restores their inventory. It reports false without changes when the
	// order is no longer pending.
	CancelPending(ctx context.Context, orderID uint64, at time.Time) (bool, error)
}

type InventoryRepository interface {
	// FindOrCreate returns the record, creating it with quantity 0 if absent.
	FindOrCreate(ctx context.Context, productID uint64) (*domain.Inventory, error)
}

type VoucherRepository interface {
	FindByCode(ctx context.Context, code string) (*domain.Voucher, error)
	IncrementUsage(ctx context.Context, id uint64) error
}

type AddressRepository interface {
	FindByID(ctx context.Context, id uint64) (*domain.Address, error)
	FindDefaultByUser(ctx context.Context, userID uint64) (*domain.Address, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	Save(ctx context.Context, p *domain.Payment) error
	FindByOrderID(ctx context.Context, orderID uint64) (*domain.Payment, error)
	// Replace archives and deletes old, then creates next, atomically.
	Replace(ctx context.Context, old *domain.Payment, next *domain.Payment, at time.Time) error
	// ListInFlightBefore returns pending or processing PayPal payments
	// created before cutoff, oldest first.
	ListInFlightBefore(ctx context.Context, cutoff time.Time) ([]domain.Payment, error)
}

type ShippingRepository interface {
	Create(ctx context.Context, s *domain.ShippingInfo) error
	Save(ctx context.Context, s *domain.ShippingInfo) error
	FindByID(ctx context.Context, id uint64) (*domain.ShippingInfo, error)
	FindByOrderItemID(ctx context.Context, itemID uint64) (*domain.ShippingInfo, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.ShippingInfo, error)
	FindByOrderItemIDs(ctx context.Context, itemIDs []uint64) ([]domain.ShippingInfo, error)
	ListBySeller(ctx context.Context, sellerID uint64, page Page) ([]domain.ShippingInfo, int64, error)
	CountByStatus(ctx context.Context, sellerID uint64) (map[domain.ShippingStatus]int64, error)
}

// Set bundles the repositories a service layer is built from.
type Set struct {
	Orders    OrderRepository
	Inventory InventoryRepository
	Vouchers  VoucherRepository
	Addresses AddressRepository
	Payments  PaymentRepository
	Shipping  ShippingRepository
}
