package mysql

import (
	"context"
	"errors"
	"log"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/repository"

	"gorm.io/gorm"
)

type orderRepo struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) repository.OrderRepository {
	return &orderRepo{db: db}
}

func (r *orderRepo) CreateWithItems(ctx context.Context, order *domain.Order, items []*domain.OrderItem) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		if order.ID == 0 {
			return errors.New("failed to assign order ID")
		}

		for _, it := range items {
			it.OrderID = order.ID
			if err := tx.Create(it).Error; err != nil {
				return err
			}
			if err := reserve(tx, it, order.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[order] create order for buyer %d: %v", order.BuyerID, err)
		return err
	}
	return nil
}

// reserve decrements inventory only when enough stock remains.
func reserve(tx *gorm.DB, it *domain.OrderItem, at time.Time) error {
	res := tx.Model(&domain.Inventory{}).
		Where("product_id = ? AND quantity >= ?", it.ProductID, it.Quantity).
		Updates(map[string]any{
			"quantity":     gorm.Expr("quantity - ?", it.Quantity),
			"last_updated": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var inv domain.Inventory
	available := int64(0)
	if err := tx.First(&inv, "product_id = ?", it.ProductID).Error; err == nil {
		available = inv.Quantity
	}
	return domain.Errorf(domain.KindInsufficientInventory,
		"insufficient inventory for product %s (ID: %d). Available: %d, Requested: %d",
		it.ProductName, it.ProductID, available, it.Quantity)
}

func (r *orderRepo) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	var o domain.Order
	if err := r.db.WithContext(ctx).First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.Printf("[order] FindByID %d: %v", id, err)
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) FindItems(ctx context.Context, orderID uint64) ([]domain.OrderItem, error) {
	var out []domain.OrderItem
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *orderRepo) FindItemByID(ctx context.Context, itemID uint64) (*domain.OrderItem, error) {
	var it domain.OrderItem
	if err := r.db.WithContext(ctx).First(&it, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

func (r *orderRepo) ListByBuyer(ctx context.Context, buyerID uint64, page repository.Page) ([]domain.Order, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&domain.Order{}).Where("buyer_id = ?", buyerID)
		if page.Status != "" {
			q = q.Where("status = ?", page.Status)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []domain.Order
	err := scope().Order("created_at DESC").Offset(page.Offset()).Limit(page.Limit).Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *orderRepo) ListItemsBySeller(ctx context.Context, sellerID uint64, page repository.Page) ([]domain.OrderItem, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&domain.OrderItem{}).Where("seller_id = ?", sellerID)
		if page.Status != "" {
			q = q.Where("status = ?", page.Status)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []domain.OrderItem
	err := scope().Order("created_at DESC").Offset(page.Offset()).Limit(page.Limit).Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *orderRepo) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
	var out []domain.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.StatusPending, cutoff).
		Order("created_at").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *orderRepo) CompareAndSetStatus(ctx context.Context, orderID uint64, from, to domain.Status) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepo) UpdateItemStatus(ctx context.Context, itemID uint64, status domain.Status) error {
	return r.db.WithContext(ctx).Model(&domain.OrderItem{}).
		Where("id = ?", itemID).
		Update("status", status).Error
}

func (r *orderRepo) CancelPending(ctx context.Context, orderID uint64, at time.Time) (bool, error) {
	cancelled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Order{}).
			Where("id = ? AND status = ?", orderID, domain.StatusPending).
			Update("status", domain.StatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := tx.Model(&domain.OrderItem{}).
			Where("order_id = ?", orderID).
			Update("status", domain.StatusCancelled).Error; err != nil {
			return err
		}

		var items []domain.OrderItem
		if err := tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
			return err
		}
		for _, it := range items {
			err := tx.Model(&domain.Inventory{}).
				Where("product_id = ?", it.ProductID).
				Updates(map[string]any{
					"quantity":     gorm.Expr("quantity + ?", it.Quantity),
					"last_updated": at,
				}).Error
			if err != nil {
				return err
			}
		}
		cancelled = true
		return nil
	})
	if err != nil {
		log.Printf("[order] cancel order %d: %v", orderID, err)
		return false, err
	}
	return cancelled, nil
}

// NewSet wires every gorm-backed repository onto db.
func NewSet(db *gorm.DB) repository.Set {
	return repository.Set{
		Orders:    NewOrderRepository(db),
		Inventory: NewInventoryRepository(db),
		Vouchers:  NewVoucherRepository(db),
		Addresses: NewAddressRepository(db),
		Payments:  NewPaymentRepository(db),
		Shipping:  NewShippingRepository(db),
	}
}
