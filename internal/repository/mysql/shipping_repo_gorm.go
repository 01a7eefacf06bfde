package mysql

import (
	"context"
	"errors"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/repository"

	"gorm.io/gorm"
)

type shippingRepo struct {
	db *gorm.DB
}

func NewShippingRepository(db *gorm.DB) repository.ShippingRepository {
	return &shippingRepo{db: db}
}

func (r *shippingRepo) Create(ctx context.Context, s *domain.ShippingInfo) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *shippingRepo) Save(ctx context.Context, s *domain.ShippingInfo) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *shippingRepo) first(ctx context.Context, query string, arg any) (*domain.ShippingInfo, error) {
	var s domain.ShippingInfo
	if err := r.db.WithContext(ctx).Where(query, arg).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *shippingRepo) FindByID(ctx context.Context, id uint64) (*domain.ShippingInfo, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *shippingRepo) FindByOrderItemID(ctx context.Context, itemID uint64) (*domain.ShippingInfo, error) {
	return r.first(ctx, "order_item_id = ?", itemID)
}

func (r *shippingRepo) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.ShippingInfo, error) {
	return r.first(ctx, "tracking_number = ?", trackingNumber)
}

func (r *shippingRepo) FindByOrderItemIDs(ctx context.Context, itemIDs []uint64) ([]domain.ShippingInfo, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	var out []domain.ShippingInfo
	if err := r.db.WithContext(ctx).Where("order_item_id IN ?", itemIDs).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *shippingRepo) ListBySeller(ctx context.Context, sellerID uint64, page repository.Page) ([]domain.ShippingInfo, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&domain.ShippingInfo{}).Where("seller_id = ?", sellerID)
		if page.Status != "" {
			q = q.Where("status = ?", page.Status)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.ShippingInfo
	if err := scope().Order("created_at DESC").Offset(page.Offset()).Limit(page.Limit).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *shippingRepo) CountByStatus(ctx context.Context, sellerID uint64) (map[domain.ShippingStatus]int64, error) {
	var rows []struct {
		Status domain.ShippingStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&domain.ShippingInfo{}).
		Select("status, COUNT(*) AS count").
		Where("seller_id = ?", sellerID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[domain.ShippingStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
