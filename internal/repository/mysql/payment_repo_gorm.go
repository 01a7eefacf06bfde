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

type paymentRepo struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) repository.PaymentRepository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *paymentRepo) Save(ctx context.Context, p *domain.Payment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *paymentRepo) FindByOrderID(ctx context.Context, orderID uint64) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) Replace(ctx context.Context, old, next *domain.Payment, at time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(domain.NewPaymentArchive(old, at)).Error; err != nil {
			return err
		}
		if err := tx.Delete(&domain.Payment{}, old.ID).Error; err != nil {
			return err
		}
		return tx.Create(next).Error
	})
	if err != nil {
		log.Printf("[payment] replace payment %d for order %d: %v", old.ID, old.OrderID, err)
	}
	return err
}

func (r *paymentRepo) ListInFlightBefore(ctx context.Context, cutoff time.Time) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.db.WithContext(ctx).
		Where("method = ? AND status IN ? AND created_at < ?", domain.MethodPayPal,
			[]domain.PaymentStatus{domain.PaymentPending, domain.PaymentProcessing}, cutoff).
		Order("id ASC").
		Find(&out).Error
	return out, err
}
