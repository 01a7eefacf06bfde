package mysql

import (
	"context"
	"errors"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type inventoryRepo struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) repository.InventoryRepository {
	return &inventoryRepo{db: db}
}

func (r *inventoryRepo) FindOrCreate(ctx context.Context, productID uint64) (*domain.Inventory, error) {
	inv := domain.Inventory{ProductID: productID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&inv).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).First(&inv, "product_id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

type voucherRepo struct {
	db *gorm.DB
}

func NewVoucherRepository(db *gorm.DB) repository.VoucherRepository {
	return &voucherRepo{db: db}
}

func (r *voucherRepo) FindByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	var v domain.Voucher
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (r *voucherRepo) IncrementUsage(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&domain.Voucher{}).
		Where("id = ?", id).
		Update("used_count", gorm.Expr("used_count + 1")).Error
}

type addressRepo struct {
	db *gorm.DB
}

func NewAddressRepository(db *gorm.DB) repository.AddressRepository {
	return &addressRepo{db: db}
}

func (r *addressRepo) FindByID(ctx context.Context, id uint64) (*domain.Address, error) {
	var a domain.Address
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *addressRepo) FindDefaultByUser(ctx context.Context, userID uint64) (*domain.Address, error) {
	var a domain.Address
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ?", userID, true).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}
