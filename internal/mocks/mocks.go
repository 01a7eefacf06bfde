package mocks

import (
	"context"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/infra"
	"marketplace-orders/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockOrderRepository struct {
	mock.Mock
}

var _ repository.OrderRepository = (*MockOrderRepository)(nil)

type MockProductClient struct {
	mock.Mock
}

type MockPublisher struct {
	mock.Mock
}

type MockShippingFeeResolver struct {
	mock.Mock
}

type MockPaymentGateway struct {
	mock.Mock
}

type MockChatModel struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	args := m.Called(ctx, topic, message)
	return args.Error(0)
}

func (m *MockProductClient) GetProductById(ctx context.Context, productId uint64) (*infra.ProductInfo, error) {
	args := m.Called(ctx, productId)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infra.ProductInfo), args.Error(1)
}

func (m *MockShippingFeeResolver) CalculateFee(ctx context.Context, req infra.FeeRequest) (decimal.Decimal, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPaymentGateway) CreateOrder(ctx context.Context, req infra.GatewayOrderRequest) (*infra.GatewayOrder, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infra.GatewayOrder), args.Error(1)
}

func (m *MockPaymentGateway) CaptureOrder(ctx context.Context, gatewayOrderID string) (*infra.CaptureResult, error) {
	args := m.Called(ctx, gatewayOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infra.CaptureResult), args.Error(1)
}

func (m *MockPaymentGateway) GetOrder(ctx context.Context, gatewayOrderID string) (*infra.GatewayOrder, error) {
	args := m.Called(ctx, gatewayOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infra.GatewayOrder), args.Error(1)
}

func (m *MockChatModel) Generate(ctx context.Context, prompt string) (*infra.ChatReply, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infra.ChatReply), args.Error(1)
}

func (m *MockOrderRepository) CreateWithItems(ctx context.Context, order *domain.Order, items []*domain.OrderItem) error {
	args := m.Called(ctx, order, items)
	return args.Error(0)
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) FindItems(ctx context.Context, orderID uint64) ([]domain.OrderItem, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OrderItem), args.Error(1)
}

func (m *MockOrderRepository) FindItemByID(ctx context.Context, itemID uint64) (*domain.OrderItem, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OrderItem), args.Error(1)
}

func (m *MockOrderRepository) ListByBuyer(ctx context.Context, buyerID uint64, page repository.Page) ([]domain.Order, int64, error) {
	args := m.Called(ctx, buyerID, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderRepository) ListItemsBySeller(ctx context.Context, sellerID uint64, page repository.Page) ([]domain.OrderItem, int64, error) {
	args := m.Called(ctx, sellerID, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.OrderItem), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *MockOrderRepository) CompareAndSetStatus(ctx context.Context, orderID uint64, from, to domain.Status) (bool, error) {
	args := m.Called(ctx, orderID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) UpdateItemStatus(ctx context.Context, itemID uint64, status domain.Status) error {
	args := m.Called(ctx, itemID, status)
	return args.Error(0)
}

func (m *MockOrderRepository) CancelPending(ctx context.Context, orderID uint64, at time.Time) (bool, error) {
	args := m.Called(ctx, orderID, at)
	return args.Bool(0), args.Error(1)
}
