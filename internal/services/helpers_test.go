package services

import (
	"sync"
	"testing"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/infra"
	"marketplace-orders/internal/mocks"
	"marketplace-orders/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

const (
	buyerID   uint64 = 100
	sellerA   uint64 = 200
	sellerB   uint64 = 201
	productA  uint64 = 1
	productB  uint64 = 2
	deadline         = 30 * time.Minute
	gatewayID        = "PAYPAL-ORDER-1"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *memory.Store
	clock    *fakeClock
	products *mocks.MockProductClient
	fees     *mocks.MockShippingFeeResolver
	gateway  *mocks.MockPaymentGateway
	pub      *mocks.MockPublisher

	syncer   *Synchronizer
	orders   *OrderService
	payments *PaymentService
	sweeper  *ExpirationSweeper
	shipping *ShippingService

	buyerAddress domain.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    memory.NewStore(),
		clock:    &fakeClock{now: epoch},
		products: new(mocks.MockProductClient),
		fees:     new(mocks.MockShippingFeeResolver),
		gateway:  new(mocks.MockPaymentGateway),
		pub:      new(mocks.MockPublisher),
	}
	f.pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	repos := f.store.Set()
	f.syncer = NewSynchronizer(repos.Orders, f.pub)
	f.syncer.SetClock(f.clock)
	f.orders = NewOrderService(repos, f.products, f.fees, f.pub, f.syncer, decimal.NewFromInt(25000))
	f.orders.SetClock(f.clock)
	f.payments = NewPaymentService(repos.Orders, repos.Payments, f.gateway, f.pub, f.syncer, PaymentConfig{ReturnBaseURL: "http://orders.test"})
	f.payments.SetClock(f.clock)
	f.sweeper = NewExpirationSweeper(repos.Orders, repos.Payments, f.pub, deadline)
	f.sweeper.SetClock(f.clock)
	f.shipping = NewShippingService(repos.Orders, repos.Shipping, f.syncer)
	f.shipping.SetClock(f.clock)

	f.buyerAddress = f.store.PutAddress(domain.Address{UserID: buyerID, FullName: "Buyer", DistrictID: 1442, WardCode: "20109", IsDefault: true})
	f.store.PutAddress(domain.Address{UserID: sellerA, FullName: "Seller A", DistrictID: 1450, WardCode: "20308", IsDefault: true})
	f.store.PutAddress(domain.Address{UserID: sellerB, FullName: "Seller B", DistrictID: 1451, WardCode: "20401", IsDefault: true})

	t.Cleanup(f.wait)
	return f
}

func (f *fixture) wait() {
	f.orders.Wait()
	f.payments.Wait()
	f.sweeper.Wait()
	f.syncer.Wait()
}

func (f *fixture) product(id, seller uint64, name string, price int64, stock int64) {
	f.products.On("GetProductById", mock.Anything, id).Return(&infra.ProductInfo{
		ID:       id,
		Name:     name,
		Price:    decimal.NewFromInt(price),
		SellerID: seller,
	}, nil).Maybe()
	f.store.PutInventory(id, stock)
}

func (f *fixture) flatFee(fee int64) {
	f.fees.On("CalculateFee", mock.Anything, mock.Anything).Return(decimal.NewFromInt(fee), nil).Maybe()
}

func (f *fixture) inventory(t *testing.T, productID uint64) int64 {
	t.Helper()
	qty, _ := f.store.InventoryOf(productID)
	return qty
}

// placeOrder creates a one-line order for productA and returns its id.
func (f *fixture) placeOrder(t *testing.T, qty int64) uint64 {
	t.Helper()
	receipt, err := f.orders.CreateOrder(t.Context(), CreateOrderInput{
		BuyerID:   buyerID,
		AddressID: f.buyerAddress.ID,
		Lines:     []OrderLine{{ProductID: productA, Quantity: qty}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return receipt.OrderID
}

func (f *fixture) itemsOf(t *testing.T, orderID uint64) []domain.OrderItem {
	t.Helper()
	items, err := f.store.Orders().FindItems(t.Context(), orderID)
	if err != nil {
		t.Fatalf("find items: %v", err)
	}
	return items
}

func (f *fixture) statusOf(t *testing.T, orderID uint64) domain.Status {
	t.Helper()
	o, err := f.store.Orders().FindByID(t.Context(), orderID)
	if err != nil || o == nil {
		t.Fatalf("find order %d: %v", orderID, err)
	}
	return o.Status
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
