package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExpirationSweeper_Boundary(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 5)
	f.flatFee(0)
	id := f.placeOrder(t, 2)

	f.clock.Advance(29*time.Minute + 59*time.Second)
	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
	assert.Equal(t, domain.StatusPending, f.statusOf(t, id))
	assert.Equal(t, int64(3), f.inventory(t, productA))

	f.clock.Advance(2 * time.Second)
	res, err = f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 1, Cancelled: 1}, res)
	assert.Equal(t, domain.StatusCancelled, f.statusOf(t, id))
	for _, it := range f.itemsOf(t, id) {
		assert.Equal(t, domain.StatusCancelled, it.Status)
	}
	assert.Equal(t, int64(5), f.inventory(t, productA))

	f.sweeper.Wait()
	f.pub.AssertCalled(t, "Publish", mock.Anything, domain.EventOrderCancelled, domain.OrderCancelledEvent{
		OrderID:     id,
		BuyerID:     buyerID,
		Reason:      domain.CancelReasonPaymentTimeout,
		CancelledAt: epoch.Add(30*time.Minute + time.Second),
	})
}

func TestExpirationSweeper_PaymentStates(t *testing.T) {
	tests := []struct {
		name          string
		payment       *domain.PaymentStatus
		wantCancelled bool
	}{
		{name: "no payment", wantCancelled: true},
		{name: "pending payment", payment: ptr(domain.PaymentPending)},
		{name: "processing payment", payment: ptr(domain.PaymentProcessing)},
		{name: "failed payment", payment: ptr(domain.PaymentFailed), wantCancelled: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.product(productA, sellerA, "Mug", 10, 5)
			f.flatFee(0)
			id := f.placeOrder(t, 2)
			if tt.payment != nil {
				require.NoError(t, f.store.Payments().Create(context.Background(), &domain.Payment{
					OrderID: id, UserID: buyerID, Method: domain.MethodPayPal, Status: *tt.payment, Amount: dec("20"),
				}))
			}

			f.clock.Advance(24 * time.Hour)
			res, err := f.sweeper.Sweep(context.Background())
			require.NoError(t, err)

			if tt.wantCancelled {
				assert.Equal(t, SweepResult{Scanned: 1, Cancelled: 1}, res)
				assert.Equal(t, int64(5), f.inventory(t, productA))
				assert.Equal(t, domain.StatusCancelled, f.statusOf(t, id))
			} else {
				assert.Equal(t, SweepResult{Scanned: 1, Skipped: 1}, res)
				assert.Equal(t, int64(3), f.inventory(t, productA))
				assert.Equal(t, domain.StatusPending, f.statusOf(t, id))
			}
		})
	}
}

func TestExpirationSweeper_RestoresOnlyOnce(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 5)
	f.flatFee(0)
	f.placeOrder(t, 2)
	f.placeOrder(t, 1)
	require.Equal(t, int64(2), f.inventory(t, productA))

	f.clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		_, err := f.sweeper.Sweep(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int64(5), f.inventory(t, productA))
}

type failingCancelRepo struct {
	repository.OrderRepository
	failID uint64
}

func (r failingCancelRepo) CancelPending(ctx context.Context, orderID uint64, at time.Time) (bool, error) {
	if orderID == r.failID {
		return false, errors.New("deadlock found when trying to get lock")
	}
	return r.OrderRepository.CancelPending(ctx, orderID, at)
}

func TestExpirationSweeper_OneFailureDoesNotStopTheSweep(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 5)
	f.flatFee(0)
	first := f.placeOrder(t, 1)
	f.clock.Advance(time.Second)
	second := f.placeOrder(t, 1)

	sweeper := NewExpirationSweeper(failingCancelRepo{OrderRepository: f.store.Orders(), failID: first}, f.store.Payments(), f.pub, deadline)
	sweeper.SetClock(f.clock)
	f.clock.Advance(time.Hour)

	res, err := sweeper.Sweep(context.Background())
	sweeper.Wait()
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 2, Cancelled: 1, Failed: 1}, res)
	assert.Equal(t, domain.StatusPending, f.statusOf(t, first))
	assert.Equal(t, domain.StatusCancelled, f.statusOf(t, second))
	assert.Equal(t, int64(4), f.inventory(t, productA))
}

func TestOrderLifecycle_EndToEnd(t *testing.T) {
	setup := func(t *testing.T) (*fixture, uint64) {
		f := newFixture(t)
		f.product(productA, sellerA, "Mug", 10, 5)
		f.flatFee(50000)
		f.store.PutVoucher(domain.Voucher{Code: "SAVE5", DiscountType: domain.DiscountFixed, Discount: dec("5"), MinOrderValue: dec("15"), IsActive: true})

		receipt, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
			BuyerID:     buyerID,
			AddressID:   f.buyerAddress.ID,
			Lines:       []OrderLine{{ProductID: productA, Quantity: 2}},
			VoucherCode: "SAVE5",
		})
		require.NoError(t, err)
		require.Equal(t, "17", receipt.TotalPrice.String())
		require.Equal(t, int64(3), f.inventory(t, productA))
		return f, receipt.OrderID
	}

	t.Run("paid by COD and shipped", func(t *testing.T) {
		f, id := setup(t)

		res, err := f.payments.CreatePayment(context.Background(), CreatePaymentInput{UserID: buyerID, OrderID: id, Method: "COD"})
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentPending, res.Payment.Status)
		assert.Equal(t, domain.StatusPending, f.statusOf(t, id))

		item := f.itemsOf(t, id)[0]
		_, err = f.orders.UpdateItemStatus(context.Background(), sellerA, item.ID, "shipped")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusShipped, f.statusOf(t, id))
	})

	t.Run("never paid", func(t *testing.T) {
		f, id := setup(t)

		f.clock.Advance(31 * time.Minute)
		res, err := f.sweeper.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Cancelled)
		assert.Equal(t, domain.StatusCancelled, f.statusOf(t, id))
		assert.Equal(t, int64(5), f.inventory(t, productA))
	})
}

func ptr[T any](v T) *T { return &v }
