package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/infra"
	"marketplace-orders/internal/infra/ghn"
	"marketplace-orders/internal/mocks"
	"marketplace-orders/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOrderService_CreateOrder_PricesAndReserves(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 5)
	f.flatFee(50000)
	f.store.PutVoucher(domain.Voucher{
		Code:          "SAVE5",
		DiscountType:  domain.DiscountFixed,
		Discount:      dec("5"),
		MinOrderValue: dec("15"),
		IsActive:      true,
	})

	receipt, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID:     buyerID,
		AddressID:   f.buyerAddress.ID,
		Lines:       []OrderLine{{ProductID: productA, Quantity: 2}},
		VoucherCode: "SAVE5",
	})
	require.NoError(t, err)

	assert.Equal(t, "20", receipt.Subtotal.String())
	assert.Equal(t, "5", receipt.Discount.String())
	assert.Equal(t, "50000", receipt.ShippingFee.String())
	assert.Equal(t, "17", receipt.TotalPrice.String())
	assert.Equal(t, int64(3), f.inventory(t, productA))
	assert.Equal(t, domain.StatusPending, f.statusOf(t, receipt.OrderID))

	items := f.itemsOf(t, receipt.OrderID)
	require.Len(t, items, 1)
	assert.Equal(t, sellerA, items[0].SellerID)
	assert.Equal(t, "Mug", items[0].ProductName)
	assert.Equal(t, domain.StatusPending, items[0].Status)

	f.orders.Wait()
	v, _ := f.store.VoucherByCode("SAVE5")
	assert.Equal(t, int64(1), v.UsedCount)
	f.pub.AssertCalled(t, "Publish", mock.Anything, domain.EventOrderCreated, mock.AnythingOfType("domain.OrderCreatedEvent"))
}

func TestOrderService_CreateOrder_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		input   func(f *fixture) CreateOrderInput
		setup   func(f *fixture)
		wantErr error
		wantMsg string
	}{
		{
			name: "no lines",
			input: func(f *fixture) CreateOrderInput {
				return CreateOrderInput{BuyerID: buyerID, AddressID: f.buyerAddress.ID}
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "zero quantity",
			input: func(f *fixture) CreateOrderInput {
				return CreateOrderInput{BuyerID: buyerID, AddressID: f.buyerAddress.ID, Lines: []OrderLine{{ProductID: productA, Quantity: 0}}}
			},
			wantErr: domain.ErrValidation,
		},
		{
			name: "unknown product",
			setup: func(f *fixture) {
				f.products.On("GetProductById", mock.Anything, uint64(999)).Return(nil, nil)
			},
			input: func(f *fixture) CreateOrderInput {
				return CreateOrderInput{BuyerID: buyerID, AddressID: f.buyerAddress.ID, Lines: []OrderLine{{ProductID: 999, Quantity: 1}}}
			},
			wantErr: domain.ErrNotFound,
		},
		{
			name: "product service down",
			setup: func(f *fixture) {
				f.products.On("GetProductById", mock.Anything, uint64(998)).Return(nil, errors.New("connection refused"))
			},
			input: func(f *fixture) CreateOrderInput {
				return CreateOrderInput{BuyerID: buyerID, AddressID: f.buyerAddress.ID, Lines: []OrderLine{{ProductID: 998, Quantity: 1}}}
			},
			wantErr: domain.ErrExternalService,
		},
		{
			name: "duplicate lines exceed stock together",
			input: func(f *fixture) CreateOrderInput {
				return CreateOrderInput{BuyerID: buyerID, AddressID: f.buyerAddress.ID, Lines: []OrderLine{
					{ProductID: productA, Quantity: 3},
					{ProductID: productA, Quantity: 3},
				}}
			},
			wantErr: domain.ErrInsufficientInventory,
			wantMsg: "insufficient inventory for product Mug (ID: 1). Available: 5, Requested: 6",
		},
		{
			name: "unknown voucher",
			input: func(f *fixture) CreateOrderInput {
				return CreateOrderInput{BuyerID: buyerID, AddressID: f.buyerAddress.ID, Lines: []OrderLine{{ProductID: productA, Quantity: 1}}, VoucherCode: "NOPE"}
			},
			wantErr: domain.ErrInvalidVoucher,
		},
		{
			name: "voucher minimum not met",
			setup: func(f *fixture) {
				f.store.PutVoucher(domain.Voucher{Code: "BIG", DiscountType: domain.DiscountFixed, Discount: dec("5"), MinOrderValue: dec("100"), IsActive: true})
			},
			input: func(f *fixture) CreateOrderInput {
				return CreateOrderInput{BuyerID: buyerID, AddressID: f.buyerAddress.ID, Lines: []OrderLine{{ProductID: productA, Quantity: 1}}, VoucherCode: "BIG"}
			},
			wantErr: domain.ErrMinOrderNotMet,
		},
		{
			name: "missing address",
			input: func(f *fixture) CreateOrderInput {
				return CreateOrderInput{BuyerID: buyerID, AddressID: 4242, Lines: []OrderLine{{ProductID: productA, Quantity: 1}}}
			},
			wantErr: domain.ErrNotFound,
		},
		{
			name: "address of another user",
			input: func(f *fixture) CreateOrderInput {
				return CreateOrderInput{BuyerID: buyerID + 1, AddressID: f.buyerAddress.ID, Lines: []OrderLine{{ProductID: productA, Quantity: 1}}}
			},
			wantErr: domain.ErrUnauthorized,
		},
		{
			name: "address without ward code",
			input: func(f *fixture) CreateOrderInput {
				a := f.store.PutAddress(domain.Address{UserID: buyerID, DistrictID: 1442})
				return CreateOrderInput{BuyerID: buyerID, AddressID: a.ID, Lines: []OrderLine{{ProductID: productA, Quantity: 1}}}
			},
			wantErr: domain.ErrInvalidAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.product(productA, sellerA, "Mug", 10, 5)
			f.flatFee(0)
			if tt.setup != nil {
				tt.setup(f)
			}

			result, err := f.orders.CreateOrder(context.Background(), tt.input(f))

			assert.Nil(t, result)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
			assert.Equal(t, int64(5), f.inventory(t, productA))
		})
	}
}

func TestOrderService_CreateOrder_QuotesEachSeller(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 5)
	f.product(productB, sellerB, "Lamp", 30, 5)
	f.product(3, 300, "Poster", 5, 5) // seller 300 has no address
	var mu sync.Mutex
	var sent []infra.FeeRequest
	record := func(args mock.Arguments) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, args.Get(1).(infra.FeeRequest))
	}
	f.fees.On("CalculateFee", mock.Anything, mock.MatchedBy(func(r infra.FeeRequest) bool { return r.FromDistrictID == 1450 })).
		Run(record).Return(decimal.NewFromInt(20000), nil).Once()
	f.fees.On("CalculateFee", mock.Anything, mock.MatchedBy(func(r infra.FeeRequest) bool { return r.FromDistrictID == 1451 })).
		Run(record).Return(decimal.NewFromInt(30000), nil).Once()

	receipt, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID:   buyerID,
		AddressID: f.buyerAddress.ID,
		Lines: []OrderLine{
			{ProductID: productA, Quantity: 1},
			{ProductID: productB, Quantity: 1},
			{ProductID: 3, Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "45", receipt.Subtotal.String())
	assert.Equal(t, "50000", receipt.ShippingFee.String())
	assert.Equal(t, "47", receipt.TotalPrice.String())
	f.fees.AssertNumberOfCalls(t, "CalculateFee", 2)

	// Parcels are insured at the carrier default, never the USD subtotal.
	require.Len(t, sent, 2)
	for _, r := range sent {
		assert.Equal(t, int64(ghn.DefaultInsurance), r.InsuranceValue)
		assert.Equal(t, 1442, r.ToDistrictID)
		assert.Equal(t, "20109", r.ToWardCode)
	}
}

func TestOrderService_CreateOrder_FeeFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 5)
	f.fees.On("CalculateFee", mock.Anything, mock.Anything).Return(decimal.Zero, errors.New("ghn: timeout"))

	receipt, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID:   buyerID,
		AddressID: f.buyerAddress.ID,
		Lines:     []OrderLine{{ProductID: productA, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.True(t, receipt.ShippingFee.IsZero())
	assert.Equal(t, "20", receipt.TotalPrice.String())
}

func TestOrderService_CreateOrder_DiscountNeverMakesTotalNegative(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 5)
	f.flatFee(25000)
	f.store.PutVoucher(domain.Voucher{Code: "HUGE", DiscountType: domain.DiscountFixed, Discount: dec("50"), IsActive: true})

	receipt, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID:     buyerID,
		AddressID:   f.buyerAddress.ID,
		Lines:       []OrderLine{{ProductID: productA, Quantity: 1}},
		VoucherCode: "HUGE",
	})
	require.NoError(t, err)
	assert.Equal(t, "1", receipt.TotalPrice.String())
}

func TestOrderService_GetOrderById(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 5)
	f.flatFee(0)
	id := f.placeOrder(t, 1)

	tests := []struct {
		name    string
		buyer   uint64
		orderID uint64
		wantErr error
	}{
		{name: "own order", buyer: buyerID, orderID: id},
		{name: "order not found", buyer: buyerID, orderID: 999, wantErr: ErrOrderNotFound},
		{name: "someone else's order", buyer: buyerID + 1, orderID: id, wantErr: domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := f.orders.GetOrderById(context.Background(), tt.buyer, tt.orderID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, view)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, view.ID)
			assert.Len(t, view.Items, 1)
			assert.Nil(t, view.Payment)
		})
	}
}

func TestOrderService_GetOrderById_RepositoryError(t *testing.T) {
	mockRepo := new(mocks.MockOrderRepository)
	mockPublisher := new(mocks.MockPublisher)
	mockRepo.On("FindItems", mock.Anything, uint64(1)).Return(nil, errors.New("database connection error"))
	mockRepo.On("FindByID", mock.Anything, uint64(1)).Return(nil, errors.New("database connection error"))

	syncer := NewSynchronizer(mockRepo, mockPublisher)
	service := NewOrderService(repository.Set{Orders: mockRepo}, new(mocks.MockProductClient), nil, mockPublisher, syncer, decimal.NewFromInt(25000))

	result, err := service.GetOrderById(context.Background(), buyerID, 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database connection error")
	assert.Nil(t, result)
	mockRepo.AssertExpectations(t)
}

func TestOrderService_ListOrders(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 50)
	f.flatFee(0)
	var ids []uint64
	for i := 0; i < 3; i++ {
		ids = append(ids, f.placeOrder(t, 1))
	}
	// An item shipped behind the order's back is reconciled on read.
	items := f.itemsOf(t, ids[0])
	require.NoError(t, f.store.Orders().UpdateItemStatus(context.Background(), items[0].ID, domain.StatusShipped))

	t.Run("defaults and sync on read", func(t *testing.T) {
		page, err := f.orders.ListOrders(context.Background(), buyerID, repository.Page{})
		require.NoError(t, err)
		assert.Equal(t, Pagination{Page: 1, Limit: 10, Total: 3, TotalPages: 1}, page.Pagination)
		require.Len(t, page.Orders, 3)
		for _, o := range page.Orders {
			assert.Len(t, o.Items, 1)
			if o.ID == ids[0] {
				assert.Equal(t, domain.StatusShipped, o.Status)
			} else {
				assert.Equal(t, domain.StatusPending, o.Status)
			}
		}
	})

	t.Run("limit is capped", func(t *testing.T) {
		page, err := f.orders.ListOrders(context.Background(), buyerID, repository.Page{Page: 2, Limit: 1000})
		require.NoError(t, err)
		assert.Equal(t, 100, page.Pagination.Limit)
		assert.Empty(t, page.Orders)
	})

	t.Run("status filter", func(t *testing.T) {
		page, err := f.orders.ListOrders(context.Background(), buyerID, repository.Page{Status: "pending"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Pagination.Total)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := f.orders.ListOrders(context.Background(), buyerID, repository.Page{Status: "lost"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestOrderService_ListOrders_FilterSeesDerivedStatus(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 50)
	f.flatFee(0)
	shipped := f.placeOrder(t, 1)
	f.placeOrder(t, 1)

	// Items move without the order being synchronized; the stored status is stale.
	for _, it := range f.itemsOf(t, shipped) {
		require.NoError(t, f.store.Orders().UpdateItemStatus(context.Background(), it.ID, domain.StatusShipped))
	}
	require.Equal(t, domain.StatusPending, f.statusOf(t, shipped))

	page, err := f.orders.ListOrders(context.Background(), buyerID, repository.Page{Status: "shipped"})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, shipped, page.Orders[0].ID)
	assert.Equal(t, domain.StatusShipped, page.Orders[0].Status)
	assert.Equal(t, int64(1), page.Pagination.Total)

	page, err = f.orders.ListOrders(context.Background(), buyerID, repository.Page{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.NotEqual(t, shipped, page.Orders[0].ID)
}

func TestOrderService_CancelOrder(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 5)
	f.flatFee(0)
	id := f.placeOrder(t, 2)
	require.Equal(t, int64(3), f.inventory(t, productA))

	assert.ErrorIs(t, f.orders.CancelOrder(context.Background(), buyerID+1, id), domain.ErrUnauthorized)

	require.NoError(t, f.orders.CancelOrder(context.Background(), buyerID, id))
	assert.Equal(t, int64(5), f.inventory(t, productA))
	assert.Equal(t, domain.StatusCancelled, f.statusOf(t, id))
	for _, it := range f.itemsOf(t, id) {
		assert.Equal(t, domain.StatusCancelled, it.Status)
	}

	err := f.orders.CancelOrder(context.Background(), buyerID, id)
	assert.ErrorIs(t, err, domain.ErrInvalidOrderState)
	assert.Equal(t, int64(5), f.inventory(t, productA))

	f.orders.Wait()
	f.pub.AssertCalled(t, "Publish", mock.Anything, domain.EventOrderCancelled, domain.OrderCancelledEvent{
		OrderID: id, BuyerID: buyerID, Reason: domain.CancelReasonBuyer, CancelledAt: epoch,
	})
}

func TestOrderService_UpdateItemStatus(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 5)
	f.product(productB, sellerB, "Lamp", 30, 5)
	f.flatFee(0)
	receipt, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID:   buyerID,
		AddressID: f.buyerAddress.ID,
		Lines:     []OrderLine{{ProductID: productA, Quantity: 1}, {ProductID: productB, Quantity: 1}},
	})
	require.NoError(t, err)
	items := f.itemsOf(t, receipt.OrderID)
	require.Len(t, items, 2)
	itemA, itemB := items[0], items[1]

	tests := []struct {
		name      string
		seller    uint64
		itemID    uint64
		status    string
		wantErr   error
		wantOrder domain.Status
	}{
		{name: "unknown status", seller: sellerA, itemID: itemA.ID, status: "teleported", wantErr: domain.ErrValidation},
		{name: "unknown item", seller: sellerA, itemID: 999, status: "shipping", wantErr: domain.ErrNotFound},
		{name: "other seller's item", seller: sellerB, itemID: itemA.ID, status: "shipping", wantErr: domain.ErrUnauthorized},
		{name: "one item shipping", seller: sellerA, itemID: itemA.ID, status: "shipping", wantOrder: domain.StatusShipping},
		{name: "shipped beside pending keeps status", seller: sellerA, itemID: itemA.ID, status: "shipped", wantOrder: domain.StatusShipping},
		{name: "all shipped", seller: sellerB, itemID: itemB.ID, status: "shipped", wantOrder: domain.StatusShipped},
		{name: "any delivered", seller: sellerB, itemID: itemB.ID, status: "delivered", wantOrder: domain.StatusDelivered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := f.orders.UpdateItemStatus(context.Background(), tt.seller, tt.itemID, tt.status)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.Status(tt.status), item.Status)
			assert.Equal(t, tt.wantOrder, f.statusOf(t, receipt.OrderID))
		})
	}
}

func TestOrderService_UpdateItemStatus_CancelledItemIsFinal(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 5)
	f.flatFee(0)
	id := f.placeOrder(t, 1)
	require.NoError(t, f.orders.CancelOrder(context.Background(), buyerID, id))

	_, err := f.orders.UpdateItemStatus(context.Background(), sellerA, f.itemsOf(t, id)[0].ID, "shipping")
	assert.ErrorIs(t, err, domain.ErrInvalidOrderState)
	assert.Equal(t, domain.StatusCancelled, f.statusOf(t, id))
}

func TestOrderService_UpdateItemStatus_SellerCannotCancel(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 5)
	f.flatFee(0)
	id := f.placeOrder(t, 2)
	item := f.itemsOf(t, id)[0]

	_, err := f.orders.UpdateItemStatus(context.Background(), sellerA, item.ID, "cancelled")
	assert.ErrorIs(t, err, domain.ErrInvalidOrderState)
	assert.Equal(t, domain.StatusPending, f.itemsOf(t, id)[0].Status)
	assert.Equal(t, domain.StatusPending, f.statusOf(t, id))
	assert.Equal(t, int64(3), f.inventory(t, productA))

	// The buyer can still cancel, and the stock comes back.
	require.NoError(t, f.orders.CancelOrder(context.Background(), buyerID, id))
	assert.Equal(t, int64(5), f.inventory(t, productA))
}

func TestOrderService_ProductLoadsAreShared(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	var calls atomic.Int32
	f.products.On("GetProductById", mock.Anything, productB).
		Run(func(mock.Arguments) {
			calls.Add(1)
			<-release
		}).
		Return(&infra.ProductInfo{ID: productB, Name: "Plate", Price: decimal.NewFromInt(4), SellerID: sellerB}, nil)

	var wg sync.WaitGroup
	results := make([]*infra.ProductInfo, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := f.orders.getProductWithCache(context.Background(), productB)
			assert.NoError(t, err)
			results[i] = p
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, p := range results {
		require.NotNil(t, p)
		assert.Equal(t, "Plate", p.Name)
	}
}
