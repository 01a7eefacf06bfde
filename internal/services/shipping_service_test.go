package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShippingFixture(t *testing.T) (*fixture, uint64, domain.OrderItem) {
	t.Helper()
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 5)
	f.flatFee(0)
	id := f.placeOrder(t, 1)
	return f, id, f.itemsOf(t, id)[0]
}

func TestTrackingNumberFormat(t *testing.T) {
	n := trackingNumber(time.UnixMilli(1712345678901))
	assert.Regexp(t, regexp.MustCompile(`^SHOPII45678901\d{4}$`), n)
}

func TestShippingService_CreateTracking(t *testing.T) {
	f, orderID, item := newShippingFixture(t)

	info, err := f.shipping.CreateTracking(context.Background(), CreateTrackingInput{SellerID: sellerA, OrderItemID: item.ID})
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultCarrier, info.Carrier)
	assert.Equal(t, domain.ShippingPending, info.Status)
	assert.Equal(t, epoch.Add(7*24*time.Hour), info.EstimatedArrival)
	require.Len(t, info.StatusHistory, 1)
	assert.Equal(t, epoch, info.StatusHistory[0].Timestamp)
	assert.Regexp(t, `^SHOPII\d{12}$`, info.TrackingNumber)

	assert.Equal(t, domain.StatusProcessing, f.itemsOf(t, orderID)[0].Status)
	assert.Equal(t, domain.StatusProcessing, f.statusOf(t, orderID))

	_, err = f.shipping.CreateTracking(context.Background(), CreateTrackingInput{SellerID: sellerA, OrderItemID: item.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidOrderState)

	tracked, err := f.shipping.Track(context.Background(), info.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, info.ID, tracked.ID)
}

func TestShippingService_CreateTracking_Rejections(t *testing.T) {
	f, orderID, item := newShippingFixture(t)

	_, err := f.shipping.CreateTracking(context.Background(), CreateTrackingInput{SellerID: sellerB, OrderItemID: item.ID})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.shipping.CreateTracking(context.Background(), CreateTrackingInput{SellerID: sellerA, OrderItemID: 999})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.orders.CancelOrder(context.Background(), buyerID, orderID))
	_, err = f.shipping.CreateTracking(context.Background(), CreateTrackingInput{SellerID: sellerA, OrderItemID: item.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidOrderState)
}

func TestShippingService_UpdateShippingStatus(t *testing.T) {
	f, orderID, item := newShippingFixture(t)
	info, err := f.shipping.CreateTracking(context.Background(), CreateTrackingInput{SellerID: sellerA, OrderItemID: item.ID, Carrier: "GHN"})
	require.NoError(t, err)
	assert.Equal(t, "GHN", info.Carrier)

	steps := []struct {
		status    string
		location  string
		wantItem  domain.Status
		wantOrder domain.Status
	}{
		{status: "shipping", location: "Warehouse", wantItem: domain.StatusShipping, wantOrder: domain.StatusShipping},
		{status: "in_transit", location: "Hub", wantItem: domain.StatusShipping, wantOrder: domain.StatusShipping},
		{status: "out_for_delivery", location: "District 1", wantItem: domain.StatusShipping, wantOrder: domain.StatusShipping},
		{status: "delivered", location: "Door", wantItem: domain.StatusDelivered, wantOrder: domain.StatusDelivered},
	}
	for i, step := range steps {
		f.clock.Advance(time.Hour)
		updated, err := f.shipping.UpdateShippingStatus(context.Background(), UpdateShippingInput{
			SellerID: sellerA, ShippingID: info.ID, Status: step.status, Location: step.location,
		})
		require.NoError(t, err, step.status)
		assert.Equal(t, domain.ShippingStatus(step.status), updated.Status)
		assert.Equal(t, step.location, updated.Location)
		assert.Len(t, updated.StatusHistory, i+2)
		assert.Equal(t, step.wantItem, f.itemsOf(t, orderID)[0].Status)
		assert.Equal(t, step.wantOrder, f.statusOf(t, orderID))
	}

	_, err = f.shipping.UpdateShippingStatus(context.Background(), UpdateShippingInput{SellerID: sellerA, ShippingID: info.ID, Status: "shipped"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.shipping.UpdateShippingStatus(context.Background(), UpdateShippingInput{SellerID: sellerB, ShippingID: info.ID, Status: "returned"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestShippingService_SellerViews(t *testing.T) {
	f := newFixture(t)
	f.product(productA, sellerA, "Mug", 10, 10)
	f.flatFee(0)
	first := f.placeOrder(t, 1)
	f.placeOrder(t, 1)
	item := f.itemsOf(t, first)[0]
	info, err := f.shipping.CreateTracking(context.Background(), CreateTrackingInput{SellerID: sellerA, OrderItemID: item.ID})
	require.NoError(t, err)

	items, err := f.shipping.ListSellerItems(context.Background(), sellerA, repository.Page{})
	require.NoError(t, err)
	require.Len(t, items.Items, 2)
	for _, it := range items.Items {
		assert.Equal(t, it.ID == item.ID, it.HasShippingInfo)
	}

	shipments, err := f.shipping.ListShipments(context.Background(), sellerA, repository.Page{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, shipments.Shipments, 1)
	assert.Equal(t, info.TrackingNumber, shipments.Shipments[0].TrackingNumber)

	_, err = f.shipping.ListShipments(context.Background(), sellerA, repository.Page{Status: "shipped"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	stats, err := f.shipping.Stats(context.Background(), sellerA)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[domain.ShippingPending])
	assert.Len(t, stats.ByStatus, len(domain.ShippingStatuses()))

	_, err = f.shipping.Track(context.Background(), "SHOPII000000000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
