package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/infra"
	"marketplace-orders/internal/infra/ghn"
	"marketplace-orders/internal/infra/metrics"
	rabbit "marketplace-orders/internal/infra/rabbitmq"
	"marketplace-orders/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var ErrOrderNotFound = domain.Errorf(domain.KindNotFound, "order not found")

const (
	productCacheTTL       = time.Minute
	productWarmupTTL      = 5 * time.Minute
	maxConcurrentFeeCalls = 4
	defaultPageLimit      = 10
	maxPageLimit          = 100
)

type OrderLine struct {
	ProductID uint64
	Quantity  int64
}

type CreateOrderInput struct {
	BuyerID     uint64
	AddressID   uint64
	Lines       []OrderLine
	VoucherCode string
}

type OrderReceipt struct {
	OrderID     uint64          `json:"orderId"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	ShippingFee decimal.Decimal `json:"shippingFee"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

type OrderView struct {
	domain.Order
	Items   []domain.OrderItem `json:"items"`
	Payment *domain.Payment    `json:"payment,omitempty"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

type OrderPage struct {
	Orders     []OrderView `json:"orders"`
	Pagination Pagination  `json:"pagination"`
}

type OrderService struct {
	repos       repository.Set
	prodClient  infra.ProductClientInterface
	fees        infra.ShippingFeeResolver
	publisher   rabbit.PublisherInterface
	syncer      *Synchronizer
	clock       Clock
	feeRate     decimal.Decimal
	redisClient *redis.Client
	loads       singleflight.Group
	bg          background
}

func NewOrderService(repos repository.Set, p infra.ProductClientInterface, fees infra.ShippingFeeResolver, pub rabbit.PublisherInterface, syncer *Synchronizer, feeRate decimal.Decimal) *OrderService {
	return &OrderService{
		repos:      repos,
		prodClient: p,
		fees:       fees,
		publisher:  pub,
		syncer:     syncer,
		clock:      SystemClock{},
		feeRate:    feeRate,
	}
}

func (u *OrderService) SetRedisClient(client *redis.Client) {
	u.redisClient = client
}

func (u *OrderService) SetClock(c Clock) { u.clock = c }

// Wait blocks until post-commit side effects have finished.
func (u *OrderService) Wait() { u.bg.Wait() }

func (u *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderReceipt, error) {
	if len(in.Lines) == 0 {
		return nil, domain.Errorf(domain.KindValidation, "order must contain at least one item")
	}
	requested := make(map[uint64]int64)
	for _, l := range in.Lines {
		if l.ProductID == 0 {
			return nil, domain.Errorf(domain.KindValidation, "productId is required")
		}
		if l.Quantity <= 0 {
			return nil, domain.Errorf(domain.KindValidation, "quantity for product %d must be positive", l.ProductID)
		}
		requested[l.ProductID] += l.Quantity
	}

	products := make(map[uint64]*infra.ProductInfo, len(requested))
	for _, l := range in.Lines {
		if _, ok := products[l.ProductID]; ok {
			continue
		}
		prod, err := u.getProductWithCache(ctx, l.ProductID)
		if err != nil {
			return nil, domain.Wrap(domain.KindExternalService, err, "product service unavailable")
		}
		if prod == nil {
			return nil, domain.Errorf(domain.KindNotFound, "product %d not found", l.ProductID)
		}
		products[l.ProductID] = prod
	}

	for _, l := range in.Lines {
		need, ok := requested[l.ProductID]
		if !ok {
			continue
		}
		delete(requested, l.ProductID)
		inv, err := u.repos.Inventory.FindOrCreate(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		if inv.Quantity < need {
			p := products[l.ProductID]
			return nil, domain.Errorf(domain.KindInsufficientInventory,
				"insufficient inventory for product %s (ID: %d). Available: %d, Requested: %d",
				p.Name, p.ID, inv.Quantity, need)
		}
	}

	now := u.clock.Now()
	items := make([]*domain.OrderItem, 0, len(in.Lines))
	subtotal := decimal.Zero
	for _, l := range in.Lines {
		p := products[l.ProductID]
		it := &domain.OrderItem{
			ProductID:   p.ID,
			SellerID:    p.SellerID,
			ProductName: p.Name,
			Quantity:    l.Quantity,
			UnitPrice:   p.Price,
			Status:      domain.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		items = append(items, it)
		subtotal = subtotal.Add(it.LineTotal())
	}

	discount := decimal.Zero
	var voucher *domain.Voucher
	if in.VoucherCode != "" {
		v, err := u.repos.Vouchers.FindByCode(ctx, in.VoucherCode)
		if err != nil {
			return nil, err
		}
		discount, err = v.Apply(subtotal)
		if err != nil {
			return nil, err
		}
		voucher = v
	}

	addr, err := u.repos.Addresses.FindByID(ctx, in.AddressID)
	if err != nil {
		return nil, err
	}
	if addr == nil {
		return nil, domain.Errorf(domain.KindNotFound, "address %d not found", in.AddressID)
	}
	if addr.UserID != in.BuyerID {
		return nil, domain.Errorf(domain.KindUnauthorized, "address %d does not belong to user", in.AddressID)
	}
	if !addr.Routable() {
		return nil, domain.Errorf(domain.KindInvalidAddress, "address %d is missing district or ward code", in.AddressID)
	}

	shippingFee := u.quoteShipping(ctx, addr, items)

	net := decimal.Max(subtotal.Sub(discount), decimal.Zero)
	total := net.Add(shippingFee.Div(u.feeRate)).Round(2)

	order := &domain.Order{
		BuyerID:     in.BuyerID,
		AddressID:   addr.ID,
		Subtotal:    subtotal,
		Discount:    discount,
		ShippingFee: shippingFee,
		TotalPrice:  total,
		VoucherCode: in.VoucherCode,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.repos.Orders.CreateWithItems(ctx, order, items); err != nil {
		return nil, err
	}

	metrics.OrdersCreatedTotal.Inc()
	log.Printf("[order] created order %d for buyer %d: total=%s", order.ID, order.BuyerID, order.TotalPrice)

	if voucher != nil {
		id := voucher.ID
		u.bg.Go(func() {
			if err := u.repos.Vouchers.IncrementUsage(context.Background(), id); err != nil {
				log.Printf("[order] voucher %s usage not recorded: %v", in.VoucherCode, err)
			}
		})
	}
	evt := orderCreatedEvent(order, items)
	u.bg.Go(func() { publishEvent(u.publisher, domain.EventOrderCreated, evt) })

	return &OrderReceipt{
		OrderID:     order.ID,
		Subtotal:    subtotal,
		Discount:    discount,
		ShippingFee: shippingFee,
		TotalPrice:  total,
	}, nil
}

// quoteShipping sums one carrier quote per seller. Every parcel is quoted
// at the carrier's fixed insured value, not the order's USD subtotal. A
// seller whose quote cannot be obtained contributes nothing.
func (u *OrderService) quoteShipping(ctx context.Context, dest *domain.Address, items []*domain.OrderItem) decimal.Decimal {
	if u.fees == nil {
		return decimal.Zero
	}

	seen := make(map[uint64]bool)
	var sellers []uint64
	for _, it := range items {
		if !seen[it.SellerID] {
			seen[it.SellerID] = true
			sellers = append(sellers, it.SellerID)
		}
	}

	quotes := make([]decimal.Decimal, len(sellers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFeeCalls)
	for i, seller := range sellers {
		g.Go(func() error {
			origin, err := u.repos.Addresses.FindDefaultByUser(gctx, seller)
			if err != nil || !origin.Routable() {
				log.Printf("[order] seller %d has no routable origin address, shipping fee skipped", seller)
				return nil
			}
			fee, err := u.fees.CalculateFee(gctx, infra.FeeRequest{
				FromDistrictID: origin.DistrictID,
				ToDistrictID:   dest.DistrictID,
				ToWardCode:     dest.WardCode,
				InsuranceValue: ghn.DefaultInsurance,
			})
			if err != nil {
				log.Printf("[order] shipping fee for seller %d failed: %v", seller, err)
				return nil
			}
			quotes[i] = fee
			return nil
		})
	}
	_ = g.Wait()

	total := decimal.Zero
	for _, q := range quotes {
		total = total.Add(q)
	}
	return total
}

func orderCreatedEvent(o *domain.Order, items []*domain.OrderItem) domain.OrderCreatedEvent {
	lines := make([]domain.OrderLineEvent, 0, len(items))
	for _, it := range items {
		lines = append(lines, domain.OrderLineEvent{
			ProductID: it.ProductID,
			SellerID:  it.SellerID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return domain.OrderCreatedEvent{
		OrderID:     o.ID,
		BuyerID:     o.BuyerID,
		Subtotal:    o.Subtotal,
		Discount:    o.Discount,
		ShippingFee: o.ShippingFee,
		TotalPrice:  o.TotalPrice,
		Items:       lines,
		CreatedAt:   o.CreatedAt,
	}
}

func (u *OrderService) getProductWithCache(ctx context.Context, productId uint64) (*infra.ProductInfo, error) {
	cacheKey := fmt.Sprintf("product:%d", productId)

	if u.redisClient != nil {
		cached, err := u.redisClient.Get(ctx, cacheKey).Result()
		if err == nil {
			var prod infra.ProductInfo
			if err := json.Unmarshal([]byte(cached), &prod); err == nil {
				return &prod, nil
			}
		}
	}

	v, err, _ := u.loads.Do(strconv.FormatUint(productId, 10), func() (any, error) {
		prod, err := u.prodClient.GetProductById(ctx, productId)
		if err != nil {
			return nil, err
		}
		if u.redisClient != nil && prod != nil {
			if data, err := json.Marshal(prod); err == nil {
				u.redisClient.Set(ctx, cacheKey, data, productCacheTTL)
			}
		}
		return prod, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*infra.ProductInfo), nil
}

func (u *OrderService) WarmupProductCache(ctx context.Context, productIds []uint64) error {
	if u.redisClient == nil {
		return nil
	}

	for _, id := range productIds {
		prod, err := u.prodClient.GetProductById(ctx, id)
		if err != nil {
			log.Printf("[order] failed to warm up cache for product %d: %v", id, err)
			continue
		}

		if prod != nil {
			cacheKey := fmt.Sprintf("product:%d", id)
			if data, err := json.Marshal(prod); err == nil {
				u.redisClient.Set(ctx, cacheKey, data, productWarmupTTL)
			}
		}
	}
	log.Printf("[order] product cache warmed for %d products", len(productIds))
	return nil
}

func normalizePage(page repository.Page) (repository.Page, error) {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.Limit < 1 {
		page.Limit = defaultPageLimit
	}
	if page.Limit > maxPageLimit {
		page.Limit = maxPageLimit
	}
	if page.Status != "" {
		if _, ok := domain.ParseStatus(page.Status); !ok {
			return page, domain.Errorf(domain.KindValidation, "invalid status %q", page.Status)
		}
	}
	return page, nil
}

func paginationOf(page repository.Page, total int64) Pagination {
	limit := int64(page.Limit)
	return Pagination{
		Page:       page.Page,
		Limit:      page.Limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}
}

// ListOrders returns the buyer's orders newest first, each synchronized
// with its items before it is read. With a status filter every order of the
// buyer is synchronized first, so the filter matches derived statuses.
func (u *OrderService) ListOrders(ctx context.Context, buyerID uint64, page repository.Page) (*OrderPage, error) {
	page, err := normalizePage(page)
	if err != nil {
		return nil, err
	}

	presynced := page.Status != ""
	if presynced {
		if err := u.syncBuyerOrders(ctx, buyerID); err != nil {
			return nil, err
		}
	}

	orders, total, err := u.repos.Orders.ListByBuyer(ctx, buyerID, page)
	if err != nil {
		return nil, err
	}

	out := &OrderPage{Orders: make([]OrderView, 0, len(orders)), Pagination: paginationOf(page, total)}
	for _, o := range orders {
		var changed bool
		if !presynced {
			changed, err = u.syncer.Synchronize(ctx, o.ID)
			if err != nil {
				log.Printf("[order] sync order %d: %v", o.ID, err)
			}
		}
		if changed {
			fresh, err := u.repos.Orders.FindByID(ctx, o.ID)
			if err != nil {
				return nil, err
			}
			if fresh != nil {
				o = *fresh
			}
		}
		items, err := u.repos.Orders.FindItems(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		out.Orders = append(out.Orders, OrderView{Order: o, Items: items})
	}
	return out, nil
}

func (u *OrderService) syncBuyerOrders(ctx context.Context, buyerID uint64) error {
	page := repository.Page{Page: 1, Limit: maxPageLimit}
	for {
		orders, total, err := u.repos.Orders.ListByBuyer(ctx, buyerID, page)
		if err != nil {
			return err
		}
		for _, o := range orders {
			u.syncer.syncLogged(ctx, o.ID)
		}
		if len(orders) == 0 || int64(page.Offset()+len(orders)) >= total {
			return nil
		}
		page.Page++
	}
}

func (u *OrderService) GetOrderById(ctx context.Context, buyerID, id uint64) (*OrderView, error) {
	u.syncer.syncLogged(ctx, id)

	o, err := u.repos.Orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if o.BuyerID != buyerID {
		return nil, domain.Errorf(domain.KindUnauthorized, "order %d does not belong to user", id)
	}

	items, err := u.repos.Orders.FindItems(ctx, id)
	if err != nil {
		return nil, err
	}
	payment, err := u.repos.Payments.FindByOrderID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &OrderView{Order: *o, Items: items, Payment: payment}, nil
}

// CancelOrder cancels a pending order on the buyer's behalf and restores
// its inventory.
func (u *OrderService) CancelOrder(ctx context.Context, buyerID, id uint64) error {
	o, err := u.repos.Orders.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if o == nil {
		return ErrOrderNotFound
	}
	if o.BuyerID != buyerID {
		return domain.Errorf(domain.KindUnauthorized, "order %d does not belong to user", id)
	}
	if o.Status != domain.StatusPending {
		return domain.Errorf(domain.KindInvalidOrderState, "order %d is %s and cannot be cancelled", id, o.Status)
	}

	now := u.clock.Now()
	ok, err := u.repos.Orders.CancelPending(ctx, id, now)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Errorf(domain.KindInvalidOrderState, "order %d is no longer pending", id)
	}

	metrics.OrdersCancelledTotal.WithLabelValues(domain.CancelReasonBuyer).Inc()
	log.Printf("[order] order %d cancelled by buyer %d", id, buyerID)

	evt := domain.OrderCancelledEvent{OrderID: id, BuyerID: buyerID, Reason: domain.CancelReasonBuyer, CancelledAt: now}
	u.bg.Go(func() { publishEvent(u.publisher, domain.EventOrderCancelled, evt) })
	return nil
}

// UpdateItemStatus applies a seller's status change to one of their items
// and resynchronizes the parent order. Sellers cannot cancel: only the buyer
// cancel and the expiration sweep do, and both return the reserved stock.
func (u *OrderService) UpdateItemStatus(ctx context.Context, sellerID, itemID uint64, raw string) (*domain.OrderItem, error) {
	status, ok := domain.ParseStatus(raw)
	if !ok {
		return nil, domain.Errorf(domain.KindValidation, "invalid status %q", raw)
	}
	if status == domain.StatusCancelled {
		return nil, domain.Errorf(domain.KindInvalidOrderState, "sellers cannot cancel order items")
	}

	item, err := u.repos.Orders.FindItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.Errorf(domain.KindNotFound, "order item %d not found", itemID)
	}
	if item.SellerID != sellerID {
		return nil, domain.Errorf(domain.KindUnauthorized, "order item %d does not belong to seller", itemID)
	}
	if item.Status == domain.StatusCancelled {
		return nil, domain.Errorf(domain.KindInvalidOrderState, "order item %d is cancelled", itemID)
	}

	if err := u.repos.Orders.UpdateItemStatus(ctx, itemID, status); err != nil {
		return nil, err
	}
	item.Status = status
	u.syncer.syncLogged(ctx, item.OrderID)
	return item, nil
}
