// Package memory is an in-process implementation of the repository
// interfaces. It backs STORAGE=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/repository"
)

type Store struct {
	mu sync.Mutex

	seq       uint64
	orders    map[uint64]domain.Order
	items     map[uint64]domain.OrderItem
	inventory map[uint64]domain.Inventory
	vouchers  map[uint64]domain.Voucher
	addresses map[uint64]domain.Address
	payments  map[uint64]domain.Payment
	archive   []domain.PaymentArchive
	shipments map[uint64]domain.ShippingInfo
}

func NewStore() *Store {
	return &Store{
		orders:    make(map[uint64]domain.Order),
		items:     make(map[uint64]domain.OrderItem),
		inventory: make(map[uint64]domain.Inventory),
		vouchers:  make(map[uint64]domain.Voucher),
		addresses: make(map[uint64]domain.Address),
		payments:  make(map[uint64]domain.Payment),
		shipments: make(map[uint64]domain.ShippingInfo),
	}
}

func (s *Store) nextID() uint64 {
	s.seq++
	return s.seq
}

func (s *Store) Orders() repository.OrderRepository        { return orderRepo{s} }
func (s *Store) Inventory() repository.InventoryRepository { return inventoryRepo{s} }
func (s *Store) Vouchers() repository.VoucherRepository    { return voucherRepo{s} }
func (s *Store) Addresses() repository.AddressRepository   { return addressRepo{s} }
func (s *Store) Payments() repository.PaymentRepository    { return paymentRepo{s} }
func (s *Store) Shipping() repository.ShippingRepository   { return shippingRepo{s} }

func (s *Store) Set() repository.Set {
	return repository.Set{
		Orders:    s.Orders(),
		Inventory: s.Inventory(),
		Vouchers:  s.Vouchers(),
		Addresses: s.Addresses(),
		Payments:  s.Payments(),
		Shipping:  s.Shipping(),
	}
}

// Seeding helpers.

func (s *Store) PutInventory(productID uint64, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[productID] = domain.Inventory{ProductID: productID, Quantity: qty, LastUpdated: time.Now()}
}

func (s *Store) InventoryOf(productID uint64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.inventory[productID]
	return inv.Quantity, ok
}

func (s *Store) PutVoucher(v domain.Voucher) domain.Voucher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == 0 {
		v.ID = s.nextID()
	}
	s.vouchers[v.ID] = v
	return v
}

func (s *Store) VoucherByCode(code string) (domain.Voucher, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.vouchers {
		if v.Code == code {
			return v, true
		}
	}
	return domain.Voucher{}, false
}

func (s *Store) PutAddress(a domain.Address) domain.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.nextID()
	}
	s.addresses[a.ID] = a
	return a
}

// PutOrder stores an order as-is, for tests that need a specific createdAt.
func (s *Store) PutOrder(o domain.Order, items ...domain.OrderItem) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		o.ID = s.nextID()
	}
	s.orders[o.ID] = o
	for _, it := range items {
		if it.ID == 0 {
			it.ID = s.nextID()
		}
		it.OrderID = o.ID
		s.items[it.ID] = it
	}
	return o
}

func (s *Store) ArchivedPayments(orderID uint64) []domain.PaymentArchive {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PaymentArchive
	for _, a := range s.archive {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	return out
}

func paginate[T any](in []T, page repository.Page) []T {
	off := page.Offset()
	if off >= len(in) {
		return nil
	}
	end := len(in)
	if page.Limit > 0 && off+page.Limit < end {
		end = off + page.Limit
	}
	return in[off:end]
}

type orderRepo struct{ s *Store }

func (r orderRepo) CreateWithItems(_ context.Context, order *domain.Order, items []*domain.OrderItem) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	need := make(map[uint64]int64)
	for _, it := range items {
		need[it.ProductID] += it.Quantity
	}
	for _, it := range items {
		inv := s.inventory[it.ProductID]
		if inv.Quantity < need[it.ProductID] {
			return domain.Errorf(domain.KindInsufficientInventory,
				"insufficient inventory for product %s (ID: %d). Available: %d, Requested: %d",
				it.ProductName, it.ProductID, inv.Quantity, need[it.ProductID])
		}
	}

	order.ID = s.nextID()
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	s.orders[order.ID] = *order
	for _, it := range items {
		it.ID = s.nextID()
		it.OrderID = order.ID
		it.CreatedAt = order.CreatedAt
		it.UpdatedAt = order.CreatedAt
		s.items[it.ID] = *it

		inv := s.inventory[it.ProductID]
		inv.Quantity -= it.Quantity
		inv.LastUpdated = order.CreatedAt
		s.inventory[it.ProductID] = inv
	}
	return nil
}

func (r orderRepo) FindByID(_ context.Context, id uint64) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r orderRepo) itemsOf(orderID uint64) []domain.OrderItem {
	var out []domain.OrderItem
	for _, it := range r.s.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r orderRepo) FindItems(_ context.Context, orderID uint64) ([]domain.OrderItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.itemsOf(orderID), nil
}

func (r orderRepo) FindItemByID(_ context.Context, itemID uint64) (*domain.OrderItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[itemID]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (r orderRepo) ListByBuyer(_ context.Context, buyerID uint64, page repository.Page) ([]domain.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []domain.Order
	for _, o := range r.s.orders {
		if o.BuyerID == buyerID && (page.Status == "" || string(o.Status) == page.Status) {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return paginate(all, page), int64(len(all)), nil
}

func (r orderRepo) ListItemsBySeller(_ context.Context, sellerID uint64, page repository.Page) ([]domain.OrderItem, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []domain.OrderItem
	for _, it := range r.s.items {
		if it.SellerID == sellerID && (page.Status == "" || string(it.Status) == page.Status) {
			all = append(all, it)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, page), int64(len(all)), nil
}

func (r orderRepo) ListPendingBefore(_ context.Context, cutoff time.Time) ([]domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Order
	for _, o := range r.s.orders {
		if o.Status == domain.StatusPending && o.CreatedAt.Before(cutoff) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r orderRepo) CompareAndSetStatus(_ context.Context, orderID uint64, from, to domain.Status) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	r.s.orders[orderID] = o
	return true, nil
}

func (r orderRepo) UpdateItemStatus(_ context.Context, itemID uint64, status domain.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[itemID]
	if !ok {
		return nil
	}
	it.Status = status
	it.UpdatedAt = time.Now()
	r.s.items[itemID] = it
	return nil
}

func (r orderRepo) CancelPending(_ context.Context, orderID uint64, at time.Time) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != domain.StatusPending {
		return false, nil
	}
	o.Status = domain.StatusCancelled
	o.UpdatedAt = at
	s.orders[orderID] = o

	for _, it := range r.itemsOf(orderID) {
		it.Status = domain.StatusCancelled
		it.UpdatedAt = at
		s.items[it.ID] = it

		if inv, ok := s.inventory[it.ProductID]; ok {
			inv.Quantity += it.Quantity
			inv.LastUpdated = at
			s.inventory[it.ProductID] = inv
		}
	}
	return true, nil
}

type inventoryRepo struct{ s *Store }

func (r inventoryRepo) FindOrCreate(_ context.Context, productID uint64) (*domain.Inventory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.inventory[productID]
	if !ok {
		inv = domain.Inventory{ProductID: productID, LastUpdated: time.Now()}
		r.s.inventory[productID] = inv
	}
	return &inv, nil
}

type voucherRepo struct{ s *Store }

func (r voucherRepo) FindByCode(_ context.Context, code string) (*domain.Voucher, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.vouchers {
		if strings.EqualFold(v.Code, code) {
			return &v, nil
		}
	}
	return nil, nil
}

func (r voucherRepo) IncrementUsage(_ context.Context, id uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vouchers[id]
	if !ok {
		return nil
	}
	v.UsedCount++
	r.s.vouchers[id] = v
	return nil
}

type addressRepo struct{ s *Store }

func (r addressRepo) FindByID(_ context.Context, id uint64) (*domain.Address, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.addresses[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r addressRepo) FindDefaultByUser(_ context.Context, userID uint64) (*domain.Address, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.addresses {
		if a.UserID == userID && a.IsDefault {
			return &a, nil
		}
	}
	return nil, nil
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) create(p *domain.Payment) error {
	for _, existing := range r.s.payments {
		if existing.OrderID == p.OrderID {
			return domain.Errorf(domain.KindInvalidOrderState, "order %d already has a payment", p.OrderID)
		}
	}
	p.ID = r.s.nextID()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = p.CreatedAt
	r.s.payments[p.ID] = *p
	return nil
}

func (r paymentRepo) Create(_ context.Context, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.create(p)
}

func (r paymentRepo) Save(_ context.Context, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.UpdatedAt = time.Now()
	r.s.payments[p.ID] = *p
	return nil
}

func (r paymentRepo) FindByOrderID(_ context.Context, orderID uint64) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, nil
}

func (r paymentRepo) Replace(_ context.Context, old, next *domain.Payment, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.archive = append(r.s.archive, *domain.NewPaymentArchive(old, at))
	delete(r.s.payments, old.ID)
	return r.create(next)
}

func (r paymentRepo) ListInFlightBefore(_ context.Context, cutoff time.Time) ([]domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.s.payments {
		if p.Method == domain.MethodPayPal && p.Status.InFlight() && p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type shippingRepo struct{ s *Store }

func (r shippingRepo) Create(_ context.Context, info *domain.ShippingInfo) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.shipments {
		if existing.OrderItemID == info.OrderItemID || existing.TrackingNumber == info.TrackingNumber {
			return domain.Errorf(domain.KindInvalidOrderState, "shipping info already exists for item %d", info.OrderItemID)
		}
	}
	info.ID = r.s.nextID()
	r.s.shipments[info.ID] = cloneShipping(*info)
	return nil
}

func (r shippingRepo) Save(_ context.Context, info *domain.ShippingInfo) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.shipments[info.ID] = cloneShipping(*info)
	return nil
}

func cloneShipping(in domain.ShippingInfo) domain.ShippingInfo {
	in.StatusHistory = append([]domain.ShippingEvent(nil), in.StatusHistory...)
	return in
}

func (r shippingRepo) find(match func(domain.ShippingInfo) bool) *domain.ShippingInfo {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, info := range r.s.shipments {
		if match(info) {
			out := cloneShipping(info)
			return &out
		}
	}
	return nil
}

func (r shippingRepo) FindByID(_ context.Context, id uint64) (*domain.ShippingInfo, error) {
	return r.find(func(i domain.ShippingInfo) bool { return i.ID == id }), nil
}

func (r shippingRepo) FindByOrderItemID(_ context.Context, itemID uint64) (*domain.ShippingInfo, error) {
	return r.find(func(i domain.ShippingInfo) bool { return i.OrderItemID == itemID }), nil
}

func (r shippingRepo) FindByTrackingNumber(_ context.Context, trackingNumber string) (*domain.ShippingInfo, error) {
	return r.find(func(i domain.ShippingInfo) bool { return i.TrackingNumber == trackingNumber }), nil
}

func (r shippingRepo) FindByOrderItemIDs(_ context.Context, itemIDs []uint64) ([]domain.ShippingInfo, error) {
	want := make(map[uint64]bool, len(itemIDs))
	for _, id := range itemIDs {
		want[id] = true
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ShippingInfo
	for _, info := range r.s.shipments {
		if want[info.OrderItemID] {
			out = append(out, cloneShipping(info))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r shippingRepo) ListBySeller(_ context.Context, sellerID uint64, page repository.Page) ([]domain.ShippingInfo, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []domain.ShippingInfo
	for _, info := range r.s.shipments {
		if info.SellerID == sellerID && (page.Status == "" || string(info.Status) == page.Status) {
			all = append(all, cloneShipping(info))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, page), int64(len(all)), nil
}

func (r shippingRepo) CountByStatus(_ context.Context, sellerID uint64) (map[domain.ShippingStatus]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[domain.ShippingStatus]int64)
	for _, info := range r.s.shipments {
		if info.SellerID == sellerID {
			out[info.Status]++
		}
	}
	return out, nil
}
