// Package memstore is an in-process database.Store. Transactions are
// serialized by a single mutex and rolled back by restoring a snapshot.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketplace-svc/database"
	"marketplace-svc/models"

	"github.com/google/uuid"
)

type state struct {
	carts     map[string]*models.Cart
	products  map[string]*models.Product
	orders    map[string]*models.Order
	addresses []models.SavedAddress
	settings  models.AppSettings
}

func (s *state) clone() *state {
	c := &state{
		carts:     make(map[string]*models.Cart, len(s.carts)),
		products:  make(map[string]*models.Product, len(s.products)),
		orders:    make(map[string]*models.Order, len(s.orders)),
		addresses: append([]models.SavedAddress(nil), s.addresses...),
		settings:  s.settings,
	}
	for id, cart := range s.carts {
		c.carts[id] = cart.Clone()
	}
	for id, p := range s.products {
		c.products[id] = p.Clone()
	}
	for id, o := range s.orders {
		c.orders[id] = cloneOrder(o)
	}
	return c
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{
		st: &state{
			carts:    make(map[string]*models.Cart),
			products: make(map[string]*models.Product),
			orders:   make(map[string]*models.Order),
		},
		now: time.Now,
	}
}

// InTx runs fn with exclusive access to the store. Every change fn made is
// discarded when it returns an error.
func (s *Store) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&view{s: s, inTx: true}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) Queries() database.Tx {
	return &view{s: s}
}

// PutProduct inserts or replaces a catalog product.
func (s *Store) PutProduct(p *models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p.Clone()
}

// DeleteProduct removes a product from the catalog.
func (s *Store) DeleteProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.products, id)
}

func (s *Store) SetSettings(settings models.AppSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.settings = settings
}

// Product returns a copy of the stored product, or nil.
func (s *Store) Product(id string) *models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.st.products[id]; ok {
		return p.Clone()
	}
	return nil
}

// Orders returns every stored order, oldest first.
func (s *Store) Orders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0, len(s.st.orders))
	for _, o := range s.st.orders {
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type view struct {
	s    *Store
	inTx bool
}

func (v *view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v *view) FindOrCreateCart(ctx context.Context, userID string) (*models.Cart, error) {
	defer v.lock()()
	if cart := v.cartByUser(userID); cart != nil {
		return cart.Clone(), nil
	}
	now := v.s.now()
	cart := &models.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		CartItems: []models.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	v.s.st.carts[cart.ID] = cart
	return cart.Clone(), nil
}

func (v *view) GetCartByUser(ctx context.Context, userID string) (*models.Cart, error) {
	defer v.lock()()
	if cart := v.cartByUser(userID); cart != nil {
		return cart.Clone(), nil
	}
	return nil, database.ErrNotFound
}

func (v *view) GetCartByID(ctx context.Context, cartID string) (*models.Cart, error) {
	defer v.lock()()
	if cart, ok := v.s.st.carts[cartID]; ok {
		return cart.Clone(), nil
	}
	return nil, database.ErrNotFound
}

func (v *view) SaveCart(ctx context.Context, cart *models.Cart) error {
	defer v.lock()()
	if _, ok := v.s.st.carts[cart.ID]; !ok {
		return database.ErrNotFound
	}
	cart.UpdatedAt = v.s.now()
	v.s.st.carts[cart.ID] = cart.Clone()
	return nil
}

func (v *view) cartByUser(userID string) *models.Cart {
	for _, cart := range v.s.st.carts {
		if cart.UserID == userID {
			return cart
		}
	}
	return nil
}

func (v *view) GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	defer v.lock()()
	out := make(map[string]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := v.s.st.products[id]; ok {
			out[id] = p.Clone()
		}
	}
	return out, nil
}

func (v *view) GetProductForUpdate(ctx context.Context, id string) (*models.Product, error) {
	defer v.lock()()
	if p, ok := v.s.st.products[id]; ok {
		return p.Clone(), nil
	}
	return nil, database.ErrNotFound
}

func (v *view) SaveProductStock(ctx context.Context, p *models.Product) error {
	defer v.lock()()
	stored, ok := v.s.st.products[p.ID]
	if !ok {
		return database.ErrNotFound
	}
	updated := p.Clone()
	updated.Sold = stored.Sold
	updated.UpdatedAt = v.s.now()
	v.s.st.products[p.ID] = updated
	return nil
}

func (v *view) IncrementSold(ctx context.Context, productID string, qty int) error {
	defer v.lock()()
	if p, ok := v.s.st.products[productID]; ok {
		p.Sold += qty
	}
	return nil
}

func (v *view) GetSettings(ctx context.Context) (models.AppSettings, error) {
	defer v.lock()()
	return v.s.st.settings, nil
}

func (v *view) InsertOrder(ctx context.Context, o *models.Order) error {
	defer v.lock()()
	if o.CheckoutSessionID != "" {
		for _, existing := range v.s.st.orders {
			if existing.CheckoutSessionID == o.CheckoutSessionID {
				return database.ErrDuplicate
			}
		}
	}
	if _, ok := v.s.st.orders[o.ID]; ok {
		return database.ErrDuplicate
	}
	now := v.s.now()
	o.CreatedAt, o.UpdatedAt = now, now
	v.s.st.orders[o.ID] = cloneOrder(o)
	return nil
}

func (v *view) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	defer v.lock()()
	if o, ok := v.s.st.orders[id]; ok {
		return cloneOrder(o), nil
	}
	return nil, database.ErrNotFound
}

func (v *view) FindOrderBySession(ctx context.Context, sessionID string) (*models.Order, error) {
	defer v.lock()()
	for _, o := range v.s.st.orders {
		if sessionID != "" && o.CheckoutSessionID == sessionID {
			return cloneOrder(o), nil
		}
	}
	return nil, database.ErrNotFound
}

func (v *view) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	defer v.lock()()
	out := []models.Order{}
	for _, o := range v.s.st.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (v *view) UpdateOrderStatus(ctx context.Context, o *models.Order) error {
	defer v.lock()()
	stored, ok := v.s.st.orders[o.ID]
	if !ok {
		return database.ErrNotFound
	}
	stored.PaymentStatus = o.PaymentStatus
	stored.OrderStatus = o.OrderStatus
	stored.PaidAt = o.PaidAt
	stored.DeliveredAt = o.DeliveredAt
	stored.UpdatedAt = v.s.now()
	o.UpdatedAt = stored.UpdatedAt
	return nil
}

func (v *view) ListAddresses(ctx context.Context, userID string) ([]models.SavedAddress, error) {
	defer v.lock()()
	var out []models.SavedAddress
	for _, a := range v.s.st.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (v *view) InsertAddress(ctx context.Context, a *models.SavedAddress) error {
	defer v.lock()()
	a.CreatedAt = v.s.now()
	v.s.st.addresses = append(v.s.st.addresses, *a)
	return nil
}

func (v *view) DeleteAddress(ctx context.Context, id string) error {
	defer v.lock()()
	kept := v.s.st.addresses[:0]
	for _, a := range v.s.st.addresses {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	v.s.st.addresses = kept
	return nil
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.OrderItems = append([]models.OrderItem(nil), o.OrderItems...)
	if o.Coupon != nil {
		coupon := *o.Coupon
		c.Coupon = &coupon
	}
	if o.Pricing.TotalPriceAfterDiscount != nil {
		v := *o.Pricing.TotalPriceAfterDiscount
		c.Pricing.TotalPriceAfterDiscount = &v
	}
	return &c
}
