// Package repotest provides in-memory repositories for service and handler tests.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

// Store backs every fake repository with shared maps so cross-aggregate
// behaviour (cascading deletes, order placement clearing the cart) matches Postgres.
type Store struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*model.User
	products map[uuid.UUID]*model.Product
	carts    map[uuid.UUID]*model.Cart // by user id
	orders   map[uuid.UUID]*model.Order
	history  map[uuid.UUID]model.OrderStatusChange // by event id

	// races counts cart saves that will lose to a simulated concurrent writer.
	races map[uuid.UUID]int

	// Err, when set, is returned by every call.
	Err error
}

func NewStore() *Store {
	return &Store{
		users:    make(map[uuid.UUID]*model.User),
		products: make(map[uuid.UUID]*model.Product),
		carts:    make(map[uuid.UUID]*model.Cart),
		orders:   make(map[uuid.UUID]*model.Order),
		history:  make(map[uuid.UUID]model.OrderStatusChange),
		races:    make(map[uuid.UUID]int),
	}
}

// RaceCartSaves makes the next n saves of userID's cart lose a version race,
// as if another request committed between their read and write.
func (s *Store) RaceCartSaves(userID uuid.UUID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.races[userID] = n
}

func (s *Store) Users() *Users       { return &Users{s} }
func (s *Store) Products() *Products { return &Products{s} }
func (s *Store) Carts() *Carts       { return &Carts{s} }
func (s *Store) Orders() *Orders     { return &Orders{s} }

// AddProduct seeds a product and returns it.
func (s *Store) AddProduct(name string, price string, stock int) *model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &model.Product{
		ID:        uuid.New(),
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.products[p.ID] = p
	cp := *p
	return &cp
}

// SetStock changes a product's stock behind the services' back.
func (s *Store) SetStock(id uuid.UUID, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		p.Stock = stock
	}
}

// SetPrice changes a product's price behind the services' back.
func (s *Store) SetPrice(id uuid.UUID, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		p.Price = decimal.RequireFromString(price)
	}
}

// AddUser seeds a user with a cart and returns it.
func (s *Store) AddUser(name, email, role string) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &model.User{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		Phone:     uuid.NewString()[:10],
		Role:      role,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.users[u.ID] = u
	s.carts[u.ID] = model.NewCart(u.ID)
	cp := *u
	return &cp
}

// Stock reports a product's current stock.
func (s *Store) Stock(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		return p.Stock
	}
	return 0
}

// History returns every recorded status change.
func (s *Store) History() []model.OrderStatusChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OrderStatusChange, 0, len(s.history))
	for _, h := range s.history {
		out = append(out, h)
	}
	return out
}

// saveCart mirrors the Postgres version check. Callers hold s.mu.
func (s *Store) saveCart(cart *model.Cart) error {
	stored, ok := s.carts[cart.UserID]
	if !ok || stored.ID != cart.ID {
		return repository.ErrNotFound
	}
	if s.races[cart.UserID] > 0 {
		s.races[cart.UserID]--
		stored.Version++
	}
	if stored.Version != cart.Version {
		return fmt.Errorf("save cart %s: %w", cart.ID, repository.ErrVersionConflict)
	}
	cart.Recalculate()
	next := cart.Clone()
	next.Version++
	next.UpdatedAt = time.Now()
	s.carts[cart.UserID] = next
	return nil
}

type Users struct{ s *Store }

func (r *Users) CreateWithCart(_ context.Context, user *model.User, cart *model.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	for _, u := range r.s.users {
		if u.Email == user.Email || u.Phone == user.Phone {
			return fmt.Errorf("create user: %w", repository.ErrDuplicate)
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt, user.UpdatedAt = time.Now(), time.Now()
	cp := *user
	r.s.users[user.ID] = &cp
	cart.UserID = user.ID
	r.s.carts[user.ID] = cart.Clone()
	return nil
}

func (r *Users) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *Users) List(_ context.Context) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	users := make([]model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (r *Users) UpdateProfile(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	stored, ok := r.s.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, u := range r.s.users {
		if id != user.ID && u.Phone == user.Phone {
			return fmt.Errorf("update user: %w", repository.ErrDuplicate)
		}
	}
	stored.Name, stored.Phone, stored.ProfilePic = user.Name, user.Phone, user.ProfilePic
	stored.DOB, stored.Gender, stored.Address = user.DOB, user.Gender, user.Address
	stored.UpdatedAt = time.Now()
	user.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *Users) UpdateRole(_ context.Context, id uuid.UUID, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	return nil
}

func (r *Users) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	if _, ok := r.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.users, id)
	delete(r.s.carts, id)
	for oid, o := range r.s.orders {
		if o.UserID == id {
			delete(r.s.orders, oid)
		}
	}
	return nil
}

func (r *Users) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return 0, r.s.Err
	}
	return int64(len(r.s.users)), nil
}

type Products struct{ s *Store }

func (r *Products) Create(_ context.Context, product *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	product.ID = uuid.New()
	product.CreatedAt, product.UpdatedAt = time.Now(), time.Now()
	cp := *product
	r.s.products[product.ID] = &cp
	return nil
}

func (r *Products) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	p, ok := r.s.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *Products) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	out := make(map[uuid.UUID]*model.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *Products) List(_ context.Context, f model.ProductFilter) ([]model.Product, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, 0, r.s.Err
	}
	var matched []model.Product
	search := strings.ToLower(f.Search)
	for _, p := range r.s.products {
		if search != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.Description), search) {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.Brand != "" && p.Brand != f.Brand {
			continue
		}
		if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
			continue
		}
		matched = append(matched, *p)
	}
	sort.Slice(matched, func(i, j int) bool {
		var less bool
		switch f.Sort {
		case "name":
			less = matched[i].Name < matched[j].Name
		case "price":
			less = matched[i].Price.LessThan(matched[j].Price)
		default:
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		if f.Order == "desc" {
			return !less
		}
		return less
	})
	total := len(matched)
	if f.Offset >= total {
		return []model.Product{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (r *Products) Update(_ context.Context, product *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	if _, ok := r.s.products[product.ID]; !ok {
		return repository.ErrNotFound
	}
	product.UpdatedAt = time.Now()
	cp := *product
	r.s.products[product.ID] = &cp
	return nil
}

func (r *Products) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	if _, ok := r.s.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.products, id)
	return nil
}

type Carts struct{ s *Store }

func (r *Carts) GetOrCreateCart(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	cart, ok := r.s.carts[userID]
	if !ok {
		cart = model.NewCart(userID)
		r.s.carts[userID] = cart
	}
	return cart.Clone(), nil
}

func (r *Carts) GetByUserID(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	cart, ok := r.s.carts[userID]
	if !ok {
		return nil, nil
	}
	return cart.Clone(), nil
}

func (r *Carts) Save(_ context.Context, cart *model.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	if err := r.s.saveCart(cart); err != nil {
		return err
	}
	cart.Version++
	return nil
}

// Put overwrites the stored cart, bumping its version like a competing writer would.
func (r *Carts) Put(cart *model.Cart) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	next := cart.Clone()
	next.Recalculate()
	if stored, ok := r.s.carts[cart.UserID]; ok {
		next.Version = stored.Version + 1
	}
	r.s.carts[cart.UserID] = next
}

type Orders struct{ s *Store }

func (r *Orders) Place(_ context.Context, order *model.Order, cart *model.Cart, reserveStock bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	if reserveStock {
		for _, item := range order.Items {
			p, ok := r.s.products[item.ProductID]
			if !ok || p.Stock < item.Quantity {
				return fmt.Errorf("product %s: %w", item.ProductID, repository.ErrInsufficientStock)
			}
		}
	}
	if err := r.s.saveCart(cart); err != nil {
		return err
	}
	if reserveStock {
		for _, item := range order.Items {
			r.s.products[item.ProductID].Stock -= item.Quantity
		}
	}
	order.CreatedAt, order.UpdatedAt = time.Now(), time.Now()
	r.s.orders[order.ID] = cloneOrder(order)
	cart.Version++
	return nil
}

func (r *Orders) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

func (r *Orders) List(_ context.Context) ([]model.Order, error) {
	return r.list(func(*model.Order) bool { return true }, true)
}

func (r *Orders) ListByUserID(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	return r.list(func(o *model.Order) bool { return o.UserID == userID }, false)
}

func (r *Orders) list(keep func(*model.Order) bool, withUser bool) ([]model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	var out []model.Order
	for _, o := range r.s.orders {
		if !keep(o) {
			continue
		}
		cp := cloneOrder(o)
		if u, ok := r.s.users[o.UserID]; ok && withUser {
			cp.UserName, cp.UserEmail = u.Name, u.Email
		}
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Orders) UpdateStatus(_ context.Context, id uuid.UUID, from, to model.OrderStatus) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	o, ok := r.s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if o.Status != from {
		return nil, fmt.Errorf("order %s left %s: %w", id, from, repository.ErrVersionConflict)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return cloneOrder(o), nil
}

// SetStatus forces an order's status, simulating a concurrent admin.
func (r *Orders) SetStatus(id uuid.UUID, status model.OrderStatus) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if o, ok := r.s.orders[id]; ok {
		o.Status = status
	}
}

func (r *Orders) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return 0, r.s.Err
	}
	return int64(len(r.s.orders)), nil
}

func (r *Orders) TotalRevenue(_ context.Context) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return decimal.Zero, r.s.Err
	}
	total := decimal.Zero
	for _, o := range r.s.orders {
		total = total.Add(o.TotalAmount)
	}
	return total, nil
}

func (r *Orders) AddStatusChange(_ context.Context, change *model.OrderStatusChange) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	if _, ok := r.s.history[change.EventID]; ok {
		return nil
	}
	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}
	r.s.history[change.EventID] = *change
	return nil
}

func (r *Orders) ListStatusHistory(_ context.Context, orderID uuid.UUID) ([]model.OrderStatusChange, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	var out []model.OrderStatusChange
	for _, h := range r.s.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChangedAt.Before(out[j].ChangedAt) })
	return out, nil
}

func cloneOrder(o *model.Order) *model.Order {
	cp := *o
	cp.Items = append([]model.OrderItem(nil), o.Items...)
	return &cp
}

var (
	_ repository.UserRepository    = (*Users)(nil)
	_ repository.ProductRepository = (*Products)(nil)
	_ repository.CartRepository    = (*Carts)(nil)
	_ repository.OrderRepository   = (*Orders)(nil)
)
