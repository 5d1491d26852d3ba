//go:build integration

package repository

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/flicky/storefront-api/internal/migration"
	"github.com/flicky/storefront-api/internal/model"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(runWithDatabase(m))
}

func runWithDatabase(m *testing.M) int {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("storefront_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres container: %v\n", err)
		return 1
	}
	defer func() { _ = testcontainers.TerminateContainer(container) }()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection string: %v\n", err)
		return 1
	}

	migrator, err := migration.New(strings.Replace(dsn, "postgres://", "pgx5://", 1), zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open migrator: %v\n", err)
		return 1
	}
	if err := migrator.Up(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	_ = migrator.Close()

	testPool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer testPool.Close()

	return m.Run()
}

func cleanupTables(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`TRUNCATE order_status_history, order_items, orders, cart_items, carts, products, users CASCADE`)
	require.NoError(t, err)
}

func createUser(t *testing.T, email string) *model.User {
	t.Helper()
	user := &model.User{
		Name: "Test", Email: email, Phone: uuid.NewString()[:12], Password: "hash",
		Address: model.Address{City: "Kathmandu"}.WithDefaults(), Role: model.RoleUser,
	}
	require.NoError(t, NewUserRepository(testPool).CreateWithCart(context.Background(), user, model.NewCart(uuid.Nil)))
	return user
}

func createProduct(t *testing.T, price string, stock int) *model.Product {
	t.Helper()
	p := &model.Product{Name: "Widget", Price: decimal.RequireFromString(price), Stock: stock}
	require.NoError(t, NewProductRepository(testPool).Create(context.Background(), p))
	return p
}

func TestUserRepository_CreateWithCartAndCascade(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	users := NewUserRepository(testPool)
	carts := NewCartRepository(testPool)

	user := createUser(t, "a@example.com")

	got, err := users.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.DefaultCountry, got.Address.Country)

	cart, err := carts.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, cart)
	assert.True(t, cart.Total.IsZero())

	dup := &model.User{Name: "B", Email: "a@example.com", Phone: "other", Password: "x", Role: model.RoleUser}
	assert.ErrorIs(t, users.CreateWithCart(ctx, dup, model.NewCart(uuid.Nil)), ErrDuplicate)

	require.NoError(t, users.Delete(ctx, user.ID))
	cart, err = carts.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, cart)
	assert.ErrorIs(t, users.Delete(ctx, user.ID), ErrNotFound)
}

func TestCartRepository_SaveVersionCheck(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	carts := NewCartRepository(testPool)
	user := createUser(t, "cart@example.com")
	p := createProduct(t, "12.50", 10)
	q := createProduct(t, "3.00", 10)

	first, err := carts.GetOrCreateCart(ctx, user.ID)
	require.NoError(t, err)
	stale := first.Clone()

	first.Add(p.ID, 2, p.Price)
	first.Add(q.ID, 1, q.Price)
	require.NoError(t, carts.Save(ctx, first))

	stale.Add(q.ID, 5, q.Price)
	assert.ErrorIs(t, carts.Save(ctx, stale), ErrVersionConflict)

	stored, err := carts.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Version, stored.Version)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, p.ID, stored.Items[0].ProductID, "line order is preserved")
	assert.True(t, stored.Total.Equal(decimal.RequireFromString("28")))
}

func TestCartRepository_ConcurrentSavesOneWins(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	carts := NewCartRepository(testPool)
	user := createUser(t, "race@example.com")
	p := createProduct(t, "1", 100)

	base, err := carts.GetOrCreateCart(ctx, user.ID)
	require.NoError(t, err)

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := base.Clone()
			c.Add(p.ID, i+1, p.Price)
			if err := carts.Save(ctx, c); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestOrderRepository_PlaceAndStatus(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	carts := NewCartRepository(testPool)
	orders := NewOrderRepository(testPool)
	products := NewProductRepository(testPool)
	user := createUser(t, "order@example.com")
	p := createProduct(t, "100", 5)

	cart, err := carts.GetOrCreateCart(ctx, user.ID)
	require.NoError(t, err)
	cart.Add(p.ID, 2, p.Price)
	require.NoError(t, carts.Save(ctx, cart))

	order := model.NewOrderFromCart(cart, model.Address{City: "Pokhara"}, "")
	cleared := cart.Clone()
	cleared.Clear()
	require.NoError(t, orders.Place(ctx, order, cleared, true))

	stored, err := carts.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Items)
	assert.True(t, stored.Total.IsZero())

	product, err := products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)

	got, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, "Pokhara", got.ShippingAddress.City)

	// Replaying with the old cart version must not create a second order.
	stale := cart.Clone()
	stale.Clear()
	again := model.NewOrderFromCart(cart, model.Address{}, "")
	assert.ErrorIs(t, orders.Place(ctx, again, stale, false), ErrVersionConflict)

	updated, err := orders.UpdateStatus(ctx, order.ID, model.OrderStatusPending, model.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, updated.Status)

	_, err = orders.UpdateStatus(ctx, order.ID, model.OrderStatusPending, model.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrVersionConflict)
	_, err = orders.UpdateStatus(ctx, uuid.New(), model.OrderStatusPending, model.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrNotFound)

	listed, err := orders.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "order@example.com", listed[0].UserEmail)

	count, err := orders.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	revenue, err := orders.TotalRevenue(ctx)
	require.NoError(t, err)
	assert.True(t, revenue.Equal(decimal.NewFromInt(200)))
}

func TestOrderRepository_PlaceRollsBackOnStock(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	carts := NewCartRepository(testPool)
	orders := NewOrderRepository(testPool)
	user := createUser(t, "short@example.com")
	p := createProduct(t, "10", 1)

	cart, err := carts.GetOrCreateCart(ctx, user.ID)
	require.NoError(t, err)
	cart.Add(p.ID, 3, p.Price)
	require.NoError(t, carts.Save(ctx, cart))

	order := model.NewOrderFromCart(cart, model.Address{}, "")
	cleared := cart.Clone()
	cleared.Clear()
	assert.ErrorIs(t, orders.Place(ctx, order, cleared, true), ErrInsufficientStock)

	stored, err := carts.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.QuantityOf(p.ID), "cart survives a failed checkout")
	got, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOrderRepository_StatusHistory(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	carts := NewCartRepository(testPool)
	orders := NewOrderRepository(testPool)
	user := createUser(t, "hist@example.com")
	p := createProduct(t, "10", 5)

	cart, err := carts.GetOrCreateCart(ctx, user.ID)
	require.NoError(t, err)
	cart.Add(p.ID, 1, p.Price)
	require.NoError(t, carts.Save(ctx, cart))
	order := model.NewOrderFromCart(cart, model.Address{}, "")
	cleared := cart.Clone()
	cleared.Clear()
	require.NoError(t, orders.Place(ctx, order, cleared, false))

	now := time.Now().UTC()
	change := &model.OrderStatusChange{OrderID: order.ID, EventID: uuid.New(), To: model.OrderStatusPending, ChangedAt: now}
	require.NoError(t, orders.AddStatusChange(ctx, change))
	require.NoError(t, orders.AddStatusChange(ctx, &model.OrderStatusChange{
		OrderID: order.ID, EventID: change.EventID, To: model.OrderStatusPending, ChangedAt: now,
	}), "duplicate event ids are ignored")
	require.NoError(t, orders.AddStatusChange(ctx, &model.OrderStatusChange{
		OrderID: order.ID, EventID: uuid.New(), From: model.OrderStatusPending, To: model.OrderStatusProcessing,
		ChangedAt: now.Add(time.Second),
	}))

	history, err := orders.ListStatusHistory(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.OrderStatusProcessing, history[1].To)
}

func TestProductRepository_ListFilters(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	products := NewProductRepository(testPool)
	for _, p := range []*model.Product{
		{Name: "Red phone", Price: decimal.NewFromInt(100), Stock: 1, Category: "phones", Brand: "acme"},
		{Name: "Blue phone", Price: decimal.NewFromInt(300), Stock: 1, Category: "phones", Brand: "zen"},
		{Name: "Laptop", Price: decimal.NewFromInt(900), Stock: 1, Category: "laptops", Brand: "acme"},
	} {
		require.NoError(t, products.Create(ctx, p))
	}

	minPrice := decimal.NewFromInt(150)
	list, total, err := products.List(ctx, model.ProductFilter{
		Search: "PHONE", Category: "phones", MinPrice: &minPrice, Sort: "price", Order: "asc", Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "Blue phone", list[0].Name)

	list, total, err = products.List(ctx, model.ProductFilter{Brand: "acme", Sort: "name", Order: "asc", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 1)
	assert.Equal(t, "Laptop", list[0].Name)

	byID, err := products.GetByIDs(ctx, []uuid.UUID{list[0].ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, byID, 1)
}
