package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/flicky/storefront-api/internal/model"
)

type OrderRepository interface {
	// Place inserts the order and its items and saves cart (normally emptied
	// by the caller) under the cart's version check, all in one transaction.
	// With reserveStock each line's quantity is also taken from product stock.
	Place(ctx context.Context, order *model.Order, cart *model.Cart, reserveStock bool) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	// List returns every order, newest first, with the buyer's name and email.
	List(ctx context.Context) ([]model.Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	// UpdateStatus moves the order from one status to another only if it is
	// still in from. Otherwise it returns ErrVersionConflict, or ErrNotFound
	// when the order does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) (*model.Order, error)
	Count(ctx context.Context) (int64, error)
	TotalRevenue(ctx context.Context) (decimal.Decimal, error)
	// AddStatusChange records a history row. A repeated event id is ignored.
	AddStatusChange(ctx context.Context, change *model.OrderStatusChange) error
	ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]model.OrderStatusChange, error)
}

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

const orderColumns = `o.id, o.user_id, o.status, o.total_amount, o.shipping_address, o.payment_method, o.created_at, o.updated_at`

func scanOrder(row pgx.Row, extra ...any) (*model.Order, error) {
	o := &model.Order{}
	dest := []any{
		&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.ShippingAddress,
		&o.PaymentMethod, &o.CreatedAt, &o.UpdatedAt,
	}
	return o, row.Scan(append(dest, extra...)...)
}

func (r *pgOrderRepo) Place(ctx context.Context, order *model.Order, cart *model.Cart, reserveStock bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := saveCart(ctx, tx, cart); err != nil {
		return err
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, status, total_amount, shipping_address, payment_method, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		order.ID, order.UserID, order.Status, order.TotalAmount, order.ShippingAddress, order.PaymentMethod,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	rows := make([][]any, 0, len(order.Items))
	for _, item := range order.Items {
		rows = append(rows, []any{item.ID, order.ID, item.ProductID, item.Quantity, item.Price})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"id", "order_id", "product_id", "quantity", "price"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}

	if reserveStock {
		for _, item := range order.Items {
			if err := decrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	cart.Version++
	return nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	orders := []model.Order{*order}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *pgOrderRepo) List(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`, u.name, u.email
		 FROM orders o JOIN users u ON u.id = o.user_id
		 ORDER BY o.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var name, email string
		o, err := scanOrder(rows, &name, &email)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.UserName, o.UserEmail = name, email
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, r.attachItems(ctx, orders)
}

func (r *pgOrderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders o WHERE o.user_id = $1 ORDER BY o.created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders by user: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, r.attachItems(ctx, orders)
}

// attachItems loads the items of all orders with one query.
func (r *pgOrderRepo) attachItems(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, product_id, quantity, price FROM order_items WHERE order_id = ANY($1) ORDER BY order_id`, ids,
	)
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}

func (r *pgOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) (*model.Order, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("update order status: %w", err)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("order %s left %s: %w", id, from, ErrVersionConflict)
	}
	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}

func (r *pgOrderRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

func (r *pgOrderRepo) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount), 0) FROM orders`).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum revenue: %w", err)
	}
	return total, nil
}

func (r *pgOrderRepo) AddStatusChange(ctx context.Context, change *model.OrderStatusChange) error {
	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO order_status_history (id, order_id, event_id, from_status, to_status, changed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (event_id) DO NOTHING`,
		change.ID, change.OrderID, change.EventID, change.From, change.To, change.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("add status change: %w", err)
	}
	return nil
}

func (r *pgOrderRepo) ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]model.OrderStatusChange, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, event_id, from_status, to_status, changed_at
		 FROM order_status_history WHERE order_id = $1 ORDER BY changed_at, id`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var history []model.OrderStatusChange
	for rows.Next() {
		var h model.OrderStatusChange
		if err := rows.Scan(&h.ID, &h.OrderID, &h.EventID, &h.From, &h.To, &h.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
