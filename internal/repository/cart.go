package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/storefront-api/internal/model"
)

type CartRepository interface {
	GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	// GetByUserID returns the cart with its items, or nil when the user has none.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	// Save writes the cart's items and total if the stored version still
	// equals cart.Version, then bumps cart.Version. A lost race returns
	// ErrVersionConflict and writes nothing.
	Save(ctx context.Context, cart *model.Cart) error
}

type pgCartRepo struct{ pool *pgxpool.Pool }

func NewCartRepository(pool *pgxpool.Pool) CartRepository {
	return &pgCartRepo{pool: pool}
}

func (r *pgCartRepo) GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := r.GetByUserID(ctx, userID)
	if err != nil || cart != nil {
		return cart, err
	}

	// Two first requests may race here; the unique user_id lets one insert win
	// and the other falls through to the re-read.
	if err := insertCart(ctx, r.pool, model.NewCart(userID)); err != nil && !errors.Is(err, ErrDuplicate) {
		return nil, err
	}
	cart, err = r.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, fmt.Errorf("create cart: user %s: %w", userID, ErrNotFound)
	}
	return cart, nil
}

func (r *pgCartRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart := &model.Cart{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, total, version, created_at, updated_at FROM carts WHERE user_id = $1`, userID,
	).Scan(&cart.ID, &cart.UserID, &cart.Total, &cart.Version, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT product_id, quantity, unit_price FROM cart_items WHERE cart_id = $1 ORDER BY position`, cart.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, rows.Err()
}

func (r *pgCartRepo) Save(ctx context.Context, cart *model.Cart) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := saveCart(ctx, tx, cart); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cart: %w", err)
	}
	cart.Version++
	return nil
}

func insertCart(ctx context.Context, q querier, cart *model.Cart) error {
	err := q.QueryRow(ctx,
		`INSERT INTO carts (id, user_id, total, version, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING
		 RETURNING version, created_at, updated_at`,
		cart.ID, cart.UserID, cart.Total,
	).Scan(&cart.Version, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("create cart: %w", ErrDuplicate)
		}
		return fmt.Errorf("create cart: %w", err)
	}
	return nil
}

// saveCart performs the compare-and-swap on carts.version and rewrites the
// item rows. The caller owns the transaction and bumps cart.Version after commit.
func saveCart(ctx context.Context, tx pgx.Tx, cart *model.Cart) error {
	cart.Recalculate()

	err := tx.QueryRow(ctx,
		`UPDATE carts SET total = $3, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $2
		 RETURNING updated_at`,
		cart.ID, cart.Version, cart.Total,
	).Scan(&cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("save cart %s: %w", cart.ID, ErrVersionConflict)
		}
		return fmt.Errorf("save cart: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(cart.Items))
	for i, item := range cart.Items {
		rows = append(rows, []any{cart.ID, item.ProductID, i, item.Quantity, item.UnitPrice})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"cart_items"},
		[]string{"cart_id", "product_id", "position", "quantity", "unit_price"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert cart items: %w", err)
	}
	return nil
}
