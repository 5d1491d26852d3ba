package service

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

// errUnchanged lets a mutation skip the write when the cart is already in the
// requested state.
var errUnchanged = errors.New("cart unchanged")

type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	maxRetries  int
	log         *zap.Logger
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, maxRetries int, log *zap.Logger) *CartService {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &CartService{cartRepo: cartRepo, productRepo: productRepo, maxRetries: maxRetries, log: log}
}

func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, storageError("get cart", err)
	}
	return cart, nil
}

// AddItem puts quantity units of the product in the cart, accumulating onto an
// existing line. The whole line must fit in the product's current stock.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*model.Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	return s.mutate(ctx, userID, true, "add cart item", func(cart *model.Cart) error {
		product, err := s.product(ctx, productID)
		if err != nil {
			return err
		}
		held := cart.QuantityOf(productID)
		if quantity > product.Stock-held {
			requested := math.MaxInt
			if quantity <= math.MaxInt-held {
				requested = held + quantity
			}
			return &StockError{ProductID: productID, Available: product.Stock, Requested: requested}
		}
		cart.Add(productID, quantity, product.Price)
		return nil
	})
}

// UpdateItem replaces the quantity of a line already in the cart.
func (s *CartService) UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*model.Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	return s.mutate(ctx, userID, false, "update cart item", func(cart *model.Cart) error {
		product, err := s.product(ctx, productID)
		if err != nil {
			return err
		}
		if cart.Item(productID) == nil {
			return ErrCartItemNotFound
		}
		if product.Stock < quantity {
			return &StockError{ProductID: productID, Available: product.Stock, Requested: quantity}
		}
		cart.SetQuantity(productID, quantity)
		return nil
	})
}

// LineProducts loads the current catalog record of every product in the cart.
// Products deleted since they were added are absent from the map.
func (s *CartService) LineProducts(ctx context.Context, cart *model.Cart) (map[uuid.UUID]*model.Product, error) {
	if cart.IsEmpty() {
		return map[uuid.UUID]*model.Product{}, nil
	}
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, storageError("get cart products", err)
	}
	return products, nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*model.Cart, error) {
	return s.mutate(ctx, userID, false, "remove cart item", func(cart *model.Cart) error {
		if !cart.Remove(productID) {
			return ErrCartItemNotFound
		}
		return nil
	})
}

// Clear empties the cart. Clearing an empty cart succeeds without a write.
func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	return s.mutate(ctx, userID, false, "clear cart", func(cart *model.Cart) error {
		if cart.IsEmpty() && cart.Total.IsZero() {
			return errUnchanged
		}
		cart.Clear()
		return nil
	})
}

// mutate runs read, apply, conditional write, and starts over from a fresh
// read when another request committed in between. fn sees a cart nobody else
// holds, so a rejected mutation leaves nothing behind.
func (s *CartService) mutate(ctx context.Context, userID uuid.UUID, create bool, op string, fn func(*model.Cart) error) (*model.Cart, error) {
	for attempt := 1; ; attempt++ {
		cart, err := s.load(ctx, userID, create)
		if err != nil {
			return nil, err
		}

		if err := fn(cart); err != nil {
			if errors.Is(err, errUnchanged) {
				return cart, nil
			}
			return nil, err
		}

		err = s.cartRepo.Save(ctx, cart)
		switch {
		case err == nil:
			return cart, nil
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrCartNotFound
		case !errors.Is(err, repository.ErrVersionConflict):
			return nil, storageError(op, err)
		}

		if attempt >= s.maxRetries {
			s.log.Warn("cart write conflict, giving up",
				zap.String("op", op), zap.Stringer("userID", userID), zap.Int("attempts", attempt))
			return nil, ErrCartBusy
		}
		s.log.Debug("cart write conflict, retrying",
			zap.String("op", op), zap.Stringer("userID", userID), zap.Int("attempt", attempt))
	}
}

func (s *CartService) load(ctx context.Context, userID uuid.UUID, create bool) (*model.Cart, error) {
	if create {
		return s.GetCart(ctx, userID)
	}
	cart, err := s.cartRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, storageError("get cart", err)
	}
	if cart == nil {
		return nil, ErrCartNotFound
	}
	return cart, nil
}

func (s *CartService) product(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("get product", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	return product, nil
}
