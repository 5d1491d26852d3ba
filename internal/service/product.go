package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

const productCacheTTL = 60 * time.Second

type ProductService struct {
	productRepo repository.ProductRepository
	redisClient *redis.Client
	log         *zap.Logger
}

func NewProductService(productRepo repository.ProductRepository, redisClient *redis.Client, log *zap.Logger) *ProductService {
	return &ProductService{productRepo: productRepo, redisClient: redisClient, log: log}
}

func productCacheKey(id uuid.UUID) string { return "product:" + id.String() }

func (s *ProductService) Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	product := &model.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
		Brand:       req.Brand,
		ImageURL:    req.ImageURL,
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, storageError("create product", err)
	}
	resp := toProductResponse(product)
	return &resp, nil
}

// GetByID reads through the Redis cache. Cache failures fall back to Postgres.
func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	cacheKey := productCacheKey(id)

	if s.redisClient != nil {
		cached, err := s.redisClient.Get(ctx, cacheKey).Bytes()
		switch {
		case err == nil:
			var resp dto.ProductResponse
			if json.Unmarshal(cached, &resp) == nil {
				return &resp, nil
			}
		case !errors.Is(err, redis.Nil):
			s.log.Warn("product cache read failed", zap.Error(err), zap.String("key", cacheKey))
		}
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("get product", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	resp := toProductResponse(product)

	if s.redisClient != nil {
		if data, err := json.Marshal(resp); err == nil {
			if err := s.redisClient.Set(ctx, cacheKey, data, productCacheTTL).Err(); err != nil {
				s.log.Warn("product cache write failed", zap.Error(err), zap.String("key", cacheKey))
			}
		}
	}

	return &resp, nil
}

func (s *ProductService) List(ctx context.Context, req dto.ListProductsRequest) (*dto.ProductListResponse, error) {
	filter := model.ProductFilter{
		Search:   strings.TrimSpace(req.Search),
		Category: req.Category,
		Brand:    req.Brand,
		Sort:     req.Sort,
		Order:    req.Order,
		Limit:    req.Limit,
		Offset:   (req.Page - 1) * req.Limit,
	}
	var err error
	if filter.MinPrice, err = parsePrice("minPrice", req.MinPrice); err != nil {
		return nil, err
	}
	if filter.MaxPrice, err = parsePrice("maxPrice", req.MaxPrice); err != nil {
		return nil, err
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return nil, invalidArgument("minPrice must not exceed maxPrice")
	}

	products, total, err := s.productRepo.List(ctx, filter)
	if err != nil {
		return nil, storageError("list products", err)
	}

	items := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, toProductResponse(&products[i]))
	}

	return &dto.ProductListResponse{Products: items, Total: total, Page: req.Page, Limit: req.Limit}, nil
}

func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("get product", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}
	if req.Category != nil {
		product.Category = *req.Category
	}
	if req.Brand != nil {
		product.Brand = *req.Brand
	}
	if req.ImageURL != nil {
		product.ImageURL = *req.ImageURL
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, storageError("update product", err)
	}

	s.invalidateCache(ctx, id)
	resp := toProductResponse(product)
	return &resp, nil
}

// Delete removes the product from the catalog. Carts keep their lines; the
// next checkout with stock validation rejects them.
func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProductNotFound
		}
		return storageError("delete product", err)
	}
	s.invalidateCache(ctx, id)
	return nil
}

func (s *ProductService) invalidateCache(ctx context.Context, id uuid.UUID) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.Del(ctx, productCacheKey(id)).Err(); err != nil {
		s.log.Warn("product cache invalidation failed", zap.Error(err), zap.Stringer("productID", id))
	}
}

func validateProduct(p *model.Product) error {
	switch {
	case p.Name == "":
		return invalidArgument("name is required")
	case p.Price.IsNegative():
		return invalidArgument("price must not be negative")
	case p.Stock < 0:
		return invalidArgument("stock must not be negative")
	}
	return nil
}

func parsePrice(field, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, invalidArgument("%s must be a number", field)
	}
	return &d, nil
}

func toProductResponse(p *model.Product) dto.ProductResponse {
	return dto.ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Category:    p.Category,
		Brand:       p.Brand,
		ImageURL:    p.ImageURL,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
