package service

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

type AnalyticsService struct {
	userRepo  repository.UserRepository
	orderRepo repository.OrderRepository
}

func NewAnalyticsService(userRepo repository.UserRepository, orderRepo repository.OrderRepository) *AnalyticsService {
	return &AnalyticsService{userRepo: userRepo, orderRepo: orderRepo}
}

// Summary counts users and orders and sums revenue over every order,
// cancelled ones included.
func (s *AnalyticsService) Summary(ctx context.Context) (*model.Analytics, error) {
	var (
		users, orders int64
		revenue       decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.userRepo.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		orders, err = s.orderRepo.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		revenue, err = s.orderRepo.TotalRevenue(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storageError("analytics", err)
	}
	return &model.Analytics{TotalUsers: users, TotalOrders: orders, TotalRevenue: revenue}, nil
}
