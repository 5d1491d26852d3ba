package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

// UserService holds the admin-side user management operations.
type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) List(ctx context.Context) ([]dto.UserResponse, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, storageError("list users", err)
	}
	out := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, ToUserResponse(&users[i]))
	}
	return out, nil
}

// Delete removes the user. Their cart and orders are removed with them.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.userRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return storageError("delete user", err)
	}
	return nil
}

func (s *UserService) MakeAdmin(ctx context.Context, id uuid.UUID) (*dto.UserResponse, error) {
	if err := s.userRepo.UpdateRole(ctx, id, model.RoleAdmin); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storageError("update user role", err)
	}
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("get user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	resp := ToUserResponse(user)
	return &resp, nil
}
