package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

const dobLayout = "2006-01-02"

type AuthService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
	jwtExpiry time.Duration
}

func NewAuthService(userRepo repository.UserRepository, jwtSecret string, jwtExpiry time.Duration) *AuthService {
	return &AuthService{userRepo: userRepo, jwtSecret: []byte(jwtSecret), jwtExpiry: jwtExpiry}
}

// Register creates the user together with an empty cart.
func (s *AuthService) Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, storageError("check user", err)
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, invalidArgument("password cannot be used")
	}

	user := &model.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Phone:    strings.TrimSpace(req.Phone),
		Password: string(hashed),
		Role:     model.RoleUser,
	}
	if req.Address != nil {
		user.Address = *req.Address
	}
	user.Address = user.Address.WithDefaults()

	if err := s.userRepo.CreateWithCart(ctx, user, model.NewCart(uuid.Nil)); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, storageError("create user", err)
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, err
	}
	return &dto.AuthResponse{Message: "User registered", Token: token, User: ToUserResponse(user)}, nil
}

func (s *AuthService) Login(ctx context.Context, req dto.LoginRequest) (*dto.AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, storageError("get user", err)
	}
	if user == nil {
		return nil, ErrWrongCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrWrongCredentials
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, err
	}
	return &dto.AuthResponse{Token: token, User: ToUserResponse(user)}, nil
}

func (s *AuthService) Profile(ctx context.Context, userID uuid.UUID) (*dto.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, storageError("get user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	resp := ToUserResponse(user)
	return &resp, nil
}

// UpdateProfile applies the fields present in req. Email, role and password
// are not editable here.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, req dto.UpdateProfileRequest) (*dto.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, storageError("get user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, invalidArgument("name must not be empty")
		}
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		if strings.TrimSpace(*req.Phone) == "" {
			return nil, invalidArgument("phone must not be empty")
		}
		user.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.ProfilePic != nil {
		user.ProfilePic = *req.ProfilePic
	}
	if req.DOB != nil {
		if *req.DOB == "" {
			user.DOB = nil
		} else {
			dob, err := time.Parse(dobLayout, *req.DOB)
			if err != nil {
				return nil, invalidArgument("dob must be formatted as YYYY-MM-DD")
			}
			user.DOB = &dob
		}
	}
	if req.Gender != nil {
		if !model.ValidGender(*req.Gender) {
			return nil, invalidArgument("gender must be male, female or other")
		}
		user.Gender = *req.Gender
	}
	if req.Address != nil {
		user.Address = req.Address.WithDefaults()
	}

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, repository.ErrDuplicate):
			return nil, newKindError(ErrAlreadyExists, "phone already in use")
		}
		return nil, storageError("update user", err)
	}
	resp := ToUserResponse(user)
	return &resp, nil
}

func (s *AuthService) generateToken(user *model.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"exp":  now.Add(s.jwtExpiry).Unix(),
		"iat":  now.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", storageError("sign token", err)
	}
	return token, nil
}

func ToUserResponse(user *model.User) dto.UserResponse {
	resp := dto.UserResponse{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		Phone:      user.Phone,
		ProfilePic: user.ProfilePic,
		Gender:     user.Gender,
		Address:    user.Address,
		Role:       user.Role,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
	if user.DOB != nil {
		resp.DOB = user.DOB.Format(dobLayout)
	}
	return resp
}
