package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds. Every error a service returns wraps exactly one of these, and
// handlers map them to HTTP statuses with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrConflict           = errors.New("conflict")
	ErrStorage            = errors.New("storage failure")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
)

// kindError gives a kind a user-facing message while keeping it matchable.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newKindError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

var (
	ErrProductNotFound   = newKindError(ErrNotFound, "product not found")
	ErrCartNotFound      = newKindError(ErrNotFound, "cart not found")
	ErrCartItemNotFound  = newKindError(ErrNotFound, "item not found in cart")
	ErrOrderNotFound     = newKindError(ErrNotFound, "order not found")
	ErrUserNotFound      = newKindError(ErrNotFound, "user not found")
	ErrInvalidQuantity   = newKindError(ErrInvalidArgument, "quantity must be at least 1")
	ErrEmptyCart         = newKindError(ErrInvalidArgument, "cart is empty")
	ErrInvalidStatus     = newKindError(ErrInvalidArgument, "invalid order status")
	ErrInvalidTransition = newKindError(ErrInvalidArgument, "invalid status transition")
	ErrCartChanged       = newKindError(ErrConflict, "cart changed, review it before checkout")
	ErrCartBusy          = newKindError(ErrConflict, "cart was modified concurrently, try again")
	ErrOrderChanged      = newKindError(ErrConflict, "order was modified concurrently, try again")
	ErrUserAlreadyExists = newKindError(ErrAlreadyExists, "user already exists")
	ErrWrongCredentials  = newKindError(ErrInvalidCredentials, "invalid credentials")
	ErrAdminOnly         = newKindError(ErrForbidden, "admin only")
)

// StockError reports a line that asks for more units than the product has.
type StockError struct {
	ProductID uuid.UUID
	Available int
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("only %d items available in stock", e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

func invalidArgument(format string, args ...any) error {
	return newKindError(ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// storageError tags a repository failure. Its message stays internal; the
// handler layer logs it and answers with a generic 500.
func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
