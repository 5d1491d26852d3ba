package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const DefaultCountry = "Nepal"

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	AltPhone   string `json:"altPhone"`
}

// WithDefaults fills the fields the storefront assumes when the client leaves them blank.
func (a Address) WithDefaults() Address {
	if a.Country == "" {
		a.Country = DefaultCountry
	}
	return a
}

type User struct {
	ID         uuid.UUID
	Name       string
	Email      string
	Phone      string
	Password   string
	ProfilePic string
	DOB        *time.Time
	Gender     string
	Address    Address
	Role       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// ValidGender reports whether g is empty or one of the accepted profile values.
func ValidGender(g string) bool {
	switch g {
	case "", "male", "female", "other":
		return true
	}
	return false
}

type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
	Brand       string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductFilter narrows catalog listings. Zero values mean "no constraint".
type ProductFilter struct {
	Search   string
	Category string
	Brand    string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
	Order    string
	Limit    int
	Offset   int
}

type Analytics struct {
	TotalUsers   int64
	TotalOrders  int64
	TotalRevenue decimal.Decimal
}
