package models

import (
	"github.com/shopspring/decimal"
)

type User struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Email   string          `json:"email"`
	Balance decimal.Decimal `json:"balance"`
	IsAdmin bool            `json:"isAdmin"`
}

// StoredUser is the roster record. The password is kept in plain text.
type StoredUser struct {
	User
	Password string `json:"password"`
}

// Public strips the password.
func (u StoredUser) Public() User {
	return u.User
}
