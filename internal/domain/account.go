package domain

import (
	"strings"
	"time"
)

// Account is a human user allowed to query history.
type Account struct {
	ID           int64
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Identity is what a verified session token says about its bearer.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}

// NormalizeEmail is the canonical form used for uniqueness and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
