package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Roles a user may register with. Self-service registrations get USER and
// are activated immediately; elevated roles stay PENDING until approved
// out of band.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

const (
	StatusActive  = "ACTIVE"
	StatusPending = "PENDING"
)

// ErrEmailTaken is returned when registration collides on the email
// uniqueness constraint.
var ErrEmailTaken = errors.New("email already registered")

// User is a registered account. PasswordHash is a bcrypt digest and never
// leaves the store layer in API responses.
type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FullName joins first and last name for display.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Store persists user accounts.
type Store interface {
	Create(ctx context.Context, user User) (User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Close() error
}

// HashPassword derives a bcrypt digest at the given cost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// StatusForRole maps a registration role to its initial account status.
func StatusForRole(role string) string {
	if role == RoleUser {
		return StatusActive
	}
	return StatusPending
}

// NormalizeEmail lowercases and trims an email for the uniqueness check.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
