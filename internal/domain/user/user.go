package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/bookstore/internal/domain/postal"
)

// Sentinel errors returned by user repositories and services.
var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("user with this email or username already exists")
	// ErrProtected is returned when an administrator account is targeted by
	// an operation reserved for regular users.
	ErrProtected = errors.New("administrator accounts cannot be deleted")
)

// User is a registered customer or administrator.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsAdmin      bool
	FirstName    string
	LastName     string
	Address      postal.Address
	Phone        string
	CreatedAt    time.Time
}

// Repository defines persistence operations for users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Delete(ctx context.Context, id string) error
}

// Service holds the administrative operations on users.
type Service struct {
	users Repository
}

// NewService creates a user Service.
func NewService(users Repository) *Service {
	return &Service{users: users}
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// List returns every registered user.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.users.List(ctx)
}

// Delete removes a regular user. Administrators cannot be deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.IsAdmin {
		return ErrProtected
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "delete user %s", id)
	}
	return nil
}
