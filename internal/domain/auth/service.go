package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/bookstore/internal/domain/postal"
	"github.com/xenking/bookstore/internal/domain/user"
)

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong
// password. Both cases return the same error.
var ErrInvalidCredentials = errors.New("invalid email or password")

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 6

// InvalidInputError describes a rejected registration field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return e.Field + ": " + e.Reason
}

// RegisterRequest holds the input for creating an account.
type RegisterRequest struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Address   postal.Address
	Phone     string
}

// Session is a freshly authenticated user and their bearer token.
type Session struct {
	Token string
	User  *user.User
}

// Service registers users, logs them in, and resolves bearer tokens into
// principals backed by an existing account.
type Service struct {
	users  user.Repository
	tokens *Tokens
	cost   int
	now    func() time.Time
}

// NewService creates an auth Service.
func NewService(users user.Repository, tokens *Tokens) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// Register creates a regular (non-admin) account and returns a session.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	u, err := s.NewUser(req, false)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return s.session(u)
}

// NewUser validates req and builds a user with a hashed password without
// storing it.
func (s *Service) NewUser(req RegisterRequest, admin bool) (*user.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if username == "" {
		return nil, &InvalidInputError{Field: "username", Reason: "is required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &InvalidInputError{Field: "email", Reason: "is not a valid address"}
	}
	if len(req.Password) < MinPasswordLength {
		return nil, &InvalidInputError{Field: "password", Reason: "must be at least 6 characters"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	u := &user.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		IsAdmin:      admin,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        strings.TrimSpace(req.Phone),
		CreatedAt:    s.now(),
	}
	if !req.Address.IsZero() {
		u.Address = req.Address.Normalize()
	}
	return u, nil
}

// Login checks the password for the account with the given email.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "get user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

// Authenticate verifies a bearer token and loads the account it names. The
// admin flag is taken from the stored account, not the token, so revoked
// privileges take effect immediately.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, *user.User, error) {
	p, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, nil, err
	}

	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Principal{}, nil, ErrInvalidToken
		}
		return Principal{}, nil, errors.Wrap(err, "get user")
	}

	return Principal{UserID: u.ID, IsAdmin: u.IsAdmin}, u, nil
}

// IssueToken signs a token for an existing user.
func (s *Service) IssueToken(u *user.User) (string, error) {
	return s.tokens.Issue(Principal{UserID: u.ID, IsAdmin: u.IsAdmin})
}

func (s *Service) session(u *user.User) (*Session, error) {
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: u}, nil
}
