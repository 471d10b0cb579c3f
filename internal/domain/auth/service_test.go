package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/bookstore/internal/domain/postal"
	"github.com/xenking/bookstore/internal/domain/user"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]user.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]user.User)}
}

func (f *fakeUsers) Create(_ context.Context, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return user.ErrDuplicate
		}
	}
	f.users[u.ID] = *u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUsers) List(context.Context) ([]user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]user.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	return nil
}

func newTestService(users user.Repository) *Service {
	s := NewService(users, NewTokens([]byte("test-secret"), time.Hour))
	s.cost = bcrypt.MinCost
	return s
}

func TestService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	s := newTestService(users)

	sess, err := s.Register(ctx, RegisterRequest{
		Username: " reader ",
		Email:    " Reader@Example.com ",
		Password: "hunter22",
		Address:  postal.Address{Street: "1 Main St", City: "Springfield", State: "IL", Zip: "62701"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	assert.Equal(t, "reader", sess.User.Username)
	assert.Equal(t, "reader@example.com", sess.User.Email)
	assert.False(t, sess.User.IsAdmin)
	assert.NotEqual(t, "hunter22", sess.User.PasswordHash)
	assert.Equal(t, postal.DefaultCountry, sess.User.Address.Country)

	login, err := s.Login(ctx, "READER@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, login.User.ID)

	_, err = s.Login(ctx, "reader@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(ctx, "nobody@example.com", "hunter22")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Register(ctx, RegisterRequest{Username: "other", Email: "reader@example.com", Password: "hunter22"})
	require.ErrorIs(t, err, user.ErrDuplicate)
}

func TestService_RegisterValidation(t *testing.T) {
	s := newTestService(newFakeUsers())
	for _, tt := range []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{name: "username", req: RegisterRequest{Email: "a@b.co", Password: "secret1"}, field: "username"},
		{name: "email", req: RegisterRequest{Username: "a", Email: "not-an-email", Password: "secret1"}, field: "email"},
		{name: "password", req: RegisterRequest{Username: "a", Email: "a@b.co", Password: "12345"}, field: "password"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(context.Background(), tt.req)
			var invalid *InvalidInputError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	s := newTestService(users)

	admin, err := s.NewUser(RegisterRequest{Username: "admin", Email: "admin@example.com", Password: "secret1"}, true)
	require.NoError(t, err)
	require.NoError(t, users.Create(ctx, admin))

	token, err := s.IssueToken(admin)
	require.NoError(t, err)

	p, u, err := s.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)
	assert.Equal(t, admin.ID, u.ID)

	// Privileges come from the stored account, not the token.
	demoted := users.users[admin.ID]
	demoted.IsAdmin = false
	users.users[admin.ID] = demoted
	p, _, err = s.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.False(t, p.IsAdmin)

	require.NoError(t, users.Delete(ctx, admin.ID))
	_, _, err = s.Authenticate(ctx, token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = s.Authenticate(ctx, "")
	require.ErrorIs(t, err, ErrMissingToken)
}
