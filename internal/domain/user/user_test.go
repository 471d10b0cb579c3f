package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo map[string]User

func (f fakeRepo) Create(_ context.Context, u *User) error { f[u.ID] = *u; return nil }

func (f fakeRepo) GetByID(_ context.Context, id string) (*User, error) {
	u, ok := f[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (f fakeRepo) GetByEmail(context.Context, string) (*User, error) { return nil, ErrNotFound }

func (f fakeRepo) List(context.Context) ([]User, error) {
	out := make([]User, 0, len(f))
	for _, u := range f {
		out = append(out, u)
	}
	return out, nil
}

func (f fakeRepo) Delete(_ context.Context, id string) error { delete(f, id); return nil }

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	repo := fakeRepo{
		"admin":    {ID: "admin", IsAdmin: true},
		"customer": {ID: "customer"},
	}
	s := NewService(repo)

	require.ErrorIs(t, s.Delete(ctx, "admin"), ErrProtected)
	require.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)
	require.NoError(t, s.Delete(ctx, "customer"))

	users, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0].ID)

	_, err = s.Get(ctx, "customer")
	require.ErrorIs(t, err, ErrNotFound)
}
