package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bookstore/internal/domain/user"
)

const userColumns = `id, username, email, password_hash, is_admin, first_name, last_name,
	address, phone, created_at`

const (
	insertUserSQL = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getUserSQL        = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	getUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	listUsersSQL      = `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id`
	deleteUserSQL     = `DELETE FROM users WHERE id = $1`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	q querier
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{q: pool}
}

// Create inserts a new user. A taken username or email yields
// user.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	address, err := json.Marshal(u.Address)
	if err != nil {
		return errors.Wrap(err, "encode address")
	}
	_, err = r.q.Exec(ctx, insertUserSQL,
		u.ID, u.Username, u.Email, u.PasswordHash, u.IsAdmin,
		u.FirstName, u.LastName, address, u.Phone, u.CreatedAt,
	)
	if err != nil {
		if isViolation(err, codeUniqueViolation, "") {
			return user.ErrDuplicate
		}
		return errors.Wrapf(err, "create user %q", u.Username)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.getOne(ctx, getUserSQL, id)
}

// GetByEmail matches the address case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getOne(ctx, getUserByEmailSQL, email)
}

func (r *UserRepository) getOne(ctx context.Context, query, arg string) (*user.User, error) {
	rows, err := r.q.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "get user %q", arg)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get user %q", arg)
	}
	return &u, nil
}

// List returns every user in registration order.
func (r *UserRepository) List(ctx context.Context) ([]user.User, error) {
	rows, err := r.q.Query(ctx, listUsersSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return pgx.CollectRows(rows, scanUser)
}

// Delete removes a user together with their cart.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, deleteUserSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete user %q", id)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u       user.User
		address []byte
	)
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin,
		&u.FirstName, &u.LastName, &address, &u.Phone, &u.CreatedAt,
	); err != nil {
		return u, err
	}
	if err := json.Unmarshal(address, &u.Address); err != nil {
		return u, errors.Wrapf(err, "decode address of user %q", u.ID)
	}
	return u, nil
}
