package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/bookstore/internal/domain/catalog"
)

// BookFinder looks up the live catalog entry for a book.
type BookFinder interface {
	GetByID(ctx context.Context, id string) (*catalog.Book, error)
}

// Service manages user carts. Reads are served from the Cache when
// possible; every write invalidates the cached copy.
type Service struct {
	carts Repository
	books BookFinder
	cache Cache
	group singleflight.Group
	now   func() time.Time
}

// NewService creates a cart Service. A nil cache disables caching.
func NewService(carts Repository, books BookFinder, cache Cache) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		carts: carts,
		books: books,
		cache: cache,
		now:   time.Now,
	}
}

// Get returns the user's cart, or an empty cart when none exists.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.cache.Get(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		zctx.From(ctx).Warn("cart cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	v, err, _ := s.group.Do(userID, func() (any, error) {
		c, err := s.carts.Get(ctx, userID)
		switch {
		case errors.Is(err, ErrNotFound):
			return &Cart{UserID: userID, Lines: []Line{}}, nil
		case err != nil:
			return nil, errors.Wrap(err, "get cart")
		}
		if err := s.cache.Set(ctx, c); err != nil {
			zctx.From(ctx).Warn("cart cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Cart).Clone(), nil
}

// AddItem adds quantity units of a book to the cart. Adding a book that is
// already present increases its quantity and keeps the original snapshot
// price. The resulting quantity may not exceed MaxQuantity.
func (s *Service) AddItem(ctx context.Context, userID, bookID string, quantity int) (*Cart, error) {
	if quantity < 1 || quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}

	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return nil, errors.Wrapf(err, "get book %s", bookID)
	}

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if i := c.indexOf(bookID); i >= 0 {
		if c.Lines[i].Quantity > MaxQuantity-quantity {
			return nil, ErrInvalidQuantity
		}
		c.Lines[i].Quantity += quantity
	} else {
		c.Lines = append(c.Lines, Line{
			BookID:     book.ID,
			Quantity:   quantity,
			PriceAtAdd: book.Price,
		})
	}

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetQuantity replaces the quantity of a line. Zero removes the line.
func (s *Service) SetQuantity(ctx context.Context, userID, bookID string, quantity int) (*Cart, error) {
	if quantity < 0 || quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	i := c.indexOf(bookID)
	if i < 0 {
		return nil, ErrLineNotFound
	}

	if quantity == 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	} else {
		c.Lines[i].Quantity = quantity
	}

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveItem drops a book from the cart. Removing a missing book is a no-op.
func (s *Service) RemoveItem(ctx context.Context, userID, bookID string) (*Cart, error) {
	c, err := s.SetQuantity(ctx, userID, bookID, 0)
	if errors.Is(err, ErrLineNotFound) {
		return s.Get(ctx, userID)
	}
	return c, err
}

// Clear deletes the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.carts.Delete(ctx, userID); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	s.Invalidate(ctx, userID)
	return nil
}

// Invalidate drops the cached copy of the user's cart.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, userID); err != nil {
		zctx.From(ctx).Warn("cart cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// load reads the cart from the repository, bypassing the cache.
func (s *Service) load(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return &Cart{UserID: userID}, nil
	case err != nil:
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c *Cart) error {
	defer s.Invalidate(ctx, c.UserID)

	if len(c.Lines) == 0 {
		if err := s.carts.Delete(ctx, c.UserID); err != nil {
			return errors.Wrap(err, "delete cart")
		}
		return nil
	}

	c.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, c); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}
