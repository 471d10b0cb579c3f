package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors returned by catalog repositories.
var (
	// ErrNotFound is returned when a requested book does not exist.
	ErrNotFound = errors.New("book not found")
	// ErrDuplicate is returned when an ISBN or external catalog id is already
	// used by another book.
	ErrDuplicate = errors.New("book with this ISBN or catalog id already exists")
	// ErrInsufficientStock is returned by a conditional stock decrement that
	// matched no row.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidAmount is returned by a stock decrement of less than one unit.
	ErrInvalidAmount = errors.New("stock amount must be positive")
)

// Format is the physical or digital format of a book.
type Format string

// Known formats.
const (
	FormatHardcover Format = "Hardcover"
	FormatPaperback Format = "Paperback"
	FormatEbook     Format = "Ebook"
	FormatAudiobook Format = "Audiobook"
	FormatOther     Format = "Other"
)

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool {
	switch f {
	case FormatHardcover, FormatPaperback, FormatEbook, FormatAudiobook, FormatOther:
		return true
	}
	return false
}

// Condition grades a used book.
type Condition string

// Known conditions.
const (
	ConditionNew      Condition = "New"
	ConditionLikeNew  Condition = "Like New"
	ConditionVeryGood Condition = "Very Good"
	ConditionGood     Condition = "Good"
	ConditionFair     Condition = "Fair"
	ConditionPoor     Condition = "Poor"
)

// Valid reports whether c is one of the known conditions.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionVeryGood, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// Book is a purchasable catalog item.
type Book struct {
	ID              string
	Title           string
	Author          string
	Description     string
	Price           decimal.Decimal
	Stock           int
	ISBN            string
	SKU             string
	SquareItemID    string
	Tags            []string
	Categories      []string
	CoverImage      string
	Publisher       string
	PublicationDate *time.Time
	PageCount       int
	Format          Format
	Language        string
	IsUsed          bool
	Condition       Condition
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidationError describes a book field that violates a catalog invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// Validate checks the invariants a book must satisfy before it is stored.
func (b *Book) Validate() error {
	switch {
	case strings.TrimSpace(b.Title) == "":
		return &ValidationError{Field: "title", Reason: "is required"}
	case strings.TrimSpace(b.Author) == "":
		return &ValidationError{Field: "author", Reason: "is required"}
	case b.Price.IsNegative():
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	case b.Stock < 0:
		return &ValidationError{Field: "stock", Reason: "must not be negative"}
	case b.PageCount < 0:
		return &ValidationError{Field: "pageCount", Reason: "must not be negative"}
	case b.Format != "" && !b.Format.Valid():
		return &ValidationError{Field: "format", Reason: "unknown format " + string(b.Format)}
	case b.IsUsed && b.Condition == "":
		return &ValidationError{Field: "condition", Reason: "is required for used books"}
	case b.Condition != "" && !b.Condition.Valid():
		return &ValidationError{Field: "condition", Reason: "unknown condition " + string(b.Condition)}
	}
	return nil
}

// Filter narrows a catalog listing.
type Filter struct {
	// Search matches title, author, description and tags, case-insensitively.
	Search   string
	Category string
	IsUsed   *bool
	Page     int
	Limit    int
}

// Default and maximum page sizes for catalog listings.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Normalize clamps pagination to sane bounds.
func (f Filter) Normalize() Filter {
	f.Search = strings.TrimSpace(f.Search)
	f.Category = strings.TrimSpace(f.Category)
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

// Offset returns the number of rows to skip for the filter's page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is one page of a catalog listing.
type Page struct {
	Books []Book
	Total int
	Page  int
	Pages int
}

// Repository defines persistence operations for the book catalog.
type Repository interface {
	List(ctx context.Context, f Filter) (*Page, error)
	Featured(ctx context.Context, limit int) ([]Book, error)
	GetByID(ctx context.Context, id string) (*Book, error)
	GetByIDs(ctx context.Context, ids []string) ([]Book, error)
	Create(ctx context.Context, b *Book) error
	Update(ctx context.Context, b *Book) error
	Delete(ctx context.Context, id string) error
	UpsertByISBN(ctx context.Context, b *Book) error
}

// StockStore is the view of the catalog available inside a checkout
// transaction. GetByID returns the live row and holds it until the
// transaction ends.
type StockStore interface {
	// Lock takes the row locks of the given books in ascending id order.
	// Unknown ids are skipped.
	Lock(ctx context.Context, ids []string) error
	GetByID(ctx context.Context, id string) (*Book, error)
	// DecrementStock subtracts amount only when at least amount units are
	// available, returning ErrInsufficientStock otherwise. An amount below
	// one fails with ErrInvalidAmount.
	DecrementStock(ctx context.Context, id string, amount int) error
}
