package postgres

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bookstore/internal/domain/catalog"
)

const bookColumns = `id, title, author, description, price, stock, isbn, sku, square_item_id,
	tags, categories, cover_image, publisher, publication_date, page_count, format, language,
	is_used, condition, created_at, updated_at`

const (
	getBookSQL          = `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	getBookForUpdateSQL = getBookSQL + ` FOR UPDATE`
	getBooksByIDsSQL    = `SELECT ` + bookColumns + ` FROM books WHERE id = ANY($1)`
	lockBooksSQL        = `SELECT id FROM books WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	featuredBooksSQL    = `SELECT ` + bookColumns + ` FROM books ORDER BY created_at DESC, id DESC LIMIT $1`

	insertBookSQL = `INSERT INTO books (` + bookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	updateBookSQL = `UPDATE books SET
		title = $2, author = $3, description = $4, price = $5, stock = $6, isbn = $7, sku = $8,
		square_item_id = $9, tags = $10, categories = $11, cover_image = $12, publisher = $13,
		publication_date = $14, page_count = $15, format = $16, language = $17, is_used = $18,
		condition = $19, updated_at = $20
		WHERE id = $1
		RETURNING created_at`

	upsertBookByISBNSQL = `INSERT INTO books (` + bookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (isbn) WHERE isbn IS NOT NULL DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			description = EXCLUDED.description,
			publisher = EXCLUDED.publisher,
			publication_date = EXCLUDED.publication_date,
			page_count = EXCLUDED.page_count,
			cover_image = EXCLUDED.cover_image,
			language = EXCLUDED.language,
			updated_at = EXCLUDED.updated_at`

	deleteBookSQL = `DELETE FROM books WHERE id = $1`

	decrementStockSQL = `UPDATE books SET stock = stock - $1, updated_at = now()
		WHERE id = $2 AND $1 > 0 AND stock >= $1`
)

var (
	_ catalog.Repository = (*BookRepository)(nil)
	_ catalog.StockStore = (*BookRepository)(nil)
)

// BookRepository implements catalog.Repository backed by PostgreSQL. Inside
// a unit of work it also serves as the catalog.StockStore, locking every
// book it reads.
type BookRepository struct {
	q      querier
	getSQL string
	now    func() time.Time
}

// NewBookRepository returns a BookRepository that uses the given pool.
func NewBookRepository(pool *pgxpool.Pool) *BookRepository {
	return &BookRepository{q: pool, getSQL: getBookSQL, now: time.Now}
}

func newLockingBookRepository(tx pgx.Tx) *BookRepository {
	return &BookRepository{q: tx, getSQL: getBookForUpdateSQL, now: time.Now}
}

// List returns one page of books matching f, newest first.
func (r *BookRepository) List(ctx context.Context, f catalog.Filter) (*catalog.Page, error) {
	f = f.Normalize()
	where, args := bookFilter(f)

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM books`+where, args...).Scan(&total); err != nil {
		return nil, errors.Wrap(err, "count books")
	}

	n := len(args)
	query := `SELECT ` + bookColumns + ` FROM books` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.q.Query(ctx, query, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, errors.Wrap(err, "list books")
	}
	books, err := pgx.CollectRows(rows, scanBook)
	if err != nil {
		return nil, errors.Wrap(err, "list books")
	}

	return &catalog.Page{
		Books: books,
		Total: total,
		Page:  f.Page,
		Pages: (total + f.Limit - 1) / f.Limit,
	}, nil
}

// bookFilter renders f as a WHERE clause and its positional arguments.
func bookFilter(f catalog.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		p := "$" + strconv.Itoa(len(args))
		conds = append(conds, "(title ILIKE "+p+" OR author ILIKE "+p+" OR description ILIKE "+p+
			" OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE "+p+"))")
	}
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, "$"+strconv.Itoa(len(args))+" = ANY(categories)")
	}
	if f.IsUsed != nil {
		args = append(args, *f.IsUsed)
		conds = append(conds, "is_used = $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Featured returns the newest books.
func (r *BookRepository) Featured(ctx context.Context, limit int) ([]catalog.Book, error) {
	rows, err := r.q.Query(ctx, featuredBooksSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "featured books")
	}
	return pgx.CollectRows(rows, scanBook)
}

// GetByID returns a single book. Inside a unit of work the row stays locked
// until the transaction ends.
func (r *BookRepository) GetByID(ctx context.Context, id string) (*catalog.Book, error) {
	rows, err := r.q.Query(ctx, r.getSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get book %q", id)
	}

	b, err := pgx.CollectExactlyOneRow(rows, scanBook)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get book %q", id)
	}
	return &b, nil
}

// GetByIDs returns the books matching any of the given ids. Unknown ids are
// skipped.
func (r *BookRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Book, error) {
	rows, err := r.q.Query(ctx, getBooksByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get books by ids")
	}
	return pgx.CollectRows(rows, scanBook)
}

// Create inserts a new book, assigning an id and timestamps.
func (r *BookRepository) Create(ctx context.Context, b *catalog.Book) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := r.now()
	b.CreatedAt, b.UpdatedAt = now, now

	if _, err := r.q.Exec(ctx, insertBookSQL, bookArgs(b)...); err != nil {
		if isViolation(err, codeUniqueViolation, "") {
			return catalog.ErrDuplicate
		}
		return errors.Wrapf(err, "create book %q", b.Title)
	}
	return nil
}

// Update replaces every mutable field of an existing book.
func (r *BookRepository) Update(ctx context.Context, b *catalog.Book) error {
	b.UpdatedAt = r.now()
	args := bookArgs(b)
	// bookArgs ends with created_at, updated_at; the update takes only the latter.
	args = append(args[:19], b.UpdatedAt)

	err := r.q.QueryRow(ctx, updateBookSQL, args...).Scan(&b.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return catalog.ErrNotFound
	case isViolation(err, codeUniqueViolation, ""):
		return catalog.ErrDuplicate
	case err != nil:
		return errors.Wrapf(err, "update book %q", b.ID)
	}
	return nil
}

// Delete removes a book. Existing orders keep their lines.
func (r *BookRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, deleteBookSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete book %q", id)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// UpsertByISBN inserts b, or refreshes the bibliographic fields of the book
// already holding its ISBN. Price and stock of an existing book are kept.
func (r *BookRepository) UpsertByISBN(ctx context.Context, b *catalog.Book) error {
	if b.ISBN == "" {
		return errors.New("upsert by isbn: isbn is required")
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := r.now()
	b.CreatedAt, b.UpdatedAt = now, now

	if _, err := r.q.Exec(ctx, upsertBookByISBNSQL, bookArgs(b)...); err != nil {
		if isViolation(err, codeUniqueViolation, "") {
			return catalog.ErrDuplicate
		}
		return errors.Wrapf(err, "upsert book %q", b.ISBN)
	}
	return nil
}

// Lock takes FOR UPDATE locks on the given books in id order, so
// transactions locking overlapping sets cannot deadlock. Outside a
// transaction the locks are released immediately.
func (r *BookRepository) Lock(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := r.q.Query(ctx, lockBooksSQL, ids)
	if err != nil {
		return errors.Wrap(err, "lock books")
	}
	if _, err := pgx.CollectRows(rows, pgx.RowTo[string]); err != nil {
		return errors.Wrap(err, "lock books")
	}
	return nil
}

// DecrementStock subtracts amount from the book's stock only if enough units
// remain.
func (r *BookRepository) DecrementStock(ctx context.Context, id string, amount int) error {
	if amount < 1 {
		return catalog.ErrInvalidAmount
	}
	tag, err := r.q.Exec(ctx, decrementStockSQL, amount, id)
	if err != nil {
		if isViolation(err, codeCheckViolation, "books_stock_nonnegative") {
			return catalog.ErrInsufficientStock
		}
		return errors.Wrapf(err, "decrement stock for %q", id)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrInsufficientStock
	}
	return nil
}

func bookArgs(b *catalog.Book) []any {
	return []any{
		b.ID, b.Title, b.Author, b.Description, b.Price, b.Stock,
		nullIfEmpty(b.ISBN), b.SKU, nullIfEmpty(b.SquareItemID),
		nonNil(b.Tags), nonNil(b.Categories), b.CoverImage, b.Publisher,
		b.PublicationDate, b.PageCount, string(b.Format), b.Language,
		b.IsUsed, string(b.Condition), b.CreatedAt, b.UpdatedAt,
	}
}

func scanBook(row pgx.CollectableRow) (catalog.Book, error) {
	var (
		b                  catalog.Book
		isbn, squareItemID *string
		format, condition  string
	)
	err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.Description, &b.Price, &b.Stock,
		&isbn, &b.SKU, &squareItemID,
		&b.Tags, &b.Categories, &b.CoverImage, &b.Publisher,
		&b.PublicationDate, &b.PageCount, &format, &b.Language,
		&b.IsUsed, &condition, &b.CreatedAt, &b.UpdatedAt,
	)
	b.ISBN = derefString(isbn)
	b.SquareItemID = derefString(squareItemID)
	b.Format = catalog.Format(format)
	b.Condition = catalog.Condition(condition)
	return b, err
}
