package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore/db"
	"github.com/xenking/bookstore/internal/domain/auth"
	"github.com/xenking/bookstore/internal/domain/catalog"
	"github.com/xenking/bookstore/internal/domain/user"
	"github.com/xenking/bookstore/internal/storage/postgres"
)

type bookJSON struct {
	Title           string          `json:"title"`
	Author          string          `json:"author"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Stock           int             `json:"stock"`
	ISBN            string          `json:"isbn"`
	Categories      []string        `json:"categories"`
	Tags            []string        `json:"tags"`
	Publisher       string          `json:"publisher"`
	PublicationDate string          `json:"publicationDate"`
	PageCount       int             `json:"pageCount"`
	Format          string          `json:"format"`
	Language        string          `json:"language"`
	IsUsed          bool            `json:"isUsed"`
	Condition       string          `json:"condition"`
}

type account struct {
	username string
	email    string
	password string
	admin    bool
}

func main() {
	var (
		databaseURL string
		booksFile   string
		secret      string
		admin       = account{username: "admin", admin: true}
		customer    = account{username: "customer"}
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&booksFile, "books-file", "", "path to a books JSON file (defaults to the embedded catalog)")
	flag.StringVar(&secret, "auth-secret", "", "token signing secret (or BOOKSTORE_AUTH_SECRET env)")
	flag.StringVar(&admin.email, "admin-email", "admin@bookstore.local", "administrator email")
	flag.StringVar(&admin.password, "admin-password", "", "administrator password (or BOOKSTORE_SEED_ADMIN_PASSWORD env)")
	flag.StringVar(&customer.email, "customer-email", "customer@bookstore.local", "customer email")
	flag.StringVar(&customer.password, "customer-password", "", "customer password (or BOOKSTORE_SEED_CUSTOMER_PASSWORD env)")
	flag.Parse()

	envDefault(&databaseURL, "BOOKSTORE_DATABASE_URL", "DATABASE_URL")
	envDefault(&secret, "BOOKSTORE_AUTH_SECRET", "JWT_SECRET")
	envDefault(&admin.password, "BOOKSTORE_SEED_ADMIN_PASSWORD")
	envDefault(&customer.password, "BOOKSTORE_SEED_CUSTOMER_PASSWORD")

	for _, req := range []struct{ value, msg string }{
		{databaseURL, "database URL is required: set --database-url or DATABASE_URL"},
		{secret, "auth secret is required: set --auth-secret or BOOKSTORE_AUTH_SECRET"},
		{admin.password, "admin password is required: set --admin-password or BOOKSTORE_SEED_ADMIN_PASSWORD"},
		{customer.password, "customer password is required: set --customer-password or BOOKSTORE_SEED_CUSTOMER_PASSWORD"},
	} {
		if req.value == "" {
			slog.Error(req.msg)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, booksFile, secret, []account{admin, customer}); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func envDefault(dst *string, keys ...string) {
	for _, k := range keys {
		if *dst != "" {
			return
		}
		*dst = os.Getenv(k)
	}
}

func run(ctx context.Context, databaseURL, booksFile, secret string, accounts []account) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedBooks(ctx, pool, booksFile); err != nil {
		return errors.Wrap(err, "seed books")
	}

	users := postgres.NewUserRepository(pool)
	authSvc := auth.NewService(users, auth.NewTokens([]byte(secret), 24*time.Hour))
	for _, a := range accounts {
		if err := seedAccount(ctx, users, authSvc, a); err != nil {
			return errors.Wrapf(err, "seed %s", a.username)
		}
	}

	return nil
}

func seedBooks(ctx context.Context, pool *pgxpool.Pool, booksFile string) error {
	data := db.SeedBooks
	if booksFile != "" {
		slog.Info("reading books file", slog.String("path", booksFile))

		var err error
		if data, err = os.ReadFile(booksFile); err != nil {
			return errors.Wrap(err, "read books file")
		}
	}

	var books []bookJSON
	if err := json.Unmarshal(data, &books); err != nil {
		return errors.Wrap(err, "parse books JSON")
	}

	slog.Info("upserting books", slog.Int("count", len(books)))

	repo := postgres.NewBookRepository(pool)
	for _, in := range books {
		b, err := in.book()
		if err != nil {
			return errors.Wrapf(err, "book %s", in.ISBN)
		}
		if err := repo.UpsertByISBN(ctx, b); err != nil {
			return errors.Wrapf(err, "upsert book %s", in.ISBN)
		}

		slog.Info("upserted book", slog.String("isbn", b.ISBN), slog.String("title", b.Title))
	}

	return nil
}

func (in bookJSON) book() (*catalog.Book, error) {
	b := &catalog.Book{
		Title:       in.Title,
		Author:      in.Author,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		ISBN:        in.ISBN,
		Categories:  in.Categories,
		Tags:        in.Tags,
		Publisher:   in.Publisher,
		PageCount:   in.PageCount,
		Format:      catalog.Format(in.Format),
		Language:    in.Language,
		IsUsed:      in.IsUsed,
		Condition:   catalog.Condition(in.Condition),
	}
	if in.PublicationDate != "" {
		t, err := time.Parse("2006-01-02", in.PublicationDate)
		if err != nil {
			return nil, errors.Wrap(err, "parse publication date")
		}
		b.PublicationDate = &t
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// seedAccount creates the account unless its email is taken, then prints a
// bearer token for it.
func seedAccount(ctx context.Context, users *postgres.UserRepository, authSvc *auth.Service, a account) error {
	u, err := authSvc.NewUser(auth.RegisterRequest{
		Username: a.username,
		Email:    a.email,
		Password: a.password,
	}, a.admin)
	if err != nil {
		return err
	}

	switch err := users.Create(ctx, u); {
	case errors.Is(err, user.ErrDuplicate):
		if u, err = users.GetByEmail(ctx, u.Email); err != nil {
			return errors.Wrap(err, "load existing account")
		}
		slog.Info("account already exists", slog.String("email", u.Email), slog.Bool("admin", u.IsAdmin))
	case err != nil:
		return errors.Wrap(err, "create account")
	default:
		slog.Info("created account", slog.String("email", u.Email), slog.Bool("admin", u.IsAdmin))
	}

	token, err := authSvc.IssueToken(u)
	if err != nil {
		return errors.Wrap(err, "issue token")
	}
	fmt.Printf("%s\t%s\n", u.Email, token)
	return nil
}
