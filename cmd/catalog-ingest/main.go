package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore/internal/ingest"
	"github.com/xenking/bookstore/internal/storage/postgres"
)

func main() {
	var (
		pattern     string
		databaseURL string
		price       string
		stock       int
		writers     int
		expected    uint
	)

	flag.StringVar(&pattern, "files", "data/ol_dump_editions*.txt.gz", "glob of gzip-compressed Open Library editions dumps")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&price, "price", "9.99", "price assigned to new books")
	flag.IntVar(&stock, "stock", 1, "stock assigned to new books")
	flag.IntVar(&writers, "writers", 4, "concurrent database writers")
	flag.UintVar(&expected, "expected-isbns", 50_000_000, "expected distinct ISBNs, sizes the dedupe filter")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	defaultPrice, err := decimal.NewFromString(price)
	if err != nil || defaultPrice.IsNegative() {
		slog.Error("price must be a non-negative decimal", slog.String("price", price))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := ingest.Config{
		Price:         defaultPrice,
		Stock:         stock,
		Writers:       writers,
		ExpectedISBNs: expected,
	}
	if err := run(ctx, pattern, databaseURL, cfg); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string, cfg ingest.Config) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "match files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", pattern)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("ingesting dumps", slog.Int("files", len(files)), slog.Int("writers", cfg.Writers))

	stats, err := ingest.New(postgres.NewBookRepository(pool), cfg).Run(ctx, files)
	slog.Info("ingest stats",
		slog.Int64("lines", stats.Lines),
		slog.Int64("skipped", stats.Skipped),
		slog.Int64("duplicates", stats.Duplicates),
		slog.Int64("written", stats.Written),
	)
	if err != nil {
		return errors.Wrap(err, "ingest")
	}
	return nil
}
