// Package ingest loads Open Library editions dumps into the catalog.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bookstore/internal/domain/catalog"
	"github.com/xenking/bookstore/internal/openlibrary"
)

const (
	maxLineSize   = 16 << 20
	progressEvery = 1_000_000
	coverURL      = "https://covers.openlibrary.org/b/id/%d-L.jpg"
	unknownAuthor = "Unknown"
)

// Store upserts books keyed by ISBN.
type Store interface {
	UpsertByISBN(ctx context.Context, b *catalog.Book) error
}

// Config controls an ingest run.
type Config struct {
	// Price and Stock are assigned to new books; dumps carry neither.
	Price decimal.Decimal
	Stock int
	// Writers is the number of concurrent upserts.
	Writers int
	// ExpectedISBNs and FalsePositiveRate size the dedupe filter. A false
	// positive skips a book that was not seen before.
	ExpectedISBNs     uint
	FalsePositiveRate float64
}

func (c *Config) setDefaults() {
	if c.Writers <= 0 {
		c.Writers = 4
	}
	if c.ExpectedISBNs == 0 {
		c.ExpectedISBNs = 50_000_000
	}
	if c.FalsePositiveRate <= 0 {
		c.FalsePositiveRate = 0.001
	}
}

// Stats summarizes an ingest run.
type Stats struct {
	Lines      int64
	Skipped    int64
	Duplicates int64
	Written    int64
}

type counters struct {
	lines, skipped, duplicates, written atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Lines:      c.lines.Load(),
		Skipped:    c.skipped.Load(),
		Duplicates: c.duplicates.Load(),
		Written:    c.written.Load(),
	}
}

// Ingester streams editions dumps into a Store.
type Ingester struct {
	store Store
	cfg   Config

	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// New creates an Ingester.
func New(store Store, cfg Config) *Ingester {
	cfg.setDefaults()
	return &Ingester{
		store: store,
		cfg:   cfg,
		seen:  bloom.NewWithEstimates(cfg.ExpectedISBNs, cfg.FalsePositiveRate),
	}
}

// Run reads the gzip-compressed dumps concurrently and upserts one book per
// distinct ISBN. Records without an ISBN, title or parseable JSON are
// skipped.
func (in *Ingester) Run(ctx context.Context, files []string) (Stats, error) {
	var c counters
	books := make(chan *catalog.Book, 1024)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(books)
		readers, ctx := errgroup.WithContext(ctx)
		for _, f := range files {
			readers.Go(func() error {
				return in.readFile(ctx, f, books, &c)
			})
		}
		return readers.Wait()
	})
	for range in.cfg.Writers {
		g.Go(func() error {
			for b := range books {
				switch err := in.store.UpsertByISBN(ctx, b); {
				case errors.Is(err, catalog.ErrDuplicate):
					c.duplicates.Add(1)
				case err != nil:
					return errors.Wrapf(err, "upsert %s", b.ISBN)
				default:
					c.written.Add(1)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	return c.snapshot(), err
}

func (in *Ingester) readFile(ctx context.Context, path string, out chan<- *catalog.Book, c *counters) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	var lines int64
	for scanner.Scan() {
		lines++
		c.lines.Add(1)
		if lines%progressEvery == 0 {
			slog.Info("ingest progress", slog.String("file", path), slog.Int64("lines", lines))
		}

		e, err := openlibrary.ParseDumpLine(scanner.Bytes())
		if err != nil {
			c.skipped.Add(1)
			continue
		}
		b := in.book(e)
		if b == nil {
			c.skipped.Add(1)
			continue
		}
		if in.testAndAdd(b.ISBN) {
			c.duplicates.Add(1)
			continue
		}

		select {
		case out <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	slog.Info("ingest file complete", slog.String("file", path), slog.Int64("lines", lines))
	return nil
}

// testAndAdd reports whether isbn was probably seen before and records it.
func (in *Ingester) testAndAdd(isbn string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.seen.TestAndAddString(isbn)
}

// book maps an edition onto a new catalog entry, or returns nil when the
// edition cannot be sold.
func (in *Ingester) book(e openlibrary.Edition) *catalog.Book {
	isbn := e.ISBN()
	title := strings.TrimSpace(e.Title)
	if isbn == "" || title == "" {
		return nil
	}
	if sub := strings.TrimSpace(e.Subtitle); sub != "" {
		title += ": " + sub
	}

	b := &catalog.Book{
		Title:       title,
		Author:      author(e),
		Description: e.Description,
		Price:       in.cfg.Price,
		Stock:       in.cfg.Stock,
		ISBN:        isbn,
		PageCount:   max(e.NumberOfPages, 0),
		Format:      format(e.PhysicalFormat),
		Language:    language(e.Languages),
	}
	if len(e.Publishers) > 0 {
		b.Publisher = e.Publishers[0]
	}
	if e.CoverID > 0 {
		b.CoverImage = fmt.Sprintf(coverURL, e.CoverID)
	}
	if year, err := strconv.Atoi(e.PublishYear); err == nil {
		t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		b.PublicationDate = &t
	}
	if b.Validate() != nil {
		return nil
	}
	return b
}

func author(e openlibrary.Edition) string {
	if s := strings.TrimRight(strings.TrimSpace(e.ByStatement), "."); s != "" {
		return s
	}
	if len(e.Authors) > 0 {
		return strings.Join(e.Authors, ", ")
	}
	return unknownAuthor
}

func format(physical string) catalog.Format {
	p := strings.ToLower(physical)
	switch {
	case p == "":
		return ""
	case strings.Contains(p, "paperback"), strings.Contains(p, "softcover"):
		return catalog.FormatPaperback
	case strings.Contains(p, "hardcover"), strings.Contains(p, "hardback"):
		return catalog.FormatHardcover
	case strings.Contains(p, "ebook"), strings.Contains(p, "e-book"), strings.Contains(p, "electronic"):
		return catalog.FormatEbook
	case strings.Contains(p, "audio"):
		return catalog.FormatAudiobook
	default:
		return catalog.FormatOther
	}
}

var languageNames = map[string]string{
	"eng": "English",
	"fre": "French",
	"ger": "German",
	"spa": "Spanish",
	"ita": "Italian",
	"por": "Portuguese",
	"rus": "Russian",
	"jpn": "Japanese",
	"chi": "Chinese",
}

func language(codes []string) string {
	if len(codes) == 0 {
		return ""
	}
	if name, ok := languageNames[codes[0]]; ok {
		return name
	}
	return codes[0]
}
