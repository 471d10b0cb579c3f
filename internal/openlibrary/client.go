// Package openlibrary is a small client for the Open Library search and
// works/editions APIs.
package openlibrary

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultBaseURL is the public Open Library endpoint.
const DefaultBaseURL = "https://openlibrary.org"

// editionsToScan bounds how many editions Details inspects for ISBNs.
const editionsToScan = 5

// maxBody caps upstream response size.
const maxBody = 8 << 20

var (
	// ErrNotFound is returned when Open Library has no such record.
	ErrNotFound = errors.New("not found in Open Library")
	// ErrUnavailable is returned when Open Library fails or the circuit is
	// open.
	ErrUnavailable = errors.New("Open Library is unavailable")
	// ErrEmptyQuery is returned by Search for a blank query.
	ErrEmptyQuery = errors.New("search query is required")
	// ErrInvalidID is returned by Details for a malformed identifier.
	ErrInvalidID = errors.New("invalid Open Library id")
)

// Client calls Open Library through a circuit breaker. Not-found answers do
// not count as failures.
type Client struct {
	http    *http.Client
	baseURL string
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New creates a Client. An empty baseURL selects DefaultBaseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "openlibrary",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search runs a free-text search.
func (c *Client) Search(ctx context.Context, q string) (*SearchResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	body, err := c.get(ctx, "/search.json", url.Values{"q": {q}})
	if err != nil {
		return nil, err
	}
	res, err := decodeSearch(body)
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	return res, nil
}

// Details fetches a work or edition by its key, for example
// "/works/OL45804W" or "/books/OL7353617M". For a work without identifiers
// of its own, the first editions are scanned and the first one carrying an
// ISBN fills in the gaps.
func (c *Client) Details(ctx context.Context, olid string) (*Details, error) {
	olid, err := normalizeID(olid)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, olid+".json", nil)
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord(body)
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}

	if strings.HasPrefix(olid, "/works/") && len(rec.identifiers()) == 0 {
		body, err := c.get(ctx, olid+"/editions.json", url.Values{"limit": {strconv.Itoa(editionsToScan)}})
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return nil, err
		default:
			editions, err := decodeEditions(body, editionsToScan)
			if err != nil {
				return nil, errors.Wrap(ErrUnavailable, err.Error())
			}
			for _, e := range editions {
				if len(e.ISBN13) > 0 || len(e.ISBN10) > 0 {
					rec.merge(e)
					break
				}
			}
		}
	}

	return rec.details(olid), nil
}

// normalizeID accepts "works/OL1W" or "/works/OL1W" and rejects anything
// that is not a single works, books or authors key.
func normalizeID(olid string) (string, error) {
	olid = "/" + strings.Trim(strings.TrimSpace(olid), "/")
	parts := strings.Split(olid, "/")
	if len(parts) != 3 || parts[2] == "" {
		return "", ErrInvalidID
	}
	switch parts[1] {
	case "works", "books", "authors":
	default:
		return "", ErrInvalidID
	}
	for _, r := range parts[2] {
		if !('A' <= r && r <= 'Z' || '0' <= r && r <= '9') {
			return "", ErrInvalidID
		}
	}
	return olid, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrNotFound
		case resp.StatusCode != http.StatusOK:
			return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxBody))
	})
	switch {
	case err == nil:
		return body, nil
	case errors.Is(err, ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, context.Canceled):
		return nil, err
	default:
		return nil, errors.Wrapf(ErrUnavailable, "GET %s: %v", path, err)
	}
}
