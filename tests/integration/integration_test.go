//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	adminEmail       = "admin@bookstore.local"
	adminPassword    = "admin-password"
	seededBookCount  = 6
	testUserPassword = "reader-password"
)

var (
	baseURL    string
	httpClient *http.Client
	adminToken string
	userSeq    atomic.Int64
)

// Response types are defined locally to keep the tests black-box.

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type errorResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

type stockDetails struct {
	BookID    string `json:"bookId"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

type address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country,omitempty"`
}

type sessionResponse struct {
	Token string `json:"token"`
	User  struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		IsAdmin bool   `json:"isAdmin"`
	} `json:"user"`
}

type bookResponse struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	Price      float64  `json:"price"`
	Stock      int      `json:"stock"`
	ISBN       string   `json:"isbn"`
	Tags       []string `json:"tags"`
	Categories []string `json:"categories"`
}

type bookPage struct {
	Books []bookResponse `json:"books"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Pages int            `json:"pages"`
}

type cartResponse struct {
	Items []struct {
		BookID   string `json:"bookId"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
	Subtotal float64 `json:"subtotal"`
}

type orderResponse struct {
	ID    string `json:"id"`
	Items []struct {
		BookID          string  `json:"bookId"`
		Quantity        int     `json:"quantity"`
		PriceAtPurchase float64 `json:"priceAtPurchase"`
	} `json:"items"`
	Total           float64 `json:"totalAmount"`
	ShippingAddress address `json:"shippingAddress"`
	BillingAddress  address `json:"billingAddress"`
	Status          string  `json:"status"`
}

type orderPage struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"nextCursor"`
}

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Coverage output directory for the instrumented binary.
	if err := os.MkdirAll("coverdir", 0o777); err != nil {
		log.Fatalf("create coverdir: %v", err)
	}

	dc, err := tc.NewDockerCompose("docker-compose.test.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}

	err = dc.
		WaitForService("api", wait.ForHTTP("/readyz").WithPort("8080/tcp")).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Fatalf("compose up: %v", err)
	}

	apiContainer, err := dc.ServiceContainer(ctx, "api")
	if err != nil {
		log.Fatalf("api container: %v", err)
	}

	host, err := apiContainer.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}

	mappedPort, err := apiContainer.MappedPort(ctx, "8080/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	baseURL = fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
	httpClient = &http.Client{Timeout: 10 * time.Second}
	log.Printf("API available at %s", baseURL)

	// The image ships seed-db next to the server; it reads the database
	// URL, secret and passwords from the container environment.
	exitCode, output, err := apiContainer.Exec(ctx, []string{"/app/seed-db"})
	if err != nil {
		log.Fatalf("seed exec: %v", err)
	}
	if exitCode != 0 {
		out, _ := io.ReadAll(output)
		log.Fatalf("seed-db exited %d: %s", exitCode, out)
	}
	log.Printf("seed-db completed")

	if err := waitForSeededData(ctx); err != nil {
		log.Fatalf("wait for seed: %v", err)
	}
	if adminToken, err = login(adminEmail, adminPassword); err != nil {
		log.Fatalf("admin login: %v", err)
	}

	result := m.Run()

	// Stop the API gracefully so the instrumented binary flushes coverage
	// data to GOCOVERDIR. The compose file sends SIGINT.
	stopTimeout := 30 * time.Second
	if err := apiContainer.Stop(ctx, &stopTimeout); err != nil {
		log.Printf("stop api container: %v", err)
	}

	if err := dc.Down(context.Background(), tc.RemoveOrphans(true)); err != nil {
		log.Printf("compose down: %v", err)
	}

	return result
}

// waitForSeededData polls the catalog until every seeded book is listed.
func waitForSeededData(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for seeded data (last: %s): %w", lastErr, ctx.Err())
		case <-ticker.C:
			resp, err := httpClient.Get(baseURL + "/api/books")
			if err != nil {
				lastErr = err.Error()
				continue
			}

			var page bookPage
			if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
				lastErr = fmt.Sprintf("decode: %v (status: %d)", err, resp.StatusCode)
				resp.Body.Close()
				continue
			}
			resp.Body.Close()

			if page.Total >= seededBookCount {
				log.Printf("seed data ready: %d books", page.Total)
				return nil
			}
			lastErr = fmt.Sprintf("got %d books, want %d", page.Total, seededBookCount)
		}
	}
}

func login(email, password string) (string, error) {
	data, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := httpClient.Post(baseURL+"/api/auth/login", "application/json", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login status %d", resp.StatusCode)
	}
	var s sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return "", err
	}
	return s.Token, nil
}

// HTTP helpers.

type requestOption func(*http.Request)

func withToken(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func doRequest(t *testing.T, method, path string, body any, opts ...requestOption) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, rd)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}

	return resp
}

func doGet(t *testing.T, path string, opts ...requestOption) *http.Response {
	t.Helper()
	return doRequest(t, http.MethodGet, path, nil, opts...)
}

func doPost(t *testing.T, path string, body any, opts ...requestOption) *http.Response {
	t.Helper()
	return doRequest(t, http.MethodPost, path, body, opts...)
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	return v
}

// expectStatus closes resp and fails the test when the status differs.
func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	defer resp.Body.Close()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, body)
	}
}

// registerUser creates a fresh customer and returns its token.
func registerUser(t *testing.T) string {
	t.Helper()

	n := userSeq.Add(1)
	resp := doPost(t, "/api/auth/register", map[string]any{
		"username": fmt.Sprintf("reader-%d-%d", time.Now().UnixNano(), n),
		"email":    fmt.Sprintf("reader-%d-%d@example.com", time.Now().UnixNano(), n),
		"password": testUserPassword,
		"address":  testAddress,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	return decodeJSON[sessionResponse](t, resp).Token
}

var testAddress = address{Street: "1 Main St", City: "Springfield", State: "IL", Zip: "62701"}

// createBook adds a catalog entry through the admin API.
func createBook(t *testing.T, title string, price float64, stock int) bookResponse {
	t.Helper()

	resp := doPost(t, "/api/books", map[string]any{
		"title":  title,
		"author": "Integration Author",
		"price":  price,
		"stock":  stock,
	}, withToken(adminToken))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create book: expected 201, got %d", resp.StatusCode)
	}
	return decodeJSON[bookResponse](t, resp)
}

func getBook(t *testing.T, id string) bookResponse {
	t.Helper()

	resp := doGet(t, "/api/books/"+id)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get book: expected 200, got %d", resp.StatusCode)
	}
	return decodeJSON[bookResponse](t, resp)
}

func addToCart(t *testing.T, token, bookID string, quantity int) {
	t.Helper()

	resp := doPost(t, "/api/cart/items", map[string]any{"bookId": bookID, "quantity": quantity}, withToken(token))
	expectStatus(t, resp, http.StatusOK)
}
