package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/bookstore/internal/domain/auth"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/catalog"
	"github.com/xenking/bookstore/internal/domain/order"
	"github.com/xenking/bookstore/internal/domain/user"
	"github.com/xenking/bookstore/internal/openlibrary"
)

// AuthService registers, logs in and authenticates users.
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Authenticate(ctx context.Context, token string) (auth.Principal, *user.User, error)
}

// UserService holds the administrative user operations.
type UserService interface {
	List(ctx context.Context) ([]user.User, error)
	Delete(ctx context.Context, id string) error
}

// CartService manages the caller's cart.
type CartService interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	AddItem(ctx context.Context, userID, bookID string, quantity int) (*cart.Cart, error)
	SetQuantity(ctx context.Context, userID, bookID string, quantity int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, userID, bookID string) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// OrderService places and reads orders.
type OrderService interface {
	Checkout(ctx context.Context, req order.CheckoutRequest) (*order.Order, error)
	ListForUser(ctx context.Context, userID string) ([]order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	List(ctx context.Context, status, cursor string, limit int) (*order.ListPage, error)
	UpdateStatus(ctx context.Context, id, status string) (*order.Order, error)
}

// OpenLibrary searches the external catalog.
type OpenLibrary interface {
	Search(ctx context.Context, q string) (*openlibrary.SearchResult, error)
	Details(ctx context.Context, olid string) (*openlibrary.Details, error)
}

// IdempotencyStore reserves checkout idempotency keys per user.
type IdempotencyStore interface {
	Reserve(ctx context.Context, userID, key string) error
	Release(ctx context.Context, userID, key string) error
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative cover image paths in book
	// responses. When empty, paths are returned as stored.
	ImageBaseURL string
}

// Deps are the services the Handler delegates to. Idempotency and
// OpenLibrary are optional.
type Deps struct {
	Auth        AuthService
	Users       UserService
	Books       catalog.Repository
	Carts       CartService
	Orders      OrderService
	OpenLibrary OpenLibrary
	Idempotency IdempotencyStore
}

// Handler serves the bookstore JSON API.
type Handler struct {
	auth         AuthService
	users        UserService
	books        catalog.Repository
	carts        CartService
	orders       OrderService
	openLibrary  OpenLibrary
	idempotency  IdempotencyStore
	imageBaseURL string
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, deps Deps) *Handler {
	return &Handler{
		auth:         deps.Auth,
		users:        deps.Users,
		books:        deps.Books,
		carts:        deps.Carts,
		orders:       deps.Orders,
		openLibrary:  deps.OpenLibrary,
		idempotency:  deps.Idempotency,
		imageBaseURL: strings.TrimRight(cfg.ImageBaseURL, "/"),
	}
}

// Routes returns the API router. Every route lives under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errMethodNotAllowed)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.With(h.Authenticate).Get("/me", h.Me)
		})

		r.Route("/books", func(r chi.Router) {
			r.Get("/", h.ListBooks)
			r.Get("/featured", h.FeaturedBooks)
			r.Get("/{id}", h.GetBook)
			r.Group(func(r chi.Router) {
				r.Use(h.Authenticate, RequireAdmin)
				r.Post("/", h.CreateBook)
				r.Put("/{id}", h.UpdateBook)
				r.Delete("/{id}", h.DeleteBook)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)
				r.Post("/items", h.AddCartItem)
				r.Put("/items/{bookId}", h.UpdateCartItem)
				r.Delete("/items/{bookId}", h.RemoveCartItem)
			})

			r.Post("/checkout", h.Checkout)
			r.Get("/orders/mine", h.MyOrders)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.Authenticate, RequireAdmin)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Put("/orders/{id}/status", h.UpdateOrderStatus)
			r.Get("/users", h.ListUsers)
			r.Delete("/users/{id}", h.DeleteUser)
		})

		r.Route("/openlibrary", func(r chi.Router) {
			r.Get("/search", h.SearchOpenLibrary)
			r.Get("/details/*", h.OpenLibraryDetails)
		})
	})

	return r
}
