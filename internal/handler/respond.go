package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/internal/cache"
	"github.com/xenking/bookstore/internal/domain/auth"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/catalog"
	"github.com/xenking/bookstore/internal/domain/order"
	"github.com/xenking/bookstore/internal/domain/user"
	"github.com/xenking/bookstore/internal/openlibrary"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

var (
	errRouteNotFound    = errors.New("route not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errForbidden        = errors.New("administrator access required")
)

// badRequestError is a malformed request detected by the handler itself.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type stockDetails struct {
	BookID    string `json:"bookId"`
	Title     string `json:"title"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Warn("write response", zap.Error(err))
	}
}

// decodeJSON reads a single JSON object from the request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required")
		}
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for routes whose fields are all optional.
// An empty body leaves v untouched, whatever the Content-Length says.
func decodeOptionalJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// writeError maps err to a status code and writes the error body. Errors
// that are not recognized are logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	resp.Code = status
	writeJSON(w, r, status, resp)
}

func classify(err error) (int, errorResponse) {
	var (
		badReq       *badRequestError
		notFound     *order.ItemNotFoundError
		insufficient *order.InsufficientStockError
		orderInvalid *order.ValidationError
		badStatus    *order.InvalidStatusError
		badMove      *order.InvalidTransitionError
		bookInvalid  *catalog.ValidationError
		authInvalid  *auth.InvalidInputError
	)
	msg := func(status int) (int, errorResponse) {
		return status, errorResponse{Message: err.Error()}
	}

	switch {
	case errors.As(err, &insufficient):
		return http.StatusBadRequest, errorResponse{
			Message: err.Error(),
			Details: stockDetails{
				BookID:    insufficient.BookID,
				Title:     insufficient.Title,
				Available: insufficient.Available,
				Requested: insufficient.Requested,
			},
		}
	case errors.As(err, &badReq),
		errors.As(err, &notFound),
		errors.As(err, &orderInvalid),
		errors.As(err, &badStatus),
		errors.As(err, &bookInvalid),
		errors.As(err, &authInvalid),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrDuplicateTransaction),
		errors.Is(err, order.ErrInvalidCursor),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, catalog.ErrDuplicate),
		errors.Is(err, user.ErrDuplicate),
		errors.Is(err, openlibrary.ErrEmptyQuery),
		errors.Is(err, openlibrary.ErrInvalidID):
		return msg(http.StatusBadRequest)
	case errors.As(err, &badMove),
		errors.Is(err, order.ErrStatusChanged),
		errors.Is(err, cache.ErrKeyInUse):
		return msg(http.StatusConflict)
	case errors.Is(err, order.ErrPaymentDeclined):
		return msg(http.StatusPaymentRequired)
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrInvalidCredentials):
		return msg(http.StatusUnauthorized)
	case errors.Is(err, errForbidden),
		errors.Is(err, user.ErrProtected):
		return msg(http.StatusForbidden)
	case errors.Is(err, errRouteNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, user.ErrNotFound),
		errors.Is(err, openlibrary.ErrNotFound):
		return msg(http.StatusNotFound)
	case errors.Is(err, errMethodNotAllowed):
		return msg(http.StatusMethodNotAllowed)
	case errors.Is(err, openlibrary.ErrUnavailable):
		return http.StatusBadGateway, errorResponse{Message: "Open Library is unavailable"}
	default:
		return http.StatusInternalServerError, errorResponse{Message: "internal server error"}
	}
}
