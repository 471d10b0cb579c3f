package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/bookstore/internal/domain/catalog"
)

// featuredLimit is the number of books on the featured shelf.
const featuredLimit = 8

// ListBooks returns one page of the catalog. Query parameters: search,
// category, isUsed, page, limit.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.Filter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
	}

	var err error
	if f.Page, err = intParam(q.Get("page"), "page"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		writeError(w, r, err)
		return
	}
	if v := q.Get("isUsed"); v != "" {
		used, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, badRequest("isUsed must be true or false"))
			return
		}
		f.IsUsed = &used
	}

	page, err := h.books.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, bookPageDTO{
		Books: h.toBookDTOs(page.Books),
		Total: page.Total,
		Page:  page.Page,
		Pages: page.Pages,
	})
}

// FeaturedBooks returns the newest books.
func (h *Handler) FeaturedBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.Featured(r.Context(), featuredLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.toBookDTOs(books))
}

// GetBook returns a single book.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	b, err := h.books.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.toBookDTO(b))
}

// CreateBook adds a book to the catalog.
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var in bookInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	var b catalog.Book
	if err := in.apply(&b); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.books.Create(r.Context(), &b); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, h.toBookDTO(&b))
}

// UpdateBook replaces the mutable fields of a book.
func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	var in bookInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	b := catalog.Book{ID: chi.URLParam(r, "id")}
	if err := in.apply(&b); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.books.Update(r.Context(), &b); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.toBookDTO(&b))
}

// DeleteBook removes a book from the catalog.
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := h.books.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest(name + " must be a non-negative integer")
	}
	return n, nil
}
