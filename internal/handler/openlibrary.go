package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/bookstore/internal/openlibrary"
)

// SearchOpenLibrary proxies a search to Open Library.
func (h *Handler) SearchOpenLibrary(w http.ResponseWriter, r *http.Request) {
	if h.openLibrary == nil {
		writeError(w, r, openlibrary.ErrUnavailable)
		return
	}
	res, err := h.openLibrary.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// OpenLibraryDetails returns a work or edition, such as
// /api/openlibrary/details/works/OL45804W.
func (h *Handler) OpenLibraryDetails(w http.ResponseWriter, r *http.Request) {
	if h.openLibrary == nil {
		writeError(w, r, openlibrary.ErrUnavailable)
		return
	}
	d, err := h.openLibrary.Details(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, d)
}
