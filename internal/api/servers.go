package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// listServers handles GET /api/v1/servers.
func (a *API) listServers(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r)

	entries, total, err := a.store.ListEntries(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Data: entries,
		Meta: &Meta{
			Total:   total,
			Page:    page,
			PerPage: perPage,
		},
	})
}

// getServer handles GET /api/v1/servers/{identity}. Identities contain
// slashes ("owner/repo"), so the route is a wildcard.
func (a *API) getServer(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "*")
	if identity == "" {
		respondError(w, http.StatusBadRequest, "invalid_identity", "Entry identity is required")
		return
	}

	entry, err := a.store.GetEntry(r.Context(), identity)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}
	if entry == nil {
		respondError(w, http.StatusNotFound, "not_found", "Entry not found")
		return
	}

	respondJSON(w, http.StatusOK, Response{Data: entry})
}

// searchServers handles GET /api/v1/search?q=query.
func (a *API) searchServers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}

	page, perPage := parsePagination(r)

	entries, total, err := a.store.SearchEntries(r.Context(), query, perPage, (page-1)*perPage)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Data: entries,
		Meta: &Meta{
			Total:   total,
			Page:    page,
			PerPage: perPage,
		},
	})
}

// getStats handles GET /api/v1/stats.
func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	counts, err := a.store.CountsBySource(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	respondJSON(w, http.StatusOK, Response{Data: map[string]interface{}{
		"total":     total,
		"by_source": counts,
	}})
}
