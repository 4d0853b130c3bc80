package search

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// Handlers exposes a view over HTTP.
type Handlers struct {
	svc  *Service
	view View
}

// NewHandlers creates HTTP handlers for one search view.
func NewHandlers(svc *Service, view View) *Handlers {
	return &Handlers{svc: svc, view: view}
}

// RegisterRoutes registers the search routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/search", h.search).Methods("GET")
	router.HandleFunc("/refresh", h.refresh).Methods("POST")
}

// searchResponse is the JSON shape of a search reply.
type searchResponse struct {
	Results []Row  `json:"results"`
	Count   int    `json:"count"`
	Query   string `json:"query"`
}

// search handles GET /search?q=...&limit=...&offset=...
func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	var opts Options
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			opts.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset > 0 {
			opts.Offset = offset
		}
	}

	results, err := h.svc.Search(r.Context(), h.view, q, opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(searchResponse{
		Results: results,
		Count:   len(results),
		Query:   q,
	})
}

// refresh handles POST /refresh
func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Refresh(r.Context(), h.view.Name); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
