package web

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cexll/reviewloop/internal/invocations"
)

// Handler serves the JSON inspection API over recorded invocations
type Handler struct {
	store *invocations.Store
}

// NewHandler creates a new web handler
func NewHandler(store *invocations.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers inspection API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/invocations", h.handleList).Methods("GET")
	r.HandleFunc("/invocations/{id}", h.handleDetail).Methods("GET")
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list := h.store.List()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"invocations": list,
		"count":       len(list),
	})
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	inv, ok := h.store.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "invocation not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
