package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GET /api/actors/{actorID}
func (h *Handler) GetActor(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.GetActor(r.Context(), chi.URLParam(r, "actorID"))
	respond(r.Context(), a, err)
}

// POST /api/actors/me
func (h *Handler) RegisterActor(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.RegisterActor(r.Context(), callerFrom(r))
	respond(r.Context(), a, err)
}
