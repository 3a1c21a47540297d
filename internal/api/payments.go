package api

import (
	"net/http"

	"github.com/tiation/riggerhire/internal/engine"
	"github.com/tiation/riggerhire/pkg/cerr"
	"github.com/tiation/riggerhire/pkg/clog"
)

// POST /api/payments/tasks/{taskID}/process
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var in engine.PaymentInput
	if err := decodeBody(r, &in); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	id := taskID(r)
	clog.AddAttribute(r.Context(), "idempotency_key", engine.IdempotencyKey(id))
	rec, err := h.engine.ProcessPayment(r.Context(), callerFrom(r), id, in)
	respond(r.Context(), rec, err)
}

// POST /api/payments/escrow/{taskID}/release
func (h *Handler) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.ReleaseEscrow(r.Context(), callerFrom(r), taskID(r))
	respond(r.Context(), rec, err)
}

// GET /api/payments/stats
func (h *Handler) PaymentStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.PaymentStats(r.Context(), callerFrom(r))
	respond(r.Context(), s, err)
}
