package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/engine"
	"github.com/tiation/riggerhire/pkg/cerr"
	"github.com/tiation/riggerhire/pkg/clog"
)

func applicationID(r *http.Request) string {
	id := chi.URLParam(r, "applicationID")
	clog.AddAttribute(r.Context(), "application_id", id)
	return id
}

// GET /api/tasks/{taskID}/applications
func (h *Handler) TaskApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.engine.TaskApplications(r.Context(), callerFrom(r), taskID(r))
	respond(r.Context(), apps, err)
}

// POST /api/tasks/{taskID}/applications
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var d application.Details
	if err := decodeBody(r, &d); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	a, err := h.engine.SubmitApplication(r.Context(), callerFrom(r), taskID(r), d)
	respondCreated(r.Context(), a, err)
}

type reviewRequest struct {
	Decision engine.ReviewDecision `json:"decision"`
	Message  string                `json:"message"`
}

// PUT /api/tasks/{taskID}/applications/{applicationID}/review
func (h *Handler) ReviewApplication(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeBody(r, &req); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	res, err := h.engine.ReviewApplication(r.Context(), callerFrom(r), taskID(r), applicationID(r), req.Decision, req.Message)
	respond(r.Context(), res, err)
}

// GET /api/applications
func (h *Handler) MyApplications(w http.ResponseWriter, r *http.Request) {
	var statuses []application.Status
	for _, s := range strings.Split(r.URL.Query().Get("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, application.Status(s))
		}
	}
	apps, err := h.engine.MyApplications(r.Context(), callerFrom(r), statuses)
	respond(r.Context(), apps, err)
}

// PUT /api/applications/{applicationID}
func (h *Handler) UpdateApplication(w http.ResponseWriter, r *http.Request) {
	var d application.Details
	if err := decodeBody(r, &d); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	a, err := h.engine.UpdateApplication(r.Context(), callerFrom(r), applicationID(r), d)
	respond(r.Context(), a, err)
}

// DELETE /api/applications/{applicationID}
func (h *Handler) WithdrawApplication(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.WithdrawApplication(r.Context(), callerFrom(r), applicationID(r))
	respond(r.Context(), a, err)
}

type rateRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// POST /api/applications/{applicationID}/rate
func (h *Handler) RateApplication(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := decodeBody(r, &req); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	a, err := h.engine.RateApplication(r.Context(), callerFrom(r), applicationID(r), req.Rating, req.Review)
	respond(r.Context(), a, err)
}

// GET /api/applications/stats
func (h *Handler) ApplicationStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.ApplicationStats(r.Context(), callerFrom(r))
	respond(r.Context(), s, err)
}
