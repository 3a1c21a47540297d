package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tiation/riggerhire/internal/dispatch"
	"github.com/tiation/riggerhire/internal/engine"
	"github.com/tiation/riggerhire/internal/store"
	"github.com/tiation/riggerhire/internal/task"
	"github.com/tiation/riggerhire/pkg/cerr"
	"github.com/tiation/riggerhire/pkg/clog"
)

func taskID(r *http.Request) string {
	id := chi.URLParam(r, "taskID")
	clog.AddAttribute(r.Context(), "task_id", id)
	return id
}

// POST /api/tasks
func (h *Handler) PostTask(w http.ResponseWriter, r *http.Request) {
	var in engine.TaskInput
	if err := decodeBody(r, &in); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	t, err := h.engine.PostTask(r.Context(), callerFrom(r), in)
	respondCreated(r.Context(), t, err)
}

// GET /api/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.TaskFilter{
		PosterID:      q.Get("posterId"),
		AssigneeID:    q.Get("assigneeId"),
		PaymentStatus: task.PaymentStatus(q.Get("paymentStatus")),
	}
	for _, s := range strings.Split(q.Get("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			f.Statuses = append(f.Statuses, task.Status(s))
		}
	}
	var err error
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	tasks, total, err := h.engine.ListTasks(r.Context(), f)
	respond(r.Context(), &dispatch.ListTasksResult{Tasks: tasks, Total: total}, err)
}

// GET /api/tasks/{taskID}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.GetTask(r.Context(), taskID(r))
	respond(r.Context(), t, err)
}

// PUT /api/tasks/{taskID}
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var in engine.TaskInput
	if err := decodeBody(r, &in); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	t, err := h.engine.UpdateTask(r.Context(), callerFrom(r), taskID(r), in)
	respond(r.Context(), t, err)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// DELETE /api/tasks/{taskID}
func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeBody(r, &req); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	t, err := h.engine.CancelTask(r.Context(), callerFrom(r), taskID(r), req.Reason)
	respond(r.Context(), t, err)
}

// PUT /api/tasks/{taskID}/start
func (h *Handler) StartTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.StartTask(r.Context(), callerFrom(r), taskID(r))
	respond(r.Context(), t, err)
}

// PUT /api/tasks/{taskID}/complete
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	var in engine.CompletionInput
	if err := decodeBody(r, &in); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	t, err := h.engine.CompleteTask(r.Context(), callerFrom(r), taskID(r), in)
	respond(r.Context(), t, err)
}
