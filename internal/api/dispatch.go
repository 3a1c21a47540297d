package api

import (
	"encoding/json"
	"net/http"

	"github.com/tiation/riggerhire/internal/dispatch"
	"github.com/tiation/riggerhire/pkg/cerr"
	"github.com/tiation/riggerhire/pkg/clog"
)

type dispatchRequest struct {
	Kind    dispatch.Kind   `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// POST /api/dispatch
//
// The caller always comes from the request headers, never from the body.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := decodeBody(r, &req); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	clog.AddAttribute(r.Context(), "kind", string(req.Kind))
	out, err := h.dispatcher.Dispatch(r.Context(), dispatch.Request{
		Kind:    req.Kind,
		Caller:  callerFrom(r),
		Payload: req.Payload,
	})
	respond(r.Context(), out, err)
}
