package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tiation/riggerhire/internal/event"
)

const (
	eventBufferSize   = 64
	keepAliveInterval = 15 * time.Second
)

// GET /api/events
//
// Streams committed transitions as Server-Sent Events. The optional query
// parameters "types" (comma separated) and "taskId" filter the stream.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	typeFilter := make(map[event.Type]struct{})
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			typeFilter[event.Type(t)] = struct{}{}
		}
	}
	taskID := r.URL.Query().Get("taskId")

	subID, ch := h.bus.Subscribe(eventBufferSize)
	defer h.bus.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": subscribed\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		slog.WarnContext(ctx, "event stream does not support flushing", "error", err)
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case e, ok := <-ch:
			if !ok {
				return
			}
			if len(typeFilter) > 0 {
				if _, match := typeFilter[e.Type]; !match {
					continue
				}
			}
			if taskID != "" && e.TaskID != taskID {
				continue
			}
			data, err := json.Marshal(e)
			if err != nil {
				slog.ErrorContext(ctx, "failed to encode event", "event_id", e.ID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
