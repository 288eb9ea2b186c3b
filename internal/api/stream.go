package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/najdeno/internal/metrics"
	"github.com/erazemk/najdeno/internal/realtime"
)

// defaultKeepAlive is how often an idle stream sends a comment line.
const defaultKeepAlive = 25 * time.Second

// StreamHandler serves newly created items as Server-Sent Events.
type StreamHandler struct {
	Hub       *realtime.Hub
	Metrics   *metrics.Metrics
	Buffer    int
	KeepAlive time.Duration
}

// Stream handles GET /api/items/stream. Items that do not pass the feed
// filter given in the query string are skipped.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	if err := filter.Validate(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	items, cancel := h.Hub.Subscribe(h.Buffer)
	defer cancel()
	if h.Metrics != nil {
		defer h.Metrics.StreamClientConnected()()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		slog.Error("streaming not supported", "error", err)
		return
	}

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	claims := GetClaims(r.Context())
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
		case item, ok := <-items:
			if !ok {
				return
			}
			if !filter.Matches(&item) {
				continue
			}
			data, err := json.Marshal(visibleTo(claims, item))
			if err != nil {
				slog.Error("failed to encode stream item", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: item\nid: %s\ndata: %s\n\n", item.ID, data)
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
