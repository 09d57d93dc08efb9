package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hakim/scandeck/internal/models"
)

// GET /v1/scans/{id}/events
//
// Streams "scan" events carrying whole-record snapshots until the record is
// terminal or the client goes away. Intermediate snapshots may be skipped
// for slow clients; the latest one is always delivered.
func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")

	updates := make(chan models.ScanRecord, 1)
	unsubscribe := r.svc.OnScanUpdate(func(rec models.ScanRecord) {
		if rec.ID != id {
			return
		}
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- rec:
		default:
		}
	})
	defer unsubscribe()

	rec, ok := r.svc.GetScan(id)
	if !ok {
		// Archived scans get a single snapshot.
		archived, err := r.svc.Lookup(id)
		if err != nil {
			return err
		}
		rec = archived
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, rc, "scan", rec); err != nil || rec.Status.Terminal() {
		return nil
	}

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-req.Context().Done():
			return nil
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return nil
			}
			if err := rc.Flush(); err != nil {
				return nil
			}
		case rec := <-updates:
			if err := writeEvent(w, rc, "scan", rec); err != nil {
				r.logger.DebugContext(req.Context(), "event stream closed", "scan_id", id, "error", err)
				return nil
			}
			if rec.Status.Terminal() {
				return nil
			}
		}
	}
}

func writeEvent(w io.Writer, rc *http.ResponseController, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}
