// Package httpapi exposes the scan service over HTTP: scan control, live
// record streams, report exports and the notification center.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hakim/scandeck/internal/cve"
	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/pipeline"
	"github.com/hakim/scandeck/internal/report"
	"github.com/hakim/scandeck/internal/service"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var (
	errBadRequest = errors.New("bad request")
	errConflict   = errors.New("conflict")
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	Logger         *slog.Logger
	// Heartbeat is the comment interval on event streams. Zero means 15s.
	Heartbeat time.Duration
	// CVEs serves /v1/cves. Nil leaves those routes out.
	CVEs *cve.Database
}

type Router struct {
	svc       *service.Service
	cves      *cve.Database
	logger    *slog.Logger
	heartbeat time.Duration
}

func NewRouter(svc *service.Service, opts Options) http.Handler {
	r := &Router{
		svc:       svc,
		cves:      opts.CVEs,
		logger:    opts.Logger,
		heartbeat: opts.Heartbeat,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.heartbeat <= 0 {
		r.heartbeat = 15 * time.Second
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(requestLogger(r.logger))
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))

	mux.Get("/health", r.wrap(r.handleHealth))

	mux.Route("/v1", func(rt chi.Router) {
		rt.Get("/scans", r.wrap(r.handleList))
		rt.Post("/scans", r.wrap(r.handleCreate))
		rt.Get("/scans/{id}", r.wrap(r.handleGet))
		rt.Post("/scans/{id}/pause", r.wrap(r.handlePause))
		rt.Post("/scans/{id}/resume", r.wrap(r.handleResume))
		rt.Post("/scans/{id}/stop", r.wrap(r.handleStop))
		rt.Get("/scans/{id}/events", r.wrap(r.handleEvents))
		rt.Get("/scans/{id}/report", r.wrap(r.handleReport))

		rt.Get("/phases", r.wrap(r.handleTemplates))
		rt.Get("/phases/{kind}", r.wrap(r.handlePhases))

		rt.Get("/notifications", r.wrap(r.handleNotifications))
		rt.Post("/notifications/read", r.wrap(r.handleReadAll))
		rt.Post("/notifications/{id}/read", r.wrap(r.handleRead))
		rt.Delete("/notifications", r.wrap(r.handleClear))

		if r.cves != nil {
			rt.Get("/cves", r.wrap(r.handleCVESearch))
			rt.Get("/cves/recent", r.wrap(r.handleCVERecent))
			rt.Get("/cves/{id}", r.wrap(r.handleCVE))
		}
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			code := statusFor(err)
			if code >= http.StatusInternalServerError {
				r.logger.ErrorContext(req.Context(), "request failed", "path", req.URL.Path, "error", err)
			}
			writeJSON(w, code, map[string]string{"error": err.Error()})
		}
	}
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, cve.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errConflict):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrOutOfScope):
		return http.StatusForbidden
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, pipeline.ErrInvalidTarget),
		errors.Is(err, pipeline.ErrUnknownKind),
		errors.Is(err, report.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

// GET /health
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"scans":  len(r.svc.GetAllScans()),
	})
}

// GET /v1/scans?status=&kind=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	status := models.ScanStatus(req.URL.Query().Get("status"))
	kind := models.ScanKind(req.URL.Query().Get("kind"))

	list := make([]models.ScanRecord, 0)
	for _, rec := range r.svc.GetAllScans() {
		if status != "" && rec.Status != status {
			continue
		}
		if kind != "" && rec.Kind != kind {
			continue
		}
		list = append(list, rec)
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/scans
// Body: {"target": "example.com", "kind": "basic"}
func (r *Router) handleCreate(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Target string `json:"target"`
		Kind   string `json:"kind"`
	}
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return fmt.Errorf("%w: decoding body: %v", errBadRequest, err)
	}

	kind := models.KindBasic
	if body.Kind != "" {
		k, ok := models.ParseKind(body.Kind)
		if !ok {
			return fmt.Errorf("%w %q", pipeline.ErrUnknownKind, body.Kind)
		}
		kind = k
	}

	id, err := r.svc.Start(req.Context(), kind, body.Target)
	if err != nil {
		return err
	}

	w.Header().Set("Location", "/v1/scans/"+id)
	return writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// GET /v1/scans/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	rec, err := r.svc.Lookup(chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rec)
}

// POST /v1/scans/{id}/pause
func (r *Router) handlePause(w http.ResponseWriter, req *http.Request) error {
	return r.control(w, req, "paused", r.svc.PauseScan)
}

// POST /v1/scans/{id}/resume
func (r *Router) handleResume(w http.ResponseWriter, req *http.Request) error {
	return r.control(w, req, "resumed", r.svc.ResumeScan)
}

// POST /v1/scans/{id}/stop
func (r *Router) handleStop(w http.ResponseWriter, req *http.Request) error {
	return r.control(w, req, "stopped", r.svc.StopScan)
}

// control applies op and answers 404 for unknown ids, 409 when the record is
// not in a state op accepts, and the updated record otherwise.
func (r *Router) control(w http.ResponseWriter, req *http.Request, verb string, op func(string) bool) error {
	id := chi.URLParam(req, "id")
	if !op(id) {
		rec, ok := r.svc.GetScan(id)
		if !ok {
			return fmt.Errorf("scan %s: %w", id, service.ErrNotFound)
		}
		return fmt.Errorf("scan %s is %s and cannot be %s: %w", id, rec.Status, verb, errConflict)
	}
	rec, _ := r.svc.GetScan(id)
	return writeJSON(w, http.StatusOK, rec)
}

// GET /v1/scans/{id}/report?format=json|html|markdown|pdf
func (r *Router) handleReport(w http.ResponseWriter, req *http.Request) error {
	f, err := report.ParseFormat(req.URL.Query().Get("format"))
	if err != nil {
		return err
	}
	doc, err := r.svc.Report(chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	data, contentType, err := report.Export(doc, f)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", report.Filename(doc, f)))
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(data)
	return err
}

// GET /v1/phases
func (r *Router) handleTemplates(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, pipeline.Templates())
}

// GET /v1/phases/{kind}
func (r *Router) handlePhases(w http.ResponseWriter, req *http.Request) error {
	kind, ok := models.ParseKind(chi.URLParam(req, "kind"))
	if !ok {
		return fmt.Errorf("%w %q", pipeline.ErrUnknownKind, chi.URLParam(req, "kind"))
	}
	tmpl, err := pipeline.GetTemplate(kind)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, tmpl)
}

type notificationList struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

func (r *Router) notifications() notificationList {
	c := r.svc.Notifications()
	list := c.List()
	if list == nil {
		list = []models.Notification{}
	}
	return notificationList{Notifications: list, Unread: c.UnreadCount()}
}

// GET /v1/notifications
func (r *Router) handleNotifications(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, r.notifications())
}

// POST /v1/notifications/read
func (r *Router) handleReadAll(w http.ResponseWriter, req *http.Request) error {
	r.svc.Notifications().MarkAllRead()
	return writeJSON(w, http.StatusOK, r.notifications())
}

// POST /v1/notifications/{id}/read
func (r *Router) handleRead(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if !r.svc.Notifications().MarkRead(id) {
		return fmt.Errorf("notification %s: %w", id, service.ErrNotFound)
	}
	return writeJSON(w, http.StatusOK, r.notifications())
}

// DELETE /v1/notifications
func (r *Router) handleClear(w http.ResponseWriter, req *http.Request) error {
	r.svc.Notifications().ClearAll()
	w.WriteHeader(http.StatusNoContent)
	return nil
}
