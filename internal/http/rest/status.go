package rest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/plugaai/trth_downloader/internal/logctx"
	"github.com/plugaai/trth_downloader/internal/progress"
	"github.com/plugaai/trth_downloader/internal/telemetry"
)

type FileStatus struct {
	Name       string  `json:"name"`
	RequestID  string  `json:"request_id"`
	PartType   string  `json:"part_type"`
	State      string  `json:"state"`
	Downloaded uint64  `json:"downloaded"`
	Total      uint64  `json:"total"`
	Percent    float64 `json:"percent"`
	Error      string  `json:"error,omitempty"`
}

type Counts struct {
	Pending     int `json:"pending"`
	Downloading int `json:"downloading"`
	Complete    int `json:"complete"`
	Failed      int `json:"failed"`
}

type ProgressResponse struct {
	Files  []FileStatus `json:"files"`
	Counts Counts       `json:"counts"`
}

// StatusHandler serves a read-only view of the download progress.
type StatusHandler struct {
	store     *progress.Store
	telemetry *telemetry.Telemetry
	username  string
	password  string
}

// NewStatusHandler creates the handler. Empty credentials disable basic auth.
func NewStatusHandler(store *progress.Store, t *telemetry.Telemetry, username, password string) *StatusHandler {
	return &StatusHandler{
		store:     store,
		telemetry: t,
		username:  username,
		password:  password,
	}
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(h.telemetry).Middleware)

	r.Get("/healthz", h.HandleHealth)
	r.Handle("/metrics", h.telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.basicAuthMiddleware)

		r.Get("/progress", h.HandleProgress)
		r.Get("/progress/{requestID}", h.HandleGroup)
	})

	return r
}

func (h *StatusHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *StatusHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	c := h.store.Counts()

	h.writeJSON(w, r, ProgressResponse{
		Files: toFileStatus(h.store.Snapshot()),
		Counts: Counts{
			Pending:     c.Pending,
			Downloading: c.Downloading,
			Complete:    c.Complete,
			Failed:      c.Failed,
		},
	})
}

func (h *StatusHandler) HandleGroup(w http.ResponseWriter, r *http.Request) {
	group := h.store.Group(chi.URLParam(r, "requestID"))
	if len(group) == 0 {
		http.Error(w, "unknown request id", http.StatusNotFound)

		return
	}

	h.writeJSON(w, r, toFileStatus(group))
}

func (h *StatusHandler) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (h *StatusHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.username == "" {
			next.ServeHTTP(w, r)

			return
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		if username != h.username || password != h.password {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func toFileStatus(entries []progress.Entry) []FileStatus {
	out := make([]FileStatus, 0, len(entries))

	for _, e := range entries {
		fs := FileStatus{
			Name:       e.File.Name,
			RequestID:  e.File.RequestID,
			PartType:   e.File.PartType,
			State:      e.Progress.State.String(),
			Downloaded: e.Progress.Downloaded,
			Total:      e.Progress.Total,
			Percent:    e.Progress.Fraction() * 100,
		}

		if e.Progress.Err != nil {
			fs.Error = e.Progress.Err.Error()
		}

		out = append(out, fs)
	}

	return out
}
