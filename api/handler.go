// Package api serves mail-merge runs over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/pure-golang/mailmerge/dispatch"
	"github.com/pure-golang/mailmerge/httpserver/middleware"
	"github.com/pure-golang/mailmerge/jobs"
	"github.com/pure-golang/mailmerge/logger"
	"github.com/pure-golang/mailmerge/placeholder"
)

// Config configures the HTTP API.
type Config struct {
	MaxBodyBytes int64    `envconfig:"API_MAX_BODY_BYTES" default:"10485760"`
	CORSOrigins  []string `envconfig:"API_CORS_ORIGINS" default:"*"`
}

// Jobs runs dispatches in the background. *jobs.Manager implements it.
type Jobs interface {
	Submit(ctx context.Context, req dispatch.Request) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
}

// Handler serves the mail-merge endpoints.
type Handler struct {
	engine *dispatch.Engine
	jobs   Jobs
	cfg    Config
}

// NewHandler creates a Handler.
func NewHandler(engine *dispatch.Engine, jobs Jobs, cfg Config) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	return &Handler{engine: engine, jobs: jobs, cfg: cfg}
}

// Router returns the routes of h behind the monitoring, recovery and CORS
// middleware.
func (h *Handler) Router() http.Handler {
	origins := h.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Monitoring)
	r.Use(middleware.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Trace-Id"},
		MaxAge:         300,
	}))

	r.Get("/", h.hello)
	r.Post("/email", h.sendEmail)
	r.Get("/email/jobs/{id}", h.getJob)
	r.Post("/preview", h.preview)

	return r
}

func (h *Handler) hello(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello World"))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (EmailRequest, error) {
	return DecodeEmailRequest(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
}

func (h *Handler) sendEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := h.decode(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	req, err := body.ToDispatch()
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	logger.FromContext(ctx).Info("email request received", "request", body)

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		results, err := h.engine.Dispatch(ctx, req)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		status, resp := NewEmailResponse(results)
		writeJSON(ctx, w, status, resp)
		return
	}

	job, err := h.jobs.Submit(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, EmailResponse{Message: "sent", JobID: job.ID})
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	job, err := h.jobs.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, job)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := h.decode(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	resp, err := Preview(h.engine, body)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// Preview renders body without sending anything.
func Preview(engine *dispatch.Engine, body EmailRequest) (PreviewResponse, error) {
	req, err := body.ToPreview()
	if err != nil {
		return PreviewResponse{}, err
	}
	rows, err := engine.Preview(req)
	if err != nil {
		return PreviewResponse{}, err
	}

	ids := placeholder.Identifiers(req.Template)
	if ids == nil {
		ids = []string{}
	}
	return PreviewResponse{Placeholders: ids, Rows: rows}, nil
}
