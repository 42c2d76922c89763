package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailmerge/dispatch"
	"github.com/pure-golang/mailmerge/jobs"
	"github.com/pure-golang/mailmerge/logger"
)

// EmailResponse acknowledges a dispatch. Summary and Results are present
// only for synchronous runs.
type EmailResponse struct {
	Message string            `json:"message"`
	JobID   string            `json:"jobId,omitempty"`
	Summary *dispatch.Summary `json:"summary,omitempty"`
	Results []dispatch.Result `json:"results,omitempty"`
}

// PreviewResponse lists the placeholders of a template and every rendered row.
type PreviewResponse struct {
	Placeholders []string           `json:"placeholders"`
	Rows         []dispatch.Preview `json:"rows"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewEmailResponse reports a finished synchronous run. The status is 502
// when every attempted send failed.
func NewEmailResponse(results []dispatch.Result) (int, EmailResponse) {
	summary := dispatch.Summarize(results)
	resp := EmailResponse{
		Message: "sent",
		Summary: &summary,
		Results: results,
	}
	if summary.Sent == 0 && summary.Failed > 0 {
		resp.Message = "failed"
		return http.StatusBadGateway, resp
	}
	return http.StatusOK, resp
}

// StatusOf maps an error to an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, dispatch.ErrPrecondition):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody returns the message clients see for err. Internal failures
// are not described.
func ErrorBody(err error) ErrorResponse {
	if StatusOf(err) == http.StatusInternalServerError {
		return ErrorResponse{Error: http.StatusText(http.StatusInternalServerError)}
	}
	return ErrorResponse{Error: err.Error()}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContextWithErr(ctx, err).Error("failed to write response")
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := StatusOf(err)
	l := logger.FromContextWithErr(ctx, err)
	if status >= http.StatusInternalServerError {
		l.Error("request failed", "status", status)
	} else {
		l.Info("request rejected", "status", status)
	}
	writeJSON(ctx, w, status, ErrorBody(err))
}
