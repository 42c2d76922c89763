// Package serverless serves mail-merge runs from AWS Lambda behind API
// Gateway. Runs are synchronous: a function is frozen once it responds.
package serverless

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/pkg/errors"

	"github.com/pure-golang/mailmerge/api"
	"github.com/pure-golang/mailmerge/dispatch"
	"github.com/pure-golang/mailmerge/logger"
)

// Handler routes API Gateway proxy requests.
type Handler struct {
	engine *dispatch.Engine
}

// NewHandler creates a Handler.
func NewHandler(engine *dispatch.Engine) *Handler {
	return &Handler{engine: engine}
}

// Handle serves POST …/email and POST …/preview. Everything else is 404.
// Handle never returns an error; failures are HTTP responses.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	l := logger.FromContext(ctx).With("method", req.HTTPMethod, "path", req.Path)
	if id := req.RequestContext.RequestID; id != "" {
		l = l.With("request_id", id)
	}
	ctx = logger.NewContext(ctx, l)

	if req.HTTPMethod == http.MethodOptions {
		return respond(ctx, http.StatusNoContent, nil), nil
	}
	if req.HTTPMethod != http.MethodPost {
		return respond(ctx, http.StatusNotFound, api.ErrorResponse{Error: "not found"}), nil
	}

	switch {
	case strings.HasSuffix(req.Path, "/email"):
		return h.email(ctx, req), nil
	case strings.HasSuffix(req.Path, "/preview"):
		return h.preview(ctx, req), nil
	default:
		return respond(ctx, http.StatusNotFound, api.ErrorResponse{Error: "not found"}), nil
	}
}

func (h *Handler) email(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	body, err := decode(req)
	if err != nil {
		return failure(ctx, err)
	}
	dreq, err := body.ToDispatch()
	if err != nil {
		return failure(ctx, err)
	}
	logger.FromContext(ctx).Info("email request received", "request", body)

	results, err := h.engine.Dispatch(ctx, dreq)
	if err != nil {
		return failure(ctx, err)
	}
	status, resp := api.NewEmailResponse(results)
	return respond(ctx, status, resp)
}

func (h *Handler) preview(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	body, err := decode(req)
	if err != nil {
		return failure(ctx, err)
	}
	resp, err := api.Preview(h.engine, body)
	if err != nil {
		return failure(ctx, err)
	}
	return respond(ctx, http.StatusOK, resp)
}

func decode(req events.APIGatewayProxyRequest) (api.EmailRequest, error) {
	raw := req.Body
	if req.IsBase64Encoded {
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return api.EmailRequest{}, errors.Wrap(api.ErrInvalidRequest, "body is not valid base64")
		}
		raw = string(b)
	}
	return api.DecodeEmailRequest(strings.NewReader(raw))
}

func failure(ctx context.Context, err error) events.APIGatewayProxyResponse {
	status := api.StatusOf(err)
	l := logger.FromContextWithErr(ctx, err)
	if status >= http.StatusInternalServerError {
		l.Error("request failed", "status", status)
	} else {
		l.Info("request rejected", "status", status)
	}
	return respond(ctx, status, api.ErrorBody(err))
}

func respond(ctx context.Context, status int, v any) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":                 "application/json",
			"Access-Control-Allow-Origin":  "*",
			"Access-Control-Allow-Methods": "POST, OPTIONS",
			"Access-Control-Allow-Headers": "Content-Type",
		},
	}
	if v == nil {
		return resp
	}

	body, err := json.Marshal(v)
	if err != nil {
		logger.FromContextWithErr(ctx, err).Error("failed to encode response")
		resp.StatusCode = http.StatusInternalServerError
		body = []byte(`{"error":"Internal Server Error"}`)
	}
	resp.Body = string(body)
	return resp
}
