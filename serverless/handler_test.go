package serverless

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailmerge/api"
	"github.com/pure-golang/mailmerge/dispatch"
	"github.com/pure-golang/mailmerge/mail/noop"
)

const emailBody = `{
	"fromName": "UNSW DataSoc",
	"fromEmail": "hello@example.com",
	"fromPassword": "app-password",
	"subject": "Hello",
	"html": "<p>Hello {{name}}</p>",
	"csvData": [{"name": "Ada", "email": "ada@example.com"}, {"name": "Bob", "email": " "}],
	"emailCol": "email"
}`

func newHandler() (*Handler, *noop.Dialer) {
	d := noop.NewDialer()
	return NewHandler(dispatch.New(d, nil, dispatch.Config{})), d
}

func TestHandler_Email(t *testing.T) {
	h, d := newHandler()

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/prod/email",
		Body:       emailBody,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])

	var body api.EmailResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "sent", body.Message)
	assert.Equal(t, dispatch.Summary{Total: 2, Sent: 1, Skipped: 1}, *body.Summary)
	assert.EqualValues(t, 1, d.Sent())
	assert.NotContains(t, resp.Body, "app-password")
}

func TestHandler_EmailBase64(t *testing.T) {
	h, d := newHandler()

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Path:            "/email",
		Body:            base64.StdEncoding.EncodeToString([]byte(emailBody)),
		IsBase64Encoded: true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, d.Sent())
}

func TestHandler_Preview(t *testing.T) {
	h, d := newHandler()

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/preview",
		Body:       emailBody,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body api.PreviewResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, []string{"name"}, body.Placeholders)
	require.Len(t, body.Rows, 2)
	assert.Equal(t, "<p>Hello Ada</p>", body.Rows[0].HTML)
	assert.True(t, body.Rows[1].Skipped)
	assert.Zero(t, d.Sent())
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		req        events.APIGatewayProxyRequest
		wantStatus int
		wantErr    string
	}{
		{
			name:       "unknown path",
			req:        events.APIGatewayProxyRequest{HTTPMethod: http.MethodPost, Path: "/other"},
			wantStatus: http.StatusNotFound,
			wantErr:    "not found",
		},
		{
			name:       "wrong method",
			req:        events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/email"},
			wantStatus: http.StatusNotFound,
			wantErr:    "not found",
		},
		{
			name:       "malformed body",
			req:        events.APIGatewayProxyRequest{HTTPMethod: http.MethodPost, Path: "/email", Body: "{"},
			wantStatus: http.StatusBadRequest,
			wantErr:    "malformed JSON body",
		},
		{
			name:       "bad base64",
			req:        events.APIGatewayProxyRequest{HTTPMethod: http.MethodPost, Path: "/email", Body: "!!", IsBase64Encoded: true},
			wantStatus: http.StatusBadRequest,
			wantErr:    "body is not valid base64",
		},
		{
			name: "missing column",
			req: events.APIGatewayProxyRequest{
				HTTPMethod: http.MethodPost,
				Path:       "/email",
				Body:       `{"fromEmail":"hello@example.com","fromPassword":"x","csvData":[{"a":"b"}],"emailCol":"email"}`,
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    `email column "email" is not present in the dataset`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, d := newHandler()

			resp, err := h.Handle(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body api.ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
			assert.Contains(t, body.Error, tt.wantErr)
			assert.Zero(t, d.Sent())
		})
	}
}

func TestHandler_Options(t *testing.T) {
	h, _ := newHandler()

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodOptions, Path: "/email"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	assert.Empty(t, resp.Body)
}
