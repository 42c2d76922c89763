package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailmerge/dispatch"
	"github.com/pure-golang/mailmerge/placeholder"
)

// ErrInvalidRequest matches every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

type requestError struct {
	reason string
}

func (e *requestError) Error() string { return e.reason }

func (e *requestError) Is(target error) bool { return target == ErrInvalidRequest }

func invalidf(format string, args ...any) error {
	return &requestError{reason: fmt.Sprintf(format, args...)}
}

// EmailRequest is the body of POST /email and POST /preview.
type EmailRequest struct {
	FromName     string            `json:"fromName"`
	FromEmail    string            `json:"fromEmail"`
	FromPassword string            `json:"fromPassword"`
	Subject      string            `json:"subject"`
	HTML         string            `json:"html"`
	CSVData      []placeholder.Row `json:"csvData"`
	EmailCol     string            `json:"emailCol"`
}

// LogValue hides the password.
func (r EmailRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("fromName", r.FromName),
		slog.String("fromEmail", r.FromEmail),
		slog.String("subject", r.Subject),
		slog.Int("rows", len(r.CSVData)),
		slog.String("emailCol", r.EmailCol),
	)
}

// wireRequest accepts csvData cells of any scalar JSON type.
type wireRequest struct {
	EmailRequest
	CSVData []map[string]any `json:"csvData"`
}

// DecodeEmailRequest reads a JSON EmailRequest. Non-string cells are
// converted to their text form and null cells become empty.
func DecodeEmailRequest(r io.Reader) (EmailRequest, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var w wireRequest
	if err := dec.Decode(&w); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return EmailRequest{}, invalidf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return EmailRequest{}, invalidf("malformed JSON body: %v", err)
	}

	req := w.EmailRequest
	if w.CSVData != nil {
		req.CSVData = make([]placeholder.Row, len(w.CSVData))
		for i, raw := range w.CSVData {
			row := make(placeholder.Row, len(raw))
			for k, v := range raw {
				s, err := cell(v)
				if err != nil {
					return EmailRequest{}, invalidf("csvData[%d].%s: %v", i, k, err)
				}
				row[k] = s
			}
			req.CSVData[i] = row
		}
	}
	return req, nil
}

func cell(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return fmt.Sprint(v), nil
	default:
		return "", errors.New("cell must be a scalar")
	}
}

// ToDispatch validates r as a send request. An empty fromPassword sends
// without SMTP authentication.
func (r EmailRequest) ToDispatch() (dispatch.Request, error) {
	if r.CSVData == nil {
		return dispatch.Request{}, invalidf("csvData is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(r.FromEmail)); err != nil {
		return dispatch.Request{}, invalidf("fromEmail is not a valid address")
	}
	return r.dispatchRequest(), nil
}

// ToPreview validates r as a preview request. No sender is needed.
func (r EmailRequest) ToPreview() (dispatch.Request, error) {
	if r.CSVData == nil {
		return dispatch.Request{}, invalidf("csvData is required")
	}
	return r.dispatchRequest(), nil
}

func (r EmailRequest) dispatchRequest() dispatch.Request {
	return dispatch.Request{
		Template:    r.HTML,
		Subject:     r.Subject,
		Rows:        r.CSVData,
		EmailColumn: r.EmailCol,
		From: dispatch.Identity{
			Name:     r.FromName,
			Address:  strings.TrimSpace(r.FromEmail),
			Password: r.FromPassword,
		},
	}
}
