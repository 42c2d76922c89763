package dispatch

import (
	"strings"

	"github.com/pure-golang/mailmerge/placeholder"
)

// Preview is what a row would be sent as.
type Preview struct {
	RowIndex   int      `json:"rowIndex"`
	Recipient  string   `json:"recipient,omitempty"`
	Skipped    bool     `json:"skipped,omitempty"`
	HTML       string   `json:"html"`
	Text       string   `json:"text"`
	Unresolved []string `json:"unresolved,omitempty"` // placeholders left verbatim
}

// Preview renders every row without touching the transport. Only the email
// column is checked; the sender may be empty.
func (e *Engine) Preview(req Request) ([]Preview, error) {
	if len(req.Rows) == 0 {
		return []Preview{}, nil
	}
	if err := validateColumn(req); err != nil {
		return nil, err
	}

	previews := make([]Preview, len(req.Rows))
	for i, row := range req.Rows {
		html := placeholder.Render(req.Template, row)
		recipient := strings.TrimSpace(row[req.EmailColumn])

		previews[i] = Preview{
			RowIndex:   i,
			Recipient:  recipient,
			Skipped:    recipient == "",
			HTML:       html,
			Text:       e.converter.Convert(html),
			Unresolved: placeholder.Unresolved(req.Template, row),
		}
	}
	return previews, nil
}
