package middleware

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
)

const redacted = "[REDACTED]"

// redact returns body with every credential field masked. Bodies that
// cannot be parsed are not recorded.
func redact(contentType string, body []byte) []byte {
	if len(body) == 0 {
		return body
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return unparsed(body)
		}
		for k := range values {
			if isSecretField(k) {
				values[k] = []string{redacted}
			}
		}
		return []byte(values.Encode())
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return unparsed(body)
	}
	out, err := json.Marshal(redactValue(doc))
	if err != nil {
		return unparsed(body)
	}
	return out
}

func redactValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, inner := range v {
			if isSecretField(k) {
				v[k] = redacted
				continue
			}
			v[k] = redactValue(inner)
		}
		return v
	case []any:
		for i, inner := range v {
			v[i] = redactValue(inner)
		}
		return v
	default:
		return v
	}
}

func unparsed(body []byte) []byte {
	return []byte(fmt.Sprintf("(%d bytes, not recorded)", len(body)))
}
