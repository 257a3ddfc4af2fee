package lambdaproto

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is the JSON object the guest sends via lambda_send_response,
// field-for-field as spec.md §3 defines it.
type Response struct {
	StatusCode      int                 `json:"statusCode"`
	Headers         map[string][]string `json:"headers"`
	Body            *string             `json:"body,omitempty"`
	IsBase64Encoded bool                `json:"isBase64Encoded"`
}

// ParseResponse decodes a guest-supplied JSON payload into a Response.
func ParseResponse(payload []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("lambdaproto: parse response: %w", err)
	}
	return &resp, nil
}

// WriteHTTP decodes resp onto w: status from StatusCode, every header
// value appended as a separate HTTP header, body base64-decoded if
// IsBase64Encoded else taken verbatim; an absent body is an empty body.
func (resp *Response) WriteHTTP(w http.ResponseWriter) error {
	header := w.Header()
	for name, values := range resp.Headers {
		for _, v := range values {
			header.Add(name, v)
		}
	}

	var body []byte
	if resp.Body != nil {
		decoded, err := DecodeBody(*resp.Body, resp.IsBase64Encoded)
		if err != nil {
			return fmt.Errorf("lambdaproto: decode response body: %w", err)
		}
		body = decoded
	}

	w.WriteHeader(resp.StatusCode)
	_, err := w.Write(body)
	return err
}
