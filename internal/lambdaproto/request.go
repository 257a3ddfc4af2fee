// Package lambdaproto implements the event-driven Lambda invocation
// convention: HTTP request serialized as a JSON event, guest host
// imports to retrieve it and post a JSON response back, per spec.md
// §3 and §4.6.
package lambdaproto

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"unicode/utf8"
)

// Request is the JSON event handed to the guest, field-for-field as
// spec.md §3 defines it.
type Request struct {
	Resource              string              `json:"resource"`
	Path                  string              `json:"path"`
	HTTPMethod            string              `json:"httpMethod"`
	Headers               map[string][]string `json:"headers"`
	QueryStringParameters map[string][]string `json:"queryStringParameters"`
	PathParameters        *json.RawMessage    `json:"pathParameters"`
	StageVariables        *json.RawMessage    `json:"stageVariables"`
	Body                  *string             `json:"body"`
	IsBase64Encoded       bool                `json:"isBase64Encoded"`
}

// BuildRequest serializes r into a Lambda event. It assumes r.Body has
// already been fully read into body.
func BuildRequest(r *http.Request, body []byte) *Request {
	headers := make(map[string][]string, len(r.Header))
	for name, values := range r.Header {
		headers[name] = append([]string(nil), values...)
	}

	query := make(map[string][]string)
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		// Only the first occurrence of each key is kept, per spec.md
		// §4.6's documented limitation.
		if _, seen := query[key]; !seen {
			query[key] = []string{values[0]}
		}
	}

	bodyStr, isBase64 := encodeBody(body)
	path := r.URL.Path

	return &Request{
		Resource:              path,
		Path:                  path,
		HTTPMethod:            r.Method,
		Headers:               headers,
		QueryStringParameters: query,
		PathParameters:        nil,
		StageVariables:        nil,
		Body:                  &bodyStr,
		IsBase64Encoded:       isBase64,
	}
}

// encodeBody returns body as UTF-8 verbatim when valid, otherwise
// base64-encoded with isBase64Encoded = true, per spec.md §3/§4.6 and
// invariant 6 in §8.
func encodeBody(body []byte) (string, bool) {
	if utf8.Valid(body) {
		return string(body), false
	}
	return base64.StdEncoding.EncodeToString(body), true
}

// DecodeBody is the inverse of encodeBody: it reconstructs the original
// bytes from a body string and its isBase64Encoded flag.
func DecodeBody(body string, isBase64Encoded bool) ([]byte, error) {
	if !isBase64Encoded {
		return []byte(body), nil
	}
	return base64.StdEncoding.DecodeString(body)
}
