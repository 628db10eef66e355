// Package upstream holds the HTTP clients for the external backend: auth
// issuance, order records, order history and the payment provider's hosted
// checkout sessions. This service never owns any of that state; it only calls
// these contracts and relays their answers.
package upstream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Error is a non-2xx answer from an upstream API, carrying the
// server-provided message when one was present.
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed (%d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed with status %d", e.Op, e.StatusCode)
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// upstreamError decodes the conventional {"error": "..."} body; an
// undecodable body yields an Error with no message and callers fall back to
// a generic one.
func upstreamError(op string, resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(raw, &body)

	message := body.Error
	if message == "" {
		message = body.Message
	}
	return &Error{Op: op, StatusCode: resp.StatusCode, Message: message}
}
