package services

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UpstreamError is a failure response from a completion provider. StatusCode
// carries the upstream HTTP status so the proxy can map it onto its own
// responses.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status %d: %s", e.StatusCode, e.Message)
}

// upstreamErrorFromResponse builds an UpstreamError from a non-2xx response
// body. OpenAI-compatible APIs wrap the message in an error object; anything
// else is used verbatim.
func upstreamErrorFromResponse(status int, body []byte) *UpstreamError {
	msg := strings.TrimSpace(string(body))

	var res struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &res); err == nil && res.Error.Message != "" {
		msg = res.Error.Message
	}

	return &UpstreamError{StatusCode: status, Message: msg}
}
