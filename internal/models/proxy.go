package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ProxyRequest is the body of a chat proxy call: the full conversation
// history, oldest message first.
type ProxyRequest struct {
	Messages []Message `json:"messages"`
}

// Validate checks the invariants the proxy enforces before talking to the
// upstream: at least one message, every role recognized.
func (p ProxyRequest) Validate() error {
	if len(p.Messages) == 0 {
		return errors.New("messages must be a non-empty array")
	}
	for i, msg := range p.Messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("message %d has invalid role %q", i, msg.Role)
		}
	}
	return nil
}

// ErrorKind classifies a proxy failure for the client.
type ErrorKind string

const (
	ErrorKindBadRequest          ErrorKind = "bad_request"
	ErrorKindUnauthorized        ErrorKind = "unauthorized"
	ErrorKindRateLimited         ErrorKind = "rate_limited"
	ErrorKindServerMisconfigured ErrorKind = "server_misconfigured"
	ErrorKindUpstream            ErrorKind = "upstream"
	ErrorKindUnknown             ErrorKind = "unknown"
)

// ProxyError is the structured form of a chat proxy failure. HTTPStatus is
// zero when no response was received at all.
type ProxyError struct {
	HTTPStatus int       `json:"httpStatus"`
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
}

func (e *ProxyError) Error() string {
	if e.HTTPStatus == 0 {
		return fmt.Sprintf("proxy error (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("proxy error %d (%s): %s", e.HTTPStatus, e.Kind, e.Message)
}

// KindForStatus classifies a non-2xx proxy response. A 500 carrying the
// configuration-missing body is distinguished from other server errors,
// which stay ErrorKindUnknown.
func KindForStatus(status int, body string) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return ErrorKindBadRequest
	case http.StatusUnauthorized:
		return ErrorKindUnauthorized
	case http.StatusTooManyRequests:
		return ErrorKindRateLimited
	case http.StatusInternalServerError:
		if strings.HasPrefix(body, "Missing ") && strings.HasSuffix(body, " configuration") {
			return ErrorKindServerMisconfigured
		}
		return ErrorKindUnknown
	default:
		return ErrorKindUnknown
	}
}
