package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/tannerhall/tinychat/internal/models"
	"github.com/tannerhall/tinychat/internal/services"
)

// Provider streams a completion for a conversation as text chunks. A failed
// upstream call surfaces as *services.UpstreamError on the error side of the
// sequence.
type Provider interface {
	Stream(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// Defaults for the attribution options OpenRouter asks clients to send.
const (
	DefaultRefererURL = "http://localhost:3000"
	DefaultAppTitle   = "My-Chatbot"
)

// Config carries the options the chat proxy is constructed with.
type Config struct {
	// APIKey is the upstream credential. Requests fail with a 500 while it
	// is empty, unless CredentialName marks the provider as keyless.
	APIKey string
	// CredentialName is the environment variable the credential is expected
	// in; it names the credential in the configuration-missing response. An
	// empty name marks a provider that needs no credential at all.
	CredentialName string
	// RefererURL and AppTitle are forwarded to OpenRouter as the
	// HTTP-Referer and X-Title headers.
	RefererURL string
	AppTitle   string
}

// ApplyDefaults fills in the optional attribution fields.
func (c *Config) ApplyDefaults() {
	if c.RefererURL == "" {
		c.RefererURL = DefaultRefererURL
	}
	if c.AppTitle == "" {
		c.AppTitle = DefaultAppTitle
	}
}

// Client-facing response bodies. The client matches on these, so they are
// fixed strings rather than upstream passthroughs.
const (
	msgInvalidMessages   = "Invalid messages format"
	msgInvalidAPIKey     = "Invalid API key"
	msgRateLimitExceeded = "Rate limit exceeded"
	msgBadRequest        = "Bad request"
	unknownErrorMessage  = "Unknown error"
)

// statusClientClosedRequest is nginx's convention for a request the client
// abandoned; it only ever shows up in logs and metrics, never on the wire.
const statusClientClosedRequest = 499

const errLoggerKey = "err"

const maxRequestBody = 1 << 20

// Handler serves the chat proxy route. It validates the conversation
// payload, relays it to the completion provider, and streams the reply back
// as server-sent events without buffering. The handler keeps no state
// between requests.
type Handler struct {
	cfg      Config
	provider Provider
	metrics  *Metrics
	logger   *slog.Logger
}

// NewHandler creates the proxy handler around a provider.
func NewHandler(cfg Config, provider Provider, metrics *Metrics, logger *slog.Logger) *Handler {
	cfg.ApplyDefaults()
	return &Handler{
		cfg:      cfg,
		provider: provider,
		metrics:  metrics,
		logger:   logger.With(slog.String("module", "proxy")),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	status := http.StatusOK
	defer func() {
		h.metrics.RecordRequest(status, time.Since(start))
	}()

	var req models.ProxyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		status = http.StatusBadRequest
		h.reject(w, r, status, msgInvalidMessages, fmt.Errorf("decoding body: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		status = http.StatusBadRequest
		h.reject(w, r, status, msgInvalidMessages, err)
		return
	}

	if h.cfg.CredentialName != "" && h.cfg.APIKey == "" {
		status = http.StatusInternalServerError
		h.reject(w, r, status, fmt.Sprintf("Missing %s configuration", h.cfg.CredentialName),
			errors.New("upstream credential is not configured"))
		return
	}

	h.metrics.StreamStarted()
	defer h.metrics.StreamEnded()

	streaming := false
	for chunk, err := range h.provider.Stream(r.Context(), req.Messages) {
		if err != nil {
			if errors.Is(err, context.Canceled) || r.Context().Err() != nil {
				status = statusClientClosedRequest
				h.logger.Debug("Client disconnected mid-request",
					slog.String("request_id", requestIDFromContext(r.Context())),
				)
				return
			}

			mapped, msg := mapUpstreamError(err)
			status = mapped
			if !streaming {
				h.reject(w, r, mapped, msg, err)
				return
			}

			// The status line is already on the wire, so the failure is
			// reported inside the stream instead.
			h.logger.Error("Upstream failed mid-stream",
				slog.String("message", msg),
				slog.String(errLoggerKey, err.Error()),
				slog.String("request_id", requestIDFromContext(r.Context())),
			)
			writeSSEError(w, &models.ProxyError{
				HTTPStatus: mapped,
				Kind:       models.ErrorKindUpstream,
				Message:    msg,
			})
			return
		}

		if !streaming {
			writeSSEHeaders(w)
			streaming = true
		}
		if err := writeSSEChunk(w, chunk); err != nil {
			status = statusClientClosedRequest
			h.logger.Debug("Client went away while streaming",
				slog.String(errLoggerKey, err.Error()),
				slog.String("request_id", requestIDFromContext(r.Context())),
			)
			return
		}
	}

	// An empty completion still produces a well-formed stream.
	if !streaming {
		writeSSEHeaders(w)
	}
	writeSSEDone(w)
}

// reject ends the request with the mapped client-facing message; the
// underlying cause only ever reaches the server log.
func (h *Handler) reject(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	h.logger.Error("Rejecting chat request",
		slog.Int("status", status),
		slog.String("message", message),
		slog.String(errLoggerKey, err.Error()),
		slog.String("request_id", requestIDFromContext(r.Context())),
	)
	http.Error(w, message, status)
}

// mapUpstreamError translates a provider failure into the status and body
// the client sees. Auth, rate-limit, and bad-request statuses map
// one-to-one; everything else collapses into a 500 carrying the upstream
// message.
func mapUpstreamError(err error) (int, string) {
	var ue *services.UpstreamError
	if errors.As(err, &ue) {
		switch ue.StatusCode {
		case http.StatusUnauthorized:
			return http.StatusUnauthorized, msgInvalidAPIKey
		case http.StatusTooManyRequests:
			return http.StatusTooManyRequests, msgRateLimitExceeded
		case http.StatusBadRequest:
			return http.StatusBadRequest, msgBadRequest
		}
		msg := ue.Message
		if msg == "" {
			msg = unknownErrorMessage
		}
		return http.StatusInternalServerError, "Error: " + msg
	}

	msg := err.Error()
	if msg == "" {
		msg = unknownErrorMessage
	}
	return http.StatusInternalServerError, "Error: " + msg
}
