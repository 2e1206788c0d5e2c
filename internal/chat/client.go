package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tannerhall/tinychat/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Client posts conversations to the chat proxy route and exposes the
// streamed reply as a chunk sequence.
type Client struct {
	endpoint string

	client *http.Client

	logger *slog.Logger
}

// NewClient creates a client for the proxy at the given endpoint URL.
func NewClient(endpoint string, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{},
		logger:   logger.With(slog.String("module", "chatclient")),
	}
}

// Stream posts the history to the proxy and yields reply chunks. Failures
// surface as a single *models.ProxyError on the error side of the sequence;
// a canceled context ends the sequence silently.
func (c *Client) Stream(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		body, err := json.Marshal(models.ProxyRequest{Messages: messages})
		if err != nil {
			yield("", fmt.Errorf("error marshaling request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
		if err != nil {
			yield("", fmt.Errorf("error creating request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", &models.ProxyError{
				Kind:    models.ErrorKindUnknown,
				Message: err.Error(),
			})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield("", c.responseError(resp))
			return
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				yield("", &models.ProxyError{
					Kind:    models.ErrorKindUnknown,
					Message: err.Error(),
				})
				return
			}

			switch ev.Type {
			case "error":
				yield("", c.streamError(ev.Data))
				return
			default:
				if ev.Data == "[DONE]" {
					return
				}
				if ev.Data == "" {
					continue
				}
				if !yield(ev.Data, nil) {
					return
				}
			}
		}
	}
}

// responseError classifies a non-200 proxy response by its status and body.
func (c *Client) responseError(resp *http.Response) *models.ProxyError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &models.ProxyError{
		HTTPStatus: resp.StatusCode,
		Kind:       models.KindForStatus(resp.StatusCode, msg),
		Message:    msg,
	}
}

// streamError decodes an error event the proxy reported mid-stream.
func (c *Client) streamError(data string) *models.ProxyError {
	var perr models.ProxyError
	if err := json.Unmarshal([]byte(data), &perr); err != nil {
		c.logger.Error("Failed to decode stream error event",
			slog.String("data", data),
			slog.String("err", err.Error()),
		)
		return &models.ProxyError{
			HTTPStatus: http.StatusInternalServerError,
			Kind:       models.ErrorKindUpstream,
			Message:    data,
		}
	}
	return &perr
}
