package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/tannerhall/tinychat/internal/models"
)

// Ollama streams chat completions from a local Ollama server. It needs no
// credential, so the proxy's configuration check is skipped for it.
type Ollama struct {
	host   string
	model  string
	params Params

	client *api.Client
}

// NewOllama creates an Ollama provider. The host parameter should be a valid
// URL pointing to an Ollama server. If the provided host URL is invalid, the
// function will panic.
func NewOllama(host, model string, params Params) Ollama {
	u, err := url.Parse(host)
	if err != nil {
		panic(err)
	}

	return Ollama{
		host:   host,
		model:  model,
		params: params,
		client: api.NewClient(u, &http.Client{}),
	}
}

// Stream sends the conversation to the Ollama server and yields the
// completion as text chunks. Server failures surface as *UpstreamError; a
// canceled context ends the sequence silently.
func (o Ollama) Stream(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := make([]api.Message, len(messages))
		for i, msg := range messages {
			msgs[i] = api.Message{
				Role:    string(msg.Role),
				Content: msg.Content,
			}
		}

		t := true
		req := api.ChatRequest{
			Model:    o.model,
			Messages: msgs,
			Stream:   &t,
			Options: map[string]any{
				"temperature": o.params.Temperature,
				"num_predict": o.params.MaxTokens,
			},
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// The callback can fire once more after the consumer stops, so the
		// stopped flag keeps yield from being called again.
		stopped := false
		if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if stopped || res.Message.Content == "" {
				return nil
			}
			if !yield(res.Message.Content, nil) {
				stopped = true
				cancel()
			}
			return nil
		}); err != nil {
			if stopped || errors.Is(err, context.Canceled) {
				return
			}
			yield("", ollamaError(err))
		}
	}
}

// ollamaError converts the SDK's status errors into *UpstreamError so the
// proxy can map the status uniformly across providers.
func ollamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		msg := statusErr.ErrorMessage
		if msg == "" {
			msg = statusErr.Status
		}
		return &UpstreamError{StatusCode: statusErr.StatusCode, Message: msg}
	}
	return fmt.Errorf("error sending request: %w", err)
}
