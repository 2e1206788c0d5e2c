package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tannerhall/tinychat/internal/models"
)

// OpenAI streams chat completions from OpenAI, or from any API speaking the
// same protocol when a base URL is given.
type OpenAI struct {
	model  string
	params Params

	client *goopenai.Client

	logger *slog.Logger
}

// NewOpenAI creates an OpenAI provider. An empty baseURL targets the
// official API.
func NewOpenAI(apiKey, baseURL, model string, params Params, logger *slog.Logger) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return OpenAI{
		model:  model,
		params: params,
		client: goopenai.NewClientWithConfig(cfg),
		logger: logger.With(slog.String("module", "openai")),
	}
}

// Stream sends the conversation to OpenAI and yields the completion as text
// chunks. API failures surface as *UpstreamError; a canceled context ends
// the sequence silently.
func (o OpenAI) Stream(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := make([]goopenai.ChatCompletionMessage, len(messages))
		for i, msg := range messages {
			msgs[i] = goopenai.ChatCompletionMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			}
		}

		req := goopenai.ChatCompletionRequest{
			Model:       o.model,
			Messages:    msgs,
			Temperature: o.params.Temperature,
			MaxTokens:   o.params.MaxTokens,
			Stream:      true,
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream, err := o.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", openAIError(err))
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				yield("", openAIError(err))
				return
			}

			if len(response.Choices) == 0 {
				continue
			}
			if chunk := response.Choices[0].Delta.Content; chunk != "" {
				if !yield(chunk, nil) {
					return
				}
			}
		}
	}
}

// openAIError converts the SDK's error types into *UpstreamError so the
// proxy can map the status uniformly across providers.
func openAIError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return fmt.Errorf("error sending request: %w", err)
}
