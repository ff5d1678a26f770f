package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

var _ AICompleter = new(OpenAICompleter)

// OpenAICompleter answers ai nodes with the chat completion API.
type OpenAICompleter struct {
	client         *openai.Client
	defaultModel   string
	requestTimeout time.Duration
}

func NewOpenAICompleter(apiKey string, baseURL string, defaultModel string, requestTimeout time.Duration) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if defaultModel == "" {
		defaultModel = openai.GPT3Dot5Turbo
	}
	return &OpenAICompleter{
		client:         openai.NewClientWithConfig(cfg),
		defaultModel:   defaultModel,
		requestTimeout: requestTimeout,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, model string, prompt string) (string, error) {
	if model == "" {
		model = c.defaultModel
	}
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", Error{Retryable: true, Err: errors.New("no choices returned from completion API")}
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return withCause(ClassifyStatus(apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return withCause(ClassifyStatus(reqErr.HTTPStatusCode), err)
	}
	return Error{Retryable: !errors.Is(err, context.Canceled), Err: fmt.Errorf("completion request failed: %w", err)}
}

func withCause(classified error, cause error) error {
	var gErr Error
	if errors.As(classified, &gErr) {
		gErr.Err = cause
		return gErr
	}
	// a 2xx/3xx status with an error body is still a failure
	return Error{Retryable: true, Err: cause}
}
