// Package llm implements the planner, validator and summarizer the agent
// workflow consults, backed by any OpenAI-compatible chat completions
// endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/fyrsmithlabs/tripagent/internal/config"
)

// ErrEmptyCompletion is returned when the endpoint answers without choices
// or with blank content.
var ErrEmptyCompletion = errors.New("empty completion")

// Completer sends one system+user exchange and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
}

// Client is a chat completions client for one model.
type Client struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewClient creates a client from cfg. Extra request options are appended
// after the configured ones.
func NewClient(cfg config.LLMConfig, opts ...option.RequestOption) (*Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	if !cfg.APIKey.IsSet() && cfg.BaseURL == "" {
		return nil, errors.New("llm api key or base url is required")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey.Value())),
	}
	if trimmed := strings.TrimRight(cfg.BaseURL, "/"); trimmed != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout.Duration()))
	}
	reqOpts = append(reqOpts, opts...)

	return &Client{
		client:      openai.NewClient(reqOpts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Complete implements Completer. With jsonMode the endpoint is asked for a
// JSON object response.
func (c *Client) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.temperature),
	}
	if jsonMode {
		obj := shared.NewResponseFormatJSONObjectParam()
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &obj}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// IsPermanent reports whether err is an endpoint rejection that will not
// succeed on retry, such as bad credentials or an unknown model.
func IsPermanent(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
