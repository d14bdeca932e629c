// Package oracle wraps the external language-understanding service. The
// service is treated as unreliable: it may time out, fail, or answer with
// free text that only loosely resembles the requested structure.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultRetries  = 2 // retries after the first attempt, immediate, no backoff
	defaultProvider = "claude"
)

// Client produces a free-text completion for a prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config carries the connection settings for the oracle HTTP API.
type Config struct {
	BaseURL  string `validate:"required,url"`
	APIKey   string `validate:"required"`
	Provider string
	Timeout  time.Duration
	Retries  int
}

// HTTPClient calls the oracle chat endpoint:
// POST {base}/{key}/chat/{provider} with {prompt, newChat, stream}.
type HTTPClient struct {
	client   *resty.Client
	config   Config
	endpoint string
	logger   *slog.Logger
}

type completionRequest struct {
	Prompt  string `json:"prompt"`
	NewChat bool   `json:"newChat"`
	Stream  bool   `json:"stream"`
}

func NewHTTPClient(config Config, logger *slog.Logger) *HTTPClient {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	if config.Retries <= 0 {
		config.Retries = defaultRetries
	}

	if config.Provider == "" {
		config.Provider = defaultProvider
	}

	client := resty.New().
		SetTimeout(config.Timeout).
		SetRetryCount(config.Retries).
		SetRetryWaitTime(0).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &HTTPClient{
		client:   client,
		config:   config,
		endpoint: fmt.Sprintf("%s/%s/chat/%s", config.BaseURL, config.APIKey, config.Provider),
		logger:   logger.With("module", "oracle"),
	}
}

// Complete sends the prompt and returns the raw completion text. The oracle's
// envelope may carry the completion either as a plain string or as a
// conversation object; in the latter case the last assistant message wins.
func (c *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	var envelope map[string]any

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(completionRequest{Prompt: prompt, NewChat: false, Stream: false}).
		SetResult(&envelope).
		Post(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}

	container := gabs.Wrap(envelope)

	if success, ok := container.Path("success").Data().(bool); ok && !success {
		message, _ := container.Path("error").Data().(string)

		return "", fmt.Errorf("%w: %s", ErrAPIFailure, message)
	}

	text := extractResponseText(container.Search("response"))
	if text == "" {
		return "", ErrEmptyResponse
	}

	c.logger.DebugContext(ctx, "Oracle completion received", "length", len(text))

	return text, nil
}

// extractResponseText digs the completion out of the response field. A
// conversation-shaped response holds messages with roles; the completion is
// the content of the last assistant message.
func extractResponseText(response *gabs.Container) string {
	if response == nil {
		return ""
	}

	if text, ok := response.Data().(string); ok {
		return text
	}

	messages := response.Search("messages")
	if messages == nil {
		return response.String()
	}

	children := messages.Children()
	for i := len(children) - 1; i >= 0; i-- {
		role, _ := children[i].Path("role").Data().(string)
		if role != "assistant" {
			continue
		}

		if content, ok := children[i].Path("content").Data().(string); ok && content != "" {
			return content
		}
	}

	return response.String()
}
