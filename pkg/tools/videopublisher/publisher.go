// Package videopublisher pushes a downloaded or locally produced video to a
// social platform account through the publish service.
package videopublisher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/parleyhq/parley/pkg/models"
)

const (
	defaultEndpoint = "http://127.0.0.1:5001/api/upload/simple"
	defaultTimeout  = 60 * time.Second
)

// Config carries the connection settings for the publish service.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}

	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	return c
}

// ContentSource generates title and description copy when the caller asks
// for auto_generate and did not supply them. The content-generator tool
// satisfies this.
type ContentSource interface {
	Execute(ctx context.Context, params map[string]any, onProgress models.ProgressFunc) (map[string]any, error)
}

// Publisher is the video-publisher tool.
type Publisher struct {
	client    *resty.Client
	endpoint  string
	generator ContentSource
	logger    *slog.Logger
}

func New(config Config, generator ContentSource, logger *slog.Logger) *Publisher {
	config = config.withDefaults()

	return &Publisher{
		client:    resty.New().SetTimeout(config.Timeout),
		endpoint:  config.Endpoint,
		generator: generator,
		logger:    logger.With("module", "video_publisher"),
	}
}

func (p *Publisher) ID() string {
	return "video-publisher"
}

type publishRequest struct {
	Platform    string `json:"platform"`
	Account     string `json:"account"`
	VideoFile   string `json:"video_file"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (p *Publisher) Execute(ctx context.Context, params map[string]any, onProgress models.ProgressFunc) (map[string]any, error) {
	request := publishRequest{
		Platform:    stringParam(params, "platform"),
		Account:     stringParam(params, "account"),
		VideoFile:   stringParam(params, "video_file"),
		Title:       stringParam(params, "title"),
		Description: stringParam(params, "description"),
	}

	autoGenerate, _ := params["auto_generate"].(bool)

	if autoGenerate && (request.Title == "" || request.Description == "") {
		report(onProgress, 20, "Generating title and description...")

		title, description, err := p.generateCopy(ctx)
		if err != nil {
			return nil, err
		}

		if request.Title == "" {
			request.Title = title
		}

		if request.Description == "" {
			request.Description = description
		}

		report(onProgress, 50, "Generated title: "+request.Title)
	}

	p.logger.InfoContext(ctx, "Publishing video",
		"platform", request.Platform, "account", request.Account, "video_file", request.VideoFile)
	report(onProgress, 70, "Publishing video...")

	var publishResult map[string]any

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request).
		SetResult(&publishResult).
		Post(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAPIFailure, err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d: %s", ErrAPIFailure, resp.StatusCode(), resp.String())
	}

	report(onProgress, 100, "Video published")

	return map[string]any{
		"title":          request.Title,
		"description":    request.Description,
		"platform":       request.Platform,
		"account":        request.Account,
		"publish_result": publishResult,
		"publishedAt":    time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (p *Publisher) generateCopy(ctx context.Context) (string, string, error) {
	if p.generator == nil {
		return "", "", ErrNoContentSource
	}

	output, err := p.generator.Execute(ctx, map[string]any{
		"topic":  "video_publish_auto",
		"style":  "casual",
		"length": "short",
	}, nil)
	if err != nil {
		return "", "", fmt.Errorf("generating publish copy: %w", err)
	}

	title, _ := output["title"].(string)
	description, _ := output["description"].(string)

	return title, description, nil
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)

	return value
}

func report(onProgress models.ProgressFunc, percent int, message string) {
	if onProgress == nil {
		return
	}

	onProgress(models.StepProgress{Percent: percent, Message: message})
}
