// Package douyindownloader fetches douyin videos and image posts through the
// local download service.
package douyindownloader

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/parleyhq/parley/pkg/models"
)

const (
	defaultEndpoint = "http://localhost:3211/api/download/douyin"
	defaultTimeout  = 30 * time.Second
	defaultRetries  = 2
)

// Config carries the connection settings for the download service.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Retries  int
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}

	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	if c.Retries <= 0 {
		c.Retries = defaultRetries
	}

	return c
}

// Downloader is the douyin-downloader tool. The download service answers
// with either a single video file or an audio plus image-set bundle.
type Downloader struct {
	client   *resty.Client
	endpoint string
	logger   *slog.Logger
}

func New(config Config, logger *slog.Logger) *Downloader {
	config = config.withDefaults()

	client := resty.New().
		SetTimeout(config.Timeout).
		SetRetryCount(config.Retries).
		SetRetryWaitTime(0).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Downloader{
		client:   client,
		endpoint: config.Endpoint,
		logger:   logger.With("module", "douyin_downloader"),
	}
}

func (d *Downloader) ID() string {
	return "douyin-downloader"
}

func (d *Downloader) Execute(ctx context.Context, params map[string]any, onProgress models.ProgressFunc) (map[string]any, error) {
	url, _ := params["douyin_url"].(string)
	if url == "" {
		return nil, fmt.Errorf("%w: douyin_url", ErrMissingParameter)
	}

	d.logger.InfoContext(ctx, "Downloading douyin content", "url", url)
	report(onProgress, 10, "Resolving douyin link...")

	var envelope map[string]any

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"url": url}).
		SetResult(&envelope).
		Post(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAPIFailure, err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d: %s", ErrAPIFailure, resp.StatusCode(), resp.String())
	}

	report(onProgress, 50, "Downloading content...")

	container := gabs.Wrap(envelope)

	if success, ok := container.Path("success").Data().(bool); !ok || !success {
		message, _ := container.Path("error").Data().(string)

		return nil, fmt.Errorf("%w: %s", ErrAPIFailure, message)
	}

	report(onProgress, 90, "Download complete, processing result...")

	output, err := buildOutput(container)
	if err != nil {
		return nil, err
	}

	output["originalUrl"] = url
	output["downloadedAt"] = time.Now().UTC().Format(time.RFC3339)

	report(onProgress, 100, "Douyin content downloaded")

	return output, nil
}

// buildOutput flattens the service result for the two supported content
// shapes: a plain video file and an audio plus image bundle.
func buildOutput(container *gabs.Container) (map[string]any, error) {
	contentType, _ := container.Path("type").Data().(string)
	result := container.Search("result")

	if result == nil {
		return nil, fmt.Errorf("%w: missing result", ErrAPIFailure)
	}

	switch contentType {
	case "video":
		return map[string]any{
			"type":       "video",
			"fileName":   result.Path("fileName").Data(),
			"filePath":   result.Path("filePath").Data(),
			"fileSize":   result.Path("fileSize").Data(),
			"duration":   result.Path("duration").Data(),
			"resolution": result.Path("resolution").Data(),
		}, nil
	case "audio_image_mix":
		return map[string]any{
			"type":       "audio_image_mix",
			"folderName": result.Path("folderName").Data(),
			"folderPath": result.Path("folderPath").Data(),
			"totalFiles": result.Path("totalFiles").Data(),
			"totalSize":  result.Path("totalSize").Data(),
			"audioInfo":  result.Path("audio").Data(),
			"imageCount": result.Path("imageCount").Data(),
			"images":     result.Path("images").Data(),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
	}
}

func report(onProgress models.ProgressFunc, percent int, message string) {
	if onProgress == nil {
		return
	}

	onProgress(models.StepProgress{Percent: percent, Message: message})
}
