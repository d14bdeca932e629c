package cmd

import (
	"log/slog"
	"time"

	"github.com/parleyhq/parley/pkg/oracle"
	"github.com/parleyhq/parley/pkg/registry"
	"github.com/parleyhq/parley/pkg/tools/contentgenerator"
	"github.com/parleyhq/parley/pkg/tools/douyindownloader"
	"github.com/parleyhq/parley/pkg/tools/videopublisher"
)

// ToolsConfig carries the per-tool service endpoints.
type ToolsConfig struct {
	DownloaderEndpoint string
	DownloaderTimeout  time.Duration
	PublisherEndpoint  string
	PublisherTimeout   time.Duration
}

// NewToolRegistry registers every tool this deployment carries. A duplicate
// registration here is a programming error and fails startup.
func NewToolRegistry(config ToolsConfig, oracleClient oracle.Client, logger *slog.Logger) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger)

	generator := contentgenerator.New(oracleClient, logger)

	downloader := douyindownloader.New(douyindownloader.Config{
		Endpoint: config.DownloaderEndpoint,
		Timeout:  config.DownloaderTimeout,
	}, logger)

	publisher := videopublisher.New(videopublisher.Config{
		Endpoint: config.PublisherEndpoint,
		Timeout:  config.PublisherTimeout,
	}, generator, logger)

	for _, tool := range []registry.Tool{downloader, generator, publisher} {
		if err := reg.Register(tool); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
