package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/parleyhq/parley/pkg/log"
)

func main() {
	logger := log.WithModule("parley")

	command := &cli.Command{
		Name:                  "parley",
		Usage:                 "Conversational task orchestrator for douyin content workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "http-port",
				Usage:   "Port for the management HTTP API",
				Value:   3213,
				Sources: cli.EnvVars("PARLEY_HTTP_PORT"),
			},
			&cli.IntFlag{
				Name:    "ws-port",
				Usage:   "Port for the conversational websocket gateway",
				Value:   3214,
				Sources: cli.EnvVars("PARLEY_WS_PORT"),
			},
			&cli.StringFlag{
				Name:    "oracle-url",
				Usage:   "Base URL of the language-understanding service",
				Value:   "http://localhost:3212/api/llm",
				Sources: cli.EnvVars("LLM_API_URL"),
			},
			&cli.StringFlag{
				Name:    "oracle-key",
				Usage:   "API key for the language-understanding service",
				Value:   "test1",
				Sources: cli.EnvVars("LLM_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "oracle-provider",
				Usage:   "Provider routed to by the language-understanding service",
				Value:   "claude",
				Sources: cli.EnvVars("LLM_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "downloader-endpoint",
				Usage:   "Endpoint of the douyin download service",
				Sources: cli.EnvVars("DOUYIN_DOWNLOADER_ENDPOINT"),
			},
			&cli.StringFlag{
				Name:    "publisher-endpoint",
				Usage:   "Endpoint of the video publish service",
				Sources: cli.EnvVars("VIDEO_PUBLISHER_ENDPOINT"),
			},
			&cli.IntFlag{
				Name:    "session-capacity",
				Usage:   "Maximum number of concurrently held sessions",
				Value:   100,
				Sources: cli.EnvVars("SESSION_CAPACITY"),
			},
			&cli.DurationFlag{
				Name:    "session-timeout",
				Usage:   "Idle timeout after which sessions are evicted",
				Sources: cli.EnvVars("SESSION_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "step-timeout",
				Usage:   "Timeout for a single workflow step invocation",
				Sources: cli.EnvVars("STEP_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing parley")

			service, err := NewService(command, logger)
			if err != nil {
				return err
			}

			return service.Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}
