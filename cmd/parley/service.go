package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/parleyhq/parley/pkg/agent"
	"github.com/parleyhq/parley/pkg/catalog"
	"github.com/parleyhq/parley/pkg/cmd"
	"github.com/parleyhq/parley/pkg/eventbus"
	"github.com/parleyhq/parley/pkg/events"
	"github.com/parleyhq/parley/pkg/executor"
	"github.com/parleyhq/parley/pkg/gateway"
	"github.com/parleyhq/parley/pkg/oracle"
	"github.com/parleyhq/parley/pkg/session"
	"github.com/parleyhq/parley/pkg/synthesizer"
	"github.com/parleyhq/parley/pkg/web"
)

const shutdownTimeout = 15 * time.Second

// Service owns every long-lived component of the process.
type Service struct {
	logger   *slog.Logger
	store    *session.Store
	eventBus eventbus.EventBus
	gateway  *gateway.Server
	webApp   *fiber.App
	httpPort int
	wsPort   int
}

func NewService(command *cli.Command, logger *slog.Logger) (*Service, error) {
	cat, err := catalog.New(logger)
	if err != nil {
		return nil, fmt.Errorf("loading workflow catalog: %w", err)
	}

	oracleClient := oracle.NewHTTPClient(oracle.Config{
		BaseURL:  command.String("oracle-url"),
		APIKey:   command.String("oracle-key"),
		Provider: command.String("oracle-provider"),
	}, logger)

	reg, err := cmd.NewToolRegistry(cmd.ToolsConfig{
		DownloaderEndpoint: command.String("downloader-endpoint"),
		PublisherEndpoint:  command.String("publisher-endpoint"),
	}, oracleClient, logger)
	if err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}

	eventBus := cmd.NewEventBus(logger)

	store := session.NewStore(session.Config{
		MaxSessions: command.Int("session-capacity"),
		IdleTimeout: command.Duration("session-timeout"),
	}, eventBus, logger)

	conductor := agent.New(store, cat,
		synthesizer.New(oracleClient, logger),
		executor.NewExecutor(reg, command.Duration("step-timeout"), logger),
		eventBus, logger)

	handlers := web.NewAPIHandlers(store, cat, validator.New(validator.WithRequiredStructEnabled()), logger)

	return &Service{
		logger:   logger,
		store:    store,
		eventBus: eventBus,
		gateway:  gateway.NewServer(store, conductor, logger),
		webApp:   web.NewApp(handlers),
		httpPort: command.Int("http-port"),
		wsPort:   command.Int("ws-port"),
	}, nil
}

// Run starts the gateway, the management API and the background jobs, then
// blocks until a shutdown signal arrives.
func (s *Service) Run(ctx context.Context) error {
	if err := s.store.StartSweeper(); err != nil {
		return fmt.Errorf("starting session sweeper: %w", err)
	}

	if err := s.subscribeLifecycle(ctx); err != nil {
		return fmt.Errorf("subscribing to lifecycle events: %w", err)
	}

	errs := make(chan error, 2)

	go func() {
		errs <- s.gateway.Start(fmt.Sprintf(":%d", s.wsPort))
	}()

	go func() {
		errs <- s.webApp.Listen(fmt.Sprintf(":%d", s.httpPort))
	}()

	s.logger.InfoContext(ctx, "Parley started", "http_port", s.httpPort, "ws_port", s.wsPort)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		s.logger.InfoContext(ctx, "Shutting down", "signal", sig.String())
	case err := <-errs:
		if err != nil {
			s.logger.ErrorContext(ctx, "Server failed", "error", err)
		}
	}

	return s.shutdown()
}

// subscribeLifecycle logs workflow execution outcomes from the bus, keeping
// an audit trail independent of any single connection.
func (s *Service) subscribeLifecycle(ctx context.Context) error {
	if err := s.eventBus.Handle(events.WorkflowExecutionCompletedEvent, func(ctx context.Context, event any) error {
		if completed, ok := event.(*events.WorkflowExecutionCompleted); ok {
			s.logger.InfoContext(ctx, "Workflow completed",
				"session_id", completed.SessionID,
				"workflow_id", completed.WorkflowID,
				"duration", completed.Duration)
		}

		return nil
	}); err != nil {
		return err
	}

	if err := s.eventBus.Handle(events.WorkflowExecutionFailedEvent, func(ctx context.Context, event any) error {
		if failed, ok := event.(*events.WorkflowExecutionFailed); ok {
			s.logger.WarnContext(ctx, "Workflow step failed",
				"session_id", failed.SessionID,
				"workflow_id", failed.WorkflowID,
				"step_id", failed.StepID,
				"error", failed.Error)
		}

		return nil
	}); err != nil {
		return err
	}

	return s.eventBus.Subscribe(ctx)
}

func (s *Service) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.store.StopSweeper()

	if err := s.gateway.Shutdown(ctx); err != nil {
		s.logger.Error("Gateway shutdown failed", "error", err)
	}

	if err := s.webApp.ShutdownWithContext(ctx); err != nil {
		s.logger.Error("API shutdown failed", "error", err)
	}

	if err := s.eventBus.Close(); err != nil {
		s.logger.Error("Event bus close failed", "error", err)
	}

	s.logger.Info("Shutdown complete")

	return nil
}
