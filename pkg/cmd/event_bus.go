// Package cmd holds the factories the binary wires its components with.
package cmd

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/parleyhq/parley/pkg/eventbus"
)

// NewEventBus creates the in-process lifecycle event bus. Session state is
// single-process by design, so the bus is backed by watermill's in-memory
// pubsub rather than a broker.
func NewEventBus(logger *slog.Logger) eventbus.EventBus {
	return eventbus.NewGoChannelEventBus(watermill.NewSlogLogger(logger))
}
