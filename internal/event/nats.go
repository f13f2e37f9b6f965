// internal/event/nats.go
// Package event provides the fire-and-forget sink feeding the asynchronous
// write/aggregation pipeline. View and reaction events are published to
// NATS JetStream; the pipeline owns persistence, retry, and aggregation,
// so handlers never block the response path on durability.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/model"
)

// Publisher defines the event publishing operations required by the
// gateway's mutation handlers.
type Publisher interface {
	// View events
	PublishView(ctx context.Context, view model.ViewEvent) error

	// Reaction events
	PublishReactionChanged(ctx context.Context, reaction model.ReactionEvent) error

	// Close closes the publisher connection
	Close() error
}

// noop is a no-op implementation of Publisher for when NATS is not
// configured. It allows the gateway to function without the aggregation
// pipeline attached, at the cost of dropped counters.
type noop struct{}

// Close implements Publisher.
func (n *noop) Close() error { return nil }

// PublishView implements Publisher. It does nothing and returns nil.
func (n *noop) PublishView(ctx context.Context, view model.ViewEvent) error {
	return nil
}

// PublishReactionChanged implements Publisher. It does nothing and returns nil.
func (n *noop) PublishReactionChanged(ctx context.Context, reaction model.ReactionEvent) error {
	return nil
}

// natsPub is the NATS JetStream implementation of Publisher.
type natsPub struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// NewPublisher creates a publisher for the given NATS URL. An empty URL or
// a failed connection yields the no-op publisher: the gateway keeps
// serving reads and the pipeline catches up when reattached.
func NewPublisher(url string) Publisher {
	if url == "" {
		return &noop{}
	}

	nc, err := nats.Connect(url)
	if err != nil {
		slog.Warn("NATS connect failed, using noop event publisher", "error", err)
		return &noop{}
	}

	js, err := nc.JetStream()
	if err != nil {
		slog.Warn("NATS JetStream context creation failed, using noop event publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	if err := initStreams(js); err != nil {
		slog.Warn("NATS stream initialization failed, using noop event publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	return &natsPub{nc: nc, js: js}
}

// initStreams initializes the streams consumed by the write pipeline.
func initStreams(js nats.JetStreamContext) error {
	// PF_VIEWS carries raw view submissions. Views are approximate
	// counters, so a short retention window is enough for the aggregator.
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      "PF_VIEWS",
		Subjects:  []string{"pixelfeed.events.views"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create PF_VIEWS stream: %w", err)
	}

	// PF_REACTIONS carries reaction add/remove notifications.
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      "PF_REACTIONS",
		Subjects:  []string{"pixelfeed.events.reactions"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create PF_REACTIONS stream: %w", err)
	}

	return nil
}

// Envelope is the standard event envelope. Every event published to the
// pipeline is wrapped in this structure.
type Envelope struct {
	Type          string      `json:"type"`          // Event type identifier
	Version       string      `json:"version"`       // Event schema version
	OccurredAt    time.Time   `json:"occurredAt"`    // When the event occurred
	CorrelationID string      `json:"correlationId"` // Correlation ID for tracing
	Payload       interface{} `json:"payload"`       // Event-specific data
}

// Close closes the NATS connection.
func (p *natsPub) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// publish wraps a payload in the standard envelope and publishes it.
func (p *natsPub) publish(subject, eventType string, payload interface{}) error {
	envelope := Envelope{
		Type:          eventType,
		Version:       "1.0.0",
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.New().String(),
		Payload:       payload,
	}

	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(subject, b)
	return err
}

// PublishView publishes a view submission to the aggregation pipeline.
// Duplicates are acceptable downstream: views are approximate counters.
func (p *natsPub) PublishView(ctx context.Context, view model.ViewEvent) error {
	return p.publish("pixelfeed.events.views", "pixelfeed.views.submitted", view)
}

// PublishReactionChanged publishes a reaction add/remove notification.
func (p *natsPub) PublishReactionChanged(ctx context.Context, reaction model.ReactionEvent) error {
	return p.publish("pixelfeed.events.reactions", "pixelfeed.reactions.changed", reaction)
}
