// internal/transport/nats.go
// Package transport is the device-facing pub/sub adapter. It subscribes to
// the per-device request subjects, decodes and validates envelopes, hands
// them to the router, and publishes exactly one response per handled
// request to the paired response subject. No business logic lives here:
// malformed payloads are either answered with invalid_request (when a
// request_id can be salvaged) or dropped and logged.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	gwerrors "github.com/pixelfeed/pixelfeed-gateway-go/internal/errors"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/gateway"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/metrics"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/model"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/schema"
)

const (
	// requestSubjectPattern matches every device request subject:
	// pixelfeed.devices.<device_key>.requests.<request_id>
	requestSubjectPattern = "pixelfeed.devices.*.requests.>"

	// queueGroup load-balances requests across gateway instances.
	queueGroup = "pixelfeed-gateway"

	// handleTimeout bounds one request's handling, storage included.
	handleTimeout = 10 * time.Second

	// sessionTTL expires device sessions with no request activity.
	sessionTTL = 5 * time.Minute
)

// Adapter bridges the NATS device channel and the request router.
type Adapter struct {
	nc        *nats.Conn
	router    *gateway.Router
	validator *schema.Validator
	sessions  *SessionRegistry
	metrics   *metrics.Metrics
	sub       *nats.Subscription
}

// NewAdapter creates an adapter over an established NATS connection.
func NewAdapter(nc *nats.Conn, router *gateway.Router) (*Adapter, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create envelope validator: %w", err)
	}
	return &Adapter{
		nc:        nc,
		router:    router,
		validator: validator,
		sessions:  NewSessionRegistry(sessionTTL),
		metrics:   metrics.NewMetrics(),
	}, nil
}

// Start subscribes to the device request subjects. Messages are handled
// concurrently; each handler publishes its own response.
func (a *Adapter) Start(ctx context.Context) error {
	sub, err := a.nc.QueueSubscribe(requestSubjectPattern, queueGroup, func(msg *nats.Msg) {
		go a.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", requestSubjectPattern, err)
	}
	a.sub = sub
	slog.Info("transport subscribed", "subject", requestSubjectPattern, "queue", queueGroup)
	return nil
}

// Close drains the subscription and stops the session sweep. Draining
// lets in-flight handlers publish their responses before shutdown.
func (a *Adapter) Close() error {
	a.sessions.Close()
	if a.sub != nil {
		if err := a.sub.Drain(); err != nil {
			return fmt.Errorf("failed to drain subscription: %w", err)
		}
	}
	return nil
}

// Sessions exposes the device session registry for readiness reporting.
func (a *Adapter) Sessions() *SessionRegistry {
	return a.sessions
}

// handleMessage processes one inbound request message end to end.
func (a *Adapter) handleMessage(ctx context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	deviceKey, subjectRequestID, err := ParseRequestSubject(msg.Subject)
	if err != nil {
		// A subject outside the contract carries no usable reply address.
		slog.Warn("dropping message on malformed subject", "subject", msg.Subject, "error", err)
		a.metrics.MessagesReceived.WithLabelValues("dropped").Inc()
		return
	}

	if err := a.validator.Validate(msg.Data); err != nil {
		a.metrics.MessagesReceived.WithLabelValues("invalid").Inc()
		a.replyInvalid(deviceKey, subjectRequestID, msg.Data, err)
		return
	}

	var req model.RequestEnvelope
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		a.metrics.MessagesReceived.WithLabelValues("invalid").Inc()
		a.replyInvalid(deviceKey, subjectRequestID, msg.Data, err)
		return
	}

	// The subject is the device's addressing contract. A body claiming a
	// different device or request must not be routed.
	if req.DeviceKey != deviceKey || req.RequestID != subjectRequestID {
		a.metrics.MessagesReceived.WithLabelValues("invalid").Inc()
		a.publishResponse(deviceKey, subjectRequestID, model.ResponseEnvelope{
			RequestID: subjectRequestID,
			Success:   false,
			Error:     "envelope does not match its subject",
			ErrorCode: string(gwerrors.InvalidRequest),
		})
		return
	}

	a.metrics.MessagesReceived.WithLabelValues("ok").Inc()
	a.sessions.Touch(deviceKey)

	resp := a.router.Handle(ctx, req)
	a.publishResponse(deviceKey, req.RequestID, resp)
}

// replyInvalid answers a malformed envelope with invalid_request when a
// request_id can be salvaged, preferring the subject's over the body's,
// and drops the message otherwise.
func (a *Adapter) replyInvalid(deviceKey, subjectRequestID string, raw []byte, cause error) {
	requestID := subjectRequestID
	if requestID == "" {
		requestID = salvageRequestID(raw)
	}
	if requestID == "" {
		slog.Warn("dropping malformed message without request_id", "device_key", deviceKey, "error", cause)
		a.metrics.MessagesReceived.WithLabelValues("dropped").Inc()
		return
	}

	a.publishResponse(deviceKey, requestID, model.ResponseEnvelope{
		RequestID: requestID,
		Success:   false,
		Error:     cause.Error(),
		ErrorCode: string(gwerrors.InvalidRequest),
	})
}

// publishResponse publishes exactly one response to the device's response
// subject. Responses are plain publishes, never retained: a device that
// missed its response re-issues the request.
func (a *Adapter) publishResponse(deviceKey, requestID string, resp model.ResponseEnvelope) {
	b, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "request_id", requestID, "error", err)
		a.metrics.ResponsesSent.WithLabelValues("error").Inc()
		return
	}

	subject := ResponseSubject(deviceKey, requestID)
	if err := a.nc.Publish(subject, b); err != nil {
		slog.Error("failed to publish response", "subject", subject, "error", err)
		a.metrics.ResponsesSent.WithLabelValues("error").Inc()
		return
	}

	status := "ok"
	if !resp.Success {
		status = resp.ErrorCode
	}
	a.metrics.ResponsesSent.WithLabelValues(status).Inc()
}

// ParseRequestSubject extracts the device key and request ID from a
// request subject of the form
// pixelfeed.devices.<device_key>.requests.<request_id>.
func ParseRequestSubject(subject string) (deviceKey, requestID string, err error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 5 || parts[0] != "pixelfeed" || parts[1] != "devices" || parts[3] != "requests" {
		return "", "", fmt.Errorf("subject %q does not match the request contract", subject)
	}
	if parts[2] == "" || parts[4] == "" {
		return "", "", fmt.Errorf("subject %q has empty device key or request id", subject)
	}
	return parts[2], parts[4], nil
}

// ResponseSubject builds the response subject paired with a request.
func ResponseSubject(deviceKey, requestID string) string {
	return fmt.Sprintf("pixelfeed.devices.%s.responses.%s", deviceKey, requestID)
}

// salvageRequestID tries to pull a request_id out of otherwise invalid
// envelope bytes so the device can correlate the error.
func salvageRequestID(raw []byte) string {
	var partial struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(raw, &partial); err != nil {
		return ""
	}
	return partial.RequestID
}
