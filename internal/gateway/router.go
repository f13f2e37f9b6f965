// internal/gateway/router.go
// Package gateway implements the request router and the per-request-type
// handlers. The router authenticates the device, consults the rate-limit
// oracle, dispatches on a closed request-type set, and normalizes every
// outcome, success or typed error, into a response envelope. It is
// stateless per request; the only state it touches is the resolver's
// lookup cache.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pixelfeed/pixelfeed-gateway-go/internal/auth"
	gwerrors "github.com/pixelfeed/pixelfeed-gateway-go/internal/errors"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/event"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/metrics"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/model"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/paging"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/ratelimit"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/storage"
)

// Router dispatches parsed request envelopes to handlers and formats the
// response envelope.
type Router struct {
	store     storage.Store      // Content repository
	resolver  auth.Resolver      // Device key to account resolution
	limiter   ratelimit.Oracle   // Allow/deny oracle per device and account
	publisher event.Publisher    // Fire-and-forget sink for the write pipeline
	metrics   *metrics.Metrics   // Request metrics
	maxLimit  int                // Page size clamp for this channel
}

// NewRouter creates a router for one transport channel. maxLimit is the
// channel's page clamp: paging.DeviceMaxLimit for the device pub/sub
// channel, paging.FeedMaxLimit for richer feed surfaces.
func NewRouter(store storage.Store, resolver auth.Resolver, limiter ratelimit.Oracle, publisher event.Publisher, maxLimit int) *Router {
	if maxLimit <= 0 {
		maxLimit = paging.DeviceMaxLimit
	}
	return &Router{
		store:     store,
		resolver:  resolver,
		limiter:   limiter,
		publisher: publisher,
		metrics:   metrics.NewMetrics(),
		maxLimit:  maxLimit,
	}
}

// Handle processes one request envelope and always returns exactly one
// response envelope. Panics in handlers are recovered and converted to
// internal_error; the panic value is logged with the request_id and never
// exposed to the client.
func (r *Router) Handle(ctx context.Context, req model.RequestEnvelope) (resp model.ResponseEnvelope) {
	ctx, span := otel.Tracer("gateway").Start(ctx, "Handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_type", req.RequestType),
		attribute.String("request_id", req.RequestID),
	)

	start := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("handler panic",
				"request_id", req.RequestID,
				"request_type", req.RequestType,
				"panic", recovered,
			)
			span.SetStatus(codes.Error, "handler panic")
			resp = r.errorResponse(req, gwerrors.New(gwerrors.Internal, "internal error"))
		}
		status := "ok"
		if !resp.Success {
			status = resp.ErrorCode
		}
		r.metrics.RequestTotal.WithLabelValues(req.RequestType, status).Inc()
		r.metrics.RequestDuration.WithLabelValues(req.RequestType, status).Observe(time.Since(start).Seconds())
	}()

	account, gwErr := r.authenticate(ctx, req)
	if gwErr != nil {
		return r.errorResponse(req, gwErr)
	}

	if !r.limiter.Allow(ctx, req.DeviceKey, account.ID) {
		return r.errorResponse(req, gwerrors.New(gwerrors.RateLimited, "request rate limit exceeded"))
	}

	var (
		data interface{}
		err  *gwerrors.Error
	)
	switch req.RequestType {
	case model.RequestQueryPosts:
		data, err = r.handleQueryPosts(ctx, req)
	case model.RequestGetPost:
		data, err = r.handleGetPost(ctx, req)
	case model.RequestSubmitView:
		data, err = r.handleSubmitView(ctx, req, account)
	case model.RequestSubmitReaction:
		data, err = r.handleSubmitReaction(ctx, req, account)
	case model.RequestRevokeReaction:
		data, err = r.handleRevokeReaction(ctx, req, account)
	case model.RequestGetComments:
		data, err = r.handleGetComments(ctx, req, account)
	default:
		err = gwerrors.Newf(gwerrors.UnknownRequestType, "unknown request type %q", req.RequestType)
	}

	if err != nil {
		if err.Code == gwerrors.Internal {
			span.SetStatus(codes.Error, "internal error")
		}
		return r.errorResponse(req, err)
	}

	return model.ResponseEnvelope{
		RequestID: req.RequestID,
		Success:   true,
		Data:      data,
	}
}

// authenticate resolves the device key to its active owning account.
func (r *Router) authenticate(ctx context.Context, req model.RequestEnvelope) (*model.Account, *gwerrors.Error) {
	account, err := r.resolver.Resolve(ctx, req.DeviceKey)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, gwerrors.New(gwerrors.AuthenticationFailed, "device key is not registered")
		}
		// Resolver infrastructure failure: the detail stays in the log.
		slog.Error("device resolution failed", "request_id", req.RequestID, "error", err)
		return nil, gwerrors.New(gwerrors.AuthenticationFailed, "device authentication failed")
	}
	return account, nil
}

// errorResponse builds the failure envelope for a typed gateway error.
func (r *Router) errorResponse(req model.RequestEnvelope, err *gwerrors.Error) model.ResponseEnvelope {
	return model.ResponseEnvelope{
		RequestID: req.RequestID,
		Success:   false,
		Error:     err.Message,
		ErrorCode: string(err.Code),
	}
}

// internalError logs the underlying cause with the request_id for
// correlation and returns the client-safe internal error.
func internalError(requestID, operation string, err error) *gwerrors.Error {
	slog.Error("operation failed",
		"request_id", requestID,
		"operation", operation,
		"error", err,
	)
	return gwerrors.New(gwerrors.Internal, "internal error")
}
