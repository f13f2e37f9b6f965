// internal/ratelimit/ratelimit.go
// Package ratelimit defines the allow/deny oracle consulted by the router
// before dispatching a request. The production oracle is an external
// service; this package ships an allow-all no-op and a local token-bucket
// implementation keyed per device and per owning account.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Oracle decides whether one request from a device/account pair may
// proceed. A false verdict rejects the request; the oracle owns the
// specific deny code semantics.
type Oracle interface {
	Allow(ctx context.Context, deviceKey, accountID string) bool
}

// allowAll is the no-op oracle used when rate limiting is not configured.
type allowAll struct{}

// Allow implements Oracle. It always permits the request.
func (allowAll) Allow(ctx context.Context, deviceKey, accountID string) bool { return true }

// NewAllowAll returns an oracle that permits every request.
func NewAllowAll() Oracle { return allowAll{} }

// TokenBucket is a local Oracle applying independent token buckets per
// device key and per owning account. A request must pass both: a single
// chatty device cannot exhaust its account's budget alone, and an account
// fanning out over many devices is still capped.
type TokenBucket struct {
	perDevice  rate.Limit
	perAccount rate.Limit
	burst      int

	mutex    sync.Mutex
	devices  map[string]*limiterEntry
	accounts map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucket creates a local oracle with the given sustained rates
// (requests per second) and shared burst size.
func NewTokenBucket(perDevice, perAccount float64, burst int) *TokenBucket {
	return &TokenBucket{
		perDevice:  rate.Limit(perDevice),
		perAccount: rate.Limit(perAccount),
		burst:      burst,
		devices:    make(map[string]*limiterEntry),
		accounts:   make(map[string]*limiterEntry),
	}
}

// Allow implements Oracle.
func (t *TokenBucket) Allow(ctx context.Context, deviceKey, accountID string) bool {
	t.mutex.Lock()
	device := t.limiterFor(t.devices, deviceKey, t.perDevice)
	account := t.limiterFor(t.accounts, accountID, t.perAccount)
	t.mutex.Unlock()

	// Check the device bucket first so a denied device does not drain its
	// account's tokens.
	if !device.Allow() {
		return false
	}
	return account.Allow()
}

// limiterFor fetches or creates the limiter for a key, sweeping idle
// entries opportunistically. Caller holds the mutex.
func (t *TokenBucket) limiterFor(m map[string]*limiterEntry, key string, limit rate.Limit) *rate.Limiter {
	now := time.Now()

	entry, exists := m[key]
	if !exists {
		if len(m) > 10000 {
			cutoff := now.Add(-10 * time.Minute)
			for k, e := range m {
				if e.lastSeen.Before(cutoff) {
					delete(m, k)
				}
			}
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(limit, t.burst)}
		m[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}
