// internal/auth/resolver.go
// Package auth resolves opaque device keys to their owning accounts. The
// authoritative mapping lives in the external auth service; this package
// provides an HTTP client for it, a storage-backed resolver for
// development, and a TTL cache so repeated requests from the same device
// do not re-query per message.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pixelfeed/pixelfeed-gateway-go/internal/model"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/storage"
)

// ErrNotFound is returned when a device key does not resolve to an active
// registered account.
var ErrNotFound = errors.New("device not found")

// Resolver maps a device key to its owning account. Implementations must
// fail with ErrNotFound for unknown, deleted, or deactivated devices.
type Resolver interface {
	Resolve(ctx context.Context, deviceKey string) (*model.Account, error)
}

// Client is the HTTP client for the external auth service.
type Client struct {
	base string       // Base URL of the auth service
	hc   *http.Client // HTTP client with connection and request timeouts
}

// resolution is the auth service's response payload.
type resolution struct {
	AccountID string `json:"accountId"`
	Moderator bool   `json:"moderator"`
	Active    bool   `json:"active"`
}

// NewClient creates a new auth service client with the specified base URL.
func NewClient(baseURL string) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
	}
	return &Client{
		base: baseURL,
		hc:   &http.Client{Transport: transport, Timeout: 3 * time.Second},
	}
}

// Resolve looks up the owning account of a device key via the auth
// service. Inactive devices resolve to ErrNotFound, same as unknown keys.
func (c *Client) Resolve(ctx context.Context, deviceKey string) (*model.Account, error) {
	u, _ := url.Parse(c.base)
	u.Path = "/v1/devices/resolve"
	q := u.Query()
	q.Set("key", deviceKey)
	u.RawQuery = q.Encode()

	req, _ := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var res resolution
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, err
		}
		if !res.Active {
			return nil, ErrNotFound
		}
		return &model.Account{ID: res.AccountID, Moderator: res.Moderator}, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("device resolve failed: %s", resp.Status)
	}
}

// StoreResolver resolves device keys against the local storage backend.
// Used in development and tests where no auth service is deployed.
type StoreResolver struct {
	store storage.Store
}

// NewStoreResolver creates a resolver backed by the given store.
func NewStoreResolver(store storage.Store) *StoreResolver {
	return &StoreResolver{store: store}
}

// Resolve implements Resolver against local device and account rows.
func (r *StoreResolver) Resolve(ctx context.Context, deviceKey string) (*model.Account, error) {
	device, err := r.store.GetDevice(ctx, deviceKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !device.Active {
		return nil, ErrNotFound
	}
	account, err := r.store.GetAccount(ctx, device.OwnerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return account, nil
}

// cacheEntry is one cached resolution. Negative results are not cached so
// a freshly provisioned device works immediately.
type cacheEntry struct {
	account model.Account
	expires time.Time
}

// Cache wraps a Resolver with a TTL lookup cache.
type Cache struct {
	inner   Resolver
	ttl     time.Duration
	mutex   sync.RWMutex
	entries map[string]cacheEntry
}

// NewCache creates a caching resolver with the given TTL.
func NewCache(inner Resolver, ttl time.Duration) *Cache {
	return &Cache{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Resolve implements Resolver, serving from cache when fresh.
func (c *Cache) Resolve(ctx context.Context, deviceKey string) (*model.Account, error) {
	c.mutex.RLock()
	entry, exists := c.entries[deviceKey]
	c.mutex.RUnlock()

	if exists && time.Now().Before(entry.expires) {
		account := entry.account
		return &account, nil
	}

	account, err := c.inner.Resolve(ctx, deviceKey)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	// Sweep expired entries to keep the map bounded.
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[deviceKey] = cacheEntry{account: *account, expires: now.Add(c.ttl)}
	c.mutex.Unlock()

	return account, nil
}
