// Package auth provides tests for device key resolution and caching.
package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pixelfeed/pixelfeed-gateway-go/internal/model"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/storage"
)

// countingResolver implements Resolver and counts how often it is hit.
type countingResolver struct {
	calls   int
	account *model.Account
	err     error
}

func (r *countingResolver) Resolve(ctx context.Context, deviceKey string) (*model.Account, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.account, nil
}

// TestStoreResolver tests resolution against local device and account rows.
func TestStoreResolver(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	if err := store.CreateAccount(ctx, model.Account{ID: "acct-1", Moderator: true}); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	active := model.Device{Key: "11111111-1111-1111-1111-111111111111", OwnerID: "acct-1", Active: true}
	inactive := model.Device{Key: "22222222-2222-2222-2222-222222222222", OwnerID: "acct-1", Active: false}
	for _, d := range []model.Device{active, inactive} {
		if err := store.CreateDevice(ctx, d); err != nil {
			t.Fatalf("CreateDevice() error = %v", err)
		}
	}

	resolver := NewStoreResolver(store)

	account, err := resolver.Resolve(ctx, active.Key)
	if err != nil {
		t.Fatalf("Resolve(active) error = %v", err)
	}
	if account.ID != "acct-1" || !account.Moderator {
		t.Errorf("Resolve(active) = %+v, want acct-1 with moderator", account)
	}

	// Deactivated and unknown keys fail identically.
	if _, err := resolver.Resolve(ctx, inactive.Key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(inactive) error = %v, want ErrNotFound", err)
	}
	if _, err := resolver.Resolve(ctx, "33333333-3333-3333-3333-333333333333"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(unknown) error = %v, want ErrNotFound", err)
	}
}

// TestCacheServesFromCache tests that a fresh entry short-circuits the
// inner resolver.
func TestCacheServesFromCache(t *testing.T) {
	ctx := context.Background()
	inner := &countingResolver{account: &model.Account{ID: "acct-1"}}
	cache := NewCache(inner, time.Minute)

	for i := 0; i < 5; i++ {
		account, err := cache.Resolve(ctx, "key-1")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if account.ID != "acct-1" {
			t.Errorf("Resolve() account = %v, want acct-1", account.ID)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner resolver hit %d times, want 1", inner.calls)
	}

	// A different key is its own entry.
	if _, err := cache.Resolve(ctx, "key-2"); err != nil {
		t.Fatalf("Resolve(key-2) error = %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner resolver hit %d times after second key, want 2", inner.calls)
	}
}

// TestCacheDoesNotCacheFailures tests that negative results always go back
// to the inner resolver, so a freshly provisioned device works without
// waiting out a TTL.
func TestCacheDoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	inner := &countingResolver{err: ErrNotFound}
	cache := NewCache(inner, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := cache.Resolve(ctx, "key-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Resolve() error = %v, want ErrNotFound", err)
		}
	}
	if inner.calls != 3 {
		t.Errorf("inner resolver hit %d times, want 3", inner.calls)
	}

	// Once the device exists, the next lookup succeeds immediately.
	inner.err = nil
	inner.account = &model.Account{ID: "acct-1"}
	if _, err := cache.Resolve(ctx, "key-1"); err != nil {
		t.Errorf("Resolve() after provisioning error = %v", err)
	}
}

// TestCacheExpiry tests that entries expire after the TTL.
func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	inner := &countingResolver{account: &model.Account{ID: "acct-1"}}
	cache := NewCache(inner, 20*time.Millisecond)

	if _, err := cache.Resolve(ctx, "key-1"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := cache.Resolve(ctx, "key-1"); err != nil {
		t.Fatalf("Resolve() after expiry error = %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner resolver hit %d times, want 2 after expiry", inner.calls)
	}
}
