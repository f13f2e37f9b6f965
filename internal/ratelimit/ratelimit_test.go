// Package ratelimit provides tests for the local token-bucket oracle.
package ratelimit

import (
	"context"
	"testing"
)

// TestAllowAll tests that the no-op oracle permits everything.
func TestAllowAll(t *testing.T) {
	oracle := NewAllowAll()
	for i := 0; i < 100; i++ {
		if !oracle.Allow(context.Background(), "dev", "acct") {
			t.Fatal("allow-all oracle denied a request")
		}
	}
}

// TestTokenBucketDeviceCap tests that a device exhausting its burst is
// denied while an independent device still passes.
func TestTokenBucketDeviceCap(t *testing.T) {
	ctx := context.Background()
	// Near-zero refill so the burst is effectively the whole budget.
	oracle := NewTokenBucket(0.001, 1000, 3)

	for i := 0; i < 3; i++ {
		if !oracle.Allow(ctx, "dev-a", "acct-1") {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if oracle.Allow(ctx, "dev-a", "acct-1") {
		t.Error("request beyond device burst allowed")
	}

	// A fresh device under a fresh account has full buckets.
	if !oracle.Allow(ctx, "dev-b", "acct-2") {
		t.Error("independent device denied")
	}
}

// TestTokenBucketAccountCap tests that the account bucket caps fan-out
// across devices.
func TestTokenBucketAccountCap(t *testing.T) {
	ctx := context.Background()
	// Device budget is generous, account budget is the constraint.
	oracle := NewTokenBucket(1000, 0.001, 2)

	if !oracle.Allow(ctx, "dev-a", "acct-1") {
		t.Fatal("first request denied")
	}
	if !oracle.Allow(ctx, "dev-b", "acct-1") {
		t.Fatal("second request denied")
	}
	if oracle.Allow(ctx, "dev-c", "acct-1") {
		t.Error("request beyond account burst allowed")
	}

	// Another account is unaffected.
	if !oracle.Allow(ctx, "dev-d", "acct-2") {
		t.Error("independent account denied")
	}
}
