// Package storage provides tests for the in-memory Store implementation.
package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pixelfeed/pixelfeed-gateway-go/internal/model"
)

// newTestStore creates a memory store seeded with one account and one
// approved content item, returning the store and the item's id.
func newTestStore(t *testing.T) (Store, int64) {
	t.Helper()
	ctx := context.Background()
	store := NewMemory()

	if err := store.CreateAccount(ctx, model.Account{ID: "acct-1"}); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	item := &model.ContentItem{
		Kind:     model.KindArtwork,
		OwnerID:  "acct-1",
		Approved: true,
		Artwork:  &model.ArtworkMeta{Width: 32, Height: 32, FileFormat: model.FormatPNG},
	}
	if err := store.CreateContent(ctx, item); err != nil {
		t.Fatalf("CreateContent() error = %v", err)
	}
	return store, item.ID
}

// TestCreateContentAssignsIDs tests that insertion ids are assigned
// monotonically by the store.
func TestCreateContentAssignsIDs(t *testing.T) {
	ctx := context.Background()
	store, firstID := newTestStore(t)

	second := &model.ContentItem{Kind: model.KindPlaylist, OwnerID: "acct-1", Approved: true, Playlist: &model.PlaylistMeta{}}
	if err := store.CreateContent(ctx, second); err != nil {
		t.Fatalf("CreateContent() error = %v", err)
	}
	if second.ID <= firstID {
		t.Errorf("second id = %d, want > %d", second.ID, firstID)
	}
}

// TestListVisibleContent tests that hidden and unapproved items are
// excluded from the visible set.
func TestListVisibleContent(t *testing.T) {
	ctx := context.Background()
	store, visibleID := newTestStore(t)

	hiddenByUser := &model.ContentItem{Kind: model.KindArtwork, OwnerID: "acct-1", Approved: true, HiddenByUser: true, Artwork: &model.ArtworkMeta{}}
	hiddenByMod := &model.ContentItem{Kind: model.KindArtwork, OwnerID: "acct-1", Approved: true, HiddenByModerator: true, Artwork: &model.ArtworkMeta{}}
	unapproved := &model.ContentItem{Kind: model.KindArtwork, OwnerID: "acct-1", Artwork: &model.ArtworkMeta{}}
	for _, item := range []*model.ContentItem{hiddenByUser, hiddenByMod, unapproved} {
		if err := store.CreateContent(ctx, item); err != nil {
			t.Fatalf("CreateContent() error = %v", err)
		}
	}

	items, err := store.ListVisibleContent(ctx)
	if err != nil {
		t.Fatalf("ListVisibleContent() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("visible set size = %d, want 1", len(items))
	}
	if items[0].ID != visibleID {
		t.Errorf("visible item id = %d, want %d", items[0].ID, visibleID)
	}
}

// TestGetContentNotFound tests the sentinel for a missing item.
func TestGetContentNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetContent(context.Background(), 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetContent(9999) error = %v, want ErrNotFound", err)
	}
}

// TestAddReactionIdempotent tests that re-submitting a present reaction
// succeeds without a state change.
func TestAddReactionIdempotent(t *testing.T) {
	ctx := context.Background()
	store, contentID := newTestStore(t)

	added, err := store.AddReaction(ctx, contentID, "acct-1", "🎨")
	if err != nil {
		t.Fatalf("AddReaction() error = %v", err)
	}
	if !added {
		t.Errorf("first AddReaction() added = false, want true")
	}

	added, err = store.AddReaction(ctx, contentID, "acct-1", "🎨")
	if err != nil {
		t.Fatalf("second AddReaction() error = %v", err)
	}
	if added {
		t.Errorf("second AddReaction() added = true, want false")
	}

	reactions, err := store.ListReactions(ctx, contentID, "acct-1")
	if err != nil {
		t.Fatalf("ListReactions() error = %v", err)
	}
	if len(reactions) != 1 {
		t.Errorf("reaction count = %d, want 1", len(reactions))
	}
}

// TestReactionLimit tests the cap of 5 distinct emoji per (content, user)
// and that re-submitting a present emoji still succeeds at the cap.
func TestReactionLimit(t *testing.T) {
	ctx := context.Background()
	store, contentID := newTestStore(t)

	for i := 0; i < MaxDistinctEmoji; i++ {
		emoji := fmt.Sprintf("e%d", i)
		if _, err := store.AddReaction(ctx, contentID, "acct-1", emoji); err != nil {
			t.Fatalf("AddReaction(%s) error = %v", emoji, err)
		}
	}

	// The sixth distinct emoji is rejected.
	_, err := store.AddReaction(ctx, contentID, "acct-1", "e5")
	if !errors.Is(err, ErrReactionLimit) {
		t.Errorf("sixth AddReaction() error = %v, want ErrReactionLimit", err)
	}

	// Re-submitting a present emoji at the cap is still a success.
	added, err := store.AddReaction(ctx, contentID, "acct-1", "e0")
	if err != nil {
		t.Errorf("re-submit at cap error = %v, want nil", err)
	}
	if added {
		t.Errorf("re-submit at cap added = true, want false")
	}

	// Removing one frees a slot.
	removed, err := store.RemoveReaction(ctx, contentID, "acct-1", "e0")
	if err != nil || !removed {
		t.Fatalf("RemoveReaction() = (%v, %v), want (true, nil)", removed, err)
	}
	added, err = store.AddReaction(ctx, contentID, "acct-1", "e5")
	if err != nil || !added {
		t.Errorf("AddReaction() after removal = (%v, %v), want (true, nil)", added, err)
	}
}

// TestRemoveReactionIdempotent tests that revoking an absent reaction
// succeeds without a state change.
func TestRemoveReactionIdempotent(t *testing.T) {
	ctx := context.Background()
	store, contentID := newTestStore(t)

	removed, err := store.RemoveReaction(ctx, contentID, "acct-1", "🎨")
	if err != nil {
		t.Fatalf("RemoveReaction() error = %v", err)
	}
	if removed {
		t.Errorf("RemoveReaction() on absent reaction removed = true, want false")
	}
}

// TestReactionMissingContent tests the sentinel when reacting to a
// nonexistent item.
func TestReactionMissingContent(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.AddReaction(context.Background(), 9999, "acct-1", "🎨")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("AddReaction(missing) error = %v, want ErrNotFound", err)
	}
	_, err = store.RemoveReaction(context.Background(), 9999, "acct-1", "🎨")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveReaction(missing) error = %v, want ErrNotFound", err)
	}
}

// TestCommentDepthDerivation tests that depth comes from the parent chain
// and that replies below depth 2 are rejected.
func TestCommentDepthDerivation(t *testing.T) {
	ctx := context.Background()
	store, contentID := newTestStore(t)

	root := &model.Comment{ContentID: contentID, Body: "root", Depth: 99} // Client depth is ignored
	if err := store.CreateComment(ctx, root); err != nil {
		t.Fatalf("CreateComment(root) error = %v", err)
	}
	if root.Depth != 0 {
		t.Errorf("root depth = %d, want 0", root.Depth)
	}

	reply := &model.Comment{ContentID: contentID, ParentID: &root.ID, Body: "reply"}
	if err := store.CreateComment(ctx, reply); err != nil {
		t.Fatalf("CreateComment(reply) error = %v", err)
	}
	if reply.Depth != 1 {
		t.Errorf("reply depth = %d, want 1", reply.Depth)
	}

	leaf := &model.Comment{ContentID: contentID, ParentID: &reply.ID, Body: "leaf"}
	if err := store.CreateComment(ctx, leaf); err != nil {
		t.Fatalf("CreateComment(leaf) error = %v", err)
	}
	if leaf.Depth != 2 {
		t.Errorf("leaf depth = %d, want 2", leaf.Depth)
	}

	// A reply to a depth-2 comment exceeds the cap.
	tooDeep := &model.Comment{ContentID: contentID, ParentID: &leaf.ID, Body: "too deep"}
	if err := store.CreateComment(ctx, tooDeep); !errors.Is(err, ErrCommentDepth) {
		t.Errorf("CreateComment(depth 3) error = %v, want ErrCommentDepth", err)
	}

	// A reply to a missing parent is not found.
	orphan := &model.Comment{ContentID: contentID, ParentID: new(int64), Body: "orphan"}
	*orphan.ParentID = 9999
	if err := store.CreateComment(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Errorf("CreateComment(missing parent) error = %v, want ErrNotFound", err)
	}
}

// TestListCommentsOrder tests oldest-first ordering with insertion id as
// the tie-break.
func TestListCommentsOrder(t *testing.T) {
	ctx := context.Background()
	store, contentID := newTestStore(t)

	for i := 0; i < 4; i++ {
		c := &model.Comment{ContentID: contentID, Body: fmt.Sprintf("c%d", i)}
		if err := store.CreateComment(ctx, c); err != nil {
			t.Fatalf("CreateComment() error = %v", err)
		}
	}

	comments, err := store.ListComments(ctx, contentID)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(comments) != 4 {
		t.Fatalf("comment count = %d, want 4", len(comments))
	}
	for i := 1; i < len(comments); i++ {
		if comments[i].ID <= comments[i-1].ID {
			t.Errorf("comments out of order at position %d: id %d after %d", i, comments[i].ID, comments[i-1].ID)
		}
	}
}

// TestAccountAndDeviceConflicts tests sentinel errors for duplicate rows.
func TestAccountAndDeviceConflicts(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if err := store.CreateAccount(ctx, model.Account{ID: "acct-1"}); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate CreateAccount() error = %v, want ErrConflict", err)
	}

	device := model.Device{Key: "11111111-1111-1111-1111-111111111111", OwnerID: "acct-1", Active: true}
	if err := store.CreateDevice(ctx, device); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if err := store.CreateDevice(ctx, device); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate CreateDevice() error = %v, want ErrConflict", err)
	}

	if _, err := store.GetDevice(ctx, "22222222-2222-2222-2222-222222222222"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDevice(unknown) error = %v, want ErrNotFound", err)
	}
}
