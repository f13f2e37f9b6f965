// internal/gateway/handlers.go
// Per-request-type handlers. Reads compose the criteria compiler with the
// pagination engine over the repository's viewer-visible set; mutations
// are idempotent and hand writes to the asynchronous pipeline without
// blocking the response path.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/pixelfeed/pixelfeed-gateway-go/internal/criteria"
	gwerrors "github.com/pixelfeed/pixelfeed-gateway-go/internal/errors"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/model"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/paging"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/storage"
)

// Emoji value length bounds, in characters.
const (
	minEmojiLen = 1
	maxEmojiLen = 20
)

// deletedBody replaces the text of owner-deleted comments that still
// anchor replies.
const deletedBody = "[deleted]"

// handleQueryPosts compiles the criteria into a predicate, filters the
// visible content set, and returns one ordered page.
func (r *Router) handleQueryPosts(ctx context.Context, req model.RequestEnvelope) (interface{}, *gwerrors.Error) {
	predicate, gwErr := criteria.Compile(req.Criteria)
	if gwErr != nil {
		return nil, gwErr
	}

	items, err := r.store.ListVisibleContent(ctx)
	if err != nil {
		return nil, internalError(req.RequestID, "list content", err)
	}

	matched := make([]model.ContentItem, 0, len(items))
	for i := range items {
		if predicate(&items[i]) {
			matched = append(matched, items[i])
		}
	}

	page, gwErr := paging.Apply(matched, paging.Request{
		Sort:     paging.SortMode(req.Sort),
		Seed:     req.Seed,
		Limit:    req.Limit,
		Cursor:   req.Cursor,
		MaxLimit: r.maxLimit,
	})
	if gwErr != nil {
		return nil, gwErr
	}

	return model.QueryPostsResult{
		Items:      page.Items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}, nil
}

// handleGetPost fetches a single content item, surfacing the repository's
// visibility verdict as a typed error.
func (r *Router) handleGetPost(ctx context.Context, req model.RequestEnvelope) (interface{}, *gwerrors.Error) {
	item, gwErr := r.fetchVisible(ctx, req.RequestID, req.ContentID)
	if gwErr != nil {
		return nil, gwErr
	}
	return item, nil
}

// handleSubmitView validates the intent, excludes self-views, and enqueues
// the event to the write pipeline. The response does not wait for
// persistence; the pipeline owns retry and aggregation.
func (r *Router) handleSubmitView(ctx context.Context, req model.RequestEnvelope, account *model.Account) (interface{}, *gwerrors.Error) {
	intent := req.Intent
	if intent != model.IntentIntentional && intent != model.IntentAutomated {
		return nil, gwerrors.Newf(gwerrors.InvalidRequest, "invalid view intent %q", req.Intent)
	}

	item, err := r.store.GetContent(ctx, req.ContentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, gwerrors.New(gwerrors.NotFound, "content item not found")
		}
		return nil, internalError(req.RequestID, "get content", err)
	}

	// Self-views never count toward the owner's own statistics.
	if item.OwnerID == account.ID {
		return map[string]bool{"recorded": false}, nil
	}

	view := model.ViewEvent{
		EventID:    ulid.Make().String(),
		ContentID:  req.ContentID,
		ViewerID:   account.ID,
		DeviceKey:  req.DeviceKey,
		Intent:     intent,
		OccurredAt: time.Now().UTC(),
	}
	if err := r.publisher.PublishView(ctx, view); err != nil {
		// Fire-and-forget: a publish failure drops one approximate count,
		// never the response.
		slog.Warn("failed to publish view event", "request_id", req.RequestID, "error", err)
	}

	return map[string]bool{"recorded": true}, nil
}

// handleSubmitReaction adds an emoji reaction. Re-submitting a present
// reaction succeeds without changing state.
func (r *Router) handleSubmitReaction(ctx context.Context, req model.RequestEnvelope, account *model.Account) (interface{}, *gwerrors.Error) {
	if gwErr := validateEmoji(req.Emoji); gwErr != nil {
		return nil, gwErr
	}

	added, err := r.store.AddReaction(ctx, req.ContentID, account.ID, req.Emoji)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrReactionLimit):
			return nil, gwerrors.Newf(gwerrors.ReactionLimitExceeded, "at most %d distinct emoji per item", storage.MaxDistinctEmoji)
		case errors.Is(err, storage.ErrNotFound):
			return nil, gwerrors.New(gwerrors.NotFound, "content item not found")
		default:
			return nil, internalError(req.RequestID, "add reaction", err)
		}
	}

	if added {
		r.publishReaction(ctx, req, account, true)
	}
	return map[string]bool{"added": added}, nil
}

// handleRevokeReaction removes an emoji reaction. Revoking an absent
// reaction succeeds without changing state.
func (r *Router) handleRevokeReaction(ctx context.Context, req model.RequestEnvelope, account *model.Account) (interface{}, *gwerrors.Error) {
	if gwErr := validateEmoji(req.Emoji); gwErr != nil {
		return nil, gwErr
	}

	removed, err := r.store.RemoveReaction(ctx, req.ContentID, account.ID, req.Emoji)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, gwerrors.New(gwerrors.NotFound, "content item not found")
		}
		return nil, internalError(req.RequestID, "remove reaction", err)
	}

	if removed {
		r.publishReaction(ctx, req, account, false)
	}
	return map[string]bool{"removed": removed}, nil
}

// handleGetComments returns the shaped comment thread of a content item,
// oldest first.
func (r *Router) handleGetComments(ctx context.Context, req model.RequestEnvelope, account *model.Account) (interface{}, *gwerrors.Error) {
	if _, gwErr := r.fetchVisible(ctx, req.RequestID, req.ContentID); gwErr != nil {
		return nil, gwErr
	}

	comments, err := r.store.ListComments(ctx, req.ContentID)
	if err != nil {
		return nil, internalError(req.RequestID, "list comments", err)
	}

	return model.GetCommentsResult{
		Comments: shapeComments(comments, account.Moderator),
	}, nil
}

// fetchVisible loads a content item and maps its visibility flags to the
// protocol's error taxonomy.
func (r *Router) fetchVisible(ctx context.Context, requestID string, contentID int64) (*model.ContentItem, *gwerrors.Error) {
	item, err := r.store.GetContent(ctx, contentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, gwerrors.New(gwerrors.NotFound, "content item not found")
		}
		return nil, internalError(requestID, "get content", err)
	}
	if item.HiddenByUser || item.HiddenByModerator {
		return nil, gwerrors.New(gwerrors.NotVisible, "content item is not visible")
	}
	if !item.Approved {
		return nil, gwerrors.New(gwerrors.NotAvailable, "content item is not available")
	}
	return item, nil
}

// validateEmoji enforces the 1-20 character bounds on emoji values.
func validateEmoji(emoji string) *gwerrors.Error {
	n := utf8.RuneCountInString(emoji)
	if n < minEmojiLen || n > maxEmojiLen {
		return gwerrors.Newf(gwerrors.InvalidEmoji, "emoji must be %d-%d characters", minEmojiLen, maxEmojiLen)
	}
	return nil
}

// publishReaction emits the reaction change to the aggregation pipeline.
// Publish failures are logged, never surfaced: the state change already
// committed.
func (r *Router) publishReaction(ctx context.Context, req model.RequestEnvelope, account *model.Account, added bool) {
	ev := model.ReactionEvent{
		EventID:    ulid.Make().String(),
		ContentID:  req.ContentID,
		UserID:     account.ID,
		Emoji:      req.Emoji,
		Added:      added,
		OccurredAt: time.Now().UTC(),
	}
	if err := r.publisher.PublishReactionChanged(ctx, ev); err != nil {
		slog.Warn("failed to publish reaction event", "request_id", req.RequestID, "error", err)
	}
}

// shapeComments applies the thread display rules: moderator-hidden
// comments are omitted for non-moderator viewers; owner-deleted comments
// are omitted when nothing visible replies to them and placeholdered when
// something does. Depths run 0..2 only, so pruning walks the three levels
// deepest-first.
func shapeComments(comments []model.Comment, viewerModerator bool) []model.CommentView {
	visible := make([]model.Comment, 0, len(comments))
	for _, c := range comments {
		if c.HiddenByModerator && !viewerModerator {
			continue
		}
		visible = append(visible, c)
	}

	// A deleted comment survives only while a retained comment still
	// points at it. Processing depth 2 first lets a deleted reply's
	// removal cascade up to its deleted parent.
	retained := make(map[int64]bool, len(visible))
	for depth := storage.MaxCommentDepth; depth >= 0; depth-- {
		for _, c := range visible {
			if c.Depth != depth {
				continue
			}
			if !c.DeletedByOwner {
				retained[c.ID] = true
				continue
			}
			for _, reply := range visible {
				if reply.ParentID != nil && *reply.ParentID == c.ID && retained[reply.ID] {
					retained[c.ID] = true
					break
				}
			}
		}
	}

	views := make([]model.CommentView, 0, len(visible))
	for _, c := range visible {
		if !retained[c.ID] {
			continue
		}
		view := model.CommentView{
			ID:        c.ID,
			ParentID:  c.ParentID,
			Depth:     c.Depth,
			AuthorID:  c.AuthorID,
			Body:      c.Body,
			CreatedAt: c.CreatedAt,
		}
		if c.DeletedByOwner {
			view.Body = deletedBody
			view.AuthorID = nil
			view.Deleted = true
		}
		views = append(views, view)
	}
	return views
}
