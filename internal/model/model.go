// internal/model/model.go
// Package model defines the data structures used throughout the gateway.
// These structures represent the core domain objects for content items,
// devices, reactions, comments, and the wire envelopes exchanged with
// clients over the pub/sub transport.
package model

import (
	"time"
)

// ContentKind discriminates the two content item variants.
type ContentKind string

const (
	KindArtwork  ContentKind = "artwork"  // Pixel artwork with image metadata
	KindPlaylist ContentKind = "playlist" // Ordered collection of artworks
)

// FileFormat identifies the container format of an artwork file.
type FileFormat string

const (
	FormatPNG  FileFormat = "png"
	FormatGIF  FileFormat = "gif"
	FormatWebP FileFormat = "webp"
	FormatBMP  FileFormat = "bmp"
)

// Account represents the owning account behind a device key.
// Devices inherit the permissions of their owning account.
type Account struct {
	ID        string    `json:"id" db:"id"`                // Unique account identifier
	Moderator bool      `json:"moderator" db:"moderator"`  // Whether the account holds moderator permissions
	CreatedAt time.Time `json:"createdAt" db:"created_at"` // When the account was created
}

// Device represents a provisioned client device.
// Each device is identified by an opaque UUID key mapping 1:1 to an
// owning account. This corresponds to the devices table in storage.
type Device struct {
	Key       string    `json:"key" db:"key"`              // Opaque device key (UUID)
	OwnerID   string    `json:"ownerId" db:"owner_id"`     // Owning account identifier
	Active    bool      `json:"active" db:"active"`        // False once the device is deleted
	CreatedAt time.Time `json:"createdAt" db:"created_at"` // When the device was provisioned
}

// ArtworkMeta holds the typed metadata of an artwork content item.
// The four transparency/alpha flags are nullable: the *_meta pair comes
// from the file container and may be absent, the *_actual pair comes from
// pixel inspection which may not have run yet.
type ArtworkMeta struct {
	Width              int64      `json:"width" db:"width"`                                // Pixel width
	Height             int64      `json:"height" db:"height"`                              // Pixel height
	FileBytes          int64      `json:"fileBytes" db:"file_bytes"`                       // File size in bytes
	FrameCount         int64      `json:"frameCount" db:"frame_count"`                     // 1 for static images
	MinFrameDurationMS int64      `json:"minFrameDurationMs" db:"min_frame_duration_ms"`   // Shortest frame duration
	MaxFrameDurationMS int64      `json:"maxFrameDurationMs" db:"max_frame_duration_ms"`   // Longest frame duration
	UniqueColors       int64      `json:"uniqueColors" db:"unique_colors"`                 // Distinct colors used
	TransparencyMeta   *bool      `json:"transparencyMeta" db:"transparency_meta"`         // Container-declared transparency
	AlphaMeta          *bool      `json:"alphaMeta" db:"alpha_meta"`                       // Container-declared alpha channel
	TransparencyActual *bool      `json:"transparencyActual" db:"transparency_actual"`     // Pixel-inspected transparency
	AlphaActual        *bool      `json:"alphaActual" db:"alpha_actual"`                   // Pixel-inspected alpha channel
	FileFormat         FileFormat `json:"fileFormat" db:"file_format"`                     // png, gif, webp, or bmp
}

// PlaylistMeta holds the metadata of a playlist content item.
type PlaylistMeta struct {
	ArtworkCount int64 `json:"artworkCount" db:"artwork_count"` // Number of artworks in the playlist
}

// ContentItem is the union of the two content variants, discriminated by
// Kind. Exactly one of Artwork or Playlist is non-nil.
// This corresponds to the content_items table in storage.
type ContentItem struct {
	ID                int64         `json:"id" db:"id"`                   // Monotonically increasing insertion identifier
	Kind              ContentKind   `json:"kind" db:"kind"`               // artwork or playlist
	OwnerID           string        `json:"ownerId" db:"owner_id"`        // Owning account identifier
	CreatedAt         time.Time     `json:"createdAt" db:"created_at"`    // Creation timestamp
	Approved          bool          `json:"-" db:"approved"`              // Passed moderation review
	HiddenByUser      bool          `json:"-" db:"hidden_by_user"`        // Hidden by the owning user
	HiddenByModerator bool          `json:"-" db:"hidden_by_moderator"`   // Hidden by a moderator
	Artwork           *ArtworkMeta  `json:"artwork,omitempty" db:"-"`     // Set when Kind == artwork
	Playlist          *PlaylistMeta `json:"playlist,omitempty" db:"-"`    // Set when Kind == playlist
}

// Reaction represents an emoji reaction on a content item.
// Unique per (content_id, user_id, emoji); at most 5 distinct emoji per
// (content_id, user_id). This corresponds to the reactions table.
type Reaction struct {
	ContentID int64     `json:"contentId" db:"content_id"` // Reacted content item
	UserID    string    `json:"userId" db:"user_id"`       // Reacting account
	Emoji     string    `json:"emoji" db:"emoji"`          // Emoji value, 1-20 characters
	CreatedAt time.Time `json:"createdAt" db:"created_at"` // When the reaction was added
}

// Comment represents a comment on a content item. Depth is derived from
// the parent chain, never client-supplied, and capped at 2.
// This corresponds to the comments table in storage.
type Comment struct {
	ID                int64     `json:"id" db:"id"`                  // Unique comment identifier
	ContentID         int64     `json:"contentId" db:"content_id"`  // Commented content item
	ParentID          *int64    `json:"parentId" db:"parent_id"`    // Parent comment, nil for top-level
	Depth             int       `json:"depth" db:"depth"`           // 0, 1, or 2
	AuthorID          *string   `json:"authorId" db:"author_id"`    // Nil for anonymous comments
	Body              string    `json:"body" db:"body"`             // Comment text
	DeletedByOwner    bool      `json:"-" db:"deleted_by_owner"`    // Soft-deleted by the content owner
	HiddenByModerator bool      `json:"-" db:"hidden_by_moderator"` // Hidden by a moderator
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`  // When the comment was posted
}

// Criterion is one (field, operator, value) filter entry. Values arrive as
// decoded JSON, so numbers are float64 and in/not_in lists are []interface{}.
type Criterion struct {
	Field string      `json:"field"`           // One of the whitelisted metadata field names
	Op    string      `json:"op"`              // Comparison operator
	Value interface{} `json:"value,omitempty"` // Comparison value, absent for is_null/is_not_null
}

// Request types accepted by the router. The set is closed: the router
// dispatches with an exhaustive switch so adding a type is a compile-time
// visible change.
const (
	RequestQueryPosts     = "query_posts"
	RequestGetPost        = "get_post"
	RequestSubmitView     = "submit_view"
	RequestSubmitReaction = "submit_reaction"
	RequestRevokeReaction = "revoke_reaction"
	RequestGetComments    = "get_comments"
)

// View intents accepted by submit_view.
const (
	IntentIntentional = "intentional" // Deliberate view by a person
	IntentAutomated   = "automated"   // Rotation or scheduled display
)

// RequestEnvelope is the wire format of an inbound request. The
// type-specific payload fields are flattened into the envelope; fields not
// relevant to the request type are simply left at their zero value.
type RequestEnvelope struct {
	RequestID   string `json:"request_id"`   // Client-generated correlation token
	RequestType string `json:"request_type"` // One of the Request* constants
	DeviceKey   string `json:"device_key"`   // Opaque device key (UUID)

	// query_posts fields
	Criteria []Criterion `json:"criteria,omitempty"` // 0-64 AND-combined filters
	Sort     string      `json:"sort,omitempty"`     // server_order, created_at, or random
	Seed     *uint64     `json:"seed,omitempty"`     // Optional seed for random sort
	Limit    int         `json:"limit,omitempty"`    // Page size, clamped by the engine
	Cursor   string      `json:"cursor,omitempty"`   // Opaque pagination cursor

	// get_post, submit_view, reactions, get_comments fields
	ContentID int64  `json:"content_id,omitempty"` // Target content item
	Intent    string `json:"intent,omitempty"`     // submit_view intent
	Emoji     string `json:"emoji,omitempty"`      // Reaction emoji value
}

// ResponseEnvelope is the wire format of an outbound response. Exactly one
// response is produced per observed request_id. On success Data carries the
// type-specific payload; on failure Error and ErrorCode are set instead.
type ResponseEnvelope struct {
	RequestID string      `json:"request_id"`           // Echoed correlation token
	Success   bool        `json:"success"`              // Whether the request succeeded
	Data      interface{} `json:"data,omitempty"`       // Type-specific response payload
	Error     string      `json:"error,omitempty"`      // Human-readable error message
	ErrorCode string      `json:"error_code,omitempty"` // Machine-readable error code
}

// QueryPostsResult is the payload of a successful query_posts response.
type QueryPostsResult struct {
	Items      []ContentItem `json:"items"`                // Page of matching content items
	NextCursor *string       `json:"next_cursor"`          // Null when the result set is exhausted
	HasMore    bool          `json:"has_more"`             // Whether more items follow the page
}

// CommentView is one comment as returned to clients by get_comments.
// Owner-deleted comments that still anchor replies keep their position with
// a placeholder body.
type CommentView struct {
	ID        int64     `json:"id"`
	ParentID  *int64    `json:"parentId"`
	Depth     int       `json:"depth"`
	AuthorID  *string   `json:"authorId"` // Nil for anonymous or owner-deleted comments
	Body      string    `json:"body"`
	Deleted   bool      `json:"deleted"` // True when the body is the deletion placeholder
	CreatedAt time.Time `json:"createdAt"`
}

// GetCommentsResult is the payload of a successful get_comments response.
type GetCommentsResult struct {
	Comments []CommentView `json:"comments"` // Oldest-first
}

// ViewEvent is the fire-and-forget record handed to the asynchronous write
// pipeline when a view is submitted. Duplicate events are acceptable: views
// are approximate counters and the pipeline owns aggregation.
type ViewEvent struct {
	EventID    string    `json:"eventId"`    // ULID, collision-resistant and time-ordered
	ContentID  int64     `json:"contentId"`  // Viewed content item
	ViewerID   string    `json:"viewerId"`   // Account that owns the viewing device
	DeviceKey  string    `json:"deviceKey"`  // Device the view came from
	Intent     string    `json:"intent"`     // intentional or automated
	OccurredAt time.Time `json:"occurredAt"` // When the view was submitted
}

// ReactionEvent is the asynchronous notification emitted after a reaction
// state change, consumed by the aggregation pipeline.
type ReactionEvent struct {
	EventID    string    `json:"eventId"`
	ContentID  int64     `json:"contentId"`
	UserID     string    `json:"userId"`
	Emoji      string    `json:"emoji"`
	Added      bool      `json:"added"` // True for submit, false for revoke
	OccurredAt time.Time `json:"occurredAt"`
}
