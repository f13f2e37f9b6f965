// internal/paging/paging.go
// Package paging produces a reproducible total order over a content set
// and encodes the position between pages as an opaque cursor. Three sort
// modes are supported: insertion order, creation-timestamp order, and a
// seeded pseudo-random order whose permutation is stable across pages and
// concurrent inserts.
package paging

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"sort"

	gwerrors "github.com/pixelfeed/pixelfeed-gateway-go/internal/errors"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/model"
)

// SortMode selects the total order for a query.
type SortMode string

const (
	SortServerOrder SortMode = "server_order" // Monotonic insertion identifier
	SortCreatedAt   SortMode = "created_at"   // Creation timestamp, id tie-break
	SortRandom      SortMode = "random"       // Seeded keyed-hash permutation
)

const (
	// DefaultLimit applies when the client omits or zeroes the limit.
	DefaultLimit = 25

	// DeviceMaxLimit caps pages on the device pub/sub channel.
	DeviceMaxLimit = 50

	// FeedMaxLimit caps pages on richer feed interfaces.
	FeedMaxLimit = 200
)

// Request describes one page of a browsing session.
type Request struct {
	Sort     SortMode // Empty defaults to server_order
	Seed     *uint64  // Optional client seed for random mode
	Limit    int      // Requested page size before clamping
	Cursor   string   // Opaque cursor from the previous page, empty for the first
	MaxLimit int      // Channel-dependent clamp, defaults to DeviceMaxLimit
}

// Page is one page of ordered items. NextCursor is nil once the set is
// exhausted.
type Page struct {
	Items      []model.ContentItem
	NextCursor *string
	HasMore    bool
}

// cursorData is the decoded form of an opaque cursor. The boundary is the
// (rank key, item id) pair of the last returned item, never an offset, so
// concurrent inserts shift no page and already-returned items are never
// re-emitted.
type cursorData struct {
	Sort     SortMode `json:"sort"`
	LastRank uint64   `json:"lastRank"`
	LastID   int64    `json:"lastId"`
	Seed     uint64   `json:"seed,omitempty"`
}

// encodeCursor encodes cursor data into a base64 string.
func encodeCursor(data cursorData) string {
	jsonBytes, _ := json.Marshal(data)
	return base64.URLEncoding.EncodeToString(jsonBytes)
}

// decodeCursor decodes a base64 cursor string into cursor data.
func decodeCursor(cursor string) (*cursorData, *gwerrors.Error) {
	dataBytes, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, gwerrors.New(gwerrors.InvalidRequest, "invalid cursor format")
	}
	var data cursorData
	if err := json.Unmarshal(dataBytes, &data); err != nil {
		return nil, gwerrors.New(gwerrors.InvalidRequest, "invalid cursor data")
	}
	switch data.Sort {
	case SortServerOrder, SortCreatedAt, SortRandom:
	default:
		return nil, gwerrors.New(gwerrors.InvalidRequest, "invalid cursor sort mode")
	}
	return &data, nil
}

// RandomRank computes the deterministic rank key of an item under a seed:
// the first 8 bytes of sha256(seed_be64 || id_be64) read big-endian. Every
// process ranks the same item identically for the same seed.
func RandomRank(seed uint64, id int64) uint64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], seed)
	binary.BigEndian.PutUint64(buf[8:16], uint64(id))
	sum := sha256.Sum256(buf[:])
	return binary.BigEndian.Uint64(sum[:8])
}

// newSeed draws a random seed for sessions that did not supply one.
func newSeed() uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return binary.BigEndian.Uint64(buf[:])
}

// ranked pairs an item with its rank key under the active sort mode.
type ranked struct {
	item model.ContentItem
	rank uint64
}

// Apply orders the item set for the requested mode, skips past the cursor
// boundary, and returns at most one clamped page plus the cursor for the
// next one. The input set is not modified.
func Apply(items []model.ContentItem, req Request) (*Page, *gwerrors.Error) {
	mode := req.Sort
	if mode == "" {
		mode = SortServerOrder
	}
	switch mode {
	case SortServerOrder, SortCreatedAt, SortRandom:
	default:
		return nil, gwerrors.Newf(gwerrors.InvalidRequest, "unknown sort mode %q", req.Sort)
	}

	var prev *cursorData
	if req.Cursor != "" {
		var err *gwerrors.Error
		prev, err = decodeCursor(req.Cursor)
		if err != nil {
			return nil, err
		}
		if req.Sort != "" && prev.Sort != mode {
			return nil, gwerrors.New(gwerrors.InvalidRequest, "cursor does not match requested sort mode")
		}
		mode = prev.Sort
	}

	// A random-mode session keeps one seed for its whole lifetime: cursor
	// seed first, then the client's, then a fresh one.
	var seed uint64
	if mode == SortRandom {
		switch {
		case prev != nil:
			seed = prev.Seed
		case req.Seed != nil:
			seed = *req.Seed
		default:
			seed = newSeed()
		}
	}

	ordered := make([]ranked, len(items))
	for i, item := range items {
		ordered[i] = ranked{item: item, rank: rankOf(mode, seed, &item)}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].rank != ordered[j].rank {
			return ordered[i].rank < ordered[j].rank
		}
		return ordered[i].item.ID < ordered[j].item.ID
	})

	// Skip everything at or before the boundary.
	start := 0
	if prev != nil {
		start = sort.Search(len(ordered), func(i int) bool {
			if ordered[i].rank != prev.LastRank {
				return ordered[i].rank > prev.LastRank
			}
			return ordered[i].item.ID > prev.LastID
		})
	}

	limit := clampLimit(req.Limit, req.MaxLimit)

	end := start + limit
	if end > len(ordered) {
		end = len(ordered)
	}

	page := &Page{Items: make([]model.ContentItem, 0, end-start)}
	for _, r := range ordered[start:end] {
		page.Items = append(page.Items, r.item)
	}

	if end < len(ordered) && len(page.Items) > 0 {
		last := ordered[end-1]
		next := encodeCursor(cursorData{
			Sort:     mode,
			LastRank: last.rank,
			LastID:   last.item.ID,
			Seed:     seed,
		})
		page.NextCursor = &next
		page.HasMore = true
	}

	return page, nil
}

// rankOf computes the sort key of an item for the active mode. Timestamps
// order as unsigned nanoseconds, which holds for any post-epoch time.
func rankOf(mode SortMode, seed uint64, item *model.ContentItem) uint64 {
	switch mode {
	case SortCreatedAt:
		return uint64(item.CreatedAt.UnixNano())
	case SortRandom:
		return RandomRank(seed, item.ID)
	default:
		return uint64(item.ID)
	}
}

// clampLimit normalizes the requested page size into 1..max.
func clampLimit(limit, max int) int {
	if max <= 0 {
		max = DeviceMaxLimit
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > max {
		limit = max
	}
	return limit
}
