// internal/storage/memory.go
// Package storage provides implementations of the Store interface for both
// in-memory and PostgreSQL backends. The in-memory backend is intended for
// development and testing.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/pixelfeed/pixelfeed-gateway-go/internal/model"
)

// Standard errors returned by the storage layer.
var (
	ErrNotFound      = errors.New("not found")               // Row does not exist
	ErrConflict      = errors.New("conflict")                // Row already exists
	ErrReactionLimit = errors.New("reaction limit reached")  // Sixth distinct emoji on one (content, user)
	ErrCommentDepth  = errors.New("comment depth exceeded")  // Reply targets a depth-2 parent
)

// MaxDistinctEmoji is the per-(content, user) cap on distinct reactions.
const MaxDistinctEmoji = 5

// MaxCommentDepth is the deepest allowed comment nesting level.
const MaxCommentDepth = 2

// Store defines the storage operations required by the gateway.
// It is implemented by both the in-memory and PostgreSQL backends.
type Store interface {
	// Content operations
	CreateContent(ctx context.Context, item *model.ContentItem) error            // Insert an item, assigning its insertion id
	GetContent(ctx context.Context, id int64) (*model.ContentItem, error)        // Fetch an item with its visibility flags
	ListVisibleContent(ctx context.Context) ([]model.ContentItem, error)         // Fetch the approved, unhidden set

	// Device and account operations
	CreateAccount(ctx context.Context, account model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	CreateDevice(ctx context.Context, device model.Device) error
	GetDevice(ctx context.Context, key string) (*model.Device, error)

	// Reaction operations. Both are idempotent: adding a present reaction
	// or removing an absent one succeeds without changing state.
	AddReaction(ctx context.Context, contentID int64, userID, emoji string) (bool, error)
	RemoveReaction(ctx context.Context, contentID int64, userID, emoji string) (bool, error)
	ListReactions(ctx context.Context, contentID int64, userID string) ([]model.Reaction, error)

	// Comment operations. CreateComment derives the depth from the parent
	// chain and rejects replies past MaxCommentDepth.
	CreateComment(ctx context.Context, comment *model.Comment) error
	ListComments(ctx context.Context, contentID int64) ([]model.Comment, error)
}

// memory implements the Store interface using in-memory maps.
type memory struct {
	mu            sync.RWMutex
	accounts      map[string]*model.Account
	devices       map[string]*model.Device
	content       map[int64]*model.ContentItem
	reactions     map[int64]map[string]map[string]*model.Reaction // contentID -> userID -> emoji
	comments      map[int64][]*model.Comment                      // contentID -> comments, insertion order
	nextContentID int64
	nextCommentID int64
}

// NewMemory creates a new in-memory storage implementation.
func NewMemory() Store {
	return &memory{
		accounts:  make(map[string]*model.Account),
		devices:   make(map[string]*model.Device),
		content:   make(map[int64]*model.ContentItem),
		reactions: make(map[int64]map[string]map[string]*model.Reaction),
		comments:  make(map[int64][]*model.Comment),
	}
}

func (m *memory) CreateAccount(ctx context.Context, account model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[account.ID]; exists {
		return ErrConflict
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	accountCopy := account
	m.accounts[account.ID] = &accountCopy
	return nil
}

func (m *memory) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, exists := m.accounts[id]
	if !exists {
		return nil, ErrNotFound
	}
	return account, nil
}

func (m *memory) CreateDevice(ctx context.Context, device model.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[device.OwnerID]; !exists {
		return errors.New("owning account not found")
	}
	if _, exists := m.devices[device.Key]; exists {
		return ErrConflict
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	deviceCopy := device
	m.devices[device.Key] = &deviceCopy
	return nil
}

func (m *memory) GetDevice(ctx context.Context, key string) (*model.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.devices[key]
	if !exists {
		return nil, ErrNotFound
	}
	return device, nil
}

func (m *memory) CreateContent(ctx context.Context, item *model.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[item.OwnerID]; !exists {
		return errors.New("owning account not found")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	m.nextContentID++
	item.ID = m.nextContentID
	itemCopy := *item
	m.content[item.ID] = &itemCopy
	return nil
}

func (m *memory) GetContent(ctx context.Context, id int64) (*model.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.content[id]
	if !exists {
		return nil, ErrNotFound
	}
	return item, nil
}

func (m *memory) ListVisibleContent(ctx context.Context) ([]model.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]model.ContentItem, 0, len(m.content))
	for _, item := range m.content {
		if item.Approved && !item.HiddenByUser && !item.HiddenByModerator {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (m *memory) AddReaction(ctx context.Context, contentID int64, userID, emoji string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.content[contentID]; !exists {
		return false, ErrNotFound
	}

	byUser := m.reactions[contentID]
	if byUser == nil {
		byUser = make(map[string]map[string]*model.Reaction)
		m.reactions[contentID] = byUser
	}
	byEmoji := byUser[userID]
	if byEmoji == nil {
		byEmoji = make(map[string]*model.Reaction)
		byUser[userID] = byEmoji
	}

	// Re-submitting a present reaction is a success with no state change.
	if _, exists := byEmoji[emoji]; exists {
		return false, nil
	}
	if len(byEmoji) >= MaxDistinctEmoji {
		return false, ErrReactionLimit
	}

	byEmoji[emoji] = &model.Reaction{
		ContentID: contentID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	}
	return true, nil
}

func (m *memory) RemoveReaction(ctx context.Context, contentID int64, userID, emoji string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.content[contentID]; !exists {
		return false, ErrNotFound
	}

	byEmoji := m.reactions[contentID][userID]
	if byEmoji == nil {
		return false, nil
	}
	if _, exists := byEmoji[emoji]; !exists {
		return false, nil
	}
	delete(byEmoji, emoji)
	return true, nil
}

func (m *memory) ListReactions(ctx context.Context, contentID int64, userID string) ([]model.Reaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byEmoji := m.reactions[contentID][userID]
	reactions := make([]model.Reaction, 0, len(byEmoji))
	for _, r := range byEmoji {
		reactions = append(reactions, *r)
	}
	sort.Slice(reactions, func(i, j int) bool {
		return reactions[i].Emoji < reactions[j].Emoji
	})
	return reactions, nil
}

func (m *memory) CreateComment(ctx context.Context, comment *model.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.content[comment.ContentID]; !exists {
		return ErrNotFound
	}

	// Depth is derived from the parent chain, never trusted from the caller.
	depth := 0
	if comment.ParentID != nil {
		parent := m.findComment(comment.ContentID, *comment.ParentID)
		if parent == nil {
			return ErrNotFound
		}
		if parent.Depth >= MaxCommentDepth {
			return ErrCommentDepth
		}
		depth = parent.Depth + 1
	}
	comment.Depth = depth

	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	m.nextCommentID++
	comment.ID = m.nextCommentID
	commentCopy := *comment
	m.comments[comment.ContentID] = append(m.comments[comment.ContentID], &commentCopy)
	return nil
}

func (m *memory) ListComments(ctx context.Context, contentID int64) ([]model.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.comments[contentID]
	comments := make([]model.Comment, 0, len(stored))
	for _, c := range stored {
		comments = append(comments, *c)
	}
	// Oldest first, insertion id as tie-break for identical timestamps.
	sort.Slice(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID < comments[j].ID
		}
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments, nil
}

// findComment locates a comment by id within one content item's thread.
// Caller holds the lock.
func (m *memory) findComment(contentID, commentID int64) *model.Comment {
	for _, c := range m.comments[contentID] {
		if c.ID == commentID {
			return c
		}
	}
	return nil
}
