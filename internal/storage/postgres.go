// internal/storage/postgres.go
// PostgreSQL implementation of the Store interface, intended for
// production use with persistent data storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/model"
)

type postgres struct {
	db *pgxpool.Pool // Connection pool to PostgreSQL database
}

// NewPostgres creates a new PostgreSQL storage implementation.
// It establishes a connection pool to the database and initializes the
// schema.
func NewPostgres(dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	config.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &postgres{db: pool}, nil
}

// initSchema creates all required tables and indexes if they don't exist.
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
		-- Accounts table for content and device owners
		CREATE TABLE IF NOT EXISTS accounts (
		    id TEXT PRIMARY KEY,
		    moderator BOOLEAN NOT NULL DEFAULT FALSE,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		-- Devices table; the key is the opaque UUID presented by clients
		CREATE TABLE IF NOT EXISTS devices (
		    key TEXT PRIMARY KEY,
		    owner_id TEXT NOT NULL REFERENCES accounts(id),
		    active BOOLEAN NOT NULL DEFAULT TRUE,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		-- Content items: artwork and playlist variants in one table,
		-- discriminated by kind; artwork metadata columns are null for
		-- playlists. id doubles as the insertion identifier for ordering.
		CREATE TABLE IF NOT EXISTS content_items (
		    id BIGSERIAL PRIMARY KEY,
		    kind TEXT NOT NULL,
		    owner_id TEXT NOT NULL REFERENCES accounts(id),
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    approved BOOLEAN NOT NULL DEFAULT FALSE,
		    hidden_by_user BOOLEAN NOT NULL DEFAULT FALSE,
		    hidden_by_moderator BOOLEAN NOT NULL DEFAULT FALSE,
		    width BIGINT,
		    height BIGINT,
		    file_bytes BIGINT,
		    frame_count BIGINT,
		    min_frame_duration_ms BIGINT,
		    max_frame_duration_ms BIGINT,
		    unique_colors BIGINT,
		    transparency_meta BOOLEAN,
		    alpha_meta BOOLEAN,
		    transparency_actual BOOLEAN,
		    alpha_actual BOOLEAN,
		    file_format TEXT,
		    artwork_count BIGINT
		);

		CREATE INDEX IF NOT EXISTS idx_content_items_created_at ON content_items(created_at, id);
		CREATE INDEX IF NOT EXISTS idx_content_items_owner ON content_items(owner_id);
		CREATE INDEX IF NOT EXISTS idx_content_items_visible ON content_items(approved, hidden_by_user, hidden_by_moderator);

		-- Reactions, unique per (content, user, emoji)
		CREATE TABLE IF NOT EXISTS reactions (
		    content_id BIGINT NOT NULL REFERENCES content_items(id),
		    user_id TEXT NOT NULL REFERENCES accounts(id),
		    emoji TEXT NOT NULL,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    PRIMARY KEY (content_id, user_id, emoji)
		);

		-- Comments; depth is derived server-side and capped at 2
		CREATE TABLE IF NOT EXISTS comments (
		    id BIGSERIAL PRIMARY KEY,
		    content_id BIGINT NOT NULL REFERENCES content_items(id),
		    parent_id BIGINT REFERENCES comments(id),
		    depth INTEGER NOT NULL DEFAULT 0,
		    author_id TEXT REFERENCES accounts(id),
		    body TEXT NOT NULL,
		    deleted_by_owner BOOLEAN NOT NULL DEFAULT FALSE,
		    hidden_by_moderator BOOLEAN NOT NULL DEFAULT FALSE,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_comments_content_created ON comments(content_id, created_at, id);
	`

	_, err := db.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (p *postgres) Close() {
	p.db.Close()
}

// Ping reports whether the database is reachable.
func (p *postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *postgres) CreateAccount(ctx context.Context, account model.Account) error {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	query := `INSERT INTO accounts (id, moderator, created_at) VALUES ($1, $2, $3)`
	_, err := p.db.Exec(ctx, query, account.ID, account.Moderator, createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (p *postgres) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT id, moderator, created_at FROM accounts WHERE id = $1`
	var account model.Account

	err := p.db.QueryRow(ctx, query, id).Scan(&account.ID, &account.Moderator, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (p *postgres) CreateDevice(ctx context.Context, device model.Device) error {
	createdAt := device.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	query := `INSERT INTO devices (key, owner_id, active, created_at) VALUES ($1, $2, $3, $4)`
	_, err := p.db.Exec(ctx, query, device.Key, device.OwnerID, device.Active, createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

func (p *postgres) GetDevice(ctx context.Context, key string) (*model.Device, error) {
	query := `SELECT key, owner_id, active, created_at FROM devices WHERE key = $1`
	var device model.Device

	err := p.db.QueryRow(ctx, query, key).Scan(&device.Key, &device.OwnerID, &device.Active, &device.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &device, nil
}

const contentColumns = `id, kind, owner_id, created_at, approved, hidden_by_user, hidden_by_moderator,
	width, height, file_bytes, frame_count, min_frame_duration_ms, max_frame_duration_ms,
	unique_colors, transparency_meta, alpha_meta, transparency_actual, alpha_actual,
	file_format, artwork_count`

func (p *postgres) CreateContent(ctx context.Context, item *model.ContentItem) error {
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
		item.CreatedAt = createdAt
	}

	var (
		width, height, fileBytes, frameCount           *int64
		minFrameDuration, maxFrameDuration, uniqueColors *int64
		transparencyMeta, alphaMeta                    *bool
		transparencyActual, alphaActual                *bool
		fileFormat                                     *string
		artworkCount                                   *int64
	)
	if a := item.Artwork; a != nil {
		width, height = &a.Width, &a.Height
		fileBytes, frameCount = &a.FileBytes, &a.FrameCount
		minFrameDuration, maxFrameDuration = &a.MinFrameDurationMS, &a.MaxFrameDurationMS
		uniqueColors = &a.UniqueColors
		transparencyMeta, alphaMeta = a.TransparencyMeta, a.AlphaMeta
		transparencyActual, alphaActual = a.TransparencyActual, a.AlphaActual
		format := string(a.FileFormat)
		fileFormat = &format
	}
	if pl := item.Playlist; pl != nil {
		artworkCount = &pl.ArtworkCount
	}

	query := `INSERT INTO content_items
		(kind, owner_id, created_at, approved, hidden_by_user, hidden_by_moderator,
		 width, height, file_bytes, frame_count, min_frame_duration_ms, max_frame_duration_ms,
		 unique_colors, transparency_meta, alpha_meta, transparency_actual, alpha_actual,
		 file_format, artwork_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id`

	err := p.db.QueryRow(ctx, query,
		item.Kind,
		item.OwnerID,
		createdAt,
		item.Approved,
		item.HiddenByUser,
		item.HiddenByModerator,
		width, height, fileBytes, frameCount,
		minFrameDuration, maxFrameDuration, uniqueColors,
		transparencyMeta, alphaMeta, transparencyActual, alphaActual,
		fileFormat, artworkCount,
	).Scan(&item.ID)

	if err != nil {
		return fmt.Errorf("failed to create content item: %w", err)
	}
	return nil
}

// scanContent reads one content_items row into a ContentItem, rebuilding
// the variant union from the nullable columns.
func scanContent(row pgx.Row) (*model.ContentItem, error) {
	var (
		item                                           model.ContentItem
		kind                                           string
		width, height, fileBytes, frameCount           *int64
		minFrameDuration, maxFrameDuration, uniqueColors *int64
		transparencyMeta, alphaMeta                    *bool
		transparencyActual, alphaActual                *bool
		fileFormat                                     *string
		artworkCount                                   *int64
	)

	err := row.Scan(
		&item.ID, &kind, &item.OwnerID, &item.CreatedAt,
		&item.Approved, &item.HiddenByUser, &item.HiddenByModerator,
		&width, &height, &fileBytes, &frameCount,
		&minFrameDuration, &maxFrameDuration, &uniqueColors,
		&transparencyMeta, &alphaMeta, &transparencyActual, &alphaActual,
		&fileFormat, &artworkCount,
	)
	if err != nil {
		return nil, err
	}

	item.Kind = model.ContentKind(kind)
	switch item.Kind {
	case model.KindArtwork:
		artwork := &model.ArtworkMeta{
			TransparencyMeta:   transparencyMeta,
			AlphaMeta:          alphaMeta,
			TransparencyActual: transparencyActual,
			AlphaActual:        alphaActual,
		}
		if width != nil {
			artwork.Width = *width
		}
		if height != nil {
			artwork.Height = *height
		}
		if fileBytes != nil {
			artwork.FileBytes = *fileBytes
		}
		if frameCount != nil {
			artwork.FrameCount = *frameCount
		}
		if minFrameDuration != nil {
			artwork.MinFrameDurationMS = *minFrameDuration
		}
		if maxFrameDuration != nil {
			artwork.MaxFrameDurationMS = *maxFrameDuration
		}
		if uniqueColors != nil {
			artwork.UniqueColors = *uniqueColors
		}
		if fileFormat != nil {
			artwork.FileFormat = model.FileFormat(*fileFormat)
		}
		item.Artwork = artwork
	case model.KindPlaylist:
		playlist := &model.PlaylistMeta{}
		if artworkCount != nil {
			playlist.ArtworkCount = *artworkCount
		}
		item.Playlist = playlist
	}

	return &item, nil
}

func (p *postgres) GetContent(ctx context.Context, id int64) (*model.ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE id = $1`
	item, err := scanContent(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get content item: %w", err)
	}
	return item, nil
}

func (p *postgres) ListVisibleContent(ctx context.Context) ([]model.ContentItem, error) {
	// Visibility is pushed into SQL; criteria filtering and ordering happen
	// in the shared engine so all three sort modes behave identically
	// across backends.
	query := `SELECT ` + contentColumns + ` FROM content_items
	          WHERE approved AND NOT hidden_by_user AND NOT hidden_by_moderator
	          ORDER BY id`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list content items: %w", err)
	}
	defer rows.Close()

	var items []model.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content items: %w", err)
	}
	return items, nil
}

func (p *postgres) AddReaction(ctx context.Context, contentID int64, userID, emoji string) (bool, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reactions WHERE content_id = $1 AND user_id = $2 AND emoji = $3)`,
		contentID, userID, emoji).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reaction: %w", err)
	}
	if exists {
		// Idempotent re-submit.
		return false, nil
	}

	var count int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM reactions WHERE content_id = $1 AND user_id = $2`,
		contentID, userID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count reactions: %w", err)
	}
	if count >= MaxDistinctEmoji {
		return false, ErrReactionLimit
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO reactions (content_id, user_id, emoji, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (content_id, user_id, emoji) DO NOTHING`,
		contentID, userID, emoji, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("failed to add reaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit reaction: %w", err)
	}
	return true, nil
}

func (p *postgres) RemoveReaction(ctx context.Context, contentID int64, userID, emoji string) (bool, error) {
	result, err := p.db.Exec(ctx,
		`DELETE FROM reactions WHERE content_id = $1 AND user_id = $2 AND emoji = $3`,
		contentID, userID, emoji)
	if err != nil {
		return false, fmt.Errorf("failed to remove reaction: %w", err)
	}
	if result.RowsAffected() > 0 {
		return true, nil
	}

	// Nothing deleted: distinguish an idempotent no-op from a revoke
	// against a content item that does not exist.
	var exists bool
	err = p.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM content_items WHERE id = $1)`, contentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check content item: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (p *postgres) ListReactions(ctx context.Context, contentID int64, userID string) ([]model.Reaction, error) {
	rows, err := p.db.Query(ctx,
		`SELECT content_id, user_id, emoji, created_at FROM reactions
		 WHERE content_id = $1 AND user_id = $2 ORDER BY emoji`,
		contentID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reactions: %w", err)
	}
	defer rows.Close()

	var reactions []model.Reaction
	for rows.Next() {
		var r model.Reaction
		if err := rows.Scan(&r.ContentID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reaction: %w", err)
		}
		reactions = append(reactions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reactions: %w", err)
	}
	return reactions, nil
}

func (p *postgres) CreateComment(ctx context.Context, comment *model.Comment) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	depth := 0
	if comment.ParentID != nil {
		var parentDepth int
		err := tx.QueryRow(ctx,
			`SELECT depth FROM comments WHERE id = $1 AND content_id = $2`,
			*comment.ParentID, comment.ContentID).Scan(&parentDepth)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get parent comment: %w", err)
		}
		if parentDepth >= MaxCommentDepth {
			return ErrCommentDepth
		}
		depth = parentDepth + 1
	}
	comment.Depth = depth

	createdAt := comment.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
		comment.CreatedAt = createdAt
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO comments (content_id, parent_id, depth, author_id, body, deleted_by_owner, hidden_by_moderator, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		comment.ContentID, comment.ParentID, depth, comment.AuthorID,
		comment.Body, comment.DeletedByOwner, comment.HiddenByModerator, createdAt,
	).Scan(&comment.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("failed to create comment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit comment: %w", err)
	}
	return nil
}

func (p *postgres) ListComments(ctx context.Context, contentID int64) ([]model.Comment, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, content_id, parent_id, depth, author_id, body, deleted_by_owner, hidden_by_moderator, created_at
		 FROM comments WHERE content_id = $1 ORDER BY created_at, id`,
		contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		err := rows.Scan(&c.ID, &c.ContentID, &c.ParentID, &c.Depth, &c.AuthorID,
			&c.Body, &c.DeletedByOwner, &c.HiddenByModerator, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}
	return comments, nil
}
