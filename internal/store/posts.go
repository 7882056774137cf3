package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"notion-content-sync/internal/models"
)

const postColumns = `id, external_id, title, slug, excerpt, tags, author,
	canonical_url, published, published_at, icon_emoji, icon_url, cover_url,
	last_edited_time, synced_at, created_at, updated_at`

// UpsertByExternalID inserts or refreshes a post keyed by its Notion page
// id, filling back the generated id and timestamps.
func (s *Store) UpsertByExternalID(ctx context.Context, post *models.Post) error {
	now := time.Now().UTC()
	if post.Tags == nil {
		post.Tags = []string{}
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO posts (id, external_id, title, slug, excerpt, tags, author, canonical_url,
			published, published_at, icon_emoji, icon_url, cover_url, last_edited_time,
			synced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		ON CONFLICT (external_id) DO UPDATE SET
			title = EXCLUDED.title,
			slug = EXCLUDED.slug,
			excerpt = EXCLUDED.excerpt,
			tags = EXCLUDED.tags,
			author = EXCLUDED.author,
			canonical_url = EXCLUDED.canonical_url,
			published = EXCLUDED.published,
			published_at = EXCLUDED.published_at,
			icon_emoji = EXCLUDED.icon_emoji,
			icon_url = EXCLUDED.icon_url,
			cover_url = EXCLUDED.cover_url,
			last_edited_time = EXCLUDED.last_edited_time,
			synced_at = EXCLUDED.synced_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`,
		uuid.NewString(), post.ExternalID, post.Title, post.Slug, post.Excerpt, post.Tags,
		post.Author, post.CanonicalURL, post.Published, post.PublishedAt, post.IconEmoji,
		post.IconURL, post.CoverURL, post.LastEditedTime, post.SyncedAt, now)

	if err := row.Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt); err != nil {
		return fmt.Errorf("upsert post: %w", err)
	}
	return nil
}

// FindByExternalID returns the post for a Notion page id, nil when absent.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*models.Post, error) {
	return s.findPost(ctx, `SELECT `+postColumns+` FROM posts WHERE external_id = $1`, externalID)
}

// FindBySlug returns the post for a slug, nil when absent.
func (s *Store) FindBySlug(ctx context.Context, slug string) (*models.Post, error) {
	return s.findPost(ctx, `SELECT `+postColumns+` FROM posts WHERE slug = $1`, slug)
}

// ListPublished returns all published posts, newest first.
func (s *Store) ListPublished(ctx context.Context) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+` FROM posts WHERE published ORDER BY published_at DESC NULLS LAST`)
	if err != nil {
		return nil, fmt.Errorf("list published posts: %w", err)
	}
	defer rows.Close()
	var posts []models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (s *Store) findPost(ctx context.Context, query string, arg any) (*models.Post, error) {
	row := s.pool.QueryRow(ctx, query, arg)
	post, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find post: %w", err)
	}
	return &post, nil
}

func scanPost(row pgx.Row) (models.Post, error) {
	var post models.Post
	err := row.Scan(
		&post.ID, &post.ExternalID, &post.Title, &post.Slug, &post.Excerpt, &post.Tags,
		&post.Author, &post.CanonicalURL, &post.Published, &post.PublishedAt,
		&post.IconEmoji, &post.IconURL, &post.CoverURL, &post.LastEditedTime,
		&post.SyncedAt, &post.CreatedAt, &post.UpdatedAt,
	)
	return post, err
}
