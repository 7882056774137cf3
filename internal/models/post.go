package models

import (
	"time"
)

// Post is the synced projection of one Notion page.
type Post struct {
	ID             string     `json:"id"`
	ExternalID     string     `json:"external_id"`
	Title          string     `json:"title"`
	Slug           string     `json:"slug"`
	Excerpt        *string    `json:"excerpt,omitempty"`
	Tags           []string   `json:"tags"`
	Author         *string    `json:"author,omitempty"`
	CanonicalURL   *string    `json:"canonical_url,omitempty"`
	Published      bool       `json:"published"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	IconEmoji      *string    `json:"icon_emoji,omitempty"`
	IconURL        *string    `json:"icon_url,omitempty"`
	CoverURL       *string    `json:"cover_url,omitempty"`
	LastEditedTime *string    `json:"last_edited_time,omitempty"`
	SyncedAt       time.Time  `json:"synced_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
