package model

import "time"

type PostStatus string

const (
	PostStatusPending PostStatus = "pending"
	PostStatusPosted  PostStatus = "posted"
	// PostStatusSkipped is reserved; nothing sets it yet.
	PostStatusSkipped PostStatus = "skipped"
)

// Post is one generated or published message.
type Post struct {
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	Content    string     `db:"content" json:"content"`
	Status     PostStatus `db:"status" json:"status"`
	PostedAt   *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	DailyCount int        `db:"daily_count" json:"daily_count"`
	ExternalID *string    `db:"external_id" json:"external_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
