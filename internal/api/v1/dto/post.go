package dto

import "time"

type HistoryItemDTO struct {
	ID         int64      `json:"id"`
	Content    string     `json:"content"`
	Status     string     `json:"status"`
	PostedAt   *time.Time `json:"posted_at,omitempty"`
	DailyCount int        `json:"daily_count"`
	ExternalID *string    `json:"external_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type HistoryResponseDTO struct {
	Posts []HistoryItemDTO `json:"posts"`
}

// TriggerResponseDTO reports the outcome of a manual fetch-and-post.
type TriggerResponseDTO struct {
	RunID      string `json:"run_id"`
	Outcome    string `json:"outcome"`
	Published  bool   `json:"published"`
	Generated  string `json:"generated,omitempty"`
	DailyCount int    `json:"daily_count"`
	PostID     int64  `json:"post_id,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}
