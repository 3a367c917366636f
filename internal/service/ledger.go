package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ranikadev/baas-bot/internal/model"
	"github.com/ranikadev/baas-bot/internal/repository"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// Ledger records generated, posted and skipped messages per user. Calendar
// days are computed in the service location, not UTC.
type Ledger struct {
	posts repository.PostRepository
	loc   *time.Location
	now   func() time.Time
}

func NewLedger(posts repository.PostRepository, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{posts: posts, loc: loc, now: time.Now}
}

// DayBounds returns [start, end) of the service-local calendar day containing t.
func (l *Ledger) DayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.In(l.loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, l.loc)
	return start, start.AddDate(0, 0, 1)
}

func (l *Ledger) RecordGenerated(ctx context.Context, userID int64, content string) (*model.Post, error) {
	p := &model.Post{UserID: userID, Content: content, Status: model.PostStatusPending}
	if err := l.posts.CreatePost(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RecordPosted inserts a post that was published without passing through
// pending, such as the fallback greeting.
func (l *Ledger) RecordPosted(ctx context.Context, userID int64, content string, dailyCount int, externalID string) (*model.Post, error) {
	now := l.now()
	p := &model.Post{
		UserID:     userID,
		Content:    content,
		Status:     model.PostStatusPosted,
		PostedAt:   &now,
		DailyCount: dailyCount,
		ExternalID: optional(externalID),
	}
	if err := l.posts.CreatePost(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (l *Ledger) CountPostedToday(ctx context.Context, userID int64) (int, error) {
	start, end := l.DayBounds(l.now())
	return l.posts.CountPostedInRange(ctx, userID, start, end)
}

// NextPending returns the oldest pending post, or nil when there is none.
func (l *Ledger) NextPending(ctx context.Context, userID int64) (*model.Post, error) {
	p, err := l.posts.FirstPending(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// MarkPosted transitions post from pending to posted and updates it in place.
func (l *Ledger) MarkPosted(ctx context.Context, post *model.Post, dailyCount int, externalID string) error {
	now := l.now()
	extID := optional(externalID)
	if err := l.posts.MarkPosted(ctx, post.ID, now, dailyCount, extID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("post %d is no longer pending: %w", post.ID, err)
		}
		return err
	}
	post.Status = model.PostStatusPosted
	post.PostedAt = &now
	post.DailyCount = dailyCount
	post.ExternalID = extID
	return nil
}

// ListRecent returns up to limit posts, most recent first. Out-of-range
// limits fall back to DefaultHistoryLimit.
func (l *Ledger) ListRecent(ctx context.Context, userID int64, limit int) ([]model.Post, error) {
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = DefaultHistoryLimit
	}
	return l.posts.ListRecent(ctx, userID, limit)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
