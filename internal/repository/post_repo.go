package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ranikadev/baas-bot/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostRepository stores the per-user post ledger.
type PostRepository interface {
	CreatePost(ctx context.Context, p *model.Post) error
	// CountPostedInRange counts posts with posted_at in [start, end).
	CountPostedInRange(ctx context.Context, userID int64, start, end time.Time) (int, error)
	// FirstPending returns the oldest pending post by insertion order, or ErrNotFound.
	FirstPending(ctx context.Context, userID int64) (*model.Post, error)
	// MarkPosted moves a pending post to posted. Returns ErrNotFound when the
	// post is no longer pending.
	MarkPosted(ctx context.Context, postID int64, postedAt time.Time, dailyCount int, externalID *string) error
	ListRecent(ctx context.Context, userID int64, limit int) ([]model.Post, error)
}

type postRepo struct {
	pool *pgxpool.Pool
}

func NewPostRepo(pool *pgxpool.Pool) PostRepository {
	return &postRepo{pool: pool}
}

const postColumns = `id, user_id, content, status, posted_at, daily_count, external_id, created_at`

func scanPost(row pgx.Row) (*model.Post, error) {
	var p model.Post
	if err := row.Scan(&p.ID, &p.UserID, &p.Content, &p.Status, &p.PostedAt, &p.DailyCount, &p.ExternalID, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepo) CreatePost(ctx context.Context, p *model.Post) error {
	const q = `
		INSERT INTO news_posts (user_id, content, status, posted_at, daily_count, external_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, q, p.UserID, p.Content, p.Status, p.PostedAt, p.DailyCount, p.ExternalID).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting post for user %d: %w", p.UserID, err)
	}
	return nil
}

func (r *postRepo) CountPostedInRange(ctx context.Context, userID int64, start, end time.Time) (int, error) {
	var count int
	const q = `
		SELECT COUNT(*)
		FROM news_posts
		WHERE user_id = $1
		  AND posted_at >= $2
		  AND posted_at < $3
	`
	if err := r.pool.QueryRow(ctx, q, userID, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting posts for user %d: %w", userID, err)
	}
	return count, nil
}

func (r *postRepo) FirstPending(ctx context.Context, userID int64) (*model.Post, error) {
	q := `SELECT ` + postColumns + `
		FROM news_posts
		WHERE user_id = $1 AND status = 'pending'
		ORDER BY id
		LIMIT 1`
	p, err := scanPost(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch pending post for user %d: %w", userID, err)
	}
	return p, nil
}

func (r *postRepo) MarkPosted(ctx context.Context, postID int64, postedAt time.Time, dailyCount int, externalID *string) error {
	const q = `
		UPDATE news_posts
		SET status = 'posted', posted_at = $2, daily_count = $3, external_id = $4
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.pool.Exec(ctx, q, postID, postedAt, dailyCount, externalID)
	if err != nil {
		return fmt.Errorf("marking post %d posted: %w", postID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postRepo) ListRecent(ctx context.Context, userID int64, limit int) ([]model.Post, error) {
	q := `SELECT ` + postColumns + `
		FROM news_posts
		WHERE user_id = $1
		ORDER BY COALESCE(posted_at, created_at) DESC, id DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing posts for user %d: %w", userID, err)
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing posts for user %d: %w", userID, err)
	}
	return posts, nil
}
