package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ranikadev/baas-bot/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User, encryptedCredentials []byte) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)
	// ListActiveUsers returns users with is_active = true ordered by id.
	ListActiveUsers(ctx context.Context) ([]model.User, error)
	SetActive(ctx context.Context, id int64, active bool) error
	UpdatePreferences(ctx context.Context, id int64, prefs model.Preferences) error
	UpdateTier(ctx context.Context, id int64, tier model.Tier) error
	UpdateStripeCustomerID(ctx context.Context, id int64, customerID string) error
	GetEncryptedCredentials(ctx context.Context, id int64) ([]byte, error)
	SetEncryptedCredentials(ctx context.Context, id int64, blob []byte) error
	// DeleteUser removes a user that has no posts yet.
	DeleteUser(ctx context.Context, id int64) error
}

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

const userColumns = `id, username, is_active, subscription_tier, preferences, stripe_customer_id, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var rawPrefs []byte
	err := row.Scan(&u.ID, &u.Username, &u.IsActive, &u.SubscriptionTier, &rawPrefs, &u.StripeCustomerID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(rawPrefs) > 0 {
		if err := json.Unmarshal(rawPrefs, &u.Preferences); err != nil {
			return nil, fmt.Errorf("unmarshal preferences for user %d: %w", u.ID, err)
		}
	}
	return &u, nil
}

func (r *userRepo) CreateUser(ctx context.Context, u *model.User, encryptedCredentials []byte) error {
	rawPrefs, err := json.Marshal(u.Preferences)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	const q = `
		INSERT INTO users (username, is_active, subscription_tier, preferences, encrypted_credentials)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, q, u.Username, u.IsActive, u.SubscriptionTier, rawPrefs, encryptedCredentials).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("inserting user %s: %w", u.Username, err)
	}
	return nil
}

func (r *userRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch user %d: %w", id, err)
	}
	return u, nil
}

func (r *userRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, q, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch user by stripe customer %s: %w", customerID, err)
	}
	return u, nil
}

func (r *userRepo) ListActiveUsers(ctx context.Context) ([]model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE is_active ORDER BY id`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing active users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning active user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing active users: %w", err)
	}
	return users, nil
}

// execOne runs a statement that must touch exactly one user row.
func (r *userRepo) execOne(ctx context.Context, op string, id int64, q string, args ...any) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s for user %d: %w", op, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) SetActive(ctx context.Context, id int64, active bool) error {
	const q = `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "set active", id, q, id, active)
}

func (r *userRepo) UpdatePreferences(ctx context.Context, id int64, prefs model.Preferences) error {
	rawPrefs, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	const q = `UPDATE users SET preferences = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "update preferences", id, q, id, rawPrefs)
}

func (r *userRepo) UpdateTier(ctx context.Context, id int64, tier model.Tier) error {
	const q = `UPDATE users SET subscription_tier = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "update tier", id, q, id, tier)
}

func (r *userRepo) UpdateStripeCustomerID(ctx context.Context, id int64, customerID string) error {
	const q = `UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "update stripe customer", id, q, id, customerID)
}

func (r *userRepo) GetEncryptedCredentials(ctx context.Context, id int64) ([]byte, error) {
	var blob []byte
	err := r.pool.QueryRow(ctx, `SELECT encrypted_credentials FROM users WHERE id = $1`, id).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch credentials for user %d: %w", id, err)
	}
	if len(blob) == 0 {
		return nil, ErrNotFound
	}
	return blob, nil
}

func (r *userRepo) SetEncryptedCredentials(ctx context.Context, id int64, blob []byte) error {
	const q = `UPDATE users SET encrypted_credentials = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "set credentials", id, q, id, blob)
}

func (r *userRepo) DeleteUser(ctx context.Context, id int64) error {
	return r.execOne(ctx, "delete user", id, `DELETE FROM users WHERE id = $1`, id)
}
