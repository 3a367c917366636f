package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ranikadev/baas-bot/internal/model"
	"github.com/ranikadev/baas-bot/internal/repository"
	"github.com/ranikadev/baas-bot/internal/util"
)

var ErrCredentialsNotFound = errors.New("credentials not found")

// CredentialStore keeps each user's social account keys.
type CredentialStore interface {
	Get(ctx context.Context, userID int64) (model.Credentials, error)
	Put(ctx context.Context, userID int64, creds model.Credentials) error
}

// credentialSealer is implemented by stores whose credentials live on the
// users row, so they can be written together with it.
type credentialSealer interface {
	seal(creds model.Credentials) ([]byte, error)
}

// pgCredentialStore seals credentials with secretbox and keeps them on the
// users row.
type pgCredentialStore struct {
	users  repository.UserRepository
	secret string
}

func NewPostgresCredentialStore(users repository.UserRepository, encryptionKey string) CredentialStore {
	return &pgCredentialStore{users: users, secret: encryptionKey}
}

// sealCredentials encrypts creds for the users row.
func sealCredentials(secret string, creds model.Credentials) ([]byte, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}
	return util.Seal(secret, raw)
}

func (s *pgCredentialStore) Get(ctx context.Context, userID int64) (model.Credentials, error) {
	var creds model.Credentials
	blob, err := s.users.GetEncryptedCredentials(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return creds, ErrCredentialsNotFound
		}
		return creds, err
	}
	raw, err := util.Open(s.secret, blob)
	if err != nil {
		return creds, fmt.Errorf("decrypt credentials for user %d: %w", userID, err)
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return creds, fmt.Errorf("decode credentials for user %d: %w", userID, err)
	}
	return creds, nil
}

func (s *pgCredentialStore) seal(creds model.Credentials) ([]byte, error) {
	return sealCredentials(s.secret, creds)
}

func (s *pgCredentialStore) Put(ctx context.Context, userID int64, creds model.Credentials) error {
	blob, err := sealCredentials(s.secret, creds)
	if err != nil {
		return err
	}
	return s.users.SetEncryptedCredentials(ctx, userID, blob)
}
