package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ranikadev/baas-bot/internal/model"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type secretManagerStore struct {
	client    *secretmanager.Client
	projectID string
}

// NewSecretManagerCredentialStore keeps one Secret Manager secret per user.
func NewSecretManagerCredentialStore(ctx context.Context, projectID, credentialsFile string) (CredentialStore, func() error, error) {
	if projectID == "" {
		return nil, nil, fmt.Errorf("GCP Project ID is not set for the current environment")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}

	return &secretManagerStore{
		client:    client,
		projectID: projectID,
	}, client.Close, nil
}

func secretName(userID int64) string {
	return fmt.Sprintf("user-%d-twitter-credentials", userID)
}

func (s *secretManagerStore) Put(ctx context.Context, userID int64, creds model.Credentials) error {
	secretPath := fmt.Sprintf("projects/%s/secrets/%s", s.projectID, secretName(userID))

	_, err := s.client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{
		Name: secretPath,
	})
	if err != nil {
		if status.Code(err) != codes.NotFound {
			return fmt.Errorf("failed to look up secret: %w", err)
		}
		createReq := &secretmanagerpb.CreateSecretRequest{
			Parent:   fmt.Sprintf("projects/%s", s.projectID),
			SecretId: secretName(userID),
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{
						Automatic: &secretmanagerpb.Replication_Automatic{},
					},
				},
			},
		}
		if _, err := s.client.CreateSecret(ctx, createReq); err != nil {
			return fmt.Errorf("failed to create secret: %w", err)
		}
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	addVersionReq := &secretmanagerpb.AddSecretVersionRequest{
		Parent: secretPath,
		Payload: &secretmanagerpb.SecretPayload{
			Data: payload,
		},
	}
	if _, err := s.client.AddSecretVersion(ctx, addVersionReq); err != nil {
		return fmt.Errorf("failed to add secret version: %w", err)
	}

	return nil
}

func (s *secretManagerStore) Get(ctx context.Context, userID int64) (model.Credentials, error) {
	var creds model.Credentials
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, secretName(userID))

	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return creds, ErrCredentialsNotFound
		}
		return creds, fmt.Errorf("failed to access secret version: %w", err)
	}

	if err := json.Unmarshal(result.Payload.Data, &creds); err != nil {
		return creds, fmt.Errorf("decode credentials for user %d: %w", userID, err)
	}
	return creds, nil
}
