package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ranikadev/baas-bot/internal/util"

	"github.com/dghubble/oauth1"
	"github.com/rs/zerolog"
)

const (
	twitterCreateTweetEndpoint = "/2/tweets"
	dryRunExternalID           = "dry-run"
)

// Publisher sends a finalized message to the user's social account. It
// returns the external post id and whether publishing succeeded; it never
// returns an error.
type Publisher interface {
	Publish(ctx context.Context, userID int64, text string) (string, bool)
}

type twitterPublisher struct {
	credentials CredentialStore
	baseURL     string
	timeout     time.Duration
	httpClient  *http.Client
	logger      zerolog.Logger
}

// NewTwitterPublisher creates a publisher for the X/Twitter v2 API.
func NewTwitterPublisher(credentials CredentialStore, baseURL string, timeout time.Duration, logger zerolog.Logger) Publisher {
	return &twitterPublisher{
		credentials: credentials,
		baseURL:     strings.TrimRight(baseURL, "/"),
		timeout:     timeout,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.With().Str("service", "TwitterPublisher").Logger(),
	}
}

type createTweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *twitterPublisher) Publish(ctx context.Context, userID int64, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	id, err := p.publish(ctx, userID, text)
	if err != nil {
		p.logger.Error().Err(err).Int64("user_id", userID).Msg("Publish failed")
		return "", false
	}
	p.logger.Info().Int64("user_id", userID).Str("external_id", id).Msg("Posted")
	return id, true
}

func (p *twitterPublisher) publish(ctx context.Context, userID int64, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	creds, err := p.credentials.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve credentials: %w", err)
	}

	bodyJSON, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	config := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessSecret)
	client := config.Client(context.WithValue(ctx, oauth1.HTTPClient, p.httpClient), token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+twitterCreateTweetEndpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read publish response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("publish rejected: HTTP %d: %s", resp.StatusCode, util.Preview(string(body), 200))
	}

	var created createTweetResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("malformed publish response: %w", err)
	}
	if created.Data.ID == "" {
		return "", fmt.Errorf("publish response missing id")
	}
	return created.Data.ID, nil
}

type dryRunPublisher struct {
	logger zerolog.Logger
}

// NewDryRunPublisher logs what would be posted and reports success.
func NewDryRunPublisher(logger zerolog.Logger) Publisher {
	return &dryRunPublisher{logger: logger.With().Str("service", "DryRunPublisher").Logger()}
}

func (p *dryRunPublisher) Publish(ctx context.Context, userID int64, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	p.logger.Info().Int64("user_id", userID).Str("text", util.Preview(text, 60)).Msg("DRY RUN publish")
	return dryRunExternalID, true
}
