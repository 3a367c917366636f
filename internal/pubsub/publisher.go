package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ranikadev/baas-bot/internal/config"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// EventPostPublished is the type attribute of messages sent after a post
// goes out.
const EventPostPublished = "post.published"

// Publisher defines an interface for publishing messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (string, error)
}

// PostPublishedEvent is the payload of a post.published message.
type PostPublishedEvent struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	UserID     int64     `json:"user_id"`
	PostID     int64     `json:"post_id"`
	ExternalID string    `json:"external_id,omitempty"`
	DailyCount int       `json:"daily_count"`
	Fallback   bool      `json:"fallback"`
	Trigger    string    `json:"trigger"`
	PostedAt   time.Time `json:"posted_at"`
}

// Marshal stamps the event type and encodes the event as JSON.
func (e PostPublishedEvent) Marshal() ([]byte, error) {
	e.Type = EventPostPublished
	return json.Marshal(e)
}

// PubSubPublisher is an implementation of Publisher using Google Pub/Sub.
type PubSubPublisher struct {
	client *pubsub.Client
}

// NewPublisher creates a new PubSubPublisher using the GCP project from config.
// PUBSUB_EMULATOR_HOST is honoured by the client library itself.
func NewPublisher(ctx context.Context, cfg *config.Config) (*PubSubPublisher, error) {
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP Project ID is not set for the current environment")
	}
	var opts []option.ClientOption
	if cfg.GCPCredentialsFile != "" && cfg.PubSubEmulatorHost == "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCPCredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.GCPProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubPublisher{client: client}, nil
}

// Publish sends the payload to the given Pub/Sub topic and returns the message ID.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	t := p.client.Topic(topic)
	result := t.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"type": EventPostPublished},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}
	return id, nil
}

func (p *PubSubPublisher) Close() error {
	return p.client.Close()
}

// NoopPublisher drops every message. Used when no topic is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	return "", nil
}
