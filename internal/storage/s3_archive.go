package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ranikadev/baas-bot/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
)

// ObjectPutter is the subset of *s3.Client used by S3Archive.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive keeps the raw, unnormalized text returned by the content source
// for each generation.
type S3Archive struct {
	client ObjectPutter
	bucket string
	loc    *time.Location
}

func NewS3Archive(client ObjectPutter, bucket string, loc *time.Location) *S3Archive {
	if loc == nil {
		loc = time.UTC
	}
	return &S3Archive{client: client, bucket: bucket, loc: loc}
}

// NewS3Client builds an S3 client for an S3-compatible endpoint.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	s3Config, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}
	return s3.NewFromConfig(s3Config, func(o *s3.Options) {
		if cfg.S3URL != "" {
			o.BaseEndpoint = aws.String(cfg.S3URL)
		}
		o.UsePathStyle = true
	}), nil
}

// ObjectKey returns generations/{user}/{yyyy-mm-dd}/{run}.txt, dated in the
// service location.
func (a *S3Archive) ObjectKey(userID int64, runID string, at time.Time) string {
	return fmt.Sprintf("generations/%d/%s/%s.txt", userID, at.In(a.loc).Format("2006-01-02"), runID)
}

// SaveGeneration uploads raw and returns the object key.
func (a *S3Archive) SaveGeneration(ctx context.Context, userID int64, runID, raw string) (string, error) {
	key := a.ObjectKey(userID, runID, time.Now())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(raw),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive generation %s: %w", key, err)
	}
	return key, nil
}

// removeDisableGzip is a workaround for S3 signature errors with some S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
