package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ranikadev/baas-bot/internal/metrics"
	"github.com/ranikadev/baas-bot/internal/model"
	"github.com/ranikadev/baas-bot/internal/pubsub"
	"github.com/ranikadev/baas-bot/internal/repository"
	"github.com/ranikadev/baas-bot/internal/util"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FallbackMessage is published when a user has nothing pending.
const FallbackMessage = "Good day"

var ErrCycleInProgress = errors.New("a cycle is already running for this user")

type CycleOutcome string

const (
	CyclePublished         CycleOutcome = "published"
	CycleFallbackPublished CycleOutcome = "fallback_published"
	CyclePublishFailed     CycleOutcome = "publish_failed"
	CycleQuotaReached      CycleOutcome = "quota_reached"
	CycleOutsideWindow     CycleOutcome = "outside_window"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerPublish   = "publish"
)

// CycleResult describes what one cycle did for one user.
type CycleResult struct {
	RunID   string
	UserID  int64
	Trigger string
	Outcome CycleOutcome
	// DailyCount is the number of posts already published today when the
	// cycle started.
	DailyCount int
	// Generated is the normalized text stored this cycle, if any.
	Generated  string
	PostID     int64
	ExternalID string
}

// Published reports whether the cycle sent something out.
func (r CycleResult) Published() bool {
	return r.Outcome == CyclePublished || r.Outcome == CycleFallbackPublished
}

// GenerationArchive stores raw content source output.
type GenerationArchive interface {
	SaveGeneration(ctx context.Context, userID int64, runID, raw string) (string, error)
}

// PostingService runs the quota-governed generate and publish pipeline.
type PostingService interface {
	// RunCycle publishes the oldest pending post, or the fallback message
	// when there is none, subject to the daily quota.
	RunCycle(ctx context.Context, userID int64) (CycleResult, error)
	// GenerateAndStore is the scheduled path. Outside the user's posting
	// hours nothing happens.
	GenerateAndStore(ctx context.Context, userID int64) (CycleResult, error)
	// TriggerNow is the manual path; it ignores posting hours.
	TriggerNow(ctx context.Context, userID int64) (CycleResult, error)
}

type PostingOptions struct {
	FreeDailyLimit int
	Events         pubsub.Publisher
	EventsTopic    string
	Archive        GenerationArchive
	Metrics        *metrics.Metrics
}

type postingService struct {
	users     repository.UserRepository
	ledger    *Ledger
	content   ContentSource
	publisher Publisher
	locker    CycleLocker
	opts      PostingOptions
	logger    zerolog.Logger
}

func NewPostingService(
	users repository.UserRepository,
	ledger *Ledger,
	content ContentSource,
	publisher Publisher,
	locker CycleLocker,
	opts PostingOptions,
	logger zerolog.Logger,
) PostingService {
	if locker == nil {
		locker = NewKeyedLocker()
	}
	return &postingService{
		users:     users,
		ledger:    ledger,
		content:   content,
		publisher: publisher,
		locker:    locker,
		opts:      opts,
		logger:    logger.With().Str("service", "PostingService").Logger(),
	}
}

func (s *postingService) RunCycle(ctx context.Context, userID int64) (CycleResult, error) {
	return s.run(ctx, userID, TriggerPublish, func(ctx context.Context, user *model.User, res *CycleResult, log zerolog.Logger) error {
		if s.quotaReached(user, res, log) {
			return nil
		}
		return s.publishStep(ctx, user, res, log)
	})
}

func (s *postingService) GenerateAndStore(ctx context.Context, userID int64) (CycleResult, error) {
	return s.run(ctx, userID, TriggerScheduled, func(ctx context.Context, user *model.User, res *CycleResult, log zerolog.Logger) error {
		hour := s.ledger.now().In(s.ledger.loc).Hour()
		if !user.Preferences.InPostingWindow(hour) {
			window := user.Preferences.EffectivePostingHours()
			log.Info().Int("hour", hour).Ints("posting_hours", window[:]).Msg("Outside posting hours, skipping cycle")
			res.Outcome = CycleOutsideWindow
			return nil
		}
		return s.generateAndPublish(ctx, user, res, log)
	})
}

func (s *postingService) TriggerNow(ctx context.Context, userID int64) (CycleResult, error) {
	return s.run(ctx, userID, TriggerManual, func(ctx context.Context, user *model.User, res *CycleResult, log zerolog.Logger) error {
		return s.generateAndPublish(ctx, user, res, log)
	})
}

type cycleFunc func(ctx context.Context, user *model.User, res *CycleResult, log zerolog.Logger) error

// run takes the per-user lock, loads the user and today's count, then hands
// over to fn.
func (s *postingService) run(ctx context.Context, userID int64, trigger string, fn cycleFunc) (CycleResult, error) {
	res := CycleResult{RunID: uuid.NewString(), UserID: userID, Trigger: trigger}
	log := s.logger.With().Str("run_id", res.RunID).Int64("user_id", userID).Str("trigger", trigger).Logger()

	unlock, ok, err := s.locker.TryLock(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("lock user %d: %w", userID, err)
	}
	if !ok {
		log.Warn().Msg("Cycle already running, skipping")
		return res, ErrCycleInProgress
	}
	defer unlock()

	start := time.Now()
	err = s.runLocked(ctx, userID, &res, log, fn)
	outcome := string(res.Outcome)
	if err != nil {
		outcome = "error"
	}
	s.opts.Metrics.ObserveCycle(trigger, outcome, time.Since(start))
	if err != nil {
		return res, err
	}
	log.Info().Str("outcome", outcome).Int("daily_count", res.DailyCount).Msg("Cycle finished")
	return res, nil
}

func (s *postingService) runLocked(ctx context.Context, userID int64, res *CycleResult, log zerolog.Logger, fn cycleFunc) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	count, err := s.ledger.CountPostedToday(ctx, userID)
	if err != nil {
		return fmt.Errorf("count today's posts: %w", err)
	}
	res.DailyCount = count
	return fn(ctx, user, res, log)
}

func (s *postingService) quotaReached(user *model.User, res *CycleResult, log zerolog.Logger) bool {
	if user.SubscriptionTier != model.TierFree || res.DailyCount < s.opts.FreeDailyLimit {
		return false
	}
	log.Info().Int("daily_count", res.DailyCount).Int("limit", s.opts.FreeDailyLimit).Msg("Daily limit reached for free tier")
	res.Outcome = CycleQuotaReached
	return true
}

// generateAndPublish fetches new content, stores it as pending and then runs
// the publish step. Quota is checked first so an exhausted free user does not
// consume content source calls.
func (s *postingService) generateAndPublish(ctx context.Context, user *model.User, res *CycleResult, log zerolog.Logger) error {
	if s.quotaReached(user, res, log) {
		return nil
	}

	raw := s.content.Fetch(ctx, *user)
	s.opts.Metrics.ObserveFetch(raw != "")
	if raw == "" {
		log.Warn().Msg("Content source returned nothing")
	} else if clean := util.Normalize(raw); clean != "" {
		if _, err := s.ledger.RecordGenerated(ctx, user.ID, clean); err != nil {
			return fmt.Errorf("store generated post: %w", err)
		}
		res.Generated = clean
		s.archive(ctx, user.ID, res.RunID, raw, log)
	}

	return s.publishStep(ctx, user, res, log)
}

func (s *postingService) archive(ctx context.Context, userID int64, runID, raw string, log zerolog.Logger) {
	if s.opts.Archive == nil {
		return
	}
	key, err := s.opts.Archive.SaveGeneration(ctx, userID, runID, raw)
	if err != nil {
		log.Error().Err(err).Msg("Failed to archive raw generation")
		return
	}
	log.Debug().Str("key", key).Msg("Raw generation archived")
}

func (s *postingService) publishStep(ctx context.Context, user *model.User, res *CycleResult, log zerolog.Logger) error {
	pending, err := s.ledger.NextPending(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("load next pending post: %w", err)
	}
	next := res.DailyCount + 1

	if pending == nil {
		extID, ok := s.publisher.Publish(ctx, user.ID, FallbackMessage)
		s.opts.Metrics.ObservePublish("fallback", ok)
		if !ok {
			log.Warn().Msg("Fallback publish failed")
			res.Outcome = CyclePublishFailed
			return nil
		}
		post, err := s.ledger.RecordPosted(ctx, user.ID, FallbackMessage, next, extID)
		if err != nil {
			return fmt.Errorf("record fallback post: %w", err)
		}
		res.Outcome = CycleFallbackPublished
		res.PostID = post.ID
		res.ExternalID = extID
		s.emit(ctx, post, res, true, log)
		return nil
	}

	extID, ok := s.publisher.Publish(ctx, user.ID, pending.Content)
	s.opts.Metrics.ObservePublish("pending", ok)
	if !ok {
		log.Warn().Int64("post_id", pending.ID).Msg("Publish failed, post stays pending")
		res.Outcome = CyclePublishFailed
		return nil
	}
	if err := s.ledger.MarkPosted(ctx, pending, next, extID); err != nil {
		return fmt.Errorf("mark post %d posted: %w", pending.ID, err)
	}
	res.Outcome = CyclePublished
	res.PostID = pending.ID
	res.ExternalID = extID
	s.emit(ctx, pending, res, false, log)
	return nil
}

func (s *postingService) emit(ctx context.Context, post *model.Post, res *CycleResult, fallback bool, log zerolog.Logger) {
	if s.opts.Events == nil || s.opts.EventsTopic == "" {
		return
	}
	evt := pubsub.PostPublishedEvent{
		RunID:      res.RunID,
		UserID:     post.UserID,
		PostID:     post.ID,
		ExternalID: res.ExternalID,
		DailyCount: post.DailyCount,
		Fallback:   fallback,
		Trigger:    res.Trigger,
	}
	if post.PostedAt != nil {
		evt.PostedAt = *post.PostedAt
	}
	payload, err := evt.Marshal()
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode post event")
		return
	}
	if _, err := s.opts.Events.Publish(ctx, s.opts.EventsTopic, payload); err != nil {
		log.Error().Err(err).Msg("Failed to publish post event")
	}
}
