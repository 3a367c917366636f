package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ranikadev/baas-bot/internal/model"
	"github.com/ranikadev/baas-bot/internal/repository"

	"github.com/rs/zerolog"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrInvalidPreferences = errors.New("invalid preferences")
)

type UserService interface {
	Create(ctx context.Context, username string, creds model.Credentials, prefs model.Preferences) (*model.User, error)
	Get(ctx context.Context, id int64) (*model.User, error)
	// Start activates the bot and kicks off one scheduled-path cycle in the
	// background.
	Start(ctx context.Context, id int64) (*model.User, error)
	Stop(ctx context.Context, id int64) (*model.User, error)
	UpdatePreferences(ctx context.Context, id int64, update model.Preferences) (*model.User, error)
	History(ctx context.Context, id int64, limit int) ([]model.Post, error)
}

type userService struct {
	userRepo    repository.UserRepository
	credentials CredentialStore
	posting     PostingService
	ledger      *Ledger
	background  *Background
	logger      zerolog.Logger
}

// NewUserService runs the cycle that follows Start on background, which the
// caller closes on shutdown.
func NewUserService(userRepo repository.UserRepository, credentials CredentialStore, posting PostingService, ledger *Ledger, background *Background, logger zerolog.Logger) UserService {
	return &userService{
		userRepo:    userRepo,
		credentials: credentials,
		posting:     posting,
		ledger:      ledger,
		background:  background,
		logger:      logger.With().Str("service", "UserService").Logger(),
	}
}

func (s *userService) Create(ctx context.Context, username string, creds model.Credentials, prefs model.Preferences) (*model.User, error) {
	if err := validatePreferences(prefs); err != nil {
		return nil, err
	}
	u := &model.User{
		Username:         username,
		IsActive:         true,
		SubscriptionTier: model.TierFree,
		Preferences:      prefs,
	}

	// Sealed credentials go in with the row; external stores are written
	// afterwards and the row is removed if that fails.
	var sealed []byte
	if sealer, ok := s.credentials.(credentialSealer); ok {
		blob, err := sealer.seal(creds)
		if err != nil {
			return nil, fmt.Errorf("seal credentials: %w", err)
		}
		sealed = blob
	}
	if err := s.userRepo.CreateUser(ctx, u, sealed); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	if sealed == nil {
		if err := s.credentials.Put(ctx, u.ID, creds); err != nil {
			s.logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to store credentials for new user")
			if delErr := s.userRepo.DeleteUser(ctx, u.ID); delErr != nil {
				s.logger.Error().Err(delErr).Int64("user_id", u.ID).Msg("Failed to remove user without credentials")
			}
			return nil, fmt.Errorf("store credentials: %w", err)
		}
	}
	s.logger.Info().Int64("user_id", u.ID).Str("username", u.Username).Msg("User created")
	return u, nil
}

func (s *userService) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *userService) Start(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.setActive(ctx, id, true)
	if err != nil {
		return nil, err
	}
	s.background.Go(func(ctx context.Context) {
		res, err := s.posting.GenerateAndStore(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Int64("user_id", id).Msg("Initial cycle after start failed")
			return
		}
		s.logger.Info().Int64("user_id", id).Str("outcome", string(res.Outcome)).Msg("Initial cycle after start finished")
	})
	return u, nil
}

func (s *userService) Stop(ctx context.Context, id int64) (*model.User, error) {
	return s.setActive(ctx, id, false)
}

func (s *userService) setActive(ctx context.Context, id int64, active bool) (*model.User, error) {
	if err := s.userRepo.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	s.logger.Info().Int64("user_id", id).Bool("is_active", active).Msg("Bot state changed")
	return s.Get(ctx, id)
}

func (s *userService) UpdatePreferences(ctx context.Context, id int64, update model.Preferences) (*model.User, error) {
	if err := validatePreferences(update); err != nil {
		return nil, err
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := u.Preferences.Merge(update)
	if err := s.userRepo.UpdatePreferences(ctx, id, merged); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u.Preferences = merged
	return u, nil
}

func (s *userService) History(ctx context.Context, id int64, limit int) ([]model.Post, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.ListRecent(ctx, id, limit)
}

func validatePreferences(p model.Preferences) error {
	if p.PostingHours == nil {
		return nil
	}
	h := *p.PostingHours
	if h[0] < 0 || h[1] > 23 || h[0] > h[1] {
		return fmt.Errorf("%w: posting_hours must be [start, end] with 0 <= start <= end <= 23", ErrInvalidPreferences)
	}
	return nil
}
