package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"authgate/api/internal/config"
	"authgate/api/internal/ids"
	"authgate/api/internal/models"
	"authgate/api/internal/repository"
	"authgate/api/internal/retry"
	"authgate/api/internal/security"
)

// HistoryStore records authentication attempts and serves paginated
// history reads.
type HistoryStore interface {
	Record(ctx context.Context, rec models.AuthHistoryRecord) error
	List(ctx context.Context, userID string, page, size int) ([]models.AuthHistoryRecord, error)
}

type AuthService struct {
	users   UserStore
	history HistoryStore
	tokens  *TokenService
	cfg     config.SecurityConfig
	retry   retry.Config
	log     zerolog.Logger
}

func NewAuthService(users UserStore, history HistoryStore, tokens *TokenService, cfg config.SecurityConfig, retryCfg retry.Config, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:   users,
		history: history,
		tokens:  tokens,
		cfg:     cfg,
		retry:   retryCfg,
		log:     log,
	}
}

type SignupInput struct {
	Email     string
	Password  string
	Password2 string
	Name      string
}

func (s *AuthService) validateCredentials(input SignupInput) error {
	if strings.TrimSpace(input.Email) == "" {
		return ErrEmailRequired
	}
	if len(input.Password) < s.cfg.PasswordMinLen {
		return ErrPasswordTooShort
	}
	if input.Password != input.Password2 {
		return ErrPasswordMismatch
	}
	return nil
}

func (s *AuthService) Signup(ctx context.Context, input SignupInput) (models.User, error) {
	if err := s.validateCredentials(input); err != nil {
		return models.User{}, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return models.User{}, ErrNameRequired
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        strings.TrimSpace(strings.ToLower(input.Email)),
		PasswordHash: hash,
		Name:         strings.TrimSpace(input.Name),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

type UpdateUserInput struct {
	UserID    string
	Email     string
	Password  string
	Password2 string
	Name      string
}

// UpdateUser changes the caller's own email, password or name. Empty
// fields keep their current value.
func (s *AuthService) UpdateUser(ctx context.Context, input UpdateUserInput) (models.User, error) {
	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		return models.User{}, err
	}

	if input.Email != "" {
		user.Email = strings.TrimSpace(strings.ToLower(input.Email))
	}
	if input.Name != "" {
		user.Name = strings.TrimSpace(input.Name)
	}
	if input.Password != "" {
		if len(input.Password) < s.cfg.PasswordMinLen {
			return models.User{}, ErrPasswordTooShort
		}
		if input.Password != input.Password2 {
			return models.User{}, ErrPasswordMismatch
		}
		hash, err := security.HashPassword(input.Password)
		if err != nil {
			return models.User{}, err
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

type LoginInput struct {
	Email    string
	Password string
	DeviceID string
}

// Login verifies credentials, mints a token pair and records the
// attempt. Failed attempts against an existing account are recorded
// too; the audit trail must show them. A successful login whose audit
// row cannot be written does not stand: the tokens are withheld and
// the request fails.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (models.TokenPair, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.TokenPair{}, ErrInvalidCredentials
		}
		return models.TokenPair{}, err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		// Best-effort: the rejection must reach the caller even when
		// the audit store is down.
		if recErr := s.record(ctx, user.ID, input.DeviceID, models.AuthOutcomeWrongCredentials); recErr != nil {
			s.log.Warn().Err(recErr).
				Str("user_id", user.ID).
				Msg("auth history write failed")
		}
		return models.TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.tokens.MintPair(ctx, user.ID, input.DeviceID)
	if err != nil {
		return models.TokenPair{}, err
	}

	if err := s.record(ctx, user.ID, input.DeviceID, models.AuthOutcomeSuccess); err != nil {
		s.log.Error().Err(err).
			Str("user_id", user.ID).
			Msg("auth history write failed, rejecting login")
		return models.TokenPair{}, fmt.Errorf("record login: %w", err)
	}
	return pair, nil
}

// Refresh re-mints the access token; the presented refresh token rides
// along unchanged with its remaining validity.
func (s *AuthService) Refresh(ctx context.Context, claims *security.Claims, rawRefresh string) (models.TokenPair, error) {
	access, err := s.tokens.MintAccess(ctx, claims.UserID, claims.DeviceID)
	if err != nil {
		return models.TokenPair{}, err
	}
	return models.TokenPair{AccessToken: access, RefreshToken: rawRefresh}, nil
}

func (s *AuthService) Logout(ctx context.Context, claims *security.Claims) error {
	return s.tokens.RevokeDevice(ctx, claims)
}

func (s *AuthService) LogoutAll(ctx context.Context, claims *security.Claims) error {
	return s.tokens.RevokeAllForUser(ctx, claims.UserID)
}

const DefaultHistoryPageSize = 5

func (s *AuthService) History(ctx context.Context, userID string, page, size int) ([]models.AuthHistoryRecord, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultHistoryPageSize
	}
	return s.history.List(ctx, userID, page, size)
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.users.GetByID(ctx, id)
}

// record writes one audit entry under the retry policy and reports
// whether it landed. The caller decides how fatal a persistent failure
// is.
func (s *AuthService) record(ctx context.Context, userID, deviceID string, outcome models.AuthOutcome) error {
	rec := models.AuthHistoryRecord{
		ID:         ids.New(),
		UserID:     userID,
		DeviceID:   deviceID,
		Outcome:    outcome,
		OccurredAt: time.Now(),
	}

	return retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.history.Record(ctx, rec)
	})
}
