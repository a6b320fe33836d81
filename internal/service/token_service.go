package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"authgate/api/internal/blocklist"
	"authgate/api/internal/config"
	"authgate/api/internal/models"
	"authgate/api/internal/retry"
	"authgate/api/internal/security"
)

// UserStore is the credential-store contract the token service needs:
// the subject-existence check on validation.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	Update(ctx context.Context, user models.User) error
}

// TokenService mints signed access/refresh pairs, validates presented
// tokens against signature, expiry, kind, the revocation ledger and
// subject existence, and drives revocation.
type TokenService struct {
	users  UserStore
	ledger *blocklist.Ledger
	cfg    config.SecurityConfig
	retry  retry.Config
	log    zerolog.Logger
}

func NewTokenService(users UserStore, ledger *blocklist.Ledger, cfg config.SecurityConfig, retryCfg retry.Config, log zerolog.Logger) *TokenService {
	return &TokenService{
		users:  users,
		ledger: ledger,
		cfg:    cfg,
		retry:  retryCfg,
		log:    log,
	}
}

// MintPair issues a fresh access/refresh pair for a login and tracks
// both jtis as the live pair for the (user, device) session.
func (s *TokenService) MintPair(ctx context.Context, userID, deviceID string) (models.TokenPair, error) {
	access, err := s.mint(ctx, userID, deviceID, security.TokenKindAccess, s.cfg.AccessTTL)
	if err != nil {
		return models.TokenPair{}, err
	}
	refresh, err := s.mint(ctx, userID, deviceID, security.TokenKindRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return models.TokenPair{}, err
	}
	return models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// MintAccess re-issues only the access token on the refresh flow; the
// presented refresh token keeps its remaining validity.
func (s *TokenService) MintAccess(ctx context.Context, userID, deviceID string) (string, error) {
	return s.mint(ctx, userID, deviceID, security.TokenKindAccess, s.cfg.AccessTTL)
}

func (s *TokenService) mint(ctx context.Context, userID, deviceID string, kind security.TokenKind, ttl time.Duration) (string, error) {
	signed, claims, err := security.MintToken(s.cfg.JWTSecret, userID, deviceID, kind, ttl)
	if err != nil {
		return "", err
	}

	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.ledger.TrackActive(ctx, userID, deviceID, kind, claims.JTI(), ttl)
	})
	if err != nil {
		return "", fmt.Errorf("track active token: %w", err)
	}
	return signed, nil
}

// Validate is the single gate every presented token passes: signature,
// expiry, kind, blocklist, subject existence. Ledger failures count as
// revoked; a token must never be accepted on a ledger timeout.
func (s *TokenService) Validate(ctx context.Context, raw string, expected security.TokenKind) (*security.Claims, error) {
	claims, err := security.ParseToken(raw, s.cfg.JWTSecret, expected)
	if err != nil {
		return nil, err
	}

	revoked, err := s.ledger.IsRevoked(ctx, claims.JTI())
	if err != nil {
		s.log.Warn().Err(err).Str("jti", claims.JTI()).Msg("ledger check failed, rejecting token")
		return nil, ErrTokenRevoked
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	if _, err := s.users.GetByID(ctx, claims.UserID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}

	return claims, nil
}

// RevokeDevice blocklists the presenting device's live pair. The
// presented jti is revoked explicitly as well in case it has already
// been rotated out of the active index.
func (s *TokenService) RevokeDevice(ctx context.Context, claims *security.Claims) error {
	return retry.Do(ctx, s.retry, func(ctx context.Context) error {
		if err := s.ledger.Revoke(ctx, claims.JTI(), claims.Remaining(time.Now())); err != nil {
			return err
		}
		return s.ledger.RevokeDevice(ctx, claims.UserID, claims.DeviceID)
	})
}

// RevokeAllForUser sweeps every live token of the user across all
// devices. Called on logout-all and on any role mutation, so a stale
// token can never smuggle an outdated role set past the policy gate.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string) error {
	return retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.ledger.RevokeAll(ctx, userID)
	})
}
