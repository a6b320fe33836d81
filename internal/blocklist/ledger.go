package blocklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"authgate/api/internal/security"
)

// ErrLedgerUnavailable wraps any Redis failure. Callers validating
// tokens must fail closed when they see it.
var ErrLedgerUnavailable = errors.New("revocation ledger unavailable")

// Ledger is the TTL-bounded revocation blocklist plus the active-jti
// index that makes "revoke all" possible. Entries expire together with
// the tokens they refer to, so the ledger never grows unbounded.
type Ledger struct {
	client *redis.Client
}

func NewLedger(client *redis.Client) *Ledger {
	return &Ledger{client: client}
}

func revokedKey(jti string) string {
	return "revoked:" + jti
}

func activeKey(userID, deviceID string, kind security.TokenKind) string {
	return fmt.Sprintf("active:%s:%s:%s", userID, deviceID, kind)
}

func activePrefix(userID string) string {
	return fmt.Sprintf("active:%s:*", userID)
}

// Revoke marks a jti revoked for ttl. Revoking an already-revoked jti
// is a no-op success; a non-positive ttl means the token has already
// expired naturally and nothing needs recording.
func (l *Ledger) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := l.client.SetNX(ctx, revokedKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the jti is on the blocklist. On any ledger
// error it returns (true, err) so callers reject the token.
func (l *Ledger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return n > 0, nil
}

// TrackActive records the currently live jti for a (user, device, kind)
// triple. The entry expires with the token, so the index self-prunes.
func (l *Ledger) TrackActive(ctx context.Context, userID, deviceID string, kind security.TokenKind, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, activeKey(userID, deviceID, kind), jti, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// RevokeDevice blocklists the presenting device's live access and
// refresh jtis and drops them from the active index.
func (l *Ledger) RevokeDevice(ctx context.Context, userID, deviceID string) error {
	keys := []string{
		activeKey(userID, deviceID, security.TokenKindAccess),
		activeKey(userID, deviceID, security.TokenKindRefresh),
	}
	return l.revokeActiveKeys(ctx, keys)
}

// RevokeAll sweeps the whole active namespace of a user: every jti
// ever tracked and still unexpired, across all devices, lands on the
// blocklist.
func (l *Ledger) RevokeAll(ctx context.Context, userID string) error {
	var cursor uint64
	for {
		keys, next, err := l.client.Scan(ctx, cursor, activePrefix(userID), 100).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}

		if len(keys) > 0 {
			if err := l.revokeActiveKeys(ctx, keys); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// revokeActiveKeys blocklists the jtis behind the given active keys and
// deletes the keys. An active key expires together with its token, so
// its remaining TTL is the token's remaining lifetime; each revocation
// entry inherits exactly that, never more.
func (l *Ledger) revokeActiveKeys(ctx context.Context, keys []string) error {
	for _, key := range keys {
		jti, err := l.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}

		ttl, err := l.client.PTTL(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
		if err := l.Revoke(ctx, jti, ttl); err != nil {
			return err
		}
	}

	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}
