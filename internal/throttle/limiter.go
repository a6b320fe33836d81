package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLimited is returned when a key has exhausted its window budget.
	ErrLimited = errors.New("too many requests")
	// ErrUnavailable wraps Redis failures. Throttling is advisory, so
	// callers may choose to let the request through on it.
	ErrUnavailable = errors.New("throttle store unavailable")
)

// Limiter is a fixed-window request limiter keyed by (route, device
// identifier). The counter's TTL is set on the first hit of a window;
// once the window elapses the key disappears and the budget resets.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewLimiter(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func throttleKey(route, deviceID string) string {
	return fmt.Sprintf("throttle:%s:%s", route, deviceID)
}

// Allow counts one request against the key's window and reports
// whether it is still within budget.
func (l *Limiter) Allow(ctx context.Context, route, deviceID string) error {
	key := throttleKey(route, deviceID)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > int64(l.limit) {
		return ErrLimited
	}
	return nil
}
