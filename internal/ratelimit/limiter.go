// Package ratelimit throttles event submissions per user with a fixed window
// counter kept in Redis.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/huddle/matchmaker/internal/logging"
)

// Rule is one throttling policy. Counters live at Key + identifier.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// RuleSubmit covers event submissions and suggestion joins.
var RuleSubmit = Rule{Key: "rl:submit:", Limit: 20, Window: time.Minute}

// Limiter counts requests per identifier in Redis.
type Limiter struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewLimiter returns a Limiter on rdb.
func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb, log: logging.New("ratelimit")}
}

// Allow counts one request for identifier and reports whether it fits in the
// rule's current window. The window opens on the first request. Redis
// failures admit the request and are returned alongside true.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	pipe := l.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("count request, admitting")
		return true, err
	}

	// -1 means the counter has no expiry yet.
	if ttl.Val() == -1 {
		if err := l.rdb.PExpire(ctx, key, rule.Window).Err(); err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("open window, admitting")
			l.rdb.Del(ctx, key)
			return true, err
		}
	}

	return incr.Val() <= int64(rule.Limit), nil
}

// RetryAfter reports how long until identifier's window closes, or zero if
// none is open.
func (l *Limiter) RetryAfter(ctx context.Context, identifier string, rule Rule) (time.Duration, error) {
	ttl, err := l.rdb.PTTL(ctx, rule.Key+identifier).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, err
	case ttl < 0:
		return 0, nil
	}
	return ttl, nil
}
