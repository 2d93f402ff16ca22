package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter counts requests per client in fixed one-minute Redis windows.
type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
	logger *zap.Logger

	keyFunc func(e *core.RequestEvent) string
}

func NewRateLimiter(redisClient *redis.Client, limitPerMinute int, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  int64(limitPerMinute),
		window: time.Minute,
		logger: logger.Named("ratelimit"),
		keyFunc: func(e *core.RequestEvent) string {
			return e.RealIP()
		},
	}
}

// Allow records one request for identifier and reports whether it is within
// the limit.
func (r *RateLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s", identifier)

	// EXPIRE NX goes out with every INCR so a window whose first EXPIRE was
	// lost still gets a TTL on the next request.
	var incr *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, r.window)
		return nil
	})
	if err != nil {
		return false, err
	}

	return incr.Val() <= r.limit, nil
}

// Middleware rejects crawler user agents and clients over the limit. Redis
// failures let the request through.
func (r *RateLimiter) Middleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return apis.NewForbiddenError("Access denied", nil)
		}

		identifier := r.keyFunc(e)
		allowed, err := r.Allow(e.Request.Context(), identifier)
		if err != nil {
			r.logger.Warn("rate limit check failed", zap.String("client", identifier), zap.Error(err))
			return e.Next()
		}
		if !allowed {
			return apis.NewTooManyRequestsError("Too many requests. Please try again later.", nil)
		}

		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	lower := strings.ToLower(ua)
	for _, pattern := range suspicious {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
