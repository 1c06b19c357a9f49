package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"certpipe/internal/config"
	"certpipe/internal/constants"
	"certpipe/internal/logger"
	"certpipe/pkg/metrics"
)

// Service decides whether a message's exact raw content has been seen
// before. Redis answers cheaply; the durable store is the authority and
// also closes the race between concurrent workers.
type Service struct {
	cache  CacheRepository
	store  StoreRepository
	ttl    time.Duration
	onErr  string
	logger logger.Logger
}

func NewService(cache CacheRepository, store StoreRepository, cfg config.DeduplicationConfig, log logger.Logger) *Service {
	ttlSeconds := cfg.TTLSeconds
	if ttlSeconds <= 0 {
		ttlSeconds = constants.DefaultDedupTTLSeconds
	}
	return &Service{
		cache:  cache,
		store:  store,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		onErr:  cfg.OnRedisError,
		logger: log,
	}
}

// ContentHash is the dedup key for raw content.
func ContentHash(rawContent string) string {
	sum := sha256.Sum256([]byte(rawContent))
	return hex.EncodeToString(sum[:])
}

// IsUnique records the content and reports whether it was seen for the
// first time. A false result is the duplicate outcome; an error means
// the caller must drop the message rather than risk a double insert.
func (s *Service) IsUnique(ctx context.Context, rawContent string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	hash := ContentHash(rawContent)
	start := time.Now()

	unique, err := s.check(ctx, hash)
	duration := time.Since(start)

	if err != nil {
		s.record(duration, "error")
		return false, err
	}

	if unique {
		s.record(duration, "unique")
	} else {
		s.record(duration, "duplicate")
	}
	return unique, nil
}

func (s *Service) check(ctx context.Context, hash string) (bool, error) {
	if s.cache != nil {
		key := constants.CacheKeyPrefixDedup + hash
		fresh, err := s.cache.SetNX(ctx, key, time.Now().Unix(), s.ttl)
		switch {
		case err == nil && !fresh:
			// Cache hit: already seen within the TTL window.
			return false, nil
		case err != nil:
			if s.onErr != constants.FallbackAllow {
				metrics.FallbackUsageTotal.WithLabelValues("deduplication", "deny_on_error", "redis_error").Inc()
				return false, fmt.Errorf("redis error during dedup check: %w", err)
			}
			metrics.FallbackUsageTotal.WithLabelValues("deduplication", "allow_on_error", "redis_error").Inc()
			s.logger.WarnwCtx(ctx, "Redis error during dedup check, deferring to store",
				"error", err,
			)
		}
	}

	return s.store.InsertIfAbsent(ctx, hash)
}

func (s *Service) record(duration time.Duration, status string) {
	metrics.DeduplicateMessagesTotal.WithLabelValues(status).Inc()
	metrics.ObserveDedupDuration(duration, status)
}
