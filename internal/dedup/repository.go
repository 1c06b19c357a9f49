package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheRepository is the fast-path seen-set. A false SetNX result means
// the key already existed.
type CacheRepository interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// StoreRepository is the durable seen-set of record. InsertIfAbsent
// reports whether the hash was newly recorded; the unique constraint
// makes concurrent inserts of the same hash resolve to exactly one true.
type StoreRepository interface {
	InsertIfAbsent(ctx context.Context, contentHash string) (bool, error)
}

type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	success, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return success, nil
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, contentHash string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO seen_messages (content_hash, first_seen)
		VALUES ($1, NOW())
		ON CONFLICT (content_hash) DO NOTHING;
	`, contentHash)
	if err != nil {
		return false, fmt.Errorf("seen_messages insert failed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("seen_messages rows affected: %w", err)
	}
	return rows == 1, nil
}
