// Package storage provides the per-guild, per-plugin namespaced key-value
// store backing all ephemeral and configuration state.
//
// Every key a plugin touches lives under the prefix "{plugin}.{guild_id}:".
// Expiry is a property of the store, not of in-process timers: cooldown and
// slowmode markers are written with a TTL and simply vanish. Note that
// multi-step sequences (check a key, then set it) are not transactional;
// two near-simultaneous messages can both pass a check before either writes
// the marker. Callers that need the stronger form can use SetNX.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a Redis connection and hands out namespaced views.
type Client struct {
	rdb *redis.Client
}

// Open connects to Redis at the given URL and verifies the connection.
func Open(ctx context.Context, url string) (*Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// NewClient wraps an existing Redis client. Used by tests.
func NewClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Namespace returns a view of the store scoped to one plugin and one guild.
func (c *Client) Namespace(plugin, guildID string) *Storage {
	return &Storage{
		rdb:    c.rdb,
		prefix: fmt.Sprintf("%s.%s:", plugin, guildID),
	}
}

// Storage is a namespaced view of the key-value store. Key assembly happens
// here and nowhere else; a Storage cannot reach outside its namespace.
type Storage struct {
	rdb    *redis.Client
	prefix string
}

func (s *Storage) key(k string) string {
	return s.prefix + k
}

// Get returns the string value of a key, or "" if the key does not exist.
func (s *Storage) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

// Set stores a value without expiry.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetTTL stores a value that expires after ttl.
func (s *Storage) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetNX stores a value with expiry only if the key does not already exist.
// Returns whether the write happened. This is the atomic form of
// "check cooldown, then set cooldown".
func (s *Storage) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Storage) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Expire attaches a TTL to an existing key.
func (s *Storage) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.Expire(ctx, s.key(key), ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

// TTL returns the remaining lifetime of a key.
func (s *Storage) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.rdb.TTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl %s: %w", key, err)
	}
	return d, nil
}

// Exists reports whether a key is present.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

// SAdd adds members to a set.
func (s *Storage) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.rdb.SAdd(ctx, s.key(key), args...).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", key, err)
	}
	return nil
}

// SRem removes members from a set.
func (s *Storage) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.rdb.SRem(ctx, s.key(key), args...).Err(); err != nil {
		return fmt.Errorf("srem %s: %w", key, err)
	}
	return nil
}

// SMembers returns all members of a set; a missing set yields an empty slice.
func (s *Storage) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return members, nil
}

// SIsMember reports set membership.
func (s *Storage) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, s.key(key), member).Result()
	if err != nil {
		return false, fmt.Errorf("sismember %s: %w", key, err)
	}
	return ok, nil
}

// RPush appends values to a list.
func (s *Storage) RPush(ctx context.Context, key string, values ...string) error {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := s.rdb.RPush(ctx, s.key(key), args...).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// LPop pops the head of a list, or returns "" if the list is empty.
func (s *Storage) LPop(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.LPop(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lpop %s: %w", key, err)
	}
	return v, nil
}

// LRange returns the list elements in [start, stop], Redis-style inclusive.
func (s *Storage) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.rdb.LRange(ctx, s.key(key), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return vals, nil
}

// LLen returns the length of a list.
func (s *Storage) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.LLen(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", key, err)
	}
	return n, nil
}
