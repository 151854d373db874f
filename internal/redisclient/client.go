package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/claim_key.lua
var claimKeyScript string

//go:embed scripts/consume_code.lua
var consumeCodeScript string

// MaxResetAttempts is how many wrong guesses burn a reset code
const MaxResetAttempts = 5

type Client struct {
	rdb           *redis.Client
	claimScript   *redis.Script
	consumeScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		claimScript:   redis.NewScript(claimKeyScript),
		consumeScript: redis.NewScript(consumeCodeScript),
	}, nil
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ClaimKey atomically stores placeholder under key unless the key already
// holds a value, which is returned instead
func (c *Client) ClaimKey(ctx context.Context, key, placeholder string, ttl time.Duration) (string, bool, error) {
	result, err := c.claimScript.Run(ctx, c.rdb, []string{key}, placeholder, ttl.Milliseconds()).Result()
	if err != nil {
		return "", false, fmt.Errorf("claim key script failed: %w", err)
	}

	pair, ok := result.([]interface{})
	if !ok || len(pair) != 2 {
		return "", false, fmt.Errorf("unexpected script result type")
	}
	claimed, _ := pair[0].(int64)
	existing, _ := pair[1].(string)
	return existing, claimed == 1, nil
}

// SetKey stores a string value with TTL
func (c *Client) SetKey(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// GetJSON decodes the value stored under key into dst. It reports false when
// the key does not exist.
func (c *Client) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v as JSON with TTL
func (c *Client) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// Delete removes keys
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// SetResetCode stores a password reset code for email, replacing any
// earlier one
func (c *Client) SetResetCode(ctx context.Context, email, code string, ttl time.Duration) error {
	key := resetKey(email)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "code", code, "attempts", 0)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	return err
}

// ConsumeResetCode deletes the reset code of email when code matches it.
// MaxResetAttempts wrong guesses delete it as well.
func (c *Client) ConsumeResetCode(ctx context.Context, email, code string) (bool, error) {
	result, err := c.consumeScript.Run(ctx, c.rdb, []string{resetKey(email)}, code, MaxResetAttempts).Result()
	if err != nil {
		return false, fmt.Errorf("consume code script failed: %w", err)
	}

	matched, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return matched == 1, nil
}

func resetKey(email string) string {
	return fmt.Sprintf("reset:%s", email)
}
