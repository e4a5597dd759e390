package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "session:"
	// sessionTTL bounds abandoned sessions; every write refreshes it.
	sessionTTL = 24 * time.Hour
)

// RedisStore keeps sessions as JSON blobs in Redis so in-progress forms
// survive process restarts.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) State(ctx context.Context, sid string) (string, error) {
	rec, err := r.load(ctx, sid)
	if err != nil {
		return "", err
	}
	return rec.State, nil
}

func (r *RedisStore) SetState(ctx context.Context, sid, state string) error {
	rec, err := r.load(ctx, sid)
	if err != nil {
		return err
	}
	rec.State = state
	return r.save(ctx, sid, rec)
}

func (r *RedisStore) SetValue(ctx context.Context, sid, key, value string) error {
	rec, err := r.load(ctx, sid)
	if err != nil {
		return err
	}
	rec.Data[key] = value
	return r.save(ctx, sid, rec)
}

func (r *RedisStore) Data(ctx context.Context, sid string) (map[string]string, error) {
	rec, err := r.load(ctx, sid)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

func (r *RedisStore) Clear(ctx context.Context, sid string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+sid).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}

func (r *RedisStore) load(ctx context.Context, sid string) (*record, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+sid).Bytes()
	if errors.Is(err, redis.Nil) {
		return &record{Data: make(map[string]string)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session load: %w", err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	if rec.Data == nil {
		rec.Data = make(map[string]string)
	}
	return &rec, nil
}

func (r *RedisStore) save(ctx context.Context, sid string, rec *record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+sid, raw, sessionTTL).Err(); err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	return nil
}
