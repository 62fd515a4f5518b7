// Package realtime is the per-path key-value store that mirrors user presence.
// Values are JSON documents; ServerTimestamp placeholders are resolved with the
// Redis server clock at write time.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/azrayildirim/mekandamobil/internal/stream"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Value is a JSON object written at a path.
type Value map[string]any

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's clock (epoch millis) when written.
var ServerTimestamp = serverTimestamp{}

func (serverTimestamp) MarshalJSON() ([]byte, error) {
	return []byte(`{".sv":"timestamp"}`), nil
}

type Store interface {
	Read(ctx context.Context, path string, dst any) (bool, error)
	Write(ctx context.Context, path string, v Value) error
	// Update merges the top-level fields of v into the value at path.
	Update(ctx context.Context, path string, v Value) error
	WriteOnDisconnect(ctx context.Context, connID, path string, v Value) error
	CancelOnDisconnect(ctx context.Context, connID string) error
	// Disconnect runs every rule registered for connID and forgets them.
	Disconnect(ctx context.Context, connID string) error
	Subscribe(path string, onChange func([]byte)) (unsubscribe func())
}

// updateRetries bounds optimistic retries of Update under concurrent writes.
const updateRetries = 100

type RedisStore struct {
	rdb *redis.Client
	hub *stream.Hub
	log zerolog.Logger
}

func NewRedisStore(rdb *redis.Client, hub *stream.Hub, log zerolog.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, hub: hub, log: log}
}

func (s *RedisStore) Read(ctx context.Context, path string, dst any) (bool, error) {
	raw, err := s.rdb.Get(ctx, valueKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

func (s *RedisStore) Write(ctx context.Context, path string, v Value) error {
	doc, err := s.resolve(ctx, v)
	if err != nil {
		return err
	}
	return s.put(ctx, path, doc)
}

func (s *RedisStore) Update(ctx context.Context, path string, v Value) error {
	patch, err := s.resolve(ctx, v)
	if err != nil {
		return err
	}

	key := valueKey(path)
	var merged []byte
	txf := func(tx *redis.Tx) error {
		current := map[string]any{}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
		}
		for k, val := range patch {
			current[k] = val
		}
		merged, err = json.Marshal(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, merged, 0)
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return err
	}
	s.hub.Broadcast(path, merged)
	return nil
}

func (s *RedisStore) WriteOnDisconnect(ctx context.Context, connID, path string, v Value) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, disconnectKey(connID), path, raw).Err()
}

func (s *RedisStore) CancelOnDisconnect(ctx context.Context, connID string) error {
	return s.rdb.Del(ctx, disconnectKey(connID)).Err()
}

func (s *RedisStore) Disconnect(ctx context.Context, connID string) error {
	rules, err := s.rdb.HGetAll(ctx, disconnectKey(connID)).Result()
	if err != nil {
		return err
	}
	var errs []error
	for path, raw := range rules {
		var v Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			errs = append(errs, fmt.Errorf("decode rule %s: %w", path, err))
			continue
		}
		if err := s.Write(ctx, path, v); err != nil {
			errs = append(errs, fmt.Errorf("apply rule %s: %w", path, err))
			continue
		}
		s.log.Debug().Str("action", "on_disconnect_applied").Str("conn_id", connID).Str("path", path).Msg("disconnect rule applied")
	}
	if err := s.rdb.Del(ctx, disconnectKey(connID)).Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *RedisStore) Subscribe(path string, onChange func([]byte)) func() {
	client := s.hub.Register(path)
	go func() {
		for msg := range client.Send {
			onChange(msg)
		}
	}()
	return func() { s.hub.Unregister(client) }
}

func (s *RedisStore) put(ctx context.Context, path string, doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, valueKey(path), raw, 0).Err(); err != nil {
		return err
	}
	s.hub.Broadcast(path, raw)
	return nil
}

// resolve round-trips v through JSON and swaps timestamp placeholders for the
// server clock.
func (s *RedisStore) resolve(ctx context.Context, v Value) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	now, err := s.rdb.Time(ctx).Result()
	if err != nil {
		return nil, err
	}
	return resolveTimestamps(doc, now.UnixMilli()).(map[string]any), nil
}

func resolveTimestamps(v any, nowMs int64) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 && t[".sv"] == "timestamp" {
			return nowMs
		}
		for k, child := range t {
			t[k] = resolveTimestamps(child, nowMs)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = resolveTimestamps(child, nowMs)
		}
		return t
	default:
		return v
	}
}

func valueKey(path string) string {
	return "rt:" + path
}

func disconnectKey(connID string) string {
	return "rt:ondisconnect:" + connID
}
