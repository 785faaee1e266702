package redis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/redis-studio/internal/core/domain"
	"github.com/custodia-labs/redis-studio/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.StoreConnection = (*Connection)(nil)

// Connection implements driven.StoreConnection on top of a go-redis client.
// go-redis pools its connections, so one Connection is safe to share
// between concurrent requests.
type Connection struct {
	client redis.UniversalClient
}

// NewConnection wraps an already configured client
func NewConnection(client redis.UniversalClient) *Connection {
	return &Connection{client: client}
}

// ScanKeys walks the keyspace with SCAN. Keys are yielded as each batch
// arrives; nothing beyond the current batch is buffered.
func (c *Connection) ScanKeys(ctx context.Context, pattern string, count int64) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		it := c.client.Scan(ctx, 0, pattern, count).Iterator()
		for it.Next(ctx) {
			if !yield(it.Val(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield("", fmt.Errorf("scan %q: %w", pattern, err))
		}
	}
}

// Exists reports whether the key is present
func (c *Connection) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Type returns the key's kind. The store answers "none" for absent keys.
func (c *Connection) Type(ctx context.Context, key string) (domain.KeyKind, error) {
	t, err := c.client.Type(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("type %s: %w", key, err)
	}
	if t == "none" {
		return "", domain.ErrNotFound
	}
	return domain.ParseKeyKind(t), nil
}

// TTL returns the remaining time to live. Negative replies mean the key
// has no expiry (-1) or does not exist (-2); both report ok=false.
func (c *Connection) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("ttl %s: %w", key, err)
	}
	if ttl <= 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

// Size returns STRLEN, HLEN, LLEN or SCARD depending on kind
func (c *Connection) Size(ctx context.Context, key string, kind domain.KeyKind) (int64, error) {
	var cmd *redis.IntCmd
	switch kind {
	case domain.KindString:
		cmd = c.client.StrLen(ctx, key)
	case domain.KindHash:
		cmd = c.client.HLen(ctx, key)
	case domain.KindList:
		cmd = c.client.LLen(ctx, key)
	case domain.KindSet:
		cmd = c.client.SCard(ctx, key)
	default:
		return 0, fmt.Errorf("size %s: %w: kind %s", key, domain.ErrInvalidInput, kind)
	}
	n, err := cmd.Result()
	if err != nil {
		return 0, fmt.Errorf("size %s: %w", key, err)
	}
	return n, nil
}

// ReadScalar returns the string value, nil when the key is absent
func (c *Connection) ReadScalar(ctx context.Context, key string) (*string, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return &v, nil
}

// ReadHash returns all field/value pairs
func (c *Connection) ReadHash(ctx context.Context, key string) (map[string]string, error) {
	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return fields, nil
}

// ReadList returns the first limit elements
func (c *Connection) ReadList(ctx context.Context, key string, limit int64) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	items, err := c.client.LRange(ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return items, nil
}

// ReadSet returns all members
func (c *Connection) ReadSet(ctx context.Context, key string) ([]string, error) {
	members, err := c.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return members, nil
}

// WriteScalar issues SET. A plain SET already drops any previous TTL, so
// ttl <= 0 leaves the key persistent.
func (c *Connection) WriteScalar(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// WriteHash issues HSET with every field in one round trip
func (c *Connection) WriteHash(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return fmt.Errorf("hset %s: %w: no fields", key, domain.ErrInvalidInput)
	}
	values := make([]any, 0, len(fields)*2)
	for f, v := range fields {
		values = append(values, f, v)
	}
	if err := c.client.HSet(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Expire sets a TTL on an existing key
func (c *Connection) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := c.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("expire %s: %w", key, domain.ErrNotFound)
	}
	return nil
}

// Persist removes any TTL. A key that had none is not an error.
func (c *Connection) Persist(ctx context.Context, key string) error {
	if err := c.client.Persist(ctx, key).Err(); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// Delete issues DEL and reports whether anything was removed
func (c *Connection) Delete(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("del %s: %w", key, err)
	}
	return n > 0, nil
}

// Ping checks the connection is alive
func (c *Connection) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Info returns every field of the INFO reply
func (c *Connection) Info(ctx context.Context) (map[string]string, error) {
	raw, err := c.client.Info(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("info: %w", err)
	}
	return parseInfo(raw), nil
}

// Close releases the client's pool
func (c *Connection) Close() error {
	return c.client.Close()
}

// parseInfo flattens the INFO text format ("# Section" headers followed by
// "field:value" lines) into a map. Later sections win on duplicate fields.
func parseInfo(raw string) map[string]string {
	fields := make(map[string]string)
	for line := range strings.Lines(raw) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[name] = value
	}
	return fields
}
