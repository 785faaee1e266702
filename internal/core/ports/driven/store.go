package driven

import (
	"context"
	"iter"
	"time"

	"github.com/custodia-labs/redis-studio/internal/core/domain"
)

// StoreConnection is a live session against one key-value store instance.
// Implementations must be safe for concurrent use; the registry does not
// serialize operations on a single session.
type StoreConnection interface {
	// ScanKeys lazily enumerates keys matching a glob pattern.
	// count is a batch-size hint for each round trip. The sequence is finite
	// and a fresh enumeration starts on every call. A non-nil error is
	// yielded at most once and ends the sequence.
	ScanKeys(ctx context.Context, pattern string, count int64) iter.Seq2[string, error]

	// Exists reports whether the key is present
	Exists(ctx context.Context, key string) (bool, error)

	// Type returns the key's kind, or domain.ErrNotFound if it is absent
	Type(ctx context.Context, key string) (domain.KeyKind, error)

	// TTL returns the remaining time to live; ok is false when the key does
	// not expire (or does not exist)
	TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error)

	// Size returns byte length for strings and cardinality for collections
	Size(ctx context.Context, key string, kind domain.KeyKind) (int64, error)

	// ReadScalar returns the string value, nil when absent
	ReadScalar(ctx context.Context, key string) (*string, error)

	// ReadHash returns all field/value pairs
	ReadHash(ctx context.Context, key string) (map[string]string, error)

	// ReadList returns at most limit elements from the head of the list
	ReadList(ctx context.Context, key string, limit int64) ([]string, error)

	// ReadSet returns all members
	ReadSet(ctx context.Context, key string) ([]string, error)

	// WriteScalar sets a string value. ttl <= 0 stores it without expiration,
	// clearing any previous one.
	WriteScalar(ctx context.Context, key, value string, ttl time.Duration) error

	// WriteHash sets the given fields, leaving others untouched
	WriteHash(ctx context.Context, key string, fields map[string]string) error

	// Expire sets a TTL on an existing key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Persist removes any TTL from an existing key
	Persist(ctx context.Context, key string) error

	// Delete removes the key; removed is false if it did not exist
	Delete(ctx context.Context, key string) (removed bool, err error)

	// Ping checks the connection is alive
	Ping(ctx context.Context) error

	// Info returns the server's INFO fields as a flat map
	Info(ctx context.Context) (map[string]string, error)

	// Close releases the connection's resources
	Close() error
}

// StoreDialer establishes store connections from a descriptor
// (endpoint plus credentials). A returned connection has already passed a
// liveness probe.
type StoreDialer interface {
	Dial(ctx context.Context, descriptor string) (StoreConnection, error)
}
