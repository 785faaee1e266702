package driving

import (
	"context"

	"github.com/custodia-labs/redis-studio/internal/core/domain"
)

// KeyspaceService browses and mutates the keyspace behind a session.
// Errors match the domain taxonomy with errors.Is: ErrSessionNotFound for
// unknown ids, ErrNotFound for absent keys, ErrMalformedPayload and
// ErrInvalidInput for bad requests, ErrOperationFailed for store failures.
type KeyspaceService interface {
	// Page lists one window of keys matching pattern together with the total match count
	Page(ctx context.Context, sessionID, pattern string, page, pageSize int) (*domain.KeysPage, error)

	// Fetch returns a key's metadata and materialized value
	Fetch(ctx context.Context, sessionID, name string) (*domain.KeyValue, error)

	// Write applies a key specification. The bool is the write outcome; the
	// error explains a false outcome.
	Write(ctx context.Context, sessionID string, spec domain.KeyWriteSpec) (bool, error)

	// Delete removes a key. It returns (false, nil) when the key did not
	// exist and (false, err) when the deletion could not be performed.
	Delete(ctx context.Context, sessionID, name string) (bool, error)
}
