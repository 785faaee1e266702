package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/redis-studio/internal/core/domain"
	"github.com/custodia-labs/redis-studio/internal/core/ports/driven"
)

// Write applies a key specification. Unknown kinds are written as strings.
// For hashes the fields are written first and the expiry applied second;
// if only the second step fails the write still counts as successful.
func (s *keyspaceService) Write(ctx context.Context, sessionID string, spec domain.KeyWriteSpec) (bool, error) {
	if spec.Name == "" {
		return false, fmt.Errorf("empty key name: %w", domain.ErrInvalidInput)
	}

	conn, err := s.resolve(sessionID)
	if err != nil {
		return false, err
	}

	ttl, hasTTL := spec.Expiry()

	// ttl is zero when no expiry was requested, which clears any existing one
	switch domain.KeyKind(strings.ToLower(strings.TrimSpace(spec.Kind))) {
	case domain.KindHash:
		return s.writeHash(ctx, conn, spec, ttl, hasTTL)
	default:
		if err := conn.WriteScalar(ctx, spec.Name, spec.Payload, ttl); err != nil {
			s.logger.Error("write failed", "key", spec.Name, "kind", domain.KindString, "error", err)
			return false, opFailed(fmt.Sprintf("set %q", spec.Name), err)
		}
		return true, nil
	}
}

func (s *keyspaceService) writeHash(ctx context.Context, conn driven.StoreConnection, spec domain.KeyWriteSpec, ttl time.Duration, hasTTL bool) (bool, error) {
	fields, err := decodeHashPayload(spec.Payload)
	if err != nil {
		return false, err
	}

	if err := conn.WriteHash(ctx, spec.Name, fields); err != nil {
		s.logger.Error("write failed", "key", spec.Name, "kind", domain.KindHash, "error", err)
		return false, opFailed(fmt.Sprintf("hset %q", spec.Name), err)
	}

	if hasTTL {
		err = conn.Expire(ctx, spec.Name, ttl)
	} else {
		err = conn.Persist(ctx, spec.Name)
	}
	if err != nil {
		// Fields are already stored; expiry stays best-effort
		s.logger.Warn("hash written but expiry not applied", "key", spec.Name, "ttl", ttl, "error", err)
	}
	return true, nil
}

// decodeHashPayload parses a flat JSON object of string values
func decodeHashPayload(payload string) (map[string]string, error) {
	var fields map[string]string
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, fmt.Errorf("%w: hash payload: %v", domain.ErrMalformedPayload, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: hash payload is null", domain.ErrMalformedPayload)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: hash payload has no fields", domain.ErrMalformedPayload)
	}
	return fields, nil
}

// Delete removes a key by exact name. An absent key is (false, nil).
func (s *keyspaceService) Delete(ctx context.Context, sessionID, name string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("empty key name: %w", domain.ErrInvalidInput)
	}

	conn, err := s.resolve(sessionID)
	if err != nil {
		return false, err
	}

	removed, err := conn.Delete(ctx, name)
	if err != nil {
		s.logger.Error("delete failed", "key", name, "error", err)
		return false, opFailed(fmt.Sprintf("del %q", name), err)
	}
	return removed, nil
}
