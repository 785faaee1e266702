package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/redis-studio/internal/core/domain"
)

// Fetch returns full metadata and a type-dispatched value for an exact key.
// An absent key yields domain.ErrNotFound.
func (s *keyspaceService) Fetch(ctx context.Context, sessionID, name string) (*domain.KeyValue, error) {
	if name == "" {
		return nil, fmt.Errorf("empty key name: %w", domain.ErrInvalidInput)
	}

	conn, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}

	exists, err := conn.Exists(ctx, name)
	if err != nil {
		return nil, opFailed(fmt.Sprintf("exists %q", name), err)
	}
	if !exists {
		return nil, domain.ErrNotFound
	}

	info, err := s.keyInfo(ctx, conn, name)
	if err != nil {
		// Expired or deleted between the existence check and the type probe
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	kv := &domain.KeyValue{KeyInfo: *info}
	switch info.Kind {
	case domain.KindString:
		text, err := conn.ReadScalar(ctx, name)
		if err != nil {
			return nil, opFailed(fmt.Sprintf("get %q", name), err)
		}
		kv.Value = domain.ScalarValue{Text: text}
		kv.RawScalar = text

	case domain.KindHash:
		fields, err := conn.ReadHash(ctx, name)
		if err != nil {
			return nil, opFailed(fmt.Sprintf("hgetall %q", name), err)
		}
		kv.Value = domain.MappingValue{Fields: fields}

	case domain.KindList:
		items, err := conn.ReadList(ctx, name, s.limits.ListPreviewLimit)
		if err != nil {
			return nil, opFailed(fmt.Sprintf("lrange %q", name), err)
		}
		kv.Value = domain.SequenceValue{Items: items}

	case domain.KindSet:
		members, err := conn.ReadSet(ctx, name)
		if err != nil {
			return nil, opFailed(fmt.Sprintf("smembers %q", name), err)
		}
		kv.Value = domain.SetValue{Members: members}

	default:
		kv.Value = domain.UnsupportedValue{}
	}

	return kv, nil
}
