package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/custodia-labs/redis-studio/internal/core/domain"
	"github.com/custodia-labs/redis-studio/internal/core/ports/driven"
	"github.com/custodia-labs/redis-studio/internal/core/ports/driving"
)

// Ensure keyspaceService implements KeyspaceService
var _ driving.KeyspaceService = (*keyspaceService)(nil)

// SessionResolver looks up the store connection behind a session id
type SessionResolver interface {
	Resolve(sessionID string) (driven.StoreConnection, bool)
}

// KeyspaceMetrics receives counters from the keyspace services (optional)
type KeyspaceMetrics interface {
	KeyMetadataSkipped()
}

// maxPreallocItems caps the initial capacity of a page's item slice
const maxPreallocItems = 256

// KeyspaceServiceConfig holds dependencies for the keyspace service
type KeyspaceServiceConfig struct {
	Sessions SessionResolver
	Limits   domain.KeyspaceConfig
	Logger   *slog.Logger
	Metrics  KeyspaceMetrics
	Now      func() time.Time
}

// keyspaceService implements paging, fetching and mutating keys
type keyspaceService struct {
	sessions SessionResolver
	limits   domain.KeyspaceConfig
	logger   *slog.Logger
	metrics  KeyspaceMetrics
	now      func() time.Time
}

// NewKeyspaceService creates a new KeyspaceService
func NewKeyspaceService(cfg KeyspaceServiceConfig) driving.KeyspaceService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &keyspaceService{
		sessions: cfg.Sessions,
		limits:   cfg.Limits.WithDefaults(),
		logger:   logger,
		metrics:  cfg.Metrics,
		now:      now,
	}
}

// Page enumerates the keys matching pattern in a single pass. Only keys
// inside the requested window have their metadata fetched; every match is
// counted so Total reflects the same pass as Items.
func (s *keyspaceService) Page(ctx context.Context, sessionID, pattern string, page, pageSize int) (*domain.KeysPage, error) {
	if page < 0 || pageSize < 1 {
		return nil, fmt.Errorf("page %d with size %d: %w", page, pageSize, domain.ErrInvalidInput)
	}
	if pattern == "" {
		pattern = "*"
	}

	conn, err := s.resolve(sessionID)
	if err != nil {
		return nil, err
	}

	// A window past MaxInt64 cannot hold any key; the scan still runs for Total
	start, end := int64(math.MaxInt64), int64(math.MaxInt64)
	if int64(page) < math.MaxInt64/int64(pageSize) {
		start = int64(page) * int64(pageSize)
		end = start + int64(pageSize)
	}
	// Capacity tracks what the store returns, not what the client asked for
	items := make([]domain.KeyInfo, 0, min(pageSize, maxPreallocItems))

	var index int64
	for key, err := range conn.ScanKeys(ctx, pattern, s.limits.ScanCount) {
		if err != nil {
			return nil, opFailed(fmt.Sprintf("scan %q", pattern), err)
		}

		if index >= start && index < end && len(items) < pageSize {
			info, err := s.keyInfo(ctx, conn, key)
			switch {
			case err == nil:
				items = append(items, *info)
			case s.limits.MetadataPolicy == domain.MetadataStrict:
				if errors.Is(err, domain.ErrOperationFailed) {
					return nil, err
				}
				// A key that vanished mid-listing fails the listing, not a lookup
				return nil, opFailed(fmt.Sprintf("metadata %q", key), err)
			default:
				s.logger.Warn("skipping key metadata", "key", key, "error", err)
				if s.metrics != nil {
					s.metrics.KeyMetadataSkipped()
				}
			}
		}
		index++
	}

	slices.SortFunc(items, func(a, b domain.KeyInfo) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return &domain.KeysPage{
		Items:    items,
		Total:    index,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// keyInfo fetches kind, TTL and size for one key
func (s *keyspaceService) keyInfo(ctx context.Context, conn driven.StoreConnection, key string) (*domain.KeyInfo, error) {
	kind, err := conn.Type(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("type %q: %w", key, domain.ErrNotFound)
		}
		return nil, opFailed(fmt.Sprintf("type %q", key), err)
	}

	ttl, hasTTL, err := conn.TTL(ctx, key)
	if err != nil {
		return nil, opFailed(fmt.Sprintf("ttl %q", key), err)
	}

	info := &domain.KeyInfo{
		Name:           key,
		Kind:           kind,
		Size:           s.sizeDescriptor(ctx, conn, key, kind),
		LastObservedAt: s.now().UTC(),
	}
	info.SetTTL(ttl, hasTTL)
	return info, nil
}

// sizeDescriptor never fails; a failing probe degrades to the placeholder
func (s *keyspaceService) sizeDescriptor(ctx context.Context, conn driven.StoreConnection, key string, kind domain.KeyKind) string {
	switch kind {
	case domain.KindString, domain.KindHash, domain.KindList, domain.KindSet:
	default:
		return domain.SizePlaceholder
	}

	n, err := conn.Size(ctx, key, kind)
	if err != nil {
		s.logger.Debug("size probe failed", "key", key, "kind", kind, "error", err)
		return domain.SizePlaceholder
	}
	return domain.FormatSize(kind, n)
}

func (s *keyspaceService) resolve(sessionID string) (driven.StoreConnection, error) {
	conn, ok := s.sessions.Resolve(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return conn, nil
}

// opFailed wraps a store error as ErrOperationFailed. Context errors stay
// matchable so the transport can tell a timeout from a store fault.
func opFailed(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrOperationFailed, err)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrOperationFailed, err)
}
