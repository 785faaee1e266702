package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/redis-studio/internal/core/domain"
	"github.com/custodia-labs/redis-studio/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/redis-studio/internal/runtime"
)

var testNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.FixedZone("CET", 3600))

type countingMetrics struct {
	skipped atomic.Int64
}

func (m *countingMetrics) KeyMetadataSkipped() { m.skipped.Add(1) }

type keyspaceFixture struct {
	svc       *keyspaceService
	store     *mocks.MockStore
	registry  *runtime.Registry
	sessionID string
	metrics   *countingMetrics
}

func newKeyspaceFixture(t *testing.T, limits domain.KeyspaceConfig) *keyspaceFixture {
	t.Helper()

	store := mocks.NewMockStore()
	dialer := mocks.NewMockDialer()
	dialer.StoreFn = func(string) *mocks.MockStore { return store }
	registry := runtime.NewRegistry(dialer, runtime.RegistryConfig{Shards: 2})

	id, ok := registry.Open(context.Background(), "localhost:6379")
	require.True(t, ok)

	metrics := &countingMetrics{}
	svc := NewKeyspaceService(KeyspaceServiceConfig{
		Sessions: registry,
		Limits:   limits,
		Metrics:  metrics,
		Now:      func() time.Time { return testNow },
	}).(*keyspaceService)

	return &keyspaceFixture{svc: svc, store: store, registry: registry, sessionID: id, metrics: metrics}
}

// seedUnsorted inserts n string keys with the given prefix in reverse order
// so that stream order differs from lexicographic order.
func seedUnsorted(store *mocks.MockStore, prefix string, n int) []string {
	names := make([]string, n)
	for i := n - 1; i >= 0; i-- {
		names[i] = fmt.Sprintf("%s%03d", prefix, i)
		store.SeedString(names[i], "v", 0)
	}
	return names
}

func itemNames(page *domain.KeysPage) []string {
	names := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		names = append(names, item.Name)
	}
	return names
}

func TestNewKeyspaceService_Defaults(t *testing.T) {
	svc := NewKeyspaceService(KeyspaceServiceConfig{}).(*keyspaceService)

	assert.NotNil(t, svc.logger)
	assert.NotNil(t, svc.now)
	assert.Equal(t, int64(1000), svc.limits.ScanCount)
	assert.Equal(t, int64(100), svc.limits.ListPreviewLimit)
	assert.Equal(t, domain.MetadataLenient, svc.limits.MetadataPolicy)
}

func TestKeyspaceService_Page_FirstPage(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	names := seedUnsorted(f.store, "user:", 5)

	page, err := f.svc.Page(context.Background(), f.sessionID, "*", 0, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 0, page.Page)
	assert.Equal(t, 10, page.PageSize)
	assert.Equal(t, names, itemNames(page), "items must be sorted by name")
	for _, item := range page.Items {
		assert.Equal(t, domain.KindString, item.Kind)
		assert.Equal(t, "1 B", item.Size)
		assert.Nil(t, item.TTLSeconds)
		assert.Nil(t, item.ExpireInDays)
		assert.Equal(t, testNow.UTC(), item.LastObservedAt)
	}
}

func TestKeyspaceService_Page_ConcatenationCoversAllKeys(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	seedUnsorted(f.store, "k:", 23)
	f.store.SeedHash("other", map[string]string{"a": "1"})

	for pageSize := 1; pageSize <= 8; pageSize++ {
		t.Run(fmt.Sprintf("pageSize=%d", pageSize), func(t *testing.T) {
			first, err := f.svc.Page(context.Background(), f.sessionID, "k:*", 0, pageSize)
			require.NoError(t, err)

			seen := make(map[string]bool)
			for p := 0; p < int(first.TotalPages()); p++ {
				page, err := f.svc.Page(context.Background(), f.sessionID, "k:*", p, pageSize)
				require.NoError(t, err)
				assert.LessOrEqual(t, len(page.Items), pageSize)
				assert.Equal(t, first.Total, page.Total)
				for _, name := range itemNames(page) {
					assert.False(t, seen[name], "duplicate key %s", name)
					seen[name] = true
				}
			}
			assert.Len(t, seen, 23)
			assert.Equal(t, int64(23), first.Total)
		})
	}
}

func TestKeyspaceService_Page_MetadataOnlyInsideWindow(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	seedUnsorted(f.store, "k:", 10)

	page, err := f.svc.Page(context.Background(), f.sessionID, "*", 1, 3)
	require.NoError(t, err)

	assert.Len(t, page.Items, 3)
	assert.Equal(t, int64(10), page.Total)
	assert.Len(t, f.store.Calls("type"), 3)
	assert.Len(t, f.store.Calls("ttl"), 3)
	assert.Len(t, f.store.Calls("scan"), 1, "exactly one enumeration pass")
}

func TestKeyspaceService_Page_BeyondLastPage(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	seedUnsorted(f.store, "k:", 4)

	page, err := f.svc.Page(context.Background(), f.sessionID, "*", 7, 10)
	require.NoError(t, err)

	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(4), page.Total)
	assert.Empty(t, f.store.Calls("type"))
}

func TestKeyspaceService_Page_NoMatches(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	seedUnsorted(f.store, "k:", 4)

	page, err := f.svc.Page(context.Background(), f.sessionID, "session:*", 0, 10)
	require.NoError(t, err)

	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(0), page.Total)
}

func TestKeyspaceService_Page_PatternFilters(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	f.store.SeedString("user:2", "b", 0)
	f.store.SeedString("order:1", "x", 0)
	f.store.SeedString("user:1", "a", 0)

	page, err := f.svc.Page(context.Background(), f.sessionID, "user:*", 0, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"user:1", "user:2"}, itemNames(page))
	assert.Equal(t, int64(2), page.Total)
}

func TestKeyspaceService_Page_EmptyPatternMatchesAll(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	seedUnsorted(f.store, "k:", 3)

	page, err := f.svc.Page(context.Background(), f.sessionID, "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, []string{"*"}, f.store.Calls("scan"))
}

func TestKeyspaceService_Page_MixedKinds(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	f.store.SeedString("s", "hello", time.Minute)
	f.store.SeedHash("h", map[string]string{"a": "1", "b": "2"})
	f.store.SeedList("l", "x", "y", "z")
	f.store.SeedSet("t", "m")
	f.store.SeedKind("z", domain.KindSortedSet)

	page, err := f.svc.Page(context.Background(), f.sessionID, "*", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 5)

	byName := make(map[string]domain.KeyInfo)
	for _, item := range page.Items {
		byName[item.Name] = item
	}
	assert.Equal(t, "5 B", byName["s"].Size)
	assert.Equal(t, "2 fields", byName["h"].Size)
	assert.Equal(t, "3 items", byName["l"].Size)
	assert.Equal(t, "1 members", byName["t"].Size)
	assert.Equal(t, domain.SizePlaceholder, byName["z"].Size)
	assert.Equal(t, domain.KindSortedSet, byName["z"].Kind)

	require.NotNil(t, byName["s"].TTLSeconds)
	assert.Greater(t, *byName["s"].TTLSeconds, int64(0))
	assert.LessOrEqual(t, *byName["s"].TTLSeconds, int64(60))
	assert.Equal(t, int64(1), *byName["s"].ExpireInDays)
}

func TestKeyspaceService_Page_LenientSkipsFailedKey(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	seedUnsorted(f.store, "k:", 5)
	f.store.FailFn = func(op, key string) error {
		if op == "ttl" && key == "k:002" {
			return errors.New("connection reset by peer")
		}
		return nil
	}

	page, err := f.svc.Page(context.Background(), f.sessionID, "*", 0, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"k:000", "k:001", "k:003", "k:004"}, itemNames(page))
	assert.Equal(t, int64(5), page.Total, "failed key is still counted")
	assert.Equal(t, int64(1), f.metrics.skipped.Load())
}

func TestKeyspaceService_Page_LenientSkipsVanishedKey(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	seedUnsorted(f.store, "k:", 3)
	f.store.FailFn = func(op, key string) error {
		if op == "type" && key == "k:001" {
			return domain.ErrNotFound
		}
		return nil
	}

	page, err := f.svc.Page(context.Background(), f.sessionID, "*", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"k:000", "k:002"}, itemNames(page))
	assert.Equal(t, int64(3), page.Total)
}

func TestKeyspaceService_Page_StrictAborts(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{MetadataPolicy: domain.MetadataStrict})
	seedUnsorted(f.store, "k:", 5)
	f.store.FailFn = func(op, key string) error {
		if op == "type" && key == "k:003" {
			return errors.New("i/o timeout")
		}
		return nil
	}

	page, err := f.svc.Page(context.Background(), f.sessionID, "*", 0, 10)

	assert.Nil(t, page)
	assert.ErrorIs(t, err, domain.ErrOperationFailed)
	assert.Equal(t, int64(0), f.metrics.skipped.Load())
}

func TestKeyspaceService_Page_StrictVanishedKeyIsOperationFailure(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{MetadataPolicy: domain.MetadataStrict})
	seedUnsorted(f.store, "k:", 3)
	f.store.FailFn = func(op, key string) error {
		if op == "type" && key == "k:001" {
			return domain.ErrNotFound
		}
		return nil
	}

	page, err := f.svc.Page(context.Background(), f.sessionID, "*", 0, 10)

	assert.Nil(t, page)
	assert.ErrorIs(t, err, domain.ErrOperationFailed)
	assert.Contains(t, err.Error(), "k:001")
}

func TestKeyspaceService_Page_LargePageSizeOnSmallKeyspace(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})

	page, err := f.svc.Page(context.Background(), f.sessionID, "*", 0, 2_000_000_000)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(0), page.Total)
	assert.LessOrEqual(t, cap(page.Items), maxPreallocItems)

	seedUnsorted(f.store, "k:", 3)
	page, err = f.svc.Page(context.Background(), f.sessionID, "*", 0, 2_000_000_000)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.Equal(t, int64(3), page.Total)
}

func TestKeyspaceService_Page_WindowOverflow(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	seedUnsorted(f.store, "k:", 5)

	tests := []struct {
		name           string
		page, pageSize int
	}{
		{"max page", math.MaxInt, 10},
		{"product overflows", math.MaxInt / 2, 4},
		{"both large", math.MaxInt / 3, math.MaxInt / 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.svc.Page(context.Background(), f.sessionID, "*", tt.page, tt.pageSize)
			require.NoError(t, err)
			assert.Empty(t, page.Items)
			assert.Equal(t, int64(5), page.Total)
		})
	}
}

func TestKeyspaceService_Page_SizeFailureDegrades(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{MetadataPolicy: domain.MetadataStrict})
	f.store.SeedString("k", "value", 0)
	f.store.FailFn = func(op, key string) error {
		if op == "size" {
			return errors.New("busy")
		}
		return nil
	}

	page, err := f.svc.Page(context.Background(), f.sessionID, "*", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, domain.SizePlaceholder, page.Items[0].Size)
}

func TestKeyspaceService_Page_ScanFailure(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	f.store.FailFn = func(op, key string) error {
		if op == "scan" {
			return errors.New("LOADING Redis is loading the dataset in memory")
		}
		return nil
	}

	_, err := f.svc.Page(context.Background(), f.sessionID, "*", 0, 10)
	assert.ErrorIs(t, err, domain.ErrOperationFailed)
}

func TestKeyspaceService_Page_CancelledContext(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	seedUnsorted(f.store, "k:", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Page(ctx, f.sessionID, "*", 0, 10)
	assert.ErrorIs(t, err, domain.ErrOperationFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeyspaceService_Page_InvalidWindow(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})

	tests := []struct {
		name     string
		page     int
		pageSize int
	}{
		{"negative page", -1, 10},
		{"zero page size", 0, 0},
		{"negative page size", 0, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Page(context.Background(), f.sessionID, "*", tt.page, tt.pageSize)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	assert.Empty(t, f.store.Calls("scan"))
}

func TestKeyspaceService_Page_UnknownSession(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})

	_, err := f.svc.Page(context.Background(), "not-a-session", "*", 0, 10)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestKeyspaceService_Page_AfterClose(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	require.True(t, f.registry.Close(f.sessionID))

	_, err := f.svc.Page(context.Background(), f.sessionID, "*", 0, 10)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
