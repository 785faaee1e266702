package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/redis-studio/internal/core/domain"
	"github.com/custodia-labs/redis-studio/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/redis-studio/internal/runtime"
)

func ttlSecs(secs int64) *int64 { return &secs }

func TestKeyspaceService_Write_StringRoundTrip(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	ctx := context.Background()

	ok, err := f.svc.Write(ctx, f.sessionID, domain.KeyWriteSpec{Name: "k", Kind: "string", Payload: "v"})
	require.NoError(t, err)
	require.True(t, ok)

	kv, err := f.svc.Fetch(ctx, f.sessionID, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", kv.Value.Raw())
	require.NotNil(t, kv.RawScalar)
	assert.Equal(t, "v", *kv.RawScalar)
	assert.Nil(t, kv.TTLSeconds)
}

func TestKeyspaceService_Write_TTL(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	ctx := context.Background()

	for _, kind := range []string{"string", "hash"} {
		t.Run(kind, func(t *testing.T) {
			name := "ttl:" + kind
			payload := "v"
			if kind == "hash" {
				payload = `{"a":"1"}`
			}

			ok, err := f.svc.Write(ctx, f.sessionID, domain.KeyWriteSpec{Name: name, Kind: kind, Payload: payload, TTLSeconds: ttlSecs(60)})
			require.NoError(t, err)
			require.True(t, ok)

			kv, err := f.svc.Fetch(ctx, f.sessionID, name)
			require.NoError(t, err)
			require.NotNil(t, kv.TTLSeconds)
			assert.Greater(t, *kv.TTLSeconds, int64(0))
			assert.LessOrEqual(t, *kv.TTLSeconds, int64(60))
			require.NotNil(t, kv.ExpireInDays)
			assert.Equal(t, int64(1), *kv.ExpireInDays)
		})
	}
}

func TestKeyspaceService_Write_StringWithoutTTLClearsExpiry(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	f.store.SeedString("k", "old", time.Hour)

	ok, err := f.svc.Write(context.Background(), f.sessionID, domain.KeyWriteSpec{Name: "k", Kind: "string", Payload: "new"})
	require.NoError(t, err)
	require.True(t, ok)

	kv, err := f.svc.Fetch(context.Background(), f.sessionID, "k")
	require.NoError(t, err)
	assert.Nil(t, kv.TTLSeconds)
	assert.Nil(t, kv.ExpireInDays)
}

func TestKeyspaceService_Write_UnknownKindIsString(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})

	for _, kind := range []string{"", "list", "set", "json"} {
		ok, err := f.svc.Write(context.Background(), f.sessionID, domain.KeyWriteSpec{Name: "k:" + kind, Kind: kind, Payload: `["a"]`})
		require.NoError(t, err)
		require.True(t, ok)

		kv, err := f.svc.Fetch(context.Background(), f.sessionID, "k:"+kind)
		require.NoError(t, err)
		assert.Equal(t, domain.KindString, kv.Kind)
		assert.Equal(t, `["a"]`, kv.Value.Raw())
	}
}

func TestKeyspaceService_Write_HashRoundTrip(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	ctx := context.Background()

	ok, err := f.svc.Write(ctx, f.sessionID, domain.KeyWriteSpec{Name: "k", Kind: "HASH", Payload: `{"a":"1","b":"2"}`})
	require.NoError(t, err)
	require.True(t, ok)

	kv, err := f.svc.Fetch(ctx, f.sessionID, "k")
	require.NoError(t, err)
	assert.Equal(t, domain.KindHash, kv.Kind)
	assert.Equal(t, domain.MappingValue{Fields: map[string]string{"a": "1", "b": "2"}}, kv.Value)
	assert.Nil(t, kv.TTLSeconds)
}

func TestKeyspaceService_Write_HashWithoutTTLPersists(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	ctx := context.Background()

	_, err := f.svc.Write(ctx, f.sessionID, domain.KeyWriteSpec{Name: "h", Kind: "hash", Payload: `{"a":"1"}`, TTLSeconds: ttlSecs(600)})
	require.NoError(t, err)

	ok, err := f.svc.Write(ctx, f.sessionID, domain.KeyWriteSpec{Name: "h", Kind: "hash", Payload: `{"b":"2"}`})
	require.NoError(t, err)
	require.True(t, ok)

	kv, err := f.svc.Fetch(ctx, f.sessionID, "h")
	require.NoError(t, err)
	assert.Nil(t, kv.TTLSeconds)
	assert.Equal(t, domain.MappingValue{Fields: map[string]string{"a": "1", "b": "2"}}, kv.Value)
	assert.Equal(t, []string{"h"}, f.store.Calls("persist"))
}

func TestKeyspaceService_Write_MalformedHash(t *testing.T) {
	payloads := []string{"not-json", `["a","b"]`, `{"a":1}`, `{"a":{"b":"c"}}`, "null", "{}", ""}

	for _, payload := range payloads {
		t.Run(payload, func(t *testing.T) {
			f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
			f.store.SeedString("k", "original", 0)

			ok, err := f.svc.Write(context.Background(), f.sessionID, domain.KeyWriteSpec{Name: "k", Kind: "hash", Payload: payload})

			assert.False(t, ok)
			assert.ErrorIs(t, err, domain.ErrMalformedPayload)
			assert.Empty(t, f.store.Calls("writehash"))

			kv, err := f.svc.Fetch(context.Background(), f.sessionID, "k")
			require.NoError(t, err)
			assert.Equal(t, "original", kv.Value.Raw())
		})
	}
}

func TestKeyspaceService_Write_HashExpiryFailureIsPartialSuccess(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	f.store.FailFn = func(op, key string) error {
		if op == "expire" {
			return errors.New("connection reset")
		}
		return nil
	}

	ok, err := f.svc.Write(context.Background(), f.sessionID, domain.KeyWriteSpec{Name: "h", Kind: "hash", Payload: `{"a":"1"}`, TTLSeconds: ttlSecs(60)})
	require.NoError(t, err)
	assert.True(t, ok)

	f.store.FailFn = nil
	kv, err := f.svc.Fetch(context.Background(), f.sessionID, "h")
	require.NoError(t, err)
	assert.Equal(t, domain.MappingValue{Fields: map[string]string{"a": "1"}}, kv.Value)
	assert.Nil(t, kv.TTLSeconds)
}

func TestKeyspaceService_Write_StoreFailure(t *testing.T) {
	tests := []struct {
		name string
		spec domain.KeyWriteSpec
		op   string
	}{
		{"string", domain.KeyWriteSpec{Name: "k", Kind: "string", Payload: "v"}, "writescalar"},
		{"hash", domain.KeyWriteSpec{Name: "k", Kind: "hash", Payload: `{"a":"1"}`}, "writehash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
			f.store.FailFn = func(op, key string) error {
				if op == tt.op {
					return errors.New("OOM command not allowed")
				}
				return nil
			}

			ok, err := f.svc.Write(context.Background(), f.sessionID, tt.spec)
			assert.False(t, ok)
			assert.ErrorIs(t, err, domain.ErrOperationFailed)
			assert.False(t, f.store.Has("k"))
		})
	}
}

func TestKeyspaceService_Write_HashOverStringFails(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	f.store.SeedString("k", "plain", 0)

	ok, err := f.svc.Write(context.Background(), f.sessionID, domain.KeyWriteSpec{Name: "k", Kind: "hash", Payload: `{"a":"1"}`})
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrOperationFailed)
}

func TestKeyspaceService_Write_EmptyName(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})

	ok, err := f.svc.Write(context.Background(), f.sessionID, domain.KeyWriteSpec{Kind: "string", Payload: "v"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, f.store.Calls("writescalar"))
}

func TestKeyspaceService_Write_UnknownSession(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})

	ok, err := f.svc.Write(context.Background(), "bogus", domain.KeyWriteSpec{Name: "k", Payload: "v"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestKeyspaceService_Delete(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	ctx := context.Background()

	removed, err := f.svc.Delete(ctx, f.sessionID, "missing")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = f.svc.Write(ctx, f.sessionID, domain.KeyWriteSpec{Name: "k", Kind: "string", Payload: "v"})
	require.NoError(t, err)

	removed, err = f.svc.Delete(ctx, f.sessionID, "k")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = f.svc.Fetch(ctx, f.sessionID, "k")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	removed, err = f.svc.Delete(ctx, f.sessionID, "k")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestKeyspaceService_Delete_Failures(t *testing.T) {
	f := newKeyspaceFixture(t, domain.KeyspaceConfig{})
	f.store.SeedString("k", "v", 0)
	f.store.FailFn = func(op, key string) error {
		if op == "delete" {
			return errors.New("NOPERM")
		}
		return nil
	}

	removed, err := f.svc.Delete(context.Background(), f.sessionID, "k")
	assert.False(t, removed)
	assert.ErrorIs(t, err, domain.ErrOperationFailed)
	assert.True(t, f.store.Has("k"))

	removed, err = f.svc.Delete(context.Background(), "bogus", "k")
	assert.False(t, removed)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	removed, err = f.svc.Delete(context.Background(), f.sessionID, "")
	assert.False(t, removed)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestKeyspaceService_SessionsAreIsolated(t *testing.T) {
	dialer := mocks.NewMockDialer()
	registry := runtime.NewRegistry(dialer, runtime.RegistryConfig{})
	svc := NewKeyspaceService(KeyspaceServiceConfig{Sessions: registry})
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	for i := range ids {
		id, ok := registry.Open(ctx, fmt.Sprintf("host-%d:6379", i))
		require.True(t, ok)
		ids[i] = id
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			want := fmt.Sprintf("value-%d", i)
			for j := 0; j < 20; j++ {
				if ok, err := svc.Write(ctx, id, domain.KeyWriteSpec{Name: "shared", Payload: want}); !ok || err != nil {
					t.Errorf("session %d write: ok=%v err=%v", i, ok, err)
					return
				}
				kv, err := svc.Fetch(ctx, id, "shared")
				if err != nil {
					t.Errorf("session %d fetch: %v", i, err)
					return
				}
				if got := kv.Value.Raw(); got != want {
					t.Errorf("session %d saw %v, want %s", i, got, want)
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, store := range dialer.Dialed() {
		assert.Len(t, store.Calls("writescalar"), 20)
	}
}
