package mocks

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/redis-studio/internal/core/domain"
	"github.com/custodia-labs/redis-studio/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.StoreConnection = (*MockStore)(nil)
	_ driven.StoreDialer     = (*MockDialer)(nil)
)

// ErrMockClosed is returned by every operation on a closed MockStore
var ErrMockClosed = errors.New("mock store: connection closed")

type entry struct {
	kind      domain.KeyKind
	str       string
	hash      map[string]string
	list      []string
	set       map[string]struct{}
	expiresAt time.Time
	seq       int64
}

// MockStore is an in-memory StoreConnection for testing.
// ScanKeys yields keys in insertion order, which is stable for an unchanged
// keyspace but deliberately not sorted.
// FailFn lets a test inject a failure for a given operation and key; the
// operation names match the method names in lower case ("type", "ttl",
// "size", "scan", "hash", "expire", ...).
type MockStore struct {
	mu      sync.RWMutex
	data    map[string]*entry
	calls   map[string][]string
	closed  bool
	closeCt int
	nextSeq int64

	FailFn func(op, key string) error
	Now    func() time.Time
}

// NewMockStore creates an empty MockStore
func NewMockStore() *MockStore {
	return &MockStore{
		data:  make(map[string]*entry),
		calls: make(map[string][]string),
		Now:   time.Now,
	}
}

// SeedString stores a string key, optionally with a TTL
func (m *MockStore) SeedString(key, value string, ttl time.Duration) {
	m.seed(key, &entry{kind: domain.KindString, str: value}, ttl)
}

// SeedHash stores a hash key
func (m *MockStore) SeedHash(key string, fields map[string]string) {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	m.seed(key, &entry{kind: domain.KindHash, hash: cp}, 0)
}

// SeedList stores a list key
func (m *MockStore) SeedList(key string, items ...string) {
	m.seed(key, &entry{kind: domain.KindList, list: append([]string(nil), items...)}, 0)
}

// SeedSet stores a set key
func (m *MockStore) SeedSet(key string, members ...string) {
	set := make(map[string]struct{}, len(members))
	for _, mem := range members {
		set[mem] = struct{}{}
	}
	m.seed(key, &entry{kind: domain.KindSet, set: set}, 0)
}

// SeedKind stores a key of a kind the mock cannot hold values for (sortedset, streams, ...)
func (m *MockStore) SeedKind(key string, kind domain.KeyKind) {
	m.seed(key, &entry{kind: kind}, 0)
}

func (m *MockStore) seed(key string, e *entry, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ttl > 0 {
		e.expiresAt = m.Now().Add(ttl)
	}
	m.put(key, e)
}

// put stores an entry with the next sequence number. Caller must hold the lock.
func (m *MockStore) put(key string, e *entry) {
	m.nextSeq++
	e.seq = m.nextSeq
	m.data[key] = e
}

// Has reports whether a live key is present, without recording a call
func (m *MockStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.lookup(key)
	return ok
}

// Calls returns the keys passed to an operation, in call order
func (m *MockStore) Calls(op string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.calls[op]...)
}

// Closed reports whether Close was called, and how many times
func (m *MockStore) Closed() (bool, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed, m.closeCt
}

// begin records the call and returns an injected or closed-connection error.
// Caller must hold the lock.
func (m *MockStore) begin(op, key string) error {
	m.calls[op] = append(m.calls[op], key)
	if m.closed {
		return ErrMockClosed
	}
	if m.FailFn != nil {
		return m.FailFn(op, key)
	}
	return nil
}

// lookup returns a live entry. Caller must hold the lock.
func (m *MockStore) lookup(key string) (*entry, bool) {
	e, ok := m.data[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !m.Now().Before(e.expiresAt) {
		return nil, false
	}
	return e, true
}

func (m *MockStore) ScanKeys(ctx context.Context, pattern string, count int64) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		m.mu.Lock()
		err := m.begin("scan", pattern)
		var keys []string
		if err == nil {
			for k := range m.data {
				if _, live := m.lookup(k); live && MatchGlob(pattern, k) {
					keys = append(keys, k)
				}
			}
			sort.Slice(keys, func(i, j int) bool {
				return m.data[keys[i]].seq < m.data[keys[j]].seq
			})
		}
		m.mu.Unlock()

		if err != nil {
			yield("", err)
			return
		}
		for _, k := range keys {
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			if !yield(k, nil) {
				return
			}
		}
	}
}

func (m *MockStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("exists", key); err != nil {
		return false, err
	}
	_, ok := m.lookup(key)
	return ok, nil
}

func (m *MockStore) Type(ctx context.Context, key string) (domain.KeyKind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("type", key); err != nil {
		return "", err
	}
	e, ok := m.lookup(key)
	if !ok {
		return "", domain.ErrNotFound
	}
	return e.kind, nil
}

func (m *MockStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ttl", key); err != nil {
		return 0, false, err
	}
	e, ok := m.lookup(key)
	if !ok || e.expiresAt.IsZero() {
		return 0, false, nil
	}
	return e.expiresAt.Sub(m.Now()), true, nil
}

func (m *MockStore) Size(ctx context.Context, key string, kind domain.KeyKind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("size", key); err != nil {
		return 0, err
	}
	e, ok := m.lookup(key)
	if !ok {
		return 0, nil
	}
	switch kind {
	case domain.KindString:
		return int64(len(e.str)), nil
	case domain.KindHash:
		return int64(len(e.hash)), nil
	case domain.KindList:
		return int64(len(e.list)), nil
	case domain.KindSet:
		return int64(len(e.set)), nil
	default:
		return 0, fmt.Errorf("mock store: no size for kind %q", kind)
	}
}

func (m *MockStore) ReadScalar(ctx context.Context, key string) (*string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("scalar", key); err != nil {
		return nil, err
	}
	e, ok := m.lookup(key)
	if !ok {
		return nil, nil
	}
	v := e.str
	return &v, nil
}

func (m *MockStore) ReadHash(ctx context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("hash", key); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if e, ok := m.lookup(key); ok {
		for k, v := range e.hash {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MockStore) ReadList(ctx context.Context, key string, limit int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("list", key); err != nil {
		return nil, err
	}
	e, ok := m.lookup(key)
	if !ok {
		return []string{}, nil
	}
	n := int64(len(e.list))
	if limit >= 0 && limit < n {
		n = limit
	}
	return append([]string(nil), e.list[:n]...), nil
}

func (m *MockStore) ReadSet(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("set", key); err != nil {
		return nil, err
	}
	out := []string{}
	if e, ok := m.lookup(key); ok {
		for mem := range e.set {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *MockStore) WriteScalar(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("writescalar", key); err != nil {
		return err
	}
	e := &entry{kind: domain.KindString, str: value}
	if ttl > 0 {
		e.expiresAt = m.Now().Add(ttl)
	}
	if old, ok := m.data[key]; ok {
		e.seq = old.seq
		m.data[key] = e
		return nil
	}
	m.put(key, e)
	return nil
}

func (m *MockStore) WriteHash(ctx context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("writehash", key); err != nil {
		return err
	}
	e, ok := m.lookup(key)
	if !ok {
		e = &entry{kind: domain.KindHash, hash: make(map[string]string)}
		m.put(key, e)
	} else if e.kind != domain.KindHash {
		return errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	return nil
}

func (m *MockStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("expire", key); err != nil {
		return err
	}
	if e, ok := m.lookup(key); ok {
		e.expiresAt = m.Now().Add(ttl)
	}
	return nil
}

func (m *MockStore) Persist(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("persist", key); err != nil {
		return err
	}
	if e, ok := m.lookup(key); ok {
		e.expiresAt = time.Time{}
	}
	return nil
}

func (m *MockStore) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("delete", key); err != nil {
		return false, err
	}
	_, ok := m.lookup(key)
	delete(m.data, key)
	return ok, nil
}

func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begin("ping", "")
}

func (m *MockStore) Info(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("info", ""); err != nil {
		return nil, err
	}
	return map[string]string{
		"redis_version":     "7.2.4",
		"used_memory_human": "1.05M",
		"connected_clients": "3",
	}, nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closeCt++
	return nil
}

// MatchGlob matches a store glob pattern where '*' is any run of characters
// and '?' is any single character. Everything else matches literally.
func MatchGlob(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if MatchGlob(pattern, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if s == "" {
				return false
			}
		default:
			if s == "" || s[0] != pattern[0] {
				return false
			}
		}
		pattern = pattern[1:]
		s = s[1:]
	}
	return s == ""
}

// MockDialer hands out MockStores. Descriptors listed in Unreachable fail to
// dial. Every successful dial returns a fresh MockStore unless StoreFn is set.
type MockDialer struct {
	mu          sync.Mutex
	dialed      []*MockStore
	Unreachable map[string]bool
	StoreFn     func(descriptor string) *MockStore
}

// NewMockDialer creates a new MockDialer
func NewMockDialer() *MockDialer {
	return &MockDialer{Unreachable: make(map[string]bool)}
}

func (d *MockDialer) Dial(ctx context.Context, descriptor string) (driven.StoreConnection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Unreachable[descriptor] {
		return nil, fmt.Errorf("dial %s: %w", descriptor, domain.ErrConnectivity)
	}
	var store *MockStore
	if d.StoreFn != nil {
		store = d.StoreFn(descriptor)
	} else {
		store = NewMockStore()
	}
	d.dialed = append(d.dialed, store)
	return store, nil
}

// Dialed returns every store handed out so far
func (d *MockDialer) Dialed() []*MockStore {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockStore(nil), d.dialed...)
}
