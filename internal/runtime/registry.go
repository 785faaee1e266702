package runtime

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/redis-studio/internal/core/ports/driven"
)

// SessionObserver is notified whenever the number of live sessions changes
type SessionObserver interface {
	SessionsChanged(active int64)
}

// RegistryConfig holds configuration for the registry
type RegistryConfig struct {
	Shards      int           // Number of independently locked buckets
	DialTimeout time.Duration // Upper bound for establishing a connection
	Logger      *slog.Logger
	Observer    SessionObserver // optional
}

// DefaultRegistryConfig returns sensible defaults
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Shards:      32,
		DialTimeout: 5 * time.Second,
	}
}

// Registry owns the mapping from opaque session ids to live store
// connections. Sessions are spread over shards, each with its own lock, so
// unrelated sessions never contend on a single mutex.
// Thread-safe for concurrent access.
type Registry struct {
	dialer      driven.StoreDialer
	shards      []*shard
	dialTimeout time.Duration
	logger      *slog.Logger
	observer    SessionObserver

	// active only changes under the owning shard's lock
	active   atomic.Int64
	draining atomic.Bool

	// notifyMu orders observer callbacks so the last one sees the final count
	notifyMu sync.Mutex
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	conn     driven.StoreConnection
	endpoint string
	openedAt time.Time
}

// NewRegistry creates an empty registry that dials through the given dialer
func NewRegistry(dialer driven.StoreDialer, cfg RegistryConfig) *Registry {
	def := DefaultRegistryConfig()
	if cfg.Shards <= 0 {
		cfg.Shards = def.Shards
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{sessions: make(map[string]*session)}
	}

	return &Registry{
		dialer:      dialer,
		shards:      shards,
		dialTimeout: cfg.DialTimeout,
		logger:      logger,
		observer:    cfg.Observer,
	}
}

// Open establishes a connection and registers it under a fresh session id.
// Any failure yields ("", false) and leaves the registry untouched.
func (r *Registry) Open(ctx context.Context, descriptor string) (string, bool) {
	endpoint := describeEndpoint(descriptor)
	if r.draining.Load() {
		r.logger.Warn("rejecting connect while draining", "endpoint", endpoint)
		return "", false
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.dialTimeout)
	defer cancel()

	conn, err := r.dialer.Dial(dialCtx, descriptor)
	if err != nil {
		r.logger.Warn("store connect failed", "endpoint", endpoint, "error", err)
		return "", false
	}

	sess := &session{conn: conn, endpoint: endpoint, openedAt: time.Now()}
	for {
		id, err := newSessionID()
		if err != nil {
			r.logger.Error("session id generation failed", "error", err)
			_ = conn.Close()
			return "", false
		}

		sh := r.shardFor(id)
		sh.mu.Lock()
		if r.draining.Load() {
			sh.mu.Unlock()
			_ = conn.Close()
			return "", false
		}
		if _, taken := sh.sessions[id]; taken {
			sh.mu.Unlock()
			continue
		}
		sh.sessions[id] = sess
		r.active.Add(1)
		sh.mu.Unlock()

		r.notify()
		r.logger.Info("session opened", "session_id", id, "endpoint", endpoint)
		return id, true
	}
}

// Resolve returns the connection for a session id
func (r *Registry) Resolve(id string) (driven.StoreConnection, bool) {
	if id == "" {
		return nil, false
	}
	sh := r.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sess, ok := sh.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.conn, true
}

// Close removes the session and releases its connection.
// Returns false if the id was unknown; safe to call repeatedly.
func (r *Registry) Close(id string) bool {
	if id == "" {
		return false
	}
	sh := r.shardFor(id)
	sh.mu.Lock()
	sess, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
		r.active.Add(-1)
	}
	sh.mu.Unlock()
	if !ok {
		return false
	}

	r.release(id, sess)
	r.notify()
	return true
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	return int(r.active.Load())
}

// Drain closes every session and rejects further opens. It returns the
// number of sessions closed. Used at process shutdown.
func (r *Registry) Drain(ctx context.Context) int {
	r.draining.Store(true)

	type victim struct {
		id   string
		sess *session
	}
	var victims []victim
	for _, sh := range r.shards {
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			victims = append(victims, victim{id: id, sess: sess})
		}
		r.active.Add(-int64(len(sh.sessions)))
		sh.sessions = make(map[string]*session)
		sh.mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(8)
	for _, v := range victims {
		if ctx.Err() != nil {
			// Connections still get released; only the parallelism is dropped.
			r.release(v.id, v.sess)
			continue
		}
		g.Go(func() error {
			r.release(v.id, v.sess)
			return nil
		})
	}
	_ = g.Wait()

	if len(victims) > 0 {
		r.notify()
	}
	r.logger.Info("registry drained", "sessions_closed", len(victims))
	return len(victims)
}

func (r *Registry) release(id string, sess *session) {
	if err := sess.conn.Close(); err != nil {
		r.logger.Warn("store disconnect failed", "session_id", id, "endpoint", sess.endpoint, "error", err)
		return
	}
	r.logger.Info("session closed", "session_id", id, "endpoint", sess.endpoint,
		"age", time.Since(sess.openedAt).Round(time.Millisecond))
}

// notify reports the current count. The count is read under notifyMu so
// concurrent callbacks cannot leave the observer on a stale value.
func (r *Registry) notify() {
	if r.observer == nil {
		return
	}
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.observer.SessionsChanged(r.active.Load())
}

func (r *Registry) shardFor(id string) *shard {
	return r.shards[xxhash.Sum64String(id)%uint64(len(r.shards))]
}

// newSessionID returns 32 hex chars from a random (v4) UUID
func newSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(id[:]), nil
}

// describeEndpoint strips credentials from a connection descriptor so it can be logged
func describeEndpoint(descriptor string) string {
	if strings.Contains(descriptor, "://") {
		if u, err := url.Parse(descriptor); err == nil {
			return u.Host
		}
		return "invalid-url"
	}
	host, _, _ := strings.Cut(descriptor, ",")
	return strings.TrimSpace(host)
}
