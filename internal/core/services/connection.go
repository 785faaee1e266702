package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/custodia-labs/redis-studio/internal/core/domain"
	"github.com/custodia-labs/redis-studio/internal/core/ports/driving"
)

// Ensure connectionService implements ConnectionService
var _ driving.ConnectionService = (*connectionService)(nil)

// SessionRegistry owns the session id to connection mapping
type SessionRegistry interface {
	SessionResolver
	Open(ctx context.Context, descriptor string) (string, bool)
	Close(sessionID string) bool
}

// connectionService implements the ConnectionService interface
type connectionService struct {
	registry SessionRegistry
	logger   *slog.Logger
}

// NewConnectionService creates a new ConnectionService
func NewConnectionService(registry SessionRegistry, logger *slog.Logger) driving.ConnectionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &connectionService{
		registry: registry,
		logger:   logger,
	}
}

// Connect opens a new session
func (s *connectionService) Connect(ctx context.Context, descriptor string) (string, bool) {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return "", false
	}
	return s.registry.Open(ctx, descriptor)
}

// Disconnect closes a session
func (s *connectionService) Disconnect(ctx context.Context, sessionID string) bool {
	return s.registry.Close(sessionID)
}

// Ping reports whether the session's store answers
func (s *connectionService) Ping(ctx context.Context, sessionID string) bool {
	conn, ok := s.registry.Resolve(sessionID)
	if !ok {
		return false
	}
	if err := conn.Ping(ctx); err != nil {
		s.logger.Debug("ping failed", "error", err)
		return false
	}
	return true
}

// ServerInfo summarises the store. INFO failures fall back to placeholder
// values rather than failing the call.
func (s *connectionService) ServerInfo(ctx context.Context, sessionID string) (domain.ServerInfo, error) {
	conn, ok := s.registry.Resolve(sessionID)
	if !ok {
		return domain.ServerInfo{}, domain.ErrSessionNotFound
	}

	fields, err := conn.Info(ctx)
	if err != nil {
		s.logger.Error("server info failed", "error", err)
		return domain.UnknownServerInfo(), nil
	}
	return summarizeInfo(fields), nil
}

func summarizeInfo(fields map[string]string) domain.ServerInfo {
	info := domain.UnknownServerInfo()
	if v, ok := fields["redis_version"]; ok {
		info.Version = v
	}
	if v, ok := fields["used_memory_human"]; ok {
		info.UsedMemory = v
	}
	if v, ok := fields["connected_clients"]; ok {
		info.ConnectedClients = v
	}
	return info
}
