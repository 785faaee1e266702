package driving

import (
	"context"

	"github.com/custodia-labs/redis-studio/internal/core/domain"
)

// ConnectionService manages store sessions on behalf of clients
type ConnectionService interface {
	// Connect dials the store described by descriptor and returns a session id.
	// ok is false on any connectivity failure; nothing is registered then.
	Connect(ctx context.Context, descriptor string) (sessionID string, ok bool)

	// Disconnect closes the session. Returns false if the id was unknown.
	Disconnect(ctx context.Context, sessionID string) bool

	// Ping reports whether the session exists and its store answers
	Ping(ctx context.Context, sessionID string) bool

	// ServerInfo summarises the store behind the session
	ServerInfo(ctx context.Context, sessionID string) (domain.ServerInfo, error)
}
