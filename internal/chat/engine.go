package chat

import (
	"context"

	"github.com/varsilias/siap-chat/internal/backend"
)

// Backend performs the outbound call for one user turn.
type Backend interface {
	Chat(ctx context.Context, token string, req backend.Request) (backend.Reply, error)
}

// BackendFunc adapts a plain function to Backend.
type BackendFunc func(ctx context.Context, token string, req backend.Request) (backend.Reply, error)

func (f BackendFunc) Chat(ctx context.Context, token string, req backend.Request) (backend.Reply, error) {
	return f(ctx, token, req)
}
