package telegram

import (
	"github.com/m3rciful/pairbot/core/keylock"
	"github.com/m3rciful/pairbot/core/telegram/middleware"
)

// DefaultMiddlewares builds the shared middleware chain for bots. Updates of
// one sender are serialized with locks; pass nil to use a private Locker.
func DefaultMiddlewares(locks *keylock.Locker) []Middleware {
	return []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "logger", Use: middleware.LoggerMiddleware},
		{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
		{Name: "serialize", Use: middleware.SerializeMiddleware(locks)},
	}
}
