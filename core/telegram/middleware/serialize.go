package middleware

import (
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pairbot/core/keylock"
	"github.com/m3rciful/pairbot/core/logger"
	tghelpers "github.com/m3rciful/pairbot/core/telegram/helpers"
)

// SerializeMiddleware runs the updates of one sender strictly one after
// another. Updates without a sender pass through.
func SerializeMiddleware(locks *keylock.Locker) tele.MiddlewareFunc {
	if locks == nil {
		locks = keylock.New()
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return next(c)
			}
			start := time.Now()
			unlock := locks.Lock(user.ID)
			defer unlock()

			if waited := time.Since(start); waited > 100*time.Millisecond && logger.ShouldSampleDebug() {
				logger.Debug(tghelpers.BuildContext(c), "tg", "update.serialized",
					slog.Int64("user_id", user.ID),
					slog.Duration("duration", logger.RoundMS(waited)),
				)
			}
			return next(c)
		}
	}
}
