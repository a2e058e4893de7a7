package middleware

import (
	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/pairbot/core/telegram/helpers"
)

// MessageMetricsMiddleware attaches outbound call counters to the update
// context. Calls made through helpers.Outbox with that context are counted.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, _ := tghelpers.WithCounters(tghelpers.BuildContext(c))
		tghelpers.StoreContext(c, ctx)
		return next(c)
	}
}

// GetCounters reads sent message and copy counts for the current update.
func GetCounters(c tele.Context) (int, int) {
	ctx, ok := tghelpers.ContextFrom(c)
	if !ok {
		return 0, 0
	}
	counters := tghelpers.CountersFrom(ctx)
	if counters == nil {
		return 0, 0
	}
	return int(counters.Messages.Load()), int(counters.Copies.Load())
}
