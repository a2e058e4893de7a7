package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pairbot/core/logger"
	tghelpers "github.com/m3rciful/pairbot/core/telegram/helpers"
	"github.com/m3rciful/pairbot/core/telegram/middleware"
)

// summarized wraps h so every call ends with one handler.handled record
// carrying the outcome, the outbound call counts and the duration. extra may
// add fields derived from the update before h runs.
func summarized(name string, h tele.HandlerFunc, extra func(tele.Context) []slog.Attr) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		ctx := tghelpers.WithHandler(c, name)
		var attrs []slog.Attr
		if extra != nil {
			attrs = extra(c)
		}

		err := h(c)

		outcome := "ok"
		if err != nil {
			outcome = "fail"
		}
		msgs, copies := middleware.GetCounters(c)
		attrs = append(attrs,
			slog.String("status", outcome),
			slog.String("outcome", outcome),
			slog.Int("messages", msgs),
			slog.Int("copies", copies),
			slog.Duration("duration", time.Since(start)),
		)
		if err != nil {
			attrs = append(attrs,
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
				slog.String("err_code", deriveErrorCode(err)),
			)
		}
		logger.LogEvent(ctx, nil, slog.LevelInfo, "handler.handled", attrs...)
		return err
	}
}

// normalizeHandlerName turns "/NewChat" into "newchat".
func normalizeHandlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// deriveErrorCode prefers an error's own Code() and falls back to the name
// of its concrete type.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
