package logger

import "strings"

// outcomes lists the accepted values of the outcome field; others are dropped.
var outcomes = set("ok", "fail", "cancelled", "rate_limited")

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func levelName(level string) string {
	switch l := strings.ToUpper(strings.TrimSpace(level)); l {
	case "":
		return "INFO"
	case "WARNING":
		return "WARN"
	default:
		return l
	}
}

// defaultKeyOrder fixes where well-known keys appear in a line. Other keys
// follow in alphabetical order.
var defaultKeyOrder = []string{
	// envelope
	"ts", "level", "component", "event", "status",
	// correlation
	"rid", "rid_full", "ts_unix_nano", "update_id", "user_id", "chat_id", "chat_type",
	// pairing
	"partner_id", "from", "to",
	// handler summary
	"handler", "op", "kind", "content", "outcome", "duration_ms", "messages", "copies", "payload", "username",
	// runtime and storage
	"mode", "listen", "public_url", "driver", "db", "host", "port", "users", "paired",
	// failures
	"err", "err_code", "cause", "attempts",
}
