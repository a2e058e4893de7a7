package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextScopes(t *testing.T) {
	parent := WithUpdateMeta(WithRID(context.Background(), "5:10:10"), 5, 10, 10)
	child := WithHandler(parent, "chat")

	assert.Equal(t, "5:10:10", RIDFrom(child))
	assert.Equal(t, 5, UpdateIDFrom(child))
	assert.Equal(t, int64(10), UserIDFrom(child))
	assert.Equal(t, int64(10), ChatIDFrom(child))
	assert.Equal(t, "chat", HandlerFrom(child))
	assert.Empty(t, HandlerFrom(parent), "child fields must not leak into the parent")

	assert.Equal(t, "chat", HandlerFrom(WithHandler(child, "")))
	assert.Same(t, L, FromContext(child))

	custom := slog.New(slog.DiscardHandler)
	assert.Same(t, custom, FromContext(WithLogger(child, custom)))
	assert.Equal(t, "5:10:10", RIDFrom(WithLogger(child, nil)))
}

func TestSanitizeLimit(t *testing.T) {
	assert.Equal(t, "ab\tc", SanitizeLimit("a\x00b\tc\u200b", 10))
	assert.Equal(t, "пр", SanitizeLimit("привет", 2))
	assert.Empty(t, SanitizeLimit("x", 0))
}
