package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pairbot/core/logger"
	"github.com/m3rciful/pairbot/core/telegram/middleware"
)

// Command is a slash command with its menu entry.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly and Hidden commands stay out of the public command menu.
	AdminOnly bool
	Hidden    bool
}

// Registry holds bot commands and the handlers for everything else.
type Registry struct {
	commands map[string]Command
	fallback tele.HandlerFunc
	member   tele.HandlerFunc
	admin    middleware.AdminOptions
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// RegisterCommand adds cmd under name, which must start with a slash.
func (r *Registry) RegisterCommand(name string, cmd Command) error {
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		return fmt.Errorf("register %q: command must start with '/'", name)
	case cmd.Handler == nil:
		return fmt.Errorf("register %s: nil handler", name)
	case strings.TrimSpace(cmd.Description) == "":
		return fmt.Errorf("register %s: empty description", name)
	}
	if _, dup := r.commands[name]; dup {
		return fmt.Errorf("register %s: already registered", name)
	}
	r.commands[name] = cmd
	return nil
}

// ListCommands returns the command menu sorted by name. visibleOnly drops
// hidden and admin-only commands.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	list := make([]tele.Command, 0, len(r.commands))
	for name, cmd := range r.commands {
		if visibleOnly && (cmd.Hidden || cmd.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: name[1:], Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand finds a command by name, with or without the slash.
func (r *Registry) LookupCommand(name string) (Command, bool) {
	cmd, ok := r.commands["/"+strings.TrimPrefix(name, "/")]
	return cmd, ok
}

// Commands returns all registered commands keyed by name.
func (r *Registry) Commands() map[string]Command {
	return r.commands
}

// SetAdmin configures who may run AdminOnly commands.
func (r *Registry) SetAdmin(opts middleware.AdminOptions) { r.admin = opts }

// Admin returns the admin check options.
func (r *Registry) Admin() middleware.AdminOptions { return r.admin }

// SetFallback sets the handler for messages that are not registered commands.
func (r *Registry) SetFallback(h tele.HandlerFunc) { r.fallback = h }

// Fallback returns the handler for non-command messages.
func (r *Registry) Fallback() tele.HandlerFunc { return r.fallback }

// SetMembershipHandler sets the handler for changes of the bot's own
// membership in a chat, e.g. a user blocking the bot.
func (r *Registry) SetMembershipHandler(h tele.HandlerFunc) { r.member = h }

// MembershipHandler returns the membership handler.
func (r *Registry) MembershipHandler() tele.HandlerFunc { return r.member }

// InitBotCommands publishes the visible commands as the bot's menu. Failure
// is logged; the bot works without a menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	ctx := context.Background()
	list := reg.ListCommands(true)
	if err := bot.SetCommands(list); err != nil {
		logger.TWire.LogAttrs(ctx, slog.LevelError, "",
			slog.String("event", "commands.publish"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.TWire.LogAttrs(ctx, slog.LevelInfo, "",
		slog.String("event", "commands.publish"),
		slog.Int("count", len(list)),
	)
}
