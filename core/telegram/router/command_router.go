package router

import (
	"log/slog"

	"github.com/m3rciful/pairbot/core/logger"
	tg "github.com/m3rciful/pairbot/core/telegram"
	"github.com/m3rciful/pairbot/core/telegram/middleware"
)

// CommandRoutes binds every registered command to its handler. AdminOnly
// commands go through the registry's admin check.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}
	cmds := reg.Commands()
	admin := reg.Admin()
	routes := make([]tg.Route, 0, len(cmds))
	for endpoint, cmd := range cmds {
		h := middleware.WithAdminCheck(admin, cmd.AdminOnly, cmd.Handler)
		routes = append(routes, tg.Route{
			Endpoint: endpoint,
			Handler:  summarized(normalizeHandlerName(endpoint), h, nil),
		})
	}
	logger.TWire.LogAttrs(logger.Background(), slog.LevelInfo, "",
		slog.String("event", "commands"),
		slog.Int("count", len(routes)),
	)
	return routes
}
