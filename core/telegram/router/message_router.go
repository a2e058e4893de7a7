package router

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pairbot/core/logger"
	tg "github.com/m3rciful/pairbot/core/telegram"
	tghelpers "github.com/m3rciful/pairbot/core/telegram/helpers"
)

// ContentEndpoints lists every message kind routed to the fallback handler.
// Media kinds without a dedicated route arrive through tele.OnMedia.
var ContentEndpoints = []string{
	tele.OnText,
	tele.OnMedia,
	tele.OnLocation,
	tele.OnVenue,
	tele.OnContact,
	tele.OnPoll,
	tele.OnDice,
}

func contentKind(c tele.Context) []slog.Attr {
	return []slog.Attr{slog.String("content", tghelpers.MessageKind(c.Message()))}
}

// MessageRoutes routes non-command messages to the registry fallback and
// membership changes to the membership handler. Either may be unset.
func MessageRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}
	var routes []tg.Route
	if fb := reg.Fallback(); fb != nil {
		h := summarized("content", fb, contentKind)
		for _, ep := range ContentEndpoints {
			routes = append(routes, tg.Route{Endpoint: ep, Handler: h})
		}
	}
	if mh := reg.MembershipHandler(); mh != nil {
		routes = append(routes, tg.Route{
			Endpoint: tele.OnMyChatMember,
			Handler:  summarized("membership", mh, nil),
		})
	}
	logger.TWire.LogAttrs(logger.Background(), slog.LevelInfo, "",
		slog.String("event", "messages"),
		slog.Int("count", len(routes)),
	)
	return routes
}
