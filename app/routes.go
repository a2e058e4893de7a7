package app

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pairbot/chat"
	"github.com/m3rciful/pairbot/core/logger"
	coretelegram "github.com/m3rciful/pairbot/core/telegram"
	tghelpers "github.com/m3rciful/pairbot/core/telegram/helpers"
	"github.com/m3rciful/pairbot/core/telegram/middleware"
)

// Register binds every command and the content and membership handlers of
// reg to d.
func Register(reg *coretelegram.Registry, d *chat.Dispatcher) error {
	h := handler(d)
	cmds := []struct {
		name string
		cmd  coretelegram.Command
	}{
		{chat.CmdStart, coretelegram.Command{Handler: h, Description: "Start the bot"}},
		{chat.CmdChat, coretelegram.Command{Handler: h, Description: "Find a chat partner"}},
		{chat.CmdExit, coretelegram.Command{Handler: h, Description: "Leave the current chat"}},
		{chat.CmdNewChat, coretelegram.Command{Handler: h, Description: "Leave and look for a new partner"}},
		{chat.CmdStats, coretelegram.Command{Handler: h, Description: "Bot statistics", AdminOnly: true, Hidden: true}},
	}
	for _, c := range cmds {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			return err
		}
	}
	reg.SetFallback(h)
	reg.SetMembershipHandler(h)
	return nil
}

func handler(d *chat.Dispatcher) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev, ok := EventFromUpdate(c.Update())
		if !ok {
			if logger.ShouldSampleDebug() {
				logger.Debug(tghelpers.BuildContext(c), "tg", "update.ignored",
					slog.String("kind", tghelpers.UpdateKind(c.Update())),
				)
			}
			return nil
		}
		return d.Handle(tghelpers.BuildContext(c), ev)
	}
}

// adminOptions restricts AdminOnly commands to adminID. Denied calls are
// logged and dropped without a reply.
func adminOptions(adminID int64) middleware.AdminOptions {
	return middleware.AdminOptions{
		AdminID: adminID,
		OnReject: func(c tele.Context) error {
			var userID int64
			if u := c.Sender(); u != nil {
				userID = u.ID
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "stats.denied",
				slog.String("status", "skip"),
				slog.Int64("user_id", userID),
			)
			return nil
		},
	}
}
