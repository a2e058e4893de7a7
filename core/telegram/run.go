package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/pairbot/core/config"
	"github.com/m3rciful/pairbot/core/logger"
	tghelpers "github.com/m3rciful/pairbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/pairbot/core/telegram/sender"
)

// Middleware is a named global middleware registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to a telebot endpoint (a command string or one of
// the tele.On* constants).
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options
	// Dispatcher overrides the one built from DispatcherOptions.
	Dispatcher *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route
	// RouteBuilders derive routes from the registry once Setup has run.
	RouteBuilders []func(*Registry) []Route

	DisableWebhookCleanup bool

	// Setup runs after the bot is built and before any route is bound.
	Setup   func(ctx context.Context, rt Runtime) error
	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Outbox     *tghelpers.Outbox
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot, wires it and serves updates until ctx is done.
// Cancellation is a clean stop.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		return errors.New("telegram: nil config provided")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	started := time.Now()
	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})
	bot, err := newBot(cfg.Telegram.Token, poller)
	if err != nil {
		return err
	}

	disp := opts.Dispatcher
	if disp == nil {
		disp = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	defer disp.Close()

	rt := Runtime{
		Bot:        bot,
		Outbox:     tghelpers.NewOutbox(bot, disp),
		Dispatcher: disp,
		Registry:   opts.Registry,
	}
	if opts.Setup != nil {
		if err := opts.Setup(ctx, rt); err != nil {
			return err
		}
	}

	logMode(ctx, poller, time.Since(started))
	if _, polling := poller.(*tele.LongPoller); polling && !opts.DisableWebhookCleanup {
		removeWebhook(ctx, bot)
	}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	bindRoutes(ctx, bot, opts)
	InitBotCommands(bot, opts.Registry)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runErr := serve(ctx, bot)
	if opts.OnStop != nil {
		if err := opts.OnStop(ctx, rt); err != nil {
			return err
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func newBot(token string, poller tele.Poller) (*tele.Bot, error) {
	var pollTimeout time.Duration
	if lp, ok := poller.(*tele.LongPoller); ok {
		pollTimeout = lp.Timeout
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		Poller:  poller,
		Client:  BuildHTTPClient(pollTimeout),
		OnError: logHandlerError,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

func logMode(ctx context.Context, poller tele.Poller, took time.Duration) {
	attrs := []slog.Attr{
		slog.String("event", "mode"),
		slog.Duration("duration", took),
	}
	switch p := poller.(type) {
	case *tele.Webhook:
		attrs = append(attrs,
			slog.String("mode", RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		)
	case *tele.LongPoller:
		attrs = append(attrs,
			slog.String("mode", RunModeLongpoll),
			slog.Int("timeout_seconds", int(p.Timeout/time.Second)),
		)
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "", attrs...)
}

// removeWebhook clears a webhook left by an earlier webhook deployment;
// Telegram refuses getUpdates while one is set. Pending updates are kept.
func removeWebhook(ctx context.Context, bot *tele.Bot) {
	if err := bot.RemoveWebhook(false); err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "",
			slog.String("event", "webhook.delete"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "",
		slog.String("event", "webhook.delete"),
		slog.String("status", "ok"),
	)
}

func bindRoutes(ctx context.Context, bot *tele.Bot, opts RunOptions) {
	routes := append([]Route(nil), opts.Routes...)
	for _, build := range opts.RouteBuilders {
		if build != nil {
			routes = append(routes, build(opts.Registry)...)
		}
	}
	bound := 0
	for _, r := range routes {
		if r.Endpoint == nil || r.Handler == nil {
			continue
		}
		bot.Handle(r.Endpoint, r.Handler)
		bound++
	}
	logger.TWire.LogAttrs(ctx, slog.LevelInfo, "routes bound",
		slog.String("event", "routes"),
		slog.Int("count", bound),
	)
}

// serve runs the poller until ctx is done or the poller gives up.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}

// logHandlerError reports errors returned by handlers and the poller.
func logHandlerError(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Error(ctx, "tg", "handler.error",
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
}
