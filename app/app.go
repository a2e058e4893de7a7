// Package app wires configuration, storage and the Telegram runtime into the
// pairing bot.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/m3rciful/pairbot/chat"
	"github.com/m3rciful/pairbot/core/bootstrap"
	corecmd "github.com/m3rciful/pairbot/core/cmd"
	coretelegram "github.com/m3rciful/pairbot/core/telegram"
	"github.com/m3rciful/pairbot/core/telegram/router"
	"github.com/m3rciful/pairbot/core/telegram/sender"
)

// App holds the long-lived parts of the bot.
type App struct {
	cfg    *Config
	store  chat.Store
	engine *chat.Engine

	closeOnce sync.Once
	closeErr  error
}

// LoadCarrier adapts LoadConfig to the runner.
func LoadCarrier(path string) (corecmd.ConfigCarrier, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap initializes logging and storage for cfg.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	a, err := New(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// New runs the bootstrap pipeline for cfg. Zero fields of base get the
// defaults; tests use base to replace the logger init.
func New(ctx context.Context, cfg *Config, base bootstrap.Options) (*App, error) {
	opts := base
	opts.Config = cfg.CoreConfig()
	if opts.OpenStorage == nil {
		opts.OpenStorage = func(ctx context.Context) (bootstrap.Storage, error) {
			s, err := OpenStore(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}
	if cfg.ResetOnStart() {
		opts.Modules.Seeders = append(opts.Modules.Seeders, resetSeeder())
	}

	res, err := bootstrap.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	store, ok := res.Storage.(chat.Store)
	if !ok {
		_ = res.Storage.Close()
		return nil, fmt.Errorf("app: storage %T is not a chat store", res.Storage)
	}
	return &App{cfg: cfg, store: store, engine: chat.NewEngine(store)}, nil
}

// resetSeeder drops pairings and searches left over from a previous run.
func resetSeeder() bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context, s bootstrap.Storage) error {
		store, ok := s.(chat.Store)
		if !ok {
			return fmt.Errorf("reset: storage %T is not a chat store", s)
		}
		return chat.NewEngine(store).Reset(ctx)
	})
}

// Engine exposes the pairing engine.
func (a *App) Engine() *chat.Engine {
	return a.engine
}

// TelegramRunOptions builds the runtime options for the bot.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()
	return coretelegram.RunOptions{
		Config:   core,
		Registry: coretelegram.NewRegistry(),
		DispatcherOptions: sender.Options{
			QueueSize:    core.Sender.QueueSize,
			Workers:      core.Sender.Workers,
			MaxRetries:   core.Sender.MaxRetries,
			RetryBackoff: time.Duration(core.Sender.RetryBackoffMS) * time.Millisecond,
		},
		Middlewares:   coretelegram.DefaultMiddlewares(nil),
		RouteBuilders: []func(*coretelegram.Registry) []coretelegram.Route{router.CommandRoutes, router.MessageRoutes},
		Setup:         a.setup,
	}, nil
}

func (a *App) setup(_ context.Context, rt coretelegram.Runtime) error {
	d := chat.NewDispatcher(a.engine, NewTransport(rt.Outbox), chat.DispatcherOptions{
		AdminID: a.cfg.Telegram.AdminID,
		Threads: chat.NewThreads(a.cfg.Relay.ThreadCapacity),
	})
	rt.Registry.SetAdmin(adminOptions(a.cfg.Telegram.AdminID))
	return Register(rt.Registry, d)
}

// Close releases the store. It is safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.store.Close()
	})
	return a.closeErr
}
