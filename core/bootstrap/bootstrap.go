package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/pairbot/core/config"
	"github.com/m3rciful/pairbot/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	LoggerInit  func(*coreconfig.Config) error
	OpenStorage func(ctx context.Context) (Storage, error)

	Modules Modules
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Storage Storage
}

// Run initializes the logger, opens storage and runs the seeders in order.
// Storage is closed again when a seeder fails.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	if opts.OpenStorage == nil {
		return nil, fmt.Errorf("bootstrap: OpenStorage is required")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	start := time.Now()
	storage, err := opts.OpenStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: storage initialization failed: %w", err)
	}
	logger.Info(ctx, "app", "storage.ready",
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)

	for i, s := range opts.Modules.Seeders {
		if s == nil {
			continue
		}
		if err := s.Seed(ctx, storage); err != nil {
			return nil, errors.Join(
				fmt.Errorf("bootstrap: seeder %d failed: %w", i, err),
				storage.Close(),
			)
		}
	}

	return &Result{Storage: storage}, nil
}
