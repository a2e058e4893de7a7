package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/pairbot/core/logger"
)

const defaultMigrationsDir = "migrations"

// RunMigrations waits for the server and applies every pending up migration
// found in cfg.MigrationsDir.
func RunMigrations(ctx context.Context, cfg Config) error {
	if err := WaitReady(ctx, cfg, readyTimeout); err != nil {
		migrateFailed(ctx, "wait", err)
		return err
	}

	dir, err := migrationsDir(cfg.MigrationsDir)
	if err != nil {
		return err
	}
	files := upFiles(dir)
	if logger.ShouldSampleDebug() {
		preview, truncated := logger.SummarizeStrings(files, 6)
		logger.MIG.LogAttrs(ctx, slog.LevelDebug, "",
			slog.String("event", "resolve"),
			slog.String("path", dir),
			slog.Int("files_total", len(files)),
			slog.String("files_preview", preview),
			slog.Bool("files_truncated", truncated),
		)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(dir), cfg.URL())
	if err != nil {
		migrateFailed(ctx, "init", err)
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	from, _, _ := m.Version()
	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		migrateFailed(ctx, "apply", err)
		return fmt.Errorf("apply migrations: %w", err)
	}
	to, _, _ := m.Version()

	logger.MIG.LogAttrs(ctx, slog.LevelInfo, "",
		slog.String("event", "summary"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", countApplied(files, uint64(from), uint64(to))),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func migrateFailed(ctx context.Context, stage string, err error) {
	logger.MIG.LogAttrs(ctx, slog.LevelError, "",
		slog.String("event", stage),
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
}

// migrationsDir resolves dir against the working directory.
func migrationsDir(dir string) (string, error) {
	if dir = strings.TrimSpace(dir); dir == "" {
		dir = defaultMigrationsDir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve migrations dir: %w", err)
	}
	return abs, nil
}

// upFiles lists the *.up.sql files of dir in version order. A missing dir
// yields nil and golang-migrate reports it.
func upFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names
}

func parseVersion(name string) uint64 {
	head, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(head, 10, 64)
	return v
}

// countApplied counts the files with a version in (from, to].
func countApplied(files []string, from, to uint64) int {
	n := 0
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			n++
		}
	}
	return n
}
