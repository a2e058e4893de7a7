// Package redis stores chat users in Redis. Every multi-key transition runs
// as a Lua script so it is atomic on the server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/m3rciful/pairbot/chat"
	"github.com/m3rciful/pairbot/core/logger"
)

// DefaultPrefix namespaces the keys of the bot. The braces make it a hash
// tag, so every key lands in one cluster slot.
const DefaultPrefix = "{pairbot}:"

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store is a chat.Store backed by Redis.
type Store struct {
	client *goredis.Client
	prefix string
}

var _ chat.Store = (*Store)(nil)

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	ro := &goredis.Options{Addr: opts.Addr}
	if opts.Password != "" {
		ro.Password = opts.Password
	}
	if opts.DB != 0 {
		ro.DB = opts.DB
	}
	client := goredis.NewClient(ro)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	logger.Info(ctx, "chat.store", "store.open",
		slog.String("driver", "redis"),
		slog.String("addr", opts.Addr),
		slog.Int("db", opts.DB),
	)
	return New(client, opts.Prefix), nil
}

// New wraps an existing client. An empty prefix selects DefaultPrefix.
func New(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) run(ctx context.Context, script *goredis.Script, args ...any) *goredis.Cmd {
	keys := []string{s.prefix + "users"}
	return script.Run(ctx, s.client, keys, append([]any{s.prefix}, args...)...)
}

func (s *Store) InsertUser(ctx context.Context, id int64) error {
	_, err := s.Get(ctx, id)
	return err
}

func (s *Store) Get(ctx context.Context, id int64) (chat.User, error) {
	fields, err := s.run(ctx, getScript, id).StringSlice()
	if err != nil {
		return chat.User{}, fmt.Errorf("redis get user %d: %w", id, err)
	}
	if len(fields) != 2 {
		return chat.User{}, fmt.Errorf("redis get user %d: unexpected reply %v", id, fields)
	}
	st, err := chat.ParseStatus(fields[0])
	if err != nil {
		return chat.User{}, err
	}
	partner, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return chat.User{}, fmt.Errorf("redis partner of %d: %w", id, err)
	}
	return chat.User{ID: id, Status: st, PartnerID: partner}, nil
}

func (s *Store) Status(ctx context.Context, id int64) (chat.Status, error) {
	u, err := s.Get(ctx, id)
	return u.Status, err
}

func (s *Store) Partner(ctx context.Context, id int64) (int64, bool, error) {
	u, err := s.Get(ctx, id)
	return u.PartnerID, u.HasPartner(), err
}

func (s *Store) SetStatus(ctx context.Context, id int64, st chat.Status) error {
	_, err := s.set(ctx, id, "", st)
	return err
}

func (s *Store) CompareAndSetStatus(ctx context.Context, id int64, from, to chat.Status) (bool, error) {
	if from == "" {
		return false, chat.ErrInvalidStatus
	}
	return s.set(ctx, id, from, to)
}

func (s *Store) set(ctx context.Context, id int64, from, to chat.Status) (bool, error) {
	if err := chat.CheckSettable(to); err != nil {
		return false, err
	}
	n, err := s.run(ctx, setScript, id, string(to), string(from)).Int64()
	if err != nil {
		return false, fmt.Errorf("redis set status %d: %w", id, err)
	}
	return n == 1, nil
}

func (s *Store) Couple(ctx context.Context, id int64) (int64, bool, error) {
	partner, err := s.run(ctx, coupleScript, id).Int64()
	if err != nil {
		return 0, false, fmt.Errorf("redis couple %d: %w", id, err)
	}
	return partner, partner != 0, nil
}

func (s *Store) Uncouple(ctx context.Context, id int64) (int64, bool, error) {
	res, err := s.run(ctx, uncoupleScript, id).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis uncouple %d: %w", id, err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("redis uncouple %d: unexpected reply %v", id, res)
	}
	return res[0], res[1] == 1, nil
}

func (s *Store) ResetAll(ctx context.Context) error {
	n, err := s.run(ctx, resetScript).Int64()
	if err != nil {
		return fmt.Errorf("redis reset: %w", err)
	}
	logger.Debug(ctx, "chat.store", "store.reset",
		slog.String("driver", "redis"),
		slog.Int64("users", n),
	)
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.prefix+"users").Result()
	if err != nil {
		return 0, fmt.Errorf("redis count users: %w", err)
	}
	return int(n), nil
}

func (s *Store) CountPaired(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.prefix+"coupled").Result()
	if err != nil {
		return 0, fmt.Errorf("redis count paired: %w", err)
	}
	return int(n), nil
}

func (s *Store) Close() error {
	if err := s.client.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
