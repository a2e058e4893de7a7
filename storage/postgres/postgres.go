// Package postgres stores chat users in PostgreSQL through sqlx. Mutations
// run in transactions serialized by a transaction-scoped advisory lock, so a
// couple or uncouple never interleaves with another transition.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/pairbot/chat"
	"github.com/m3rciful/pairbot/core/database"
	"github.com/m3rciful/pairbot/core/logger"
)

// pairingLock is the advisory lock key taken by every mutating transaction.
const pairingLock int64 = 0x70616972

const (
	queryInsert = `INSERT INTO chat_users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
	querySelect = `SELECT id, status, partner_id FROM chat_users WHERE id = $1`
	querySet    = `UPDATE chat_users
		SET status = $2::text,
		    partner_id = NULL,
		    search_seq = CASE WHEN $2::text = 'in_search' THEN nextval('chat_search_seq') END,
		    updated_at = now()
		WHERE id = $1`
	queryPickOldest = `SELECT id FROM chat_users
		WHERE status = 'in_search' AND id <> $1
		ORDER BY search_seq, id
		LIMIT 1`
	queryPair = `UPDATE chat_users
		SET status = 'coupled', partner_id = $2, search_seq = NULL, updated_at = now()
		WHERE id = $1`
	queryReset = `UPDATE chat_users SET status = 'idle', partner_id = NULL, search_seq = NULL, updated_at = now()
		WHERE status <> 'idle' OR partner_id IS NOT NULL`
)

type row struct {
	ID        int64         `db:"id"`
	Status    string        `db:"status"`
	PartnerID sql.NullInt64 `db:"partner_id"`
}

func (r row) user() (chat.User, error) {
	st, err := chat.ParseStatus(r.Status)
	if err != nil {
		return chat.User{}, err
	}
	return chat.User{ID: r.ID, Status: st, PartnerID: r.PartnerID.Int64}, nil
}

// Store is a chat.Store backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ chat.Store = (*Store)(nil)

// Open applies migrations and connects using cfg.
func Open(ctx context.Context, cfg database.Config) (*Store, error) {
	if err := database.RunMigrations(ctx, cfg); err != nil {
		return nil, err
	}
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an open connection whose schema is already migrated.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, pairingLock); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func load(ctx context.Context, q sqlx.QueryerContext, id int64) (chat.User, bool, error) {
	var r row
	err := sqlx.GetContext(ctx, q, &r, querySelect, id)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.User{}, false, nil
	}
	if err != nil {
		return chat.User{}, false, err
	}
	u, err := r.user()
	return u, err == nil, err
}

func (s *Store) InsertUser(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, queryInsert, id); err != nil {
		return fmt.Errorf("insert user %d: %w", id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (chat.User, error) {
	if err := s.InsertUser(ctx, id); err != nil {
		return chat.User{}, err
	}
	u, ok, err := load(ctx, s.db, id)
	if err != nil {
		return chat.User{}, fmt.Errorf("select user %d: %w", id, err)
	}
	if !ok {
		return chat.User{ID: id, Status: chat.StatusIdle}, nil
	}
	return u, nil
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
	if err := chat.CheckSettable(st); err != nil {
		return err
	}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, queryInsert, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, querySet, id, string(st))
		return err
	})
	if err != nil {
		return fmt.Errorf("set status %d: %w", id, err)
	}
	return nil
}

func (s *Store) CompareAndSetStatus(ctx context.Context, id int64, from, to chat.Status) (bool, error) {
	if err := chat.CheckSettable(to); err != nil {
		return false, err
	}
	var applied bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, queryInsert, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, querySet+` AND status = $3`, id, string(to), string(from))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		applied = n == 1
		return err
	})
	if err != nil {
		return false, fmt.Errorf("compare and set status %d: %w", id, err)
	}
	return applied, nil
}

func (s *Store) Couple(ctx context.Context, id int64) (int64, bool, error) {
	var partner int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		me, ok, err := load(ctx, tx, id)
		if err != nil || !ok || me.Status != chat.StatusInSearch {
			return err
		}
		err = sqlx.GetContext(ctx, tx, &partner, queryPickOldest, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, queryPair, id, partner); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, queryPair, partner, id)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("couple %d: %w", id, err)
	}
	return partner, partner != 0, nil
}

func (s *Store) Uncouple(ctx context.Context, id int64) (int64, bool, error) {
	var (
		former int64
		live   bool
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		me, ok, err := load(ctx, tx, id)
		if err != nil || !ok || me.Status != chat.StatusCoupled {
			return err
		}
		if _, err := tx.ExecContext(ctx, querySet, id, string(chat.StatusIdle)); err != nil {
			return err
		}
		if !me.HasPartner() {
			return nil
		}
		former = me.PartnerID
		other, ok, err := load(ctx, tx, former)
		if err != nil || !ok || other.Status != chat.StatusCoupled || other.PartnerID != id {
			return err
		}
		if _, err := tx.ExecContext(ctx, querySet, former, string(chat.StatusPartnerLeft)); err != nil {
			return err
		}
		live = true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("uncouple %d: %w", id, err)
	}
	return former, live, nil
}

func (s *Store) ResetAll(ctx context.Context) error {
	var n int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, queryReset)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("reset users: %w", err)
	}
	logger.Debug(ctx, "chat.store", "store.reset",
		slog.String("driver", "postgres"),
		slog.Int64("users", n),
	)
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM chat_users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *Store) CountPaired(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM chat_users WHERE status = 'coupled'`); err != nil {
		return 0, fmt.Errorf("count paired: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
