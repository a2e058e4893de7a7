// Package sqlite stores chat users in an embedded SQLite file through gorm.
// The pool is limited to one connection so every transaction is serialized.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/m3rciful/pairbot/chat"
	"github.com/m3rciful/pairbot/core/logger"
)

// userRow is the chat_users table. PartnerID and SearchSeq are zero when unset.
type userRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"`
	Status    string    `gorm:"size:16;not null;default:idle;index"`
	PartnerID int64     `gorm:"not null;default:0"`
	SearchSeq int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (userRow) TableName() string { return "chat_users" }

func (r userRow) user() (chat.User, error) {
	st, err := chat.ParseStatus(r.Status)
	if err != nil {
		return chat.User{}, err
	}
	return chat.User{ID: r.ID, Status: st, PartnerID: r.PartnerID}, nil
}

// Store is a chat.Store backed by SQLite.
type Store struct {
	db *gorm.DB
}

var _ chat.Store = (*Store)(nil)

// Open opens (creating when needed) the database at path and syncs the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	logger.Info(context.Background(), "chat.store", "store.open",
		slog.String("driver", "sqlite"),
		slog.String("path", path),
	)
	return &Store{db: db}, nil
}

func insert(tx *gorm.DB, id int64) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&userRow{ID: id, Status: string(chat.StatusIdle)}).Error
}

func load(tx *gorm.DB, id int64) (chat.User, bool, error) {
	var r userRow
	err := tx.Take(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chat.User{}, false, nil
	}
	if err != nil {
		return chat.User{}, false, err
	}
	u, err := r.user()
	return u, err == nil, err
}

// apply moves id to st and clears its partner. Callers run inside a transaction.
func apply(tx *gorm.DB, id int64, st chat.Status, cond ...any) (int64, error) {
	fields := map[string]any{
		"status":     string(st),
		"partner_id": 0,
		"search_seq": 0,
	}
	if st == chat.StatusInSearch {
		var last int64
		if err := tx.Model(&userRow{}).Select("COALESCE(MAX(search_seq), 0)").Scan(&last).Error; err != nil {
			return 0, err
		}
		fields["search_seq"] = last + 1
	}
	q := tx.Model(&userRow{}).Where("id = ?", id)
	if len(cond) > 0 {
		q = q.Where(cond[0], cond[1:]...)
	}
	res := q.Updates(fields)
	return res.RowsAffected, res.Error
}

func (s *Store) InsertUser(ctx context.Context, id int64) error {
	if err := insert(s.db.WithContext(ctx), id); err != nil {
		return fmt.Errorf("insert user %d: %w", id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (chat.User, error) {
	var u chat.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insert(tx, id); err != nil {
			return err
		}
		var err error
		u, _, err = load(tx, id)
		return err
	})
	if err != nil {
		return chat.User{}, fmt.Errorf("get user %d: %w", id, err)
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
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insert(tx, id); err != nil {
			return err
		}
		_, err := apply(tx, id, st)
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
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insert(tx, id); err != nil {
			return err
		}
		var err error
		n, err = apply(tx, id, to, "status = ?", string(from))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("compare and set status %d: %w", id, err)
	}
	return n == 1, nil
}

func (s *Store) Couple(ctx context.Context, id int64) (int64, bool, error) {
	var partner int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		me, ok, err := load(tx, id)
		if err != nil || !ok || me.Status != chat.StatusInSearch {
			return err
		}
		var other userRow
		err = tx.Where("status = ? AND id <> ?", string(chat.StatusInSearch), id).
			Order("search_seq, id").
			Take(&other).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, link := range [][2]int64{{id, other.ID}, {other.ID, id}} {
			err := tx.Model(&userRow{}).Where("id = ?", link[0]).Updates(map[string]any{
				"status":     string(chat.StatusCoupled),
				"partner_id": link[1],
				"search_seq": 0,
			}).Error
			if err != nil {
				return err
			}
		}
		partner = other.ID
		return nil
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
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		me, ok, err := load(tx, id)
		if err != nil || !ok || me.Status != chat.StatusCoupled {
			return err
		}
		if _, err := apply(tx, id, chat.StatusIdle); err != nil {
			return err
		}
		if !me.HasPartner() {
			return nil
		}
		former = me.PartnerID
		other, ok, err := load(tx, former)
		if err != nil || !ok || other.Status != chat.StatusCoupled || other.PartnerID != id {
			return err
		}
		if _, err := apply(tx, former, chat.StatusPartnerLeft); err != nil {
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
	res := s.db.WithContext(ctx).Model(&userRow{}).
		Where("status <> ? OR partner_id <> 0", string(chat.StatusIdle)).
		Updates(map[string]any{
			"status":     string(chat.StatusIdle),
			"partner_id": 0,
			"search_seq": 0,
		})
	if res.Error != nil {
		return fmt.Errorf("reset users: %w", res.Error)
	}
	logger.Debug(ctx, "chat.store", "store.reset",
		slog.String("driver", "sqlite"),
		slog.Int64("users", res.RowsAffected),
	)
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&userRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return int(n), nil
}

func (s *Store) CountPaired(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&userRow{}).
		Where("status = ?", string(chat.StatusCoupled)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count paired: %w", err)
	}
	return int(n), nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
