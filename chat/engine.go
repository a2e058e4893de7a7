package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/pairbot/core/keylock"
	"github.com/m3rciful/pairbot/core/logger"
)

const componentPairing = "chat.pairing"

// SearchOutcome describes what a search request ended in.
type SearchOutcome int

const (
	// SearchWaiting means the user is IN_SEARCH and nobody was available.
	SearchWaiting SearchOutcome = iota
	// SearchMatched means the user was coupled with PartnerID.
	SearchMatched
	// SearchAlready means the user was already IN_SEARCH.
	SearchAlready
	// SearchInChat means the user already has a live partner.
	SearchInChat
	// SearchClaimed means another searcher coupled the user with PartnerID
	// before its own match attempt; that searcher announces the pair.
	SearchClaimed
)

// SearchResult is returned by StartSearch.
type SearchResult struct {
	Outcome   SearchOutcome
	PartnerID int64
}

// ExitOutcome describes what an exit request ended in.
type ExitOutcome int

const (
	// ExitNotInChat means the user was not COUPLED.
	ExitNotInChat ExitOutcome = iota
	// ExitStale means the partner reference was stale; nothing changed.
	ExitStale
	// ExitLeft means a live pair was dissolved.
	ExitLeft
)

// ExitResult is returned by Exit and Block.
type ExitResult struct {
	Outcome   ExitOutcome
	PartnerID int64
}

// Engine applies the user state machine on top of a Store.
type Engine struct {
	store Store
	// pairs guards live pairs against relays racing an uncouple.
	pairs *keylock.Locker
}

// NewEngine returns an Engine backed by store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, pairs: keylock.New()}
}

// Register records id as IDLE when it is unknown.
func (e *Engine) Register(ctx context.Context, id int64) error {
	if err := e.store.InsertUser(ctx, id); err != nil {
		return fmt.Errorf("register user %d: %w", id, err)
	}
	return nil
}

// Lookup returns the current record of id, registering it when unknown.
func (e *Engine) Lookup(ctx context.Context, id int64) (User, error) {
	u, err := e.store.Get(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("lookup user %d: %w", id, err)
	}
	return u, nil
}

// livePartner returns the partner of u when the partner is coupled back.
func (e *Engine) livePartner(ctx context.Context, u User) (int64, bool, error) {
	if u.Status != StatusCoupled || !u.HasPartner() {
		return 0, false, nil
	}
	p, err := e.store.Get(ctx, u.PartnerID)
	if err != nil {
		return 0, false, fmt.Errorf("lookup partner %d: %w", u.PartnerID, err)
	}
	if p.Status != StatusCoupled || p.PartnerID != u.ID {
		logger.Debug(ctx, componentPairing, "pair.stale",
			slog.Int64("user_id", u.ID),
			slog.Int64("partner_id", u.PartnerID),
			slog.String("to", string(p.Status)),
		)
		return 0, false, nil
	}
	return p.ID, true, nil
}

// ActivePartner reports the live partner of id, if any.
func (e *Engine) ActivePartner(ctx context.Context, id int64) (int64, bool, error) {
	u, err := e.Lookup(ctx, id)
	if err != nil {
		return 0, false, err
	}
	return e.livePartner(ctx, u)
}

// WithActivePartner runs fn while the pair of id is guaranteed to stay
// intact. It reports false without calling fn when id has no live partner.
func (e *Engine) WithActivePartner(ctx context.Context, id int64, fn func(partner int64) error) (bool, error) {
	partner, ok, err := e.ActivePartner(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	unlock := e.pairs.Lock(id, partner)
	defer unlock()

	// re-check under the pair lock
	again, ok, err := e.ActivePartner(ctx, id)
	if err != nil || !ok || again != partner {
		return false, err
	}
	return true, fn(partner)
}

// StartSearch moves id from the observed status into IN_SEARCH and tries to
// match it. observed is the status the caller based its decision on; if the
// user moved on since, ErrStateChanged is returned and nothing changes.
func (e *Engine) StartSearch(ctx context.Context, id int64, observed Status) (SearchResult, error) {
	switch observed {
	case StatusInSearch:
		return SearchResult{Outcome: SearchAlready}, nil
	case StatusCoupled:
		u, err := e.Lookup(ctx, id)
		if err != nil {
			return SearchResult{}, err
		}
		if u.Status != StatusCoupled {
			return SearchResult{}, ErrStateChanged
		}
		partner, ok, err := e.livePartner(ctx, u)
		if err != nil {
			return SearchResult{}, err
		}
		if ok {
			return SearchResult{Outcome: SearchInChat, PartnerID: partner}, nil
		}
	}

	applied, err := e.store.CompareAndSetStatus(ctx, id, observed, StatusInSearch)
	if err != nil {
		return SearchResult{}, fmt.Errorf("enter search %d: %w", id, err)
	}
	if !applied {
		return SearchResult{}, ErrStateChanged
	}
	logger.Debug(ctx, componentPairing, "search.start",
		slog.Int64("user_id", id),
		slog.String("from", string(observed)),
		slog.String("to", string(StatusInSearch)),
	)

	partner, matched, err := e.store.Couple(ctx, id)
	if err != nil {
		return SearchResult{}, fmt.Errorf("couple %d: %w", id, err)
	}
	if !matched {
		u, err := e.Lookup(ctx, id)
		if err != nil {
			return SearchResult{}, err
		}
		if u.Status == StatusCoupled {
			logger.Debug(ctx, componentPairing, "search.claimed",
				slog.Int64("user_id", id),
				slog.Int64("partner_id", u.PartnerID),
			)
			return SearchResult{Outcome: SearchClaimed, PartnerID: u.PartnerID}, nil
		}
		return SearchResult{Outcome: SearchWaiting}, nil
	}
	logger.Info(ctx, componentPairing, "pair.matched",
		slog.Int64("user_id", id),
		slog.Int64("partner_id", partner),
	)
	return SearchResult{Outcome: SearchMatched, PartnerID: partner}, nil
}

// Exit dissolves the pair of id. A stale partner reference is left alone.
func (e *Engine) Exit(ctx context.Context, id int64) (ExitResult, error) {
	return e.leave(ctx, id, "pair.exit")
}

// Block handles a user revoking delivery: a live pair is dissolved like an
// exit and a pending search is cancelled.
func (e *Engine) Block(ctx context.Context, id int64) (ExitResult, error) {
	u, err := e.Lookup(ctx, id)
	if err != nil {
		return ExitResult{}, err
	}
	if u.Status == StatusInSearch {
		applied, err := e.store.CompareAndSetStatus(ctx, id, StatusInSearch, StatusIdle)
		if err != nil {
			return ExitResult{}, fmt.Errorf("cancel search %d: %w", id, err)
		}
		if !applied {
			return ExitResult{}, ErrStateChanged
		}
		logger.Info(ctx, componentPairing, "search.cancelled",
			slog.Int64("user_id", id),
			slog.String("cause", "blocked"),
		)
		return ExitResult{Outcome: ExitNotInChat}, nil
	}
	return e.leave(ctx, id, "pair.blocked")
}

func (e *Engine) leave(ctx context.Context, id int64, event string) (ExitResult, error) {
	u, err := e.Lookup(ctx, id)
	if err != nil {
		return ExitResult{}, err
	}
	if u.Status != StatusCoupled {
		return ExitResult{Outcome: ExitNotInChat}, nil
	}
	partner, ok, err := e.livePartner(ctx, u)
	if err != nil {
		return ExitResult{}, err
	}
	if !ok {
		return ExitResult{Outcome: ExitStale}, nil
	}

	unlock := e.pairs.Lock(id, partner)
	defer unlock()

	former, live, err := e.store.Uncouple(ctx, id)
	if err != nil {
		return ExitResult{}, fmt.Errorf("uncouple %d: %w", id, err)
	}
	if !live {
		// the pair went away between the read and the lock
		return ExitResult{Outcome: ExitStale, PartnerID: former}, nil
	}
	logger.Info(ctx, componentPairing, event,
		slog.Int64("user_id", id),
		slog.Int64("partner_id", former),
	)
	return ExitResult{Outcome: ExitLeft, PartnerID: former}, nil
}

// Stats returns the admin counters.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	users, err := e.store.CountUsers(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count users: %w", err)
	}
	paired, err := e.store.CountPaired(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count paired: %w", err)
	}
	return Stats{Users: users, Paired: paired}, nil
}

// Reset returns every user to IDLE. It runs once at process start.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.ResetAll(ctx); err != nil {
		return fmt.Errorf("reset statuses: %w", err)
	}
	logger.Info(ctx, componentPairing, "reset.done")
	return nil
}
