package chat

import (
	"context"
	"errors"
)

var (
	// ErrInvalidStatus is returned for values outside the Status enum.
	ErrInvalidStatus = errors.New("chat: invalid status")
	// ErrCoupledStatus is returned when COUPLED is requested outside Couple.
	ErrCoupledStatus = errors.New("chat: coupled status can only be set by couple")
	// ErrStateChanged reports that a guarded transition lost a race; the
	// caller should re-read the user and decide again.
	ErrStateChanged = errors.New("chat: user state changed concurrently")
)

// Store persists users and performs the atomic pairing primitives.
//
// Reads auto-register unknown ids as IDLE. Every mutating call is atomic
// with respect to all records it touches.
type Store interface {
	// InsertUser creates an IDLE record if id is unknown.
	InsertUser(ctx context.Context, id int64) error
	// Get returns the record for id, registering it first when unknown.
	Get(ctx context.Context, id int64) (User, error)
	// Status returns the status of id, registering it first when unknown.
	Status(ctx context.Context, id int64) (Status, error)
	// Partner returns the partner reference of id, if any.
	Partner(ctx context.Context, id int64) (int64, bool, error)
	// SetStatus unconditionally moves id to st and clears its partner.
	// st must not be StatusCoupled.
	SetStatus(ctx context.Context, id int64, st Status) error
	// CompareAndSetStatus moves id from `from` to `to` and clears its partner,
	// only if the current status equals from. It reports whether it applied.
	CompareAndSetStatus(ctx context.Context, id int64, from, to Status) (bool, error)
	// Couple matches id, which must be IN_SEARCH, with the longest waiting
	// other IN_SEARCH user and sets both to COUPLED with mutual partner ids.
	Couple(ctx context.Context, id int64) (int64, bool, error)
	// Uncouple dissolves the pair of id: id becomes IDLE, the partner becomes
	// PARTNER_LEFT, both partner ids are cleared. It returns the former
	// partner and whether the partner was coupled back (a live pair). A
	// caller that is not COUPLED is left untouched.
	Uncouple(ctx context.Context, id int64) (int64, bool, error)
	// ResetAll moves every record to IDLE without partner.
	ResetAll(ctx context.Context) error
	CountUsers(ctx context.Context) (int, error)
	CountPaired(ctx context.Context) (int, error)
	Close() error
}

// CheckSettable validates a status passed to SetStatus or
// CompareAndSetStatus.
func CheckSettable(st Status) error {
	if !st.Valid() {
		return ErrInvalidStatus
	}
	if st == StatusCoupled {
		return ErrCoupledStatus
	}
	return nil
}
