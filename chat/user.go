// Package chat pairs anonymous users for one-on-one conversations and relays
// their messages.
//
// Every user is in exactly one Status. Pairs are created only by
// Store.Couple and dissolved only by Store.Uncouple; both change the two
// records involved in a single atomic step. The Engine drives the
// transitions, the Relay forwards content to the current partner and the
// Dispatcher maps inbound events to both through an explicit
// (status, input) table.
package chat

import "fmt"

// Status is the conversation state of a user.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusInSearch    Status = "in_search"
	StatusCoupled     Status = "coupled"
	StatusPartnerLeft Status = "partner_left"
)

// Statuses lists every valid status.
var Statuses = []Status{StatusIdle, StatusInSearch, StatusCoupled, StatusPartnerLeft}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusInSearch, StatusCoupled, StatusPartnerLeft:
		return true
	}
	return false
}

// ParseStatus converts a stored value back into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// User is the persisted record of one chat user. PartnerID is zero when the
// user has no partner; Telegram never assigns zero to a user.
type User struct {
	ID        int64
	Status    Status
	PartnerID int64
}

// HasPartner reports whether the record references a partner.
func (u User) HasPartner() bool {
	return u.PartnerID != 0
}

// Stats aggregates store counters for the admin report.
type Stats struct {
	Users  int
	Paired int
}
