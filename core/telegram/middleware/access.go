package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions configures the admin check.
type AdminOptions struct {
	// AdminID is the only user allowed through. Zero lets nobody through.
	AdminID int64
	// OnReject handles a denied update. Nil drops it silently.
	OnReject tele.HandlerFunc
}

func (o AdminOptions) allows(c tele.Context) bool {
	user := c.Sender()
	return o.AdminID != 0 && user != nil && user.ID == o.AdminID
}

func (o AdminOptions) reject(c tele.Context) error {
	if o.OnReject != nil {
		return o.OnReject(c)
	}
	return nil
}

// WithAdminCheck guards h when adminOnly is set; other handlers are returned
// unchanged.
func WithAdminCheck(opts AdminOptions, adminOnly bool, h tele.HandlerFunc) tele.HandlerFunc {
	if !adminOnly {
		return h
	}
	return func(c tele.Context) error {
		if !opts.allows(c) {
			return opts.reject(c)
		}
		return h(c)
	}
}
