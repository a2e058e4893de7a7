package app

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pairbot/chat"
	tghelpers "github.com/m3rciful/pairbot/core/telegram/helpers"
)

// Transport delivers chat output through the Telegram outbox.
type Transport struct {
	out *tghelpers.Outbox
}

var _ chat.Transport = (*Transport)(nil)

// NewTransport wraps out.
func NewTransport(out *tghelpers.Outbox) *Transport {
	return &Transport{out: out}
}

// Send delivers text and waits for Telegram to accept it.
func (t *Transport) Send(ctx context.Context, to int64, text string) error {
	return t.out.SendText(ctx, to, text)
}

// Notify queues text behind anything already headed to the same chat.
func (t *Transport) Notify(ctx context.Context, to int64, text string) error {
	return t.out.QueueText(ctx, to, text)
}

// Copy relays msg with copyMessage semantics: no "forwarded from" header.
func (t *Transport) Copy(ctx context.Context, to int64, msg chat.MessageRef, opts chat.CopyOptions) (int, error) {
	return t.out.CopyMessage(ctx, to, tghelpers.StoredMessage(msg.ChatID, msg.MessageID), sendOptions(opts))
}

func sendOptions(opts chat.CopyOptions) *tele.SendOptions {
	so := &tele.SendOptions{Protected: opts.Protect}
	if opts.ReplyTo != 0 {
		so.ReplyTo = &tele.Message{ID: opts.ReplyTo}
		// the original may have been deleted on the receiving side
		so.AllowWithoutReply = true
	}
	return so
}
