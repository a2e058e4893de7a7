package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/pairbot/core/logger"
)

const componentRelay = "chat.relay"

// ErrNotInChat is returned by Forward when the sender has no live partner.
var ErrNotInChat = errors.New("chat: sender is not in a chat")

// Relay forwards content between the members of a pair.
type Relay struct {
	engine    *Engine
	transport Transport
	threads   *Threads
}

// NewRelay builds a Relay. A nil threads table disables reply threading.
func NewRelay(engine *Engine, transport Transport, threads *Threads) *Relay {
	return &Relay{engine: engine, transport: transport, threads: threads}
}

// Forward copies the message of ev to the sender's current partner with
// content protection. The partner is resolved at call time.
func (r *Relay) Forward(ctx context.Context, ev Event) error {
	src := MessageRef{ChatID: ev.ChatID, MessageID: ev.MessageID}
	ok, err := r.engine.WithActivePartner(ctx, ev.SenderID, func(partner int64) error {
		opts := CopyOptions{Protect: true}
		if ev.ReplyTo != 0 && r.threads != nil {
			if mapped, found := r.threads.Counterpart(MessageRef{ChatID: ev.ChatID, MessageID: ev.ReplyTo}, partner); found {
				opts.ReplyTo = mapped
			}
		}

		copied, err := r.transport.Copy(ctx, partner, src, opts)
		if err != nil {
			return fmt.Errorf("copy message %d to %d: %w", ev.MessageID, partner, err)
		}
		if r.threads != nil && copied != 0 {
			r.threads.Link(src, MessageRef{ChatID: partner, MessageID: copied})
		}
		logger.Debug(ctx, componentRelay, "relay.sent",
			slog.Int64("user_id", ev.SenderID),
			slog.Int64("partner_id", partner),
			slog.Bool("threaded", opts.ReplyTo != 0),
		)
		return nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInChat
	}
	return nil
}
