package helpers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pairbot/core/logger"
	"github.com/m3rciful/pairbot/core/telegram/sender"
)

// Messenger is the part of *tele.Bot used for outbound calls.
type Messenger interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Copy(to tele.Recipient, msg tele.Editable, opts ...interface{}) (*tele.Message, error)
}

// Outbox performs outbound calls through the sender dispatcher, keyed by the
// recipient chat. With a nil dispatcher calls run inline.
type Outbox struct {
	bot  Messenger
	disp *sender.Dispatcher
}

// NewOutbox builds an Outbox.
func NewOutbox(bot Messenger, disp *sender.Dispatcher) *Outbox {
	return &Outbox{bot: bot, disp: disp}
}

// SendText sends raw text (no parse mode) to chat `to` and waits for the result.
func (o *Outbox) SendText(ctx context.Context, to int64, text string) error {
	err := o.do(ctx, to, "send.text", "sendMessage", func() error {
		_, err := o.bot.Send(tele.ChatID(to), text)
		return err
	})
	if err == nil {
		count(ctx, false)
	}
	return err
}

// QueueText schedules text for chat `to` without waiting. When the queue is
// saturated the call falls back to a direct send.
func (o *Outbox) QueueText(ctx context.Context, to int64, text string) error {
	run := func() error {
		_, err := o.bot.Send(tele.ChatID(to), text)
		return err
	}
	if o.disp == nil {
		return run()
	}
	err := o.disp.Enqueue(ctx, to, "queue.text", "sendMessage", run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", "queue.text"),
			slog.Int64("to", to),
			slog.String("err", err.Error()),
		)
		return run()
	}
	if err == nil {
		count(ctx, false)
	}
	return err
}

// CopyMessage copies msg into chat `to` and returns the new message id.
func (o *Outbox) CopyMessage(ctx context.Context, to int64, from tele.StoredMessage, opts *tele.SendOptions) (int, error) {
	var copied *tele.Message
	err := o.do(ctx, to, "copy", "copyMessage", func() error {
		var err error
		if opts != nil {
			copied, err = o.bot.Copy(tele.ChatID(to), from, opts)
		} else {
			copied, err = o.bot.Copy(tele.ChatID(to), from)
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	count(ctx, true)
	if copied == nil {
		return 0, nil
	}
	return copied.ID, nil
}

func (o *Outbox) do(ctx context.Context, to int64, action, endpoint string, run func() error) error {
	if o.disp == nil {
		return run()
	}
	err := o.disp.Do(ctx, to, action, endpoint, run)
	if errors.Is(err, sender.ErrQueueClosed) {
		return run()
	}
	return err
}

func count(ctx context.Context, isCopy bool) {
	c := CountersFrom(ctx)
	if c == nil {
		return
	}
	if isCopy {
		c.Copies.Add(1)
		return
	}
	c.Messages.Add(1)
}

// StoredMessage references message id in chat.
func StoredMessage(chatID int64, id int) tele.StoredMessage {
	return tele.StoredMessage{ChatID: chatID, MessageID: strconv.Itoa(id)}
}
