package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/pairbot/core/logger"
)

const (
	componentDispatch = "chat.dispatch"

	inputContent   = "content"
	inputBlocked   = "blocked"
	inputUnblocked = "unblocked"

	// maxAttempts bounds re-evaluation after a lost transition race.
	maxAttempts = 3
)

type stateKey struct {
	status Status
	input  string
}

type handlerFunc func(ctx context.Context, ev Event, u User) error

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// AdminID is the only user allowed to run /stats. Zero disables it.
	AdminID int64
	// Threads enables reply threading for relayed messages.
	Threads *Threads
}

// Dispatcher is the per-event entry point. It reads the sender's current
// status, looks up the (status, input) pair in its table and runs the
// matching handler. Pairs without an entry are ignored.
type Dispatcher struct {
	engine    *Engine
	relay     *Relay
	transport Transport
	adminID   int64
	table     map[stateKey]handlerFunc
}

// NewDispatcher wires the state table.
func NewDispatcher(engine *Engine, transport Transport, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		engine:    engine,
		relay:     NewRelay(engine, transport, opts.Threads),
		transport: transport,
		adminID:   opts.AdminID,
		table:     make(map[stateKey]handlerFunc),
	}

	for _, st := range Statuses {
		d.on(st, CmdStart, d.handleStart)
		d.on(st, CmdStats, d.handleStats)
	}

	d.on(StatusIdle, CmdChat, d.handleSearch)
	d.on(StatusPartnerLeft, CmdChat, d.handleSearch)
	d.on(StatusCoupled, CmdChat, d.handleSearch)
	d.on(StatusInSearch, CmdChat, d.replyAlreadySearching)

	d.on(StatusCoupled, CmdExit, d.handleExit)
	d.on(StatusIdle, CmdExit, d.replyNotInChat)
	d.on(StatusPartnerLeft, CmdExit, d.replyNotInChat)
	d.on(StatusInSearch, CmdExit, d.replyNotInChat)

	d.on(StatusCoupled, CmdNewChat, d.handleNewChat)
	d.on(StatusIdle, CmdNewChat, d.handleNewChat)
	d.on(StatusPartnerLeft, CmdNewChat, d.handleNewChat)
	d.on(StatusInSearch, CmdNewChat, d.replyAlreadySearching)

	d.on(StatusCoupled, inputContent, d.handleRelay)
	d.on(StatusIdle, inputContent, d.replyNotInChatHint)
	d.on(StatusPartnerLeft, inputContent, d.replyNotInChatHint)
	d.on(StatusInSearch, inputContent, d.replyStillSearching)

	d.on(StatusCoupled, inputBlocked, d.handleBlocked)
	d.on(StatusInSearch, inputBlocked, d.handleBlocked)

	return d
}

func (d *Dispatcher) on(st Status, input string, h handlerFunc) {
	d.table[stateKey{status: st, input: input}] = h
}

func inputOf(ev Event) string {
	switch ev.Kind {
	case EventCommand:
		return ev.Command
	case EventMembership:
		if ev.Blocked {
			return inputBlocked
		}
		return inputUnblocked
	default:
		return inputContent
	}
}

// Handle processes one inbound event.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	input := inputOf(ev)
	for attempt := 1; ; attempt++ {
		u, err := d.engine.Lookup(ctx, ev.SenderID)
		if err != nil {
			return err
		}
		h, ok := d.table[stateKey{status: u.Status, input: input}]
		if !ok {
			logger.Debug(ctx, componentDispatch, "dispatch.skip",
				slog.String("status", "skip"),
				slog.String("from", string(u.Status)),
				slog.String("kind", input),
			)
			return nil
		}
		err = h(ctx, ev, u)
		if !errors.Is(err, ErrStateChanged) {
			return err
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("dispatch %s after %d attempts: %w", input, attempt, err)
		}
		logger.Debug(ctx, componentDispatch, "dispatch.retry",
			slog.String("kind", input),
			slog.Int("attempts", attempt),
		)
	}
}

func (d *Dispatcher) reply(ctx context.Context, ev Event, text string) error {
	return d.transport.Send(ctx, ev.ChatID, text)
}

func (d *Dispatcher) handleStart(ctx context.Context, ev Event, _ User) error {
	if err := d.engine.Register(ctx, ev.SenderID); err != nil {
		return err
	}
	return d.reply(ctx, ev, TextWelcome)
}

func (d *Dispatcher) handleSearch(ctx context.Context, ev Event, u User) error {
	return d.search(ctx, ev, u.Status)
}

// search starts a search from observed. lead is sent ahead of the searching
// notice once the user actually entered the search.
func (d *Dispatcher) search(ctx context.Context, ev Event, observed Status, lead ...string) error {
	res, err := d.engine.StartSearch(ctx, ev.SenderID, observed)
	if err != nil {
		return err
	}
	switch res.Outcome {
	case SearchAlready:
		return d.reply(ctx, ev, TextAlreadySearching)
	case SearchInChat:
		return d.reply(ctx, ev, TextAlreadyInChat)
	case SearchClaimed:
		// the matching user already queued the paired notice
		return nil
	}

	for _, text := range append(lead, TextSearching) {
		if err := d.reply(ctx, ev, text); err != nil {
			return err
		}
	}
	if res.Outcome != SearchMatched {
		return nil
	}
	err = d.reply(ctx, ev, TextPaired)
	return errors.Join(err, d.transport.Notify(ctx, res.PartnerID, TextPaired))
}

func (d *Dispatcher) handleExit(ctx context.Context, ev Event, _ User) error {
	_, err := d.exit(ctx, ev)
	return err
}

func (d *Dispatcher) exit(ctx context.Context, ev Event) (ExitResult, error) {
	res, err := d.engine.Exit(ctx, ev.SenderID)
	if err != nil {
		return res, err
	}
	switch res.Outcome {
	case ExitNotInChat:
		return res, d.reply(ctx, ev, TextNotInChat)
	case ExitStale:
		return res, nil
	}
	err = errors.Join(
		d.reply(ctx, ev, TextEnding),
		d.transport.Notify(ctx, res.PartnerID, TextPartnerLeft),
		d.reply(ctx, ev, TextYouLeft),
	)
	return res, err
}

// handleNewChat is /exit followed by /chat. Outside a chat the not-in-chat
// notice goes out only once the search started, so a retried transition
// does not repeat it.
func (d *Dispatcher) handleNewChat(ctx context.Context, ev Event, u User) error {
	if u.Status != StatusCoupled {
		return d.search(ctx, ev, u.Status, TextNotInChat)
	}
	if _, err := d.exit(ctx, ev); err != nil {
		return err
	}
	after, err := d.engine.Lookup(ctx, ev.SenderID)
	if err != nil {
		return err
	}
	return d.search(ctx, ev, after.Status)
}

func (d *Dispatcher) handleRelay(ctx context.Context, ev Event, _ User) error {
	err := d.relay.Forward(ctx, ev)
	if errors.Is(err, ErrNotInChat) {
		return d.reply(ctx, ev, TextNotInChatHint)
	}
	return err
}

func (d *Dispatcher) handleBlocked(ctx context.Context, ev Event, _ User) error {
	res, err := d.engine.Block(ctx, ev.SenderID)
	if err != nil || res.Outcome != ExitLeft {
		return err
	}
	// the blocker cannot receive anything any more
	return d.transport.Notify(ctx, res.PartnerID, TextPartnerBlocked)
}

func (d *Dispatcher) handleStats(ctx context.Context, ev Event, _ User) error {
	if d.adminID == 0 || ev.SenderID != d.adminID {
		logger.Warn(ctx, componentDispatch, "stats.denied",
			slog.String("status", "skip"),
			slog.Int64("user_id", ev.SenderID),
		)
		return nil
	}
	st, err := d.engine.Stats(ctx)
	if err != nil {
		return err
	}
	return errors.Join(
		d.reply(ctx, ev, TextAdminWelcome),
		d.reply(ctx, ev, PairedUsersText(st.Paired)),
		d.reply(ctx, ev, ActiveUsersText(st.Users)),
	)
}

func (d *Dispatcher) replyAlreadySearching(ctx context.Context, ev Event, _ User) error {
	return d.reply(ctx, ev, TextAlreadySearching)
}

func (d *Dispatcher) replyNotInChat(ctx context.Context, ev Event, _ User) error {
	return d.reply(ctx, ev, TextNotInChat)
}

func (d *Dispatcher) replyNotInChatHint(ctx context.Context, ev Event, _ User) error {
	return d.reply(ctx, ev, TextNotInChatHint)
}

func (d *Dispatcher) replyStillSearching(ctx context.Context, ev Event, _ User) error {
	return d.reply(ctx, ev, TextStillSearching)
}
