package chat

import (
	"context"
	"strings"
)

// Commands understood by the dispatcher.
const (
	CmdStart   = "/start"
	CmdChat    = "/chat"
	CmdExit    = "/exit"
	CmdNewChat = "/newchat"
	CmdStats   = "/stats"
)

var knownCommands = map[string]struct{}{
	CmdStart:   {},
	CmdChat:    {},
	CmdExit:    {},
	CmdNewChat: {},
	CmdStats:   {},
}

// EventKind classifies inbound events.
type EventKind int

const (
	// EventContent is any message that is not a known command.
	EventContent EventKind = iota
	// EventCommand is one of the known slash commands.
	EventCommand
	// EventMembership reports that the user blocked or unblocked the bot.
	EventMembership
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventMembership:
		return "membership"
	default:
		return "content"
	}
}

// Event is one inbound update, already stripped of transport details.
type Event struct {
	Kind      EventKind
	Command   string
	SenderID  int64
	ChatID    int64
	MessageID int
	// ReplyTo is the id of the message this one answers, zero if none.
	ReplyTo int
	// Blocked is set on membership events when the user revoked delivery.
	Blocked bool
}

// ParseCommand extracts a known command from message text. It accepts the
// "/cmd@botname args" form and rejects unknown commands.
func ParseCommand(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}
	name, _, _ := strings.Cut(fields[0], "@")
	name = strings.ToLower(name)
	if _, ok := knownCommands[name]; !ok {
		return "", false
	}
	return name, true
}

// MessageRef points at a message in a chat.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// CopyOptions controls how a relayed message is delivered.
type CopyOptions struct {
	// Protect forbids the receiver from forwarding or saving the copy.
	Protect bool
	// ReplyTo threads the copy under this message of the receiving chat.
	ReplyTo int
}

// Transport delivers outbound messages.
type Transport interface {
	// Send delivers text to a chat and waits for the result.
	Send(ctx context.Context, to int64, text string) error
	// Notify delivers text to a chat, possibly asynchronously. Messages to
	// the same chat keep the order in which Send and Notify were called.
	Notify(ctx context.Context, to int64, text string) error
	// Copy duplicates msg into the chat `to` and returns the new message id.
	Copy(ctx context.Context, to int64, msg MessageRef, opts CopyOptions) (int, error)
}
