package app

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pairbot/chat"
)

// EventFromUpdate converts a private-chat update into a chat.Event. Updates
// from groups and channels, and updates without a sender, are rejected.
func EventFromUpdate(u tele.Update) (chat.Event, bool) {
	if m := u.MyChatMember; m != nil {
		return membershipEvent(m)
	}
	m := u.Message
	if m == nil || m.Sender == nil || m.Chat == nil || m.Chat.Type != tele.ChatPrivate {
		return chat.Event{}, false
	}
	ev := chat.Event{
		Kind:      chat.EventContent,
		SenderID:  m.Sender.ID,
		ChatID:    m.Chat.ID,
		MessageID: m.ID,
	}
	if cmd, ok := chat.ParseCommand(m.Text); ok {
		ev.Kind = chat.EventCommand
		ev.Command = cmd
		return ev, true
	}
	if m.ReplyTo != nil {
		ev.ReplyTo = m.ReplyTo.ID
	}
	return ev, true
}

func membershipEvent(m *tele.ChatMemberUpdate) (chat.Event, bool) {
	if m.Sender == nil || m.Chat == nil || m.Chat.Type != tele.ChatPrivate || m.NewChatMember == nil {
		return chat.Event{}, false
	}
	ev := chat.Event{
		Kind:     chat.EventMembership,
		SenderID: m.Sender.ID,
		ChatID:   m.Chat.ID,
	}
	switch m.NewChatMember.Role {
	case tele.Kicked:
		ev.Blocked = true
	case tele.Member:
	default:
		return chat.Event{}, false
	}
	return ev, true
}
