package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pairbot/chat"
)

func private(id int64) *tele.Chat { return &tele.Chat{ID: id, Type: tele.ChatPrivate} }

func TestEventFromMessage(t *testing.T) {
	ev, ok := EventFromUpdate(tele.Update{Message: &tele.Message{
		ID: 5, Sender: &tele.User{ID: 1}, Chat: private(1), Text: "/chat@pairbot",
	}})
	assert.True(t, ok)
	assert.Equal(t, chat.Event{Kind: chat.EventCommand, Command: chat.CmdChat, SenderID: 1, ChatID: 1, MessageID: 5}, ev)

	ev, ok = EventFromUpdate(tele.Update{Message: &tele.Message{
		ID: 6, Sender: &tele.User{ID: 1}, Chat: private(1), Text: "chat with me",
		ReplyTo: &tele.Message{ID: 3},
	}})
	assert.True(t, ok)
	assert.Equal(t, chat.EventContent, ev.Kind)
	assert.Equal(t, 3, ev.ReplyTo)

	ev, ok = EventFromUpdate(tele.Update{Message: &tele.Message{
		ID: 7, Sender: &tele.User{ID: 1}, Chat: private(1), Caption: "/exit",
		Photo: &tele.Photo{},
	}})
	assert.True(t, ok)
	assert.Equal(t, chat.EventContent, ev.Kind, "captions are never commands")

	ev, ok = EventFromUpdate(tele.Update{Message: &tele.Message{
		ID: 8, Sender: &tele.User{ID: 1}, Chat: private(1), Text: "/unknown",
	}})
	assert.True(t, ok)
	assert.Equal(t, chat.EventContent, ev.Kind)
}

func TestEventFromMessageRejects(t *testing.T) {
	_, ok := EventFromUpdate(tele.Update{})
	assert.False(t, ok)

	_, ok = EventFromUpdate(tele.Update{Message: &tele.Message{
		ID: 1, Sender: &tele.User{ID: 1}, Chat: &tele.Chat{ID: -100, Type: tele.ChatGroup}, Text: "/chat",
	}})
	assert.False(t, ok)

	_, ok = EventFromUpdate(tele.Update{Message: &tele.Message{ID: 1, Chat: private(1)}})
	assert.False(t, ok)
}

func TestEventFromMembership(t *testing.T) {
	update := func(role tele.MemberStatus, chatType tele.ChatType) tele.Update {
		return tele.Update{MyChatMember: &tele.ChatMemberUpdate{
			Chat:          &tele.Chat{ID: 9, Type: chatType},
			Sender:        &tele.User{ID: 9},
			NewChatMember: &tele.ChatMember{Role: role},
		}}
	}

	ev, ok := EventFromUpdate(update(tele.Kicked, tele.ChatPrivate))
	assert.True(t, ok)
	assert.Equal(t, chat.Event{Kind: chat.EventMembership, SenderID: 9, ChatID: 9, Blocked: true}, ev)

	ev, ok = EventFromUpdate(update(tele.Member, tele.ChatPrivate))
	assert.True(t, ok)
	assert.False(t, ev.Blocked)

	_, ok = EventFromUpdate(update(tele.Administrator, tele.ChatPrivate))
	assert.False(t, ok)

	_, ok = EventFromUpdate(update(tele.Kicked, tele.ChatSuperGroup))
	assert.False(t, ok)
}
