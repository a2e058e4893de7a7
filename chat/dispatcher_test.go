package chat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/pairbot/chat"
)

func TestStartRegistersAndWelcomes(t *testing.T) {
	f := newFixture(t)
	f.command(t, 1, chat.CmdStart)

	assert.Equal(t, []string{chat.TextWelcome}, f.tr.texts(1))
	assert.Equal(t, chat.User{ID: 1, Status: chat.StatusIdle}, f.user(t, 1))

	// repeated /start keeps the current state
	f.command(t, 1, chat.CmdChat)
	f.command(t, 1, chat.CmdStart)
	assert.Equal(t, chat.StatusInSearch, f.user(t, 1).Status)
}

func TestChatWaitsThenPairs(t *testing.T) {
	f := newFixture(t)

	f.command(t, 1, chat.CmdChat)
	assert.Equal(t, []string{chat.TextSearching}, f.tr.texts(1))
	assert.Equal(t, chat.StatusInSearch, f.user(t, 1).Status)

	f.command(t, 2, chat.CmdChat)
	assert.Equal(t, []string{chat.TextSearching, chat.TextPaired}, f.tr.texts(2))
	assert.Equal(t, []string{chat.TextSearching, chat.TextPaired}, f.tr.texts(1))

	assert.Equal(t, chat.User{ID: 1, Status: chat.StatusCoupled, PartnerID: 2}, f.user(t, 1))
	assert.Equal(t, chat.User{ID: 2, Status: chat.StatusCoupled, PartnerID: 1}, f.user(t, 2))
}

func TestChatRepliesWithoutStateChange(t *testing.T) {
	f := newFixture(t)

	f.command(t, 1, chat.CmdChat)
	f.command(t, 1, chat.CmdChat)
	assert.Equal(t, []string{chat.TextSearching, chat.TextAlreadySearching}, f.tr.texts(1))
	assert.Equal(t, chat.StatusInSearch, f.user(t, 1).Status)

	f.command(t, 2, chat.CmdChat)
	f.tr.reset()
	f.command(t, 2, chat.CmdChat)
	assert.Equal(t, []string{chat.TextAlreadyInChat}, f.tr.texts(2))
	assert.Empty(t, f.tr.texts(1))
	assert.Equal(t, chat.User{ID: 2, Status: chat.StatusCoupled, PartnerID: 1}, f.user(t, 2))
}

func TestExitNotifiesPartner(t *testing.T) {
	f := newFixture(t)
	f.pair(t, 1, 2)

	f.command(t, 1, chat.CmdExit)
	assert.Equal(t, []string{chat.TextEnding, chat.TextYouLeft}, f.tr.texts(1))
	assert.Equal(t, []string{chat.TextPartnerLeft}, f.tr.texts(2))
	assert.Equal(t, chat.User{ID: 1, Status: chat.StatusIdle}, f.user(t, 1))
	assert.Equal(t, chat.User{ID: 2, Status: chat.StatusPartnerLeft}, f.user(t, 2))

	// the abandoned partner can start over
	f.tr.reset()
	f.command(t, 2, chat.CmdChat)
	assert.Equal(t, []string{chat.TextSearching}, f.tr.texts(2))
	assert.Equal(t, chat.StatusInSearch, f.user(t, 2).Status)
}

func TestExitOutsideChat(t *testing.T) {
	for _, setup := range []struct {
		name string
		cmds []string
	}{
		{"idle", nil},
		{"searching", []string{chat.CmdChat}},
	} {
		t.Run(setup.name, func(t *testing.T) {
			f := newFixture(t)
			for _, c := range setup.cmds {
				f.command(t, 1, c)
			}
			before := f.user(t, 1)
			f.tr.reset()

			f.command(t, 1, chat.CmdExit)
			assert.Equal(t, []string{chat.TextNotInChat}, f.tr.texts(1))
			assert.Equal(t, before, f.user(t, 1))
		})
	}
}

func TestExitWithStalePartnerIsSilent(t *testing.T) {
	f := newFixture(t)
	f.pair(t, 1, 2)
	// partner record moved on without the pair being dissolved
	require.NoError(t, f.store.SetStatus(context.Background(), 2, chat.StatusInSearch))

	f.command(t, 1, chat.CmdExit)
	assert.Empty(t, f.tr.texts(1))
	assert.Empty(t, f.tr.texts(2))
	assert.Equal(t, chat.StatusCoupled, f.user(t, 1).Status)
	assert.Equal(t, chat.StatusInSearch, f.user(t, 2).Status)

	// /chat recovers from the stale pair and matches the waiting partner
	f.command(t, 1, chat.CmdChat)
	assert.Equal(t, []string{chat.TextSearching, chat.TextPaired}, f.tr.texts(1))
	assert.Equal(t, chat.User{ID: 1, Status: chat.StatusCoupled, PartnerID: 2}, f.user(t, 1))
}

func TestNewChatFromChat(t *testing.T) {
	f := newFixture(t)
	f.command(t, 3, chat.CmdChat)
	f.command(t, 4, chat.CmdChat) // 3 and 4 pair
	f.pair(t, 1, 2)

	f.command(t, 5, chat.CmdChat) // waits
	f.tr.reset()

	f.command(t, 1, chat.CmdNewChat)
	assert.Equal(t, []string{
		chat.TextEnding,
		chat.TextYouLeft,
		chat.TextSearching,
		chat.TextPaired,
	}, f.tr.texts(1))
	assert.Equal(t, []string{chat.TextPartnerLeft}, f.tr.texts(2))
	assert.Equal(t, []string{chat.TextPaired}, f.tr.texts(5))

	assert.Equal(t, chat.User{ID: 1, Status: chat.StatusCoupled, PartnerID: 5}, f.user(t, 1))
	assert.Equal(t, chat.StatusPartnerLeft, f.user(t, 2).Status)
}

func TestNewChatOutsideChat(t *testing.T) {
	f := newFixture(t)
	f.command(t, 1, chat.CmdNewChat)
	assert.Equal(t, []string{chat.TextNotInChat, chat.TextSearching}, f.tr.texts(1))
	assert.Equal(t, chat.StatusInSearch, f.user(t, 1).Status)

	f.tr.reset()
	f.command(t, 1, chat.CmdNewChat)
	assert.Equal(t, []string{chat.TextAlreadySearching}, f.tr.texts(1))
	assert.Equal(t, chat.StatusInSearch, f.user(t, 1).Status)
}

func TestContentOutsideChat(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.content(t, 1, 10, 0))
	assert.Equal(t, []string{chat.TextNotInChatHint}, f.tr.texts(1))

	f.command(t, 1, chat.CmdChat)
	f.tr.reset()
	require.NoError(t, f.content(t, 1, 11, 0))
	assert.Equal(t, []string{chat.TextStillSearching}, f.tr.texts(1))
	assert.Equal(t, chat.StatusInSearch, f.user(t, 1).Status)
}

func TestContentIsRelayedProtected(t *testing.T) {
	f := newFixture(t)
	f.pair(t, 1, 2)

	require.NoError(t, f.content(t, 1, 10, 0))
	got := f.tr.copies(2)
	require.Len(t, got, 1)
	assert.Equal(t, chat.MessageRef{ChatID: 1, MessageID: 10}, got[0].From)
	assert.True(t, got[0].Opts.Protect)
	assert.Zero(t, got[0].Opts.ReplyTo)
	assert.Empty(t, f.tr.texts(1))
}

func TestRepliesAreThreaded(t *testing.T) {
	f := newFixture(t)
	f.pair(t, 1, 2)

	require.NoError(t, f.content(t, 1, 10, 0))
	delivered := f.tr.copies(2)[0].ID

	// 2 answers the copy it received; 1 must see the answer under message 10
	require.NoError(t, f.content(t, 2, 50, delivered))
	back := f.tr.copies(1)
	require.Len(t, back, 1)
	assert.Equal(t, 10, back[0].Opts.ReplyTo)

	// 1 answers that reply; 2 sees it under its own message 50
	require.NoError(t, f.content(t, 1, 11, back[0].ID))
	again := f.tr.copies(2)
	require.Len(t, again, 2)
	assert.Equal(t, 50, again[1].Opts.ReplyTo)

	// replies to unknown messages are delivered unthreaded
	require.NoError(t, f.content(t, 1, 12, 9999))
	assert.Zero(t, f.tr.copies(2)[2].Opts.ReplyTo)
}

func TestNoRelayToFormerPartner(t *testing.T) {
	f := newFixture(t)
	f.pair(t, 1, 2)
	f.command(t, 2, chat.CmdExit)
	f.tr.reset()

	require.NoError(t, f.content(t, 1, 10, 0))
	assert.Empty(t, f.tr.copies(2))
	assert.Equal(t, []string{chat.TextNotInChatHint}, f.tr.texts(1))
}

func TestRelayFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.pair(t, 1, 2)
	f.tr.failFor[2] = errBlocked

	err := f.content(t, 1, 10, 0)
	assert.ErrorIs(t, err, errBlocked)
	assert.Equal(t, chat.StatusCoupled, f.user(t, 1).Status)
}

func TestBlockedDissolvesPair(t *testing.T) {
	f := newFixture(t)
	f.pair(t, 1, 2)

	require.NoError(t, f.d.Handle(context.Background(), chat.Event{
		Kind: chat.EventMembership, SenderID: 1, ChatID: 1, Blocked: true,
	}))
	assert.Empty(t, f.tr.texts(1))
	assert.Equal(t, []string{chat.TextPartnerBlocked}, f.tr.texts(2))
	assert.Equal(t, chat.StatusIdle, f.user(t, 1).Status)
	assert.Equal(t, chat.StatusPartnerLeft, f.user(t, 2).Status)
}

func TestBlockedCancelsSearch(t *testing.T) {
	f := newFixture(t)
	f.command(t, 1, chat.CmdChat)
	f.tr.reset()

	require.NoError(t, f.d.Handle(context.Background(), chat.Event{
		Kind: chat.EventMembership, SenderID: 1, ChatID: 1, Blocked: true,
	}))
	assert.Equal(t, chat.StatusIdle, f.user(t, 1).Status)

	// nobody gets matched with the user that left
	f.command(t, 2, chat.CmdChat)
	assert.Equal(t, chat.StatusInSearch, f.user(t, 2).Status)
	assert.Empty(t, f.tr.texts(1))
}

func TestUnblockedIsIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.Handle(context.Background(), chat.Event{
		Kind: chat.EventMembership, SenderID: 1, ChatID: 1,
	}))
	assert.Empty(t, f.tr.texts(1))
}

func TestStatsForAdmin(t *testing.T) {
	f := newFixture(t)
	f.pair(t, 1, 2)
	f.command(t, 3, chat.CmdStart)

	f.command(t, adminID, chat.CmdStats)
	assert.Equal(t, []string{
		chat.TextAdminWelcome,
		chat.PairedUsersText(2),
		chat.ActiveUsersText(4), // the admin is registered by the lookup
	}, f.tr.texts(adminID))
}

func TestStatsDenied(t *testing.T) {
	f := newFixture(t)
	f.command(t, 1, chat.CmdStats)
	assert.Empty(t, f.tr.texts(1))

	d := chat.NewDispatcher(f.engine, f.tr, chat.DispatcherOptions{})
	require.NoError(t, d.Handle(context.Background(), chat.Event{
		Kind: chat.EventCommand, Command: chat.CmdStats, SenderID: adminID, ChatID: adminID,
	}))
	assert.Empty(t, f.tr.texts(adminID))
}

func TestBlockedWhileBeingMatched(t *testing.T) {
	f := newFixture(t)
	f.command(t, 1, chat.CmdChat)
	f.tr.reset()

	// 2 couples with 1 between the read of IN_SEARCH and the cancellation
	f.interleave("cas", 1, chat.StatusInSearch, func() {
		f.command(t, 2, chat.CmdChat)
	})
	require.NoError(t, f.d.Handle(context.Background(), chat.Event{
		Kind: chat.EventMembership, SenderID: 1, ChatID: 1, Blocked: true,
	}))

	assert.Equal(t, chat.User{ID: 1, Status: chat.StatusIdle}, f.user(t, 1))
	assert.Equal(t, chat.User{ID: 2, Status: chat.StatusPartnerLeft}, f.user(t, 2))
	assert.Equal(t, []string{
		chat.TextSearching,
		chat.TextPaired,
		chat.TextPartnerBlocked,
	}, f.tr.texts(2))
}

func TestClaimedSearcherOnlyGetsPaired(t *testing.T) {
	f := newFixture(t)

	// 1 enters the search and takes 2 before 2 looks for a partner itself
	f.interleave("couple", 2, "", func() {
		f.command(t, 1, chat.CmdChat)
	})
	f.command(t, 2, chat.CmdChat)

	assert.Equal(t, []string{chat.TextPaired}, f.tr.texts(2))
	assert.Equal(t, []string{chat.TextSearching, chat.TextPaired}, f.tr.texts(1))
	assert.Equal(t, chat.User{ID: 1, Status: chat.StatusCoupled, PartnerID: 2}, f.user(t, 1))
	assert.Equal(t, chat.User{ID: 2, Status: chat.StatusCoupled, PartnerID: 1}, f.user(t, 2))
}

func TestNewChatRetryDoesNotRepeatNotice(t *testing.T) {
	f := newFixture(t)
	f.command(t, 1, chat.CmdStart)
	f.tr.reset()

	// 1 gets paired and left by 2 before its own /newchat applies
	f.interleave("cas", 1, chat.StatusIdle, func() {
		f.command(t, 1, chat.CmdChat)
		f.command(t, 2, chat.CmdChat)
		f.command(t, 2, chat.CmdExit)
	})
	f.command(t, 1, chat.CmdNewChat)

	assert.Equal(t, []string{
		chat.TextSearching,
		chat.TextPaired,
		chat.TextPartnerLeft,
		chat.TextNotInChat,
		chat.TextSearching,
	}, f.tr.texts(1))
	assert.Equal(t, chat.StatusInSearch, f.user(t, 1).Status)
}
