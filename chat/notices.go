package chat

import "fmt"

// User-facing texts.
const (
	TextWelcome          = "Welcome to this ChatBot! \nType /chat to start searching for a partner"
	TextSearching        = "Searching for a partner..."
	TextPaired           = "You have been paired with an user"
	TextAlreadySearching = "You are already in search!"
	TextAlreadyInChat    = "You are already in a chat, type /exit to exit from the chat."
	TextNotInChat        = "You are not in a chat!"
	TextEnding           = "Ending chat..."
	TextYouLeft          = "You have left the chat."
	TextPartnerLeft      = "Your partner has left the chat, type /chat to start searching for a new partner."
	TextNotInChatHint    = "You are not in a chat, type /chat to start searching for a partner."
	TextStillSearching   = "Message not delivered, you are still in search!"
	TextPartnerBlocked   = "Your partner has blocked the bot, leaving the chat."
	TextAdminWelcome     = "Welcome to the admin panel"
)

// PairedUsersText reports how many users are in a pair.
func PairedUsersText(n int) string {
	return fmt.Sprintf("Number of paired users: %d", n)
}

// ActiveUsersText reports how many users are registered.
func ActiveUsersText(n int) string {
	return fmt.Sprintf("Number of active users: %d", n)
}
