package helpers

import tele "gopkg.in/telebot.v4"

// MessageKind names the content carried by m, e.g. "text" or "photo".
func MessageKind(m *tele.Message) string {
	switch {
	case m == nil:
		return ""
	case m.Photo != nil:
		return "photo"
	case m.Video != nil:
		return "video"
	case m.VideoNote != nil:
		return "video_note"
	case m.Voice != nil:
		return "voice"
	case m.Audio != nil:
		return "audio"
	case m.Animation != nil:
		return "animation"
	case m.Document != nil:
		return "document"
	case m.Sticker != nil:
		return "sticker"
	case m.Venue != nil:
		return "venue"
	case m.Location != nil:
		return "location"
	case m.Contact != nil:
		return "contact"
	case m.Poll != nil:
		return "poll"
	case m.Dice != nil:
		return "dice"
	case m.Text != "":
		return "text"
	}
	return "other"
}

// UpdateKind classifies an update for logs.
func UpdateKind(u tele.Update) string {
	switch {
	case u.Message != nil:
		return "message"
	case u.MyChatMember != nil:
		return "my_chat_member"
	case u.EditedMessage != nil:
		return "edited_message"
	case u.Callback != nil:
		return "callback"
	}
	return "other"
}
