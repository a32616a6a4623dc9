package telegram

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quailyquaily/telegramdock/inbound"
)

// eventFromUpdate maps an update to an inbound event. ok is false for
// updates the relay does not handle: non-message kinds, messages without
// a sender, and messages from bots.
func eventFromUpdate(u telegramUpdate) (inbound.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		return eventFromCallback(u.CallbackQuery)
	case u.Message != nil:
		return eventFromMessage(u.Message)
	default:
		return inbound.Event{}, false
	}
}

func eventFromMessage(msg *telegramMessage) (inbound.Event, bool) {
	if msg.From == nil || msg.From.IsBot || msg.Chat == nil {
		return inbound.Event{}, false
	}
	ev := inbound.Event{
		ID:      uuid.NewString(),
		Type:    inbound.EventMessage,
		Sender:  senderFromUser(msg.From),
		ChatID:  msg.Chat.ID,
		Message: inbound.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.MessageID},
		SentAt:  telegramMessageSentAt(msg),
		Payload: payloadFromMessage(msg),
	}
	if name, _, ok := inbound.ParseCommand(msg.Text); ok {
		ev.Type = inbound.EventCommand
		ev.Command = name
	}
	return ev, true
}

func eventFromCallback(q *telegramCallbackQuery) (inbound.Event, bool) {
	if q.From == nil || q.From.IsBot {
		return inbound.Event{}, false
	}
	cb := &inbound.Callback{ID: q.ID, Data: q.Data}
	chatID := q.From.ID
	sentAt := time.Now().UTC()
	if q.Message != nil && q.Message.Chat != nil {
		chatID = q.Message.Chat.ID
		cb.Message = inbound.MessageRef{ChatID: chatID, MessageID: q.Message.MessageID}
	}
	return inbound.Event{
		ID:       uuid.NewString(),
		Type:     inbound.EventCallback,
		Sender:   senderFromUser(q.From),
		ChatID:   chatID,
		Message:  cb.Message,
		SentAt:   sentAt,
		Callback: cb,
	}, true
}

func senderFromUser(u *telegramUser) inbound.Sender {
	return inbound.Sender{
		ID:           u.ID,
		Username:     strings.TrimSpace(u.Username),
		FirstName:    strings.TrimSpace(u.FirstName),
		LastName:     strings.TrimSpace(u.LastName),
		LanguageCode: strings.TrimSpace(u.LanguageCode),
		IsBot:        u.IsBot,
	}
}

func payloadFromMessage(msg *telegramMessage) inbound.Payload {
	p := inbound.Payload{Text: msg.Text}
	if n := len(msg.Photo); n > 0 {
		// Sizes are ascending; keep the largest.
		largest := msg.Photo[n-1]
		p.Photo = &inbound.Photo{FileID: largest.FileID, Width: largest.Width, Height: largest.Height}
	}
	if d := msg.Document; d != nil {
		p.Document = &inbound.Document{FileID: d.FileID, FileName: d.FileName, MimeType: d.MimeType}
	}
	if v := msg.Voice; v != nil {
		p.Voice = &inbound.Media{FileID: v.FileID, Duration: v.Duration}
	}
	if v := msg.Video; v != nil {
		p.Video = &inbound.Media{FileID: v.FileID, Duration: v.Duration}
	}
	if a := msg.Audio; a != nil {
		p.Audio = &inbound.Document{FileID: a.FileID, FileName: a.FileName, MimeType: a.MimeType}
	}
	if s := msg.Sticker; s != nil {
		p.Sticker = &inbound.Sticker{FileID: s.FileID, Emoji: s.Emoji}
	}
	if a := msg.Animation; a != nil {
		p.Animation = &inbound.Media{FileID: a.FileID, Duration: a.Duration}
	}
	return p
}

func telegramMessageSentAt(msg *telegramMessage) time.Time {
	if msg == nil || msg.Date <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(msg.Date, 0).UTC()
}
