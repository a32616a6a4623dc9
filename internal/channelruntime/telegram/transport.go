package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/quailyquaily/telegramdock/inbound"
	"github.com/quailyquaily/telegramdock/relay"
)

// transport adapts the Bot API to relay.Transport. Each call is bounded by
// requestTimeout.
type transport struct {
	api            *telegramAPI
	requestTimeout time.Duration
}

var _ relay.Transport = (*transport)(nil)

func newTransport(api *telegramAPI, requestTimeout time.Duration) *transport {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &transport{api: api, requestTimeout: requestTimeout}
}

func (t *transport) Send(ctx context.Context, chatID int64, text string, opts relay.SendOptions) error {
	ctx, cancel := context.WithTimeout(ctx, t.requestTimeout)
	defer cancel()
	req := telegramSendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   strings.TrimSpace(opts.ParseMode),
		ReplyMarkup: keyboardMarkup(opts.Keyboard),
	}
	err := t.api.sendMessage(ctx, req)
	if err != nil && req.ParseMode != "" && isTelegramMarkdownParseError(err) {
		req.ParseMode = ""
		err = t.api.sendMessage(ctx, req)
	}
	return err
}

func (t *transport) Forward(ctx context.Context, msg inbound.MessageRef, toChatID int64) error {
	ctx, cancel := context.WithTimeout(ctx, t.requestTimeout)
	defer cancel()
	return t.api.forwardMessage(ctx, telegramForwardMessageRequest{
		ChatID:     toChatID,
		FromChatID: msg.ChatID,
		MessageID:  msg.MessageID,
	})
}

func (t *transport) Edit(ctx context.Context, msg inbound.MessageRef, text string, opts relay.SendOptions) error {
	ctx, cancel := context.WithTimeout(ctx, t.requestTimeout)
	defer cancel()
	req := telegramEditMessageTextRequest{
		ChatID:      msg.ChatID,
		MessageID:   msg.MessageID,
		Text:        text,
		ParseMode:   strings.TrimSpace(opts.ParseMode),
		ReplyMarkup: keyboardMarkup(opts.Keyboard),
	}
	err := t.api.editMessageText(ctx, req)
	if err != nil && req.ParseMode != "" && isTelegramMarkdownParseError(err) {
		req.ParseMode = ""
		err = t.api.editMessageText(ctx, req)
	}
	return err
}

func (t *transport) AnswerCallback(ctx context.Context, callbackID string) error {
	ctx, cancel := context.WithTimeout(ctx, t.requestTimeout)
	defer cancel()
	return t.api.answerCallbackQuery(ctx, callbackID)
}

func keyboardMarkup(kb relay.Keyboard) *telegramInlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]telegramInlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]telegramInlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, telegramInlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		rows = append(rows, buttons)
	}
	return &telegramInlineKeyboardMarkup{InlineKeyboard: rows}
}
