package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Telegram Bot API

type telegramAPI struct {
	http    *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
}

func newTelegramAPI(httpClient *http.Client, baseURL, token string, limiter *rate.Limiter) *telegramAPI {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &telegramAPI{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		limiter: limiter,
	}
}

type telegramUpdate struct {
	UpdateID      int64                  `json:"update_id"`
	Message       *telegramMessage       `json:"message,omitempty"`
	CallbackQuery *telegramCallbackQuery `json:"callback_query,omitempty"`
}

type telegramMessage struct {
	MessageID int64         `json:"message_id"`
	Date      int64         `json:"date,omitempty"`
	Chat      *telegramChat `json:"chat,omitempty"`
	From      *telegramUser `json:"from,omitempty"`
	Text      string        `json:"text,omitempty"`

	Photo     []telegramPhotoSize `json:"photo,omitempty"`
	Document  *telegramDocument   `json:"document,omitempty"`
	Voice     *telegramMedia      `json:"voice,omitempty"`
	Video     *telegramMedia      `json:"video,omitempty"`
	Audio     *telegramDocument   `json:"audio,omitempty"`
	Sticker   *telegramSticker    `json:"sticker,omitempty"`
	Animation *telegramMedia      `json:"animation,omitempty"`
}

type telegramCallbackQuery struct {
	ID      string           `json:"id"`
	From    *telegramUser    `json:"from,omitempty"`
	Message *telegramMessage `json:"message,omitempty"`
	Data    string           `json:"data,omitempty"`
}

type telegramChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"` // private|group|supergroup|channel
}

type telegramUser struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot,omitempty"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

type telegramDocument struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

type telegramPhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

type telegramMedia struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration,omitempty"`
}

type telegramSticker struct {
	FileID string `json:"file_id"`
	Emoji  string `json:"emoji,omitempty"`
}

type telegramInlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

type telegramInlineKeyboardMarkup struct {
	InlineKeyboard [][]telegramInlineKeyboardButton `json:"inline_keyboard"`
}

type telegramSendMessageRequest struct {
	ChatID      int64                         `json:"chat_id"`
	Text        string                        `json:"text"`
	ParseMode   string                        `json:"parse_mode,omitempty"`
	ReplyMarkup *telegramInlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type telegramForwardMessageRequest struct {
	ChatID     int64 `json:"chat_id"`
	FromChatID int64 `json:"from_chat_id"`
	MessageID  int64 `json:"message_id"`
}

type telegramEditMessageTextRequest struct {
	ChatID      int64                         `json:"chat_id"`
	MessageID   int64                         `json:"message_id"`
	Text        string                        `json:"text"`
	ParseMode   string                        `json:"parse_mode,omitempty"`
	ReplyMarkup *telegramInlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type telegramAnswerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
}

type telegramResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

type telegramRequestError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
}

func (e *telegramRequestError) Error() string {
	if e == nil {
		return "telegram request failed"
	}
	desc := strings.TrimSpace(e.Description)
	if desc != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("telegram %s http %d: %s", e.Method, e.StatusCode, desc)
		}
		return fmt.Sprintf("telegram %s: %s", e.Method, desc)
	}
	body := strings.TrimSpace(e.Body)
	if e.StatusCode > 0 {
		if body != "" {
			return fmt.Sprintf("telegram %s http %d: %s", e.Method, e.StatusCode, body)
		}
		return fmt.Sprintf("telegram %s http %d", e.Method, e.StatusCode)
	}
	if body != "" {
		return fmt.Sprintf("telegram %s: %s", e.Method, body)
	}
	return "telegram request failed"
}

// isUnauthorized reports a rejected bot token.
func isUnauthorized(err error) bool {
	var reqErr *telegramRequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return reqErr.StatusCode == http.StatusUnauthorized || reqErr.ErrorCode == http.StatusUnauthorized
}

func isTelegramMarkdownParseError(err error) bool {
	if err == nil {
		return false
	}
	var reqErr *telegramRequestError
	if errors.As(err, &reqErr) {
		desc := strings.ToLower(strings.TrimSpace(reqErr.Description))
		if strings.Contains(desc, "can't parse entities") || strings.Contains(desc, "can't parse entity") {
			return true
		}
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "can't parse entities") || strings.Contains(msg, "can't parse entity")
}

func isTelegramPollTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "client.timeout exceeded")
}

// call posts body as JSON to method and decodes the result into out when
// out is non-nil.
func (api *telegramAPI) call(ctx context.Context, method string, body any, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", api.baseURL, api.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return api.redact(method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := api.http.Do(req)
	if err != nil {
		return api.redact(method, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var envelope telegramResponse
	_ = json.Unmarshal(raw, &envelope)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.OK {
		return &telegramRequestError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			ErrorCode:   envelope.ErrorCode,
			Description: envelope.Description,
			Body:        strings.TrimSpace(string(raw)),
		}
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

// redact strips the request URL, which embeds the bot token, from errors
// that reach logs and operator replies.
func (api *telegramAPI) redact(method string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("telegram %s: %w", method, urlErr.Err)
	}
	if api.token != "" && strings.Contains(err.Error(), api.token) {
		return fmt.Errorf("telegram %s: %s", method, strings.ReplaceAll(err.Error(), api.token, "<redacted>"))
	}
	return err
}

// send waits for the outbound rate limiter before calling method.
func (api *telegramAPI) send(ctx context.Context, method string, body any) error {
	if err := api.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram %s: rate limit wait: %w", method, err)
	}
	return api.call(ctx, method, body, nil)
}

func (api *telegramAPI) getMe(ctx context.Context) (*telegramUser, error) {
	var me telegramUser
	if err := api.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (api *telegramAPI) getUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegramUpdate, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	body := map[string]any{
		"timeout":         secs,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if offset > 0 {
		body["offset"] = offset
	}
	var updates []telegramUpdate
	if err := api.call(reqCtx, "getUpdates", body, &updates); err != nil {
		return nil, offset, err
	}

	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

func (api *telegramAPI) sendMessage(ctx context.Context, req telegramSendMessageRequest) error {
	return api.send(ctx, "sendMessage", req)
}

func (api *telegramAPI) forwardMessage(ctx context.Context, req telegramForwardMessageRequest) error {
	return api.send(ctx, "forwardMessage", req)
}

func (api *telegramAPI) editMessageText(ctx context.Context, req telegramEditMessageTextRequest) error {
	return api.send(ctx, "editMessageText", req)
}

func (api *telegramAPI) answerCallbackQuery(ctx context.Context, callbackID string) error {
	return api.send(ctx, "answerCallbackQuery", telegramAnswerCallbackQueryRequest{CallbackQueryID: callbackID})
}
