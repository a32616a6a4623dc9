package relay

import (
	"context"

	"github.com/quailyquaily/telegramdock/inbound"
)

const ParseModeMarkdown = "Markdown"

// Button is an inline keyboard button carrying callback data.
type Button struct {
	Text string
	Data string
}

// Keyboard rows, top to bottom.
type Keyboard [][]Button

type SendOptions struct {
	ParseMode string
	Keyboard  Keyboard
}

// Transport is the outward side of the chat platform. Implementations
// bound every call with their own timeout and return failures as errors.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string, opts SendOptions) error
	Forward(ctx context.Context, msg inbound.MessageRef, toChatID int64) error
	Edit(ctx context.Context, msg inbound.MessageRef, text string, opts SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Observer receives routing outcomes, typically for metrics.
type Observer interface {
	ObserveRoute(route Route)
	ObserveRelayFailure(direction Direction)
	ObservePersistenceError(store string)
	ObserveMode(mode Mode)
}

type nopObserver struct{}

func (nopObserver) ObserveRoute(Route) {}
func (nopObserver) ObserveRelayFailure(Direction) {}
func (nopObserver) ObservePersistenceError(string) {}
func (nopObserver) ObserveMode(Mode) {}
