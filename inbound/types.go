// Package inbound describes the events a chat transport delivers to the
// relay and classifies message payloads.
package inbound

import (
	"strings"
	"time"
)

type EventType string

const (
	EventCommand  EventType = "command"
	EventCallback EventType = "callback"
	EventMessage  EventType = "message"
)

// Sender is the identity attached to every inbound event.
type Sender struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	IsBot        bool
}

// FullName joins first and last name, skipping empty parts.
func (s Sender) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(s.FirstName) + " " + strings.TrimSpace(s.LastName))
}

// MessageRef addresses a message already present on the platform.
type MessageRef struct {
	ChatID    int64
	MessageID int64
}

// Callback is an inline button press.
type Callback struct {
	ID      string
	Data    string
	Message MessageRef
}

// Event is the tagged union handed to the router. Exactly one of Command,
// Callback or Payload is meaningful, selected by Type.
type Event struct {
	// ID correlates log lines for a single event.
	ID       string
	Type     EventType
	Sender   Sender
	ChatID   int64
	Message  MessageRef
	SentAt   time.Time
	Command  string
	Callback *Callback
	Payload  Payload
}

// Payload carries the message content variants. Transports may populate
// more than one field (an animation is also a document on Telegram);
// Classify decides which one wins.
type Payload struct {
	Text      string
	Photo     *Photo
	Document  *Document
	Voice     *Media
	Video     *Media
	Audio     *Document
	Sticker   *Sticker
	Animation *Media
}

type Photo struct {
	FileID string
	Width  int
	Height int
}

type Media struct {
	FileID   string
	Duration int
}

type Document struct {
	FileID   string
	FileName string
	MimeType string
}

type Sticker struct {
	FileID string
	Emoji  string
}

// ParseCommand splits "/name@bot args" into ("name", "args"). ok is false
// when text is not a bot command.
func ParseCommand(text string) (name string, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text, " ")
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}
