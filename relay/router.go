// Package relay routes inbound events between end users and the single
// operator.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quailyquaily/telegramdock/audit"
	"github.com/quailyquaily/telegramdock/inbound"
	"github.com/quailyquaily/telegramdock/internal/snapshot"
	"github.com/quailyquaily/telegramdock/profile"
)

type Mode int

const (
	ModeNoOperator Mode = iota
	ModeWithOperator
)

func (m Mode) String() string {
	if m == ModeWithOperator {
		return "with_operator"
	}
	return "no_operator"
}

// Route is the handling path taken for one event.
type Route string

const (
	RouteIgnored          Route = "ignored"
	RouteCommandReply     Route = "command_reply"
	RouteCallbackReply    Route = "callback_reply"
	RouteRelayToOperator  Route = "relay_to_operator"
	RouteRelayToUser      Route = "relay_to_user"
	RouteNoOperatorNotice Route = "no_operator_notice"
)

type Direction string

const (
	DirectionToOperator Direction = "to_operator"
	DirectionToUser     Direction = "to_user"
)

const (
	storeProfile = "profile"
	storeAudit   = "audit"
)

type Options struct {
	Profiles  *profile.Store
	Audit     *audit.Log
	Transport Transport
	Templates Templates
	// OperatorID selects the initial mode; zero starts without an operator.
	OperatorID int64
	Observer   Observer
	Logger     *slog.Logger
	Now        func() time.Time
}

// routeState is swapped as a whole so each event sees one consistent
// operator and template set.
type routeState struct {
	operatorID int64
	templates  Templates
}

func (s *routeState) mode() Mode {
	if s.operatorID != 0 {
		return ModeWithOperator
	}
	return ModeNoOperator
}

type Router struct {
	profiles  *profile.Store
	audit     *audit.Log
	transport Transport
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time

	state atomic.Pointer[routeState]
}

func NewRouter(opts Options) (*Router, error) {
	if opts.Profiles == nil {
		return nil, fmt.Errorf("relay: profile store is required")
	}
	if opts.Audit == nil {
		return nil, fmt.Errorf("relay: audit log is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("relay: transport is required")
	}
	if opts.OperatorID < 0 {
		return nil, fmt.Errorf("relay: invalid operator id %d", opts.OperatorID)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Router{
		profiles:  opts.Profiles,
		audit:     opts.Audit,
		transport: opts.Transport,
		observer:  opts.Observer,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	st := &routeState{operatorID: opts.OperatorID, templates: opts.Templates.withDefaults()}
	r.state.Store(st)
	r.observer.ObserveMode(st.mode())
	return r, nil
}

func (r *Router) Mode() Mode { return r.state.Load().mode() }

func (r *Router) OperatorID() int64 { return r.state.Load().operatorID }

// Activate switches routing to operatorID with tpl. It succeeds once: it
// returns false when an operator is already set or operatorID is not
// positive.
func (r *Router) Activate(operatorID int64, tpl Templates) bool {
	if operatorID <= 0 {
		return false
	}
	next := &routeState{operatorID: operatorID, templates: tpl.withDefaults()}
	for {
		cur := r.state.Load()
		if cur.operatorID != 0 {
			return false
		}
		if r.state.CompareAndSwap(cur, next) {
			r.observer.ObserveMode(ModeWithOperator)
			r.logger.Info("relay_operator_activated", "operator_id", operatorID)
			return true
		}
	}
}

// Handle runs one event through the routing table. Profile and audit
// updates happen before any outward call. Every failure has already been
// reported to the affected party when Handle returns; the returned error
// joins them for the caller's bookkeeping.
func (r *Router) Handle(ctx context.Context, ev inbound.Event) (Route, error) {
	st := r.state.Load()
	h := &handling{
		r:      r,
		st:     st,
		ev:     ev,
		logger: r.logger.With("event_id", ev.ID, "user_id", ev.Sender.ID, "chat_id", ev.ChatID),
	}

	var route Route
	switch ev.Type {
	case inbound.EventCommand:
		route = h.command(ctx)
	case inbound.EventCallback:
		route = h.callback(ctx)
	case inbound.EventMessage:
		route = h.message(ctx)
	default:
		route = RouteIgnored
	}
	r.observer.ObserveRoute(route)
	h.logger.Debug("relay_event_routed", "type", string(ev.Type), "route", string(route), "mode", st.mode().String())
	return route, errors.Join(h.errs...)
}

// handling is the per-event scratch state.
type handling struct {
	r      *Router
	st     *routeState
	ev     inbound.Event
	logger *slog.Logger
	errs   []error
}

func (h *handling) command(ctx context.Context) Route {
	switch h.ev.Command {
	case "start":
		h.touch(ctx)
		h.record(ctx, inbound.KindCommand, "/start")
		h.send(ctx, h.ev.ChatID, h.st.templates.Welcome, SendOptions{Keyboard: MenuKeyboard()})
		return RouteCommandReply
	case "id":
		p := h.touch(ctx)
		h.record(ctx, inbound.KindCommand, "/id")
		h.send(ctx, h.ev.ChatID, FormatProfile(h.ev.Sender, p), SendOptions{ParseMode: ParseModeMarkdown})
		return RouteCommandReply
	case "menu":
		h.record(ctx, inbound.KindCommand, "/menu")
		h.send(ctx, h.ev.ChatID, menuPrompt, SendOptions{Keyboard: MenuKeyboard()})
		return RouteCommandReply
	default:
		return RouteIgnored
	}
}

func (h *handling) callback(ctx context.Context) Route {
	cb := h.ev.Callback
	if cb == nil {
		return RouteIgnored
	}

	var p profile.Profile
	if cb.Data == CallbackGetID {
		p = h.touch(ctx)
	}
	h.record(ctx, inbound.KindCallback, cb.Data)

	if err := h.r.transport.AnswerCallback(ctx, cb.ID); err != nil {
		h.transportFailed("answer_callback", h.ev.ChatID, err)
	}

	switch cb.Data {
	case CallbackGetID:
		h.edit(ctx, cb.Message, FormatProfile(h.ev.Sender, p), SendOptions{ParseMode: ParseModeMarkdown})
	case CallbackContactSupport:
		h.edit(ctx, cb.Message, supportText, SendOptions{})
	case CallbackHelp:
		h.edit(ctx, cb.Message, helpText, SendOptions{})
	default:
		h.logger.Debug("relay_callback_unknown", "data", cb.Data)
		return RouteIgnored
	}
	return RouteCallbackReply
}

func (h *handling) message(ctx context.Context) Route {
	if h.st.operatorID != 0 && h.ev.Sender.ID == h.st.operatorID {
		return h.operatorMessage(ctx)
	}

	kind, summary := inbound.Classify(h.ev.Payload)
	h.touch(ctx)
	h.record(ctx, kind, summary)
	h.logger.Info("relay_user_message", "username", h.ev.Sender.Username, "kind", string(kind))

	if h.st.operatorID == 0 {
		h.send(ctx, h.ev.ChatID, noOperatorNotice, SendOptions{})
		return RouteNoOperatorNotice
	}

	operator := h.st.operatorID
	err := h.r.transport.Send(ctx, operator, FormatHeader(h.ev.Sender, h.ev.SentAt), SendOptions{})
	op := "send_header"
	if err == nil {
		op = "forward"
		err = h.r.transport.Forward(ctx, h.ev.Message, operator)
	}
	if err != nil {
		h.transportFailed(op, operator, err)
		h.r.observer.ObserveRelayFailure(DirectionToOperator)
		h.send(ctx, h.ev.ChatID, h.st.templates.ForwardFailed, SendOptions{})
		return RouteRelayToOperator
	}
	h.logger.Info("relay_forwarded_to_operator", "operator_id", operator)
	h.send(ctx, h.ev.ChatID, h.st.templates.ForwardSuccess, SendOptions{})
	return RouteRelayToOperator
}

func (h *handling) operatorMessage(ctx context.Context) Route {
	text := h.ev.Payload.Text
	if text == "" {
		return RouteIgnored
	}
	target, body, err := ParseOperatorReply(text)
	if errors.Is(err, ErrNotAddressed) {
		return RouteIgnored
	}
	if err != nil {
		h.errs = append(h.errs, err)
		h.logger.Warn("relay_operator_reply_format_error", "error", err.Error())
		h.send(ctx, h.ev.ChatID, replyFormatError, SendOptions{})
		return RouteRelayToUser
	}

	if err := h.r.transport.Send(ctx, target, formatOperatorReply(body), SendOptions{}); err != nil {
		h.transportFailed("send_reply", target, err)
		h.r.observer.ObserveRelayFailure(DirectionToUser)
		h.send(ctx, h.ev.ChatID, formatReplySendFailed(err), SendOptions{})
		return RouteRelayToUser
	}
	h.logger.Info("relay_replied_to_user", "target_user_id", target)
	h.send(ctx, h.ev.ChatID, formatReplyConfirmed(target), SendOptions{})
	return RouteRelayToUser
}

func (h *handling) touch(ctx context.Context) profile.Profile {
	p, err := h.r.profiles.Touch(ctx, h.ev.Sender, h.r.now())
	if err != nil {
		h.persistFailed(storeProfile, err)
	}
	return p
}

func (h *handling) record(ctx context.Context, kind inbound.Kind, summary string) {
	_, err := h.r.audit.Append(ctx, audit.Record{
		Timestamp: snapshot.At(h.r.now()),
		UserID:    h.ev.Sender.ID,
		Username:  h.ev.Sender.Username,
		Kind:      kind,
		Summary:   summary,
	})
	if err != nil {
		h.persistFailed(storeAudit, err)
	}
}

func (h *handling) send(ctx context.Context, chatID int64, text string, opts SendOptions) {
	if err := h.r.transport.Send(ctx, chatID, text, opts); err != nil {
		h.transportFailed("send", chatID, err)
	}
}

func (h *handling) edit(ctx context.Context, msg inbound.MessageRef, text string, opts SendOptions) {
	if err := h.r.transport.Edit(ctx, msg, text, opts); err != nil {
		h.transportFailed("edit", msg.ChatID, err)
	}
}

func (h *handling) transportFailed(op string, chatID int64, err error) {
	h.errs = append(h.errs, &TransportError{Op: op, ChatID: chatID, Err: err})
	h.logger.Warn("relay_transport_error", "op", op, "target_chat_id", chatID, "error", err.Error())
}

func (h *handling) persistFailed(store string, err error) {
	h.errs = append(h.errs, &PersistenceError{Store: store, Err: err})
	h.r.observer.ObservePersistenceError(store)
	h.logger.Error("relay_persist_error", "store", store, "error", err.Error())
}
