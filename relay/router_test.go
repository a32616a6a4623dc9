package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quailyquaily/telegramdock/audit"
	"github.com/quailyquaily/telegramdock/inbound"
	"github.com/quailyquaily/telegramdock/internal/snapshot"
	"github.com/quailyquaily/telegramdock/profile"
)

const testOperator int64 = 1000

type sentMessage struct {
	ChatID int64
	Text   string
	Opts   SendOptions
}

type fakeTransport struct {
	mu        sync.Mutex
	sent      []sentMessage
	forwarded []inbound.MessageRef
	edited    []sentMessage
	answered  []string

	failSendTo  map[int64]error
	failForward error
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, text string, opts SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSendTo[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	return nil
}

func (f *fakeTransport) Forward(_ context.Context, msg inbound.MessageRef, toChatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failForward != nil {
		return f.failForward
	}
	f.forwarded = append(f.forwarded, msg)
	return nil
}

func (f *fakeTransport) Edit(_ context.Context, msg inbound.MessageRef, text string, opts SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, sentMessage{ChatID: msg.ChatID, Text: text, Opts: opts})
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id)
	return nil
}

func (f *fakeTransport) sentTo(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	router    *Router
	transport *fakeTransport
	profiles  *profile.Store
	audit     *audit.Log
	userSnap  *snapshot.Memory[profile.Snapshot]
}

func newFixture(t *testing.T, operatorID int64) *fixture {
	t.Helper()
	userSnap := snapshot.NewMemory[profile.Snapshot]()
	f := &fixture{
		transport: &fakeTransport{failSendTo: map[int64]error{}},
		profiles:  profile.NewStore(userSnap),
		audit:     audit.NewLog(nil, audit.Options{}),
		userSnap:  userSnap,
	}
	r, err := NewRouter(Options{
		Profiles:   f.profiles,
		Audit:      f.audit,
		Transport:  f.transport,
		OperatorID: operatorID,
		Now:        func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	f.router = r
	return f
}

func userText(userID int64, text string) inbound.Event {
	return inbound.Event{
		ID:      "ev",
		Type:    inbound.EventMessage,
		Sender:  inbound.Sender{ID: userID, Username: "u", FirstName: "User"},
		ChatID:  userID,
		Message: inbound.MessageRef{ChatID: userID, MessageID: 77},
		SentAt:  time.Date(2026, 2, 3, 4, 0, 0, 0, time.UTC),
		Payload: inbound.Payload{Text: text},
	}
}

func TestUserMessageRelayedToOperator(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testOperator)
	route, err := f.router.Handle(context.Background(), userText(555, "need help"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if route != RouteRelayToOperator {
		t.Fatalf("route = %q, want %q", route, RouteRelayToOperator)
	}

	toOperator := f.transport.sentTo(testOperator)
	if len(toOperator) != 1 {
		t.Fatalf("operator messages = %d, want 1", len(toOperator))
	}
	for _, want := range []string{"555", "User", "2026-02-03 04:00:00"} {
		if !strings.Contains(toOperator[0].Text, want) {
			t.Fatalf("header missing %q: %s", want, toOperator[0].Text)
		}
	}
	if len(f.transport.forwarded) != 1 || f.transport.forwarded[0].MessageID != 77 {
		t.Fatalf("forwarded = %+v", f.transport.forwarded)
	}
	toUser := f.transport.sentTo(555)
	if len(toUser) != 1 || toUser[0].Text != DefaultForwardSuccess {
		t.Fatalf("user replies = %+v", toUser)
	}

	if p, ok := f.profiles.Get(555); !ok || p.MessageCount != 1 {
		t.Fatalf("profile = (%+v, %v)", p, ok)
	}
	recs := f.audit.Recent(0)
	if len(recs) != 1 || recs[0].Kind != inbound.KindText || recs[0].Summary != "need help" {
		t.Fatalf("audit = %+v", recs)
	}
}

func TestForwardFailureReportsToUserAndKeepsRecords(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testOperator)
	f.transport.failForward = errors.New("Forbidden: bot was blocked")

	route, err := f.router.Handle(context.Background(), userText(555, "need help"))
	if route != RouteRelayToOperator {
		t.Fatalf("route = %q, want %q", route, RouteRelayToOperator)
	}
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "forward" || terr.ChatID != testOperator {
		t.Fatalf("Handle() error = %v, want forward TransportError", err)
	}
	toUser := f.transport.sentTo(555)
	if len(toUser) != 1 || toUser[0].Text != DefaultForwardFailed {
		t.Fatalf("user replies = %+v", toUser)
	}
	if p, _ := f.profiles.Get(555); p.MessageCount != 1 {
		t.Fatalf("MessageCount = %d, want 1", p.MessageCount)
	}
	if f.audit.Len() != 1 {
		t.Fatalf("audit Len() = %d, want 1", f.audit.Len())
	}
}

func TestHeaderFailureSkipsForward(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testOperator)
	f.transport.failSendTo[testOperator] = errors.New("chat not found")

	_, err := f.router.Handle(context.Background(), userText(555, "hi"))
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "send_header" {
		t.Fatalf("Handle() error = %v, want send_header TransportError", err)
	}
	if len(f.transport.forwarded) != 0 {
		t.Fatalf("forwarded = %+v, want none", f.transport.forwarded)
	}
	if got := f.transport.sentTo(555); len(got) != 1 || got[0].Text != DefaultForwardFailed {
		t.Fatalf("user replies = %+v", got)
	}
}

func TestOperatorAddressedReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testOperator)
	route, err := f.router.Handle(context.Background(), userText(testOperator, "@555 Thanks for reaching out"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if route != RouteRelayToUser {
		t.Fatalf("route = %q, want %q", route, RouteRelayToUser)
	}
	toUser := f.transport.sentTo(555)
	if len(toUser) != 1 || toUser[0].Text != "📨 客服回复：\n\nThanks for reaching out" {
		t.Fatalf("user messages = %+v", toUser)
	}
	toOperator := f.transport.sentTo(testOperator)
	if len(toOperator) != 1 || toOperator[0].Text != "✅ 已回复用户 555" {
		t.Fatalf("operator messages = %+v", toOperator)
	}
	if f.profiles.Len() != 0 || f.audit.Len() != 0 {
		t.Fatalf("operator reply touched profiles=%d audit=%d", f.profiles.Len(), f.audit.Len())
	}
}

func TestOperatorReplyFormatError(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"@abc hi", "@123"} {
		f := newFixture(t, testOperator)
		_, err := f.router.Handle(context.Background(), userText(testOperator, text))
		if !errors.Is(err, ErrFormat) {
			t.Fatalf("Handle(%q) error = %v, want ErrFormat", text, err)
		}
		got := f.transport.sentTo(testOperator)
		if len(got) != 1 || got[0].Text != replyFormatError {
			t.Fatalf("Handle(%q) operator messages = %+v", text, got)
		}
		if len(f.transport.sent) != 1 {
			t.Fatalf("Handle(%q) sent %d messages, want 1", text, len(f.transport.sent))
		}
	}
}

func TestOperatorReplySendFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testOperator)
	f.transport.failSendTo[42] = errors.New("Bad Request: chat not found")

	_, err := f.router.Handle(context.Background(), userText(testOperator, "@42 hello"))
	var terr *TransportError
	if !errors.As(err, &terr) || terr.ChatID != 42 {
		t.Fatalf("Handle() error = %v, want TransportError for chat 42", err)
	}
	got := f.transport.sentTo(testOperator)
	if len(got) != 1 || got[0].Text != "❌ 发送失败: Bad Request: chat not found" {
		t.Fatalf("operator messages = %+v", got)
	}
}

func TestOperatorUnaddressedAndMediaIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testOperator)
	ctx := context.Background()

	route, err := f.router.Handle(ctx, userText(testOperator, "hello"))
	if err != nil || route != RouteIgnored {
		t.Fatalf("Handle(unaddressed) = (%q, %v)", route, err)
	}
	photo := userText(testOperator, "")
	photo.Payload.Photo = &inbound.Photo{FileID: "p"}
	route, err = f.router.Handle(ctx, photo)
	if err != nil || route != RouteIgnored {
		t.Fatalf("Handle(photo) = (%q, %v)", route, err)
	}
	if len(f.transport.sent) != 0 || len(f.transport.forwarded) != 0 {
		t.Fatalf("ignored operator messages produced output: %+v", f.transport.sent)
	}
}

func TestNoOperatorNotice(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	ev := userText(555, "")
	ev.Payload.Document = &inbound.Document{FileName: "a.pdf"}

	route, err := f.router.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if route != RouteNoOperatorNotice {
		t.Fatalf("route = %q, want %q", route, RouteNoOperatorNotice)
	}
	got := f.transport.sentTo(555)
	if len(got) != 1 || got[0].Text != noOperatorNotice {
		t.Fatalf("user replies = %+v", got)
	}
	if len(f.transport.forwarded) != 0 {
		t.Fatalf("forwarded without operator: %+v", f.transport.forwarded)
	}
	recs := f.audit.Recent(0)
	if len(recs) != 1 || recs[0].Kind != inbound.KindDocument || recs[0].Summary != "[document: a.pdf]" {
		t.Fatalf("audit = %+v", recs)
	}
}

func TestCommands(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testOperator)
	ctx := context.Background()
	cmd := func(name string) inbound.Event {
		ev := userText(555, "/"+name)
		ev.Type = inbound.EventCommand
		ev.Command = name
		return ev
	}

	if route, err := f.router.Handle(ctx, cmd("start")); err != nil || route != RouteCommandReply {
		t.Fatalf("Handle(/start) = (%q, %v)", route, err)
	}
	if route, err := f.router.Handle(ctx, cmd("id")); err != nil || route != RouteCommandReply {
		t.Fatalf("Handle(/id) = (%q, %v)", route, err)
	}
	if route, err := f.router.Handle(ctx, cmd("menu")); err != nil || route != RouteCommandReply {
		t.Fatalf("Handle(/menu) = (%q, %v)", route, err)
	}
	if route, err := f.router.Handle(ctx, cmd("unknown")); err != nil || route != RouteIgnored {
		t.Fatalf("Handle(/unknown) = (%q, %v)", route, err)
	}

	got := f.transport.sentTo(555)
	if len(got) != 3 {
		t.Fatalf("replies = %d, want 3", len(got))
	}
	if got[0].Text != DefaultWelcome || len(got[0].Opts.Keyboard) != 3 {
		t.Fatalf("/start reply = %+v", got[0])
	}
	if got[1].Opts.ParseMode != ParseModeMarkdown || !strings.Contains(got[1].Text, "📊 消息数量：2") {
		t.Fatalf("/id reply = %+v", got[1])
	}
	if got[2].Text != menuPrompt || len(got[2].Opts.Keyboard) != 3 {
		t.Fatalf("/menu reply = %+v", got[2])
	}

	if p, _ := f.profiles.Get(555); p.MessageCount != 2 {
		t.Fatalf("MessageCount = %d, want 2 (/menu does not touch the profile)", p.MessageCount)
	}
	recs := f.audit.Recent(0)
	if len(recs) != 3 {
		t.Fatalf("audit Len = %d, want 3", len(recs))
	}
	for i, want := range []string{"/start", "/id", "/menu"} {
		if recs[i].Kind != inbound.KindCommand || recs[i].Summary != want {
			t.Fatalf("audit[%d] = %+v, want command %q", i, recs[i], want)
		}
	}
}

func TestCallbacks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	ctx := context.Background()
	cb := func(data string) inbound.Event {
		return inbound.Event{
			ID:     "cb",
			Type:   inbound.EventCallback,
			Sender: inbound.Sender{ID: 555, FirstName: "User"},
			ChatID: 555,
			Callback: &inbound.Callback{
				ID:      "q-" + data,
				Data:    data,
				Message: inbound.MessageRef{ChatID: 555, MessageID: 10},
			},
		}
	}

	for _, tc := range []struct {
		data  string
		route Route
	}{
		{CallbackGetID, RouteCallbackReply},
		{CallbackContactSupport, RouteCallbackReply},
		{CallbackHelp, RouteCallbackReply},
		{"bogus", RouteIgnored},
	} {
		route, err := f.router.Handle(ctx, cb(tc.data))
		if err != nil || route != tc.route {
			t.Fatalf("Handle(%q) = (%q, %v), want %q", tc.data, route, err, tc.route)
		}
	}

	if len(f.transport.answered) != 4 {
		t.Fatalf("answered = %v, want 4", f.transport.answered)
	}
	if len(f.transport.edited) != 3 {
		t.Fatalf("edited = %d, want 3", len(f.transport.edited))
	}
	if f.transport.edited[0].Opts.ParseMode != ParseModeMarkdown {
		t.Fatalf("get_id edit = %+v", f.transport.edited[0])
	}
	if f.transport.edited[1].Text != supportText || f.transport.edited[2].Text != helpText {
		t.Fatalf("edits = %+v", f.transport.edited)
	}
	if p, _ := f.profiles.Get(555); p.MessageCount != 1 {
		t.Fatalf("MessageCount = %d, want 1 (only get_id touches)", p.MessageCount)
	}
	recs := f.audit.Recent(0)
	if len(recs) != 4 || recs[3].Kind != inbound.KindCallback || recs[3].Summary != "bogus" {
		t.Fatalf("audit = %+v", recs)
	}
}

func TestPersistenceFailureStillRelays(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testOperator)
	f.userSnap.FailWith(errors.New("read-only filesystem"))

	route, err := f.router.Handle(context.Background(), userText(555, "hi"))
	if route != RouteRelayToOperator {
		t.Fatalf("route = %q, want %q", route, RouteRelayToOperator)
	}
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Store != storeProfile {
		t.Fatalf("Handle() error = %v, want profile PersistenceError", err)
	}
	if got := f.transport.sentTo(555); len(got) != 1 || got[0].Text != DefaultForwardSuccess {
		t.Fatalf("user replies = %+v", got)
	}
}

func TestActivateIsOneWay(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	ctx := context.Background()
	if f.router.Mode() != ModeNoOperator {
		t.Fatalf("Mode() = %v, want %v", f.router.Mode(), ModeNoOperator)
	}
	if route, _ := f.router.Handle(ctx, userText(555, "before")); route != RouteNoOperatorNotice {
		t.Fatalf("route before = %q", route)
	}

	if f.router.Activate(0, Templates{}) {
		t.Fatalf("Activate(0) = true, want false")
	}
	if !f.router.Activate(testOperator, Templates{ForwardSuccess: "got it"}) {
		t.Fatalf("Activate() = false, want true")
	}
	if f.router.Activate(testOperator+1, Templates{}) {
		t.Fatalf("second Activate() = true, want false")
	}
	if f.router.Mode() != ModeWithOperator || f.router.OperatorID() != testOperator {
		t.Fatalf("Mode() = %v OperatorID() = %d", f.router.Mode(), f.router.OperatorID())
	}

	route, err := f.router.Handle(ctx, userText(555, "after"))
	if err != nil || route != RouteRelayToOperator {
		t.Fatalf("route after = (%q, %v)", route, err)
	}
	got := f.transport.sentTo(555)
	if got[len(got)-1].Text != "got it" {
		t.Fatalf("last user reply = %q, want activated template", got[len(got)-1].Text)
	}
}

func TestConcurrentEventsCountEveryMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testOperator)
	ctx := context.Background()
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.router.Handle(ctx, userText(555, "x")); err != nil {
				t.Errorf("Handle() error = %v", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.router.Activate(testOperator, Templates{})
	}()
	wg.Wait()

	if p, _ := f.profiles.Get(555); p.MessageCount != n {
		t.Fatalf("MessageCount = %d, want %d", p.MessageCount, n)
	}
	if f.audit.Len() != n {
		t.Fatalf("audit Len() = %d, want %d", f.audit.Len(), n)
	}
	snap, _, _ := f.userSnap.Load(ctx)
	if snap["555"].MessageCount != n {
		t.Fatalf("persisted MessageCount = %d, want %d", snap["555"].MessageCount, n)
	}
}
