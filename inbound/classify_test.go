package inbound

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		payload     Payload
		wantKind    Kind
		wantSummary string
	}{
		{"text", Payload{Text: "need help"}, KindText, "need help"},
		{"photo", Payload{Photo: &Photo{FileID: "p"}}, KindPhoto, "[图片]"},
		{"document_named", Payload{Document: &Document{FileName: "invoice.pdf"}}, KindDocument, "[文档: invoice.pdf]"},
		{"document_unnamed", Payload{Document: &Document{}}, KindDocument, "[文档: 未知文件]"},
		{"voice", Payload{Voice: &Media{}}, KindVoice, "[语音消息]"},
		{"video", Payload{Video: &Media{}}, KindVideo, SummaryVideo},
		{"audio", Payload{Audio: &Document{FileName: "a.mp3"}}, KindAudio, SummaryAudio},
		{"sticker", Payload{Sticker: &Sticker{Emoji: "😀"}}, KindSticker, "[贴纸: 😀]"},
		{"sticker_no_emoji", Payload{Sticker: &Sticker{}}, KindSticker, "[贴纸: ]"},
		{"animation", Payload{Animation: &Media{}}, KindAnimation, SummaryAnimation},
		{"empty", Payload{}, KindUnknown, "[未知消息类型]"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			kind, summary := Classify(tc.payload)
			if kind != tc.wantKind || summary != tc.wantSummary {
				t.Fatalf("Classify() = (%q, %q), want (%q, %q)", kind, summary, tc.wantKind, tc.wantSummary)
			}
		})
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	t.Parallel()

	both := Payload{Text: "caption-less text", Photo: &Photo{FileID: "p"}}
	if kind, _ := Classify(both); kind != KindText {
		t.Fatalf("text+photo classified as %q, want text", kind)
	}

	// Telegram sends animations with a document attached as well.
	gif := Payload{Document: &Document{FileName: "cat.gif"}, Animation: &Media{}}
	if kind, summary := Classify(gif); kind != KindDocument || summary != "[文档: cat.gif]" {
		t.Fatalf("document+animation = (%q, %q), want document", kind, summary)
	}

	voiceVideo := Payload{Voice: &Media{}, Video: &Media{}}
	if kind, _ := Classify(voiceVideo); kind != KindVoice {
		t.Fatalf("voice+video classified as %q, want voice", kind)
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{"/start", "start", "", true},
		{"/ID", "id", "", true},
		{"/menu@DockBot", "menu", "", true},
		{"/start  deep-link ", "start", "deep-link", true},
		{"/", "", "", false},
		{"/@bot", "", "", false},
		{"hello", "", "", false},
		{"@123 hi", "", "", false},
	}
	for _, tc := range cases {
		name, args, ok := ParseCommand(tc.in)
		if name != tc.wantName || args != tc.wantArgs || ok != tc.wantOK {
			t.Fatalf("ParseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)", tc.in, name, args, ok, tc.wantName, tc.wantArgs, tc.wantOK)
		}
	}
}

func TestSenderFullName(t *testing.T) {
	t.Parallel()

	if got := (Sender{FirstName: "Ada", LastName: "Lovelace"}).FullName(); got != "Ada Lovelace" {
		t.Fatalf("FullName() = %q", got)
	}
	if got := (Sender{FirstName: "Ada"}).FullName(); got != "Ada" {
		t.Fatalf("FullName() = %q", got)
	}
	if got := (Sender{}).FullName(); got != "" {
		t.Fatalf("FullName() = %q", got)
	}
}
