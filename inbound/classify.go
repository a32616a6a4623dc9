package inbound

import "strings"

// Kind is the audit classification of an inbound event.
type Kind string

const (
	KindText      Kind = "text"
	KindPhoto     Kind = "photo"
	KindDocument  Kind = "document"
	KindVoice     Kind = "voice"
	KindVideo     Kind = "video"
	KindAudio     Kind = "audio"
	KindSticker   Kind = "sticker"
	KindAnimation Kind = "animation"
	KindCommand   Kind = "command"
	KindCallback  Kind = "callback"
	KindUnknown   Kind = "unknown"
)

// Placeholder summaries for non-text payloads, as stored in messages.json.
const (
	SummaryPhoto     = "[图片]"
	SummaryVoice     = "[语音消息]"
	SummaryVideo     = "[视频]"
	SummaryAudio     = "[音频]"
	SummaryAnimation = "[动画]"
	SummaryUnknown   = "[未知消息类型]"
	unknownFileName  = "未知文件"
)

// Classify returns the kind and a short summary of p. Variants are tested
// in a fixed order (text, photo, document, voice, video, audio, sticker,
// animation) and the first populated one wins.
func Classify(p Payload) (Kind, string) {
	switch {
	case p.Text != "":
		return KindText, p.Text
	case p.Photo != nil:
		return KindPhoto, SummaryPhoto
	case p.Document != nil:
		return KindDocument, "[文档: " + fileNameOr(p.Document.FileName) + "]"
	case p.Voice != nil:
		return KindVoice, SummaryVoice
	case p.Video != nil:
		return KindVideo, SummaryVideo
	case p.Audio != nil:
		return KindAudio, SummaryAudio
	case p.Sticker != nil:
		return KindSticker, "[贴纸: " + p.Sticker.Emoji + "]"
	case p.Animation != nil:
		return KindAnimation, SummaryAnimation
	default:
		return KindUnknown, SummaryUnknown
	}
}

func fileNameOr(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return unknownFileName
}
