package relay

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quailyquaily/telegramdock/inbound"
	"github.com/quailyquaily/telegramdock/profile"
)

const (
	CallbackGetID          = "get_id"
	CallbackContactSupport = "contact_support"
	CallbackHelp           = "help"
)

const (
	DefaultWelcome = `🤖 欢迎使用TelegramDock智能客服系统！我是您的专属AI助手，随时为您提供全方位服务支持。

• 🌟 **核心服务功能**：
• 📊 实时查询用户账户信息与状态
• 💬 智能转接专业客服团队
• 🛠️ 提供系统基础服务与技术支持
• 📋 处理常见问题与业务咨询
• 🔍 快速检索相关帮助文档

• 🚀 **快速开始**：
使用下方智能菜单导航或直接输入相关命令，我将立即为您提供精准的个性化服务。无论是技术问题、还是业务咨询，我都能为您提供专业高效的解决方案！

💡 提示：您可以随时输入关键词或描述问题，我会智能识别并提供最佳服务路径。`
	DefaultForwardSuccess = "📨 您的消息已成功转发给客服人员，我们会尽快回复您！"
	DefaultForwardFailed  = "❌ 消息转发失败，请稍后重试或联系技术支持。"
)

const (
	menuPrompt = "📋 请选择您需要的服务："

	supportText = `📞 联系客服

请直接发送您的问题或需求，我们的客服人员会尽快回复您。

您可以发送：
• 文字消息
• 图片
• 文档
• 语音消息

我们会在收到消息后第一时间处理。`

	helpText = `ℹ️ 使用帮助

可用命令：
/start - 显示主菜单
/id - 查看您的用户信息
/menu - 显示菜单

功能说明：
• 发送任何消息都会转发给客服人员
• 客服人员会直接回复您的消息
• 支持发送文字、图片、文档等多种格式

如有问题，请随时联系我们！`

	noOperatorNotice = "📨 您的消息已收到！\n\n" +
		"⚠️ 系统提示：管理员联系方式尚未配置，" +
		"请联系系统管理员完成配置后重新发送消息。\n\n" +
		"感谢您的理解！"

	replyFormatError = "❌ 回复格式错误，请使用: @用户ID 消息内容"

	noUsername = "未设置用户名"
	unknown    = "未知"

	headerTimeLayout   = "2006-01-02 15:04:05"
	lastSeenTimeLayout = "2006-01-02T15:04:05"
)

// Templates are the configurable user-facing texts. Empty fields fall
// back to the defaults.
type Templates struct {
	Welcome        string
	ForwardSuccess string
	ForwardFailed  string
}

func DefaultTemplates() Templates {
	return Templates{
		Welcome:        DefaultWelcome,
		ForwardSuccess: DefaultForwardSuccess,
		ForwardFailed:  DefaultForwardFailed,
	}
}

func (t Templates) withDefaults() Templates {
	def := DefaultTemplates()
	if strings.TrimSpace(t.Welcome) == "" {
		t.Welcome = def.Welcome
	}
	if strings.TrimSpace(t.ForwardSuccess) == "" {
		t.ForwardSuccess = def.ForwardSuccess
	}
	if strings.TrimSpace(t.ForwardFailed) == "" {
		t.ForwardFailed = def.ForwardFailed
	}
	return t
}

// MenuKeyboard is attached to /start and /menu replies.
func MenuKeyboard() Keyboard {
	return Keyboard{
		{{Text: "🆔 查看我的信息", Data: CallbackGetID}},
		{{Text: "📞 联系客服", Data: CallbackContactSupport}},
		{{Text: "ℹ️ 帮助", Data: CallbackHelp}},
	}
}

// FormatHeader is the text sent to the operator ahead of a forwarded user
// message. sentAt is rendered in UTC.
func FormatHeader(sender inbound.Sender, sentAt time.Time) string {
	username := sender.Username
	if username == "" {
		username = noUsername
	}
	var b strings.Builder
	b.WriteString("📨 收到用户消息\n\n")
	fmt.Fprintf(&b, "👤 用户：@%s\n", username)
	fmt.Fprintf(&b, "🆔 ID：%d\n", sender.ID)
	fmt.Fprintf(&b, "📝 姓名：%s\n", sender.FullName())
	fmt.Fprintf(&b, "⏰ 时间：%s\n\n", sentAt.UTC().Format(headerTimeLayout))
	b.WriteString("💬 消息内容：")
	return b.String()
}

// FormatProfile renders a profile for /id and the get_id button. The
// result uses Markdown parse mode.
func FormatProfile(sender inbound.Sender, p profile.Profile) string {
	first := strings.TrimSpace(sender.FirstName)
	if first == "" {
		first = unknown
	}
	name := strings.TrimSpace(first + " " + strings.TrimSpace(sender.LastName))
	lang := sender.LanguageCode
	if lang == "" {
		lang = unknown
	}
	lastSeen := unknown
	if !p.LastSeen.IsZero() {
		lastSeen = p.LastSeen.Format(lastSeenTimeLayout)
	}

	var b strings.Builder
	b.WriteString("👤 您的用户信息：\n\n")
	fmt.Fprintf(&b, "🏷️ 用户名：%s\n", escapeMarkdown(name))
	fmt.Fprintf(&b, "🆔 用户ID：`%d`\n", sender.ID)
	fmt.Fprintf(&b, "🌐 语言：%s\n", escapeMarkdown(lang))
	fmt.Fprintf(&b, "📊 消息数量：%d\n", p.MessageCount)
	fmt.Fprintf(&b, "⏰ 最后活跃：%s", lastSeen)
	return b.String()
}

func formatOperatorReply(body string) string {
	return "📨 客服回复：\n\n" + body
}

func formatReplyConfirmed(userID int64) string {
	return "✅ 已回复用户 " + strconv.FormatInt(userID, 10)
}

func formatReplySendFailed(err error) string {
	return "❌ 发送失败: " + err.Error()
}

var markdownEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"`", "\\`",
	"[", `\[`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
