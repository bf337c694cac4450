package notification

import (
	"context"
	"log"
	"net/http"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts through the Telegram Bot API sendMessage
// method, formatted as MarkdownV2.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiURL   string
	client   *http.Client
}

func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiURL:   telegramAPI,
		client:   newHTTPClient(),
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	var b strings.Builder
	b.WriteString(alertIcon(alert))
	b.WriteString(" *")
	b.WriteString(escapeMarkdown(alert.Title))
	b.WriteString("*\n\n")
	b.WriteString(escapeMarkdown(alert.Message))
	if alert.ID != "" {
		// ids are uuids: nothing to escape inside a code span
		b.WriteString("\n\n`" + alert.ID + "`")
	}

	url := t.apiURL + "/bot" + t.botToken + "/sendMessage"
	err := postJSON(ctx, t.client, "telegram", url, map[string]string{
		"chat_id":    t.chatID,
		"text":       b.String(),
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return err
	}
	log.Printf("[telegram] delivered %s", alert.ID)
	return nil
}

func alertIcon(a Alert) string {
	switch {
	case a.Level == AlertCritical:
		return "🚨"
	case a.Level == AlertWarning:
		return "⚠️"
	case a.Fields["direction"] == "SHORT":
		return "📉"
	}
	return "📈"
}

var markdownEscaper = func() *strings.Replacer {
	var pairs []string
	for _, c := range `_*[]()~` + "`" + `>#+-=|{}.!` {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return strings.NewReplacer(pairs...)
}()

// escapeMarkdown escapes the MarkdownV2 reserved characters.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
