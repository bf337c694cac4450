package notification

import (
	"context"
	"log"
	"net/http"
	"time"
)

// webhookPayload is the JSON body posted for every alert.
type webhookPayload struct {
	ID      string            `json:"id"`
	Level   AlertLevel        `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	SentAt  string            `json:"ts"`
}

// WebhookNotifier posts alerts as JSON to a fixed URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: newHTTPClient()}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	err := postJSON(ctx, w.client, "webhook", w.url, webhookPayload{
		ID:      alert.ID,
		Level:   alert.Level,
		Title:   alert.Title,
		Message: alert.Message,
		Fields:  alert.Fields,
		SentAt:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	log.Printf("[webhook] delivered %s", alert.ID)
	return nil
}
