// Package notification delivers trade-signal alerts to external channels
// (log, generic webhook, Telegram).
package notification

import (
	"context"
	"errors"
	"log"
)

// AlertLevel is the alert severity.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one outgoing notification.
type Alert struct {
	ID      string            `json:"id"` // dedupe key, the signal id
	Level   AlertLevel        `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Notifier delivers one alert to a backend.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the process log only.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	log.Printf("[notify] %s %s | %s | id=%s", alert.Level, alert.Title, alert.Message, alert.ID)
	return nil
}

// Multi sends every alert to all backends and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
