// Package alert delivers run-failure notifications. Delivery is
// fire-and-forget: a notification that cannot be sent is logged and
// dropped, never retried, so alerting problems cannot stall syncing.
package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/datamill-io/syncmill/pkg/config"
	"github.com/datamill-io/syncmill/pkg/jsonx"
	"github.com/datamill-io/syncmill/pkg/logger"
)

// Notifier receives run-level failure reports.
type Notifier interface {
	Notify(ctx context.Context, subject, detail string)
}

// Multi fans a notification out to every configured channel.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, subject, detail string) {
	for _, n := range m {
		n.Notify(ctx, subject, detail)
	}
}

// Nop discards notifications. Used when no channel is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) {}

// FromConfig builds the notifier matching the alerting configuration.
func FromConfig(cfg config.AlertingConfig) Notifier {
	var chans Multi
	if cfg.SMTPHost != "" && len(cfg.To) > 0 {
		chans = append(chans, NewMailNotifier(cfg))
	}
	if cfg.WebhookURL != "" {
		chans = append(chans, NewWebhookNotifier(cfg.WebhookURL))
	}
	if len(chans) == 0 {
		return Nop{}
	}
	return chans
}

// MailNotifier sends plain-text failure mail over SMTP.
type MailNotifier struct {
	cfg config.AlertingConfig
}

func NewMailNotifier(cfg config.AlertingConfig) *MailNotifier {
	return &MailNotifier{cfg: cfg}
}

func (m *MailNotifier) Notify(ctx context.Context, subject, detail string) {
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(m.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(detail)
	msg.WriteString("\r\n")

	var auth smtp.Auth
	if m.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPass, m.cfg.SMTPHost)
	}
	if err := smtp.SendMail(addr, auth, m.cfg.From, m.cfg.To, msg.Bytes()); err != nil {
		logger.WithContext(ctx).Error("failure mail not delivered",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// WebhookNotifier posts a JSON payload to a configured endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, subject, detail string) {
	payload, err := jsonx.Marshal(map[string]string{
		"subject": subject,
		"detail":  detail,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		logger.WithContext(ctx).Error("failure webhook not delivered",
			zap.String("subject", subject),
			zap.Error(err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		logger.WithContext(ctx).Error("failure webhook rejected",
			zap.String("subject", subject),
			zap.Int("status", resp.StatusCode))
	}
}
