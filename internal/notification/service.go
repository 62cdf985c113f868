package notification

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/alerting"
	"github.com/bher20/powerdash/internal/metrics"
	"github.com/bher20/powerdash/internal/tariff"
)

// ErrNotConfigured is returned when e-mail is requested without an API key
// or recipient.
var ErrNotConfigured = errors.New("notification: email not configured")

// Config holds the SendGrid settings.
type Config struct {
	APIKey      string
	FromAddress string
	FromName    string
	To          string
}

// sendFunc delivers a message and reports the provider's status code and body.
type sendFunc func(ctx context.Context, msg *mail.SGMailV3) (int, string, error)

// Service sends budget alerts by e-mail.
type Service struct {
	cfg    Config
	send   sendFunc
	logger *zap.Logger
}

func NewService(cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FromName == "" {
		cfg.FromName = "powerdash"
	}
	s := &Service{cfg: cfg, logger: logger}
	s.send = s.sendSendgrid
	return s
}

// Enabled reports whether both an API key and a recipient are set.
func (s *Service) Enabled() bool {
	return s.cfg.APIKey != "" && s.cfg.To != ""
}

// SendEmail sends a plain/HTML message to the configured recipient.
func (s *Service) SendEmail(ctx context.Context, subject, text, htmlBody string) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}
	from := mail.NewEmail(s.cfg.FromName, s.cfg.FromAddress)
	to := mail.NewEmail("", s.cfg.To)
	message := mail.NewSingleEmail(from, subject, to, text, htmlBody)

	code, body, err := s.send(ctx, message)
	if err != nil {
		return fmt.Errorf("notification: send: %w", err)
	}
	if code >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", code, body)
	}
	return nil
}

// SendBudgetAlert e-mails alert. It is a no-op when e-mail is not configured.
func (s *Service) SendBudgetAlert(ctx context.Context, alert alerting.BudgetAlert) error {
	if !s.Enabled() {
		s.logger.Debug("notification: email disabled, skipping budget alert")
		return nil
	}
	subject := fmt.Sprintf("[powerdash] Daily budget exceeded on %s", alert.Schedule)
	text := alert.Summary()
	htmlBody := fmt.Sprintf("<p>%s</p><p>Cost: <b>%s</b><br>Budget: %s<br>Consumption: %s kWh<br>Method: %s</p>",
		html.EscapeString(text),
		tariff.FormatCost(alert.Cost),
		tariff.FormatCost(alert.Budget),
		tariff.FormatCost(alert.KWh),
		html.EscapeString(alert.Method))
	if err := s.SendEmail(ctx, subject, text, htmlBody); err != nil {
		return err
	}
	metrics.BudgetAlertsTotal.WithLabelValues("email").Inc()
	s.logger.Info("notification: sent budget alert", zap.String("to", s.cfg.To), zap.String("schedule", alert.Schedule))
	return nil
}

func (s *Service) sendSendgrid(ctx context.Context, msg *mail.SGMailV3) (int, string, error) {
	client := sendgrid.NewSendClient(s.cfg.APIKey)
	resp, err := client.SendWithContext(ctx, msg)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, resp.Body, nil
}
