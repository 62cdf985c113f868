package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/metrics"
	"github.com/bher20/powerdash/internal/tariff"
)

// AlertConfig holds alerting configuration.
type AlertConfig struct {
	// WebhookURL is a generic webhook endpoint (Slack, Discord, or custom)
	WebhookURL string
	// WebhookType determines the payload format: "slack", "discord", or "generic"
	WebhookType string
	// Enabled controls whether alerts are sent
	Enabled bool
	// Timeout for HTTP requests
	Timeout time.Duration
}

// NewAlertConfig builds a config for url. An empty webhookType is detected
// from the URL host.
func NewAlertConfig(url, webhookType string) AlertConfig {
	cfg := AlertConfig{
		WebhookURL:  url,
		WebhookType: webhookType,
		Enabled:     url != "",
		Timeout:     10 * time.Second,
	}
	if cfg.WebhookType == "" {
		switch {
		case strings.Contains(url, "slack.com"):
			cfg.WebhookType = "slack"
		case strings.Contains(url, "discord.com"):
			cfg.WebhookType = "discord"
		default:
			cfg.WebhookType = "generic"
		}
	}
	return cfg
}

// BudgetAlert reports that today's cost went over the configured budget.
type BudgetAlert struct {
	Schedule  string
	Method    string
	KWh       float64
	Cost      float64
	Budget    float64
	Estimated bool
	Timestamp time.Time
}

// Overspend is how far the cost is above the budget.
func (a BudgetAlert) Overspend() float64 {
	return a.Cost - a.Budget
}

// Summary is a one-line human description, shared by every channel.
func (a BudgetAlert) Summary() string {
	kind := "metered"
	if a.Estimated {
		kind = "estimated"
	}
	return fmt.Sprintf("Today's %s cost on %s is %s, over the daily budget of %s by %s (%s kWh)",
		kind, a.Schedule, tariff.FormatCost(a.Cost), tariff.FormatCost(a.Budget),
		tariff.FormatCost(a.Overspend()), tariff.FormatCost(a.KWh))
}

// Alerter sends alerts to a configured webhook.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
	logger *zap.Logger
}

// NewAlerter creates a new alerter instance.
func NewAlerter(cfg AlertConfig, logger *zap.Logger) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Enabled reports whether a webhook is configured.
func (a *Alerter) Enabled() bool {
	return a.cfg.Enabled
}

// SendBudgetAlert posts alert to the webhook. It is a no-op when alerting is
// disabled.
func (a *Alerter) SendBudgetAlert(ctx context.Context, alert BudgetAlert) error {
	if !a.cfg.Enabled {
		a.logger.Debug("alerting: alerts disabled, skipping")
		return nil
	}

	var (
		payload []byte
		err     error
	)
	switch a.cfg.WebhookType {
	case "slack":
		payload, err = buildSlackPayload(alert)
	case "discord":
		payload, err = buildDiscordPayload(alert)
	default:
		payload, err = buildGenericPayload(alert)
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	metrics.BudgetAlertsTotal.WithLabelValues("webhook").Inc()
	a.logger.Info("alerting: sent budget alert",
		zap.String("schedule", alert.Schedule),
		zap.Float64("cost", alert.Cost),
		zap.Float64("budget", alert.Budget))
	return nil
}

func buildSlackPayload(alert BudgetAlert) ([]byte, error) {
	emoji := ":warning:"
	if alert.Cost >= 2*alert.Budget {
		emoji = ":x:"
	}
	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf("%s Daily budget exceeded: %s", emoji, alert.Schedule),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Cost:*\n%s", tariff.FormatCost(alert.Cost))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Budget:*\n%s", tariff.FormatCost(alert.Budget))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Consumption:*\n%s kWh", tariff.FormatCost(alert.KWh))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Method:*\n%s", alert.Method)},
				},
			},
			{
				"type": "context",
				"elements": []map[string]string{
					{"type": "mrkdwn", "text": alert.Timestamp.Format(time.RFC3339)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func buildDiscordPayload(alert BudgetAlert) ([]byte, error) {
	color := 16776960 // Yellow
	if alert.Cost >= 2*alert.Budget {
		color = 16711680 // Red
	}
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Daily budget exceeded: %s", alert.Schedule),
				"description": alert.Summary(),
				"color":       color,
				"fields": []map[string]interface{}{
					{"name": "Cost", "value": tariff.FormatCost(alert.Cost), "inline": true},
					{"name": "Budget", "value": tariff.FormatCost(alert.Budget), "inline": true},
					{"name": "Method", "value": alert.Method, "inline": true},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}
	return json.Marshal(payload)
}

func buildGenericPayload(alert BudgetAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type": "daily_budget_exceeded",
		"schedule":   alert.Schedule,
		"method":     alert.Method,
		"estimated":  alert.Estimated,
		"kwh":        alert.KWh,
		"cost":       alert.Cost,
		"budget":     alert.Budget,
		"overspend":  alert.Overspend(),
		"message":    alert.Summary(),
		"timestamp":  alert.Timestamp.Format(time.RFC3339),
	}
	return json.Marshal(payload)
}
