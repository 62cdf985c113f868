package alerting

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func sampleAlert() BudgetAlert {
	return BudgetAlert{
		Schedule:  "bd-residential-2024",
		Method:    "metered",
		KWh:       12,
		Cost:      54,
		Budget:    40,
		Timestamp: time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC),
	}
}

func TestNewAlertConfig_DetectsType(t *testing.T) {
	cases := map[string]string{
		"https://hooks.slack.com/services/x":   "slack",
		"https://discord.com/api/webhooks/1/y": "discord",
		"https://example.org/hook":             "generic",
	}
	for url, want := range cases {
		if got := NewAlertConfig(url, "").WebhookType; got != want {
			t.Errorf("NewAlertConfig(%q) type = %q, want %q", url, got, want)
		}
	}
	if NewAlertConfig("", "").Enabled {
		t.Fatalf("expected empty url to disable alerting")
	}
}

func TestSendBudgetAlert_Generic(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := NewAlerter(NewAlertConfig(srv.URL, ""), nil)
	if err := a.SendBudgetAlert(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("SendBudgetAlert failed: %v", err)
	}
	if got["alert_type"] != "daily_budget_exceeded" || got["overspend"].(float64) != 14 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if !strings.Contains(got["message"].(string), "54.00") {
		t.Fatalf("expected formatted cost in message: %v", got["message"])
	}
}

func TestSendBudgetAlert_Slack(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}))
	defer srv.Close()

	a := NewAlerter(NewAlertConfig(srv.URL, "slack"), nil)
	if err := a.SendBudgetAlert(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("SendBudgetAlert failed: %v", err)
	}
	if !strings.Contains(body, `"blocks"`) || !strings.Contains(body, "Daily budget exceeded") {
		t.Fatalf("unexpected slack payload: %s", body)
	}
}

func TestSendBudgetAlert_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewAlerter(NewAlertConfig(srv.URL, ""), nil)
	if err := a.SendBudgetAlert(context.Background(), sampleAlert()); err == nil {
		t.Fatalf("expected error for 502 response")
	}
}

func TestSendBudgetAlert_Disabled(t *testing.T) {
	a := NewAlerter(NewAlertConfig("", ""), nil)
	if err := a.SendBudgetAlert(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("expected disabled alerter to be a no-op, got %v", err)
	}
}
