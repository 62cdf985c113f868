package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bher20/powerdash/internal/auth"
	"github.com/bher20/powerdash/internal/billing"
	"github.com/bher20/powerdash/internal/storage"
	"github.com/bher20/powerdash/internal/tariff"
	"github.com/bher20/powerdash/internal/telemetry"
)

type testEnv struct {
	mux    *http.ServeMux
	store  *storage.MemoryStorage
	auth   *auth.Service
	failUp atomic.Bool
}

func f(v float64) *float64 { return &v }

type weekFunc func(ctx context.Context) ([]telemetry.WeekPoint, error)

func (w weekFunc) WeekData(ctx context.Context) ([]telemetry.WeekPoint, error) { return w(ctx) }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{store: storage.NewMemory()}

	reg, err := tariff.NewRegistry([]tariff.Schedule{tariff.BDResidential2024(), tariff.Flat(tariff.KeyFlat10, 10)})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	catalog := billing.NewCatalog(reg, env.store, nil)

	src := telemetry.SourceFunc(func(ctx context.Context) (telemetry.Sample, error) {
		if env.failUp.Load() {
			return telemetry.Sample{}, telemetry.ErrUpstream
		}
		return telemetry.Sample{Consumption: f(100)}, nil
	})
	week := weekFunc(func(ctx context.Context) ([]telemetry.WeekPoint, error) {
		if env.failUp.Load() {
			return nil, telemetry.ErrUpstream
		}
		return []telemetry.WeekPoint{{Power: 1000}, {Power: 2500}}, nil
	})

	svc := billing.NewService(billing.Config{
		DefaultSchedule:     tariff.KeyBDResidential2024,
		TodayEstimateHours:  24,
		WeeklyEstimateHours: 8,
	}, catalog, src, billing.WithStorage(env.store), billing.WithWeekSource(week))

	env.auth, err = auth.NewService(env.store)
	if err != nil {
		t.Fatalf("auth.NewService failed: %v", err)
	}
	env.mux = NewMux(Deps{Billing: svc, Storage: env.store, Auth: env.auth})
	return env
}

func (e *testEnv) token(t *testing.T, role string) string {
	t.Helper()
	_, raw, err := e.auth.CreateToken(context.Background(), role+"-test", role, nil)
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	return raw
}

func (e *testEnv) do(method, target, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/livez", "/readyz", "/metrics", "/api/docs/openapi.yaml"} {
		if rec := env.do(http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestCost(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/cost?kwh=100", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp CostResponse
	decode(t, rec, &resp)
	if resp.Schedule != tariff.KeyBDResidential2024 || resp.Cost != 475 || resp.Display != "475.00" || resp.Rounded != 475 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Breakdown) != 2 {
		t.Fatalf("expected two slabs charged, got %+v", resp.Breakdown)
	}

	rec = env.do(http.MethodGet, "/api/v1/cost?kwh=12&schedule=flat-10", "", "")
	decode(t, rec, &resp)
	if resp.Cost != 120 {
		t.Fatalf("expected flat cost 120, got %+v", resp)
	}
}

func TestCost_Errors(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		target string
		want   int
	}{
		{"/api/v1/cost", http.StatusBadRequest},
		{"/api/v1/cost?kwh=abc", http.StatusBadRequest},
		{"/api/v1/cost?kwh=-1", http.StatusBadRequest},
		{"/api/v1/cost?kwh=1&schedule=nope", http.StatusNotFound},
		{"/api/v1/estimate?watts=1000", http.StatusBadRequest},
		{"/api/v1/estimate?watts=-5&hours=8", http.StatusBadRequest},
		{"/api/v1/schedules/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := env.do(http.MethodGet, tc.target, "", "")
		if rec.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.target, tc.want, rec.Code)
		}
		var e errorResponse
		decode(t, rec, &e)
		if e.Error == "" {
			t.Errorf("%s: expected an error message", tc.target)
		}
	}
}

func TestEstimate(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/estimate?watts=1000&hours=8", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp EstimateResponse
	decode(t, rec, &resp)
	if resp.KWh != 8 || resp.Cost != 36 || !resp.Estimated || resp.AssumedHours != 8 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestToday_FallsBackToSnapshot(t *testing.T) {
	env := newTestEnv(t)

	env.failUp.Store(true)
	if rec := env.do(http.MethodGet, "/api/v1/today", "", ""); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 without a snapshot, got %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/v1/today?cached=true", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an empty cache, got %d", rec.Code)
	}

	env.failUp.Store(false)
	rec := env.do(http.MethodGet, "/api/v1/today", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var live billing.TodayCost
	decode(t, rec, &live)
	if live.Method != billing.MethodMetered || live.Cost != 475 || live.Cached {
		t.Fatalf("unexpected live result: %+v", live)
	}

	env.failUp.Store(true)
	rec = env.do(http.MethodGet, "/api/v1/today", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the snapshot to be served, got %d", rec.Code)
	}
	var cached billing.TodayCost
	decode(t, rec, &cached)
	if !cached.Cached || cached.Cost != 475 {
		t.Fatalf("unexpected cached result: %+v", cached)
	}
}

func TestWeekly(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/weekly", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp WeeklyResponse
	decode(t, rec, &resp)
	if len(resp.Days) != 2 || resp.AssumedHours != 8 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Days[0].Cost != 36 || resp.Days[1].Cost != 90 {
		t.Fatalf("unexpected day costs: %+v", resp.Days)
	}

	env.failUp.Store(true)
	if rec := env.do(http.MethodGet, "/api/v1/weekly", "", ""); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestLive_Disabled(t *testing.T) {
	env := newTestEnv(t)
	var resp LiveResponse
	decode(t, env.do(http.MethodGet, "/api/v1/live", "", ""), &resp)
	if resp.Enabled || resp.Connected || resp.Reading != nil {
		t.Fatalf("expected a disabled feed, got %+v", resp)
	}
}

func TestScheduleWrites_RequireRole(t *testing.T) {
	env := newTestEnv(t)
	body := `{"name":"Test","currency":"BDT","slabs":[{"capacity":50,"rate":2},{"rate":4}]}`

	if rec := env.do(http.MethodPut, "/api/v1/schedules/test", "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPut, "/api/v1/schedules/test", "bogus", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPut, "/api/v1/schedules/test", env.token(t, auth.RoleViewer), body); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", rec.Code)
	}

	editor := env.token(t, auth.RoleEditor)
	rec := env.do(http.MethodPut, "/api/v1/schedules/test", editor, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for editor, got %d: %s", rec.Code, rec.Body.String())
	}
	var dto ScheduleDTO
	decode(t, rec, &dto)
	if dto.Key != "test" || dto.Description != "0-50@2, 50+@4" {
		t.Fatalf("unexpected schedule: %+v", dto)
	}

	var cost CostResponse
	decode(t, env.do(http.MethodGet, "/api/v1/cost?kwh=60&schedule=test", "", ""), &cost)
	if cost.Cost != 140 {
		t.Fatalf("expected 140 from the new schedule, got %+v", cost)
	}

	bad := `{"slabs":[{"capacity":50,"rate":2}]}`
	if rec := env.do(http.MethodPut, "/api/v1/schedules/bad", editor, bad); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bounded last slab, got %d", rec.Code)
	}

	if rec := env.do(http.MethodDelete, "/api/v1/schedules/test", editor, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := env.do(http.MethodDelete, "/api/v1/schedules/test", editor, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/v1/schedules/test", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected deleted schedule to be gone, got %d", rec.Code)
	}
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, auth.RoleAdmin)

	if rec := env.do(http.MethodPut, "/api/v1/settings/daily_budget", env.token(t, auth.RoleEditor), `{"value":"10"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for editor, got %d", rec.Code)
	}

	cases := []struct {
		key, body string
		want      int
	}{
		{"daily_budget", `{"value":"-1"}`, http.StatusBadRequest},
		{"daily_budget", `{"value":"lots"}`, http.StatusBadRequest},
		{"daily_budget", `{"value":"250"}`, http.StatusOK},
		{"refresh_interval", `{"value":"not a schedule"}`, http.StatusBadRequest},
		{"refresh_interval", `{"value":"60"}`, http.StatusOK},
		{"colour", `{"value":"blue"}`, http.StatusNotFound},
		{"daily_budget", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := env.do(http.MethodPut, "/api/v1/settings/"+tc.key, admin, tc.body)
		if rec.Code != tc.want {
			t.Errorf("PUT %s %s: expected %d, got %d", tc.key, tc.body, tc.want, rec.Code)
		}
	}

	var got map[string]string
	decode(t, env.do(http.MethodGet, "/api/v1/settings", admin, ""), &got)
	if got[storage.SettingDailyBudget] != "250" || got[storage.SettingRefreshInterval] != "60" {
		t.Fatalf("unexpected settings: %v", got)
	}
}

func TestNoAuth_WritesNotMounted(t *testing.T) {
	env := newTestEnv(t)
	mux := NewMux(Deps{Billing: nil, Storage: env.store})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/schedules/x", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 without auth, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{tariff.ErrUnknownSchedule, http.StatusNotFound},
		{tariff.ErrInvalidSchedule, http.StatusBadRequest},
		{billing.ErrNoUsableReading, http.StatusBadGateway},
		{telemetry.ErrNoSample, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestMetrics_UnknownScheduleLabel(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(http.MethodGet, "/api/v1/cost?schedule=bogus-label-value&kwh=1", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/v1/cost?schedule=flat-10&kwh=1", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := env.do(http.MethodGet, "/metrics", "", "").Body.String()
	if strings.Contains(body, "bogus-label-value") {
		t.Fatalf("raw schedule value leaked into metric labels")
	}
	for _, want := range []string{
		`powerdash_requests_total{path="/api/v1/cost",schedule="unknown"}`,
		`powerdash_requests_total{path="/api/v1/cost",schedule="flat-10"}`,
		`powerdash_request_errors_total{code="404",path="/api/v1/cost",schedule="unknown"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in metrics output", want)
		}
	}
}
