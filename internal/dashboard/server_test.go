package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crypto-portfolio-monitor/internal/alert"
	"crypto-portfolio-monitor/internal/database"
	"crypto-portfolio-monitor/internal/portfolio"
	"crypto-portfolio-monitor/internal/ratelimit"
	"crypto-portfolio-monitor/internal/status"
	"crypto-portfolio-monitor/internal/types"

	"github.com/prometheus/client_golang/prometheus"
)

type testEnv struct {
	store  *database.Store
	status *status.Tracker
	srv    *httptest.Server
}

func newTestEnv(t *testing.T, admin AdminCredentials) *testEnv {
	t.Helper()
	store, err := database.Open(filepath.Join(t.TempDir(), "dashboard.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	st := status.NewTracker()
	s := New(Config{Admin: admin}, Deps{
		Store:     store,
		Portfolio: portfolio.NewService(store),
		Alerts:    alert.NewManager(store),
		Limiter:   ratelimit.New(),
		Status:    st,
		Gatherer:  prometheus.NewRegistry(),
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{store: store, status: st, srv: srv}
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	svc := portfolio.NewService(e.store)
	if _, err := svc.Seed(ctx, []types.Holding{{CoinID: "ethereum", Amount: 40}}); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	for _, entry := range []types.PriceHistoryEntry{
		{CoinID: "ethereum", Price: 2000, Timestamp: now.Add(-time.Hour)},
		{CoinID: "ethereum", Price: 4000, Timestamp: now.Add(-time.Minute)},
	} {
		if err := e.store.AppendPriceHistory(ctx, []types.PriceHistoryEntry{entry}); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.Recalculate(ctx); err != nil {
			t.Fatal(err)
		}
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, auth ...string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestDashboardInitializing(t *testing.T) {
	env := newTestEnv(t, AdminCredentials{})
	env.status.SetMessage("Loading price history")

	resp := env.do(t, http.MethodGet, "/", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 while initializing, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decode(t, resp, &body)
	if body["state"] != StateInitializing || body["ready"] != false {
		t.Fatalf("unexpected body %v", body)
	}
	if body["message"] != "Loading price history" {
		t.Fatalf("expected the status message, got %v", body["message"])
	}
}

func TestDashboardReady(t *testing.T) {
	env := newTestEnv(t, AdminCredentials{})
	env.seed(t)

	resp := env.do(t, http.MethodGet, "/", nil)
	var body dashboardResponse
	decode(t, resp, &body)
	if body.State != StateReady {
		t.Fatalf("unexpected state %q", body.State)
	}
	if body.Portfolio.CurrentValue != 80 || body.Summary.ProfitLossPct != "+100.00%" {
		t.Fatalf("unexpected valuation %+v / %+v", body.Portfolio, body.Summary)
	}
	if body.Summary.ProfitLoss != "+$40.00" {
		t.Fatalf("unexpected profit summary %q", body.Summary.ProfitLoss)
	}
	if len(body.PriceHistory) != 2 {
		t.Fatalf("expected 2 history points, got %d", len(body.PriceHistory))
	}
}

func TestCurrentPortfolio(t *testing.T) {
	env := newTestEnv(t, AdminCredentials{})
	if resp := env.do(t, http.MethodGet, "/api/portfolio/current", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without a portfolio, got %d", resp.StatusCode)
	}

	env.seed(t)
	var p types.Portfolio
	decode(t, env.do(t, http.MethodGet, "/api/portfolio/current", nil), &p)
	if p.CurrentValue != 80 || p.Holdings[0].Coins != 0.02 {
		t.Fatalf("unexpected portfolio %+v", p)
	}
}

func TestStatusAndRateLimits(t *testing.T) {
	env := newTestEnv(t, AdminCredentials{})
	env.status.MarkReady("Portfolio ready")

	var st status.Status
	decode(t, env.do(t, http.MethodGet, "/status", nil), &st)
	if !st.Ready {
		t.Fatalf("unexpected status %+v", st)
	}

	var rl rateLimitsResponse
	decode(t, env.do(t, http.MethodGet, "/api/rate-limits", nil), &rl)
	if rl.MinuteRemaining != 30 || rl.MonthRemaining != 10000 {
		t.Fatalf("unexpected rate limits %+v", rl)
	}
	if rl.Summary != "30 this minute, 10,000 this month" {
		t.Fatalf("unexpected summary %q", rl.Summary)
	}
}

func TestAlertRoutes(t *testing.T) {
	env := newTestEnv(t, AdminCredentials{})

	resp := env.do(t, http.MethodPost, "/api/alerts", alert.CreateRequest{
		CoinID: "bitcoin", AlertType: types.AlertAbove, PriceThreshold: 40000, Target: "me@example.com",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: got %d", resp.StatusCode)
	}
	var created types.Alert
	decode(t, resp, &created)

	bad := env.do(t, http.MethodPost, "/api/alerts", alert.CreateRequest{CoinID: "bitcoin", AlertType: "sideways", PriceThreshold: 1, Target: "x"})
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid alert, got %d", bad.StatusCode)
	}

	var toggled types.Alert
	decode(t, env.do(t, http.MethodPost, fmt.Sprintf("/api/alerts/%d/toggle", created.ID), nil), &toggled)
	if toggled.IsActive {
		t.Fatal("expected the alert to be deactivated")
	}

	if resp := env.do(t, http.MethodPut, fmt.Sprintf("/api/alerts/%d", created.ID), map[string]string{}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without is_active, got %d", resp.StatusCode)
	}
	var reactivated types.Alert
	decode(t, env.do(t, http.MethodPut, fmt.Sprintf("/api/alerts/%d", created.ID), map[string]bool{"is_active": true}), &reactivated)
	if !reactivated.IsActive {
		t.Fatal("expected the alert to be active again")
	}
	var fetched types.Alert
	decode(t, env.do(t, http.MethodGet, fmt.Sprintf("/api/alerts/%d", created.ID), nil), &fetched)
	if fetched.ID != created.ID || !fetched.IsActive || fetched.CoinID != "bitcoin" {
		t.Fatalf("unexpected alert %+v", fetched)
	}
	if resp := env.do(t, http.MethodPut, "/api/alerts/999", map[string]bool{"is_active": false}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("set active on a missing alert: got %d", resp.StatusCode)
	}

	var listed []types.Alert
	decode(t, env.do(t, http.MethodGet, "/api/alerts", nil), &listed)
	if len(listed) != 1 {
		t.Fatalf("expected one alert, got %+v", listed)
	}

	if resp := env.do(t, http.MethodDelete, fmt.Sprintf("/api/alerts/%d", created.ID), nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodDelete, fmt.Sprintf("/api/alerts/%d", created.ID), nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/alerts/%d", created.ID), nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/alerts/abc/toggle", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid id: got %d", resp.StatusCode)
	}
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t, AdminCredentials{Username: "admin", Password: "secret"})
	req := alert.CreateRequest{CoinID: "bitcoin", AlertType: types.AlertBelow, PriceThreshold: 30000, Target: "me@example.com"}

	resp := env.do(t, http.MethodPost, "/api/alerts", req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected a basic auth challenge")
	}
	if resp := env.do(t, http.MethodPost, "/api/alerts", req, "admin", "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a wrong password, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/alerts", req, "admin", "secret"); resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 with credentials, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/api/alerts", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("listing stays public, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/admin", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected the admin view to be guarded, got %d", resp.StatusCode)
	}
}

func TestAlertSettingsAndAdmin(t *testing.T) {
	env := newTestEnv(t, AdminCredentials{})
	env.seed(t)

	if resp := env.do(t, http.MethodPut, "/api/alert-settings", settingsRequest{Target: " "}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without a target, got %d", resp.StatusCode)
	}
	resp := env.do(t, http.MethodPut, "/api/alert-settings", settingsRequest{Target: "me@example.com", LossThreshold: -15})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save settings: got %d", resp.StatusCode)
	}

	var admin adminResponse
	decode(t, env.do(t, http.MethodGet, "/admin", nil), &admin)
	if admin.Settings == nil || admin.Settings.LossThreshold != -15 {
		t.Fatalf("unexpected settings %+v", admin.Settings)
	}
	if len(admin.AvailableCoins) != 1 || admin.AvailableCoins[0] != "ethereum" {
		t.Fatalf("unexpected coins %v", admin.AvailableCoins)
	}
}

func TestChartAndHealth(t *testing.T) {
	env := newTestEnv(t, AdminCredentials{})

	if resp := env.do(t, http.MethodGet, "/chart/ethereum", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without history, got %d", resp.StatusCode)
	}
	env.seed(t)
	resp := env.do(t, http.MethodGet, "/chart/ethereum", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected chart response %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	if resp := env.do(t, http.MethodGet, "/health", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("health: got %d", resp.StatusCode)
	}
	metrics := env.do(t, http.MethodGet, "/metrics", nil)
	if metrics.StatusCode != http.StatusOK {
		t.Fatalf("metrics: got %d", metrics.StatusCode)
	}
	if ct := metrics.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected metrics content type %q", ct)
	}
}
