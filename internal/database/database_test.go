package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"crypto-portfolio-monitor/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAlertLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	alert := &types.Alert{
		CoinID:         "bitcoin",
		AlertType:      types.AlertAbove,
		PriceThreshold: 40000,
		Target:         "me@example.com",
		IsActive:       true,
		CreatedAt:      created,
	}
	if err := store.InsertAlert(ctx, alert); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if alert.ID == 0 {
		t.Fatal("expected id to be assigned")
	}

	active, err := store.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != alert.ID || active[0].LastTriggered != nil {
		t.Fatalf("unexpected active alerts: %+v", active)
	}
	if !active[0].CreatedAt.Equal(created) {
		t.Fatalf("created_at round trip: got %s", active[0].CreatedAt)
	}

	if err := store.SetAlertActive(ctx, alert.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if active, _ = store.ListActiveAlerts(ctx); len(active) != 0 {
		t.Fatalf("expected no active alerts, got %+v", active)
	}
	all, err := store.ListAlerts(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected deactivated alert to remain, got %+v (%v)", all, err)
	}

	fired := created.Add(time.Hour + 123*time.Nanosecond)
	if err := store.UpdateAlertTriggered(ctx, alert.ID, fired); err != nil {
		t.Fatalf("update triggered: %v", err)
	}
	got, err := store.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastTriggered == nil || !got.LastTriggered.Equal(fired) {
		t.Fatalf("unexpected last_triggered %v", got.LastTriggered)
	}

	if err := store.DeleteAlert(ctx, alert.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetAlert(ctx, alert.ID); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := store.DeleteAlert(ctx, alert.ID); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected not found deleting twice, got %v", err)
	}
	if err := store.UpdateAlertTriggered(ctx, 999, fired); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected not found for unknown alert, got %v", err)
	}
}

func TestPriceHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	has, err := store.HasPriceHistory(ctx)
	if err != nil || has {
		t.Fatalf("expected empty history, got %v (%v)", has, err)
	}
	if _, err := store.LatestPrice(ctx, "ethereum"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	err = store.AppendPriceHistory(ctx, []types.PriceHistoryEntry{
		{CoinID: "ethereum", Price: 2000, Timestamp: t0},
		{CoinID: "solana", Price: 100, Timestamp: t0},
		{CoinID: "ethereum", Price: 2100, Timestamp: t0.Add(5 * time.Minute)},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	latest, err := store.LatestPrice(ctx, "ethereum")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Price != 2100 {
		t.Fatalf("expected latest price 2100, got %v", latest.Price)
	}

	prices, err := store.LatestPrices(ctx, []string{"ethereum", "solana", "ripple"})
	if err != nil {
		t.Fatalf("latest prices: %v", err)
	}
	if len(prices) != 2 || prices["solana"].Price != 100 {
		t.Fatalf("unexpected latest prices: %+v", prices)
	}

	series, err := store.PriceHistory(ctx, "ethereum", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(series) != 1 || series[0].Price != 2100 {
		t.Fatalf("unexpected series: %+v", series)
	}

	err = store.ReplacePriceHistory(ctx, []types.PriceHistoryEntry{
		{CoinID: "ripple", Price: 0.5, Timestamp: t0},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, err := store.LatestPrice(ctx, "ethereum"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected replaced history to drop ethereum, got %v", err)
	}
}

func TestAppendPriceHistoryRollsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.DB.Exec(`CREATE TRIGGER reject_doge BEFORE INSERT ON price_history
		WHEN NEW.coin_id = 'dogecoin' BEGIN SELECT RAISE(ABORT, 'rejected'); END;`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	err := store.AppendPriceHistory(ctx, []types.PriceHistoryEntry{
		{CoinID: "ethereum", Price: 2000, Timestamp: time.Now()},
		{CoinID: "dogecoin", Price: 0.1, Timestamp: time.Now()},
	})
	if err == nil {
		t.Fatal("expected append to fail")
	}
	has, err := store.HasPriceHistory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Fatal("expected the partial batch to be rolled back")
	}
}

func TestPortfolioRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.GetPortfolio(ctx); !errors.Is(err, types.ErrNoPortfolio) {
		t.Fatalf("expected no portfolio, got %v", err)
	}

	p := &types.Portfolio{
		InitialInvestment: 60,
		Holdings: []types.Holding{
			{CoinID: "ethereum", Amount: 40},
			{CoinID: "solana", Amount: 20},
		},
	}
	if err := store.CreatePortfolio(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == 0 || p.Holdings[1].ID == 0 || p.Holdings[1].PortfolioID != p.ID {
		t.Fatalf("expected ids to be assigned: %+v", p)
	}

	p.CurrentValue = 80
	p.UpdatedAt = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p.Holdings[0].Coins = 0.02
	p.Holdings[0].CurrentPrice = 2000
	p.Holdings[0].CurrentValue = 40
	if err := store.SavePortfolio(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetPortfolio(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentValue != 80 || len(got.Holdings) != 2 {
		t.Fatalf("unexpected portfolio: %+v", got)
	}
	if got.Holdings[0].CoinID != "ethereum" || got.Holdings[0].Coins != 0.02 {
		t.Fatalf("unexpected first holding: %+v", got.Holdings[0])
	}
}

func TestAlertSettings(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.GetAlertSettings(ctx); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.MarkLossNotified(ctx, time.Now()); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected not found marking missing settings, got %v", err)
	}

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := store.SaveAlertSettings(ctx, types.AlertSettings{Target: "a@example.com", LossThreshold: -10, UpdatedAt: now}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.MarkLossNotified(ctx, now); err != nil {
		t.Fatalf("mark: %v", err)
	}
	got, err := store.GetAlertSettings(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LossThreshold != -10 || got.LastNotified == nil {
		t.Fatalf("unexpected settings: %+v", got)
	}

	if err := store.SaveAlertSettings(ctx, types.AlertSettings{Target: "b@example.com", LossThreshold: -20, UpdatedAt: now}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = store.GetAlertSettings(ctx)
	if got.Target != "b@example.com" || got.LastNotified != nil {
		t.Fatalf("expected update to replace target and reset last_notified: %+v", got)
	}
}

func TestMetrics(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if v, err := store.GetMetric(ctx, "cycles_total"); err != nil || v != 0 {
		t.Fatalf("expected default 0, got %v (%v)", v, err)
	}
	if err := store.SaveMetric(ctx, "cycles_total", "", "", 12); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveMetric(ctx, "cycles_total", "", "", 13); err != nil {
		t.Fatal(err)
	}
	if v, _ := store.GetMetric(ctx, "cycles_total"); v != 13 {
		t.Fatalf("expected replaced value 13, got %v", v)
	}

	if err := store.SaveMetric(ctx, "api_calls_total", "outcome", "ok", 7); err != nil {
		t.Fatal(err)
	}
	labeled, err := store.GetMetricsWithLabels(ctx, "api_calls_total")
	if err != nil {
		t.Fatal(err)
	}
	if labeled["outcome"]["ok"] != 7 {
		t.Fatalf("unexpected labeled metrics: %v", labeled)
	}
}
