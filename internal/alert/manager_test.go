package alert

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"crypto-portfolio-monitor/internal/database"
	"crypto-portfolio-monitor/internal/types"
)

func openStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.Open(filepath.Join(t.TempDir(), "alerts.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestManagerValidation(t *testing.T) {
	m := NewManager(openStore(t))
	valid := CreateRequest{CoinID: "bitcoin", AlertType: types.AlertAbove, PriceThreshold: 1, Target: "me@example.com"}

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
		want   error
	}{
		{"missing coin", func(r *CreateRequest) { r.CoinID = "  " }, ErrInvalidCoin},
		{"unknown type", func(r *CreateRequest) { r.AlertType = "sideways" }, ErrInvalidAlertType},
		{"zero threshold", func(r *CreateRequest) { r.PriceThreshold = 0 }, ErrInvalidThreshold},
		{"nan threshold", func(r *CreateRequest) { r.PriceThreshold = math.NaN() }, ErrInvalidThreshold},
		{"inf threshold", func(r *CreateRequest) { r.PriceThreshold = math.Inf(1) }, ErrInvalidThreshold},
		{"missing target", func(r *CreateRequest) { r.Target = "" }, ErrInvalidTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			if _, err := m.Create(context.Background(), req); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestManagerRoundTrip(t *testing.T) {
	store := openStore(t)
	m := NewManager(store)
	ctx := context.Background()

	a, err := m.Create(ctx, CreateRequest{CoinID: "Bitcoin", AlertType: "ABOVE", PriceThreshold: 40000, Target: "me@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.CoinID != "bitcoin" || a.AlertType != types.AlertAbove || !a.IsActive || a.LastTriggered != nil {
		t.Fatalf("unexpected alert: %+v", a)
	}

	active, err := store.ListActiveAlerts(ctx)
	if err != nil || len(active) != 1 || active[0].ID != a.ID {
		t.Fatalf("expected the new alert in the active set, got %+v (%v)", active, err)
	}

	toggled, err := m.Toggle(ctx, a.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if toggled.IsActive {
		t.Fatal("expected toggle to deactivate the alert")
	}
	if active, _ = store.ListActiveAlerts(ctx); len(active) != 0 {
		t.Fatalf("expected the toggled alert to leave the active set, got %+v", active)
	}
	if all, _ := m.List(ctx); len(all) != 1 {
		t.Fatalf("toggling must not delete the alert, got %+v", all)
	}

	if err := m.SetActive(ctx, a.ID, true); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := m.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if all, _ := m.List(ctx); len(all) != 0 {
		t.Fatalf("expected no alerts after delete, got %+v", all)
	}
	if _, err := m.Toggle(ctx, a.ID); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEvaluatorWithDatabase(t *testing.T) {
	store := openStore(t)
	m := NewManager(store)
	ctx := context.Background()

	a, err := m.Create(ctx, CreateRequest{CoinID: "bitcoin", AlertType: types.AlertAbove, PriceThreshold: 40000, Target: "me@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	e := NewEvaluator(store, &fakeNotifier{})
	if _, err := e.CheckAlerts(ctx, map[string]float64{"bitcoin": 50000}); err != nil {
		t.Fatal(err)
	}
	got, err := m.Get(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastTriggered == nil || !got.IsActive {
		t.Fatalf("expected the alert to stay active with a trigger stamp: %+v", got)
	}
}
