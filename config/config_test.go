package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"crypto-portfolio-monitor/internal/types"
)

func TestParseHoldings(t *testing.T) {
	holdings, err := ParseHoldings(DefaultHoldings)
	if err != nil {
		t.Fatal(err)
	}
	if len(holdings) != 6 || holdings[0].CoinID != "ripple" || holdings[5].CoinID != "ethereum" || holdings[5].Amount != 40 {
		t.Fatalf("unexpected default holdings %+v", holdings)
	}

	holdings, err = ParseHoldings(" Solana = 5 , solana=5,,bitcoin=1.5")
	if err != nil {
		t.Fatal(err)
	}
	if len(holdings) != 2 || holdings[0].Amount != 10 || holdings[1].CoinID != "bitcoin" {
		t.Fatalf("unexpected holdings %+v", holdings)
	}

	for _, raw := range []string{"bitcoin", "=5", "bitcoin=abc", "bitcoin=-1"} {
		if _, err := ParseHoldings(raw); err == nil {
			t.Errorf("expected an error for %q", raw)
		}
	}
}

func validSettings() Settings {
	return Settings{
		DatabasePath:    "data/test.db",
		PriceSource:     "coingecko",
		RateLimit:       RateLimit{CallsPerMinute: 30, CallsPerMonth: 10000, MinCallInterval: 12 * time.Second, Buffer: 5},
		RefreshInterval: 5 * time.Minute,
		ErrorBackoff:    time.Minute,
		HistoryDays:     30,
		AlertCooldown:   time.Hour,
		Holdings:        []types.Holding{{CoinID: "ethereum", Amount: 40}},
		HTTPPort:        8000,
	}
}

func TestValidate(t *testing.T) {
	if err := validSettings().Validate(); err != nil {
		t.Fatalf("expected valid settings: %v", err)
	}

	tests := map[string]func(*Settings){
		"no database":                  func(s *Settings) { s.DatabasePath = "" },
		"unknown source":               func(s *Settings) { s.PriceSource = "binance" },
		"zero quota":                   func(s *Settings) { s.RateLimit.CallsPerMinute = 0 },
		"zero refresh":                 func(s *Settings) { s.RefreshInterval = 0 },
		"no holdings":                  func(s *Settings) { s.Holdings = nil },
		"bad port":                     func(s *Settings) { s.HTTPPort = 70000 },
		"half admin":                   func(s *Settings) { s.AdminUsername = "admin" },
		"negative cooldown":            func(s *Settings) { s.AlertCooldown = -time.Second },
		"coingecko ids on coinpaprika": func(s *Settings) { s.PriceSource = "coinpaprika" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			s := validSettings()
			mutate(&s)
			if err := s.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOLDINGS", "ethereum")
	t.Setenv("CALLS_PER_MINUTE", "20")
	t.Setenv("PRICE_SOURCE", "coingecko")

	s, err := Load()
	if err == nil {
		t.Fatalf("a malformed holdings list must be rejected, got %+v", s)
	}
	if types.KindOf(err) != types.KindConfig {
		t.Fatalf("expected a config error, got %v", err)
	}

	t.Setenv("HOLDINGS", "ethereum=40")
	s, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.RateLimit.CallsPerMinute != 20 || s.RateLimit.MinCallInterval != 12*time.Second {
		t.Fatalf("unexpected rate limit settings %+v", s.RateLimit)
	}
	if s.RefreshInterval != 5*time.Minute || s.ErrorBackoff != time.Minute || s.AlertCooldown != time.Hour {
		t.Fatalf("unexpected intervals %+v", s)
	}
	if len(s.Holdings) != 1 || s.Holdings[0].CoinID != "ethereum" {
		t.Fatalf("unexpected holdings %+v", s.Holdings)
	}
}

func TestCoinPaprikaHoldings(t *testing.T) {
	s := validSettings()
	s.PriceSource = "coinpaprika"
	s.Holdings = []types.Holding{{CoinID: "eth-ethereum", Amount: 40}}
	if err := s.Validate(); err != nil {
		t.Fatalf("expected coinpaprika ids to validate: %v", err)
	}

	t.Setenv("HOLDINGS", "")
	t.Setenv("PRICE_SOURCE", "coinpaprika")
	loaded, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Holdings) != 6 || loaded.Holdings[5].CoinID != "eth-ethereum" {
		t.Fatalf("expected the coinpaprika default holdings, got %+v", loaded.Holdings)
	}

	t.Setenv("HOLDINGS", "ethereum=40")
	if _, err := Load(); err == nil {
		t.Fatal("coingecko ids must be rejected for coinpaprika")
	}
}

func TestDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	if err := DataDir(filepath.Join(dir, "portfolio.db")); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected %s to exist: %v", dir, err)
	}
	if err := DataDir("portfolio.db"); err != nil {
		t.Fatal(err)
	}
}
