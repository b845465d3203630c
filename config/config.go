package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"crypto-portfolio-monitor/internal/types"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var once sync.Once

// DefaultHoldings is the seeded portfolio: dollars invested per coin, keyed by CoinGecko id.
const DefaultHoldings = "ripple=10,the-sandbox=10,lido-dao=10,uniswap=20,solana=20,ethereum=40"

// DefaultPaprikaHoldings is DefaultHoldings with CoinPaprika ids ("<symbol>-<name>").
const DefaultPaprikaHoldings = "xrp-xrp=10,sand-the-sandbox=10,ldo-lido-dao=10,uni-uniswap=20,sol-solana=20,eth-ethereum=40"

var paprikaID = regexp.MustCompile(`^[a-z0-9]+-[a-z0-9-]+$`)

var keys = map[string]string{
	"database_path":      "DATABASE_PATH",
	"price_source":       "PRICE_SOURCE",
	"coingecko_base_url": "COINGECKO_BASE_URL",
	"coingecko_api_key":  "COINGECKO_API_KEY",
	"api_pro_key":        "API_PRO_KEY",
	"calls_per_minute":   "CALLS_PER_MINUTE",
	"calls_per_month":    "CALLS_PER_MONTH",
	"min_call_interval":  "MIN_CALL_INTERVAL",
	"rate_limit_buffer":  "RATE_LIMIT_BUFFER",
	"refresh_interval":   "REFRESH_INTERVAL",
	"error_backoff":      "ERROR_BACKOFF",
	"history_days":       "HISTORY_DAYS",
	"alert_cooldown":     "ALERT_COOLDOWN",
	"holdings":           "HOLDINGS", // ids must match price_source: "ethereum" for coingecko, "eth-ethereum" for coinpaprika
	"smtp_server":        "SMTP_SERVER",
	"smtp_port":          "SMTP_PORT",
	"smtp_username":      "SMTP_USERNAME",
	"smtp_password":      "SMTP_PASSWORD",
	"email_from":         "EMAIL_FROM",
	"telegram_bot_token": "TELEGRAM_BOT_TOKEN",
	"admin_username":     "ADMIN_USERNAME",
	"admin_password":     "ADMIN_PASSWORD",
	"http_port":          "HTTP_PORT",
	"metrics_interval":   "METRICS_INTERVAL",
	"log_level":          "LOG_LEVEL",
	"log_format":         "LOG_FORMAT",
	"log_file":           "LOG_FILE",
	"debug":              "DEBUG",
	"lang":               "LANG",
}

func InitConfig() {
	once.Do(func() {
		// A missing .env is fine; the environment alone is enough.
		_ = godotenv.Load()

		viper.AutomaticEnv()
		for key, env := range keys {
			viper.BindEnv(key, env)
		}

		viper.SetDefault("database_path", "data/portfolio.db")
		viper.SetDefault("price_source", "coingecko")
		viper.SetDefault("calls_per_minute", 30)
		viper.SetDefault("calls_per_month", 10000)
		viper.SetDefault("min_call_interval", "12s")
		viper.SetDefault("rate_limit_buffer", 5)
		viper.SetDefault("refresh_interval", "5m")
		viper.SetDefault("error_backoff", "60s")
		viper.SetDefault("history_days", 30)
		viper.SetDefault("alert_cooldown", "1h")
		viper.SetDefault("holdings", DefaultHoldings)
		viper.SetDefault("smtp_server", "smtp.gmail.com")
		viper.SetDefault("smtp_port", 587)
		viper.SetDefault("http_port", 8000)
		viper.SetDefault("metrics_interval", "5m")
		viper.SetDefault("log_level", "info")
		viper.SetDefault("log_format", "text")
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}

type RateLimit struct {
	CallsPerMinute  int
	CallsPerMonth   int
	MinCallInterval time.Duration
	Buffer          int
}

type SMTP struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether mail can be sent.
func (s SMTP) Enabled() bool { return s.Server != "" && s.Username != "" }

type Logging struct {
	Level  string
	Format string
	File   string
	Debug  bool
}

// Settings is the validated configuration of the monitor.
type Settings struct {
	DatabasePath     string
	PriceSource      string
	CoinGeckoBaseURL string
	CoinGeckoAPIKey  string
	APIProKey        string
	RateLimit        RateLimit
	RefreshInterval  time.Duration
	ErrorBackoff     time.Duration
	HistoryDays      int
	AlertCooldown    time.Duration
	Holdings         []types.Holding
	SMTP             SMTP
	TelegramToken    string
	AdminUsername    string
	AdminPassword    string
	HTTPPort         int
	MetricsInterval  time.Duration
	Logging          Logging
	Lang             string
}

// Load reads and validates the configuration.
func Load() (Settings, error) {
	InitConfig()

	source := strings.ToLower(viper.GetString("price_source"))
	raw := viper.GetString("holdings")
	if source == "coinpaprika" && raw == DefaultHoldings {
		raw = DefaultPaprikaHoldings
	}
	holdings, err := ParseHoldings(raw)
	if err != nil {
		return Settings{}, types.NewError(types.KindConfig, "load config", err)
	}

	s := Settings{
		DatabasePath:     viper.GetString("database_path"),
		PriceSource:      source,
		CoinGeckoBaseURL: viper.GetString("coingecko_base_url"),
		CoinGeckoAPIKey:  viper.GetString("coingecko_api_key"),
		APIProKey:        viper.GetString("api_pro_key"),
		RateLimit: RateLimit{
			CallsPerMinute:  viper.GetInt("calls_per_minute"),
			CallsPerMonth:   viper.GetInt("calls_per_month"),
			MinCallInterval: viper.GetDuration("min_call_interval"),
			Buffer:          viper.GetInt("rate_limit_buffer"),
		},
		RefreshInterval: viper.GetDuration("refresh_interval"),
		ErrorBackoff:    viper.GetDuration("error_backoff"),
		HistoryDays:     viper.GetInt("history_days"),
		AlertCooldown:   viper.GetDuration("alert_cooldown"),
		Holdings:        holdings,
		SMTP: SMTP{
			Server:   viper.GetString("smtp_server"),
			Port:     viper.GetInt("smtp_port"),
			Username: viper.GetString("smtp_username"),
			Password: viper.GetString("smtp_password"),
			From:     viper.GetString("email_from"),
		},
		TelegramToken:   viper.GetString("telegram_bot_token"),
		AdminUsername:   viper.GetString("admin_username"),
		AdminPassword:   viper.GetString("admin_password"),
		HTTPPort:        viper.GetInt("http_port"),
		MetricsInterval: viper.GetDuration("metrics_interval"),
		Logging: Logging{
			Level:  viper.GetString("log_level"),
			Format: viper.GetString("log_format"),
			File:   viper.GetString("log_file"),
			Debug:  viper.GetBool("debug"),
		},
		Lang: strings.ToLower(viper.GetString("lang")),
	}

	if err := s.Validate(); err != nil {
		return Settings{}, types.NewError(types.KindConfig, "load config", err)
	}
	return s, nil
}

// Validate rejects settings the monitor cannot start with.
func (s Settings) Validate() error {
	switch {
	case s.DatabasePath == "":
		return errors.New("database_path is required")
	case s.PriceSource != "coingecko" && s.PriceSource != "coinpaprika":
		return errors.Errorf("price_source must be coingecko or coinpaprika, got %q", s.PriceSource)
	case s.RateLimit.CallsPerMinute <= 0:
		return errors.New("calls_per_minute must be positive")
	case s.RateLimit.Buffer < 0:
		return errors.New("rate_limit_buffer must not be negative")
	case s.RateLimit.MinCallInterval < 0:
		return errors.New("min_call_interval must not be negative")
	case s.RefreshInterval <= 0:
		return errors.New("refresh_interval must be positive")
	case s.ErrorBackoff <= 0:
		return errors.New("error_backoff must be positive")
	case s.HistoryDays <= 0:
		return errors.New("history_days must be positive")
	case s.AlertCooldown < 0:
		return errors.New("alert_cooldown must not be negative")
	case len(s.Holdings) == 0:
		return errors.New("at least one holding is required")
	case s.HTTPPort <= 0 || s.HTTPPort > 65535:
		return errors.Errorf("http_port %d is out of range", s.HTTPPort)
	case (s.AdminUsername == "") != (s.AdminPassword == ""):
		return errors.New("admin_username and admin_password must be set together")
	}
	if s.PriceSource == "coinpaprika" {
		for _, h := range s.Holdings {
			if !paprikaID.MatchString(h.CoinID) {
				return errors.Errorf("holding %q is not a coinpaprika id, expected the form eth-ethereum", h.CoinID)
			}
		}
	}
	return nil
}

// ParseHoldings reads "coin=amount,coin=amount". Duplicate coins are summed.
func ParseHoldings(raw string) ([]types.Holding, error) {
	amounts := map[string]float64{}
	var order []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		coin, amount, ok := strings.Cut(part, "=")
		coin = strings.ToLower(strings.TrimSpace(coin))
		if !ok || coin == "" {
			return nil, errors.Errorf("invalid holding %q, want coin=amount", part)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
		if err != nil || v <= 0 {
			return nil, errors.Errorf("invalid amount for %s: %q", coin, amount)
		}
		if _, seen := amounts[coin]; !seen {
			order = append(order, coin)
		}
		amounts[coin] += v
	}

	holdings := make([]types.Holding, 0, len(order))
	for _, coin := range order {
		holdings = append(holdings, types.Holding{CoinID: coin, Amount: amounts[coin]})
	}
	return holdings, nil
}

// DataDir creates the directory holding the database file.
func DataDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
