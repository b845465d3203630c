package types

import "time"

// AlertType is the direction an alert watches.
type AlertType string

const (
	AlertAbove AlertType = "above"
	AlertBelow AlertType = "below"
)

// Valid reports whether t is one of the two supported directions.
func (t AlertType) Valid() bool {
	return t == AlertAbove || t == AlertBelow
}

type Alert struct {
	ID             int64      `json:"id"`
	CoinID         string     `json:"coin_id"`
	AlertType      AlertType  `json:"alert_type"`
	PriceThreshold float64    `json:"price_threshold"`
	Target         string     `json:"target"` // e.g. "user@example.com", "telegram:12345"
	IsActive       bool       `json:"is_active"`
	LastTriggered  *time.Time `json:"last_triggered,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// PriceQuote is a single price observation returned by a price source.
type PriceQuote struct {
	CoinID   string  `json:"coin_id"`
	PriceUSD float64 `json:"price_usd"`
}

// PricePoint is one sample of a market chart series.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

type PriceHistoryEntry struct {
	ID        int64     `json:"id"`
	CoinID    string    `json:"coin_id"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

type Holding struct {
	ID            int64   `json:"id"`
	PortfolioID   int64   `json:"portfolio_id"`
	CoinID        string  `json:"coin_id"`
	Amount        float64 `json:"amount"` // dollars invested
	Coins         float64 `json:"coins"`
	CurrentPrice  float64 `json:"current_price"`
	CurrentValue  float64 `json:"current_value"`
	ProfitLoss    float64 `json:"profit_loss"`
	ProfitLossPct float64 `json:"profit_loss_pct"`
}

type Portfolio struct {
	ID                int64     `json:"id"`
	InitialInvestment float64   `json:"initial_investment"`
	CurrentValue      float64   `json:"current_value"`
	ProfitLoss        float64   `json:"profit_loss"`
	ProfitLossPct     float64   `json:"profit_loss_pct"`
	Holdings          []Holding `json:"holdings"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AlertSettings configures the portfolio-wide loss notification.
type AlertSettings struct {
	Target        string     `json:"target"`
	LossThreshold float64    `json:"loss_threshold"` // percent, e.g. -10
	LastNotified  *time.Time `json:"last_notified,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
