package portfolio

import (
	"context"
	"errors"
	"time"

	"crypto-portfolio-monitor/internal/types"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var hundred = decimal.NewFromInt(100)

// Revalue converts dollar amounts into coin quantities the first time a price is
// known, then recomputes values and profit/loss from prices. Holdings without a
// price keep their previous valuation.
func Revalue(p *types.Portfolio, prices map[string]float64) {
	total := decimal.Zero
	invested := decimal.Zero

	for i := range p.Holdings {
		h := &p.Holdings[i]
		amount := decimal.NewFromFloat(h.Amount)
		invested = invested.Add(amount)

		if price, ok := prices[h.CoinID]; ok && price > 0 {
			px := decimal.NewFromFloat(price)
			if h.Coins == 0 {
				h.Coins = amount.Div(px).InexactFloat64()
			}
			h.CurrentPrice = price
			h.CurrentValue = decimal.NewFromFloat(h.Coins).Mul(px).Round(8).InexactFloat64()
		}

		value := decimal.NewFromFloat(h.CurrentValue)
		h.ProfitLoss = value.Sub(amount).InexactFloat64()
		h.ProfitLossPct = percent(value.Sub(amount), amount)
		total = total.Add(value)
	}

	if p.InitialInvestment == 0 {
		p.InitialInvestment = invested.InexactFloat64()
	}
	initial := decimal.NewFromFloat(p.InitialInvestment)
	p.CurrentValue = total.InexactFloat64()
	p.ProfitLoss = total.Sub(initial).InexactFloat64()
	p.ProfitLossPct = percent(total.Sub(initial), initial)
}

func percent(delta, base decimal.Decimal) float64 {
	if base.IsZero() {
		return 0
	}
	return delta.Div(base).Mul(hundred).Round(4).InexactFloat64()
}

// Store is the persistence used by the portfolio service.
type Store interface {
	GetPortfolio(ctx context.Context) (*types.Portfolio, error)
	CreatePortfolio(ctx context.Context, p *types.Portfolio) error
	SavePortfolio(ctx context.Context, p *types.Portfolio) error
	LatestPrices(ctx context.Context, coinIDs []string) (map[string]types.PriceHistoryEntry, error)
}

// Service keeps the stored portfolio valuation current.
type Service struct {
	store  Store
	now    func() time.Time
	logger *log.Entry
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now, logger: log.WithField("component", "portfolio")}
}

// Seed creates the portfolio from holdings unless one already exists.
func (s *Service) Seed(ctx context.Context, holdings []types.Holding) (*types.Portfolio, error) {
	p, err := s.store.GetPortfolio(ctx)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, types.ErrNoPortfolio) {
		return nil, types.NewError(types.KindPersistence, "load portfolio", err)
	}

	p = &types.Portfolio{Holdings: make([]types.Holding, len(holdings))}
	invested := decimal.Zero
	for i, h := range holdings {
		p.Holdings[i] = types.Holding{CoinID: h.CoinID, Amount: h.Amount}
		invested = invested.Add(decimal.NewFromFloat(h.Amount))
	}
	p.InitialInvestment = invested.InexactFloat64()
	p.UpdatedAt = s.now().UTC()

	if err := s.store.CreatePortfolio(ctx, p); err != nil {
		return nil, types.NewError(types.KindPersistence, "create portfolio", err)
	}
	s.logger.Infof("Seeded portfolio with %d holdings, $%.2f invested", len(p.Holdings), p.InitialInvestment)
	return p, nil
}

// Recalculate revalues the stored portfolio from the latest stored prices.
func (s *Service) Recalculate(ctx context.Context) (*types.Portfolio, error) {
	p, err := s.store.GetPortfolio(ctx)
	if err != nil {
		return nil, types.NewError(types.KindPersistence, "load portfolio", err)
	}
	latest, err := s.store.LatestPrices(ctx, CoinIDs(p))
	if err != nil {
		return nil, types.NewError(types.KindPersistence, "load latest prices", err)
	}
	prices := make(map[string]float64, len(latest))
	for id, e := range latest {
		prices[id] = e.Price
	}
	Revalue(p, prices)
	p.UpdatedAt = s.now().UTC()

	if err := s.store.SavePortfolio(ctx, p); err != nil {
		return nil, types.NewError(types.KindPersistence, "save portfolio", err)
	}
	return p, nil
}

// Current returns a valuation from stored prices without persisting it.
func (s *Service) Current(ctx context.Context) (*types.Portfolio, error) {
	p, err := s.store.GetPortfolio(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestPrices(ctx, CoinIDs(p))
	if err != nil {
		return nil, err
	}
	prices := make(map[string]float64, len(latest))
	for id, e := range latest {
		prices[id] = e.Price
	}
	Revalue(p, prices)
	return p, nil
}

// CoinIDs lists the holdings' coins in holding order.
func CoinIDs(p *types.Portfolio) []string {
	ids := make([]string, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		ids = append(ids, h.CoinID)
	}
	return ids
}
