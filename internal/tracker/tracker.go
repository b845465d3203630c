package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"crypto-portfolio-monitor/internal/alert"
	"crypto-portfolio-monitor/internal/price"
	"crypto-portfolio-monitor/internal/ratelimit"
	"crypto-portfolio-monitor/internal/status"
	"crypto-portfolio-monitor/internal/types"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const (
	DefaultRefreshInterval = 5 * time.Minute
	DefaultErrorBackoff    = time.Minute
	DefaultHistoryDays     = 30
)

// HistoryStore is the price history persistence used by the worker.
type HistoryStore interface {
	HasPriceHistory(ctx context.Context) (bool, error)
	ReplacePriceHistory(ctx context.Context, entries []types.PriceHistoryEntry) error
	AppendPriceHistory(ctx context.Context, entries []types.PriceHistoryEntry) error
}

// Valuer seeds and revalues the portfolio.
type Valuer interface {
	Seed(ctx context.Context, holdings []types.Holding) (*types.Portfolio, error)
	Recalculate(ctx context.Context) (*types.Portfolio, error)
}

type AlertChecker interface {
	CheckAlerts(ctx context.Context, prices map[string]float64) (alert.Result, error)
}

type LossChecker interface {
	Check(ctx context.Context, p *types.Portfolio) (bool, error)
}

// Recorder receives cycle metrics.
type Recorder interface {
	APICall(err error)
	CycleDone(value float64, err error)
}

type nopRecorder struct{}

func (nopRecorder) APICall(error)            {}
func (nopRecorder) CycleDone(float64, error) {}

type Config struct {
	Holdings        []types.Holding
	RefreshInterval time.Duration
	ErrorBackoff    time.Duration
	HistoryDays     int
}

// Deps are the collaborators driven by the worker. Loss and Recorder are optional.
type Deps struct {
	Source    price.Source
	History   HistoryStore
	Portfolio Valuer
	Alerts    AlertChecker
	Loss      LossChecker
	Status    *status.Tracker
	Recorder  Recorder
}

// Worker runs the fetch, persist, revalue and evaluate cycle on a fixed interval.
type Worker struct {
	cfg  Config
	deps Deps

	coins []string
	now   func() time.Time
	sleep ratelimit.Sleeper

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	logger *log.Entry
}

type Option func(*Worker)

func WithClock(now func() time.Time) Option { return func(w *Worker) { w.now = now } }

func WithSleeper(s ratelimit.Sleeper) Option { return func(w *Worker) { w.sleep = s } }

func New(cfg Config, deps Deps, opts ...Option) *Worker {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = DefaultHistoryDays
	}
	if deps.Status == nil {
		deps.Status = status.NewTracker()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	w := &Worker{
		cfg:    cfg,
		deps:   deps,
		now:    time.Now,
		sleep:  ratelimit.Sleep,
		logger: log.WithField("component", "tracker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run initializes the portfolio and then cycles until ctx is cancelled. It returns
// nil on cancellation and an error only for failures that retrying cannot fix.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("🚀 Price tracker started")
	defer w.logger.Info("Price tracker stopped")

	for {
		err := w.Initialize(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		if !types.IsRetryable(err) {
			w.deps.Status.Fail(err)
			return err
		}
		w.deps.Status.Fail(err)
		w.logger.WithError(err).Errorf("Initialization failed, retrying in %s", w.cfg.ErrorBackoff)
		if w.sleep(ctx, w.cfg.ErrorBackoff) != nil {
			return nil
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		delay := w.cfg.RefreshInterval
		if err := w.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.WithError(err).Errorf("Cycle failed, retrying in %s", w.cfg.ErrorBackoff)
			delay = w.cfg.ErrorBackoff
		}
		if w.sleep(ctx, delay) != nil {
			return nil
		}
	}
}

// Initialize seeds the portfolio and loads the price history when none is stored.
func (w *Worker) Initialize(ctx context.Context) error {
	st := w.deps.Status
	st.SetMessage("Seeding portfolio")

	p, err := w.deps.Portfolio.Seed(ctx, w.cfg.Holdings)
	if err != nil {
		return err
	}
	w.coins = w.coins[:0]
	for _, h := range p.Holdings {
		w.coins = append(w.coins, h.CoinID)
	}

	has, err := w.deps.History.HasPriceHistory(ctx)
	if err != nil {
		return types.NewError(types.KindPersistence, "check price history", err)
	}

	if !has {
		st.SetMessage("Loading price history")
		if err := w.loadHistory(ctx); err != nil {
			return err
		}
	}

	if _, err := w.deps.Portfolio.Recalculate(ctx); err != nil {
		return err
	}
	st.MarkReady("Portfolio ready")
	w.logger.Infof("✅ Initialization complete for %d coins", len(w.coins))
	return nil
}

func (w *Worker) loadHistory(ctx context.Context) error {
	var entries []types.PriceHistoryEntry
	for _, coin := range w.coins {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		points, err := w.deps.Source.MarketChart(context.WithoutCancel(ctx), coin, w.cfg.HistoryDays)
		w.deps.Recorder.APICall(err)
		if err != nil {
			w.logger.WithError(err).Warnf("⚠️ Could not load history for %s", coin)
			continue
		}
		for _, pt := range points {
			entries = append(entries, types.PriceHistoryEntry{CoinID: coin, Price: pt.Price, Timestamp: pt.Timestamp})
		}
	}
	if len(entries) == 0 {
		return types.NewError(types.KindTransient, "load price history", errors.New("no history returned for any coin"))
	}
	if err := w.deps.History.ReplacePriceHistory(context.WithoutCancel(ctx), entries); err != nil {
		return types.NewError(types.KindPersistence, "save price history", err)
	}
	w.logger.Infof("Stored %d historical prices", len(entries))
	return nil
}

// RunCycle fetches every holding's price, stores the batch, revalues the portfolio
// and evaluates alerts on the batch.
func (w *Worker) RunCycle(ctx context.Context) (err error) {
	started := w.now()
	logger := w.logger.WithField("cycle", uuid.NewString())
	var value float64
	defer func() {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		w.deps.Recorder.CycleDone(value, err)
		w.deps.Status.RecordCycle(started, err)
	}()

	prices := make(map[string]float64, len(w.coins))
	var entries []types.PriceHistoryEntry
	for _, coin := range w.coins {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		quote, fetchErr := w.fetchQuote(context.WithoutCancel(ctx), coin)
		switch {
		case types.KindOf(fetchErr) == types.KindMissingData:
			logger.Debugf("No price returned for %s", coin)
			continue
		case fetchErr != nil:
			logger.WithError(fetchErr).Warnf("⚠️ Could not fetch price for %s", coin)
			continue
		}
		prices[quote.CoinID] = quote.PriceUSD
		entries = append(entries, types.PriceHistoryEntry{CoinID: quote.CoinID, Price: quote.PriceUSD, Timestamp: w.now().UTC()})
	}

	if err := w.deps.History.AppendPriceHistory(context.WithoutCancel(ctx), entries); err != nil {
		return types.NewError(types.KindPersistence, "append price history", err)
	}

	p, err := w.deps.Portfolio.Recalculate(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	value = p.CurrentValue

	var errs error
	res, alertErr := w.deps.Alerts.CheckAlerts(ctx, prices)
	errs = multierr.Append(errs, alertErr)
	if w.deps.Loss != nil {
		_, lossErr := w.deps.Loss.Check(ctx, p)
		errs = multierr.Append(errs, lossErr)
	}

	logger.WithFields(log.Fields{
		"prices":     len(prices),
		"value":      p.CurrentValue,
		"pl_pct":     p.ProfitLossPct,
		"fired":      res.Fired,
		"suppressed": res.Suppressed,
	}).Infof("🔄 Cycle completed in %s", w.now().Sub(started).Round(time.Millisecond))
	return errs
}

// fetchQuote asks the source for one coin. A response without a usable price is a
// KindMissingData error.
func (w *Worker) fetchQuote(ctx context.Context, coin string) (types.PriceQuote, error) {
	got, err := w.deps.Source.SimplePrice(ctx, []string{coin})
	w.deps.Recorder.APICall(err)
	if err != nil {
		return types.PriceQuote{}, types.NewError(types.KindTransient, "fetch "+coin, err)
	}
	px, ok := got[coin]
	if !ok || px <= 0 {
		return types.PriceQuote{}, types.NewError(types.KindMissingData, "fetch "+coin, nil)
	}
	return types.PriceQuote{CoinID: coin, PriceUSD: px}, nil
}

// Start runs the worker in a goroutine. It is a no-op when already running.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel, w.done, w.err = cancel, done, nil

	go func() {
		defer close(done)
		err := w.Run(ctx)
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
		if err != nil {
			w.logger.WithError(err).Error("Price tracker exited")
		}
	}()
}

// Stop cancels the worker and waits for the in-flight step to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancel, w.done = nil, nil
	return w.err
}

// Done is closed when a started worker exits. It is nil before Start.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}
