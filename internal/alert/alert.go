package alert

import (
	"context"
	"fmt"
	"math"
	"time"

	"crypto-portfolio-monitor/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// DefaultCooldown is how long a fired alert stays quiet while the breach persists.
const DefaultCooldown = time.Hour

// Store is the subset of persistence the evaluator needs.
type Store interface {
	ListActiveAlerts(ctx context.Context) ([]types.Alert, error)
	UpdateAlertTriggered(ctx context.Context, id int64, at time.Time) error
}

// Notifier delivers a notification to a recipient.
type Notifier interface {
	Notify(ctx context.Context, target, subject, body string) error
}

// Recorder receives evaluation outcomes, usually prometheus counters.
type Recorder interface {
	AlertFired(coinID string)
	AlertSuppressed(coinID string)
	NotificationFailed()
}

type nopRecorder struct{}

func (nopRecorder) AlertFired(string)      {}
func (nopRecorder) AlertSuppressed(string) {}
func (nopRecorder) NotificationFailed()    {}

// Result summarizes one CheckAlerts pass.
type Result struct {
	Evaluated  int
	Fired      int
	Suppressed int
	Skipped    int
	Failed     int
}

// Evaluator maps a price snapshot to the alerts that fire.
type Evaluator struct {
	store    Store
	notifier Notifier
	cooldown time.Duration
	now      func() time.Time
	recorder Recorder
	logger   *log.Entry
}

type Option func(*Evaluator)

// WithCooldown sets the quiet period after a trigger. Zero fires on every breaching cycle.
func WithCooldown(d time.Duration) Option { return func(e *Evaluator) { e.cooldown = d } }

func WithClock(now func() time.Time) Option { return func(e *Evaluator) { e.now = now } }

func WithRecorder(r Recorder) Option { return func(e *Evaluator) { e.recorder = r } }

func NewEvaluator(store Store, notifier Notifier, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:    store,
		notifier: notifier,
		cooldown: DefaultCooldown,
		now:      time.Now,
		recorder: nopRecorder{},
		logger:   log.WithField("component", "alert"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckAlerts evaluates every active alert against prices. Missing prices are skipped.
// The returned error aggregates the alerts whose trigger could not be persisted;
// the remaining alerts are still processed.
func (e *Evaluator) CheckAlerts(ctx context.Context, prices map[string]float64) (Result, error) {
	var res Result

	alerts, err := e.store.ListActiveAlerts(ctx)
	if err != nil {
		return res, types.NewError(types.KindPersistence, "list active alerts", err)
	}

	e.logger.Debugf("🔄 Checking %d alerts against %d prices", len(alerts), len(prices))

	var errs error
	for i := range alerts {
		if ctx.Err() != nil {
			return res, multierr.Append(errs, ctx.Err())
		}
		a := &alerts[i]
		if !a.IsActive {
			continue
		}
		res.Evaluated++

		price, ok := prices[a.CoinID]
		if !ok {
			e.logger.WithField("alert_id", a.ID).Debugf("⚠️ No price for %s this cycle", a.CoinID)
			res.Skipped++
			continue
		}
		if !validThreshold(a.PriceThreshold) {
			e.logger.WithField("alert_id", a.ID).Warnf("Skipping alert with invalid threshold %v", a.PriceThreshold)
			res.Skipped++
			continue
		}
		if !Breached(*a, price) {
			continue
		}
		if e.coolingDown(*a) {
			e.logger.WithField("alert_id", a.ID).Debugf("Alert on %s still cooling down", a.CoinID)
			e.recorder.AlertSuppressed(a.CoinID)
			res.Suppressed++
			continue
		}

		if err := e.TriggerAlert(ctx, a, price); err != nil {
			res.Failed++
			errs = multierr.Append(errs, err)
			continue
		}
		res.Fired++
	}

	e.logger.Debugf("✅ Alert check completed: %d fired, %d suppressed", res.Fired, res.Suppressed)
	return res, errs
}

// TriggerAlert stamps the alert, persists the stamp and notifies the target.
// A failed notification is logged and never undoes the stamp.
func (e *Evaluator) TriggerAlert(ctx context.Context, a *types.Alert, price float64) error {
	// The stamp and the notification finish even if shutdown starts meanwhile.
	ctx = context.WithoutCancel(ctx)
	logger := e.logger.WithFields(log.Fields{"alert_id": a.ID, "coin": a.CoinID})

	now := e.now()
	if err := e.store.UpdateAlertTriggered(ctx, a.ID, now); err != nil {
		logger.WithError(err).Error("❌ Failed to record alert trigger")
		return types.NewError(types.KindPersistence, fmt.Sprintf("trigger alert %d", a.ID), err)
	}
	a.LastTriggered = &now
	e.recorder.AlertFired(a.CoinID)

	subject, body := BuildNotification(*a, price)
	if err := e.notifier.Notify(ctx, a.Target, subject, body); err != nil {
		e.recorder.NotificationFailed()
		logger.WithError(errors.Wrap(err, "notify")).Warn("❌ Failed to send alert notification")
		return nil
	}
	logger.Infof("🚨 Alert fired at $%.2f", price)
	return nil
}

// Breached reports whether price crosses the alert threshold. Equality never breaches.
func Breached(a types.Alert, price float64) bool {
	switch a.AlertType {
	case types.AlertAbove:
		return price > a.PriceThreshold
	case types.AlertBelow:
		return price < a.PriceThreshold
	}
	return false
}

// BuildNotification renders the subject and body of a price alert.
func BuildNotification(a types.Alert, price float64) (subject, body string) {
	direction := "below"
	if a.AlertType == types.AlertAbove {
		direction = "above"
	}
	subject = fmt.Sprintf("Price Alert: %s", a.CoinID)
	body = fmt.Sprintf("The price of %s is now $%.2f, %s your threshold of $%.2f",
		a.CoinID, price, direction, a.PriceThreshold)
	return subject, body
}

func (e *Evaluator) coolingDown(a types.Alert) bool {
	if e.cooldown <= 0 || a.LastTriggered == nil {
		return false
	}
	return e.now().Sub(*a.LastTriggered) < e.cooldown
}

func validThreshold(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
