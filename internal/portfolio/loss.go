package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-portfolio-monitor/internal/types"
	"crypto-portfolio-monitor/lib/helpers"

	log "github.com/sirupsen/logrus"
)

const lossSubject = "Portfolio Alert: Loss Threshold Exceeded"

// SettingsStore holds the portfolio wide loss settings.
type SettingsStore interface {
	GetAlertSettings(ctx context.Context) (*types.AlertSettings, error)
	MarkLossNotified(ctx context.Context, at time.Time) error
}

type Notifier interface {
	Notify(ctx context.Context, target, subject, body string) error
}

// LossMonitor notifies when the whole portfolio drops below the configured loss.
type LossMonitor struct {
	settings SettingsStore
	notifier Notifier
	cooldown time.Duration
	now      func() time.Time
	logger   *log.Entry
}

func NewLossMonitor(settings SettingsStore, notifier Notifier, cooldown time.Duration) *LossMonitor {
	return &LossMonitor{
		settings: settings,
		notifier: notifier,
		cooldown: cooldown,
		now:      time.Now,
		logger:   log.WithField("component", "loss_monitor"),
	}
}

// Check reports whether a notification was sent.
func (m *LossMonitor) Check(ctx context.Context, p *types.Portfolio) (bool, error) {
	if p == nil || p.InitialInvestment <= 0 {
		return false, nil
	}
	settings, err := m.settings.GetAlertSettings(ctx)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, types.NewError(types.KindPersistence, "load alert settings", err)
	}
	if settings.Target == "" || p.ProfitLossPct > settings.LossThreshold {
		return false, nil
	}

	now := m.now()
	if m.cooldown > 0 && settings.LastNotified != nil && now.Sub(*settings.LastNotified) < m.cooldown {
		m.logger.Debug("Loss notification still cooling down")
		return false, nil
	}

	ctx = context.WithoutCancel(ctx)
	if err := m.settings.MarkLossNotified(ctx, now); err != nil {
		return false, types.NewError(types.KindPersistence, "mark loss notified", err)
	}
	if err := m.notifier.Notify(ctx, settings.Target, lossSubject, LossReport(p, settings.LossThreshold)); err != nil {
		m.logger.WithError(err).Warn("❌ Failed to send loss notification")
		return false, nil
	}
	m.logger.Infof("📉 Loss notification sent at %.2f%%", p.ProfitLossPct)
	return true, nil
}

// LossReport renders the loss notification body.
func LossReport(p *types.Portfolio, threshold float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your portfolio has dropped below your loss threshold of %.2f%%.\n\n", threshold)
	fmt.Fprintf(&b, "Current Value: %s\n", helpers.FormatUSD(p.CurrentValue))
	fmt.Fprintf(&b, "Initial Investment: %s\n", helpers.FormatUSD(p.InitialInvestment))
	fmt.Fprintf(&b, "Profit/Loss: %s (%s)\n\n", helpers.FormatUSD(p.ProfitLoss), helpers.FormatPercentage(p.ProfitLossPct))
	b.WriteString("Holdings:\n")
	for _, h := range p.Holdings {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", h.CoinID, helpers.FormatUSD(h.CurrentValue), helpers.FormatPercentage(h.ProfitLossPct))
	}
	return b.String()
}
