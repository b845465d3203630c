package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

const (
	namespace = "crypto"
	subsystem = "monitor"
)

// Metrics holds the monitor's prometheus collectors.
type Metrics struct {
	Cycles               prometheus.Counter
	CycleFailures        prometheus.Counter
	APICalls             *prometheus.CounterVec
	RateLimitWaits       *prometheus.CounterVec
	RateLimitWaitSeconds prometheus.Counter
	AlertsFired          *prometheus.CounterVec
	AlertsSuppressed     *prometheus.CounterVec
	NotificationFailures prometheus.Counter
	PortfolioValue       prometheus.Gauge
	Mutex                sync.Mutex
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func counterVec(name, help, label string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, []string{label})
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles:               counter("cycles_total", "The total number of completed worker cycles"),
		CycleFailures:        counter("cycle_failures_total", "The total number of failed worker cycles"),
		APICalls:             counterVec("api_calls_total", "Outbound price API calls by outcome", "outcome"),
		RateLimitWaits:       counterVec("rate_limit_waits_total", "Times the rate limiter delayed a call", "reason"),
		RateLimitWaitSeconds: counter("rate_limit_wait_seconds_total", "Seconds spent waiting on the rate limiter"),
		AlertsFired:          counterVec("alerts_fired_total", "Price alerts fired by coin", "coin"),
		AlertsSuppressed:     counterVec("alerts_suppressed_total", "Price alerts suppressed by the cooldown", "coin"),
		NotificationFailures: counter("notification_failures_total", "Notifications that could not be delivered"),
		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "portfolio_value_usd",
			Help:      "The current portfolio value in USD",
		}),
	}

	reg.MustRegister(
		m.Cycles,
		m.CycleFailures,
		m.APICalls,
		m.RateLimitWaits,
		m.RateLimitWaitSeconds,
		m.AlertsFired,
		m.AlertsSuppressed,
		m.NotificationFailures,
		m.PortfolioValue,
	)
	return m
}

func (m *Metrics) AlertFired(coinID string)      { m.AlertsFired.WithLabelValues(coinID).Inc() }
func (m *Metrics) AlertSuppressed(coinID string) { m.AlertsSuppressed.WithLabelValues(coinID).Inc() }
func (m *Metrics) NotificationFailed()           { m.NotificationFailures.Inc() }

// ObserveWait matches the rate limiter's observer signature.
func (m *Metrics) ObserveWait(reason string, d time.Duration) {
	m.RateLimitWaits.WithLabelValues(reason).Inc()
	m.RateLimitWaitSeconds.Add(d.Seconds())
}

func (m *Metrics) APICall(err error) {
	if err != nil {
		m.APICalls.WithLabelValues("error").Inc()
		return
	}
	m.APICalls.WithLabelValues("ok").Inc()
}

// CycleDone records one worker cycle and the resulting portfolio value.
func (m *Metrics) CycleDone(value float64, err error) {
	m.Cycles.Inc()
	if err != nil {
		m.CycleFailures.Inc()
		return
	}
	m.PortfolioValue.Set(value)
}

// Store persists metric values between restarts.
type Store interface {
	SaveMetric(ctx context.Context, metricName, labelKey, labelValue string, value float64) error
	GetMetric(ctx context.Context, metricName string) (float64, error)
	GetMetricsWithLabels(ctx context.Context, metricName string) (map[string]map[string]float64, error)
}

type labeled struct {
	name  string
	label string
	vec   *prometheus.CounterVec
}

type plain struct {
	name string
	c    prometheus.Counter
}

func (m *Metrics) plainCounters() []plain {
	return []plain{
		{"cycles_total", m.Cycles},
		{"cycle_failures_total", m.CycleFailures},
		{"rate_limit_wait_seconds_total", m.RateLimitWaitSeconds},
		{"notification_failures_total", m.NotificationFailures},
	}
}

func (m *Metrics) labeledCounters() []labeled {
	return []labeled{
		{"api_calls_total", "outcome", m.APICalls},
		{"rate_limit_waits_total", "reason", m.RateLimitWaits},
		{"alerts_fired_total", "coin", m.AlertsFired},
		{"alerts_suppressed_total", "coin", m.AlertsSuppressed},
	}
}

// Load adds the persisted counter values to the fresh collectors.
func (m *Metrics) Load(ctx context.Context, store Store) {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	for _, p := range m.plainCounters() {
		v, err := store.GetMetric(ctx, p.name)
		if err != nil {
			log.WithError(err).Warnf("Failed to load metric %s", p.name)
			continue
		}
		p.c.Add(v)
	}
	value, err := store.GetMetric(ctx, "portfolio_value_usd")
	if err == nil {
		m.PortfolioValue.Set(value)
	}

	for _, l := range m.labeledCounters() {
		values, err := store.GetMetricsWithLabels(ctx, l.name)
		if err != nil {
			log.WithError(err).Warnf("Failed to load metric %s", l.name)
			continue
		}
		for labelValue, v := range values[l.label] {
			l.vec.WithLabelValues(labelValue).Add(v)
		}
	}
	log.Debug("Metrics loaded from database.")
}

// Save writes the current counter values to store.
func (m *Metrics) Save(ctx context.Context, store Store) error {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	for _, p := range m.plainCounters() {
		if err := store.SaveMetric(ctx, p.name, "", "", Value(p.c)); err != nil {
			return err
		}
	}
	if err := store.SaveMetric(ctx, "portfolio_value_usd", "", "", Value(m.PortfolioValue)); err != nil {
		return err
	}

	for _, l := range m.labeledCounters() {
		metricChan := make(chan prometheus.Metric, 16)
		go func() {
			l.vec.Collect(metricChan)
			close(metricChan)
		}()

		var saveErr error
		for metric := range metricChan {
			metricProto := &dto.Metric{}
			if err := metric.Write(metricProto); err != nil {
				log.WithError(err).Warnf("Failed to read %s metric", l.name)
				continue
			}
			if saveErr != nil {
				continue
			}
			var labelValue string
			for _, label := range metricProto.Label {
				if label.GetName() == l.label {
					labelValue = label.GetValue()
				}
			}
			saveErr = store.SaveMetric(ctx, l.name, l.label, labelValue, metricProto.GetCounter().GetValue())
		}
		if saveErr != nil {
			return saveErr
		}
	}

	log.Debug("Metrics saved to database.")
	return nil
}

// Value reads the current value of a single counter or gauge.
func Value(metric prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.WithError(err).Warn("Failed to read metric value")
		return 0
	}

	if metricProto.Counter != nil {
		return metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		return metricProto.Gauge.GetValue()
	}
	return 0
}
