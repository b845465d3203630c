package ratelimit

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	minuteWindow = time.Minute
	monthWindow  = 30 * 24 * time.Hour
	minQuotaWait = time.Second
)

// Wait reasons passed to the observer.
const (
	ReasonSpacing = "spacing"
	ReasonQuota   = "quota"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer is notified every time the limiter decides to sleep.
type Observer func(reason string, d time.Duration)

// Remaining reports quota usage for the current minute and month windows.
type Remaining struct {
	MinuteRemaining int `json:"minute_remaining"`
	MonthRemaining  int `json:"month_remaining"`
	MinuteUsed      int `json:"minute_used"`
	MonthUsed       int `json:"month_used"`
}

// Limiter paces outbound calls to the price API. It enforces a minimum spacing between
// calls and keeps the trailing minute below the quota minus a safety buffer.
type Limiter struct {
	// waitMu queues callers across their sleeps. mu only guards the windows below, so
	// RemainingCalls never waits behind a sleeping caller.
	waitMu sync.Mutex
	mu     sync.Mutex

	callsPerMinute int
	callsPerMonth  int
	minInterval    time.Duration
	buffer         int

	minuteCalls []time.Time
	monthCalls  []time.Time
	lastCall    time.Time

	now     func() time.Time
	sleep   Sleeper
	observe Observer
}

type Option func(*Limiter)

func WithCallsPerMinute(n int) Option { return func(l *Limiter) { l.callsPerMinute = n } }

func WithCallsPerMonth(n int) Option { return func(l *Limiter) { l.callsPerMonth = n } }

func WithMinInterval(d time.Duration) Option { return func(l *Limiter) { l.minInterval = d } }

func WithBuffer(n int) Option { return func(l *Limiter) { l.buffer = n } }

func WithClock(now func() time.Time) Option { return func(l *Limiter) { l.now = now } }

func WithSleeper(s Sleeper) Option { return func(l *Limiter) { l.sleep = s } }

func WithObserver(o Observer) Option { return func(l *Limiter) { l.observe = o } }

func New(opts ...Option) *Limiter {
	l := &Limiter{
		callsPerMinute: 30,
		callsPerMonth:  10000,
		minInterval:    12 * time.Second,
		buffer:         5,
		now:            time.Now,
		sleep:          Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WaitIfNeeded blocks until the next outbound call is allowed, then records it.
// Callers are served one at a time. The only error is ctx's, when it ends during a sleep.
func (l *Limiter) WaitIfNeeded(ctx context.Context) error {
	l.waitMu.Lock()
	defer l.waitMu.Unlock()

	if deficit := l.spacingDeficit(); deficit > 0 {
		log.WithField("component", "ratelimit").Debugf("Waiting %.1f seconds between calls...", deficit.Seconds())
		if err := l.pause(ctx, ReasonSpacing, deficit); err != nil {
			return err
		}
	}

	if wait := l.quotaWait(); wait > 0 {
		log.WithField("component", "ratelimit").Infof("Rate limit approaching, waiting %.1f seconds...", wait.Seconds())
		if err := l.pause(ctx, ReasonQuota, wait); err != nil {
			return err
		}
	}

	l.record()
	return nil
}

func (l *Limiter) spacingDeficit() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastCall.IsZero() {
		return 0
	}
	return l.minInterval - l.now().Sub(l.lastCall)
}

func (l *Limiter) quotaWait() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.minuteCalls = prune(l.minuteCalls, now.Add(-minuteWindow))
	if len(l.minuteCalls) < l.threshold() {
		return 0
	}
	wait := minuteWindow - now.Sub(l.minuteCalls[0])
	if wait < minQuotaWait {
		wait = minQuotaWait
	}
	return wait
}

func (l *Limiter) record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.minuteCalls = prune(l.minuteCalls, now.Add(-minuteWindow))
	l.minuteCalls = append(l.minuteCalls, now)
	l.monthCalls = prune(l.monthCalls, now.Add(-monthWindow))
	l.monthCalls = append(l.monthCalls, now)
	l.lastCall = now

	if l.callsPerMonth > 0 && len(l.monthCalls) >= l.callsPerMonth {
		log.WithField("component", "ratelimit").Warnf("Monthly quota of %d calls reached", l.callsPerMonth)
	}
}

// RemainingCalls reports how much of the minute and month quotas is left.
func (l *Limiter) RemainingCalls() Remaining {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	minute := count(l.minuteCalls, now.Add(-minuteWindow))
	month := count(l.monthCalls, now.Add(-monthWindow))

	return Remaining{
		MinuteRemaining: floor(l.callsPerMinute - minute),
		MonthRemaining:  floor(l.callsPerMonth - month),
		MinuteUsed:      minute,
		MonthUsed:       month,
	}
}

// threshold is the window size at which the limiter starts throttling. It never drops
// below one so that a tiny quota still allows a first call.
func (l *Limiter) threshold() int {
	t := l.callsPerMinute - l.buffer
	if t < 1 {
		return 1
	}
	return t
}

func (l *Limiter) pause(ctx context.Context, reason string, d time.Duration) error {
	if l.observe != nil {
		l.observe(reason, d)
	}
	return l.sleep(ctx, d)
}

// prune drops timestamps at or before cutoff. Calls are appended in order, so the
// slice stays sorted.
func prune(calls []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(calls) && !calls[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return calls
	}
	return append(calls[:0], calls[i:]...)
}

func count(calls []time.Time, cutoff time.Time) int {
	n := 0
	for _, c := range calls {
		if c.After(cutoff) {
			n++
		}
	}
	return n
}

func floor(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
