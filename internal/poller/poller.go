// Package poller runs the fetch, match, dedup and dispatch cycle on a fixed
// cadence.
//
// Cycles never overlap: Run waits for a cycle to finish, then sleeps the poll
// interval, or the longer error pause when the cycle faulted. At most one
// alert is dispatched per cycle, the first new match in source order. An alert
// is marked as dispatched before the webhook is called, so a failing receiver
// sees a single attempt per alert.
package poller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/gabihorn/beiter-alert-bot/internal/alert"
	"github.com/gabihorn/beiter-alert-bot/internal/dedup"
	"github.com/gabihorn/beiter-alert-bot/internal/metrics"
)

const (
	DefaultInterval   = 10 * time.Second
	DefaultErrorPause = 30 * time.Second
)

// ErrCycleFault wraps every error that aborts a cycle.
var ErrCycleFault = errors.New("cycle fault")

// Source yields the current alert records.
type Source interface {
	Fetch(ctx context.Context) ([]alert.Record, error)
}

// Matcher decides whether a record concerns the monitored locality.
type Matcher interface {
	Matches(r alert.Record) bool
}

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, p alert.Payload) error
}

// Config is the loop cadence and the payload tags.
type Config struct {
	Interval   time.Duration
	ErrorPause time.Duration
	AlertType  string
	SourceTag  string
}

// Option customizes a Loop.
type Option func(*Loop)

// WithClock replaces time.Now for payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithSleep replaces the pause between cycles. sleep returns false when the
// loop should stop.
func WithSleep(sleep func(ctx context.Context, d time.Duration) bool) Option {
	return func(l *Loop) { l.sleep = sleep }
}

// Loop owns the dedup tracker; nothing else may touch it.
type Loop struct {
	cfg     Config
	source  Source
	matcher Matcher
	tracker *dedup.Tracker
	sender  Sender
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) bool
}

// New wires a loop. Zero durations take the defaults.
func New(cfg Config, src Source, matcher Matcher, tracker *dedup.Tracker, sender Sender, logger zerolog.Logger, m *metrics.Metrics, opts ...Option) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ErrorPause <= 0 {
		cfg.ErrorPause = DefaultErrorPause
	}
	l := &Loop{
		cfg:     cfg,
		source:  src,
		matcher: matcher,
		tracker: tracker,
		sender:  sender,
		logger:  logger.With().Str("component", "poller").Logger(),
		metrics: m,
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run cycles until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info().
		Dur("interval", l.cfg.Interval).
		Dur("error_pause", l.cfg.ErrorPause).
		Msg("poll loop started")

	for {
		pause := l.cfg.Interval
		if err := l.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			l.logger.Error().Err(err).Dur("pause", l.cfg.ErrorPause).Msg("cycle failed")
			pause = l.cfg.ErrorPause
		}
		if !l.sleep(ctx, pause) {
			break
		}
	}
	l.logger.Info().Msg("poll loop stopped")
}

// Cycle performs one fetch, match, dedup and dispatch pass. A dispatch
// failure is logged and swallowed; source failures and panics are returned
// wrapped in ErrCycleFault.
func (l *Loop) Cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.metrics.Cycle(metrics.OutcomePanic)
			l.logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("panic in cycle")
			err = fmt.Errorf("%w: panic: %v", ErrCycleFault, r)
		}
	}()

	records, err := l.source.Fetch(ctx)
	if err != nil {
		l.metrics.Cycle(metrics.OutcomeUnavailable)
		return fmt.Errorf("%w: %w", ErrCycleFault, err)
	}

	rec, found := l.selectNew(records)
	if !found {
		l.metrics.Cycle(metrics.OutcomeOK)
		return nil
	}

	l.tracker.MarkDispatched(rec.ID())
	l.metrics.Match()

	now := l.now()
	l.logger.Info().
		Str("alert_date", rec.Date).
		Str("alert_data", rec.Data).
		Msg("new alert for locality")

	payload := alert.NewPayload(rec, l.cfg.AlertType, l.cfg.SourceTag, now)
	if err := l.sender.Send(ctx, payload); err != nil {
		l.logger.Error().Err(err).Str("alert_date", rec.Date).Msg("dispatch failed, alert will not be resent")
	} else {
		l.metrics.Dispatched(now)
	}
	l.metrics.Cycle(metrics.OutcomeOK)
	return nil
}

// selectNew returns the first record, in source order, that matches the
// locality and has not been dispatched.
func (l *Loop) selectNew(records []alert.Record) (alert.Record, bool) {
	for _, r := range records {
		if !l.matcher.Matches(r) {
			continue
		}
		if !l.tracker.IsNew(r.ID()) {
			l.logger.Debug().Str("alert_date", r.Date).Msg("already dispatched")
			continue
		}
		return r, true
	}
	return alert.Record{}, false
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
