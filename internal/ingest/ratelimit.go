package ingest

import (
	"context"
	"log"
	"time"
)

// RateLimiterConfig caps outbound calls to an external text-cleaning
// provider. One limiter instance corresponds to one process sharing one
// external credential; there is no cross-process coordination.
type RateLimiterConfig struct {
	MinInterval time.Duration // enforced after every granted call
	PerMinute   int           // 0 disables the per-minute cap
	PerDay      int           // 0 disables the per-day cap
	QueueSize   int
}

type limiterTicket struct {
	ready chan struct{}
}

// RateLimiter serializes outbound calls through a bounded FIFO queue
// drained by a single worker loop. The clock and sleep functions are
// injectable so tests control time instead of sleeping for real.
type RateLimiter struct {
	cfg   RateLimiterConfig
	queue chan *limiterTicket
	now   func() time.Time
	sleep func(time.Duration)

	requestsThisMinute int
	minuteWindowStart  time.Time
	dailyCount         int
	dayWindowStart     time.Time
	lastGrant          time.Time
}

func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 500 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &RateLimiter{
		cfg:   cfg,
		queue: make(chan *limiterTicket, cfg.QueueSize),
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// WithClock substitutes the time source and sleep function. Tests use a
// fake clock whose sleep advances time instantly.
func (l *RateLimiter) WithClock(now func() time.Time, sleep func(time.Duration)) *RateLimiter {
	l.now = now
	l.sleep = sleep
	return l
}

// Start launches the drain loop. It runs until ctx is cancelled; queued
// tickets are held, never dropped.
func (l *RateLimiter) Start(ctx context.Context) {
	go l.drain(ctx)
}

// Wait enqueues the caller and blocks until the limiter grants a slot or
// ctx finishes.
func (l *RateLimiter) Wait(ctx context.Context) error {
	t := &limiterTicket{ready: make(chan struct{})}
	select {
	case l.queue <- t:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-t.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *RateLimiter) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-l.queue:
			for {
				if ctx.Err() != nil {
					return
				}
				wait := l.nextDelay(l.now())
				if wait <= 0 {
					break
				}
				l.sleep(wait)
			}
			l.grant(l.now())
			close(t.ready)
		}
	}
}

// nextDelay computes how long the worker must wait before granting the
// next call, rolling the minute/day windows as a side effect.
func (l *RateLimiter) nextDelay(now time.Time) time.Duration {
	if l.minuteWindowStart.IsZero() || now.Sub(l.minuteWindowStart) >= time.Minute {
		l.minuteWindowStart = now
		l.requestsThisMinute = 0
	}
	if l.dayWindowStart.IsZero() || now.Sub(l.dayWindowStart) >= 24*time.Hour {
		l.dayWindowStart = now
		l.dailyCount = 0
	}

	if !l.lastGrant.IsZero() {
		if next := l.lastGrant.Add(l.cfg.MinInterval); now.Before(next) {
			return next.Sub(now)
		}
	}
	if l.cfg.PerMinute > 0 && l.requestsThisMinute >= l.cfg.PerMinute {
		return l.minuteWindowStart.Add(time.Minute).Sub(now)
	}
	if l.cfg.PerDay > 0 && l.dailyCount >= l.cfg.PerDay {
		log.Printf("[RateLimit] daily cap of %d reached, holding queue until the window resets", l.cfg.PerDay)
		return l.dayWindowStart.Add(24 * time.Hour).Sub(now)
	}
	return 0
}

func (l *RateLimiter) grant(now time.Time) {
	l.requestsThisMinute++
	l.dailyCount++
	l.lastGrant = now
}
