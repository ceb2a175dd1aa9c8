// Package poller runs the per-market refresh loop: fetch, derive, publish,
// on a fixed interval. A failed tick keeps the last-known value; a value
// that did not come from a successful fetch is never published.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/silver-spot-api/internal/model"
)

// FetchFunc produces one freshly derived price. Implementations typically
// chain feed fetch, validation, derivation and the price guard.
type FetchFunc func(ctx context.Context) (model.DerivedPrice, error)

// Poller drives the refresh loop for one market. There is exactly one
// writer (the loop goroutine); readers take a copy under the lock.
type Poller struct {
	market   model.Market
	interval time.Duration
	fetch    FetchFunc

	// onUpdate is invoked after each successful tick, outside the lock
	onUpdate func(model.DerivedPrice)

	mu       sync.RWMutex
	last     model.DerivedPrice
	hasLast  bool
	lastErr  error
	lastPoll time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a poller for a market. Start must be called to begin polling.
func New(market model.Market, interval time.Duration, fetch FetchFunc) *Poller {
	return &Poller{
		market:   market,
		interval: interval,
		fetch:    fetch,
	}
}

// OnUpdate registers a callback for successful ticks. Must be set before Start.
func (p *Poller) OnUpdate(fn func(model.DerivedPrice)) *Poller {
	p.onUpdate = fn
	return p
}

// Start launches the loop: one immediate fetch, then one per interval.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go p.run(ctx)
	logrus.Infof("Poller started for %s (interval %s)", p.market, p.interval)
}

// Stop cancels the loop and waits for it to exit. Any in-flight fetch
// result is discarded, never applied after teardown.
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	logrus.Infof("Poller stopped for %s", p.market)
}

// Last returns the most recent successfully fetched price, if any.
func (p *Poller) Last() (model.DerivedPrice, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.hasLast
}

// LastError returns the error from the most recent tick, nil after a success.
func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// LastPoll returns when the loop last completed a tick.
func (p *Poller) LastPoll() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPoll
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	price, err := p.fetch(fetchCtx)

	// Teardown mid-fetch: the result belongs to a dead context.
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		logrus.Warnf("Poll failed for %s, keeping last-known value: %v", p.market, err)
		p.mu.Lock()
		p.lastErr = err
		p.lastPoll = time.Now()
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	p.last = price
	p.hasLast = true
	p.lastErr = nil
	p.lastPoll = time.Now()
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(price)
	}
}
