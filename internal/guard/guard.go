// Package guard protects the served price against implausible feed data:
// a glitched quote that derives to an absurd number trips the guard and the
// service falls back to the last known-good price instead of displaying it.
package guard

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/silver-spot-api/internal/model"
)

// State represents the current state of the guard
type State int

// Guard states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, derived prices are rejected
	StateHalfOpen              // Testing if the feeds have recovered
)

// String returns a readable state name for the status endpoints.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrOpen is returned while the guard is open and cooling down.
var ErrOpen = errors.New("price guard open: feed protection engaged")

// Thresholds defines the limits that will trip the guard
type Thresholds struct {
	// MaxMovePct is the maximum allowed per-gram move against the last
	// good price, as a decimal (0.20 for 20%)
	MaxMovePct float64 `json:"max_move_pct"`

	// MaxQuoteAge is how old a derived price's source timestamp may be
	MaxQuoteAge time.Duration `json:"max_quote_age"`
}

// Guard implements a circuit-breaker over derived prices, per market.
type Guard struct {
	thresholds Thresholds

	state    State
	lastTrip time.Time

	// Duration before an auto-recovery attempt
	cooldown time.Duration

	// Consecutive successes required to close from half-open
	successThreshold int
	successCount     int

	// Last accepted price per market, the stale-but-shown fallback
	lastGood map[model.Market]model.DerivedPrice

	onTrip func(reason string, p model.DerivedPrice)

	mu sync.RWMutex
}

// New creates a Guard with the provided thresholds.
func New(t Thresholds) *Guard {
	return &Guard{
		thresholds:       t,
		state:            StateClosed,
		cooldown:         5 * time.Minute,
		successThreshold: 3,
		lastGood:         make(map[model.Market]model.DerivedPrice),
	}
}

// WithCooldown sets a custom cooldown and returns the guard.
func (g *Guard) WithCooldown(d time.Duration) *Guard {
	g.cooldown = d
	return g
}

// WithSuccessThreshold sets the number of accepted prices needed to close the guard.
func (g *Guard) WithSuccessThreshold(n int) *Guard {
	g.successThreshold = n
	return g
}

// WithTripCallback sets a callback invoked whenever the guard trips.
func (g *Guard) WithTripCallback(cb func(reason string, p model.DerivedPrice)) *Guard {
	g.onTrip = cb
	return g
}

// Check evaluates a freshly derived price. A nil return means the price may
// be published; an error means the caller must keep the last-known value.
func (g *Guard) Check(p model.DerivedPrice) error {
	g.mu.RLock()
	state := g.state
	lastTrip := g.lastTrip
	g.mu.RUnlock()

	if state == StateOpen {
		if time.Since(lastTrip) > g.cooldown {
			g.transitionToHalfOpen()
		} else {
			return ErrOpen
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if p.PerGram <= 0 || math.IsNaN(p.PerGram) || math.IsInf(p.PerGram, 0) {
		reason := fmt.Sprintf("non-positive derived price: %f", p.PerGram)
		g.trip(reason, p)
		return errors.New(reason)
	}

	if g.thresholds.MaxQuoteAge > 0 && time.Since(p.AsOf) > g.thresholds.MaxQuoteAge {
		reason := fmt.Sprintf("derived price too old: as of %s", p.AsOf.Format(time.RFC3339))
		g.trip(reason, p)
		return errors.New(reason)
	}

	if last, ok := g.lastGood[p.Market]; ok && g.thresholds.MaxMovePct > 0 {
		move := math.Abs(p.PerGram-last.PerGram) / last.PerGram
		if move > g.thresholds.MaxMovePct {
			reason := fmt.Sprintf("price move too drastic for %s: %.2f%% (threshold: %.2f%%)",
				p.Market, move*100, g.thresholds.MaxMovePct*100)
			g.trip(reason, p)
			return errors.New(reason)
		}
	}

	logrus.Debugf("Price guard accepted %s at %.2f %s/g", p.Market, p.PerGram, p.Currency)
	g.lastGood[p.Market] = p

	if g.state == StateHalfOpen {
		g.successCount++
		if g.successCount >= g.successThreshold {
			g.state = StateClosed
			g.successCount = 0
			logrus.Info("Price guard closed: feeds have recovered")
		}
	}

	return nil
}

// GetState returns the current state of the guard.
func (g *Guard) GetState() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Reset forcibly returns the guard to the closed state.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateClosed
	g.successCount = 0
	logrus.Info("Price guard manually reset to closed state")
}

// LastGood returns the most recently accepted price for a market, if any.
func (g *Guard) LastGood(market model.Market) (model.DerivedPrice, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.lastGood[market]
	return p, ok
}

// transitionToHalfOpen moves the guard to half-open for a recovery test.
func (g *Guard) transitionToHalfOpen() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateOpen {
		g.state = StateHalfOpen
		g.successCount = 0
		logrus.Info("Price guard half-open: testing feed recovery")
	}
}

// trip opens the guard and records the trip time. Caller holds the lock.
func (g *Guard) trip(reason string, p model.DerivedPrice) {
	g.state = StateOpen
	g.lastTrip = time.Now()
	logrus.Warnf("Price guard tripped: %s", reason)

	if g.onTrip != nil {
		go g.onTrip(reason, p)
	}
}
