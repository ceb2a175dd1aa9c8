package guard

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/silver-spot-api/internal/model"
)

func goodPrice(perGram float64) model.DerivedPrice {
	return model.DerivedPrice{
		Market:   model.MarketIndia,
		Currency: "INR",
		PerGram:  perGram,
		PerKg:    perGram * 1000,
		AsOf:     time.Now(),
	}
}

func TestGuard_BasicFunctionality(t *testing.T) {
	g := New(Thresholds{MaxMovePct: 0.20, MaxQuoteAge: time.Hour}).
		WithCooldown(50 * time.Millisecond)

	assert.Equal(t, StateClosed, g.GetState(), "guard should start closed")

	err := g.Check(goodPrice(95.87))
	assert.NoError(t, err, "plausible price should pass")
	assert.Equal(t, StateClosed, g.GetState())

	last, ok := g.LastGood(model.MarketIndia)
	require.True(t, ok, "accepted price should be recorded")
	assert.Equal(t, 95.87, last.PerGram)
}

func TestGuard_DrasticMove(t *testing.T) {
	g := New(Thresholds{MaxMovePct: 0.20, MaxQuoteAge: time.Hour})

	require.NoError(t, g.Check(goodPrice(95.87)), "baseline should pass")

	err := g.Check(goodPrice(150.00))
	assert.Error(t, err, "a 56% jump should trip the guard")
	assert.Equal(t, StateOpen, g.GetState())
	assert.Contains(t, err.Error(), "price move too drastic")

	// Last good survives the trip, for the stale-but-shown path.
	last, ok := g.LastGood(model.MarketIndia)
	require.True(t, ok)
	assert.Equal(t, 95.87, last.PerGram)
}

func TestGuard_NonPositivePrice(t *testing.T) {
	g := New(Thresholds{MaxMovePct: 0.20})

	err := g.Check(model.DerivedPrice{Market: model.MarketIndia, PerGram: 0, AsOf: time.Now()})
	assert.Error(t, err, "zero price should trip the guard")
	assert.Equal(t, StateOpen, g.GetState())
}

func TestGuard_StaleQuote(t *testing.T) {
	g := New(Thresholds{MaxQuoteAge: time.Minute})

	stale := goodPrice(95.87)
	stale.AsOf = time.Now().Add(-time.Hour)

	err := g.Check(stale)
	assert.Error(t, err, "a stale source timestamp should trip the guard")
	assert.Contains(t, err.Error(), "too old")
}

func TestGuard_OpenRejectsUntilCooldown(t *testing.T) {
	g := New(Thresholds{MaxMovePct: 0.10}).
		WithCooldown(50 * time.Millisecond).
		WithSuccessThreshold(2)

	require.NoError(t, g.Check(goodPrice(95.00)))
	require.Error(t, g.Check(goodPrice(200.00)), "should trip")

	err := g.Check(goodPrice(95.50))
	assert.ErrorIs(t, err, ErrOpen, "while open, even good prices are rejected")

	time.Sleep(60 * time.Millisecond)

	assert.NoError(t, g.Check(goodPrice(95.50)), "after cooldown, half-open accepts a good price")
	assert.Equal(t, StateHalfOpen, g.GetState(), "one success is not enough to close")
	assert.NoError(t, g.Check(goodPrice(95.60)))
	assert.Equal(t, StateClosed, g.GetState(), "success threshold reached, guard closes")
}

func TestGuard_Reset(t *testing.T) {
	g := New(Thresholds{MaxMovePct: 0.10})

	require.NoError(t, g.Check(goodPrice(95.00)))
	require.Error(t, g.Check(goodPrice(200.00)))
	require.Equal(t, StateOpen, g.GetState())

	g.Reset()
	assert.Equal(t, StateClosed, g.GetState())
	assert.NoError(t, g.Check(goodPrice(95.10)))
}

func TestGuard_TripCallback(t *testing.T) {
	var (
		mu     sync.Mutex
		reason string
		done   = make(chan struct{})
	)

	g := New(Thresholds{MaxMovePct: 0.10}).WithTripCallback(func(r string, p model.DerivedPrice) {
		mu.Lock()
		reason = r
		mu.Unlock()
		close(done)
	})

	require.NoError(t, g.Check(goodPrice(95.00)))
	require.Error(t, g.Check(goodPrice(200.00)))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("trip callback was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, reason, "price move too drastic")
}

func TestGuard_MarketsTrackedIndependently(t *testing.T) {
	g := New(Thresholds{MaxMovePct: 0.10})

	india := goodPrice(95.00)
	shanghai := model.DerivedPrice{Market: model.MarketShanghai, Currency: "CNY", PerGram: 7.99, AsOf: time.Now()}

	require.NoError(t, g.Check(india))
	require.NoError(t, g.Check(shanghai), "first shanghai price has no baseline to move against")

	lastIN, ok := g.LastGood(model.MarketIndia)
	require.True(t, ok)
	lastSH, ok := g.LastGood(model.MarketShanghai)
	require.True(t, ok)
	assert.Equal(t, 95.00, lastIN.PerGram)
	assert.Equal(t, 7.99, lastSH.PerGram)
}
