package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/silver-spot-api/internal/model"
)

// scriptedFetch returns responses in order, repeating the last one.
type scriptedFetch struct {
	mu     sync.Mutex
	prices []model.DerivedPrice
	errs   []error
	calls  int
}

func (s *scriptedFetch) fetch(ctx context.Context) (model.DerivedPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.prices) {
		i = len(s.prices) - 1
	}
	s.calls++
	return s.prices[i], s.errs[i]
}

func (s *scriptedFetch) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func price(v float64) model.DerivedPrice {
	return model.DerivedPrice{Market: model.MarketIndia, PerGram: v, PerKg: v * 1000, AsOf: time.Now()}
}

func TestPollerKeepsLastKnownOnFailure(t *testing.T) {
	script := &scriptedFetch{
		prices: []model.DerivedPrice{price(95.00), {}, price(96.00), {}},
		errs:   []error{nil, errors.New("feed down"), nil, errors.New("feed down")},
	}

	p := New(model.MarketIndia, 10*time.Millisecond, script.fetch)
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, func() bool { return script.callCount() >= 4 })

	last, ok := p.Last()
	if !ok {
		t.Fatal("expected a last-known value")
	}
	// The last tick failed; the displayed value must be the last success.
	if last.PerGram != 96.00 {
		t.Errorf("Last() = %v, want 96.00 from the last successful fetch", last.PerGram)
	}
	if p.LastError() == nil {
		t.Error("LastError() should report the failed tick")
	}
}

func TestPollerNeverPublishesUnfetchedValues(t *testing.T) {
	// Alternating success/failure: every published value must be one of
	// the successful fetch results, with no synthetic interpolation.
	script := &scriptedFetch{
		prices: []model.DerivedPrice{price(95.00), {}, price(97.00), {}, price(93.00), {}},
		errs: []error{nil, errors.New("x"), nil, errors.New("x"), nil, errors.New("x")},
	}

	fetched := map[float64]bool{95.00: true, 97.00: true, 93.00: true}

	var (
		mu        sync.Mutex
		published []float64
	)
	p := New(model.MarketIndia, 5*time.Millisecond, script.fetch).
		OnUpdate(func(dp model.DerivedPrice) {
			mu.Lock()
			published = append(published, dp.PerGram)
			mu.Unlock()
		})

	p.Start(context.Background())
	waitFor(t, func() bool { return script.callCount() >= 6 })
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(published) == 0 {
		t.Fatal("expected published updates")
	}
	for _, v := range published {
		if !fetched[v] {
			t.Errorf("published %v, which no successful fetch produced", v)
		}
	}
}

func TestPollerNoValueBeforeFirstSuccess(t *testing.T) {
	script := &scriptedFetch{
		prices: []model.DerivedPrice{{}},
		errs:   []error{errors.New("feed down")},
	}

	p := New(model.MarketIndia, 10*time.Millisecond, script.fetch)
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, func() bool { return script.callCount() >= 2 })

	if _, ok := p.Last(); ok {
		t.Error("Last() must report no value when no fetch ever succeeded")
	}
	if p.LastError() == nil {
		t.Error("LastError() should be set")
	}
}

func TestPollerStopDiscardsInFlightResult(t *testing.T) {
	started := make(chan struct{}, 1)
	block := make(chan struct{})

	fetch := func(ctx context.Context) (model.DerivedPrice, error) {
		started <- struct{}{}
		<-block
		// Returns successfully, but only after the poller is stopped.
		return price(999.99), nil
	}

	p := New(model.MarketIndia, time.Minute, fetch)
	p.Start(context.Background())

	<-started
	go func() {
		// Unblock the fetch once Stop has cancelled the loop context.
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()
	p.Stop()

	if _, ok := p.Last(); ok {
		t.Error("a result arriving after Stop must be discarded")
	}
}

func TestPollerStopTerminatesLoop(t *testing.T) {
	script := &scriptedFetch{
		prices: []model.DerivedPrice{price(95.00)},
		errs:   []error{nil},
	}

	p := New(model.MarketIndia, 5*time.Millisecond, script.fetch)
	p.Start(context.Background())
	waitFor(t, func() bool { return script.callCount() >= 2 })
	p.Stop()

	calls := script.callCount()
	time.Sleep(30 * time.Millisecond)
	if script.callCount() != calls {
		t.Error("poller kept ticking after Stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
