// Package alert delivers operator notifications to a webhook endpoint when
// the price pipeline misbehaves: guard trips and repeated feed failures.
// Delivery is asynchronous and best-effort; a dead webhook never blocks the
// refresh loop.
package alert

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/silver-spot-api/internal/model"
)

// Event is one notification payload.
type Event struct {
	Kind    string    `json:"kind"` // "guard_trip" or "feed_failure"
	Market  string    `json:"market,omitempty"`
	Reason  string    `json:"reason"`
	PerGram float64   `json:"per_gram,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier posts events to a webhook from a background goroutine.
type Notifier struct {
	url        string
	apiKey     string
	httpClient *http.Client

	queue chan Event
	done  chan struct{}
}

// NewNotifier creates a notifier and starts its delivery goroutine.
func NewNotifier(url, apiKey string) *Notifier {
	n := &Notifier{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				IdleConnTimeout: 90 * time.Second,
			},
		},
		queue: make(chan Event, 64),
		done:  make(chan struct{}),
	}

	go n.deliver()
	logrus.Info("Alert notifier initialized")
	return n
}

// GuardTripped enqueues a guard trip event. Drops the event if the queue is full.
func (n *Notifier) GuardTripped(reason string, p model.DerivedPrice) {
	n.enqueue(Event{
		Kind:    "guard_trip",
		Market:  string(p.Market),
		Reason:  reason,
		PerGram: p.PerGram,
		At:      time.Now().UTC(),
	})
}

// FeedFailure enqueues a feed failure event.
func (n *Notifier) FeedFailure(market model.Market, err error) {
	n.enqueue(Event{
		Kind:   "feed_failure",
		Market: string(market),
		Reason: err.Error(),
		At:     time.Now().UTC(),
	})
}

// Close stops the delivery goroutine after draining queued events.
func (n *Notifier) Close() {
	close(n.queue)
	<-n.done
}

func (n *Notifier) enqueue(e Event) {
	select {
	case n.queue <- e:
	default:
		logrus.Warn("Alert queue full, dropping event")
	}
}

func (n *Notifier) deliver() {
	defer close(n.done)
	for e := range n.queue {
		if err := n.post(e); err != nil {
			logrus.Errorf("Failed to deliver alert: %v", err)
		}
	}
}

func (n *Notifier) post(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create alert request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alert request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("alert webhook returned error status: %d", resp.StatusCode)
	}

	return nil
}
