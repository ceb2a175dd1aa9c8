// Package main is the entry point for the silver spot price API, the
// serving layer behind the silver-rate pages: it polls the commodity and
// exchange-rate feeds, derives local-currency prices, and serves them over
// HTTP with strict no-fake-data semantics.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/silver-spot-api/internal/alert"
	"github.com/yourorg/silver-spot-api/internal/config"
	"github.com/yourorg/silver-spot-api/internal/derive"
	"github.com/yourorg/silver-spot-api/internal/fetch"
	"github.com/yourorg/silver-spot-api/internal/guard"
	"github.com/yourorg/silver-spot-api/internal/history"
	"github.com/yourorg/silver-spot-api/internal/model"
	"github.com/yourorg/silver-spot-api/internal/otel"
	"github.com/yourorg/silver-spot-api/internal/poller"
	"github.com/yourorg/silver-spot-api/internal/snapshot"
	"github.com/yourorg/silver-spot-api/internal/stream"
	"github.com/yourorg/silver-spot-api/internal/validation"
)

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

// markets served by this instance, with their poll intervals resolved
// from configuration at startup
var servedMarkets = []model.Market{model.MarketIndia, model.MarketShanghai}

// Server holds the running components of the price API
type Server struct {
	cfg config.Config

	quotes   *fetch.QuoteFetcher
	histFeed fetch.HistorySource

	pollers map[model.Market]*poller.Poller
	guard   *guard.Guard
	hub     *stream.Hub

	// Optional stores; nil when not configured
	snap      *snapshot.Store
	histStore *history.Store

	notifier *alert.Notifier

	metrics   *serverMetrics
	rateLimit *rate.Limiter

	// In-memory copy of the historical series per market, refreshed in
	// the background so request handling never waits on the feed
	histMu     sync.RWMutex
	histPoints map[model.Market][]model.HistoricalPricePoint

	server *http.Server
}

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pollResults     *prometheus.CounterVec
	feedErrors      *prometheus.CounterVec
	guardState      prometheus.Gauge
	perGramPrice    *prometheus.GaugeVec
	streamClients   prometheus.Gauge
}

// registerMetrics sets up Prometheus metrics collection
func registerMetrics() *serverMetrics {
	m := &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "silver_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "silver_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		pollResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "silver_poll_results_total",
				Help: "Poll tick outcomes per market",
			},
			[]string{"market", "result"},
		),
		feedErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "silver_feed_errors_total",
				Help: "Upstream feed failures",
			},
			[]string{"feed"},
		),
		guardState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "silver_guard_state",
				Help: "Price guard state (0=closed, 1=open, 2=half-open)",
			},
		),
		perGramPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "silver_price_per_gram",
				Help: "Latest derived price per gram in local currency",
			},
			[]string{"market"},
		),
		streamClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "silver_stream_clients",
				Help: "Connected WebSocket subscribers",
			},
		),
	}

	prometheus.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.pollResults,
		m.feedErrors,
		m.guardState,
		m.perGramPrice,
		m.streamClients,
	)

	return m
}

// main is the entry point for the application
func main() {
	// Local development overrides; absence of a .env file is fine
	_ = godotenv.Load()

	setupLogging()

	cfg := config.Load()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			logrus.Fatalf("Failed to apply config file %s: %v", path, err)
		}
	}

	shutdownTracer := otel.InitTracer(cfg.OtelEndpoint)
	defer shutdownTracer()

	server := NewServer(cfg)
	server.Start()
}

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}

// NewServer wires the feed clients, guard, stores and pollers together.
func NewServer(cfg config.Config) *Server {
	comex := fetch.NewComexClient(cfg)
	fx := fetch.NewFXClient(cfg)

	s := &Server{
		cfg:        cfg,
		quotes:     fetch.NewQuoteFetcher(comex, fx),
		histFeed:   fetch.NewHistoryClient(cfg),
		pollers:    make(map[model.Market]*poller.Poller),
		hub:        stream.NewHub(),
		metrics:    registerMetrics(),
		rateLimit:  rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		histPoints: make(map[model.Market][]model.HistoricalPricePoint),
	}

	// Operator alerting is optional
	if cfg.WebhookURL != "" {
		s.notifier = alert.NewNotifier(cfg.WebhookURL, cfg.WebhookAPIKey)
	}

	s.guard = guard.New(guard.Thresholds{
		MaxMovePct:  cfg.MaxMovePct,
		MaxQuoteAge: cfg.QuoteMaxAge,
	}).WithCooldown(cfg.GuardCooldown)
	if s.notifier != nil {
		s.guard.WithTripCallback(s.notifier.GuardTripped)
	}

	// Redis snapshot cache is optional
	if cfg.RedisAddr != "" {
		snap := snapshot.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SnapshotTTL)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := snap.Ping(ctx); err != nil {
			logrus.Warnf("Redis snapshot cache unavailable, continuing without it: %v", err)
		} else {
			s.snap = snap
			logrus.Info("Redis snapshot cache initialized")
		}
		cancel()
	}

	// Postgres history store is optional
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := history.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logrus.Warnf("History store unavailable, continuing without it: %v", err)
		} else if err := store.Init(ctx); err != nil {
			logrus.Warnf("History store init failed, continuing without it: %v", err)
			store.Close()
		} else {
			s.histStore = store
			logrus.Info("Postgres history store initialized")
		}
		cancel()
	}

	for _, market := range servedMarkets {
		interval := cfg.IndiaPollInterval
		if market == model.MarketShanghai {
			interval = cfg.ShanghaiPollInterval
		}
		s.pollers[market] = poller.New(market, interval, s.buildFetch(market)).
			OnUpdate(s.onPriceUpdate)
	}

	logrus.WithFields(logrus.Fields{
		"port":          cfg.Port,
		"markets":       len(s.pollers),
		"redis":         s.snap != nil,
		"postgres":      s.histStore != nil,
		"alert_webhook": s.notifier != nil,
	}).Info("Server initialized")

	return s
}

// buildFetch composes one poll tick for a market: fetch both feed legs,
// validate, derive, and pass the price guard. Any failure keeps the
// last-known value; nothing synthetic ever comes out of this function.
func (s *Server) buildFetch(market model.Market) poller.FetchFunc {
	opts := validation.DefaultOptions()
	opts.MaxAge = s.cfg.QuoteMaxAge
	tariff := s.tariffFor(market)

	return func(ctx context.Context) (model.DerivedPrice, error) {
		ctx, span := otel.Tracer().Start(ctx, "poll."+string(market))
		defer span.End()

		quote, err := s.quotes.Quote(ctx, market.Pair())
		if err != nil {
			s.recordPollFailure(ctx, market, "feed", err)
			return model.DerivedPrice{}, err
		}

		if err := validation.CheckQuote(quote, opts); err != nil {
			s.recordPollFailure(ctx, market, "validation", err)
			return model.DerivedPrice{}, err
		}

		price, err := derive.Derive(market, quote.Spot, quote.Rate, tariff)
		if err != nil {
			s.recordPollFailure(ctx, market, "derive", err)
			return model.DerivedPrice{}, err
		}

		if err := s.guard.Check(price); err != nil {
			s.metrics.guardState.Set(float64(s.guard.GetState()))
			s.recordPollFailure(ctx, market, "guard", err)
			return model.DerivedPrice{}, err
		}

		s.metrics.guardState.Set(float64(s.guard.GetState()))
		s.metrics.pollResults.WithLabelValues(string(market), "success").Inc()
		return price, nil
	}
}

func (s *Server) recordPollFailure(ctx context.Context, market model.Market, stage string, err error) {
	otel.RecordError(ctx, err)
	s.metrics.pollResults.WithLabelValues(string(market), stage+"_error").Inc()
	if stage == "feed" {
		s.metrics.feedErrors.WithLabelValues("quote").Inc()
		if s.notifier != nil {
			s.notifier.FeedFailure(market, err)
		}
	}
}

// onPriceUpdate runs after every successful poll tick.
func (s *Server) onPriceUpdate(p model.DerivedPrice) {
	s.metrics.perGramPrice.WithLabelValues(string(p.Market)).Set(p.PerGram)
	s.hub.Broadcast(p)
	s.metrics.streamClients.Set(float64(s.hub.ClientCount()))

	if s.snap != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.snap.Put(ctx, p); err != nil {
			logrus.Warnf("Failed to write price snapshot: %v", err)
		}
	}
}

// tariffFor resolves the configured adjustment constants for a market.
func (s *Server) tariffFor(market model.Market) derive.Tariff {
	switch market {
	case model.MarketShanghai:
		return derive.Tariff{
			ImportDutyPct: 0,
			TaxPct:        s.cfg.ShanghaiVATPct,
			PremiumPct:    s.cfg.ShanghaiPremiumPct,
		}
	default:
		return derive.Tariff{
			ImportDutyPct: s.cfg.IndiaDutyPct,
			TaxPct:        s.cfg.IndiaGSTPct,
			PremiumPct:    s.cfg.IndiaPremiumPct,
		}
	}
}

// Start begins polling and serving, and blocks until shutdown.
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, p := range s.pollers {
		p.Start(ctx)
	}
	go s.refreshHistory(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/price", s.limited(s.handlePrice))
	mux.HandleFunc("/history", s.limited(s.handleHistory))
	mux.HandleFunc("/convert", s.limited(s.handleConvert))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/guard", s.handleGuard)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server shutdown failed: %v", err)
	}

	cancel()
	for _, p := range s.pollers {
		p.Stop()
	}
	s.hub.Close()
	if s.snap != nil {
		s.snap.Close()
	}
	if s.histStore != nil {
		s.histStore.Close()
	}
	if s.notifier != nil {
		s.notifier.Close()
	}

	logrus.Info("Server stopped")
}

// refreshHistory keeps the in-memory historical series warm and mirrors it
// into Postgres when a store is configured.
func (s *Server) refreshHistory(ctx context.Context) {
	const refreshEvery = time.Hour

	refresh := func() {
		for _, market := range servedMarkets {
			fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
			days := s.cfg.HistoryDays
			if days < 30 {
				days = 30
			}
			points, err := s.histFeed.FetchHistory(fetchCtx, market, days)
			cancel()
			if err != nil {
				s.metrics.feedErrors.WithLabelValues("history").Inc()
				logrus.Warnf("History refresh failed for %s: %v", market, err)
				continue
			}

			s.histMu.Lock()
			s.histPoints[market] = points
			s.histMu.Unlock()

			if s.histStore != nil {
				storeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				if err := s.histStore.Upsert(storeCtx, market, points); err != nil {
					logrus.Warnf("History store write failed for %s: %v", market, err)
				}
				cancel()
			}
		}
	}

	refresh()
	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// historyWindow returns the series for a market, preferring the Postgres
// store (which survives feed outages) over the in-memory copy.
func (s *Server) historyWindow(ctx context.Context, market model.Market, days int) []model.HistoricalPricePoint {
	if s.histStore != nil {
		points, err := s.histStore.Window(ctx, market, days)
		if err == nil && len(points) > 0 {
			return points
		}
		if err != nil {
			logrus.Warnf("History store read failed for %s: %v", market, err)
		}
	}

	s.histMu.RLock()
	cached := s.histPoints[market]
	s.histMu.RUnlock()
	return history.Window(cached, days)
}

// limited wraps a handler with rate limiting and request metrics.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if !s.rateLimit.Allow() {
			s.errorResponse(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		s.metrics.requestCounter.WithLabelValues(r.URL.Path, httpStatusLabel(rec.status)).Inc()
		s.metrics.requestDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	}
}

// handlePrice serves the current derived price for a market. When no value
// from a successful fetch exists, it reports the explicit unavailable
// state; it never invents a number.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	market, err := parseMarket(r)
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	price, ok := s.currentPrice(r.Context(), market)
	if !ok {
		s.errorResponse(w, r, http.StatusServiceUnavailable, "unable to fetch live prices")
		return
	}

	points := s.historyWindow(r.Context(), market, s.cfg.HistoryDays)
	if stats, err := history.Compute(points); err == nil {
		price.Change24h = stats.Change24hPct
	}
	price.TodayHigh, price.TodayLow = history.TodayRange(price, points)

	writeJSON(w, http.StatusOK, price)
}

// currentPrice resolves the serving value: the poller's last-known price,
// falling back to the Redis snapshot after a restart.
func (s *Server) currentPrice(ctx context.Context, market model.Market) (model.DerivedPrice, bool) {
	if p, ok := s.pollers[market].Last(); ok {
		return p, true
	}
	if s.snap != nil {
		if p, ok, err := s.snap.Get(ctx, market); err == nil && ok {
			logrus.Debugf("Serving snapshot price for %s as of %s", market, p.AsOf)
			return p, true
		}
	}
	return model.DerivedPrice{}, false
}

// handleHistory serves the daily series with window statistics.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	market, err := parseMarket(r)
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	days := parseDays(r, s.cfg.HistoryDays)

	points := s.historyWindow(r.Context(), market, days)
	stats, err := history.Compute(points)
	if err != nil {
		s.errorResponse(w, r, http.StatusNotFound, "no historical data available")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"market": market,
		"days":   days,
		"points": points,
		"stats":  stats,
	})
}

// handleConvert prices a given mass at the current rate, for the
// calculator pages.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	market, err := parseMarket(r)
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	grams, err := parseMass(r)
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	price, ok := s.currentPrice(r.Context(), market)
	if !ok {
		s.errorResponse(w, r, http.StatusServiceUnavailable, "unable to fetch live prices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"market":   market,
		"currency": price.Currency,
		"grams":    grams,
		"per_gram": price.PerGram,
		"value":    derive.Convert(price.PerGram, grams),
		"as_of":    price.AsOf,
	})
}

// handleWS upgrades the client and streams price updates for a market.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	market, err := parseMarket(r)
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.hub.ServeWS(w, r, market)
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	marketStatus := make(map[string]interface{}, len(s.pollers))
	for market, p := range s.pollers {
		ms := map[string]interface{}{
			"last_poll": p.LastPoll().Format(time.RFC3339),
		}
		if last, ok := p.Last(); ok {
			ms["per_gram"] = last.PerGram
			ms["as_of"] = last.AsOf.Format(time.RFC3339)
		}
		if err := p.LastError(); err != nil {
			ms["last_error"] = err.Error()
		}
		marketStatus[string(market)] = ms
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "operational",
		"uptime":         time.Since(startTime).String(),
		"version":        "1.0.0",
		"markets":        marketStatus,
		"guard_state":    s.guard.GetState().String(),
		"stream_clients": s.hub.ClientCount(),
		"snapshot_cache": s.snap != nil,
		"history_store":  s.histStore != nil,
	})
}

// handleGuard allows viewing and controlling the price guard
func (s *Server) handleGuard(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"state": s.guard.GetState().String(),
	}

	if r.Method == http.MethodPost {
		if r.URL.Query().Get("action") == "reset" {
			s.guard.Reset()
			s.metrics.guardState.Set(float64(s.guard.GetState()))
			response["state"] = s.guard.GetState().String()
			response["message"] = "price guard reset"
		}
	}

	lastGood := make(map[string]interface{})
	for _, market := range servedMarkets {
		if p, ok := s.guard.LastGood(market); ok {
			lastGood[string(market)] = map[string]interface{}{
				"per_gram": p.PerGram,
				"as_of":    p.AsOf.Format(time.RFC3339),
			}
		}
	}
	if len(lastGood) > 0 {
		response["last_good"] = lastGood
	}

	writeJSON(w, http.StatusOK, response)
}

// errorResponse returns a formatted JSON error with a retry affordance.
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorMsg string) {
	logrus.Warnf("%s %s -> %d: %s", r.Method, r.URL.Path, statusCode, errorMsg)

	writeJSON(w, statusCode, map[string]interface{}{
		"error": errorMsg,
		"retry": statusCode == http.StatusServiceUnavailable || statusCode == http.StatusTooManyRequests,
	})
}

// statusRecorder captures the response code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("Failed to encode response: %v", err)
	}
}
