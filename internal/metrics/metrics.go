// Package metrics provides Prometheus instrumentation for the economy
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed trades, partitioned by action.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradewinds_trades_total",
		Help: "Total number of trades executed",
	}, []string{"action"})

	// TradeRejections counts trades rejected by validation, by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradewinds_trade_rejections_total",
		Help: "Trades rejected before execution",
	}, []string{"reason"})

	// TicksTotal counts completed market ticks.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradewinds_ticks_total",
		Help: "Total market ticks executed",
	})

	// TickDuration tracks how long a full tick cycle takes.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradewinds_tick_duration_seconds",
		Help:    "Market tick duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// CommodityPrice exposes the current mid price per commodity.
	CommodityPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradewinds_commodity_price",
		Help: "Current mid price per commodity",
	}, []string{"commodity"})

	// MoneySupply tracks the total circulating money supply.
	MoneySupply = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradewinds_money_supply",
		Help: "Total circulating money supply",
	})

	// BankReserves tracks the bank's cash reserves.
	BankReserves = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradewinds_bank_reserves",
		Help: "Bank cash reserves",
	})

	// EventsFired counts market events, by event name.
	EventsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradewinds_events_fired_total",
		Help: "Market events fired",
	}, []string{"event"})

	// MarginLiquidations counts forced short closes.
	MarginLiquidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradewinds_margin_liquidations_total",
		Help: "Shorts force-closed by margin sweeps",
	})

	// Settlements counts daily settlements performed.
	Settlements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradewinds_settlements_total",
		Help: "Daily settlements performed",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradewinds_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradewinds_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the route surface is small.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
