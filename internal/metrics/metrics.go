// Package metrics provides Prometheus instrumentation for the chainfolio core.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainfolio",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chainfolio",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// --- Portfolio metrics ---

	PortfoliosCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainfolio",
		Name:      "portfolios_created_total",
		Help:      "Total portfolios created.",
	})

	PortfolioRebalancesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainfolio",
		Name:      "portfolio_rebalances_total",
		Help:      "Total rebalance operations recorded.",
	})

	PortfolioTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainfolio",
			Name:      "portfolio_transactions_total",
			Help:      "Total portfolio transaction rows appended, by kind.",
		},
		[]string{"kind"},
	)

	// AllocationDriftBps tracks how far a portfolio's current allocation sum
	// sits above the 10000bps ceiling. Drift is monitored, never rejected.
	AllocationDriftBps = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chainfolio",
			Name:      "allocation_drift_bps",
			Help:      "Current allocation sum minus 10000bps per portfolio (0 when within target).",
		},
		[]string{"portfolio_id"},
	)

	// --- Investment metrics ---

	InvestmentsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainfolio",
		Name:      "investments_created_total",
		Help:      "Total investments opened.",
	})

	InvestmentsClosedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainfolio",
		Name:      "investments_closed_total",
		Help:      "Total investments closed after lock expiry.",
	})

	YieldClaimsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainfolio",
		Name:      "yield_claims_total",
		Help:      "Total successful yield claims.",
	})

	KeeperValueUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainfolio",
		Name:      "keeper_value_updates_total",
		Help:      "Total keeper current-value pushes accepted.",
	})

	// --- Risk monitoring metrics ---

	TransactionsMonitoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainfolio",
			Name:      "transactions_monitored_total",
			Help:      "Total transactions scored, by flagged outcome.",
		},
		[]string{"flagged"},
	)

	HighRiskTransactionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainfolio",
		Name:      "high_risk_transactions_total",
		Help:      "Total transactions flagged above the high-risk threshold.",
	})

	// --- Treasury metrics ---

	TreasuryEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainfolio",
			Name:      "treasury_entries_total",
			Help:      "Total treasury journal entries appended, by kind.",
		},
		[]string{"kind"},
	)

	TreasuryMismatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainfolio",
		Name:      "treasury_mismatches_total",
		Help:      "Total cached-vs-rebuilt balance mismatches found.",
	})

	// --- Event feed metrics ---

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainfolio",
			Name:      "events_published_total",
			Help:      "Total core events published, by type.",
		},
		[]string{"type"},
	)

	// ActiveWebSocketClients tracks connected event-feed subscribers.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainfolio",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// --- Runtime/DB gauges ---

	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainfolio", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainfolio", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainfolio", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainfolio", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PortfoliosCreatedTotal,
		PortfolioRebalancesTotal,
		PortfolioTransactionsTotal,
		AllocationDriftBps,
		InvestmentsCreatedTotal,
		InvestmentsClosedTotal,
		YieldClaimsTotal,
		KeeperValueUpdatesTotal,
		TransactionsMonitoredTotal,
		HighRiskTransactionsTotal,
		TreasuryEntriesTotal,
		TreasuryMismatchesTotal,
		EventsPublishedTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
