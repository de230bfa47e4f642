// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Trade metrics
	TradesTotal     *prometheus.CounterVec
	TradeVolumeSol  *prometheus.CounterVec
	SwapLatency     *prometheus.HistogramVec
	SwapErrorsTotal *prometheus.CounterVec

	// Safety metrics
	SafetyRejections *prometheus.CounterVec
	BreakerTrips     *prometheus.CounterVec
	KillSwitchActive *prometheus.GaugeVec
	DailyPnLSol      *prometheus.GaugeVec

	// Strategy metrics
	DCACycles      *prometheus.CounterVec
	CopyEvents     *prometheus.CounterVec
	TriggerFires   *prometheus.CounterVec
	TriggerPolls   prometheus.Counter
	ActiveTriggers *prometheus.GaugeVec

	// Transport metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	UptimeSeconds prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_trade_engine"
	}

	return &Metrics{
		// Trade metrics
		TradesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "total",
			Help:      "Total number of trade attempts by source, action and status",
		}, []string{"source", "action", "status"}),
		TradeVolumeSol: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "volume_sol_total",
			Help:      "SOL volume of successful trades by source",
		}, []string{"source"}),
		SwapLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "execution_latency_seconds",
			Help:      "Swap build, sign, submit and confirm latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"route"}),
		SwapErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "errors_total",
			Help:      "Total number of swap failures by route and stage",
		}, []string{"route", "stage"}),

		// Safety metrics
		SafetyRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "rejections_total",
			Help:      "Trades rejected by the safety manager by rule",
		}, []string{"rule"}),
		BreakerTrips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "breaker_trips_total",
			Help:      "Circuit breaker trips by cause",
		}, []string{"cause"}),
		KillSwitchActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "kill_switch_active",
			Help:      "1 when the account kill switch is engaged",
		}, []string{"account"}),
		DailyPnLSol: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "daily_pnl_sol",
			Help:      "Realized PnL since UTC midnight in SOL",
		}, []string{"account"}),

		// Strategy metrics
		DCACycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dca",
			Name:      "cycles_total",
			Help:      "DCA cycles by outcome",
		}, []string{"outcome"}),
		CopyEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copy",
			Name:      "events_total",
			Help:      "Copy trader events by outcome",
		}, []string{"outcome"}),
		TriggerFires: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "fires_total",
			Help:      "Trigger fires by condition type and status",
		}, []string{"condition", "status"}),
		TriggerPolls: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "polls_total",
			Help:      "Total number of trigger price polls",
		}),
		ActiveTriggers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "active",
			Help:      "Number of active triggers per account",
		}, []string{"account"}),

		// Transport metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTrade records one trade attempt.
func RecordTrade(source, action, status string, solAmount float64) {
	DefaultMetrics.TradesTotal.WithLabelValues(source, action, status).Inc()
	if status == "success" && solAmount > 0 {
		DefaultMetrics.TradeVolumeSol.WithLabelValues(source).Add(solAmount)
	}
}

// RecordSwap records swap latency, and the failing stage when err is non-nil.
func RecordSwap(route, stage string, d time.Duration, err error) {
	DefaultMetrics.SwapLatency.WithLabelValues(route).Observe(d.Seconds())
	if err != nil {
		DefaultMetrics.SwapErrorsTotal.WithLabelValues(route, stage).Inc()
	}
}

// RecordSafetyRejection increments the rejection counter for rule.
func RecordSafetyRejection(rule string) {
	DefaultMetrics.SafetyRejections.WithLabelValues(rule).Inc()
}

// RecordBreakerTrip increments the breaker trip counter.
func RecordBreakerTrip(cause string) {
	DefaultMetrics.BreakerTrips.WithLabelValues(cause).Inc()
}

// SetKillSwitch sets the kill switch gauge for account.
func SetKillSwitch(account string, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	DefaultMetrics.KillSwitchActive.WithLabelValues(account).Set(v)
}

// SetDailyPnL updates the daily PnL gauge for account.
func SetDailyPnL(account string, pnl float64) {
	DefaultMetrics.DailyPnLSol.WithLabelValues(account).Set(pnl)
}

// RecordDCACycle records a DCA cycle outcome (success, failure, skipped, paused).
func RecordDCACycle(outcome string) {
	DefaultMetrics.DCACycles.WithLabelValues(outcome).Inc()
}

// RecordCopyEvent records a copy trader event outcome.
func RecordCopyEvent(outcome string) {
	DefaultMetrics.CopyEvents.WithLabelValues(outcome).Inc()
}

// RecordTriggerFire records a trigger fire.
func RecordTriggerFire(condition, status string) {
	DefaultMetrics.TriggerFires.WithLabelValues(condition, status).Inc()
}

// RecordTriggerPoll increments the poll counter and sets the account's active gauge.
func RecordTriggerPoll(account string, active int) {
	DefaultMetrics.TriggerPolls.Inc()
	DefaultMetrics.ActiveTriggers.WithLabelValues(account).Set(float64(active))
}

// RecordRPCCall records RPC call latency and errors. Its signature matches
// solana.WithObserver.
func RecordRPCCall(method string, d time.Duration, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// TrackUptime increments the uptime counter every interval until stop is closed.
func TrackUptime(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			DefaultMetrics.UptimeSeconds.Add(interval.Seconds())
		}
	}
}
