// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SchedulesGenerated prometheus.Counter
	StarsArmed         prometheus.Counter
	StarsCaught        prometheus.Counter
	StarsFaded         prometheus.Counter
	StarsSkipped       prometheus.Counter
	CoinsAwarded       prometheus.Counter
	LedgerFailures     prometheus.Counter
	ClockTicks         prometheus.Counter

	// Histograms (seconds)
	CatchLatency prometheus.Observer
	TickDuration prometheus.Observer

	// Gauges
	ArmedGauge     prometheus.Gauge // 1=armed,0=idle
	RemainingGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SchedulesGenerated = promauto.NewCounter(prometheus.CounterOpts{Name: "star_schedules_generated_total", Help: "Number of daily schedules generated"})
		StarsArmed = promauto.NewCounter(prometheus.CounterOpts{Name: "star_armed_total", Help: "Number of shooting stars announced"})
		StarsCaught = promauto.NewCounter(prometheus.CounterOpts{Name: "star_caught_total", Help: "Number of shooting stars caught"})
		StarsFaded = promauto.NewCounter(prometheus.CounterOpts{Name: "star_faded_total", Help: "Number of shooting stars that faded uncaught"})
		StarsSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "star_skipped_total", Help: "Number of due stars skipped because the announcement failed"})
		CoinsAwarded = promauto.NewCounter(prometheus.CounterOpts{Name: "star_coins_awarded_total", Help: "Coins credited to catchers"})
		LedgerFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "star_ledger_failures_total", Help: "Ledger writes that failed after a catch"})
		ClockTicks = promauto.NewCounter(prometheus.CounterOpts{Name: "star_clock_ticks_total", Help: "Number of event clock ticks"})
		CatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Name: "star_catch_latency_seconds", Help: "Seconds between announcement and catch", Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 120}})
		TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "star_clock_tick_duration_seconds", Help: "Event clock tick duration seconds", Buckets: prometheus.DefBuckets})
		ArmedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "star_armed", Help: "Whether a shooting star is currently armed (1) or not (0)"})
		RemainingGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "star_remaining_today", Help: "Stars left in today's schedule"})
	})
}

// Inc increments c if non-nil.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Add adds v to c if non-nil.
func Add(c prometheus.Counter, v float64) {
	if c != nil {
		c.Add(v)
	}
}

// SetArmed sets gauge to 1 if armed else 0.
func SetArmed(armed bool) {
	if ArmedGauge == nil {
		return
	}
	if armed {
		ArmedGauge.Set(1)
	} else {
		ArmedGauge.Set(0)
	}
}

// SetRemaining records how many stars are left today.
func SetRemaining(n int) {
	if RemainingGauge != nil {
		RemainingGauge.Set(float64(n))
	}
}

// Observe records v in obs if non-nil.
func Observe(obs prometheus.Observer, v float64) {
	if obs != nil {
		obs.Observe(v)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
