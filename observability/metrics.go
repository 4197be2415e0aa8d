package observability

import (
	"context"
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// StakingMetrics wraps the collectors exported by the staking daemon.
type StakingMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	requests     *prometheus.CounterVec
	throttles    *prometheus.CounterVec
	totalStaked  *prometheus.GaugeVec
	rewardRate   *prometheus.GaugeVec
	funded       *prometheus.GaugeVec
	claimed      *prometheus.GaugeVec
	periodFinish *prometheus.GaugeVec
	paused       *prometheus.GaugeVec
	subscribers  prometheus.Gauge
	commitErrors prometheus.Counter

	opCounter metric.Int64Counter
	opLatency metric.Float64Histogram
}

var (
	stakingMetricsOnce sync.Once
	stakingRegistry    *StakingMetrics
)

// Staking returns the lazily-initialised metrics registry for stakingd.
func Staking() *StakingMetrics {
	stakingMetricsOnce.Do(func() {
		poolLabels := []string{"pool"}
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farmstake",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of staking engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "farmstake",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for staking engine operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farmstake",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and status code.",
			}, []string{"route", "status"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farmstake",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"reason"}),
			totalStaked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "farmstake",
				Subsystem: "pool",
				Name:      "total_staked",
				Help:      "Units staked into each pool.",
			}, poolLabels),
			rewardRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "farmstake",
				Subsystem: "pool",
				Name:      "reward_rate",
				Help:      "Whole reward units emitted per second by each pool.",
			}, poolLabels),
			funded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "farmstake",
				Subsystem: "pool",
				Name:      "reward_funded_total",
				Help:      "Reward units funded into each pool.",
			}, poolLabels),
			claimed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "farmstake",
				Subsystem: "pool",
				Name:      "reward_claimed_total",
				Help:      "Reward units paid out of each pool.",
			}, poolLabels),
			periodFinish: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "farmstake",
				Subsystem: "pool",
				Name:      "period_finish_timestamp_seconds",
				Help:      "Unix time at which the current emission of each pool ends.",
			}, poolLabels),
			paused: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "farmstake",
				Subsystem: "pool",
				Name:      "paused",
				Help:      "Set to 1 while a pool is suspended.",
			}, poolLabels),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "farmstake",
				Subsystem: "events",
				Name:      "stream_subscribers",
				Help:      "Live websocket event subscribers.",
			}),
			commitErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "farmstake",
				Subsystem: "state",
				Name:      "commit_errors_total",
				Help:      "State commits that failed after a successful operation.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.latency,
			stakingRegistry.requests,
			stakingRegistry.throttles,
			stakingRegistry.totalStaked,
			stakingRegistry.rewardRate,
			stakingRegistry.funded,
			stakingRegistry.claimed,
			stakingRegistry.periodFinish,
			stakingRegistry.paused,
			stakingRegistry.subscribers,
			stakingRegistry.commitErrors,
		)
		stakingRegistry.initMeter()
	})
	return stakingRegistry
}

// initMeter binds the OTLP instruments. The global provider delegates to the
// one installed later by telemetry init, so the order of the two is free.
func (m *StakingMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter("farmstake/stakingd")
	counter, err := meter.Int64Counter("farmstake.engine.operations",
		metric.WithDescription("Staking engine operations by outcome."))
	if err != nil {
		meter = noop.NewMeterProvider().Meter("farmstake/stakingd")
		counter, _ = meter.Int64Counter("farmstake.engine.operations")
	}
	latency, err := meter.Float64Histogram("farmstake.engine.operation.duration",
		metric.WithDescription("Staking engine operation latency including commit."),
		metric.WithUnit("s"))
	if err != nil {
		latency, _ = noop.NewMeterProvider().Meter("farmstake/stakingd").Float64Histogram("farmstake.engine.operation.duration")
	}
	m.opCounter = counter
	m.opLatency = latency
}

// ObserveOperation records the outcome of an engine operation. Failures are
// labelled with the supplied stable reason.
func (m *StakingMetrics) ObserveOperation(operation, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if reason = strings.TrimSpace(reason); reason != "" {
		outcome = reason
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
	if m.opCounter != nil {
		m.opCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		))
	}
	if m.opLatency != nil {
		m.opLatency.Record(context.Background(), duration.Seconds(), metric.WithAttributes(attribute.String("operation", op)))
	}
}

// ObserveRequest records a served HTTP request.
func (m *StakingMetrics) ObserveRequest(route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// RecordThrottle increments the throttle counter for the supplied reason.
func (m *StakingMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// PoolSnapshot is the subset of pool state exported as gauges.
type PoolSnapshot struct {
	Pool         string
	TotalStaked  *uint256.Int
	RewardRate   *uint256.Int
	Funded       *uint256.Int
	Claimed      *uint256.Int
	PeriodFinish uint64
	Paused       bool
}

// RecordPool refreshes the gauges of a single pool.
func (m *StakingMetrics) RecordPool(s PoolSnapshot) {
	if m == nil || s.Pool == "" {
		return
	}
	m.totalStaked.WithLabelValues(s.Pool).Set(uintToFloat(s.TotalStaked))
	m.rewardRate.WithLabelValues(s.Pool).Set(uintToFloat(s.RewardRate))
	m.funded.WithLabelValues(s.Pool).Set(uintToFloat(s.Funded))
	m.claimed.WithLabelValues(s.Pool).Set(uintToFloat(s.Claimed))
	m.periodFinish.WithLabelValues(s.Pool).Set(float64(s.PeriodFinish))
	paused := 0.0
	if s.Paused {
		paused = 1
	}
	m.paused.WithLabelValues(s.Pool).Set(paused)
}

// SetSubscribers records the number of live stream subscribers.
func (m *StakingMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// RecordCommitError counts a failed state commit.
func (m *StakingMetrics) RecordCommitError() {
	if m == nil {
		return
	}
	m.commitErrors.Inc()
}

func uintToFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value.ToBig()).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
