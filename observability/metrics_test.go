package observability

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestObserveOperationFeedsBothPipelines(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()
	otel.SetMeterProvider(provider)

	m := Staking()
	m.ObserveOperation("stake", "", 10*time.Millisecond)
	m.ObserveOperation("stake", "insufficient_stake", time.Millisecond)
	m.ObserveOperation(" ", "", time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("stake", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("stake", "insufficient_stake")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("unknown", "success")))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	counts := map[string]int64{}
	var histogramSeen bool
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			switch data := metric.Data.(type) {
			case metricdata.Sum[int64]:
				if metric.Name != "farmstake.engine.operations" {
					continue
				}
				for _, point := range data.DataPoints {
					op, _ := point.Attributes.Value(attribute.Key("operation"))
					outcome, _ := point.Attributes.Value(attribute.Key("outcome"))
					counts[op.AsString()+"/"+outcome.AsString()] += point.Value
				}
			case metricdata.Histogram[float64]:
				if metric.Name == "farmstake.engine.operation.duration" {
					histogramSeen = true
				}
			}
		}
	}
	require.Equal(t, int64(1), counts["stake/success"])
	require.Equal(t, int64(1), counts["stake/insufficient_stake"])
	require.Equal(t, int64(1), counts["unknown/success"])
	require.True(t, histogramSeen)
}

func TestRecordPoolIgnoresUnnamedPools(t *testing.T) {
	m := Staking()
	m.RecordPool(PoolSnapshot{Pool: "7", TotalStaked: uint256.NewInt(40), RewardRate: uint256.NewInt(3), PeriodFinish: 99, Paused: true})
	m.RecordPool(PoolSnapshot{TotalStaked: uint256.NewInt(1)})

	require.Equal(t, 40.0, testutil.ToFloat64(m.totalStaked.WithLabelValues("7")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.rewardRate.WithLabelValues("7")))
	require.Equal(t, 99.0, testutil.ToFloat64(m.periodFinish.WithLabelValues("7")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.paused.WithLabelValues("7")))

	var nilMetrics *StakingMetrics
	nilMetrics.ObserveOperation("stake", "", time.Second)
}
