package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldb/folddb/pkg/metrics"
)

func TestNewPrometheusProvider(t *testing.T) {
	svc, err := metrics.New(metrics.Config{Provider: "prometheus", Namespace: "folddb", Enabled: true})
	require.NoError(t, err)
	defer svc.Close()

	svc.IncrementCounter(metrics.TransformExecutionsTotal, metrics.Fields{"outcome": metrics.OutcomeSuccess})
	svc.SetGauge(metrics.TransformQueueDepth, 3, nil)
	svc.ObserveHistogram(metrics.TransformExecutionDuration, 0.01, nil)

	require.NotNil(t, svc.Handler())
}

func TestDisabledProviderIsNoOp(t *testing.T) {
	svc, err := metrics.New(metrics.Config{Enabled: false})
	require.NoError(t, err)

	svc.IncrementCounter("anything", nil)
	d := svc.TimerFunc("op", nil, func() {})
	assert.GreaterOrEqual(t, d.Nanoseconds(), int64(0))
}

func TestUnsupportedProviderErrors(t *testing.T) {
	_, err := metrics.New(metrics.Config{Provider: "graphite", Enabled: true})
	assert.Error(t, err)
}

func TestTimerFuncMeasuresDuration(t *testing.T) {
	svc, err := metrics.New(metrics.Config{Provider: "prometheus", Namespace: "folddb", Enabled: true})
	require.NoError(t, err)
	defer svc.Close()

	called := false
	svc.TimerFunc(metrics.MutationDuration, metrics.Fields{"schema": "Person"}, func() {
		called = true
	})
	assert.True(t, called)
}
