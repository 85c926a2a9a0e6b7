package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLoggerBuildsBothModes(t *testing.T) {
	dev, err := NewLogger(true)
	require.NoError(t, err)
	require.NotNil(t, dev)

	prod, err := NewLogger(false)
	require.NoError(t, err)
	require.NotNil(t, prod)
}

func TestNewMetricsRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.VisionCallDuration.WithLabelValues("fast").Observe(0.5)
	m.VisionRetryTotal.WithLabelValues("E001").Inc()
	m.PersistenceDuration.WithLabelValues("save_parsed").Observe(0.1)
	m.PartitionsCreated.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(families), 4)
}

func TestTraceStepLifecycle(t *testing.T) {
	log := zap.NewNop()
	trace := NewTrace(log)
	assert.NotEmpty(t, trace.RequestID)

	trace.StartStep("preprocess")
	trace.EndStep(nil)
	trace.Finish("ok")

	assert.NotNil(t, trace.Logger())
}
