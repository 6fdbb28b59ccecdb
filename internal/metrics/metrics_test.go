package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordRollback_IncrementsReasonLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRollback("auto_threshold_breach")
	c.RecordRollback("auto_threshold_breach")
	c.RecordRollback("manual")

	metric := &dto.Metric{}
	require.NoError(t, c.Rollbacks.WithLabelValues("auto_threshold_breach").Write(metric))
	require.Equal(t, float64(2), metric.GetCounter().GetValue())
}

func TestCollector_ObserveTick_RecordsIntoHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveTick("advanced", 0.25)

	metric := &dto.Metric{}
	require.NoError(t, c.TickDuration.WithLabelValues("advanced").(prometheus.Histogram).Write(metric))
	require.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
}
