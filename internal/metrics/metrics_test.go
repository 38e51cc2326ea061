package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/botgateway/internal/metrics"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.UpdatesEnqueued.WithLabelValues("message").Inc()
	m.DispatchDuration.WithLabelValues("getMe", "ok").Observe(0.01)
	m.ReconcileOutcomes.WithLabelValues("raw_event", "delivered").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
