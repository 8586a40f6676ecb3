package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestGatewayMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)

	m.Frame(ResultOK)
	m.Frame(ResultOK)
	m.Frame(ResultBadChecksum)
	assert.Equal(t, 2.0, value(t, m.FramesTotal.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, value(t, m.FramesTotal.WithLabelValues(ResultBadChecksum)))

	SetBool(m.LoggedIn, true)
	assert.Equal(t, 1.0, value(t, m.LoggedIn))
	SetBool(m.LoggedIn, false)
	assert.Equal(t, 0.0, value(t, m.LoggedIn))

	var nilMetrics *GatewayMetrics
	assert.NotPanics(t, func() { nilMetrics.Frame(ResultOK) })
}

func TestRegistryGathers(t *testing.T) {
	reg := NewRegistry()
	NewGatewayMetrics(reg)
	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
}
