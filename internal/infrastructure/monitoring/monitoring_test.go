package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_CheckAll(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("ok", func(ctx context.Context) error { return nil }, time.Second, time.Second)
	assert.True(t, h.IsReady(context.Background()))

	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, time.Second, 10*time.Millisecond)
	h.AddCheck("broken", func(ctx context.Context) error { return errors.New("down") }, time.Second, time.Second)

	status := h.CheckAll(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["ok"])
	assert.Equal(t, "down", status.Checks["broken"])
	assert.Contains(t, status.Checks["slow"], "deadline")

	err, ok := h.LastResult("broken")
	require.True(t, ok)
	assert.EqualError(t, err, "down")
}

// value sums every sample of a counter or gauge family whose labels contain
// the given pairs.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
	}
	return total
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, pair := range m.GetLabel() {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestPrometheusCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.RecordSessionJoined("p1")
	c.RecordSessionJoined("p1")
	c.RecordSessionLeft("p1", "leave")
	c.RecordPlaybackPush("p1", nil)
	c.RecordPlaybackPush("p1", errors.New("boom"))
	c.RecordDriftCorrection("p1", "drift", 4.2)

	assert.Equal(t, 1.0, value(t, reg, "watchparty_sessions_active", nil))
	assert.Equal(t, 2.0, value(t, reg, "watchparty_sessions_joined_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "watchparty_sessions_left_total", map[string]string{"reason": "leave"}))
	assert.Equal(t, 1.0, value(t, reg, "watchparty_playback_pushes_total", map[string]string{"result": "error"}))
	assert.Equal(t, 2.0, value(t, reg, "watchparty_playback_pushes_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "watchparty_drift_corrections_total", map[string]string{"reason": "drift"}))

	// a second collector on another registry must not collide
	assert.NotPanics(t, func() { NewPrometheusCollector(prometheus.NewRegistry()) })
}
