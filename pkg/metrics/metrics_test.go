package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveGetRecordsHitAndMissSeparately(t *testing.T) {
	m := New()

	m.ObserveGet(true, 5*time.Millisecond)
	m.ObserveGet(false, 20*time.Millisecond)
	m.ObserveGet(true, 3*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheRequestsTotal.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheRequestsTotal.WithLabelValues("miss")))
}

func TestQueueDepthGaugeTracksLatestValue(t *testing.T) {
	m := New()

	m.QueueDepth.Set(12)
	assert.Equal(t, float64(12), testutil.ToFloat64(m.QueueDepth))

	m.QueueDepth.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.QueueDepth))
}

func TestDriftAlertsTotalLabelsBySeverity(t *testing.T) {
	m := New()

	m.DriftAlertsTotal.WithLabelValues("warning").Inc()
	m.DriftAlertsTotal.WithLabelValues("warning").Inc()
	m.DriftAlertsTotal.WithLabelValues("critical").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.DriftAlertsTotal.WithLabelValues("warning")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DriftAlertsTotal.WithLabelValues("critical")))
}

func TestTrajectoriesGeneratedTotalLabelsByValidity(t *testing.T) {
	m := New()

	m.TrajectoriesGeneratedTotal.WithLabelValues("valid").Inc()
	m.TrajectoriesGeneratedTotal.WithLabelValues("fallback").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TrajectoriesGeneratedTotal.WithLabelValues("valid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TrajectoriesGeneratedTotal.WithLabelValues("fallback")))
}
