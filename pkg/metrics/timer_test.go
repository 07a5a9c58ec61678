package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first, "duration keeps growing until observed")
}

func TestTimerObserve(t *testing.T) {
	// A refresh-all pass observed the way the syncer does it
	syncAll := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_sync_all_duration_seconds",
		Help: "test",
	})
	NewTimer().ObserveDuration(syncAll)
	assert.Equal(t, 1, testutil.CollectAndCount(syncAll))

	// Appliance requests are observed per endpoint
	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_appliance_request_duration_seconds",
		Help: "test",
	}, []string{"endpoint"})

	timer := NewTimer()
	timer.ObserveDurationVec(requests, "/control/status")
	timer.ObserveDurationVec(requests, "/control/filtering/status")
	timer.ObserveDurationVec(requests, "/control/status")

	assert.Equal(t, 2, testutil.CollectAndCount(requests), "one series per endpoint")
}
