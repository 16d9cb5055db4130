package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRefreshCall(OutcomeSuccess)
	m.RecordRefreshCall(OutcomeError)
	m.RecordRefreshCall(OutcomeError)
	m.RecordFetch(ResultToken, 150*time.Millisecond)
	m.RecordTimerFire()
	m.RecordLogout()
	m.SetSubscribers(3)
	m.SetCacheValid(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshCalls.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.refreshCalls.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues(ResultToken)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.timerFires))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logouts))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.subscribers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheValid))

	m.SetCacheValid(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.cacheValid))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordRefreshCall(OutcomeSuccess)
		m.RecordFetch(ResultFailed, time.Second)
		m.RecordTimerFire()
		m.RecordLogout()
		m.SetSubscribers(1)
		m.SetCacheValid(true)
	})
}
