package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.AddRevisionCreated("DRAFT")
	m.AddRevisionCreated("DRAFT")
	m.AddTransition("approve", "ok")
	m.AddSignal("submit", "conflict")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.revisionsCreatedTotal.WithLabelValues("DRAFT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("approve", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("approve", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signalsTotal.WithLabelValues("submit", "conflict")))
}

func TestObserveMerge(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.ObserveMerge("clean", 3*time.Millisecond)
	m.ObserveMerge("conflict", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.mergesTotal.WithLabelValues("clean")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.mergeDurationSeconds))

	count, err := testutil.GatherAndCount(m.Registry(), "folio_merge_merges_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.AddRevisionCreated("DRAFT")
	m.AddTransition("reject", "ok")
	m.ObserveMerge("clean", time.Second)
	m.AddSignal("approve", "ok")
}
