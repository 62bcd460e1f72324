package hnmp

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	m := newMetrics(nil)
	require.Nil(t, m)

	assert.NotPanics(t, func() {
		m.connectAttempt("ok")
		m.received(10)
		m.frameReceived(TypeText)
		m.frameSent(TypeLogin, 10)
		m.protocolError()
		m.disconnect(true, true)
	})
}

func TestMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	a := newMetrics(reg)
	b := newMetrics(reg)

	a.frameReceived(TypeText)
	b.frameReceived(TypeText)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.framesIn.WithLabelValues("MESSG")))
	assert.Same(t, a.framesIn, b.framesIn)
}

func TestMetrics_ConflictingCollectorPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "connected",
		Help:      "Something else entirely.",
	}))

	assert.Panics(t, func() { newMetrics(reg) })
}

func TestMetrics_Lifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetrics(reg)

	m.connectAttempt("ok")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connected))

	m.frameSent(TypeLogin, 42)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesOut.WithLabelValues("LOGIN")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.bytesOut))

	m.disconnect(true, true)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.disconnects.WithLabelValues("true")))

	m.connectAttempt("refused")
	m.disconnect(false, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connects.WithLabelValues("refused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.disconnects.WithLabelValues("false")))
}

func TestConn_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, server, h := dialTestPair(t, MetricsOption(reg))

	if _, err := server.Write([]byte(`{"type":"MESSG","data":["hi"]}{"type":"BOGUS","data":[]}`)); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
	h.waitEvent(t, "teardown:")
	waitDone(t, c)

	m := c.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connects.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesIn.WithLabelValues("MESSG")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.protocolErrors))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.bytesIn) > 0
	}, time.Second, 10*time.Millisecond)

	n, err := testutil.GatherAndCount(reg, "hnmp_disconnects_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
