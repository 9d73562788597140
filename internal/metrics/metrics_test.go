package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersStats(t *testing.T) {
	c := &Counters{}
	c.Generated()
	c.Generated()
	c.Delivered(10)
	c.Rejected()
	c.Undeliverable(3)
	c.RelayCandidates(4)
	c.RelayCandidates(2)

	assert.Equal(t, 0.5, c.DeliveryRatio())

	stats := c.GetStats()
	assert.Equal(t, uint64(2), stats["generated"])
	assert.Equal(t, uint64(1), stats["delivered"])
	assert.Equal(t, uint64(1), stats["rejected"])
	assert.Equal(t, uint64(3), stats["undeliverable"])
	assert.InDelta(t, 2.0, stats["avg_relay_candidates"], 1e-9)
}

func TestDeliveryRatioWithoutTraffic(t *testing.T) {
	assert.Zero(t, (&Counters{}).DeliveryRatio())
}

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)

	p.Generated()
	p.Delivered(4)
	p.Undeliverable(2)
	p.TransmissionAttempt()
	p.TransmissionAttempt()

	assert.Equal(t, 1.0, testutil.ToFloat64(p.Packets.WithLabelValues("generated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Packets.WithLabelValues("delivered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.Packets.WithLabelValues("undeliverable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.TransmissionAttempts))
}

func TestPrometheusReRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheus(reg)
	require.NoError(t, err)
	second, err := NewPrometheus(reg)
	require.NoError(t, err)

	first.Rejected()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.Packets.WithLabelValues("rejected")))
}

func TestPrometheusHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)
	p.MissionStep()

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "fanet_mission_steps_total 1"))
}

func TestTeeFansOut(t *testing.T) {
	a, b := &Counters{}, &Counters{}
	s := Tee(a, b)
	s.Expired()
	s.TTLDropped()
	assert.Equal(t, uint64(1), a.ExpiredPackets)
	assert.Equal(t, uint64(1), b.TTLDroppedPackets)
}
