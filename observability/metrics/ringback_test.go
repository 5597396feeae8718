package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRingbackMetrics(t *testing.T) {
	m := newRingbackMetrics()

	m.ObserveTransition("subscribe", "", 3*time.Millisecond)
	m.ObserveTransition("subscribe", "UserSubscribedAudio", time.Millisecond)
	m.ObserveTransition("", "", time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("subscribe", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("subscribe", "UserSubscribedAudio")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("unknown", "ok")))

	m.SetToneCount(7)
	require.Equal(t, 7.0, testutil.ToFloat64(m.toneCount))

	m.AddSubscriptionAmount(40)
	m.AddSubscriptionAmount(2)
	require.Equal(t, 42.0, testutil.ToFloat64(m.received))

	var nilMetrics *RingbackMetrics
	nilMetrics.ObserveTransition("x", "y", 0)
}

func TestRingbackSingleton(t *testing.T) {
	require.Same(t, Ringback(), Ringback())
}
