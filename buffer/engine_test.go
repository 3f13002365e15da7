package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendUnderrun(t *testing.T) {
	cfg := testBase()
	adj := recommend("buffer underrun detected", cfg, NetworkMetrics{}, nil)

	require.True(t, adj.ShouldUpdate, "underrun must always update")
	assert.Equal(t, "underrun", adj.Reason)
	assert.Equal(t, int(float64(cfg.MinBufferMs)*1.5), adj.Config.MinBufferMs)
	assert.InDelta(t, cfg.PlaybackBufferMs*1.3, adj.Config.PlaybackBufferMs, 1e-9)
	assert.InDelta(t, cfg.PlaybackRebufferMs*1.5, adj.Config.PlaybackRebufferMs, 1e-9)
	// Untouched fields carry over.
	assert.Equal(t, cfg.MaxBufferMs, adj.Config.MaxBufferMs)
	assert.Equal(t, cfg.TargetBufferBytes, adj.Config.TargetBufferBytes)
}

func TestRecommendExcessiveBuffering(t *testing.T) {
	cfg := testBase()
	adj := recommend("excessive buffering", cfg, NetworkMetrics{}, nil)

	require.True(t, adj.ShouldUpdate)
	assert.Equal(t, int(float64(cfg.MaxBufferMs)*0.8), adj.Config.MaxBufferMs)
	assert.Equal(t, int64(float64(cfg.TargetBufferBytes)*0.8), adj.Config.TargetBufferBytes)
	assert.Equal(t, cfg.MinBufferMs, adj.Config.MinBufferMs)
}

func TestRecommendStallRecovery(t *testing.T) {
	cfg := testBase()
	adj := recommend("stall during playback", cfg, NetworkMetrics{}, nil)

	require.True(t, adj.ShouldUpdate)
	assert.InDelta(t, cfg.PlaybackRebufferMs*1.8, adj.Config.PlaybackRebufferMs, 1e-9)
	assert.Equal(t, int(float64(cfg.RebufferTimeoutMs)*1.5), adj.Config.RebufferTimeoutMs)
}

func TestRecommendNetworkDegraded(t *testing.T) {
	cfg := testBase()

	// Bandwidth at half the average: severity 0.5, factor exactly 1.5.
	adj := recommend("network degraded", cfg, NetworkMetrics{
		BandwidthKbps:        2000,
		AverageBandwidthKbps: 4000,
	}, nil)

	require.True(t, adj.ShouldUpdate)
	assert.Equal(t, int(float64(cfg.MinBufferMs)*1.5), adj.Config.MinBufferMs)
	assert.InDelta(t, cfg.PlaybackBufferMs*1.5, adj.Config.PlaybackBufferMs, 1e-9)
	assert.Equal(t, int64(float64(cfg.TargetBufferBytes)*1.5), adj.Config.TargetBufferBytes)
	assert.Contains(t, adj.Description, "50%")
}

func TestRecommendNetworkDegradedGuards(t *testing.T) {
	cfg := testBase()

	// Bandwidth above average clamps severity at zero: factor 1.0.
	adj := recommend("network degraded", cfg, NetworkMetrics{
		BandwidthKbps:        5000,
		AverageBandwidthKbps: 4000,
	}, nil)
	assert.Equal(t, cfg.MinBufferMs, adj.Config.MinBufferMs)

	// Missing average: no scaling rather than a division by zero.
	adj = recommend("network degraded", cfg, NetworkMetrics{BandwidthKbps: 2000}, nil)
	assert.Equal(t, cfg.MinBufferMs, adj.Config.MinBufferMs)
}

func TestRecommendOptimalIsIdempotent(t *testing.T) {
	cfg := testBase()

	// Stable window sitting on target: stability 1.0, efficiency 1.0.
	window := make([]Snapshot, optimizeWindow)
	for i := range window {
		window[i] = level(5000)
	}
	window = snaps(window...)

	first := recommend("", cfg, NetworkMetrics{}, window)
	require.False(t, first.ShouldUpdate)
	assert.Equal(t, "optimal", first.Reason)
	assert.Equal(t, cfg, first.Config)

	second := recommend("", first.Config, NetworkMetrics{}, window)
	require.False(t, second.ShouldUpdate)
	assert.Equal(t, cfg, second.Config)
}

func TestRecommendFineTuning(t *testing.T) {
	cfg := testBase()

	// Wildly swinging levels: stability well under 0.6 forces the 1.2x
	// nudge on the playback threshold.
	window := snaps(
		level(500), level(8000), level(400), level(9000), level(300),
		level(7000), level(600), level(8500), level(200), level(9000),
	)

	adj := recommend("", cfg, NetworkMetrics{}, window)
	assert.Equal(t, "fine tuning", adj.Reason)
	assert.InDelta(t, cfg.PlaybackBufferMs*1.2, adj.Config.PlaybackBufferMs, 1e-9)
	// A 500ms nudge on a 2500ms threshold stays under the significance
	// gate, so the change is computed but not published.
	assert.False(t, adj.ShouldUpdate)
}

func TestSignificantChange(t *testing.T) {
	base := testBase()

	cases := []struct {
		name   string
		mutate func(*BufferConfiguration)
		want   bool
	}{
		{"identical", func(*BufferConfiguration) {}, false},
		{"min over threshold", func(c *BufferConfiguration) { c.MinBufferMs += 1001 }, true},
		{"min under threshold", func(c *BufferConfiguration) { c.MinBufferMs += 1000 }, false},
		{"max over threshold", func(c *BufferConfiguration) { c.MaxBufferMs += 2001 }, true},
		{"max under threshold", func(c *BufferConfiguration) { c.MaxBufferMs += 2000 }, false},
		{"playback over threshold", func(c *BufferConfiguration) { c.PlaybackBufferMs += 501 }, true},
		{"playback under threshold", func(c *BufferConfiguration) { c.PlaybackBufferMs += 500 }, false},
		{"negative delta counts", func(c *BufferConfiguration) { c.MinBufferMs -= 1500 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next := base
			tc.mutate(&next)
			if got := significantChange(base, next); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClassifyCause(t *testing.T) {
	cases := []struct {
		reason string
		want   degradationCause
	}{
		{"underrun", causeUnderrun},
		{"Buffer Underrun rate high", causeUnderrun},
		{"excessive buffering", causeExcessive},
		{"stall recovery", causeStall},
		{"network degraded", causeNetwork},
		{"", causeOptimize},
		{"optimize further", causeOptimize},
	}
	for _, tc := range cases {
		if got := classifyCause(tc.reason); got != tc.want {
			t.Errorf("classifyCause(%q) = %v, want %v", tc.reason, got, tc.want)
		}
	}
}
