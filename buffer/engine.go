package buffer

import (
	"fmt"
	"strings"
	"time"
)

// NetworkMetrics is the bandwidth pair the host's network monitor
// supplies per call; read-only to this engine.
type NetworkMetrics struct {
	BandwidthKbps        float64
	AverageBandwidthKbps float64
}

// Adjustment is one proposed configuration change plus its explanation.
type Adjustment struct {
	Config       BufferConfiguration
	ShouldUpdate bool
	Reason       string
	Description  string
}

// AdjustmentRecord is one accepted configuration change, kept for
// oscillation visibility.
type AdjustmentRecord struct {
	Timestamp time.Time
	Previous  BufferConfiguration
	New       BufferConfiguration
	Reason    string
}

// degradationCause classifies the reason tag reported by the external
// performance telemetry. First matching category wins; anything
// unrecognized falls through to fine-tuning.
type degradationCause int

const (
	causeOptimize degradationCause = iota
	causeUnderrun
	causeExcessive
	causeStall
	causeNetwork
)

func classifyCause(reason string) degradationCause {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "underrun"):
		return causeUnderrun
	case strings.Contains(r, "excessive"):
		return causeExcessive
	case strings.Contains(r, "stall"):
		return causeStall
	case strings.Contains(r, "network"):
		return causeNetwork
	default:
		return causeOptimize
	}
}

// Significance thresholds: a proposed change below all three is noise
// and is not published. Tunable constants, not invariants.
const (
	SignificantMinDeltaMs      = 1000
	SignificantMaxDeltaMs      = 2000
	SignificantPlaybackDeltaMs = 500
)

// significantChange reports whether swapping old for new is material
// enough to publish. The reactive paths bypass this gate; the strategy
// switch and fine-tuning paths apply it to avoid event-stream churn.
func significantChange(old, new BufferConfiguration) bool {
	return absInt(new.MinBufferMs-old.MinBufferMs) > SignificantMinDeltaMs ||
		absInt(new.MaxBufferMs-old.MaxBufferMs) > SignificantMaxDeltaMs ||
		absFloat(new.PlaybackBufferMs-old.PlaybackBufferMs) > SignificantPlaybackDeltaMs
}

// recommend proposes a new configuration for the reported degradation
// cause. The four reactive causes always want publishing; the
// fine-tuning default defers to the significance gate.
func recommend(reason string, cfg BufferConfiguration, metrics NetworkMetrics, recent []Snapshot) Adjustment {
	switch classifyCause(reason) {
	case causeUnderrun:
		next := cfg
		next.MinBufferMs = int(float64(cfg.MinBufferMs) * 1.5)
		next.PlaybackBufferMs = cfg.PlaybackBufferMs * 1.3
		next.PlaybackRebufferMs = cfg.PlaybackRebufferMs * 1.5
		return Adjustment{
			Config:       next.normalize(),
			ShouldUpdate: true,
			Reason:       "underrun",
			Description:  "buffer underruns detected, raising minimum buffer and playback thresholds",
		}

	case causeExcessive:
		next := cfg
		next.MaxBufferMs = int(float64(cfg.MaxBufferMs) * 0.8)
		next.TargetBufferBytes = int64(float64(cfg.TargetBufferBytes) * 0.8)
		return Adjustment{
			Config:       next.normalize(),
			ShouldUpdate: true,
			Reason:       "excessive buffering",
			Description:  "buffer consistently overfull, trimming ceiling and byte budget",
		}

	case causeStall:
		next := cfg
		next.PlaybackRebufferMs = cfg.PlaybackRebufferMs * 1.8
		next.RebufferTimeoutMs = int(float64(cfg.RebufferTimeoutMs) * 1.5)
		return Adjustment{
			Config:       next.normalize(),
			ShouldUpdate: true,
			Reason:       "stall recovery",
			Description:  "playback stalled, demanding more buffer before resume and extending rebuffer patience",
		}

	case causeNetwork:
		severity := 0.0
		if metrics.AverageBandwidthKbps > 0 {
			severity = clamp(1.0-metrics.BandwidthKbps/metrics.AverageBandwidthKbps, 0, 1)
		}
		factor := 1.0 + severity
		next := cfg
		next.MinBufferMs = int(float64(cfg.MinBufferMs) * factor)
		next.PlaybackBufferMs = cfg.PlaybackBufferMs * factor
		next.TargetBufferBytes = int64(float64(cfg.TargetBufferBytes) * factor)
		return Adjustment{
			Config:       next.normalize(),
			ShouldUpdate: true,
			Reason:       "network degraded",
			Description:  fmt.Sprintf("bandwidth %.0f%% below average, scaling buffers by %.2fx", severity*100, factor),
		}

	default:
		return optimizeFurther(cfg, recent)
	}
}

// optimizeFurther is the fine-tuning path taken when nothing is visibly
// wrong. An already-good window is left alone; otherwise the playback
// threshold is nudged and the significance gate decides publication.
func optimizeFurther(cfg BufferConfiguration, recent []Snapshot) Adjustment {
	stab := stability(recent)
	eff := efficiency(recent)

	if stab > 0.8 && eff > 0.7 {
		return Adjustment{
			Config:       cfg,
			ShouldUpdate: false,
			Reason:       "optimal",
			Description:  fmt.Sprintf("configuration holding well (stability %.2f, efficiency %.2f)", stab, eff),
		}
	}

	multiplier := 1.0
	switch {
	case stab < 0.6:
		multiplier = 1.2
	case stab > 0.9 && eff > 0.8:
		multiplier = 0.95
	}

	next := cfg
	next.PlaybackBufferMs = cfg.PlaybackBufferMs * multiplier
	next = next.normalize()

	return Adjustment{
		Config:       next,
		ShouldUpdate: significantChange(cfg, next),
		Reason:       "fine tuning",
		Description:  fmt.Sprintf("nudging playback threshold by %.2fx (stability %.2f, efficiency %.2f)", multiplier, stab, eff),
	}
}

// AdjustmentLabel is the coarse classification published alongside an
// automatic adjustment event.
type AdjustmentLabel string

const (
	LabelIncreaseBuffer   AdjustmentLabel = "increase_buffer"
	LabelDecreaseBuffer   AdjustmentLabel = "decrease_buffer"
	LabelAggressiveBuffer AdjustmentLabel = "aggressive_buffer"
	LabelNoAdjustment     AdjustmentLabel = "no_adjustment"
)

// classifyAutoAdjustment maps an analysis to the coarse label the
// monitor loop publishes. First matching check wins.
func classifyAutoAdjustment(a Analysis) AdjustmentLabel {
	switch {
	case a.UnderrunRate > 0.2:
		return LabelIncreaseBuffer
	case a.OverrunRate > 0.3:
		return LabelDecreaseBuffer
	case a.StallRate > 0.1:
		return LabelAggressiveBuffer
	default:
		return LabelNoAdjustment
	}
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
