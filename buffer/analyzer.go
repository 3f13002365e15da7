package buffer

import "math"

// Thresholds classifying a single snapshot against its target level.
const (
	underrunRatio = 0.3 // level below 30% of target risks a stall
	overrunRatio  = 2.0 // level above 2x target wastes memory
)

// Window sizes for the periodic analysis and the health score.
const (
	analysisWindow = 30
	healthWindow   = 20
	optimizeWindow = 10
)

// Counts of bad snapshots, not rates, drive the adjustment trigger so a
// short window does not over-trigger.
const (
	underrunTriggerCount = 2
	overrunTriggerCount  = 5
)

// Analysis summarizes a trailing window of snapshots. It is recomputed
// from scratch each tick and never stored.
type Analysis struct {
	UnderrunRate       float64 // fraction of snapshots below the underrun threshold
	OverrunRate        float64 // fraction above the overrun threshold
	StallRate          float64 // fraction observed stalled
	AverageBufferLevel float64 // mean buffered duration, ms
	BufferStability    float64 // 1 = perfectly flat level
	RequiresAdjustment bool

	underrunCount int
	overrunCount  int
	stallCount    int
}

// LevelTrend is the direction recent buffer levels are moving, derived
// from an exponential moving average. A falling trend paired with low
// stability is the early warning the host reads to pre-empt underruns.
type LevelTrend int

const (
	TrendSteady LevelTrend = iota
	TrendRising
	TrendFalling
)

func (t LevelTrend) String() string {
	switch t {
	case TrendRising:
		return "rising"
	case TrendFalling:
		return "falling"
	default:
		return "steady"
	}
}

// analyze computes the window summary. An empty window yields the
// neutral result: all rates zero, stability 1.0, no adjustment needed.
func analyze(window []Snapshot) Analysis {
	if len(window) == 0 {
		return Analysis{BufferStability: 1.0}
	}

	a := Analysis{}
	var levelSum float64

	for _, s := range window {
		levelSum += s.BufferLevelMs
		if s.BufferLevelMs < s.TargetLevelMs*underrunRatio {
			a.underrunCount++
		}
		if s.BufferLevelMs > s.TargetLevelMs*overrunRatio {
			a.overrunCount++
		}
		if s.Stalled {
			a.stallCount++
		}
	}

	n := float64(len(window))
	a.UnderrunRate = float64(a.underrunCount) / n
	a.OverrunRate = float64(a.overrunCount) / n
	a.StallRate = float64(a.stallCount) / n
	a.AverageBufferLevel = levelSum / n
	a.BufferStability = stability(window)
	a.RequiresAdjustment = a.underrunCount > underrunTriggerCount ||
		a.overrunCount > overrunTriggerCount ||
		a.stallCount > 0

	return a
}

// stability measures how flat the buffer level held across the window:
// 1 minus the mean relative step between consecutive samples, clamped
// to [0,1]. A single sample is perfectly stable.
func stability(window []Snapshot) float64 {
	if len(window) < 2 {
		return 1.0
	}

	var sum float64
	for i := 1; i < len(window); i++ {
		prev, cur := window[i-1].BufferLevelMs, window[i].BufferLevelMs
		denom := math.Max(prev, cur)
		if denom <= 0 {
			// Both levels empty: no movement.
			continue
		}
		sum += math.Abs(cur-prev) / denom
	}

	return clamp(1.0-sum/float64(len(window)-1), 0, 1)
}

// healthScore condenses a window into a single [0,1] grade. Stalls are
// weighted double because the user feels every one of them.
func healthScore(window []Snapshot) float64 {
	if len(window) == 0 {
		return 1.0
	}

	a := analyze(window)
	penalty := float64(a.underrunCount+a.overrunCount+2*a.stallCount) / float64(len(window))
	return math.Max(0, 1.0-penalty)
}

// efficiency is the fraction of snapshots whose level sat inside the
// useful band around the target.
func efficiency(window []Snapshot) float64 {
	if len(window) == 0 {
		return 0
	}

	inBand := 0
	for _, s := range window {
		if s.BufferLevelMs >= s.TargetLevelMs*0.8 && s.BufferLevelMs <= s.TargetLevelMs*1.5 {
			inBand++
		}
	}
	return float64(inBand) / float64(len(window))
}

// levelTrend compares an EMA of the window's levels against its mean.
// Deviations under 5% read as steady.
func levelTrend(window []Snapshot) LevelTrend {
	if len(window) < 3 {
		return TrendSteady
	}

	const alpha = 0.2
	ema := window[0].BufferLevelMs
	var sum float64
	for _, s := range window {
		ema = alpha*s.BufferLevelMs + (1-alpha)*ema
		sum += s.BufferLevelMs
	}
	mean := sum / float64(len(window))
	if mean <= 0 {
		return TrendSteady
	}

	switch drift := (ema - mean) / mean; {
	case drift > 0.05:
		return TrendRising
	case drift < -0.05:
		return TrendFalling
	default:
		return TrendSteady
	}
}

func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
