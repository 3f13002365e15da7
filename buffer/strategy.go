package buffer

import "fmt"

// Strategy names a preset bundle of buffer thresholds.
type Strategy int

const (
	StrategyMinimal Strategy = iota
	StrategyNormal
	StrategyBalanced
	StrategyAggressive
)

func (s Strategy) String() string {
	switch s {
	case StrategyMinimal:
		return "minimal"
	case StrategyNormal:
		return "normal"
	case StrategyBalanced:
		return "balanced"
	case StrategyAggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "minimal":
		return StrategyMinimal, nil
	case "normal":
		return StrategyNormal, nil
	case "balanced":
		return StrategyBalanced, nil
	case "aggressive":
		return StrategyAggressive, nil
	default:
		return 0, fmt.Errorf("invalid strategy: %s", s)
	}
}

// ConnectionQuality is the coarse network grade supplied by the host's
// network monitor.
type ConnectionQuality int

const (
	QualityPoor ConnectionQuality = iota
	QualityFair
	QualityGood
	QualityExcellent
)

func (q ConnectionQuality) String() string {
	switch q {
	case QualityPoor:
		return "poor"
	case QualityFair:
		return "fair"
	case QualityGood:
		return "good"
	case QualityExcellent:
		return "excellent"
	default:
		return "unknown"
	}
}

// networkMultiplier maps connection quality to a uniform buffer scale.
// Poorer networks need more slack to avoid starvation; excellent
// networks can run lean to save memory and start-up latency.
func (q ConnectionQuality) networkMultiplier() float64 {
	switch q {
	case QualityPoor:
		return 1.5
	case QualityFair:
		return 1.2
	case QualityExcellent:
		return 0.8
	default:
		return 1.0
	}
}

// baselineFor derives the baseline configuration for a strategy from the
// host-supplied base. The base is never mutated.
func baselineFor(strategy Strategy, base BufferConfiguration) BufferConfiguration {
	cfg := base

	switch strategy {
	case StrategyMinimal:
		// Smallest viable footprint: fast start, no back buffer, short
		// patience while rebuffering.
		cfg.MinBufferMs = base.MinBufferMs / 2
		cfg.MaxBufferMs = base.MaxBufferMs / 2
		cfg.PlaybackBufferMs = base.PlaybackBufferMs / 2
		cfg.BackBufferMs = 0
		cfg.RebufferTimeoutMs = base.RebufferTimeoutMs / 2

	case StrategyNormal:
		// Identity transform of the base.

	case StrategyBalanced:
		cfg.MaxBufferMs = int(float64(base.MaxBufferMs) * 1.2)
		cfg.TargetBufferBytes = int64(float64(base.TargetBufferBytes) * 1.2)
		cfg.PlaybackRebufferMs = base.PlaybackRebufferMs * 1.3
		cfg.BackBufferMs = base.MinBufferMs

	case StrategyAggressive:
		// Maximum resilience: deep buffers, byte budget authoritative,
		// long patience while rebuffering.
		cfg.MinBufferMs = base.MinBufferMs * 2
		cfg.MaxBufferMs = base.MaxBufferMs * 2
		cfg.PlaybackBufferMs = base.PlaybackBufferMs * 1.5
		cfg.PlaybackRebufferMs = base.PlaybackRebufferMs * 2
		cfg.TargetBufferBytes = base.TargetBufferBytes * 2
		cfg.PrioritizeTimeOverSize = false
		cfg.RebufferTimeoutMs = base.RebufferTimeoutMs * 2
	}

	return cfg.normalize()
}

// scaleForNetwork applies the quality multiplier uniformly to the
// duration thresholds and the byte budget.
func scaleForNetwork(cfg BufferConfiguration, quality ConnectionQuality) BufferConfiguration {
	m := quality.networkMultiplier()
	if m == 1.0 {
		return cfg
	}

	cfg.MinBufferMs = int(float64(cfg.MinBufferMs) * m)
	cfg.MaxBufferMs = int(float64(cfg.MaxBufferMs) * m)
	cfg.PlaybackBufferMs = cfg.PlaybackBufferMs * m
	cfg.TargetBufferBytes = int64(float64(cfg.TargetBufferBytes) * m)

	return cfg.normalize()
}
